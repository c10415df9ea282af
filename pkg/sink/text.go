// Copyright 2018 The gVisor Authors.
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package sink

import (
	"bufio"
	"encoding/hex"
	"fmt"
	"io"
	"strings"

	"github.com/trailofbits/mttn/pkg/arch"
)

// Text is the human-readable sink for -t (SPEC_FULL.md §6): one line per
// step, "eip bytes mnemonic operands", followed by an indented line per
// access. It is the primary sink for -F tiny86-text; for the other -F
// formats, -t adds it via sink.Multi alongside JSONL or Tiny86.
type Text struct {
	w *bufio.Writer
}

// NewText wraps w.
func NewText(w io.Writer) *Text {
	return &Text{w: bufio.NewWriter(w)}
}

// Emit writes r's line and its access lines.
func (t *Text) Emit(r arch.StepRecord) error {
	fmt.Fprintf(t.w, "%08x  %-24s  %s\n",
		r.RegsPre.Eip, hex.EncodeToString(r.Insn.Bytes), describe(r.Insn))
	for _, a := range r.Accesses {
		fmt.Fprintf(t.w, "    %s %#08x/%d %s\n",
			a.Direction, a.Addr, a.Width, hex.EncodeToString(a.Data))
	}
	return t.w.Flush()
}

// Close writes a final line describing term, if it carries information
// worth surfacing to a human reading along with the trace.
func (t *Text) Close(term arch.Terminus) error {
	if term.Kind != arch.TermNone {
		fmt.Fprintf(t.w, "-- %s\n", term.Reason)
	}
	return t.w.Flush()
}

func describe(in arch.Insn) string {
	if len(in.Operands) == 0 {
		return string(in.Mnemonic)
	}
	parts := make([]string, 0, len(in.Operands))
	for _, op := range in.Operands {
		parts = append(parts, operandText(op))
	}
	return string(in.Mnemonic) + " " + strings.Join(parts, ", ")
}

func operandText(op arch.Operand) string {
	switch op.Kind {
	case arch.OperandReg:
		return regName(op.Reg)
	case arch.OperandImm:
		return fmt.Sprintf("%#x", op.Imm)
	case arch.OperandMem:
		return memText(op.Mem)
	case arch.OperandImplicit:
		return string(op.Implicit)
	default:
		return "?"
	}
}

func memText(m arch.Mem) string {
	var b strings.Builder
	b.WriteByte('[')
	if m.HasBase {
		b.WriteString(regName(m.Base))
	}
	if m.HasIndex {
		fmt.Fprintf(&b, "+%s*%d", regName(m.Index), m.Scale)
	}
	if m.Disp != 0 {
		fmt.Fprintf(&b, "%+d", m.Disp)
	}
	b.WriteByte(']')
	return b.String()
}

func regName(id arch.RegID) string {
	switch id {
	case arch.RegEAX:
		return "eax"
	case arch.RegECX:
		return "ecx"
	case arch.RegEDX:
		return "edx"
	case arch.RegEBX:
		return "ebx"
	case arch.RegESP:
		return "esp"
	case arch.RegEBP:
		return "ebp"
	case arch.RegESI:
		return "esi"
	case arch.RegEDI:
		return "edi"
	case arch.RegEIP:
		return "eip"
	default:
		return "?"
	}
}
