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
	"encoding/json"
	"io"

	"github.com/trailofbits/mttn/pkg/arch"
)

// JSONL writes one JSON object per line, the shape fixed by spec.md §6:
// {"pc", "bytes", "regs", "regs_post", "accesses": [{"addr","width","dir","data"}]}.
type JSONL struct {
	w       *bufio.Writer
	showPre bool
}

// NewJSONL wraps w. showPre controls the -A flag's pre-step register
// snapshot; spec.md §6 treats regs_post as always present and regs
// (pre-step) as opt-in.
func NewJSONL(w io.Writer, showPre bool) *JSONL {
	return &JSONL{w: bufio.NewWriter(w), showPre: showPre}
}

type jsonRegs struct {
	Eax, Ebx, Ecx, Edx, Esi, Edi, Ebp, Esp, Eip, Eflags uint32
}

func toJSONRegs(r arch.Regs) jsonRegs {
	return jsonRegs{r.Eax, r.Ebx, r.Ecx, r.Edx, r.Esi, r.Edi, r.Ebp, r.Esp, r.Eip, r.Eflags}
}

type jsonAccess struct {
	Addr  uint32 `json:"addr"`
	Width uint8  `json:"width"`
	Dir   string `json:"dir"`
	Data  string `json:"data"`
}

type jsonRecord struct {
	PC        uint32       `json:"pc"`
	Bytes     string       `json:"bytes"`
	Regs      *jsonRegs    `json:"regs,omitempty"`
	RegsPost  jsonRegs     `json:"regs_post"`
	Accesses  []jsonAccess `json:"accesses"`
}

// Emit writes one line for r.
func (j *JSONL) Emit(r arch.StepRecord) error {
	rec := jsonRecord{
		PC:       r.RegsPre.Eip,
		Bytes:    hex.EncodeToString(r.Insn.Bytes),
		RegsPost: toJSONRegs(r.RegsPost),
	}
	if j.showPre {
		pre := toJSONRegs(r.RegsPre)
		rec.Regs = &pre
	}
	for _, a := range r.Accesses {
		rec.Accesses = append(rec.Accesses, jsonAccess{
			Addr:  a.Addr,
			Width: a.Width,
			Dir:   a.Direction.String(),
			Data:  hex.EncodeToString(a.Data),
		})
	}
	enc, err := json.Marshal(rec)
	if err != nil {
		return err
	}
	if _, err := j.w.Write(enc); err != nil {
		return err
	}
	if err := j.w.WriteByte('\n'); err != nil {
		return err
	}
	return j.w.Flush()
}

// Close flushes any buffered output. The terminus itself is not encoded
// as a JSONL record; callers surface it on the CLI's exit status instead
// (spec.md §7).
func (j *JSONL) Close(arch.Terminus) error {
	return j.w.Flush()
}
