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
	"encoding/binary"
	"io"

	"github.com/trailofbits/mttn/pkg/arch"
)

// Tiny86 frame layout constants, per spec.md §6: "fixed-width frames (pc,
// opcode bytes padded to 12, register file, up to K accesses each as
// (addr,width,dir,data))." K and the per-access data width are fixed by
// the Tiny86/SIEVE consumer's own frame format; mttn only needs to match
// it bit-for-bit, not choose it, so the constants below are the contract,
// not a tuning knob.
const (
	tiny86MaxOpcodeBytes = 12
	tiny86MaxAccesses    = 4
	tiny86AccessDataLen  = 8 // one slot always holds the widest (8-byte) access
)

// Tiny86 writes the fixed-width binary frame format spec.md §6 names as
// the bit-exact interchange format for downstream verifiable-computation
// tooling.
type Tiny86 struct {
	w *bufio.Writer
}

// NewTiny86 wraps w.
func NewTiny86(w io.Writer) *Tiny86 {
	return &Tiny86{w: bufio.NewWriter(w)}
}

// Emit writes one fixed-size frame for r, truncating to
// tiny86MaxAccesses per step; spec.md's §4 size discipline treats
// exceeding K on a single step as the consumer's problem to flag, not
// the tracer's to error on, since K is a downstream format constant, not
// a tracer invariant.
func (t *Tiny86) Emit(r arch.StepRecord) error {
	var frame [tiny86FrameLen]byte
	off := 0

	binary.LittleEndian.PutUint32(frame[off:], r.RegsPre.Eip)
	off += 4

	n := copy(frame[off:off+tiny86MaxOpcodeBytes], r.Insn.Bytes)
	_ = n
	off += tiny86MaxOpcodeBytes

	off += putTiny86Regs(frame[off:], r.RegsPost)

	for i := 0; i < tiny86MaxAccesses; i++ {
		if i < len(r.Accesses) {
			off += putTiny86Access(frame[off:], r.Accesses[i])
		} else {
			off += tiny86AccessLen
		}
	}

	if _, err := t.w.Write(frame[:]); err != nil {
		return err
	}
	return t.w.Flush()
}

// Close flushes buffered frames.
func (t *Tiny86) Close(arch.Terminus) error {
	return t.w.Flush()
}

const (
	tiny86RegsLen  = 10 * 4 // eax,ebx,ecx,edx,esi,edi,ebp,esp,eip,eflags
	tiny86AccessLen = 4 + 1 + 1 + tiny86AccessDataLen
	tiny86FrameLen = 4 + tiny86MaxOpcodeBytes + tiny86RegsLen + tiny86MaxAccesses*tiny86AccessLen
)

func putTiny86Regs(buf []byte, r arch.Regs) int {
	vals := [...]uint32{r.Eax, r.Ebx, r.Ecx, r.Edx, r.Esi, r.Edi, r.Ebp, r.Esp, r.Eip, r.Eflags}
	for i, v := range vals {
		binary.LittleEndian.PutUint32(buf[i*4:], v)
	}
	return tiny86RegsLen
}

func putTiny86Access(buf []byte, a arch.MemoryAccess) int {
	binary.LittleEndian.PutUint32(buf[0:4], a.Addr)
	buf[4] = a.Width
	if a.Direction == arch.Write {
		buf[5] = 1
	}
	copy(buf[6:6+tiny86AccessDataLen], a.Data)
	return tiny86AccessLen
}
