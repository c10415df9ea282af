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

package arch

// Mnemonic names an instruction by its normalized, decoder-independent tag
// (e.g. "MOVSB", "PUSH"). It is always upper case regardless of which
// decoder library produced it.
type Mnemonic string

// Segment identifies the segment register (if any) implied or specified for
// a memory operand. Flat 32-bit Linux user segments are assumed to have a
// zero base; Segment is recorded anyway since that assumption may not hold
// for fs-relative thread-local accesses (spec Open Question, see
// DESIGN.md).
type Segment uint8

// Segment values. SegNone means no override was present in the encoding.
const (
	SegNone Segment = iota
	SegCS
	SegDS
	SegES
	SegFS
	SegGS
	SegSS
)

// ImplicitKind names an operand that is not spelled in the instruction's
// encoding but is nonetheless read or written by it: the stack for
// push/pop/call/ret/enter/leave, or the string-op pointer registers.
type ImplicitKind string

// ImplicitKind values.
const (
	ImplicitStack ImplicitKind = "stack"
	ImplicitESI   ImplicitKind = "esi"
	ImplicitEDI   ImplicitKind = "edi"
)

// OperandKind discriminates the Operand union.
type OperandKind uint8

// OperandKind values.
const (
	OperandReg OperandKind = iota
	OperandImm
	OperandMem
	OperandImplicit
)

// Mem is the quintuple describing an explicit memory operand: effective
// address is base + index*scale + disp, truncated to 32 bits.
type Mem struct {
	HasBase  bool
	Base     RegID
	HasIndex bool
	Index    RegID
	Scale    uint8 // 1, 2, 4, or 8
	Disp     int32
	Width    uint8 // 1, 2, 4, or 8 bytes
	Segment  Segment
}

// RegID names a general-purpose or segment register independent of its
// width, so that e.g. AL/AX/EAX all resolve through the same RegID when
// computing an effective address.
type RegID uint8

// RegID values for the registers this tracer ever needs to read for
// address computation or report in a register snapshot.
const (
	RegNone RegID = iota
	RegEAX
	RegECX
	RegEDX
	RegEBX
	RegESP
	RegEBP
	RegESI
	RegEDI
	RegEIP
)

// Operand is one explicit or implicit operand of a decoded instruction. At
// most one of Reg/Imm/Mem/Implicit is meaningful, selected by Kind.
type Operand struct {
	Kind     OperandKind
	Reg      RegID
	RegWidth uint8
	Imm      int64
	ImmWidth uint8
	Mem      Mem
	Implicit ImplicitKind
}

// Insn is the normalized decode of the bytes at one instruction pointer
// value: mnemonic, raw bytes, and operand list in architectural
// (decoder-reported) order with synthesized Implicit operands appended
// where the encoding does not spell them out.
type Insn struct {
	Mnemonic   Mnemonic
	Bytes      []byte
	Length     int
	Operands   []Operand
	DataSize   int // 16 or 32, from the 0x66 prefix (or lack of one)
	HasLock    bool
	HasRep     bool
	HasRepn    bool
}

// MemOperands returns the explicit Mem operands among insn.Operands, in
// order.
func (in Insn) MemOperands() []Mem {
	var mems []Mem
	for _, op := range in.Operands {
		if op.Kind == OperandMem {
			mems = append(mems, op.Mem)
		}
	}
	return mems
}

// HasImplicit reports whether insn carries a synthesized operand of the
// given kind.
func (in Insn) HasImplicit(kind ImplicitKind) bool {
	for _, op := range in.Operands {
		if op.Kind == OperandImplicit && op.Implicit == kind {
			return true
		}
	}
	return false
}
