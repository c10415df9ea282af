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

// Package decoder turns raw bytes at an instruction pointer into the
// normalized arch.Insn IR. It wraps golang.org/x/arch/x86/x86asm, a mature
// third-party x86 decoder, rather than reimplementing instruction tables:
// decode is a capability (decode(bytes, eip) -> Insn), not a base class, so
// swapping the underlying library only touches this file.
package decoder

import (
	"fmt"

	"golang.org/x/arch/x86/x86asm"

	"github.com/trailofbits/mttn/pkg/arch"
)

// Mode is the processor mode this tracer decodes for. spec.md §6 only
// accepts -m/--mode 32.
const Mode = 32

// Error wraps a decode failure with the instruction pointer it occurred
// at, matching spec.md §7's DecodeError(eip) kind.
type Error struct {
	Eip uint32
	Err error
}

func (e *Error) Error() string {
	return fmt.Sprintf("decode error at eip=%#x: %v", e.Eip, e.Err)
}

func (e *Error) Unwrap() error { return e.Err }

// Decode normalizes the leading bytes of buf (up to 15, the longest
// possible x86 instruction) at address eip into an arch.Insn. On failure
// it returns *Error.
func Decode(buf []byte, eip uint32) (arch.Insn, error) {
	inst, err := x86asm.Decode(buf, Mode)
	if err != nil {
		return arch.Insn{}, &Error{Eip: eip, Err: err}
	}
	if inst.Len <= 0 || inst.Len > len(buf) {
		return arch.Insn{}, &Error{Eip: eip, Err: fmt.Errorf("implausible instruction length %d", inst.Len)}
	}

	in := arch.Insn{
		Mnemonic: arch.Mnemonic(inst.Op.String()),
		Bytes:    append([]byte(nil), buf[:inst.Len]...),
		Length:   inst.Len,
		DataSize: inst.DataSize,
	}
	for _, p := range inst.Prefix {
		switch p & 0xFF {
		case x86asm.PrefixLOCK & 0xFF:
			in.HasLock = true
		case x86asm.PrefixREP & 0xFF:
			in.HasRep = true
		case x86asm.PrefixREPN & 0xFF:
			in.HasRepn = true
		}
	}

	for _, a := range inst.Args {
		if a == nil {
			continue
		}
		op, ok := convertArg(a, inst.MemBytes)
		if !ok {
			continue
		}
		in.Operands = append(in.Operands, op)
	}

	in.Operands = append(in.Operands, implicitOperands(in.Mnemonic)...)

	return in, nil
}

// convertArg converts one x86asm.Arg into the local Operand IR. memBytes is
// inst.MemBytes, the width x86asm computed for the instruction's (single)
// explicit memory operand.
func convertArg(a x86asm.Arg, memBytes int) (arch.Operand, bool) {
	switch v := a.(type) {
	case x86asm.Reg:
		id, width := regInfo(v)
		if id == arch.RegNone {
			// Segment/FPU/XMM/control/debug registers don't participate
			// in effective-address computation or the GP register file
			// this tracer snapshots; record nothing rather than a
			// meaningless zero value.
			return arch.Operand{}, false
		}
		return arch.Operand{Kind: arch.OperandReg, Reg: id, RegWidth: width}, true

	case x86asm.Imm:
		return arch.Operand{Kind: arch.OperandImm, Imm: int64(v), ImmWidth: immWidth(v)}, true

	case x86asm.Mem:
		base, hasBase := regID(v.Base)
		index, hasIndex := regID(v.Index)
		width := memBytes
		if width <= 0 || width > 8 {
			width = 4
		}
		return arch.Operand{
			Kind: arch.OperandMem,
			Mem: arch.Mem{
				HasBase:  hasBase,
				Base:     base,
				HasIndex: hasIndex,
				Index:    index,
				Scale:    v.Scale,
				Disp:     int32(v.Disp),
				Width:    uint8(width),
				Segment:  segmentOf(v.Segment),
			},
		}, true

	case x86asm.Rel:
		// Relative branch targets are resolved by the CPU itself; they
		// never address memory the tracer must read or write.
		return arch.Operand{}, false

	default:
		return arch.Operand{}, false
	}
}

// regID maps an x86asm.Reg used inside a Mem (base or index, which are
// always general-purpose on 32-bit x86) to the local RegID. The zero Reg
// value means "absent".
func regID(r x86asm.Reg) (arch.RegID, bool) {
	if r == 0 {
		return arch.RegNone, false
	}
	id, _ := regInfo(r)
	return id, id != arch.RegNone
}

// regInfo maps a general-purpose x86asm.Reg of any width to the RegID of
// its containing 32-bit register plus the width (in bytes) the reference
// itself was made at.
func regInfo(r x86asm.Reg) (arch.RegID, uint8) {
	switch r {
	case x86asm.AL, x86asm.AX, x86asm.EAX:
		return arch.RegEAX, widthOf(r)
	case x86asm.CL, x86asm.CX, x86asm.ECX:
		return arch.RegECX, widthOf(r)
	case x86asm.DL, x86asm.DX, x86asm.EDX:
		return arch.RegEDX, widthOf(r)
	case x86asm.BL, x86asm.BX, x86asm.EBX:
		return arch.RegEBX, widthOf(r)
	case x86asm.SPB, x86asm.SP, x86asm.ESP:
		return arch.RegESP, widthOf(r)
	case x86asm.BPB, x86asm.BP, x86asm.EBP:
		return arch.RegEBP, widthOf(r)
	case x86asm.SIB, x86asm.SI, x86asm.ESI:
		return arch.RegESI, widthOf(r)
	case x86asm.DIB, x86asm.DI, x86asm.EDI:
		return arch.RegEDI, widthOf(r)
	case x86asm.EIP:
		return arch.RegEIP, 4
	default:
		return arch.RegNone, 0
	}
}

func widthOf(r x86asm.Reg) uint8 {
	switch {
	case r >= x86asm.AL && r <= x86asm.R15B:
		return 1
	case r >= x86asm.AX && r <= x86asm.R15W:
		return 2
	case r >= x86asm.EAX && r <= x86asm.R15L:
		return 4
	default:
		return 4
	}
}

func immWidth(v x86asm.Imm) uint8 {
	switch {
	case v >= -128 && v <= 127:
		return 1
	case v >= -32768 && v <= 32767:
		return 2
	default:
		return 4
	}
}

func segmentOf(r x86asm.Reg) arch.Segment {
	switch r {
	case x86asm.CS:
		return arch.SegCS
	case x86asm.DS:
		return arch.SegDS
	case x86asm.ES:
		return arch.SegES
	case x86asm.FS:
		return arch.SegFS
	case x86asm.GS:
		return arch.SegGS
	case x86asm.SS:
		return arch.SegSS
	default:
		return arch.SegNone
	}
}
