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

// Package arch holds the data model shared by every stage of the trace
// pipeline: the register file, the normalized instruction IR, memory
// accesses, and the assembled per-step record.
package arch

import "fmt"

// DFlag is the direction flag bit within Eflags; string operations step
// esi/edi forward when it is clear and backward when it is set.
const DFlag uint32 = 1 << 10

// Regs is a snapshot of the 32-bit general-purpose register file, captured
// before and after a step.
type Regs struct {
	Eax, Ebx, Ecx, Edx uint32
	Esi, Edi, Ebp, Esp uint32
	Eip, Eflags        uint32
	Cs, Ds, Es, Fs, Gs, Ss uint32
}

// DirectionStep returns +1 if DF is clear and -1 if DF is set, the amount a
// string-op pointer register moves per element (before multiplying by
// operand width).
func (r Regs) DirectionStep() int32 {
	if r.Eflags&DFlag != 0 {
		return -1
	}
	return 1
}

// String implements fmt.Stringer for diagnostics and the text sink.
func (r Regs) String() string {
	return fmt.Sprintf(
		"eax=%08x ebx=%08x ecx=%08x edx=%08x esi=%08x edi=%08x ebp=%08x esp=%08x eip=%08x eflags=%08x",
		r.Eax, r.Ebx, r.Ecx, r.Edx, r.Esi, r.Edi, r.Ebp, r.Esp, r.Eip, r.Eflags)
}

// SyscallArgument is a single syscall argument taken from a general-purpose
// register. The accessor methods are named after the C type they convert
// to, mirroring how syscall arguments are documented, so that call sites
// read like the syscall's own man page signature instead of bare casts.
type SyscallArgument struct {
	Value uint32
}

// Pointer returns the argument as a 32-bit user address.
func (a SyscallArgument) Pointer() uint32 { return a.Value }

// Int returns the argument as a signed 32-bit integer.
func (a SyscallArgument) Int() int32 { return int32(a.Value) }

// Uint returns the argument as an unsigned 32-bit integer.
func (a SyscallArgument) Uint() uint32 { return a.Value }

// SizeT returns the argument as a size_t.
func (a SyscallArgument) SizeT() uint32 { return a.Value }

// SyscallArguments is the fixed set of arguments passed to a syscall via
// ebx, ecx, edx, esi, edi, ebp under the classic i386 int $0x80 ABI.
type SyscallArguments [6]SyscallArgument

// ArgsFromRegs extracts the int $0x80 argument registers in ABI order.
func ArgsFromRegs(r Regs) SyscallArguments {
	return SyscallArguments{
		{r.Ebx}, {r.Ecx}, {r.Edx}, {r.Esi}, {r.Edi}, {r.Ebp},
	}
}

// MemReader lets a SyscallModel peek at tracee memory while deciding which
// MemoryAccesses a syscall entry performs, for arguments whose length
// (a NUL-terminated path, say) isn't known from the registers alone. A
// peek is not itself recorded as an access; only what OnEntry/OnExit
// return is.
type MemReader func(addr uint32, maxLen uint32) ([]byte, error)
