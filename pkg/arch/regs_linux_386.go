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

//go:build linux && 386
// +build linux,386

package arch

import "golang.org/x/sys/unix"

// FromPtrace converts the kernel's struct user_regs_struct (as surfaced by
// PTRACE_GETREGS on an i386 tracer) into a Regs snapshot. See DESIGN.md's
// "Tracer word size" Open Question resolution for why this file is built
// only for GOARCH=386: the layout PTRACE_GETREGS returns is fixed by the
// tracer's own architecture, not the tracee's.
func FromPtrace(pr unix.PtraceRegs) Regs {
	return Regs{
		Eax: uint32(pr.Eax),
		Ebx: uint32(pr.Ebx),
		Ecx: uint32(pr.Ecx),
		Edx: uint32(pr.Edx),
		Esi: uint32(pr.Esi),
		Edi: uint32(pr.Edi),
		Ebp: uint32(pr.Ebp),
		Esp: uint32(pr.Esp),
		Eip: uint32(pr.Eip),
		Eflags: uint32(pr.Eflags),
		Cs: uint32(pr.Xcs),
		Ds: uint32(pr.Xds),
		Es: uint32(pr.Xes),
		Fs: uint32(pr.Xfs),
		Gs: uint32(pr.Xgs),
		Ss: uint32(pr.Xss),
	}
}

// ToPtrace converts a Regs snapshot back into the kernel's
// struct user_regs_struct, for PTRACE_SETREGS.
func ToPtrace(r Regs) unix.PtraceRegs {
	return unix.PtraceRegs{
		Eax: int32(r.Eax),
		Ebx: int32(r.Ebx),
		Ecx: int32(r.Ecx),
		Edx: int32(r.Edx),
		Esi: int32(r.Esi),
		Edi: int32(r.Edi),
		Ebp: int32(r.Ebp),
		Esp: int32(r.Esp),
		Eip: int32(r.Eip),
		Eflags: int32(r.Eflags),
		Xcs: int32(r.Cs),
		Xds: int32(r.Ds),
		Xes: int32(r.Es),
		Xfs: int32(r.Fs),
		Xgs: int32(r.Gs),
		Xss: int32(r.Ss),
	}
}
