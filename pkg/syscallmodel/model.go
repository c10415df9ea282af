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

// Package syscallmodel maps a syscall number to the user-memory regions
// it reads on entry and writes on exit, per spec.md §4.6. Modeled as a
// table of structs rather than a class hierarchy, following the same
// "prefer tables" design note used for pkg/operand, and the shape of
// gVisor's own syscall table (pkg/sentry/syscalls/syscalls.go's
// kernel.Syscall{Name, Fn, ...} entries, adapted here to two
// access-synthesizing functions per entry instead of one syscall
// implementation function, since mttn classifies access rather than
// emulating the call).
package syscallmodel

import "github.com/trailofbits/mttn/pkg/arch"

// OnEntry synthesizes the user->kernel reads a syscall performs given its
// argument registers, observed at syscall-entry (before the kernel acts).
// peek lets an entry resolve arguments whose length isn't in the
// registers, such as a NUL-terminated path; most entries ignore it.
type OnEntry func(args arch.SyscallArguments, peek arch.MemReader) []arch.MemoryAccess

// OnExit synthesizes the kernel->user writes a syscall performs, given its
// entry-time arguments and its return value (eax at syscall-exit).
type OnExit func(args arch.SyscallArguments, ret int32) []arch.MemoryAccess

// Syscall is one entry in a Model's table.
type Syscall struct {
	Name    string
	OnEntry OnEntry
	OnExit  OnExit
}

// Model is a mapping from syscall number to its entry/exit access
// synthesizers, selected by the --syscall-model flag (spec.md §6).
type Model struct {
	Name  string
	table map[uint32]Syscall
}

// Lookup returns the table entry for nr and whether it was found. A
// syscall number outside the configured model should terminate the trace
// with UnsupportedSyscall(nr) per spec.md §7, unless
// --ignore-unsupported-memops is set.
func (m *Model) Lookup(nr uint32) (Syscall, bool) {
	s, ok := m.table[nr]
	return s, ok
}

// readRegion is a convenience constructor for the user->kernel reads
// synthesized from a (pointer, length) argument pair, decomposed into
// the power-of-two-width accesses MemoryAccess requires.
func readRegion(ptr uint32, length uint32) []arch.MemoryAccess {
	if length == 0 {
		return nil
	}
	return arch.ChunkAccesses(ptr, length, arch.Read)
}

// writeRegion is the kernel->user analog, clipping to the syscall's actual
// return value the way spec.md §4.6 describes for read(2):
// "a write of [buf, actual_len) where actual_len is the syscall return
// value clipped to len."
func writeRegion(ptr uint32, requested uint32, ret int32) []arch.MemoryAccess {
	if ret <= 0 {
		return nil
	}
	actual := uint32(ret)
	if actual > requested {
		actual = requested
	}
	if actual == 0 {
		return nil
	}
	return arch.ChunkAccesses(ptr, actual, arch.Write)
}
