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

// StepRecord is the immutable record produced for a single retired
// instruction: the register file before and after, the decoded
// instruction, and the ordered list of memory accesses it performed. A
// Regs pair and Insn are owned by the StepController for the duration of
// one step and handed to the Sink; no record references child memory
// after the step completes (accesses carry copies of the bytes involved).
type StepRecord struct {
	RegsPre  Regs
	RegsPost Regs
	Insn     Insn
	Accesses []MemoryAccess
}

// TerminusKind discriminates why a TraceStream ended.
type TerminusKind uint8

// TerminusKind values, one per error kind in spec.md §7 plus the two
// ordinary terminations.
const (
	TermNone TerminusKind = iota
	TermExit
	TermSignaled
	TermIllegalInstruction
	TermDecodeError
	TermBadRead
	TermBadWrite
	TermUnsupportedSyscall
	TermUnsupportedOperand
	TermLaunchError
	TermInterrupted
)

// Terminus is the final synthetic record closing a TraceStream. Exactly one
// of the *Value fields is meaningful, selected by Kind.
type Terminus struct {
	Kind TerminusKind

	ExitCode    int
	Signum      int
	Eip         uint32
	Addr        uint32
	SyscallNr   uint32
	Reason      string
}

// ExitStatus reproduces the shell-visible exit status described by
// spec.md §6: the child's own exit code for an exit (0 for a clean exit),
// 1 for a tracer error, and N+128 for termination by signal N. Usage
// errors (2) are reported by the CLI before a trace starts and never
// produce a Terminus.
func (t Terminus) ExitStatus() int {
	switch t.Kind {
	case TermExit:
		return t.ExitCode
	case TermSignaled:
		return 128 + t.Signum
	case TermNone:
		return 0
	default:
		return 1
	}
}
