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

package ptrace

import (
	"runtime"

	"golang.org/x/sys/unix"

	"github.com/trailofbits/mttn/pkg/arch"
	"github.com/trailofbits/mttn/pkg/decoder"
	"github.com/trailofbits/mttn/pkg/operand"
	"github.com/trailofbits/mttn/pkg/syscallmodel"
)

// Sink receives completed StepRecords in the order steps retire.
type Sink interface {
	Emit(arch.StepRecord) error
	Close(arch.Terminus) error
}

// Options configures a StepController's run, mirroring the CLI flags
// described in spec.md §6.
type Options struct {
	Model                   *syscallmodel.Model
	IgnoreUnsupportedMemops bool
	MaxSteps                int64
}

// StepController drives one Tracee through the single-step loop described
// in spec.md §4.2. It owns the OS thread it runs on: the ptrace
// introspection channel requires every request against a tracee come from
// the thread that attached to it (spec.md §5), so Run locks the calling
// goroutine to its OS thread for its entire duration, the same
// precondition gVisor's ptrace platform documents on createStub/attach.
type StepController struct {
	tc   *Tracee
	opts Options
}

// NewStepController builds a controller for an already-launched or
// attached Tracee.
func NewStepController(tc *Tracee, opts Options) *StepController {
	return &StepController{tc: tc, opts: opts}
}

// Run drives the step loop until the tracee exits, is killed by a signal,
// or the trace terminates early, emitting one StepRecord per retired
// instruction to sink and exactly one Terminus at the end.
func (sc *StepController) Run(sink Sink) arch.Terminus {
	runtime.LockOSThread()
	defer runtime.UnlockOSThread()

	var steps int64
	for {
		if sc.opts.MaxSteps > 0 && steps >= sc.opts.MaxSteps {
			return sc.finish(sink, arch.Terminus{Kind: arch.TermInterrupted, Reason: "max-steps reached"})
		}

		term, rec, ok := sc.step()
		if !ok {
			return sc.finish(sink, term)
		}
		if err := sink.Emit(rec); err != nil {
			return sc.finish(sink, arch.Terminus{Kind: arch.TermLaunchError, Reason: err.Error()})
		}
		steps++
	}
}

func (sc *StepController) finish(sink Sink, term arch.Terminus) arch.Terminus {
	sink.Close(term)
	return term
}

// step executes one iteration of the 7-step loop. ok is false when the
// trace has ended; term is only meaningful then.
func (sc *StepController) step() (arch.Terminus, arch.StepRecord, bool) {
	// 1. Pre-step capture.
	regsPre, err := sc.tc.regs()
	if err != nil {
		return arch.Terminus{Kind: arch.TermBadRead, Reason: err.Error()}, arch.StepRecord{}, false
	}
	code, err := sc.tc.ReadMemory(regsPre.Eip, 15)
	if err != nil {
		return arch.Terminus{Kind: arch.TermIllegalInstruction, Eip: regsPre.Eip, Reason: err.Error()}, arch.StepRecord{}, false
	}

	// 2. Decode.
	insn, err := decoder.Decode(code, regsPre.Eip)
	if err != nil {
		if sc.opts.IgnoreUnsupportedMemops && isAllowListedDecodeFailure(code) {
			rec := arch.StepRecord{RegsPre: regsPre, RegsPost: regsPre}
			if sErr := sc.singleStepAndWait(); sErr != nil {
				return arch.Terminus{Kind: arch.TermInterrupted, Reason: sErr.Error()}, rec, false
			}
			return arch.Terminus{}, rec, true
		}
		return arch.Terminus{Kind: arch.TermDecodeError, Eip: regsPre.Eip, Reason: err.Error()}, arch.StepRecord{}, false
	}

	// 3. Resolve reads.
	res := operand.Resolve(insn, regsPre)
	var accesses []arch.MemoryAccess
	for _, a := range res.Reads {
		probed, err := sc.tc.ProbeAccess(a)
		if err != nil {
			if sc.opts.IgnoreUnsupportedMemops {
				continue
			}
			return arch.Terminus{Kind: arch.TermBadRead, Addr: a.Addr, Reason: err.Error()}, arch.StepRecord{}, false
		}
		accesses = append(accesses, probed)
	}

	// 4. Single-step, 5. Classify stop.
	status, sig, term, ok := sc.advance()
	if !ok {
		return term, arch.StepRecord{}, false
	}

	if status == stopSyscall {
		entryAccesses, syscallTerm, ok := sc.handleSyscallEntryExit(regsPre)
		if !ok {
			return syscallTerm, arch.StepRecord{}, false
		}
		accesses = append(accesses, entryAccesses...)
	} else if status == stopCloneFork {
		// Continue the step loop without advancing time for this
		// iteration; the instruction that produced the clone/fork stop
		// already single-stepped, so fold straight into post-capture.
	} else if status == stopSignal {
		if !sc.handleSignal(sig) {
			return arch.Terminus{Kind: arch.TermSignaled, Signum: int(sig)}, arch.StepRecord{}, false
		}
		return arch.Terminus{}, arch.StepRecord{}, true
	}

	// 6. Post-step capture.
	regsPost, err := sc.tc.regs()
	if err != nil {
		return arch.Terminus{Kind: arch.TermBadRead, Reason: err.Error()}, arch.StepRecord{}, false
	}
	for _, a := range res.Writes {
		probed, err := sc.tc.ProbeAccess(arch.MemoryAccess{Addr: a.Addr, Width: a.Width, Direction: arch.Read})
		if err != nil {
			if sc.opts.IgnoreUnsupportedMemops {
				continue
			}
			return arch.Terminus{Kind: arch.TermBadWrite, Addr: a.Addr, Reason: err.Error()}, arch.StepRecord{}, false
		}
		a.Data = probed.Data
		accesses = append(accesses, a)
	}

	// 7. Emit.
	return arch.Terminus{}, arch.StepRecord{
		RegsPre:  regsPre,
		RegsPost: regsPost,
		Insn:     insn,
		Accesses: accesses,
	}, true
}

type stopKind int

const (
	stopTrap stopKind = iota
	stopSyscall
	stopCloneFork
	stopSignal
	stopExit
)

// singleStepAndWait issues one PTRACE_SINGLESTEP and waits for the
// resulting stop, without classifying it. Used only by the
// ignore-unsupported-memops decode-failure path in step(), which still
// needs to make forward progress over the byte it couldn't decode.
func (sc *StepController) singleStepAndWait() error {
	if err := sc.tc.singleStep(0); err != nil {
		return err
	}
	_, err := sc.tc.wait()
	return err
}

// advance issues the single-step primitive and classifies the resulting
// stop per spec.md §4.2 step 5.
func (sc *StepController) advance() (stopKind, unix.Signal, arch.Terminus, bool) {
	if err := sc.tc.singleStep(0); err != nil {
		return stopTrap, 0, arch.Terminus{Kind: arch.TermInterrupted, Reason: err.Error()}, false
	}
	status, err := sc.tc.wait()
	if err != nil {
		return stopTrap, 0, arch.Terminus{Kind: arch.TermInterrupted, Reason: err.Error()}, false
	}

	switch {
	case status.Exited():
		return stopExit, 0, arch.Terminus{Kind: arch.TermExit, ExitCode: status.ExitStatus()}, false
	case status.Signaled():
		return stopTrap, 0, arch.Terminus{Kind: arch.TermSignaled, Signum: int(status.Signal())}, false
	case status.Stopped():
		sig := status.StopSignal()
		if sig == unix.SIGTRAP|0x80 {
			return stopSyscall, 0, arch.Terminus{}, true
		}
		if sig == unix.SIGTRAP && (status.TrapCause() == unix.PTRACE_EVENT_CLONE ||
			status.TrapCause() == unix.PTRACE_EVENT_FORK ||
			status.TrapCause() == unix.PTRACE_EVENT_VFORK) {
			sc.releaseNewChild()
			return stopCloneFork, 0, arch.Terminus{}, true
		}
		if sig == unix.SIGTRAP {
			return stopTrap, 0, arch.Terminus{}, true
		}
		return stopSignal, sig, arch.Terminus{}, true
	default:
		return stopTrap, 0, arch.Terminus{}, true
	}
}

// releaseNewChild detaches a just-created clone/fork child. mttn traces a
// single thread of execution, per spec.md §4.2's "do not follow" rule.
func (sc *StepController) releaseNewChild() {
	pid, err := unix.PtraceGetEventMsg(sc.tc.tid)
	if err != nil {
		return
	}
	child := &thread{tid: int(pid)}
	child.wait()
	child.cont(0)
}

// fatalSignals are delivered-by-default signals that terminate a process
// lacking a handler for them; others (SIGCHLD, SIGWINCH, stop/continue
// signals) are routine and should simply be re-injected.
var fatalSignals = map[unix.Signal]bool{
	unix.SIGSEGV: true, unix.SIGBUS: true, unix.SIGILL: true,
	unix.SIGFPE: true, unix.SIGABRT: true, unix.SIGQUIT: true,
}

// handleSignal implements the signal-delivery-stop branch of spec.md
// §4.2 step 5. A signal in fatalSignals ends the trace (returns false, and
// step() reports a Signaled terminus), whether or not the child has a
// handler for it or blocks it. Any other signal is re-injected at once
// with one PTRACE_SINGLESTEP and handleSignal returns true to continue the
// step loop; step() then returns an empty StepRecord (zero registers, no
// instruction, no accesses), which Run emits like any other record. The
// memory the kernel writes for the signal frame is not recorded.
func (sc *StepController) handleSignal(sig unix.Signal) bool {
	if fatalSignals[sig] {
		return false
	}
	sc.tc.singleStep(sig)
	sc.tc.wait()
	return true
}

func (sc *StepController) handleSyscallEntryExit(regsEntry arch.Regs) ([]arch.MemoryAccess, arch.Terminus, bool) {
	nr := regsEntry.Eax
	call, found := sc.opts.Model.Lookup(nr)
	if !found {
		if sc.opts.IgnoreUnsupportedMemops {
			sc.advanceToSyscallExit()
			return nil, arch.Terminus{}, true
		}
		return nil, arch.Terminus{Kind: arch.TermUnsupportedSyscall, SyscallNr: nr}, false
	}

	args := arch.ArgsFromRegs(regsEntry)
	var accesses []arch.MemoryAccess
	for _, a := range call.OnEntry(args, sc.tc.ReadCString) {
		probed, err := sc.tc.ProbeAccess(a)
		if err != nil {
			if !sc.opts.IgnoreUnsupportedMemops {
				return nil, arch.Terminus{Kind: arch.TermBadRead, Addr: a.Addr, Reason: err.Error()}, false
			}
			continue
		}
		accesses = append(accesses, probed)
	}

	status, term, ok := sc.advanceToSyscallExit()
	if !ok {
		return accesses, term, false
	}
	_ = status

	regsExit, err := sc.tc.regs()
	if err != nil {
		return accesses, arch.Terminus{Kind: arch.TermBadRead, Reason: err.Error()}, false
	}
	ret := int32(regsExit.Eax)
	for _, a := range call.OnExit(args, ret) {
		probed, err := sc.tc.ProbeAccess(arch.MemoryAccess{Addr: a.Addr, Width: a.Width, Direction: arch.Read})
		if err != nil {
			if sc.opts.IgnoreUnsupportedMemops {
				continue
			}
			return accesses, arch.Terminus{Kind: arch.TermBadWrite, Addr: a.Addr, Reason: err.Error()}, false
		}
		a.Data = probed.Data
		accesses = append(accesses, a)
	}
	return accesses, arch.Terminus{}, true
}

// advanceToSyscallExit issues the second single-step spec.md §4.2 step 5
// calls for on a syscall-entry stop, awaiting the matching syscall-exit
// stop.
func (sc *StepController) advanceToSyscallExit() (stopKind, arch.Terminus, bool) {
	if err := sc.tc.singleStep(0); err != nil {
		return stopTrap, arch.Terminus{Kind: arch.TermInterrupted, Reason: err.Error()}, false
	}
	status, err := sc.tc.wait()
	if err != nil {
		return stopTrap, arch.Terminus{Kind: arch.TermInterrupted, Reason: err.Error()}, false
	}
	if status.Exited() {
		return stopExit, arch.Terminus{Kind: arch.TermExit, ExitCode: status.ExitStatus()}, false
	}
	return stopSyscall, arch.Terminus{}, true
}

// isAllowListedDecodeFailure reports whether the undecodable byte at the
// front of code belongs to an instruction class spec.md §4.2 permits
// skipping over under --ignore-unsupported-memops. The allow-list is any
// instruction whose first byte is the 0x0F two-byte opcode escape (where
// the MMX/SSE and other extension opcodes live); a decode failure on any
// other leading byte, x87 escapes (0xD8-0xDF) included, is not skipped.
func isAllowListedDecodeFailure(code []byte) bool {
	return len(code) >= 1 && code[0] == 0x0f
}
