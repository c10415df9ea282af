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

// Package ptrace drives a single traced process through PTRACE_SINGLESTEP,
// grounded on the attach/wait dance in gVisor's sentry ptrace platform
// (pkg/sentry/platform/ptrace/subprocess_linux.go): a tracer waits for the
// tracee to report SIGSTOP before touching its registers, the way that
// package's forkStub/createStub wait for the stub's initial stop before
// calling t.attach()/t.grabInitRegs(). mttn traces a single process rather
// than pooling address-space stubs, so the pool and seccomp-filter
// machinery there has no analog here; only the wait/attach/regs shape
// survives.
package ptrace

import (
	"fmt"

	"golang.org/x/sys/unix"

	"github.com/trailofbits/mttn/pkg/arch"
)

// thread is one traced process. mttn only ever tracks the initial thread
// of a traced program; clone/fork children are reported and released
// rather than followed, per spec.md §4.2.
type thread struct {
	tid int
}

// wait blocks until tid reports a ptrace-stop or exits, returning the raw
// wait status for the caller to classify.
func (t *thread) wait() (unix.WaitStatus, error) {
	var status unix.WaitStatus
	for {
		_, err := unix.Wait4(t.tid, &status, 0, nil)
		if err == unix.EINTR {
			continue
		}
		if err != nil {
			return status, fmt.Errorf("wait4(%d): %w", t.tid, err)
		}
		return status, nil
	}
}

// setOptions configures the options mttn's step loop depends on:
// TRACESYSGOOD to disambiguate syscall-stops from other SIGTRAPs,
// TRACECLONE/FORK/VFORK so new children stop instead of running free
// (mttn immediately releases them, see controller_linux.go), and EXITKILL so an
// aborted trace doesn't leave an orphaned tracee running.
func (t *thread) setOptions() error {
	opts := unix.PTRACE_O_TRACESYSGOOD |
		unix.PTRACE_O_TRACECLONE |
		unix.PTRACE_O_TRACEFORK |
		unix.PTRACE_O_TRACEVFORK |
		unix.PTRACE_O_EXITKILL
	return unix.PtraceSetOptions(t.tid, opts)
}

// regs reads the tracee's current register file.
func (t *thread) regs() (arch.Regs, error) {
	var pr unix.PtraceRegs
	if err := unix.PtraceGetRegs(t.tid, &pr); err != nil {
		return arch.Regs{}, fmt.Errorf("ptrace getregs(%d): %w", t.tid, err)
	}
	return arch.FromPtrace(pr), nil
}

// setRegs writes a register file back to the tracee. The step loop never
// calls it; the primitive is kept symmetric with regs() for callers that
// need to restore a saved state.
func (t *thread) setRegs(r arch.Regs) error {
	pr := arch.ToPtrace(r)
	if err := unix.PtraceSetRegs(t.tid, &pr); err != nil {
		return fmt.Errorf("ptrace setregs(%d): %w", t.tid, err)
	}
	return nil
}

// singleStep resumes the tracee for exactly one instruction, delivering
// sig (0 for none) as it resumes. unix.PtraceSingleStep takes no signal
// argument, so this issues PTRACE_SINGLESTEP directly the way
// unix.PtraceCont issues PTRACE_CONT with a signal in its data word.
func (t *thread) singleStep(sig unix.Signal) error {
	_, _, errno := unix.Syscall6(unix.SYS_PTRACE, uintptr(unix.PTRACE_SINGLESTEP), uintptr(t.tid), 0, uintptr(sig), 0, 0)
	if errno != 0 {
		return fmt.Errorf("ptrace singlestep(%d): %w", t.tid, errno)
	}
	return nil
}

// cont resumes the tracee without single-stepping, used only to release a
// clone/fork child mttn has decided not to trace.
func (t *thread) cont(sig unix.Signal) error {
	if err := unix.PtraceCont(t.tid, int(sig)); err != nil {
		return fmt.Errorf("ptrace cont(%d): %w", t.tid, err)
	}
	return nil
}

// detach releases the tracee, letting it run free of mttn.
func (t *thread) detach() error {
	return unix.PtraceDetach(t.tid)
}

// peekWord reads one machine word (4 bytes on i386) at addr.
func (t *thread) peekWord(addr uintptr) (uint32, error) {
	var buf [4]byte
	n, err := unix.PtracePeekData(t.tid, addr, buf[:])
	if err != nil {
		return 0, err
	}
	if n != len(buf) {
		return 0, fmt.Errorf("short peek at %#x: got %d bytes", addr, n)
	}
	return hostEndian.Uint32(buf[:]), nil
}

// pokeWord writes one machine word at addr.
func (t *thread) pokeWord(addr uintptr, word uint32) error {
	var buf [4]byte
	hostEndian.PutUint32(buf[:], word)
	n, err := unix.PtracePokeData(t.tid, addr, buf[:])
	if err != nil {
		return err
	}
	if n != len(buf) {
		return fmt.Errorf("short poke at %#x: wrote %d bytes", addr, n)
	}
	return nil
}
