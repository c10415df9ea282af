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
	"encoding/binary"
	"fmt"
	"os"
	"os/exec"
	"runtime"

	"golang.org/x/sys/unix"
)

var hostEndian = binary.LittleEndian

// ADDR_NO_RANDOMIZE, from linux/personality.h. x/sys/unix doesn't export
// this constant.
const _addrNoRandomize = 0x0040000

// Launch starts argv[0] under ptrace, stopped at its first instruction
// (the dynamic linker's entry point, or the binary's own entry for a
// static binary), the way runsc/sandbox's use of exec.Command plus
// SysProcAttr.Ptrace starts a traced child (runsc/sandbox/sandbox.go's
// exec.Command + Pdeathsig idiom, adapted here to also set Ptrace so the
// exec stop itself is mttn's initial attach point rather than a
// separately-orchestrated PTRACE_ATTACH).
func Launch(argv []string, env []string) (*Tracee, error) {
	if len(argv) == 0 {
		return nil, fmt.Errorf("launch: empty argv")
	}
	// The thread that starts a Ptrace child is its tracer; every later
	// ptrace request must come from it, so the goroutine stays on it.
	runtime.LockOSThread()

	// syscall.SysProcAttr has no field for personality(2): there is no
	// os/exec hook that runs in the child between fork and execve. A
	// personality set on the calling process instead, here, is inherited
	// across fork unconditionally and survives execve for a non-setuid
	// target, the same mechanism setarch(8) relies on to run a command
	// with ASLR disabled. ADDR_NO_RANDOMIZE keeps a trace reproducible
	// across runs, per spec.md's determinism goal for replay-diffing
	// traces; the cost is that mttn's own process keeps that personality
	// for the rest of its run, which is harmless for a short-lived CLI.
	if _, _, errno := unix.Syscall(unix.SYS_PERSONALITY, uintptr(_addrNoRandomize), 0, 0); errno != 0 {
		return nil, fmt.Errorf("launch: disabling ASLR: %w", errno)
	}

	cmd := exec.Command(argv[0], argv[1:]...)
	cmd.Env = env
	cmd.Stdin, cmd.Stdout, cmd.Stderr = os.Stdin, os.Stdout, os.Stderr
	cmd.SysProcAttr = &unix.SysProcAttr{
		Ptrace:    true,
		Pdeathsig: unix.SIGKILL,
	}
	if err := cmd.Start(); err != nil {
		return nil, fmt.Errorf("launch: %w", err)
	}
	t := &thread{tid: cmd.Process.Pid}
	// execve's PTRACE_TRACEME stop arrives as the first wait after Start.
	if _, err := t.wait(); err != nil {
		return nil, fmt.Errorf("launch: waiting for initial stop: %w", err)
	}
	if err := t.setOptions(); err != nil {
		return nil, fmt.Errorf("launch: set options: %w", err)
	}
	return &Tracee{thread: t, cmd: cmd}, nil
}

// Attach attaches to an already-running process by pid, per spec.md §6's
// -a/--attach flag.
func Attach(pid int) (*Tracee, error) {
	runtime.LockOSThread()
	if err := unix.PtraceAttach(pid); err != nil {
		return nil, fmt.Errorf("attach(%d): %w", pid, err)
	}
	t := &thread{tid: pid}
	if _, err := t.wait(); err != nil {
		return nil, fmt.Errorf("attach(%d): waiting for stop: %w", pid, err)
	}
	if err := t.setOptions(); err != nil {
		return nil, fmt.Errorf("attach(%d): set options: %w", pid, err)
	}
	return &Tracee{thread: t, attached: true}, nil
}

// Tracee is a traced process and, if mttn launched it, the exec.Cmd used
// to start it.
type Tracee struct {
	*thread
	cmd      *exec.Cmd
	attached bool
}

// Detach stops tracing. A launched process is left running; an attached
// one is returned to its pre-attach state.
func (tc *Tracee) Detach() error {
	return tc.thread.detach()
}
