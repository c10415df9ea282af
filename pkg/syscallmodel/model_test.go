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

package syscallmodel

import (
	"errors"
	"testing"

	"github.com/trailofbits/mttn/pkg/arch"
)

var errUnmapped = errors.New("bad address")

func TestLinuxWriteEntryReadsBuffer(t *testing.T) {
	m := NewLinux386()
	sc, ok := m.Lookup(sysWrite)
	if !ok {
		t.Fatal("write not found in linux model")
	}
	args := arch.SyscallArguments{{Value: 1}, {Value: 0x8048000}, {Value: 13}}
	accesses := sc.OnEntry(args, nil)
	var total uint32
	for _, a := range accesses {
		if a.Direction != arch.Read {
			t.Fatalf("write entry: want all reads, got %v", a.Direction)
		}
		total += uint32(a.Width)
	}
	if total != 13 {
		t.Fatalf("write entry: want 13 bytes covered, got %d", total)
	}
}

func TestLinuxReadExitClipsToReturnValue(t *testing.T) {
	m := NewLinux386()
	sc, ok := m.Lookup(sysRead)
	if !ok {
		t.Fatal("read not found in linux model")
	}
	args := arch.SyscallArguments{{Value: 0}, {Value: 0x9000000}, {Value: 4096}}
	accesses := sc.OnExit(args, 10)
	var total uint32
	for _, a := range accesses {
		if a.Direction != arch.Write {
			t.Fatalf("read exit: want all writes, got %v", a.Direction)
		}
		total += uint32(a.Width)
	}
	if total != 10 {
		t.Fatalf("read exit: want 10 bytes written, got %d", total)
	}
}

func TestLinuxReadExitNegativeReturnIsNoAccess(t *testing.T) {
	m := NewLinux386()
	sc, _ := m.Lookup(sysRead)
	args := arch.SyscallArguments{{Value: 0}, {Value: 0x9000000}, {Value: 4096}}
	accesses := sc.OnExit(args, -14) // -EFAULT
	if len(accesses) != 0 {
		t.Fatalf("read exit on error: want 0 accesses, got %d", len(accesses))
	}
}

func TestLinuxUnknownSyscallNotFound(t *testing.T) {
	m := NewLinux386()
	if _, ok := m.Lookup(9999); ok {
		t.Fatal("want syscall 9999 absent from linux model")
	}
}

func TestChunkedAccessesAreAllPowerOfTwoAndBounded(t *testing.T) {
	m := NewLinux386()
	sc, _ := m.Lookup(sysWrite)
	args := arch.SyscallArguments{{Value: 1}, {Value: 0x8048003}, {Value: 11}}
	for _, a := range sc.OnEntry(args, nil) {
		switch a.Width {
		case 1, 2, 4, 8:
		default:
			t.Fatalf("chunked access has non-power-of-two width %d", a.Width)
		}
	}
}

func TestDecreeTransmitEntryAndExit(t *testing.T) {
	m := NewDecree()
	sc, ok := m.Lookup(sysTransmit)
	if !ok {
		t.Fatal("transmit not found in decree model")
	}
	args := arch.SyscallArguments{{Value: 1}, {Value: 0x4347c000}, {Value: 4}, {Value: 0x4347d000}}
	entry := sc.OnEntry(args, nil)
	if len(entry) == 0 {
		t.Fatal("transmit entry: want reads of the tx buffer")
	}
	exit := sc.OnExit(args, 0)
	if len(exit) != 1 || exit[0].Addr != 0x4347d000 || exit[0].Direction != arch.Write {
		t.Fatalf("transmit exit: want one write to tx_bytes out-param, got %+v", exit)
	}
}

func TestLinuxOpenEntryReadsOnlyUpToNUL(t *testing.T) {
	m := NewLinux386()
	sc, ok := m.Lookup(sysOpen)
	if !ok {
		t.Fatal("open not found in linux model")
	}
	path := "/lib/libc.so\x00"
	peek := func(addr uint32, maxLen uint32) ([]byte, error) {
		if addr != 0x8048100 {
			t.Fatalf("peek at unexpected addr %#x", addr)
		}
		return []byte(path), nil
	}
	args := arch.SyscallArguments{{Value: 0x8048100}}
	var total uint32
	for _, a := range sc.OnEntry(args, peek) {
		if a.Direction != arch.Read {
			t.Fatalf("open entry: want all reads, got %v", a.Direction)
		}
		total += uint32(a.Width)
	}
	if total != uint32(len(path)) {
		t.Fatalf("open entry: want %d bytes covered (through the NUL), got %d", len(path), total)
	}
}

func TestLinuxOpenEntryNoAccessOnBadAddress(t *testing.T) {
	m := NewLinux386()
	sc, _ := m.Lookup(sysOpen)
	peek := func(uint32, uint32) ([]byte, error) { return nil, errUnmapped }
	args := arch.SyscallArguments{{Value: 0xdeadbeef}}
	if accesses := sc.OnEntry(args, peek); len(accesses) != 0 {
		t.Fatalf("open entry on unreadable pointer: want 0 accesses, got %d", len(accesses))
	}
}

func TestDecreeRandomExitWritesBufferAndCount(t *testing.T) {
	m := NewDecree()
	sc, _ := m.Lookup(sysRandom)
	args := arch.SyscallArguments{{Value: 0x4347c000}, {Value: 16}, {Value: 0x4347d000}}
	exit := sc.OnExit(args, 0)
	var sawCountWrite bool
	for _, a := range exit {
		if a.Addr == 0x4347d000 {
			sawCountWrite = true
		}
	}
	if !sawCountWrite {
		t.Fatalf("random exit: want a write to the rnd_bytes out-param, got %+v", exit)
	}
}
