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
	"bytes"
	"fmt"

	"github.com/trailofbits/mttn/pkg/arch"
)

// cStringReadStep bounds how many bytes ReadCString peeks at a time while
// scanning for a NUL terminator. A step is also cut at the next page
// boundary, so a short string near the end of a mapping is never read
// past its terminator into the unmapped page beyond it.
const cStringReadStep = 32

// pageSize is the i386 page size, used to keep ReadCString's steps from
// crossing a page boundary.
const pageSize = 4096

// ErrBadAddress is returned by ReadMemory/WriteMemory when PTRACE_PEEKDATA
// or PTRACE_POKEDATA fails, which on Linux almost always means the
// address is unmapped (EIO).
type ErrBadAddress struct {
	Addr uintptr
	Err  error
}

func (e *ErrBadAddress) Error() string {
	return fmt.Sprintf("bad address %#x: %v", e.Addr, e.Err)
}
func (e *ErrBadAddress) Unwrap() error { return e.Err }

// ReadMemory reads length bytes at addr using PTRACE_PEEKDATA, per
// spec.md §4.5: PEEKDATA only returns whole words, so a request that
// isn't 4-byte aligned or a whole number of words is satisfied by peeking
// the containing words and slicing out the requested range.
func (tc *Tracee) ReadMemory(addr uint32, length uint8) ([]byte, error) {
	if length == 0 {
		return nil, nil
	}
	first := uintptr(addr) &^ 3
	last := (uintptr(addr) + uintptr(length) - 1) &^ 3
	out := make([]byte, 0, last-first+4)
	for w := first; w <= last; w += 4 {
		word, err := tc.peekWord(w)
		if err != nil {
			return nil, &ErrBadAddress{Addr: w, Err: err}
		}
		var buf [4]byte
		hostEndian.PutUint32(buf[:], word)
		out = append(out, buf[:]...)
	}
	lo := uintptr(addr) - first
	return out[lo : lo+uintptr(length)], nil
}

// WriteMemory writes data back to addr. Any word only partially covered
// by data (the head or tail word of an unaligned or sub-word write) is
// read first so the untouched bytes of that word are preserved, per
// spec.md §4.5's read-modify-write fixup.
func (tc *Tracee) WriteMemory(addr uint32, data []byte) error {
	if len(data) == 0 {
		return nil
	}
	first := uintptr(addr) &^ 3
	last := (uintptr(addr) + uintptr(len(data)) - 1) &^ 3
	lo := uintptr(addr) - first

	full := make([]byte, last-first+4)
	for w := first; w <= last; w += 4 {
		word, err := tc.peekWord(w)
		if err != nil {
			return &ErrBadAddress{Addr: w, Err: err}
		}
		hostEndian.PutUint32(full[w-first:], word)
	}
	copy(full[lo:], data)

	for w := first; w <= last; w += 4 {
		word := hostEndian.Uint32(full[w-first:])
		if err := tc.pokeWord(w, word); err != nil {
			return &ErrBadAddress{Addr: w, Err: err}
		}
	}
	return nil
}

// ReadCString reads the NUL-terminated string at addr, stopping at the
// first NUL byte or after maxLen bytes, whichever comes first, and returns
// exactly the bytes read (including the NUL, if found). It satisfies
// arch.MemReader. Reading in small steps that never cross a page
// boundary, rather than all of maxLen up front, means a short string near
// the end of a mapping is never probed past the page holding its
// terminator, so a valid call like open("/short/path", ...) doesn't fault
// into an adjacent unmapped page the string never touches.
func (tc *Tracee) ReadCString(addr uint32, maxLen uint32) ([]byte, error) {
	var out []byte
	for uint32(len(out)) < maxLen {
		cur := addr + uint32(len(out))
		n := uint32(cStringReadStep)
		if remaining := maxLen - uint32(len(out)); n > remaining {
			n = remaining
		}
		if toPage := pageSize - cur%pageSize; n > toPage {
			n = toPage
		}
		chunk, err := tc.ReadMemory(cur, uint8(n))
		if err != nil {
			if len(out) == 0 {
				return nil, err
			}
			return out, nil
		}
		if i := bytes.IndexByte(chunk, 0); i >= 0 {
			return append(out, chunk[:i+1]...), nil
		}
		out = append(out, chunk...)
	}
	return out, nil
}

// ProbeAccess fills in Data for a single read MemoryAccess by reading at
// its Addr/Width, returning the populated access. A write access is
// returned unchanged; the step controller fills a write's Data by probing
// the same range as a read after the step has executed (see
// controller_linux.go).
func (tc *Tracee) ProbeAccess(a arch.MemoryAccess) (arch.MemoryAccess, error) {
	if a.Direction != arch.Read {
		return a, nil
	}
	data, err := tc.ReadMemory(a.Addr, a.Width)
	if err != nil {
		return a, err
	}
	a.Data = data
	return a, nil
}
