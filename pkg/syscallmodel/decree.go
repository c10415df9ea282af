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

import "github.com/trailofbits/mttn/pkg/arch"

// DECREE (CGC) syscall numbers, dispatched the same way as Linux int
// $0x80 but over a fixed 7-call ABI. Argument order matches the CGC
// "cgc_syscall" convention: ebx, ecx, edx, esi, edi used positionally per
// call, documented at each entry below.
const (
	sysTerminate  = 1
	sysTransmit   = 2
	sysReceive    = 3
	sysFdwait     = 4
	sysAllocate   = 5
	sysDeallocate = 6
	sysRandom     = 7
)

const sizeofFdwaitTimeout = 8 // struct timeval { int32 sec; int32 usec; }

// NewDecree returns the syscall model for the DECREE/CGC 7-syscall ABI
// used by the Tiny86/SIEVE test corpus (spec.md §4.6, "decree" model).
// transmit, receive, fdwait, allocate and random write a result (a byte
// count, a ready count, or an address) back through an out-param pointer
// in addition to returning 0/errno in eax; terminate and deallocate write
// nothing. The Linux model has no such out-params to model, since its
// result travels in eax itself.
func NewDecree() *Model {
	return &Model{
		Name: "decree",
		table: map[uint32]Syscall{
			sysTerminate: {
				Name:    "terminate",
				OnEntry: func(arch.SyscallArguments, arch.MemReader) []arch.MemoryAccess { return nil },
				OnExit:  func(arch.SyscallArguments, int32) []arch.MemoryAccess { return nil },
			},
			sysTransmit: {
				// transmit(fd, buf, count, &tx_bytes)
				Name: "transmit",
				OnEntry: func(a arch.SyscallArguments, _ arch.MemReader) []arch.MemoryAccess {
					return readRegion(a[1].Value, a[2].Value)
				},
				OnExit: func(a arch.SyscallArguments, ret int32) []arch.MemoryAccess {
					if ret != 0 || a[3].Value == 0 {
						return nil
					}
					return arch.ChunkAccesses(a[3].Value, 4, arch.Write)
				},
			},
			sysReceive: {
				// receive(fd, buf, count, &rx_bytes)
				Name:    "receive",
				OnEntry: func(arch.SyscallArguments, arch.MemReader) []arch.MemoryAccess { return nil },
				OnExit: func(a arch.SyscallArguments, ret int32) []arch.MemoryAccess {
					if ret != 0 {
						return nil
					}
					var out []arch.MemoryAccess
					out = append(out, writeRegion(a[1].Value, a[2].Value, int32(a[2].Value))...)
					if a[3].Value != 0 {
						out = append(out, arch.ChunkAccesses(a[3].Value, 4, arch.Write)...)
					}
					return out
				},
			},
			sysFdwait: {
				// fdwait(nfds, readfds, writefds, timeout, &readyfds)
				Name: "fdwait",
				OnEntry: func(a arch.SyscallArguments, _ arch.MemReader) []arch.MemoryAccess {
					var in []arch.MemoryAccess
					if a[1].Value != 0 {
						in = append(in, arch.ChunkAccesses(a[1].Value, 4, arch.Read)...)
					}
					if a[2].Value != 0 {
						in = append(in, arch.ChunkAccesses(a[2].Value, 4, arch.Read)...)
					}
					if a[3].Value != 0 {
						in = append(in, arch.ChunkAccesses(a[3].Value, sizeofFdwaitTimeout, arch.Read)...)
					}
					return in
				},
				OnExit: func(a arch.SyscallArguments, ret int32) []arch.MemoryAccess {
					if ret != 0 || a[4].Value == 0 {
						return nil
					}
					return arch.ChunkAccesses(a[4].Value, 4, arch.Write)
				},
			},
			sysAllocate: {
				// allocate(length, is_executable, &addr)
				Name:    "allocate",
				OnEntry: func(arch.SyscallArguments, arch.MemReader) []arch.MemoryAccess { return nil },
				OnExit: func(a arch.SyscallArguments, ret int32) []arch.MemoryAccess {
					if ret != 0 || a[2].Value == 0 {
						return nil
					}
					return arch.ChunkAccesses(a[2].Value, 4, arch.Write)
				},
			},
			sysDeallocate: {
				Name:    "deallocate",
				OnEntry: func(arch.SyscallArguments, arch.MemReader) []arch.MemoryAccess { return nil },
				OnExit:  func(arch.SyscallArguments, int32) []arch.MemoryAccess { return nil },
			},
			sysRandom: {
				// random(buf, count, &rnd_bytes)
				Name:    "random",
				OnEntry: func(arch.SyscallArguments, arch.MemReader) []arch.MemoryAccess { return nil },
				OnExit: func(a arch.SyscallArguments, ret int32) []arch.MemoryAccess {
					if ret != 0 {
						return nil
					}
					var out []arch.MemoryAccess
					out = append(out, writeRegion(a[0].Value, a[1].Value, int32(a[1].Value))...)
					if a[2].Value != 0 {
						out = append(out, arch.ChunkAccesses(a[2].Value, 4, arch.Write)...)
					}
					return out
				},
			},
		},
	}
}
