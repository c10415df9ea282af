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

// Linux i386 syscall numbers (int $0x80 ABI), the subset named in
// spec.md §4.6.
const (
	sysExit          = 1
	sysRead          = 3
	sysWrite         = 4
	sysOpen          = 5
	sysClose         = 6
	sysLseek         = 19
	sysAccess        = 33
	sysBrk           = 45
	sysIoctl         = 54
	sysGettimeofday  = 78
	sysMmap2         = 192
	sysFstat64       = 197
	sysUname         = 122
	sysRtSigaction   = 174
	sysRtSigprocmask = 175
	sysMunmap        = 91
	sysSetThreadArea = 243
	sysExitGroup     = 252
)

// stat64 and timeval/timezone are fixed-size structs on i386; their sizes
// are used only to bound the kernel->user write synthesized for the
// corresponding syscalls.
const (
	sizeofStat64   = 96
	sizeofTimeval  = 8
	sizeofTimezone = 8
	sizeofUtsname  = 390
	sizeofUserDesc = 16
	// kernel struct sigaction for rt_sigaction: handler, flags, restorer,
	// and an 8-byte signal mask.
	sizeofSigaction = 20
)

// cStringMaxLen bounds how far readCString will look for a NUL
// terminator, matching PATH_MAX on Linux.
const cStringMaxLen = 4096

// NewLinux386 returns the syscall model for the classic Linux i386 int
// $0x80 ABI (ebx, ecx, edx, esi, edi, ebp argument order, return in eax),
// covering the syscalls spec.md §4.6 names as in scope. A syscall number
// outside this table is UnsupportedSyscall per spec.md §7.
func NewLinux386() *Model {
	return &Model{
		Name: "linux",
		table: map[uint32]Syscall{
			sysRead: {
				Name:    "read",
				OnEntry: func(arch.SyscallArguments, arch.MemReader) []arch.MemoryAccess { return nil },
				OnExit: func(a arch.SyscallArguments, ret int32) []arch.MemoryAccess {
					return writeRegion(a[1].Value, a[2].Value, ret)
				},
			},
			sysWrite: {
				Name: "write",
				OnEntry: func(a arch.SyscallArguments, _ arch.MemReader) []arch.MemoryAccess {
					return readRegion(a[1].Value, a[2].Value)
				},
				OnExit: func(arch.SyscallArguments, int32) []arch.MemoryAccess { return nil },
			},
			sysOpen: {
				Name: "open",
				OnEntry: func(a arch.SyscallArguments, peek arch.MemReader) []arch.MemoryAccess {
					return readCString(a[0].Value, peek)
				},
				OnExit: func(arch.SyscallArguments, int32) []arch.MemoryAccess { return nil },
			},
			sysClose: {
				Name:    "close",
				OnEntry: func(arch.SyscallArguments, arch.MemReader) []arch.MemoryAccess { return nil },
				OnExit:  func(arch.SyscallArguments, int32) []arch.MemoryAccess { return nil },
			},
			sysMmap2: {
				Name:    "mmap2",
				OnEntry: func(arch.SyscallArguments, arch.MemReader) []arch.MemoryAccess { return nil },
				OnExit:  func(arch.SyscallArguments, int32) []arch.MemoryAccess { return nil },
			},
			sysMunmap: {
				Name:    "munmap",
				OnEntry: func(arch.SyscallArguments, arch.MemReader) []arch.MemoryAccess { return nil },
				OnExit:  func(arch.SyscallArguments, int32) []arch.MemoryAccess { return nil },
			},
			sysBrk: {
				Name:    "brk",
				OnEntry: func(arch.SyscallArguments, arch.MemReader) []arch.MemoryAccess { return nil },
				OnExit:  func(arch.SyscallArguments, int32) []arch.MemoryAccess { return nil },
			},
			sysExit: {
				Name:    "exit",
				OnEntry: func(arch.SyscallArguments, arch.MemReader) []arch.MemoryAccess { return nil },
				OnExit:  func(arch.SyscallArguments, int32) []arch.MemoryAccess { return nil },
			},
			sysExitGroup: {
				Name:    "exit_group",
				OnEntry: func(arch.SyscallArguments, arch.MemReader) []arch.MemoryAccess { return nil },
				OnExit:  func(arch.SyscallArguments, int32) []arch.MemoryAccess { return nil },
			},
			sysFstat64: {
				Name:    "fstat64",
				OnEntry: func(arch.SyscallArguments, arch.MemReader) []arch.MemoryAccess { return nil },
				OnExit: func(a arch.SyscallArguments, ret int32) []arch.MemoryAccess {
					if ret != 0 {
						return nil
					}
					return arch.ChunkAccesses(a[1].Value, sizeofStat64, arch.Write)
				},
			},
			sysLseek: {
				Name:    "lseek",
				OnEntry: func(arch.SyscallArguments, arch.MemReader) []arch.MemoryAccess { return nil },
				OnExit:  func(arch.SyscallArguments, int32) []arch.MemoryAccess { return nil },
			},
			sysAccess: {
				Name: "access",
				OnEntry: func(a arch.SyscallArguments, peek arch.MemReader) []arch.MemoryAccess {
					return readCString(a[0].Value, peek)
				},
				OnExit: func(arch.SyscallArguments, int32) []arch.MemoryAccess { return nil },
			},
			sysIoctl: {
				Name:    "ioctl",
				OnEntry: func(arch.SyscallArguments, arch.MemReader) []arch.MemoryAccess { return nil },
				OnExit:  func(arch.SyscallArguments, int32) []arch.MemoryAccess { return nil },
			},
			sysRtSigaction: {
				Name: "rt_sigaction",
				OnEntry: func(a arch.SyscallArguments, _ arch.MemReader) []arch.MemoryAccess {
					if a[1].Value == 0 {
						return nil
					}
					return arch.ChunkAccesses(a[1].Value, sizeofSigaction, arch.Read)
				},
				OnExit: func(a arch.SyscallArguments, ret int32) []arch.MemoryAccess {
					if ret != 0 || a[2].Value == 0 {
						return nil
					}
					return arch.ChunkAccesses(a[2].Value, sizeofSigaction, arch.Write)
				},
			},
			sysRtSigprocmask: {
				Name: "rt_sigprocmask",
				OnEntry: func(a arch.SyscallArguments, _ arch.MemReader) []arch.MemoryAccess {
					if a[1].Value == 0 {
						return nil
					}
					return readRegion(a[1].Value, a[3].Value)
				},
				OnExit: func(a arch.SyscallArguments, ret int32) []arch.MemoryAccess {
					if ret != 0 || a[2].Value == 0 {
						return nil
					}
					return writeRegion(a[2].Value, a[3].Value, int32(a[3].Value))
				},
			},
			sysSetThreadArea: {
				Name: "set_thread_area",
				OnEntry: func(a arch.SyscallArguments, _ arch.MemReader) []arch.MemoryAccess {
					return arch.ChunkAccesses(a[0].Value, sizeofUserDesc, arch.Read)
				},
				OnExit: func(a arch.SyscallArguments, ret int32) []arch.MemoryAccess {
					if ret != 0 {
						return nil
					}
					return arch.ChunkAccesses(a[0].Value, sizeofUserDesc, arch.Write)
				},
			},
			sysUname: {
				Name:    "uname",
				OnEntry: func(arch.SyscallArguments, arch.MemReader) []arch.MemoryAccess { return nil },
				OnExit: func(a arch.SyscallArguments, ret int32) []arch.MemoryAccess {
					if ret != 0 {
						return nil
					}
					return arch.ChunkAccesses(a[0].Value, sizeofUtsname, arch.Write)
				},
			},
			sysGettimeofday: {
				Name:    "gettimeofday",
				OnEntry: func(arch.SyscallArguments, arch.MemReader) []arch.MemoryAccess { return nil },
				OnExit: func(a arch.SyscallArguments, ret int32) []arch.MemoryAccess {
					if ret != 0 {
						return nil
					}
					var out []arch.MemoryAccess
					if a[0].Value != 0 {
						out = append(out, arch.ChunkAccesses(a[0].Value, sizeofTimeval, arch.Write)...)
					}
					if a[1].Value != 0 {
						out = append(out, arch.ChunkAccesses(a[1].Value, sizeofTimezone, arch.Write)...)
					}
					return out
				},
			},
		},
	}
}

// readCString reports the accesses a NUL-terminated path argument actually
// causes: it uses peek to read forward from ptr until a NUL byte, bounded
// by cStringMaxLen, and reports only the bytes peek actually returned. peek
// itself stops at the first NUL rather than reading cStringMaxLen bytes
// unconditionally, so a short path near the end of a mapping doesn't
// report memory past its terminator or touch the page beyond it.
func readCString(ptr uint32, peek arch.MemReader) []arch.MemoryAccess {
	if ptr == 0 || peek == nil {
		return nil
	}
	data, err := peek(ptr, cStringMaxLen)
	if err != nil || len(data) == 0 {
		return nil
	}
	return arch.ChunkAccesses(ptr, uint32(len(data)), arch.Read)
}
