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

package operand

import (
	"testing"

	"github.com/trailofbits/mttn/pkg/arch"
)

func TestResolveStosb(t *testing.T) {
	regs := arch.Regs{Edi: 0x1000}
	in := arch.Insn{
		Mnemonic: "STOSB",
		Operands: []arch.Operand{{Kind: arch.OperandImplicit, Implicit: arch.ImplicitEDI}},
	}
	res := Resolve(in, regs)
	if len(res.Reads) != 0 {
		t.Fatalf("stosb: want 0 reads, got %d", len(res.Reads))
	}
	if len(res.Writes) != 1 {
		t.Fatalf("stosb: want 1 write, got %d", len(res.Writes))
	}
	w := res.Writes[0]
	if w.Addr != 0x1000 || w.Width != 1 {
		t.Fatalf("stosb: want write at 0x1000 width 1, got addr=%#x width=%d", w.Addr, w.Width)
	}
}

func TestResolvePush(t *testing.T) {
	regs := arch.Regs{Esp: 0x2000, Eax: 0xdeadbeef}
	in := arch.Insn{
		Mnemonic: "PUSH",
		DataSize: 32,
		Operands: []arch.Operand{
			{Kind: arch.OperandReg, Reg: arch.RegEAX, RegWidth: 4},
			{Kind: arch.OperandImplicit, Implicit: arch.ImplicitStack},
		},
	}
	res := Resolve(in, regs)
	if len(res.Reads) != 0 || len(res.Writes) != 1 {
		t.Fatalf("push: want 0 reads 1 write, got %d/%d", len(res.Reads), len(res.Writes))
	}
	w := res.Writes[0]
	if w.Addr != 0x2000-4 || w.Width != 4 {
		t.Fatalf("push: want write at esp-4 width 4, got addr=%#x width=%d", w.Addr, w.Width)
	}
}

func TestResolvePop(t *testing.T) {
	regs := arch.Regs{Esp: 0x2000 - 4}
	in := arch.Insn{
		Mnemonic: "POP",
		DataSize: 32,
		Operands: []arch.Operand{
			{Kind: arch.OperandReg, Reg: arch.RegEBX, RegWidth: 4},
			{Kind: arch.OperandImplicit, Implicit: arch.ImplicitStack},
		},
	}
	res := Resolve(in, regs)
	if len(res.Reads) != 1 || len(res.Writes) != 0 {
		t.Fatalf("pop: want 1 read 0 writes, got %d/%d", len(res.Reads), len(res.Writes))
	}
	r := res.Reads[0]
	if r.Addr != regs.Esp || r.Width != 4 {
		t.Fatalf("pop: want read at esp width 4, got addr=%#x width=%d", r.Addr, r.Width)
	}
}

func TestResolveMovsb(t *testing.T) {
	regs := arch.Regs{Esi: 0x100, Edi: 0x200}
	in := arch.Insn{
		Mnemonic: "MOVSB",
		Operands: []arch.Operand{
			{Kind: arch.OperandImplicit, Implicit: arch.ImplicitESI},
			{Kind: arch.OperandImplicit, Implicit: arch.ImplicitEDI},
		},
	}
	res := Resolve(in, regs)
	if len(res.Reads) != 1 || res.Reads[0].Addr != 0x100 || res.Reads[0].Width != 1 {
		t.Fatalf("movsb: unexpected reads %+v", res.Reads)
	}
	if len(res.Writes) != 1 || res.Writes[0].Addr != 0x200 || res.Writes[0].Width != 1 {
		t.Fatalf("movsb: unexpected writes %+v", res.Writes)
	}
}

func TestResolveLea(t *testing.T) {
	regs := arch.Regs{Ebx: 0x10}
	in := arch.Insn{
		Mnemonic: "LEA",
		Operands: []arch.Operand{
			{Kind: arch.OperandReg, Reg: arch.RegEAX, RegWidth: 4},
			{Kind: arch.OperandMem, Mem: arch.Mem{HasBase: true, Base: arch.RegEBX, Disp: 4, Width: 4}},
		},
	}
	res := Resolve(in, regs)
	if len(res.Reads) != 0 || len(res.Writes) != 0 {
		t.Fatalf("lea: want zero accesses, got reads=%d writes=%d", len(res.Reads), len(res.Writes))
	}
}

func TestResolveIncMem(t *testing.T) {
	regs := arch.Regs{Eax: 0x4000}
	in := arch.Insn{
		Mnemonic: "INC",
		Operands: []arch.Operand{
			{Kind: arch.OperandMem, Mem: arch.Mem{HasBase: true, Base: arch.RegEAX, Width: 4}},
		},
	}
	res := Resolve(in, regs)
	if len(res.Reads) != 1 || len(res.Writes) != 1 {
		t.Fatalf("inc [mem]: want 1 read 1 write, got %d/%d", len(res.Reads), len(res.Writes))
	}
	if res.Reads[0].Addr != 0x4000 || res.Writes[0].Addr != 0x4000 {
		t.Fatalf("inc [mem]: address mismatch reads=%+v writes=%+v", res.Reads, res.Writes)
	}
}

func TestResolveCmpMemNoWrite(t *testing.T) {
	regs := arch.Regs{Eax: 0x4000}
	in := arch.Insn{
		Mnemonic: "CMP",
		Operands: []arch.Operand{
			{Kind: arch.OperandMem, Mem: arch.Mem{HasBase: true, Base: arch.RegEAX, Width: 4}},
			{Kind: arch.OperandImm, Imm: 1, ImmWidth: 1},
		},
	}
	res := Resolve(in, regs)
	if len(res.Writes) != 0 {
		t.Fatalf("cmp [mem], imm: want 0 writes, got %d", len(res.Writes))
	}
	if len(res.Reads) != 1 {
		t.Fatalf("cmp [mem], imm: want 1 read, got %d", len(res.Reads))
	}
}

func TestResolveCpuidZeroAccesses(t *testing.T) {
	res := Resolve(arch.Insn{Mnemonic: "CPUID"}, arch.Regs{})
	if len(res.Reads) != 0 || len(res.Writes) != 0 {
		t.Fatalf("cpuid: want zero accesses, got reads=%d writes=%d", len(res.Reads), len(res.Writes))
	}
}

func TestEffectiveAddressScaledIndex(t *testing.T) {
	regs := arch.Regs{Eax: 0x1000, Ecx: 3}
	m := arch.Mem{HasBase: true, Base: arch.RegEAX, HasIndex: true, Index: arch.RegECX, Scale: 4, Disp: 8}
	got := EffectiveAddress(m, regs)
	want := uint32(0x1000 + 3*4 + 8)
	if got != want {
		t.Fatalf("effective address: got %#x want %#x", got, want)
	}
}
