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

// Package operand computes the effective memory accesses an instruction
// will perform, given its decode and the register file observed before it
// executes. It implements the table in spec.md §4.4 as a mnemonic-keyed
// dispatch table, per the "prefer a table over a class hierarchy" design
// note, plus a generic fallback for ALU/compare/mov-class instructions
// that touch an explicit Mem operand but aren't named in the table.
package operand

import "github.com/trailofbits/mttn/pkg/arch"

// Result is the ordered pair (reads, writes) spec.md §4.4 describes.
// Entries carry Addr and Width only; Data is filled in by the
// StepController after probing memory at the appropriate point in the
// step (reads before the single-step, writes after).
type Result struct {
	Reads  []arch.MemoryAccess
	Writes []arch.MemoryAccess
}

func access(addr uint32, width uint8, dir arch.Direction) arch.MemoryAccess {
	return arch.MemoryAccess{Addr: addr, Width: width, Direction: dir}
}

// regValue reads the 32-bit value of id out of regs. RegNone reads as 0,
// so that a Mem operand missing a base or index still resolves.
func regValue(id arch.RegID, regs arch.Regs) uint32 {
	switch id {
	case arch.RegEAX:
		return regs.Eax
	case arch.RegECX:
		return regs.Ecx
	case arch.RegEDX:
		return regs.Edx
	case arch.RegEBX:
		return regs.Ebx
	case arch.RegESP:
		return regs.Esp
	case arch.RegEBP:
		return regs.Ebp
	case arch.RegESI:
		return regs.Esi
	case arch.RegEDI:
		return regs.Edi
	case arch.RegEIP:
		return regs.Eip
	default:
		return 0
	}
}

// EffectiveAddress computes base + index*scale + disp, truncated to 32
// bits, per spec.md §4.4.
func EffectiveAddress(m arch.Mem, regs arch.Regs) uint32 {
	addr := uint32(int32(m.Disp))
	if m.HasBase {
		addr += regValue(m.Base, regs)
	}
	if m.HasIndex {
		addr += regValue(m.Index, regs) * uint32(m.Scale)
	}
	return addr
}

// dataWidth returns the effective operand width in bytes for a
// non-memory push/pop-style access, from the instruction's decoded data
// size (16 or 32 bits).
func dataWidth(in arch.Insn) uint8 {
	if in.DataSize == 16 {
		return 2
	}
	return 4
}

// a dispatch table entry: computes the accesses for one mnemonic.
type resolveFunc func(in arch.Insn, regs arch.Regs) Result

var table = map[arch.Mnemonic]resolveFunc{
	"PUSH":   resolvePush,
	"POP":    resolvePop,
	"CALL":   resolveCall,
	"RET":    resolveRet,
	"RETF":   resolveRet,
	"ENTER":  resolveEnter,
	"LEAVE":  resolveLeave,
	"LEA":    resolveNone,
	"MOVSB":  resolveMovs,
	"MOVSW":  resolveMovs,
	"MOVSD":  resolveMovs,
	"LODSB":  resolveLods,
	"LODSW":  resolveLods,
	"LODSD":  resolveLods,
	"STOSB":  resolveStos,
	"STOSW":  resolveStos,
	"STOSD":  resolveStos,
	"CMPSB":  resolveCmps,
	"CMPSW":  resolveCmps,
	"CMPSD":  resolveCmps,
	"SCASB":  resolveScas,
	"SCASW":  resolveScas,
	"SCASD":  resolveScas,
	"XCHG":   resolveXchg,
	"INT":    resolveNone, // syscall-model-defined; see pkg/syscallmodel
	"INT3":   resolveNone,
	"SYSENTER": resolveNone,
	"SYSCALL":  resolveNone,
	"CPUID":  resolveNone,
	"RDTSC":  resolveNone,
}

// rmwMnemonics read-then-write their destination Mem operand rather than
// only writing it. This covers the "RMW ALU on mem" row of spec.md §4.4.
var rmwMnemonics = map[arch.Mnemonic]bool{
	"ADD": true, "OR": true, "ADC": true, "SBB": true, "AND": true,
	"SUB": true, "XOR": true, "INC": true, "DEC": true, "NOT": true,
	"NEG": true, "ROL": true, "ROR": true, "RCL": true, "RCR": true,
	"SHL": true, "SHR": true, "SAR": true, "SAL": true,
	"XADD": true, "ADCX": true, "ADOX": true,
}

// compareMnemonics only read their operands, even when the first operand
// is a Mem that would otherwise look like a write destination.
var compareMnemonics = map[arch.Mnemonic]bool{
	"CMP": true, "TEST": true,
}

// Resolve computes the ordered (reads, writes) access lists for in,
// given the register file observed before the step executes.
func Resolve(in arch.Insn, regsPre arch.Regs) Result {
	if fn, ok := table[in.Mnemonic]; ok {
		return fn(in, regsPre)
	}
	return resolveGeneric(in, regsPre)
}

func resolveNone(arch.Insn, arch.Regs) Result { return Result{} }

// resolveGeneric handles the common two-operand ALU/compare/mov shape:
// explicit Mem operands are classified by position (Intel order: dest
// first) and mnemonic class. LEA never reaches here (handled in table);
// an explicit Mem operand elsewhere is treated as a plain read or
// read+write destination.
func resolveGeneric(in arch.Insn, regs arch.Regs) Result {
	var res Result
	for i, op := range in.Operands {
		if op.Kind != arch.OperandMem {
			continue
		}
		addr := EffectiveAddress(op.Mem, regs)
		width := op.Mem.Width
		isDest := i == 0

		switch {
		case compareMnemonics[in.Mnemonic]:
			res.Reads = append(res.Reads, access(addr, width, arch.Read))
		case isDest && rmwMnemonics[in.Mnemonic]:
			res.Reads = append(res.Reads, access(addr, width, arch.Read))
			res.Writes = append(res.Writes, access(addr, width, arch.Write))
		case isDest:
			res.Writes = append(res.Writes, access(addr, width, arch.Write))
		default:
			res.Reads = append(res.Reads, access(addr, width, arch.Read))
		}
	}
	return res
}

func resolvePush(in arch.Insn, regs arch.Regs) Result {
	var res Result
	width := operandWidthOf(in, dataWidth(in))
	for _, op := range in.Operands {
		if op.Kind == arch.OperandMem {
			res.Reads = append(res.Reads, access(EffectiveAddress(op.Mem, regs), op.Mem.Width, arch.Read))
			width = op.Mem.Width
		}
	}
	writeAddr := regs.Esp - uint32(width)
	res.Writes = append(res.Writes, access(writeAddr, width, arch.Write))
	return res
}

func resolvePop(in arch.Insn, regs arch.Regs) Result {
	width := operandWidthOf(in, dataWidth(in))
	for _, op := range in.Operands {
		if op.Kind == arch.OperandMem {
			width = op.Mem.Width
		}
	}
	res := Result{Reads: []arch.MemoryAccess{access(regs.Esp, width, arch.Read)}}
	for _, op := range in.Operands {
		if op.Kind == arch.OperandMem {
			res.Writes = append(res.Writes, access(EffectiveAddress(op.Mem, regs), op.Mem.Width, arch.Write))
		}
	}
	return res
}

// operandWidthOf returns the width of the first Reg or Imm operand, for
// push/pop forms that don't carry a Mem operand, falling back to def.
func operandWidthOf(in arch.Insn, def uint8) uint8 {
	for _, op := range in.Operands {
		switch op.Kind {
		case arch.OperandReg:
			return op.RegWidth
		case arch.OperandImm:
			return def
		}
	}
	return def
}

func resolveCall(in arch.Insn, regs arch.Regs) Result {
	var res Result
	for _, op := range in.Operands {
		if op.Kind == arch.OperandMem {
			res.Reads = append(res.Reads, access(EffectiveAddress(op.Mem, regs), op.Mem.Width, arch.Read))
		}
	}
	// Indirect register-form calls (CALL eax) read no memory; the target
	// comes straight from the register file.
	res.Writes = append(res.Writes, access(regs.Esp-4, 4, arch.Write))
	return res
}

func resolveRet(_ arch.Insn, regs arch.Regs) Result {
	return Result{Reads: []arch.MemoryAccess{access(regs.Esp, 4, arch.Read)}}
}

// resolveEnter handles the common level-0 ENTER imm16, 0 form: push ebp,
// then mov ebp, esp; sub esp, imm16. Only the push of the old frame
// pointer touches memory.
func resolveEnter(_ arch.Insn, regs arch.Regs) Result {
	return Result{Writes: []arch.MemoryAccess{access(regs.Esp-4, 4, arch.Write)}}
}

// resolveLeave handles mov esp, ebp; pop ebp: the pop reads the saved
// frame pointer off the stack at the new esp (== ebp).
func resolveLeave(_ arch.Insn, regs arch.Regs) Result {
	return Result{Reads: []arch.MemoryAccess{access(regs.Ebp, 4, arch.Read)}}
}

func stringWidth(m arch.Mnemonic) uint8 {
	s := string(m)
	switch s[len(s)-1] {
	case 'B':
		return 1
	case 'W':
		return 2
	default:
		return 4
	}
}

func resolveMovs(in arch.Insn, regs arch.Regs) Result {
	w := stringWidth(in.Mnemonic)
	return Result{
		Reads:  []arch.MemoryAccess{access(regs.Esi, w, arch.Read)},
		Writes: []arch.MemoryAccess{access(regs.Edi, w, arch.Write)},
	}
}

func resolveLods(in arch.Insn, regs arch.Regs) Result {
	w := stringWidth(in.Mnemonic)
	return Result{Reads: []arch.MemoryAccess{access(regs.Esi, w, arch.Read)}}
}

func resolveStos(in arch.Insn, regs arch.Regs) Result {
	w := stringWidth(in.Mnemonic)
	return Result{Writes: []arch.MemoryAccess{access(regs.Edi, w, arch.Write)}}
}

func resolveCmps(in arch.Insn, regs arch.Regs) Result {
	w := stringWidth(in.Mnemonic)
	return Result{Reads: []arch.MemoryAccess{
		access(regs.Esi, w, arch.Read),
		access(regs.Edi, w, arch.Read),
	}}
}

func resolveScas(in arch.Insn, regs arch.Regs) Result {
	w := stringWidth(in.Mnemonic)
	return Result{Reads: []arch.MemoryAccess{access(regs.Edi, w, arch.Read)}}
}

// resolveXchg handles XCHG r,m / XCHG m,r: the memory operand is both
// read and written, regardless of which position it occupies.
func resolveXchg(in arch.Insn, regs arch.Regs) Result {
	var res Result
	for _, op := range in.Operands {
		if op.Kind == arch.OperandMem {
			addr := EffectiveAddress(op.Mem, regs)
			res.Reads = append(res.Reads, access(addr, op.Mem.Width, arch.Read))
			res.Writes = append(res.Writes, access(addr, op.Mem.Width, arch.Write))
		}
	}
	return res
}
