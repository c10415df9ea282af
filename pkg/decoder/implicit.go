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

package decoder

import (
	"github.com/trailofbits/mttn/pkg/arch"
)

// stackMnemonics are instructions whose encoding never spells the stack
// pointer as an operand but which nonetheless read or write through it.
var stackMnemonics = map[arch.Mnemonic]bool{
	"PUSH": true, "POP": true, "CALL": true, "RET": true,
	"RETF": true, "ENTER": true, "LEAVE": true,
	"PUSHA": true, "PUSHAD": true, "POPA": true, "POPAD": true,
	"PUSHF": true, "PUSHFD": true, "POPF": true, "POPFD": true,
}

// esiOnlyMnemonics read [esi] but never touch [edi]: LODS*.
var esiOnlyMnemonics = map[string]bool{"LODSB": true, "LODSW": true, "LODSD": true}

// ediOnlyMnemonics touch [edi] but never [esi]: STOS* (writes it),
// SCAS* (reads it).
var ediOnlyMnemonics = map[string]bool{
	"STOSB": true, "STOSW": true, "STOSD": true,
	"SCASB": true, "SCASW": true, "SCASD": true,
}

// bothMnemonics touch both [esi] and [edi]: MOVS*, CMPS*.
var bothMnemonics = map[string]bool{
	"MOVSB": true, "MOVSW": true, "MOVSD": true,
	"CMPSB": true, "CMPSW": true, "CMPSD": true,
}

// implicitOperands synthesizes the Implicit operands described by
// spec.md §3 for a mnemonic whose encoding doesn't spell them out, so that
// OperandResolver can treat every memory-touching instruction uniformly by
// walking Insn.Operands.
func implicitOperands(m arch.Mnemonic) []arch.Operand {
	name := string(m)
	var ops []arch.Operand

	if stackMnemonics[m] {
		ops = append(ops, arch.Operand{Kind: arch.OperandImplicit, Implicit: arch.ImplicitStack})
	}
	if esiOnlyMnemonics[name] {
		ops = append(ops, arch.Operand{Kind: arch.OperandImplicit, Implicit: arch.ImplicitESI})
	}
	if ediOnlyMnemonics[name] {
		ops = append(ops, arch.Operand{Kind: arch.OperandImplicit, Implicit: arch.ImplicitEDI})
	}
	if bothMnemonics[name] {
		ops = append(ops,
			arch.Operand{Kind: arch.OperandImplicit, Implicit: arch.ImplicitESI},
			arch.Operand{Kind: arch.OperandImplicit, Implicit: arch.ImplicitEDI},
		)
	}
	// REP-prefixed string-op variants ("REP STOSB") never appear as their
	// own Op in x86asm: the prefix is carried on Inst.Prefix and the
	// mnemonic stays e.g. "STOSB", so they fall through the same maps
	// above by keying on the bare mnemonic.
	return ops
}
