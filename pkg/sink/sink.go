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

// Package sink adapts a stream of arch.StepRecord into one of the output
// formats named in spec.md §6: JSONL, the tiny86 packed binary, and a
// human-readable text form. Each adapter streams records as they arrive
// rather than buffering to EOF, per spec.md §7's "partial trace output
// already written to the Sink is preserved" policy.
package sink

import "github.com/trailofbits/mttn/pkg/arch"

// Sink receives StepRecords in retirement order and a single terminal
// Terminus when the trace ends. It satisfies ptrace.Sink.
type Sink interface {
	Emit(arch.StepRecord) error
	Close(arch.Terminus) error
}

// Format selects one of the sink implementations, driven by the
// -F/--format flag.
type Format string

// Format values named in spec.md §6.
const (
	FormatJSONL      Format = "jsonl"
	FormatTiny86Text Format = "tiny86-text"
	FormatTiny86Bin  Format = "tiny86-bin"
)

// Multi fans a StepRecord stream out to more than one Sink, in order,
// stopping at the first error. Used to implement -t, which asks for
// human-readable text alongside whichever structured format -F selected
// (SPEC_FULL.md §6).
type Multi []Sink

func (m Multi) Emit(r arch.StepRecord) error {
	for _, s := range m {
		if err := s.Emit(r); err != nil {
			return err
		}
	}
	return nil
}

func (m Multi) Close(t arch.Terminus) error {
	var firstErr error
	for _, s := range m {
		if err := s.Close(t); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}
