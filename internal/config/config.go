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

// Package config holds the flags a trace run is configured with, grounded
// on runsc/config's RegisterFlags/NewFromFlags split (adapted here to
// mttn's much smaller flag set; the reflection-driven tag binding,
// bundle, and OCI-annotation-override machinery that file layers on top
// has no analog for a single-shot CLI tool and is not carried over).
package config

import (
	"flag"
	"fmt"

	"github.com/trailofbits/mttn/pkg/sink"
	"github.com/trailofbits/mttn/pkg/syscallmodel"
)

// Config holds every value spec.md §6's CLI surface accepts.
type Config struct {
	AttachPID               int
	Mode                    int
	Format                  sink.Format
	ShowPreRegs             bool
	TextAlongside           bool
	SyscallModelName        string
	IgnoreUnsupportedMemops bool
	MaxSteps                int64

	Argv []string
}

// RegisterFlags registers mttn's flags on flagSet, mirroring the
// boolean/string/int flag calls runsc/config.RegisterFlags makes
// directly against a flag.FlagSet.
func RegisterFlags(flagSet *flag.FlagSet) *Config {
	c := &Config{}
	flagSet.IntVar(&c.AttachPID, "a", 0, "attach to PID instead of spawning a new process")
	flagSet.IntVar(&c.AttachPID, "attach", 0, "attach to PID instead of spawning a new process")
	flagSet.IntVar(&c.Mode, "m", 32, "force N-bit decoding (only 32 is supported)")
	flagSet.IntVar(&c.Mode, "mode", 32, "force N-bit decoding (only 32 is supported)")
	flagSet.StringVar((*string)(&c.Format), "F", string(sink.FormatJSONL), "output format: jsonl, tiny86-text, tiny86-bin")
	flagSet.StringVar((*string)(&c.Format), "format", string(sink.FormatJSONL), "output format: jsonl, tiny86-text, tiny86-bin")
	flagSet.BoolVar(&c.ShowPreRegs, "A", false, "emit pre-step register snapshot")
	flagSet.BoolVar(&c.TextAlongside, "t", false, "emit human-readable text alongside structured output")
	flagSet.StringVar(&c.SyscallModelName, "syscall-model", "linux", "syscall interpretation: linux or decree")
	flagSet.BoolVar(&c.IgnoreUnsupportedMemops, "ignore-unsupported-memops", false, "skip, don't abort, on unsupported operand widths")
	flagSet.Int64Var(&c.MaxSteps, "max-steps", 0, "stop after N steps (0 means unlimited)")
	return c
}

// Validate checks the flag combination, returning the usage-error kind
// spec.md §6's exit code 2 covers.
func (c *Config) Validate() error {
	if c.Mode != 32 {
		return fmt.Errorf("unsupported mode %d: only 32 is supported", c.Mode)
	}
	switch sink.Format(c.Format) {
	case sink.FormatJSONL, sink.FormatTiny86Text, sink.FormatTiny86Bin:
	default:
		return fmt.Errorf("unknown format %q", c.Format)
	}
	switch c.SyscallModelName {
	case "linux", "decree":
	default:
		return fmt.Errorf("unknown syscall model %q", c.SyscallModelName)
	}
	if c.AttachPID != 0 && len(c.Argv) != 0 {
		return fmt.Errorf("cannot both attach (-a) and launch a program")
	}
	if c.AttachPID == 0 && len(c.Argv) == 0 {
		return fmt.Errorf("either -a PID or a program to launch is required")
	}
	return nil
}

// SyscallModel resolves SyscallModelName to a syscallmodel.Model.
func (c *Config) SyscallModel() *syscallmodel.Model {
	if c.SyscallModelName == "decree" {
		return syscallmodel.NewDecree()
	}
	return syscallmodel.NewLinux386()
}
