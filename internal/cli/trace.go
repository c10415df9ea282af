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

// Package cli is mttn's entrypoint, grounded on runsc/cli/main.go's
// subcommands.Register/subcommands.Execute shape and runsc/cmd's
// subcommands.Command implementations (their OCI lifecycle verbs have no
// analog here; only the Name/Synopsis/Usage/SetFlags/Execute shape is
// kept, realized as a single "trace" verb).
package cli

import (
	"context"
	"flag"
	"fmt"
	"os"

	"github.com/google/subcommands"
	"github.com/sirupsen/logrus"

	"github.com/trailofbits/mttn/internal/config"
	"github.com/trailofbits/mttn/pkg/ptrace"
	"github.com/trailofbits/mttn/pkg/sink"
)

// Trace implements subcommands.Command for mttn's one verb: run or
// attach to a process and stream its single-step trace to a Sink.
type Trace struct {
	conf *config.Config
}

// Name implements subcommands.Command.
func (*Trace) Name() string { return "trace" }

// Synopsis implements subcommands.Command.
func (*Trace) Synopsis() string {
	return "single-step a process and emit a per-instruction trace"
}

// Usage implements subcommands.Command.
func (*Trace) Usage() string {
	return "trace [flags] program [-- args...]\n"
}

// SetFlags implements subcommands.Command.
func (t *Trace) SetFlags(f *flag.FlagSet) {
	t.conf = config.RegisterFlags(f)
}

// Execute implements subcommands.Command.
func (t *Trace) Execute(ctx context.Context, f *flag.FlagSet, _ ...interface{}) subcommands.ExitStatus {
	t.conf.Argv = f.Args()
	if t.conf.AttachPID == 0 && len(t.conf.Argv) == 0 {
		fmt.Fprintln(os.Stderr, t.Usage())
		return subcommands.ExitUsageError
	}
	if err := t.conf.Validate(); err != nil {
		logrus.Errorf("%v", err)
		return subcommands.ExitUsageError
	}

	out, err := buildSink(t.conf)
	if err != nil {
		logrus.Errorf("%v", err)
		return subcommands.ExitFailure
	}

	tracee, err := launch(t.conf)
	if err != nil {
		logrus.Errorf("launch: %v", err)
		return subcommands.ExitFailure
	}

	sc := ptrace.NewStepController(tracee, ptrace.Options{
		Model:                   t.conf.SyscallModel(),
		IgnoreUnsupportedMemops: t.conf.IgnoreUnsupportedMemops,
		MaxSteps:                t.conf.MaxSteps,
	})
	term := sc.Run(out)
	logrus.WithFields(logrus.Fields{
		"kind":   term.Kind,
		"reason": term.Reason,
	}).Info("trace finished")

	os.Exit(term.ExitStatus())
	return subcommands.ExitSuccess
}

func launch(c *config.Config) (*ptrace.Tracee, error) {
	if c.AttachPID != 0 {
		return ptrace.Attach(c.AttachPID)
	}
	return ptrace.Launch(c.Argv, os.Environ())
}

func buildSink(c *config.Config) (ptrace.Sink, error) {
	var primary sink.Sink
	switch sink.Format(c.Format) {
	case sink.FormatJSONL:
		primary = sink.NewJSONL(os.Stdout, c.ShowPreRegs)
	case sink.FormatTiny86Bin:
		primary = sink.NewTiny86(os.Stdout)
	case sink.FormatTiny86Text:
		primary = sink.NewText(os.Stdout)
	default:
		return nil, fmt.Errorf("unknown format %q", c.Format)
	}
	if c.TextAlongside && sink.Format(c.Format) != sink.FormatTiny86Text {
		return sink.Multi{primary, sink.NewText(os.Stderr)}, nil
	}
	return primary, nil
}
