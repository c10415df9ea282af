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

package cli

import (
	"context"
	"flag"
	"os"

	"github.com/google/subcommands"
	"github.com/sirupsen/logrus"
)

// knownVerbs are the subcommands.Command names Main recognizes explicitly.
// Anything else in argv[0] is assumed to be a program path for the
// implied "trace" verb, since spec.md §6 defines mttn's CLI as
// positional (`program [--] [args...]`) rather than verb-first; Trace is
// still registered as a subcommands.Command so `mttn trace ./prog` and
// `mttn help` work the way runsc/cli.Main's verbs do, but it is also the
// default when argv[0] doesn't name a known verb.
var knownVerbs = map[string]bool{"trace": true, "help": true, "flags": true}

// Main is mttn's entrypoint, registering the trace verb and the
// subcommands package's built-in help/flags commands the way
// runsc/cli.Main registers runsc's OCI verbs alongside them.
func Main() {
	configureLogging()

	subcommands.Register(subcommands.HelpCommand(), "")
	subcommands.Register(subcommands.FlagsCommand(), "")
	subcommands.Register(&Trace{}, "")

	args := os.Args[1:]
	if len(args) == 0 || !knownVerbs[firstNonFlag(args)] {
		args = append([]string{"trace"}, args...)
	}
	os.Args = append(os.Args[:1], args...)

	flag.Parse()
	os.Exit(int(subcommands.Execute(context.Background())))
}

// firstNonFlag returns the first argument not starting with '-', the
// candidate verb name subcommands.Execute would otherwise see as
// flag.Args()[0].
func firstNonFlag(args []string) string {
	for _, a := range args {
		if len(a) == 0 || a[0] != '-' {
			return a
		}
	}
	return ""
}

// configureLogging sets logrus's level from MTTN_LOG, SPEC_FULL.md §6's
// analog of the upstream tool's RUST_LOG variable, parsed the same way
// logrus.ParseLevel already does (warn, info, debug, trace, ...).
func configureLogging() {
	logrus.SetFormatter(&logrus.TextFormatter{DisableTimestamp: true})
	level := os.Getenv("MTTN_LOG")
	if level == "" {
		logrus.SetLevel(logrus.WarnLevel)
		return
	}
	parsed, err := logrus.ParseLevel(level)
	if err != nil {
		logrus.SetLevel(logrus.WarnLevel)
		logrus.Warnf("invalid MTTN_LOG value %q: %v", level, err)
		return
	}
	logrus.SetLevel(parsed)
}
