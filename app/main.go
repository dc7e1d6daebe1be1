/*
Copyright 2011-2026 Frederic Langlet
Licensed under the Apache License, Version 2.0 (the "License");
you may not use this file except in compliance with the License.
you may obtain a copy of the License at

                http://www.apache.org/licenses/LICENSE-2.0

Unless required by applicable law or agreed to in writing, software
distributed under the License is distributed on an "AS IS" BASIS,
WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
See the License for the specific language governing permissions and
limitations under the License.
*/

// The bwtc command compresses and decompresses files with the BWT
// block pipeline.
package main

import (
	"fmt"
	"os"

	"github.com/urfave/cli/v2"

	bwtc "github.com/juhak/bwtc"
)

var app = &cli.App{
	Name:  "bwtc",
	Usage: "Burrows-Wheeler block compressor",
	Commands: []*cli.Command{
		compressCommand,
		decompressCommand,
	},
}

func main() {
	if err := app.Run(os.Args); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}
}

func commonFlags() []cli.Flag {
	return []cli.Flag{
		&cli.BoolFlag{Name: "stdin", Aliases: []string{"i"}, Usage: "read from standard input"},
		&cli.BoolFlag{Name: "stdout", Aliases: []string{"c"}, Usage: "write to standard output"},
		&cli.IntFlag{Name: "verb", Aliases: []string{"v"}, Usage: "verbosity level"},
		&cli.IntFlag{Name: "jobs", Aliases: []string{"j"}, Value: 1, Usage: "thread count (must be 1)"},
	}
}

// openStreams resolves the input and output of a command from the
// stdin/stdout flags and the positional file arguments.
func openStreams(ctx *cli.Context) (*os.File, *os.File, error) {
	args := ctx.Args().Slice()
	in := os.Stdin
	out := os.Stdout

	if !ctx.Bool("stdin") {
		if len(args) == 0 {
			return nil, nil, fmt.Errorf("%w: missing input file", bwtc.ErrInvalidOption)
		}

		f, err := os.Open(args[0])

		if err != nil {
			return nil, nil, err
		}

		in = f
		args = args[1:]
	}

	if !ctx.Bool("stdout") {
		if len(args) == 0 {
			in.Close()
			return nil, nil, fmt.Errorf("%w: missing output file", bwtc.ErrInvalidOption)
		}

		f, err := os.Create(args[0])

		if err != nil {
			in.Close()
			return nil, nil, err
		}

		out = f
	}

	return in, out, nil
}

func checkJobs(ctx *cli.Context) error {
	if ctx.Int("jobs") != 1 {
		return fmt.Errorf("%w: only a single thread is supported", bwtc.ErrInvalidOption)
	}

	return nil
}
