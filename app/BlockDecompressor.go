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

package main

import (
	"fmt"
	"io"
	"os"

	"github.com/urfave/cli/v2"

	kio "github.com/juhak/bwtc/io"
)

var decompressCommand = &cli.Command{
	Name:      "decompress",
	Aliases:   []string{"d"},
	Usage:     "decompress a file",
	ArgsUsage: "[inputfile] [outputfile]",
	Flags:     commonFlags(),
	Action:    runDecompress,
}

func runDecompress(ctx *cli.Context) error {
	if err := checkJobs(ctx); err != nil {
		return err
	}

	in, out, err := openStreams(ctx)

	if err != nil {
		return err
	}

	defer in.Close()
	defer out.Close()

	reader, err := kio.NewReader(in)

	if err != nil {
		return err
	}

	copied, err := io.Copy(out, reader)

	if err != nil {
		return err
	}

	if ctx.Int("verb") > 0 {
		fmt.Fprintf(os.Stderr, "decompressed %d bytes\n", copied)
	}

	return nil
}
