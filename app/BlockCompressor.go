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

	bwtc "github.com/juhak/bwtc"
	kio "github.com/juhak/bwtc/io"
)

var compressCommand = &cli.Command{
	Name:      "compress",
	Aliases:   []string{"c"},
	Usage:     "compress a file",
	ArgsUsage: "[inputfile] [outputfile]",
	Flags: append(commonFlags(),
		&cli.Uint64Flag{Name: "block", Aliases: []string{"b"}, Value: 100000,
			Usage: "block size for compression (in kB)"},
		&cli.IntFlag{Name: "escape", Value: 1,
			Usage: "preprocessing may free symbols via escaping (0 to disable)"},
		&cli.StringFlag{Name: "prepr", Value: "",
			Usage: "preprocessor passes: p pair, r run, c pair+run, s sequence"},
		&cli.StringFlag{Name: "enc", Aliases: []string{"e"}, Value: "B",
			Usage: "entropy coding: n m M u b B (wavelet models) or h (Huffman)"}),
	Action: runCompress,
}

func runCompress(ctx *cli.Context) error {
	if err := checkJobs(ctx); err != nil {
		return err
	}

	cfg := bwtc.DefaultConfig()
	cfg.Verbosity = ctx.Int("verb")
	cfg.Escaping = ctx.Int("escape") != 0
	cfg.Pipeline = ctx.String("prepr")

	if e := ctx.Int("escape"); e != 0 && e != 1 {
		return fmt.Errorf("%w: escape must be 0 or 1", bwtc.ErrInvalidOption)
	}

	if !bwtc.ValidPipeline(cfg.Pipeline) {
		return fmt.Errorf("%w: preprocessing %q", bwtc.ErrInvalidOption, cfg.Pipeline)
	}

	enc := ctx.String("enc")

	if len(enc) != 1 || !bwtc.ValidEncoding(enc[0]) {
		return fmt.Errorf("%w: encoding %q", bwtc.ErrInvalidOption, enc)
	}

	cfg.Encoding = enc[0]
	blockKB := ctx.Uint64("block")

	if blockKB == 0 || blockKB*1024 > bwtc.MaxBlockSize {
		return fmt.Errorf("%w: block size %d kB", bwtc.ErrInvalidOption, blockKB)
	}

	cfg.BlockSize = int(blockKB * 1024)
	cfg.MaxBWTBlockSize = cfg.BlockSize

	in, out, err := openStreams(ctx)

	if err != nil {
		return err
	}

	defer in.Close()
	defer out.Close()

	writer, err := kio.NewWriter(out, cfg)

	if err != nil {
		return err
	}

	copied, err := io.Copy(writer, in)

	if err != nil {
		return err
	}

	if copied == 0 {
		return fmt.Errorf("%w: empty input", bwtc.ErrInvalidOption)
	}

	if err := writer.Close(); err != nil {
		return err
	}

	if cfg.Verbosity > 0 {
		fmt.Fprintf(os.Stderr, "compressed %d bytes\n", copied)
	}

	return nil
}
