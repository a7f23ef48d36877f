// Copyright (C) 2022 Sneller, Inc.
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
//
// This program is distributed in the hope that it will be useful,
// but WITHOUT ANY WARRANTY; without even the implied warranty of
// MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE.  See the
// GNU Affero General Public License for more details.
//
// You should have received a copy of the GNU Affero General Public License
// along with this program.  If not, see <http://www.gnu.org/licenses/>.

// Command xbdump prints binary XML (MC-NBFX) payloads
// as XML text. With -text it instead sniffs the encoding
// of a text XML document and transcodes it.
package main

import (
	"flag"
	"fmt"
	"io"
	"log"
	"os"

	"github.com/SnellerInc/xmlbin/compr"
	"github.com/SnellerInc/xmlbin/nbfx"
	"github.com/SnellerInc/xmlbin/xmlenc"
)

var (
	dashz      string
	dashnbfse  bool
	dashdict   string
	dashquotas string
	dashtext   bool
	dashenc    string
	dashout    string
	dashbom    bool
	dashv      bool
)

func init() {
	flag.StringVar(&dashz, "z", "", "decompress input (gzip, deflate, zstd, s2)")
	flag.BoolVar(&dashnbfse, "nbfse", false, "input starts with an NBFSE string table")
	flag.StringVar(&dashdict, "dict", "nbfs", "static dictionary (nbfs or none)")
	flag.StringVar(&dashquotas, "quotas", "", "YAML or JSON file of reader quotas")
	flag.BoolVar(&dashtext, "text", false, "input is text XML; transcode it")
	flag.StringVar(&dashenc, "encoding", "", "expected encoding of text input (utf-8, utf-16le, utf-16be)")
	flag.StringVar(&dashout, "out", "utf-8", "output encoding")
	flag.BoolVar(&dashbom, "bom", false, "write a byte order mark before UTF-16 output")
	flag.BoolVar(&dashv, "v", false, "verbose")
}

type config struct {
	algo     string
	nbfse    bool
	dict     nbfx.Dictionary
	quotas   nbfx.Quotas
	text     bool
	expected xmlenc.Encoding
	logger   *log.Logger
}

func exitf(f string, args ...any) {
	fmt.Fprintf(os.Stderr, f, args...)
	os.Exit(1)
}

func main() {
	flag.Parse()
	cfg := config{
		algo:   dashz,
		nbfse:  dashnbfse,
		quotas: nbfx.DefaultQuotas(),
		text:   dashtext,
	}
	if dashv {
		cfg.logger = log.New(os.Stderr, "xbdump: ", 0)
	}
	switch dashdict {
	case "nbfs":
		cfg.dict = nbfx.NBFS()
	case "none":
	default:
		exitf("unknown dictionary %q\n", dashdict)
	}
	if dashquotas != "" {
		buf, err := os.ReadFile(dashquotas)
		if err != nil {
			exitf("%s\n", err)
		}
		cfg.quotas, err = nbfx.ParseQuotas(buf)
		if err != nil {
			exitf("%s: %s\n", dashquotas, err)
		}
	}
	if dashenc != "" {
		var err error
		cfg.expected, err = xmlenc.ParseEncoding(dashenc)
		if err != nil {
			exitf("%s\n", err)
		}
	}
	outenc, err := xmlenc.ParseEncoding(dashout)
	if err != nil {
		exitf("%s\n", err)
	}
	// hide Close so that closing the
	// output does not close stdout
	o, err := xmlenc.NewWriter(struct{ io.Writer }{os.Stdout}, outenc, dashbom)
	if err != nil {
		exitf("%s\n", err)
	}

	args := flag.Args()
	if len(args) == 0 {
		args = []string{"-"}
	}
	for _, arg := range args {
		var in *os.File
		if arg == "-" {
			in = os.Stdin
		} else {
			in, err = os.Open(arg)
			if err != nil {
				exitf("can't open %q: %s\n", arg, err)
			}
		}
		err = dump(&cfg, in, o)
		in.Close()
		if err != nil {
			exitf("input %s: %s\n", arg, err)
		}
	}
	if err := o.Close(); err != nil {
		exitf("%s\n", err)
	}
}

// dump writes the XML text of the document in src to dst.
func dump(cfg *config, src io.Reader, dst io.Writer) error {
	if cfg.algo != "" {
		zr, err := compr.NewReader(cfg.algo, src)
		if err != nil {
			return err
		}
		defer zr.Close()
		src = zr
	}
	if cfg.text {
		return transcode(cfg, src, dst)
	}

	var r nbfx.BufferReader
	var session nbfx.ReaderSession
	r.SetStream(src, cfg.dict, &session)
	w := newWalker(&r, cfg.quotas, dst)
	if cfg.nbfse {
		if err := w.readStringTable(&session); err != nil {
			return err
		}
		if cfg.logger != nil {
			cfg.logger.Printf("%d session strings", session.Len())
		}
	}
	if err := w.run(); err != nil {
		return err
	}
	if cfg.logger != nil {
		cfg.logger.Printf("%d records", w.records)
	}
	_, err := io.WriteString(dst, "\n")
	return err
}

func transcode(cfg *config, src io.Reader, dst io.Writer) error {
	var opts []xmlenc.Option
	if cfg.expected != xmlenc.None {
		opts = append(opts, xmlenc.WithExpected(cfg.expected))
	}
	if cfg.logger != nil {
		opts = append(opts, xmlenc.WithLogger(cfg.logger))
	}
	rd, err := xmlenc.NewReader(src, opts...)
	if err != nil {
		return err
	}
	_, err = io.Copy(dst, rd)
	return err
}
