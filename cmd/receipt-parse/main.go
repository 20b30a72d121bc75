package main

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/peterbourgon/ff/v4"
	"github.com/peterbourgon/ff/v4/ffhelp"

	"github.com/zombor/closet-tracker/internal/scanning"
)

func main() {
	if err := run(os.Args[1:], os.Stdin, os.Stdout); err != nil {
		if errors.Is(err, ff.ErrHelp) {
			os.Exit(0)
		}
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

// run parses receipt text from --input or stdin and writes the items as JSON
func run(args []string, stdin io.Reader, stdout io.Writer) error {
	fs := ff.NewFlagSet("receipt-parse")
	var (
		input  = fs.StringLong("input", "", "Receipt text file (default: stdin)")
		pretty = fs.BoolLong("pretty", "Indent the JSON output")
	)

	if err := ff.Parse(fs, args); err != nil {
		fmt.Fprintf(os.Stderr, "%s\n", ffhelp.Flags(fs))
		return err
	}

	var (
		text []byte
		err  error
	)
	if *input != "" {
		text, err = os.ReadFile(*input)
	} else {
		text, err = io.ReadAll(stdin)
	}
	if err != nil {
		return fmt.Errorf("reading receipt: %w", err)
	}

	enc := json.NewEncoder(stdout)
	if *pretty {
		enc.SetIndent("", "  ")
	}
	return enc.Encode(scanning.ParseReceiptText(string(text)))
}
