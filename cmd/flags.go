package cmd

import (
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/ginjaninja78/csvmap/internal/config"
	"github.com/ginjaninja78/csvmap/pkg/csvmap"
	"github.com/ginjaninja78/csvmap/pkg/rowio"
)

// csvFlags are the dialect and encoding flags shared by the file commands.
type csvFlags struct {
	dialect        string
	delimiter      string
	encoding       string
	encodingErrors string
	lazyQuotes     bool
}

func (f *csvFlags) register(cmd *cobra.Command, prefix, what string) {
	flags := cmd.Flags()
	flags.StringVar(&f.dialect, prefix+"dialect", "", fmt.Sprintf("Dialect of the %s: %s", what, strings.Join(rowio.DialectNames(), ", ")))
	flags.StringVar(&f.delimiter, prefix+"delimiter", "", fmt.Sprintf("Delimiter of the %s (a character, or comma/tab/pipe/semicolon)", what))
	flags.StringVar(&f.encoding, prefix+"encoding", "", fmt.Sprintf("Encoding of the %s (e.g. utf-8, latin1, windows-1252, auto)", what))
	flags.StringVar(&f.encodingErrors, prefix+"encoding-errors", "strict", "Unencodable characters: strict or replace")
	if what == "input" {
		flags.BoolVar(&f.lazyQuotes, "lazy-quotes", false, "Accept malformed quoting in the input")
	}
}

// settings converts the flags into profile CSV settings.
func (f *csvFlags) settings() config.CSVSettings {
	s := config.CSVSettings{
		Dialect:        f.dialect,
		Delimiter:      f.delimiter,
		Encoding:       f.encoding,
		EncodingErrors: f.encodingErrors,
	}
	if f.lazyQuotes {
		strict := false
		s.Strict = &strict
	}
	return s
}

// options converts the flags into reader or writer options.
func (f *csvFlags) options() []csvmap.Option {
	var opts []csvmap.Option
	if f.dialect != "" {
		opts = append(opts, csvmap.WithDialectName(f.dialect))
	}
	if f.delimiter != "" {
		opts = append(opts, csvmap.WithDelimiter(f.delimiter))
	}
	if f.encoding != "" {
		opts = append(opts, csvmap.WithEncoding(f.encoding, f.encodingErrors))
	}
	if f.lazyQuotes {
		opts = append(opts, csvmap.WithStrict(false))
	}
	return opts
}

// source maps "-" to standard input.
func source(arg string) any {
	if arg == "-" {
		return os.Stdin
	}
	return arg
}

// parseRenames parses "from=to" pairs.
func parseRenames(pairs []string) (map[string]string, error) {
	if len(pairs) == 0 {
		return nil, nil
	}
	renames := make(map[string]string, len(pairs))
	for _, pair := range pairs {
		from, to, ok := strings.Cut(pair, "=")
		if !ok || from == "" || to == "" {
			return nil, fmt.Errorf("rename %q must be from=to", pair)
		}
		renames[from] = to
	}
	return renames, nil
}
