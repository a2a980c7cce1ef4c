// =============================================================================
// csvmap - Rows Command
// =============================================================================
//
// COMMAND USAGE:
//   csvmap rows FILE [flags]
//
// Prints every logical record of FILE ("-" for standard input) after blank
// line and whitespace handling, one per line:
//
//   Line: 1 ["id", "name"]
//   Line: 2 ["1", "ann"]
//
// =============================================================================

package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/ginjaninja78/csvmap/pkg/csvmap"
)

var (
	rowsCSV            csvFlags
	rowsKeepWhitespace bool
	rowsKeepBlanks     bool
)

var rowsCmd = &cobra.Command{
	Use:   "rows FILE",
	Short: "Print the normalised rows of a delimited file",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		opts := append(rowsCSV.options(),
			csvmap.WithLeadingWS(rowsKeepWhitespace),
			csvmap.WithTrailingWS(rowsKeepWhitespace),
			csvmap.WithIgnoreBlanks(!rowsKeepBlanks),
			csvmap.WithLogger(logger),
		)

		r, err := csvmap.ReadRows(source(args[0]), opts...)
		if err != nil {
			return err
		}

		out := cmd.OutOrStdout()
		for rec, err := range r.All() {
			if err != nil {
				return err
			}
			fmt.Fprintln(out, rec)
		}
		return nil
	},
}

func init() {
	rootCmd.AddCommand(rowsCmd)

	rowsCSV.register(rowsCmd, "", "input")
	rowsCmd.Flags().BoolVar(&rowsKeepWhitespace, "keep-whitespace", false, "Keep leading and trailing whitespace")
	rowsCmd.Flags().BoolVar(&rowsKeepBlanks, "keep-blanks", false, "Print blank rows")
}
