// =============================================================================
// csvmap - Keyed Command
// =============================================================================
//
// COMMAND USAGE:
//   csvmap keyed FILE [flags]
//
// Prints the records of FILE as a YAML sequence of mappings. Keys follow
// the field order; rest keys follow in sorted order.
//
//   - line: 2
//     record:
//       id: "1"
//       name: ann
//
// Records with the wrong number of values stop the command unless
// --skip-invalid is set, in which case they are reported on stderr.
//
// =============================================================================

package cmd

import (
	"slices"
	"strconv"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/ginjaninja78/csvmap/pkg/csvmap"
)

var (
	keyedCSV         csvFlags
	keyedFields      []string
	keyedRename      []string
	keyedRestKey     string
	keyedRestVal     string
	keyedKeepHeaders bool
	keyedSkipInvalid bool
)

var keyedCmd = &cobra.Command{
	Use:   "keyed FILE",
	Short: "Print the records of a delimited file as YAML",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		renames, err := parseRenames(keyedRename)
		if err != nil {
			return err
		}

		opts := append(keyedCSV.options(),
			csvmap.WithIgnoreRowsWithFields(!keyedKeepHeaders),
			csvmap.WithLogger(logger),
		)
		if renames != nil {
			opts = append(opts, csvmap.WithFieldRename(renames))
		}
		if cmd.Flags().Changed("rest-key") {
			opts = append(opts, csvmap.WithRestKey(keyedRestKey))
		}
		if cmd.Flags().Changed("rest-val") {
			opts = append(opts, csvmap.WithRestVal(keyedRestVal))
		}

		var fields []string
		if len(keyedFields) > 0 {
			fields = keyedFields
		}

		r, err := csvmap.ReadKeyed(source(args[0]), fields, opts...)
		if err != nil {
			return err
		}

		doc := &yaml.Node{Kind: yaml.SequenceNode}
		for rec, err := range r.All() {
			if err != nil {
				if keyedSkipInvalid && csvmap.Recoverable(err) {
					logger.Warn("skipped invalid row", "line", r.Line(), "error", err)
					continue
				}
				return err
			}
			doc.Content = append(doc.Content, recordNode(r.Line(), r.Keys(), rec))
		}

		enc := yaml.NewEncoder(cmd.OutOrStdout())
		enc.SetIndent(2)
		if err := enc.Encode(doc); err != nil {
			return err
		}
		return enc.Close()
	},
}

// recordNode renders one record as {line, record} with keys in field order.
func recordNode(line int, keys []string, rec map[string]string) *yaml.Node {
	body := &yaml.Node{Kind: yaml.MappingNode}
	add := func(key string) {
		if v, ok := rec[key]; ok {
			body.Content = append(body.Content, scalar(key), scalar(v))
		}
	}

	seen := make(map[string]bool, len(keys))
	for _, key := range keys {
		seen[key] = true
		add(key)
	}
	var rest []string
	for key := range rec {
		if !seen[key] {
			rest = append(rest, key)
		}
	}
	slices.Sort(rest)
	for _, key := range rest {
		add(key)
	}

	return &yaml.Node{Kind: yaml.MappingNode, Content: []*yaml.Node{
		scalar("line"), {Kind: yaml.ScalarNode, Tag: "!!int", Value: strconv.Itoa(line)},
		scalar("record"), body,
	}}
}

// scalar is a string node; the explicit tag keeps "1" or "true" quoted.
func scalar(s string) *yaml.Node {
	return &yaml.Node{Kind: yaml.ScalarNode, Tag: "!!str", Value: s}
}

func init() {
	rootCmd.AddCommand(keyedCmd)

	keyedCSV.register(keyedCmd, "", "input")
	flags := keyedCmd.Flags()
	flags.StringSliceVar(&keyedFields, "fields", nil, "Field names (default: taken from the first row)")
	flags.StringSliceVar(&keyedRename, "rename", nil, "Rename a field, as from=to (repeatable)")
	flags.StringVar(&keyedRestKey, "rest-key", "", "Collect surplus values under numbered keys with this prefix")
	flags.StringVar(&keyedRestVal, "rest-val", "", "Fill missing values with this value")
	flags.BoolVar(&keyedKeepHeaders, "keep-headers", false, "Keep rows that repeat the field names")
	flags.BoolVar(&keyedSkipInvalid, "skip-invalid", false, "Skip rows with the wrong number of values")
}
