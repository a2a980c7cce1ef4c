// =============================================================================
// csvmap - Convert Command
// =============================================================================
//
// COMMAND USAGE:
//   csvmap convert INPUT OUTPUT [flags]
//
// Maps one file. With --profile the named profile from the profiles
// directory is used (this reads --config); otherwise the flags describe an
// ad-hoc profile. INPUT may be "-" for standard input and OUTPUT "-" for
// standard output. Files are not archived.
//
// EXAMPLES:
//   csvmap convert export.csv clean.csv --fields id,name,email --minimize
//   csvmap convert export.txt out.csv --input-delimiter pipe --rename cust=customer
//   csvmap convert export.csv out.csv --profile orders
//
// =============================================================================

package cmd

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/ginjaninja78/csvmap/internal/config"
	"github.com/ginjaninja78/csvmap/internal/converter"
)

var (
	convertProfile     string
	convertIn          csvFlags
	convertOut         csvFlags
	convertInFields    []string
	convertRename      []string
	convertRestVal     string
	convertFields      []string
	convertMinimize    bool
	convertInclude     []string
	convertExtras      string
	convertSkipInvalid bool
)

var convertCmd = &cobra.Command{
	Use:   "convert INPUT OUTPUT",
	Short: "Map one delimited file onto a declared field list",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		mainConfig := &config.MainConfig{}
		var profile *config.Profile

		if convertProfile != "" {
			var err error
			if mainConfig, err = loadConfig(cmd); err != nil {
				return err
			}
			profiles, err := config.LoadProfiles(mainConfig.ProfilesDir)
			if err != nil {
				return fmt.Errorf("failed to load profiles: %w", err)
			}
			if profile = config.FindProfile(profiles, convertProfile); profile == nil {
				return fmt.Errorf("no profile named %q in %s", convertProfile, mainConfig.ProfilesDir)
			}
		} else {
			var err error
			if profile, err = adhocProfile(cmd); err != nil {
				return err
			}
		}

		plan, err := converter.NewPlan(profile, mainConfig)
		if err != nil {
			return err
		}

		var dst any = args[1]
		if args[1] == "-" {
			dst = cmd.OutOrStdout()
		}

		stats, err := converter.Convert(cmd.Context(), plan, source(args[0]), dst, logger)
		if err != nil {
			if path, ok := dst.(string); ok {
				os.Remove(path)
			}
			return err
		}

		logger.Info("converted",
			"input", args[0],
			"output", args[1],
			"read", stats.RecordsRead,
			"written", stats.RecordsWritten,
			"filtered", stats.RecordsFiltered,
			"skipped", stats.RowsSkipped,
			"fields", stats.Fields,
		)
		return nil
	},
}

// adhocProfile builds a profile from the command line flags.
func adhocProfile(cmd *cobra.Command) (*config.Profile, error) {
	renames, err := parseRenames(convertRename)
	if err != nil {
		return nil, err
	}

	profile := &config.Profile{
		Name: "adhoc",
		Input: config.InputSettings{
			CSV:             convertIn.settings(),
			Fields:          convertInFields,
			FieldRename:     renames,
			SkipInvalidRows: convertSkipInvalid,
		},
		Output: config.OutputSettings{
			CSV:          convertOut.settings(),
			Fields:       convertFields,
			Minimize:     convertMinimize,
			Include:      convertInclude,
			ExtrasAction: convertExtras,
		},
	}
	if cmd.Flags().Changed("rest-val") {
		profile.Input.RestVal = &convertRestVal
		profile.Output.RestVal = convertRestVal
	}
	return profile, nil
}

func init() {
	rootCmd.AddCommand(convertCmd)

	convertIn.register(convertCmd, "input-", "input")
	convertOut.register(convertCmd, "output-", "output")

	flags := convertCmd.Flags()
	flags.StringVar(&convertProfile, "profile", "", "Use this profile from the profiles directory")
	flags.StringSliceVar(&convertInFields, "input-fields", nil, "Input field names (default: taken from the first row)")
	flags.StringSliceVar(&convertRename, "rename", nil, "Rename an input field, as from=to (repeatable)")
	flags.StringVar(&convertRestVal, "rest-val", "", "Fill missing values with this value")
	flags.StringSliceVar(&convertFields, "fields", nil, "Output field list (default: the input fields)")
	flags.BoolVar(&convertMinimize, "minimize", false, "Only write fields that records use")
	flags.StringSliceVar(&convertInclude, "include", nil, "Fields kept in a minimized header regardless")
	flags.StringVar(&convertExtras, "extras", "ignore", "Undeclared record fields: ignore or raise")
	flags.BoolVar(&convertSkipInvalid, "skip-invalid", false, "Skip rows with the wrong number of values")
}
