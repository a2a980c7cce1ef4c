// =============================================================================
// csvmap - Process Command
// =============================================================================
//
// This file defines the 'process' command, which maps every file in the
// input directory with the profile that matches its name.
//
// COMMAND USAGE:
//   csvmap process [flags]
//
// FLAGS:
//   --dry-run  : List the files and their profiles without processing them
//   --file     : Process only this file
//   --profile  : Process only files matched to this profile
//
// PROCESSING PIPELINE:
//   1. Load the main configuration and the profiles
//   2. Discover input files matching any profile pattern
//   3. Match each file to the first profile (in file name order)
//   4. For each file (at most max_concurrency at once, started no faster
//      than max_files_per_second):
//      a. Resolve the profile into a plan (template, renames, rules)
//      b. Stream the records through transformations and filters
//      c. Write the mapped output file
//      d. Archive the input and the output
//   5. Write the summary and the error log
//
// =============================================================================

package cmd

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"time"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"
	"golang.org/x/time/rate"

	"github.com/ginjaninja78/csvmap/internal/config"
	"github.com/ginjaninja78/csvmap/internal/converter"
	"github.com/ginjaninja78/csvmap/pkg/utils"
)

// =============================================================================
// COMMAND FLAGS
// =============================================================================

// dryRun lists the work without doing it.
var dryRun bool

// filePath restricts the run to one file.
var filePath string

// profileName restricts the run to one profile.
var profileName string

// =============================================================================
// PROCESS COMMAND DEFINITION
// =============================================================================

var processCmd = &cobra.Command{
	Use:   "process",
	Short: "Map every file in the input directory",
	Long: `The process command scans the input directory for files matching a
profile, and maps each one into the output directory.

Files are processed concurrently, up to max_concurrency at once, and
max_files_per_second (when set) paces how fast they start. With
continue_on_error set, a failed file does not stop the others; otherwise the
first failure cancels the files still running.

On success:
  - The mapped CSV is placed in the output directory
  - The input is moved to the input archive, the output copied to the output archive

On error:
  - The partial output is removed and the input stays where it is
  - The failure is recorded in an error log in the output directory`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt)
		defer stop()
		return runProcess(ctx, cmd)
	},
}

func init() {
	rootCmd.AddCommand(processCmd)

	processCmd.Flags().BoolVar(&dryRun, "dry-run", false, "List the files and their profiles without processing them")
	processCmd.Flags().StringVar(&filePath, "file", "", "Process only this file")
	processCmd.Flags().StringVar(&profileName, "profile", "", "Process only files matched to this profile")
}

// =============================================================================
// MAIN PROCESSING FUNCTION
// =============================================================================

// job is one input file and the profile it matched.
type job struct {
	path    string
	profile *config.Profile
}

func runProcess(ctx context.Context, cmd *cobra.Command) error {
	startTime := time.Now()

	mainConfig, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	profiles, err := config.LoadProfiles(mainConfig.ProfilesDir)
	if err != nil {
		return fmt.Errorf("failed to load profiles: %w", err)
	}
	if len(profiles) == 0 {
		return fmt.Errorf("no profiles found in %s", mainConfig.ProfilesDir)
	}
	if profileName != "" && config.FindProfile(profiles, profileName) == nil {
		return fmt.Errorf("no profile named %q in %s", profileName, mainConfig.ProfilesDir)
	}
	logger.Info("loaded profiles", "count", len(profiles))

	jobs, unmatched, err := discoverJobs(mainConfig, profiles)
	if err != nil {
		return err
	}
	for _, path := range unmatched {
		logger.Warn("no matching profile", "file", filepath.Base(path))
	}
	if len(jobs) == 0 {
		logger.Info("no files to process", "input_dir", mainConfig.InputDir)
		return nil
	}

	if dryRun {
		out := cmd.OutOrStdout()
		for _, j := range jobs {
			fmt.Fprintf(out, "%s\t%s\n", j.path, j.profile.Name)
		}
		return nil
	}

	logger.Info("processing files", "count", len(jobs), "concurrency", mainConfig.MaxConcurrency)
	results := processJobs(ctx, mainConfig, jobs)

	summary := utils.ProcessingSummary{
		StartTime:  startTime,
		TotalFiles: len(jobs),
	}
	var problems []utils.ErrorLogEntry
	for _, result := range results {
		name := filepath.Base(result.FilePath)
		summary.RowsRead += result.Stats.RecordsRead
		summary.RecordsFiltered += result.Stats.RecordsFiltered
		summary.RowsSkipped += result.Stats.RowsSkipped
		problems = append(problems, result.Stats.Problems...)

		if !result.Success {
			summary.FailedFiles++
			summary.FailedFilesList = append(summary.FailedFilesList, utils.FailedFileInfo{
				InputFile:    result.FilePath,
				ErrorMessage: result.Error.Error(),
				ErrorType:    converter.Classify(result.Error),
			})
			problems = append(problems, utils.ErrorLogEntry{
				Timestamp:    time.Now(),
				FileName:     name,
				ErrorType:    converter.Classify(result.Error),
				ErrorMessage: result.Error.Error(),
			})
			logger.Error("file failed", "file", name, "profile", result.Profile, "error", result.Error)
			continue
		}

		summary.SuccessfulFiles++
		summary.RecordsWritten += result.Stats.RecordsWritten
		summary.ProcessedFiles = append(summary.ProcessedFiles, utils.ProcessedFileInfo{
			InputFile:      result.FilePath,
			OutputFile:     result.OutputFile,
			Profile:        result.Profile,
			ArchivePath:    result.ArchivePath,
			Fields:         result.Stats.Fields,
			RowsRead:       result.Stats.RecordsRead,
			RecordsWritten: result.Stats.RecordsWritten,
			ProcessTime:    result.Stats.ProcessingTime,
		})
	}
	summary.EndTime = time.Now()

	if path, err := utils.WriteSummaryLog(summary, mainConfig.OutputDir); err != nil {
		logger.Warn("failed to write summary", "error", err)
	} else {
		logger.Info("wrote summary", "path", path)
	}
	if path, err := utils.WriteErrorLog(problems, mainConfig.OutputDir); err != nil {
		logger.Warn("failed to write error log", "error", err)
	} else if path != "" {
		logger.Info("wrote error log", "path", path, "entries", len(problems))
	}

	logger.Info("processing complete",
		"files", summary.TotalFiles,
		"succeeded", summary.SuccessfulFiles,
		"failed", summary.FailedFiles,
		"elapsed", summary.EndTime.Sub(startTime),
	)

	if summary.FailedFiles > 0 {
		return fmt.Errorf("%d of %d file(s) failed", summary.FailedFiles, summary.TotalFiles)
	}
	return ctx.Err()
}

// =============================================================================
// HELPER FUNCTIONS
// =============================================================================

// discoverJobs finds the input files and matches each to a profile.
//
// RETURNS:
//   - The matched files, narrowed by --file and --profile.
//   - Files matching no profile.
//   - An error if the input directory cannot be read.
func discoverJobs(mainConfig *config.MainConfig, profiles []*config.Profile) ([]job, []string, error) {
	var paths []string
	if filePath != "" {
		paths = []string{filePath}
	} else {
		var patterns []string
		for _, p := range profiles {
			patterns = append(patterns, p.FileMatchingPatterns...)
		}
		files := utils.NewFileManager(mainConfig.InputDir, mainConfig.OutputDir, mainConfig.InputArchiveDir, mainConfig.OutputArchiveDir)
		var err error
		if paths, err = files.DiscoverInputFiles(patterns...); err != nil {
			return nil, nil, fmt.Errorf("failed to discover input files: %w", err)
		}
	}

	var jobs []job
	var unmatched []string
	for _, path := range paths {
		profile := config.MatchProfile(profiles, path)
		switch {
		case profile == nil:
			unmatched = append(unmatched, path)
		case profileName == "" || profile.Name == profileName:
			jobs = append(jobs, job{path: path, profile: profile})
		}
	}
	return jobs, unmatched, nil
}

// processJobs runs the jobs with at most MaxConcurrency in flight, started
// no faster than MaxFilesPerSecond. Results keep the order of jobs. Unless
// ContinueOnError is set, the first failure cancels the jobs that have not
// finished.
func processJobs(ctx context.Context, mainConfig *config.MainConfig, jobs []job) []converter.Result {
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(max(mainConfig.MaxConcurrency, 1))

	var limiter *rate.Limiter
	if mainConfig.MaxFilesPerSecond > 0 {
		limiter = rate.NewLimiter(rate.Limit(mainConfig.MaxFilesPerSecond), 1)
	}

	results := make([]converter.Result, len(jobs))
	for i, j := range jobs {
		g.Go(func() error {
			results[i] = converter.Result{FilePath: j.path, Profile: j.profile.Name}
			if err := gctx.Err(); err != nil {
				results[i].Error = err
				return nil
			}
			if limiter != nil {
				if err := limiter.Wait(gctx); err != nil {
					results[i].Error = err
					return nil
				}
			}

			conv := converter.New(j.path, j.profile, mainConfig, logger)
			results[i] = conv.Run(gctx)
			if !results[i].Success && !mainConfig.ContinueOnError {
				return results[i].Error
			}
			return nil
		})
	}
	// Failures are reported through results.
	_ = g.Wait()

	return results
}
