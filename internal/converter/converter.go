// =============================================================================
// csvmap - Converter Module
// =============================================================================
//
// This module maps one input file to one output file according to a
// profile. Records stream from a keyed reader through the profile's
// transformer into a keyed writer; nothing holds the whole file in memory
// except a minimized writer, which spills to disk past its threshold.
//
// CONVERSION PIPELINE:
//   1. Resolve the profile into a Plan (template, rules, options)
//   2. Open the keyed reader with the transformer as its handler
//   3. Read the first record, which fixes the output field list
//   4. Write every surviving record
//   5. Close the writer (a minimized writer emits its header here)
//   6. Archive the input and a copy of the output
//
// CONCURRENCY:
//   A Converter owns its reader and writer. Separate files may be converted
//   concurrently by separate Converters.
//
// =============================================================================

package converter

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/ginjaninja78/csvmap/internal/config"
	"github.com/ginjaninja78/csvmap/internal/fieldtemplate"
	"github.com/ginjaninja78/csvmap/internal/validation"
	"github.com/ginjaninja78/csvmap/pkg/csvmap"
	"github.com/ginjaninja78/csvmap/pkg/rowio"
	"github.com/ginjaninja78/csvmap/pkg/utils"
)

// =============================================================================
// RESULT STRUCTURE
// =============================================================================

// Result represents the outcome of processing a single file.
type Result struct {
	// FilePath is the input file.
	FilePath string

	// Profile is the name of the profile used.
	Profile string

	// OutputFile is the written file. Empty if processing failed.
	OutputFile string

	// ArchivePath is where the input was archived, if it was.
	ArchivePath string

	Success bool

	// Error is nil if processing succeeded.
	Error error

	Stats ProcessingStats
}

// ProcessingStats contains statistics about the processing.
type ProcessingStats struct {
	// RecordsRead counts records the reader produced, filtered or not.
	RecordsRead int

	// RecordsFiltered counts records dropped by profile filters.
	RecordsFiltered int

	// RecordsWritten counts records handed to the writer.
	RecordsWritten int

	// RowsSkipped counts rows skipped for recoverable errors.
	RowsSkipped int

	// Fields is the header that was written.
	Fields []string

	// Problems lists the skipped rows.
	Problems []utils.ErrorLogEntry

	ProcessingTime time.Duration
}

// =============================================================================
// CONVERTER STRUCTURE
// =============================================================================

// Converter handles the conversion of a single input file.
type Converter struct {
	inputPath  string
	profile    *config.Profile
	mainConfig *config.MainConfig
	files      *utils.FileManager
	logger     *slog.Logger
}

// New creates a new Converter.
//
// PARAMETERS:
//   - inputPath: The input file.
//   - profile: The profile matched to the file.
//   - mainConfig: The main application configuration.
//   - logger: The logger; nil discards.
func New(inputPath string, profile *config.Profile, mainConfig *config.MainConfig, logger *slog.Logger) *Converter {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}

	files := utils.NewFileManager(mainConfig.InputDir, mainConfig.OutputDir, mainConfig.InputArchiveDir, mainConfig.OutputArchiveDir)
	files.ArchiveOnSuccess = !mainConfig.DisableArchive

	return &Converter{
		inputPath:  inputPath,
		profile:    profile,
		mainConfig: mainConfig,
		files:      files,
		logger:     logger.With("file", filepath.Base(inputPath), "profile", profile.Name),
	}
}

// =============================================================================
// MAIN PROCESSING FUNCTION
// =============================================================================

// Run converts the file into the output directory and archives it.
//
// A failed conversion removes its partial output and leaves the input in
// place. Archival failures are logged and do not fail the file.
func (c *Converter) Run(ctx context.Context) Result {
	startTime := time.Now()
	result := Result{
		FilePath: c.inputPath,
		Profile:  c.profile.Name,
	}

	c.logger.Info("processing file")

	plan, err := NewPlan(c.profile, c.mainConfig)
	if err != nil {
		result.Error = fmt.Errorf("failed to resolve profile: %w", err)
		return result
	}

	base := filepath.Base(c.inputPath)
	outputPath := c.files.OutputPath(c.mainConfig.OutputNameFormat, map[string]string{
		"profile":  c.profile.Name,
		"original": strings.TrimSuffix(base, filepath.Ext(base)),
	})

	stats, err := Convert(ctx, plan, c.inputPath, outputPath, c.logger)
	result.Stats = stats
	if err != nil {
		if rmErr := os.Remove(outputPath); rmErr != nil && !errors.Is(rmErr, os.ErrNotExist) {
			c.logger.Warn("failed to remove partial output", "output", outputPath, "error", rmErr)
		}
		result.Error = err
		return result
	}

	result.OutputFile = outputPath
	c.logger.Info("wrote output", "output", outputPath, "records", stats.RecordsWritten, "fields", stats.Fields)

	if archived, err := c.files.ArchiveInputFile(c.inputPath); err != nil {
		c.logger.Warn("failed to archive input", "error", err)
	} else {
		result.ArchivePath = archived
	}
	if _, err := c.files.ArchiveOutputFile(outputPath); err != nil {
		c.logger.Warn("failed to archive output", "error", err)
	}

	result.Success = true
	result.Stats.ProcessingTime = time.Since(startTime)
	return result
}

// Convert streams src to dst under plan. src and dst accept anything the
// csvmap entry points accept: paths, open streams or buffers.
//
// RETURNS:
//   - The statistics gathered so far, even on failure.
//   - An error for configuration problems, fatal read errors, recoverable
//     read or validation errors when the plan does not skip invalid rows,
//     write errors, or context cancellation.
func Convert(ctx context.Context, plan *Plan, src, dst any, logger *slog.Logger) (ProcessingStats, error) {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	var stats ProcessingStats

	var handler csvmap.Handler[map[string]string]
	if !plan.Transformer.Empty() {
		handler = plan.Transformer.Handler(func(line int) {
			stats.RecordsRead++
			stats.RecordsFiltered++
			logger.Debug("filtered record", "line", line)
		})
	}

	readOpts := append(plan.ReadOptions(), csvmap.WithLogger(logger))
	if handler != nil {
		readOpts = append(readOpts, csvmap.WithHandler(handler))
	}
	r, err := csvmap.ReadKeyed(src, plan.InputFields, readOpts...)
	if err != nil {
		return stats, fmt.Errorf("failed to open input: %w", err)
	}
	defer r.Close()

	skip := func(err error) {
		stats.RowsSkipped++
		stats.Problems = append(stats.Problems, utils.ErrorLogEntry{
			Timestamp:    time.Now(),
			FileName:     sourceName(src),
			ErrorType:    Classify(err),
			ErrorMessage: err.Error(),
			LineNumber:   r.Line(),
		})
		logger.Warn("skipped invalid row", "line", r.Line(), "error", err)
	}

	var w *csvmap.KeyedWriter
	defer func() {
		if w != nil {
			w.Close()
		}
	}()

	for {
		if err := ctx.Err(); err != nil {
			return stats, err
		}

		rec, err := r.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			if plan.SkipInvalidRows && csvmap.Recoverable(err) {
				skip(err)
				continue
			}
			return stats, fmt.Errorf("failed to read record: %w", err)
		}
		stats.RecordsRead++

		if err := plan.Validator.Validate(r.Line(), rec); err != nil {
			if plan.SkipInvalidRows {
				skip(err)
				continue
			}
			return stats, fmt.Errorf("failed to validate record: %w", err)
		}

		if w == nil {
			if w, err = openWriter(plan, dst, r, logger); err != nil {
				return stats, err
			}
		}
		if err := w.Write(rec); err != nil {
			return stats, fmt.Errorf("failed to write record (line %d): %w", r.Line(), err)
		}
		stats.RecordsWritten++
	}

	if w == nil {
		if plan.OutputFields == nil && r.Keys() == nil {
			// No header was ever read, so there is nothing to name.
			return stats, writeEmpty(plan, dst)
		}
		if w, err = openWriter(plan, dst, r, logger); err != nil {
			return stats, err
		}
	}

	if err := w.Close(); err != nil {
		return stats, fmt.Errorf("failed to close output: %w", err)
	}
	stats.Fields = w.Fields()
	return stats, nil
}

// openWriter opens the keyed writer once the output field list is known.
func openWriter(plan *Plan, dst any, r *csvmap.KeyedReader, logger *slog.Logger) (*csvmap.KeyedWriter, error) {
	fields := plan.OutputFields
	if fields == nil {
		fields = r.Keys()
	}

	w, err := csvmap.WriteKeyed(dst, fields, append(plan.WriteOptions(), csvmap.WithLogger(logger))...)
	if err != nil {
		return nil, fmt.Errorf("failed to open output: %w", err)
	}
	return w, nil
}

func sourceName(src any) string {
	switch v := src.(type) {
	case string:
		return filepath.Base(v)
	case interface{ Name() string }:
		return filepath.Base(v.Name())
	default:
		return ""
	}
}

// writeEmpty creates an empty output.
func writeEmpty(plan *Plan, dst any) error {
	w, err := csvmap.WriteRows(dst, plan.WriteOptions()...)
	if err != nil {
		return fmt.Errorf("failed to open output: %w", err)
	}
	return w.Close()
}

// =============================================================================
// ERROR CLASSIFICATION
// =============================================================================

// Classify names the kind of a conversion error for logs and summaries.
func Classify(err error) string {
	var (
		arity *csvmap.ArityError
		bind  *csvmap.BindError
		rec   *validation.RecordError
		parse *rowio.ParseError
		ioErr *rowio.IOError
	)

	switch {
	case err == nil:
		return ""
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return "canceled"
	case errors.As(err, &arity):
		return "arity"
	case errors.As(err, &bind):
		return "bind"
	case errors.As(err, &rec):
		return "validation"
	case errors.Is(err, csvmap.ErrUnknownFields) && !errors.Is(err, csvmap.ErrConfig):
		return "unknown_fields"
	case errors.Is(err, csvmap.ErrConfig), errors.Is(err, config.ErrInvalid),
		errors.Is(err, fieldtemplate.ErrTemplate), errors.Is(err, validation.ErrInvalidRule):
		return "config"
	case errors.As(err, &parse):
		return "parse"
	case errors.As(err, &ioErr):
		return "io"
	default:
		return "other"
	}
}
