// =============================================================================
// csvmap - Run Reports
// =============================================================================
//
// Every batch run leaves two reports in the output directory:
//
//   processing_summary_YYYYMMDD_HHMMSS.yaml  totals plus one entry per file
//   error_log_YYYYMMDD_HHMMSS.csv            one row per problem, only
//                                            written when there is one
//
// The error log is itself written with csvmap, so it opens in a spreadsheet
// and can be read back with ReadObjects[ErrorLogEntry].
//
// =============================================================================

package utils

import (
	"bufio"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/ginjaninja78/csvmap/pkg/csvmap"
)

// reportStamp formats the time in report file names.
const reportStamp = "20060102_150405"

// =============================================================================
// ERROR LOG
// =============================================================================

// ErrorLogEntry is one problem found during a run: a failed file, or a row
// that was skipped.
type ErrorLogEntry struct {
	Timestamp    time.Time `csv:"timestamp"`
	FileName     string    `csv:"file"`
	LineNumber   int       `csv:"line,omitempty"`
	ErrorType    string    `csv:"error_type"`
	ErrorMessage string    `csv:"message"`
}

// errorLogAlways are the error log columns kept even when empty. The line
// column only appears when some entry has a line number.
var errorLogAlways = []string{"timestamp", "file", "error_type", "message"}

// WriteErrorLog writes entries as CSV to a new file in outputDir.
//
// RETURNS:
//   - The log path, or "" when there are no entries.
//   - An error if the log cannot be written.
func WriteErrorLog(entries []ErrorLogEntry, outputDir string) (string, error) {
	if len(entries) == 0 {
		return "", nil
	}
	path := filepath.Join(outputDir, "error_log_"+time.Now().Format(reportStamp)+".csv")

	w, err := csvmap.WriteObjects[ErrorLogEntry](path, nil,
		csvmap.WithMinimize(true),
		csvmap.WithInclude(errorLogAlways...),
	)
	if err != nil {
		return "", fmt.Errorf("failed to create error log: %w", err)
	}
	for _, e := range entries {
		if err := w.Write(e); err != nil {
			w.Close()
			os.Remove(path)
			return "", fmt.Errorf("failed to write error log: %w", err)
		}
	}
	if err := w.Close(); err != nil {
		return "", fmt.Errorf("failed to write error log: %w", err)
	}
	return path, nil
}

// =============================================================================
// PROCESSING SUMMARY
// =============================================================================

// ProcessingSummary describes one batch run.
type ProcessingSummary struct {
	StartTime time.Time     `yaml:"start_time"`
	EndTime   time.Time     `yaml:"end_time"`
	Duration  time.Duration `yaml:"duration"`

	TotalFiles      int `yaml:"total_files"`
	SuccessfulFiles int `yaml:"successful_files"`
	FailedFiles     int `yaml:"failed_files"`

	RowsRead        int `yaml:"rows_read"`
	RecordsWritten  int `yaml:"records_written"`
	RecordsFiltered int `yaml:"records_filtered"`
	RowsSkipped     int `yaml:"rows_skipped"`

	ProcessedFiles  []ProcessedFileInfo `yaml:"processed,omitempty"`
	FailedFilesList []FailedFileInfo    `yaml:"failed,omitempty"`
}

// ProcessedFileInfo describes a file that was mapped.
type ProcessedFileInfo struct {
	InputFile      string        `yaml:"input"`
	OutputFile     string        `yaml:"output"`
	Profile        string        `yaml:"profile"`
	ArchivePath    string        `yaml:"archived_to,omitempty"`
	Fields         []string      `yaml:"fields,flow"`
	RowsRead       int           `yaml:"rows_read"`
	RecordsWritten int           `yaml:"records_written"`
	ProcessTime    time.Duration `yaml:"process_time"`
}

// FailedFileInfo describes a file that could not be mapped.
type FailedFileInfo struct {
	InputFile    string `yaml:"input"`
	ErrorType    string `yaml:"error_type"`
	ErrorMessage string `yaml:"error"`
}

// WriteSummaryLog writes the summary as YAML to a new file in outputDir.
// Duration is filled in from the start and end times when unset.
func WriteSummaryLog(summary ProcessingSummary, outputDir string) (string, error) {
	if summary.Duration == 0 {
		summary.Duration = summary.EndTime.Sub(summary.StartTime)
	}
	path := filepath.Join(outputDir, "processing_summary_"+time.Now().Format(reportStamp)+".yaml")

	file, err := os.Create(path)
	if err != nil {
		return "", fmt.Errorf("failed to create summary file: %w", err)
	}
	defer file.Close()

	buf := bufio.NewWriter(file)
	enc := yaml.NewEncoder(buf)
	enc.SetIndent(2)
	if err := enc.Encode(summary); err != nil {
		return "", fmt.Errorf("failed to write summary file: %w", err)
	}
	if err := enc.Close(); err != nil {
		return "", fmt.Errorf("failed to write summary file: %w", err)
	}
	if err := buf.Flush(); err != nil {
		return "", fmt.Errorf("failed to write summary file: %w", err)
	}
	return path, nil
}
