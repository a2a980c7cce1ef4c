// =============================================================================
// csvmap - Batch File Handling
// =============================================================================
//
// FileManager owns the four working directories of a batch run and the file
// moves between them:
//
//   input/           files waiting to be mapped (matched by profile patterns)
//   output/          mapped CSV files, summary and error logs
//   input_archive/   inputs moved here once mapped
//   output_archive/  copies of the mapped outputs
//
// A file that fails to map is never moved. Archived names that would
// overwrite an earlier archive get a short random suffix.
//
// =============================================================================

package utils

import (
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"
)

// FileManager moves files between the batch directories.
type FileManager struct {
	InputDir         string
	OutputDir        string
	InputArchiveDir  string
	OutputArchiveDir string

	// UseTimestampSubdirs files archives under YYYY/MM/DD.
	UseTimestampSubdirs bool

	// ArchiveOnSuccess enables archiving. When false the Archive methods
	// return the path unchanged.
	ArchiveOnSuccess bool

	// now is replaced in tests.
	now func() time.Time
}

// NewFileManager returns a FileManager with archiving enabled.
func NewFileManager(inputDir, outputDir, inputArchiveDir, outputArchiveDir string) *FileManager {
	return &FileManager{
		InputDir:         inputDir,
		OutputDir:        outputDir,
		InputArchiveDir:  inputArchiveDir,
		OutputArchiveDir: outputArchiveDir,
		ArchiveOnSuccess: true,
		now:              time.Now,
	}
}

// EnsureDirectories creates any missing batch directory.
func (fm *FileManager) EnsureDirectories() error {
	for _, dir := range []string{fm.InputDir, fm.OutputDir, fm.InputArchiveDir, fm.OutputArchiveDir} {
		if dir == "" {
			continue
		}
		if err := os.MkdirAll(dir, 0755); err != nil {
			return fmt.Errorf("failed to create directory %s: %w", dir, err)
		}
	}
	return nil
}

// =============================================================================
// DISCOVERY
// =============================================================================

// DiscoverInputFiles lists the regular files directly under the input
// directory whose names match any of the patterns.
//
// PARAMETERS:
//   - patterns: filepath.Match patterns applied to the base name. None means
//     "*.csv".
//
// RETURNS:
//   - Matching paths in name order, each listed once.
//   - An error if a pattern is malformed or the directory cannot be read.
func (fm *FileManager) DiscoverInputFiles(patterns ...string) ([]string, error) {
	if len(patterns) == 0 {
		patterns = []string{"*.csv"}
	}
	for _, p := range patterns {
		if _, err := filepath.Match(p, ""); err != nil {
			return nil, fmt.Errorf("invalid file pattern %q: %w", p, err)
		}
	}

	entries, err := os.ReadDir(fm.InputDir)
	if err != nil {
		return nil, fmt.Errorf("failed to scan input directory: %w", err)
	}

	var paths []string
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		for _, p := range patterns {
			if ok, _ := filepath.Match(p, e.Name()); ok {
				paths = append(paths, filepath.Join(fm.InputDir, e.Name()))
				break
			}
		}
	}
	return paths, nil
}

// =============================================================================
// ARCHIVAL
// =============================================================================

// ArchiveInputFile moves a mapped input into the input archive and returns
// its new path.
func (fm *FileManager) ArchiveInputFile(path string) (string, error) {
	return fm.archive(fm.InputArchiveDir, path, true)
}

// ArchiveOutputFile copies a mapped output into the output archive and
// returns the copy's path. The output stays where it is.
func (fm *FileManager) ArchiveOutputFile(path string) (string, error) {
	return fm.archive(fm.OutputArchiveDir, path, false)
}

func (fm *FileManager) archive(dir, path string, move bool) (string, error) {
	if !fm.ArchiveOnSuccess {
		return path, nil
	}

	if fm.UseTimestampSubdirs {
		dir = filepath.Join(dir, fm.clock().Format(filepath.FromSlash("2006/01/02")))
	}
	if err := os.MkdirAll(dir, 0755); err != nil {
		return "", fmt.Errorf("failed to create archive directory: %w", err)
	}
	target := freeName(dir, filepath.Base(path))

	if move {
		if err := os.Rename(path, target); err == nil {
			return target, nil
		}
		// Rename fails across devices.
	}
	if err := copyFile(path, target); err != nil {
		return "", fmt.Errorf("failed to copy %s to archive: %w", filepath.Base(path), err)
	}
	if move {
		if err := os.Remove(path); err != nil {
			return "", fmt.Errorf("failed to remove archived input: %w", err)
		}
	}
	return target, nil
}

func (fm *FileManager) clock() time.Time {
	if fm.now != nil {
		return fm.now()
	}
	return time.Now()
}

// freeName returns dir/name, or dir/stem_xxxxxxxx.ext when that is taken.
func freeName(dir, name string) string {
	target := filepath.Join(dir, name)
	if _, err := os.Lstat(target); errors.Is(err, os.ErrNotExist) {
		return target
	}
	ext := filepath.Ext(name)
	stem := strings.TrimSuffix(name, ext)
	return filepath.Join(dir, stem+"_"+uuid.NewString()[:8]+ext)
}

// copyFile writes src to a temporary file beside dst and renames it into
// place, so dst is either complete or absent.
func copyFile(src, dst string) (err error) {
	in, err := os.Open(src)
	if err != nil {
		return err
	}
	defer in.Close()

	tmp, err := os.CreateTemp(filepath.Dir(dst), ".archive-*")
	if err != nil {
		return err
	}
	defer func() {
		if err != nil {
			tmp.Close()
			os.Remove(tmp.Name())
		}
	}()

	if _, err = io.Copy(tmp, in); err != nil {
		return err
	}
	if err = tmp.Sync(); err != nil {
		return err
	}
	if err = tmp.Close(); err != nil {
		return err
	}
	return os.Rename(tmp.Name(), dst)
}

// =============================================================================
// OUTPUT NAMING
// =============================================================================

// OutputPath returns the output directory joined with a generated name.
func (fm *FileManager) OutputPath(format string, params map[string]string) string {
	return filepath.Join(fm.OutputDir, GenerateOutputFileName(format, params))
}

// GenerateOutputFileName expands an output name format.
//
// PARAMETERS:
//   - format: The name with placeholders:
//     {uuid}      - a random UUID
//     {timestamp} - YYYYMMDD_HHMMSS
//     {date}      - YYYYMMDD
//     {time}      - HHMMSS
//     {KEY}       - params[KEY], e.g. {profile} or {original}
//   - params: Extra placeholder values.
//
// RETURNS:
//   - The expanded name, with ".csv" appended unless it already ends so
//     (in any case).
//
// EXAMPLE:
//
//	GenerateOutputFileName("{profile}_{date}", map[string]string{"profile": "orders"})
//	// "orders_20260119.csv"
func GenerateOutputFileName(format string, params map[string]string) string {
	now := time.Now()
	pairs := []string{
		"{uuid}", uuid.NewString(),
		"{timestamp}", now.Format("20060102_150405"),
		"{date}", now.Format("20060102"),
		"{time}", now.Format("150405"),
	}
	for k, v := range params {
		pairs = append(pairs, "{"+k+"}", v)
	}

	name := strings.NewReplacer(pairs...).Replace(format)
	if !strings.EqualFold(filepath.Ext(name), ".csv") {
		name += ".csv"
	}
	return name
}
