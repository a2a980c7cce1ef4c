package spill

import (
	"bufio"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/google/uuid"
)

// DiskStore holds records in a temporary file, one JSON array per line.
// JSON keeps every value byte-exact, including embedded CR/LF that a CSV
// round trip would normalise.
type DiskStore struct {
	file     *os.File
	buf      *bufio.Writer
	enc      *json.Encoder
	count    int
	released bool
}

// NewDiskStore creates a store backed by a new temporary file in dir. An
// empty dir selects the system temporary directory.
func NewDiskStore(dir string) (*DiskStore, error) {
	if dir == "" {
		dir = os.TempDir()
	}
	path := filepath.Join(dir, "csvmap-spill-"+uuid.NewString()+".jsonl")

	f, err := os.OpenFile(path, os.O_RDWR|os.O_CREATE|os.O_EXCL, 0o600)
	if err != nil {
		return nil, fmt.Errorf("failed to create spill file: %w", err)
	}

	buf := bufio.NewWriter(f)
	return &DiskStore{
		file: f,
		buf:  buf,
		enc:  json.NewEncoder(buf),
	}, nil
}

// Path returns the location of the backing file.
func (d *DiskStore) Path() string {
	return d.file.Name()
}

func (d *DiskStore) Append(record []string) error {
	if d.released {
		return ErrReleased
	}
	if record == nil {
		record = []string{}
	}
	if err := d.enc.Encode(record); err != nil {
		return fmt.Errorf("failed to write spill record: %w", err)
	}
	d.count++
	return nil
}

func (d *DiskStore) Iterate(fn func(record []string) error) error {
	if d.released {
		return ErrReleased
	}
	if err := d.buf.Flush(); err != nil {
		return fmt.Errorf("failed to flush spill file: %w", err)
	}
	if _, err := d.file.Seek(0, io.SeekStart); err != nil {
		return fmt.Errorf("failed to rewind spill file: %w", err)
	}
	defer d.file.Seek(0, io.SeekEnd)

	dec := json.NewDecoder(bufio.NewReader(d.file))
	for {
		var record []string
		err := dec.Decode(&record)
		if errors.Is(err, io.EOF) {
			return nil
		}
		if err != nil {
			return fmt.Errorf("failed to read spill record: %w", err)
		}
		if err := fn(record); err != nil {
			return err
		}
	}
}

func (d *DiskStore) Len() int {
	return d.count
}

// Release closes and removes the backing file.
func (d *DiskStore) Release() error {
	if d.released {
		return nil
	}
	d.released = true

	closeErr := d.file.Close()
	if err := os.Remove(d.file.Name()); err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("failed to remove spill file: %w", err)
	}
	if closeErr != nil {
		return fmt.Errorf("failed to close spill file: %w", closeErr)
	}
	return nil
}
