package spill

import "fmt"

// SpooledStore keeps records in memory until their approximate size passes
// a threshold, then moves everything to a DiskStore and continues there.
type SpooledStore struct {
	threshold int64
	dir       string
	mem       *MemoryStore
	disk      *DiskStore
	released  bool

	// OnSpill, if set, is called once with the record count when the store
	// moves to disk.
	OnSpill func(records int, path string)
}

// NewSpooledStore creates a spooled store. A threshold <= 0 selects
// DefaultThreshold; dir is where the spill file is created.
func NewSpooledStore(threshold int64, dir string) *SpooledStore {
	if threshold <= 0 {
		threshold = DefaultThreshold
	}
	return &SpooledStore{
		threshold: threshold,
		dir:       dir,
		mem:       NewMemoryStore(),
	}
}

// Spilled reports whether the store has moved to disk.
func (s *SpooledStore) Spilled() bool {
	return s.disk != nil
}

func (s *SpooledStore) Append(record []string) error {
	if s.released {
		return ErrReleased
	}
	if s.disk != nil {
		return s.disk.Append(record)
	}
	if err := s.mem.Append(record); err != nil {
		return err
	}
	if s.mem.Size() > s.threshold {
		return s.rollover()
	}
	return nil
}

// rollover copies the in-memory records to a new disk store.
func (s *SpooledStore) rollover() error {
	disk, err := NewDiskStore(s.dir)
	if err != nil {
		return err
	}
	if err := s.mem.Iterate(disk.Append); err != nil {
		disk.Release()
		return fmt.Errorf("failed to move records to disk: %w", err)
	}
	s.disk = disk
	s.mem.Release()
	if s.OnSpill != nil {
		s.OnSpill(disk.Len(), disk.Path())
	}
	return nil
}

func (s *SpooledStore) Iterate(fn func(record []string) error) error {
	if s.released {
		return ErrReleased
	}
	if s.disk != nil {
		return s.disk.Iterate(fn)
	}
	return s.mem.Iterate(fn)
}

func (s *SpooledStore) Len() int {
	if s.disk != nil {
		return s.disk.Len()
	}
	return s.mem.Len()
}

func (s *SpooledStore) Release() error {
	if s.released {
		return nil
	}
	s.released = true
	s.mem.Release()
	if s.disk != nil {
		return s.disk.Release()
	}
	return nil
}
