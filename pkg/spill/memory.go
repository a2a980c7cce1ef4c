package spill

// MemoryStore holds records in memory.
type MemoryStore struct {
	records  [][]string
	size     int64
	released bool
}

// NewMemoryStore creates an empty in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{}
}

func (m *MemoryStore) Append(record []string) error {
	if m.released {
		return ErrReleased
	}
	m.records = append(m.records, append([]string(nil), record...))
	m.size += recordSize(record)
	return nil
}

func (m *MemoryStore) Iterate(fn func(record []string) error) error {
	if m.released {
		return ErrReleased
	}
	for _, rec := range m.records {
		if err := fn(rec); err != nil {
			return err
		}
	}
	return nil
}

func (m *MemoryStore) Len() int {
	return len(m.records)
}

// Size returns the approximate number of bytes held.
func (m *MemoryStore) Size() int64 {
	return m.size
}

func (m *MemoryStore) Release() error {
	m.records = nil
	m.size = 0
	m.released = true
	return nil
}
