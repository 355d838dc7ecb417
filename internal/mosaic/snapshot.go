package mosaic

import (
	"encoding/json"
	"fmt"
	"os"
)

// Snapshot is the durable representation of a ready library: the ordered tile
// path list, the parallel average-color list, and the bucket index keyed by
// the canonical textual form of each bucket.
type Snapshot struct {
	TilePaths []string         `json:"tile_paths"`
	TileAvgs  [][3]uint8       `json:"tile_avgs"`
	Index     map[string][]int `json:"index"`
}

// Snapshot converts the runtime library into its durable form.
func (lib *Library) Snapshot() *Snapshot {
	s := &Snapshot{
		TilePaths: append([]string(nil), lib.Paths...),
		TileAvgs:  make([][3]uint8, len(lib.Avgs)),
		Index:     make(map[string][]int, len(lib.buckets)),
	}
	for i, a := range lib.Avgs {
		s.TileAvgs[i] = a
	}
	for key, idxs := range lib.buckets {
		s.Index[key.Encode()] = append([]int(nil), idxs...)
	}
	return s
}

// FromSnapshot rebuilds the runtime library from its durable form, decoding
// the textual bucket keys back into native tuples.
func FromSnapshot(s *Snapshot, quant int) (*Library, error) {
	if len(s.TilePaths) != len(s.TileAvgs) {
		return nil, fmt.Errorf("snapshot corrupt: %d paths vs %d colors", len(s.TilePaths), len(s.TileAvgs))
	}

	lib := NewLibrary(quant)
	lib.Paths = append([]string(nil), s.TilePaths...)
	lib.Avgs = make([]RGB, len(s.TileAvgs))
	for i, a := range s.TileAvgs {
		lib.Avgs[i] = a
	}
	for key, idxs := range s.Index {
		b, err := DecodeBucket(key)
		if err != nil {
			return nil, err
		}
		lib.buckets[b] = append([]int(nil), idxs...)
	}
	return lib, nil
}

// WriteSnapshot persists the snapshot as JSON at path.
func WriteSnapshot(path string, s *Snapshot) error {
	data, err := json.Marshal(s)
	if err != nil {
		return fmt.Errorf("marshal snapshot: %w", err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("write snapshot: %w", err)
	}
	return nil
}

// ReadSnapshot loads a snapshot previously written by WriteSnapshot.
func ReadSnapshot(path string) (*Snapshot, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read snapshot: %w", err)
	}
	var s Snapshot
	if err := json.Unmarshal(data, &s); err != nil {
		return nil, fmt.Errorf("unmarshal snapshot: %w", err)
	}
	return &s, nil
}
