package mosaic

import (
	"fmt"
	"math"
	"sort"
)

// DefaultQuant is the quantization width of the color bucket index.
const DefaultQuant = 8

// Search limits for the expanding-cube candidate lookup. The cap trades
// true-nearest-neighbor accuracy for latency on large libraries.
const (
	maxSearchRadius = 8
	candidateCap    = 2000
)

// Bucket identifies one quantized cell of the color cube.
type Bucket struct {
	R, G, B int
}

// BucketOf quantizes a color with the given bucket width.
func BucketOf(c RGB, quant int) Bucket {
	return Bucket{int(c[0]) / quant, int(c[1]) / quant, int(c[2]) / quant}
}

// Encode renders the canonical textual key used at the snapshot boundary.
func (b Bucket) Encode() string {
	return fmt.Sprintf("%d,%d,%d", b.R, b.G, b.B)
}

// DecodeBucket parses a canonical textual bucket key.
func DecodeBucket(s string) (Bucket, error) {
	var b Bucket
	if _, err := fmt.Sscanf(s, "%d,%d,%d", &b.R, &b.G, &b.B); err != nil {
		return Bucket{}, fmt.Errorf("invalid bucket key %q: %w", s, err)
	}
	return b, nil
}

// Library is the in-memory form of a tile library: parallel path and average
// color lists plus the quantized bucket index over tile positions.
type Library struct {
	Paths []string
	Avgs  []RGB

	quant   int
	buckets map[Bucket][]int
}

// NewLibrary creates an empty library with the given bucket width.
func NewLibrary(quant int) *Library {
	if quant <= 0 {
		quant = DefaultQuant
	}
	return &Library{
		quant:   quant,
		buckets: make(map[Bucket][]int),
	}
}

// Append adds a tile and files its index under the bucket of its average
// color. Each tile lands in exactly one bucket.
func (lib *Library) Append(path string, avg RGB) {
	idx := len(lib.Paths)
	lib.Paths = append(lib.Paths, path)
	lib.Avgs = append(lib.Avgs, avg)
	key := BucketOf(avg, lib.quant)
	lib.buckets[key] = append(lib.buckets[key], idx)
}

// Count returns the number of tiles.
func (lib *Library) Count() int {
	return len(lib.Paths)
}

// Quant returns the bucket width the index was built with.
func (lib *Library) Quant() int {
	return lib.quant
}

// candidates collects tile indices from buckets within a growing Chebyshev
// radius around the cell color, deduplicated in first-encountered order.
// Expansion stops once the cap is reached or the radius is exhausted.
func (lib *Library) candidates(c RGB) []int {
	center := BucketOf(c, lib.quant)
	seen := make(map[int]struct{})
	var cand []int

	for radius := 0; radius <= maxSearchRadius; radius++ {
		for dr := -radius; dr <= radius; dr++ {
			for dg := -radius; dg <= radius; dg++ {
				for db := -radius; db <= radius; db++ {
					if chebyshev(dr, dg, db) != radius {
						continue
					}
					key := Bucket{center.R + dr, center.G + dg, center.B + db}
					for _, i := range lib.buckets[key] {
						if _, ok := seen[i]; ok {
							continue
						}
						seen[i] = struct{}{}
						cand = append(cand, i)
					}
				}
			}
		}
		if len(cand) >= candidateCap {
			break
		}
	}
	return cand
}

// BestTile picks the tile closest to c that is not forbidden. The forbidden
// set is advisory: when every candidate is forbidden the best-ranked one is
// returned anyway. With no candidates at all the whole library is scanned.
func (lib *Library) BestTile(c RGB, forbidden map[int]bool) int {
	cand := lib.candidates(c)
	if len(cand) == 0 {
		return lib.scanNearest(c)
	}

	ranked := make([]int, len(cand))
	copy(ranked, cand)
	// Stable sort keeps first-encountered order on ties for determinism.
	sort.SliceStable(ranked, func(i, j int) bool {
		return dist2(c, lib.Avgs[ranked[i]]) < dist2(c, lib.Avgs[ranked[j]])
	})

	for _, i := range ranked {
		if !forbidden[i] {
			return i
		}
	}
	return ranked[0]
}

// scanNearest is the brute-force fallback over every tile.
func (lib *Library) scanNearest(c RGB) int {
	best, bestD := 0, math.MaxInt
	for i, a := range lib.Avgs {
		if d := dist2(c, a); d < bestD {
			best, bestD = i, d
		}
	}
	return best
}

func chebyshev(a, b, c int) int {
	if a < 0 {
		a = -a
	}
	if b < 0 {
		b = -b
	}
	if c < 0 {
		c = -c
	}
	m := a
	if b > m {
		m = b
	}
	if c > m {
		m = c
	}
	return m
}
