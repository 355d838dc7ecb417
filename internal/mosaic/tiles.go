package mosaic

import (
	"fmt"
	"image"

	"github.com/disintegration/imaging"
)

// TileLoader resolves a tile index to its pixels at the requested square size.
type TileLoader interface {
	LoadTile(index, size int) (*image.NRGBA, error)
}

// FileTileLoader reads thumbnails from disk and caches each tile at the
// requested size, so repeated picks of the same tile cost a single decode.
// It is not safe for concurrent use; each job gets its own loader.
type FileTileLoader struct {
	paths     []string
	thumbSize int
	cache     map[int]*image.NRGBA
}

// NewFileTileLoader creates a loader over the library's thumbnail paths.
// thumbSize is the stored thumbnail edge length.
func NewFileTileLoader(paths []string, thumbSize int) *FileTileLoader {
	return &FileTileLoader{
		paths:     paths,
		thumbSize: thumbSize,
		cache:     make(map[int]*image.NRGBA),
	}
}

// LoadTile returns the tile scaled to size. Callers must not mutate the
// returned image; correction and cropping clone first.
func (l *FileTileLoader) LoadTile(index, size int) (*image.NRGBA, error) {
	if t, ok := l.cache[index]; ok {
		return t, nil
	}
	if index < 0 || index >= len(l.paths) {
		return nil, fmt.Errorf("tile index %d out of range", index)
	}

	img, err := imaging.Open(l.paths[index])
	if err != nil {
		return nil, fmt.Errorf("open tile %s: %w", l.paths[index], err)
	}

	t := imaging.Clone(img)
	if size != l.thumbSize {
		t = imaging.Resize(t, size, size, imaging.Lanczos)
	}
	l.cache[index] = t
	return t, nil
}
