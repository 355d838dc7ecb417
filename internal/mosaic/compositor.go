package mosaic

import (
	"fmt"
	"image"
	"image/draw"

	"github.com/disintegration/imaging"
)

// Params are the per-job compositing knobs. They are validated upstream at
// job submission.
type Params struct {
	CellSize        int
	RepeatWindow    int
	ColorStrength   float64
	OverlayStrength float64
}

// Compositor assembles a mosaic from a library. Given identical library
// content and order, target pixels and params, the output is byte-identical.
type Compositor struct {
	lib   *Library
	tiles TileLoader
}

// NewCompositor creates a compositor over a ready library.
func NewCompositor(lib *Library, tiles TileLoader) *Compositor {
	return &Compositor{lib: lib, tiles: tiles}
}

// recentRing is a fixed-capacity ring of recently used tile indices, oldest
// evicted first. Capacity zero disables it.
type recentRing struct {
	buf  []int
	next int
}

func newRecentRing(capacity int) *recentRing {
	if capacity < 0 {
		capacity = 0
	}
	return &recentRing{buf: make([]int, 0, capacity)}
}

func (r *recentRing) push(v int) {
	if cap(r.buf) == 0 {
		return
	}
	if len(r.buf) < cap(r.buf) {
		r.buf = append(r.buf, v)
		return
	}
	r.buf[r.next] = v
	r.next = (r.next + 1) % cap(r.buf)
}

func (r *recentRing) values() []int {
	return r.buf
}

// Render builds the mosaic at the target's exact dimensions. Cells are
// processed in row-major order; boundary cells are clipped, never padded.
// Progress is reported through onProgress with the top percent reserved for
// the blend and encode phase.
func (c *Compositor) Render(target image.Image, p Params, onProgress func(pct int, msg string)) (*image.NRGBA, error) {
	if onProgress == nil {
		onProgress = func(int, string) {}
	}

	src := imaging.Clone(target)
	w, h := src.Bounds().Dx(), src.Bounds().Dy()
	out := image.NewNRGBA(image.Rect(0, 0, w, h))

	gridW := (w + p.CellSize - 1) / p.CellSize
	gridH := (h + p.CellSize - 1) / p.CellSize
	totalCells := gridW * gridH
	done := 0

	recent := newRecentRing(p.RepeatWindow)
	prevRow := make([]int, gridW)
	for i := range prevRow {
		prevRow[i] = -1
	}

	onProgress(0, "Building mosaic...")

	for gy := 0; gy < gridH; gy++ {
		y0 := gy * p.CellSize
		y1 := minInt(y0+p.CellSize, h)
		left := -1

		for gx := 0; gx < gridW; gx++ {
			x0 := gx * p.CellSize
			x1 := minInt(x0+p.CellSize, w)

			cell := imaging.Crop(src, image.Rect(x0, y0, x1, y1))
			avg := AverageColor(cell)

			forbidden := make(map[int]bool, p.RepeatWindow+2)
			for _, i := range recent.values() {
				forbidden[i] = true
			}
			if left >= 0 {
				forbidden[left] = true
			}
			if prevRow[gx] >= 0 {
				forbidden[prevRow[gx]] = true
			}

			best := c.lib.BestTile(avg, forbidden)

			tile, err := c.tiles.LoadTile(best, p.CellSize)
			if err != nil {
				return nil, fmt.Errorf("load tile %d: %w", best, err)
			}
			if p.ColorStrength > 0 {
				tile = correctTile(tile, c.lib.Avgs[best], avg, p.ColorStrength)
			}
			if cw, ch := x1-x0, y1-y0; cw != p.CellSize || ch != p.CellSize {
				tile = imaging.Crop(tile, image.Rect(0, 0, cw, ch))
			}
			draw.Draw(out, image.Rect(x0, y0, x1, y1), tile, tile.Bounds().Min, draw.Src)

			left = best
			prevRow[gx] = best
			recent.push(best)
			done++
		}

		onProgress(done*99/totalCells, "Building mosaic...")
	}

	if p.OverlayStrength > 0 {
		onProgress(99, "Blending overlay...")
		out = imaging.Overlay(out, src, image.Pt(0, 0), p.OverlayStrength)
	}
	return out, nil
}

func minInt(a, b int) int {
	if a < b {
		return a
	}
	return b
}
