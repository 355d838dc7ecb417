package mosaic

import (
	"bytes"
	"image"
	"image/color"
	"math/rand"
	"testing"

	"github.com/disintegration/imaging"
	"github.com/fogleman/gg"
)

// memTiles serves solid-color tiles from memory and records every pick.
type memTiles struct {
	tiles []*image.NRGBA
	picks []int
}

func (m *memTiles) LoadTile(index, size int) (*image.NRGBA, error) {
	m.picks = append(m.picks, index)
	t := m.tiles[index]
	if t.Bounds().Dx() != size {
		t = imaging.Resize(t, size, size, imaging.Box)
	}
	return t, nil
}

func solidTile(c RGB, size int) *image.NRGBA {
	return imaging.New(size, size, color.NRGBA{R: c[0], G: c[1], B: c[2], A: 255})
}

func buildLibrary(colors []RGB, size int) (*Library, *memTiles) {
	lib := NewLibrary(DefaultQuant)
	loader := &memTiles{}
	for _, c := range colors {
		lib.Append("", c)
		loader.tiles = append(loader.tiles, solidTile(c, size))
	}
	return lib, loader
}

func TestRenderPicksNearestTilePerCell(t *testing.T) {
	quadrants := []RGB{
		{255, 0, 0},
		{0, 255, 0},
		{0, 0, 255},
		{255, 255, 0},
	}

	dc := gg.NewContext(128, 128)
	for i, c := range quadrants {
		dc.SetRGB255(int(c[0]), int(c[1]), int(c[2]))
		dc.DrawRectangle(float64(i%2)*64, float64(i/2)*64, 64, 64)
		dc.Fill()
	}

	lib, loader := buildLibrary(quadrants, 64)
	comp := NewCompositor(lib, loader)

	out, err := comp.Render(dc.Image(), Params{CellSize: 64}, nil)
	if err != nil {
		t.Fatalf("Render: %v", err)
	}

	centers := []image.Point{{32, 32}, {96, 32}, {32, 96}, {96, 96}}
	for i, pt := range centers {
		want := quadrants[i]
		got := out.NRGBAAt(pt.X, pt.Y)
		if got.R != want[0] || got.G != want[1] || got.B != want[2] {
			t.Errorf("quadrant %d at %v: got %v, want %v", i, pt, got, want)
		}
	}
}

// Every pick must avoid the previous K picks as well as the left and above
// neighbors, as long as enough distinct candidates exist.
func TestRenderAvoidsRecentRepeats(t *testing.T) {
	const window = 5

	colors := make([]RGB, 40)
	for i := range colors {
		colors[i] = RGB{128, 128, 128}
	}
	lib, loader := buildLibrary(colors, 16)
	comp := NewCompositor(lib, loader)

	target := imaging.New(128, 64, color.NRGBA{R: 128, G: 128, B: 128, A: 255})
	if _, err := comp.Render(target, Params{CellSize: 16, RepeatWindow: window}, nil); err != nil {
		t.Fatalf("Render: %v", err)
	}

	const gridW = 8
	for i, pick := range loader.picks {
		for back := 1; back <= window && back <= i; back++ {
			if loader.picks[i-back] == pick {
				t.Fatalf("cell %d repeats tile %d used %d cells earlier", i, pick, back)
			}
		}
		if i%gridW != 0 && loader.picks[i-1] == pick {
			t.Fatalf("cell %d repeats its left neighbor", i)
		}
		if i >= gridW && loader.picks[i-gridW] == pick {
			t.Fatalf("cell %d repeats its above neighbor", i)
		}
	}
}

func TestRenderClipsBoundaryCells(t *testing.T) {
	lib, loader := buildLibrary([]RGB{{200, 10, 10}}, 32)
	comp := NewCompositor(lib, loader)

	target := imaging.New(100, 70, color.NRGBA{R: 128, G: 128, B: 128, A: 255})
	out, err := comp.Render(target, Params{CellSize: 32}, nil)
	if err != nil {
		t.Fatalf("Render: %v", err)
	}

	if w, h := out.Bounds().Dx(), out.Bounds().Dy(); w != 100 || h != 70 {
		t.Fatalf("output is %dx%d, want 100x70", w, h)
	}
	for _, pt := range []image.Point{{0, 0}, {99, 0}, {0, 69}, {99, 69}} {
		c := out.NRGBAAt(pt.X, pt.Y)
		if c.A != 255 || c.R != 200 || c.G != 10 || c.B != 10 {
			t.Errorf("pixel %v = %v, want opaque tile color", pt, c)
		}
	}
}

func TestRenderDeterministic(t *testing.T) {
	rng := rand.New(rand.NewSource(7))
	colors := make([]RGB, 30)
	for i := range colors {
		colors[i] = RGB{uint8(rng.Intn(256)), uint8(rng.Intn(256)), uint8(rng.Intn(256))}
	}

	dc := gg.NewContext(96, 96)
	for y := 0; y < 96; y += 24 {
		for x := 0; x < 96; x += 24 {
			dc.SetRGB255(rng.Intn(256), rng.Intn(256), rng.Intn(256))
			dc.DrawRectangle(float64(x), float64(y), 24, 24)
			dc.Fill()
		}
	}
	target := dc.Image()
	p := Params{CellSize: 24, RepeatWindow: 4, ColorStrength: 0.5, OverlayStrength: 0.2}

	lib1, loader1 := buildLibrary(colors, 24)
	a, err := NewCompositor(lib1, loader1).Render(target, p, nil)
	if err != nil {
		t.Fatalf("first render: %v", err)
	}

	lib2, loader2 := buildLibrary(colors, 24)
	b, err := NewCompositor(lib2, loader2).Render(target, p, nil)
	if err != nil {
		t.Fatalf("second render: %v", err)
	}

	if !bytes.Equal(a.Pix, b.Pix) {
		t.Fatal("identical inputs produced different outputs")
	}
}

func TestRenderOverlayFullStrength(t *testing.T) {
	lib, loader := buildLibrary([]RGB{{10, 200, 10}}, 16)
	comp := NewCompositor(lib, loader)

	dc := gg.NewContext(32, 32)
	dc.SetRGB255(60, 120, 180)
	dc.DrawRectangle(0, 0, 32, 32)
	dc.Fill()
	dc.SetRGB255(220, 40, 40)
	dc.DrawRectangle(8, 8, 16, 16)
	dc.Fill()
	target := dc.Image()

	out, err := comp.Render(target, Params{CellSize: 16, OverlayStrength: 1}, nil)
	if err != nil {
		t.Fatalf("Render: %v", err)
	}

	want := imaging.Clone(target)
	if !bytes.Equal(out.Pix, want.Pix) {
		t.Fatal("overlay at full strength must reproduce the target exactly")
	}
}

func TestRenderReportsProgress(t *testing.T) {
	lib, loader := buildLibrary([]RGB{{128, 128, 128}}, 16)
	comp := NewCompositor(lib, loader)

	target := imaging.New(64, 64, color.NRGBA{R: 128, G: 128, B: 128, A: 255})

	var pcts []int
	_, err := comp.Render(target, Params{CellSize: 16}, func(pct int, _ string) {
		pcts = append(pcts, pct)
	})
	if err != nil {
		t.Fatalf("Render: %v", err)
	}

	if len(pcts) == 0 || pcts[0] != 0 {
		t.Fatalf("progress must start at 0, got %v", pcts)
	}
	last := 0
	for _, p := range pcts {
		if p < last {
			t.Fatalf("progress went backwards: %v", pcts)
		}
		if p > 99 {
			t.Fatalf("progress exceeded 99 during render: %v", pcts)
		}
		last = p
	}
	if last != 99 {
		t.Fatalf("final render progress = %d, want 99", last)
	}
}
