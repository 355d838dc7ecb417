package mosaic

import (
	"image"

	"github.com/disintegration/imaging"
)

// RGB is an 8-bit average color.
type RGB [3]uint8

// AverageColor computes the area-average color of img by collapsing it to a
// single pixel with a box filter. This is an exact mean over the pixels.
func AverageColor(img image.Image) RGB {
	px := imaging.Resize(img, 1, 1, imaging.Box)
	c := px.NRGBAAt(0, 0)
	return RGB{c.R, c.G, c.B}
}

// dist2 is the squared Euclidean distance between two colors.
func dist2(a, b RGB) int {
	dr := int(a[0]) - int(b[0])
	dg := int(a[1]) - int(b[1])
	db := int(a[2]) - int(b[2])
	return dr*dr + dg*dg + db*db
}

// Scale factors are clamped so corrected tiles keep their texture instead of
// blowing out to flat color.
const (
	minScale = 0.6
	maxScale = 1.6
)

// correctTile shifts the tile's channels toward the cell average using one
// multiplicative lookup table per channel, avoiding per-pixel division.
// A strength of zero returns the tile untouched.
func correctTile(tile *image.NRGBA, tileAvg, cellAvg RGB, strength float64) *image.NRGBA {
	if strength <= 0 {
		return tile
	}

	var luts [3][256]uint8
	for ch := 0; ch < 3; ch++ {
		ratio := float64(int(cellAvg[ch])+1) / float64(int(tileAvg[ch])+1)
		s := (1-strength) + strength*ratio
		if s < minScale {
			s = minScale
		}
		if s > maxScale {
			s = maxScale
		}
		for i := 0; i < 256; i++ {
			v := int(float64(i) * s)
			if v > 255 {
				v = 255
			}
			luts[ch][i] = uint8(v)
		}
	}

	out := imaging.Clone(tile)
	for i := 0; i < len(out.Pix); i += 4 {
		out.Pix[i] = luts[0][out.Pix[i]]
		out.Pix[i+1] = luts[1][out.Pix[i+1]]
		out.Pix[i+2] = luts[2][out.Pix[i+2]]
	}
	return out
}
