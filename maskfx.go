package maskfx

import "image/color"

// Color represents an RGBA color with components in [0, 1]. Not premultiplied.
// Premultiplication occurs at render submission time.
type Color struct {
	R, G, B, A float64
}

// ColorTransparent is the zero color; the default pipeline clear color.
var ColorTransparent = Color{}

// Vec2 is a 2D vector used for offsets and dimensions.
type Vec2 struct {
	X, Y float64
}

// Vec3 is a 3-component vector. AlphaMaskFilter uses it for tint weights.
type Vec3 struct {
	X, Y, Z float64
}

// toRGBA converts a Color to a premultiplied color.RGBA.
func (c Color) toRGBA() color.RGBA {
	return color.RGBA{
		R: uint8(clamp01(c.R*c.A) * 255),
		G: uint8(clamp01(c.G*c.A) * 255),
		B: uint8(clamp01(c.B*c.A) * 255),
		A: uint8(clamp01(c.A) * 255),
	}
}

func clamp01(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}
