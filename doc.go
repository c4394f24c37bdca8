// Package maskfx provides an alpha-mask displacement filter for [Ebitengine]
// and the small host layer it needs: textures that may still be loading, a
// background image loader, a filter pipeline, and an explicit filter
// registry.
//
// # Quick start
//
//	loader := maskfx.NewLoader(os.DirFS("assets"), 0)
//	mask := loader.Load("clouds.png")
//
//	filter := maskfx.NewAlphaMaskFilter(mask, maskfx.Vec2{}, 1)
//	pipeline := maskfx.NewPipeline(filter)
//
//	// In Update:
//	loader.Update()
//
//	// In Draw, with scene rendered into frame:
//	pipeline.Draw(screen, frame)
//
// The filter's map dimensions are filled in when the mask texture finishes
// loading. Until then the pipeline skips it and frames pass through
// unchanged.
//
// # Mask semantics
//
// The mask tiles across the output at its native pixel size, shifted by
// [AlphaMaskFilter.Offset]. For every output pixel the sum of the mask's red,
// green and blue channels scales alpha, and the color is multiplied by
// green*ColorR + red. ColorR defaults to (0.8, 0.4, 0.1).
//
// # Animation
//
// [OffsetScroller] tweens a filter's offset via [gween]; with Loop set it
// scrolls a tiling mask forever.
//
// [Ebitengine]: https://ebitengine.org
// [gween]: https://github.com/tanema/gween
package maskfx
