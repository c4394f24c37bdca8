package maskfx

import "github.com/hajimehoshi/ebiten/v2"

// Uniform slot names used by AlphaMaskFilter.
const (
	UniformMask          = "mask"
	UniformMapDimensions = "mapDimensions"
	UniformMapOffset     = "mapOffset"
	UniformColorR        = "colorR"
	UniformFlipped       = "flipped"
	UniformDimensions    = "dimensions"
)

// DefaultColorR is the initial tint weighting applied by the green channel
// of the mask.
var DefaultColorR = Vec3{X: 0.8, Y: 0.4, Z: 0.1}

// alphaMaskFragmentSrc is the Kage program for AlphaMaskFilter. The source
// image is Images[0]; the mask, resampled to the source size, is Images[1].
// The mask is addressed with repeat wrapping.
var alphaMaskFragmentSrc = []string{
	`//kage:unit pixels`,
	`package main`,
	``,
	`var Flipped float`,
	`var Dimensions vec4`,
	`var MapDimensions vec2`,
	`var MapOffset vec2`,
	`var ColorR vec3`,
	``,
	`func Fragment(dst vec4, src vec2, color vec4) vec4 {`,
	`	texCoord := (src - imageSrc0Origin()) / imageSrc0Size()`,
	`	mapCords := texCoord`,
	`	mapCords *= Dimensions.xy / MapDimensions`,
	`	mapCords += MapOffset / MapDimensions`,
	`	mapCords.y *= -1.0`,
	`	mapCords.x *= Flipped`,
	`	mapCords.y += -1.0`,
	`	original := imageSrc0At(src)`,
	`	maskAlpha := imageSrc1At(imageSrc1Origin() + fract(mapCords)*imageSrc1Size())`,
	`	original.a *= maskAlpha.r + maskAlpha.g + maskAlpha.b`,
	`	original.rgb *= maskAlpha.g*ColorR + vec3(maskAlpha.r)`,
	`	return original`,
	`}`,
}

var alphaMaskShader *ebiten.Shader

func ensureAlphaMaskShader() *ebiten.Shader {
	if alphaMaskShader == nil {
		alphaMaskShader = compileShader("alpha mask", alphaMaskFragmentSrc)
	}
	return alphaMaskShader
}

// AlphaMaskFilter uses the pixel values of a mask texture to modulate the
// alpha and tint of whatever it is applied to. The mask's red+green+blue sum
// scales alpha; the green channel weights a tint by ColorR and the red
// channel adds brightness back. The mask tiles across the output at its
// native pixel size, shifted by Offset.
type AlphaMaskFilter struct {
	uniforms map[string]*Uniform
	loadSub  *Subscription

	maskScratch *ebiten.Image
	maskSource  *ebiten.Image // mask image last drawn into maskScratch

	kage     map[string]any
	dimsF32  [4]float32
	mapDimF  [2]float32
	offsetF  [2]float32
	colorF   [3]float32
	shaderOp ebiten.DrawRectShaderOptions
	imgOp    ebiten.DrawImageOptions
}

// NewAlphaMaskFilter creates a filter sampling tex as its mask, shifted by
// offset pixels. flipped multiplies the horizontal map coordinate; pass 1
// for the normal orientation and -1 to mirror.
//
// tex is marked PowerOfTwo. If tex has already loaded, the map dimensions
// are set immediately; otherwise they stay zero until tex reports its first
// load.
func NewAlphaMaskFilter(tex *Texture, offset Vec2, flipped float64) *AlphaMaskFilter {
	tex.PowerOfTwo = true

	f := &AlphaMaskFilter{
		uniforms: map[string]*Uniform{
			UniformMask:          {Type: UniformSampler2D, Value: tex},
			UniformMapDimensions: {Type: Uniform2f, Value: Vec2{}},
			UniformMapOffset:     {Type: Uniform2f, Value: offset},
			UniformColorR:        {Type: Uniform3f, Value: DefaultColorR},
			UniformFlipped:       {Type: Uniform1f, Value: flipped},
			UniformDimensions:    {Type: Uniform4fv, Value: [4]float64{}},
		},
		kage: make(map[string]any, 5),
	}
	f.kage["Dimensions"] = f.dimsF32[:]
	f.kage["MapDimensions"] = f.mapDimF[:]
	f.kage["MapOffset"] = f.offsetF[:]
	f.kage["ColorR"] = f.colorF[:]

	if tex.Loaded() {
		f.uniforms[UniformMapDimensions].Value = Vec2{X: float64(tex.Width()), Y: float64(tex.Height())}
	} else {
		f.loadSub = tex.OnLoaded(func(*Texture) { f.HandleTextureLoaded() })
	}
	return f
}

// HandleTextureLoaded copies the current map's size into the map-dimension
// uniform and drops the load subscription, so later loads of the original
// texture have no effect. Call it manually after swapping Map for a texture
// of a different size.
func (f *AlphaMaskFilter) HandleTextureLoaded() {
	if tex := f.Map(); tex != nil {
		f.uniforms[UniformMapDimensions].Value = Vec2{X: float64(tex.Width()), Y: float64(tex.Height())}
	}
	if f.loadSub != nil {
		f.loadSub.Cancel()
		f.loadSub = nil
	}
}

// Map returns the mask texture.
func (f *AlphaMaskFilter) Map() *Texture {
	t, _ := f.uniforms[UniformMask].Value.(*Texture)
	return t
}

// SetMap replaces the mask texture. Map dimensions are not refreshed.
func (f *AlphaMaskFilter) SetMap(t *Texture) {
	f.uniforms[UniformMask].Value = t
}

// Offset returns the mask offset in pixels.
func (f *AlphaMaskFilter) Offset() Vec2 {
	v, _ := f.uniforms[UniformMapOffset].Value.(Vec2)
	return v
}

// SetOffset sets the mask offset in pixels.
func (f *AlphaMaskFilter) SetOffset(v Vec2) {
	f.uniforms[UniformMapOffset].Value = v
}

// Flipped returns the horizontal flip multiplier.
func (f *AlphaMaskFilter) Flipped() float64 {
	v, _ := f.uniforms[UniformFlipped].Value.(float64)
	return v
}

// SetFlipped sets the horizontal flip multiplier. Values other than 1 and -1
// scale the mask horizontally.
func (f *AlphaMaskFilter) SetFlipped(v float64) {
	f.uniforms[UniformFlipped].Value = v
}

// ColorR returns the tint weights applied by the mask's green channel.
func (f *AlphaMaskFilter) ColorR() Vec3 {
	v, _ := f.uniforms[UniformColorR].Value.(Vec3)
	return v
}

// SetColorR sets the tint weights applied by the mask's green channel.
func (f *AlphaMaskFilter) SetColorR(v Vec3) {
	f.uniforms[UniformColorR].Value = v
}

// MapDimensions returns the mask size recorded when it loaded.
func (f *AlphaMaskFilter) MapDimensions() Vec2 {
	v, _ := f.uniforms[UniformMapDimensions].Value.(Vec2)
	return v
}

// Dimensions returns the viewport dimensions supplied on the last Apply.
func (f *AlphaMaskFilter) Dimensions() [4]float64 {
	v, _ := f.uniforms[UniformDimensions].Value.([4]float64)
	return v
}

// Uniforms returns the live uniform set.
func (f *AlphaMaskFilter) Uniforms() map[string]*Uniform { return f.uniforms }

// FragmentSource returns a copy of the fixed fragment program.
func (f *AlphaMaskFilter) FragmentSource() []string {
	out := make([]string, len(alphaMaskFragmentSrc))
	copy(out, alphaMaskFragmentSrc)
	return out
}

// Passes returns the filter itself; the effect is a single pass.
func (f *AlphaMaskFilter) Passes() []Filter { return []Filter{f} }

// Ready reports whether the mask has pixels to sample.
func (f *AlphaMaskFilter) Ready() bool {
	t := f.Map()
	return t != nil && t.Image() != nil
}

// Padding returns 0; masking never grows the image.
func (f *AlphaMaskFilter) Padding() int { return 0 }

// Apply renders src through the mask into dst. The viewport dimensions
// uniform is set from src's size. If the mask has no pixels yet, src is
// copied through unchanged.
func (f *AlphaMaskFilter) Apply(src, dst *ebiten.Image) {
	bounds := src.Bounds()
	w, h := bounds.Dx(), bounds.Dy()
	f.uniforms[UniformDimensions].Value = [4]float64{float64(w), float64(h), 0, 0}

	if !f.Ready() {
		f.imgOp.GeoM.Reset()
		f.imgOp.ColorScale.Reset()
		dst.DrawImage(src, &f.imgOp)
		return
	}

	shader := ensureAlphaMaskShader()
	f.ensureMaskScratch(w, h)
	f.syncKageUniforms()

	f.shaderOp.Images[0] = src
	f.shaderOp.Images[1] = f.maskScratch
	f.shaderOp.Uniforms = f.kage
	dst.DrawRectShader(w, h, shader, &f.shaderOp)
}

// ensureMaskScratch resamples the mask into an image the same size as the
// source. DrawRectShader requires all source images to share a size.
func (f *AlphaMaskFilter) ensureMaskScratch(w, h int) {
	mask := f.Map().Image()
	sizeChanged := f.maskScratch == nil ||
		f.maskScratch.Bounds().Dx() != w || f.maskScratch.Bounds().Dy() != h
	if !sizeChanged && f.maskSource == mask {
		return
	}
	if sizeChanged {
		if f.maskScratch != nil {
			f.maskScratch.Deallocate()
		}
		f.maskScratch = ebiten.NewImage(w, h)
	} else {
		f.maskScratch.Clear()
	}
	mb := mask.Bounds()
	f.imgOp.GeoM.Reset()
	f.imgOp.ColorScale.Reset()
	f.imgOp.GeoM.Scale(float64(w)/float64(mb.Dx()), float64(h)/float64(mb.Dy()))
	f.imgOp.Filter = ebiten.FilterLinear
	f.maskScratch.DrawImage(mask, &f.imgOp)
	f.imgOp.Filter = ebiten.FilterNearest
	f.maskSource = mask
}

// syncKageUniforms converts the uniform set to float32 in place.
func (f *AlphaMaskFilter) syncKageUniforms() {
	d := f.Dimensions()
	for i, v := range d {
		f.dimsF32[i] = float32(v)
	}
	md := f.MapDimensions()
	f.mapDimF[0], f.mapDimF[1] = float32(md.X), float32(md.Y)
	off := f.Offset()
	f.offsetF[0], f.offsetF[1] = float32(off.X), float32(off.Y)
	c := f.ColorR()
	f.colorF[0], f.colorF[1], f.colorF[2] = float32(c.X), float32(c.Y), float32(c.Z)
	// Scalar float32 boxing is unavoidable with Ebitengine's uniform API.
	f.kage["Flipped"] = float32(f.Flipped())
}

// Dispose releases the mask scratch image and any pending load subscription.
func (f *AlphaMaskFilter) Dispose() {
	if f.maskScratch != nil {
		f.maskScratch.Deallocate()
		f.maskScratch = nil
	}
	f.maskSource = nil
	if f.loadSub != nil {
		f.loadSub.Cancel()
		f.loadSub = nil
	}
}
