package maskfx

import "github.com/hajimehoshi/ebiten/v2"

// Texture is an image reference that may still be loading. Filters hold a
// *Texture rather than an *ebiten.Image so they can be constructed before
// the pixels arrive and react once they do.
type Texture struct {
	// PowerOfTwo marks the texture as sampled with wrap-around addressing.
	// The pipeline wraps in the shader, so any size works; the flag is
	// advisory for hosts that upload textures to a repeat-wrapped sampler,
	// and a flagged texture that resolves to another size is reported in
	// debug mode.
	PowerOfTwo bool

	image  *ebiten.Image
	width  int
	height int
	loaded bool

	listeners []*Subscription
}

// Subscription is a registered load-completion callback. Cancel removes it.
type Subscription struct {
	tex *Texture
	fn  func(*Texture)
}

// NewTexture wraps an already-decoded image. The texture is loaded.
func NewTexture(img *ebiten.Image) *Texture {
	t := &Texture{}
	t.Resolve(img)
	return t
}

// NewPendingTexture creates a texture that has not finished loading.
// Width and Height report 0 until Resolve or ResolveSize is called.
func NewPendingTexture() *Texture {
	return &Texture{}
}

// Image returns the underlying image, or nil while loading.
func (t *Texture) Image() *ebiten.Image { return t.image }

// Width returns the texture width in pixels.
func (t *Texture) Width() int { return t.width }

// Height returns the texture height in pixels.
func (t *Texture) Height() int { return t.height }

// Loaded reports whether the texture has finished loading.
func (t *Texture) Loaded() bool { return t.loaded }

// OnLoaded registers fn to be called each time the texture finishes loading.
// Callbacks that only care about the first load should cancel themselves.
func (t *Texture) OnLoaded(fn func(*Texture)) *Subscription {
	s := &Subscription{tex: t, fn: fn}
	t.listeners = append(t.listeners, s)
	return s
}

// Cancel deregisters the callback. Calling Cancel more than once, or from
// inside the callback itself, is safe.
func (s *Subscription) Cancel() {
	if s == nil || s.tex == nil {
		return
	}
	ls := s.tex.listeners
	for i, l := range ls {
		if l == s {
			s.tex.listeners = append(ls[:i:i], ls[i+1:]...)
			break
		}
	}
	s.tex = nil
}

// Resolve sets the texture's image, marks it loaded, and notifies listeners.
// Resolving a texture again (e.g. after a hot reload) notifies whichever
// listeners are still registered.
func (t *Texture) Resolve(img *ebiten.Image) {
	t.image = img
	w, h := 0, 0
	if img != nil {
		b := img.Bounds()
		w, h = b.Dx(), b.Dy()
	}
	t.ResolveSize(w, h)
}

// ResolveSize marks the texture loaded with the given dimensions without
// touching the image. Hosts that manage pixels elsewhere use it directly.
func (t *Texture) ResolveSize(w, h int) {
	t.width = w
	t.height = h
	t.loaded = true
	if t.wantsPowerOfTwo() {
		debugf("texture: %dx%d is not a power of two; repeat wrapping may differ on other hosts", w, h)
	}
	t.emitLoaded()
}

// wantsPowerOfTwo reports whether the texture is flagged PowerOfTwo but
// has a side that is not one.
func (t *Texture) wantsPowerOfTwo() bool {
	return t.PowerOfTwo && t.loaded && !(isPowerOfTwo(t.width) && isPowerOfTwo(t.height))
}

// emitLoaded calls every listener registered at the time of the call.
// The slice is copied so listeners may cancel during dispatch.
func (t *Texture) emitLoaded() {
	if len(t.listeners) == 0 {
		return
	}
	ls := make([]*Subscription, len(t.listeners))
	copy(ls, t.listeners)
	for _, l := range ls {
		if l.tex == t {
			l.fn(t)
		}
	}
}
