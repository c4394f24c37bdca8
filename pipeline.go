package maskfx

import "github.com/hajimehoshi/ebiten/v2"

// disposer is implemented by filters holding GPU resources.
type disposer interface {
	Dispose()
}

// Pipeline is an ordered list of filter passes applied to a rendered frame.
// It owns the offscreen buffers the passes ping-pong between. A filter's
// lifetime is bound to the pipeline: Remove and Dispose release it.
type Pipeline struct {
	// ClearColor fills the padded offscreen buffer before src is drawn.
	ClearColor Color

	filters []Filter
	pool    renderTexturePool
	imgOp   ebiten.DrawImageOptions
}

// NewPipeline creates a pipeline running the given filters in order.
func NewPipeline(filters ...Filter) *Pipeline {
	p := &Pipeline{}
	p.filters = append(p.filters, filters...)
	return p
}

// Add appends a filter to the end of the chain.
func (p *Pipeline) Add(f Filter) {
	p.filters = append(p.filters, f)
}

// Remove detaches f and disposes it. Reports whether f was attached.
func (p *Pipeline) Remove(f Filter) bool {
	for i, g := range p.filters {
		if g == f {
			p.filters = append(p.filters[:i], p.filters[i+1:]...)
			if d, ok := f.(disposer); ok {
				d.Dispose()
			}
			return true
		}
	}
	return false
}

// Filters returns the attached filters. The returned slice MUST NOT be mutated.
func (p *Pipeline) Filters() []Filter {
	return p.filters
}

// Passes returns the attached filters with multi-pass filters expanded.
func (p *Pipeline) Passes() []Filter {
	return expandPasses(p.filters)
}

// Padding returns the cumulative padding of all passes.
func (p *Pipeline) Padding() int {
	return filterChainPadding(p.Passes())
}

// Draw renders src through every ready pass and draws the result onto dst
// at the origin. Passes that are not ready are skipped this frame.
func (p *Pipeline) Draw(dst, src *ebiten.Image) {
	passes := p.Passes()
	if len(passes) == 0 {
		p.imgOp.GeoM.Reset()
		p.imgOp.ColorScale.Reset()
		dst.DrawImage(src, &p.imgOp)
		return
	}

	pad := filterChainPadding(passes)
	b := src.Bounds()
	w, h := b.Dx()+2*pad, b.Dy()+2*pad

	buf := p.pool.Acquire(w, h)
	if p.ClearColor != ColorTransparent {
		buf.Fill(p.ClearColor.toRGBA())
	}
	p.imgOp.GeoM.Reset()
	p.imgOp.ColorScale.Reset()
	p.imgOp.GeoM.Translate(float64(pad), float64(pad))
	buf.DrawImage(src, &p.imgOp)

	out := applyFilters(passes, buf, &p.pool)
	debugf("pipeline: %d passes, padding %d", len(passes), pad)

	p.imgOp.GeoM.Reset()
	p.imgOp.GeoM.Translate(float64(-pad), float64(-pad))
	dst.DrawImage(out, &p.imgOp)

	p.pool.Release(out)
	if out != buf {
		p.pool.Release(buf)
	}
}

// Dispose disposes every attached filter and frees pooled buffers.
func (p *Pipeline) Dispose() {
	for _, f := range p.filters {
		if d, ok := f.(disposer); ok {
			d.Dispose()
		}
	}
	p.filters = nil
	p.pool.Dispose()
}
