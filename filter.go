package maskfx

import (
	"strings"

	"github.com/hajimehoshi/ebiten/v2"
)

// Filter is the interface for visual effects applied to a rendered frame.
type Filter interface {
	// Apply renders src into dst with the filter effect.
	Apply(src, dst *ebiten.Image)
	// Padding returns the extra pixels needed around the source to accommodate
	// the effect. Zero means no padding.
	Padding() int
}

// ShaderProgram is implemented by filters that expose their uniform set and
// fragment program to the host. Hosts may inspect or serialize these; the
// values are re-read every frame.
type ShaderProgram interface {
	// Uniforms returns the filter's named uniform slots. The map and its
	// entries are live: mutating a value changes the next frame.
	Uniforms() map[string]*Uniform
	// FragmentSource returns the fragment program, one source line per entry.
	FragmentSource() []string
}

// ReadinessHook is implemented by filters that cannot render until some
// external resource (typically a texture) is available. The pipeline skips
// filters that report false.
type ReadinessHook interface {
	Ready() bool
}

// MultiPass is implemented by filters that expand into several passes.
// A filter that is a single pass returns a slice containing itself.
type MultiPass interface {
	Passes() []Filter
}

// UniformType names the shader-side type of a uniform slot.
type UniformType uint8

const (
	UniformSampler2D UniformType = iota // texture sampler, Value is *Texture
	Uniform1f                           // scalar, Value is float64
	Uniform2f                           // Value is Vec2
	Uniform3f                           // Value is Vec3
	Uniform4fv                          // Value is [4]float64
)

// String returns the conventional GLSL-style name of the type.
func (t UniformType) String() string {
	switch t {
	case UniformSampler2D:
		return "sampler2D"
	case Uniform1f:
		return "1f"
	case Uniform2f:
		return "2f"
	case Uniform3f:
		return "3f"
	case Uniform4fv:
		return "4fv"
	default:
		return "unknown"
	}
}

// Uniform is one named slot of a filter's uniform set.
type Uniform struct {
	Type  UniformType
	Value any
}

// joinSource joins fragment source lines into a compilable program.
func joinSource(lines []string) string {
	return strings.Join(lines, "\n") + "\n"
}

// compileShader compiles Kage source lines. Compile errors are programmer
// errors in fixed source, so they panic.
func compileShader(name string, lines []string) *ebiten.Shader {
	s, err := ebiten.NewShader([]byte(joinSource(lines)))
	if err != nil {
		panic("maskfx: failed to compile " + name + " shader: " + err.Error())
	}
	return s
}

// expandPasses flattens MultiPass filters one level into their passes.
// Passes are not expanded again, so a filter listing itself is safe.
func expandPasses(filters []Filter) []Filter {
	out := make([]Filter, 0, len(filters))
	for _, f := range filters {
		if mp, ok := f.(MultiPass); ok {
			out = append(out, mp.Passes()...)
			continue
		}
		out = append(out, f)
	}
	return out
}

// filterReady reports whether f can render this frame.
func filterReady(f Filter) bool {
	if r, ok := f.(ReadinessHook); ok {
		return r.Ready()
	}
	return true
}

// filterChainPadding returns the cumulative padding required by a slice of
// filters. The offscreen buffer is sized to fit the sum.
func filterChainPadding(filters []Filter) int {
	pad := 0
	for _, f := range filters {
		pad += f.Padding()
	}
	return pad
}

// applyFilters runs a filter chain on src, ping-ponging between pooled
// images. Returns the image holding the final result (src itself when no
// filter ran). Every pooled image other than the returned one is released.
func applyFilters(filters []Filter, src *ebiten.Image, pool *renderTexturePool) *ebiten.Image {
	bounds := src.Bounds()
	w, h := bounds.Dx(), bounds.Dy()

	current := src
	var scratch *ebiten.Image

	for _, f := range filters {
		if !filterReady(f) {
			continue
		}
		if scratch == nil {
			scratch = pool.Acquire(w, h)
		} else {
			scratch.Clear()
		}
		f.Apply(current, scratch)
		current, scratch = scratch, current
	}

	if scratch != nil && scratch != src {
		pool.Release(scratch)
	}
	return current
}
