package maskfx

import (
	"github.com/tanema/gween"
	"github.com/tanema/gween/ease"
)

// Offsetter is anything with a 2D offset, such as AlphaMaskFilter.
type Offsetter interface {
	Offset() Vec2
	SetOffset(Vec2)
}

// OffsetScroller animates a target's offset toward a destination. With Loop
// set it restarts from the starting offset each time it arrives, which
// scrolls a tiling mask continuously.
type OffsetScroller struct {
	// Loop restarts the animation when it finishes.
	Loop bool

	target Offsetter
	tweenX *gween.Tween
	tweenY *gween.Tween
	doneX  bool
	doneY  bool
}

// NewOffsetScroller animates target's offset from its current value to to
// over duration seconds.
func NewOffsetScroller(target Offsetter, to Vec2, duration float32, easeFn ease.TweenFunc) *OffsetScroller {
	from := target.Offset()
	return &OffsetScroller{
		target: target,
		tweenX: gween.New(float32(from.X), float32(to.X), duration, easeFn),
		tweenY: gween.New(float32(from.Y), float32(to.Y), duration, easeFn),
	}
}

// Done reports whether a non-looping scroll has arrived.
func (s *OffsetScroller) Done() bool {
	return s.doneX && s.doneY
}

// Update advances the animation by dt seconds and writes the target offset.
func (s *OffsetScroller) Update(dt float32) {
	if s.Done() {
		return
	}
	x, fx := s.tweenX.Update(dt)
	y, fy := s.tweenY.Update(dt)
	s.doneX, s.doneY = fx, fy
	s.target.SetOffset(Vec2{X: float64(x), Y: float64(y)})

	if s.Loop && s.Done() {
		s.tweenX.Reset()
		s.tweenY.Reset()
		s.doneX, s.doneY = false, false
	}
}
