package stealth

import (
	"context"
	"math"
	"math/rand"
	"strconv"
	"time"

	"github.com/go-rod/rod"
	"github.com/rs/zerolog"
)

// Scroller scrolls pages in eased steps with an occasional correction
type Scroller struct {
	rnd    *rand.Rand
	timing *Timing
	logger zerolog.Logger
}

// NewScroller creates a scroll controller
func NewScroller(rnd *rand.Rand, timing *Timing, logger zerolog.Logger) *Scroller {
	return &Scroller{
		rnd:    rnd,
		timing: timing,
		logger: logger.With().Str("component", "scroll").Logger(),
	}
}

type scrollStep struct {
	y     int
	delay time.Duration
}

// ScrollTo scrolls vertically to y
func (s *Scroller) ScrollTo(ctx context.Context, page *rod.Page, y int) error {
	current, err := evalInt(page, `() => window.pageYOffset || document.documentElement.scrollTop`)
	if err != nil {
		return err
	}
	if abs(y-current) < 10 {
		return nil
	}

	for _, step := range s.steps(current, y) {
		if err := scrollTo(page, step.y); err != nil {
			return err
		}
		if err := Sleep(ctx, step.delay); err != nil {
			return err
		}
	}

	if s.rnd.Float64() < 0.2 {
		return s.correct(ctx, page, y)
	}
	return nil
}

// ScrollIntoView centres el vertically in the viewport
func (s *Scroller) ScrollIntoView(ctx context.Context, page *rod.Page, el *rod.Element) error {
	shape, err := el.Shape()
	if err != nil {
		return err
	}
	if len(shape.Quads) == 0 {
		return el.ScrollIntoView()
	}

	viewport, err := evalInt(page, `() => window.innerHeight`)
	if err != nil {
		return err
	}
	current, err := evalInt(page, `() => window.pageYOffset || document.documentElement.scrollTop`)
	if err != nil {
		return err
	}

	target := current + int(shape.Quads[0][1]) - viewport/2
	if target < 0 {
		target = 0
	}
	return s.ScrollTo(ctx, page, target)
}

// Browse scrolls up and down a few times as someone skimming a profile would
func (s *Scroller) Browse(ctx context.Context, page *rod.Page) error {
	moves := 2 + s.rnd.Intn(3)
	for i := 0; i < moves; i++ {
		current, err := evalInt(page, `() => window.pageYOffset || document.documentElement.scrollTop`)
		if err != nil {
			return err
		}

		amount := 200 + s.rnd.Intn(400)
		if s.rnd.Float64() < 0.3 {
			amount = -amount
		}
		target := current + amount
		if target < 0 {
			target = 0
		}

		if err := s.ScrollTo(ctx, page, target); err != nil {
			return err
		}
		if err := s.timing.StepDelay(ctx); err != nil {
			return err
		}
	}
	return nil
}

// steps eases out from start to end in 5 to 30 steps, slower at both ends
func (s *Scroller) steps(start, end int) []scrollStep {
	dist := end - start
	n := abs(dist) / 50
	if n < 5 {
		n = 5
	}
	if n > 30 {
		n = 30
	}

	steps := make([]scrollStep, n)
	for i := range steps {
		t := float64(i+1) / float64(n)
		eased := 1 - math.Pow(1-t, 3)
		base := float64(20 + s.rnd.Intn(30))
		steps[i] = scrollStep{
			y:     start + int(float64(dist)*eased),
			delay: time.Duration(base/(0.5+math.Sin(math.Pi*t)*0.5)) * time.Millisecond,
		}
	}
	steps[n-1].y = end
	return steps
}

func (s *Scroller) correct(ctx context.Context, page *rod.Page, y int) error {
	over := 20 + s.rnd.Intn(30)
	if s.rnd.Float64() < 0.5 {
		over = -over
	}
	if err := scrollTo(page, y+over); err != nil {
		return err
	}
	if err := Sleep(ctx, time.Duration(100+s.rnd.Intn(100))*time.Millisecond); err != nil {
		return err
	}
	return scrollTo(page, y)
}

func scrollTo(page *rod.Page, y int) error {
	_, err := page.Eval(`() => window.scrollTo(0, ` + strconv.Itoa(y) + `)`)
	return err
}

func evalInt(page *rod.Page, js string) (int, error) {
	res, err := page.Eval(js)
	if err != nil {
		return 0, err
	}
	return res.Value.Int(), nil
}

func abs(n int) int {
	if n < 0 {
		return -n
	}
	return n
}
