package stealth

import (
	"context"
	"math"
	"math/rand"
	"time"

	"github.com/go-rod/rod"
	"github.com/go-rod/rod/lib/proto"
	"github.com/rs/zerolog"

	"linkedin-outreach/internal/config"
)

// Point is a viewport coordinate
type Point struct {
	X, Y float64
}

// Mouse moves the cursor along randomized cubic Bézier curves
type Mouse struct {
	cfg    config.ScheduleConfig
	rnd    *rand.Rand
	logger zerolog.Logger
	last   Point
}

// NewMouse creates a mouse controller
func NewMouse(cfg config.ScheduleConfig, rnd *rand.Rand, logger zerolog.Logger) *Mouse {
	return &Mouse{
		cfg:    cfg,
		rnd:    rnd,
		logger: logger.With().Str("component", "mouse").Logger(),
	}
}

// MoveTo moves the cursor to target, slow at the ends and fast in the middle
func (m *Mouse) MoveTo(ctx context.Context, page *rod.Page, target Point) error {
	path := m.path(m.last, target)

	for i, p := range path {
		if err := page.Mouse.MoveTo(proto.Point{X: p.X, Y: p.Y}); err != nil {
			return err
		}
		speed := speedFactor(float64(i) / float64(len(path)))
		if err := Sleep(ctx, time.Duration(float64(5+m.rnd.Intn(10))/speed)*time.Millisecond); err != nil {
			return err
		}
	}

	if m.cfg.EnableOvershoot && m.rnd.Float64() < 0.3 {
		if err := m.overshoot(ctx, page, target); err != nil {
			return err
		}
	}

	m.last = target
	return nil
}

// ClickElement moves near the centre of el and clicks
func (m *Mouse) ClickElement(ctx context.Context, page *rod.Page, el *rod.Element) error {
	shape, err := el.Shape()
	if err != nil {
		return err
	}
	if len(shape.Quads) == 0 {
		return el.Click(proto.InputMouseButtonLeft, 1)
	}

	q := shape.Quads[0]
	center := Point{
		X: (q[0]+q[2]+q[4]+q[6])/4 + (m.rnd.Float64()-0.5)*10,
		Y: (q[1]+q[3]+q[5]+q[7])/4 + (m.rnd.Float64()-0.5)*10,
	}
	if err := m.MoveTo(ctx, page, center); err != nil {
		return err
	}
	return m.click(ctx, page)
}

func (m *Mouse) click(ctx context.Context, page *rod.Page) error {
	if err := Sleep(ctx, time.Duration(50+m.rnd.Intn(100))*time.Millisecond); err != nil {
		return err
	}
	if err := page.Mouse.Down(proto.InputMouseButtonLeft, 1); err != nil {
		return err
	}
	// Real clicks are held for 50 to 150ms
	if err := Sleep(ctx, time.Duration(50+m.rnd.Intn(100))*time.Millisecond); err != nil {
		return err
	}
	if err := page.Mouse.Up(proto.InputMouseButtonLeft, 1); err != nil {
		return err
	}
	return Sleep(ctx, time.Duration(100+m.rnd.Intn(200))*time.Millisecond)
}

func (m *Mouse) overshoot(ctx context.Context, page *rod.Page, target Point) error {
	dist := 5 + m.rnd.Float64()*10
	angle := m.rnd.Float64() * 2 * math.Pi

	past := proto.Point{X: target.X + math.Cos(angle)*dist, Y: target.Y + math.Sin(angle)*dist}
	if err := page.Mouse.MoveTo(past); err != nil {
		return err
	}
	if err := Sleep(ctx, time.Duration(30+m.rnd.Intn(50))*time.Millisecond); err != nil {
		return err
	}
	return page.Mouse.MoveTo(proto.Point{X: target.X, Y: target.Y})
}

// path samples a cubic Bézier curve from start to end with perpendicular bowing and micro-jitter.
// The first and last points are exact.
func (m *Mouse) path(start, end Point) []Point {
	dx, dy := end.X-start.X, end.Y-start.Y
	dist := math.Hypot(dx, dy)
	n := int(math.Max(20, dist/10))

	curve := dist * (0.1 + m.rnd.Float64()*0.3)
	if m.rnd.Float64() < 0.5 {
		curve = -curve
	}
	length := dist
	if length == 0 {
		length = 1
	}
	px, py := -dy/length, dx/length

	c1 := Point{
		X: start.X + dx*0.25 + px*curve*(0.5+m.rnd.Float64()*0.5),
		Y: start.Y + dy*0.25 + py*curve*(0.5+m.rnd.Float64()*0.5),
	}
	c2 := Point{
		X: start.X + dx*0.75 + px*curve*(0.5+m.rnd.Float64()*0.5),
		Y: start.Y + dy*0.75 + py*curve*(0.5+m.rnd.Float64()*0.5),
	}

	points := make([]Point, n)
	for i := range points {
		t := float64(i) / float64(n-1)
		p := Point{X: bezier(t, start.X, c1.X, c2.X, end.X), Y: bezier(t, start.Y, c1.Y, c2.Y, end.Y)}
		if i > 0 && i < n-1 {
			p.X += (m.rnd.Float64() - 0.5) * 2
			p.Y += (m.rnd.Float64() - 0.5) * 2
		}
		points[i] = p
	}
	return points
}

func bezier(t, p0, p1, p2, p3 float64) float64 {
	mt := 1 - t
	return mt*mt*mt*p0 + 3*mt*mt*t*p1 + 3*mt*t*t*p2 + t*t*t*p3
}

// speedFactor eases in and out along the path
func speedFactor(progress float64) float64 {
	return 0.5 + math.Sin(math.Pi*progress)*1.5
}
