// Package render draws world snapshots into raster frames with gg.
package render

import (
	"fmt"
	"image"
	"image/color"
	"image/png"
	"io"
	"sync"

	"github.com/fogleman/gg"
	"github.com/go-gl/mathgl/mgl32"

	"crowd-sim/internal/game"
	"crowd-sim/internal/game/spatial"
)

// FrameConfig describes the visible area and its pixel density.
type FrameConfig struct {
	WorldWidth  float64 // world units along the plane's first axis
	WorldHeight float64 // world units along the plane's second axis
	Scale       float64 // pixels per world unit
	CellSize    float64 // grid line spacing in world units, 0 hides the grid
	Plane       spatial.Plane
}

var (
	backgroundColor = color.RGBA{12, 12, 28, 255}
	gridColor       = color.RGBA{30, 30, 45, 255}
	hudColor        = color.RGBA{220, 220, 230, 255}

	kindColors = map[game.Kind]color.RGBA{
		game.KindPlayer: {78, 205, 196, 255},
		game.KindEnemy:  {255, 107, 107, 255},
		game.KindCircle: {255, 234, 167, 255},
	}
)

// Renderer owns a reusable drawing context. Render calls are serialised.
type Renderer struct {
	mu  sync.Mutex
	cfg FrameConfig
	dc  *gg.Context
}

// NewRenderer creates a renderer producing frames of
// ceil(WorldWidth*Scale) x ceil(WorldHeight*Scale) pixels.
func NewRenderer(cfg FrameConfig) (*Renderer, error) {
	if cfg.Scale <= 0 || cfg.WorldWidth <= 0 || cfg.WorldHeight <= 0 {
		return nil, fmt.Errorf("render: invalid frame config %+v", cfg)
	}
	w, h := frameSize(cfg)
	if w > 8192 || h > 8192 {
		return nil, fmt.Errorf("render: frame %dx%d too large", w, h)
	}
	return &Renderer{cfg: cfg, dc: gg.NewContext(w, h)}, nil
}

func frameSize(cfg FrameConfig) (int, int) {
	w := int(cfg.WorldWidth*cfg.Scale + 0.999)
	h := int(cfg.WorldHeight*cfg.Scale + 0.999)
	return w, h
}

// Size returns the frame size in pixels.
func (r *Renderer) Size() (int, int) {
	return r.dc.Width(), r.dc.Height()
}

// toPixel maps planar world coordinates to pixels, second axis pointing up.
func (r *Renderer) toPixel(a, b float32) (float64, float64) {
	x := float64(a) * r.cfg.Scale
	y := float64(r.dc.Height()) - float64(b)*r.cfg.Scale
	return x, y
}

// Render draws snap and returns a copy of the frame.
func (r *Renderer) Render(snap *game.WorldSnapshot) image.Image {
	r.mu.Lock()
	defer r.mu.Unlock()

	dc := r.dc
	w, h := float64(dc.Width()), float64(dc.Height())

	dc.SetColor(backgroundColor)
	dc.DrawRectangle(0, 0, w, h)
	dc.Fill()

	r.drawGrid(dc, w, h)
	r.drawBodies(dc, snap)
	r.drawHUD(dc, snap)

	src := dc.Image()
	out := image.NewRGBA(src.Bounds())
	copy(out.Pix, src.(*image.RGBA).Pix)
	return out
}

func (r *Renderer) drawGrid(dc *gg.Context, w, h float64) {
	step := r.cfg.CellSize * r.cfg.Scale
	if step < 4 {
		return // too dense to be useful
	}

	dc.SetColor(gridColor)
	dc.SetLineWidth(1)
	for x := 0.0; x < w; x += step {
		dc.DrawLine(x, 0, x, h)
		dc.Stroke()
	}
	for y := h; y > 0; y -= step {
		dc.DrawLine(0, y, w, y)
		dc.Stroke()
	}
}

func (r *Renderer) drawBodies(dc *gg.Context, snap *game.WorldSnapshot) {
	for _, b := range snap.Bodies {
		a, c := r.cfg.Plane.Axes(mgl32.Vec3{b.X, b.Y, b.Z})
		x, y := r.toPixel(a, c)
		radius := float64(b.Radius) * r.cfg.Scale
		if radius < 1 {
			radius = 1
		}

		col, ok := kindColors[b.Kind]
		if !ok {
			col = kindColors[game.KindCircle]
		}
		dc.SetColor(col)
		dc.DrawCircle(x, y, radius)
		dc.Fill()

		if b.Handle == snap.Player {
			dc.SetColor(color.White)
			dc.SetLineWidth(2)
			dc.DrawCircle(x, y, radius+2)
			dc.Stroke()
		}
	}
}

func (r *Renderer) drawHUD(dc *gg.Context, snap *game.WorldSnapshot) {
	dc.SetColor(hudColor)
	line := fmt.Sprintf("tick %d  bodies %d  overlaps %d  step %.2fms",
		snap.TickNumber, snap.BodyCount, snap.OverlapPairs, snap.StepMillis)
	dc.DrawString(line, 8, 16)
}

// EncodePNG renders snap and writes it as PNG.
func (r *Renderer) EncodePNG(w io.Writer, snap *game.WorldSnapshot) error {
	return png.Encode(w, r.Render(snap))
}
