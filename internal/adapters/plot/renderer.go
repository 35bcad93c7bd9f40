package plot

import (
	"bytes"
	"context"
	"fmt"
	"image"
	"math"

	"github.com/disintegration/imaging"
	"github.com/paulmach/orb"

	"github.com/samirrijal/orchardgap/internal/core/imputer"
)

const (
	titleHeight  = 28
	legendHeight = 24
	minWidth     = 200
)

var (
	background    = mustHex("#ffffff")
	boundaryColor = mustHex("#1f77b4")
	zoneColor     = mustHex("#d62728")
	treeColor     = mustHex("#2ca02c")
	missingColor  = mustHex("#e41a1c")
	inkColor      = mustHex("#222222")

	// zoneTint is the safe zone fill, pre-blended onto the background.
	zoneTint = background.BlendRgb(zoneColor, 0.12)
)

// Renderer draws imputation results and saves them to a FileStore.
type Renderer struct {
	store *FileStore
	width int
}

// NewRenderer creates a renderer producing images width pixels wide.
func NewRenderer(store *FileStore, width int) *Renderer {
	if width < minWidth {
		width = minWidth
	}
	return &Renderer{store: store, width: width}
}

// Render implements ports.PlotRenderer.
func (r *Renderer) Render(ctx context.Context, orchardID int64, res *imputer.Result) error {
	img, err := Draw(orchardID, res, r.width)
	if err != nil {
		return err
	}
	var buf bytes.Buffer
	if err := imaging.Encode(&buf, img, imaging.PNG); err != nil {
		return fmt.Errorf("encode plot: %w", err)
	}
	return r.store.Save(ctx, orchardID, buf.Bytes())
}

// frame maps planar metres to pixels, north up.
type frame struct {
	bound orb.Bound
	scale float64
	top   float64
}

func (f frame) px(p orb.Point) (float64, float64) {
	return (p[0] - f.bound.Min[0]) * f.scale, f.top + (f.bound.Max[1]-p[1])*f.scale
}

func (f frame) world(x, y float64) orb.Point {
	return orb.Point{f.bound.Min[0] + x/f.scale, f.bound.Max[1] - (y-f.top)/f.scale}
}

// Draw renders the orchard boundary, the safe zone, existing trees sized
// by canopy and the proposed missing trees.
func Draw(orchardID int64, res *imputer.Result, width int) (image.Image, error) {
	if res == nil || len(res.Boundary) == 0 || len(res.Boundary[0]) < 3 {
		return nil, fmt.Errorf("plot orchard %d: no boundary", orchardID)
	}
	if width < minWidth {
		width = minWidth
	}

	bound := res.Boundary.Bound()
	for _, t := range res.Trees {
		bound = bound.Extend(t)
	}
	span := math.Max(bound.Max[0]-bound.Min[0], bound.Max[1]-bound.Min[1])
	bound = bound.Pad(math.Max(span*0.04, 2*res.TreeRadius))

	f := frame{bound: bound, top: titleHeight}
	f.scale = float64(width) / (bound.Max[0] - bound.Min[0])
	plotHeight := int(math.Ceil((bound.Max[1] - bound.Min[1]) * f.scale))
	if plotHeight > 3*width {
		plotHeight = 3 * width
	}
	height := titleHeight + plotHeight + legendHeight

	img := imaging.New(width, height, background)
	c := newCanvas(img)

	if len(res.Trees) > 0 && !res.Zone.Empty() {
		shadeZone(img, f, res.Zone, plotHeight)
	}

	ring := make([][2]float64, len(res.Boundary[0]))
	for i, p := range res.Boundary[0] {
		x, y := f.px(p)
		ring[i] = [2]float64{x, y}
	}
	c.polyline(ring, 2, boundaryColor)

	for i, t := range res.Trees {
		x, y := f.px(t)
		r := math.Max(1.5, res.Radii[i]*f.scale)
		c.disk(x, y, r, rgba(treeColor, 0.8))
	}

	mr := math.Max(3, res.TreeRadius*f.scale)
	for _, p := range res.PlanarCandidates {
		x, y := f.px(p)
		c.disk(x, y, mr+1, inkColor)
		c.disk(x, y, mr, missingColor)
	}

	title := fmt.Sprintf("Orchard %d: %d trees, %d missing", orchardID, len(res.Trees), len(res.PlanarCandidates))
	c.text(8, 18, title, inkColor)
	drawLegend(c, height-legendHeight+16)

	return img, nil
}

// shadeZone tints every pixel inside the safe zone and draws a dashed
// outline where the tint ends. The zone is implicit, so it is sampled on a
// 2 pixel grid.
func shadeZone(img *image.NRGBA, f frame, zone imputer.SafeZone, plotHeight int) {
	const step = 2
	w := img.Bounds().Dx()
	cols, rows := (w+step-1)/step, (plotHeight+step-1)/step

	inside := make([]bool, cols*rows)
	for j := 0; j < rows; j++ {
		for i := 0; i < cols; i++ {
			p := f.world(float64(i*step)+step/2.0, f.top+float64(j*step)+step/2.0)
			inside[j*cols+i] = zone.ContainsPoint(p)
		}
	}

	tint := rgba(zoneTint, 1)
	edge := rgba(zoneColor, 1)
	at := func(i, j int) bool {
		if i < 0 || j < 0 || i >= cols || j >= rows {
			return false
		}
		return inside[j*cols+i]
	}
	for j := 0; j < rows; j++ {
		for i := 0; i < cols; i++ {
			if !at(i, j) {
				continue
			}
			col := tint
			border := !at(i-1, j) || !at(i+1, j) || !at(i, j-1) || !at(i, j+1)
			if border && ((i+j)/4)%2 == 0 {
				col = edge
			}
			for dy := 0; dy < step; dy++ {
				for dx := 0; dx < step; dx++ {
					img.SetNRGBA(i*step+dx, int(f.top)+j*step+dy, col)
				}
			}
		}
	}
}

func drawLegend(c *canvas, baseline int) {
	x := 8.0
	item := func(label string, draw func(cx, cy float64)) {
		draw(x+6, float64(baseline)-4)
		c.text(int(x)+16, baseline, label, inkColor)
		x += 16 + float64(len(label))*7 + 18
	}
	item("boundary", func(cx, cy float64) { c.line(cx-6, cy, cx+6, cy, 2, boundaryColor) })
	item("safe zone", func(cx, cy float64) {
		c.fill([][2]float64{{cx - 6, cy - 5}, {cx + 6, cy - 5}, {cx + 6, cy + 5}, {cx - 6, cy + 5}}, rgba(zoneTint, 1))
		c.line(cx-6, cy+5, cx+6, cy+5, 1, zoneColor)
	})
	item("existing tree", func(cx, cy float64) { c.disk(cx, cy, 5, rgba(treeColor, 0.8)) })
	item("missing tree", func(cx, cy float64) {
		c.disk(cx, cy, 6, inkColor)
		c.disk(cx, cy, 5, missingColor)
	})
}
