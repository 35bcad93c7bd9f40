package plot

import (
	"image"
	"image/color"
	"image/draw"
	"math"

	"github.com/lucasb-eyer/go-colorful"
	"golang.org/x/image/font"
	"golang.org/x/image/font/basicfont"
	"golang.org/x/image/math/fixed"
	"golang.org/x/image/vector"
)

// canvas draws anti-aliased shapes in pixel coordinates.
type canvas struct {
	img  draw.Image
	rast *vector.Rasterizer
}

func newCanvas(img draw.Image) *canvas {
	b := img.Bounds()
	return &canvas{img: img, rast: vector.NewRasterizer(b.Dx(), b.Dy())}
}

func (c *canvas) fill(points [][2]float64, col color.Color) {
	if len(points) < 3 {
		return
	}
	b := c.img.Bounds()
	c.rast.Reset(b.Dx(), b.Dy())
	c.rast.MoveTo(float32(points[0][0]), float32(points[0][1]))
	for _, p := range points[1:] {
		c.rast.LineTo(float32(p[0]), float32(p[1]))
	}
	c.rast.ClosePath()
	c.rast.Draw(c.img, b, image.NewUniform(col), image.Point{})
}

// line strokes a segment as a thin quad.
func (c *canvas) line(x0, y0, x1, y1, width float64, col color.Color) {
	dx, dy := x1-x0, y1-y0
	l := math.Hypot(dx, dy)
	if l == 0 {
		return
	}
	nx, ny := -dy/l*width/2, dx/l*width/2
	c.fill([][2]float64{
		{x0 + nx, y0 + ny}, {x1 + nx, y1 + ny},
		{x1 - nx, y1 - ny}, {x0 - nx, y0 - ny},
	}, col)
}

func (c *canvas) polyline(points [][2]float64, width float64, col color.Color) {
	for i := 1; i < len(points); i++ {
		c.line(points[i-1][0], points[i-1][1], points[i][0], points[i][1], width, col)
	}
}

func (c *canvas) disk(cx, cy, r float64, col color.Color) {
	n := int(math.Max(12, math.Min(64, r*2)))
	pts := make([][2]float64, n)
	for i := range pts {
		a := 2 * math.Pi * float64(i) / float64(n)
		pts[i] = [2]float64{cx + r*math.Cos(a), cy + r*math.Sin(a)}
	}
	c.fill(pts, col)
}

func (c *canvas) text(x, y int, s string, col color.Color) {
	d := font.Drawer{
		Dst:  c.img,
		Src:  image.NewUniform(col),
		Face: basicfont.Face7x13,
		Dot:  fixed.P(x, y),
	}
	d.DrawString(s)
}

func mustHex(s string) colorful.Color {
	c, err := colorful.Hex(s)
	if err != nil {
		panic(err)
	}
	return c
}

// rgba converts a colorful colour with an alpha in [0,1].
func rgba(c colorful.Color, alpha float64) color.NRGBA {
	r, g, b := c.RGB255()
	return color.NRGBA{R: r, G: g, B: b, A: uint8(math.Round(alpha * 255))}
}
