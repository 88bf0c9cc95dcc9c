package gridding

import (
	"math"
)

// WGS84 circumferences, used for default grid resolutions.
const (
	WGS84PolarCircumference      = 40007863.0
	WGS84EquatorialCircumference = 40075017.0
)

// Grid describes the output raster: its pixel dimensions, resolution and
// sampling box sizes in projection units, its centre in projected space,
// and the time window applied to every cell query.
//
// Cell (u, v) counts u eastward from the left edge and v northward from
// the bottom edge; the raster stores the northernmost row first, so the
// flat index of a cell is (Height−v−1)·Width + u.
type Grid struct {
	Width, Height int

	// Resolutions are metres (projection units) per pixel.
	HRes, VRes float64

	// Sampling box sizes; zero means "same as the resolution", which makes
	// adjacent cells tile exactly.
	HSample, VSample float64

	CentralX, CentralY float64

	TimeMin, TimeMax float64

	Projector Projector
}

// NewGrid validates and returns a grid with the given geometry, an
// unbounded time window and default sampling boxes.
func NewGrid(width, height int, hres, vres, centralX, centralY float64, p Projector) (*Grid, error) {
	if width < 1 || height < 1 {
		return nil, &ErrInvalidGrid{Reason: "width and height must be at least 1"}
	}
	if hres <= 0 || vres <= 0 {
		return nil, &ErrInvalidGrid{Reason: "resolutions must be positive"}
	}
	return &Grid{
		Width:     width,
		Height:    height,
		HRes:      hres,
		VRes:      vres,
		CentralX:  centralX,
		CentralY:  centralY,
		TimeMin:   math.Inf(-1),
		TimeMax:   math.Inf(1),
		Projector: p,
	}, nil
}

// SetSampling overrides the sampling box dimensions. Zero keeps the
// corresponding resolution as the box size.
func (g *Grid) SetSampling(hsample, vsample float64) {
	g.HSample = hsample
	g.VSample = vsample
}

// SetTimeWindow constrains cell queries to observations with
// min ≤ t ≤ max.
func (g *Grid) SetTimeWindow(min, max float64) {
	g.TimeMin = min
	g.TimeMax = max
}

// samplingOffsets returns the half-widths of the sampling box.
func (g *Grid) samplingOffsets() (float64, float64) {
	hOffset := g.HRes / 2.0
	if g.HSample != 0 {
		hOffset = g.HSample / 2.0
	}
	vOffset := g.VRes / 2.0
	if g.VSample != 0 {
		vOffset = g.VSample / 2.0
	}
	return hOffset, vOffset
}

// CellIndex returns the flat raster index of cell (u, v): row v from the
// bottom is stored at row Height−v−1 from the start of the raster.
func (g *Grid) CellIndex(u, v int) int {
	return (g.Height-v-1)*g.Width + u
}

// CellCentre returns the projected coordinates of the centre of
// cell (u, v).
func (g *Grid) CellCentre(u, v int) (float64, float64) {
	x0 := g.CentralX - float64(g.Width)/2.0*g.HRes
	y0 := g.CentralY - float64(g.Height)/2.0*g.VRes
	x := x0 + (float64(u)+0.5)*g.HRes
	y := y0 + (float64(v)+0.5)*g.VRes
	return x, y
}

// CellBounds returns the query box of cell (u, v): the sampling box around
// the cell centre plus the grid's time window.
func (g *Grid) CellBounds(u, v int) Bounds {
	x, y := g.CellCentre(u, v)
	hOffset, vOffset := g.samplingOffsets()
	return Bounds{
		float32(x - hOffset), float32(x + hOffset),
		float32(y - vOffset), float32(y + vOffset),
		float32(g.TimeMin), float32(g.TimeMax),
	}
}
