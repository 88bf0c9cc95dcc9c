package pointgrid

import (
	"math"

	"github.com/golang/glog"
	"github.com/pkg/errors"

	"github.com/beetlebugorg/pointgrid/internal/gridding"
)

// WGS84 circumferences, used to derive default grid resolutions.
const (
	WGS84PolarCircumference      = gridding.WGS84PolarCircumference
	WGS84EquatorialCircumference = gridding.WGS84EquatorialCircumference
)

// GridOptions describes one gridding run: the raster geometry, the value
// files and their types, the reduction, and the time window.
//
// Start from DefaultGridOptions and override fields; the zero value of
// TimeMin/TimeMax is a window containing only t=0, not an unbounded one.
type GridOptions struct {
	// Raster geometry. Zero resolutions default to a global grid:
	// HRes = equatorial circumference / Width,
	// VRes = polar circumference / (2·Height).
	Width, Height      int
	HRes, VRes         float64
	CentralX, CentralY float64

	// Sampling box dimensions. Zero means "same as the resolution", which
	// makes adjacent cells' boxes tile exactly.
	HSample, VSample float64

	// Time window applied to every cell query, inclusive on both ends.
	TimeMin, TimeMax float64

	// Reduction is the registered name of the reduction function.
	Reduction string

	// Value file types and fills. A coded reduction requires the same
	// coded dtype on both ends; numeric reductions require numeric dtypes.
	InputDType, OutputDType string
	InputFill, OutputFill   float64

	// InputData is the flat array of per-observation values, one element
	// per geolocation record, in record order.
	InputData string

	// Outputs; any left empty is skipped. OutputData is a Width×Height
	// raster of OutputDType; OutputLats and OutputLons are float32 rasters
	// of the reverse-projected cell centres.
	OutputData, OutputLats, OutputLons string

	// Workers is the number of parallel row workers (0 = NumCPU).
	Workers int

	// Progress is an optional callback invoked after each gridded row with
	// (rowsDone, rowsTotal). It may be called from multiple goroutines.
	Progress func(rowsDone, rowsTotal int)
}

// NumericReductions lists the registered numeric reduction names.
func NumericReductions() []string {
	return gridding.ReductionNames(gridding.StyleNumeric)
}

// CodedReductions lists the registered coded reduction names.
func CodedReductions() []string {
	return gridding.ReductionNames(gridding.StyleCoded)
}

// DefaultGridOptions returns options for a global 720×360 float32 grid
// with mean reduction, −999 fills and an unbounded time window.
func DefaultGridOptions() GridOptions {
	return GridOptions{
		Width:       720,
		Height:      360,
		TimeMin:     math.Inf(-1),
		TimeMax:     math.Inf(1),
		Reduction:   "mean",
		InputDType:  "float32",
		OutputDType: "float32",
		InputFill:   -999.0,
		OutputFill:  -999.0,
	}
}

// Grid runs the parallel cell loop over this index and writes the
// requested rasters. Cells whose sampling box selects no admissible
// observations are written as the output fill value.
func (idx *Index) Grid(opts GridOptions) error {
	if opts.OutputData == "" && opts.OutputLats == "" && opts.OutputLons == "" {
		return errors.New("no outputs requested: set OutputData, OutputLats or OutputLons")
	}
	if opts.OutputData != "" && opts.InputData == "" {
		return errors.New("generating a data raster requires InputData")
	}

	hres := opts.HRes
	if hres == 0 {
		hres = WGS84EquatorialCircumference / float64(opts.Width)
	}
	vres := opts.VRes
	if vres == 0 {
		vres = WGS84PolarCircumference / (2.0 * float64(opts.Height))
	}

	grid, err := gridding.NewGrid(opts.Width, opts.Height, hres, vres,
		opts.CentralX, opts.CentralY, idx.projector)
	if err != nil {
		return err
	}
	grid.SetSampling(opts.HSample, opts.VSample)
	grid.SetTimeWindow(opts.TimeMin, opts.TimeMax)

	reduction := gridding.ReductionByName(opts.Reduction)
	if reduction.IsUndef() {
		return &gridding.ErrUnknownReduction{Name: opts.Reduction}
	}
	inDType, err := gridding.ParseDType(opts.InputDType)
	if err != nil {
		return err
	}
	outDType, err := gridding.ParseDType(opts.OutputDType)
	if err != nil {
		return err
	}
	if opts.OutputData != "" {
		if err := reduction.CheckDTypes(inDType, outDType); err != nil {
			return err
		}
	}

	cells := int64(opts.Width) * int64(opts.Height)
	in := gridding.InputSpec{Index: idx.tree, DType: inDType}
	out := gridding.OutputSpec{Grid: grid, DType: outDType}

	var mapped []*gridding.MappedFile
	closeAll := func() error {
		var firstErr error
		for _, m := range mapped {
			if err := m.Close(); err != nil && firstErr == nil {
				firstErr = err
			}
		}
		return firstErr
	}

	if opts.OutputData != "" {
		input, err := gridding.OpenMappedInput(opts.InputData,
			int64(idx.tree.NumObservations())*int64(inDType.Size))
		if err != nil {
			return err
		}
		mapped = append(mapped, input)
		in.Data = input.Data

		output, err := gridding.CreateMappedOutput(opts.OutputData, cells*int64(outDType.Size))
		if err != nil {
			closeAll()
			return err
		}
		mapped = append(mapped, output)
		out.Data = output.Data
	}
	if opts.OutputLats != "" {
		lats, err := gridding.CreateMappedOutput(opts.OutputLats, cells*4)
		if err != nil {
			closeAll()
			return err
		}
		mapped = append(mapped, lats)
		out.Lats = lats.Data
	}
	if opts.OutputLons != "" {
		lons, err := gridding.CreateMappedOutput(opts.OutputLons, cells*4)
		if err != nil {
			closeAll()
			return err
		}
		mapped = append(mapped, lons)
		out.Lons = lons.Data
	}

	glog.V(1).Infof("gridding %d observations onto %dx%d cells (%s)",
		idx.tree.NumObservations(), opts.Width, opts.Height, reduction.Name)

	attrs := &gridding.ReductionAttrs{InputFill: opts.InputFill, OutputFill: opts.OutputFill}
	gridErr := gridding.PerformGridding(in, out, reduction, attrs, gridding.GridOptions{
		Workers:  opts.Workers,
		Progress: opts.Progress,
	})

	closeErr := closeAll()
	if gridErr != nil {
		return gridErr
	}
	return closeErr
}
