package gridding

import (
	"runtime"
	"sync"
	"sync/atomic"

	"github.com/golang/glog"
	"github.com/pkg/errors"
)

// InputSpec describes where cell values come from: the spatial index over
// the observations and the raw input-data buffer the hits point into.
// Data may be nil when no data raster is being generated.
type InputSpec struct {
	Index *KDTree
	Data  []byte
	DType DType
}

// OutputSpec describes the rasters to generate. Any of Data, Lats and Lons
// may be nil to skip that output. Lats and Lons are float32 rasters of the
// reverse-projected cell centres.
type OutputSpec struct {
	Grid  *Grid
	Data  []byte
	DType DType
	Lats  []byte
	Lons  []byte
}

// GridOptions controls the parallel cell loop.
type GridOptions struct {
	// Workers is the number of row workers. If 0, defaults to
	// runtime.NumCPU().
	Workers int

	// Progress is an optional callback invoked after each completed row
	// with (rowsDone, rowsTotal). It may be called from multiple
	// goroutines.
	Progress func(rowsDone, rowsTotal int)
}

// DefaultGridOptions returns grid options with sensible defaults.
func DefaultGridOptions() GridOptions {
	return GridOptions{
		Workers: runtime.NumCPU(),
	}
}

// PerformGridding runs the cell loop: for every output cell it queries the
// index with the cell's sampling box and time window, reduces the hits to
// one sample, and writes it at the cell's raster index. Cell centres are
// reverse-projected into the latitude/longitude rasters when those are
// requested.
//
// Rows are processed in parallel; every write targets a distinct raster
// index, and the index, input buffer and projector are only read. Cells
// with no admissible hits are not errors — the reduction emits its fill.
func PerformGridding(in InputSpec, out OutputSpec, reduce Reduction, attrs *ReductionAttrs, opts GridOptions) error {
	grid := out.Grid

	if out.Data != nil {
		if reduce.IsUndef() {
			return &ErrUnknownReduction{Name: reduce.Name}
		}
		if err := reduce.CheckDTypes(in.DType, out.DType); err != nil {
			return err
		}
	}

	workers := opts.Workers
	if workers <= 0 {
		workers = runtime.NumCPU()
	}
	if workers > grid.Height {
		workers = grid.Height
	}

	glog.V(1).Infof("gridding %dx%d cells with %d workers", grid.Width, grid.Height, workers)

	rows := make(chan int, grid.Height)
	var wg sync.WaitGroup
	var rowsDone atomic.Int64

	var firstErr error
	var errOnce sync.Once
	fail := func(err error) {
		errOnce.Do(func() { firstErr = err })
	}

	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for v := range rows {
				if err := gridRow(in, out, reduce, attrs, v); err != nil {
					fail(err)
					continue
				}
				done := rowsDone.Add(1)
				if opts.Progress != nil {
					opts.Progress(int(done), grid.Height)
				}
			}
		}()
	}

	for v := 0; v < grid.Height; v++ {
		rows <- v
	}
	close(rows)
	wg.Wait()

	return firstErr
}

// gridRow processes every cell of row v.
func gridRow(in InputSpec, out OutputSpec, reduce Reduction, attrs *ReductionAttrs, v int) error {
	grid := out.Grid

	for u := 0; u < grid.Width; u++ {
		index := grid.CellIndex(u, v)

		if out.Data != nil {
			bounds := grid.CellBounds(u, v)
			results := in.Index.Query(bounds)
			reduce.Call(results, attrs, bounds, in.Data, out.Data, index, in.DType, out.DType)
		}

		if out.Lats != nil || out.Lons != nil {
			x, y := grid.CellCentre(u, v)
			lon, lat, err := grid.Projector.InverseProject(y, x)
			if err != nil {
				return errors.Wrapf(err, "inverse projecting cell (%d, %d)", u, v)
			}
			if out.Lats != nil {
				NumericPut(out.Lats, float32DType, index, lat)
			}
			if out.Lons != nil {
				NumericPut(out.Lons, float32DType, index, lon)
			}
		}
	}
	return nil
}
