// Command pointgrid grids scattered point observations onto a regular
// raster. It builds (or reloads) a spatial index over the input
// geolocation, then reduces the observations selected by each output
// cell's sampling box and time window to a single value.
package main

import (
	"flag"
	"fmt"
	"math"
	"os"
	"strings"
	"time"

	"github.com/golang/glog"

	"github.com/beetlebugorg/pointgrid/pkg/pointgrid"
)

var (
	// Index controls
	inputLats  = flag.String("input-lats", "", "filename for input latitudes")
	inputLons  = flag.String("input-lons", "", "filename for input longitudes")
	inputTime  = flag.String("input-time", "", "filename for input times (optional)")
	projection = flag.String("projection", "+proj=eqc +datum=WGS84", "projection as a PROJ.4 compatible string")
	saveIndex  = flag.String("save-index", "", "save the index to a file")
	loadIndex  = flag.String("load-index", "", "load a pre-generated index from a file")
	verifyIdx  = flag.Bool("verify-index", false, "verify the index structure after building or loading")

	// Input data
	inputData = flag.String("input-data", "", "filename for input data")
	inputDT   = flag.String("input-dtype", "float32", "dtype of the input data file")
	inputFill = flag.Float64("input-fill-value", -999.0, "fill value of the input data file")

	// Output data
	outputData = flag.String("output-data", "", "filename for output data")
	outputDT   = flag.String("output-dtype", "float32", "dtype of the output data file")
	outputFill = flag.Float64("output-fill-value", -999.0, "fill value of the output data file")
	outputLats = flag.String("output-lats", "", "filename for output latitudes")
	outputLons = flag.String("output-lons", "", "filename for output longitudes")

	// Image generation
	height    = flag.Int("height", 360, "height of the output grid in pixels")
	width     = flag.Int("width", 720, "width of the output grid in pixels")
	vres      = flag.Float64("vres", 0, "vertical resolution in projection units (default polar circumference / (2*height))")
	hres      = flag.Float64("hres", 0, "horizontal resolution in projection units (default equatorial circumference / width)")
	centralY  = flag.Float64("central-y", 0, "vertical position of the grid centre in projection units")
	centralX  = flag.Float64("central-x", 0, "horizontal position of the grid centre in projection units")
	vsample   = flag.Float64("vsample", 0, "vertical sampling box size (default value of -vres)")
	hsample   = flag.Float64("hsample", 0, "horizontal sampling box size (default value of -hres)")
	reduction = flag.String("reduction-function", "mean",
		"reduction function (numeric: "+strings.Join(pointgrid.NumericReductions(), ", ")+
			"; coded: "+strings.Join(pointgrid.CodedReductions(), ", ")+")")
	timeMin   = flag.Float64("time-min", math.Inf(-1), "earliest time to select from")
	timeMax   = flag.Float64("time-max", math.Inf(1), "latest time to select from")

	// General
	verbose = flag.Bool("verbose", false, "increase verbosity")
)

func main() {
	flag.Parse()

	flag.Set("logtostderr", "true")
	if *verbose {
		flag.Set("v", "1")
	}

	if *height <= 0 || *width <= 0 {
		glog.Exitf("width and height must be positive integers (got %d, %d)", *width, *height)
	}
	if *vres < 0 || *hres < 0 || *vsample < 0 || *hsample < 0 {
		glog.Exit("resolutions and sampling sizes must be positive")
	}

	generating := *outputData != "" || *outputLats != "" || *outputLons != ""

	var idx *pointgrid.Index
	var err error

	if *loadIndex != "" {
		idx, err = pointgrid.LoadIndex(*loadIndex)
		if err != nil {
			glog.Exitf("%v", err)
		}
		glog.V(1).Infof("loaded index of %d observations (projection %s)",
			idx.NumObservations(), idx.Projection())
	} else {
		if *inputLats == "" || *inputLons == "" {
			glog.Exit("unless loading a pre-generated index, -input-lats and -input-lons are required")
		}

		start := time.Now()
		idx, err = pointgrid.BuildIndex(*inputLats, *inputLons, *inputTime, *projection)
		if err != nil {
			glog.Exitf("%v", err)
		}
		glog.V(1).Infof("built index of %d observations in %v", idx.NumObservations(), time.Since(start))
	}

	if *verifyIdx {
		if violations := idx.Verify(os.Stderr); violations != 0 {
			glog.Exitf("corrupt index: verification found %d violations", violations)
		}
		glog.V(1).Info("index verified as correct")
	}

	if *saveIndex != "" {
		if err := idx.Save(*saveIndex); err != nil {
			glog.Exitf("%v", err)
		}
		glog.V(1).Infof("saved index to %s", *saveIndex)
	}

	if !generating {
		return
	}

	if *outputData != "" && *inputData == "" {
		glog.Exit("generating a data raster requires -input-data")
	}

	opts := pointgrid.GridOptions{
		Width:       *width,
		Height:      *height,
		HRes:        *hres,
		VRes:        *vres,
		HSample:     *hsample,
		VSample:     *vsample,
		CentralX:    *centralX,
		CentralY:    *centralY,
		TimeMin:     *timeMin,
		TimeMax:     *timeMax,
		Reduction:   *reduction,
		InputDType:  *inputDT,
		OutputDType: *outputDT,
		InputFill:   *inputFill,
		OutputFill:  *outputFill,
		InputData:   *inputData,
		OutputData:  *outputData,
		OutputLats:  *outputLats,
		OutputLons:  *outputLons,
	}
	if *verbose {
		opts.Progress = func(done, total int) {
			if done == total || done%50 == 0 {
				fmt.Fprintf(os.Stderr, "\rgridding: %d/%d rows", done, total)
				if done == total {
					fmt.Fprintln(os.Stderr)
				}
			}
		}
	}

	start := time.Now()
	if err := idx.Grid(opts); err != nil {
		glog.Exitf("%v", err)
	}
	glog.V(1).Infof("built output image in %v", time.Since(start))
}
