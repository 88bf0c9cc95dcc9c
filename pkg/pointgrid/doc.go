// Package pointgrid grids irregularly-sampled geospatial point
// observations onto regular rasters in a chosen map projection.
//
// Observations are read as parallel arrays of latitude, longitude and
// (optionally) time, forward-projected, and indexed in an adaptive 2-d
// kd-tree. Each output cell then selects the observations falling inside
// its sampling box and time window and reduces them to a single value
// with a pluggable reduction function (mean, distance-weighted mean,
// median, nearest neighbour, newest).
//
// A typical run builds (or loads) an index and grids one variable:
//
//	idx, err := pointgrid.BuildIndex("lats.bin", "lons.bin", "times.bin",
//	    "+proj=eqc +datum=WGS84")
//	if err != nil {
//	    log.Fatal(err)
//	}
//
//	opts := pointgrid.DefaultGridOptions()
//	opts.InputData = "sst.bin"
//	opts.OutputData = "sst_gridded.bin"
//	opts.Reduction = "mean"
//	if err := idx.Grid(opts); err != nil {
//	    log.Fatal(err)
//	}
//
// Index builds are the expensive step; Save and LoadIndex persist them in
// a versioned binary format so many gridding runs can share one build.
package pointgrid
