// Example 02: Grid a variable onto a global half-degree raster using a
// previously saved index.
//
// Usage:
//
//	go run main.go <index.bin> <data.bin> <output.bin>
//
// The data file holds one float32 value per indexed observation, in the
// same order as the geolocation files the index was built from.
package main

import (
	"fmt"
	"log"
	"os"

	"github.com/beetlebugorg/pointgrid/pkg/pointgrid"
)

func main() {
	if len(os.Args) != 4 {
		log.Fatalf("usage: %s <index.bin> <data.bin> <output.bin>", os.Args[0])
	}
	indexPath, dataPath, outputPath := os.Args[1], os.Args[2], os.Args[3]

	idx, err := pointgrid.LoadIndex(indexPath)
	if err != nil {
		log.Fatal(err)
	}

	opts := pointgrid.DefaultGridOptions()
	opts.InputData = dataPath
	opts.OutputData = outputPath
	opts.Reduction = "mean"
	opts.Progress = func(done, total int) {
		fmt.Printf("\rGridding: %d/%d rows (%.0f%%)", done, total,
			float64(done)/float64(total)*100)
	}

	if err := idx.Grid(opts); err != nil {
		log.Fatal(err)
	}
	fmt.Printf("\nWrote %dx%d raster to %s\n", opts.Width, opts.Height, outputPath)
}
