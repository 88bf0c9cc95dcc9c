// Example 01: Build a spatial index from raw geolocation files and save
// it for later gridding runs.
//
// Usage:
//
//	go run main.go <lats.bin> <lons.bin> <times.bin> <index.out>
//
// The input files are flat arrays of little-endian float32 values; pass
// "" for the time file to index observations without timestamps.
package main

import (
	"fmt"
	"log"
	"os"

	"github.com/beetlebugorg/pointgrid/pkg/pointgrid"
)

func main() {
	if len(os.Args) != 5 {
		log.Fatalf("usage: %s <lats.bin> <lons.bin> <times.bin> <index.out>", os.Args[0])
	}
	latPath, lonPath, timePath, indexPath := os.Args[1], os.Args[2], os.Args[3], os.Args[4]

	idx, err := pointgrid.BuildIndex(latPath, lonPath, timePath, "+proj=eqc +datum=WGS84")
	if err != nil {
		log.Fatal(err)
	}
	fmt.Printf("Indexed %d observations (projection %s)\n",
		idx.NumObservations(), idx.Projection())

	if violations := idx.Verify(os.Stderr); violations != 0 {
		log.Fatalf("index verification found %d violations", violations)
	}

	if err := idx.Save(indexPath); err != nil {
		log.Fatal(err)
	}
	fmt.Printf("Saved index to %s\n", indexPath)
}
