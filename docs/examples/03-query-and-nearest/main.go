// Example 03: Interrogate a saved index directly — range queries over a
// projected box and nearest-observation lookups.
//
// Usage:
//
//	go run main.go <index.bin>
package main

import (
	"fmt"
	"log"
	"os"

	"github.com/beetlebugorg/pointgrid/pkg/pointgrid"
)

func main() {
	if len(os.Args) != 2 {
		log.Fatalf("usage: %s <index.bin>", os.Args[0])
	}

	idx, err := pointgrid.LoadIndex(os.Args[1])
	if err != nil {
		log.Fatal(err)
	}
	fmt.Printf("Index holds %d observations\n", idx.NumObservations())

	// A one-degree box at the equator, in equidistant-cylindrical metres.
	degree := pointgrid.WGS84EquatorialCircumference / 360
	hits := idx.Query(-degree/2, degree/2, -degree/2, degree/2)
	fmt.Printf("Observations within half a degree of the origin: %d\n", len(hits))
	for i, hit := range hits {
		if i >= 5 {
			fmt.Printf("  ... and %d more\n", len(hits)-5)
			break
		}
		fmt.Printf("  record %d at (%.1f, %.1f) t=%.1f\n", hit.RecordIndex, hit.X, hit.Y, hit.T)
	}

	nearest := idx.Nearest(0, 0)
	fmt.Printf("Nearest observation to the origin: record %d at (%.1f, %.1f)\n",
		nearest.RecordIndex, nearest.X, nearest.Y)
}
