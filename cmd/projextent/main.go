// Command projextent projects a latitude/longitude box and reports the
// grid geometry needed to cover it: the projected corners, the centre in
// projection units, and the pixel dimensions at a chosen resolution.
// Useful for picking -central-x/-central-y and -width/-height values for
// a pointgrid run over a regional grid.
package main

import (
	"flag"
	"fmt"
	"math"
	"os"

	"github.com/beetlebugorg/pointgrid/internal/gridding"
)

var (
	projection = flag.String("projection", "+proj=eqc +datum=WGS84", "projection as a PROJ.4 compatible string")
	north      = flag.Float64("north", 90, "northern latitude bound in degrees")
	south      = flag.Float64("south", -90, "southern latitude bound in degrees")
	east       = flag.Float64("east", 180, "eastern longitude bound in degrees")
	west       = flag.Float64("west", -180, "western longitude bound in degrees")
	hres       = flag.Float64("hres", 0, "horizontal resolution in projection units")
	vres       = flag.Float64("vres", 0, "vertical resolution in projection units")
)

func main() {
	flag.Parse()

	if *hres <= 0 || *vres <= 0 {
		fmt.Fprintln(os.Stderr, "-hres and -vres must be positive")
		os.Exit(1)
	}

	projector, err := gridding.NewProjector(*projection)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}

	trX, trY, err := projector.Project(*east, *north)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
	blX, blY, err := projector.Project(*west, *south)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}

	centreX := (trX + blX) / 2.0
	centreY := (trY + blY) / 2.0
	width := int(math.Ceil(math.Abs(trX-blX) / *hres))
	height := int(math.Ceil(math.Abs(trY-blY) / *vres))

	fmt.Printf("Top right:   (%f, %f)\n", trX, trY)
	fmt.Printf("Bottom left: (%f, %f)\n", blX, blY)
	fmt.Printf("Centre:      (%f, %f)\n", centreX, centreY)
	fmt.Printf("Width: %d, Height: %d\n", width, height)
}
