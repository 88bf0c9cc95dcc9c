package gridding

import (
	"math"
)

// ReductionAttrs carries the fill values a reduction uses to recognise
// missing input samples and to mark unresolvable output cells. Both are in
// the float64 working type.
type ReductionAttrs struct {
	InputFill  float64
	OutputFill float64
}

// ReductionFunc reduces one cell's result set to a single output sample.
// Values are read from input at each hit's record index and the result is
// written to output at outputIndex, both through the dtype accessors.
type ReductionFunc func(set *ResultSet, attrs *ReductionAttrs, bounds Bounds,
	input, output []byte, outputIndex int, inDType, outDType DType)

// Reduction is a named, styled reduction function.
type Reduction struct {
	Name  string
	Style Style
	Call  ReductionFunc
}

// IsUndef reports whether this is the sentinel returned for unknown names.
func (r Reduction) IsUndef() bool { return r.Style == StyleUndef }

// CheckDTypes validates the reduction's style pairing: coded reductions
// require equal coded dtypes on input and output, numeric reductions
// require numeric dtypes on both.
func (r Reduction) CheckDTypes(input, output DType) error {
	switch r.Style {
	case StyleCoded:
		if input.Style != StyleCoded || output.Style != StyleCoded || !input.Equal(output) {
			return &ErrStyleMismatch{Function: r.Name, Input: input, Output: output}
		}
	case StyleNumeric:
		if input.Style != StyleNumeric || output.Style != StyleNumeric {
			return &ErrStyleMismatch{Function: r.Name, Input: input, Output: output}
		}
	}
	return nil
}

var reductionRegistry = []Reduction{
	{"undef", StyleUndef, nil},
	{"mean", StyleNumeric, reduceNumericMean},
	{"weighted_mean", StyleNumeric, reduceNumericWeightedMean},
	{"median", StyleNumeric, reduceNumericMedian},
	{"coded_nearest_neighbour", StyleCoded, reduceCodedNearestNeighbour},
	{"numeric_nearest_neighbour", StyleNumeric, reduceNumericNearestNeighbour},
	{"newest", StyleNumeric, reduceNumericNewest},
}

// ReductionByName looks up a reduction by exact name. Unknown names return
// the undef sentinel, distinguishable via IsUndef.
func ReductionByName(name string) Reduction {
	for _, r := range reductionRegistry {
		if r.Name == name {
			return r
		}
	}
	return reductionRegistry[0]
}

// ReductionNames returns the registered reduction names of a style.
func ReductionNames(style Style) []string {
	var names []string
	for _, r := range reductionRegistry {
		if r.Style == style {
			names = append(names, r.Name)
		}
	}
	return names
}

func cellCentre(bounds Bounds) (float64, float64) {
	cx := (float64(bounds[XLo]) + float64(bounds[XHi])) / 2.0
	cy := (float64(bounds[YLo]) + float64(bounds[YHi])) / 2.0
	return cx, cy
}

// reduceNumericMean computes the arithmetic mean of the non-fill values.
func reduceNumericMean(set *ResultSet, attrs *ReductionAttrs, bounds Bounds,
	input, output []byte, outputIndex int, inDType, outDType DType) {

	sum := 0.0
	count := 0

	for item, ok := set.Next(); ok; item, ok = set.Next() {
		value := NumericGet(input, inDType, int(item.RecordIndex))
		if value == attrs.InputFill {
			continue
		}
		sum += value
		count++
	}

	result := attrs.OutputFill
	if count > 0 {
		result = sum / float64(count)
	}
	NumericPut(output, outDType, outputIndex, result)
}

// reduceNumericWeightedMean computes Σ(v·d)/Σd, weighting each non-fill
// value by its Euclidean distance from the cell centre.
func reduceNumericWeightedMean(set *ResultSet, attrs *ReductionAttrs, bounds Bounds,
	input, output []byte, outputIndex int, inDType, outDType DType) {

	centralX, centralY := cellCentre(bounds)
	sum := 0.0
	totalDistance := 0.0

	for item, ok := set.Next(); ok; item, ok = set.Next() {
		value := NumericGet(input, inDType, int(item.RecordIndex))
		if value == attrs.InputFill {
			continue
		}
		distance := math.Hypot(centralX-float64(item.X), centralY-float64(item.Y))
		sum += value * distance
		totalDistance += distance
	}

	result := attrs.OutputFill
	if totalDistance != 0.0 {
		result = sum / totalDistance
	}
	NumericPut(output, outDType, outputIndex, result)
}

// reduceNumericMedian computes the quickselect median of the non-fill
// values. The only reduction needing a second look at the values, so they
// are copied into a scratch slice up front.
func reduceNumericMedian(set *ResultSet, attrs *ReductionAttrs, bounds Bounds,
	input, output []byte, outputIndex int, inDType, outDType DType) {

	values := make([]float64, 0, set.Len())

	for item, ok := set.Next(); ok; item, ok = set.Next() {
		value := NumericGet(input, inDType, int(item.RecordIndex))
		if value == attrs.InputFill {
			continue
		}
		values = append(values, value)
	}

	result := attrs.OutputFill
	if len(values) > 0 {
		result = Median(values)
	}
	NumericPut(output, outDType, outputIndex, result)
}

// reduceNumericNearestNeighbour selects the non-fill value closest to the
// cell centre by squared planar distance. Ties keep the first hit seen.
func reduceNumericNearestNeighbour(set *ResultSet, attrs *ReductionAttrs, bounds Bounds,
	input, output []byte, outputIndex int, inDType, outDType DType) {

	centralX, centralY := cellCentre(bounds)
	lowestDistance := math.Inf(1)
	best := attrs.OutputFill

	for item, ok := set.Next(); ok; item, ok = set.Next() {
		value := NumericGet(input, inDType, int(item.RecordIndex))
		if value == attrs.InputFill {
			continue
		}
		dx := centralX - float64(item.X)
		dy := centralY - float64(item.Y)
		distance := dx*dx + dy*dy
		if distance < lowestDistance {
			lowestDistance = distance
			best = value
		}
	}

	NumericPut(output, outDType, outputIndex, best)
}

// reduceCodedNearestNeighbour byte-copies the sample of the hit closest to
// the cell centre. Empty cells get a zero-filled sample rather than a
// configurable fill: coded data has no numeric fill representation.
func reduceCodedNearestNeighbour(set *ResultSet, attrs *ReductionAttrs, bounds Bounds,
	input, output []byte, outputIndex int, inDType, outDType DType) {

	centralX, centralY := cellCentre(bounds)
	lowestDistance := math.Inf(1)
	best := make([]byte, inDType.Size)

	for item, ok := set.Next(); ok; item, ok = set.Next() {
		dx := centralX - float64(item.X)
		dy := centralY - float64(item.Y)
		distance := dx*dx + dy*dy
		if distance < lowestDistance {
			lowestDistance = distance
			CodedGet(input, inDType, int(item.RecordIndex), best)
		}
	}

	CodedPut(output, outDType, outputIndex, best)
}

// reduceNumericNewest selects the non-fill value with the greatest time.
func reduceNumericNewest(set *ResultSet, attrs *ReductionAttrs, bounds Bounds,
	input, output []byte, outputIndex int, inDType, outDType DType) {

	latest := float32(math.Inf(-1))
	newest := attrs.OutputFill

	for item, ok := set.Next(); ok; item, ok = set.Next() {
		value := NumericGet(input, inDType, int(item.RecordIndex))
		if value == attrs.InputFill {
			continue
		}
		if item.T > latest {
			latest = item.T
			newest = value
		}
	}

	NumericPut(output, outDType, outputIndex, newest)
}
