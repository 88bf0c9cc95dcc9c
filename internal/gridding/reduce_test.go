package gridding

import (
	"bytes"
	"errors"
	"math"
	"testing"

	"gonum.org/v1/gonum/floats"
)

const testFill = -999.0

// quartet builds the result set and input buffer used across the reduction
// tests: four hits at the corners of the unit square with values
// {1, 2, fill, 4} and times {0, 1, 2, 3}.
func quartet(t *testing.T) (*ResultSet, []byte, DType) {
	t.Helper()

	set := NewResultSet()
	set.Insert(0, 0, 0, 0)
	set.Insert(0, 1, 1, 1)
	set.Insert(1, 0, 2, 2)
	set.Insert(1, 1, 3, 3)

	d, err := ParseDType("float32")
	if err != nil {
		t.Fatal(err)
	}
	buf := make([]byte, 4*d.Size)
	for i, v := range []float64{1, 2, testFill, 4} {
		NumericPut(buf, d, i, v)
	}
	return set, buf, d
}

// unitCell is the query box covering the quartet, centred on (0.5, 0.5).
var unitCell = Bounds{-0.5, 1.5, -0.5, 1.5, float32(math.Inf(-1)), float32(math.Inf(1))}

var testAttrs = &ReductionAttrs{InputFill: testFill, OutputFill: testFill}

func runReduction(t *testing.T, name string, set *ResultSet, input []byte, d DType) float64 {
	t.Helper()
	r := ReductionByName(name)
	if r.IsUndef() {
		t.Fatalf("reduction %q not registered", name)
	}
	output := make([]byte, d.Size)
	r.Call(set, testAttrs, unitCell, input, output, 0, d, d)
	return NumericGet(output, d, 0)
}

func TestReductionByNameUnknown(t *testing.T) {
	if r := ReductionByName("no_such_reduction"); !r.IsUndef() {
		t.Errorf("unknown name should return the undef sentinel, got %q", r.Name)
	}
	if r := ReductionByName("mean"); r.IsUndef() {
		t.Error("mean should be registered")
	}
}

func TestReductionStylePairing(t *testing.T) {
	f32, _ := ParseDType("float32")
	f64, _ := ParseDType("float64")
	c16, _ := ParseDType("coded16")
	c32, _ := ParseDType("coded32")

	mean := ReductionByName("mean")
	if err := mean.CheckDTypes(f32, f64); err != nil {
		t.Errorf("numeric reduction with numeric dtypes should pass: %v", err)
	}
	var mismatch *ErrStyleMismatch
	if err := mean.CheckDTypes(c32, f32); !errors.As(err, &mismatch) {
		t.Errorf("numeric reduction with coded input: expected ErrStyleMismatch, got %v", err)
	}

	codedNN := ReductionByName("coded_nearest_neighbour")
	if err := codedNN.CheckDTypes(c32, c32); err != nil {
		t.Errorf("coded reduction with equal coded dtypes should pass: %v", err)
	}
	if err := codedNN.CheckDTypes(c32, c16); !errors.As(err, &mismatch) {
		t.Errorf("coded reduction with differing widths: expected ErrStyleMismatch, got %v", err)
	}
	if err := codedNN.CheckDTypes(f32, f32); !errors.As(err, &mismatch) {
		t.Errorf("coded reduction with numeric dtypes: expected ErrStyleMismatch, got %v", err)
	}
}

func TestReduceMean(t *testing.T) {
	set, input, d := quartet(t)
	got := runReduction(t, "mean", set, input, d)

	want := floats.Sum([]float64{1, 2, 4}) / 3
	if math.Abs(got-want) > 1e-6 {
		t.Errorf("mean = %v, want %v", got, want)
	}
}

func TestReduceMeanSingleton(t *testing.T) {
	set := NewResultSet()
	set.Insert(0.5, 0.5, 0, 0)

	d, _ := ParseDType("float64")
	input := make([]byte, d.Size)
	NumericPut(input, d, 0, 42.25)

	output := make([]byte, d.Size)
	ReductionByName("mean").Call(set, testAttrs, unitCell, input, output, 0, d, d)
	if got := NumericGet(output, d, 0); got != 42.25 {
		t.Errorf("mean of singleton = %v, want exactly 42.25", got)
	}
}

func TestReduceMedian(t *testing.T) {
	set, input, d := quartet(t)
	if got := runReduction(t, "median", set, input, d); got != 2 {
		t.Errorf("median = %v, want 2", got)
	}
}

func TestReduceNewest(t *testing.T) {
	set, input, d := quartet(t)
	if got := runReduction(t, "newest", set, input, d); got != 4 {
		t.Errorf("newest = %v, want 4 (the value of the latest non-fill hit)", got)
	}
}

func TestReduceNumericNearestNeighbour(t *testing.T) {
	set, input, d := quartet(t)
	got := runReduction(t, "numeric_nearest_neighbour", set, input, d)

	// All four hits are equidistant from the centre; the tie-break is
	// first-seen, but any non-fill value is acceptable.
	if got != 1 && got != 2 && got != 4 {
		t.Errorf("nearest neighbour = %v, want one of {1, 2, 4}", got)
	}
}

func TestReduceNumericNearestNeighbourPrefersCloser(t *testing.T) {
	set := NewResultSet()
	set.Insert(0.4, 0.5, 0, 0) // distance 0.1 from centre
	set.Insert(0, 0, 0, 1)     // farther

	d, _ := ParseDType("float32")
	input := make([]byte, 2*d.Size)
	NumericPut(input, d, 0, 7)
	NumericPut(input, d, 1, 9)

	output := make([]byte, d.Size)
	ReductionByName("numeric_nearest_neighbour").Call(set, testAttrs, unitCell, input, output, 0, d, d)
	if got := NumericGet(output, d, 0); got != 7 {
		t.Errorf("nearest neighbour = %v, want 7 (the closer hit)", got)
	}
}

func TestReduceWeightedMean(t *testing.T) {
	set := NewResultSet()
	set.Insert(0.5, 0.0, 0, 0) // distance 0.5 from centre
	set.Insert(0.5, 1.5, 0, 1) // distance 1.0

	d, _ := ParseDType("float32")
	input := make([]byte, 2*d.Size)
	NumericPut(input, d, 0, 10)
	NumericPut(input, d, 1, 40)

	output := make([]byte, d.Size)
	ReductionByName("weighted_mean").Call(set, testAttrs, unitCell, input, output, 0, d, d)

	want := (10*0.5 + 40*1.0) / (0.5 + 1.0)
	if got := NumericGet(output, d, 0); math.Abs(got-want) > 1e-6 {
		t.Errorf("weighted mean = %v, want %v", got, want)
	}
}

func TestNumericReductionsEmptySetEmitFill(t *testing.T) {
	d, _ := ParseDType("float32")
	input := make([]byte, d.Size)

	for _, name := range []string{"mean", "weighted_mean", "median", "numeric_nearest_neighbour", "newest"} {
		output := make([]byte, d.Size)
		ReductionByName(name).Call(NewResultSet(), testAttrs, unitCell, input, output, 0, d, d)
		if got := NumericGet(output, d, 0); got != testFill {
			t.Errorf("%s on empty set = %v, want fill %v", name, got, testFill)
		}
	}
}

func TestNumericReductionsAllFillEmitFill(t *testing.T) {
	d, _ := ParseDType("float32")
	input := make([]byte, 2*d.Size)
	NumericPut(input, d, 0, testFill)
	NumericPut(input, d, 1, testFill)

	for _, name := range []string{"mean", "weighted_mean", "median", "numeric_nearest_neighbour", "newest"} {
		set := NewResultSet()
		set.Insert(0.2, 0.2, 0, 0)
		set.Insert(0.8, 0.8, 1, 1)

		output := make([]byte, d.Size)
		ReductionByName(name).Call(set, testAttrs, unitCell, input, output, 0, d, d)
		if got := NumericGet(output, d, 0); got != testFill {
			t.Errorf("%s with only fill inputs = %v, want fill %v", name, got, testFill)
		}
	}
}

func TestReduceCodedNearestNeighbour(t *testing.T) {
	d, _ := ParseDType("coded32")
	input := make([]byte, 2*d.Size)
	CodedPut(input, d, 0, []byte{1, 2, 3, 4})
	CodedPut(input, d, 1, []byte{9, 9, 9, 9})

	set := NewResultSet()
	set.Insert(0.6, 0.6, 0, 0) // closer to centre
	set.Insert(0, 0, 0, 1)

	output := make([]byte, d.Size)
	ReductionByName("coded_nearest_neighbour").Call(set, testAttrs, unitCell, input, output, 0, d, d)
	if !bytes.Equal(output, []byte{1, 2, 3, 4}) {
		t.Errorf("coded NN = % x, want the closer hit's bytes", output)
	}
}

func TestReduceCodedNearestNeighbourEmptySetZeroFills(t *testing.T) {
	d, _ := ParseDType("coded64")
	input := make([]byte, d.Size)

	output := bytes.Repeat([]byte{0xFF}, d.Size)
	ReductionByName("coded_nearest_neighbour").Call(NewResultSet(), testAttrs, unitCell, input, output, 0, d, d)
	if !bytes.Equal(output, make([]byte, d.Size)) {
		t.Errorf("coded NN on empty set = % x, want all zero bytes", output)
	}
}
