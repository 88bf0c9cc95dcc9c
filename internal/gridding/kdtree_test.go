package gridding

import (
	"bytes"
	"math"
	"math/rand"
	"strings"
	"testing"

	"github.com/dhconnelly/rtreego"
)

// pointReader is a CoordinateReader over an in-memory list of already
// projected (x, y, t) triples.
type pointReader struct {
	points [][3]float64
	next   int
}

func (r *pointReader) NumRecords() int { return len(r.points) }

func (r *pointReader) Read() (float64, float64, float64, error) {
	p := r.points[r.next]
	r.next++
	return p[0], p[1], p[2], nil
}

func buildTestTree(t *testing.T, points [][3]float64) *KDTree {
	t.Helper()
	tree, err := BuildKDTree(&pointReader{points: points})
	if err != nil {
		t.Fatalf("BuildKDTree failed: %v", err)
	}
	return tree
}

func unboundedTime(xlo, xhi, ylo, yhi float64) Bounds {
	return Bounds{
		float32(xlo), float32(xhi),
		float32(ylo), float32(yhi),
		float32(math.Inf(-1)), float32(math.Inf(1)),
	}
}

func bruteForceQuery(points [][3]float64, b Bounds) map[uint32]bool {
	want := make(map[uint32]bool)
	for i, p := range points {
		x, y, tm := float32(p[0]), float32(p[1]), float32(p[2])
		if x >= b[XLo] && x <= b[XHi] && y >= b[YLo] && y <= b[YHi] && tm >= b[TLo] && tm <= b[THi] {
			want[uint32(i)] = true
		}
	}
	return want
}

func collectRecords(set *ResultSet) map[uint32]bool {
	got := make(map[uint32]bool)
	for item, ok := set.Next(); ok; item, ok = set.Next() {
		got[item.RecordIndex] = true
	}
	return got
}

func TestTreeNodeCount(t *testing.T) {
	cases := []struct{ n, want int }{
		{1, 1},
		{2, 3},
		{3, 7},
		{4, 7},
		{5, 15},
		{8, 15},
		{9, 31},
		{1000, 2047},
	}
	for _, c := range cases {
		if got := treeNodeCount(c.n); got != c.want {
			t.Errorf("treeNodeCount(%d) = %d, want %d", c.n, got, c.want)
		}
	}
}

func TestBuildSingleObservation(t *testing.T) {
	tree := buildTestTree(t, [][3]float64{{1, 2, 3}})

	if tree.NumNodes() != 1 {
		t.Errorf("NumNodes() = %d, want 1", tree.NumNodes())
	}

	got := collectRecords(tree.Query(unboundedTime(0, 2, 1, 3)))
	if len(got) != 1 || !got[0] {
		t.Errorf("query should find the single observation, got %v", got)
	}

	if got := collectRecords(tree.Query(unboundedTime(5, 6, 5, 6))); len(got) != 0 {
		t.Errorf("disjoint query should find nothing, got %v", got)
	}
}

func TestQueryMatchesBruteForce(t *testing.T) {
	rng := rand.New(rand.NewSource(42))

	points := make([][3]float64, 1000)
	for i := range points {
		points[i] = [3]float64{
			rng.Float64()*2 - 1,
			rng.Float64()*2 - 1,
			rng.Float64() * 10,
		}
	}
	tree := buildTestTree(t, points)

	for trial := 0; trial < 100; trial++ {
		x1, x2 := rng.Float64()*2-1, rng.Float64()*2-1
		y1, y2 := rng.Float64()*2-1, rng.Float64()*2-1
		b := unboundedTime(min(x1, x2), max(x1, x2), min(y1, y2), max(y1, y2))

		want := bruteForceQuery(points, b)
		got := collectRecords(tree.Query(b))

		if len(got) != len(want) {
			t.Fatalf("trial %d: query found %d observations, brute force found %d", trial, len(got), len(want))
		}
		for record := range want {
			if !got[record] {
				t.Fatalf("trial %d: query missed record %d", trial, record)
			}
		}
	}
}

func TestQueryWithDuplicateCoordinates(t *testing.T) {
	// Many observations sharing positions stresses the median split's
	// equality-on-either-side semantics.
	var points [][3]float64
	for i := 0; i < 30; i++ {
		points = append(points, [3]float64{float64(i % 3), float64(i % 2), 0})
	}
	tree := buildTestTree(t, points)

	b := unboundedTime(-0.5, 0.5, -0.5, 0.5)
	want := bruteForceQuery(points, b)
	got := collectRecords(tree.Query(b))
	if len(got) != len(want) {
		t.Errorf("query found %d observations at the origin, want %d", len(got), len(want))
	}
}

// rtreePoint adapts one observation to the rtreego.Spatial interface.
type rtreePoint struct {
	rect   rtreego.Rect
	record uint32
}

func (p rtreePoint) Bounds() rtreego.Rect { return p.rect }

func TestQueryMatchesRTree(t *testing.T) {
	// An independent spatial index as oracle: integer-grid observations,
	// query boxes with half-unit edges so no point ever grazes a boundary.
	rng := rand.New(rand.NewSource(7))

	var points [][3]float64
	rtree := rtreego.NewTree(2, 25, 50)
	for x := 0; x < 20; x++ {
		for y := 0; y < 20; y++ {
			record := uint32(len(points))
			points = append(points, [3]float64{float64(x), float64(y), 0})

			rect, err := rtreego.NewRect(rtreego.Point{float64(x) - 0.01, float64(y) - 0.01}, []float64{0.02, 0.02})
			if err != nil {
				t.Fatal(err)
			}
			rtree.Insert(rtreePoint{rect: rect, record: record})
		}
	}
	tree := buildTestTree(t, points)

	for trial := 0; trial < 50; trial++ {
		x1, x2 := rng.Intn(20), rng.Intn(20)
		y1, y2 := rng.Intn(20), rng.Intn(20)
		xlo, xhi := float64(min(x1, x2))-0.5, float64(max(x1, x2))+0.5
		ylo, yhi := float64(min(y1, y2))-0.5, float64(max(y1, y2))+0.5

		got := collectRecords(tree.Query(unboundedTime(xlo, xhi, ylo, yhi)))

		rect, err := rtreego.NewRect(rtreego.Point{xlo, ylo}, []float64{xhi - xlo, yhi - ylo})
		if err != nil {
			t.Fatal(err)
		}
		want := make(map[uint32]bool)
		for _, spatial := range rtree.SearchIntersect(rect) {
			want[spatial.(rtreePoint).record] = true
		}

		if len(got) != len(want) {
			t.Fatalf("trial %d: kd-tree found %d observations, R-tree found %d", trial, len(got), len(want))
		}
		for record := range want {
			if !got[record] {
				t.Fatalf("trial %d: kd-tree missed record %d", trial, record)
			}
		}
	}
}

func TestNearestNeighbourMatchesBruteForce(t *testing.T) {
	rng := rand.New(rand.NewSource(99))

	points := make([][3]float64, 1000)
	for i := range points {
		points[i] = [3]float64{rng.Float64()*2 - 1, rng.Float64()*2 - 1, 0}
	}
	tree := buildTestTree(t, points)

	for trial := 0; trial < 100; trial++ {
		qx := float32(rng.Float64()*2 - 1)
		qy := float32(rng.Float64()*2 - 1)

		bestSq := float32(math.Inf(1))
		for _, p := range points {
			dx := float32(p[0]) - qx
			dy := float32(p[1]) - qy
			if d := dx*dx + dy*dy; d < bestSq {
				bestSq = d
			}
		}

		got := tree.NearestNeighbour(qx, qy)
		gotSq := (got.X-qx)*(got.X-qx) + (got.Y-qy)*(got.Y-qy)
		if gotSq != bestSq {
			t.Fatalf("trial %d: tree NN at distance² %v, brute force %v", trial, gotSq, bestSq)
		}
	}
}

func TestVerifyCleanOnBuild(t *testing.T) {
	rng := rand.New(rand.NewSource(3))

	random := make([][3]float64, 500)
	for i := range random {
		random[i] = [3]float64{rng.Float64() * 100, rng.Float64() * 100, 0}
	}

	// Pre-sorted inputs exercise the endpoint extent shortcut from the
	// very first split; random inputs exercise the scanning path.
	sortedX := make([][3]float64, 100)
	for i := range sortedX {
		sortedX[i] = [3]float64{float64(i), rng.Float64(), 0}
	}
	sortedY := make([][3]float64, 100)
	for i := range sortedY {
		sortedY[i] = [3]float64{rng.Float64(), float64(i), 0}
	}

	for name, points := range map[string][][3]float64{
		"random": random, "sortedX": sortedX, "sortedY": sortedY,
	} {
		tree := buildTestTree(t, points)
		var diagnostics bytes.Buffer
		if violations := tree.Verify(&diagnostics); violations != 0 {
			t.Errorf("%s: Verify reported %d violations:\n%s", name, violations, diagnostics.String())
		}
	}
}

func TestVerifyDetectsCorruption(t *testing.T) {
	points := make([][3]float64, 64)
	for i := range points {
		points[i] = [3]float64{float64(i % 8), float64(i / 8), 0}
	}
	tree := buildTestTree(t, points)

	tree.nodes[0].split = -1000

	var diagnostics bytes.Buffer
	if violations := tree.Verify(&diagnostics); violations == 0 {
		t.Error("Verify should report violations after corrupting the root discriminator")
	}
	if !strings.Contains(diagnostics.String(), "incorrect lineage") {
		t.Error("diagnostics should describe the broken lineage")
	}
}

func TestTimeFiltering(t *testing.T) {
	// Five observations at the same position, distinguished only by time.
	points := [][3]float64{
		{5, 5, 0}, {5, 5, 1}, {5, 5, 2}, {5, 5, 3}, {5, 5, 4},
	}
	tree := buildTestTree(t, points)

	b := Bounds{4, 6, 4, 6, 1.5, 3.5}
	var times []float32
	set := tree.Query(b)
	for item, ok := set.Next(); ok; item, ok = set.Next() {
		times = append(times, item.T)
	}

	if len(times) != 2 {
		t.Fatalf("time-windowed query found %d observations, want 2 (times %v)", len(times), times)
	}
	for _, tm := range times {
		if tm != 2 && tm != 3 {
			t.Errorf("time %v selected, want only 2 and 3", tm)
		}
	}
}

func TestDump(t *testing.T) {
	tree := buildTestTree(t, [][3]float64{{0, 0, 0}, {1, 1, 0}, {2, 2, 0}})

	var out bytes.Buffer
	tree.Dump(&out)

	if !strings.Contains(out.String(), "3 observations") {
		t.Errorf("dump should mention the observation count:\n%s", out.String())
	}
	if !strings.Contains(out.String(), "observation") {
		t.Errorf("dump should render terminal nodes:\n%s", out.String())
	}
}
