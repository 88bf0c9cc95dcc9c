package gridding

import (
	"fmt"
	"io"
	"math/bits"
	"runtime"
	"sort"
	"sync"

	"github.com/pkg/errors"
)

// Axis indices into an observation's horizontal dimensions.
const (
	axisX = 0
	axisY = 1
)

// Indices into a Bounds array.
const (
	XLo = iota
	XHi
	YLo
	YHi
	TLo
	THi
)

// Bounds describes an orthogonal query region: inclusive lower and upper
// limits on x, y and t, in that order.
type Bounds [6]float32

// Node tags. The X and Y tags double as the axis index of an internal
// node's discriminator.
const (
	tagX             = axisX
	tagY             = axisY
	tagTerminal      = 3
	tagUninitialised = 4
)

// Observation is one projected input point. RecordIndex links back to the
// corresponding slot in the external input-data array. Observations are
// created during the index build and immutable afterwards.
type Observation struct {
	X, Y, T     float32
	RecordIndex uint32
}

func (o *Observation) coord(axis int) float32 {
	if axis == axisX {
		return o.X
	}
	return o.Y
}

// kdnode is one slot of the implicit-heap node array. Internal nodes carry
// a discriminator on the tagged axis; terminal nodes carry an observation
// index; uninitialised nodes pad the heap when the observation count is
// not a power of two.
type kdnode struct {
	tag   int32
	split float32
	obs   uint32
}

// KDTree is an adaptive 2-d kd-tree over projected observation positions.
// Nodes live in a single contiguous array using implicit-heap addressing:
// root at 0, children of i at 2i+1 and 2i+2. The split axis of each
// internal node is the one with the wider extent in its sub-range.
type KDTree struct {
	nodes        []kdnode
	observations []Observation
}

func leftChild(i int) int  { return 2*i + 1 }
func rightChild(i int) int { return 2*i + 2 }
func parent(i int) int     { return (i+1)/2 - 1 }

// treeNodeCount returns the implicit-heap array length for n observations:
// 2·2^⌈log2 n⌉ − 1, with a minimum of one node.
func treeNodeCount(n int) int {
	if n <= 1 {
		return 1
	}
	leaves := 1 << bits.Len(uint(n-1))
	return 2*leaves - 1
}

// newKDTree allocates an unbuilt tree sized for n observations, with every
// node slot marked uninitialised.
func newKDTree(n int) *KDTree {
	t := &KDTree{
		nodes:        make([]kdnode, treeNodeCount(n)),
		observations: make([]Observation, n),
	}
	for i := range t.nodes {
		t.nodes[i].tag = tagUninitialised
	}
	return t
}

// NumObservations returns the number of observations stored in the tree.
func (t *KDTree) NumObservations() int { return len(t.observations) }

// NumNodes returns the length of the implicit-heap node array.
func (t *KDTree) NumNodes() int { return len(t.nodes) }

// buildParallelDepth bounds how deep into the recursion sibling sub-builds
// still fork goroutines. Beyond it the fan-out already exceeds the core
// count and the remaining work runs serially.
var buildParallelDepth = bits.Len(uint(runtime.NumCPU()))

// BuildKDTree consumes every record of the reader and builds the tree over
// the projected positions. The reader's record order defines each
// observation's RecordIndex.
func BuildKDTree(reader CoordinateReader) (*KDTree, error) {
	n := reader.NumRecords()
	if n == 0 {
		return nil, errors.New("cannot build an index over zero observations")
	}

	t := newKDTree(n)
	for i := 0; i < n; i++ {
		x, y, tm, err := reader.Read()
		if err != nil {
			return nil, errors.Wrapf(err, "reading observation %d of %d", i, n)
		}
		t.observations[i] = Observation{
			X:           float32(x),
			Y:           float32(y),
			T:           float32(tm),
			RecordIndex: uint32(i),
		}
	}

	t.build(0, n-1, 0, -1, 0)
	return t, nil
}

// build recursively turns observations[first..last] into the subtree
// rooted at nodeIndex. sortAxis is the axis the sub-range is currently
// sorted on (-1 when unsorted); the extent on that axis is read from the
// endpoints in O(1), and when the chosen split axis matches it the sort is
// skipped.
func (t *KDTree) build(first, last, nodeIndex, sortAxis, depth int) {
	obs := t.observations

	if first == last {
		t.nodes[nodeIndex] = kdnode{tag: tagTerminal, obs: uint32(first)}
		return
	}

	var xMin, xMax, yMin, yMax float32
	switch sortAxis {
	case axisX:
		xMin = obs[first].X
		xMax = obs[last].X
		yMin, yMax = obs[first].Y, obs[first].Y
		for i := first + 1; i <= last; i++ {
			yMin = min(yMin, obs[i].Y)
			yMax = max(yMax, obs[i].Y)
		}
	case axisY:
		yMin = obs[first].Y
		yMax = obs[last].Y
		xMin, xMax = obs[first].X, obs[first].X
		for i := first + 1; i <= last; i++ {
			xMin = min(xMin, obs[i].X)
			xMax = max(xMax, obs[i].X)
		}
	default:
		xMin, xMax = obs[first].X, obs[first].X
		yMin, yMax = obs[first].Y, obs[first].Y
		for i := first + 1; i <= last; i++ {
			xMin = min(xMin, obs[i].X)
			xMax = max(xMax, obs[i].X)
			yMin = min(yMin, obs[i].Y)
			yMax = max(yMax, obs[i].Y)
		}
	}

	// Split on the wider axis; ties go to Y.
	axis := axisX
	if abs32(yMax-yMin) >= abs32(xMax-xMin) {
		axis = axisY
	}

	if axis != sortAxis {
		sub := obs[first : last+1]
		sort.Slice(sub, func(i, j int) bool {
			return sub[i].coord(axis) < sub[j].coord(axis)
		})
	}

	// Median split: middle element for odd sub-range lengths, mean of the
	// two central elements for even lengths.
	var mid int
	var discriminator float32
	if (last-first)%2 != 0 {
		mid = first + (last-first-1)/2
		discriminator = (obs[mid].coord(axis) + obs[mid+1].coord(axis)) / 2.0
	} else {
		mid = first + (last-first)/2
		discriminator = obs[mid].coord(axis)
	}

	t.nodes[nodeIndex] = kdnode{tag: int32(axis), split: discriminator}

	// The sub-ranges are disjoint and every shared write above is done, so
	// the sibling builds can run in parallel.
	if depth < buildParallelDepth {
		var wg sync.WaitGroup
		wg.Add(1)
		go func() {
			defer wg.Done()
			t.build(first, mid, leftChild(nodeIndex), axis, depth+1)
		}()
		t.build(mid+1, last, rightChild(nodeIndex), axis, depth+1)
		wg.Wait()
	} else {
		t.build(first, mid, leftChild(nodeIndex), axis, depth+1)
		t.build(mid+1, last, rightChild(nodeIndex), axis, depth+1)
	}
}

func abs32(f float32) float32 {
	if f < 0 {
		return -f
	}
	return f
}

// Query returns every observation whose x, y and t all fall inclusively
// within bounds. Time is tested at terminal nodes only; the tree is not
// indexed on it.
func (t *KDTree) Query(bounds Bounds) *ResultSet {
	results := NewResultSet()
	t.queryAt(bounds, results, 0)
	return results
}

func (t *KDTree) queryAt(bounds Bounds, results *ResultSet, nodeIndex int) {
	node := &t.nodes[nodeIndex]

	if node.tag == tagTerminal {
		o := &t.observations[node.obs]
		if o.X >= bounds[XLo] && o.X <= bounds[XHi] &&
			o.Y >= bounds[YLo] && o.Y <= bounds[YHi] &&
			o.T >= bounds[TLo] && o.T <= bounds[THi] {
			results.Insert(o.X, o.Y, o.T, o.RecordIndex)
		}
		return
	}

	// The discriminator can lie below, inside, or above the search range
	// on its axis; search left of it, right of it, or both accordingly.
	if node.split >= bounds[2*node.tag+boundLower] {
		t.queryAt(bounds, results, leftChild(nodeIndex))
	}
	if node.split <= bounds[2*node.tag+boundUpper] {
		t.queryAt(bounds, results, rightChild(nodeIndex))
	}
}

const (
	boundLower = 0
	boundUpper = 1
)

// NearestNeighbour returns the observation closest to (x, y) by planar
// Euclidean distance. Time is ignored. Equidistant observations resolve to
// whichever the traversal reaches first.
func (t *KDTree) NearestNeighbour(x, y float32) *Observation {
	return t.nearestAt(x, y, 0)
}

func (t *KDTree) nearestAt(x, y float32, nodeIndex int) *Observation {
	node := &t.nodes[nodeIndex]

	if node.tag == tagTerminal {
		return &t.observations[node.obs]
	}

	target := x
	if node.tag == tagY {
		target = y
	}
	pivotDistance := node.split - target

	// Descend the side of the split the target lies on first; the other
	// side can only matter if the splitting plane is closer than the best
	// match found so far.
	near, away := rightChild(nodeIndex), leftChild(nodeIndex)
	if pivotDistance > 0 {
		near, away = away, near
	}

	best := t.nearestAt(x, y, near)
	bestSq := squared(best.X-x) + squared(best.Y-y)

	if bestSq > squared(pivotDistance) {
		candidate := t.nearestAt(x, y, away)
		candidateSq := squared(candidate.X-x) + squared(candidate.Y-y)
		if candidateSq < bestSq {
			return candidate
		}
	}
	return best
}

func squared(f float32) float32 { return f * f }

// Verify walks every terminal node's ancestry to the root, checking that
// each parent discriminator correctly divides the space: a left child's
// observation must not exceed the discriminator on the parent's axis, a
// right child's must not fall below it. Diagnostics are written to w; the
// return value is the number of violations found.
func (t *KDTree) Verify(w io.Writer) int {
	violations := 0

	for nodeIndex := range t.nodes {
		if t.nodes[nodeIndex].tag != tagTerminal {
			continue
		}
		o := &t.observations[t.nodes[nodeIndex].obs]

		// Left children occupy odd slots, right children even slots.
		current := nodeIndex
		for current > 0 {
			parentIndex := parent(current)
			isLeftChild := current%2 == 1

			parentNode := &t.nodes[parentIndex]
			value := o.coord(int(parentNode.tag))

			correct := parentNode.split <= value
			if isLeftChild {
				correct = parentNode.split >= value
			}
			if !correct {
				side := "right"
				if isLeftChild {
					side = "left"
				}
				fmt.Fprintf(w, "observation (%f, %f) has an incorrect lineage: as a %s descendant of node %d (axis %d), discriminator %f is invalid\n",
					o.X, o.Y, side, parentIndex, parentNode.tag, parentNode.split)
				violations++
			}

			current = parentIndex
		}
	}

	return violations
}

// Dump writes an indented rendering of the tree to w, one node per line.
func (t *KDTree) Dump(w io.Writer) {
	fmt.Fprintf(w, "kd-tree with %d observations in %d nodes\n", len(t.observations), len(t.nodes))
	t.dumpAt(w, 0, 0)
}

func (t *KDTree) dumpAt(w io.Writer, nodeIndex, indent int) {
	for i := 0; i < indent; i++ {
		io.WriteString(w, " ")
	}

	node := &t.nodes[nodeIndex]
	switch node.tag {
	case tagTerminal:
		o := &t.observations[node.obs]
		fmt.Fprintf(w, "%d: observation %d (%f, %f, %f) record %d\n",
			nodeIndex, node.obs, o.X, o.Y, o.T, o.RecordIndex)
	case tagUninitialised:
		fmt.Fprintf(w, "%d: unused\n", nodeIndex)
	case tagX:
		fmt.Fprintf(w, "%d: X < %f\n", nodeIndex, node.split)
		t.dumpAt(w, leftChild(nodeIndex), indent+1)
		t.dumpAt(w, rightChild(nodeIndex), indent+1)
	case tagY:
		fmt.Fprintf(w, "%d: Y < %f\n", nodeIndex, node.split)
		t.dumpAt(w, leftChild(nodeIndex), indent+1)
		t.dumpAt(w, rightChild(nodeIndex), indent+1)
	}
}
