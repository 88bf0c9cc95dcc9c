package pointgrid

import (
	"io"
	"math"
	"os"

	"github.com/pkg/errors"

	"github.com/beetlebugorg/pointgrid/internal/gridding"
)

// Index is a queryable spatial index over a set of projected point
// observations. Build one with BuildIndex or BuildIndexFromReader, or
// reload a saved one with LoadIndex. An Index is safe for concurrent
// queries once built.
type Index struct {
	tree      *gridding.KDTree
	projector gridding.Projector
}

// Hit is one observation returned by a query: its projected position, its
// time, and the index of the corresponding record in the input-data array.
type Hit struct {
	X, Y, T     float32
	RecordIndex uint32
}

// BuildIndex reads the given geolocation files and builds an index over
// their observations, projected with the given PROJ.4 definition.
//
// The latitude, longitude and time files are flat arrays of little-endian
// float32 values of equal length. timePath may be empty; all observations
// then carry time zero.
func BuildIndex(latPath, lonPath, timePath, projection string) (*Index, error) {
	projector, err := gridding.NewProjector(projection)
	if err != nil {
		return nil, err
	}

	reader, err := gridding.NewRawFileReader(latPath, lonPath, timePath, projector)
	if err != nil {
		return nil, err
	}
	defer reader.Close()

	tree, err := gridding.BuildKDTree(reader)
	if err != nil {
		return nil, err
	}
	return &Index{tree: tree, projector: projector}, nil
}

// CoordinateReader is a lazy, finite stream of projected observation
// coordinates: Read yields exactly NumRecords (x, y, t) triples and then
// io.EOF.
type CoordinateReader interface {
	NumRecords() int
	Read() (x, y, t float64, err error)
}

// Projector maps between spherical (longitude, latitude, degrees) and
// planar (x, y, projection units) coordinates. Implementations must be
// safe for concurrent calls after construction.
type Projector interface {
	Project(lon, lat float64) (x, y float64, err error)
	InverseProject(y, x float64) (lon, lat float64, err error)
	Definition() string
}

// NewProjector builds a projector from a PROJ.4 definition string.
func NewProjector(definition string) (Projector, error) {
	return gridding.NewProjector(definition)
}

// BuildIndexFromReader builds an index from any coordinate source. The
// projector must be the one the reader projected its coordinates with; it
// is serialized alongside the index and used for reverse-projected
// geolocation rasters.
func BuildIndexFromReader(reader CoordinateReader, projector Projector) (*Index, error) {
	tree, err := gridding.BuildKDTree(reader)
	if err != nil {
		return nil, err
	}
	return &Index{tree: tree, projector: projector}, nil
}

// LoadIndex reads an index previously written by Save.
func LoadIndex(path string) (*Index, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, errors.Wrapf(err, "could not open index file %s", path)
	}
	defer f.Close()

	tree, projector, err := gridding.ReadIndex(f)
	if err != nil {
		return nil, errors.Wrapf(err, "loading index %s", path)
	}
	return &Index{tree: tree, projector: projector}, nil
}

// Save writes the index to path in the versioned binary index format.
func (idx *Index) Save(path string) error {
	f, err := os.Create(path)
	if err != nil {
		return errors.Wrapf(err, "could not create index file %s", path)
	}
	if err := gridding.WriteIndex(f, idx.tree, idx.projector); err != nil {
		f.Close()
		return errors.Wrapf(err, "writing index %s", path)
	}
	return f.Close()
}

// NumObservations returns the number of observations in the index.
func (idx *Index) NumObservations() int {
	return idx.tree.NumObservations()
}

// Projection returns the PROJ.4 definition the observations were
// projected with.
func (idx *Index) Projection() string {
	return idx.projector.Definition()
}

// Query returns every observation inside the given projected box,
// regardless of time.
func (idx *Index) Query(xlo, xhi, ylo, yhi float64) []Hit {
	return idx.QueryTime(xlo, xhi, ylo, yhi, math.Inf(-1), math.Inf(1))
}

// QueryTime returns every observation inside the given projected box whose
// time also lies in [tlo, thi]. All bounds are inclusive.
func (idx *Index) QueryTime(xlo, xhi, ylo, yhi, tlo, thi float64) []Hit {
	set := idx.tree.Query(gridding.Bounds{
		float32(xlo), float32(xhi),
		float32(ylo), float32(yhi),
		float32(tlo), float32(thi),
	})

	hits := make([]Hit, 0, set.Len())
	for item, ok := set.Next(); ok; item, ok = set.Next() {
		hits = append(hits, Hit{X: item.X, Y: item.Y, T: item.T, RecordIndex: item.RecordIndex})
	}
	return hits
}

// Nearest returns the observation closest to the projected point (x, y) by
// planar Euclidean distance. Equidistant observations resolve to whichever
// the traversal reaches first.
func (idx *Index) Nearest(x, y float64) Hit {
	o := idx.tree.NearestNeighbour(float32(x), float32(y))
	return Hit{X: o.X, Y: o.Y, T: o.T, RecordIndex: o.RecordIndex}
}

// Verify checks the structural consistency of the index, writing a
// diagnostic line for every violation to diagnostics (which may be nil)
// and returning the violation count. A freshly built or cleanly loaded
// index always verifies with zero violations.
func (idx *Index) Verify(diagnostics io.Writer) int {
	if diagnostics == nil {
		diagnostics = io.Discard
	}
	return idx.tree.Verify(diagnostics)
}

// Dump writes a human-readable rendering of the index tree to w. Intended
// for debugging small indexes; output grows linearly with the node count.
func (idx *Index) Dump(w io.Writer) {
	idx.tree.Dump(w)
}
