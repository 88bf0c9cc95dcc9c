package gridding

import (
	"bufio"
	"encoding/binary"
	"io"
	"math"
	"strconv"
	"strings"

	"github.com/ctessum/geom/proj"
	"github.com/pkg/errors"
)

// Projector maps between spherical (longitude, latitude, degrees) and
// planar (x, y, projection units) coordinates. Implementations must treat
// their internal state as read-only after construction: both directions
// are called concurrently from the gridding workers.
type Projector interface {
	// Project maps a longitude/latitude pair (degrees) to planar x/y.
	Project(lon, lat float64) (x, y float64, err error)

	// InverseProject maps a planar y/x pair back to longitude/latitude
	// (degrees).
	InverseProject(y, x float64) (lon, lat float64, err error)

	// Definition returns the PROJ.4 definition string this projector was
	// built from. It is what gets embedded in a saved index.
	Definition() string
}

// NewProjector builds a projector from a PROJ.4 definition string.
//
// Equidistant-cylindrical definitions (+proj=eqc) are computed natively;
// every other definition is handed to the pure-Go PROJ.4 implementation in
// github.com/ctessum/geom/proj. A definition neither understands yields
// ErrInvalidProjection.
func NewProjector(definition string) (Projector, error) {
	def := strings.TrimSpace(definition)
	if projName(def) == "" {
		return nil, &ErrInvalidProjection{Definition: definition, Err: errors.New("no +proj= parameter")}
	}
	if projName(def) == "eqc" {
		return newEqcProjector(def)
	}
	return newProjProjector(def)
}

// projName extracts the value of the +proj= token from a definition string.
func projName(def string) string {
	for _, field := range strings.Fields(def) {
		if v, ok := strings.CutPrefix(field, "+proj="); ok {
			return v
		}
	}
	return ""
}

// projParam extracts a named numeric parameter (e.g. "lat_ts") from a
// definition string, returning fallback when absent or unparseable.
func projParam(def, name string, fallback float64) float64 {
	prefix := "+" + name + "="
	for _, field := range strings.Fields(def) {
		if v, ok := strings.CutPrefix(field, prefix); ok {
			if f, err := strconv.ParseFloat(v, 64); err == nil {
				return f
			}
		}
	}
	return fallback
}

// wgs84SemiMajorAxis is the WGS84 equatorial radius in metres.
const wgs84SemiMajorAxis = 6378137.0

// eqcProjector is the native equidistant-cylindrical (plate carrée)
// projector: x = R·cos(lat_ts)·lon, y = R·lat, with angles in radians.
type eqcProjector struct {
	definition string
	radius     float64
	cosLatTS   float64
}

func newEqcProjector(def string) (*eqcProjector, error) {
	latTS := projParam(def, "lat_ts", 0) * math.Pi / 180
	radius := projParam(def, "a", wgs84SemiMajorAxis)
	if radius <= 0 {
		return nil, &ErrInvalidProjection{Definition: def, Err: errors.Errorf("non-positive radius %v", radius)}
	}
	return &eqcProjector{
		definition: def,
		radius:     radius,
		cosLatTS:   math.Cos(latTS),
	}, nil
}

func (p *eqcProjector) Project(lon, lat float64) (float64, float64, error) {
	x := p.radius * p.cosLatTS * lon * math.Pi / 180
	y := p.radius * lat * math.Pi / 180
	return x, y, nil
}

func (p *eqcProjector) InverseProject(y, x float64) (float64, float64, error) {
	lon := x / (p.radius * p.cosLatTS) * 180 / math.Pi
	lat := y / p.radius * 180 / math.Pi
	return lon, lat, nil
}

func (p *eqcProjector) Definition() string { return p.definition }

// projProjector delegates to github.com/ctessum/geom/proj, transforming
// between geographic WGS84 coordinates and the target reference system.
type projProjector struct {
	definition string
	forward    proj.Transformer
	inverse    proj.Transformer
}

func newProjProjector(def string) (*projProjector, error) {
	geographic, err := proj.Parse("+proj=longlat +datum=WGS84")
	if err != nil {
		return nil, errors.Wrap(err, "parsing geographic reference system")
	}
	target, err := proj.Parse(def)
	if err != nil {
		return nil, &ErrInvalidProjection{Definition: def, Err: err}
	}
	forward, err := geographic.NewTransform(target)
	if err != nil {
		return nil, &ErrInvalidProjection{Definition: def, Err: err}
	}
	inverse, err := target.NewTransform(geographic)
	if err != nil {
		return nil, &ErrInvalidProjection{Definition: def, Err: err}
	}
	return &projProjector{
		definition: def,
		forward:    forward,
		inverse:    inverse,
	}, nil
}

func (p *projProjector) Project(lon, lat float64) (float64, float64, error) {
	x, y, err := p.forward(lon, lat)
	if err != nil {
		return 0, 0, errors.Wrapf(err, "projecting (%v, %v)", lon, lat)
	}
	return x, y, nil
}

func (p *projProjector) InverseProject(y, x float64) (float64, float64, error) {
	lon, lat, err := p.inverse(x, y)
	if err != nil {
		return 0, 0, errors.Wrapf(err, "inverse projecting (%v, %v)", x, y)
	}
	return lon, lat, nil
}

func (p *projProjector) Definition() string { return p.definition }

// writeProjector serializes a projector as its definition string, prefixed
// with a u32 length that counts the trailing NUL.
func writeProjector(w io.Writer, p Projector) error {
	def := p.Definition()
	var lenBuf [4]byte
	binary.LittleEndian.PutUint32(lenBuf[:], uint32(len(def)+1))
	if _, err := w.Write(lenBuf[:]); err != nil {
		return errors.Wrap(err, "writing projection string length")
	}
	if _, err := io.WriteString(w, def); err != nil {
		return errors.Wrap(err, "writing projection string")
	}
	if _, err := w.Write([]byte{0}); err != nil {
		return errors.Wrap(err, "writing projection string terminator")
	}
	return nil
}

// readProjector deserializes a projector written by writeProjector,
// checking the declared length against the measured one.
func readProjector(r *bufio.Reader) (Projector, error) {
	var lenBuf [4]byte
	if _, err := io.ReadFull(r, lenBuf[:]); err != nil {
		return nil, &ErrCorruptIndex{Reason: "truncated projection string length"}
	}
	length := binary.LittleEndian.Uint32(lenBuf[:])
	if length == 0 {
		return nil, &ErrCorruptIndex{Reason: "zero-length projection string"}
	}

	raw := make([]byte, length)
	if _, err := io.ReadFull(r, raw); err != nil {
		return nil, &ErrCorruptIndex{Reason: "truncated projection string"}
	}
	if raw[length-1] != 0 {
		return nil, &ErrCorruptIndex{Reason: "projection string is not NUL-terminated at its declared length"}
	}
	def := string(raw[:length-1])
	if strings.IndexByte(def, 0) >= 0 {
		return nil, &ErrCorruptIndex{Reason: "projection string length does not match its declared length"}
	}

	return NewProjector(def)
}
