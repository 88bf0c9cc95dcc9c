package gridding

import (
	"bufio"
	"encoding/binary"
	"io"
	"math"
	"os"

	"github.com/pkg/errors"
)

// CoordinateReader is a lazy, finite stream of projected observation
// coordinates. Read yields exactly NumRecords triples and then io.EOF.
type CoordinateReader interface {
	// NumRecords returns the fixed number of records this reader yields.
	NumRecords() int

	// Read returns the next projected (x, y) position and time, or io.EOF
	// once all records have been consumed.
	Read() (x, y, t float64, err error)
}

// RawFileReader reads latitude, longitude and time from three flat binary
// files of little-endian float32 values, forward-projecting each pair as
// it goes. The time file is optional; records read without one carry t=0.
type RawFileReader struct {
	latFile  *os.File
	lonFile  *os.File
	timeFile *os.File // nil when no time stream was supplied

	lats  *bufio.Reader
	lons  *bufio.Reader
	times *bufio.Reader

	projector  Projector
	numRecords int
	current    int
}

const coordinateSampleSize = 4 // one little-endian float32 per record per file

// NewRawFileReader opens the given geolocation files and validates that
// they are the same length and a whole number of float32 samples.
// timePath may be empty, in which case every record's time is zero.
func NewRawFileReader(latPath, lonPath, timePath string, p Projector) (*RawFileReader, error) {
	latInfo, err := os.Stat(latPath)
	if err != nil {
		return nil, errors.Wrapf(err, "could not stat latitude file %s", latPath)
	}
	lonInfo, err := os.Stat(lonPath)
	if err != nil {
		return nil, errors.Wrapf(err, "could not stat longitude file %s", lonPath)
	}
	if latInfo.Size() != lonInfo.Size() {
		return nil, errors.Errorf("latitude file %s (%d bytes) and longitude file %s (%d bytes) differ in length",
			latPath, latInfo.Size(), lonPath, lonInfo.Size())
	}
	if timePath != "" {
		timeInfo, err := os.Stat(timePath)
		if err != nil {
			return nil, errors.Wrapf(err, "could not stat time file %s", timePath)
		}
		if timeInfo.Size() != latInfo.Size() {
			return nil, errors.Errorf("time file %s (%d bytes) and latitude file %s (%d bytes) differ in length",
				timePath, timeInfo.Size(), latPath, latInfo.Size())
		}
	}
	if latInfo.Size()%coordinateSampleSize != 0 {
		return nil, errors.Errorf("geolocation file size %d is not a multiple of %d bytes",
			latInfo.Size(), coordinateSampleSize)
	}

	r := &RawFileReader{
		projector:  p,
		numRecords: int(latInfo.Size() / coordinateSampleSize),
	}

	if r.latFile, err = os.Open(latPath); err != nil {
		return nil, errors.Wrapf(err, "could not open latitude file %s", latPath)
	}
	if r.lonFile, err = os.Open(lonPath); err != nil {
		r.latFile.Close()
		return nil, errors.Wrapf(err, "could not open longitude file %s", lonPath)
	}
	if timePath != "" {
		if r.timeFile, err = os.Open(timePath); err != nil {
			r.latFile.Close()
			r.lonFile.Close()
			return nil, errors.Wrapf(err, "could not open time file %s", timePath)
		}
		r.times = bufio.NewReader(r.timeFile)
	}
	r.lats = bufio.NewReader(r.latFile)
	r.lons = bufio.NewReader(r.lonFile)
	return r, nil
}

// NumRecords returns the number of records in the backing files.
func (r *RawFileReader) NumRecords() int { return r.numRecords }

// Read reads, validates and projects the next record.
func (r *RawFileReader) Read() (float64, float64, float64, error) {
	if r.current >= r.numRecords {
		return 0, 0, 0, io.EOF
	}

	lat, err := readFloat32(r.lats)
	if err != nil {
		return 0, 0, 0, errors.Wrapf(err, "reading latitude record %d", r.current)
	}
	lon, err := readFloat32(r.lons)
	if err != nil {
		return 0, 0, 0, errors.Wrapf(err, "reading longitude record %d", r.current)
	}
	t := float32(0)
	if r.times != nil {
		if t, err = readFloat32(r.times); err != nil {
			return 0, 0, 0, errors.Wrapf(err, "reading time record %d", r.current)
		}
	}

	latF := float64(lat)
	lonF := float64(lon)
	tF := float64(t)
	if !isFinite(latF) || !isFinite(lonF) || !isFinite(tF) {
		return 0, 0, 0, &ErrNonFiniteCoordinate{Record: r.current, Lat: latF, Lon: lonF, T: tF}
	}

	x, y, err := r.projector.Project(lonF, latF)
	if err != nil {
		return 0, 0, 0, errors.Wrapf(err, "projecting record %d", r.current)
	}

	r.current++
	return x, y, tF, nil
}

// Close closes the backing files.
func (r *RawFileReader) Close() error {
	err := r.latFile.Close()
	if e := r.lonFile.Close(); err == nil {
		err = e
	}
	if r.timeFile != nil {
		if e := r.timeFile.Close(); err == nil {
			err = e
		}
	}
	return err
}

func readFloat32(br *bufio.Reader) (float32, error) {
	var b [4]byte
	if _, err := io.ReadFull(br, b[:]); err != nil {
		return 0, err
	}
	return math.Float32frombits(binary.LittleEndian.Uint32(b[:])), nil
}

func isFinite(f float64) bool {
	return !math.IsNaN(f) && !math.IsInf(f, 0)
}
