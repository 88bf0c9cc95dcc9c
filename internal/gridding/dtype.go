package gridding

import (
	"encoding/binary"
	"fmt"
	"math"
)

// Style classifies a dtype as numeric (interpreted through the float64
// working type) or coded (opaque bytes, copied verbatim).
type Style int

const (
	StyleNumeric Style = iota
	StyleCoded
	StyleUndef
)

func (s Style) String() string {
	switch s {
	case StyleNumeric:
		return "numeric"
	case StyleCoded:
		return "coded"
	}
	return "undef"
}

// Specifier enumerates the supported sample formats.
type Specifier int

const (
	Uint8 Specifier = iota
	Uint16
	Uint32
	Uint64
	Int8
	Int16
	Int32
	Int64
	Float32
	Float64
	Coded8
	Coded16
	Coded32
	Coded64
	UndefType
)

// DType describes the format of a single sample: its specifier, element
// size in bytes, style, and canonical string name.
type DType struct {
	Specifier Specifier
	Size      int
	Style     Style
	Name      string
}

// Equal reports whether two dtypes describe the same sample format.
func (d DType) Equal(other DType) bool {
	return d.Specifier == other.Specifier && d.Size == other.Size
}

var dtypes = []DType{
	{Uint8, 1, StyleNumeric, "uint8"},
	{Uint16, 2, StyleNumeric, "uint16"},
	{Uint32, 4, StyleNumeric, "uint32"},
	{Uint64, 8, StyleNumeric, "uint64"},
	{Int8, 1, StyleNumeric, "int8"},
	{Int16, 2, StyleNumeric, "int16"},
	{Int32, 4, StyleNumeric, "int32"},
	{Int64, 8, StyleNumeric, "int64"},
	{Float32, 4, StyleNumeric, "float32"},
	{Float64, 8, StyleNumeric, "float64"},
	{Coded8, 1, StyleCoded, "coded8"},
	{Coded16, 2, StyleCoded, "coded16"},
	{Coded32, 4, StyleCoded, "coded32"},
	{Coded64, 8, StyleCoded, "coded64"},
}

var dtypesByName = func() map[string]DType {
	m := make(map[string]DType, len(dtypes))
	for _, d := range dtypes {
		m[d.Name] = d
	}
	return m
}()

// ParseDType parses a canonical dtype name ("uint8", "float64", "coded16"
// etc) into its full descriptor.
func ParseDType(name string) (DType, error) {
	d, ok := dtypesByName[name]
	if !ok {
		return DType{Specifier: UndefType, Style: StyleUndef, Name: "undef"}, &ErrInvalidDType{Name: name}
	}
	return d, nil
}

var float32DType = dtypesByName["float32"]

// NumericGet reads the sample at index from buf, widened to the float64
// working type. buf holds packed little-endian samples of dtype d.
func NumericGet(buf []byte, d DType, index int) float64 {
	switch d.Specifier {
	case Uint8:
		return float64(buf[index])
	case Uint16:
		return float64(binary.LittleEndian.Uint16(buf[index*2:]))
	case Uint32:
		return float64(binary.LittleEndian.Uint32(buf[index*4:]))
	case Uint64:
		return float64(binary.LittleEndian.Uint64(buf[index*8:]))
	case Int8:
		return float64(int8(buf[index]))
	case Int16:
		return float64(int16(binary.LittleEndian.Uint16(buf[index*2:])))
	case Int32:
		return float64(int32(binary.LittleEndian.Uint32(buf[index*4:])))
	case Int64:
		return float64(int64(binary.LittleEndian.Uint64(buf[index*8:])))
	case Float32:
		return float64(math.Float32frombits(binary.LittleEndian.Uint32(buf[index*4:])))
	case Float64:
		return math.Float64frombits(binary.LittleEndian.Uint64(buf[index*8:]))
	}
	panic(fmt.Sprintf("NumericGet called with non-numeric dtype %s", d.Name))
}

// NumericPut stores value at index in buf, narrowed from the working type
// with the target type's conversion semantics.
func NumericPut(buf []byte, d DType, index int, value float64) {
	switch d.Specifier {
	case Uint8:
		buf[index] = uint8(value)
	case Uint16:
		binary.LittleEndian.PutUint16(buf[index*2:], uint16(value))
	case Uint32:
		binary.LittleEndian.PutUint32(buf[index*4:], uint32(value))
	case Uint64:
		binary.LittleEndian.PutUint64(buf[index*8:], uint64(value))
	case Int8:
		buf[index] = uint8(int8(value))
	case Int16:
		binary.LittleEndian.PutUint16(buf[index*2:], uint16(int16(value)))
	case Int32:
		binary.LittleEndian.PutUint32(buf[index*4:], uint32(int32(value)))
	case Int64:
		binary.LittleEndian.PutUint64(buf[index*8:], uint64(int64(value)))
	case Float32:
		binary.LittleEndian.PutUint32(buf[index*4:], math.Float32bits(float32(value)))
	case Float64:
		binary.LittleEndian.PutUint64(buf[index*8:], math.Float64bits(value))
	default:
		panic(fmt.Sprintf("NumericPut called with non-numeric dtype %s", d.Name))
	}
}

// CodedGet copies the d.Size bytes of the sample at index from buf into out.
// The sample is never interpreted.
func CodedGet(buf []byte, d DType, index int, out []byte) {
	copy(out, buf[index*d.Size:(index+1)*d.Size])
}

// CodedPut copies d.Size bytes from in into the sample slot at index in buf.
func CodedPut(buf []byte, d DType, index int, in []byte) {
	copy(buf[index*d.Size:(index+1)*d.Size], in)
}
