package gridding

import (
	"bufio"
	"encoding/binary"
	"fmt"
	"io"
	"math"

	"github.com/pkg/errors"
)

// indexFileFormat is the on-disk format number. It leads and trails every
// index file and must be bumped whenever the layout changes.
const indexFileFormat = 2

const (
	nodeRecordSize        = 8  // u32 tag + u32 payload
	observationRecordSize = 16 // 3 × f32 dimensions + u32 record index
)

// WriteIndex serializes a built tree and its projector to w in the
// versioned binary index format: leading format number, projector,
// observation and node counts, packed node array, packed observation
// array, and a trailing copy of the format number. All integers and float
// bit patterns are little-endian.
func WriteIndex(w io.Writer, tree *KDTree, projector Projector) error {
	bw := bufio.NewWriter(w)

	if err := writeU32(bw, indexFileFormat); err != nil {
		return errors.Wrap(err, "writing format number")
	}
	if err := writeProjector(bw, projector); err != nil {
		return err
	}
	if err := writeU32(bw, uint32(tree.NumObservations())); err != nil {
		return errors.Wrap(err, "writing observation count")
	}
	if err := writeU32(bw, uint32(tree.NumNodes())); err != nil {
		return errors.Wrap(err, "writing node count")
	}

	buf := make([]byte, nodeRecordSize*len(tree.nodes))
	for i, node := range tree.nodes {
		payload := node.obs
		if node.tag == tagX || node.tag == tagY {
			payload = math.Float32bits(node.split)
		}
		binary.LittleEndian.PutUint32(buf[i*nodeRecordSize:], uint32(node.tag))
		binary.LittleEndian.PutUint32(buf[i*nodeRecordSize+4:], payload)
	}
	if _, err := bw.Write(buf); err != nil {
		return errors.Wrap(err, "writing node array")
	}

	buf = make([]byte, observationRecordSize*len(tree.observations))
	for i, o := range tree.observations {
		binary.LittleEndian.PutUint32(buf[i*observationRecordSize:], math.Float32bits(o.X))
		binary.LittleEndian.PutUint32(buf[i*observationRecordSize+4:], math.Float32bits(o.Y))
		binary.LittleEndian.PutUint32(buf[i*observationRecordSize+8:], math.Float32bits(o.T))
		binary.LittleEndian.PutUint32(buf[i*observationRecordSize+12:], o.RecordIndex)
	}
	if _, err := bw.Write(buf); err != nil {
		return errors.Wrap(err, "writing observation array")
	}

	if err := writeU32(bw, indexFileFormat); err != nil {
		return errors.Wrap(err, "writing trailing format number")
	}
	return bw.Flush()
}

// ReadIndex deserializes an index written by WriteIndex. Any structural
// inconsistency — wrong leading or trailing format number, malformed
// projection string, node count disagreeing with the one implied by the
// observation count, truncation, or invalid node records — yields
// ErrCorruptIndex.
func ReadIndex(r io.Reader) (*KDTree, Projector, error) {
	br := bufio.NewReader(r)

	format, err := readU32(br)
	if err != nil {
		return nil, nil, &ErrCorruptIndex{Reason: "truncated format number"}
	}
	if format != indexFileFormat {
		return nil, nil, &ErrCorruptIndex{Reason: fmt.Sprintf("wrong format number (read %d, expected %d)", format, indexFileFormat)}
	}

	projector, err := readProjector(br)
	if err != nil {
		return nil, nil, err
	}

	numObservations, err := readU32(br)
	if err != nil {
		return nil, nil, &ErrCorruptIndex{Reason: "truncated observation count"}
	}
	if numObservations == 0 {
		return nil, nil, &ErrCorruptIndex{Reason: "index contains zero observations"}
	}
	numNodes, err := readU32(br)
	if err != nil {
		return nil, nil, &ErrCorruptIndex{Reason: "truncated node count"}
	}

	tree := newKDTree(int(numObservations))
	if int(numNodes) != tree.NumNodes() {
		return nil, nil, &ErrCorruptIndex{Reason: fmt.Sprintf("node count mismatch (read %d, computed %d from %d observations)",
			numNodes, tree.NumNodes(), numObservations)}
	}

	buf := make([]byte, nodeRecordSize*int(numNodes))
	if _, err := io.ReadFull(br, buf); err != nil {
		return nil, nil, &ErrCorruptIndex{Reason: "truncated node array"}
	}
	for i := range tree.nodes {
		tag := binary.LittleEndian.Uint32(buf[i*nodeRecordSize:])
		payload := binary.LittleEndian.Uint32(buf[i*nodeRecordSize+4:])
		switch tag {
		case tagX, tagY:
			tree.nodes[i] = kdnode{tag: int32(tag), split: math.Float32frombits(payload)}
		case tagTerminal:
			if payload >= numObservations {
				return nil, nil, &ErrCorruptIndex{Reason: fmt.Sprintf("node %d references observation %d of %d", i, payload, numObservations)}
			}
			tree.nodes[i] = kdnode{tag: tagTerminal, obs: payload}
		case tagUninitialised:
			tree.nodes[i] = kdnode{tag: tagUninitialised}
		default:
			return nil, nil, &ErrCorruptIndex{Reason: fmt.Sprintf("node %d has invalid tag %d", i, tag)}
		}
	}

	buf = make([]byte, observationRecordSize*int(numObservations))
	if _, err := io.ReadFull(br, buf); err != nil {
		return nil, nil, &ErrCorruptIndex{Reason: "truncated observation array"}
	}
	for i := range tree.observations {
		tree.observations[i] = Observation{
			X:           math.Float32frombits(binary.LittleEndian.Uint32(buf[i*observationRecordSize:])),
			Y:           math.Float32frombits(binary.LittleEndian.Uint32(buf[i*observationRecordSize+4:])),
			T:           math.Float32frombits(binary.LittleEndian.Uint32(buf[i*observationRecordSize+8:])),
			RecordIndex: binary.LittleEndian.Uint32(buf[i*observationRecordSize+12:]),
		}
	}

	trailing, err := readU32(br)
	if err != nil {
		return nil, nil, &ErrCorruptIndex{Reason: "truncated trailing format number"}
	}
	if trailing != indexFileFormat {
		return nil, nil, &ErrCorruptIndex{Reason: fmt.Sprintf("wrong trailing format number (read %d, expected %d)", trailing, indexFileFormat)}
	}

	return tree, projector, nil
}

func writeU32(w io.Writer, v uint32) error {
	var b [4]byte
	binary.LittleEndian.PutUint32(b[:], v)
	_, err := w.Write(b[:])
	return err
}

func readU32(r io.Reader) (uint32, error) {
	var b [4]byte
	if _, err := io.ReadFull(r, b[:]); err != nil {
		return 0, err
	}
	return binary.LittleEndian.Uint32(b[:]), nil
}
