package codec

import (
	"encoding/binary"
	"fmt"
	"math"

	"github.com/x448/float16"
)

// Binary payload layout, all little-endian:
//
//	magic  u16      0x47B5
//	prec   u8       0=half 1=single 2=double
//	dim    u8       2 or 3
//	curv   f64      curvature bits
//	count  uvarint  number of points
//	mode   u8       0x01 dictionary, 0x00 raw
//	blocks dictionary + RLE coded coordinate stream
//
// Coordinates are flattened row-major and quantized to the selected width
// before coding. Dictionary mode applies when the stream holds at most 255
// distinct quantized values: the dictionary is listed once in order of
// first appearance and each run references it by a one-byte index. Raw
// mode spells each run value at full width. Decoding restores exactly the
// quantized values.
const (
	payloadMagic uint16 = 0x47B5

	precCodeHalf   byte = 0
	precCodeSingle byte = 1
	precCodeDouble byte = 2

	modeRaw  byte = 0x00
	modeDict byte = 0x01

	// maxDictEntries bounds dictionary mode; run indexes are one byte.
	maxDictEntries = 255

	// maxPointCount guards decode allocations against corrupt counts.
	maxPointCount = 1 << 22
)

func precisionCode(p Precision) (byte, bool) {
	switch p {
	case PrecisionHalf:
		return precCodeHalf, true
	case PrecisionSingle:
		return precCodeSingle, true
	case PrecisionDouble:
		return precCodeDouble, true
	default:
		return 0, false
	}
}

func precisionFromCode(code byte) (Precision, bool) {
	switch code {
	case precCodeHalf:
		return PrecisionHalf, true
	case precCodeSingle:
		return PrecisionSingle, true
	case precCodeDouble:
		return PrecisionDouble, true
	default:
		return "", false
	}
}

func precisionWidth(code byte) int {
	switch code {
	case precCodeHalf:
		return 2
	case precCodeSingle:
		return 4
	default:
		return 8
	}
}

// quantize returns the bit pattern of v at the selected width. Half goes
// through float32 first, the standard binary16 conversion path.
func quantize(v float64, code byte) uint64 {
	switch code {
	case precCodeHalf:
		return uint64(float16.Fromfloat32(float32(v)).Bits())
	case precCodeSingle:
		return uint64(math.Float32bits(float32(v)))
	default:
		return math.Float64bits(v)
	}
}

func dequantize(bits uint64, code byte) float64 {
	switch code {
	case precCodeHalf:
		return float64(float16.Frombits(uint16(bits)).Float32())
	case precCodeSingle:
		return float64(math.Float32frombits(uint32(bits)))
	default:
		return math.Float64frombits(bits)
	}
}

// run is one RLE unit: length consecutive occurrences of value.
type run struct {
	value  uint64
	length uint64
}

func runLengthEncode(values []uint64) []run {
	var runs []run
	for _, v := range values {
		if n := len(runs); n > 0 && runs[n-1].value == v {
			runs[n-1].length++
			continue
		}
		runs = append(runs, run{value: v, length: 1})
	}
	return runs
}

// buildDictionary collects distinct run values in first-appearance order.
// Returns ok=false when the stream exceeds the one-byte index space.
func buildDictionary(runs []run) ([]uint64, map[uint64]int, bool) {
	dict := make([]uint64, 0, maxDictEntries)
	index := make(map[uint64]int, maxDictEntries)
	for _, r := range runs {
		if _, seen := index[r.value]; seen {
			continue
		}
		if len(dict) == maxDictEntries {
			return nil, nil, false
		}
		index[r.value] = len(dict)
		dict = append(dict, r.value)
	}
	return dict, index, true
}

func appendValue(buf []byte, v uint64, width int) []byte {
	switch width {
	case 2:
		return binary.LittleEndian.AppendUint16(buf, uint16(v))
	case 4:
		return binary.LittleEndian.AppendUint32(buf, uint32(v))
	default:
		return binary.LittleEndian.AppendUint64(buf, v)
	}
}

// encodePayload packs the geometry into the binary payload format at the
// given precision. The caller has already validated kind-level invariants;
// this layer enforces only what the format itself needs.
func encodePayload(g Geometry, prec Precision) ([]byte, error) {
	code, ok := precisionCode(prec)
	if !ok {
		return nil, fmt.Errorf("unknown precision %q", prec)
	}
	if g.Dimension != 2 && g.Dimension != 3 {
		return nil, fmt.Errorf("dimension must be 2 or 3, got %d", g.Dimension)
	}
	if len(g.Points) > maxPointCount {
		return nil, fmt.Errorf("point count %d exceeds limit %d", len(g.Points), maxPointCount)
	}

	quants := make([]uint64, 0, len(g.Points)*g.Dimension)
	for i, point := range g.Points {
		if len(point) != g.Dimension {
			return nil, fmt.Errorf("point %d has %d coordinates, want %d", i, len(point), g.Dimension)
		}
		for _, coord := range point {
			quants = append(quants, quantize(coord, code))
		}
	}

	width := precisionWidth(code)
	buf := make([]byte, 0, 16+len(quants)*width)
	buf = binary.LittleEndian.AppendUint16(buf, payloadMagic)
	buf = append(buf, code, byte(g.Dimension))
	buf = binary.LittleEndian.AppendUint64(buf, math.Float64bits(g.Curvature))
	buf = binary.AppendUvarint(buf, uint64(len(g.Points)))

	runs := runLengthEncode(quants)

	if dict, index, ok := buildDictionary(runs); ok {
		buf = append(buf, modeDict)
		buf = binary.AppendUvarint(buf, uint64(len(dict)))
		for _, v := range dict {
			buf = appendValue(buf, v, width)
		}
		for _, r := range runs {
			buf = append(buf, byte(index[r.value]))
			buf = binary.AppendUvarint(buf, r.length)
		}
	} else {
		buf = append(buf, modeRaw)
		for _, r := range runs {
			buf = appendValue(buf, r.value, width)
			buf = binary.AppendUvarint(buf, r.length)
		}
	}

	return buf, nil
}

// payloadReader tracks an offset into the payload so every failure names
// where the stream went wrong.
type payloadReader struct {
	data []byte
	off  int
}

func (r *payloadReader) take(n int) ([]byte, error) {
	if r.off+n > len(r.data) {
		return nil, fmt.Errorf("truncated at offset %d", r.off)
	}
	b := r.data[r.off : r.off+n]
	r.off += n
	return b, nil
}

func (r *payloadReader) readByte() (byte, error) {
	b, err := r.take(1)
	if err != nil {
		return 0, err
	}
	return b[0], nil
}

func (r *payloadReader) readUint16() (uint16, error) {
	b, err := r.take(2)
	if err != nil {
		return 0, err
	}
	return binary.LittleEndian.Uint16(b), nil
}

func (r *payloadReader) readUint64() (uint64, error) {
	b, err := r.take(8)
	if err != nil {
		return 0, err
	}
	return binary.LittleEndian.Uint64(b), nil
}

func (r *payloadReader) readUvarint() (uint64, error) {
	v, n := binary.Uvarint(r.data[r.off:])
	if n <= 0 {
		return 0, fmt.Errorf("bad uvarint at offset %d", r.off)
	}
	r.off += n
	return v, nil
}

func (r *payloadReader) readValue(width int) (uint64, error) {
	b, err := r.take(width)
	if err != nil {
		return 0, err
	}
	switch width {
	case 2:
		return uint64(binary.LittleEndian.Uint16(b)), nil
	case 4:
		return uint64(binary.LittleEndian.Uint32(b)), nil
	default:
		return binary.LittleEndian.Uint64(b), nil
	}
}

func (r *payloadReader) remaining() int {
	return len(r.data) - r.off
}

// decodePayload is the exact inverse of encodePayload. It rejects bad
// magic, unknown precision codes, out-of-range dimensions, truncated or
// overlong streams, zero-length runs and trailing bytes, so a payload
// decodes to exactly one geometry or not at all.
func decodePayload(data []byte) (Geometry, Precision, error) {
	r := &payloadReader{data: data}

	magic, err := r.readUint16()
	if err != nil {
		return Geometry{}, "", err
	}
	if magic != payloadMagic {
		return Geometry{}, "", fmt.Errorf("bad magic 0x%04X, want 0x%04X", magic, payloadMagic)
	}

	code, err := r.readByte()
	if err != nil {
		return Geometry{}, "", err
	}
	prec, ok := precisionFromCode(code)
	if !ok {
		return Geometry{}, "", fmt.Errorf("unknown precision code %d", code)
	}

	dim, err := r.readByte()
	if err != nil {
		return Geometry{}, "", err
	}
	if dim != 2 && dim != 3 {
		return Geometry{}, "", fmt.Errorf("dimension must be 2 or 3, got %d", dim)
	}

	curvBits, err := r.readUint64()
	if err != nil {
		return Geometry{}, "", err
	}

	count, err := r.readUvarint()
	if err != nil {
		return Geometry{}, "", err
	}
	if count > maxPointCount {
		return Geometry{}, "", fmt.Errorf("point count %d exceeds limit %d", count, maxPointCount)
	}

	mode, err := r.readByte()
	if err != nil {
		return Geometry{}, "", err
	}

	width := precisionWidth(code)
	total := count * uint64(dim)
	quants := make([]uint64, 0, total)

	appendRun := func(value, length uint64) error {
		if length == 0 {
			return fmt.Errorf("zero-length run at offset %d", r.off)
		}
		if uint64(len(quants))+length > total {
			return fmt.Errorf("run overflows coordinate count %d", total)
		}
		for j := uint64(0); j < length; j++ {
			quants = append(quants, value)
		}
		return nil
	}

	switch mode {
	case modeDict:
		dictLen, err := r.readUvarint()
		if err != nil {
			return Geometry{}, "", err
		}
		if dictLen > maxDictEntries {
			return Geometry{}, "", fmt.Errorf("dictionary size %d exceeds limit %d", dictLen, maxDictEntries)
		}
		dict := make([]uint64, dictLen)
		for i := range dict {
			if dict[i], err = r.readValue(width); err != nil {
				return Geometry{}, "", err
			}
		}
		for uint64(len(quants)) < total {
			idx, err := r.readByte()
			if err != nil {
				return Geometry{}, "", err
			}
			if uint64(idx) >= dictLen {
				return Geometry{}, "", fmt.Errorf("dictionary index %d out of range %d", idx, dictLen)
			}
			length, err := r.readUvarint()
			if err != nil {
				return Geometry{}, "", err
			}
			if err := appendRun(dict[idx], length); err != nil {
				return Geometry{}, "", err
			}
		}
	case modeRaw:
		for uint64(len(quants)) < total {
			value, err := r.readValue(width)
			if err != nil {
				return Geometry{}, "", err
			}
			length, err := r.readUvarint()
			if err != nil {
				return Geometry{}, "", err
			}
			if err := appendRun(value, length); err != nil {
				return Geometry{}, "", err
			}
		}
	default:
		return Geometry{}, "", fmt.Errorf("unknown block mode 0x%02X", mode)
	}

	if r.remaining() != 0 {
		return Geometry{}, "", fmt.Errorf("%d trailing bytes after coordinate stream", r.remaining())
	}

	points := make([][]float64, 0, count)
	for i := uint64(0); i < count; i++ {
		point := make([]float64, dim)
		for d := uint64(0); d < uint64(dim); d++ {
			point[d] = dequantize(quants[i*uint64(dim)+d], code)
		}
		points = append(points, point)
	}

	return Geometry{
		Dimension: int(dim),
		Curvature: math.Float64frombits(curvBits),
		Points:    points,
	}, prec, nil
}
