package codec

import (
	"crypto/sha256"
	"encoding/binary"
	"encoding/hex"
	"fmt"
	"math"
	"time"

	"github.com/tokenism/geobus/errors"
	"github.com/tokenism/geobus/pkg/timestamp"
)

// Version is the wire protocol revision this codec speaks. Decode rejects
// any other version with ErrUnsupportedVersion.
const Version = "0.2"

// EncodingBase64 is the only supported payload transport encoding. The
// binary geometry payload travels as base64 text inside the JSON envelope.
const EncodingBase64 = "base64"

// Kind identifies what the geometry in a packet represents.
type Kind string

// Packet kinds understood by this protocol revision.
const (
	// KindAttribution carries plain normalized attribution rows.
	KindAttribution Kind = "attribution"
	// KindHyperbolic carries Poincare disk/ball embeddings. Curvature
	// must be negative and every point norm strictly below 1.
	KindHyperbolic Kind = "hyperbolic"
	// KindDirichlet carries fitted Dirichlet concentration rows.
	KindDirichlet Kind = "dirichlet"
)

// Valid reports whether the kind is part of the protocol enum.
func (k Kind) Valid() bool {
	switch k {
	case KindAttribution, KindHyperbolic, KindDirichlet:
		return true
	default:
		return false
	}
}

// String returns the wire representation of the kind.
func (k Kind) String() string {
	return string(k)
}

// Precision selects the coordinate quantization width for the binary
// payload. It is recorded both in the payload header and in
// Metadata["precision"]; the two must agree at decode time.
type Precision string

// Supported coordinate precisions.
const (
	// PrecisionHalf quantizes coordinates to IEEE 754 binary16.
	PrecisionHalf Precision = "half"
	// PrecisionSingle quantizes coordinates to IEEE 754 binary32.
	PrecisionSingle Precision = "single"
	// PrecisionDouble keeps the full float64 bits.
	PrecisionDouble Precision = "double"
)

// Valid reports whether the precision is one of half, single or double.
func (p Precision) Valid() bool {
	switch p {
	case PrecisionHalf, PrecisionSingle, PrecisionDouble:
		return true
	default:
		return false
	}
}

// String returns the wire representation of the precision.
func (p Precision) String() string {
	return string(p)
}

// MetadataPrecision is the metadata key the codec uses to record the
// payload precision in the envelope.
const MetadataPrecision = "precision"

// Geometry is the logical coordinate block of a packet. On the wire it is
// packed by the binary payload codec and base64-encoded into the envelope;
// in memory it is always the structured form below.
type Geometry struct {
	// Dimension is the coordinate arity, 2 or 3.
	Dimension int `json:"dimension"`

	// Curvature classifies the manifold the points live on. Hyperbolic
	// packets require a strictly negative value.
	Curvature float64 `json:"curvature"`

	// Points holds one row per point, each of exactly Dimension
	// coordinates. Empty geometry is valid.
	Points [][]float64 `json:"points"`
}

// Packet is the unit of exchange on the geometry bus. A decoded Packet
// always satisfies the schema; Decode fails with a DecodeError rather than
// returning a partially valid packet.
type Packet struct {
	Version   string            `json:"version"`
	Kind      Kind              `json:"kind"`
	Encoding  string            `json:"encoding"`
	Timestamp time.Time         `json:"timestamp"`
	Source    string            `json:"source"`
	Geometry  Geometry          `json:"geometry"`
	Metadata  map[string]string `json:"metadata,omitempty"`
}

// Option configures packet construction.
type Option func(*Packet)

// WithTimestamp sets a specific creation time instead of the current time.
// Useful for historical data import or testing.
func WithTimestamp(t time.Time) Option {
	return func(p *Packet) {
		p.Timestamp = t.UTC()
	}
}

// WithMetadata merges the given entries into the packet metadata.
func WithMetadata(metadata map[string]string) Option {
	return func(p *Packet) {
		for k, v := range metadata {
			p.Metadata[k] = v
		}
	}
}

// NewPacket creates a packet for the current protocol version with the
// current UTC time. The metadata map is always non-nil so callers and the
// codec can annotate without a nil check.
func NewPacket(kind Kind, geometry Geometry, source string, opts ...Option) Packet {
	p := Packet{
		Version:   Version,
		Kind:      kind,
		Encoding:  EncodingBase64,
		Timestamp: timestamp.Now(),
		Source:    source,
		Geometry:  geometry,
		Metadata:  make(map[string]string),
	}

	for _, opt := range opts {
		opt(&p)
	}

	return p
}

// Validate performs the structural checks Encode applies before packing.
// Decode applies the same geometry rules but reports them as DecodeErrors.
func (p Packet) Validate() error {
	if p.Version != Version {
		return errors.WrapInvalid(
			fmt.Errorf("%w: version %q, want %q", errors.ErrInvalidPacket, p.Version, Version),
			"codec", "Validate", "version check")
	}
	if !p.Kind.Valid() {
		return errors.WrapInvalid(
			fmt.Errorf("%w: unknown kind %q", errors.ErrInvalidPacket, p.Kind),
			"codec", "Validate", "kind check")
	}
	if p.Encoding != EncodingBase64 {
		return errors.WrapInvalid(
			fmt.Errorf("%w: encoding %q, want %q", errors.ErrInvalidPacket, p.Encoding, EncodingBase64),
			"codec", "Validate", "encoding check")
	}
	if p.Timestamp.IsZero() {
		return errors.WrapInvalid(
			fmt.Errorf("%w: timestamp not set", errors.ErrInvalidPacket),
			"codec", "Validate", "timestamp check")
	}
	if p.Source == "" {
		return errors.WrapInvalid(
			fmt.Errorf("%w: source must be non-empty", errors.ErrInvalidPacket),
			"codec", "Validate", "source check")
	}
	if reason := checkGeometry(p.Kind, p.Geometry); reason != "" {
		return errors.WrapInvalid(
			fmt.Errorf("%w: %s", errors.ErrGeometryInvalid, reason),
			"codec", "Validate", "geometry check")
	}
	return nil
}

// Hash returns a SHA256 content hash over the packet identity and its
// geometry bits. Packets with identical content hash identically, which
// the consumer dedupe cache and the geometry store rely on.
func (p Packet) Hash() string {
	h := sha256.New()

	var scratch [8]byte
	writeString := func(s string) {
		h.Write([]byte(s))
		h.Write([]byte{0})
	}
	writeFloat := func(v float64) {
		binary.LittleEndian.PutUint64(scratch[:], math.Float64bits(v))
		h.Write(scratch[:])
	}

	writeString(p.Version)
	writeString(string(p.Kind))
	writeString(p.Source)
	writeString(timestamp.FormatTime(p.Timestamp))

	binary.LittleEndian.PutUint64(scratch[:], uint64(p.Geometry.Dimension))
	h.Write(scratch[:])
	writeFloat(p.Geometry.Curvature)
	for _, point := range p.Geometry.Points {
		for _, coord := range point {
			writeFloat(coord)
		}
	}

	return hex.EncodeToString(h.Sum(nil))
}

// checkGeometry returns an empty string when the geometry satisfies the
// structural constraints for the given kind, otherwise the reason text.
// Shared between Encode validation and Decode schema enforcement.
func checkGeometry(kind Kind, g Geometry) string {
	if g.Dimension != 2 && g.Dimension != 3 {
		return fmt.Sprintf("dimension must be 2 or 3, got %d", g.Dimension)
	}
	for i, point := range g.Points {
		if len(point) != g.Dimension {
			return fmt.Sprintf("point %d has %d coordinates, want %d", i, len(point), g.Dimension)
		}
	}
	if kind == KindHyperbolic {
		if g.Curvature >= 0 {
			return fmt.Sprintf("hyperbolic curvature must be negative, got %g", g.Curvature)
		}
		for i, point := range g.Points {
			if norm(point) >= 1 {
				return fmt.Sprintf("hyperbolic point %d has norm %g, want < 1", i, norm(point))
			}
		}
	}
	return ""
}

func norm(point []float64) float64 {
	var sum float64
	for _, c := range point {
		sum += c * c
	}
	return math.Sqrt(sum)
}
