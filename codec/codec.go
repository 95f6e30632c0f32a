package codec

import (
	"encoding/base64"
	"encoding/json"
	"fmt"

	"github.com/tokenism/geobus/errors"
	"github.com/tokenism/geobus/pkg/timestamp"
)

// Options configures Encode.
type Options struct {
	// Precision selects the coordinate quantization width. Empty selects
	// PrecisionDouble.
	Precision Precision
}

// DefaultOptions returns the encode defaults: double precision.
func DefaultOptions() Options {
	return Options{Precision: PrecisionDouble}
}

// envelope is the JSON wire form of a Packet. The geometry field carries
// the base64 text of the binary payload.
type envelope struct {
	Version   string            `json:"version"`
	Kind      string            `json:"kind"`
	Encoding  string            `json:"encoding"`
	Timestamp string            `json:"timestamp"`
	Source    string            `json:"source"`
	Geometry  string            `json:"geometry"`
	Metadata  map[string]string `json:"metadata,omitempty"`
}

// Encode serializes the packet to the JSON wire envelope. The geometry is
// packed by the binary payload codec at the selected precision and
// base64-encoded into the envelope. Encoding is lossless at that
// precision: every decoded coordinate carries the quantized value exactly.
//
// The input packet is never mutated. The chosen precision is recorded in
// the envelope metadata; a packet whose metadata already records a
// different precision is rejected.
func Encode(p Packet, opts Options) ([]byte, error) {
	prec := opts.Precision
	if prec == "" {
		prec = PrecisionDouble
	}
	if !prec.Valid() {
		return nil, errors.WrapInvalid(
			fmt.Errorf("%w: unknown precision %q", errors.ErrInvalidConfig, prec),
			"codec", "Encode", "options check")
	}

	if err := p.Validate(); err != nil {
		return nil, err
	}

	if recorded, ok := p.Metadata[MetadataPrecision]; ok && recorded != string(prec) {
		return nil, errors.WrapInvalid(
			fmt.Errorf("%w: metadata records %q, options select %q", errors.ErrPrecisionLoss, recorded, prec),
			"codec", "Encode", "precision check")
	}

	payload, err := encodePayload(p.Geometry, prec)
	if err != nil {
		return nil, errors.WrapInvalid(
			fmt.Errorf("%w: %v", errors.ErrGeometryInvalid, err),
			"codec", "Encode", "payload packing")
	}

	metadata := make(map[string]string, len(p.Metadata)+1)
	for k, v := range p.Metadata {
		metadata[k] = v
	}
	metadata[MetadataPrecision] = string(prec)

	env := envelope{
		Version:   p.Version,
		Kind:      string(p.Kind),
		Encoding:  p.Encoding,
		Timestamp: timestamp.FormatTime(p.Timestamp),
		Source:    p.Source,
		Geometry:  base64.StdEncoding.EncodeToString(payload),
		Metadata:  metadata,
	}

	data, err := json.Marshal(env)
	if err != nil {
		return nil, errors.WrapInvalid(err, "codec", "Encode", "envelope marshaling")
	}
	return data, nil
}

// Decode parses wire bytes back into a Packet. Decode is idempotent:
// decoding the same bytes twice yields equal packets, and Decode(Encode(p))
// returns p bit-for-bit at the encoded precision.
//
// Failures are *DecodeError values distinguishable with errors.Is against
// ErrUnsupportedVersion, ErrUnknownKind, ErrMalformedBase64 and
// ErrSchemaViolation. No partially valid packet ever escapes.
func Decode(data []byte) (Packet, error) {
	violation, err := validateEnvelope(data)
	if err != nil {
		return Packet{}, newDecodeError(ErrSchemaViolation, "envelope not valid JSON: %v", err)
	}
	if violation != "" {
		return Packet{}, newDecodeError(ErrSchemaViolation, "%s", violation)
	}

	var env envelope
	if err := json.Unmarshal(data, &env); err != nil {
		// Schema validation passed, so this only fires on type-level
		// mismatches the schema cannot express.
		return Packet{}, newDecodeError(ErrSchemaViolation, "envelope unmarshal: %v", err)
	}

	if env.Version != Version {
		return Packet{}, newDecodeError(ErrUnsupportedVersion, "version %q, want %q", env.Version, Version)
	}

	kind := Kind(env.Kind)
	if !kind.Valid() {
		return Packet{}, newDecodeError(ErrUnknownKind, "kind %q", env.Kind)
	}

	ts, err := timestamp.ParseRFC3339(env.Timestamp)
	if err != nil {
		return Packet{}, newDecodeError(ErrSchemaViolation, "timestamp %q not RFC3339", env.Timestamp)
	}

	payload, err := base64.StdEncoding.DecodeString(env.Geometry)
	if err != nil {
		return Packet{}, newDecodeError(ErrMalformedBase64, "geometry: %v", err)
	}

	geometry, prec, err := decodePayload(payload)
	if err != nil {
		return Packet{}, newDecodeError(ErrSchemaViolation, "payload: %v", err)
	}

	recorded, ok := env.Metadata[MetadataPrecision]
	if !ok {
		return Packet{}, newDecodeError(ErrSchemaViolation, "metadata missing %q", MetadataPrecision)
	}
	if recorded != string(prec) {
		return Packet{}, newDecodeError(ErrSchemaViolation,
			"precision mismatch: metadata %q, payload header %q", recorded, prec)
	}

	if reason := checkGeometry(kind, geometry); reason != "" {
		return Packet{}, newDecodeError(ErrSchemaViolation, "%s", reason)
	}

	metadata := make(map[string]string, len(env.Metadata))
	for k, v := range env.Metadata {
		metadata[k] = v
	}

	return Packet{
		Version:   env.Version,
		Kind:      kind,
		Encoding:  env.Encoding,
		Timestamp: ts,
		Source:    env.Source,
		Geometry:  geometry,
		Metadata:  metadata,
	}, nil
}
