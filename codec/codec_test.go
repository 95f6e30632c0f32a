package codec

import (
	"encoding/base64"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	pkgerrors "github.com/tokenism/geobus/errors"
)

// mutateEnvelope decodes wire bytes to a generic map, applies fn and
// re-marshals, so tests can corrupt single envelope fields.
func mutateEnvelope(t *testing.T, data []byte, fn func(env map[string]any)) []byte {
	t.Helper()

	var env map[string]any
	require.NoError(t, json.Unmarshal(data, &env))
	fn(env)

	mutated, err := json.Marshal(env)
	require.NoError(t, err)
	return mutated
}

func testPacket(kind Kind, curvature float64, points [][]float64) Packet {
	return NewPacket(kind,
		Geometry{Dimension: 2, Curvature: curvature, Points: points},
		"codec-test",
		WithTimestamp(time.Date(2025, 11, 3, 12, 0, 0, 0, time.UTC)),
	)
}

func TestRoundTrip_AllPrecisions(t *testing.T) {
	// Coordinates exactly representable at every precision, so the
	// round-trip comparison is bit-for-bit even at half.
	points := [][]float64{
		{0.5, -0.25},
		{0.125, 0.75},
		{0, -1.5},
	}

	tests := []struct {
		name      string
		precision Precision
	}{
		{"half", PrecisionHalf},
		{"single", PrecisionSingle},
		{"double", PrecisionDouble},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			packet := testPacket(KindDirichlet, 0, points)
			packet.Metadata[MetadataPrecision] = string(tt.precision)

			data, err := Encode(packet, Options{Precision: tt.precision})
			require.NoError(t, err)

			decoded, err := Decode(data)
			require.NoError(t, err)

			assert.Equal(t, packet.Version, decoded.Version)
			assert.Equal(t, packet.Kind, decoded.Kind)
			assert.Equal(t, packet.Encoding, decoded.Encoding)
			assert.Equal(t, packet.Source, decoded.Source)
			assert.True(t, packet.Timestamp.Equal(decoded.Timestamp))
			assert.Equal(t, packet.Geometry, decoded.Geometry)
			assert.Equal(t, packet.Metadata, decoded.Metadata)
		})
	}
}

func TestRoundTrip_HalfQuantizes(t *testing.T) {
	packet := testPacket(KindAttribution, 0, [][]float64{{0.1, 0.2}})

	data, err := Encode(packet, Options{Precision: PrecisionHalf})
	require.NoError(t, err)

	decoded, err := Decode(data)
	require.NoError(t, err)

	// binary16 keeps about three decimal digits near 0.1.
	assert.InDelta(t, 0.1, decoded.Geometry.Points[0][0], 1e-3)
	assert.InDelta(t, 0.2, decoded.Geometry.Points[0][1], 1e-3)
	assert.Equal(t, string(PrecisionHalf), decoded.Metadata[MetadataPrecision])
}

func TestRoundTrip_EmptyGeometry(t *testing.T) {
	packet := testPacket(KindAttribution, 0, [][]float64{})

	data, err := Encode(packet, Options{})
	require.NoError(t, err)

	decoded, err := Decode(data)
	require.NoError(t, err)

	assert.NotNil(t, decoded.Geometry.Points)
	assert.Len(t, decoded.Geometry.Points, 0)
}

func TestRoundTrip_HyperbolicKind(t *testing.T) {
	packet := testPacket(KindHyperbolic, -1, [][]float64{{0.1, 0.2}, {0.3, -0.1}})

	data, err := Encode(packet, Options{Precision: PrecisionDouble})
	require.NoError(t, err)

	decoded, err := Decode(data)
	require.NoError(t, err)

	assert.Equal(t, KindHyperbolic, decoded.Kind)
	assert.Equal(t, -1.0, decoded.Geometry.Curvature)
	assert.Equal(t, [][]float64{{0.1, 0.2}, {0.3, -0.1}}, decoded.Geometry.Points)
}

func TestDecode_Idempotent(t *testing.T) {
	packet := testPacket(KindHyperbolic, -1, [][]float64{{0.25, 0.5}})

	data, err := Encode(packet, Options{Precision: PrecisionSingle})
	require.NoError(t, err)

	first, err := Decode(data)
	require.NoError(t, err)
	second, err := Decode(data)
	require.NoError(t, err)

	assert.Equal(t, first, second)
}

func TestReencode_Stable(t *testing.T) {
	packet := testPacket(KindDirichlet, 0, [][]float64{{1.5, 0.25}, {1.5, 0.75}})

	first, err := Encode(packet, Options{Precision: PrecisionDouble})
	require.NoError(t, err)

	decoded, err := Decode(first)
	require.NoError(t, err)

	second, err := Encode(decoded, Options{Precision: PrecisionDouble})
	require.NoError(t, err)

	assert.Equal(t, first, second)
}

func TestEncode_DefaultsToDouble(t *testing.T) {
	packet := testPacket(KindAttribution, 0, [][]float64{{0.1, 0.9}})

	data, err := Encode(packet, Options{})
	require.NoError(t, err)

	decoded, err := Decode(data)
	require.NoError(t, err)

	assert.Equal(t, string(PrecisionDouble), decoded.Metadata[MetadataPrecision])
	assert.Equal(t, 0.1, decoded.Geometry.Points[0][0])
}

func TestEncode_DoesNotMutateInput(t *testing.T) {
	packet := testPacket(KindAttribution, 0, [][]float64{{0.1, 0.9}})

	_, err := Encode(packet, Options{Precision: PrecisionDouble})
	require.NoError(t, err)

	_, recorded := packet.Metadata[MetadataPrecision]
	assert.False(t, recorded, "Encode must not write into the caller's metadata")
}

func TestEncode_RejectsMetadataPrecisionMismatch(t *testing.T) {
	packet := testPacket(KindAttribution, 0, [][]float64{{0.1, 0.9}})
	packet.Metadata[MetadataPrecision] = string(PrecisionDouble)

	_, err := Encode(packet, Options{Precision: PrecisionHalf})
	require.Error(t, err)
	assert.ErrorIs(t, err, pkgerrors.ErrPrecisionLoss)
	assert.True(t, pkgerrors.IsInvalid(err))
}

func TestEncode_RejectsInvalidPacket(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(p *Packet)
	}{
		{"wrong version", func(p *Packet) { p.Version = "0.1" }},
		{"unknown kind", func(p *Packet) { p.Kind = "euclidean" }},
		{"wrong encoding", func(p *Packet) { p.Encoding = "hex" }},
		{"zero timestamp", func(p *Packet) { p.Timestamp = time.Time{} }},
		{"empty source", func(p *Packet) { p.Source = "" }},
		{"bad dimension", func(p *Packet) { p.Geometry.Dimension = 4 }},
		{"row arity mismatch", func(p *Packet) { p.Geometry.Points = [][]float64{{0.1, 0.2, 0.3}} }},
		{"hyperbolic zero curvature", func(p *Packet) {
			p.Kind = KindHyperbolic
			p.Geometry.Curvature = 0
		}},
		{"hyperbolic norm at boundary", func(p *Packet) {
			p.Kind = KindHyperbolic
			p.Geometry.Curvature = -1
			p.Geometry.Points = [][]float64{{1, 0}}
		}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			packet := testPacket(KindAttribution, 0, [][]float64{{0.1, 0.9}})
			tt.mutate(&packet)

			_, err := Encode(packet, Options{})
			require.Error(t, err)
			assert.True(t, pkgerrors.IsInvalid(err), "expected Invalid class, got %v", err)
		})
	}
}

func TestDecode_UnsupportedVersion(t *testing.T) {
	packet := testPacket(KindAttribution, 0, [][]float64{{0.1, 0.9}})
	data, err := Encode(packet, Options{})
	require.NoError(t, err)

	mutated := mutateEnvelope(t, data, func(env map[string]any) {
		env["version"] = "0.1"
	})

	_, err = Decode(mutated)
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrUnsupportedVersion)

	var decodeErr *DecodeError
	require.ErrorAs(t, err, &decodeErr)
	assert.Contains(t, decodeErr.Detail, "0.1")
}

func TestDecode_UnknownKind(t *testing.T) {
	packet := testPacket(KindAttribution, 0, [][]float64{{0.1, 0.9}})
	data, err := Encode(packet, Options{})
	require.NoError(t, err)

	mutated := mutateEnvelope(t, data, func(env map[string]any) {
		env["kind"] = "euclidean"
	})

	_, err = Decode(mutated)
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrUnknownKind)
	assert.NotErrorIs(t, err, ErrSchemaViolation)
}

func TestDecode_MalformedBase64(t *testing.T) {
	packet := testPacket(KindAttribution, 0, [][]float64{{0.1, 0.9}})
	data, err := Encode(packet, Options{})
	require.NoError(t, err)

	mutated := mutateEnvelope(t, data, func(env map[string]any) {
		env["geometry"] = "!!!not-base64!!!"
	})

	_, err = Decode(mutated)
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrMalformedBase64)
}

func TestDecode_SchemaViolation(t *testing.T) {
	packet := testPacket(KindAttribution, 0, [][]float64{{0.1, 0.9}})
	valid, err := Encode(packet, Options{})
	require.NoError(t, err)

	tests := []struct {
		name   string
		mutate func(env map[string]any)
	}{
		{"missing source", func(env map[string]any) { delete(env, "source") }},
		{"empty source", func(env map[string]any) { env["source"] = "" }},
		{"unknown envelope field", func(env map[string]any) { env["priority"] = 5 }},
		{"numeric timestamp", func(env map[string]any) { env["timestamp"] = 1730635200 }},
		{"not a date-time", func(env map[string]any) { env["timestamp"] = "yesterday" }},
		{"encoding not base64", func(env map[string]any) { env["encoding"] = "hex" }},
		{"metadata value not string", func(env map[string]any) {
			env["metadata"] = map[string]any{"precision": 2}
		}},
		{"metadata missing precision", func(env map[string]any) {
			env["metadata"] = map[string]any{"note": "x"}
		}},
		{"metadata precision disagrees with header", func(env map[string]any) {
			env["metadata"] = map[string]any{"precision": "half"}
		}},
		{"payload is not the binary format", func(env map[string]any) {
			env["geometry"] = base64.StdEncoding.EncodeToString([]byte("hello"))
		}},
		{"payload truncated", func(env map[string]any) {
			geometryField, _ := env["geometry"].(string)
			payload, _ := base64.StdEncoding.DecodeString(geometryField)
			env["geometry"] = base64.StdEncoding.EncodeToString(payload[:len(payload)-3])
		}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			mutated := mutateEnvelope(t, valid, tt.mutate)

			_, err := Decode(mutated)
			require.Error(t, err)
			assert.ErrorIs(t, err, ErrSchemaViolation, "got %v", err)
		})
	}
}

func TestDecode_NotJSON(t *testing.T) {
	_, err := Decode([]byte("geometry packet"))
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrSchemaViolation)
}

func TestDecode_HyperbolicInvariants(t *testing.T) {
	t.Run("curvature must be negative", func(t *testing.T) {
		// Attribution packets carry any curvature, so an envelope with
		// non-negative curvature and kind rewritten to hyperbolic is the
		// decode-side path into the invariant check.
		packet := testPacket(KindAttribution, 1, [][]float64{{0.1, 0.2}})
		data, err := Encode(packet, Options{})
		require.NoError(t, err)

		mutated := mutateEnvelope(t, data, func(env map[string]any) {
			env["kind"] = string(KindHyperbolic)
		})

		_, err = Decode(mutated)
		require.Error(t, err)
		assert.ErrorIs(t, err, ErrSchemaViolation)

		var decodeErr *DecodeError
		require.ErrorAs(t, err, &decodeErr)
		assert.Contains(t, decodeErr.Detail, "curvature")
	})

	t.Run("norms must stay inside the unit ball", func(t *testing.T) {
		packet := testPacket(KindAttribution, -1, [][]float64{{1.5, 0.2}})
		data, err := Encode(packet, Options{})
		require.NoError(t, err)

		mutated := mutateEnvelope(t, data, func(env map[string]any) {
			env["kind"] = string(KindHyperbolic)
		})

		_, err = Decode(mutated)
		require.Error(t, err)
		assert.ErrorIs(t, err, ErrSchemaViolation)

		var decodeErr *DecodeError
		require.ErrorAs(t, err, &decodeErr)
		assert.Contains(t, decodeErr.Detail, "norm")
	})
}

func TestDecodeErrors_ClassifyAsInvalid(t *testing.T) {
	packet := testPacket(KindAttribution, 0, [][]float64{{0.1, 0.9}})
	data, err := Encode(packet, Options{})
	require.NoError(t, err)

	mutated := mutateEnvelope(t, data, func(env map[string]any) {
		env["version"] = "9.9"
	})

	_, err = Decode(mutated)
	require.Error(t, err)

	assert.True(t, pkgerrors.IsInvalid(err))
	assert.ErrorIs(t, err, pkgerrors.ErrInvalidPacket)
	assert.False(t, pkgerrors.IsTransient(err))
}

func TestDecodeError_ErrorText(t *testing.T) {
	err := newDecodeError(ErrUnknownKind, "kind %q", "mystery")
	assert.Contains(t, err.Error(), "unknown kind")
	assert.Contains(t, err.Error(), "mystery")

	bare := &DecodeError{Variant: ErrMalformedBase64}
	assert.Equal(t, ErrMalformedBase64.Error(), bare.Error())
	assert.True(t, errors.Is(bare, ErrMalformedBase64))
}
