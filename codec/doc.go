// Package codec implements the geometry packet wire protocol: a JSON
// envelope carrying a compact binary coordinate payload as base64 text.
//
// # Wire Format
//
// Every packet travels as a JSON envelope:
//
//	{
//	  "version":   "0.2",
//	  "kind":      "hyperbolic",
//	  "encoding":  "base64",
//	  "timestamp": "2025-11-03T12:00:00Z",
//	  "source":    "tree-encoder",
//	  "geometry":  "R7UCAgAAAAAAAPC/...",
//	  "metadata":  {"precision": "double"}
//	}
//
// The geometry field is the base64 text of a binary payload:
//
//	magic  u16      0x47B5 little-endian
//	prec   u8       0=half 1=single 2=double
//	dim    u8       2 or 3
//	curv   f64      curvature bits
//	count  uvarint  number of points
//	mode   u8       0x01 dictionary, 0x00 raw
//	blocks dictionary + RLE coded coordinate stream
//
// Coordinates are quantized to the selected precision and run-length
// encoded; streams with few distinct values additionally go through a
// one-byte-index dictionary. Geometry data is dominated by repeated and
// mirrored coordinates (fan-outs share radii, attribution rows share
// positions), which is what the dictionary + RLE combination exploits.
//
// # Precision
//
// Encode quantizes coordinates to half (IEEE 754 binary16 via
// x448/float16), single (binary32) or double (binary64). The choice is
// recorded twice, in the payload header and in metadata["precision"], and
// the two must agree at decode time. Within the chosen precision the codec
// is lossless: Decode(Encode(p)) == p bit-for-bit.
//
// # Validation and Errors
//
// Decode validates the envelope against a JSON Schema compiled once at
// package init, then enforces the geometry invariants (point arity equals
// dimension; hyperbolic packets need negative curvature and every norm
// strictly below 1). No partially valid packet escapes: any failure is a
// *DecodeError wrapping one of four sentinel variants:
//
//	errors.Is(err, codec.ErrUnsupportedVersion)  // version != "0.2"
//	errors.Is(err, codec.ErrMalformedBase64)     // geometry not base64
//	errors.Is(err, codec.ErrSchemaViolation)     // envelope or geometry invalid
//	errors.Is(err, codec.ErrUnknownKind)         // kind outside the enum
//
// All four also match errors.ErrInvalidPacket, so the shared classifier
// treats decode failures as Invalid and consumers terminate rather than
// retry them.
//
// # Usage
//
//	geometry := codec.Geometry{
//	    Dimension: 2,
//	    Curvature: -1,
//	    Points:    [][]float64{{0.1, 0.2}, {0.3, -0.1}},
//	}
//	packet := codec.NewPacket(codec.KindHyperbolic, geometry, "tree-encoder")
//
//	data, err := codec.Encode(packet, codec.Options{Precision: codec.PrecisionSingle})
//	if err != nil {
//	    return err
//	}
//
//	decoded, err := codec.Decode(data)
//	if err != nil {
//	    var decodeErr *codec.DecodeError
//	    if errors.As(err, &decodeErr) {
//	        // decodeErr.Variant and decodeErr.Detail name the failure
//	    }
//	    return err
//	}
//
// The codec holds no connections and no global state beyond the compiled
// schema; instrumentation happens at the producer and consumer call sites.
package codec
