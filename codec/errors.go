package codec

import (
	"fmt"

	"github.com/tokenism/geobus/errors"
)

// Decode failure variants. Each wraps errors.ErrInvalidPacket so the
// shared classifier treats every decode failure as Invalid: never retried,
// never redelivered for another attempt.
var (
	// ErrUnsupportedVersion reports an envelope version other than Version.
	ErrUnsupportedVersion = fmt.Errorf("%w: unsupported version", errors.ErrInvalidPacket)

	// ErrMalformedBase64 reports a geometry field that is not valid base64.
	ErrMalformedBase64 = fmt.Errorf("%w: malformed base64", errors.ErrInvalidPacket)

	// ErrSchemaViolation reports an envelope or geometry that fails the
	// packet schema or its invariants.
	ErrSchemaViolation = fmt.Errorf("%w: schema violation", errors.ErrInvalidPacket)

	// ErrUnknownKind reports a kind outside the protocol enum.
	ErrUnknownKind = fmt.Errorf("%w: unknown kind", errors.ErrInvalidPacket)
)

// DecodeError is returned by Decode when input cannot become a valid
// Packet. Variant is one of the sentinel errors above, so callers branch
// with errors.Is; Detail names the offending field or value.
type DecodeError struct {
	Variant error
	Detail  string
}

// Error implements the error interface.
func (e *DecodeError) Error() string {
	if e.Detail == "" {
		return e.Variant.Error()
	}
	return fmt.Sprintf("%v: %s", e.Variant, e.Detail)
}

// Unwrap exposes the variant for errors.Is matching.
func (e *DecodeError) Unwrap() error {
	return e.Variant
}

func newDecodeError(variant error, format string, args ...any) *DecodeError {
	return &DecodeError{
		Variant: variant,
		Detail:  fmt.Sprintf(format, args...),
	}
}
