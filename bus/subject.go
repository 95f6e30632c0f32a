package bus

import (
	"fmt"
	"strings"

	"github.com/nats-io/nats.go"

	"github.com/tokenism/geobus/errors"
)

// Subjects follow the convention <namespace>.<domain>.<kind>.<version-tag>,
// e.g. "geometry.manifold.detect.v1". The bus never parses a subject for
// semantic content; the convention exists so wildcard subscriptions can
// carve out namespaces ("geometry.>") or single levels ("tokenism.cgp.*").

// FormatSubject joins the four conventional subject levels into a routing
// key, validating each level as a single literal token.
func FormatSubject(namespace, domain, kind, version string) (string, error) {
	for _, part := range []string{namespace, domain, kind, version} {
		if !validToken(part) || strings.Contains(part, ".") {
			return "", errors.WrapInvalid(
				fmt.Errorf("%w: token %q", nats.ErrBadSubject, part),
				"bus", "FormatSubject", "subject token check")
		}
	}
	return strings.Join([]string{namespace, domain, kind, version}, "."), nil
}

// ValidSubject reports whether subject is a publishable routing key:
// dot-delimited, every token non-empty and literal. Wildcards make a
// subject unpublishable; use ValidPattern for subscription filters.
func ValidSubject(subject string) bool {
	if subject == "" {
		return false
	}
	for _, tok := range strings.Split(subject, ".") {
		if !validToken(tok) {
			return false
		}
	}
	return true
}

// ValidPattern reports whether pattern is a well-formed subscription
// filter. "*" matches exactly one token; ">" matches one or more trailing
// tokens and may only appear as the final token.
func ValidPattern(pattern string) bool {
	if pattern == "" {
		return false
	}
	toks := strings.Split(pattern, ".")
	for i, tok := range toks {
		switch tok {
		case "*":
		case ">":
			if i != len(toks)-1 {
				return false
			}
		default:
			if !validToken(tok) {
				return false
			}
		}
	}
	return true
}

// MatchSubject reports whether a literal subject falls under a pattern,
// with the server's wildcard semantics: "*" consumes exactly one token,
// ">" consumes one or more trailing tokens. "geometry.>" matches
// "geometry.manifold.detect.v1" but not the bare "geometry";
// "tokenism.cgp.*" matches "tokenism.cgp.weekly" and nothing deeper.
// Malformed patterns or subjects match nothing.
func MatchSubject(pattern, subject string) bool {
	if !ValidPattern(pattern) || !ValidSubject(subject) {
		return false
	}
	pt := strings.Split(pattern, ".")
	st := strings.Split(subject, ".")
	for i, tok := range pt {
		if tok == ">" {
			return len(st) > i
		}
		if i >= len(st) {
			return false
		}
		if tok != "*" && tok != st[i] {
			return false
		}
	}
	return len(st) == len(pt)
}

// DurableName derives a stable JetStream durable consumer name from a
// subject pattern. The same pattern always yields the same name, so a
// restarted subscriber binds the same server-side cursor and resumes
// where the previous process stopped.
func DurableName(pattern string) string {
	parts := strings.Split(pattern, ".")
	for i, p := range parts {
		switch p {
		case "*":
			parts[i] = "any"
		case ">":
			parts[i] = "all"
		}
	}
	return strings.Join(parts, "-")
}

func validToken(tok string) bool {
	if tok == "" {
		return false
	}
	return !strings.ContainsAny(tok, "*> \t")
}
