// Package hyperbolic embeds rooted trees into the Poincaré disk (2-D) or
// ball (3-D) and renders the embedding as a geometry packet.
//
// The embedding follows the exponential-map construction: the root sits at
// the origin and every child is placed at a fixed hyperbolic distance from
// its parent along a geodesic, with sibling directions fanned out
// deterministically around the direction back to the grandparent. Because
// hyperbolic area grows exponentially with radius, an entire subtree fits
// inside the cone its first edge opens, and ancestors always lie nearer
// the center than their descendants.
//
// # Domain
//
// All arithmetic runs in the open unit ball with curvature -1. Emitted
// norms stay strictly below the 1-1e-9 boundary guard; a placement that
// cannot satisfy the guard after halving the step a bounded number of
// times fails with OutOfDomainError rather than emitting a point near the
// metric singularity at the boundary.
//
// # Determinism
//
// Encode is deterministic: node order is breadth-first with children in
// declared order, and sibling fan-out uses fixed angle sequences (golden
// angle on the sphere for 3-D), so identical trees and options produce
// identical packets.
package hyperbolic

import (
	"context"
	"fmt"
	"math"
	"sort"

	"github.com/tokenism/geobus/codec"
	"github.com/tokenism/geobus/errors"
)

const (
	// boundaryGuard is the largest norm a placed point may have. The
	// Poincaré metric diverges at norm 1, so coordinates this close to
	// the boundary no longer round-trip through the wire codec.
	boundaryGuard = 1 - 1e-9

	// placementAttempts bounds how many times a child placement retries
	// with a halved step before giving up.
	placementAttempts = 4
)

// goldenAngle spreads 3-D sibling directions over the unit sphere.
var goldenAngle = math.Pi * (3 - math.Sqrt(5))

// Tree is a rooted tree given as adjacency lists. Children order is
// preserved by the embedding, so callers control the angular layout of
// siblings by ordering the lists.
type Tree struct {
	// Root is the node mapped to the origin (or Options.RootPosition).
	Root string

	// Children maps a node to its children. Nodes without children may
	// be omitted.
	Children map[string][]string
}

// NotATreeError reports input that is not a rooted tree: a cycle, a node
// with several parents, or nodes unreachable from the root. It matches
// errors.ErrGeometryInvalid.
type NotATreeError struct {
	Reason string
}

func (e *NotATreeError) Error() string {
	return "not a tree: " + e.Reason
}

func (e *NotATreeError) Unwrap() error {
	return errors.ErrGeometryInvalid
}

// OutOfDomainError reports a coordinate that left the open unit ball: a
// provided root position with norm >= 1, or a placement that still
// violated the boundary guard after all step-halving attempts. It matches
// errors.ErrGeometryInvalid.
type OutOfDomainError struct {
	NodeID string
	Norm   float64
}

func (e *OutOfDomainError) Error() string {
	return fmt.Sprintf("node %q: norm %v is outside the open unit ball", e.NodeID, e.Norm)
}

func (e *OutOfDomainError) Unwrap() error {
	return errors.ErrGeometryInvalid
}

// Options controls the embedding.
type Options struct {
	// Dimension selects the Poincaré disk (2) or ball (3).
	Dimension int

	// Curvature is recorded in the emitted packet and must be strictly
	// negative. The embedding itself always runs at curvature -1; the
	// field is provenance for consumers.
	Curvature float64

	// StepSize is the hyperbolic length of every parent-child edge.
	StepSize float64

	// RootPosition optionally anchors the root away from the origin, for
	// composing several embeddings into one disk. Length must match
	// Dimension. Norm >= 1 is rejected; norms inside the boundary guard
	// band are clamped onto the guard radius.
	RootPosition []float64

	// Source names the packet producer.
	Source string
}

// DefaultOptions returns the embedding parameters used across the bus:
// the 2-D disk, curvature -1, unit edge length, root at the origin.
func DefaultOptions() Options {
	return Options{
		Dimension: 2,
		Curvature: -1,
		StepSize:  1,
		Source:    "hyperbolic-encoder",
	}
}

// Validate checks the options for usable values.
func (o Options) Validate() error {
	if o.Dimension != 2 && o.Dimension != 3 {
		return errors.WrapInvalid(
			fmt.Errorf("%w: dimension must be 2 or 3, got %d", errors.ErrInvalidConfig, o.Dimension),
			"hyperbolic", "Validate", "options check")
	}
	if o.Curvature >= 0 || math.IsNaN(o.Curvature) || math.IsInf(o.Curvature, 0) {
		return errors.WrapInvalid(
			fmt.Errorf("%w: curvature must be strictly negative, got %v", errors.ErrInvalidConfig, o.Curvature),
			"hyperbolic", "Validate", "options check")
	}
	if o.StepSize <= 0 || math.IsNaN(o.StepSize) || math.IsInf(o.StepSize, 0) {
		return errors.WrapInvalid(
			fmt.Errorf("%w: step size must be positive, got %v", errors.ErrInvalidConfig, o.StepSize),
			"hyperbolic", "Validate", "options check")
	}
	if o.RootPosition != nil && len(o.RootPosition) != o.Dimension {
		return errors.WrapInvalid(
			fmt.Errorf("%w: root position has %d coordinates, want %d", errors.ErrInvalidConfig, len(o.RootPosition), o.Dimension),
			"hyperbolic", "Validate", "options check")
	}
	if o.Source == "" {
		return errors.WrapInvalid(
			fmt.Errorf("%w: source must not be empty", errors.ErrInvalidConfig),
			"hyperbolic", "Validate", "options check")
	}
	return nil
}

// Encode embeds the tree and returns a hyperbolic-kind packet whose points
// are the node coordinates in breadth-first order, root first.
func Encode(ctx context.Context, tree Tree, opts Options) (codec.Packet, error) {
	if err := opts.Validate(); err != nil {
		return codec.Packet{}, err
	}
	order, parents, err := tree.traverse()
	if err != nil {
		return codec.Packet{}, err
	}

	root, err := rootPosition(tree.Root, opts)
	if err != nil {
		return codec.Packet{}, err
	}

	pos := make(map[string][]float64, len(order))
	pos[tree.Root] = root
	for _, id := range order {
		if err := ctx.Err(); err != nil {
			return codec.Packet{}, errors.Wrap(err, "hyperbolic", "Encode", "placement")
		}
		kids := tree.Children[id]
		if len(kids) == 0 {
			continue
		}
		base := pos[id]
		dirs := childDirections(base, pos[parents[id]], id == tree.Root, len(kids), opts.Dimension)
		for j, child := range kids {
			p, err := placeChild(base, dirs[j], opts.StepSize, child)
			if err != nil {
				return codec.Packet{}, err
			}
			pos[child] = p
		}
	}

	points := make([][]float64, len(order))
	for i, id := range order {
		points[i] = pos[id]
	}
	return codec.NewPacket(codec.KindHyperbolic, codec.Geometry{
		Dimension: opts.Dimension,
		Curvature: opts.Curvature,
		Points:    points,
	}, opts.Source), nil
}

// traverse validates the topology and returns the breadth-first node order
// together with each node's parent.
func (t Tree) traverse() ([]string, map[string]string, error) {
	if t.Root == "" {
		return nil, nil, &NotATreeError{Reason: "empty root id"}
	}

	parents := make(map[string]string)
	for parent, kids := range t.Children {
		for _, child := range kids {
			if child == t.Root {
				return nil, nil, &NotATreeError{Reason: fmt.Sprintf("root %q has a parent", t.Root)}
			}
			if child == parent {
				return nil, nil, &NotATreeError{Reason: fmt.Sprintf("node %q is its own child", child)}
			}
			if prev, ok := parents[child]; ok {
				if prev == parent {
					return nil, nil, &NotATreeError{Reason: fmt.Sprintf("node %q is listed twice under %q", child, parent)}
				}
				return nil, nil, &NotATreeError{Reason: fmt.Sprintf("node %q has multiple parents", child)}
			}
			parents[child] = parent
		}
	}

	order := make([]string, 0, len(parents)+1)
	order = append(order, t.Root)
	for i := 0; i < len(order); i++ {
		order = append(order, t.Children[order[i]]...)
	}

	// Every parent and child must have been reached; leftovers are
	// disconnected subtrees or cycles.
	if len(order) != len(parents)+1 {
		reached := make(map[string]bool, len(order))
		for _, id := range order {
			reached[id] = true
		}
		var missing []string
		for parent := range t.Children {
			if !reached[parent] {
				missing = append(missing, parent)
			}
		}
		for child := range parents {
			if !reached[child] {
				missing = append(missing, child)
			}
		}
		sort.Strings(missing)
		return nil, nil, &NotATreeError{Reason: fmt.Sprintf("nodes not reachable from root %q: %v", t.Root, dedupe(missing))}
	}
	return order, parents, nil
}

// rootPosition resolves the root coordinates, clamping into the boundary
// guard when the caller anchored the root close to the boundary.
func rootPosition(rootID string, opts Options) ([]float64, error) {
	root := make([]float64, opts.Dimension)
	if opts.RootPosition == nil {
		return root, nil
	}
	copy(root, opts.RootPosition)
	n := norm(root)
	if n >= 1 || math.IsNaN(n) {
		return nil, &OutOfDomainError{NodeID: rootID, Norm: n}
	}
	if n >= boundaryGuard {
		scale := boundaryGuard / n
		for i := range root {
			root[i] *= scale
		}
	}
	return root, nil
}

// childDirections returns one unit vector per child. Directions avoid the
// geodesic back to the parent: in the frame where base is translated to
// the origin, siblings take the angles 2pi*(j+1)/(c+1) past the parent
// direction, so no child overlaps the incoming edge.
func childDirections(base, parent []float64, isRoot bool, count, dim int) [][]float64 {
	if dim == 2 {
		dirs := make([][]float64, count)
		if isRoot {
			span := 2 * math.Pi / float64(count)
			for j := range dirs {
				theta := span * float64(j)
				dirs[j] = []float64{math.Cos(theta), math.Sin(theta)}
			}
			return dirs
		}
		q := MobiusAdd(negate(base), parent)
		start := math.Atan2(q[1], q[0])
		span := 2 * math.Pi / float64(count+1)
		for j := range dirs {
			theta := start + span*float64(j+1)
			dirs[j] = []float64{math.Cos(theta), math.Sin(theta)}
		}
		return dirs
	}

	if isRoot {
		return fibonacciSphere(count)
	}
	q := MobiusAdd(negate(base), parent)
	nq := norm(q)
	for i := range q {
		q[i] /= nq
	}
	candidates := fibonacciSphere(count + 1)
	skip, best := 0, math.Inf(-1)
	for i, c := range candidates {
		if d := dot(c, q); d > best {
			skip, best = i, d
		}
	}
	dirs := make([][]float64, 0, count)
	for i, c := range candidates {
		if i != skip {
			dirs = append(dirs, c)
		}
	}
	return dirs
}

// placeChild walks one edge of hyperbolic length step from base along dir.
// Möbius translation is an isometry, so |tanh(step/2)| offsets travel
// exactly step regardless of how far base sits from the origin. The step
// halves on each retry that lands outside the boundary guard.
func placeChild(base, dir []float64, step float64, childID string) ([]float64, error) {
	lastNorm := 0.0
	for attempt := 0; attempt < placementAttempts; attempt++ {
		r := math.Tanh(step / 2)
		v := make([]float64, len(dir))
		for i := range v {
			v[i] = r * dir[i]
		}
		p := MobiusAdd(base, v)
		n := norm(p)
		if n < boundaryGuard {
			return p, nil
		}
		lastNorm = n
		step /= 2
	}
	return nil, &OutOfDomainError{NodeID: childID, Norm: lastNorm}
}

// fibonacciSphere returns n unit vectors spread evenly over the 2-sphere
// by the golden-angle spiral.
func fibonacciSphere(n int) [][]float64 {
	pts := make([][]float64, n)
	for i := range pts {
		y := 1 - 2*(float64(i)+0.5)/float64(n)
		r := math.Sqrt(1 - y*y)
		theta := goldenAngle * float64(i)
		pts[i] = []float64{r * math.Cos(theta), y, r * math.Sin(theta)}
	}
	return pts
}

func negate(a []float64) []float64 {
	out := make([]float64, len(a))
	for i := range out {
		out[i] = -a[i]
	}
	return out
}

func dedupe(sorted []string) []string {
	out := sorted[:0]
	for i, s := range sorted {
		if i == 0 || sorted[i-1] != s {
			out = append(out, s)
		}
	}
	return out
}
