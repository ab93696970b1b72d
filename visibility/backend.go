// Package visibility keeps one canonical visible/selected segment model in sync
// across the lattice, mesh and primitive rendering backends.
//
// Backends only ever receive the difference between what they show and what is
// wanted; segmentations or segments that are not materialized yet are skipped.
package visibility

import (
	"context"

	"github.com/unkn0wn-root/voxcache/segkey"
)

// LatticeBackend holds one volume representation per segmentation whose visible
// segment ids form a single list parameter.
type LatticeBackend interface {
	// Segmentations lists the materialized lattice segmentations.
	Segmentations(ctx context.Context) []string
	// VisibleSegments is the applied list; ok is false if the segmentation is absent.
	VisibleSegments(ctx context.Context, segmentationID string) (ids []int, ok bool)
	// SetVisibleSegments replaces the list and commits it. The backend may apply a
	// subset, e.g. when a label is not present in the current timeframe.
	SetVisibleSegments(ctx context.Context, segmentationID string, ids []int) error
}

// NodeBackend holds one scene node per segment (meshes and primitives).
type NodeBackend interface {
	Segmentations(ctx context.Context) []string
	// Nodes maps segment id to its current visibility flag; ok is false if the
	// segmentation is absent.
	Nodes(ctx context.Context, segmentationID string) (nodes map[int]bool, ok bool)
	SetNodeVisibility(ctx context.Context, segmentationID string, segmentID int, visible bool) error
}

// Selector drives the backend-level highlight of the selected segment.
type Selector interface {
	ClearSelection(ctx context.Context) error
	Select(ctx context.Context, key segkey.Key) error
}

// Backends groups the collaborators. A nil backend has no segmentations.
type Backends struct {
	Lattice   LatticeBackend
	Mesh      NodeBackend
	Primitive NodeBackend
	Selector  Selector
}

func (b Backends) segmentations(ctx context.Context, kind segkey.Kind) []string {
	switch kind {
	case segkey.Lattice:
		if b.Lattice != nil {
			return b.Lattice.Segmentations(ctx)
		}
	case segkey.Mesh:
		if b.Mesh != nil {
			return b.Mesh.Segmentations(ctx)
		}
	case segkey.Primitive:
		if b.Primitive != nil {
			return b.Primitive.Segmentations(ctx)
		}
	default:
		unsupported(kind)
	}
	return nil
}

func (b Backends) nodes(kind segkey.Kind) NodeBackend {
	switch kind {
	case segkey.Mesh:
		return b.Mesh
	case segkey.Primitive:
		return b.Primitive
	default:
		unsupported(kind)
		return nil
	}
}

func unsupported(kind segkey.Kind) {
	panic("visibility: unsupported segmentation kind " + kind.String())
}
