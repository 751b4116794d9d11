package merkle

import "github.com/pkg/errors"

// ErrInsufficientWitness is returned by a restricted Tree (one built from a
// witness's node_by_gindex) when a step tries to read or write a gindex
// that was not part of the witness. This is fatal for that verification
// call and is never silently recovered.
var ErrInsufficientWitness = errors.New("insufficient-witness: gindex not covered by witness")

// Recorder observes every gindex that passes through a Tree's public
// Get/Set surface. The trace generator plugs in a Recorder to capture, per
// step, the access set a witness will later be built from. It is a
// pluggable sink rather than a global so instrumentation never leaks into
// the tree's own logic.
type Recorder interface {
	Record(g Gindex)
}

// Tree is a sparse Merkle tree of fixed depth, keyed by generalized index.
// It stores every node that has been Set, whatever its value (a zero value
// is stored like any other, not dropped); every other gindex resolves by
// recursing into children until an explicit value or the zero-subtree
// default is found.
//
// Setting an inner gindex makes it, and so every ancestor up to the root,
// resolve from the value written. Nodes already stored beneath it are not
// removed: a read below it still returns what is stored there (or its zero
// value), and a later Set below it does not change the root. The layout
// package is responsible for never using
// a gindex both as a direct Set target and as an ancestor of another Set
// target, which keeps that collapse semantics unambiguous.
//
// A restricted Tree (built with FromWitness) additionally rejects any
// public Get/Set outside the node set it was built from, so a step replay
// can never read or write state it was not given.
type Tree struct {
	depth      uint
	nodes      map[Gindex]Node
	populated  map[Gindex]bool
	recorder   Recorder
	restricted bool
	zeroAt     ZeroFunc
}

// ZeroFunc returns the value an entirely untouched gindex resolves to. The
// default (nil) assumes every leaf sits at the tree's own fixed depth; a
// caller whose leaves bottom out at varying depths (some shallower than
// the tree's maximum) installs its own via SetZeroFunc so an unpopulated
// leaf resolves to its literal zero value rather than a deeper subtree's
// zero hash.
type ZeroFunc func(Gindex) Node

// New returns an empty Tree of the given depth (all nodes read as zero).
func New(depth uint) *Tree {
	return &Tree{
		depth:     depth,
		nodes:     make(map[Gindex]Node),
		populated: make(map[Gindex]bool),
	}
}

// SetZeroFunc installs (or clears, with nil) the tree's zero-value function.
func (t *Tree) SetZeroFunc(fn ZeroFunc) { t.zeroAt = fn }

// FromWitness builds a restricted Tree whose storage is exactly the given
// node dictionary, for replaying a single step from a witness alone.
func FromWitness(depth uint, dict map[Gindex]Node) *Tree {
	t := &Tree{
		depth:      depth,
		nodes:      make(map[Gindex]Node, len(dict)),
		populated:  make(map[Gindex]bool, len(dict)*2),
		restricted: true,
	}
	for g, n := range dict {
		t.nodes[g] = n
		t.markPopulated(g)
	}
	return t
}

// Clone returns an independent copy of t's stored nodes, unrestricted and
// with no recorder attached. The trace generator uses this to discover a
// step's access set on a disposable tree before computing that step's
// multiproof against the real, not-yet-mutated tree.
func (t *Tree) Clone() *Tree {
	nt := New(t.depth)
	nt.zeroAt = t.zeroAt
	for g, v := range t.nodes {
		nt.nodes[g] = v
	}
	for g, v := range t.populated {
		nt.populated[g] = v
	}
	return nt
}

// SetRecorder installs (or clears, with nil) the access recorder.
func (t *Tree) SetRecorder(r Recorder) { t.recorder = r }

// Depth returns the tree's fixed depth.
func (t *Tree) Depth() uint { return t.depth }

// Restricted reports whether this tree rejects access outside its node set.
func (t *Tree) Restricted() bool { return t.restricted }

func (t *Tree) markPopulated(g Gindex) {
	for d := g; ; d = d.Parent() {
		t.populated[d] = true
		if d == 1 {
			return
		}
	}
}

// Get returns the node at gindex g. In a restricted tree, g must be an
// exact key in the witnessed node set or ErrInsufficientWitness is
// returned; there is no ancestor/zero fallback, by design, since any
// such fallback would let a step silently read state it wasn't given.
func (t *Tree) Get(g Gindex) (Node, error) {
	if t.recorder != nil {
		t.recorder.Record(g)
	}
	if t.restricted {
		v, ok := t.nodes[g]
		if !ok {
			return Node{}, ErrInsufficientWitness
		}
		return v, nil
	}
	return t.resolve(g)
}

// Set replaces the node at gindex g, collapsing its subtree. In a
// restricted tree, g must already be a key in the witnessed node set.
func (t *Tree) Set(g Gindex, v Node) error {
	if t.recorder != nil {
		t.recorder.Record(g)
	}
	if t.restricted {
		if _, ok := t.nodes[g]; !ok {
			return ErrInsufficientWitness
		}
	}
	t.nodes[g] = v
	t.markPopulated(g)
	return nil
}

// Root returns the tree's root node (gindex 1). Root always recomputes via
// the unrestricted resolution path: a restricted tree's root is only ever
// well-formed if its witness included every sibling needed to recompute it
// (an insufficient witness yields the wrong root rather than an error here,
// which is what lets a verifier detect it as a bad pre-root instead).
func (t *Tree) Root() Node {
	v, _ := t.resolve(1)
	return v
}

// resolve computes the node at g without recording or restriction: an
// explicit stored value short-circuits, otherwise we recurse into children
// until we bottom out at a leaf or an entirely-untouched subtree (whose
// value is its zero value).
func (t *Tree) resolve(g Gindex) (Node, error) {
	if v, ok := t.nodes[g]; ok {
		return v, nil
	}
	if !t.populated[g] {
		return t.zeroValue(g), nil
	}
	left, err := t.resolve(g.Left())
	if err != nil {
		return Node{}, err
	}
	right, err := t.resolve(g.Right())
	if err != nil {
		return Node{}, err
	}
	return Hash(left, right), nil
}

// zeroValue returns the value an untouched g resolves to. Without a
// zeroAt installed, every leaf is assumed to sit at the tree's own fixed
// depth, so an untouched g's value is the zero hash of the subtree
// spanning g down to that depth.
func (t *Tree) zeroValue(g Gindex) Node {
	if t.zeroAt != nil {
		return t.zeroAt(g)
	}
	d := g.Depth()
	if d >= t.depth {
		return ZeroHash(0)
	}
	return ZeroHash(t.depth - d)
}

// Multiproof returns the minimal set of nodes (each requested gindex plus
// every sibling on its path to the root that is not itself on the path of
// a requested gindex) sufficient to recompute the root
// and to answer Get for every g in gs. It never touches the recorder or
// the restricted flag: it is always computed against the full, honest tree
// during trace/witness generation, not during a step replay.
func (t *Tree) Multiproof(gs []Gindex) (map[Gindex]Node, error) {
	// Requested gindices and their ancestors are recomputed from below on
	// replay, so none of them is emitted as a sibling.
	onPath := make(map[Gindex]bool)
	for _, g := range gs {
		for cur := g; !onPath[cur]; cur = cur.Parent() {
			onPath[cur] = true
		}
	}
	out := make(map[Gindex]Node)
	for _, g := range gs {
		cur := g
		for {
			v, err := t.resolve(cur)
			if err != nil {
				return nil, err
			}
			if cur == g {
				out[cur] = v
			}
			if cur == 1 {
				break
			}
			sib := cur.Sibling()
			if onPath[sib] {
				cur = cur.Parent()
				continue
			}
			sv, err := t.resolve(sib)
			if err != nil {
				return nil, err
			}
			out[sib] = sv
			cur = cur.Parent()
		}
	}
	return out, nil
}

// VerifyMultiproof reports whether dict is a valid multiproof for gs
// against root: every requested gindex must be present in dict, and
// rebuilding a tree from dict alone must reproduce root.
func VerifyMultiproof(dict map[Gindex]Node, gs []Gindex, depth uint, root Node) bool {
	for _, g := range gs {
		if _, ok := dict[g]; !ok {
			return false
		}
	}
	t := FromWitness(depth, dict)
	return t.Root() == root
}
