// Package trace implements the trace generator: it drives a full
// transition exactly as the driver package does, but against a
// disposable clone of the tree at each step it first discovers that
// step's access set, then computes that step's multiproof against the
// tree as it stood *before* the step ran. Doing the discovery on a clone,
// rather than instrumenting the live tree directly, is what lets a
// step's multiproof be computed correctly even when that step both reads
// and overwrites the same gindex (the clone's Set calls never touch the
// live tree's pre-step values).
package trace

import (
	"github.com/optimistic-bf/bfrollup/driver"
	"github.com/optimistic-bf/bfrollup/merkle"
	"github.com/optimistic-bf/bfrollup/state"
	"github.com/optimistic-bf/bfrollup/vm"
)

// Trace is the full record of one transition: a root before and after
// every step, the gindices each step touched, and — parallel to Access —
// the minimal multiproof each step needs to be replayed from its own
// pre-root.
//
// Kind records which replay function produced StepRoots[i+1] from
// StepRoots[i]: this is what lets the Step Verifier recover, from a
// single extracted step, which of BaseStep/vm.Step/Finalize to re-run.
type Trace struct {
	ContractID uint8
	BaseInput  []byte
	StepRoots  []merkle.Node
	Access     [][]merkle.Gindex
	Nodes      []map[merkle.Gindex]merkle.Node
	Kind       []StepKind
}

// StepKind identifies which operation a recorded step replays.
type StepKind int

const (
	KindBase StepKind = iota
	KindVM
	KindFinalize
)

type accessRecorder struct {
	seen  map[merkle.Gindex]bool
	order []merkle.Gindex
}

func newAccessRecorder() *accessRecorder {
	return &accessRecorder{seen: make(map[merkle.Gindex]bool)}
}

func (r *accessRecorder) Record(g merkle.Gindex) {
	if !r.seen[g] {
		r.seen[g] = true
		r.order = append(r.order, g)
	}
}

// runStep discovers fn's access set on a clone of tree, computes fn's
// multiproof against tree's current (pre-step) state, then actually
// applies fn to tree, advancing it to the step's post-state.
func runStep(tree *merkle.Tree, fn func(*merkle.Tree) error) ([]merkle.Gindex, map[merkle.Gindex]merkle.Node, error) {
	clone := tree.Clone()
	rec := newAccessRecorder()
	clone.SetRecorder(rec)
	if err := fn(clone); err != nil {
		return nil, nil, err
	}

	proof, err := tree.Multiproof(rec.order)
	if err != nil {
		return nil, nil, err
	}

	if err := fn(tree); err != nil {
		return nil, nil, err
	}
	return rec.order, proof, nil
}

// Generate runs a full transition against tree (which is mutated to its
// final post-state, exactly as driver.Transition would leave it) and
// returns the trace needed to extract a witness for any individual step.
func Generate(tree *merkle.Tree, id uint8, sender [driver.SenderLen]byte, payload []byte) (*Trace, error) {
	input := driver.ComposeInput(sender, payload)
	tr := &Trace{ContractID: id, BaseInput: input}
	tr.StepRoots = append(tr.StepRoots, tree.Root())

	baseFn := func(tw *merkle.Tree) error { return driver.BaseStep(tw, id, input) }
	if err := tr.recordStep(tree, KindBase, baseFn); err != nil {
		return nil, err
	}

	c := state.For(tree, id)
	for {
		halted, err := c.Halted()
		if err != nil {
			return nil, err
		}
		if halted {
			break
		}
		vmFn := func(tw *merkle.Tree) error { return vm.Step(state.For(tw, id)) }
		if err := tr.recordStep(tree, KindVM, vmFn); err != nil {
			return nil, err
		}
	}

	finFn := func(tw *merkle.Tree) error { return driver.Finalize(tw, id) }
	if err := tr.recordStep(tree, KindFinalize, finFn); err != nil {
		return nil, err
	}

	return tr, nil
}

func (tr *Trace) recordStep(tree *merkle.Tree, kind StepKind, fn func(*merkle.Tree) error) error {
	access, proof, err := runStep(tree, fn)
	if err != nil {
		return err
	}
	tr.Access = append(tr.Access, access)
	tr.Nodes = append(tr.Nodes, proof)
	tr.Kind = append(tr.Kind, kind)
	tr.StepRoots = append(tr.StepRoots, tree.Root())
	return nil
}

// NumSteps returns the number of recorded steps (len(Access) == len(Nodes)
// == len(Kind) == len(StepRoots)-1).
func (tr *Trace) NumSteps() int { return len(tr.Access) }
