// Package witness implements the witness extractor and the step verifier.
package witness

import (
	"github.com/optimistic-bf/bfrollup/driver"
	"github.com/optimistic-bf/bfrollup/layout"
	"github.com/optimistic-bf/bfrollup/merkle"
	"github.com/optimistic-bf/bfrollup/state"
	"github.com/optimistic-bf/bfrollup/trace"
	"github.com/optimistic-bf/bfrollup/vm"
	"github.com/pkg/errors"
)

// Witness is the minimal, self-contained record needed to replay one
// recorded step and check its result.
//
// BaseInput is only meaningful when Kind is trace.KindBase: replaying the
// base step needs the transaction's sender||payload bytes, which live
// outside the state tree (they are the rollup's calldata, analogous to an
// L1 transaction's own calldata being available to an on-chain verifier).
// This is a deliberate, documented extension of the witness file beyond
// the original on-disk schema (see DESIGN.md).
type Witness struct {
	Step         int
	ContractID   uint8
	Kind         trace.StepKind
	PreRoot      merkle.Node
	PostRoot     merkle.Node
	NodeByGindex map[merkle.Gindex]merkle.Node
	BaseInput    []byte
}

// ErrStepOutOfRange is a host-layer error: step does not index a recorded
// step of tr.
var ErrStepOutOfRange = errors.New("step index out of range")

// Extract builds witness_i for step i of tr.
func Extract(tr *trace.Trace, step int) (*Witness, error) {
	if step < 0 || step >= tr.NumSteps() {
		return nil, errors.Wrapf(ErrStepOutOfRange, "step %d, have %d steps", step, tr.NumSteps())
	}
	w := &Witness{
		Step:         step,
		ContractID:   tr.ContractID,
		Kind:         tr.Kind[step],
		PreRoot:      tr.StepRoots[step],
		PostRoot:     tr.StepRoots[step+1],
		NodeByGindex: tr.Nodes[step],
	}
	if w.Kind == trace.KindBase {
		w.BaseInput = tr.BaseInput
	}
	return w, nil
}

// ErrBadPreRoot is returned by Verify when the witness's own node set does
// not reproduce its claimed pre_root.
var ErrBadPreRoot = errors.New("bad-pre-root: witness nodes do not reconstruct pre_root")

// Verify re-executes the one step witness describes against a restricted
// tree built solely from witness.NodeByGindex, and returns the recomputed
// post-root. It never judges fraud itself: the caller compares the
// returned root against whatever post-root was claimed.
func Verify(w *Witness) (merkle.Node, error) {
	tree := merkle.FromWitness(layout.TreeDepth, w.NodeByGindex)
	if tree.Root() != w.PreRoot {
		return merkle.Node{}, ErrBadPreRoot
	}

	var err error
	switch w.Kind {
	case trace.KindBase:
		err = driver.BaseStep(tree, w.ContractID, w.BaseInput)
	case trace.KindFinalize:
		err = driver.Finalize(tree, w.ContractID)
	default:
		err = vm.Step(state.For(tree, w.ContractID))
	}
	if err != nil {
		return merkle.Node{}, err
	}
	return tree.Root(), nil
}
