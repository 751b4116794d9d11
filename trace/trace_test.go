package trace_test

import (
	"testing"

	"github.com/optimistic-bf/bfrollup/driver"
	"github.com/optimistic-bf/bfrollup/layout"
	"github.com/optimistic-bf/bfrollup/merkle"
	"github.com/optimistic-bf/bfrollup/trace"
)

func newWorldWithContract(t *testing.T, code string) *merkle.Tree {
	t.Helper()
	tree := driver.NewWorld()
	if err := driver.CreateContract(tree, 0, []byte(code)); err != nil {
		t.Fatalf("CreateContract: %v", err)
	}
	return tree
}

func TestGenerateStepRootsChainTogether(t *testing.T) {
	tree := newWorldWithContract(t, ".")
	var sender [driver.SenderLen]byte
	tr, err := trace.Generate(tree, 0, sender, nil)
	if err != nil {
		t.Fatalf("Generate: %v", err)
	}
	if tr.NumSteps() < 2 {
		t.Fatalf("expected at least a base and finalize step, got %d", tr.NumSteps())
	}
	if len(tr.StepRoots) != tr.NumSteps()+1 {
		t.Fatalf("StepRoots length = %d, want %d", len(tr.StepRoots), tr.NumSteps()+1)
	}
	if tr.Kind[0] != trace.KindBase {
		t.Errorf("first step kind = %v, want KindBase", tr.Kind[0])
	}
	if tr.Kind[len(tr.Kind)-1] != trace.KindFinalize {
		t.Errorf("last step kind = %v, want KindFinalize", tr.Kind[len(tr.Kind)-1])
	}
	if tr.StepRoots[len(tr.StepRoots)-1] != tree.Root() {
		t.Errorf("trace's final root does not match the mutated tree's root")
	}
}

func TestGenerateEachStepProofVerifiesAgainstItsPreRoot(t *testing.T) {
	tree := newWorldWithContract(t, ",,,,,,,,,,,,,,,,,,,,,[->+++++++<].")
	var sender [driver.SenderLen]byte
	tr, err := trace.Generate(tree, 0, sender, []byte{3})
	if err != nil {
		t.Fatalf("Generate: %v", err)
	}
	for i := 0; i < tr.NumSteps(); i++ {
		ok := merkle.VerifyMultiproof(tr.Nodes[i], tr.Access[i], layout.TreeDepth, tr.StepRoots[i])
		if !ok {
			t.Errorf("step %d: proof does not verify against pre_root", i)
		}
	}
}

func TestGenerateRecordsBaseInput(t *testing.T) {
	tree := newWorldWithContract(t, ",.")
	var sender [driver.SenderLen]byte
	sender[0] = 0xAB
	tr, err := trace.Generate(tree, 0, sender, []byte{42})
	if err != nil {
		t.Fatalf("Generate: %v", err)
	}
	if len(tr.BaseInput) != driver.SenderLen+1 {
		t.Fatalf("BaseInput length = %d, want %d", len(tr.BaseInput), driver.SenderLen+1)
	}
	if tr.BaseInput[0] != 0xAB || tr.BaseInput[driver.SenderLen] != 42 {
		t.Errorf("BaseInput = %v, want sender prefix + payload", tr.BaseInput)
	}
}
