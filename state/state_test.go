package state_test

import (
	"testing"

	"github.com/optimistic-bf/bfrollup/layout"
	"github.com/optimistic-bf/bfrollup/merkle"
	"github.com/optimistic-bf/bfrollup/state"
)

func newTree() *merkle.Tree {
	tree := merkle.New(layout.TreeDepth)
	tree.SetZeroFunc(layout.ZeroAt)
	return tree
}

func TestScalarRoundTrip(t *testing.T) {
	c := state.For(newTree(), 3)
	if err := c.SetPtr(42); err != nil {
		t.Fatalf("SetPtr: %v", err)
	}
	got, err := c.Ptr()
	if err != nil {
		t.Fatalf("Ptr: %v", err)
	}
	if got != 42 {
		t.Errorf("Ptr() = %d, want 42", got)
	}
}

func TestCodeWriteAndRead(t *testing.T) {
	c := state.For(newTree(), 0)
	prog := []byte("+[+]")
	if err := c.WriteCode(prog); err != nil {
		t.Fatalf("WriteCode: %v", err)
	}
	n, err := c.CodeLen()
	if err != nil || n != uint64(len(prog)) {
		t.Fatalf("CodeLen = %d, %v, want %d", n, err, len(prog))
	}
	for i, want := range prog {
		got, err := c.CodeAt(uint64(i))
		if err != nil {
			t.Fatalf("CodeAt(%d): %v", i, err)
		}
		if got != want {
			t.Errorf("CodeAt(%d) = %x, want %x", i, got, want)
		}
	}
}

func TestGrowCellsRespectsCapacity(t *testing.T) {
	c := state.For(newTree(), 0)
	spec := layout.ListSpecFor(layout.FieldCells)
	for i := 0; i < spec.Capacity; i++ {
		if err := c.GrowCells(); err != nil {
			t.Fatalf("GrowCells(%d): %v", i, err)
		}
	}
	if err := c.GrowCells(); err != state.ErrListFull {
		t.Errorf("GrowCells at capacity: got %v, want ErrListFull", err)
	}
}

func TestStackPushPopOrder(t *testing.T) {
	c := state.For(newTree(), 0)
	for _, v := range []uint64{10, 20, 30} {
		if err := c.StackPush(v); err != nil {
			t.Fatalf("StackPush(%d): %v", v, err)
		}
	}
	for _, want := range []uint64{30, 20, 10} {
		got, err := c.StackPop()
		if err != nil {
			t.Fatalf("StackPop: %v", err)
		}
		if got != want {
			t.Errorf("StackPop() = %d, want %d", got, want)
		}
	}
	if _, err := c.StackPop(); err == nil {
		t.Errorf("StackPop on empty stack should error")
	}
}

func TestBracketTargetUnsetByDefault(t *testing.T) {
	c := state.For(newTree(), 0)
	_, ok, err := c.BracketTarget(5)
	if err != nil {
		t.Fatalf("BracketTarget: %v", err)
	}
	if ok {
		t.Errorf("expected no memo for an untouched pc")
	}
	if err := c.SetBracketTarget(5, 9); err != nil {
		t.Fatalf("SetBracketTarget: %v", err)
	}
	target, ok, err := c.BracketTarget(5)
	if err != nil || !ok || target != 9 {
		t.Errorf("BracketTarget(5) = %d, %v, %v, want 9, true, nil", target, ok, err)
	}
}
