// Package driver implements the transition driver: it loads a transaction
// into a contract (the base step), steps the VM until halt, and performs
// the terminal commit/rollback bookkeeping step.
package driver

import (
	"github.com/optimistic-bf/bfrollup/layout"
	"github.com/optimistic-bf/bfrollup/merkle"
	"github.com/optimistic-bf/bfrollup/state"
	"github.com/optimistic-bf/bfrollup/vm"
)

// SenderLen is the fixed width of the sender address prefixed onto every
// transaction's contract-visible input.
const SenderLen = 20

const baseGas = 1000
const gasPerPayloadByte = 128

// NewWorld returns an empty world-state tree sized to the state layout.
func NewWorld() *merkle.Tree {
	tree := merkle.New(layout.TreeDepth)
	tree.SetZeroFunc(layout.ZeroAt)
	return tree
}

// ComposeInput builds a contract-visible input buffer: the sender address
// followed by the user-supplied payload.
func ComposeInput(sender [SenderLen]byte, payload []byte) []byte {
	input := make([]byte, 0, SenderLen+len(payload))
	input = append(input, sender[:]...)
	input = append(input, payload...)
	return input
}

// CreateContract installs code as contract id's program. Creation time
// only: code is immutable after this call.
func CreateContract(tree *merkle.Tree, id uint8, code []byte) error {
	c := state.For(tree, id)
	if err := c.WriteCode(code); err != nil {
		return err
	}
	if err := c.SetPtr(0); err != nil {
		return err
	}
	return c.GrowCells()
}

// BaseStep is the first half-step of a transition: it writes input,
// snapshots the pre-transition cells/ptr for a possible rollback, and
// resets the ephemeral sub-tree, while preserving the contract's persisted
// code/cells/ptr. input is the full sender||payload buffer; use
// ComposeInput to build it, or pass an already-combined buffer directly
// (the step verifier does this when replaying step 0 from a witness, per
// DESIGN.md).
func BaseStep(tree *merkle.Tree, id uint8, input []byte) error {
	c := state.For(tree, id)

	cells, err := c.Cells()
	if err != nil {
		return err
	}
	ptr, err := c.Ptr()
	if err != nil {
		return err
	}
	if err := c.SetSnapshotCells(cells); err != nil {
		return err
	}
	if err := c.SetSnapshotPtr(ptr); err != nil {
		return err
	}

	if err := c.WriteInput(input); err != nil {
		return err
	}
	if err := c.SetInPtr(0); err != nil {
		return err
	}
	if err := c.SetPC(0); err != nil {
		return err
	}
	if err := c.ResetStack(); err != nil {
		return err
	}
	if err := c.ResetOutput(); err != nil {
		return err
	}
	if err := c.SetStatus(state.StatusRunning); err != nil {
		return err
	}

	userPayloadLen := 0
	if len(input) > SenderLen {
		userPayloadLen = len(input) - SenderLen
	}
	gas := uint64(baseGas) + uint64(gasPerPayloadByte)*uint64(userPayloadLen)
	return c.SetGas(gas)
}

// Finalize is the transition's terminal bookkeeping step: on success it is
// a no-op (persisted fields already hold the new values); on any error
// termination it restores cells/ptr from the pre-transition snapshot.
func Finalize(tree *merkle.Tree, id uint8) error {
	c := state.For(tree, id)
	status, err := c.Status()
	if err != nil {
		return err
	}
	if status == state.StatusSuccess {
		return nil
	}
	cells, err := c.SnapshotCells()
	if err != nil {
		return err
	}
	ptr, err := c.SnapshotPtr()
	if err != nil {
		return err
	}
	if err := c.SetCells(cells); err != nil {
		return err
	}
	return c.SetPtr(ptr)
}

// Transition runs BaseStep, steps the VM until the contract halts, and
// finalizes. It is the direct (untraced) path used by the CLI's
// transition command, which only needs the resulting post-state.
func Transition(tree *merkle.Tree, id uint8, sender [SenderLen]byte, payload []byte) error {
	if err := BaseStep(tree, id, ComposeInput(sender, payload)); err != nil {
		return err
	}
	c := state.For(tree, id)
	for {
		halted, err := c.Halted()
		if err != nil {
			return err
		}
		if halted {
			break
		}
		if err := vm.Step(c); err != nil {
			return err
		}
	}
	return Finalize(tree, id)
}
