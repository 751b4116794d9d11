// Package state implements the typed accessors every read/write a step VM
// performs against the world-state tree goes through, rather than a raw
// gindex. Each accessor computes its gindices from the layout package,
// then calls the underlying merkle.Tree's Get/Set, which is itself what
// reports the access to whatever Recorder the tree has installed —
// accessors never touch the recorder directly, keeping the
// instrumentation in one place.
package state

import (
	"github.com/optimistic-bf/bfrollup/internal/bytesutil"
	"github.com/optimistic-bf/bfrollup/layout"
	"github.com/optimistic-bf/bfrollup/merkle"
	"github.com/pkg/errors"
)

// Status codes.
const (
	StatusRunning        byte = 0xff
	StatusSuccess        byte = 0x00
	StatusTapeOverflow   byte = 0x02
	StatusTapeUnderflow  byte = 0x03
	StatusInputExhausted byte = 0x04
	StatusUnmatchedOpen  byte = 0x05
	StatusStackOverflow  byte = 0x06
	StatusStackUnderflow byte = 0x07
	StatusOutOfGas       byte = 0x08
)

// ErrListFull is returned when a bounded list has no capacity left.
var ErrListFull = errors.New("bounded list at capacity")

// Contract is a view over one contract's state region of the world tree.
type Contract struct {
	tree *merkle.Tree
	id   uint8
}

// For returns a view over contract id's region of tree.
func For(tree *merkle.Tree, id uint8) *Contract {
	return &Contract{tree: tree, id: id}
}

func (c *Contract) scalarGet(f layout.Field) (merkle.Node, error) {
	return c.tree.Get(layout.FieldGindex(c.id, f))
}

func (c *Contract) scalarSet(f layout.Field, n merkle.Node) error {
	return c.tree.Set(layout.FieldGindex(c.id, f), n)
}

func u64Node(v uint64) merkle.Node {
	var n merkle.Node
	copy(n[:8], bytesutil.ToBytes(v, 8))
	return n
}

func nodeU64(n merkle.Node) uint64 {
	return bytesutil.FromBytes(n[:8])
}

// --- scalar fields ---

func (c *Contract) Ptr() (uint64, error) {
	n, err := c.scalarGet(layout.FieldPtr)
	return nodeU64(n), err
}

func (c *Contract) SetPtr(v uint64) error { return c.scalarSet(layout.FieldPtr, u64Node(v)) }

func (c *Contract) PC() (uint64, error) {
	n, err := c.scalarGet(layout.FieldPC)
	return nodeU64(n), err
}

func (c *Contract) SetPC(v uint64) error { return c.scalarSet(layout.FieldPC, u64Node(v)) }

func (c *Contract) InPtr() (uint64, error) {
	n, err := c.scalarGet(layout.FieldInPtr)
	return nodeU64(n), err
}

func (c *Contract) SetInPtr(v uint64) error { return c.scalarSet(layout.FieldInPtr, u64Node(v)) }

func (c *Contract) Gas() (uint64, error) {
	n, err := c.scalarGet(layout.FieldGas)
	return nodeU64(n), err
}

func (c *Contract) SetGas(v uint64) error { return c.scalarSet(layout.FieldGas, u64Node(v)) }

func (c *Contract) Status() (byte, error) {
	n, err := c.scalarGet(layout.FieldStatus)
	return n[0], err
}

func (c *Contract) SetStatus(v byte) error {
	var n merkle.Node
	n[0] = v
	return c.scalarSet(layout.FieldStatus, n)
}

// Halted reports whether the contract is no longer running.
func (c *Contract) Halted() (bool, error) {
	s, err := c.Status()
	if err != nil {
		return false, err
	}
	return s != StatusRunning, nil
}

// --- generic bounded-list helpers ---

func (c *Contract) listLen(f layout.Field) (uint64, error) {
	n, err := c.tree.Get(layout.ListLengthGindex(c.id, f))
	return nodeU64(n), err
}

func (c *Contract) setListLen(f layout.Field, v uint64) error {
	return c.tree.Set(layout.ListLengthGindex(c.id, f), u64Node(v))
}

func (c *Contract) readListBytes(f layout.Field, idx int) ([]byte, error) {
	spec := layout.ListSpecFor(f)
	g, off := layout.ListElementLeaf(c.id, f, idx)
	n, err := c.tree.Get(g)
	if err != nil {
		return nil, err
	}
	out := make([]byte, spec.ElemWidth)
	copy(out, n[off:off+spec.ElemWidth])
	return out, nil
}

func (c *Contract) writeListBytes(f layout.Field, idx int, v []byte) error {
	spec := layout.ListSpecFor(f)
	g, off := layout.ListElementLeaf(c.id, f, idx)
	n, err := c.tree.Get(g)
	if err != nil {
		return err
	}
	copy(n[off:off+spec.ElemWidth], v)
	return c.tree.Set(g, n)
}

// --- byte lists: code, cells, input, output ---

func (c *Contract) readByteElem(f layout.Field, idx uint64) (byte, error) {
	b, err := c.readListBytes(f, int(idx))
	if err != nil {
		return 0, err
	}
	return b[0], nil
}

func (c *Contract) writeByteElem(f layout.Field, idx uint64, v byte) error {
	return c.writeListBytes(f, int(idx), []byte{v})
}

// CodeLen returns len(code).
func (c *Contract) CodeLen() (uint64, error) { return c.listLen(layout.FieldCode) }

// CodeAt returns the code byte at position idx (idx must be < CodeLen()).
func (c *Contract) CodeAt(idx uint64) (byte, error) { return c.readByteElem(layout.FieldCode, idx) }

// WriteCode installs the contract's program. Creation-time only: callers
// outside of contract creation must not call this.
func (c *Contract) WriteCode(code []byte) error {
	spec := layout.ListSpecFor(layout.FieldCode)
	if len(code) > spec.Capacity {
		return errors.Wrapf(ErrListFull, "code length %d exceeds capacity %d", len(code), spec.Capacity)
	}
	for i, b := range code {
		if err := c.writeByteElem(layout.FieldCode, uint64(i), b); err != nil {
			return err
		}
	}
	return c.setListLen(layout.FieldCode, uint64(len(code)))
}

// CellsLen returns the current tape length.
func (c *Contract) CellsLen() (uint64, error) { return c.listLen(layout.FieldCells) }

// CellAt returns cells[idx]; idx must be < CellsLen().
func (c *Contract) CellAt(idx uint64) (byte, error) { return c.readByteElem(layout.FieldCells, idx) }

// SetCellAt writes cells[idx]; idx must be < CellsLen().
func (c *Contract) SetCellAt(idx uint64, v byte) error {
	return c.writeByteElem(layout.FieldCells, idx, v)
}

// GrowCells appends one zero cell, returning ErrListFull at capacity.
func (c *Contract) GrowCells() error {
	spec := layout.ListSpecFor(layout.FieldCells)
	n, err := c.CellsLen()
	if err != nil {
		return err
	}
	if int(n) >= spec.Capacity {
		return ErrListFull
	}
	if err := c.writeByteElem(layout.FieldCells, n, 0); err != nil {
		return err
	}
	return c.setListLen(layout.FieldCells, n+1)
}

// SetCells overwrites the full cell tape (used for rollback/commit).
func (c *Contract) SetCells(cells []byte) error {
	spec := layout.ListSpecFor(layout.FieldCells)
	if len(cells) > spec.Capacity {
		return errors.Wrapf(ErrListFull, "cells length %d exceeds capacity %d", len(cells), spec.Capacity)
	}
	for i, b := range cells {
		if err := c.writeByteElem(layout.FieldCells, uint64(i), b); err != nil {
			return err
		}
	}
	return c.setListLen(layout.FieldCells, uint64(len(cells)))
}

// InputLen returns len(input).
func (c *Contract) InputLen() (uint64, error) { return c.listLen(layout.FieldInput) }

// InputAt returns input[idx]; idx must be < InputLen().
func (c *Contract) InputAt(idx uint64) (byte, error) { return c.readByteElem(layout.FieldInput, idx) }

// WriteInput installs the transaction's full input buffer (sender bytes
// followed by user payload), as the base step does.
func (c *Contract) WriteInput(input []byte) error {
	spec := layout.ListSpecFor(layout.FieldInput)
	if len(input) > spec.Capacity {
		return errors.Wrapf(ErrListFull, "input length %d exceeds capacity %d", len(input), spec.Capacity)
	}
	for i, b := range input {
		if err := c.writeByteElem(layout.FieldInput, uint64(i), b); err != nil {
			return err
		}
	}
	return c.setListLen(layout.FieldInput, uint64(len(input)))
}

// OutputLen returns len(output).
func (c *Contract) OutputLen() (uint64, error) { return c.listLen(layout.FieldOutput) }

// OutputAt returns output[idx]; idx must be < OutputLen().
func (c *Contract) OutputAt(idx uint64) (byte, error) {
	return c.readByteElem(layout.FieldOutput, idx)
}

// AppendOutput appends one byte to output, returning ErrListFull at
// capacity.
func (c *Contract) AppendOutput(b byte) error {
	spec := layout.ListSpecFor(layout.FieldOutput)
	n, err := c.OutputLen()
	if err != nil {
		return err
	}
	if int(n) >= spec.Capacity {
		return ErrListFull
	}
	if err := c.writeByteElem(layout.FieldOutput, n, b); err != nil {
		return err
	}
	return c.setListLen(layout.FieldOutput, n+1)
}

// --- stack (loop-return program counters) ---

// StackLen returns the current stack depth.
func (c *Contract) StackLen() (uint64, error) { return c.listLen(layout.FieldStack) }

// StackPush pushes pc onto the stack, returning ErrListFull at capacity.
func (c *Contract) StackPush(pc uint64) error {
	spec := layout.ListSpecFor(layout.FieldStack)
	n, err := c.StackLen()
	if err != nil {
		return err
	}
	if int(n) >= spec.Capacity {
		return ErrListFull
	}
	if err := c.writeListBytes(layout.FieldStack, int(n), bytesutil.Bytes2(pc)); err != nil {
		return err
	}
	return c.setListLen(layout.FieldStack, n+1)
}

// StackTop returns the top of the stack without popping it.
func (c *Contract) StackTop() (uint64, error) {
	n, err := c.StackLen()
	if err != nil {
		return 0, err
	}
	if n == 0 {
		return 0, errors.New("stack is empty")
	}
	b, err := c.readListBytes(layout.FieldStack, int(n-1))
	if err != nil {
		return 0, err
	}
	return uint64(bytesutil.FromBytes2(b)), nil
}

// StackPop removes and returns the top of the stack.
func (c *Contract) StackPop() (uint64, error) {
	top, err := c.StackTop()
	if err != nil {
		return 0, err
	}
	n, err := c.StackLen()
	if err != nil {
		return 0, err
	}
	if err := c.setListLen(layout.FieldStack, n-1); err != nil {
		return 0, err
	}
	return top, nil
}

// ResetStack clears the stack, without touching the pushed entries
// themselves (they are overwritten on next use).
func (c *Contract) ResetStack() error { return c.setListLen(layout.FieldStack, 0) }

// ResetOutput clears the output buffer, as the base step does at the
// start of every transition.
func (c *Contract) ResetOutput() error { return c.setListLen(layout.FieldOutput, 0) }

// --- pre-transition snapshot (error rollback) ---

// SnapshotPtr returns the ptr value saved by the base step.
func (c *Contract) SnapshotPtr() (uint64, error) {
	n, err := c.scalarGet(layout.FieldPtrSnapshot)
	return nodeU64(n), err
}

// SetSnapshotPtr saves ptr for a possible later rollback.
func (c *Contract) SetSnapshotPtr(v uint64) error {
	return c.scalarSet(layout.FieldPtrSnapshot, u64Node(v))
}

// SnapshotCells returns the cells tape saved by the base step.
func (c *Contract) SnapshotCells() ([]byte, error) {
	n, err := c.listLen(layout.FieldCellsSnapshot)
	if err != nil {
		return nil, err
	}
	out := make([]byte, n)
	for i := range out {
		b, err := c.readByteElem(layout.FieldCellsSnapshot, uint64(i))
		if err != nil {
			return nil, err
		}
		out[i] = b
	}
	return out, nil
}

// SetSnapshotCells saves the cells tape for a possible later rollback.
func (c *Contract) SetSnapshotCells(cells []byte) error {
	spec := layout.ListSpecFor(layout.FieldCellsSnapshot)
	if len(cells) > spec.Capacity {
		return errors.Wrapf(ErrListFull, "cells length %d exceeds capacity %d", len(cells), spec.Capacity)
	}
	for i, b := range cells {
		if err := c.writeByteElem(layout.FieldCellsSnapshot, uint64(i), b); err != nil {
			return err
		}
	}
	return c.setListLen(layout.FieldCellsSnapshot, uint64(len(cells)))
}

// Cells returns the full current cell tape.
func (c *Contract) Cells() ([]byte, error) {
	n, err := c.CellsLen()
	if err != nil {
		return nil, err
	}
	out := make([]byte, n)
	for i := range out {
		b, err := c.CellAt(uint64(i))
		if err != nil {
			return nil, err
		}
		out[i] = b
	}
	return out, nil
}

// Code returns the full program bytes.
func (c *Contract) Code() ([]byte, error) {
	n, err := c.CodeLen()
	if err != nil {
		return nil, err
	}
	out := make([]byte, n)
	for i := range out {
		b, err := c.CodeAt(uint64(i))
		if err != nil {
			return nil, err
		}
		out[i] = b
	}
	return out, nil
}

// Output returns the full output buffer emitted so far.
func (c *Contract) Output() ([]byte, error) {
	n, err := c.OutputLen()
	if err != nil {
		return nil, err
	}
	out := make([]byte, n)
	for i := range out {
		b, err := c.OutputAt(uint64(i))
		if err != nil {
			return nil, err
		}
		out[i] = b
	}
	return out, nil
}

// --- bracket-map memoization ---

// BracketTarget returns the memoized post-']' pc for a forward branch
// starting at pc, and whether a memo is present. A target is always at
// least 2 (the soonest a matching ']' can appear after an opening '['), so
// the zero value a never-written leaf holds unambiguously means "no memo".
func (c *Contract) BracketTarget(pc uint64) (uint64, bool, error) {
	b, err := c.readListBytes(layout.FieldBracketMap, int(pc))
	if err != nil {
		return 0, false, err
	}
	v := bytesutil.FromBytes2(b)
	if v == 0 {
		return 0, false, nil
	}
	return uint64(v), true, nil
}

// SetBracketTarget memoizes the post-']' pc for a forward branch at pc.
func (c *Contract) SetBracketTarget(pc uint64, target uint64) error {
	return c.writeListBytes(layout.FieldBracketMap, int(pc), bytesutil.Bytes2(target))
}
