// Package vm implements the step VM: a Brainfuck-flavoured interpreter
// that executes exactly one opcode per Step call, with every state read
// and write mediated by the state package's typed accessors (which
// themselves go through the instrumented merkle.Tree).
package vm

import "github.com/optimistic-bf/bfrollup/state"

// errUnmatchedBracket is returned internally by the bracket-forward scan
// when no matching ']' is found; the caller turns this into status 0x05.
// It never escapes Step.
type bracketScanError struct{}

func (bracketScanError) Error() string { return "unmatched '['" }

var errUnmatchedBracket = bracketScanError{}

// StatusOutOfCode is this implementation's chosen byte for the "pc reached
// len(code) without halting" invariant violation. The defined error codes
// run 0x02-0x08 plus the 0xff running sentinel and leave this specific
// invariant uncoded; 0x09 is the next unused slot (documented as an Open
// Question resolution in DESIGN.md).
const StatusOutOfCode byte = 0x09

// Step executes exactly one opcode against c. A halted contract's Step is
// a structural no-op: it returns having touched nothing, so
// pre_root == post_root trivially.
func Step(c *state.Contract) error {
	halted, err := c.Halted()
	if err != nil {
		return err
	}
	if halted {
		return nil
	}

	gas, err := c.Gas()
	if err != nil {
		return err
	}
	if gas == 0 {
		return c.SetStatus(state.StatusOutOfGas)
	}
	if err := c.SetGas(gas - 1); err != nil {
		return err
	}

	pc, err := c.PC()
	if err != nil {
		return err
	}
	codeLen, err := c.CodeLen()
	if err != nil {
		return err
	}
	if pc >= codeLen {
		return c.SetStatus(StatusOutOfCode)
	}
	op, err := c.CodeAt(pc)
	if err != nil {
		return err
	}

	switch op {
	case '>':
		return stepPtrInc(c, pc)
	case '<':
		return stepPtrDec(c, pc)
	case '+':
		return stepIncCell(c, pc)
	case '-':
		return stepDecCell(c, pc)
	case '.':
		return stepOut(c, pc)
	case ',':
		return stepIn(c, pc)
	case '[':
		return stepBranchForward(c, pc)
	case ']':
		return stepBranchBack(c, pc)
	default:
		return advance(c, pc)
	}
}

// advance writes pc+1, the default post-step program counter for every
// opcode that does not rewrite pc itself.
func advance(c *state.Contract, pc uint64) error {
	return c.SetPC(pc + 1)
}

func stepPtrInc(c *state.Contract, pc uint64) error {
	ptr, err := c.Ptr()
	if err != nil {
		return err
	}
	cellsLen, err := c.CellsLen()
	if err != nil {
		return err
	}
	newPtr := ptr + 1
	if newPtr == cellsLen {
		if err := c.GrowCells(); err != nil {
			if err == state.ErrListFull {
				return c.SetStatus(state.StatusTapeOverflow)
			}
			return err
		}
	}
	if err := c.SetPtr(newPtr); err != nil {
		return err
	}
	return advance(c, pc)
}

func stepPtrDec(c *state.Contract, pc uint64) error {
	ptr, err := c.Ptr()
	if err != nil {
		return err
	}
	if ptr == 0 {
		return c.SetStatus(state.StatusTapeUnderflow)
	}
	if err := c.SetPtr(ptr - 1); err != nil {
		return err
	}
	return advance(c, pc)
}

func stepIncCell(c *state.Contract, pc uint64) error {
	ptr, err := c.Ptr()
	if err != nil {
		return err
	}
	v, err := c.CellAt(ptr)
	if err != nil {
		return err
	}
	if err := c.SetCellAt(ptr, v+1); err != nil {
		return err
	}
	return advance(c, pc)
}

func stepDecCell(c *state.Contract, pc uint64) error {
	ptr, err := c.Ptr()
	if err != nil {
		return err
	}
	v, err := c.CellAt(ptr)
	if err != nil {
		return err
	}
	if err := c.SetCellAt(ptr, v-1); err != nil {
		return err
	}
	return advance(c, pc)
}

func stepOut(c *state.Contract, pc uint64) error {
	ptr, err := c.Ptr()
	if err != nil {
		return err
	}
	v, err := c.CellAt(ptr)
	if err != nil {
		return err
	}
	if err := c.AppendOutput(v); err != nil {
		return err
	}
	switch {
	case v == 0x00:
		if err := c.SetStatus(state.StatusSuccess); err != nil {
			return err
		}
	case v == 0xff:
		// Reserved running sentinel: writing it to output is a no-op, not
		// a halt trigger.
	default:
		if err := c.SetStatus(v); err != nil {
			return err
		}
	}
	return advance(c, pc)
}

func stepIn(c *state.Contract, pc uint64) error {
	inPtr, err := c.InPtr()
	if err != nil {
		return err
	}
	inLen, err := c.InputLen()
	if err != nil {
		return err
	}
	if inPtr == inLen {
		return c.SetStatus(state.StatusInputExhausted)
	}
	ptr, err := c.Ptr()
	if err != nil {
		return err
	}
	b, err := c.InputAt(inPtr)
	if err != nil {
		return err
	}
	if err := c.SetCellAt(ptr, b); err != nil {
		return err
	}
	if err := c.SetInPtr(inPtr + 1); err != nil {
		return err
	}
	return advance(c, pc)
}

func stepBranchForward(c *state.Contract, pc uint64) error {
	ptr, err := c.Ptr()
	if err != nil {
		return err
	}
	cell, err := c.CellAt(ptr)
	if err != nil {
		return err
	}
	if cell == 0 {
		target, err := matchForward(c, pc)
		if err != nil {
			if err == errUnmatchedBracket {
				return c.SetStatus(state.StatusUnmatchedOpen)
			}
			return err
		}
		return c.SetPC(target)
	}
	if err := c.StackPush(pc); err != nil {
		if err == state.ErrListFull {
			return c.SetStatus(state.StatusStackOverflow)
		}
		return err
	}
	return advance(c, pc)
}

func stepBranchBack(c *state.Contract, pc uint64) error {
	ptr, err := c.Ptr()
	if err != nil {
		return err
	}
	cell, err := c.CellAt(ptr)
	if err != nil {
		return err
	}
	depth, err := c.StackLen()
	if err != nil {
		return err
	}
	if depth == 0 {
		return c.SetStatus(state.StatusStackUnderflow)
	}
	if cell != 0 {
		top, err := c.StackTop()
		if err != nil {
			return err
		}
		return c.SetPC(top)
	}
	if _, err := c.StackPop(); err != nil {
		return err
	}
	return advance(c, pc)
}

// matchForward finds the pc one past the ']' matching the '[' at pc,
// memoizing the result in the contract's bracket map so a repeated
// forward branch over the same loop does not re-scan. The scan order is
// strictly left-to-right over code, a fixed determinism requirement so
// every replay of a step produces the identical witness.
func matchForward(c *state.Contract, pc uint64) (uint64, error) {
	if target, ok, err := c.BracketTarget(pc); err != nil {
		return 0, err
	} else if ok {
		return target, nil
	}

	codeLen, err := c.CodeLen()
	if err != nil {
		return 0, err
	}
	depth := 1
	i := pc + 1
	for i < codeLen {
		op, err := c.CodeAt(i)
		if err != nil {
			return 0, err
		}
		switch op {
		case '[':
			depth++
		case ']':
			depth--
			if depth == 0 {
				target := i + 1
				if err := c.SetBracketTarget(pc, target); err != nil {
					return 0, err
				}
				return target, nil
			}
		}
		i++
	}
	return 0, errUnmatchedBracket
}
