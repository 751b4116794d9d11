// Package layout is the compile-time gindex schema shared by prover and
// verifier: a pure mapping from field name x contract id (x element index,
// for lists) to generalized index. It must never be re-derived at runtime
// in two places, so every accessor in the state package computes gindices
// by calling into this package, never by hand.
package layout

import "github.com/optimistic-bf/bfrollup/merkle"

// ContractIDBits is the number of bits used to address a contract (256
// contracts, ids 0..255).
const ContractIDBits = 8

// FieldBits is the number of bits used to address a field within a
// contract's region (16 field slots, more than the 13 defined here, to
// leave room in the schema without a layout version bump).
const FieldBits = 4

// Field identifies one of a contract's state fields.
type Field uint8

// The fixed field slots. Slots 0-2 are persisted across transitions; the
// rest are ephemeral, living in the same per-contract sub-tree as the
// fields they execute alongside.
const (
	FieldCode Field = iota
	FieldCells
	FieldPtr
	FieldPC
	FieldInput
	FieldInPtr
	FieldStack
	FieldStatus
	FieldGas
	FieldOutput
	FieldBracketMap
	// FieldCellsSnapshot and FieldPtrSnapshot hold the pre-transition
	// values of cells/ptr, taken by the base step and restored by the
	// driver on an error termination.
	FieldCellsSnapshot
	FieldPtrSnapshot
	numFields
)

// PersistedFields are retained (success) or rolled back (error) across a
// transition; everything else is ephemeral and reset by the base step.
var PersistedFields = []Field{FieldCode, FieldCells, FieldPtr}

// ListSpec describes a bounded list field's packing: Capacity elements of
// ElemWidth bytes each, little-endian packed ElemsPerLeaf-per-leaf across a
// body subtree of BodyDepth, plus a sibling length leaf.
type ListSpec struct {
	Field        Field
	Capacity     int
	ElemWidth    int
	ElemsPerLeaf int
	BodyDepth    uint
}

// List specs for every bounded-list field. Capacities are a schema choice
// left open by the original design; these are sized generously for typical
// transactions while staying small enough to keep witnesses modest.
// StackList is the one exception to "small": every re-entry into "[" with
// a nonzero cell pushes pc again, even on the same loop (pushing onto the
// stack is unconditional on a nonzero test, not a one-time-per-nesting-level
// push), so a busy loop's stack depth tracks its iteration count, not its
// nesting depth. 512 is sized to survive a full 1000-gas out-of-gas run of
// a never-popping loop without overflowing first.
var (
	CodeList       = ListSpec{Field: FieldCode, Capacity: 256, ElemWidth: 1}
	CellsList      = ListSpec{Field: FieldCells, Capacity: 256, ElemWidth: 1}
	InputList      = ListSpec{Field: FieldInput, Capacity: 128, ElemWidth: 1}
	StackList      = ListSpec{Field: FieldStack, Capacity: 512, ElemWidth: 2}
	OutputList     = ListSpec{Field: FieldOutput, Capacity: 256, ElemWidth: 1}
	BracketMapList = ListSpec{Field: FieldBracketMap, Capacity: 256, ElemWidth: 2}
	CellsSnapList  = ListSpec{Field: FieldCellsSnapshot, Capacity: 256, ElemWidth: 1}
)

// listSpecs indexes the specs above by field for lookup by accessors.
var listSpecs map[Field]*ListSpec

// TreeDepth is the fixed depth of the world-state BMT, computed to fit the
// deepest list element leaf the schema requires.
var TreeDepth uint

func depthFor(numLeaves int) uint {
	d := uint(0)
	for (1 << d) < numLeaves {
		d++
	}
	return d
}

func init() {
	listSpecs = make(map[Field]*ListSpec)
	specs := []*ListSpec{&CodeList, &CellsList, &InputList, &StackList, &OutputList, &BracketMapList, &CellsSnapList}
	maxLeafDepth := uint(0)
	for _, s := range specs {
		s.ElemsPerLeaf = 32 / s.ElemWidth
		numLeaves := (s.Capacity + s.ElemsPerLeaf - 1) / s.ElemsPerLeaf
		if numLeaves < 1 {
			numLeaves = 1
		}
		s.BodyDepth = depthFor(numLeaves)
		listSpecs[s.Field] = s
		// Body root sits one level below the field gindex (left child of
		// the field/length split), then BodyDepth more levels to a leaf.
		total := ContractIDBits + FieldBits + 1 + s.BodyDepth
		if total > maxLeafDepth {
			maxLeafDepth = total
		}
	}
	TreeDepth = maxLeafDepth
}

// fieldTemplate is a depth-FieldBits scratch tree holding the zero value of
// every defined field's own subtree. A never-touched gindex within a
// contract's field-selector bits resolves by looking up its equivalent
// position here, rather than by recursing through the real (and, for list
// fields, deeper) structure underneath.
var fieldTemplate *merkle.Tree

// contractLevelZero[k] is the zero value of a never-touched subtree k
// levels above a contract root; contractLevelZero[0] is the zero value of
// the contract root itself.
var contractLevelZero [ContractIDBits + 1]merkle.Node

func init() {
	fieldTemplate = merkle.New(FieldBits)
	for f, spec := range listSpecs {
		leaf := merkle.Gindex(1<<FieldBits) | merkle.Gindex(f)
		fieldTemplate.Set(leaf, merkle.Hash(merkle.ZeroHash(spec.BodyDepth), merkle.Node{}))
	}
	// Scalar fields are left unset: the template's own untouched-leaf
	// default is already the zero leaf they need.

	contractLevelZero[0] = fieldTemplate.Root()
	for k := 1; k <= ContractIDBits; k++ {
		contractLevelZero[k] = merkle.Hash(contractLevelZero[k-1], contractLevelZero[k-1])
	}
}

// ZeroAt returns the value an entirely untouched gindex g resolves to, for
// installing as a merkle.Tree's ZeroFunc. Fields and list elements bottom
// out at many different depths (a scalar field's leaf at
// ContractIDBits+FieldBits, a list element leaf anywhere up to TreeDepth),
// so a single global depth cutoff cannot tell a never-written leaf from a
// never-written internal node partway down some deeper field's structure.
// ZeroAt decodes g's position in the schema instead: which region of the
// contract/field-selector bits it falls in, and — once under a specific
// field — whether it is that field's body (a uniform zero subtree) or its
// length leaf (a true leaf, independent of how deep the body goes).
func ZeroAt(g merkle.Gindex) merkle.Node {
	d := g.Depth()
	if d <= ContractIDBits {
		return contractLevelZero[ContractIDBits-d]
	}
	fieldDepth := uint(ContractIDBits + FieldBits)
	if d <= fieldDepth {
		rel := d - ContractIDBits
		local := (merkle.Gindex(1) << rel) | (g & ((merkle.Gindex(1) << rel) - 1))
		v, _ := fieldTemplate.Get(local)
		return v
	}
	fieldAncestor := merkle.Gindex(uint64(g) >> (d - fieldDepth))
	f := Field(uint64(fieldAncestor) & (uint64(1<<FieldBits) - 1))
	spec := listSpecs[f]
	if spec == nil {
		return merkle.Node{}
	}
	bodyDepth := fieldDepth + 1
	if d == bodyDepth {
		if g.IsLeft() {
			return merkle.ZeroHash(spec.BodyDepth)
		}
		return merkle.Node{}
	}
	return merkle.ZeroHash(spec.BodyDepth - (d - bodyDepth))
}

// ListSpecFor returns the packing spec for a list field, or nil if field is
// not a list field.
func ListSpecFor(f Field) *ListSpec { return listSpecs[f] }

// ContractGindex returns the gindex of contract id's sub-tree root.
func ContractGindex(id uint8) merkle.Gindex {
	return merkle.Gindex(1<<ContractIDBits) + merkle.Gindex(id)
}

// FieldGindex returns the gindex of field f within contract id. For scalar
// fields this is the field's leaf gindex directly; for list fields it is
// the parent of the body-root/length-leaf pair (never itself Set/Get).
func FieldGindex(id uint8, f Field) merkle.Gindex {
	return ContractGindex(id)*merkle.Gindex(1<<FieldBits) + merkle.Gindex(f)
}

// ListBodyRoot returns the gindex of a list field's element-body subtree.
func ListBodyRoot(id uint8, f Field) merkle.Gindex {
	return FieldGindex(id, f).Left()
}

// ListLengthGindex returns the gindex of a list field's length leaf.
func ListLengthGindex(id uint8, f Field) merkle.Gindex {
	return FieldGindex(id, f).Right()
}

// ListElementLeaf returns the gindex of the leaf packing element index idx
// of list field f in contract id, along with the byte offset of that
// element within the leaf.
func ListElementLeaf(id uint8, f Field, idx int) (g merkle.Gindex, byteOffset int) {
	spec := listSpecs[f]
	leafIdx := idx / spec.ElemsPerLeaf
	byteOffset = (idx % spec.ElemsPerLeaf) * spec.ElemWidth
	g = ListBodyRoot(id, f)*merkle.Gindex(uint64(1)<<spec.BodyDepth) + merkle.Gindex(leafIdx)
	return g, byteOffset
}

// ListLeafCount returns the number of element leaves a list field spans.
func ListLeafCount(f Field) int {
	return 1 << listSpecs[f].BodyDepth
}
