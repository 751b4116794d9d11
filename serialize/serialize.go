// Package serialize implements the on-disk JSON file formats: the state
// file, the proof file, and the single-step witness file, plus the hex
// codec shared between them.
//
// Gindices and nodes are both encoded as fixed 32-byte hex strings: a
// gindex, despite fitting in a uint64, is padded out to the same 32-byte
// width as a node, matching the on-disk schema's "<32-byte hex gindex>"
// fields throughout.
package serialize

import (
	"encoding/binary"
	"encoding/json"
	"os"
	"strconv"

	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/optimistic-bf/bfrollup/driver"
	"github.com/optimistic-bf/bfrollup/merkle"
	"github.com/optimistic-bf/bfrollup/state"
	"github.com/optimistic-bf/bfrollup/trace"
	"github.com/optimistic-bf/bfrollup/witness"
	"github.com/pkg/errors"
)

// ErrBadHexLength is a host-layer error: a hex field decoded to the wrong
// byte width for the value it encodes.
var ErrBadHexLength = errors.New("bad hex length")

// EncodeNode renders n as the 32-byte hex string used for a node
// everywhere: proof/witness files and CLI root arguments alike.
func EncodeNode(n merkle.Node) string { return encodeNode(n) }

// DecodeNode parses a 32-byte hex node string, as accepted on the verify
// command line.
func DecodeNode(s string) (merkle.Node, error) { return decodeNode(s) }

func encodeNode(n merkle.Node) string { return hexutil.Encode(n[:]) }

func decodeNode(s string) (merkle.Node, error) {
	b, err := hexutil.Decode(s)
	if err != nil {
		return merkle.Node{}, errors.Wrapf(err, "decoding node %q", s)
	}
	if len(b) != 32 {
		return merkle.Node{}, errors.Wrapf(ErrBadHexLength, "node %q has %d bytes, want 32", s, len(b))
	}
	var n merkle.Node
	copy(n[:], b)
	return n, nil
}

func encodeGindex(g merkle.Gindex) string {
	var buf [32]byte
	binary.BigEndian.PutUint64(buf[24:], uint64(g))
	return hexutil.Encode(buf[:])
}

func decodeGindex(s string) (merkle.Gindex, error) {
	b, err := hexutil.Decode(s)
	if err != nil {
		return 0, errors.Wrapf(err, "decoding gindex %q", s)
	}
	if len(b) != 32 {
		return 0, errors.Wrapf(ErrBadHexLength, "gindex %q has %d bytes, want 32", s, len(b))
	}
	return merkle.Gindex(binary.BigEndian.Uint64(b[24:])), nil
}

func encodeNodeMap(m map[merkle.Gindex]merkle.Node) map[string]string {
	out := make(map[string]string, len(m))
	for g, n := range m {
		out[encodeGindex(g)] = encodeNode(n)
	}
	return out
}

func decodeNodeMap(m map[string]string) (map[merkle.Gindex]merkle.Node, error) {
	out := make(map[merkle.Gindex]merkle.Node, len(m))
	for gs, ns := range m {
		g, err := decodeGindex(gs)
		if err != nil {
			return nil, err
		}
		n, err := decodeNode(ns)
		if err != nil {
			return nil, err
		}
		out[g] = n
	}
	return out, nil
}

// --- state file ---

// ContractJSON is the on-disk shape of one contract in a state file.
type ContractJSON struct {
	Code  string `json:"code"`
	Ptr   uint64 `json:"ptr"`
	Cells []int  `json:"cells"`
}

// StateFile is the on-disk shape of a state file.
type StateFile struct {
	Contracts map[string]ContractJSON `json:"contracts"`
}

// ReadContract projects contract id's persisted fields out of tree into
// JSON form.
func ReadContract(tree *merkle.Tree, id uint8) (ContractJSON, error) {
	c := state.For(tree, id)
	code, err := c.Code()
	if err != nil {
		return ContractJSON{}, err
	}
	ptr, err := c.Ptr()
	if err != nil {
		return ContractJSON{}, err
	}
	cells, err := c.Cells()
	if err != nil {
		return ContractJSON{}, err
	}
	cellInts := make([]int, len(cells))
	for i, b := range cells {
		cellInts[i] = int(b)
	}
	return ContractJSON{Code: string(code), Ptr: ptr, Cells: cellInts}, nil
}

// WriteContract installs cj as contract id's state in tree: code via
// creation, then ptr and cells overwritten directly (used to load a
// state file's pre-state, which may already reflect prior transitions).
func WriteContract(tree *merkle.Tree, id uint8, cj ContractJSON) error {
	if err := driver.CreateContract(tree, id, []byte(cj.Code)); err != nil {
		return err
	}
	c := state.For(tree, id)
	cells := make([]byte, len(cj.Cells))
	for i, v := range cj.Cells {
		cells[i] = byte(v)
	}
	if err := c.SetCells(cells); err != nil {
		return err
	}
	return c.SetPtr(cj.Ptr)
}

// LoadState reads a state file from path into a fresh world tree.
func LoadState(path string) (*merkle.Tree, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.Wrapf(err, "reading state file %s", path)
	}
	var sf StateFile
	if err := json.Unmarshal(b, &sf); err != nil {
		return nil, errors.Wrapf(err, "parsing state file %s", path)
	}
	tree := driver.NewWorld()
	for idStr, cj := range sf.Contracts {
		id, err := parseContractID(idStr)
		if err != nil {
			return nil, err
		}
		if err := WriteContract(tree, id, cj); err != nil {
			return nil, err
		}
	}
	return tree, nil
}

// SaveState writes every contract id in ids out to path as a state file.
func SaveState(path string, tree *merkle.Tree, ids []uint8) error {
	sf := StateFile{Contracts: make(map[string]ContractJSON, len(ids))}
	for _, id := range ids {
		cj, err := ReadContract(tree, id)
		if err != nil {
			return err
		}
		sf.Contracts[contractIDKey(id)] = cj
	}
	b, err := json.MarshalIndent(sf, "", "  ")
	if err != nil {
		return errors.Wrap(err, "marshaling state file")
	}
	return os.WriteFile(path, b, 0o644)
}

func contractIDKey(id uint8) string {
	return strconv.Itoa(int(id))
}

func parseContractID(s string) (uint8, error) {
	v, err := strconv.Atoi(s)
	if err != nil {
		return 0, errors.Wrapf(err, "parsing contract id %q", s)
	}
	if v < 0 || v > 255 {
		return 0, errors.Errorf("contract id %d out of range 0..255", v)
	}
	return uint8(v), nil
}

// --- proof file ---

// ProofFile is the on-disk shape of a proof file, with one deliberate
// schema extension: nodes is an array of per-step dictionaries
// parallel to access, rather than one flattened dictionary. A flat,
// last-write-wins dictionary cannot hold the correct pre-step value for
// a gindex (e.g. status, pc, gas) that is written by more than one step
// in the same transition, which step-witness must be able to do for any
// step index, not only the first. See DESIGN.md.
type ProofFile struct {
	ContractID uint8               `json:"contract_id"`
	BaseInput  string              `json:"base_input"`
	Nodes      []map[string]string `json:"nodes"`
	StepRoots  []string            `json:"step_roots"`
	Access     [][]string          `json:"access"`
	Kind       []int               `json:"kind"`
	// TraceID is a diagnostic-only correlation id for log lines produced
	// around this proof's generation; it carries no consensus weight and
	// is never consulted by LoadProof's callers.
	TraceID string `json:"trace_id,omitempty"`
}

// SaveProof writes tr out to path as a proof file. traceID is an optional
// diagnostic identifier (empty is fine) for correlating this proof with
// the log lines emitted while generating it.
func SaveProof(path string, tr *trace.Trace, traceID string) error {
	pf := ProofFile{
		ContractID: tr.ContractID,
		BaseInput:  hexutil.Encode(tr.BaseInput),
		TraceID:    traceID,
	}
	for _, r := range tr.StepRoots {
		pf.StepRoots = append(pf.StepRoots, encodeNode(r))
	}
	for i := range tr.Access {
		var gs []string
		for _, g := range tr.Access[i] {
			gs = append(gs, encodeGindex(g))
		}
		pf.Access = append(pf.Access, gs)
		pf.Nodes = append(pf.Nodes, encodeNodeMap(tr.Nodes[i]))
		pf.Kind = append(pf.Kind, int(tr.Kind[i]))
	}
	b, err := json.MarshalIndent(pf, "", "  ")
	if err != nil {
		return errors.Wrap(err, "marshaling proof file")
	}
	return os.WriteFile(path, b, 0o644)
}

// LoadProof reads a proof file from path back into a Trace.
func LoadProof(path string) (*trace.Trace, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.Wrapf(err, "reading proof file %s", path)
	}
	var pf ProofFile
	if err := json.Unmarshal(b, &pf); err != nil {
		return nil, errors.Wrapf(err, "parsing proof file %s", path)
	}
	baseInput, err := hexutil.Decode(pf.BaseInput)
	if err != nil {
		return nil, errors.Wrap(err, "decoding base_input")
	}
	tr := &trace.Trace{ContractID: pf.ContractID, BaseInput: baseInput}
	for _, rs := range pf.StepRoots {
		n, err := decodeNode(rs)
		if err != nil {
			return nil, err
		}
		tr.StepRoots = append(tr.StepRoots, n)
	}
	for i := range pf.Access {
		var gs []merkle.Gindex
		for _, gs2 := range pf.Access[i] {
			g, err := decodeGindex(gs2)
			if err != nil {
				return nil, err
			}
			gs = append(gs, g)
		}
		tr.Access = append(tr.Access, gs)
		nm, err := decodeNodeMap(pf.Nodes[i])
		if err != nil {
			return nil, err
		}
		tr.Nodes = append(tr.Nodes, nm)
		tr.Kind = append(tr.Kind, trace.StepKind(pf.Kind[i]))
	}
	return tr, nil
}

// --- witness file ---

// WitnessFile is the on-disk shape of a witness file, extended with
// contract_id, kind, and (for step 0 only) base_input: the
// transaction bytes the base step needs, which are outside the state
// tree entirely. See the Witness doc comment and DESIGN.md.
type WitnessFile struct {
	ContractID   uint8             `json:"contract_id"`
	Kind         int               `json:"kind"`
	BaseInput    string            `json:"base_input,omitempty"`
	NodeByGindex map[string]string `json:"node_by_gindex"`
	PreRoot      string            `json:"pre_root"`
	PostRoot     string            `json:"post_root"`
	Step         int               `json:"step"`
}

// SaveWitness writes w out to path.
func SaveWitness(path string, w *witness.Witness) error {
	wf := WitnessFile{
		ContractID:   w.ContractID,
		Kind:         int(w.Kind),
		NodeByGindex: encodeNodeMap(w.NodeByGindex),
		PreRoot:      encodeNode(w.PreRoot),
		PostRoot:     encodeNode(w.PostRoot),
		Step:         w.Step,
	}
	if w.BaseInput != nil {
		wf.BaseInput = hexutil.Encode(w.BaseInput)
	}
	b, err := json.MarshalIndent(wf, "", "  ")
	if err != nil {
		return errors.Wrap(err, "marshaling witness file")
	}
	return os.WriteFile(path, b, 0o644)
}

// LoadWitness reads a witness file from path.
func LoadWitness(path string) (*witness.Witness, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.Wrapf(err, "reading witness file %s", path)
	}
	var wf WitnessFile
	if err := json.Unmarshal(b, &wf); err != nil {
		return nil, errors.Wrapf(err, "parsing witness file %s", path)
	}
	nm, err := decodeNodeMap(wf.NodeByGindex)
	if err != nil {
		return nil, err
	}
	preRoot, err := decodeNode(wf.PreRoot)
	if err != nil {
		return nil, err
	}
	postRoot, err := decodeNode(wf.PostRoot)
	if err != nil {
		return nil, err
	}
	w := &witness.Witness{
		Step:         wf.Step,
		ContractID:   wf.ContractID,
		Kind:         trace.StepKind(wf.Kind),
		PreRoot:      preRoot,
		PostRoot:     postRoot,
		NodeByGindex: nm,
	}
	if wf.BaseInput != "" {
		in, err := hexutil.Decode(wf.BaseInput)
		if err != nil {
			return nil, errors.Wrap(err, "decoding base_input")
		}
		w.BaseInput = in
	}
	return w, nil
}
