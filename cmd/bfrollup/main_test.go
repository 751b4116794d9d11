package main

import (
	"io"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/optimistic-bf/bfrollup/serialize"
	"github.com/urfave/cli/v2"
)

func runApp(t *testing.T, args ...string) string {
	t.Helper()
	app := &cli.App{}
	app.Name = "bfrollup"
	app.Commands = []*cli.Command{
		initStateCommand,
		transitionCommand,
		genCommand,
		stepWitnessCommand,
		verifyCommand,
		inspectCommand,
		traceSummaryCommand,
		deriveSenderCommand,
	}

	r, w, err := os.Pipe()
	if err != nil {
		t.Fatalf("Pipe: %v", err)
	}
	oldStdout := os.Stdout
	os.Stdout = w

	runErr := app.Run(append([]string{"bfrollup"}, args...))

	w.Close()
	os.Stdout = oldStdout
	out, err := io.ReadAll(r)
	if err != nil {
		t.Fatalf("reading captured stdout: %v", err)
	}
	if runErr != nil {
		t.Fatalf("app.Run(%v): %v", args, runErr)
	}
	return string(out)
}

// TestVerifyCommandDetectsTamperedClaim exercises the comparison verify
// actually makes (cmd/bfrollup/main.go's verifyCommand), end to end through
// the CLI surface: an honest claimed root reports no fraud, and a flipped
// one is reported as fraud.
func TestVerifyCommandDetectsTamperedClaim(t *testing.T) {
	dir := t.TempDir()
	pre := filepath.Join(dir, "pre.json")
	proof := filepath.Join(dir, "proof.json")
	wit := filepath.Join(dir, "witness.json")

	runApp(t, "init-state", pre)
	sender := "0x" + strings.Repeat("00", 20)
	runApp(t, "gen", pre, proof, sender, "0", "0x03")
	runApp(t, "step-witness", proof, wit, "0")

	tr, err := serialize.LoadProof(proof)
	if err != nil {
		t.Fatalf("LoadProof: %v", err)
	}
	honestRoot := serialize.EncodeNode(tr.StepRoots[1])

	honestOut := runApp(t, "verify", wit, honestRoot)
	if !strings.Contains(honestOut, "no fraud") {
		t.Errorf("verify with honest claim = %q, want it to report no fraud", honestOut)
	}

	tamperedNode, err := serialize.DecodeNode(honestRoot)
	if err != nil {
		t.Fatalf("DecodeNode: %v", err)
	}
	tamperedNode[0] ^= 0x01
	tamperedRoot := serialize.EncodeNode(tamperedNode)

	fraudOut := runApp(t, "verify", wit, tamperedRoot)
	if !strings.Contains(fraudOut, "fraud detected") {
		t.Errorf("verify with tampered claim = %q, want it to report fraud detected", fraudOut)
	}
}
