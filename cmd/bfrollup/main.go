// Package main is the bfrollup CLI: a thin, logging command surface over
// the driver/trace/witness packages, in the shape of the validator
// client's own cli.App entrypoint.
package main

import (
	"fmt"
	"os"

	"github.com/google/uuid"
	"github.com/optimistic-bf/bfrollup/driver"
	"github.com/optimistic-bf/bfrollup/internal/addr"
	"github.com/optimistic-bf/bfrollup/serialize"
	"github.com/optimistic-bf/bfrollup/trace"
	"github.com/optimistic-bf/bfrollup/witness"
	"github.com/sirupsen/logrus"
	"github.com/urfave/cli/v2"
)

var log = logrus.WithField("prefix", "main")

func main() {
	app := cli.App{}
	app.Name = "bfrollup"
	app.Usage = "drives, proves, and verifies Brainfuck contract transitions against a Merkleized world state"
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

	if err := app.Run(os.Args); err != nil {
		log.Error(err.Error())
		os.Exit(1)
	}
}

var initStateCommand = &cli.Command{
	Name:      "init-state",
	Usage:     "write a canonical example state with contract 0 populated",
	ArgsUsage: "<out.json>",
	Action: func(c *cli.Context) error {
		if c.Args().Len() != 1 {
			return fmt.Errorf("init-state: want exactly one argument, out.json")
		}
		out := c.Args().Get(0)

		tree := driver.NewWorld()
		// The canonical multiply-by-7 program: the first 21 ',' reads
		// discard the 20-byte sender prefix and land one payload byte as
		// a loop counter in cells[0], which the loop accumulates
		// 7-per-iteration into cells[1].
		if err := driver.CreateContract(tree, 0, []byte(",,,,,,,,,,,,,,,,,,,,,[->+++++++<].")); err != nil {
			return err
		}
		if err := serialize.SaveState(out, tree, []uint8{0}); err != nil {
			return err
		}
		log.WithField("out", out).Info("wrote canonical state")
		return nil
	},
}

var transitionCommand = &cli.Command{
	Name:      "transition",
	Usage:     "apply one transaction and write the resulting post-state",
	ArgsUsage: "<pre.json> <post.json> <sender:0x..40hex> <contract_id> <payload:0x..hex>",
	Action: func(c *cli.Context) error {
		if c.Args().Len() != 5 {
			return fmt.Errorf("transition: want 5 arguments, got %d", c.Args().Len())
		}
		pre := c.Args().Get(0)
		post := c.Args().Get(1)

		tree, err := serialize.LoadState(pre)
		if err != nil {
			return err
		}
		sender, id, payload, err := parseTxArgs(c.Args().Slice()[2:])
		if err != nil {
			return err
		}
		if err := driver.Transition(tree, id, sender, payload); err != nil {
			return err
		}
		if err := serialize.SaveState(post, tree, []uint8{id}); err != nil {
			return err
		}
		log.WithFields(logrus.Fields{"contract_id": id, "post": post}).Info("transition applied")
		return nil
	},
}

var genCommand = &cli.Command{
	Name:      "gen",
	Usage:     "apply one transaction and emit its full proof, without writing a post-state",
	ArgsUsage: "<pre.json> <proof.json> <sender> <contract_id> <payload>",
	Action: func(c *cli.Context) error {
		if c.Args().Len() != 5 {
			return fmt.Errorf("gen: want 5 arguments, got %d", c.Args().Len())
		}
		pre := c.Args().Get(0)
		proof := c.Args().Get(1)

		tree, err := serialize.LoadState(pre)
		if err != nil {
			return err
		}
		sender, id, payload, err := parseTxArgs(c.Args().Slice()[2:])
		if err != nil {
			return err
		}
		tr, err := trace.Generate(tree, id, sender, payload)
		if err != nil {
			return err
		}
		traceID, err := uuid.NewRandom()
		if err != nil {
			return err
		}
		if err := serialize.SaveProof(proof, tr, traceID.String()); err != nil {
			return err
		}
		log.WithFields(logrus.Fields{
			"contract_id": id,
			"steps":       tr.NumSteps(),
			"proof":       proof,
			"trace_id":    traceID.String(),
		}).Info("proof generated")
		return nil
	},
}

var deriveSenderCommand = &cli.Command{
	Name:      "derive-sender",
	Usage:     "derive a deterministic 20-byte sender address from a label, for ad hoc testing",
	ArgsUsage: "<label>",
	Action: func(c *cli.Context) error {
		if c.Args().Len() != 1 {
			return fmt.Errorf("derive-sender: want exactly one argument, label")
		}
		a := addr.Derive(c.Args().Get(0))
		fmt.Printf("0x%x\n", a)
		return nil
	},
}

var stepWitnessCommand = &cli.Command{
	Name:      "step-witness",
	Usage:     "project a single-step witness out of a proof file",
	ArgsUsage: "<proof.json> <witness.json> <step>",
	Action: func(c *cli.Context) error {
		if c.Args().Len() != 3 {
			return fmt.Errorf("step-witness: want 3 arguments, got %d", c.Args().Len())
		}
		proofPath := c.Args().Get(0)
		witnessPath := c.Args().Get(1)
		step, err := parseInt(c.Args().Get(2))
		if err != nil {
			return fmt.Errorf("step-witness: bad step index: %w", err)
		}

		tr, err := serialize.LoadProof(proofPath)
		if err != nil {
			return err
		}
		w, err := witness.Extract(tr, step)
		if err != nil {
			return err
		}
		if err := serialize.SaveWitness(witnessPath, w); err != nil {
			return err
		}
		log.WithFields(logrus.Fields{"step": step, "witness": witnessPath}).Info("witness extracted")
		return nil
	},
}

var verifyCommand = &cli.Command{
	Name:      "verify",
	Usage:     "re-execute a single step from a witness and compare against a claimed post-root",
	ArgsUsage: "<witness.json> <claimed_post_root:0x..64hex>",
	Action: func(c *cli.Context) error {
		if c.Args().Len() != 2 {
			return fmt.Errorf("verify: want 2 arguments, got %d", c.Args().Len())
		}
		witnessPath := c.Args().Get(0)
		claimedHex := c.Args().Get(1)

		w, err := serialize.LoadWitness(witnessPath)
		if err != nil {
			return err
		}
		claimed, err := serialize.DecodeNode(claimedHex)
		if err != nil {
			return err
		}

		got, err := witness.Verify(w)
		if err != nil {
			return err
		}
		fmt.Printf("post contract root: %s\n", serialize.EncodeNode(got))
		if got == claimed {
			fmt.Println("root matches, no fraud")
		} else {
			fmt.Println("root did not match, fraud detected!")
		}
		return nil
	},
}

var inspectCommand = &cli.Command{
	Name:      "inspect",
	Usage:     "print a contract's persisted fields from a state file",
	ArgsUsage: "<state.json> <contract_id>",
	Action: func(c *cli.Context) error {
		if c.Args().Len() != 2 {
			return fmt.Errorf("inspect: want 2 arguments, got %d", c.Args().Len())
		}
		tree, err := serialize.LoadState(c.Args().Get(0))
		if err != nil {
			return err
		}
		id, err := parseContractID(c.Args().Get(1))
		if err != nil {
			return err
		}
		cj, err := serialize.ReadContract(tree, id)
		if err != nil {
			return err
		}
		fmt.Printf("code:  %q\n", cj.Code)
		fmt.Printf("ptr:   %d\n", cj.Ptr)
		fmt.Printf("cells: %v\n", cj.Cells)
		return nil
	},
}

var traceSummaryCommand = &cli.Command{
	Name:      "trace-summary",
	Usage:     "print the step count and root chain of a proof file",
	ArgsUsage: "<proof.json>",
	Action: func(c *cli.Context) error {
		if c.Args().Len() != 1 {
			return fmt.Errorf("trace-summary: want exactly one argument, proof.json")
		}
		tr, err := serialize.LoadProof(c.Args().Get(0))
		if err != nil {
			return err
		}
		fmt.Printf("contract: %d\n", tr.ContractID)
		fmt.Printf("steps:    %d\n", tr.NumSteps())
		for i, r := range tr.StepRoots {
			fmt.Printf("  root[%d] = %s\n", i, serialize.EncodeNode(r))
		}
		return nil
	},
}
