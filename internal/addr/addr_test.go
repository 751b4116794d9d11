package addr_test

import (
	"testing"

	"github.com/optimistic-bf/bfrollup/internal/addr"
)

func TestDeriveIsDeterministic(t *testing.T) {
	a := addr.Derive("alice")
	b := addr.Derive("alice")
	if a != b {
		t.Errorf("Derive(%q) not deterministic: %x != %x", "alice", a, b)
	}
}

func TestDeriveDiffersByLabel(t *testing.T) {
	a := addr.Derive("alice")
	b := addr.Derive("bob")
	if a == b {
		t.Errorf("Derive produced the same address for different labels")
	}
}
