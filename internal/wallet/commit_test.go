package wallet

import (
	"testing"

	"github.com/btcsuite/btcd/chaincfg"
	"github.com/btcsuite/btcd/txscript"
)

func TestBuildCommitOutputProducesSpendableScriptPath(t *testing.T) {
	revealScript, err := txscript.NewScriptBuilder().
		AddData([]byte("anchor-body")).
		AddOp(txscript.OP_DROP).
		AddOp(txscript.OP_TRUE).
		Script()
	if err != nil {
		t.Fatalf("build reveal script: %v", err)
	}

	commit, err := BuildCommitOutput(revealScript)
	if err != nil {
		t.Fatalf("build commit output: %v", err)
	}
	if commit.TweakedKey == nil {
		t.Fatalf("expected tweaked key")
	}
	if len(commit.ControlBlock) != 33 {
		t.Fatalf("expected single-leaf control block of 33 bytes, got %d", len(commit.ControlBlock))
	}

	script := commit.ScriptPubKey()
	if len(script) != 34 || script[0] != txscript.OP_1 || script[1] != txscript.OP_DATA_32 {
		t.Fatalf("unexpected taproot scriptPubKey shape: %x", script)
	}
}

func TestCommitAddressIsDeterministicForSameScript(t *testing.T) {
	script, _ := txscript.NewScriptBuilder().AddData([]byte("x")).AddOp(txscript.OP_DROP).AddOp(txscript.OP_TRUE).Script()

	c1, err := BuildCommitOutput(script)
	if err != nil {
		t.Fatalf("build 1: %v", err)
	}
	c2, err := BuildCommitOutput(script)
	if err != nil {
		t.Fatalf("build 2: %v", err)
	}

	addr1, err := c1.Address(&chaincfg.MainNetParams)
	if err != nil {
		t.Fatalf("address 1: %v", err)
	}
	addr2, err := c2.Address(&chaincfg.MainNetParams)
	if err != nil {
		t.Fatalf("address 2: %v", err)
	}
	if addr1 != addr2 {
		t.Fatalf("expected same reveal script to yield same commit address, got %s vs %s", addr1, addr2)
	}
}
