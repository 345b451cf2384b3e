package wallet

import (
	"encoding/hex"
	"fmt"

	"github.com/btcsuite/btcd/btcec/v2"
	"github.com/btcsuite/btcd/btcec/v2/schnorr"
	"github.com/btcsuite/btcd/btcutil"
	"github.com/btcsuite/btcd/chaincfg"
	"github.com/btcsuite/btcd/txscript"
)

// numsInternalKeyHex is the static internal key of the taproot commit
// output (§4.1 "WitnessData"): the compressed secp256k1 generator point G,
// whose discrete log is 1. The reveal transaction spends the commit output
// via the script path.
const numsInternalKeyHex = "0279be667ef9dcbbac55a06295ce870b07029bfcdb2dce28d959f2815b16f81798"

var numsInternalKey *btcec.PublicKey

func init() {
	raw, err := hex.DecodeString(numsInternalKeyHex)
	if err != nil {
		panic(fmt.Sprintf("wallet: bad NUMS key constant: %v", err))
	}
	key, err := btcec.ParsePubKey(raw)
	if err != nil {
		panic(fmt.Sprintf("wallet: NUMS key does not parse: %v", err))
	}
	numsInternalKey = key
}

// CommitTaproot is the single-leaf taproot output committing to a reveal
// script, built the way the reference swap package assembles its taproot
// script trees (internal key + AssembleTaprootScriptTree + control block),
// but with the static generator-point key standing in for a real signer.
type CommitTaproot struct {
	TweakedKey   *btcec.PublicKey
	ControlBlock []byte
	RevealScript []byte
}

// BuildCommitOutput constructs the taproot output that commits to
// revealScript, spendable only via the script path.
func BuildCommitOutput(revealScript []byte) (*CommitTaproot, error) {
	leaf := txscript.NewBaseTapLeaf(revealScript)
	tree := txscript.AssembleTaprootScriptTree(leaf)
	merkleRoot := tree.RootNode.TapHash()

	tweakedKey := txscript.ComputeTaprootOutputKey(numsInternalKey, merkleRoot[:])

	ctrlBlock := tree.LeafMerkleProofs[0].ToControlBlock(numsInternalKey)
	ctrlBlockBytes, err := ctrlBlock.ToBytes()
	if err != nil {
		return nil, fmt.Errorf("wallet: serialize control block: %w", err)
	}

	return &CommitTaproot{
		TweakedKey:   tweakedKey,
		ControlBlock: ctrlBlockBytes,
		RevealScript: revealScript,
	}, nil
}

// ScriptPubKey returns the P2TR scriptPubKey (OP_1 <32-byte x-only key>).
func (c *CommitTaproot) ScriptPubKey() []byte {
	xOnly := schnorr.SerializePubKey(c.TweakedKey)
	script := make([]byte, 34)
	script[0] = txscript.OP_1
	script[1] = txscript.OP_DATA_32
	copy(script[2:], xOnly)
	return script
}

// Address renders the bech32m P2TR address for the given network.
func (c *CommitTaproot) Address(params *chaincfg.Params) (string, error) {
	xOnly := schnorr.SerializePubKey(c.TweakedKey)
	addr, err := btcutil.NewAddressTaproot(xOnly, params)
	if err != nil {
		return "", fmt.Errorf("wallet: encode taproot address: %w", err)
	}
	return addr.EncodeAddress(), nil
}

// addressToScript decodes an address string into its scriptPubKey, the way
// the teacher's bitcoin package already does for mainnet lookups.
func addressToScript(addr string, params *chaincfg.Params) ([]byte, error) {
	decoded, err := btcutil.DecodeAddress(addr, params)
	if err != nil {
		return nil, fmt.Errorf("wallet: decode address %s: %w", addr, err)
	}
	return txscript.PayToAddrScript(decoded)
}
