package wallet

import (
	"bytes"
	"encoding/hex"
	"fmt"

	"github.com/btcsuite/btcd/chaincfg/chainhash"
	"github.com/btcsuite/btcd/wire"
	"github.com/rawblock/anchor-engine/internal/bitcoin"
	"github.com/rawblock/anchor-engine/internal/carrier"
	"github.com/rawblock/anchor-engine/pkg/models"
)

// BroadcastRequest describes one ANCHOR message a caller wants anchored to
// the chain, plus any non-anchor outputs and required token inputs the
// operation (mint, transfer, settle, ...) needs alongside it.
type BroadcastRequest struct {
	Message         models.Message
	ExplicitCarrier *carrier.Type
	RequiredInputs  []bitcoin.RawTxInput // token/domain UTXOs that must be spent
	CustomOutputs   []CustomOutput       // non-anchor, non-change outputs
	FeeRateSatVB    float64
}

// BroadcastResult reports where the anchor ended up so callers can persist
// an Anchor{Prefix, Vout} pointing at it.
type BroadcastResult struct {
	TxID        string
	AnchorVout  int
	CarrierType carrier.Type
	CommitTxID  string // set only for the commit/reveal path
}

// Broadcast picks between the OP_RETURN single-tx path and the WitnessData
// commit/reveal path based on the carrier selector, then builds and sends
// the transaction(s).
func (s *Service) Broadcast(req BroadcastRequest) (*BroadcastResult, error) {
	env, err := models.EncodeEnvelope(req.Message)
	if err != nil {
		return nil, fmt.Errorf("wallet: encode envelope: %w", err)
	}

	chosen, err := pickBroadcastCarrier(req.Message.Kind, len(env), req.ExplicitCarrier)
	if err != nil {
		return nil, err
	}

	s.txCreationMu.Lock()
	defer s.txCreationMu.Unlock()

	var result *BroadcastResult
	switch chosen {
	case carrier.OpReturn:
		result, err = s.broadcastOpReturn(req)
	case carrier.WitnessData:
		result, err = s.broadcastCommitReveal(req)
	default:
		return nil, fmt.Errorf("wallet: unsupported carrier %s", chosen)
	}
	if err != nil {
		return nil, err
	}
	s.cache.record(*result, req.Message.Kind, req.FeeRateSatVB)
	return result, nil
}

// broadcastOpReturn builds a single transaction with an OP_RETURN data
// output via Core's createrawtransaction/fundrawtransaction/
// signrawtransactionwithwallet/sendrawtransaction pipeline (mirrors the
// reference's create_and_broadcast_advanced_tx OP_RETURN path).
func (s *Service) broadcastOpReturn(req BroadcastRequest) (*BroadcastResult, error) {
	// createrawtransaction's "data" output takes the raw envelope bytes
	// directly and builds its own OP_RETURN push, so the envelope is
	// encoded straight from the message rather than unwrapped from a
	// pre-built script.
	env, err := models.EncodeEnvelope(req.Message)
	if err != nil {
		return nil, fmt.Errorf("wallet: encode op_return envelope: %w", err)
	}

	outputs := make([]map[string]interface{}, 0, len(req.CustomOutputs)+1)
	for _, co := range req.CustomOutputs {
		outputs = append(outputs, map[string]interface{}{co.Address: satsToBTC(co.Sats)})
	}
	outputs = append(outputs, map[string]interface{}{"data": hex.EncodeToString(env)})

	rawHex, err := s.btc.CreateRawTransaction(req.RequiredInputs, outputs)
	if err != nil {
		return nil, fmt.Errorf("wallet: createrawtransaction: %w", err)
	}

	changeAddr, err := s.btc.GetNewAddress()
	if err != nil {
		return nil, fmt.Errorf("wallet: get change address: %w", err)
	}
	feeRate := req.FeeRateSatVB
	if feeRate <= 0 {
		feeRate = 1
	}
	fundedHex, err := s.btc.FundRawTransaction(rawHex, changeAddr, feeRate*1000/1e8, true)
	if err != nil {
		return nil, fmt.Errorf("wallet: fundrawtransaction: %w", err)
	}

	signedHex, complete, err := s.btc.SignRawTransactionWithWallet(fundedHex)
	if err != nil {
		return nil, fmt.Errorf("wallet: signrawtransactionwithwallet: %w", err)
	}
	if !complete {
		return nil, fmt.Errorf("wallet: transaction not fully signed")
	}

	txid, err := s.btc.SendRawTransaction(signedHex)
	if err != nil {
		return nil, fmt.Errorf("wallet: sendrawtransaction: %w", err)
	}

	vouts, err := s.btc.DecodeRawTransaction(signedHex)
	if err != nil {
		return nil, fmt.Errorf("wallet: decoderawtransaction: %w", err)
	}
	anchorVout := -1
	for _, v := range vouts {
		if v.ScriptPubKey.Type == "nulldata" {
			anchorVout = int(v.N)
			break
		}
	}
	if anchorVout < 0 {
		return nil, fmt.Errorf("wallet: could not locate nulldata vout in broadcast tx")
	}

	log.Printf("[wallet] broadcast op_return anchor tx %s (vout %d)", txid, anchorVout)
	return &BroadcastResult{TxID: txid, AnchorVout: anchorVout, CarrierType: carrier.OpReturn}, nil
}

// broadcastCommitReveal implements the two-stage WitnessData vehicle
// (§4.1/§4.5): a commit transaction pays a taproot output committing to the
// reveal script, then a reveal transaction spends that output via the
// script path (no signature) alongside any required token inputs.
//
// Fee/size formulas are mirrored exactly from the reference advanced
// transaction builder.
func (s *Service) broadcastCommitReveal(req BroadcastRequest) (*BroadcastResult, error) {
	c := carrier.NewSelector()
	out, err := c.Encode(req.Message, req.ExplicitCarrier)
	if err != nil {
		return nil, fmt.Errorf("wallet: encode witness_data output: %w", err)
	}

	commit, err := BuildCommitOutput(out.RevealScript)
	if err != nil {
		return nil, fmt.Errorf("wallet: build commit output: %w", err)
	}
	commitAddr, err := commit.Address(s.params)
	if err != nil {
		return nil, fmt.Errorf("wallet: commit address: %w", err)
	}

	feeRate := req.FeeRateSatVB
	if feeRate <= 0 {
		feeRate = 1
	}

	var totalOutputValue int64 = anchorDust
	for _, co := range req.CustomOutputs {
		totalOutputValue += co.Sats
	}

	revealVSize := reveralBaseVSz + len(out.RevealScript) + len(req.RequiredInputs)*perRequiredIn + len(req.CustomOutputs)*perCustomOut
	revealFee := int64(float64(revealVSize) * feeRate)
	commitFee := int64(float64(commitVSize) * feeRate)

	commitAmount := revealFee + totalOutputValue + safetyMargin
	required := commitAmount + commitFee + safetyMargin

	candidates, err := s.unlockedUTXOs(1)
	if err != nil {
		return nil, err
	}
	picked, totalInput, err := selectUTXOs(candidates, required)
	if err != nil {
		return nil, fmt.Errorf("wallet: select commit inputs: %w", err)
	}

	commitTxID, err := s.sendCommitTx(picked, totalInput, commitAddr, commitAmount, feeRate)
	if err != nil {
		return nil, err
	}

	revealTxID, err := s.sendRevealTx(commit, commitTxID, commitAmount, revealFee, req)
	if err != nil {
		return nil, fmt.Errorf("wallet: reveal tx (commit %s already broadcast): %w", commitTxID, err)
	}

	log.Printf("[wallet] broadcast commit %s / reveal %s (witness_data anchor)", commitTxID, revealTxID)
	return &BroadcastResult{TxID: revealTxID, AnchorVout: 0, CarrierType: carrier.WitnessData, CommitTxID: commitTxID}, nil
}

// sendCommitTx funds and broadcasts the commit transaction paying
// commitAmount sats to the taproot commit address.
func (s *Service) sendCommitTx(inputs []bitcoin.UnspentUTXO, totalInput int64, commitAddr string, commitAmount int64, feeRateSatVB float64) (string, error) {
	rawInputs := make([]bitcoin.RawTxInput, len(inputs))
	for i, u := range inputs {
		rawInputs[i] = bitcoin.RawTxInput{TxID: u.TxID, Vout: u.Vout}
	}

	outputs := []map[string]interface{}{{commitAddr: satsToBTC(commitAmount)}}

	rawHex, err := s.btc.CreateRawTransaction(rawInputs, outputs)
	if err != nil {
		return "", fmt.Errorf("createrawtransaction: %w", err)
	}
	changeAddr, err := s.btc.GetNewAddress()
	if err != nil {
		return "", fmt.Errorf("get change address: %w", err)
	}
	if feeRateSatVB <= 0 {
		feeRateSatVB = 1
	}
	// add_inputs=false: the caller already selected every input needed to
	// cover commitAmount plus fees, so funding must not draw in further
	// (possibly locked) UTXOs — it may only compute the change output.
	fundedHex, err := s.btc.FundRawTransaction(rawHex, changeAddr, feeRateSatVB*1000/1e8, false)
	if err != nil {
		return "", fmt.Errorf("fundrawtransaction: %w", err)
	}
	signedHex, complete, err := s.btc.SignRawTransactionWithWallet(fundedHex)
	if err != nil {
		return "", fmt.Errorf("signrawtransactionwithwallet: %w", err)
	}
	if !complete {
		return "", fmt.Errorf("commit tx not fully signed")
	}
	txid, err := s.btc.SendRawTransaction(signedHex)
	if err != nil {
		return "", fmt.Errorf("sendrawtransaction: %w", err)
	}
	return txid, nil
}

// sendRevealTx manually assembles the reveal transaction: input 0 spends
// the commit outpoint via the script path (witness = [reveal_script,
// control_block], no signature), remaining inputs are the caller's
// required token UTXOs signed normally by the wallet.
func (s *Service) sendRevealTx(commit *CommitTaproot, commitTxID string, commitAmount, revealFee int64, req BroadcastRequest) (string, error) {
	commitHash, err := chainhash.NewHashFromStr(commitTxID)
	if err != nil {
		return "", fmt.Errorf("parse commit txid: %w", err)
	}

	tx := wire.NewMsgTx(2)

	commitOutPoint := wire.NewOutPoint(commitHash, 0)
	commitIn := wire.NewTxIn(commitOutPoint, nil, nil)
	commitIn.Witness = wire.TxWitness{commit.RevealScript, commit.ControlBlock}
	tx.AddTxIn(commitIn)

	for _, in := range req.RequiredInputs {
		prevHash, err := chainhash.NewHashFromStr(in.TxID)
		if err != nil {
			return "", fmt.Errorf("parse required input txid %s: %w", in.TxID, err)
		}
		tx.AddTxIn(wire.NewTxIn(wire.NewOutPoint(prevHash, in.Vout), nil, nil))
	}

	anchorAddr, err := s.btc.GetNewAddress()
	if err != nil {
		return "", fmt.Errorf("get anchor output address: %w", err)
	}
	anchorScript, err := addressToScript(anchorAddr, s.params)
	if err != nil {
		return "", err
	}
	tx.AddTxOut(wire.NewTxOut(anchorDust, anchorScript))

	for _, co := range req.CustomOutputs {
		script, err := addressToScript(co.Address, s.params)
		if err != nil {
			return "", err
		}
		tx.AddTxOut(wire.NewTxOut(co.Sats, script))
	}

	btcChange := commitAmount - revealFee - anchorDust
	for _, co := range req.CustomOutputs {
		btcChange -= co.Sats
	}
	if btcChange > anchorDust {
		changeAddr, err := s.btc.GetNewAddress()
		if err != nil {
			return "", fmt.Errorf("get btc change address: %w", err)
		}
		changeScript, err := addressToScript(changeAddr, s.params)
		if err != nil {
			return "", err
		}
		tx.AddTxOut(wire.NewTxOut(btcChange, changeScript))
	}

	var buf bytes.Buffer
	if err := tx.Serialize(&buf); err != nil {
		return "", fmt.Errorf("serialize reveal tx: %w", err)
	}
	rawHex := hex.EncodeToString(buf.Bytes())

	// Input 0's witness already satisfies the script path with no
	// signature, so signrawtransactionwithwallet leaves it untouched and
	// signs only the required-input entries it holds keys for.
	signedHex, complete, err := s.btc.SignRawTransactionWithWallet(rawHex)
	if err != nil {
		return "", fmt.Errorf("signrawtransactionwithwallet: %w", err)
	}
	if !complete {
		return "", fmt.Errorf("reveal tx not fully signed")
	}

	txid, err := s.btc.SendRawTransaction(signedHex)
	if err != nil {
		return "", fmt.Errorf("sendrawtransaction: %w", err)
	}
	return txid, nil
}
