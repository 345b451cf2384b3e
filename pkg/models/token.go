package models

// Token deploy flag bits (§3 "Token").
const (
	TokenFlagOpenMint uint8 = 0x01
	TokenFlagBurnable uint8 = 0x04
)

// Token is the registered ticker's deploy parameters and running supply.
type Token struct {
	ID           int64
	Ticker       string
	Decimals     uint8
	MaxSupply    uint64
	MintLimit    *uint64
	Minted       uint64
	Burned       uint64
	Flags        uint8
	DeployTxID   string
	DeployVout   uint16
}

// OpenMint reports whether the open_mint flag bit is set.
func (t Token) OpenMint() bool { return t.Flags&TokenFlagOpenMint != 0 }

// Burnable reports whether the burnable flag bit is set.
func (t Token) Burnable() bool { return t.Flags&TokenFlagBurnable != 0 }

// CirculatingSupply is minted minus burned.
func (t Token) CirculatingSupply() uint64 { return t.Minted - t.Burned }

// TokenUTXO is a single live-or-spent allocation of a token's supply to a
// transaction output (§3 "Token-UTXO").
type TokenUTXO struct {
	TokenID       int64
	TxID          string
	Vout          uint16
	Amount        uint64
	OwnerAddress  string
	SpentByTxID   string
	SpentByVout   uint16
	Spent         bool
}
