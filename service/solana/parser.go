package solana

import (
	"encoding/json"
	"fmt"
	"strconv"

	"github.com/gagliardetto/solana-go"
	"github.com/gagliardetto/solana-go/rpc"
)

// Well-known Solana program IDs
var (
	// TokenProgramID is the SPL Token program
	TokenProgramID = solana.MustPublicKeyFromBase58("TokenkegQfeZyiNwAJbNbGKPFXCWuBvf9Ss623VQ5DA")

	// Token2022ProgramID is the Token Extensions program (Token-2022)
	Token2022ProgramID = solana.MustPublicKeyFromBase58("TokenzQdBNbLqP5VEhdkAS6EPFLC1PHnBqCXEpPxuEb")
)

// IsTokenProgram reports whether owner is one of the SPL token programs.
func IsTokenProgram(owner solana.PublicKey) bool {
	return owner.Equals(TokenProgramID) || owner.Equals(Token2022ProgramID)
}

// FeePayer decodes the transaction envelope and returns its first account
// key, which pays the fee and signs first.
func FeePayer(result *rpc.GetTransactionResult) (solana.PublicKey, error) {
	if result == nil || result.Transaction == nil {
		return solana.PublicKey{}, fmt.Errorf("missing transaction envelope: %w", ErrMalformed)
	}

	tx, err := result.Transaction.GetTransaction()
	if err != nil {
		return solana.PublicKey{}, fmt.Errorf("decode transaction: %w", ErrMalformed)
	}
	if tx == nil || len(tx.Message.AccountKeys) == 0 {
		return solana.PublicKey{}, fmt.Errorf("transaction has no account keys: %w", ErrMalformed)
	}

	return tx.Message.AccountKeys[0], nil
}

// parsedTokenAccount is the jsonParsed layout of an SPL token account.
type parsedTokenAccount struct {
	Parsed struct {
		Info struct {
			Mint        string `json:"mint"`
			Owner       string `json:"owner"`
			TokenAmount struct {
				Amount         string   `json:"amount"`
				Decimals       uint8    `json:"decimals"`
				UIAmount       *float64 `json:"uiAmount"`
				UIAmountString string   `json:"uiAmountString"`
			} `json:"tokenAmount"`
		} `json:"info"`
		Type string `json:"type"`
	} `json:"parsed"`
	Program string `json:"program"`
}

// ParseTokenAccount extracts the holding from a jsonParsed token account.
func ParseTokenAccount(acc *rpc.TokenAccount) (TokenHolding, error) {
	if acc == nil || acc.Account.Data == nil {
		return TokenHolding{}, fmt.Errorf("token account has no data: %w", ErrMalformed)
	}

	raw := acc.Account.Data.GetRawJSON()
	if len(raw) == 0 {
		return TokenHolding{}, fmt.Errorf("token account data is not jsonParsed: %w", ErrMalformed)
	}

	var parsed parsedTokenAccount
	if err := json.Unmarshal(raw, &parsed); err != nil {
		return TokenHolding{}, fmt.Errorf("decode token account: %w", ErrMalformed)
	}

	info := parsed.Parsed.Info
	if info.Mint == "" {
		return TokenHolding{}, fmt.Errorf("token account missing mint: %w", ErrMalformed)
	}

	holding := TokenHolding{
		Account:  acc.Pubkey.String(),
		Mint:     info.Mint,
		Amount:   info.TokenAmount.Amount,
		Decimals: info.TokenAmount.Decimals,
	}

	switch {
	case info.TokenAmount.UIAmount != nil:
		holding.UIAmount = *info.TokenAmount.UIAmount
	case info.TokenAmount.UIAmountString != "":
		if v, err := strconv.ParseFloat(info.TokenAmount.UIAmountString, 64); err == nil {
			holding.UIAmount = v
		}
	}

	return holding, nil
}
