package explorer

import (
	"math"
	"strconv"

	"github.com/brojonat/solexplorer/service/solana"
	"github.com/gagliardetto/solana-go/rpc"
)

// LamportsPerSOL is the number of lamports in one SOL.
const LamportsPerSOL = 1_000_000_000

// NormalizeBlock converts a getBlock result for slot into a Block.
func NormalizeBlock(slot uint64, b *rpc.GetBlockResult) Block {
	block := Block{
		BlockNumber:       slot,
		Slot:              slot,
		Blockhash:         b.Blockhash.String(),
		ParentSlot:        b.ParentSlot,
		PreviousBlockhash: b.PreviousBlockhash.String(),
	}

	if b.BlockTime != nil {
		ts := int64(*b.BlockTime)
		block.Timestamp = &ts
	}

	if len(b.Rewards) > 0 {
		block.Leader = b.Rewards[0].Pubkey.String()
	}

	// Signature-only detail leaves Transactions empty.
	block.TransactionsCount = len(b.Transactions)
	if block.TransactionsCount == 0 {
		block.TransactionsCount = len(b.Signatures)
	}

	return block
}

// NormalizeTransaction converts a getTransaction result into a Transaction.
// Status is success only when meta is present and carries no error; a missing
// meta also means a zero fee. Signer is empty when the envelope can't be decoded.
func NormalizeTransaction(signature string, r *rpc.GetTransactionResult) Transaction {
	tx := Transaction{
		Signature:   signature,
		BlockNumber: r.Slot,
		Slot:        r.Slot,
		Status:      StatusFailed,
	}

	if r.BlockTime != nil {
		ts := int64(*r.BlockTime)
		tx.Timestamp = &ts
	}

	if r.Meta != nil {
		tx.Fee = r.Meta.Fee
		if r.Meta.Err == nil {
			tx.Status = StatusSuccess
		}
	}

	if payer, err := solana.FeePayer(r); err == nil {
		tx.Signer = payer.String()
	}

	return tx
}

// LamportsToSOL converts lamports to SOL.
func LamportsToSOL(lamports uint64) float64 {
	return float64(lamports) / LamportsPerSOL
}

// AddressType infers the kind of account from its on-chain record. A missing
// account is a wallet that has never been funded.
func AddressType(account *rpc.Account) string {
	switch {
	case account == nil:
		return AddressTypeWallet
	case account.Executable:
		return AddressTypeProgram
	case solana.IsTokenProgram(account.Owner):
		return AddressTypeTokenAccount
	default:
		return AddressTypeWallet
	}
}

// NormalizeAddress assembles AddressDetails. Tokens is never nil.
func NormalizeAddress(address string, lamports uint64, account *rpc.Account, holdings []solana.TokenHolding) AddressDetails {
	tokens := make([]TokenBalance, 0, len(holdings))
	for _, h := range holdings {
		tokens = append(tokens, TokenBalance{
			Mint:     h.Mint,
			Account:  h.Account,
			Amount:   h.Amount,
			Decimals: h.Decimals,
			UIAmount: h.UIAmount,
		})
	}

	return AddressDetails{
		Address:  address,
		Balance:  LamportsToSOL(lamports),
		Lamports: lamports,
		Type:     AddressType(account),
		Tokens:   tokens,
	}
}

// NormalizeToken converts a token supply into TokenInfo.
func NormalizeToken(mint string, supply *rpc.UiTokenAmount) TokenInfo {
	info := TokenInfo{
		Mint:     mint,
		Decimals: supply.Decimals,
		Supply:   supply.Amount,
	}
	switch {
	case supply.UiAmount != nil:
		info.UISupply = *supply.UiAmount
	case supply.UiAmountString != "":
		info.UISupply = parseFloat(supply.UiAmountString)
	default:
		info.UISupply = parseFloat(supply.Amount) / math.Pow10(int(supply.Decimals))
	}
	return info
}

// EpochProgress returns how far through the epoch the head is, as a
// percentage in [0, 100]. It is 0 when the epoch length is unknown.
func EpochProgress(slotIndex, slotsInEpoch uint64) float64 {
	if slotsInEpoch == 0 {
		return 0
	}
	progress := float64(slotIndex) / float64(slotsInEpoch) * 100
	return math.Max(0, math.Min(100, progress))
}

// TPS averages transactions per second over the given performance samples.
func TPS(samples []*rpc.GetRecentPerformanceSamplesResult) float64 {
	var txs, secs uint64
	for _, s := range samples {
		if s == nil {
			continue
		}
		txs += s.NumTransactions
		secs += uint64(s.SamplePeriodSecs)
	}
	if secs == 0 {
		return 0
	}
	return float64(txs) / float64(secs)
}

func parseFloat(s string) float64 {
	v, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return 0
	}
	return v
}
