package explorer

import (
	"encoding/json"
	"fmt"
)

// Block is a normalized block. BlockNumber equals Slot.
type Block struct {
	BlockNumber       uint64 `json:"block_number"`
	Slot              uint64 `json:"slot"`
	Timestamp         *int64 `json:"timestamp"`
	Leader            string `json:"leader"`
	TransactionsCount int    `json:"transactions_count"`
	Blockhash         string `json:"blockhash"`
	ParentSlot        uint64 `json:"parent_slot"`
	PreviousBlockhash string `json:"previous_blockhash"`
}

// Transaction status values.
const (
	StatusSuccess = "success"
	StatusFailed  = "failed"
)

// Transaction is a normalized transaction.
type Transaction struct {
	Signature   string `json:"signature"`
	BlockNumber uint64 `json:"block_number"`
	Slot        uint64 `json:"slot"`
	Timestamp   *int64 `json:"timestamp"`
	Fee         uint64 `json:"fee"`
	Status      string `json:"status"`
	Signer      string `json:"signer"`
}

// Address types.
const (
	AddressTypeWallet       = "wallet"
	AddressTypeProgram      = "program"
	AddressTypeTokenAccount = "token-account"
)

// AddressDetails summarizes an account.
type AddressDetails struct {
	Address          string         `json:"address"`
	Balance          float64        `json:"balance"`
	Lamports         uint64         `json:"lamports"`
	Type             string         `json:"type"`
	Tokens           []TokenBalance `json:"tokens"`
	TransactionCount uint64         `json:"transaction_count"`
}

// TokenBalance is one token holding of an address.
type TokenBalance struct {
	Mint     string  `json:"mint"`
	Account  string  `json:"account"`
	Amount   string  `json:"amount"`
	Decimals uint8   `json:"decimals"`
	UIAmount float64 `json:"ui_amount"`
}

// TokenInfo is the on-chain supply of a token mint.
type TokenInfo struct {
	Mint     string  `json:"mint"`
	Decimals uint8   `json:"decimals"`
	Supply   string  `json:"supply"`
	UISupply float64 `json:"ui_supply"`
}

// NetworkStats is a best-effort snapshot of cluster state.
type NetworkStats struct {
	Slot              uint64  `json:"slot"`
	BlockHeight       uint64  `json:"block_height"`
	TPS               float64 `json:"tps"`
	TotalTransactions uint64  `json:"total_transactions"`
	Epoch             uint64  `json:"epoch"`
	EpochProgress     float64 `json:"epoch_progress"`
}

// SearchResult is the routed result of a search query. Result is nil when
// nothing matched.
type SearchResult struct {
	Type   QueryType `json:"type"`
	Result any       `json:"result"`
}

// Page item keys.
const (
	KeyBlocks       = "blocks"
	KeyTransactions = "transactions"
)

// Page is the paged list envelope. It serializes as
// {"<Key>": [...], "total": n, "page": p, "limit": l}; Items is never null.
type Page[T any] struct {
	Key   string
	Items []T
	Total uint64
	Page  int
	Limit int
}

func (p Page[T]) MarshalJSON() ([]byte, error) {
	items := p.Items
	if items == nil {
		items = []T{}
	}
	return json.Marshal(map[string]any{
		p.Key:   items,
		"total": p.Total,
		"page":  p.Page,
		"limit": p.Limit,
	})
}

func (p *Page[T]) UnmarshalJSON(data []byte) error {
	var fields map[string]json.RawMessage
	if err := json.Unmarshal(data, &fields); err != nil {
		return err
	}

	for key, raw := range fields {
		var err error
		switch key {
		case "total":
			err = json.Unmarshal(raw, &p.Total)
		case "page":
			err = json.Unmarshal(raw, &p.Page)
		case "limit":
			err = json.Unmarshal(raw, &p.Limit)
		default:
			p.Key = key
			err = json.Unmarshal(raw, &p.Items)
		}
		if err != nil {
			return fmt.Errorf("decode page field %q: %w", key, err)
		}
	}

	if p.Items == nil {
		p.Items = []T{}
	}
	return nil
}
