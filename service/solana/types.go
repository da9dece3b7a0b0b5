package solana

// TokenHolding is one SPL token balance held by an account.
type TokenHolding struct {
	Account  string
	Mint     string
	Amount   string // raw base units
	Decimals uint8
	UIAmount float64
}
