package explorer

import (
	"strconv"
	"strings"
)

// QueryType is the classified kind of a search query.
type QueryType string

const (
	QueryBlock       QueryType = "block"
	QueryTransaction QueryType = "transaction"
	QueryAddress     QueryType = "address"
	QueryUnknown     QueryType = "unknown"
)

// Base58 signatures encode 64 bytes in 87 or 88 characters; public keys
// encode 32 bytes in 32 to 44.
const (
	signatureMinLen = 87
	signatureMaxLen = 88
	addressMinLen   = 32
	addressMaxLen   = 44
)

// Classify decides what a query refers to, in order: a non-negative integer
// is a block number, a signature-length string is a transaction, an
// address-length string is an address. Classify never touches the network.
func Classify(q string) QueryType {
	q = trim(q)
	if q == "" {
		return QueryUnknown
	}

	if _, err := parseSlot(q); err == nil {
		return QueryBlock
	}

	switch n := len(q); {
	case n >= signatureMinLen && n <= signatureMaxLen:
		return QueryTransaction
	case n >= addressMinLen && n <= addressMaxLen:
		return QueryAddress
	}

	return QueryUnknown
}

func trim(q string) string {
	return strings.TrimSpace(q)
}

// parseSlot accepts one optional leading '+', so "+123" is block 123.
func parseSlot(q string) (uint64, error) {
	return strconv.ParseUint(strings.TrimPrefix(trim(q), "+"), 10, 64)
}
