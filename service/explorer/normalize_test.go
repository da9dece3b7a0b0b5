package explorer

import (
	"bytes"
	"encoding/json"
	"testing"

	"github.com/brojonat/solexplorer/service/solana"
	solanago "github.com/gagliardetto/solana-go"
	"github.com/gagliardetto/solana-go/rpc"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const (
	testAddress   = "11111111111111111111111111111111"
	testLeader    = "So11111111111111111111111111111111111111112"
	testSignature = "5j7s6NiJS3JAkvgkoc18WVAsiSaci2pxB2A6ueCJP4tprA2TFg9wSyTLeYouxPBJEMzJinENTkpA52YStRW5Dia7"
)

func rawBlock(parent uint64, blockTime *int64, rewards ...string) *rpc.GetBlockResult {
	b := &rpc.GetBlockResult{
		Blockhash:         solanago.HashFromBytes(bytes.Repeat([]byte{1}, 32)),
		PreviousBlockhash: solanago.HashFromBytes(bytes.Repeat([]byte{2}, 32)),
		ParentSlot:        parent,
		Signatures: []solanago.Signature{
			solanago.MustSignatureFromBase58(testSignature),
			solanago.MustSignatureFromBase58("2TgM4N8qCMqLvfR8dxqTQgKygPNzT5KQkN5b5sT7eZPEkdxyLTXGnNQB3j7KG4DPFg5Qez5yNJBQRQ5r7DDnFfjG"),
		},
	}
	if blockTime != nil {
		ts := solanago.UnixTimeSeconds(*blockTime)
		b.BlockTime = &ts
	}
	for _, r := range rewards {
		b.Rewards = append(b.Rewards, rpc.BlockReward{Pubkey: solanago.MustPublicKeyFromBase58(r)})
	}
	return b
}

func TestNormalizeBlock(t *testing.T) {
	ts := int64(1_700_000_000)
	raw := rawBlock(99, &ts, testLeader, testAddress)

	block := NormalizeBlock(100, raw)

	assert.Equal(t, uint64(100), block.BlockNumber)
	assert.Equal(t, uint64(100), block.Slot)
	require.NotNil(t, block.Timestamp)
	assert.Equal(t, ts, *block.Timestamp)
	assert.Equal(t, testLeader, block.Leader, "leader is the first reward's pubkey")
	assert.Equal(t, 2, block.TransactionsCount)
	assert.Equal(t, raw.Blockhash.String(), block.Blockhash)
	assert.Equal(t, uint64(99), block.ParentSlot)
	assert.Equal(t, raw.PreviousBlockhash.String(), block.PreviousBlockhash)
}

func TestNormalizeBlock_NoRewardsNoTime(t *testing.T) {
	block := NormalizeBlock(5, rawBlock(4, nil))

	assert.Empty(t, block.Leader)
	assert.Nil(t, block.Timestamp)

	data, err := json.Marshal(block)
	require.NoError(t, err)
	assert.Contains(t, string(data), `"timestamp":null`)
}

func TestNormalizeTransaction(t *testing.T) {
	ts := solanago.UnixTimeSeconds(1_700_000_123)

	tests := []struct {
		name       string
		meta       *rpc.TransactionMeta
		wantStatus string
		wantFee    uint64
	}{
		{"success", &rpc.TransactionMeta{Fee: 5000}, StatusSuccess, 5000},
		{"failed", &rpc.TransactionMeta{Fee: 5000, Err: map[string]any{"InstructionError": []any{0, "Custom"}}}, StatusFailed, 5000},
		{"missing meta", nil, StatusFailed, 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			raw := &rpc.GetTransactionResult{Slot: 321, BlockTime: &ts, Meta: tt.meta}

			tx := NormalizeTransaction(testSignature, raw)

			assert.Equal(t, testSignature, tx.Signature)
			assert.Equal(t, uint64(321), tx.BlockNumber)
			assert.Equal(t, uint64(321), tx.Slot)
			require.NotNil(t, tx.Timestamp)
			assert.Equal(t, int64(1_700_000_123), *tx.Timestamp)
			assert.Equal(t, tt.wantStatus, tx.Status)
			assert.Equal(t, tt.wantFee, tx.Fee)
			assert.Empty(t, tx.Signer, "no envelope means no signer")
		})
	}
}

func TestLamportsToSOL(t *testing.T) {
	assert.Equal(t, 2.5, LamportsToSOL(2_500_000_000))
	assert.Equal(t, 0.0, LamportsToSOL(0))
	assert.Equal(t, 1e-9, LamportsToSOL(1))
}

func TestAddressType(t *testing.T) {
	assert.Equal(t, AddressTypeWallet, AddressType(nil))
	assert.Equal(t, AddressTypeProgram, AddressType(&rpc.Account{Executable: true}))
	assert.Equal(t, AddressTypeTokenAccount, AddressType(&rpc.Account{Owner: solana.TokenProgramID}))
	assert.Equal(t, AddressTypeTokenAccount, AddressType(&rpc.Account{Owner: solana.Token2022ProgramID}))
	assert.Equal(t, AddressTypeWallet, AddressType(&rpc.Account{Owner: solanago.MustPublicKeyFromBase58(testAddress)}))
}

func TestNormalizeAddress(t *testing.T) {
	details := NormalizeAddress(testAddress, 2_500_000_000, nil, nil)

	assert.Equal(t, testAddress, details.Address)
	assert.Equal(t, 2.5, details.Balance)
	assert.Equal(t, uint64(2_500_000_000), details.Lamports)
	assert.Equal(t, AddressTypeWallet, details.Type)
	assert.NotNil(t, details.Tokens)
	assert.Empty(t, details.Tokens)
	assert.Equal(t, uint64(0), details.TransactionCount)

	data, err := json.Marshal(details)
	require.NoError(t, err)
	assert.Contains(t, string(data), `"tokens":[]`)
}

func TestNormalizeAddress_WithHoldings(t *testing.T) {
	holdings := []solana.TokenHolding{
		{Account: testLeader, Mint: "EPjFWdd5AufqSSqeM2qN1xzybapC8G4wEGGkZwyTDt1v", Amount: "1500000", Decimals: 6, UIAmount: 1.5},
	}

	details := NormalizeAddress(testAddress, 0, nil, holdings)

	require.Len(t, details.Tokens, 1)
	assert.Equal(t, TokenBalance{
		Mint:     "EPjFWdd5AufqSSqeM2qN1xzybapC8G4wEGGkZwyTDt1v",
		Account:  testLeader,
		Amount:   "1500000",
		Decimals: 6,
		UIAmount: 1.5,
	}, details.Tokens[0])
}

func TestNormalizeToken(t *testing.T) {
	ui := 1234.5
	assert.Equal(t, 1234.5, NormalizeToken(testAddress, &rpc.UiTokenAmount{Amount: "1234500000", Decimals: 6, UiAmount: &ui}).UISupply)
	assert.Equal(t, 2.5, NormalizeToken(testAddress, &rpc.UiTokenAmount{Amount: "250", Decimals: 2, UiAmountString: "2.5"}).UISupply)
	assert.Equal(t, 2.5, NormalizeToken(testAddress, &rpc.UiTokenAmount{Amount: "250", Decimals: 2}).UISupply)
}

func TestEpochProgress(t *testing.T) {
	assert.Equal(t, 50.0, EpochProgress(216_000, 432_000))
	assert.Equal(t, 0.0, EpochProgress(10, 0))
	assert.Equal(t, 100.0, EpochProgress(500, 400), "clamped to 100")
	assert.Equal(t, 0.0, EpochProgress(0, 432_000))
}

func TestTPS(t *testing.T) {
	samples := []*rpc.GetRecentPerformanceSamplesResult{
		{NumTransactions: 120_000, SamplePeriodSecs: 60},
		{NumTransactions: 180_000, SamplePeriodSecs: 60},
		nil,
	}
	assert.Equal(t, 2500.0, TPS(samples))
	assert.Equal(t, 0.0, TPS(nil))
}
