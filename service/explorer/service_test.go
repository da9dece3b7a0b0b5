package explorer

import (
	"bytes"
	"context"
	"errors"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/brojonat/solexplorer/service/fetch"
	"github.com/brojonat/solexplorer/service/solana"
	"github.com/gagliardetto/solana-go/rpc"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeGateway implements Gateway for testing.
// It's behavior-focused: we set what it should return, not verify call sequences.
type fakeGateway struct {
	mu sync.Mutex

	head    uint64
	headErr error

	blocks    map[uint64]*rpc.GetBlockResult
	blockErrs map[uint64]error
	blockHits map[uint64]int

	balance    uint64
	balanceErr error

	account    *rpc.Account
	accountErr error

	tokens    []*rpc.TokenAccount
	tokensErr error

	transaction    *rpc.GetTransactionResult
	transactionErr error

	height    uint64
	heightErr error

	epoch    *rpc.GetEpochInfoResult
	epochErr error

	samples    []*rpc.GetRecentPerformanceSamplesResult
	samplesErr error

	txCount    uint64
	txCountErr error

	supply    *rpc.UiTokenAmount
	supplyErr error
}

func (g *fakeGateway) HeadSlot(ctx context.Context) (uint64, error) { return g.head, g.headErr }

func (g *fakeGateway) BlockHeight(ctx context.Context) (uint64, error) { return g.height, g.heightErr }

func (g *fakeGateway) Block(ctx context.Context, slot uint64) (*rpc.GetBlockResult, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.blockHits == nil {
		g.blockHits = map[uint64]int{}
	}
	g.blockHits[slot]++
	if err, ok := g.blockErrs[slot]; ok {
		return nil, err
	}
	if b, ok := g.blocks[slot]; ok {
		return b, nil
	}
	return nil, &solana.Error{Kind: solana.KindNotFound, Op: "GetBlock", Err: errors.New("slot skipped")}
}

func (g *fakeGateway) Balance(ctx context.Context, address string) (uint64, error) {
	return g.balance, g.balanceErr
}

func (g *fakeGateway) Transaction(ctx context.Context, signature string) (*rpc.GetTransactionResult, error) {
	return g.transaction, g.transactionErr
}

func (g *fakeGateway) EpochInfo(ctx context.Context) (*rpc.GetEpochInfoResult, error) {
	return g.epoch, g.epochErr
}

func (g *fakeGateway) PerformanceSamples(ctx context.Context, limit uint) ([]*rpc.GetRecentPerformanceSamplesResult, error) {
	return g.samples, g.samplesErr
}

func (g *fakeGateway) TransactionCount(ctx context.Context) (uint64, error) {
	return g.txCount, g.txCountErr
}

func (g *fakeGateway) AccountInfo(ctx context.Context, address string) (*rpc.Account, error) {
	return g.account, g.accountErr
}

func (g *fakeGateway) TokenAccounts(ctx context.Context, owner string) ([]*rpc.TokenAccount, error) {
	return g.tokens, g.tokensErr
}

func (g *fakeGateway) TokenSupply(ctx context.Context, mint string) (*rpc.UiTokenAmount, error) {
	return g.supply, g.supplyErr
}

// memoryBlockCache is an in-memory BlockCache.
type memoryBlockCache struct {
	mu     sync.Mutex
	blocks map[uint64]Block
}

func (c *memoryBlockCache) GetBlock(ctx context.Context, slot uint64) (*Block, bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	b, ok := c.blocks[slot]
	if !ok {
		return nil, false, nil
	}
	return &b, true, nil
}

func (c *memoryBlockCache) SetBlock(ctx context.Context, block Block) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.blocks == nil {
		c.blocks = map[uint64]Block{}
	}
	c.blocks[block.Slot] = block
	return nil
}

func isNotFound(err error) bool { return errors.Is(err, solana.ErrNotFound) }

func newTestService(gw *fakeGateway, cache BlockCache) *Service {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	pool := fetch.NewPool(4, isNotFound, nil)
	head := NewHeadCache(gw.HeadSlot, 0, nil)
	return NewService(gw, pool, head, cache, Config{Paging: Paging{DefaultLimit: 20, MaxLimit: 100}}, nil, logger)
}

func blocksAt(slots ...uint64) map[uint64]*rpc.GetBlockResult {
	out := make(map[uint64]*rpc.GetBlockResult, len(slots))
	for _, s := range slots {
		out[s] = rawBlock(s-1, nil, testLeader)
	}
	return out
}

func slotsOf(blocks []Block) []uint64 {
	out := make([]uint64, len(blocks))
	for i, b := range blocks {
		out[i] = b.Slot
	}
	return out
}

func TestListBlocks_DropsSkippedSlots(t *testing.T) {
	// Slot 999 is skipped upstream
	gw := &fakeGateway{head: 1000, blocks: blocksAt(1000, 998)}
	svc := newTestService(gw, nil)

	page, err := svc.ListBlocks(context.Background(), 1, 3)
	require.NoError(t, err)

	assert.Equal(t, []uint64{1000, 998}, slotsOf(page.Items))
	assert.Equal(t, uint64(1000), page.Total)
	assert.Equal(t, 1, page.Page)
	assert.Equal(t, 3, page.Limit)
	assert.Equal(t, KeyBlocks, page.Key)
}

func TestListBlocks_DropsFailedBlocksWithoutPlaceholders(t *testing.T) {
	gw := &fakeGateway{
		head:      50,
		blocks:    blocksAt(50, 49, 48),
		blockErrs: map[uint64]error{49: &solana.Error{Kind: solana.KindUnavailable, Op: "GetBlock", Err: errors.New("timeout")}},
	}
	svc := newTestService(gw, nil)

	page, err := svc.ListBlocks(context.Background(), 1, 3)
	require.NoError(t, err)
	assert.Equal(t, []uint64{50, 48}, slotsOf(page.Items))
	for _, b := range page.Items {
		assert.NotEmpty(t, b.Blockhash, "every returned block came from a successful read")
	}
}

// cancellingGateway ends the request as soon as the first block is fetched.
type cancellingGateway struct {
	*fakeGateway
	cancel context.CancelFunc
}

func (g *cancellingGateway) Block(ctx context.Context, slot uint64) (*rpc.GetBlockResult, error) {
	g.cancel()
	<-ctx.Done()
	return nil, ctx.Err()
}

func TestListBlocks_CancelledRequestIsNotWarned(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	var logs bytes.Buffer
	logger := slog.New(slog.NewTextHandler(&logs, &slog.HandlerOptions{Level: slog.LevelDebug}))
	gw := &cancellingGateway{fakeGateway: &fakeGateway{head: 10}, cancel: cancel}
	svc := NewService(gw, fetch.NewPool(2, isNotFound, nil), NewHeadCache(gw.HeadSlot, 0, nil), nil,
		Config{Paging: Paging{DefaultLimit: 20, MaxLimit: 100}}, nil, logger)

	page, err := svc.ListBlocks(ctx, 1, 3)
	require.NoError(t, err)
	assert.Empty(t, page.Items)
	assert.Contains(t, logs.String(), "request ended before blocks loaded")
	assert.NotContains(t, logs.String(), "dropped blocks that failed to load")
}

func TestListBlocks_SecondPage(t *testing.T) {
	gw := &fakeGateway{head: 10, blocks: blocksAt(10, 9, 8, 7, 6, 5)}
	svc := newTestService(gw, nil)

	page, err := svc.ListBlocks(context.Background(), 2, 3)
	require.NoError(t, err)
	assert.Equal(t, []uint64{7, 6, 5}, slotsOf(page.Items))
}

func TestListBlocks_ClampsLimitAndEchoesEffectiveValues(t *testing.T) {
	gw := &fakeGateway{head: 3, blocks: blocksAt(3, 2, 1)}
	svc := newTestService(gw, nil)

	page, err := svc.ListBlocks(context.Background(), 0, 500)
	require.NoError(t, err)
	assert.Equal(t, 1, page.Page)
	assert.Equal(t, 100, page.Limit)
	assert.Equal(t, []uint64{3, 2, 1}, slotsOf(page.Items), "slot 0 missing upstream is dropped")
}

func TestListBlocks_HeadFailure(t *testing.T) {
	gw := &fakeGateway{headErr: &solana.Error{Kind: solana.KindUnavailable, Op: "GetSlot", Err: errors.New("down")}}
	svc := newTestService(gw, nil)

	page, err := svc.ListBlocks(context.Background(), 1, 5)
	require.Error(t, err)
	assert.Nil(t, page)
	assert.ErrorIs(t, err, ErrHeadUnavailable)
	assert.ErrorIs(t, err, solana.ErrUpstreamUnavailable)
}

func TestListBlocks_Idempotent(t *testing.T) {
	gw := &fakeGateway{head: 100, blocks: blocksAt(100, 98, 97)}
	svc := newTestService(gw, nil)

	first, err := svc.ListBlocks(context.Background(), 1, 5)
	require.NoError(t, err)
	second, err := svc.ListBlocks(context.Background(), 1, 5)
	require.NoError(t, err)

	assert.Equal(t, first.Items, second.Items)
}

func TestListBlocks_UsesBlockCache(t *testing.T) {
	gw := &fakeGateway{head: 20, blocks: blocksAt(20, 19)}
	cache := &memoryBlockCache{}
	svc := newTestService(gw, cache)

	_, err := svc.ListBlocks(context.Background(), 1, 2)
	require.NoError(t, err)
	_, err = svc.ListBlocks(context.Background(), 1, 2)
	require.NoError(t, err)

	assert.Equal(t, 1, gw.blockHits[20])
	assert.Equal(t, 1, gw.blockHits[19])
}

func TestGetBlock(t *testing.T) {
	gw := &fakeGateway{blocks: blocksAt(77)}
	svc := newTestService(gw, nil)

	block, err := svc.GetBlock(context.Background(), 77)
	require.NoError(t, err)
	assert.Equal(t, uint64(77), block.BlockNumber)
	assert.Equal(t, testLeader, block.Leader)

	missing, err := svc.GetBlock(context.Background(), 78)
	assert.Nil(t, missing)
	assert.ErrorIs(t, err, solana.ErrNotFound)
}

func TestGetTransaction(t *testing.T) {
	gw := &fakeGateway{transaction: &rpc.GetTransactionResult{Slot: 9, Meta: &rpc.TransactionMeta{Fee: 5000}}}
	svc := newTestService(gw, nil)

	tx, err := svc.GetTransaction(context.Background(), testSignature)
	require.NoError(t, err)
	assert.Equal(t, StatusSuccess, tx.Status)
	assert.Equal(t, uint64(5000), tx.Fee)

	_, err = svc.GetTransaction(context.Background(), "not-a-signature")
	assert.ErrorIs(t, err, solana.ErrInvalidInput)
}

func TestGetAddress(t *testing.T) {
	gw := &fakeGateway{
		balance: 2_500_000_000,
		account: &rpc.Account{Executable: true},
	}
	svc := newTestService(gw, nil)

	details, err := svc.GetAddress(context.Background(), testAddress)
	require.NoError(t, err)
	assert.Equal(t, 2.5, details.Balance)
	assert.Equal(t, AddressTypeProgram, details.Type)
	assert.NotNil(t, details.Tokens)
}

func TestGetAddress_BestEffortExtras(t *testing.T) {
	gw := &fakeGateway{
		balance:    1_000_000_000,
		accountErr: &solana.Error{Kind: solana.KindNotFound, Op: "GetAccountInfo", Err: rpc.ErrNotFound},
		tokensErr:  &solana.Error{Kind: solana.KindUnavailable, Op: "GetTokenAccountsByOwner", Err: errors.New("timeout")},
	}
	svc := newTestService(gw, nil)

	details, err := svc.GetAddress(context.Background(), testAddress)
	require.NoError(t, err)
	assert.Equal(t, 1.0, details.Balance)
	assert.Equal(t, AddressTypeWallet, details.Type)
	assert.Empty(t, details.Tokens)
}

func TestGetAddress_BalanceRequired(t *testing.T) {
	gw := &fakeGateway{balanceErr: &solana.Error{Kind: solana.KindUnavailable, Op: "GetBalance", Err: errors.New("down")}}
	svc := newTestService(gw, nil)

	details, err := svc.GetAddress(context.Background(), testAddress)
	assert.Nil(t, details)
	assert.Error(t, err)
}

func TestGetAddress_InvalidAddress(t *testing.T) {
	svc := newTestService(&fakeGateway{}, nil)

	details, err := svc.GetAddress(context.Background(), "0OIl")
	assert.Nil(t, details)
	assert.ErrorIs(t, err, solana.ErrInvalidInput)
}

func TestGetToken(t *testing.T) {
	gw := &fakeGateway{supply: &rpc.UiTokenAmount{Amount: "5000", Decimals: 3, UiAmountString: "5"}}
	svc := newTestService(gw, nil)

	info, err := svc.GetToken(context.Background(), testAddress)
	require.NoError(t, err)
	assert.Equal(t, "5000", info.Supply)
	assert.Equal(t, uint8(3), info.Decimals)
	assert.Equal(t, 5.0, info.UISupply)
}

func TestNetworkStats(t *testing.T) {
	gw := &fakeGateway{
		head:    1000,
		height:  900,
		epoch:   &rpc.GetEpochInfoResult{Epoch: 600, SlotIndex: 108_000, SlotsInEpoch: 432_000},
		samples: []*rpc.GetRecentPerformanceSamplesResult{{NumTransactions: 150_000, SamplePeriodSecs: 60}},
		txCount: 123_456,
	}
	svc := newTestService(gw, nil)

	stats, err := svc.NetworkStats(context.Background())
	require.NoError(t, err)
	assert.Equal(t, &NetworkStats{
		Slot:              1000,
		BlockHeight:       900,
		TPS:               2500,
		TotalTransactions: 123_456,
		Epoch:             600,
		EpochProgress:     25,
	}, stats)
}

func TestNetworkStats_EpochUnavailable(t *testing.T) {
	gw := &fakeGateway{
		head:      1000,
		epochErr:  errors.New("epoch info down"),
		heightErr: errors.New("height down"),
	}
	svc := newTestService(gw, nil)

	stats, err := svc.NetworkStats(context.Background())
	require.NoError(t, err)
	assert.Equal(t, uint64(1000), stats.Slot)
	assert.Equal(t, 0.0, stats.EpochProgress)
	assert.Equal(t, uint64(0), stats.Epoch)
	assert.Equal(t, uint64(0), stats.BlockHeight)
}

func TestNetworkStats_HeadFailure(t *testing.T) {
	svc := newTestService(&fakeGateway{headErr: errors.New("down")}, nil)

	_, err := svc.NetworkStats(context.Background())
	assert.ErrorIs(t, err, ErrHeadUnavailable)
}

func TestListTransactions_AlwaysEmpty(t *testing.T) {
	svc := newTestService(&fakeGateway{}, nil)

	page := svc.ListTransactions(context.Background(), 2, 10)
	assert.Empty(t, page.Items)
	assert.NotNil(t, page.Items)
	assert.Equal(t, 2, page.Page)
	assert.Equal(t, 10, page.Limit)
	assert.Equal(t, KeyTransactions, page.Key)

	addrPage := svc.ListAddressTransactions(context.Background(), testAddress, 0, 0)
	assert.Empty(t, addrPage.Items)
	assert.Equal(t, 20, addrPage.Limit)
}

func TestSearch(t *testing.T) {
	gw := &fakeGateway{
		blocks:      blocksAt(12345),
		transaction: &rpc.GetTransactionResult{Slot: 1},
		balance:     LamportsPerSOL,
	}
	svc := newTestService(gw, nil)

	tests := []struct {
		name     string
		query    string
		wantType QueryType
		wantNil  bool
	}{
		{"block", "12345", QueryBlock, false},
		{"block with plus sign", "+12345", QueryBlock, false},
		{"missing block", "54321", QueryBlock, true},
		{"transaction", testSignature, QueryTransaction, false},
		{"address", testAddress, QueryAddress, false},
		{"unknown", "hello", QueryUnknown, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			res := svc.Search(context.Background(), tt.query)
			assert.Equal(t, tt.wantType, res.Type)
			if tt.wantNil {
				assert.Nil(t, res.Result)
			} else {
				assert.NotNil(t, res.Result)
			}
		})
	}
}

func TestSearch_UnknownMakesNoUpstreamCalls(t *testing.T) {
	gw := &fakeGateway{}
	svc := newTestService(gw, nil)

	res := svc.Search(context.Background(), "?")
	assert.Equal(t, QueryUnknown, res.Type)
	assert.Empty(t, gw.blockHits)
}

func TestListBlocks_CancelledRequest(t *testing.T) {
	gw := &fakeGateway{head: 100, blocks: blocksAt(100, 99)}
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	pool := fetch.NewPool(1, isNotFound, nil)
	head := NewHeadCache(gw.HeadSlot, time.Minute, nil)
	svc := NewService(gw, pool, head, nil, Config{Paging: Paging{DefaultLimit: 20, MaxLimit: 100}}, nil, logger)

	// Warm the head cache so the cancelled request reaches the pool.
	_, err := head.Get(context.Background())
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	page, err := svc.ListBlocks(ctx, 1, 2)
	require.NoError(t, err)
	assert.Empty(t, page.Items)
}
