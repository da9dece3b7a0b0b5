// Package explorer aggregates upstream RPC reads into the explorer's
// paged lists, entity lookups, network statistics and search.
package explorer

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/brojonat/solexplorer/service/fetch"
	"github.com/brojonat/solexplorer/service/metrics"
	"github.com/brojonat/solexplorer/service/solana"
	"github.com/gagliardetto/solana-go/rpc"
)

// ErrHeadUnavailable is returned by list and stats operations when the head
// slot cannot be read. Nothing useful can be served without it.
var ErrHeadUnavailable = errors.New("head slot unavailable")

// Gateway is the set of upstream reads the explorer depends on.
// *solana.Client implements it.
type Gateway interface {
	HeadSlot(ctx context.Context) (uint64, error)
	BlockHeight(ctx context.Context) (uint64, error)
	Block(ctx context.Context, slot uint64) (*rpc.GetBlockResult, error)
	Balance(ctx context.Context, address string) (uint64, error)
	Transaction(ctx context.Context, signature string) (*rpc.GetTransactionResult, error)
	EpochInfo(ctx context.Context) (*rpc.GetEpochInfoResult, error)
	PerformanceSamples(ctx context.Context, limit uint) ([]*rpc.GetRecentPerformanceSamplesResult, error)
	TransactionCount(ctx context.Context) (uint64, error)
	AccountInfo(ctx context.Context, address string) (*rpc.Account, error)
	TokenAccounts(ctx context.Context, owner string) ([]*rpc.TokenAccount, error)
	TokenSupply(ctx context.Context, mint string) (*rpc.UiTokenAmount, error)
}

// BlockCache stores finalized blocks, which never change once produced.
type BlockCache interface {
	GetBlock(ctx context.Context, slot uint64) (*Block, bool, error)
	SetBlock(ctx context.Context, block Block) error
}

// Config tunes the explorer service.
type Config struct {
	Paging Paging

	// PerformanceSamples is how many recent samples feed the TPS average.
	PerformanceSamples uint
}

// Service implements the explorer's read operations.
type Service struct {
	gateway Gateway
	pool    *fetch.Pool
	head    *HeadCache
	cache   BlockCache
	cfg     Config
	metrics *metrics.Metrics
	logger  *slog.Logger
}

// NewService creates the explorer service. cache may be nil.
// If metrics is nil, no metrics will be recorded.
func NewService(
	gateway Gateway,
	pool *fetch.Pool,
	head *HeadCache,
	cache BlockCache,
	cfg Config,
	m *metrics.Metrics,
	logger *slog.Logger,
) *Service {
	if cfg.PerformanceSamples == 0 {
		cfg.PerformanceSamples = 5
	}
	return &Service{
		gateway: gateway,
		pool:    pool,
		head:    head,
		cache:   cache,
		cfg:     cfg,
		metrics: m,
		logger:  logger,
	}
}

// Paging returns the service's page size settings.
func (s *Service) Paging() Paging {
	return s.cfg.Paging
}

// HeadSlot returns the memoized head slot.
func (s *Service) HeadSlot(ctx context.Context) (uint64, error) {
	return s.head.Get(ctx)
}

// ListBlocks returns one page of the most recent blocks, newest first.
// Skipped slots and blocks that fail to load are left out, so a page may
// hold fewer than limit blocks. Total is the head slot.
func (s *Service) ListBlocks(ctx context.Context, page, limit int) (*Page[Block], error) {
	page, limit = s.cfg.Paging.Normalize(page, limit)

	head, err := s.head.Get(ctx)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrHeadUnavailable, err)
	}

	slots := PlanSlots(head, page, limit)
	tasks := make([]fetch.Task[Block], len(slots))
	for i, slot := range slots {
		tasks[i] = func(ctx context.Context) (Block, error) {
			return s.loadBlock(ctx, slot)
		}
	}

	outcomes := fetch.Run(ctx, s.pool, tasks)
	blocks, notFound, failed := fetch.Values(outcomes)

	if failed > 0 {
		firstErr := fetch.FirstError(outcomes)
		if fetch.ErrCancelled(firstErr) && ctx.Err() != nil {
			s.logger.DebugContext(ctx, "request ended before blocks loaded",
				"head", head,
				"page", page,
				"failed", failed,
			)
		} else {
			s.logger.WarnContext(ctx, "dropped blocks that failed to load",
				"head", head,
				"page", page,
				"failed", failed,
				"first_error", firstErr,
			)
		}
	}
	if s.metrics != nil {
		s.metrics.RecordItemsDropped("block", "not_found", notFound)
		s.metrics.RecordItemsDropped("block", "failed", failed)
	}

	return &Page[Block]{
		Key:   KeyBlocks,
		Items: blocks,
		Total: head,
		Page:  page,
		Limit: limit,
	}, nil
}

// GetBlock returns the block at slot.
func (s *Service) GetBlock(ctx context.Context, slot uint64) (*Block, error) {
	block, err := fetch.Do(ctx, s.pool, func(ctx context.Context) (Block, error) {
		return s.loadBlock(ctx, slot)
	})
	if err != nil {
		return nil, err
	}
	return &block, nil
}

// loadBlock reads a block through the cache when one is configured.
func (s *Service) loadBlock(ctx context.Context, slot uint64) (Block, error) {
	if s.cache != nil {
		cached, ok, err := s.cache.GetBlock(ctx, slot)
		switch {
		case err != nil:
			s.recordCache("error")
			s.logger.DebugContext(ctx, "block cache read failed", "slot", slot, "error", err)
		case ok:
			s.recordCache("hit")
			return *cached, nil
		default:
			s.recordCache("miss")
		}
	}

	raw, err := s.gateway.Block(ctx, slot)
	if err != nil {
		return Block{}, err
	}
	block := NormalizeBlock(slot, raw)

	if s.cache != nil {
		if err := s.cache.SetBlock(ctx, block); err != nil {
			s.logger.DebugContext(ctx, "block cache write failed", "slot", slot, "error", err)
		}
	}
	return block, nil
}

// GetTransaction returns the transaction with the given signature.
func (s *Service) GetTransaction(ctx context.Context, signature string) (*Transaction, error) {
	if _, err := solana.ParseSignature(signature); err != nil {
		return nil, err
	}

	raw, err := fetch.Do(ctx, s.pool, func(ctx context.Context) (*rpc.GetTransactionResult, error) {
		return s.gateway.Transaction(ctx, signature)
	})
	if err != nil {
		return nil, err
	}

	tx := NormalizeTransaction(signature, raw)
	return &tx, nil
}

// ListTransactions returns the global transaction list. Listing requires a
// chain index, which this service does not keep, so the page is always empty.
func (s *Service) ListTransactions(ctx context.Context, page, limit int) *Page[Transaction] {
	page, limit = s.cfg.Paging.Normalize(page, limit)
	return &Page[Transaction]{Key: KeyTransactions, Items: []Transaction{}, Page: page, Limit: limit}
}

// ListAddressTransactions returns an address's transaction list. Like
// ListTransactions it is always empty.
func (s *Service) ListAddressTransactions(ctx context.Context, address string, page, limit int) *Page[Transaction] {
	return s.ListTransactions(ctx, page, limit)
}

type addressPart struct {
	lamports uint64
	account  *rpc.Account
	tokens   []*rpc.TokenAccount
}

// GetAddress returns the balance, inferred type and token holdings of an
// address. The balance is required; account info and token holdings are
// best-effort and fall back to a wallet with no tokens.
func (s *Service) GetAddress(ctx context.Context, address string) (*AddressDetails, error) {
	if _, err := solana.ParseAddress(address); err != nil {
		return nil, err
	}

	outcomes := fetch.Run(ctx, s.pool, []fetch.Task[addressPart]{
		func(ctx context.Context) (addressPart, error) {
			lamports, err := s.gateway.Balance(ctx, address)
			return addressPart{lamports: lamports}, err
		},
		func(ctx context.Context) (addressPart, error) {
			account, err := s.gateway.AccountInfo(ctx, address)
			return addressPart{account: account}, err
		},
		func(ctx context.Context) (addressPart, error) {
			tokens, err := s.gateway.TokenAccounts(ctx, address)
			return addressPart{tokens: tokens}, err
		},
	})

	balance, account, tokens := outcomes[0], outcomes[1], outcomes[2]
	if balance.Kind != fetch.OK {
		return nil, balance.Err
	}
	if account.Kind == fetch.Failed {
		s.logger.DebugContext(ctx, "account info unavailable", "address", address, "error", account.Err)
	}

	var holdings []solana.TokenHolding
	if tokens.Kind == fetch.OK {
		for _, acc := range tokens.Value.tokens {
			h, err := solana.ParseTokenAccount(acc)
			if err != nil {
				s.logger.DebugContext(ctx, "skipping unparseable token account", "address", address, "error", err)
				continue
			}
			holdings = append(holdings, h)
		}
	} else {
		s.logger.DebugContext(ctx, "token accounts unavailable", "address", address, "error", tokens.Err)
	}

	details := NormalizeAddress(address, balance.Value.lamports, account.Value.account, holdings)
	return &details, nil
}

// GetToken returns the supply and decimals of a token mint.
func (s *Service) GetToken(ctx context.Context, mint string) (*TokenInfo, error) {
	if _, err := solana.ParseAddress(mint); err != nil {
		return nil, err
	}

	supply, err := fetch.Do(ctx, s.pool, func(ctx context.Context) (*rpc.UiTokenAmount, error) {
		return s.gateway.TokenSupply(ctx, mint)
	})
	if err != nil {
		return nil, err
	}

	info := NormalizeToken(mint, supply)
	return &info, nil
}

type statsPart struct {
	height  uint64
	epoch   *rpc.GetEpochInfoResult
	samples []*rpc.GetRecentPerformanceSamplesResult
	txCount uint64
}

// NetworkStats returns a best-effort snapshot of the cluster. Only the head
// slot is required; every other field is zero when its read fails.
func (s *Service) NetworkStats(ctx context.Context) (*NetworkStats, error) {
	head, err := s.head.Get(ctx)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrHeadUnavailable, err)
	}

	outcomes := fetch.Run(ctx, s.pool, []fetch.Task[statsPart]{
		func(ctx context.Context) (statsPart, error) {
			height, err := s.gateway.BlockHeight(ctx)
			return statsPart{height: height}, err
		},
		func(ctx context.Context) (statsPart, error) {
			epoch, err := s.gateway.EpochInfo(ctx)
			return statsPart{epoch: epoch}, err
		},
		func(ctx context.Context) (statsPart, error) {
			samples, err := s.gateway.PerformanceSamples(ctx, s.cfg.PerformanceSamples)
			return statsPart{samples: samples}, err
		},
		func(ctx context.Context) (statsPart, error) {
			count, err := s.gateway.TransactionCount(ctx)
			return statsPart{txCount: count}, err
		},
	})

	for _, o := range outcomes {
		if o.Kind != fetch.OK {
			s.logger.DebugContext(ctx, "network stat unavailable", "error", o.Err)
		}
	}

	stats := &NetworkStats{
		Slot:              head,
		BlockHeight:       outcomes[0].Value.height,
		TPS:               TPS(outcomes[2].Value.samples),
		TotalTransactions: outcomes[3].Value.txCount,
	}
	if epoch := outcomes[1].Value.epoch; outcomes[1].Kind == fetch.OK && epoch != nil {
		stats.Epoch = epoch.Epoch
		stats.EpochProgress = EpochProgress(epoch.SlotIndex, epoch.SlotsInEpoch)
	}

	return stats, nil
}

// Search classifies q and looks up the matching entity. Result is nil when
// the query is unrecognized or the entity can't be found.
func (s *Service) Search(ctx context.Context, q string) *SearchResult {
	queryType := Classify(q)
	if s.metrics != nil {
		s.metrics.RecordSearch(string(queryType))
	}

	result := &SearchResult{Type: queryType}
	var err error

	switch queryType {
	case QueryBlock:
		var block *Block
		if slot, perr := parseSlot(q); perr == nil {
			block, err = s.GetBlock(ctx, slot)
			if block != nil {
				result.Result = block
			}
		}
	case QueryTransaction:
		var tx *Transaction
		tx, err = s.GetTransaction(ctx, trim(q))
		if tx != nil {
			result.Result = tx
		}
	case QueryAddress:
		var details *AddressDetails
		details, err = s.GetAddress(ctx, trim(q))
		if details != nil {
			result.Result = details
		}
	}

	if err != nil {
		s.logLookupError(ctx, "search lookup failed", err, "type", string(queryType))
	}
	return result
}

func (s *Service) logLookupError(ctx context.Context, msg string, err error, args ...any) {
	if errors.Is(err, solana.ErrNotFound) || errors.Is(err, solana.ErrInvalidInput) {
		return
	}
	s.logger.WarnContext(ctx, msg, append(args, "error", err)...)
}

func (s *Service) recordCache(result string) {
	if s.metrics != nil {
		s.metrics.RecordBlockCacheLookup(result)
	}
}
