package solana

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/brojonat/solexplorer/service/metrics"
	"github.com/gagliardetto/solana-go"
	"github.com/gagliardetto/solana-go/rpc"
	"golang.org/x/time/rate"
)

// RPCClient is an interface for the Solana RPC operations we need.
// This allows us to mock the RPC layer in tests without hitting real Solana nodes.
type RPCClient interface {
	GetSlot(ctx context.Context, commitment rpc.CommitmentType) (uint64, error)
	GetBlockHeight(ctx context.Context, commitment rpc.CommitmentType) (uint64, error)
	GetBlockWithOpts(ctx context.Context, slot uint64, opts *rpc.GetBlockOpts) (*rpc.GetBlockResult, error)
	GetBalance(ctx context.Context, account solana.PublicKey, commitment rpc.CommitmentType) (*rpc.GetBalanceResult, error)
	GetTransaction(ctx context.Context, signature solana.Signature, opts *rpc.GetTransactionOpts) (*rpc.GetTransactionResult, error)
	GetEpochInfo(ctx context.Context, commitment rpc.CommitmentType) (*rpc.GetEpochInfoResult, error)
	GetRecentPerformanceSamples(ctx context.Context, limit *uint) ([]*rpc.GetRecentPerformanceSamplesResult, error)
	GetTransactionCount(ctx context.Context, commitment rpc.CommitmentType) (uint64, error)
	GetAccountInfoWithOpts(ctx context.Context, account solana.PublicKey, opts *rpc.GetAccountInfoOpts) (*rpc.GetAccountInfoResult, error)
	GetTokenAccountsByOwner(
		ctx context.Context,
		owner solana.PublicKey,
		conf *rpc.GetTokenAccountsConfig,
		opts *rpc.GetTokenAccountsOpts,
	) (*rpc.GetTokenAccountsResult, error)
	GetTokenSupply(ctx context.Context, mint solana.PublicKey, commitment rpc.CommitmentType) (*rpc.GetTokenSupplyResult, error)
}

// Options tunes how the client talks to the upstream node.
type Options struct {
	Commitment  rpc.CommitmentType
	CallTimeout time.Duration
	Retry       *RetryPolicy
	Limiter     *rate.Limiter // nil means unlimited
}

// Client is the gateway to the single upstream RPC node. Every call is
// bounded by a per-call timeout, retried per the retry policy, and returns
// errors classified into the package's error taxonomy.
type Client struct {
	rpc         RPCClient
	logger      *slog.Logger
	metrics     *metrics.Metrics
	endpoint    string // RPC endpoint identifier for metrics (e.g., "mainnet", "devnet", rpc host)
	commitment  rpc.CommitmentType
	callTimeout time.Duration
	retry       RetryPolicy
	limiter     *rate.Limiter
}

// NewClient creates a new Solana client.
// The endpoint parameter is used for metrics labeling (e.g., "mainnet", "devnet", or RPC hostname).
// If metrics is nil, no metrics will be recorded.
func NewClient(rpcClient RPCClient, endpoint string, opts Options, m *metrics.Metrics, logger *slog.Logger) *Client {
	if opts.Commitment == "" {
		opts.Commitment = rpc.CommitmentFinalized
	}
	if opts.CallTimeout <= 0 {
		opts.CallTimeout = 5 * time.Second
	}
	retry := DefaultRetryPolicy()
	if opts.Retry != nil {
		retry = *opts.Retry
	}

	return &Client{
		rpc:         rpcClient,
		logger:      logger,
		metrics:     m,
		endpoint:    endpoint,
		commitment:  opts.Commitment,
		callTimeout: opts.CallTimeout,
		retry:       retry,
		limiter:     opts.Limiter,
	}
}

// ParseAddress validates a base58 account address without touching the network.
func ParseAddress(address string) (solana.PublicKey, error) {
	pk, err := solana.PublicKeyFromBase58(address)
	if err != nil {
		return solana.PublicKey{}, &Error{Kind: KindInvalidInput, Op: "ParseAddress", Err: err}
	}
	return pk, nil
}

// ParseSignature validates a base58 transaction signature without touching the network.
func ParseSignature(signature string) (solana.Signature, error) {
	sig, err := solana.SignatureFromBase58(signature)
	if err != nil {
		return solana.Signature{}, &Error{Kind: KindInvalidInput, Op: "ParseSignature", Err: err}
	}
	return sig, nil
}

// HeadSlot returns the most recent slot at the configured commitment.
func (c *Client) HeadSlot(ctx context.Context) (uint64, error) {
	return call(ctx, c, "GetSlot", func(ctx context.Context) (uint64, error) {
		return c.rpc.GetSlot(ctx, c.commitment)
	})
}

// BlockHeight returns the current block height.
func (c *Client) BlockHeight(ctx context.Context) (uint64, error) {
	return call(ctx, c, "GetBlockHeight", func(ctx context.Context) (uint64, error) {
		return c.rpc.GetBlockHeight(ctx, c.commitment)
	})
}

// Block fetches the block produced at slot with signatures and rewards.
// Skipped or not-yet-available slots yield ErrNotFound.
func (c *Client) Block(ctx context.Context, slot uint64) (*rpc.GetBlockResult, error) {
	rewards := true
	version := uint64(0)
	opts := &rpc.GetBlockOpts{
		TransactionDetails:             rpc.TransactionDetailsSignatures,
		Rewards:                        &rewards,
		Commitment:                     c.readCommitment(),
		MaxSupportedTransactionVersion: &version,
	}

	return call(ctx, c, "GetBlock", func(ctx context.Context) (*rpc.GetBlockResult, error) {
		out, err := c.rpc.GetBlockWithOpts(ctx, slot, opts)
		if err == nil && out == nil {
			return nil, rpc.ErrNotFound
		}
		return out, err
	})
}

// Balance returns the lamport balance of address.
func (c *Client) Balance(ctx context.Context, address string) (uint64, error) {
	pk, err := ParseAddress(address)
	if err != nil {
		return 0, err
	}

	return call(ctx, c, "GetBalance", func(ctx context.Context) (uint64, error) {
		out, err := c.rpc.GetBalance(ctx, pk, c.commitment)
		if err != nil {
			return 0, err
		}
		if out == nil {
			return 0, rpc.ErrNotFound
		}
		return out.Value, nil
	})
}

// Transaction fetches a transaction by signature. Versioned transactions are
// requested so the envelope can be decoded for its fee payer.
func (c *Client) Transaction(ctx context.Context, signature string) (*rpc.GetTransactionResult, error) {
	sig, err := ParseSignature(signature)
	if err != nil {
		return nil, err
	}

	version := uint64(0)
	opts := &rpc.GetTransactionOpts{
		Encoding:                       solana.EncodingBase64,
		Commitment:                     c.readCommitment(),
		MaxSupportedTransactionVersion: &version,
	}

	return call(ctx, c, "GetTransaction", func(ctx context.Context) (*rpc.GetTransactionResult, error) {
		out, err := c.rpc.GetTransaction(ctx, sig, opts)
		if err == nil && out == nil {
			return nil, rpc.ErrNotFound
		}
		return out, err
	})
}

// EpochInfo returns the current epoch and the position of the head within it.
func (c *Client) EpochInfo(ctx context.Context) (*rpc.GetEpochInfoResult, error) {
	return call(ctx, c, "GetEpochInfo", func(ctx context.Context) (*rpc.GetEpochInfoResult, error) {
		out, err := c.rpc.GetEpochInfo(ctx, c.commitment)
		if err == nil && out == nil {
			return nil, fmt.Errorf("empty epoch info: %w", ErrMalformed)
		}
		return out, err
	})
}

// PerformanceSamples returns up to limit recent per-minute performance samples.
func (c *Client) PerformanceSamples(ctx context.Context, limit uint) ([]*rpc.GetRecentPerformanceSamplesResult, error) {
	return call(ctx, c, "GetRecentPerformanceSamples", func(ctx context.Context) ([]*rpc.GetRecentPerformanceSamplesResult, error) {
		return c.rpc.GetRecentPerformanceSamples(ctx, &limit)
	})
}

// TransactionCount returns the node's total processed transaction count.
func (c *Client) TransactionCount(ctx context.Context) (uint64, error) {
	return call(ctx, c, "GetTransactionCount", func(ctx context.Context) (uint64, error) {
		return c.rpc.GetTransactionCount(ctx, c.commitment)
	})
}

// AccountInfo returns the account stored at address.
func (c *Client) AccountInfo(ctx context.Context, address string) (*rpc.Account, error) {
	pk, err := ParseAddress(address)
	if err != nil {
		return nil, err
	}

	opts := &rpc.GetAccountInfoOpts{
		Encoding:   solana.EncodingBase64,
		Commitment: c.commitment,
	}

	return call(ctx, c, "GetAccountInfo", func(ctx context.Context) (*rpc.Account, error) {
		out, err := c.rpc.GetAccountInfoWithOpts(ctx, pk, opts)
		if err != nil {
			return nil, err
		}
		if out == nil || out.Value == nil {
			return nil, rpc.ErrNotFound
		}
		return out.Value, nil
	})
}

// TokenAccounts lists the SPL Token and Token-2022 accounts owned by owner,
// with jsonParsed account data.
func (c *Client) TokenAccounts(ctx context.Context, owner string) ([]*rpc.TokenAccount, error) {
	pk, err := ParseAddress(owner)
	if err != nil {
		return nil, err
	}

	opts := &rpc.GetTokenAccountsOpts{
		Commitment: c.commitment,
		Encoding:   solana.EncodingJSONParsed,
	}

	var accounts []*rpc.TokenAccount
	for _, program := range []solana.PublicKey{TokenProgramID, Token2022ProgramID} {
		programID := program
		conf := &rpc.GetTokenAccountsConfig{ProgramId: &programID}

		out, err := call(ctx, c, "GetTokenAccountsByOwner", func(ctx context.Context) (*rpc.GetTokenAccountsResult, error) {
			return c.rpc.GetTokenAccountsByOwner(ctx, pk, conf, opts)
		})
		if err != nil {
			return nil, err
		}
		if out != nil {
			accounts = append(accounts, out.Value...)
		}
	}

	return accounts, nil
}

// TokenSupply returns the total supply of a token mint.
func (c *Client) TokenSupply(ctx context.Context, mint string) (*rpc.UiTokenAmount, error) {
	pk, err := ParseAddress(mint)
	if err != nil {
		return nil, err
	}

	return call(ctx, c, "GetTokenSupply", func(ctx context.Context) (*rpc.UiTokenAmount, error) {
		out, err := c.rpc.GetTokenSupply(ctx, pk, c.commitment)
		if err != nil {
			return nil, err
		}
		if out == nil || out.Value == nil {
			return nil, rpc.ErrNotFound
		}
		return out.Value, nil
	})
}

// readCommitment returns the commitment for getBlock and getTransaction,
// which reject "processed".
func (c *Client) readCommitment() rpc.CommitmentType {
	if c.commitment == rpc.CommitmentProcessed {
		return rpc.CommitmentConfirmed
	}
	return c.commitment
}

// call runs fn under the per-call timeout, classifies failures and retries
// them per the client's retry policy.
func call[T any](ctx context.Context, c *Client, method string, fn func(context.Context) (T, error)) (T, error) {
	var zero T

	for attempt := 0; ; attempt++ {
		if c.limiter != nil {
			if err := c.limiter.Wait(ctx); err != nil {
				return zero, &Error{Kind: KindUnavailable, Op: method, Err: err}
			}
		}

		callCtx, cancel := context.WithTimeout(ctx, c.callTimeout)
		start := time.Now()
		out, err := fn(callCtx)
		duration := time.Since(start).Seconds()
		cancel()

		if err == nil {
			c.recordCall(method, "success", duration)
			return out, nil
		}

		classified := classify(method, err)
		kind := KindOf(classified)
		c.recordCall(method, kind.String(), duration)

		if kind == KindRateLimited && c.metrics != nil {
			c.metrics.RecordRateLimitHit(c.endpoint)
		}

		if ctx.Err() != nil || !c.retry.ShouldRetry(attempt, classified) {
			if kind != KindNotFound && kind != KindInvalidInput {
				c.logger.WarnContext(ctx, "rpc call failed",
					"method", method,
					"kind", kind.String(),
					"attempts", attempt+1,
					"error", classified.Error(),
				)
			}
			return zero, classified
		}

		backoff := c.retry.Backoff(attempt, classified)
		c.logger.DebugContext(ctx, "retrying rpc call",
			"method", method,
			"kind", kind.String(),
			"attempt", attempt+1,
			"backoff_ms", backoff.Milliseconds(),
		)
		if c.metrics != nil {
			c.metrics.RecordRPCRetry(method, kind.String())
		}

		if err := c.retry.wait(ctx, backoff); err != nil {
			return zero, classified
		}
	}
}

func (c *Client) recordCall(method, status string, duration float64) {
	if c.metrics != nil {
		c.metrics.RecordRPCCall(method, status, c.endpoint, duration)
	}
}
