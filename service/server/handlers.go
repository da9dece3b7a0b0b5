package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/brojonat/solexplorer/service/solana"
)

const upstreamUnavailable = "upstream unavailable"

// handleListBlocks returns a handler that lists the most recent blocks.
// GET /api/blocks?page=N&limit=N
func handleListBlocks(svc Explorer, logger *slog.Logger) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		page, limit, err := parsePaging(r)
		if err != nil {
			writeError(w, err.Error(), http.StatusBadRequest)
			return
		}

		blocks, err := svc.ListBlocks(r.Context(), page, limit)
		if err != nil {
			logger.ErrorContext(r.Context(), "failed to list blocks", "page", page, "limit", limit, "error", err)
			writeError(w, upstreamUnavailable, http.StatusBadGateway)
			return
		}

		logger.DebugContext(r.Context(), "blocks listed", "page", blocks.Page, "count", len(blocks.Items))
		writeJSON(w, blocks, http.StatusOK)
	})
}

// handleGetBlock returns a handler that looks up a block by slot.
// GET /api/blocks/{number}
func handleGetBlock(svc Explorer, logger *slog.Logger) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		slot, err := strconv.ParseUint(r.PathValue("number"), 10, 64)
		if err != nil {
			logger.DebugContext(r.Context(), "invalid block number", "number", r.PathValue("number"))
			writeNull(w)
			return
		}

		block, err := svc.GetBlock(r.Context(), slot)
		writeEntity(r.Context(), w, logger, "block", block, err)
	})
}

// handleListTransactions returns a handler for the global transaction list.
// GET /api/transactions?page=N&limit=N
func handleListTransactions(svc Explorer, logger *slog.Logger) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		page, limit, err := parsePaging(r)
		if err != nil {
			writeError(w, err.Error(), http.StatusBadRequest)
			return
		}
		writeJSON(w, svc.ListTransactions(r.Context(), page, limit), http.StatusOK)
	})
}

// handleGetTransaction returns a handler that looks up a transaction by signature.
// GET /api/transactions/{signature}
func handleGetTransaction(svc Explorer, logger *slog.Logger) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		tx, err := svc.GetTransaction(r.Context(), r.PathValue("signature"))
		writeEntity(r.Context(), w, logger, "transaction", tx, err)
	})
}

// handleGetAddress returns a handler that looks up an account.
// GET /api/addresses/{address}
func handleGetAddress(svc Explorer, logger *slog.Logger) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		details, err := svc.GetAddress(r.Context(), r.PathValue("address"))
		writeEntity(r.Context(), w, logger, "address", details, err)
	})
}

// handleListAddressTransactions returns a handler for an address's transaction list.
// GET /api/addresses/{address}/transactions?page=N&limit=N
func handleListAddressTransactions(svc Explorer, logger *slog.Logger) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		page, limit, err := parsePaging(r)
		if err != nil {
			writeError(w, err.Error(), http.StatusBadRequest)
			return
		}
		writeJSON(w, svc.ListAddressTransactions(r.Context(), r.PathValue("address"), page, limit), http.StatusOK)
	})
}

// handleGetToken returns a handler that looks up a token mint.
// GET /api/tokens/{mint}
func handleGetToken(svc Explorer, logger *slog.Logger) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		token, err := svc.GetToken(r.Context(), r.PathValue("mint"))
		writeEntity(r.Context(), w, logger, "token", token, err)
	})
}

// handleNetworkStats returns a handler for the network summary.
// GET /api/network/stats
func handleNetworkStats(svc Explorer, logger *slog.Logger) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		stats, err := svc.NetworkStats(r.Context())
		if err != nil {
			logger.ErrorContext(r.Context(), "failed to get network stats", "error", err)
			writeError(w, upstreamUnavailable, http.StatusBadGateway)
			return
		}
		writeJSON(w, stats, http.StatusOK)
	})
}

// handleSearch returns a handler that classifies and resolves a query.
// GET /api/search?q=QUERY
func handleSearch(svc Explorer, logger *slog.Logger) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		q := r.URL.Query().Get("q")
		result := svc.Search(r.Context(), q)
		logger.DebugContext(r.Context(), "search", "type", result.Type, "found", result.Result != nil)
		writeJSON(w, result, http.StatusOK)
	})
}

// handleHealth reports liveness.
// GET /health
func handleHealth(now func() time.Time) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, map[string]string{
			"status":    "ok",
			"timestamp": now().UTC().Format(time.RFC3339Nano),
			"service":   serviceName,
		}, http.StatusOK)
	})
}

// parsePaging reads the optional page and limit query parameters. Zero means
// the parameter was not supplied.
func parsePaging(r *http.Request) (page, limit int, err error) {
	query := r.URL.Query()

	if page, err = parsePositive(query.Get("page"), "page"); err != nil {
		return 0, 0, err
	}
	if limit, err = parsePositive(query.Get("limit"), "limit"); err != nil {
		return 0, 0, err
	}
	return page, limit, nil
}

func parsePositive(s, name string) (int, error) {
	if s == "" {
		return 0, nil
	}
	n, err := strconv.Atoi(s)
	if err != nil {
		return 0, errorf("invalid %s parameter: must be an integer", name)
	}
	if n < 1 {
		return 0, errorf("%s must be at least 1", name)
	}
	return n, nil
}

// writeEntity writes v, or null when the lookup failed. Not-found and bad
// input are expected and only logged at debug.
func writeEntity[T any](ctx context.Context, w http.ResponseWriter, logger *slog.Logger, entity string, v *T, err error) {
	if err != nil {
		if errors.Is(err, solana.ErrNotFound) || errors.Is(err, solana.ErrInvalidInput) {
			logger.DebugContext(ctx, "entity not found", "entity", entity, "error", err)
		} else {
			logger.WarnContext(ctx, "entity lookup failed", "entity", entity, "error", err)
		}
		writeNull(w)
		return
	}
	if v == nil {
		writeNull(w)
		return
	}
	writeJSON(w, v, http.StatusOK)
}

// writeJSON writes a JSON response.
func writeJSON(w http.ResponseWriter, data any, statusCode int) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	json.NewEncoder(w).Encode(data)
}

func writeNull(w http.ResponseWriter) {
	writeJSON(w, nil, http.StatusOK)
}

// writeError writes a JSON error response.
func writeError(w http.ResponseWriter, message string, statusCode int) {
	writeJSON(w, map[string]string{
		"error": message,
	}, statusCode)
}

// errorf is a helper to format validation error strings.
func errorf(format string, args ...any) error {
	return &validationError{msg: strings.TrimSpace(fmt.Sprintf(format, args...))}
}

type validationError struct {
	msg string
}

func (e *validationError) Error() string {
	return e.msg
}
