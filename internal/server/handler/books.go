package handler

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"strings"

	"github.com/alanyoungcy/predexchange/internal/domain"
)

// BookSource yields summaries of the live books.
type BookSource interface {
	Books(n int) []domain.BookSummary
}

// BooksHandler serves the live book registry and last known mids.
type BooksHandler struct {
	books    BookSource
	cache    domain.BookCache
	midCache domain.MidCache
	midStore domain.LastMidStore
	logger   *slog.Logger
}

// NewBooksHandler creates a BooksHandler. The caches and store may be nil.
func NewBooksHandler(books BookSource, cache domain.BookCache, midCache domain.MidCache, midStore domain.LastMidStore, logger *slog.Logger) *BooksHandler {
	return &BooksHandler{books: books, cache: cache, midCache: midCache, midStore: midStore, logger: logger}
}

type booksResponse struct {
	Books        []domain.BookSummary `json:"books"`
	Count        int                  `json:"count"`
	Crossed      int                  `json:"crossed"`
	Inconsistent int                  `json:"inconsistent"`
}

// ListBooks returns a point-in-time copy of the registry with top-depth
// levels, optionally narrowed to one market.
// GET /api/books?depth=10&market=0x...
func (h *BooksHandler) ListBooks(w http.ResponseWriter, r *http.Request) {
	depth := queryInt(r, "depth", 10, 100)
	market := strings.TrimSpace(r.URL.Query().Get("market"))

	resp := booksResponse{Books: []domain.BookSummary{}}
	for _, b := range h.books.Books(depth) {
		if market != "" && domain.CanonicalMarketID(b.Key.MarketID) != domain.CanonicalMarketID(market) {
			continue
		}
		resp.Books = append(resp.Books, b)
		if b.Crossed {
			resp.Crossed++
		}
		if b.Inconsistent {
			resp.Inconsistent++
		}
	}
	resp.Count = len(resp.Books)
	writeJSON(w, http.StatusOK, resp)
}

// GetBook returns one book from the live registry, or from the summary
// cache when this process does not hold it.
// GET /api/books/{market}/{asset}
func (h *BooksHandler) GetBook(w http.ResponseWriter, r *http.Request) {
	key := domain.BookKey{MarketID: r.PathValue("market"), AssetID: r.PathValue("asset")}
	depth := queryInt(r, "depth", 10, 100)
	for _, b := range h.books.Books(depth) {
		if b.Key.AssetID == key.AssetID && domain.CanonicalMarketID(b.Key.MarketID) == domain.CanonicalMarketID(key.MarketID) {
			writeJSON(w, http.StatusOK, b)
			return
		}
	}
	if h.cache == nil {
		writeError(w, http.StatusNotFound, "book not found")
		return
	}
	b, err := h.cache.GetSummary(r.Context(), key)
	switch {
	case errors.Is(err, domain.ErrNotFound):
		writeError(w, http.StatusNotFound, "book not found")
	case err != nil:
		h.logger.ErrorContext(r.Context(), "handler: get book failed", slog.String("key", key.String()), slog.String("error", err.Error()))
		writeError(w, http.StatusInternalServerError, "failed to get book")
	default:
		writeJSON(w, http.StatusOK, b)
	}
}

// GetMid returns the last known mid of one book, from the cache first and
// the database second.
// GET /api/mids/{market}/{asset}
func (h *BooksHandler) GetMid(w http.ResponseWriter, r *http.Request) {
	key := domain.BookKey{MarketID: r.PathValue("market"), AssetID: r.PathValue("asset")}
	if key.MarketID == "" || key.AssetID == "" {
		writeError(w, http.StatusBadRequest, "market and asset are required")
		return
	}

	mid, err := h.lookupMid(r.Context(), key)
	switch {
	case errors.Is(err, domain.ErrNotFound):
		writeError(w, http.StatusNotFound, "no mid recorded")
	case err != nil:
		h.logger.ErrorContext(r.Context(), "handler: get mid failed", slog.String("key", key.String()), slog.String("error", err.Error()))
		writeError(w, http.StatusInternalServerError, "failed to get mid")
	default:
		writeJSON(w, http.StatusOK, map[string]any{
			"market_id":  mid.Key.MarketID,
			"asset_id":   mid.Key.AssetID,
			"mid":        mid.Mid,
			"updated_at": mid.UpdatedAt,
		})
	}
}

func (h *BooksHandler) lookupMid(ctx context.Context, key domain.BookKey) (domain.LastMid, error) {
	if h.midCache != nil {
		m, err := h.midCache.GetMid(ctx, key)
		if err == nil {
			return m, nil
		}
		if !errors.Is(err, domain.ErrNotFound) {
			h.logger.WarnContext(ctx, "mid cache read failed", slog.String("error", err.Error()))
		}
	}
	if h.midStore != nil {
		return h.midStore.GetMid(ctx, key)
	}
	return domain.LastMid{}, domain.ErrNotFound
}
