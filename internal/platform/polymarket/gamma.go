package polymarket

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/alanyoungcy/predexchange/internal/domain"
)

// GammaClient is the REST client for the Polymarket Gamma API, which
// provides market discovery and metadata.
type GammaClient struct {
	baseURL    string
	httpClient *http.Client
	now        func() time.Time
}

// NewGammaClient creates a new Gamma API client.
//
// baseURL is the Gamma API root, e.g. "https://gamma-api.polymarket.com".
func NewGammaClient(baseURL string) *GammaClient {
	return &GammaClient{
		baseURL: strings.TrimRight(baseURL, "/"),
		httpClient: &http.Client{
			Timeout: 30 * time.Second,
		},
		now: time.Now,
	}
}

// FetchMarkets returns up to limit open markets. Closed or explicitly
// inactive rows are skipped.
func (g *GammaClient) FetchMarkets(ctx context.Context, limit int) ([]domain.Market, error) {
	params := url.Values{}
	params.Set("limit", strconv.Itoa(limit))
	params.Set("closed", "false")

	body, err := g.doGet(ctx, "/markets?"+params.Encode())
	if err != nil {
		return nil, fmt.Errorf("polymarket/gamma: get markets: %w", err)
	}

	apiMarkets, err := decodeMarkets(body)
	if err != nil {
		return nil, fmt.Errorf("polymarket/gamma: decode markets: %w", err)
	}

	now := g.now()
	markets := make([]domain.Market, 0, len(apiMarkets))
	for i := range apiMarkets {
		m := &apiMarkets[i]
		if bool(m.Closed) || (m.Active != nil && !bool(*m.Active)) {
			continue
		}
		dm := m.ToDomainMarket()
		dm.UpdatedAt = now
		markets = append(markets, dm)
	}
	return markets, nil
}

// decodeMarkets accepts a bare array or an object wrapping it in "data".
func decodeMarkets(body []byte) ([]APIMarket, error) {
	body = bytes.TrimSpace(body)
	if len(body) > 0 && body[0] == '{' {
		var wrapped struct {
			Data []APIMarket `json:"data"`
		}
		if err := json.Unmarshal(body, &wrapped); err != nil {
			return nil, err
		}
		return wrapped.Data, nil
	}
	var out []APIMarket
	if err := json.Unmarshal(body, &out); err != nil {
		return nil, err
	}
	return out, nil
}

// ToDomainMarket converts a Gamma market. The market id is the canonical
// condition id, falling back to the Gamma id.
func (m *APIMarket) ToDomainMarket() domain.Market {
	conditionID := m.ConditionID
	if conditionID == "" {
		conditionID = m.ConditionIDAlt
	}
	conditionID = domain.CanonicalMarketID(conditionID)

	id := conditionID
	if id == "" {
		id = string(m.ID)
	}
	question := m.Question
	if question == "" {
		question = m.Title
	}
	volume := float64(m.Volume24hr)
	if volume == 0 {
		volume = float64(m.Volume)
	}
	liquidity := float64(m.Liquidity)
	if liquidity == 0 {
		liquidity = float64(m.LiquidityNum)
	}

	return domain.Market{
		ID:          id,
		Venue:       Venue,
		ConditionID: conditionID,
		Question:    question,
		Category:    m.Category,
		Slug:        m.Slug,
		Volume24h:   volume,
		Liquidity:   liquidity,
		Active:      (m.Active == nil || bool(*m.Active)) && !bool(m.Closed),
		Outcomes:    buildOutcomes(m.Outcomes, m.OutcomePrices, m.ClobTokenIDs),
	}
}

// buildOutcomes zips names with prices and token ids; missing entries are
// zero values.
func buildOutcomes(names, prices, tokenIDs []string) []domain.Outcome {
	out := make([]domain.Outcome, len(names))
	for i, name := range names {
		o := domain.Outcome{Name: name}
		if i < len(prices) {
			o.Price, _ = strconv.ParseFloat(strings.TrimSpace(prices[i]), 64)
		}
		if i < len(tokenIDs) {
			o.TokenID = tokenIDs[i]
		}
		out[i] = o
	}
	return out
}

// SelectTopMarkets applies the tracking filters and returns pinned markets
// first, then the rest by 24h volume and liquidity, both descending, until
// TrackCount is reached. Pinned markets that pass the filters are always kept.
func SelectTopMarkets(markets []domain.Market, opts domain.DiscoveryOpts) []domain.Market {
	allow := toSet(opts.CategoryAllowlist)
	deny := toSet(opts.CategoryDenylist)

	filtered := make([]domain.Market, 0, len(markets))
	for _, m := range markets {
		if !m.Active || m.Volume24h < opts.MinVolume24h || m.Liquidity < opts.MinLiquidity {
			continue
		}
		if m.Category != "" {
			if _, denied := deny[m.Category]; denied {
				continue
			}
			if _, allowed := allow[m.Category]; len(allow) > 0 && !allowed {
				continue
			}
		}
		filtered = append(filtered, m)
	}
	sort.SliceStable(filtered, func(i, j int) bool {
		if filtered[i].Volume24h != filtered[j].Volume24h {
			return filtered[i].Volume24h > filtered[j].Volume24h
		}
		return filtered[i].Liquidity > filtered[j].Liquidity
	})

	selected := make([]domain.Market, 0, opts.TrackCount)
	seen := make(map[string]struct{})
	for _, pin := range opts.Pinned {
		for _, m := range filtered {
			if m.ID != pin {
				continue
			}
			if _, dup := seen[m.ID]; !dup {
				selected = append(selected, m)
				seen[m.ID] = struct{}{}
			}
			break
		}
	}
	for _, m := range filtered {
		if len(selected) >= opts.TrackCount {
			break
		}
		if _, dup := seen[m.ID]; dup {
			continue
		}
		selected = append(selected, m)
		seen[m.ID] = struct{}{}
	}
	return selected
}

func toSet(items []string) map[string]struct{} {
	out := make(map[string]struct{}, len(items))
	for _, it := range items {
		out[it] = struct{}{}
	}
	return out
}

// doGet sends an unauthenticated GET request to the Gamma API.
func (g *GammaClient) doGet(ctx context.Context, path string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, g.baseURL+path, nil)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := g.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("http request: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read response: %w", err)
	}

	if err := checkHTTPStatus(resp.StatusCode, body); err != nil {
		return nil, err
	}

	return body, nil
}

func checkHTTPStatus(statusCode int, body []byte) error {
	if statusCode >= 200 && statusCode < 300 {
		return nil
	}
	if statusCode == http.StatusNotFound {
		return fmt.Errorf("%w: %s", domain.ErrNotFound, body)
	}
	return fmt.Errorf("HTTP %d: %s", statusCode, body)
}
