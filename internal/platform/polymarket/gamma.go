package polymarket

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/alanyoungcy/crossarb/internal/domain"
)

// GammaClient is the REST client for the Polymarket Gamma API. It looks up
// token ids for configured pairs and reads market resolutions.
type GammaClient struct {
	baseURL    string
	httpClient *http.Client
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
	}
}

// GetMarket looks a market up by condition id (0x-prefixed) or slug.
func (g *GammaClient) GetMarket(ctx context.Context, ref string) (APIMarket, error) {
	params := url.Values{}
	if strings.HasPrefix(ref, "0x") {
		params.Set("condition_ids", ref)
	} else {
		params.Set("slug", ref)
	}

	body, err := g.doGet(ctx, "/markets?"+params.Encode())
	if err != nil {
		return APIMarket{}, fmt.Errorf("polymarket/gamma: get market %s: %w", ref, err)
	}

	var markets []APIMarket
	if err := json.Unmarshal(body, &markets); err != nil {
		return APIMarket{}, fmt.Errorf("polymarket/gamma: decode markets: %w", err)
	}
	if len(markets) == 0 {
		return APIMarket{}, fmt.Errorf("polymarket/gamma: %w: %s", domain.ErrNotFound, ref)
	}

	return markets[0], nil
}

// GetMarketResolution reports whether the market is closed and which
// outcome won.
func (g *GammaClient) GetMarketResolution(ctx context.Context, ref string) (Resolution, error) {
	m, err := g.GetMarket(ctx, ref)
	if err != nil {
		return Resolution{}, err
	}
	return m.Resolution(), nil
}

// ResolveTokens fills in missing YES/NO token ids on pairs from Gamma.
// Pairs that already carry both ids are left untouched.
func (g *GammaClient) ResolveTokens(ctx context.Context, pairs []domain.MarketPair) ([]domain.MarketPair, error) {
	out := make([]domain.MarketPair, len(pairs))
	copy(out, pairs)

	for i := range out {
		p := &out[i]
		if p.PolyYesToken != "" && p.PolyNoToken != "" {
			continue
		}
		if p.PolyMarket == "" {
			return nil, fmt.Errorf("polymarket/gamma: pair %s has no market reference", p.ID)
		}
		m, err := g.GetMarket(ctx, p.PolyMarket)
		if err != nil {
			return nil, fmt.Errorf("polymarket/gamma: pair %s: %w", p.ID, err)
		}
		yes, no, err := m.OutcomeTokens()
		if err != nil {
			return nil, fmt.Errorf("polymarket/gamma: pair %s: %w", p.ID, err)
		}
		p.PolyYesToken, p.PolyNoToken = yes, no
	}
	return out, nil
}

// --------------------------------------------------------------------------
// Internal helpers
// --------------------------------------------------------------------------

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

// checkHTTPStatus maps non-2xx HTTP status codes to errors.
func checkHTTPStatus(statusCode int, body []byte) error {
	if statusCode >= 200 && statusCode < 300 {
		return nil
	}

	var apiErr struct {
		Error string `json:"error"`
	}
	_ = json.Unmarshal(body, &apiErr)

	switch statusCode {
	case http.StatusNotFound:
		return fmt.Errorf("%w: %s", domain.ErrNotFound, apiErr.Error)
	case http.StatusUnauthorized, http.StatusForbidden:
		return fmt.Errorf("%w: %s", domain.ErrUnauthorized, apiErr.Error)
	default:
		return fmt.Errorf("HTTP %d: %s", statusCode, apiErr.Error)
	}
}
