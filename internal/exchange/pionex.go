package exchange

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"asset-tracker-go/internal/relay"
)

const pionexBalancesPath = "/api/v1/account/balances"

type pionex struct {
	chain   *relay.Chain
	baseURL string
	now     func() time.Time
}

type pionexResponse struct {
	Result  bool   `json:"result"`
	Code    string `json:"code"`
	Message string `json:"message"`
	Data    struct {
		Balances []struct {
			Coin   string `json:"coin"`
			Free   string `json:"free"`
			Frozen string `json:"frozen"`
		} `json:"balances"`
	} `json:"data"`
}

// balances signs "GET" + path + "?" + query with HMAC-SHA256.
func (p *pionex) balances(ctx context.Context, apiKey, apiSecret string) ([]Balance, error) {
	query := "timestamp=" + strconv.FormatInt(p.now().UnixMilli(), 10)
	message := http.MethodGet + pionexBalancesPath + "?" + query

	req := relay.Request{
		Method: http.MethodGet,
		URL:    p.baseURL + pionexBalancesPath + "?" + query,
		Header: map[string]string{
			"PIONEX-KEY":       apiKey,
			"PIONEX-SIGNATURE": signSHA256(apiSecret, message),
		},
	}

	body, err := p.chain.Fetch(ctx, req, json.Valid)
	if err != nil {
		return nil, err
	}

	var resp pionexResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return nil, fmt.Errorf("failed to decode pionex response: %w", err)
	}
	if !resp.Result {
		msg := resp.Message
		if msg == "" {
			msg = resp.Code
		}
		return nil, fmt.Errorf("%w: pionex: %s", ErrVenueRejected, msg)
	}

	out := make([]Balance, 0, 2*len(resp.Data.Balances))
	for _, b := range resp.Data.Balances {
		out = append(out,
			Balance{Code: b.Coin, Amount: parseAmount(b.Free)},
			Balance{Code: b.Coin, Amount: parseAmount(b.Frozen)},
		)
	}
	return out, nil
}
