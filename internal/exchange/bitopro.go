package exchange

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"asset-tracker-go/internal/relay"
)

const bitoproBalancePath = "/accounts/balance"

type bitopro struct {
	chain   *relay.Chain
	baseURL string
	now     func() time.Time
}

type bitoproResponse struct {
	Error string `json:"error"`
	Data  []struct {
		Currency  string `json:"currency"`
		Amount    string `json:"amount"`
		Available string `json:"available"`
		Stake     string `json:"stake"`
	} `json:"data"`
}

// balances signs base64(JSON{"nonce": ms}) with HMAC-SHA384.
func (b *bitopro) balances(ctx context.Context, apiKey, apiSecret string) ([]Balance, error) {
	raw, err := json.Marshal(map[string]int64{"nonce": b.now().UnixMilli()})
	if err != nil {
		return nil, err
	}
	payload := base64.StdEncoding.EncodeToString(raw)

	req := relay.Request{
		Method: http.MethodGet,
		URL:    b.baseURL + bitoproBalancePath,
		Header: map[string]string{
			"X-BITOPRO-APIKEY":    apiKey,
			"X-BITOPRO-PAYLOAD":   payload,
			"X-BITOPRO-SIGNATURE": signSHA384(apiSecret, payload),
		},
	}

	body, err := b.chain.Fetch(ctx, req, json.Valid)
	if err != nil {
		return nil, err
	}

	var resp bitoproResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return nil, fmt.Errorf("failed to decode bitopro response: %w", err)
	}
	if resp.Error != "" {
		return nil, fmt.Errorf("%w: bitopro: %s", ErrVenueRejected, resp.Error)
	}

	out := make([]Balance, 0, len(resp.Data))
	for _, d := range resp.Data {
		out = append(out, Balance{Code: d.Currency, Amount: parseAmount(d.Amount)})
	}
	return out, nil
}
