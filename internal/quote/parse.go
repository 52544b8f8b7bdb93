package quote

import (
	"encoding/json"
	"strconv"
	"strings"
	"time"

	"github.com/PaesslerAG/jsonpath"
)

// Candle is one OHLC bar of a history series.
type Candle struct {
	Time   time.Time `json:"time"`
	Open   float64   `json:"open"`
	High   float64   `json:"high"`
	Low    float64   `json:"low"`
	Close  float64   `json:"close"`
	Volume float64   `json:"volume"`
}

// chartResponse is the general quote-chart upstream format.
type chartResponse struct {
	Chart struct {
		Result []struct {
			Meta struct {
				Symbol             string  `json:"symbol"`
				Currency           string  `json:"currency"`
				RegularMarketPrice float64 `json:"regularMarketPrice"`
			} `json:"meta"`
			Timestamp  []int64 `json:"timestamp"`
			Indicators struct {
				Quote []struct {
					Open   []*float64 `json:"open"`
					High   []*float64 `json:"high"`
					Low    []*float64 `json:"low"`
					Close  []*float64 `json:"close"`
					Volume []*float64 `json:"volume"`
				} `json:"quote"`
			} `json:"indicators"`
		} `json:"result"`
		Error *struct {
			Code        string `json:"code"`
			Description string `json:"description"`
		} `json:"error"`
	} `json:"chart"`
}

// twseQuoteFields lists the Taiwan exchange price fields in priority order:
// last trade, best bid, best ask, prior close.
var twseQuoteFields = []string{"z", "b", "a", "y"}

func decode(body []byte) (interface{}, bool) {
	var doc interface{}
	if err := json.Unmarshal(body, &doc); err != nil {
		return nil, false
	}
	return doc, true
}

func positive(v interface{}) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, n > 0
	case string:
		return parseQuoteField(n)
	}
	return 0, false
}

// ParseChartPrice extracts chart.result[0].meta.regularMarketPrice.
func ParseChartPrice(body []byte) (float64, bool) {
	doc, ok := decode(body)
	if !ok {
		return 0, false
	}
	v, err := jsonpath.Get("$.chart.result[0].meta.regularMarketPrice", doc)
	if err != nil {
		return 0, false
	}
	return positive(v)
}

// ParseTwsePrice extracts the first usable price of msgArray[0].
// Fields hold "-" until the first trade of the day, and bid/ask hold
// "_"-separated depth levels of which the first is the best.
func ParseTwsePrice(body []byte) (float64, bool) {
	doc, ok := decode(body)
	if !ok {
		return 0, false
	}
	v, err := jsonpath.Get("$.msgArray[0]", doc)
	if err != nil {
		return 0, false
	}
	msg, ok := v.(map[string]interface{})
	if !ok {
		return 0, false
	}
	for _, field := range twseQuoteFields {
		s, _ := msg[field].(string)
		if price, ok := parseQuoteField(s); ok {
			return price, true
		}
	}
	return 0, false
}

func parseQuoteField(s string) (float64, bool) {
	s = strings.TrimSpace(s)
	if s == "" || s == "-" {
		return 0, false
	}
	first, _, _ := strings.Cut(s, "_")
	price, err := strconv.ParseFloat(first, 64)
	if err != nil || price <= 0 {
		return 0, false
	}
	return price, true
}

// ParseFxRate extracts rates.<quote> from an exchange-rate API body.
func ParseFxRate(body []byte, quote string) (float64, bool) {
	doc, ok := decode(body)
	if !ok {
		return 0, false
	}
	v, err := jsonpath.Get("$.rates."+quote, doc)
	if err != nil {
		return 0, false
	}
	return positive(v)
}

// ParseCandles converts a chart body into bars, skipping points without a
// close. ok is false when the body carries no usable bar.
func ParseCandles(body []byte) ([]Candle, bool) {
	var resp chartResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return nil, false
	}
	if resp.Chart.Error != nil || len(resp.Chart.Result) == 0 {
		return nil, false
	}
	res := resp.Chart.Result[0]
	if len(res.Indicators.Quote) == 0 {
		return nil, false
	}
	q := res.Indicators.Quote[0]

	candles := make([]Candle, 0, len(res.Timestamp))
	for i, ts := range res.Timestamp {
		closePrice, ok := at(q.Close, i)
		if !ok {
			continue
		}
		c := Candle{Time: time.Unix(ts, 0).UTC(), Close: closePrice, Open: closePrice, High: closePrice, Low: closePrice}
		if v, ok := at(q.Open, i); ok {
			c.Open = v
		}
		if v, ok := at(q.High, i); ok {
			c.High = v
		}
		if v, ok := at(q.Low, i); ok {
			c.Low = v
		}
		if v, ok := at(q.Volume, i); ok {
			c.Volume = v
		}
		candles = append(candles, c)
	}
	return candles, len(candles) > 0
}

func at(series []*float64, i int) (float64, bool) {
	if i >= len(series) || series[i] == nil {
		return 0, false
	}
	return *series[i], true
}
