package relay

import (
	"context"
	"fmt"
	"net/http"
	"net/url"

	"asset-tracker-go/internal/config"
	"github.com/go-resty/resty/v2"
)

// Request describes one upstream call independent of the path it travels.
type Request struct {
	Method string
	URL    string
	Header map[string]string
}

// Path is one way of reaching an upstream: directly or through a relay.
type Path interface {
	Name() string
	Do(ctx context.Context, client *resty.Client, req Request) (*resty.Response, error)
}

// Direct calls the upstream without any relay.
type Direct struct{}

func (Direct) Name() string { return "direct" }

func (Direct) Do(ctx context.Context, client *resty.Client, req Request) (*resty.Response, error) {
	return client.R().
		SetContext(ctx).
		SetHeaders(req.Header).
		Execute(method(req), req.URL)
}

// Prefix relays by appending the escaped upstream URL to a relay URL,
// e.g. "https://corsproxy.io/?" + url.QueryEscape(target).
type Prefix struct {
	Label string
	URL   string
}

func (p Prefix) Name() string { return p.Label }

func (p Prefix) Do(ctx context.Context, client *resty.Client, req Request) (*resty.Response, error) {
	return client.R().
		SetContext(ctx).
		SetHeaders(req.Header).
		Execute(method(req), p.URL+url.QueryEscape(req.URL))
}

// Worker relays through a self-hosted proxy that accepts
// POST {"url", "method", "headers"} and replays the call upstream.
type Worker struct {
	Label string
	URL   string
}

type workerBody struct {
	URL     string            `json:"url"`
	Method  string            `json:"method"`
	Headers map[string]string `json:"headers,omitempty"`
}

func (w Worker) Name() string { return w.Label }

func (w Worker) Do(ctx context.Context, client *resty.Client, req Request) (*resty.Response, error) {
	return client.R().
		SetContext(ctx).
		SetHeaders(req.Header).
		SetHeader("Content-Type", "application/json").
		SetBody(workerBody{URL: req.URL, Method: method(req), Headers: req.Header}).
		Post(w.URL)
}

func method(req Request) string {
	if req.Method == "" {
		return http.MethodGet
	}
	return req.Method
}

// PathsFromConfig builds the ordered path list described by cfg.
func PathsFromConfig(cfg []config.Proxy) ([]Path, error) {
	paths := make([]Path, 0, len(cfg))
	for _, p := range cfg {
		switch p.Kind {
		case "direct":
			paths = append(paths, Direct{})
		case "prefix":
			paths = append(paths, Prefix{Label: p.Name, URL: p.URL})
		case "worker":
			paths = append(paths, Worker{Label: p.Name, URL: p.URL})
		default:
			return nil, fmt.Errorf("unknown proxy kind %q for %s", p.Kind, p.Name)
		}
	}
	return paths, nil
}
