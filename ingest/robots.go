package ingest

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"sync"

	"github.com/temoto/robotstxt"
)

// RobotsPolicy checks URLs against each host's robots.txt, cached per host
type RobotsPolicy struct {
	client    *http.Client
	userAgent string
	logger    *slog.Logger

	mu    sync.Mutex
	hosts map[string]*robotstxt.Group
}

// NewRobotsPolicy creates a policy that identifies as userAgent
func NewRobotsPolicy(client *http.Client, userAgent string, logger *slog.Logger) *RobotsPolicy {
	if client == nil {
		client = newHTTPClient()
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &RobotsPolicy{
		client:    client,
		userAgent: userAgent,
		logger:    logger,
		hosts:     map[string]*robotstxt.Group{},
	}
}

// Allowed reports whether u may be fetched. An unreachable robots.txt allows everything.
func (p *RobotsPolicy) Allowed(ctx context.Context, u *url.URL) bool {
	group := p.group(ctx, u)
	if group == nil {
		return true
	}

	path := u.EscapedPath()
	if path == "" {
		path = "/"
	}
	return group.Test(path)
}

// group returns the rules for u's host. Only definitive answers are cached:
// a parsed 2xx body or a 4xx, which allows everything. Transport errors and
// 5xx responses are retried on the next call.
func (p *RobotsPolicy) group(ctx context.Context, u *url.URL) *robotstxt.Group {
	key := u.Scheme + "://" + u.Host

	p.mu.Lock()
	group, ok := p.hosts[key]
	p.mu.Unlock()
	if ok {
		return group
	}

	group, cacheable, err := p.fetch(ctx, key)
	if err != nil {
		p.logger.Warn("failed to load robots.txt, allowing all", "host", u.Host, "error", err)
	}
	if !cacheable {
		return group
	}

	p.mu.Lock()
	p.hosts[key] = group
	p.mu.Unlock()
	return group
}

func (p *RobotsPolicy) fetch(ctx context.Context, origin string) (*robotstxt.Group, bool, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, origin+"/robots.txt", nil)
	if err != nil {
		return nil, false, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("User-Agent", p.userAgent)

	resp, err := p.client.Do(req)
	if err != nil {
		return nil, false, fmt.Errorf("failed to fetch robots.txt: %w", err)
	}
	defer resp.Body.Close()

	data, err := robotstxt.FromResponse(resp)
	if err != nil {
		return nil, false, fmt.Errorf("failed to parse robots.txt: %w", err)
	}
	return data.FindGroup(p.userAgent), resp.StatusCode < 500, nil
}
