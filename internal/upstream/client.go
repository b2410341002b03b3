package upstream

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"golang.org/x/sync/errgroup"

	"pharos.xyz/statschecker/pkg/apperror"
	"pharos.xyz/statschecker/pkg/logger"
	"pharos.xyz/statschecker/pkg/metrics"
)

const (
	DefaultBaseURL       = "https://api.pharosnetwork.xyz"
	DefaultProxyTimeout  = 15 * time.Second
	DefaultDirectTimeout = 12 * time.Second

	profilePath = "/user/profile"
	tasksPath   = "/user/tasks"

	tokenExpiryWarning = 7 * 24 * time.Hour
)

type Options struct {
	BaseURL       string
	BearerToken   string
	Proxies       *ProxyPool
	ProxyTimeout  time.Duration
	DirectTimeout time.Duration
}

// Client fetches profile and task data for a wallet. Each FetchUser makes at
// most two attempts: through a random proxy with the long timeout, then direct
// with the short one.
type Client struct {
	baseURL       string
	headers       http.Header
	proxies       *ProxyPool
	proxyTimeout  time.Duration
	directTimeout time.Duration

	direct *http.Client

	mu       sync.Mutex
	viaProxy map[string]*http.Client
}

func NewClient(opts Options) *Client {
	if opts.BaseURL == "" {
		opts.BaseURL = DefaultBaseURL
	}
	if opts.ProxyTimeout <= 0 {
		opts.ProxyTimeout = DefaultProxyTimeout
	}
	if opts.DirectTimeout <= 0 {
		opts.DirectTimeout = DefaultDirectTimeout
	}

	headers := http.Header{}
	headers.Set("Accept", "application/json, text/plain, */*")
	headers.Set("Accept-Language", "en-US,en;q=0.9")
	headers.Set("Origin", "https://testnet.pharosnetwork.xyz")
	headers.Set("Referer", "https://testnet.pharosnetwork.xyz/")
	headers.Set("User-Agent", "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36")
	if opts.BearerToken != "" {
		headers.Set("Authorization", "Bearer "+opts.BearerToken)
		warnOnTokenExpiry(opts.BearerToken, time.Now())
	} else {
		logger.Warnf("PHAROS_BEARER_TOKEN is not set, upstream calls will likely be rejected")
	}

	return &Client{
		baseURL:       strings.TrimRight(opts.BaseURL, "/"),
		headers:       headers,
		proxies:       opts.Proxies,
		proxyTimeout:  opts.ProxyTimeout,
		directTimeout: opts.DirectTimeout,
		direct:        &http.Client{Transport: http.DefaultTransport},
		viaProxy:      make(map[string]*http.Client),
	}
}

// ProxyCount is the number of proxies loaded.
func (c *Client) ProxyCount() int {
	return c.proxies.Len()
}

type attempt struct {
	route   string
	client  *http.Client
	timeout time.Duration
}

func (c *Client) FetchUser(ctx context.Context, address string) (*UserPayload, error) {
	first := attempt{route: "direct", client: c.direct, timeout: c.proxyTimeout}
	if proxy := c.proxies.Random(); proxy != nil {
		first = attempt{route: "proxy", client: c.proxyClient(proxy), timeout: c.proxyTimeout}
	}
	attempts := []attempt{
		first,
		{route: "direct", client: c.direct, timeout: c.directTimeout},
	}

	var lastErr error
	for i, a := range attempts {
		payload, err := c.fetchOnce(ctx, a, address)
		if err == nil {
			metrics.UpstreamAttempts.WithLabelValues(a.route, "ok").Inc()
			return payload, nil
		}
		if errors.Is(err, apperror.ErrUpstreamData) {
			metrics.UpstreamAttempts.WithLabelValues(a.route, "data").Inc()
			return nil, err
		}
		metrics.UpstreamAttempts.WithLabelValues(a.route, "transient").Inc()
		lastErr = err

		if ctx.Err() != nil {
			break
		}
		if i < len(attempts)-1 {
			logger.Warnf("upstream attempt %d via %s failed for %s: %v", i+1, a.route, address, err)
		}
	}

	return nil, fmt.Errorf("%w: %v", apperror.ErrUpstreamTransient, lastErr)
}

// fetchOnce runs the profile and tasks requests concurrently under one timeout.
func (c *Client) fetchOnce(ctx context.Context, a attempt, address string) (*UserPayload, error) {
	ctx, cancel := context.WithTimeout(ctx, a.timeout)
	defer cancel()

	var (
		profile envelope[ProfileData]
		tasks   envelope[TasksData]
	)
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return c.getJSON(gctx, a.client, profilePath, address, &profile)
	})
	g.Go(func() error {
		return c.getJSON(gctx, a.client, tasksPath, address, &tasks)
	})
	if err := g.Wait(); err != nil {
		return nil, err
	}

	if profile.Code != 0 {
		return nil, &DataError{Path: profilePath, Code: profile.Code, Msg: profile.Msg}
	}
	if tasks.Code != 0 {
		return nil, &DataError{Path: tasksPath, Code: tasks.Code, Msg: tasks.Msg}
	}

	return &UserPayload{Profile: profile.Data, Tasks: tasks.Data}, nil
}

func (c *Client) getJSON(ctx context.Context, client *http.Client, path, address string, out any) error {
	u := c.baseURL + path + "?" + url.Values{"address": {address}}.Encode()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	req.Header = c.headers.Clone()

	resp, err := client.Do(req)
	if err != nil {
		return fmt.Errorf("%s: %w", path, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("%s: unexpected status %d", path, resp.StatusCode)
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("%s: decode response: %w", path, err)
	}
	return nil
}

// proxyClient returns one client per proxy so connections through it are reused.
func (c *Client) proxyClient(proxy *url.URL) *http.Client {
	key := proxy.String()

	c.mu.Lock()
	defer c.mu.Unlock()

	if client, ok := c.viaProxy[key]; ok {
		return client
	}
	transport := http.DefaultTransport.(*http.Transport).Clone()
	transport.Proxy = http.ProxyURL(proxy)
	client := &http.Client{Transport: transport}
	c.viaProxy[key] = client
	return client
}

// warnOnTokenExpiry reads the exp claim without verifying the signature; the
// token belongs to the upstream, we only want to know when it runs out.
func warnOnTokenExpiry(token string, now time.Time) {
	exp, ok := tokenExpiry(token)
	if !ok {
		return
	}
	switch left := exp.Sub(now); {
	case left <= 0:
		logger.Warnf("PHAROS_BEARER_TOKEN expired at %s", exp.UTC().Format(time.RFC3339))
	case left < tokenExpiryWarning:
		logger.Warnf("PHAROS_BEARER_TOKEN expires in %s", left.Round(time.Hour))
	}
}

func tokenExpiry(token string) (time.Time, bool) {
	claims := &jwt.RegisteredClaims{}
	if _, _, err := jwt.NewParser().ParseUnverified(token, claims); err != nil {
		return time.Time{}, false
	}
	if claims.ExpiresAt == nil {
		return time.Time{}, false
	}
	return claims.ExpiresAt.Time, true
}
