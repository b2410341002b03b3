package upstream

import (
	"math/rand/v2"
	"net"
	"net/url"
	"strings"
)

// ProxyPool holds the egress proxies parsed from PROXY_LIST. The zero value and
// nil are both an empty pool.
type ProxyPool struct {
	proxies []*url.URL
}

// ParseProxyList reads one "host:port:user:pass" per line. A literal "\n" also
// separates lines, blank and "#" lines are skipped, and the password keeps any
// further colons.
func ParseProxyList(raw string) *ProxyPool {
	pool := &ProxyPool{}
	raw = strings.ReplaceAll(raw, `\n`, "\n")

	for _, line := range strings.Split(raw, "\n") {
		line = strings.TrimSpace(line)
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		parts := strings.SplitN(line, ":", 4)
		if len(parts) < 4 {
			continue
		}
		host, port, user, pass := parts[0], parts[1], parts[2], parts[3]
		pool.proxies = append(pool.proxies, &url.URL{
			Scheme: "http",
			User:   url.UserPassword(user, pass),
			Host:   net.JoinHostPort(host, port),
		})
	}
	return pool
}

func (p *ProxyPool) Len() int {
	if p == nil {
		return 0
	}
	return len(p.proxies)
}

// Random picks a proxy uniformly, or nil when the pool is empty.
func (p *ProxyPool) Random() *url.URL {
	if p.Len() == 0 {
		return nil
	}
	return p.proxies[rand.IntN(len(p.proxies))]
}
