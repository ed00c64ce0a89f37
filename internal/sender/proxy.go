package sender

import (
	"context"
	"fmt"
	"net"
	"net/url"
	"strings"
	"time"

	"golang.org/x/net/proxy"
)

var supportedProxySchemes = map[string]bool{
	"http":    true,
	"https":   true,
	"socks5":  true,
	"socks5h": true, // DNS resolved by the proxy
}

// ProxyConfig is a parsed proxy URL.
type ProxyConfig struct {
	URL     *url.URL
	Scheme  string
	Host    string
	Port    string
	IsSOCKS bool
}

func (p *ProxyConfig) Address() string {
	if p == nil {
		return ""
	}
	return net.JoinHostPort(p.Host, p.Port)
}

// ParseProxyURL returns nil, nil for an empty string. A value without a
// scheme is treated as an HTTP proxy.
func ParseProxyURL(proxyURL string) (*ProxyConfig, error) {
	proxyURL = strings.TrimSpace(proxyURL)
	if proxyURL == "" {
		return nil, nil
	}
	if !strings.Contains(proxyURL, "://") {
		proxyURL = "http://" + proxyURL
	}

	parsed, err := url.Parse(proxyURL)
	if err != nil {
		return nil, fmt.Errorf("%w: invalid proxy URL: %v", ErrProxy, err)
	}

	scheme := strings.ToLower(parsed.Scheme)
	if !supportedProxySchemes[scheme] {
		return nil, fmt.Errorf("%w: unsupported proxy scheme %q, supported: http, https, socks5, socks5h", ErrProxy, scheme)
	}

	host := parsed.Hostname()
	if host == "" {
		return nil, fmt.Errorf("%w: proxy URL missing host", ErrProxy)
	}
	port := parsed.Port()
	if port == "" {
		switch scheme {
		case "http":
			port = "8080"
		case "https":
			port = "8443"
		default:
			port = "1080"
		}
	}

	return &ProxyConfig{
		URL:     parsed,
		Scheme:  scheme,
		Host:    host,
		Port:    port,
		IsSOCKS: scheme == "socks5" || scheme == "socks5h",
	}, nil
}

type dialFunc func(ctx context.Context, network, addr string) (net.Conn, error)

// socksDialer dials through a SOCKS5 proxy. Dial failures are reported as
// ErrProxy.
func socksDialer(cfg *ProxyConfig, timeout time.Duration) (dialFunc, error) {
	u := &url.URL{Scheme: "socks5", Host: cfg.Address(), User: cfg.URL.User}
	d, err := proxy.FromURL(u, &net.Dialer{Timeout: timeout})
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrProxy, err)
	}

	dial := func(ctx context.Context, network, addr string) (net.Conn, error) {
		if cd, ok := d.(proxy.ContextDialer); ok {
			return cd.DialContext(ctx, network, addr)
		}
		return d.Dial(network, addr)
	}
	return func(ctx context.Context, network, addr string) (net.Conn, error) {
		if timeout > 0 {
			var cancel context.CancelFunc
			ctx, cancel = context.WithTimeout(ctx, timeout)
			defer cancel()
		}
		conn, err := dial(ctx, network, addr)
		if err != nil {
			return nil, fmt.Errorf("%w: %w", ErrProxy, err)
		}
		return conn, nil
	}, nil
}
