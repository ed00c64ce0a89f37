// Package capture turns a saved request into a probe.BaseRequest.
//
// Two inputs are understood: a raw HTTP request as copied out of a proxy,
// and a Burp Suite "Save items" XML export holding a single item.
package capture

import (
	"bufio"
	"bytes"
	"errors"
	"fmt"
	"net"
	"net/url"
	"os"
	"strconv"
	"strings"

	"sessionprobe/internal/probe"
)

var (
	ErrEmpty         = errors.New("capture: request is empty")
	ErrNoHost        = errors.New("capture: cannot determine target host")
	ErrMultipleItems = errors.New("capture: only works with one request at a time")
	ErrBadTarget     = errors.New("capture: invalid target")
)

// FromRaw builds a base request from raw bytes. target overrides the Host
// header; it may be "https://host:port", "http://host" or "host:port".
// plain selects http when the endpoint comes from the Host header.
func FromRaw(raw []byte, target string, plain bool) (probe.BaseRequest, error) {
	if len(bytes.TrimSpace(raw)) == 0 {
		return probe.BaseRequest{}, ErrEmpty
	}

	var (
		ep  probe.Endpoint
		err error
	)
	if strings.TrimSpace(target) != "" {
		ep, err = ParseTarget(target, plain)
	} else {
		ep, err = endpointFromHost(HostHeader(raw), !plain)
	}
	if err != nil {
		return probe.BaseRequest{}, err
	}
	return probe.BaseRequest{Endpoint: ep, Raw: append([]byte(nil), raw...)}, nil
}

// LoadFile reads a raw request or a Burp XML export from path.
func LoadFile(path, target string, plain bool) (probe.BaseRequest, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return probe.BaseRequest{}, fmt.Errorf("capture: read %s: %w", path, err)
	}
	if looksLikeBurpXML(data) {
		base, err := fromBurpXML(data)
		if err != nil {
			return probe.BaseRequest{}, err
		}
		if strings.TrimSpace(target) != "" {
			if base.Endpoint, err = ParseTarget(target, plain); err != nil {
				return probe.BaseRequest{}, err
			}
		}
		return base, nil
	}
	return FromRaw(data, target, plain)
}

// ParseTarget parses an explicit endpoint.
func ParseTarget(target string, plain bool) (probe.Endpoint, error) {
	target = strings.TrimSpace(target)
	if !strings.Contains(target, "://") {
		scheme := "https"
		if plain {
			scheme = "http"
		}
		target = scheme + "://" + target
	}
	u, err := url.Parse(target)
	if err != nil {
		return probe.Endpoint{}, fmt.Errorf("%w: %v", ErrBadTarget, err)
	}

	var secure bool
	switch strings.ToLower(u.Scheme) {
	case "https":
		secure = true
	case "http":
	default:
		return probe.Endpoint{}, fmt.Errorf("%w: unsupported scheme %q", ErrBadTarget, u.Scheme)
	}
	if u.Hostname() == "" {
		return probe.Endpoint{}, fmt.Errorf("%w: missing host", ErrBadTarget)
	}

	ep := probe.Endpoint{Host: u.Hostname(), Secure: secure}
	if p := u.Port(); p != "" {
		if ep.Port, err = strconv.Atoi(p); err != nil || ep.Port <= 0 || ep.Port > 65535 {
			return probe.Endpoint{}, fmt.Errorf("%w: bad port %q", ErrBadTarget, p)
		}
	}
	return ep, nil
}

// HostHeader returns the Host header value of raw, or "".
func HostHeader(raw []byte) string {
	sc := bufio.NewScanner(bytes.NewReader(raw))
	first := true
	for sc.Scan() {
		line := strings.TrimRight(sc.Text(), "\r")
		if first {
			first = false
			continue
		}
		if line == "" {
			break
		}
		name, value, ok := strings.Cut(line, ":")
		if ok && strings.EqualFold(strings.TrimSpace(name), "host") {
			return strings.TrimSpace(value)
		}
	}
	return ""
}

// RequestLine returns the first line of raw, for display.
func RequestLine(raw []byte) string {
	line, _, _ := bytes.Cut(raw, []byte("\n"))
	return strings.TrimRight(string(line), "\r")
}

func endpointFromHost(host string, secure bool) (probe.Endpoint, error) {
	if host == "" {
		return probe.Endpoint{}, ErrNoHost
	}
	ep := probe.Endpoint{Host: host, Secure: secure}
	if h, p, err := net.SplitHostPort(host); err == nil {
		port, err := strconv.Atoi(p)
		if err != nil || port <= 0 || port > 65535 {
			return probe.Endpoint{}, fmt.Errorf("%w: bad port in Host header %q", ErrBadTarget, host)
		}
		ep.Host, ep.Port = h, port
	} else if strings.HasPrefix(host, "[") && strings.HasSuffix(host, "]") {
		// bracketed IPv6 literal without a port
		ep.Host = host[1 : len(host)-1]
	}
	return ep, nil
}
