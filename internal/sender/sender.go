// Package sender delivers captured raw HTTP requests and returns the raw
// response bytes, the way an intercepting proxy would replay them.
package sender

import (
	"bufio"
	"bytes"
	"compress/flate"
	"compress/gzip"
	"compress/zlib"
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/andybalholm/brotli"
	"golang.org/x/time/rate"

	"sessionprobe/internal/probe"
)

// Config holds transport options for probes.
type Config struct {
	// Timeout bounds one probe, including reading the body (default: 30s)
	Timeout time.Duration

	// InsecureSkipVerify skips TLS certificate verification (default: true)
	InsecureSkipVerify bool

	// Proxy is an http, https, socks5 or socks5h URL (optional)
	Proxy string

	// RateLimit caps probes per second; 0 disables the limiter
	RateLimit float64

	// MaxBodyBytes caps the response body, before and after decoding;
	// a larger body fails the probe (default: 10 MiB)
	MaxBodyBytes int64
}

func DefaultConfig() Config {
	return Config{
		Timeout:            30 * time.Second,
		InsecureSkipVerify: true,
		MaxBodyBytes:       10 << 20,
	}
}

// Sender implements probe.Sender over net/http.
type Sender struct {
	client  *http.Client
	limiter *rate.Limiter
	maxBody int64
}

var _ probe.Sender = (*Sender)(nil)

func New(cfg Config) (*Sender, error) {
	def := DefaultConfig()
	if cfg.Timeout <= 0 {
		cfg.Timeout = def.Timeout
	}
	if cfg.MaxBodyBytes <= 0 {
		cfg.MaxBodyBytes = def.MaxBodyBytes
	}

	dialer := &net.Dialer{Timeout: 10 * time.Second}
	transport := &http.Transport{
		// every probe is a fresh exchange, like a manual replay
		DisableKeepAlives:   true,
		DisableCompression:  true,
		TLSHandshakeTimeout: 10 * time.Second,
		DialContext:         dialer.DialContext,
		TLSClientConfig: &tls.Config{
			InsecureSkipVerify: cfg.InsecureSkipVerify,
		},
	}

	pc, err := ParseProxyURL(cfg.Proxy)
	if err != nil {
		return nil, err
	}
	if pc != nil {
		if pc.IsSOCKS {
			dial, err := socksDialer(pc, cfg.Timeout)
			if err != nil {
				return nil, err
			}
			transport.DialContext = dial
		} else {
			transport.Proxy = http.ProxyURL(pc.URL)
		}
	}

	s := &Sender{
		client: &http.Client{
			Timeout:   cfg.Timeout,
			Transport: transport,
			CheckRedirect: func(*http.Request, []*http.Request) error {
				return http.ErrUseLastResponse
			},
		},
		maxBody: cfg.MaxBodyBytes,
	}
	if cfg.RateLimit > 0 {
		s.limiter = rate.NewLimiter(rate.Limit(cfg.RateLimit), 1)
	}
	return s, nil
}

// Send replays raw against endpoint once and returns the response as raw
// bytes: status line, headers, blank line, decoded body.
func (s *Sender) Send(ctx context.Context, endpoint probe.Endpoint, raw []byte) ([]byte, error) {
	if s.limiter != nil {
		if err := s.limiter.Wait(ctx); err != nil {
			return nil, fmt.Errorf("%w: %w", ErrRequestFailed, err)
		}
	}

	req, err := ParseRequest(raw)
	if err != nil {
		return nil, err
	}
	req.URL.Scheme = endpoint.Scheme()
	req.URL.Host = endpoint.Addr()
	if req.Host == "" {
		req.Host = endpoint.Host
	}

	resp, err := s.client.Do(req.WithContext(ctx))
	if err != nil {
		var opErr *net.OpError
		if errors.Is(err, ErrProxy) || (errors.As(err, &opErr) && opErr.Op == "proxyconnect") {
			return nil, fmt.Errorf("%w: %w", ErrProxy, err)
		}
		return nil, fmt.Errorf("%w: %w", ErrRequestFailed, err)
	}
	defer resp.Body.Close()

	body, err := readLimited(resp.Body, s.maxBody)
	if err != nil {
		return nil, fmt.Errorf("%w: reading body: %w", ErrRequestFailed, err)
	}
	decoded, ok, err := decodeBody(resp.Header.Get("Content-Encoding"), body, s.maxBody)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrRequestFailed, err)
	}
	if ok {
		body = decoded
		resp.Header.Del("Content-Encoding")
		resp.Header.Set("Content-Length", strconv.Itoa(len(body)))
	}

	return dumpResponse(resp, body), nil
}

// ParseRequest reads a captured request. Bare LF line endings in the head
// are accepted; the body is taken as is.
func ParseRequest(raw []byte) (*http.Request, error) {
	head, body := splitHead(raw)
	if len(bytes.TrimSpace(head)) == 0 {
		return nil, fmt.Errorf("%w: empty request", ErrMalformedRequest)
	}

	var buf bytes.Buffer
	for _, line := range strings.Split(strings.TrimRight(string(head), "\r\n"), "\n") {
		buf.WriteString(strings.TrimSuffix(line, "\r"))
		buf.WriteString("\r\n")
	}
	buf.WriteString("\r\n")
	headLen := buf.Len()
	buf.Write(body)

	req, err := http.ReadRequest(bufio.NewReader(bytes.NewReader(buf.Bytes())))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedRequest, err)
	}

	// captured requests often carry a body without a Content-Length
	if req.ContentLength == 0 && len(req.TransferEncoding) == 0 && len(body) > 0 {
		payload := buf.Bytes()[headLen:]
		req.Body = io.NopCloser(bytes.NewReader(payload))
		req.ContentLength = int64(len(payload))
	}
	req.RequestURI = ""
	req.URL.Scheme = ""
	req.URL.Host = ""
	return req, nil
}

func splitHead(raw []byte) (head, body []byte) {
	if i := bytes.Index(raw, []byte("\r\n\r\n")); i >= 0 {
		return raw[:i+2], raw[i+4:]
	}
	if i := bytes.Index(raw, []byte("\n\n")); i >= 0 {
		return raw[:i+1], raw[i+2:]
	}
	return raw, nil
}

// readLimited reads r to the end and fails with ErrBodyTooLarge once more
// than limit bytes arrive.
func readLimited(r io.Reader, limit int64) ([]byte, error) {
	b, err := io.ReadAll(io.LimitReader(r, limit+1))
	if err != nil {
		return nil, err
	}
	if int64(len(b)) > limit {
		return nil, fmt.Errorf("%w: more than %d bytes", ErrBodyTooLarge, limit)
	}
	return b, nil
}

// decodeBody undoes gzip, deflate and br. ok is false for identity and
// unknown encodings, which are passed through untouched.
func decodeBody(encoding string, body []byte, limit int64) (out []byte, ok bool, err error) {
	enc := strings.ToLower(strings.TrimSpace(encoding))
	var r io.Reader
	switch enc {
	case "gzip", "x-gzip":
		zr, err := gzip.NewReader(bytes.NewReader(body))
		if err != nil {
			return nil, false, fmt.Errorf("%w: %s: %w", ErrDecode, enc, err)
		}
		defer zr.Close()
		r = zr
	case "deflate":
		// servers send both zlib-wrapped and raw deflate under this name
		if zr, err := zlib.NewReader(bytes.NewReader(body)); err == nil {
			defer zr.Close()
			r = zr
		} else {
			fr := flate.NewReader(bytes.NewReader(body))
			defer fr.Close()
			r = fr
		}
	case "br":
		r = brotli.NewReader(bytes.NewReader(body))
	default:
		return nil, false, nil
	}

	out, err = readLimited(r, limit)
	if err != nil {
		if errors.Is(err, ErrBodyTooLarge) {
			return nil, false, fmt.Errorf("decoded %s body: %w", enc, err)
		}
		return nil, false, fmt.Errorf("%w: %s: %w", ErrDecode, enc, err)
	}
	return out, true, nil
}

func dumpResponse(resp *http.Response, body []byte) []byte {
	var buf bytes.Buffer
	fmt.Fprintf(&buf, "%s %s\r\n", resp.Proto, resp.Status)
	_ = resp.Header.Write(&buf)
	buf.WriteString("\r\n")
	buf.Write(body)
	return buf.Bytes()
}
