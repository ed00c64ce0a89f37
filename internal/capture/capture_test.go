package capture

import (
	"encoding/base64"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"sessionprobe/internal/probe"
)

const rawAccount = "GET /account HTTP/1.1\r\nHost: app.example:8443\r\nCookie: SESSIONID=abc\r\n\r\n"

func TestFromRawUsesHostHeader(t *testing.T) {
	t.Parallel()

	base, err := FromRaw([]byte(rawAccount), "", false)
	require.NoError(t, err)
	assert.Equal(t, probe.Endpoint{Host: "app.example", Port: 8443, Secure: true}, base.Endpoint)
	assert.Equal(t, []byte(rawAccount), base.Raw)

	base, err = FromRaw([]byte("GET / HTTP/1.1\nhost: plain.example\n\n"), "", true)
	require.NoError(t, err)
	assert.Equal(t, "http://plain.example:80", base.Endpoint.String())
}

func TestFromRawIPv6HostHeader(t *testing.T) {
	t.Parallel()

	tests := []struct {
		host string
		want probe.Endpoint
		addr string
	}{
		{"[::1]", probe.Endpoint{Host: "::1", Secure: true}, "[::1]:443"},
		{"[::1]:8443", probe.Endpoint{Host: "::1", Port: 8443, Secure: true}, "[::1]:8443"},
		{"[fe80::1]", probe.Endpoint{Host: "fe80::1", Secure: true}, "[fe80::1]:443"},
	}
	for _, tt := range tests {
		base, err := FromRaw([]byte("GET / HTTP/1.1\r\nHost: "+tt.host+"\r\n\r\n"), "", false)
		require.NoError(t, err, tt.host)
		assert.Equal(t, tt.want, base.Endpoint, tt.host)
		assert.Equal(t, tt.addr, base.Endpoint.Addr(), tt.host)
	}
}

func TestFromRawExplicitTarget(t *testing.T) {
	t.Parallel()

	tests := []struct {
		target string
		plain  bool
		want   probe.Endpoint
	}{
		{"https://10.0.0.5:9443", false, probe.Endpoint{Host: "10.0.0.5", Port: 9443, Secure: true}},
		{"http://localhost", false, probe.Endpoint{Host: "localhost"}},
		{"127.0.0.1:8080", true, probe.Endpoint{Host: "127.0.0.1", Port: 8080}},
		{"127.0.0.1:8080", false, probe.Endpoint{Host: "127.0.0.1", Port: 8080, Secure: true}},
	}
	for _, tt := range tests {
		base, err := FromRaw([]byte(rawAccount), tt.target, tt.plain)
		require.NoError(t, err, tt.target)
		assert.Equal(t, tt.want, base.Endpoint, tt.target)
	}
}

func TestFromRawErrors(t *testing.T) {
	t.Parallel()

	_, err := FromRaw([]byte("  \r\n"), "", false)
	assert.ErrorIs(t, err, ErrEmpty)

	_, err = FromRaw([]byte("GET / HTTP/1.1\r\nCookie: a=b\r\n\r\n"), "", false)
	assert.ErrorIs(t, err, ErrNoHost)

	_, err = FromRaw([]byte(rawAccount), "ftp://files.example", false)
	assert.ErrorIs(t, err, ErrBadTarget)

	_, err = FromRaw([]byte(rawAccount), "https://host:99999", false)
	assert.ErrorIs(t, err, ErrBadTarget)
}

func TestHostHeaderIgnoresBody(t *testing.T) {
	t.Parallel()

	raw := []byte("POST / HTTP/1.1\r\nContent-Length: 14\r\n\r\nHost: evil.com")
	assert.Empty(t, HostHeader(raw))
	assert.Equal(t, "POST / HTTP/1.1", RequestLine(raw))
}

func writeFile(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
	return path
}

func burpExport(items ...string) string {
	doc := `<?xml version="1.0"?>
<!DOCTYPE items [
<!ELEMENT items (item*)>
]>
<items burpVersion="2023.10">`
	for _, it := range items {
		doc += it
	}
	return doc + "</items>\n"
}

func burpItemXML(host, port, protocol, raw string) string {
	return `
  <item>
    <time>Mon Jan 01 10:00:00 UTC 2024</time>
    <url><![CDATA[` + protocol + `://` + host + `/account]]></url>
    <host ip="10.0.0.1">` + host + `</host>
    <port>` + port + `</port>
    <protocol>` + protocol + `</protocol>
    <method><![CDATA[GET]]></method>
    <path><![CDATA[/account]]></path>
    <request base64="true"><![CDATA[` + base64.StdEncoding.EncodeToString([]byte(raw)) + `]]></request>
    <status>200</status>
  </item>`
}

func TestLoadFileRaw(t *testing.T) {
	t.Parallel()

	path := writeFile(t, "req.txt", rawAccount)
	base, err := LoadFile(path, "", false)
	require.NoError(t, err)
	assert.Equal(t, "app.example", base.Endpoint.Host)
	assert.Equal(t, []byte(rawAccount), base.Raw)
}

func TestLoadFileBurpExport(t *testing.T) {
	t.Parallel()

	path := writeFile(t, "items.xml", burpExport(burpItemXML("shop.example", "8080", "http", rawAccount)))
	base, err := LoadFile(path, "", false)
	require.NoError(t, err)
	assert.Equal(t, probe.Endpoint{Host: "shop.example", Port: 8080}, base.Endpoint)
	assert.Equal(t, []byte(rawAccount), base.Raw)

	base, err = LoadFile(path, "https://override.example", false)
	require.NoError(t, err)
	assert.Equal(t, probe.Endpoint{Host: "override.example", Secure: true}, base.Endpoint)
}

func TestLoadFileBurpRejectsMultipleItems(t *testing.T) {
	t.Parallel()

	path := writeFile(t, "items.xml", burpExport(
		burpItemXML("a.example", "443", "https", rawAccount),
		burpItemXML("b.example", "443", "https", rawAccount),
	))
	_, err := LoadFile(path, "", false)
	assert.ErrorIs(t, err, ErrMultipleItems)

	empty := writeFile(t, "empty.xml", burpExport())
	_, err = LoadFile(empty, "", false)
	assert.ErrorIs(t, err, ErrEmpty)
}

func TestLoadFileMissing(t *testing.T) {
	t.Parallel()

	_, err := LoadFile(filepath.Join(t.TempDir(), "nope.txt"), "", false)
	assert.ErrorIs(t, err, os.ErrNotExist)
}
