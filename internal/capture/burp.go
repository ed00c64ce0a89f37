package capture

import (
	"bytes"
	"encoding/base64"
	"encoding/xml"
	"fmt"
	"strconv"
	"strings"

	"sessionprobe/internal/probe"
)

type burpItems struct {
	XMLName xml.Name   `xml:"items"`
	Items   []burpItem `xml:"item"`
}

type burpItem struct {
	URL      string      `xml:"url"`
	Host     string      `xml:"host"`
	Port     string      `xml:"port"`
	Protocol string      `xml:"protocol"`
	Request  burpPayload `xml:"request"`
}

type burpPayload struct {
	Base64 string `xml:"base64,attr"`
	Data   string `xml:",chardata"`
}

func looksLikeBurpXML(data []byte) bool {
	head := bytes.TrimSpace(data)
	if len(head) > 512 {
		head = head[:512]
	}
	return bytes.HasPrefix(head, []byte("<?xml")) || bytes.HasPrefix(head, []byte("<items"))
}

func fromBurpXML(data []byte) (probe.BaseRequest, error) {
	var doc burpItems
	if err := xml.Unmarshal(data, &doc); err != nil {
		return probe.BaseRequest{}, fmt.Errorf("capture: parse burp export: %w", err)
	}
	switch len(doc.Items) {
	case 0:
		return probe.BaseRequest{}, ErrEmpty
	case 1:
	default:
		return probe.BaseRequest{}, ErrMultipleItems
	}
	item := doc.Items[0]

	raw := []byte(item.Request.Data)
	if strings.EqualFold(item.Request.Base64, "true") {
		decoded, err := base64.StdEncoding.DecodeString(strings.TrimSpace(item.Request.Data))
		if err != nil {
			return probe.BaseRequest{}, fmt.Errorf("capture: decode burp request: %w", err)
		}
		raw = decoded
	}
	if len(bytes.TrimSpace(raw)) == 0 {
		return probe.BaseRequest{}, ErrEmpty
	}

	host := strings.TrimSpace(item.Host)
	if host == "" {
		host = HostHeader(raw)
	}
	if host == "" {
		return probe.BaseRequest{}, ErrNoHost
	}
	ep := probe.Endpoint{Host: host, Secure: !strings.EqualFold(strings.TrimSpace(item.Protocol), "http")}
	if p := strings.TrimSpace(item.Port); p != "" {
		port, err := strconv.Atoi(p)
		if err != nil || port <= 0 || port > 65535 {
			return probe.BaseRequest{}, fmt.Errorf("%w: bad port %q", ErrBadTarget, p)
		}
		ep.Port = port
	}
	return probe.BaseRequest{Endpoint: ep, Raw: raw}, nil
}
