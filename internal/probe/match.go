package probe

import "bytes"

// Matches reports whether indicator occurs in body after the first byte.
// An occurrence at offset 0 does not count.
func Matches(body []byte, indicator string) bool {
	if indicator == "" {
		return false
	}
	return bytes.Index(body, []byte(indicator)) > 0
}

// StatusCode parses the status code from the first line of a raw HTTP
// response ("HTTP/1.1 302 Found"). It returns 0 when the line is not a
// status line.
func StatusCode(raw []byte) int {
	line := raw
	if i := bytes.IndexByte(raw, '\n'); i >= 0 {
		line = raw[:i]
	}
	fields := bytes.Fields(line)
	if len(fields) < 2 || !bytes.HasPrefix(fields[0], []byte("HTTP/")) {
		return 0
	}
	code := 0
	for _, c := range fields[1] {
		if c < '0' || c > '9' {
			return 0
		}
		code = code*10 + int(c-'0')
	}
	if len(fields[1]) != 3 {
		return 0
	}
	return code
}
