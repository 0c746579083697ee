// Package diamuri parses Diameter URIs used in peer configuration
// strings (spec §6): aaa|aaas://<fqdn>[:port][;key=value...]. Host
// validation is delegated to golang.org/x/net/idna (the same ecosystem
// collaborator the teacher reaches for wherever it needs strict FQDN
// checking), and the parameter tail is decoded through
// github.com/mitchellh/mapstructure so a caller can target a typed
// struct instead of walking a map by hand.
package diamuri

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/mitchellh/mapstructure"
	"golang.org/x/net/idna"
)

const (
	defaultPortAAA  = 3868
	defaultPortAAAS = 5658
)

// URI is a parsed Diameter URI.
type URI struct {
	Secure bool // true for aaas
	Host   string
	Port   int
	Params map[string]string
}

// Parse validates and decomposes a Diameter URI string.
func Parse(raw string) (*URI, error) {
	var secure bool
	var rest string
	switch {
	case strings.HasPrefix(raw, "aaas://"):
		secure = true
		rest = raw[len("aaas://"):]
	case strings.HasPrefix(raw, "aaa://"):
		secure = false
		rest = raw[len("aaa://"):]
	default:
		return nil, fmt.Errorf("diamuri: %q: missing aaa:// or aaas:// scheme", raw)
	}
	if rest == "" {
		return nil, fmt.Errorf("diamuri: %q: empty authority", raw)
	}

	parts := strings.Split(rest, ";")
	authority := parts[0]

	host := authority
	port := defaultPortAAA
	if secure {
		port = defaultPortAAAS
	}
	if idx := strings.LastIndex(authority, ":"); idx >= 0 && !strings.Contains(authority[idx:], "]") {
		host = authority[:idx]
		p, err := strconv.Atoi(authority[idx+1:])
		if err != nil {
			return nil, fmt.Errorf("diamuri: %q: bad port: %w", raw, err)
		}
		port = p
	}

	ascii, err := idna.Lookup.ToASCII(host)
	if err != nil {
		return nil, fmt.Errorf("diamuri: %q: invalid host %q: %w", raw, host, err)
	}

	params := make(map[string]string)
	for _, kv := range parts[1:] {
		if kv == "" {
			continue
		}
		eq := strings.IndexByte(kv, '=')
		if eq < 0 {
			return nil, fmt.Errorf("diamuri: %q: malformed parameter %q", raw, kv)
		}
		params[kv[:eq]] = kv[eq+1:]
	}

	return &URI{Secure: secure, Host: ascii, Port: port, Params: params}, nil
}

// String renders the URI back to textual form, always with an explicit
// port. Parameters are written in map iteration order, which varies
// from call to call.
func (u *URI) String() string {
	scheme := "aaa"
	if u.Secure {
		scheme = "aaas"
	}
	var b strings.Builder
	fmt.Fprintf(&b, "%s://%s:%d", scheme, u.Host, u.Port)
	for k, v := range u.Params {
		fmt.Fprintf(&b, ";%s=%s", k, v)
	}
	return b.String()
}

// DecodeParams decodes the URI's key/value parameter tail into target,
// a pointer to a struct with `mapstructure` tags.
func (u *URI) DecodeParams(target any) error {
	return mapstructure.Decode(u.Params, target)
}
