package common

import (
	"fmt"
	"net"
	"net/url"
	"strings"
)

var knownSchemePrefixes = []string{"http://", "https://", "ws://", "wss://", "ipfs://"}

// ValidateListenAddr checks that addr has the <host>:<port> form net.Listen expects. The host may be empty.
func ValidateListenAddr(addr string) error {
	for _, p := range knownSchemePrefixes {
		if strings.HasPrefix(addr, p) {
			return fmt.Errorf("listen address %q must not have a scheme", addr)
		}
	}
	if _, port, err := net.SplitHostPort(addr); err != nil || port == "" {
		return fmt.Errorf("listen address %q is not in <host>:<port> form", addr)
	}
	return nil
}

// ValidateURL checks that urlStr parses and uses one of schemes.
func ValidateURL(urlStr string, schemes ...string) error {
	u, err := url.Parse(urlStr)
	if err != nil {
		return fmt.Errorf("invalid url %q: %w", urlStr, err)
	}
	for _, s := range schemes {
		if u.Scheme == s {
			return nil
		}
	}
	return fmt.Errorf("url %q must use one of the schemes %s", urlStr, strings.Join(schemes, ", "))
}
