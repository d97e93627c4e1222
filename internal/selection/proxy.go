package selection

import (
	"fmt"
	"net/url"
)

// RewriteDownloadURL points downloadURL at proxyBase, keeping the original
// path and query so CDN-relative bundle locations survive the rewrite. A nil
// proxyBase or empty URL passes through untouched; a malformed downloadURL is
// returned as-is alongside the parse error so callers can log and fall back.
func RewriteDownloadURL(proxyBase *url.URL, downloadURL string) (string, error) {
	if proxyBase == nil || downloadURL == "" {
		return downloadURL, nil
	}
	u, err := url.Parse(downloadURL)
	if err != nil {
		return downloadURL, fmt.Errorf("parse download url: %w", err)
	}
	u.Scheme = proxyBase.Scheme
	u.Host = proxyBase.Host
	return u.String(), nil
}
