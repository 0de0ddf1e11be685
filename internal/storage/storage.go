package storage

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/url"
	"strings"

	"github.com/gabriel-vasile/mimetype"
)

// Uploader turns an in-memory media payload into a publicly fetchable URL.
type Uploader interface {
	Upload(ctx context.Context, data []byte, mime string) (string, error)
}

// Publisher copies a local file to durable storage and returns where it lives.
type Publisher interface {
	Publish(ctx context.Context, localPath, key string) (string, error)
}

// Store is satisfied by backends that can do both.
type Store interface {
	Uploader
	Publisher
}

func extensionFor(mime string) string {
	if m := mimetype.Lookup(strings.TrimSpace(mime)); m != nil && m.Extension() != "" {
		return m.Extension()
	}
	return ".bin"
}

// ErrNotPublic marks a storage URL that a remote service cannot fetch.
var ErrNotPublic = errors.New("storage url is not publicly reachable")

// CheckPublicURL returns nil when raw is an http(s) URL whose host is not
// localhost, a loopback, private, link-local or unspecified address.
func CheckPublicURL(raw string) error {
	if strings.TrimSpace(raw) == "" {
		return fmt.Errorf("storage: %w: no base url", ErrNotPublic)
	}
	u, err := url.Parse(raw)
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Hostname() == "" {
		return fmt.Errorf("storage: %w: %q is not an http(s) url", ErrNotPublic, raw)
	}
	host := strings.ToLower(u.Hostname())
	if host == "localhost" || strings.HasSuffix(host, ".localhost") {
		return fmt.Errorf("storage: %w: %s", ErrNotPublic, host)
	}
	if ip := net.ParseIP(host); ip != nil {
		if ip.IsLoopback() || ip.IsPrivate() || ip.IsLinkLocalUnicast() || ip.IsUnspecified() {
			return fmt.Errorf("storage: %w: %s", ErrNotPublic, host)
		}
	}
	return nil
}
