package batch

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"strings"

	"github.com/gabriel-vasile/mimetype"

	"recreator/internal/storage"
)

const inlineImagePrefix = "data:image/"

var errNoUploader = errors.New("batch: no uploader configured for inline media")

// IsInlineImage reports whether ref is a data:image/... payload.
func IsInlineImage(ref string) bool {
	return strings.HasPrefix(strings.TrimSpace(ref), inlineImagePrefix)
}

// decodeInlineImage splits a data URL into its bytes and verified MIME type.
func decodeInlineImage(ref string) ([]byte, string, error) {
	header, payload, ok := strings.Cut(strings.TrimSpace(ref), ",")
	if !ok {
		return nil, "", errors.New("batch: inline image has no payload")
	}
	if !strings.HasSuffix(header, ";base64") {
		return nil, "", errors.New("batch: inline image is not base64 encoded")
	}
	data, err := base64.StdEncoding.DecodeString(payload)
	if err != nil {
		return nil, "", fmt.Errorf("batch: decode inline image: %w", err)
	}
	if len(data) == 0 {
		return nil, "", errors.New("batch: inline image is empty")
	}
	detected := mimetype.Detect(data)
	if !strings.HasPrefix(detected.String(), "image/") {
		return nil, "", fmt.Errorf("batch: inline payload is %s, not an image", detected.String())
	}
	return data, detected.String(), nil
}

// promoteMedia turns ref into a URL the remote service can fetch. Plain URLs
// pass through; inline payloads are uploaded.
func promoteMedia(ctx context.Context, uploader storage.Uploader, ref string) (string, error) {
	ref = strings.TrimSpace(ref)
	if ref == "" || !IsInlineImage(ref) {
		return ref, nil
	}
	if uploader == nil {
		return "", errNoUploader
	}
	data, mime, err := decodeInlineImage(ref)
	if err != nil {
		return "", err
	}
	url, err := uploader.Upload(ctx, data, mime)
	if err != nil {
		return "", fmt.Errorf("batch: upload inline image: %w", err)
	}
	return url, nil
}
