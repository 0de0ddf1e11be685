package jsoncfg

import (
	"encoding/json"
	"fmt"
	"sort"
	"strings"

	"recreator/internal/domain"
)

var allowedAspectRatios = map[string]struct{}{
	"16:9":     {},
	"9:16":     {},
	"1:1":      {},
	"4:3":      {},
	"3:4":      {},
	"21:9":     {},
	"adaptive": {},
}

const (
	// DefaultAspectRatio is used when a segment omits its ratio.
	DefaultAspectRatio = "9:16"
	// DefaultDuration is applied to segments without a duration.
	DefaultDuration = 5
	// MaxSegments caps the size of one batch.
	MaxSegments = 50
	// DefaultLocale is applied when no locale preference is provided.
	DefaultLocale = "en"
)

// BatchPayload is the wire contract accepted when creating a batch.
type BatchPayload struct {
	Locale   string                     `json:"locale,omitempty"`
	Requests []domain.GenerationRequest `json:"prompts"`
}

// Decode parses a batch payload. Both {"prompts": [...]} and a bare array of
// requests are accepted.
func Decode(raw []byte) (BatchPayload, error) {
	trimmed := strings.TrimSpace(string(raw))
	if trimmed == "" {
		return BatchPayload{}, fmt.Errorf("payload is empty")
	}
	var payload BatchPayload
	if strings.HasPrefix(trimmed, "[") {
		if err := json.Unmarshal(raw, &payload.Requests); err != nil {
			return BatchPayload{}, fmt.Errorf("decode requests: %w", err)
		}
		return payload, nil
	}
	if err := json.Unmarshal(raw, &payload); err != nil {
		return BatchPayload{}, fmt.Errorf("decode payload: %w", err)
	}
	return payload, nil
}

// Normalize fills defaults and orders requests by segment index.
func (p *BatchPayload) Normalize(preferredLocale string) {
	if p == nil {
		return
	}
	if p.Locale == "" {
		if preferredLocale != "" {
			p.Locale = preferredLocale
		} else {
			p.Locale = DefaultLocale
		}
	}
	for i := range p.Requests {
		req := &p.Requests[i]
		req.Prompt = strings.TrimSpace(req.Prompt)
		req.AspectRatio = strings.TrimSpace(req.AspectRatio)
		if req.AspectRatio == "" {
			req.AspectRatio = DefaultAspectRatio
		}
		if req.Duration <= 0 {
			req.Duration = DefaultDuration
		}
		if strings.TrimSpace(req.SegmentName) == "" {
			req.SegmentName = req.Name()
		}
	}
	sort.SliceStable(p.Requests, func(i, j int) bool {
		return p.Requests[i].SegmentIndex < p.Requests[j].SegmentIndex
	})
}

// Validate ensures the payload satisfies the contract before persistence.
func (p BatchPayload) Validate() error {
	if len(p.Requests) > MaxSegments {
		return fmt.Errorf("at most %d segments are allowed per batch", MaxSegments)
	}
	seen := make(map[int]struct{}, len(p.Requests))
	for _, req := range p.Requests {
		if req.SegmentIndex <= 0 {
			return fmt.Errorf("segment_index must be positive")
		}
		if _, dup := seen[req.SegmentIndex]; dup {
			return fmt.Errorf("segment_index %d is duplicated", req.SegmentIndex)
		}
		seen[req.SegmentIndex] = struct{}{}
		if req.Selected && req.Prompt == "" {
			return fmt.Errorf("segment %d: positive_prompt is required", req.SegmentIndex)
		}
		if _, ok := allowedAspectRatios[req.AspectRatio]; !ok {
			return fmt.Errorf("segment %d: ratio must be one of 16:9, 9:16, 1:1, 4:3, 3:4, 21:9, adaptive", req.SegmentIndex)
		}
	}
	return nil
}

func MustMarshal(v any) json.RawMessage {
	b, err := json.Marshal(v)
	if err != nil {
		panic(fmt.Errorf("json marshal: %w", err))
	}
	return b
}
