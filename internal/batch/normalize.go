package batch

import (
	"encoding/json"
	"fmt"
	"sort"
	"strconv"
	"strings"

	"recreator/internal/domain"
)

// NormalizeArtifacts converts every accepted external representation of a
// success list into SegmentArtifacts sorted by segment index. Accepted shapes:
//
//   - SegmentArtifact values, pointers and slices
//   - {"segment_index": 1, "segment_name": "...", "video_url": "..."} records
//     (artifact_url and url are accepted for the URL)
//   - {"segment_3": "https://..."} single-key records
//   - lists of any of the above, as []any or typed slices; a bare URL in a
//     list is numbered by its position (first element is segment 1)
//   - a JSON document holding any of the above, or a bare URL (segment 1)
//
// Anything else yields domain.ErrUnsupportedShape; a recognized record that
// fails validation yields domain.ErrMalformedArtifact. Two entries claiming
// the same segment index yield a *domain.DuplicateSegmentError.
func NormalizeArtifacts(v any) ([]domain.SegmentArtifact, error) {
	var out []domain.SegmentArtifact
	if err := collectArtifacts(v, &out); err != nil {
		return nil, err
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].SegmentIndex < out[j].SegmentIndex })
	for i := 1; i < len(out); i++ {
		if out[i].SegmentIndex == out[i-1].SegmentIndex {
			return nil, &domain.DuplicateSegmentError{SegmentIndex: out[i].SegmentIndex}
		}
	}
	return out, nil
}

func collectArtifacts(v any, out *[]domain.SegmentArtifact) error {
	switch t := v.(type) {
	case nil:
		return nil
	case domain.SegmentArtifact:
		a, err := domain.NewSegmentArtifact(t.SegmentIndex, t.SegmentName, t.ArtifactURL)
		if err != nil {
			return err
		}
		*out = append(*out, a)
	case *domain.SegmentArtifact:
		if t == nil {
			return nil
		}
		return collectArtifacts(*t, out)
	case []domain.SegmentArtifact:
		for _, a := range t {
			if err := collectArtifacts(a, out); err != nil {
				return err
			}
		}
	case string:
		return collectString(t, 1, out)
	case []byte:
		return collectString(string(t), 1, out)
	case json.RawMessage:
		return collectString(string(t), 1, out)
	case map[string]any:
		a, err := artifactFromRecord(t)
		if err != nil {
			return err
		}
		*out = append(*out, a)
	case map[string]string:
		rec := make(map[string]any, len(t))
		for k, val := range t {
			rec[k] = val
		}
		return collectArtifacts(rec, out)
	case []map[string]any:
		for _, rec := range t {
			if err := collectArtifacts(rec, out); err != nil {
				return err
			}
		}
	case []map[string]string:
		for _, rec := range t {
			if err := collectArtifacts(rec, out); err != nil {
				return err
			}
		}
	case []string:
		for i, s := range t {
			if err := collectString(s, i+1, out); err != nil {
				return err
			}
		}
	case []any:
		for i, item := range t {
			var err error
			switch el := item.(type) {
			case []any:
				return fmt.Errorf("%w: nested list", domain.ErrUnsupportedShape)
			case string:
				err = collectString(el, i+1, out)
			default:
				err = collectArtifacts(item, out)
			}
			if err != nil {
				return err
			}
		}
	default:
		return fmt.Errorf("%w: %T", domain.ErrUnsupportedShape, v)
	}
	return nil
}

// collectString reads s as a JSON document or as a bare URL for segment
// index.
func collectString(s string, index int, out *[]domain.SegmentArtifact) error {
	s = strings.TrimSpace(s)
	if s == "" {
		return nil
	}
	if strings.HasPrefix(s, "{") || strings.HasPrefix(s, "[") {
		var decoded any
		if err := json.Unmarshal([]byte(s), &decoded); err != nil {
			return fmt.Errorf("%w: invalid json: %v", domain.ErrUnsupportedShape, err)
		}
		return collectArtifacts(decoded, out)
	}
	a, err := domain.NewSegmentArtifact(index, "", s)
	if err != nil {
		return err
	}
	*out = append(*out, a)
	return nil
}

func artifactFromRecord(rec map[string]any) (domain.SegmentArtifact, error) {
	if url, ok := firstString(rec, "video_url", "artifact_url", "url"); ok {
		index, _ := intField(rec["segment_index"])
		name, _ := rec["segment_name"].(string)
		return domain.NewSegmentArtifact(index, name, url)
	}
	if len(rec) == 1 {
		for key, val := range rec {
			url, ok := val.(string)
			if !ok {
				break
			}
			index, name := parseSegmentKey(key)
			return domain.NewSegmentArtifact(index, name, url)
		}
	}
	return domain.SegmentArtifact{}, fmt.Errorf("%w: record without artifact url", domain.ErrUnsupportedShape)
}

func firstString(rec map[string]any, keys ...string) (string, bool) {
	for _, k := range keys {
		if s, ok := rec[k].(string); ok {
			return s, true
		}
	}
	return "", false
}

func intField(v any) (int, bool) {
	switch n := v.(type) {
	case int:
		return n, true
	case int64:
		return int(n), true
	case float64:
		return int(n), n == float64(int(n))
	case json.Number:
		i, err := n.Int64()
		return int(i), err == nil
	case string:
		i, err := strconv.Atoi(strings.TrimSpace(n))
		return i, err == nil
	default:
		return 0, false
	}
}

// parseSegmentKey reads "segment_3" as index 3. Other keys become the name.
func parseSegmentKey(key string) (int, string) {
	key = strings.TrimSpace(key)
	if rest, ok := strings.CutPrefix(key, "segment_"); ok {
		if i, err := strconv.Atoi(rest); err == nil {
			return i, key
		}
	}
	return 0, key
}
