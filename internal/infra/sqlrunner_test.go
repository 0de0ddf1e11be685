package infra

import (
	"strings"
	"testing"

	"recreator/internal/sqlinline"
)

func TestInlineQueriesCarryMarkers(t *testing.T) {
	queries := map[string]string{
		"QCreateSchema":           sqlinline.QCreateSchema,
		"QInsertBatch":            sqlinline.QInsertBatch,
		"QSelectBatch":            sqlinline.QSelectBatch,
		"QClaimBatch":             sqlinline.QClaimBatch,
		"QSelectBatchRequests":    sqlinline.QSelectBatchRequests,
		"QUpdateBatchStatus":      sqlinline.QUpdateBatchStatus,
		"QUpdateBatchResult":      sqlinline.QUpdateBatchResult,
		"QUpdateBatchMerge":       sqlinline.QUpdateBatchMerge,
		"QSelectIntegrationToken": sqlinline.QSelectIntegrationToken,
		"QUpsertIntegrationToken": sqlinline.QUpsertIntegrationToken,
	}
	seen := make(map[string]string, len(queries))
	for name, q := range queries {
		marker, stmt, err := extractMarker(q)
		if err != nil {
			t.Fatalf("%s: %v", name, err)
		}
		if other, dup := seen[marker]; dup {
			t.Fatalf("%s reuses marker %s of %s", name, marker, other)
		}
		seen[marker] = name
		if strings.Contains(stmt, "--sql") || strings.TrimSpace(stmt) == "" {
			t.Fatalf("%s: unexpected statement %q", name, stmt)
		}
	}
}

func TestStripMarkerRejectsUntagged(t *testing.T) {
	if _, err := StripMarker("select 1"); err == nil {
		t.Fatal("expected error for untagged query")
	}
	stmt, err := StripMarker("--sql 00000000-0000-0000-0000-000000000000\nselect 1;")
	if err != nil || stmt != "select 1;" {
		t.Fatalf("StripMarker = %q, %v", stmt, err)
	}
}
