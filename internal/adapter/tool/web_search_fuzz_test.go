package tool

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"testing"

	"smart-query/internal/domain"
)

// FuzzWebSearchTool fuzzes the search tool for parameter validation bypass.
func FuzzWebSearchTool(f *testing.F) {
	backend := newMockBackend(nil)
	ws := NewWebSearchTool(backend, 0, newTestLogger())

	f.Add(`{"query":"golang tutorial"}`)
	f.Add(`{"query":""}`)
	f.Add(`{"query":"   "}`)
	f.Add(`{"query":"test\r\nX-Injected: true"}`)
	f.Add(`{"query":"` + strings.Repeat("A", 10*1024) + `"}`)
	f.Add(`malformed json`)
	f.Add(`{"query":"\x00test"}`)
	f.Add(`{"query":"test","extra":"ignored"}`)

	f.Fuzz(func(t *testing.T, input string) {
		result, err := ws.Execute(context.Background(), json.RawMessage(input))

		// Validation failures surface as invalid-argument domain errors so
		// the turn loop can absorb them; everything else must produce a
		// result the model can read.
		if err != nil {
			if !errors.Is(err, domain.ErrInvalidToolArgs) {
				t.Fatalf("unexpected error kind: %v", err)
			}
			return
		}
		if result == nil {
			t.Fatal("Execute returned nil result without error")
		}

		// A blank query must never succeed.
		var params webSearchParams
		if json.Unmarshal([]byte(input), &params) == nil && !result.IsError {
			if strings.TrimSpace(params.Query) == "" {
				t.Error("empty query succeeded")
			}
		}
	})
}
