// Copyright 2026 The Gantry Authors
// SPDX-License-Identifier: Apache-2.0

package netutil

import (
	"bytes"
	"fmt"
	"testing"
)

func TestReadResponse(t *testing.T) {
	t.Run("normal body", func(t *testing.T) {
		data, err := ReadResponse(bytes.NewReader([]byte(`{"status":"resumed"}`)))
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if string(data) != `{"status":"resumed"}` {
			t.Fatalf("got %q, want %q", data, `{"status":"resumed"}`)
		}
	})

	t.Run("empty body", func(t *testing.T) {
		data, err := ReadResponse(bytes.NewReader(nil))
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if len(data) != 0 {
			t.Fatalf("expected empty, got %d bytes", len(data))
		}
	})

	t.Run("read error propagates", func(t *testing.T) {
		if _, err := ReadResponse(&failReader{}); err == nil {
			t.Fatal("expected error from failing reader")
		}
	})
}

func TestDecodeResponse(t *testing.T) {
	t.Run("valid JSON", func(t *testing.T) {
		body := bytes.NewReader([]byte(`{"unit_id":"ENGINE-001","rul":42.5}`))
		var result struct {
			UnitID string  `json:"unit_id"`
			RUL    float64 `json:"rul"`
		}
		if err := DecodeResponse(body, &result); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if result.UnitID != "ENGINE-001" {
			t.Fatalf("unit_id: got %q, want %q", result.UnitID, "ENGINE-001")
		}
		if result.RUL != 42.5 {
			t.Fatalf("rul: got %v, want %v", result.RUL, 42.5)
		}
	})

	t.Run("invalid JSON", func(t *testing.T) {
		if err := DecodeResponse(bytes.NewReader([]byte(`not json`)), &struct{}{}); err == nil {
			t.Fatal("expected error for invalid JSON")
		}
	})

	t.Run("read error propagates", func(t *testing.T) {
		if err := DecodeResponse(&failReader{}, &struct{}{}); err == nil {
			t.Fatal("expected error from failing reader")
		}
	})
}

func TestErrorBody(t *testing.T) {
	t.Run("returns body as string", func(t *testing.T) {
		got := ErrorBody(bytes.NewReader([]byte(`{"detail":"unit not found"}`)))
		if got != `{"detail":"unit not found"}` {
			t.Fatalf("got %q, want %q", got, `{"detail":"unit not found"}`)
		}
	})

	t.Run("read error returns empty", func(t *testing.T) {
		if got := ErrorBody(&failReader{}); got != "" {
			t.Fatalf("expected empty from failing reader, got %q", got)
		}
	})
}

// failReader always returns an error on Read.
type failReader struct{}

func (*failReader) Read([]byte) (int, error) {
	return 0, fmt.Errorf("simulated read failure")
}
