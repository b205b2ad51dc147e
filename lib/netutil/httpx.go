// Copyright 2026 The Gantry Authors
// SPDX-License-Identifier: Apache-2.0

// Package netutil provides HTTP I/O helpers shared by the twin backend
// and its REST clients.
//
// All response body reads are bounded at MaxResponseSize so a
// misbehaving peer cannot exhaust memory. The helpers are for JSON API
// responses, not for streaming transfers, which should be read
// incrementally.
package netutil

import (
	"encoding/json"
	"fmt"
	"io"
)

// MaxResponseSize bounds JSON API response body reads: 16 MB. Twin API
// responses (solutions, unit listings, chat replies) are a few KB at
// most; the limit is generous enough to never interfere with normal
// operation.
const MaxResponseSize int64 = 16 << 20

// ReadResponse reads a JSON API response body up to MaxResponseSize
// bytes. Use instead of io.ReadAll for HTTP response bodies.
func ReadResponse(body io.Reader) ([]byte, error) {
	return io.ReadAll(io.LimitReader(body, MaxResponseSize))
}

// DecodeResponse reads a JSON API response body (bounded at
// MaxResponseSize) and decodes it into v.
func DecodeResponse(body io.Reader, v any) error {
	data, err := io.ReadAll(io.LimitReader(body, MaxResponseSize))
	if err != nil {
		return fmt.Errorf("reading response body: %w", err)
	}
	return json.Unmarshal(data, v)
}

// ErrorBody reads an HTTP error response body as a string for
// diagnostic messages. Read errors are ignored — a partial body is
// still useful in an error message.
func ErrorBody(body io.Reader) string {
	data, _ := io.ReadAll(io.LimitReader(body, MaxResponseSize))
	return string(data)
}
