// Copyright 2026 The Gantry Authors
// SPDX-License-Identifier: Apache-2.0

package stream

import (
	"context"
	"fmt"

	"github.com/gorilla/websocket"
)

// WebSocketDialer returns the production Dialer, backed by
// gorilla/websocket with its default handshake settings.
func WebSocketDialer() Dialer {
	return &webSocketDialer{dialer: websocket.DefaultDialer}
}

type webSocketDialer struct {
	dialer *websocket.Dialer
}

func (d *webSocketDialer) Dial(ctx context.Context, target string) (Conn, error) {
	conn, response, err := d.dialer.DialContext(ctx, target, nil)
	if err != nil {
		if response != nil {
			response.Body.Close()
			return nil, fmt.Errorf("stream: dial %s: %w (HTTP %d)", target, err, response.StatusCode)
		}
		return nil, fmt.Errorf("stream: dial %s: %w", target, err)
	}
	return &webSocketConn{conn: conn}, nil
}

type webSocketConn struct {
	conn *websocket.Conn
}

// Read returns the next text or binary message. Control frames are
// handled by gorilla internally.
func (c *webSocketConn) Read() ([]byte, error) {
	_, data, err := c.conn.ReadMessage()
	return data, err
}

func (c *webSocketConn) Close() error {
	return c.conn.Close()
}
