// Copyright 2026 The TimeNest Authors
// SPDX-License-Identifier: Apache-2.0

package realtime

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/timenest/timenest-go/lib/clock"
)

// pingPeriod is how often an idle websocket link is pinged to keep
// intermediaries from dropping it.
const pingPeriod = 54 * time.Second

const writeWait = 10 * time.Second

// websocketLink is the preferred transport: a single websocket
// connection carrying JSON envelopes in both directions.
type websocketLink struct {
	conn *websocket.Conn

	// writeMu serializes writes; gorilla allows one concurrent
	// writer.
	writeMu sync.Mutex

	stopPing chan struct{}
	stopOnce sync.Once
}

// dialWebsocket opens a websocket to wsURL, authenticates with the
// token as the first frame, and starts the keepalive pinger.
func dialWebsocket(ctx context.Context, dialer *websocket.Dialer, clk clock.Clock, wsURL, token string) (*websocketLink, error) {
	conn, _, err := dialer.DialContext(ctx, wsURL, nil)
	if err != nil {
		return nil, fmt.Errorf("realtime: websocket dial %s: %w", wsURL, err)
	}

	lk := &websocketLink{
		conn:     conn,
		stopPing: make(chan struct{}),
	}

	if err := lk.WriteEvent(envelope{Event: "auth", Data: mustJSON(authPayload{Token: token})}); err != nil {
		conn.Close()
		return nil, fmt.Errorf("realtime: websocket auth: %w", err)
	}

	go lk.pingLoop(clk)
	return lk, nil
}

func (lk *websocketLink) pingLoop(clk clock.Clock) {
	ticker := clk.NewTicker(pingPeriod)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			lk.writeMu.Lock()
			lk.conn.SetWriteDeadline(time.Now().Add(writeWait))
			err := lk.conn.WriteMessage(websocket.PingMessage, nil)
			lk.writeMu.Unlock()
			if err != nil {
				return
			}
		case <-lk.stopPing:
			return
		}
	}
}

func (lk *websocketLink) ReadEvent() (*envelope, error) {
	var env envelope
	if err := lk.conn.ReadJSON(&env); err != nil {
		return nil, err
	}
	return &env, nil
}

func (lk *websocketLink) WriteEvent(env envelope) error {
	lk.writeMu.Lock()
	defer lk.writeMu.Unlock()
	lk.conn.SetWriteDeadline(time.Now().Add(writeWait))
	return lk.conn.WriteJSON(env)
}

func (lk *websocketLink) Close() error {
	lk.stopOnce.Do(func() { close(lk.stopPing) })
	lk.writeMu.Lock()
	lk.conn.SetWriteDeadline(time.Now().Add(writeWait))
	lk.conn.WriteMessage(websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
	lk.writeMu.Unlock()
	return lk.conn.Close()
}

func (lk *websocketLink) Transport() Transport { return TransportWebSocket }
