// Copyright 2026 The TimeNest Authors
// SPDX-License-Identifier: Apache-2.0

package realtime

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"sync"

	"github.com/timenest/timenest-go/lib/httputil"
)

// longpollLink is the fallback transport: a server-assigned poll
// session drained with long GET requests and fed with POSTs. Events
// arrive in batches; ReadEvent returns them one at a time.
type longpollLink struct {
	baseURL    string
	httpClient *http.Client
	sessionID  string

	// cancel aborts the in-flight poll request so Close unblocks a
	// blocked ReadEvent.
	ctx    context.Context
	cancel context.CancelFunc

	mu      sync.Mutex
	pending []envelope
	cursor  int64
	closed  bool
}

type pollOpenResponse struct {
	SessionID string `json:"session_id"`
}

type pollBatch struct {
	Events []envelope `json:"events"`
	Cursor int64      `json:"cursor"`
}

// openLongpoll establishes a poll session, authenticating with the
// token in the request body.
func openLongpoll(ctx context.Context, httpClient *http.Client, baseURL, token string) (*longpollLink, error) {
	body, err := json.Marshal(authPayload{Token: token})
	if err != nil {
		return nil, fmt.Errorf("realtime: encode poll auth: %w", err)
	}
	request, err := http.NewRequestWithContext(ctx, http.MethodPost, baseURL+"/poll/open", bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("realtime: poll open request: %w", err)
	}
	request.Header.Set("Content-Type", "application/json")

	response, err := httpClient.Do(request)
	if err != nil {
		return nil, fmt.Errorf("realtime: poll open: %w", err)
	}
	defer response.Body.Close()
	if response.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("realtime: poll open: status %d", response.StatusCode)
	}

	var opened pollOpenResponse
	if err := httputil.DecodeResponse(response.Body, &opened); err != nil {
		return nil, fmt.Errorf("realtime: poll open response: %w", err)
	}
	if opened.SessionID == "" {
		return nil, fmt.Errorf("realtime: poll open response missing session id")
	}

	linkCtx, cancel := context.WithCancel(context.Background())
	return &longpollLink{
		baseURL:    baseURL,
		httpClient: httpClient,
		sessionID:  opened.SessionID,
		ctx:        linkCtx,
		cancel:     cancel,
	}, nil
}

// ReadEvent returns the next buffered event, polling the server for a
// fresh batch when the buffer is empty. Empty batches (poll timeout)
// are retried until an event arrives or the link is closed.
func (lk *longpollLink) ReadEvent() (*envelope, error) {
	for {
		lk.mu.Lock()
		if len(lk.pending) > 0 {
			env := lk.pending[0]
			lk.pending = lk.pending[1:]
			lk.mu.Unlock()
			return &env, nil
		}
		if lk.closed {
			lk.mu.Unlock()
			return nil, fmt.Errorf("realtime: poll session closed")
		}
		cursor := lk.cursor
		lk.mu.Unlock()

		batch, err := lk.poll(cursor)
		if err != nil {
			return nil, err
		}

		lk.mu.Lock()
		lk.pending = append(lk.pending, batch.Events...)
		if batch.Cursor > lk.cursor {
			lk.cursor = batch.Cursor
		}
		lk.mu.Unlock()
	}
}

func (lk *longpollLink) poll(cursor int64) (*pollBatch, error) {
	query := url.Values{}
	query.Set("session", lk.sessionID)
	query.Set("since", strconv.FormatInt(cursor, 10))
	request, err := http.NewRequestWithContext(lk.ctx, http.MethodGet, lk.baseURL+"/poll?"+query.Encode(), nil)
	if err != nil {
		return nil, fmt.Errorf("realtime: poll request: %w", err)
	}

	response, err := lk.httpClient.Do(request)
	if err != nil {
		return nil, fmt.Errorf("realtime: poll: %w", err)
	}
	defer response.Body.Close()
	if response.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("realtime: poll: status %d", response.StatusCode)
	}

	var batch pollBatch
	if err := httputil.DecodeResponse(response.Body, &batch); err != nil {
		return nil, fmt.Errorf("realtime: poll response: %w", err)
	}
	return &batch, nil
}

func (lk *longpollLink) WriteEvent(env envelope) error {
	body, err := json.Marshal(env)
	if err != nil {
		return fmt.Errorf("realtime: encode event: %w", err)
	}
	query := url.Values{}
	query.Set("session", lk.sessionID)
	request, err := http.NewRequestWithContext(lk.ctx, http.MethodPost, lk.baseURL+"/poll/emit?"+query.Encode(), bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("realtime: emit request: %w", err)
	}
	request.Header.Set("Content-Type", "application/json")

	response, err := lk.httpClient.Do(request)
	if err != nil {
		return fmt.Errorf("realtime: emit: %w", err)
	}
	defer response.Body.Close()
	if response.StatusCode >= 300 {
		return fmt.Errorf("realtime: emit: status %d", response.StatusCode)
	}
	return nil
}

func (lk *longpollLink) Close() error {
	lk.mu.Lock()
	if lk.closed {
		lk.mu.Unlock()
		return nil
	}
	lk.closed = true
	lk.mu.Unlock()
	lk.cancel()

	// Best effort: tell the server to drop the session. The poll
	// context is cancelled, so use a fresh short-lived request.
	query := url.Values{}
	query.Set("session", lk.sessionID)
	request, err := http.NewRequest(http.MethodDelete, lk.baseURL+"/poll?"+query.Encode(), nil)
	if err != nil {
		return nil
	}
	if response, err := lk.httpClient.Do(request); err == nil {
		response.Body.Close()
	}
	return nil
}

func (lk *longpollLink) Transport() Transport { return TransportLongPoll }
