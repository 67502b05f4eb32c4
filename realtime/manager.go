// Copyright 2026 The TimeNest Authors
// SPDX-License-Identifier: Apache-2.0

package realtime

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"math/rand"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"github.com/timenest/timenest-go/chat"
	"github.com/timenest/timenest-go/lib/clock"
	"github.com/timenest/timenest-go/session"
)

// DefaultUpgradeInterval is how often a long-poll connection retries
// the websocket upgrade.
const DefaultUpgradeInterval = 30 * time.Second

const (
	defaultBackoffBase = time.Second
	defaultBackoffCap  = 30 * time.Second
)

// ConnectionState is delivered to connection watchers on every
// transition. Err carries the disconnect reason when Connected is
// false; a disconnect never triggers logout by itself.
type ConnectionState struct {
	Connected bool
	Transport Transport
	Err       error
}

// ManagerConfig holds configuration for creating a Manager.
type ManagerConfig struct {
	// BaseURL is the realtime endpoint's HTTP base URL. The websocket
	// URL is derived from it by scheme swap.
	BaseURL string
	// HTTPClient is used for long-poll requests. If nil,
	// http.DefaultClient is used.
	HTTPClient *http.Client
	// Dialer is used for websocket connections. If nil,
	// websocket.DefaultDialer is used.
	Dialer *websocket.Dialer
	// Clock drives reconnect backoff and upgrade timers. If nil, the
	// real clock is used.
	Clock clock.Clock
	// Logger is used for structured logging. If nil, slog.Default() is used.
	Logger *slog.Logger
	// UpgradeInterval overrides DefaultUpgradeInterval.
	UpgradeInterval time.Duration
}

// Manager owns the single live connection to the realtime endpoint.
// A credential opens exactly one connection, websocket preferred with
// long-poll fallback and post-connect upgrade; losing the credential
// closes it deterministically. A new credential always supersedes and
// replaces any prior connection. Inbound events are delivered
// asynchronously to scoped subscriptions; outbound signals are
// fire-and-forget and drop silently while disconnected.
type Manager struct {
	baseURL         string
	wsURL           string
	httpClient      *http.Client
	dialer          *websocket.Dialer
	clock           clock.Clock
	logger          *slog.Logger
	upgradeInterval time.Duration
	backoffBase     time.Duration
	backoffCap      time.Duration

	mu        sync.Mutex
	token     string
	gen       int
	link      link
	connected bool
	transport Transport
	cancelRun context.CancelFunc
	closed    bool

	subMu       sync.Mutex
	messageSubs map[*Subscription]func(chat.Message)
	startSubs   map[*Subscription]func(TypingEvent)
	stopSubs    map[*Subscription]func(TypingEvent)
	statusSubs  map[*Subscription]func(UserStatusEvent)
	connSubs    map[*Subscription]func(ConnectionState)
}

// NewManager creates a Manager. No connection is opened until a
// credential arrives via SetCredential or BindStore.
func NewManager(config ManagerConfig) (*Manager, error) {
	if config.BaseURL == "" {
		return nil, fmt.Errorf("realtime: BaseURL is required")
	}
	wsURL, err := deriveWebsocketURL(config.BaseURL)
	if err != nil {
		return nil, err
	}

	httpClient := config.HTTPClient
	if httpClient == nil {
		httpClient = http.DefaultClient
	}
	dialer := config.Dialer
	if dialer == nil {
		dialer = websocket.DefaultDialer
	}
	clk := config.Clock
	if clk == nil {
		clk = clock.Real()
	}
	logger := config.Logger
	if logger == nil {
		logger = slog.Default()
	}
	upgradeInterval := config.UpgradeInterval
	if upgradeInterval <= 0 {
		upgradeInterval = DefaultUpgradeInterval
	}

	return &Manager{
		baseURL:         strings.TrimRight(config.BaseURL, "/"),
		wsURL:           wsURL,
		httpClient:      httpClient,
		dialer:          dialer,
		clock:           clk,
		logger:          logger,
		upgradeInterval: upgradeInterval,
		backoffBase:     defaultBackoffBase,
		backoffCap:      defaultBackoffCap,
		messageSubs:     make(map[*Subscription]func(chat.Message)),
		startSubs:       make(map[*Subscription]func(TypingEvent)),
		stopSubs:        make(map[*Subscription]func(TypingEvent)),
		statusSubs:      make(map[*Subscription]func(UserStatusEvent)),
		connSubs:        make(map[*Subscription]func(ConnectionState)),
	}, nil
}

// deriveWebsocketURL swaps the HTTP scheme for the websocket one and
// appends the endpoint path.
func deriveWebsocketURL(baseURL string) (string, error) {
	parsed, err := url.Parse(baseURL)
	if err != nil {
		return "", fmt.Errorf("realtime: invalid BaseURL %q: %w", baseURL, err)
	}
	switch parsed.Scheme {
	case "http":
		parsed.Scheme = "ws"
	case "https":
		parsed.Scheme = "wss"
	case "ws", "wss":
	default:
		return "", fmt.Errorf("realtime: unsupported BaseURL scheme %q", parsed.Scheme)
	}
	parsed.Path = strings.TrimRight(parsed.Path, "/") + "/ws"
	return parsed.String(), nil
}

// SetCredential replaces the connection's credential. A non-empty
// token closes any prior connection and opens a new one; an empty
// token closes the connection and goes idle. Setting the same token
// again is a no-op.
func (m *Manager) SetCredential(token string) {
	m.mu.Lock()
	if m.closed || token == m.token {
		m.mu.Unlock()
		return
	}
	m.token = token
	m.gen++
	gen := m.gen
	if m.cancelRun != nil {
		m.cancelRun()
		m.cancelRun = nil
	}
	if m.link != nil {
		m.link.Close()
		m.link = nil
	}
	wasConnected := m.connected
	m.connected = false
	m.transport = ""
	var ctx context.Context
	if token != "" {
		ctx, m.cancelRun = context.WithCancel(context.Background())
	}
	m.mu.Unlock()

	if wasConnected {
		m.notifyConnection(ConnectionState{Connected: false, Err: errors.New("credential replaced")})
	}
	if token != "" {
		go m.run(ctx, gen, token)
	}
}

// BindStore synchronizes the Manager with a session store: connect on
// login, disconnect on logout. The current credential, if any, takes
// effect immediately. Cancel the returned subscription to unbind.
func (m *Manager) BindStore(store *session.Store) *session.Subscription {
	if cred, ok := store.Current(); ok {
		m.SetCredential(cred.Token)
	}
	return store.Watch(func(cred *session.Credential) {
		if cred == nil {
			m.SetCredential("")
			return
		}
		m.SetCredential(cred.Token)
	})
}

// Connected reports whether a live connection currently exists.
func (m *Manager) Connected() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.connected
}

// CurrentTransport returns the live connection's transport, or "" when
// disconnected.
func (m *Manager) CurrentTransport() Transport {
	m.mu.Lock()
	defer m.mu.Unlock()
	if !m.connected {
		return ""
	}
	return m.transport
}

// Close tears down the connection and all subscriptions. The Manager
// cannot be reused afterwards.
func (m *Manager) Close() {
	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return
	}
	m.closed = true
	m.gen++
	m.token = ""
	if m.cancelRun != nil {
		m.cancelRun()
		m.cancelRun = nil
	}
	if m.link != nil {
		m.link.Close()
		m.link = nil
	}
	wasConnected := m.connected
	m.connected = false
	m.mu.Unlock()

	if wasConnected {
		m.notifyConnection(ConnectionState{Connected: false, Err: errors.New("manager closed")})
	}
	m.RemoveAll()
	m.subMu.Lock()
	m.connSubs = make(map[*Subscription]func(ConnectionState))
	m.subMu.Unlock()
}

// run is the per-credential connection loop: connect with transport
// fallback, read until disconnect, back off, retry. It exits when the
// credential is replaced or the Manager closes.
func (m *Manager) run(ctx context.Context, gen int, token string) {
	logger := m.logger.With("conn", uuid.NewString()[:8])
	attempt := 0
	for ctx.Err() == nil {
		lk, err := m.connect(ctx, token)
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			logger.Warn("realtime connect failed", "error", err)
			if !m.sleep(ctx, m.backoff(attempt)) {
				return
			}
			attempt++
			continue
		}
		attempt = 0
		if !m.adopt(gen, lk) {
			lk.Close()
			return
		}
		m.setState(gen, true, lk.Transport(), nil)
		logger.Info("realtime connected", "transport", lk.Transport())

		var upgradeCancel context.CancelFunc
		if lk.Transport() == TransportLongPoll {
			var upgradeCtx context.Context
			upgradeCtx, upgradeCancel = context.WithCancel(ctx)
			go m.upgradeLoop(upgradeCtx, gen, token)
		}

		readErr := m.readLoop(ctx, gen)
		if upgradeCancel != nil {
			upgradeCancel()
		}
		if ctx.Err() != nil {
			return
		}
		logger.Warn("realtime disconnected", "error", readErr)
		m.setState(gen, false, "", readErr)
		if !m.sleep(ctx, m.backoff(0)) {
			return
		}
	}
}

// connect tries the preferred transport first, then the fallback.
func (m *Manager) connect(ctx context.Context, token string) (link, error) {
	wsLink, wsErr := dialWebsocket(ctx, m.dialer, m.clock, m.wsURL, token)
	if wsErr == nil {
		return wsLink, nil
	}
	m.logger.Debug("websocket unavailable, falling back to long poll", "error", wsErr)
	pollLink, pollErr := openLongpoll(ctx, m.httpClient, m.baseURL, token)
	if pollErr == nil {
		return pollLink, nil
	}
	return nil, errors.Join(wsErr, pollErr)
}

// readLoop drains the current link and dispatches events. A read
// error on a link that has since been replaced (websocket upgrade)
// continues on the new link; any other error is a disconnect.
func (m *Manager) readLoop(ctx context.Context, gen int) error {
	for {
		lk := m.currentLink(gen)
		if lk == nil {
			return errors.New("connection replaced")
		}
		env, err := lk.ReadEvent()
		if err != nil {
			if ctx.Err() != nil {
				return err
			}
			if m.currentLink(gen) != lk {
				continue
			}
			return err
		}
		m.dispatch(env)
	}
}

// upgradeLoop periodically retries the preferred transport while the
// connection runs on the fallback. On success the fallback link is
// swapped out in place; the read loop carries on over the new link.
func (m *Manager) upgradeLoop(ctx context.Context, gen int, token string) {
	for {
		select {
		case <-ctx.Done():
			return
		case <-m.clock.After(m.upgradeInterval):
		}
		wsLink, err := dialWebsocket(ctx, m.dialer, m.clock, m.wsURL, token)
		if err != nil {
			m.logger.Debug("websocket upgrade attempt failed", "error", err)
			continue
		}
		if !m.adopt(gen, wsLink) {
			wsLink.Close()
			return
		}
		m.setState(gen, true, TransportWebSocket, nil)
		m.logger.Info("realtime upgraded", "transport", TransportWebSocket)
		return
	}
}

// adopt installs lk as the current link, closing any predecessor.
// Returns false if the generation has moved on.
func (m *Manager) adopt(gen int, lk link) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.gen != gen || m.closed {
		return false
	}
	if m.link != nil {
		m.link.Close()
	}
	m.link = lk
	return true
}

func (m *Manager) currentLink(gen int) link {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.gen != gen {
		return nil
	}
	return m.link
}

// setState records connectedness for a generation and notifies
// watchers on change.
func (m *Manager) setState(gen int, connected bool, transport Transport, reason error) {
	m.mu.Lock()
	if m.gen != gen {
		m.mu.Unlock()
		return
	}
	changed := m.connected != connected || m.transport != transport
	m.connected = connected
	m.transport = transport
	m.mu.Unlock()
	if changed {
		m.notifyConnection(ConnectionState{Connected: connected, Transport: transport, Err: reason})
	}
}

// sleep waits for d on the manager's clock. Returns false if ctx was
// cancelled first.
func (m *Manager) sleep(ctx context.Context, d time.Duration) bool {
	select {
	case <-ctx.Done():
		return false
	case <-m.clock.After(d):
		return true
	}
}

// backoff returns the reconnect delay for the given attempt:
// exponential from the base, capped, with half-range jitter so
// simultaneous clients spread out.
func (m *Manager) backoff(attempt int) time.Duration {
	delay := m.backoffBase
	for i := 0; i < attempt && delay < m.backoffCap; i++ {
		delay *= 2
	}
	if delay > m.backoffCap {
		delay = m.backoffCap
	}
	half := delay / 2
	return half + time.Duration(rand.Int63n(int64(half+1)))
}

// JoinConversation announces interest in a conversation's events.
// No-op while disconnected.
func (m *Manager) JoinConversation(conversationID int64) {
	m.emit(eventJoinConversation, conversationID)
}

// LeaveConversation retracts interest in a conversation's events.
// No-op while disconnected.
func (m *Manager) LeaveConversation(conversationID int64) {
	m.emit(eventLeaveConversation, conversationID)
}

// TypingStart signals that the user started typing in a conversation.
// Callers own their debounce policy. No-op while disconnected.
func (m *Manager) TypingStart(conversationID int64) {
	m.emit(eventTypingStart, conversationID)
}

// TypingStop signals that the user stopped typing in a conversation.
// No-op while disconnected.
func (m *Manager) TypingStop(conversationID int64) {
	m.emit(eventTypingStop, conversationID)
}

// emit writes a fire-and-forget signal to the current link. Dropped
// silently while disconnected, including the backoff window where a
// dead link is still installed; write failures are logged, not
// returned.
func (m *Manager) emit(event string, conversationID int64) {
	m.mu.Lock()
	lk := m.link
	connected := m.connected
	m.mu.Unlock()
	if lk == nil || !connected {
		m.logger.Debug("dropping signal while disconnected", "event", event, "conversation", conversationID)
		return
	}
	env := envelope{Event: event, Data: mustJSON(conversationRef{ConversationID: conversationID})}
	if err := lk.WriteEvent(env); err != nil {
		m.logger.Warn("signal write failed", "event", event, "conversation", conversationID, "error", err)
	}
}

// dispatch decodes an inbound envelope and delivers it to the event
// class's subscribers. Events arrive out-of-band relative to any
// in-flight request/response call; consumers reconcile by message id.
func (m *Manager) dispatch(env *envelope) {
	switch env.Event {
	case eventNewMessage:
		var message chat.Message
		if err := json.Unmarshal(env.Data, &message); err != nil {
			m.logger.Warn("undecodable new_message event", "error", err)
			return
		}
		for _, fn := range snapshotSubs(&m.subMu, m.messageSubs) {
			fn(message)
		}
	case eventTypingStart:
		var typing TypingEvent
		if err := json.Unmarshal(env.Data, &typing); err != nil {
			m.logger.Warn("undecodable typing_start event", "error", err)
			return
		}
		for _, fn := range snapshotSubs(&m.subMu, m.startSubs) {
			fn(typing)
		}
	case eventTypingStop:
		var typing TypingEvent
		if err := json.Unmarshal(env.Data, &typing); err != nil {
			m.logger.Warn("undecodable typing_stop event", "error", err)
			return
		}
		for _, fn := range snapshotSubs(&m.subMu, m.stopSubs) {
			fn(typing)
		}
	case eventUserStatus:
		var status UserStatusEvent
		if err := json.Unmarshal(env.Data, &status); err != nil {
			m.logger.Warn("undecodable user_status event", "error", err)
			return
		}
		for _, fn := range snapshotSubs(&m.subMu, m.statusSubs) {
			fn(status)
		}
	default:
		m.logger.Debug("ignoring unknown event", "event", env.Event)
	}
}

func (m *Manager) notifyConnection(state ConnectionState) {
	for _, fn := range snapshotSubs(&m.subMu, m.connSubs) {
		fn(state)
	}
}

// snapshotSubs copies a subscriber set under the lock so callbacks
// run outside it.
func snapshotSubs[T any](mu *sync.Mutex, subs map[*Subscription]T) []T {
	mu.Lock()
	defer mu.Unlock()
	fns := make([]T, 0, len(subs))
	for _, fn := range subs {
		fns = append(fns, fn)
	}
	return fns
}

// OnNewMessage registers a listener for pushed messages. No replay: a
// listener never sees events that fired before registration.
func (m *Manager) OnNewMessage(fn func(chat.Message)) *Subscription {
	return addSub(m, m.messageSubs, fn)
}

// OnTypingStart registers a listener for typing-start indicators.
func (m *Manager) OnTypingStart(fn func(TypingEvent)) *Subscription {
	return addSub(m, m.startSubs, fn)
}

// OnTypingStop registers a listener for typing-stop indicators.
func (m *Manager) OnTypingStop(fn func(TypingEvent)) *Subscription {
	return addSub(m, m.stopSubs, fn)
}

// OnUserStatus registers a listener for online/offline transitions.
func (m *Manager) OnUserStatus(fn func(UserStatusEvent)) *Subscription {
	return addSub(m, m.statusSubs, fn)
}

// OnConnectionChange registers a listener for connectedness
// transitions, including transport upgrades.
func (m *Manager) OnConnectionChange(fn func(ConnectionState)) *Subscription {
	return addSub(m, m.connSubs, fn)
}

func addSub[T any](m *Manager, subs map[*Subscription]T, fn T) *Subscription {
	m.subMu.Lock()
	defer m.subMu.Unlock()
	sub := &Subscription{}
	sub.cancel = func() {
		m.subMu.Lock()
		defer m.subMu.Unlock()
		delete(subs, sub)
	}
	subs[sub] = fn
	return sub
}

// RemoveAll drops every inbound event listener (new-message, typing,
// user-status). Connection watchers registered with
// OnConnectionChange are unaffected. Idempotent.
func (m *Manager) RemoveAll() {
	m.subMu.Lock()
	defer m.subMu.Unlock()
	clear(m.messageSubs)
	clear(m.startSubs)
	clear(m.stopSubs)
	clear(m.statusSubs)
}
