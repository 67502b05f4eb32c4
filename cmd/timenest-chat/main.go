// Copyright 2026 The TimeNest Authors
// SPDX-License-Identifier: Apache-2.0

// timenest-chat is a terminal client for the TimeNest messaging
// service: log in, list conversations, watch a conversation's live
// timeline, and send messages.
package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"strconv"
	"syscall"
	"time"

	"github.com/spf13/pflag"
	"golang.org/x/term"

	"github.com/timenest/timenest-go/chat"
	"github.com/timenest/timenest-go/config"
	"github.com/timenest/timenest-go/credential"
	"github.com/timenest/timenest-go/lib/kvstore"
	"github.com/timenest/timenest-go/realtime"
	"github.com/timenest/timenest-go/session"
)

const usage = `Usage: timenest-chat [flags] <command> [args]

Commands:
  login <email>          authenticate and save the session
  logout                 discard the saved session
  conversations          list conversations
  watch <conversation>   follow a conversation's live timeline
  send <conversation> <text>
                         send a message

Flags:
`

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	var (
		configPath string
		verbose    bool
	)
	flags := pflag.NewFlagSet("timenest-chat", pflag.ContinueOnError)
	flags.StringVar(&configPath, "config", "", "path to timenest.yaml (default: $TIMENEST_CONFIG)")
	flags.BoolVarP(&verbose, "verbose", "v", false, "enable debug logging")
	flags.Usage = func() {
		fmt.Fprint(os.Stderr, usage)
		fmt.Fprintln(os.Stderr, flags.FlagUsages())
	}
	if err := flags.Parse(os.Args[1:]); err != nil {
		if errors.Is(err, pflag.ErrHelp) {
			return nil
		}
		return err
	}

	args := flags.Args()
	if len(args) == 0 {
		flags.Usage()
		return fmt.Errorf("a command is required")
	}

	logger := newLogger(verbose)
	slog.SetDefault(logger)

	cfg, err := loadConfig(configPath)
	if err != nil {
		return err
	}
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	app, err := newApp(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer app.close()

	switch command := args[0]; command {
	case "login":
		if len(args) != 2 {
			return fmt.Errorf("usage: timenest-chat login <email>")
		}
		return app.login(ctx, args[1])
	case "logout":
		return app.logout(ctx)
	case "conversations":
		return app.conversations(ctx)
	case "watch":
		if len(args) != 2 {
			return fmt.Errorf("usage: timenest-chat watch <conversation>")
		}
		id, err := parseConversationID(args[1])
		if err != nil {
			return err
		}
		return app.watch(ctx, id)
	case "send":
		if len(args) != 3 {
			return fmt.Errorf("usage: timenest-chat send <conversation> <text>")
		}
		id, err := parseConversationID(args[1])
		if err != nil {
			return err
		}
		return app.send(ctx, id, args[2])
	default:
		flags.Usage()
		return fmt.Errorf("unknown command %q", command)
	}
}

// newLogger writes human-readable logs on a terminal and JSON when
// piped, matching the daemon log format for ingestion.
func newLogger(verbose bool) *slog.Logger {
	level := slog.LevelInfo
	if verbose {
		level = slog.LevelDebug
	}
	options := &slog.HandlerOptions{Level: level}
	var handler slog.Handler
	if term.IsTerminal(int(os.Stderr.Fd())) {
		handler = slog.NewTextHandler(os.Stderr, options)
	} else {
		handler = slog.NewJSONHandler(os.Stderr, options)
	}
	return slog.New(handler)
}

func loadConfig(path string) (*config.Config, error) {
	if path != "" {
		return config.LoadFile(path)
	}
	return config.Load()
}

func parseConversationID(arg string) (int64, error) {
	id, err := strconv.ParseInt(arg, 10, 64)
	if err != nil || id <= 0 {
		return 0, fmt.Errorf("invalid conversation id %q", arg)
	}
	return id, nil
}

// app wires the long-lived services: the persisted session store, the
// expiry monitor, the HTTP client, and the realtime manager.
type app struct {
	cfg     *config.Config
	logger  *slog.Logger
	db      *kvstore.DB
	store   *session.Store
	client  *chat.Client
	manager *realtime.Manager

	monitorStop context.CancelFunc
	monitorDone chan struct{}
	storeSub    *session.Subscription
}

func newApp(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*app, error) {
	if err := os.MkdirAll(filepath.Dir(cfg.Session.DBPath), 0o700); err != nil {
		return nil, fmt.Errorf("creating state directory: %w", err)
	}
	db, err := kvstore.Open(kvstore.Config{Path: cfg.Session.DBPath, Logger: logger})
	if err != nil {
		return nil, fmt.Errorf("opening session store: %w", err)
	}

	store, err := session.NewStore(ctx, session.StoreConfig{DB: db, Logger: logger})
	if err != nil {
		db.Close()
		return nil, err
	}

	requestTimeout, err := cfg.RequestTimeout()
	if err != nil {
		db.Close()
		return nil, err
	}
	client, err := chat.NewClient(chat.ClientConfig{
		BaseURL:    cfg.API.BaseURL,
		HTTPClient: &http.Client{Timeout: requestTimeout},
		Logger:     logger,
	})
	if err != nil {
		db.Close()
		return nil, err
	}

	upgradeInterval, err := cfg.UpgradeInterval()
	if err != nil {
		db.Close()
		return nil, err
	}
	manager, err := realtime.NewManager(realtime.ManagerConfig{
		BaseURL:         cfg.Realtime.BaseURL,
		Logger:          logger,
		UpgradeInterval: upgradeInterval,
	})
	if err != nil {
		db.Close()
		return nil, err
	}

	monitorInterval, err := cfg.MonitorInterval()
	if err != nil {
		manager.Close()
		db.Close()
		return nil, err
	}
	monitor := session.NewMonitor(session.MonitorConfig{
		Store:    store,
		Interval: monitorInterval,
		Logger:   logger,
		OnExpired: func() {
			fmt.Fprintln(os.Stderr, "session expired, please log in again")
		},
	})
	monitorCtx, monitorStop := context.WithCancel(context.Background())
	monitorDone := make(chan struct{})
	go func() {
		defer close(monitorDone)
		monitor.Run(monitorCtx)
	}()

	return &app{
		cfg:         cfg,
		logger:      logger,
		db:          db,
		store:       store,
		client:      client,
		manager:     manager,
		monitorStop: monitorStop,
		monitorDone: monitorDone,
	}, nil
}

func (a *app) close() {
	if a.storeSub != nil {
		a.storeSub.Cancel()
	}
	a.manager.Close()
	a.monitorStop()
	<-a.monitorDone
	a.db.Close()
}

// authedSession returns a chat session for the stored credential, or
// an error directing the user to log in.
func (a *app) authedSession() (*chat.Session, error) {
	cred, ok := a.store.Current()
	if !ok {
		return nil, fmt.Errorf("not logged in; run: timenest-chat login <email>")
	}
	if a.store.Expired() {
		return nil, fmt.Errorf("session expired; run: timenest-chat login <email>")
	}
	return a.client.NewSession(cred.Token, cred.UserID), nil
}

func (a *app) login(ctx context.Context, email string) error {
	fmt.Fprintf(os.Stderr, "password for %s: ", email)
	passwordBytes, err := term.ReadPassword(int(os.Stdin.Fd()))
	fmt.Fprintln(os.Stderr)
	if err != nil {
		return fmt.Errorf("reading password: %w", err)
	}

	auth, err := a.client.Login(ctx, email, string(passwordBytes))
	if err != nil {
		return err
	}

	claims, err := credential.Parse(auth.AccessToken)
	if err != nil {
		return fmt.Errorf("server returned an unusable token: %w", err)
	}

	userID := auth.User.UserID
	if userID == 0 {
		userID = claims.UserID
	}
	err = a.store.Login(ctx, session.Credential{
		Token:       auth.AccessToken,
		UserID:      userID,
		Subject:     claims.Subject,
		DisplayName: auth.User.Name,
		AvatarURL:   auth.User.AvatarURL,
	})
	if err != nil {
		return err
	}

	fmt.Printf("logged in as %s (user %d), session valid until %s\n",
		auth.User.Name, userID, claims.ExpiresAt.Local().Format(time.RFC1123))
	return nil
}

func (a *app) logout(ctx context.Context) error {
	if err := a.store.Logout(ctx); err != nil {
		return err
	}
	fmt.Println("logged out")
	return nil
}

func (a *app) conversations(ctx context.Context) error {
	chatSession, err := a.authedSession()
	if err != nil {
		return err
	}
	directory, err := chat.NewDirectory(chat.DirectoryConfig{Session: chatSession, Logger: a.logger})
	if err != nil {
		return err
	}
	if err := directory.Refresh(ctx, chat.Pagination{}); err != nil {
		return a.describeAPIError(ctx, err)
	}

	entries := directory.Entries()
	if len(entries) == 0 {
		fmt.Println("no conversations")
		return nil
	}
	for _, entry := range entries {
		unread := ""
		if entry.UnreadCount > 0 {
			unread = fmt.Sprintf(" (%d unread)", entry.UnreadCount)
		}
		contextLabel := ""
		if entry.ContextTitle != "" {
			contextLabel = fmt.Sprintf(" [%s]", entry.ContextTitle)
		}
		fmt.Printf("%6d  %-8s  %s%s%s\n",
			entry.ConversationID, entry.ActivityLabel, entry.CounterpartName, contextLabel, unread)
	}
	return nil
}

func (a *app) watch(ctx context.Context, conversationID int64) error {
	chatSession, err := a.authedSession()
	if err != nil {
		return err
	}
	stream, err := chat.NewStream(chat.StreamConfig{
		Session:        chatSession,
		ConversationID: conversationID,
		Logger:         a.logger,
	})
	if err != nil {
		return err
	}

	a.storeSub = a.manager.BindStore(a.store)
	messageSub := a.manager.OnNewMessage(stream.HandlePush)
	defer messageSub.Cancel()
	typingSub := a.manager.OnTypingStart(func(event realtime.TypingEvent) {
		if event.ConversationID == conversationID {
			fmt.Printf("… user %d is typing\n", event.UserID)
		}
	})
	defer typingSub.Cancel()
	connSub := a.manager.OnConnectionChange(func(state realtime.ConnectionState) {
		if state.Connected {
			a.logger.Info("live", "transport", state.Transport)
		} else {
			a.logger.Warn("connection lost", "error", state.Err)
		}
	})
	defer connSub.Cancel()

	if err := stream.LoadHistory(ctx, chat.Pagination{Limit: 50}); err != nil {
		return a.describeAPIError(ctx, err)
	}
	printed := make(map[int64]bool)
	for _, message := range stream.Messages() {
		printMessage(message, chatSession.UserID())
		printed[message.MessageID] = true
	}
	watchSub := stream.Watch(func(messages []chat.Message) {
		for _, message := range messages {
			if message.MessageID == 0 || printed[message.MessageID] {
				continue
			}
			printed[message.MessageID] = true
			printMessage(message, chatSession.UserID())
		}
	})
	defer watchSub.Cancel()

	a.manager.JoinConversation(conversationID)
	defer a.manager.LeaveConversation(conversationID)

	<-ctx.Done()
	return nil
}

func (a *app) send(ctx context.Context, conversationID int64, text string) error {
	chatSession, err := a.authedSession()
	if err != nil {
		return err
	}
	message, err := chatSession.SendMessage(ctx, chat.SendMessageRequest{
		ConversationID: conversationID,
		Content:        text,
	})
	if err != nil {
		return a.describeAPIError(ctx, err)
	}
	fmt.Printf("sent message %d at %s\n", message.MessageID, message.CreatedAt.Local().Format("15:04:05"))
	return nil
}

func printMessage(message chat.Message, selfID int64) {
	sender := fmt.Sprintf("user %d", message.SenderID)
	if message.SenderID == selfID {
		sender = "you"
	}
	fmt.Printf("[%s] %s: %s\n", message.CreatedAt.Local().Format("15:04"), sender, message.Content)
}

// describeAPIError keeps validation details readable and points auth
// failures at login. A credential the server rejects is cleared the
// same way local expiry detection clears it, so later invocations do
// not keep retrying a dead token.
func (a *app) describeAPIError(ctx context.Context, err error) error {
	if chat.IsAuthError(err) {
		if logoutErr := a.store.Logout(ctx); logoutErr != nil {
			a.logger.Warn("clearing rejected session failed", "error", logoutErr)
		}
		return fmt.Errorf("session expired; run: timenest-chat login <email> (%w)", err)
	}
	var apiErr *chat.APIError
	if errors.As(err, &apiErr) && len(apiErr.Fields) > 0 {
		return fmt.Errorf("request rejected: %s", apiErr.Detail)
	}
	return err
}

