// Copyright 2026 The Shift Authors
// SPDX-License-Identifier: Apache-2.0

package server

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/shift-foundation/shift/lib/clock"
	"github.com/shift-foundation/shift/lib/drm"
	"github.com/shift-foundation/shift/lib/framebuffer"
	"github.com/shift-foundation/shift/lib/journal"
	"github.com/shift-foundation/shift/lib/scanout"
	"github.com/shift-foundation/shift/lib/session"
	"github.com/shift-foundation/shift/lib/token"
	"github.com/shift-foundation/shift/lib/topology"
)

// DefaultSweepInterval is how often expired tokens are collected.
const DefaultSweepInterval = 30 * time.Second

// MonitorSource reports hardware monitors to the server until ctx
// ends. [drm.Poller] is one.
type MonitorSource interface {
	Run(ctx context.Context, sink drm.Sink) error
}

// Config configures a Server.
type Config struct {
	// SocketPath is where tab clients connect.
	SocketPath string

	// ControlSocket is where shiftctl connects. Empty disables it.
	ControlSocket string

	Clock  clock.Clock
	Logger *slog.Logger

	// LoadingGrace, TokenTTL: see session.Config.
	LoadingGrace time.Duration
	TokenTTL     time.Duration

	// SweepInterval overrides DefaultSweepInterval.
	SweepInterval time.Duration

	// Importer defaults to scanout.FileImporter.
	Importer framebuffer.Importer

	// Presenter defaults to a headless presenter.
	Presenter scanout.Presenter

	// Journal, when set, is written by the server while it runs.
	Journal *journal.Journal

	// Profile places monitors.
	Profile topology.Profile

	// Monitors are present from startup.
	Monitors []topology.Monitor

	// Sources report hotplug while the server runs.
	Sources []MonitorSource

	// AdminDisplayName labels the admin session minted at startup.
	AdminDisplayName string
}

// Server is one display server instance.
type Server struct {
	config    Config
	logger    *slog.Logger
	clock     clock.Clock
	tokens    *token.Authenticator
	sessions  *session.Registry
	topology  *topology.Topology
	importer  framebuffer.Importer
	presenter scanout.Presenter
	journal   *journal.Journal

	admin      session.Info
	adminToken string
	startedAt  time.Time
	listening  chan struct{}
	connSeq    atomic.Uint64
	connWG     sync.WaitGroup

	// hotplug serializes topology changes with session authentication,
	// so every session sees monitor events in topology order.
	hotplug sync.Mutex
	virtual map[string]bool

	mu          sync.Mutex
	actors      map[string]*actor
	connections map[*connection]struct{}
}

// New builds a server and mints the admin session. Nothing listens
// until Run.
func New(config Config) (*Server, error) {
	if config.SocketPath == "" {
		return nil, errors.New("server requires a socket path")
	}
	if config.Clock == nil {
		config.Clock = clock.Real()
	}
	if config.Logger == nil {
		config.Logger = slog.New(slog.DiscardHandler)
	}
	if config.SweepInterval <= 0 {
		config.SweepInterval = DefaultSweepInterval
	}
	if config.Importer == nil {
		config.Importer = scanout.FileImporter{}
	}
	if config.Presenter == nil {
		config.Presenter = scanout.NewHeadless(config.Clock, config.Logger)
	}
	if config.AdminDisplayName == "" {
		config.AdminDisplayName = "admin"
	}

	s := &Server{
		config:      config,
		logger:      config.Logger,
		clock:       config.Clock,
		topology:    topology.New(config.Profile),
		importer:    config.Importer,
		presenter:   config.Presenter,
		journal:     config.Journal,
		startedAt:   config.Clock.Now(),
		listening:   make(chan struct{}),
		virtual:     make(map[string]bool),
		actors:      make(map[string]*actor),
		connections: make(map[*connection]struct{}),
	}

	tokens, err := token.New(token.Config{Clock: config.Clock})
	if err != nil {
		return nil, fmt.Errorf("creating token table: %w", err)
	}
	s.tokens = tokens
	s.sessions, err = session.NewRegistry(session.Config{
		Authenticator:    tokens,
		Clock:            config.Clock,
		Logger:           config.Logger,
		LoadingGrace:     config.LoadingGrace,
		TokenTTL:         config.TokenTTL,
		OnLoadingExpired: s.loadingExpired,
	})
	if err != nil {
		tokens.Close()
		return nil, err
	}

	for _, monitor := range config.Monitors {
		if _, _, err := s.topology.Upsert(monitor); err != nil {
			tokens.Close()
			return nil, fmt.Errorf("adding monitor %s: %w", monitor.ID, err)
		}
		s.virtual[monitor.ID] = true
	}

	s.admin, s.adminToken, err = s.sessions.CreatePending(session.RoleAdmin, config.AdminDisplayName)
	if err != nil {
		tokens.Close()
		return nil, fmt.Errorf("creating admin session: %w", err)
	}
	s.sessions.SetFallback(s.admin.ID)
	return s, nil
}

// AdminToken returns the token for the admin session minted by New.
func (s *Server) AdminToken() string { return s.adminToken }

// AdminSessionID returns the admin session's id.
func (s *Server) AdminSessionID() string { return s.admin.ID }

// Listening is closed once the tab socket accepts connections.
func (s *Server) Listening() <-chan struct{} { return s.listening }

// Run serves until ctx ends, then closes every connection, waits for
// every session to be torn down, and flushes the journal.
func (s *Server) Run(ctx context.Context) error {
	defer s.sessions.Close()
	defer s.tokens.Close()

	listener, err := listen(s.config.SocketPath)
	if err != nil {
		return err
	}

	// The journal outlives the serving goroutines so teardown records
	// written during shutdown are flushed.
	journalDone := make(chan struct{})
	journalCtx, stopJournal := context.WithCancel(context.WithoutCancel(ctx))
	if s.journal != nil {
		go func() {
			defer close(journalDone)
			if err := s.journal.Run(journalCtx); err != nil {
				s.logger.Error("journal stopped", "error", err)
			}
		}()
	} else {
		close(journalDone)
	}
	defer func() {
		stopJournal()
		<-journalDone
	}()

	group, groupCtx := errgroup.WithContext(ctx)
	group.Go(func() error { return s.serve(groupCtx, listener) })
	group.Go(func() error { return s.sweepLoop(groupCtx) })
	if s.config.ControlSocket != "" {
		control := s.controlServer()
		group.Go(func() error { return control.Serve(groupCtx) })
	}
	for _, source := range s.config.Sources {
		group.Go(func() error { return source.Run(groupCtx, s) })
	}

	s.logger.Info("display server running",
		"socket", s.config.SocketPath,
		"monitors", s.topology.Len(),
		"admin_session", s.admin.ID,
	)
	err = group.Wait()
	s.logger.Info("display server stopped", "error", err)
	return err
}

func listen(path string) (net.Listener, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("creating socket directory: %w", err)
	}
	if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
		return nil, fmt.Errorf("removing stale socket %s: %w", path, err)
	}
	listener, err := net.Listen("unix", path)
	if err != nil {
		return nil, fmt.Errorf("listening on %s: %w", path, err)
	}
	if err := os.Chmod(path, 0o600); err != nil {
		listener.Close()
		return nil, fmt.Errorf("setting socket permissions: %w", err)
	}
	return listener, nil
}

// serve runs the accept loop. When ctx ends it closes every
// connection and waits for their sessions to be torn down.
func (s *Server) serve(ctx context.Context, listener net.Listener) error {
	defer os.Remove(s.config.SocketPath)
	go func() {
		<-ctx.Done()
		listener.Close()
	}()
	close(s.listening)

	for {
		conn, err := listener.Accept()
		if err != nil {
			if ctx.Err() != nil || errors.Is(err, net.ErrClosed) {
				break
			}
			s.logger.Error("accept failed", "error", err)
			continue
		}
		unixConn, ok := conn.(*net.UnixConn)
		if !ok {
			conn.Close()
			continue
		}
		c := s.newConnection(unixConn)
		s.connWG.Add(1)
		go func() {
			defer s.connWG.Done()
			c.serve()
		}()
	}

	s.mu.Lock()
	open := make([]*connection, 0, len(s.connections))
	for c := range s.connections {
		open = append(open, c)
	}
	s.mu.Unlock()
	for _, c := range open {
		c.closeWith(errServerShutdown)
	}
	s.connWG.Wait()
	return nil
}

func (s *Server) sweepLoop(ctx context.Context) error {
	ticker := s.clock.NewTicker(s.config.SweepInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			for _, transition := range s.sessions.Sweep(s.clock.Now()) {
				s.sessionChanged(transition)
			}
		}
	}
}

// record writes a journal entry when a journal is configured.
func (s *Server) record(record journal.Record) {
	if s.journal != nil {
		s.journal.Record(record)
	}
}
