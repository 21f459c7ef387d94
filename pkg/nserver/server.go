/*
 * Copyright (C) 2020-2022, IrineSistiana
 *
 * This file is part of nsrouter.
 *
 * nsrouter is free software: you can redistribute it and/or modify
 * it under the terms of the GNU General Public License as published by
 * the Free Software Foundation, either version 3 of the License, or
 * (at your option) any later version.
 *
 * nsrouter is distributed in the hope that it will be useful,
 * but WITHOUT ANY WARRANTY; without even the implied warranty of
 * MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE.  See the
 * GNU General Public License for more details.
 *
 * You should have received a copy of the GNU General Public License
 * along with this program.  If not, see <https://www.gnu.org/licenses/>.
 */

// Package nserver runs a rule driven authoritative DNS server over UDP
// and TCP.
package nserver

import (
	"errors"
	"fmt"
	"io"
	"net"
	"sync"
	"time"

	"github.com/IrineSistiana/nsrouter/pkg/middleware"
	"github.com/IrineSistiana/nsrouter/pkg/nserrors"
	"github.com/IrineSistiana/nsrouter/pkg/query"
	"github.com/IrineSistiana/nsrouter/pkg/rules"
	"github.com/IrineSistiana/nsrouter/pkg/safeclose"
	"github.com/IrineSistiana/nsrouter/pkg/scaffold"
	"github.com/IrineSistiana/nsrouter/pkg/suffix"
	"github.com/pires/go-proxyproto"
	"go.uber.org/zap"
	"golang.org/x/exp/slices"
	"golang.org/x/sync/semaphore"
)

var ErrServerClosed = errors.New("server closed")

const (
	defaultPort           = 9953
	defaultAddress        = "127.0.0.1"
	defaultTCPIdleTimeout = time.Second * 10
	tcpFirstReadTimeout   = time.Millisecond * 500
)

// Settings controls listeners and transport behavior.
type Settings struct {
	// Address is the listen address. Default is 127.0.0.1.
	Address string `yaml:"address"`
	// Port is the listen port. Default is 9953.
	Port int `yaml:"port"`
	// Transports are the transports to serve, "udp" and/or "tcp".
	// Default is udp only.
	Transports []string `yaml:"transports"`

	// UDPMaxMessageBytes caps UDP responses regardless of the EDNS0 size
	// the client advertised. Default is 512.
	UDPMaxMessageBytes int `yaml:"udp_max_message_bytes"`
	// TCPIdleTimeout closes connections with no inbound message for this
	// long. Default is 10s.
	TCPIdleTimeout time.Duration `yaml:"tcp_idle_timeout"`
	// WorkerLimit caps concurrently processed queries. 0 means no cap.
	WorkerLimit int `yaml:"worker_limit"`
	// ProxyProtocol accepts the PROXY protocol header on TCP
	// connections.
	ProxyProtocol bool `yaml:"proxy_protocol"`
	// CaseSensitive makes rules registered through the server match
	// case sensitively by default.
	CaseSensitive bool `yaml:"case_sensitive"`
}

func (s *Settings) setDefaults() {
	if s.Address == "" {
		s.Address = defaultAddress
	}
	if s.Port == 0 {
		s.Port = defaultPort
	}
	if len(s.Transports) == 0 {
		s.Transports = []string{"udp"}
	}
	if s.UDPMaxMessageBytes == 0 {
		s.UDPMaxMessageBytes = 512
	}
	if s.TCPIdleTimeout <= 0 {
		s.TCPIdleTimeout = defaultTCPIdleTimeout
	}
}

// Server owns the root scaffold, the middleware stacks and the
// transports. Registration must happen before Run, the stacks are frozen
// when the server starts.
type Server struct {
	logger   *zap.Logger
	settings Settings
	resolver suffix.Resolver

	root     *scaffold.Scaffold
	queryMws []middleware.Middleware
	rawMws   []middleware.RawMiddleware
	em       *middleware.ExceptionMiddleware
	rem      *middleware.RawExceptionMiddleware
	hooks    *middleware.Hooks

	frozenMu sync.Mutex
	frozen   bool
	rawChain middleware.RawNext
	sem      *semaphore.Weighted

	sc *safeclose.Closer

	m             sync.Mutex
	closed        bool
	closerTracker map[*io.Closer]struct{}
}

// ServerOption configures a Server.
type ServerOption func(*Server)

// WithLogger sets the server logger. The default is a nop logger.
func WithLogger(l *zap.Logger) ServerOption {
	return func(s *Server) {
		if l != nil {
			s.logger = l
		}
	}
}

// WithSuffixResolver sets the registrable domain resolver used by
// wildcard rules registered through the server. The default is the public
// suffix list.
func WithSuffixResolver(r suffix.Resolver) ServerOption {
	return func(s *Server) {
		if r != nil {
			s.resolver = r
		}
	}
}

// NewServer creates a server with the given settings.
func NewServer(settings Settings, opts ...ServerOption) *Server {
	settings.setDefaults()
	s := &Server{
		logger:   zap.NewNop(),
		settings: settings,
		resolver: suffix.PublicSuffixResolver{},
		root:     scaffold.New("root"),
		hooks:    middleware.NewHooks(),
		sc:       safeclose.NewCloser(),
	}
	for _, f := range opts {
		f(s)
	}
	s.em = middleware.NewExceptionMiddleware(s.logger.Named("exception"))
	s.rem = middleware.NewRawExceptionMiddleware(s.logger.Named("exception"))
	if settings.WorkerLimit > 0 {
		s.sem = semaphore.NewWeighted(int64(settings.WorkerLimit))
	}
	return s
}

func (s *Server) checkFrozen() error {
	s.frozenMu.Lock()
	defer s.frozenMu.Unlock()
	if s.frozen {
		return nserrors.Errorf(nserrors.Configuration, "server is running, registration must happen before Run")
	}
	return nil
}

func (s *Server) ruleOptions(opts []rules.Option) []rules.Option {
	base := []rules.Option{rules.WithResolver(s.resolver)}
	if s.settings.CaseSensitive {
		base = append(base, rules.CaseSensitive())
	}
	return append(base, opts...)
}

// Rule registers a rule on the root scaffold. The pattern is interpreted
// by rules.New.
func (s *Server) Rule(pattern any, types rules.TypeSet, h query.Handler, opts ...rules.Option) error {
	if err := s.checkFrozen(); err != nil {
		return err
	}
	return s.root.Rule(pattern, types, h, s.ruleOptions(opts)...)
}

// Register registers a prebuilt rule on the root scaffold.
func (s *Server) Register(r *rules.Rule) error {
	if err := s.checkFrozen(); err != nil {
		return err
	}
	return s.root.Register(r)
}

// Mount mounts a scaffold on the root behind a gate.
func (s *Server) Mount(child *scaffold.Scaffold, gate rules.NameMatcher, gateTypes rules.TypeSet) error {
	if err := s.checkFrozen(); err != nil {
		return err
	}
	return s.root.Mount(child, gate, gateTypes)
}

// MountZone mounts a scaffold on the root behind a zone gate.
func (s *Server) MountZone(child *scaffold.Scaffold, zone string) error {
	if err := s.checkFrozen(); err != nil {
		return err
	}
	return s.root.MountZone(child, zone)
}

// Use appends a query middleware to the server stack. It runs on every
// query, matched or not.
func (s *Server) Use(mw middleware.Middleware) error {
	if err := s.checkFrozen(); err != nil {
		return err
	}
	s.queryMws = append(s.queryMws, mw)
	return nil
}

// UseRaw appends a raw middleware to the server stack.
func (s *Server) UseRaw(mw middleware.RawMiddleware) error {
	if err := s.checkFrozen(); err != nil {
		return err
	}
	s.rawMws = append(s.rawMws, mw)
	return nil
}

// HandleException registers an exception handler for an error class and
// its descendants.
func (s *Server) HandleException(class *nserrors.Class, h middleware.ExceptionHandler) error {
	if err := s.checkFrozen(); err != nil {
		return err
	}
	s.em.Handle(class, h)
	return nil
}

// HandleRawException registers a raw exception handler.
func (s *Server) HandleRawException(class *nserrors.Class, h middleware.RawExceptionHandler) error {
	if err := s.checkFrozen(); err != nil {
		return err
	}
	s.rem.Handle(class, h)
	return nil
}

func (s *Server) OnBeforeFirstQuery(f middleware.BeforeFirstQueryHook) error {
	if err := s.checkFrozen(); err != nil {
		return err
	}
	s.hooks.OnBeforeFirstQuery(f)
	return nil
}

func (s *Server) OnBeforeQuery(f middleware.BeforeQueryHook) error {
	if err := s.checkFrozen(); err != nil {
		return err
	}
	s.hooks.OnBeforeQuery(f)
	return nil
}

func (s *Server) OnAfterQuery(f middleware.AfterQueryHook) error {
	if err := s.checkFrozen(); err != nil {
		return err
	}
	s.hooks.OnAfterQuery(f)
	return nil
}

// Closed returns true if the server was closed.
func (s *Server) Closed() bool {
	s.m.Lock()
	defer s.m.Unlock()
	return s.closed
}

// trackCloser adds or removes c and reports whether the server is still
// open. A pointer is used in case the underlying value is incomparable.
func (s *Server) trackCloser(c *io.Closer, add bool) bool {
	s.m.Lock()
	defer s.m.Unlock()

	if s.closerTracker == nil {
		s.closerTracker = make(map[*io.Closer]struct{})
	}
	if add {
		if s.closed {
			return false
		}
		s.closerTracker[c] = struct{}{}
	} else {
		delete(s.closerTracker, c)
	}
	return true
}

// Close closes the server and all its listeners and connections.
func (s *Server) Close() {
	s.m.Lock()
	if !s.closed {
		s.closed = true
		for closer := range s.closerTracker {
			(*closer).Close()
		}
	}
	s.m.Unlock()

	s.sc.Shutdown(nil)
}

// Run binds the configured listeners and serves until Close is called.
// It freezes the rule and middleware registries first.
func (s *Server) Run() error {
	s.Freeze()

	addr := net.JoinHostPort(s.settings.Address, fmt.Sprint(s.settings.Port))
	started := 0
	var seen []string
	for _, transport := range s.settings.Transports {
		if slices.Contains(seen, transport) {
			continue
		}
		seen = append(seen, transport)
		switch transport {
		case "udp":
			c, err := net.ListenPacket("udp", addr)
			if err != nil {
				s.sc.Shutdown(err)
				break
			}
			s.logger.Info("udp server started", zap.Stringer("addr", c.LocalAddr()))
			s.sc.Go(func(_ <-chan struct{}) {
				if err := s.ServeUDP(c); !errors.Is(err, ErrServerClosed) {
					s.sc.Shutdown(err)
				}
			})
			started++
		case "tcp":
			l, err := net.Listen("tcp", addr)
			if err != nil {
				s.sc.Shutdown(err)
				break
			}
			if s.settings.ProxyProtocol {
				l = &proxyproto.Listener{Listener: l}
			}
			s.logger.Info("tcp server started", zap.Stringer("addr", l.Addr()))
			s.sc.Go(func(_ <-chan struct{}) {
				if err := s.ServeTCP(l); !errors.Is(err, ErrServerClosed) {
					s.sc.Shutdown(err)
				}
			})
			started++
		default:
			s.sc.Shutdown(fmt.Errorf("unknown transport %q", transport))
		}
	}
	if started == 0 {
		s.sc.Shutdown(fmt.Errorf("no transport started"))
	}

	<-s.sc.Closing()
	s.Close()
	s.sc.Done()
	s.sc.CloseWait()
	return s.sc.Cause()
}
