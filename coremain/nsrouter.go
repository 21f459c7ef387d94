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

package coremain

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/IrineSistiana/nsrouter/pkg/metrics"
	"github.com/IrineSistiana/nsrouter/pkg/nserrors"
	"github.com/IrineSistiana/nsrouter/pkg/nserver"
	"github.com/IrineSistiana/nsrouter/pkg/query"
	"github.com/IrineSistiana/nsrouter/pkg/rules"
	"github.com/IrineSistiana/nsrouter/pkg/suffix"
	"github.com/IrineSistiana/nsrouter/pkg/zonefile"
	"github.com/miekg/dns"
	"go.uber.org/zap"
)

// App is a configured nsrouter instance, a server plus its metrics
// endpoint.
type App struct {
	logger       *zap.Logger
	server       *nserver.Server
	metricsSrv   *http.Server
	fileResolver *suffix.FileResolver
}

// NewApp builds an App from cfg. The returned App is ready to Run.
func NewApp(cfg *Config, logger *zap.Logger) (*App, error) {
	serverOpts := []nserver.ServerOption{nserver.WithLogger(logger.Named("server"))}
	var fileResolver *suffix.FileResolver
	if len(cfg.SuffixFile) > 0 {
		r, err := suffix.NewFileResolver(logger.Named("suffix"), cfg.SuffixFile, true)
		if err != nil {
			return nil, fmt.Errorf("failed to load suffix file, %w", err)
		}
		fileResolver = r
		serverOpts = append(serverOpts, nserver.WithSuffixResolver(r))
	}

	a := &App{
		logger:       logger,
		server:       nserver.NewServer(cfg.Server, serverOpts...),
		fileResolver: fileResolver,
	}

	m := metrics.New()
	if err := a.server.Use(m.Middleware()); err != nil {
		return nil, err
	}
	if addr := cfg.Metrics.HTTP; len(addr) > 0 {
		mux := http.NewServeMux()
		mux.Handle("/metrics", m.HTTPHandler())
		a.metricsSrv = &http.Server{Addr: addr, Handler: mux}
	}

	for i, rc := range cfg.Rules {
		if err := a.registerRule(rc); err != nil {
			return nil, fmt.Errorf("rule #%d: %w", i, err)
		}
	}
	return a, nil
}

func (a *App) registerRule(rc RuleConfig) error {
	if len(rc.Pattern) == 0 {
		return nserrors.Errorf(nserrors.Configuration, "missing pattern")
	}
	if (len(rc.Records) == 0) == (len(rc.File) == 0) {
		return nserrors.Errorf(nserrors.Configuration, "exactly one of records and file must be set")
	}

	types := rules.AnyType()
	if len(rc.Types) > 0 {
		ts := make([]uint16, 0, len(rc.Types))
		for _, s := range rc.Types {
			t, ok := dns.StringToType[strings.ToUpper(s)]
			if !ok {
				return nserrors.Errorf(nserrors.Configuration, "unknown record type %q", s)
			}
			ts = append(ts, t)
		}
		types = rules.Types(ts...)
	}

	var h query.Handler
	if len(rc.File) > 0 {
		z, err := zonefile.LoadFile(rc.File)
		if err != nil {
			return nserrors.Errorf(nserrors.Configuration, "failed to load zone file %s, %w", rc.File, err)
		}
		h = z.Handler()
	} else {
		rrs := make([]dns.RR, 0, len(rc.Records))
		for _, s := range rc.Records {
			rr, err := dns.NewRR(s)
			if err != nil {
				return nserrors.Errorf(nserrors.Configuration, "invalid record %q, %w", s, err)
			}
			rrs = append(rrs, rr)
		}
		h = staticHandler(rrs)
	}

	return a.server.Rule(rc.Pattern, types, h)
}

// staticHandler serves the records matching the query type. CNAME
// records are served for any type when no direct match exists.
func staticHandler(rrs []dns.RR) query.Handler {
	return query.HandlerFunc(func(_ context.Context, q *query.Query) (*query.Response, error) {
		var answer []dns.RR
		for _, rr := range rrs {
			if rr.Header().Rrtype == q.Type {
				answer = append(answer, rr)
			}
		}
		if len(answer) == 0 && q.Type != dns.TypeCNAME {
			for _, rr := range rrs {
				if rr.Header().Rrtype == dns.TypeCNAME {
					answer = append(answer, rr)
				}
			}
		}
		return query.Answers(answer...), nil
	})
}

// Server returns the underlying dns server, e.g. for extra rules
// registered by callers embedding nsrouter.
func (a *App) Server() *nserver.Server { return a.server }

func (a *App) Logger() *zap.Logger { return a.logger }

// Run serves until Close is called or a listener fails.
func (a *App) Run() error {
	if a.metricsSrv != nil {
		go func() {
			a.logger.Info("metrics endpoint started", zap.String("addr", a.metricsSrv.Addr))
			err := a.metricsSrv.ListenAndServe()
			if err != nil && !errors.Is(err, http.ErrServerClosed) {
				a.logger.Error("metrics endpoint exited", zap.Error(err))
				a.server.Close()
			}
		}()
	}

	err := a.server.Run()
	if a.metricsSrv != nil {
		a.metricsSrv.Close()
	}
	if a.fileResolver != nil {
		a.fileResolver.Close()
	}
	return err
}

// Close shuts the App down. Run returns afterwards.
func (a *App) Close() {
	a.server.Close()
}
