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

// Package metrics collects query metrics and exposes them in prometheus
// format.
package metrics

import (
	"context"
	"net/http"
	"strconv"
	"time"

	"github.com/IrineSistiana/nsrouter/pkg/middleware"
	"github.com/IrineSistiana/nsrouter/pkg/query"
	"github.com/miekg/dns"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics owns a prometheus registry and the server collectors.
type Metrics struct {
	reg *prometheus.Registry

	queryTotal *prometheus.CounterVec
	errTotal   prometheus.Counter
	inflight   prometheus.Gauge
	duration   prometheus.Histogram
}

// New creates a Metrics with its own registry.
func New() *Metrics {
	m := &Metrics{
		reg: prometheus.NewRegistry(),
		queryTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "nsrouter_query_total",
			Help: "Total number of answered queries.",
		}, []string{"qtype", "rcode"}),
		errTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "nsrouter_query_error_total",
			Help: "Total number of queries that failed inside the stack.",
		}),
		inflight: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "nsrouter_inflight_query",
			Help: "Number of queries currently being processed.",
		}),
		duration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "nsrouter_query_duration_seconds",
			Help:    "Query processing latency.",
			Buckets: []float64{0.0001, 0.001, 0.01, 0.1, 1},
		}),
	}
	m.reg.MustRegister(m.queryTotal, m.errTotal, m.inflight, m.duration)
	return m
}

// Registry returns the underlying registry, e.g. for extra collectors.
func (m *Metrics) Registry() *prometheus.Registry { return m.reg }

// HTTPHandler returns a handler serving the registry in prometheus text
// format.
func (m *Metrics) HTTPHandler() http.Handler {
	return promhttp.HandlerFor(m.reg, promhttp.HandlerOpts{})
}

// Middleware returns a query middleware recording per query metrics.
func (m *Metrics) Middleware() middleware.Middleware {
	return func(ctx context.Context, q *query.Query, next middleware.Next) (*query.Response, error) {
		m.inflight.Inc()
		start := time.Now()
		resp, err := next(ctx, q)
		m.duration.Observe(time.Since(start).Seconds())
		m.inflight.Dec()

		if err != nil {
			m.errTotal.Inc()
			return resp, err
		}
		rcode := dns.RcodeSuccess
		if resp != nil {
			rcode = resp.Rcode
		}
		m.queryTotal.WithLabelValues(qtypeLabel(q.Type), rcodeLabel(rcode)).Inc()
		return resp, nil
	}
}

func qtypeLabel(t uint16) string {
	if s, ok := dns.TypeToString[t]; ok {
		return s
	}
	return strconv.Itoa(int(t))
}

func rcodeLabel(rcode int) string {
	if s, ok := dns.RcodeToString[rcode]; ok {
		return s
	}
	return strconv.Itoa(rcode)
}
