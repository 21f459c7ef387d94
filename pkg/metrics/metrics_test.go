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

package metrics

import (
	"context"
	"errors"
	"net/http/httptest"
	"testing"

	"github.com/IrineSistiana/nsrouter/pkg/query"
	"github.com/miekg/dns"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/require"
)

func TestMiddlewareCounts(t *testing.T) {
	m := New()
	mw := m.Middleware()

	ok := func(ctx context.Context, q *query.Query) (*query.Response, error) {
		return query.NXDomain(), nil
	}
	fail := func(ctx context.Context, q *query.Query) (*query.Response, error) {
		return nil, errors.New("boom")
	}

	q := &query.Query{Name: "example.com", Type: dns.TypeA}
	_, err := mw(context.Background(), q, ok)
	require.NoError(t, err)
	_, err = mw(context.Background(), q, fail)
	require.Error(t, err)

	require.Equal(t, float64(1), testutil.ToFloat64(m.queryTotal.WithLabelValues("A", "NXDOMAIN")))
	require.Equal(t, float64(1), testutil.ToFloat64(m.errTotal))
	require.Equal(t, float64(0), testutil.ToFloat64(m.inflight))
}

func TestHTTPHandler(t *testing.T) {
	m := New()
	q := &query.Query{Name: "example.com", Type: dns.TypeA}
	_, err := m.Middleware()(context.Background(), q, func(ctx context.Context, q *query.Query) (*query.Response, error) {
		return query.Answers(), nil
	})
	require.NoError(t, err)

	rr := httptest.NewRecorder()
	m.HTTPHandler().ServeHTTP(rr, httptest.NewRequest("GET", "/metrics", nil))
	require.Equal(t, 200, rr.Code)
	require.Contains(t, rr.Body.String(), "nsrouter_query_total")
}
