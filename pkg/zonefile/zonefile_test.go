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

package zonefile

import (
	"context"
	"strings"
	"testing"

	"github.com/IrineSistiana/nsrouter/pkg/query"
	"github.com/miekg/dns"
	"github.com/stretchr/testify/require"
)

const data = `
$TTL 3600
example.com.    IN  A     192.0.2.1
example.com.    IN  A     192.0.2.2
www.example.com.  IN  AAAA  2001:db8:10::1
`

func TestLoad(t *testing.T) {
	z, err := Load(strings.NewReader(data))
	require.NoError(t, err)
	require.Equal(t, 2, z.Len())

	require.Len(t, z.Lookup("example.com", dns.TypeA), 2)
	require.Len(t, z.Lookup("WWW.Example.COM", dns.TypeAAAA), 1)
	require.Nil(t, z.Lookup("example.com", dns.TypeMX))
	require.True(t, z.Contains("example.com"))
	require.False(t, z.Contains("example.org"))
}

func TestLoadBadData(t *testing.T) {
	_, err := Load(strings.NewReader("example.com. IN A not-an-ip\n"))
	require.Error(t, err)
}

func TestHandler(t *testing.T) {
	z, err := Load(strings.NewReader(data))
	require.NoError(t, err)
	h := z.Handler()

	resp, err := h.ServeQuery(context.Background(), &query.Query{Name: "example.com", Type: dns.TypeA})
	require.NoError(t, err)
	require.Equal(t, dns.RcodeSuccess, resp.Rcode)
	require.Len(t, resp.Answer, 2)

	// Known name, no record of the type.
	resp, err = h.ServeQuery(context.Background(), &query.Query{Name: "example.com", Type: dns.TypeMX})
	require.NoError(t, err)
	require.Nil(t, resp)

	resp, err = h.ServeQuery(context.Background(), &query.Query{Name: "unknown.example.com", Type: dns.TypeA})
	require.NoError(t, err)
	require.Equal(t, dns.RcodeNameError, resp.Rcode)
}
