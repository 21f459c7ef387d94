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

package query

import (
	"net/netip"
	"strings"
	"testing"

	"github.com/miekg/dns"
	"github.com/stretchr/testify/require"
)

func TestNewA(t *testing.T) {
	rr, err := NewA("example.com", netip.MustParseAddr("192.0.2.1"), 300)
	require.NoError(t, err)
	require.Equal(t, "example.com.", rr.Hdr.Name)
	require.Equal(t, "192.0.2.1", rr.A.String())

	_, err = NewA("example.com", netip.MustParseAddr("2001:db8::1"), 300)
	require.Error(t, err)
}

func TestNewAAAA(t *testing.T) {
	rr, err := NewAAAA("example.com", netip.MustParseAddr("2001:db8::1"), 300)
	require.NoError(t, err)
	require.Equal(t, "2001:db8::1", rr.AAAA.String())

	_, err = NewAAAA("example.com", netip.MustParseAddr("192.0.2.1"), 300)
	require.Error(t, err)
}

func TestNewTXTChunking(t *testing.T) {
	short := NewTXT("example.com", "hello", 300)
	require.Equal(t, []string{"hello"}, short.Txt)

	long := NewTXT("example.com", strings.Repeat("a", 600), 300)
	require.Len(t, long.Txt, 3)
	require.Len(t, long.Txt[0], 255)
	require.Len(t, long.Txt[1], 255)
	require.Len(t, long.Txt[2], 90)
	require.Equal(t, strings.Repeat("a", 600), strings.Join(long.Txt, ""))
}

func TestDomainValidation(t *testing.T) {
	_, err := NewCNAME("www.example.com", "example.com", 300)
	require.NoError(t, err)

	_, err = NewCNAME("www.example.com", "not a domain", 300)
	require.Error(t, err)

	_, err = NewNS("example.com", "ns1.internal", 3600)
	require.NoError(t, err)

	_, err = NewMX("example.com", "mail.example.com", 10, 300)
	require.NoError(t, err)

	_, err = NewPTR("1.2.0.192.in-addr.arpa", "host.example.com", 300)
	require.NoError(t, err)
}

func TestNewSOADefaults(t *testing.T) {
	rr, err := NewSOA("example.com", "ns1.example.com", "admin.example.com", 42, SOAOptions{}, 3600)
	require.NoError(t, err)
	require.EqualValues(t, 86400, rr.Refresh)
	require.EqualValues(t, 7200, rr.Retry)
	require.EqualValues(t, 3600000, rr.Expire)
	require.EqualValues(t, 172800, rr.Minttl)
	require.EqualValues(t, 42, rr.Serial)
}

func TestNewCAA(t *testing.T) {
	rr, err := NewCAA("example.com", 0, "issue", "ca.example.net", 3600)
	require.NoError(t, err)
	require.Equal(t, dns.TypeCAA, rr.Hdr.Rrtype)

	_, err = NewCAA("example.com", 0, "bogus", "x", 3600)
	require.Error(t, err)
}

func TestResponseHelpers(t *testing.T) {
	require.Equal(t, dns.RcodeNameError, NXDomain().Rcode)
	require.Equal(t, dns.RcodeRefused, Refused().Rcode)
	require.Equal(t, dns.RcodeServerFailure, ServFail().Rcode)

	rr := NewTXT("example.com", "x", 60)
	r := Answers(rr)
	require.Equal(t, dns.RcodeSuccess, r.Rcode)
	require.Len(t, r.Answer, 1)
}
