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

package nserver

import (
	"context"
	"net"
	"net/netip"
	"sync/atomic"
	"testing"
	"time"

	"github.com/IrineSistiana/nsrouter/pkg/dnsio"
	"github.com/IrineSistiana/nsrouter/pkg/middleware"
	"github.com/IrineSistiana/nsrouter/pkg/nserrors"
	"github.com/IrineSistiana/nsrouter/pkg/pool"
	"github.com/IrineSistiana/nsrouter/pkg/query"
	"github.com/IrineSistiana/nsrouter/pkg/rules"
	"github.com/miekg/dns"
	"github.com/stretchr/testify/require"
)

func aHandler(t *testing.T, name, ip string) query.Handler {
	rr, err := query.NewA(name, netip.MustParseAddr(ip), 300)
	require.NoError(t, err)
	return query.HandlerFunc(func(_ context.Context, _ *query.Query) (*query.Response, error) {
		return query.Answers(rr), nil
	})
}

func newTestServer(t *testing.T, settings Settings) *Server {
	s := NewServer(settings)
	require.NoError(t, s.Rule("example.com", rules.Types(dns.TypeA), aHandler(t, "example.com", "192.0.2.1")))
	require.NoError(t, s.Rule("*.example.com", rules.Types(dns.TypeA), aHandler(t, "sub.example.com", "192.0.2.2")))
	s.Freeze()
	return s
}

func handle(t *testing.T, s *Server, req *dns.Msg) *dns.Msg {
	r, err := s.Handle(context.Background(), req, middleware.QueryMeta{})
	require.NoError(t, err)
	require.NotNil(t, r)
	return r
}

func TestHandle(t *testing.T) {
	s := newTestServer(t, Settings{})

	t.Run("answer", func(t *testing.T) {
		req := new(dns.Msg)
		req.SetQuestion("example.com.", dns.TypeA)
		r := handle(t, s, req)
		require.Equal(t, dns.RcodeSuccess, r.Rcode)
		require.True(t, r.Authoritative)
		require.Len(t, r.Answer, 1)
		a, ok := r.Answer[0].(*dns.A)
		require.True(t, ok)
		require.Equal(t, "192.0.2.1", a.A.String())
	})

	t.Run("wildcard answer", func(t *testing.T) {
		req := new(dns.Msg)
		req.SetQuestion("www.example.com.", dns.TypeA)
		r := handle(t, s, req)
		require.Equal(t, dns.RcodeSuccess, r.Rcode)
		require.Len(t, r.Answer, 1)
	})

	t.Run("no match is nxdomain", func(t *testing.T) {
		req := new(dns.Msg)
		req.SetQuestion("example.org.", dns.TypeA)
		r := handle(t, s, req)
		require.Equal(t, dns.RcodeNameError, r.Rcode)
	})

	t.Run("type miss is nxdomain", func(t *testing.T) {
		req := new(dns.Msg)
		req.SetQuestion("example.com.", dns.TypeMX)
		r := handle(t, s, req)
		require.Equal(t, dns.RcodeNameError, r.Rcode)
	})

	t.Run("non query opcode is notimp", func(t *testing.T) {
		req := new(dns.Msg)
		req.SetQuestion("example.com.", dns.TypeA)
		req.Opcode = dns.OpcodeStatus
		r := handle(t, s, req)
		require.Equal(t, dns.RcodeNotImplemented, r.Rcode)
	})

	t.Run("multiple questions are refused", func(t *testing.T) {
		req := new(dns.Msg)
		req.SetQuestion("example.com.", dns.TypeA)
		req.Question = append(req.Question, dns.Question{
			Name: "example.org.", Qtype: dns.TypeA, Qclass: dns.ClassINET,
		})
		r := handle(t, s, req)
		require.Equal(t, dns.RcodeRefused, r.Rcode)
	})

	t.Run("invalid name is formerr", func(t *testing.T) {
		req := new(dns.Msg)
		req.SetQuestion("example.com.", dns.TypeA)
		req.Question[0].Name = "bad..name."
		r := handle(t, s, req)
		require.Equal(t, dns.RcodeFormatError, r.Rcode)
	})

	t.Run("reply id matches request", func(t *testing.T) {
		req := new(dns.Msg)
		req.SetQuestion("example.com.", dns.TypeA)
		req.Id = 0xbeef
		r := handle(t, s, req)
		require.Equal(t, uint16(0xbeef), r.Id)
	})
}

func TestHandlerErrorIsServFail(t *testing.T) {
	s := NewServer(Settings{})
	require.NoError(t, s.Rule("broken.test", rules.AnyType(), query.HandlerFunc(
		func(_ context.Context, _ *query.Query) (*query.Response, error) {
			return nil, nserrors.Errorf(nserrors.Handler, "boom")
		})))
	s.Freeze()

	req := new(dns.Msg)
	req.SetQuestion("broken.test.", dns.TypeA)
	r := handle(t, s, req)
	require.Equal(t, dns.RcodeServerFailure, r.Rcode)
	require.Empty(t, r.Answer)
}

func TestServerMiddlewareRunsOnEveryQuery(t *testing.T) {
	s := NewServer(Settings{})
	var seen atomic.Int32
	require.NoError(t, s.Use(func(ctx context.Context, q *query.Query, next middleware.Next) (*query.Response, error) {
		seen.Add(1)
		return next(ctx, q)
	}))
	require.NoError(t, s.Rule("example.com", rules.Types(dns.TypeA), aHandler(t, "example.com", "192.0.2.1")))
	s.Freeze()

	for _, name := range []string{"example.com.", "miss.test."} {
		req := new(dns.Msg)
		req.SetQuestion(name, dns.TypeA)
		handle(t, s, req)
	}
	require.Equal(t, int32(2), seen.Load())
}

func TestRegistrationAfterFreeze(t *testing.T) {
	s := newTestServer(t, Settings{})
	err := s.Rule("late.test", rules.AnyType(), aHandler(t, "late.test", "192.0.2.9"))
	require.Error(t, err)
	require.True(t, nserrors.ClassOf(err, nil).Is(nserrors.Configuration))
}

func TestServeUDP(t *testing.T) {
	s := newTestServer(t, Settings{})
	c, err := net.ListenPacket("udp", "127.0.0.1:0")
	require.NoError(t, err)
	go s.ServeUDP(c)
	defer s.Close()

	conn, err := net.Dial("udp", c.LocalAddr().String())
	require.NoError(t, err)
	defer conn.Close()

	req := new(dns.Msg)
	req.SetQuestion("example.com.", dns.TypeA)
	b, err := pool.PackBuffer(req)
	require.NoError(t, err)
	_, err = conn.Write(b)
	pool.ReleaseBuf(b)
	require.NoError(t, err)

	conn.SetReadDeadline(time.Now().Add(time.Second * 5))
	rb := make([]byte, 4096)
	n, err := conn.Read(rb)
	require.NoError(t, err)

	r := new(dns.Msg)
	require.NoError(t, r.Unpack(rb[:n]))
	require.Equal(t, req.Id, r.Id)
	require.Equal(t, dns.RcodeSuccess, r.Rcode)
	require.Len(t, r.Answer, 1)
}

func TestServeTCPPipelined(t *testing.T) {
	s := newTestServer(t, Settings{})
	l, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	go s.ServeTCP(l)
	defer s.Close()

	conn, err := net.Dial("tcp", l.Addr().String())
	require.NoError(t, err)
	defer conn.Close()

	want := make(map[uint16]struct{})
	for i := 0; i < 5; i++ {
		req := new(dns.Msg)
		req.SetQuestion("example.com.", dns.TypeA)
		req.Id = uint16(2000 + i)
		want[req.Id] = struct{}{}
		_, err := dnsio.WriteMsgTCP(conn, req)
		require.NoError(t, err)
	}

	conn.SetReadDeadline(time.Now().Add(time.Second * 5))
	for i := 0; i < 5; i++ {
		r, _, err := dnsio.ReadMsgTCP(conn)
		require.NoError(t, err)
		require.Equal(t, dns.RcodeSuccess, r.Rcode)
		_, ok := want[r.Id]
		require.True(t, ok, "unexpected reply id %d", r.Id)
		delete(want, r.Id)
	}
	require.Empty(t, want)
}

func TestRunAndClose(t *testing.T) {
	s := newTestServer(t, Settings{Address: "127.0.0.1", Port: 0})

	// Port 0 cannot be shared between udp and tcp deterministically, so
	// Run is not called. Close is exercised through the udp listener
	// entry point instead.
	c, err := net.ListenPacket("udp", "127.0.0.1:0")
	require.NoError(t, err)
	errCh := make(chan error, 1)
	go func() { errCh <- s.ServeUDP(c) }()

	time.Sleep(time.Millisecond * 50)
	s.Close()
	select {
	case err := <-errCh:
		require.ErrorIs(t, err, ErrServerClosed)
	case <-time.After(time.Second * 5):
		t.Fatal("server did not stop")
	}
}

func TestTruncatedUDPReply(t *testing.T) {
	s := NewServer(Settings{UDPMaxMessageBytes: 512})
	big := query.HandlerFunc(func(_ context.Context, q *query.Query) (*query.Response, error) {
		var rrs []dns.RR
		for i := 0; i < 64; i++ {
			rr, err := query.NewA("big.test", netip.AddrFrom4([4]byte{192, 0, 2, byte(i)}), 300)
			if err != nil {
				return nil, err
			}
			rrs = append(rrs, rr)
		}
		return query.Answers(rrs...), nil
	})
	require.NoError(t, s.Rule("big.test", rules.Types(dns.TypeA), big))
	s.Freeze()

	c, err := net.ListenPacket("udp", "127.0.0.1:0")
	require.NoError(t, err)
	go s.ServeUDP(c)
	defer s.Close()

	conn, err := net.Dial("udp", c.LocalAddr().String())
	require.NoError(t, err)
	defer conn.Close()

	req := new(dns.Msg)
	req.SetQuestion("big.test.", dns.TypeA)
	b, err := pool.PackBuffer(req)
	require.NoError(t, err)
	_, err = conn.Write(b)
	pool.ReleaseBuf(b)
	require.NoError(t, err)

	conn.SetReadDeadline(time.Now().Add(time.Second * 5))
	rb := make([]byte, 4096)
	n, err := conn.Read(rb)
	require.NoError(t, err)
	require.LessOrEqual(t, n, 512)

	r := new(dns.Msg)
	require.NoError(t, r.Unpack(rb[:n]))
	require.True(t, r.Truncated)
}
