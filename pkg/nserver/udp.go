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
	"fmt"
	"io"
	"net"

	"github.com/IrineSistiana/nsrouter/pkg/codec"
	"github.com/IrineSistiana/nsrouter/pkg/middleware"
	"github.com/IrineSistiana/nsrouter/pkg/pool"
	"go.uber.org/zap"
)

const udpReadBufSize = 64 * 1024

// ServeUDP serves c until the server is closed. The server freezes its
// registries first if Run has not done that already.
func (s *Server) ServeUDP(c net.PacketConn) error {
	s.Freeze()

	closer := io.Closer(c)
	if !s.trackCloser(&closer, true) {
		return ErrServerClosed
	}
	defer s.trackCloser(&closer, false)

	listenerCtx, cancel := context.WithCancel(context.Background())
	defer cancel()

	rb := pool.GetBuf(udpReadBufSize)
	defer pool.ReleaseBuf(rb)

	for {
		n, from, err := c.ReadFrom(rb)
		if err != nil {
			if s.Closed() {
				return ErrServerClosed
			}
			return fmt.Errorf("unexpected read err: %w", err)
		}

		req, err := codec.Parse(rb[:n])
		if err != nil {
			s.logger.Debug("invalid udp msg", zap.Stringer("from", from), zap.Error(err))
			continue
		}

		meta := middleware.QueryMeta{ClientAddr: clientAddr(from), FromUDP: true}
		go func() {
			r, err := s.Handle(listenerCtx, req, meta)
			if err != nil {
				s.logger.Warn("handler err", zap.Stringer("from", from), zap.Error(err))
				return
			}
			if r == nil {
				return
			}

			r.Truncate(codec.UDPSize(req, s.settings.UDPMaxMessageBytes))
			b, err := pool.PackBuffer(r)
			if err != nil {
				s.logger.Error("failed to pack reply", zap.Error(err))
				return
			}
			defer pool.ReleaseBuf(b)
			if _, err := c.WriteTo(b, from); err != nil {
				s.logger.Warn("failed to write reply", zap.Stringer("to", from), zap.Error(err))
			}
		}()
	}
}
