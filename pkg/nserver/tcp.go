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
	"sync"
	"time"

	"github.com/IrineSistiana/nsrouter/pkg/dnsio"
	"github.com/IrineSistiana/nsrouter/pkg/middleware"
	"go.uber.org/zap"
)

// ServeTCP serves l until the server is closed. Each connection may carry
// multiple pipelined queries, replies are written in completion order.
// The server freezes its registries first if Run has not done that
// already.
func (s *Server) ServeTCP(l net.Listener) error {
	s.Freeze()

	closer := io.Closer(l)
	if !s.trackCloser(&closer, true) {
		return ErrServerClosed
	}
	defer s.trackCloser(&closer, false)

	listenerCtx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// The first read runs on a short deadline, a connection that carries
	// no data quickly is not kept around for the full idle timeout.
	firstReadTimeout := tcpFirstReadTimeout
	idleTimeout := s.settings.TCPIdleTimeout
	if idleTimeout < firstReadTimeout {
		firstReadTimeout = idleTimeout
	}

	for {
		c, err := l.Accept()
		if err != nil {
			if s.Closed() {
				return ErrServerClosed
			}
			return fmt.Errorf("unexpected listener err: %w", err)
		}

		go func() {
			defer c.Close()

			connCtx, cancelConn := context.WithCancel(listenerCtx)
			defer cancelConn()

			meta := middleware.QueryMeta{ClientAddr: clientAddr(c.RemoteAddr())}

			var writeMu sync.Mutex
			firstRead := true
			for {
				if firstRead {
					firstRead = false
					c.SetReadDeadline(time.Now().Add(firstReadTimeout))
				} else {
					c.SetReadDeadline(time.Now().Add(idleTimeout))
				}
				req, _, err := dnsio.ReadMsgTCP(c)
				if err != nil {
					return
				}

				go func() {
					r, err := s.Handle(connCtx, req, meta)
					if err != nil {
						s.logger.Warn("handler err", zap.Stringer("from", c.RemoteAddr()), zap.Error(err))
						c.Close()
						return
					}
					if r == nil {
						return
					}

					writeMu.Lock()
					_, err = dnsio.WriteMsgTCP(c, r)
					writeMu.Unlock()
					if err != nil {
						s.logger.Warn("failed to write reply", zap.Stringer("to", c.RemoteAddr()), zap.Error(err))
						c.Close()
					}
				}()
			}
		}()
	}
}
