/*
 * Copyright 2024, 2025 Hewlett Packard Enterprise Development LP
 * Other additional copyright holders may be indicated within.
 *
 * The entirety of this work is licensed under the Apache License,
 * Version 2.0 (the "License"); you may not use this file except
 * in compliance with the License.
 *
 * You may obtain a copy of the License at
 *
 *     http://www.apache.org/licenses/LICENSE-2.0
 *
 * Unless required by applicable law or agreed to in writing, software
 * distributed under the License is distributed on an "AS IS" BASIS,
 * WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
 * See the License for the specific language governing permissions and
 * limitations under the License.
 */

package barmsg

import (
	"errors"
	"fmt"
	"io"
	"net"
	"sync"
	"time"

	"github.com/sigurn/crc8"
	log "github.com/sirupsen/logrus"
)

// A socket channel carries BAR channel envelopes to an agent process that
// owns the hardware mailbox. Each frame is a socketMsgHeader, the 16 byte
// request id and the message; the agent answers with a socketRspHeader and
// the reply bytes. Crc is the CRC-8 of the bytes following the header.

type socketMsgHeader struct {
	Src       uint8
	Dst       uint8
	Module    uint8
	Crc       uint8
	SrcPcieId uint16
	Len       uint16 // message bytes following the request id
	RspCap    uint16 // response buffer capacity of the sender
	Reserved1 uint16
	VirtAddr  uint64
}

type socketRspHeader struct {
	Status    uint16
	Len       uint16
	Crc       uint8
	Reserved  uint8
	Reserved1 uint16
}

const (
	socketMsgHeaderSize = 20
	socketRspHeaderSize = 8
	socketRequestIdSize = 16
)

var crcTable = crc8.MakeTable(crc8.CRC8)

// SocketChannel is a Channel connected to an agent over a stream socket.
type SocketChannel struct {
	sync.Mutex

	// Timeout bounds each exchange when positive. A timed out exchange
	// leaves the stream unframed, so the connection is closed.
	Timeout time.Duration

	conn net.Conn
}

// DialSocket connects to the agent listening on address, for example
// DialSocket("unix", "/run/zxdh-bar.sock").
func DialSocket(network, address string) (*SocketChannel, error) {
	conn, err := net.Dial(network, address)
	if err != nil {
		return nil, err
	}
	return NewSocketChannel(conn), nil
}

func NewSocketChannel(conn net.Conn) *SocketChannel {
	return &SocketChannel{conn: conn}
}

func (s *SocketChannel) Close() error {
	s.Lock()
	defer s.Unlock()

	if s.conn == nil {
		return nil
	}
	err := s.conn.Close()
	s.conn = nil
	return err
}

func (s *SocketChannel) SyncSend(env *Envelope, rsp []byte) (int, Status) {
	s.Lock()
	defer s.Unlock()

	if s.conn == nil {
		return 0, StatusErrSocket
	}

	if len(env.Payload) > 0xFFFF || len(rsp) > 0xFFFF {
		return 0, StatusErrLen
	}

	frame := make([]byte, socketMsgHeaderSize+socketRequestIdSize+len(env.Payload))
	copy(frame[socketMsgHeaderSize:], env.RequestId[:])
	copy(frame[socketMsgHeaderSize+socketRequestIdSize:], env.Payload)

	hdr := socketMsgHeader{
		Src:       uint8(env.Src),
		Dst:       uint8(env.Dst),
		Module:    uint8(env.Module),
		SrcPcieId: env.SrcPcieId,
		Len:       uint16(len(env.Payload)),
		RspCap:    uint16(len(rsp)),
		Crc:       crc8.Checksum(frame[socketMsgHeaderSize:], crcTable),
		VirtAddr:  env.VirtAddr,
	}
	if err := putHeader(frame, hdr); err != nil {
		return 0, StatusErrSocket
	}

	if s.Timeout > 0 {
		if err := s.conn.SetDeadline(time.Now().Add(s.Timeout)); err != nil {
			return 0, s.fail("deadline", err)
		}
		defer func() {
			if s.conn != nil {
				s.conn.SetDeadline(time.Time{})
			}
		}()
	}

	if _, err := s.conn.Write(frame); err != nil {
		return 0, s.fail("write", err)
	}

	buf := make([]byte, socketRspHeaderSize)
	if _, err := io.ReadFull(s.conn, buf); err != nil {
		return 0, s.fail("read", err)
	}

	reply := socketRspHeader{}
	if err := getHeader(buf, 0, socketRspHeaderSize, &reply); err != nil {
		return 0, StatusErrSocket
	}

	n := int(reply.Len)
	if n > len(rsp) {
		// Keep the stream framed for the next exchange.
		if _, err := io.CopyN(io.Discard, s.conn, int64(n)); err != nil {
			return 0, s.fail("read", err)
		}
		return 0, StatusErrRepsBuffLen
	}

	if _, err := io.ReadFull(s.conn, rsp[:n]); err != nil {
		return 0, s.fail("read", err)
	}

	if crc8.Checksum(rsp[:n], crcTable) != reply.Crc {
		log.WithField("requestId", env.RequestId.String()).Error("Socket channel reply checksum mismatch")
		return 0, StatusErrSocket
	}

	return n, Status(reply.Status)
}

// fail closes the connection after an I/O error; the caller holds the lock.
func (s *SocketChannel) fail(op string, err error) Status {
	log.WithError(err).Errorf("Socket channel %s failed", op)

	s.conn.Close()
	s.conn = nil

	var ne net.Error
	if errors.As(err, &ne) && ne.Timeout() {
		return StatusErrTimeout
	}
	return StatusErrSocket
}

// ServeConn answers the frames arriving on conn by forwarding them to ch
// until the peer closes the connection.
func ServeConn(conn net.Conn, ch Channel) error {
	defer conn.Close()

	peer := "unknown"
	if addr := conn.RemoteAddr(); addr != nil {
		peer = addr.String()
	}
	logger := log.WithField("peer", peer)

	for {
		buf := make([]byte, socketMsgHeaderSize+socketRequestIdSize)
		if _, err := io.ReadFull(conn, buf); err != nil {
			if errors.Is(err, io.EOF) {
				return nil
			}
			return err
		}

		hdr := socketMsgHeader{}
		if err := getHeader(buf, 0, socketMsgHeaderSize, &hdr); err != nil {
			return err
		}

		env := &Envelope{
			VirtAddr:  hdr.VirtAddr,
			Payload:   make([]byte, hdr.Len),
			Src:       ChannelEnd(hdr.Src),
			Dst:       ChannelEnd(hdr.Dst),
			Module:    ModuleId(hdr.Module),
			SrcPcieId: hdr.SrcPcieId,
		}
		copy(env.RequestId[:], buf[socketMsgHeaderSize:])

		if _, err := io.ReadFull(conn, env.Payload); err != nil {
			return fmt.Errorf("truncated message: %w", err)
		}

		rsp := make([]byte, hdr.RspCap)

		var n int
		var status Status
		if crc8.Checksum(append(buf[socketMsgHeaderSize:], env.Payload...), crcTable) != hdr.Crc {
			status = StatusErrSocket
		} else {
			n, status = ch.SyncSend(env, rsp)
		}

		if status != StatusOK || n < 0 || n > len(rsp) {
			n = 0
		}

		logger.WithFields(log.Fields{
			"requestId": env.RequestId.String(),
			"pcieId":    env.SrcPcieId,
			"status":    status,
			"received":  n,
		}).Debug("Forwarded message")

		out := make([]byte, socketRspHeaderSize+n)
		reply := socketRspHeader{
			Status: uint16(status),
			Len:    uint16(n),
			Crc:    crc8.Checksum(rsp[:n], crcTable),
		}
		if err := putHeader(out, reply); err != nil {
			return err
		}
		copy(out[socketRspHeaderSize:], rsp[:n])

		if _, err := conn.Write(out); err != nil {
			return err
		}
	}
}

// Serve accepts agent connections on l, serving each one against ch until
// l is closed. Calls from different connections are serialized.
func Serve(l net.Listener, ch Channel) error {
	locked := NewLockedChannel(ch)

	for {
		conn, err := l.Accept()
		if err != nil {
			if errors.Is(err, net.ErrClosed) {
				return nil
			}
			return err
		}

		go func() {
			if err := ServeConn(conn, locked); err != nil {
				log.WithError(err).Warn("Socket channel connection failed")
			}
		}()
	}
}
