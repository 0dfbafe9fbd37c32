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
	"sync"

	"github.com/google/uuid"
	log "github.com/sirupsen/logrus"
)

// Envelope addresses one message on the BAR channel.
type Envelope struct {
	VirtAddr  uint64 // channel endpoint address
	Payload   []byte
	Src       ChannelEnd
	Dst       ChannelEnd
	Module    ModuleId
	SrcPcieId uint16

	// RequestId tags the exchange in logs. It is not sent to firmware, only
	// to a socket channel agent.
	RequestId uuid.UUID
}

// Channel is the synchronous BAR channel primitive. SyncSend transmits env
// and blocks until the peer replies into rsp or the transport fails. It
// returns the number of bytes written into rsp and a transport status.
//
// Channel implementations are not required to tolerate concurrent callers;
// wrap them with NewLockedChannel when calls may overlap.
type Channel interface {
	SyncSend(env *Envelope, rsp []byte) (int, Status)
}

// ChannelFunc adapts an ordinary function to the Channel interface.
type ChannelFunc func(env *Envelope, rsp []byte) (int, Status)

func (f ChannelFunc) SyncSend(env *Envelope, rsp []byte) (int, Status) {
	return f(env, rsp)
}

type lockedChannel struct {
	sync.Mutex
	ch Channel
}

// NewLockedChannel serializes SyncSend calls to ch.
func NewLockedChannel(ch Channel) Channel {
	return &lockedChannel{ch: ch}
}

func (l *lockedChannel) SyncSend(env *Envelope, rsp []byte) (int, Status) {
	l.Lock()
	defer l.Unlock()
	return l.ch.SyncSend(env, rsp)
}

// Context holds what a device knows about its channel. It is borrowed for
// the duration of one call and carries no protocol state.
type Context struct {
	PcieId   uint16
	VirtAddr uint64
	Src      ChannelEnd
	Dst      ChannelEnd
	Module   ModuleId

	// Channel is nil until the device's message channel is initialized.
	Channel Channel

	// Allocator provides per-call buffers; HeapAllocator when nil.
	Allocator Allocator

	// Log is the base logger; the standard logger when nil.
	Log *log.Entry
}

// NewContext returns a context addressing the RISC firmware table module.
func NewContext(ch Channel, pcieId uint16, virtAddr uint64, src ChannelEnd) *Context {
	return &Context{
		PcieId:   pcieId,
		VirtAddr: virtAddr,
		Src:      src,
		Dst:      ChannelEndRISC,
		Module:   ModuleTbl,
		Channel:  ch,
	}
}

func (c *Context) allocator() Allocator {
	if c.Allocator == nil {
		return HeapAllocator
	}
	return c.Allocator
}

func (c *Context) logger() *log.Entry {
	entry := c.Log
	if entry == nil {
		entry = log.NewEntry(log.StandardLogger())
	}
	return entry.WithField("pcieId", c.PcieId)
}

func (c *Context) check(op string) error {
	if c == nil {
		return newError(InputError, op, "nil channel context")
	}
	if c.Channel == nil {
		err := newError(InputError, op, "bar message channel not initialized")
		c.logger().WithError(err).Error("Bar messages channel not initialized")
		return err
	}
	return nil
}

// Response is a received reply buffer. After a successful Exchange the caller
// owns it and must Release it.
type Response struct {
	// Received is the byte count reported by the channel.
	Received int

	buf   []byte
	alloc Allocator
}

// Bytes returns the whole response buffer (its capacity, not only the
// received bytes), nil once released.
func (r *Response) Bytes() []byte { return r.buf }

// Release returns the buffer to its allocator. Calling Release more than once
// is harmless.
func (r *Response) Release() {
	if r == nil || r.buf == nil {
		return
	}
	r.alloc.Free(r.buf)
	r.buf = nil
}

// Exchange sends req over the context's channel and waits for the reply in a
// new response buffer of the given capacity. The request is always released.
// On success the response is handed to the caller; on failure nothing is
// left allocated.
func Exchange(c *Context, req *Request, capacity int) (*Response, error) {
	const op = "exchange"

	defer req.Release()

	if err := c.check(op); err != nil {
		return nil, err
	}

	if req == nil || req.Bytes() == nil {
		return nil, newError(InputError, op, "no request")
	}

	env := Envelope{
		VirtAddr:  c.VirtAddr,
		Payload:   req.Bytes(),
		Src:       c.Src,
		Dst:       c.Dst,
		Module:    c.Module,
		SrcPcieId: c.PcieId,
		RequestId: uuid.New(),
	}

	logger := c.logger().WithFields(log.Fields{
		"request": env.RequestId,
		"module":  env.Module,
		"field":   req.Field,
		"op":      req.Op,
	})

	alloc := c.allocator()
	buf, err := alloc.Alloc(capacity)
	if err != nil {
		logger.WithError(err).Error("Failed to allocate messages response")
		return nil, &Error{Kind: AllocationError, Op: op, Err: err}
	}

	for i := range buf {
		buf[i] = 0
	}

	rsp := &Response{buf: buf, alloc: alloc}

	logger.Debugf("Sending %d byte message %s -> %s", len(env.Payload), env.Src, env.Dst)

	n, status := c.Channel.SyncSend(&env, buf)
	if status != StatusOK {
		rsp.Release()
		logger.WithField("status", status).Error("Failed to send sync messages or receive response")
		return nil, &Error{Kind: ChannelError, Op: op, Status: status}
	}

	if n < 0 || n > capacity {
		rsp.Release()
		logger.Errorf("Channel reported %d bytes for a %d byte response buffer", n, capacity)
		return nil, &Error{Kind: ChannelError, Op: op, Status: StatusErrRepsBuffLen}
	}

	rsp.Received = n

	logger.Tracef("Received %d byte response", n)

	return rsp, nil
}
