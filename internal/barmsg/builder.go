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

// Request is an outbound message buffer: a table message header followed by
// the optional write payload. It belongs to one call and is released by
// Exchange.
type Request struct {
	Op    TableOp
	Field Field

	buf   []byte
	alloc Allocator
}

// Bytes returns the encoded message, nil once released.
func (r *Request) Bytes() []byte { return r.buf }

// Release returns the buffer to its allocator. Calling Release more than once
// is harmless.
func (r *Request) Release() {
	if r == nil || r.buf == nil {
		return
	}
	r.alloc.Free(r.buf)
	r.buf = nil
}

// BuildTableRequest allocates and encodes a table message for field. The
// payload is carried only by TableWrite requests.
func BuildTableRequest(alloc Allocator, pcieId uint16, op TableOp, field Field, payload []byte) (*Request, error) {
	const opName = "build table request"

	if alloc == nil {
		alloc = HeapAllocator
	}

	if op != TableWrite {
		payload = nil
	}

	buf, err := alloc.Alloc(tableMsgHeaderSize + len(payload))
	if err != nil {
		return nil, &Error{Kind: AllocationError, Op: opName, Err: err}
	}

	for i := range buf {
		buf[i] = 0
	}

	hdr := tableMsgHeader{
		Type:       uint8(op),
		Field:      uint8(field),
		PcieId:     pcieId,
		PayloadLen: uint16(len(payload)),
	}

	if err := putHeader(buf, hdr); err != nil {
		alloc.Free(buf)
		return nil, &Error{Kind: AllocationError, Op: opName, Err: err}
	}

	copy(buf[tableMsgHeaderSize:], payload)

	return &Request{Op: op, Field: field, buf: buf, alloc: alloc}, nil
}
