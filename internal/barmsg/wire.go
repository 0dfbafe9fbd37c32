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
	"bytes"
	"fmt"

	"github.com/HewlettPackard/structex"
)

// Wire layouts. All fields are little endian and byte packed.

// tableMsgHeader precedes every outbound message. Both protocols share it.
type tableMsgHeader struct {
	Type       uint8 // see TableOp
	Field      uint8
	PcieId     uint16
	PayloadLen uint16 // bytes following the header, write requests only
	Reserved   uint16
}

// tableRspHeader starts at offset 0 of a table protocol response.
type tableRspHeader struct {
	RspStatus     uint8
	RspLen        uint16
	Reserved      uint8
	PayloadStatus uint8
	Reserved1     uint8
	PayloadLen    uint16
}

// resourceRspHeader starts at ResourceHeaderOffset of a resource-info response.
type resourceRspHeader struct {
	Check    uint8
	Reserved uint8
	Len      uint16
}

const (
	tableMsgHeaderSize    = 8
	tableRspHeaderSize    = 8
	resourceRspHeaderSize = 4
)

// putHeader encodes the packed form of s at the start of buf.
func putHeader(buf []byte, s interface{}) error {
	b := structex.NewBuffer(s)
	if err := structex.Encode(b, s); err != nil {
		return err
	}

	if len(b.Bytes()) > len(buf) {
		return fmt.Errorf("header of %d bytes does not fit in %d byte buffer", len(b.Bytes()), len(buf))
	}

	copy(buf, b.Bytes())
	return nil
}

// getHeader decodes the packed form of s from buf[offset:]; the caller
// guarantees the header lies within buf.
func getHeader(buf []byte, offset, size int, s interface{}) error {
	if offset < 0 || offset+size > len(buf) {
		return fmt.Errorf("header at offset %d exceeds %d byte buffer", offset, len(buf))
	}

	return structex.Decode(bytes.NewReader(buf[offset:offset+size]), s)
}
