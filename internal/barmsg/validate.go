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

// ValidateTableResponse checks a table protocol response and returns a copy
// of its payload. The header is at offset 0; the call fails unless firmware
// marked the payload successful and its length equals expected.
func ValidateTableResponse(buf []byte, expected int) ([]byte, error) {
	const op = "validate table response"

	hdr := tableRspHeader{}
	if err := getHeader(buf, 0, tableRspHeaderSize, &hdr); err != nil {
		return nil, &Error{Kind: ProtocolError, Op: op, Err: err}
	}

	if hdr.PayloadStatus != SuccessMarker || int(hdr.PayloadLen) != expected {
		return nil, newError(ProtocolError, op, "common response is invalid, status: %#x payload len: %d expected: %d",
			hdr.PayloadStatus, hdr.PayloadLen, expected)
	}

	end := tableRspHeaderSize + int(hdr.PayloadLen)
	if end > len(buf) {
		return nil, newError(ProtocolError, op, "payload of %d bytes exceeds %d byte response", hdr.PayloadLen, len(buf))
	}

	payload := make([]byte, hdr.PayloadLen)
	copy(payload, buf[tableRspHeaderSize:end])

	return payload, nil
}

// ValidateResourceResponse checks a resource-info response and returns a
// copy of its payload. The header is at ResourceHeaderOffset. The length it
// reports comes from firmware and is bounded by the buffer before use.
func ValidateResourceResponse(buf []byte) ([]byte, error) {
	const op = "validate resource response"

	hdr := resourceRspHeader{}
	if err := getHeader(buf, ResourceHeaderOffset, resourceRspHeaderSize, &hdr); err != nil {
		return nil, &Error{Kind: ProtocolError, Op: op, Err: err}
	}

	if hdr.Check != SuccessMarker {
		return nil, newError(ProtocolError, op, "check %#x", hdr.Check)
	}

	start := ResourceHeaderOffset + resourceRspHeaderSize
	end := start + int(hdr.Len)
	if int(hdr.Len) > ResourceContentMax || end > len(buf) {
		return nil, newError(ProtocolError, op, "length %d exceeds %d byte response", hdr.Len, len(buf))
	}

	payload := make([]byte, hdr.Len)
	copy(payload, buf[start:end])

	return payload, nil
}
