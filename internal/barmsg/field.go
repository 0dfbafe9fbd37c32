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

// maxTableFieldSize is the largest field a table response can carry.
const maxTableFieldSize = TableResponseCapacity - tableRspHeaderSize

// ReadTableField reads size bytes of a firmware table field.
func ReadTableField(c *Context, field Field, size int) ([]byte, error) {
	const op = "read table field"

	if err := c.check(op); err != nil {
		return nil, err
	}

	if size < 0 || size > maxTableFieldSize {
		return nil, newError(InputError, op, "field size %d out of range [0, %d]", size, maxTableFieldSize)
	}

	return tableCall(c, TableRead, field, nil, size)
}

// WriteTableField writes payload to a firmware table field. The firmware
// acknowledges with ackSize bytes, usually none, which are returned.
func WriteTableField(c *Context, field Field, payload []byte, ackSize int) ([]byte, error) {
	const op = "write table field"

	if err := c.check(op); err != nil {
		return nil, err
	}

	if len(payload) == 0 || len(payload) > maxTableWritePayload {
		return nil, newError(InputError, op, "payload of %d bytes out of range [1, %d]", len(payload), maxTableWritePayload)
	}

	if ackSize < 0 || ackSize > maxTableFieldSize {
		return nil, newError(InputError, op, "acknowledgement size %d out of range [0, %d]", ackSize, maxTableFieldSize)
	}

	return tableCall(c, TableWrite, field, payload, ackSize)
}

// The request header and payload share one buffer.
const maxTableWritePayload = MaxAllocSize - tableMsgHeaderSize

func tableCall(c *Context, op TableOp, field Field, payload []byte, expected int) ([]byte, error) {
	logger := c.logger().WithField("field", field)

	req, err := BuildTableRequest(c.allocator(), c.PcieId, op, field, payload)
	if err != nil {
		logger.WithError(err).Error("Failed to fill common msg")
		return nil, err
	}

	rsp, err := Exchange(c, req, TableResponseCapacity)
	if err != nil {
		return nil, err
	}
	defer rsp.Release()

	data, err := ValidateTableResponse(rsp.Bytes(), expected)
	if err != nil {
		logger.WithError(err).Error("Common response is invalid")
		return nil, err
	}

	return data, nil
}

// QueryResourceField reads a resource attribute using the resource-info
// format. It returns the payload and the length reported by firmware.
func QueryResourceField(c *Context, field Field) ([]byte, uint16, error) {
	const op = "query resource field"

	if err := c.check(op); err != nil {
		return nil, 0, err
	}

	logger := c.logger().WithField("field", field)

	req, err := BuildTableRequest(c.allocator(), c.PcieId, TableRead, field, nil)
	if err != nil {
		logger.WithError(err).Error("Failed to fill resource msg")
		return nil, 0, err
	}

	rsp, err := Exchange(c, req, ResourceResponseCapacity)
	if err != nil {
		return nil, 0, err
	}
	defer rsp.Release()

	data, err := ValidateResourceResponse(rsp.Bytes())
	if err != nil {
		logger.WithError(err).Error("Get resource field failed")
		return nil, 0, err
	}

	return data, uint16(len(data)), nil
}

// GetPhysicalPort returns the physical port number of the device.
func GetPhysicalPort(c *Context) (uint8, error) {
	data, err := ReadTableField(c, FieldPhyPort, 1)
	if err != nil {
		return 0, err
	}
	return data[0], nil
}

// GetPanelId returns the panel identifier of the device.
func GetPanelId(c *Context) (uint8, error) {
	data, n, err := QueryResourceField(c, FieldPanelId)
	if err != nil {
		return 0, err
	}

	if n != 1 {
		return 0, newError(ProtocolError, "get panel id", "panel id of %d bytes", n)
	}

	return data[0], nil
}
