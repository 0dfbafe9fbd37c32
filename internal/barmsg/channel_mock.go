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
	_ "embed"
	"fmt"
	"os"
	"sync"

	"gopkg.in/yaml.v2"
)

//go:embed config.yaml
var mockConfigFile []byte

// mockFailureMarker is what the mock firmware writes in place of the success
// marker for a field it does not hold.
const mockFailureMarker uint8 = 0x55

type MockFieldConfig struct {
	Field uint8
	Name  string
	Value []uint8 `yaml:",flow"`
}

type MockDeviceConfig struct {
	PcieId uint16 `yaml:"pcieId"`
	Name   string
	Fields []MockFieldConfig
}

// MockConfig describes the firmware tables served by a MockChannel.
type MockConfig struct {
	Version  string
	Metadata struct {
		Name string
	}
	Devices []MockDeviceConfig
}

// LoadMockConfig parses a mock firmware description. An empty path loads the
// built-in description.
func LoadMockConfig(path string) (*MockConfig, error) {
	data := mockConfigFile
	if path != "" {
		var err error
		if data, err = os.ReadFile(path); err != nil {
			return nil, err
		}
	}

	return ParseMockConfig(data)
}

func ParseMockConfig(data []byte) (*MockConfig, error) {
	config := new(MockConfig)
	if err := yaml.Unmarshal(data, config); err != nil {
		return nil, err
	}

	seen := make(map[uint16]bool)
	for _, dev := range config.Devices {
		if seen[dev.PcieId] {
			return nil, fmt.Errorf("device 0x%04x configured twice", dev.PcieId)
		}
		seen[dev.PcieId] = true

		for _, f := range dev.Fields {
			if len(f.Value) > ResourceContentMax {
				return nil, fmt.Errorf("device 0x%04x field %d: value of %d bytes exceeds %d", dev.PcieId, f.Field, len(f.Value), ResourceContentMax)
			}
		}
	}

	return config, nil
}

// MockChannel simulates the firmware end of a BAR channel. Table reads and
// resource reads are answered from the configured fields, table writes
// update them.
type MockChannel struct {
	sync.Mutex

	devices map[uint16]map[Field][]byte
	replies []func(rsp []byte) (int, Status)

	sends   int
	last    Envelope
	onWrite func(pcieId uint16, field Field, value []byte)
}

func NewMockChannel(config *MockConfig) *MockChannel {
	m := &MockChannel{devices: make(map[uint16]map[Field][]byte)}

	if config == nil {
		return m
	}

	for _, dev := range config.Devices {
		fields := make(map[Field][]byte)
		for _, f := range dev.Fields {
			fields[Field(f.Field)] = append([]byte{}, f.Value...)
		}
		m.devices[dev.PcieId] = fields
	}

	return m
}

// FailNext makes the next SyncSend report status without replying.
func (m *MockChannel) FailNext(status Status) {
	m.ReplyNext(func([]byte) (int, Status) { return 0, status })
}

// ReplyNext makes the next SyncSend answer with f instead of the simulated
// firmware. f fills rsp and returns the byte count and status to report.
func (m *MockChannel) ReplyNext(f func(rsp []byte) (int, Status)) {
	m.Lock()
	defer m.Unlock()
	m.replies = append(m.replies, f)
}

// OnWrite registers f to observe every table write the firmware applies.
// f runs with the channel locked and must not call back into it.
func (m *MockChannel) OnWrite(f func(pcieId uint16, field Field, value []byte)) {
	m.Lock()
	defer m.Unlock()
	m.onWrite = f
}

// SetField stores value as the firmware's copy of a device field.
func (m *MockChannel) SetField(pcieId uint16, field Field, value []byte) {
	m.Lock()
	defer m.Unlock()

	fields, ok := m.devices[pcieId]
	if !ok {
		fields = make(map[Field][]byte)
		m.devices[pcieId] = fields
	}
	fields[field] = append([]byte{}, value...)
}

// Sends returns the number of SyncSend calls.
func (m *MockChannel) Sends() int {
	m.Lock()
	defer m.Unlock()
	return m.sends
}

// LastEnvelope returns a copy of the most recent envelope received.
func (m *MockChannel) LastEnvelope() Envelope {
	m.Lock()
	defer m.Unlock()
	return m.last
}

// Field returns the value the mock firmware holds for a device field.
func (m *MockChannel) Field(pcieId uint16, field Field) ([]byte, bool) {
	m.Lock()
	defer m.Unlock()

	fields, ok := m.devices[pcieId]
	if !ok {
		return nil, false
	}
	value, ok := fields[field]
	return append([]byte{}, value...), ok
}

func (m *MockChannel) SyncSend(env *Envelope, rsp []byte) (int, Status) {
	m.Lock()
	defer m.Unlock()

	m.sends++
	m.last = *env
	m.last.Payload = append([]byte{}, env.Payload...)

	if len(m.replies) != 0 {
		f := m.replies[0]
		m.replies = m.replies[1:]
		return f(rsp)
	}

	if env.VirtAddr == 0 {
		return 0, StatusErrVirtAddrNull
	}

	if env.Module != ModuleTbl {
		return 0, StatusErrModuleNotExist
	}

	hdr := tableMsgHeader{}
	if err := getHeader(env.Payload, 0, tableMsgHeaderSize, &hdr); err != nil {
		return 0, StatusErrLen
	}

	if hdr.PcieId != env.SrcPcieId {
		return 0, StatusErrPcieId
	}

	fields, ok := m.devices[hdr.PcieId]
	if !ok {
		return 0, StatusErrPcieId
	}

	var value []byte
	status := SuccessMarker

	switch TableOp(hdr.Type) {
	case TableRead:
		if value, ok = fields[Field(hdr.Field)]; !ok {
			status = mockFailureMarker
		}
	case TableWrite:
		if int(hdr.PayloadLen) != len(env.Payload)-tableMsgHeaderSize {
			return 0, StatusErrLen
		}
		fields[Field(hdr.Field)] = append([]byte{}, env.Payload[tableMsgHeaderSize:]...)
		if m.onWrite != nil {
			m.onWrite(hdr.PcieId, Field(hdr.Field), fields[Field(hdr.Field)])
		}
	default:
		return 0, StatusErrType
	}

	n := tableRspHeaderSize + len(value)
	if n > len(rsp) {
		return 0, StatusErrRepsBuffLen
	}

	reply := tableRspHeader{
		RspLen:        uint16(n),
		PayloadStatus: status,
		PayloadLen:    uint16(len(value)),
	}

	if err := putHeader(rsp, reply); err != nil {
		return 0, StatusErrRepsBuffLen
	}
	copy(rsp[tableRspHeaderSize:], value)

	return n, StatusOK
}
