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

package device

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	log "github.com/sirupsen/logrus"

	"github.com/NearNodeFlash/zxdh-ctl/internal/barmsg"
)

const (
	VendorId uint16 = 0x1cf2

	E310PfDeviceId uint16 = 0x8061
	E310VfDeviceId uint16 = 0x8062
	E312PfDeviceId uint16 = 0x8049
	E312VfDeviceId uint16 = 0x8060

	// CtrlChOffset is the position of the control channel within BAR0.
	CtrlChOffset = 0x2000
)

// Supported reports whether the vendor and device ids name a known NIC.
func Supported(vendorId, deviceId uint16) bool {
	if vendorId != VendorId {
		return false
	}

	switch deviceId {
	case E310PfDeviceId, E310VfDeviceId, E312PfDeviceId, E312VfDeviceId:
		return true
	}
	return false
}

// IsPF reports whether deviceId is a physical function.
func IsPF(deviceId uint16) bool {
	return deviceId == E310PfDeviceId || deviceId == E312PfDeviceId
}

// Device is one NIC function and its BAR message channel.
type Device struct {
	Path     string
	DeviceId uint16
	PcieId   uint16
	IsPF     bool

	// Filled in by Init
	PhyPort uint8
	PanelId uint8

	bar *Bar
	ctx *barmsg.Context
	log *log.Entry
}

// New returns a device whose control channel is at virtAddr. No BAR is
// mapped; Open does that for real hardware.
func New(deviceId, pcieId uint16, virtAddr uint64, ch barmsg.Channel) *Device {
	d := &Device{
		DeviceId: deviceId,
		PcieId:   pcieId,
		IsPF:     IsPF(deviceId),
	}

	src := barmsg.ChannelEndVF
	if d.IsPF {
		src = barmsg.ChannelEndPF
	}

	d.log = log.WithFields(log.Fields{
		"deviceId": fmt.Sprintf("0x%04x", deviceId),
		"pcieId":   fmt.Sprintf("0x%04x", pcieId),
	})

	d.ctx = barmsg.NewContext(ch, pcieId, virtAddr, src)
	d.ctx.Log = d.log

	return d
}

// Open probes the PCI function at path, a sysfs device directory, and maps
// its BAR0.
func Open(path string, pcieId uint16, ch barmsg.Channel) (*Device, error) {
	vendorId, err := readId(filepath.Join(path, "vendor"))
	if err != nil {
		return nil, err
	}

	deviceId, err := readId(filepath.Join(path, "device"))
	if err != nil {
		return nil, err
	}

	if !Supported(vendorId, deviceId) {
		return nil, fmt.Errorf("device %s: unsupported id %04x:%04x", path, vendorId, deviceId)
	}

	bar, err := MapBar(filepath.Join(path, "resource0"))
	if err != nil {
		return nil, fmt.Errorf("device %s: bar0 not mapped: %w", path, err)
	}

	if bar.Size() <= CtrlChOffset {
		bar.Unmap()
		return nil, fmt.Errorf("device %s: bar0 of %d bytes has no control channel", path, bar.Size())
	}

	d := New(deviceId, pcieId, bar.Addr()+CtrlChOffset, ch)
	d.Path = path
	d.bar = bar

	d.log.WithField("path", path).Infof("Opened device (PF: %t)", d.IsPF)

	return d, nil
}

func readId(path string) (uint16, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return 0, err
	}

	id, err := strconv.ParseUint(strings.TrimSpace(string(data)), 0, 16)
	if err != nil {
		return 0, fmt.Errorf("%s: %w", path, err)
	}

	return uint16(id), nil
}

// Context returns the BAR channel context of the device.
func (d *Device) Context() *barmsg.Context { return d.ctx }

// Init reads the identity the firmware holds for the device.
func (d *Device) Init() error {
	port, err := barmsg.GetPhysicalPort(d.ctx)
	if err != nil {
		d.log.WithError(err).Error("Failed to get phyport")
		return err
	}

	panel, err := barmsg.GetPanelId(d.ctx)
	if err != nil {
		d.log.WithError(err).Error("Failed to get panel id")
		return err
	}

	d.PhyPort, d.PanelId = port, panel

	d.log.WithFields(log.Fields{"phyport": port, "panelid": panel}).Info("Device initialized")

	return nil
}

// Close releases the BAR mapping. The context must not be used afterwards.
func (d *Device) Close() error {
	d.ctx.Channel = nil

	if d.bar == nil {
		return nil
	}

	err := d.bar.Unmap()
	d.bar = nil
	return err
}
