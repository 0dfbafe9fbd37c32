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

package cmd

import (
	"fmt"
	"io"
	"os"
	"strconv"
	"time"

	"github.com/senseyeio/duration"

	"github.com/NearNodeFlash/zxdh-ctl/internal/barmsg"
	"github.com/NearNodeFlash/zxdh-ctl/internal/device"
)

// Commands print their results here.
var stdout io.Writer = os.Stdout

// mockVirtAddr stands in for the channel address of a simulated device.
const mockVirtAddr = 0xfe000000 + device.CtrlChOffset

// DeviceOpts selects a NIC function and the way its BAR channel is reached.
// Commands embed it.
type DeviceOpts struct {
	Device     string `short:"d" env:"ZXDH_DEV" help:"The sysfs PCI device directory of the function."`
	PcieId     string `name:"pcie-id" default:"0x0900" help:"PCIe id of the function."`
	Socket     string `env:"ZXDH_BAR_SOCKET" help:"Unix socket of the BAR channel agent."`
	Timeout    string `default:"PT5S" help:"Agent exchange timeout as an ISO 8601 duration."`
	Mock       bool   `help:"Talk to simulated firmware."`
	MockConfig string `name:"mock-config" type:"path" help:"Simulated firmware tables (YAML); the built in tables when empty."`
}

func (opts *DeviceOpts) pcieId() (uint16, error) {
	id, err := strconv.ParseUint(opts.PcieId, 0, 16)
	if err != nil {
		return 0, fmt.Errorf("pcie-id %q: %w", opts.PcieId, err)
	}
	return uint16(id), nil
}

func (opts *DeviceOpts) timeout() (time.Duration, error) {
	if opts.Timeout == "" {
		return 0, nil
	}

	d, err := duration.ParseISO8601(opts.Timeout)
	if err != nil {
		return 0, fmt.Errorf("timeout %q: %w", opts.Timeout, err)
	}

	now := time.Now()
	return d.Shift(now).Sub(now), nil
}

func (opts *DeviceOpts) channel() (barmsg.Channel, func(), error) {
	switch {
	case opts.Mock:
		config, err := barmsg.LoadMockConfig(opts.MockConfig)
		if err != nil {
			return nil, nil, err
		}
		return barmsg.NewMockChannel(config), func() {}, nil
	case opts.Socket != "":
		timeout, err := opts.timeout()
		if err != nil {
			return nil, nil, err
		}

		ch, err := barmsg.DialSocket("unix", opts.Socket)
		if err != nil {
			return nil, nil, err
		}
		ch.Timeout = timeout

		return ch, func() { ch.Close() }, nil
	}

	return nil, nil, fmt.Errorf("no BAR channel: use --socket or --mock")
}

func (opts *DeviceOpts) open() (*device.Device, func(), error) {
	pcieId, err := opts.pcieId()
	if err != nil {
		return nil, nil, err
	}

	ch, closeChannel, err := opts.channel()
	if err != nil {
		return nil, nil, err
	}

	if opts.Device == "" {
		if !opts.Mock {
			closeChannel()
			return nil, nil, fmt.Errorf("device required: use --device or ZXDH_DEV")
		}

		dev := device.New(device.E310PfDeviceId, pcieId, mockVirtAddr, ch)
		return dev, func() { dev.Close(); closeChannel() }, nil
	}

	dev, err := device.Open(opts.Device, pcieId, ch)
	if err != nil {
		closeChannel()
		return nil, nil, err
	}

	return dev, func() { dev.Close(); closeChannel() }, nil
}

func run(opts *DeviceOpts, f func(*device.Device) error) error {
	dev, closer, err := opts.open()
	if err != nil {
		return err
	}
	defer closer()

	return f(dev)
}
