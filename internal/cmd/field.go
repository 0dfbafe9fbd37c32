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
	"encoding/hex"
	"fmt"
	"strconv"

	"github.com/NearNodeFlash/zxdh-ctl/internal/barmsg"
	"github.com/NearNodeFlash/zxdh-ctl/internal/device"
)

func parseField(s string) (barmsg.Field, error) {
	id, err := strconv.ParseUint(s, 0, 8)
	if err != nil {
		return 0, fmt.Errorf("field %q: %w", s, err)
	}
	return barmsg.Field(id), nil
}

func printData(field barmsg.Field, data []byte) {
	fmt.Fprintf(stdout, "Field %d (%d bytes): %s\n", field, len(data), hex.EncodeToString(data))
}

// InfoCmd defines the Info CLI command and parameters
type InfoCmd struct {
	DeviceOpts `embed:""`
}

// Run will execute the Info CLI Command
func (cmd *InfoCmd) Run() error {
	return run(&cmd.DeviceOpts, func(dev *device.Device) error {
		if err := dev.Init(); err != nil {
			return err
		}

		fmt.Fprintf(stdout, "Device:  0x%04x\n", dev.DeviceId)
		fmt.Fprintf(stdout, "PcieId:  0x%04x\n", dev.PcieId)
		fmt.Fprintf(stdout, "PF:      %t\n", dev.IsPF)
		fmt.Fprintf(stdout, "PhyPort: %d\n", dev.PhyPort)
		fmt.Fprintf(stdout, "PanelId: %d\n", dev.PanelId)

		return nil
	})
}

// PhyPortCmd defines the PhyPort CLI command and parameters
type PhyPortCmd struct {
	DeviceOpts `embed:""`
}

// Run will execute the PhyPort CLI Command
func (cmd *PhyPortCmd) Run() error {
	return run(&cmd.DeviceOpts, func(dev *device.Device) error {
		port, err := barmsg.GetPhysicalPort(dev.Context())
		if err != nil {
			return err
		}

		fmt.Fprintf(stdout, "PhyPort: %d\n", port)

		return nil
	})
}

// PanelIdCmd defines the PanelId CLI command and parameters
type PanelIdCmd struct {
	DeviceOpts `embed:""`
}

// Run will execute the PanelId CLI Command
func (cmd *PanelIdCmd) Run() error {
	return run(&cmd.DeviceOpts, func(dev *device.Device) error {
		id, err := barmsg.GetPanelId(dev.Context())
		if err != nil {
			return err
		}

		fmt.Fprintf(stdout, "PanelId: %d\n", id)

		return nil
	})
}

// TableReadCmd defines the Table Read CLI command and parameters
type TableReadCmd struct {
	DeviceOpts `embed:""`

	Field string `arg:"" help:"Field to read."`
	Size  int    `arg:"" optional:"" default:"1" help:"Number of bytes to read."`
}

// Run will execute the Table Read Command and display the field data
func (cmd *TableReadCmd) Run() error {
	field, err := parseField(cmd.Field)
	if err != nil {
		return err
	}

	return run(&cmd.DeviceOpts, func(dev *device.Device) error {
		data, err := barmsg.ReadTableField(dev.Context(), field, cmd.Size)
		if err != nil {
			return err
		}

		printData(field, data)

		return nil
	})
}

// TableWriteCmd defines the Table Write CLI command and parameters
type TableWriteCmd struct {
	DeviceOpts `embed:""`

	Field   string `arg:"" help:"Field to write."`
	Data    string `arg:"" help:"Hex encoded bytes to write."`
	AckSize int    `name:"ack-size" default:"0" help:"Number of bytes firmware returns with the acknowledgement."`
}

// Run will execute the Table Write Command
func (cmd *TableWriteCmd) Run() error {
	field, err := parseField(cmd.Field)
	if err != nil {
		return err
	}

	payload, err := hex.DecodeString(cmd.Data)
	if err != nil {
		return fmt.Errorf("data %q: %w", cmd.Data, err)
	}

	return run(&cmd.DeviceOpts, func(dev *device.Device) error {
		ack, err := barmsg.WriteTableField(dev.Context(), field, payload, cmd.AckSize)
		if err != nil {
			return err
		}

		if len(ack) != 0 {
			printData(field, ack)
		}

		return nil
	})
}

// TableCmd groups the table protocol commands
type TableCmd struct {
	Read  TableReadCmd  `cmd:"" help:"Read a firmware table field."`
	Write TableWriteCmd `cmd:"" help:"Write a firmware table field."`
}

// ResourceCmd defines the Resource CLI command and parameters
type ResourceCmd struct {
	DeviceOpts `embed:""`

	Field string `arg:"" help:"Resource field to query."`
}

// Run will execute the Resource Command and display the field data
func (cmd *ResourceCmd) Run() error {
	field, err := parseField(cmd.Field)
	if err != nil {
		return err
	}

	return run(&cmd.DeviceOpts, func(dev *device.Device) error {
		data, _, err := barmsg.QueryResourceField(dev.Context(), field)
		if err != nil {
			return err
		}

		printData(field, data)

		return nil
	})
}
