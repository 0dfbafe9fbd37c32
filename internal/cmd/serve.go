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
	"net"
	"os"
	"os/signal"
	"syscall"

	log "github.com/sirupsen/logrus"

	"github.com/NearNodeFlash/zxdh-ctl/internal/barmsg"
	"github.com/NearNodeFlash/zxdh-ctl/internal/device"
	"github.com/NearNodeFlash/zxdh-ctl/internal/ec"
	"github.com/NearNodeFlash/zxdh-ctl/internal/server"
	"github.com/NearNodeFlash/zxdh-ctl/internal/simulator"
)

// ServeCmd defines the Serve CLI command and parameters
type ServeCmd struct {
	DeviceOpts `embed:""`

	Listen string `default:":8080" help:"HTTP listen address."`
}

// Run will serve the device's fields over HTTP until interrupted
func (cmd *ServeCmd) Run() error {
	return run(&cmd.DeviceOpts, func(dev *device.Device) error {
		if err := dev.Init(); err != nil {
			return err
		}

		c := &ec.Controller{
			Name:    "ZXDH Controller",
			Addr:    cmd.Listen,
			Routers: ec.Routers{server.NewDeviceRouter(dev)},
		}

		if err := c.Init(); err != nil {
			return err
		}

		stop := interrupted(func() { c.Close() })
		defer stop()

		return c.ListenAndServe()
	})
}

// SimulateCmd defines the Simulate CLI command and parameters
type SimulateCmd struct {
	Socket     string `arg:"" help:"Unix socket to listen on." env:"ZXDH_BAR_SOCKET"`
	MockConfig string `name:"mock-config" type:"path" help:"Simulated firmware tables (YAML); the built in tables when empty."`
	Store      string `type:"path" help:"Database keeping table writes across restarts."`
}

// Run will answer BAR channel messages on the socket from simulated firmware
func (cmd *SimulateCmd) Run() error {
	config, err := barmsg.LoadMockConfig(cmd.MockConfig)
	if err != nil {
		return err
	}

	sim, err := simulator.New(config, cmd.Store)
	if err != nil {
		return err
	}
	defer sim.Close()

	l, err := net.Listen("unix", cmd.Socket)
	if err != nil {
		return err
	}
	defer os.Remove(cmd.Socket)

	stop := interrupted(func() { l.Close() })
	defer stop()

	log.WithFields(log.Fields{"socket": cmd.Socket, "devices": len(config.Devices)}).Info("Simulating firmware")

	return barmsg.Serve(l, sim)
}

// interrupted calls f once on SIGINT or SIGTERM. The returned function stops
// waiting.
func interrupted(f func()) func() {
	sig := make(chan os.Signal, 1)
	done := make(chan struct{})

	signal.Notify(sig, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		select {
		case s := <-sig:
			log.Infof("Received signal %s", s)
			f()
		case <-done:
		}
	}()

	return func() {
		signal.Stop(sig)
		close(done)
	}
}
