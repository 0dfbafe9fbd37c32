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

package main

import (
	"os"

	"github.com/alecthomas/kong"
	log "github.com/sirupsen/logrus"

	cmd "github.com/NearNodeFlash/zxdh-ctl/internal/cmd"
	"github.com/NearNodeFlash/zxdh-ctl/internal/logging"
)

var cli struct {
	Debug bool `kong:"optional,help='Enable debug logging.'"`

	Info     cmd.InfoCmd     `kong:"cmd,help='Report the identity firmware holds for the device.'"`
	PhyPort  cmd.PhyPortCmd  `kong:"cmd,name='phyport',help='Read the physical port of the device.'"`
	PanelId  cmd.PanelIdCmd  `kong:"cmd,name='panelid',help='Read the panel id of the device.'"`
	Table    cmd.TableCmd    `kong:"cmd,help='Firmware table field access commands.'"`
	Resource cmd.ResourceCmd `kong:"cmd,help='Query a resource-info field.'"`
	Serve    cmd.ServeCmd    `kong:"cmd,help='Serve the device fields over HTTP.'"`
	Simulate cmd.SimulateCmd `kong:"cmd,help='Answer BAR channel messages on a socket from simulated firmware.'"`
	Store    cmd.StoreCmd    `kong:"cmd,help='Simulated firmware database commands.'"`
}

func main() {
	c := kong.Parse(&cli,
		kong.Name("zxdhctl"),
		kong.Description("Query and modify ZXDH NIC firmware tables over the BAR channel."),
		kong.UsageOnError())

	logging.Setup(os.Stderr)
	if cli.Debug {
		log.SetLevel(log.DebugLevel)
	}

	err := c.Run()
	c.FatalIfErrorf(err)
}
