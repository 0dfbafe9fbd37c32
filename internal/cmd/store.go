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

	"github.com/NearNodeFlash/zxdh-ctl/internal/kvstore"
)

// StoreDumpCmd defines the Store Dump CLI command and parameters
type StoreDumpCmd struct {
	Path string `arg:"" type:"existingdir" help:"The simulated firmware database to display."`
}

// Run will print every ledger in the database
func (cmd *StoreDumpCmd) Run() error {
	store, err := kvstore.Open(cmd.Path, true)
	if err != nil {
		return err
	}
	defer store.Close()

	fmt.Fprintf(stdout, "Store: '%s'\n", cmd.Path)

	store.Register([]kvstore.Registry{&dumpRegistry{}})

	return store.Replay()
}

// StoreCmd groups the simulated firmware database commands
type StoreCmd struct {
	Dump StoreDumpCmd `cmd:"" help:"Display the ledgers of a simulated firmware database."`
}

type dumpRegistry struct{}

func (*dumpRegistry) Prefix() string                            { return "" }
func (*dumpRegistry) NewReplay(id string) kvstore.ReplayHandler { return &dumpReplayHandler{id: id} }

type dumpReplayHandler struct {
	id string
}

func (rh *dumpReplayHandler) Metadata(data []byte) error {
	fmt.Fprintf(stdout, "Ledger %s:\n", rh.id)
	fmt.Fprintf(stdout, "|\tMetadata: %s\n", string(data))
	return nil
}

func (rh *dumpReplayHandler) Entry(t uint32, data []byte) error {
	fmt.Fprintf(stdout, "|\t\tField: %d Data: %s\n", t, hex.EncodeToString(data))
	return nil
}

func (rh *dumpReplayHandler) Done() error {
	fmt.Fprintf(stdout, "|-Ledger Done %s\n", rh.id)
	return nil
}
