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

package simulator

import (
	"errors"
	"fmt"
	"strconv"

	log "github.com/sirupsen/logrus"

	"github.com/NearNodeFlash/zxdh-ctl/internal/barmsg"
	"github.com/NearNodeFlash/zxdh-ctl/internal/kvstore"
)

// StorePrefix begins the key of every device ledger.
const StorePrefix = "FW"

// Simulator is simulated firmware. With a store, the table writes it applies
// are kept in one ledger per device and replayed when it is next created.
type Simulator struct {
	*barmsg.MockChannel

	store   *kvstore.Store
	ledgers map[uint16]*kvstore.Ledger
	log     *log.Entry
}

// New returns simulated firmware serving config. An empty storePath keeps
// writes in memory only.
func New(config *barmsg.MockConfig, storePath string) (*Simulator, error) {
	s := &Simulator{
		MockChannel: barmsg.NewMockChannel(config),
		ledgers:     make(map[uint16]*kvstore.Ledger),
		log:         log.WithField("store", storePath),
	}

	if storePath == "" {
		return s, nil
	}

	store, err := kvstore.Open(storePath, false)
	if err != nil {
		return nil, err
	}

	s.store = store
	store.Register([]kvstore.Registry{s})

	if err := store.Replay(); err != nil {
		store.Close()
		return nil, fmt.Errorf("replay %s: %w", storePath, err)
	}

	s.MockChannel.OnWrite(s.record)

	return s, nil
}

func (s *Simulator) Close() error {
	if s.store == nil {
		return nil
	}

	for _, ledger := range s.ledgers {
		ledger.Close()
	}

	err := s.store.Close()
	s.store = nil
	return err
}

func deviceKey(pcieId uint16) string {
	return fmt.Sprintf("%04x", pcieId)
}

func (s *Simulator) record(pcieId uint16, field barmsg.Field, value []byte) {
	ledger, err := s.ledger(pcieId)
	if err == nil {
		err = ledger.Log(uint32(field), value)
	}

	if err != nil {
		s.log.WithError(err).WithFields(log.Fields{"pcieId": pcieId, "field": field}).Error("Failed to record field write")
	}
}

func (s *Simulator) ledger(pcieId uint16) (*kvstore.Ledger, error) {
	if ledger, ok := s.ledgers[pcieId]; ok {
		return ledger, nil
	}

	key := s.store.MakeKey(s, deviceKey(pcieId))

	ledger, err := s.store.OpenKey(key, false)
	if errors.Is(err, kvstore.ErrKeyNotFound) {
		ledger, err = s.store.NewKey(key, []byte(fmt.Sprintf("0x%04x", pcieId)))
	}
	if err != nil {
		return nil, err
	}

	s.ledgers[pcieId] = ledger
	return ledger, nil
}

func (*Simulator) Prefix() string { return StorePrefix }

func (s *Simulator) NewReplay(id string) kvstore.ReplayHandler {
	return &replayHandler{sim: s, id: id}
}

type replayHandler struct {
	sim     *Simulator
	id      string
	pcieId  uint16
	entries int
}

func (h *replayHandler) Metadata([]byte) error {
	id, err := strconv.ParseUint(h.id, 16, 16)
	if err != nil {
		return fmt.Errorf("device key %q: %w", h.id, err)
	}
	h.pcieId = uint16(id)
	return nil
}

func (h *replayHandler) Entry(t uint32, data []byte) error {
	if t > 0xFF {
		return fmt.Errorf("device %s: field %d out of range", h.id, t)
	}

	h.sim.SetField(h.pcieId, barmsg.Field(t), data)
	h.entries++
	return nil
}

func (h *replayHandler) Done() error {
	h.sim.log.WithFields(log.Fields{"pcieId": h.pcieId, "entries": h.entries}).Info("Restored field writes")
	return nil
}
