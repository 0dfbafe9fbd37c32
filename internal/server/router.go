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

package server

import (
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strconv"

	"github.com/gorilla/mux"
	log "github.com/sirupsen/logrus"

	"github.com/NearNodeFlash/zxdh-ctl/internal/barmsg"
	"github.com/NearNodeFlash/zxdh-ctl/internal/device"
	"github.com/NearNodeFlash/zxdh-ctl/internal/ec"
)

// DeviceModel describes the device behind the router.
type DeviceModel struct {
	DeviceId string
	PcieId   string
	IsPF     bool
	PhyPort  uint8
	PanelId  uint8
}

// FieldModel is a field value read from firmware; Data is hex encoded.
type FieldModel struct {
	Field  uint8
	Length int
	Data   string
}

// WriteModel is the body of a table field write; Data is hex encoded.
type WriteModel struct {
	Data    string
	AckSize int
}

// DeviceRouter exposes the BAR message field operations of one device.
type DeviceRouter struct {
	dev *device.Device
	ctx barmsg.Context
}

func NewDeviceRouter(dev *device.Device) ec.Router {
	return &DeviceRouter{dev: dev}
}

func (*DeviceRouter) Name() string { return "DeviceRouter" }

// Init takes a private copy of the device context whose channel admits one
// exchange at a time; HTTP handlers run concurrently.
func (r *DeviceRouter) Init() error {
	ctx := r.dev.Context()
	if ctx == nil || ctx.Channel == nil {
		return fmt.Errorf("device 0x%04x channel not initialized", r.dev.PcieId)
	}

	r.ctx = *ctx
	r.ctx.Channel = barmsg.NewLockedChannel(ctx.Channel)

	return nil
}

func (*DeviceRouter) Start() error { return nil }

func (r *DeviceRouter) Routes() ec.Routes {
	return ec.Routes{
		{
			Name:        "DeviceGet",
			Method:      ec.GET_METHOD,
			Path:        "/zxdh/v1/device",
			HandlerFunc: r.DeviceGet,
		},
		{
			Name:        "PhyPortGet",
			Method:      ec.GET_METHOD,
			Path:        "/zxdh/v1/phyport",
			HandlerFunc: r.PhyPortGet,
		},
		{
			Name:        "PanelIdGet",
			Method:      ec.GET_METHOD,
			Path:        "/zxdh/v1/panelid",
			HandlerFunc: r.PanelIdGet,
		},
		{
			Name:        "TableFieldGet",
			Method:      ec.GET_METHOD,
			Path:        "/zxdh/v1/table/{FieldId}",
			HandlerFunc: r.TableFieldGet,
		},
		{
			Name:        "TableFieldPut",
			Method:      ec.PUT_METHOD,
			Path:        "/zxdh/v1/table/{FieldId}",
			HandlerFunc: r.TableFieldPut,
		},
		{
			Name:        "ResourceFieldGet",
			Method:      ec.GET_METHOD,
			Path:        "/zxdh/v1/resource/{FieldId}",
			HandlerFunc: r.ResourceFieldGet,
		},
	}
}

// controllerError maps a BAR message failure to the HTTP status reported
// for it.
func controllerError(err error) *ec.ControllerError {
	switch {
	case barmsg.IsError(err, barmsg.InputError):
		return ec.NewErrBadRequest().WithError(err)
	case barmsg.IsError(err, barmsg.AllocationError):
		return ec.NewErrServiceUnavailable().WithError(err)
	case barmsg.IsError(err, barmsg.ChannelError):
		return ec.NewErrBadGateway().WithError(err).WithCause("channel failure")
	case barmsg.IsError(err, barmsg.ProtocolError):
		return ec.NewErrBadGateway().WithError(err).WithCause("invalid firmware response")
	}
	return ec.NewErrInternalServerError().WithError(err)
}

func fieldModel(field barmsg.Field, data []byte) *FieldModel {
	return &FieldModel{Field: uint8(field), Length: len(data), Data: hex.EncodeToString(data)}
}

func fieldId(r *http.Request) (barmsg.Field, error) {
	id, err := strconv.ParseUint(mux.Vars(r)["FieldId"], 0, 8)
	if err != nil {
		return 0, ec.NewErrBadRequest().WithError(err).WithCause("field id")
	}
	return barmsg.Field(id), nil
}

func (r *DeviceRouter) DeviceGet(w http.ResponseWriter, req *http.Request) {
	model := &DeviceModel{
		DeviceId: fmt.Sprintf("0x%04x", r.dev.DeviceId),
		PcieId:   fmt.Sprintf("0x%04x", r.dev.PcieId),
		IsPF:     r.dev.IsPF,
	}

	var err error
	if model.PhyPort, err = barmsg.GetPhysicalPort(&r.ctx); err == nil {
		model.PanelId, err = barmsg.GetPanelId(&r.ctx)
	}

	if err != nil {
		ec.EncodeResponse(model, controllerError(err), w)
		return
	}

	ec.EncodeResponse(model, nil, w)
}

func (r *DeviceRouter) PhyPortGet(w http.ResponseWriter, req *http.Request) {
	port, err := barmsg.GetPhysicalPort(&r.ctx)
	if err != nil {
		ec.EncodeResponse(&FieldModel{Field: uint8(barmsg.FieldPhyPort)}, controllerError(err), w)
		return
	}

	ec.EncodeResponse(fieldModel(barmsg.FieldPhyPort, []byte{port}), nil, w)
}

func (r *DeviceRouter) PanelIdGet(w http.ResponseWriter, req *http.Request) {
	id, err := barmsg.GetPanelId(&r.ctx)
	if err != nil {
		ec.EncodeResponse(&FieldModel{Field: uint8(barmsg.FieldPanelId)}, controllerError(err), w)
		return
	}

	ec.EncodeResponse(fieldModel(barmsg.FieldPanelId, []byte{id}), nil, w)
}

func (r *DeviceRouter) TableFieldGet(w http.ResponseWriter, req *http.Request) {
	field, err := fieldId(req)
	if err != nil {
		ec.EncodeResponse(&FieldModel{}, err, w)
		return
	}

	size := 1
	if s := req.URL.Query().Get("size"); s != "" {
		if size, err = strconv.Atoi(s); err != nil {
			ec.EncodeResponse(&FieldModel{Field: uint8(field)}, ec.NewErrBadRequest().WithError(err).WithCause("size"), w)
			return
		}
	}

	data, err := barmsg.ReadTableField(&r.ctx, field, size)
	if err != nil {
		ec.EncodeResponse(&FieldModel{Field: uint8(field)}, controllerError(err), w)
		return
	}

	ec.EncodeResponse(fieldModel(field, data), nil, w)
}

func (r *DeviceRouter) TableFieldPut(w http.ResponseWriter, req *http.Request) {
	field, err := fieldId(req)
	if err != nil {
		ec.EncodeResponse(&FieldModel{}, err, w)
		return
	}

	body, err := io.ReadAll(req.Body)
	if err != nil {
		ec.EncodeResponse(&FieldModel{Field: uint8(field)}, ec.NewErrBadRequest().WithError(err), w)
		return
	}

	model := WriteModel{}
	if err := json.Unmarshal(body, &model); err != nil {
		ec.EncodeResponse(&FieldModel{Field: uint8(field)}, ec.NewErrBadRequest().WithError(err).WithCause("body"), w)
		return
	}

	payload, err := hex.DecodeString(model.Data)
	if err != nil {
		ec.EncodeResponse(&FieldModel{Field: uint8(field)}, ec.NewErrBadRequest().WithError(err).WithCause("data"), w)
		return
	}

	ack, err := barmsg.WriteTableField(&r.ctx, field, payload, model.AckSize)
	if err != nil {
		ec.EncodeResponse(&FieldModel{Field: uint8(field)}, controllerError(err), w)
		return
	}

	log.WithFields(log.Fields{"field": field, "length": len(payload)}).Info("Table field written")

	ec.EncodeResponse(fieldModel(field, ack), nil, w)
}

func (r *DeviceRouter) ResourceFieldGet(w http.ResponseWriter, req *http.Request) {
	field, err := fieldId(req)
	if err != nil {
		ec.EncodeResponse(&FieldModel{}, err, w)
		return
	}

	data, _, err := barmsg.QueryResourceField(&r.ctx, field)
	if err != nil {
		ec.EncodeResponse(&FieldModel{Field: uint8(field)}, controllerError(err), w)
		return
	}

	ec.EncodeResponse(fieldModel(field, data), nil, w)
}
