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

package server_test

import (
	"bytes"
	"encoding/json"
	"net/http"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/NearNodeFlash/zxdh-ctl/internal/barmsg"
	"github.com/NearNodeFlash/zxdh-ctl/internal/device"
	"github.com/NearNodeFlash/zxdh-ctl/internal/ec"
	"github.com/NearNodeFlash/zxdh-ctl/internal/server"
)

var _ = Describe("Device Router", func() {

	var (
		mock *barmsg.MockChannel
		c    *ec.Controller
	)

	BeforeEach(func() {
		config, err := barmsg.LoadMockConfig("")
		Expect(err).NotTo(HaveOccurred())

		mock = barmsg.NewMockChannel(config)
		dev := device.New(device.E310PfDeviceId, 0x0900, 0xfe002000, mock)

		c = &ec.Controller{
			Name:    "Test Controller",
			Addr:    "localhost:8080",
			Routers: ec.Routers{server.NewDeviceRouter(dev)},
		}
		Expect(c.Init()).To(Succeed())
	})

	send := func(method, path string, body []byte) *ec.ResponseWriter {
		r, err := http.NewRequest(method, path, bytes.NewBuffer(body))
		Expect(err).NotTo(HaveOccurred())

		w := ec.NewResponseWriter()
		c.Send(w, r)
		return w
	}

	get := func(path string, status int) *server.FieldModel {
		w := send(ec.GET_METHOD, path, nil)
		Expect(w.StatusCode).To(Equal(status), w.Buffer.String())

		if status != http.StatusOK {
			rsp := ec.ErrorResponse{}
			Expect(json.Unmarshal(w.Buffer.Bytes(), &rsp)).To(Succeed())
			Expect(rsp.Status).To(Equal(status))
			return nil
		}

		model := &server.FieldModel{}
		Expect(json.Unmarshal(w.Buffer.Bytes(), model)).To(Succeed())
		return model
	}

	It("reports the device identity", func() {
		w := send(ec.GET_METHOD, "/zxdh/v1/device", nil)
		Expect(w.StatusCode).To(Equal(http.StatusOK))

		model := server.DeviceModel{}
		Expect(json.Unmarshal(w.Buffer.Bytes(), &model)).To(Succeed())
		Expect(model).To(Equal(server.DeviceModel{
			DeviceId: "0x8061",
			PcieId:   "0x0900",
			IsPF:     true,
			PhyPort:  3,
			PanelId:  7,
		}))
	})

	It("reads the physical port", func() {
		Expect(get("/zxdh/v1/phyport", http.StatusOK)).To(Equal(&server.FieldModel{Field: 6, Length: 1, Data: "03"}))
	})

	It("reads the panel id", func() {
		Expect(get("/zxdh/v1/panelid", http.StatusOK)).To(Equal(&server.FieldModel{Field: 5, Length: 1, Data: "07"}))
	})

	It("reads table fields by size", func() {
		Expect(get("/zxdh/v1/table/4?size=2", http.StatusOK)).To(Equal(&server.FieldModel{Field: 4, Length: 2, Data: "0009"}))
		Expect(get("/zxdh/v1/table/0x06", http.StatusOK).Data).To(Equal("03"))
	})

	It("reads resource fields", func() {
		Expect(get("/zxdh/v1/resource/4", http.StatusOK)).To(Equal(&server.FieldModel{Field: 4, Length: 2, Data: "0009"}))
	})

	It("writes a table field", func() {
		body, _ := json.Marshal(&server.WriteModel{Data: "0a0b"})

		w := send(ec.PUT_METHOD, "/zxdh/v1/table/9", body)
		Expect(w.StatusCode).To(Equal(http.StatusOK), w.Buffer.String())

		value, ok := mock.Field(0x0900, barmsg.FieldSpeed)
		Expect(ok).To(BeTrue())
		Expect(value).To(Equal([]byte{0x0a, 0x0b}))

		Expect(get("/zxdh/v1/table/9?size=2", http.StatusOK).Data).To(Equal("0a0b"))
	})

	DescribeTable("maps failures to status codes",
		func(path string, setup func(), status int) {
			if setup != nil {
				setup()
			}
			get(path, status)
		},
		Entry("bad field id", "/zxdh/v1/table/port", nil, http.StatusBadRequest),
		Entry("field id out of range", "/zxdh/v1/table/256", nil, http.StatusBadRequest),
		Entry("bad size", "/zxdh/v1/table/6?size=one", nil, http.StatusBadRequest),
		Entry("size out of range", "/zxdh/v1/table/6?size=1000", nil, http.StatusBadRequest),
		Entry("size mismatch", "/zxdh/v1/table/6?size=2", nil, http.StatusBadGateway),
		Entry("unknown field", "/zxdh/v1/resource/10", nil, http.StatusBadGateway),
		Entry("transport failure", "/zxdh/v1/phyport", func() { mock.FailNext(barmsg.StatusErrTimeout) }, http.StatusBadGateway),
	)

	It("rejects malformed writes", func() {
		Expect(send(ec.PUT_METHOD, "/zxdh/v1/table/9", []byte("{")).StatusCode).To(Equal(http.StatusBadRequest))

		body, _ := json.Marshal(&server.WriteModel{Data: "xyz"})
		Expect(send(ec.PUT_METHOD, "/zxdh/v1/table/9", body).StatusCode).To(Equal(http.StatusBadRequest))

		body, _ = json.Marshal(&server.WriteModel{Data: ""})
		Expect(send(ec.PUT_METHOD, "/zxdh/v1/table/9", body).StatusCode).To(Equal(http.StatusBadRequest))

		Expect(mock.Sends()).To(BeZero())
	})

	It("fails to initialize without a channel", func() {
		dev := device.New(device.E310VfDeviceId, 0x0901, 0xfe002000, nil)

		c := &ec.Controller{Name: "No Channel", Routers: ec.Routers{server.NewDeviceRouter(dev)}}
		Expect(c.Init()).NotTo(Succeed())
	})
})
