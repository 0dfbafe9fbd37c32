package barmsg_test

import (
	"encoding/binary"
	"errors"
	"sync"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/NearNodeFlash/zxdh-ctl/internal/barmsg"
)

const (
	testPcieId   = 0x0900
	testVirtAddr = 0xfe000000 + 0x2000
)

// tableReply answers with a table response header at offset 0.
func tableReply(payloadStatus uint8, payloadLen uint16, payload []byte) func([]byte) (int, barmsg.Status) {
	return func(rsp []byte) (int, barmsg.Status) {
		n := 8 + len(payload)
		rsp[0] = 0
		binary.LittleEndian.PutUint16(rsp[1:], uint16(n))
		rsp[4] = payloadStatus
		binary.LittleEndian.PutUint16(rsp[6:], payloadLen)
		copy(rsp[8:], payload)
		return n, barmsg.StatusOK
	}
}

// resourceReply answers with a resource-info header at offset 4.
func resourceReply(check uint8, length uint16, payload []byte) func([]byte) (int, barmsg.Status) {
	return func(rsp []byte) (int, barmsg.Status) {
		rsp[4] = check
		binary.LittleEndian.PutUint16(rsp[6:], length)
		n := copy(rsp[8:], payload)
		return 8 + n, barmsg.StatusOK
	}
}

func pattern(n int) []byte {
	b := make([]byte, n)
	for i := range b {
		b[i] = byte(i*7 + 1)
	}
	return b
}

var _ = Describe("Bar Message Field Queries", func() {

	var (
		alloc *barmsg.TrackingAllocator
		mock  *barmsg.MockChannel
		ctx   *barmsg.Context
	)

	BeforeEach(func() {
		config, err := barmsg.LoadMockConfig("")
		Expect(err).NotTo(HaveOccurred())

		alloc = barmsg.NewTrackingAllocator()
		mock = barmsg.NewMockChannel(config)

		ctx = barmsg.NewContext(mock, testPcieId, testVirtAddr, barmsg.ChannelEndPF)
		ctx.Allocator = alloc
	})

	AfterEach(func() {
		Expect(alloc.Outstanding()).To(BeZero(), "leaked buffers")
		Expect(alloc.DoubleFrees()).To(BeZero(), "buffers freed twice")
		Expect(alloc.Frees()).To(Equal(alloc.Allocs()))
	})

	Describe("Table Protocol", func() {

		It("reads the physical port from firmware", func() {
			port, err := barmsg.GetPhysicalPort(ctx)
			Expect(err).NotTo(HaveOccurred())
			Expect(port).To(Equal(uint8(3)))
			Expect(alloc.Allocs()).To(Equal(2))
		})

		It("decodes a literal physical port response", func() {
			mock.ReplyNext(func(rsp []byte) (int, barmsg.Status) {
				Expect(rsp).To(HaveLen(barmsg.TableResponseCapacity))
				return copy(rsp, []byte{0x00, 0x09, 0x00, 0x00, 0xAA, 0x00, 0x01, 0x00, 0x03}), barmsg.StatusOK
			})

			port, err := barmsg.GetPhysicalPort(ctx)
			Expect(err).NotTo(HaveOccurred())
			Expect(port).To(Equal(uint8(0x03)))
		})

		It("addresses the firmware table module", func() {
			_, err := barmsg.GetPhysicalPort(ctx)
			Expect(err).NotTo(HaveOccurred())

			env := mock.LastEnvelope()
			Expect(env.VirtAddr).To(Equal(uint64(testVirtAddr)))
			Expect(env.Src).To(Equal(barmsg.ChannelEndPF))
			Expect(env.Dst).To(Equal(barmsg.ChannelEndRISC))
			Expect(env.Module).To(Equal(barmsg.ModuleTbl))
			Expect(env.SrcPcieId).To(Equal(uint16(testPcieId)))
			Expect(env.Payload).To(Equal([]byte{0x00, 0x06, 0x00, 0x09, 0x00, 0x00, 0x00, 0x00}))
		})

		DescribeTable("returns exactly the expected number of bytes",
			func(size int) {
				mock.ReplyNext(tableReply(barmsg.SuccessMarker, uint16(size), pattern(size)))

				data, err := barmsg.ReadTableField(ctx, barmsg.Field(0x42), size)
				Expect(err).NotTo(HaveOccurred())
				Expect(data).To(HaveLen(size))
				Expect(data).To(Equal(pattern(size)))
			},
			Entry("empty field", 0),
			Entry("byte field", 1),
			Entry("word field", 2),
			Entry("dword field", 4),
			Entry("block field", 64),
			Entry("largest field", barmsg.TableResponseCapacity-8),
		)

		DescribeTable("rejects responses without the success marker",
			func(status uint8) {
				mock.ReplyNext(tableReply(status, 1, []byte{0x03}))

				data, err := barmsg.ReadTableField(ctx, barmsg.FieldPhyPort, 1)
				Expect(errors.Is(err, barmsg.ErrProtocol)).To(BeTrue())
				Expect(data).To(BeNil())
			},
			Entry("zero", uint8(0x00)),
			Entry("mock failure", uint8(0x55)),
			Entry("off by one", uint8(0xAB)),
			Entry("all ones", uint8(0xFF)),
		)

		It("rejects a payload length that differs from the field size", func() {
			mock.ReplyNext(tableReply(barmsg.SuccessMarker, 2, []byte{0x03, 0x04}))

			_, err := barmsg.ReadTableField(ctx, barmsg.FieldPhyPort, 1)
			Expect(barmsg.IsError(err, barmsg.ProtocolError)).To(BeTrue())
		})

		It("fails unknown fields", func() {
			_, err := barmsg.ReadTableField(ctx, barmsg.FieldHashId, 1)
			Expect(barmsg.IsError(err, barmsg.ProtocolError)).To(BeTrue())
		})

		It("reports the transport status of a failed send", func() {
			mock.FailNext(barmsg.StatusErrTimeout)

			_, err := barmsg.GetPhysicalPort(ctx)
			Expect(errors.Is(err, barmsg.ErrChannel)).To(BeTrue())

			var e *barmsg.Error
			Expect(errors.As(err, &e)).To(BeTrue())
			Expect(e.Status).To(Equal(barmsg.StatusErrTimeout))
		})

		It("rejects a received count larger than the buffer", func() {
			mock.ReplyNext(func(rsp []byte) (int, barmsg.Status) { return len(rsp) + 1, barmsg.StatusOK })

			_, err := barmsg.GetPhysicalPort(ctx)
			Expect(barmsg.IsError(err, barmsg.ChannelError)).To(BeTrue())
		})

		It("writes a field and accepts an empty acknowledgement", func() {
			ack, err := barmsg.WriteTableField(ctx, barmsg.FieldVport, []byte{0x02, 0x09}, 0)
			Expect(err).NotTo(HaveOccurred())
			Expect(ack).To(BeEmpty())

			value, ok := mock.Field(testPcieId, barmsg.FieldVport)
			Expect(ok).To(BeTrue())
			Expect(value).To(Equal([]byte{0x02, 0x09}))

			Expect(mock.LastEnvelope().Payload).To(Equal([]byte{0x01, 0x04, 0x00, 0x09, 0x02, 0x00, 0x00, 0x00, 0x02, 0x09}))
		})

		It("fails a write the firmware did not accept", func() {
			mock.ReplyNext(tableReply(0x00, 0, nil))

			_, err := barmsg.WriteTableField(ctx, barmsg.FieldVport, []byte{0x01}, 0)
			Expect(barmsg.IsError(err, barmsg.ProtocolError)).To(BeTrue())
		})
	})

	Describe("Resource-Info Protocol", func() {

		It("reads the panel id from firmware", func() {
			id, err := barmsg.GetPanelId(ctx)
			Expect(err).NotTo(HaveOccurred())
			Expect(id).To(Equal(uint8(7)))
		})

		It("decodes a literal panel id response", func() {
			mock.ReplyNext(func(rsp []byte) (int, barmsg.Status) {
				Expect(rsp).To(HaveLen(barmsg.ResourceResponseCapacity))
				return copy(rsp, []byte{0xFF, 0x05, 0x00, 0x00, 0xAA, 0x00, 0x01, 0x00, 0x07}), barmsg.StatusOK
			})

			data, n, err := barmsg.QueryResourceField(ctx, barmsg.FieldPanelId)
			Expect(err).NotTo(HaveOccurred())
			Expect(n).To(Equal(uint16(1)))
			Expect(data).To(Equal([]byte{0x07}))
		})

		DescribeTable("yields exactly the reported length",
			func(length int) {
				mock.ReplyNext(resourceReply(barmsg.SuccessMarker, uint16(length), pattern(length)))

				data, n, err := barmsg.QueryResourceField(ctx, barmsg.FieldVport)
				Expect(err).NotTo(HaveOccurred())
				Expect(n).To(Equal(uint16(length)))
				Expect(data).To(Equal(pattern(length)))
			},
			Entry("empty", 0),
			Entry("byte", 1),
			Entry("word", 2),
			Entry("odd", 257),
			Entry("maximum content", barmsg.ResourceContentMax),
		)

		It("rejects a failed check and copies nothing", func() {
			mock.ReplyNext(resourceReply(0x00, 1, []byte{0x07}))

			data, n, err := barmsg.QueryResourceField(ctx, barmsg.FieldPanelId)
			Expect(errors.Is(err, barmsg.ErrProtocol)).To(BeTrue())
			Expect(data).To(BeNil())
			Expect(n).To(BeZero())
		})

		DescribeTable("fails closed on lengths beyond the buffer",
			func(length int) {
				mock.ReplyNext(resourceReply(barmsg.SuccessMarker, uint16(length), nil))

				data, _, err := barmsg.QueryResourceField(ctx, barmsg.FieldPanelId)
				Expect(barmsg.IsError(err, barmsg.ProtocolError)).To(BeTrue())
				Expect(data).To(BeNil())
			},
			Entry("one past maximum content", barmsg.ResourceContentMax+1),
			Entry("buffer capacity", barmsg.ResourceResponseCapacity),
			Entry("largest length", 0xFFFF),
		)

		It("rejects a panel id that is not one byte", func() {
			mock.ReplyNext(resourceReply(barmsg.SuccessMarker, 2, []byte{0x07, 0x08}))

			_, err := barmsg.GetPanelId(ctx)
			Expect(barmsg.IsError(err, barmsg.ProtocolError)).To(BeTrue())
		})

		It("reports the transport status of a failed send", func() {
			mock.FailNext(barmsg.StatusErrPcieId)

			_, _, err := barmsg.QueryResourceField(ctx, barmsg.FieldPanelId)
			Expect(barmsg.IsError(err, barmsg.ChannelError)).To(BeTrue())
		})
	})

	Describe("Input Checks", func() {

		It("rejects an uninitialized channel before allocating", func() {
			ctx.Channel = nil

			_, err := barmsg.ReadTableField(ctx, barmsg.FieldPhyPort, 1)
			Expect(barmsg.IsError(err, barmsg.InputError)).To(BeTrue())

			_, err = barmsg.WriteTableField(ctx, barmsg.FieldPhyPort, []byte{1}, 0)
			Expect(barmsg.IsError(err, barmsg.InputError)).To(BeTrue())

			_, _, err = barmsg.QueryResourceField(ctx, barmsg.FieldPanelId)
			Expect(barmsg.IsError(err, barmsg.InputError)).To(BeTrue())

			Expect(alloc.Allocs()).To(BeZero())
			Expect(mock.Sends()).To(BeZero())
		})

		It("rejects a nil context", func() {
			_, err := barmsg.GetPhysicalPort(nil)
			Expect(errors.Is(err, barmsg.ErrInput)).To(BeTrue())

			_, err = barmsg.GetPanelId(nil)
			Expect(errors.Is(err, barmsg.ErrInput)).To(BeTrue())
		})

		It("rejects out of range sizes and empty writes", func() {
			_, err := barmsg.ReadTableField(ctx, barmsg.FieldPhyPort, barmsg.TableResponseCapacity)
			Expect(barmsg.IsError(err, barmsg.InputError)).To(BeTrue())

			_, err = barmsg.ReadTableField(ctx, barmsg.FieldPhyPort, -1)
			Expect(barmsg.IsError(err, barmsg.InputError)).To(BeTrue())

			_, err = barmsg.WriteTableField(ctx, barmsg.FieldVport, nil, 0)
			Expect(barmsg.IsError(err, barmsg.InputError)).To(BeTrue())

			_, err = barmsg.WriteTableField(ctx, barmsg.FieldVport, make([]byte, barmsg.MaxAllocSize-7), 0)
			Expect(barmsg.IsError(err, barmsg.InputError)).To(BeTrue())

			Expect(alloc.Allocs()).To(BeZero())
			Expect(mock.Sends()).To(BeZero())
		})
	})

	Describe("Allocation Failures", func() {

		It("fits the largest write in a single request buffer", func() {
			_, err := barmsg.WriteTableField(ctx, barmsg.FieldVport, make([]byte, barmsg.MaxAllocSize-8), 0)
			Expect(barmsg.IsError(err, barmsg.InputError)).To(BeFalse())
			Expect(barmsg.IsError(err, barmsg.AllocationError)).To(BeFalse())
			Expect(alloc.Outstanding()).To(BeZero())
		})

		It("releases the request when the response cannot be allocated", func() {
			alloc.Limit = 1

			_, err := barmsg.GetPhysicalPort(ctx)
			Expect(errors.Is(err, barmsg.ErrAllocation)).To(BeTrue())
			Expect(alloc.Allocs()).To(Equal(1))
			Expect(mock.Sends()).To(BeZero())
		})

		It("fails without sending when the request cannot be allocated", func() {
			alloc.Limit = -1

			_, _, err := barmsg.QueryResourceField(ctx, barmsg.FieldPanelId)
			Expect(barmsg.IsError(err, barmsg.AllocationError)).To(BeTrue())
			Expect(mock.Sends()).To(BeZero())
		})
	})

	Describe("Locked Channel", func() {

		It("serializes concurrent callers", func() {
			ctx.Channel = barmsg.NewLockedChannel(mock)

			const callers = 16

			var wg sync.WaitGroup
			ports := make([]uint8, callers)
			errs := make([]error, callers)

			for i := 0; i < callers; i++ {
				wg.Add(1)
				go func(i int) {
					defer GinkgoRecover()
					defer wg.Done()
					ports[i], errs[i] = barmsg.GetPhysicalPort(ctx)
				}(i)
			}

			wg.Wait()

			for i := 0; i < callers; i++ {
				Expect(errs[i]).NotTo(HaveOccurred())
				Expect(ports[i]).To(Equal(uint8(3)))
			}
			Expect(mock.Sends()).To(Equal(callers))
		})
	})
})
