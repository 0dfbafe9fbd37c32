package barmsg_test

import (
	"encoding/binary"
	"errors"
	"io"
	"net"
	"path/filepath"
	"time"

	"github.com/google/uuid"
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/NearNodeFlash/zxdh-ctl/internal/barmsg"
)

var _ = Describe("Socket Channel", func() {

	var (
		mock   *barmsg.MockChannel
		client *barmsg.SocketChannel
		ctx    *barmsg.Context
		done   chan error
	)

	BeforeEach(func() {
		config, err := barmsg.LoadMockConfig("")
		Expect(err).NotTo(HaveOccurred())
		mock = barmsg.NewMockChannel(config)

		local, remote := net.Pipe()

		done = make(chan error, 1)
		go func() { done <- barmsg.ServeConn(remote, mock) }()

		client = barmsg.NewSocketChannel(local)
		ctx = barmsg.NewContext(client, testPcieId, testVirtAddr, barmsg.ChannelEndVF)
	})

	AfterEach(func() {
		Expect(client.Close()).To(Succeed())
		Eventually(done).Should(Receive(BeNil()))
	})

	It("forwards table and resource queries to the agent", func() {
		port, err := barmsg.GetPhysicalPort(ctx)
		Expect(err).NotTo(HaveOccurred())
		Expect(port).To(Equal(uint8(3)))

		panel, err := barmsg.GetPanelId(ctx)
		Expect(err).NotTo(HaveOccurred())
		Expect(panel).To(Equal(uint8(7)))
	})

	It("preserves the envelope addressing", func() {
		_, err := barmsg.GetPhysicalPort(ctx)
		Expect(err).NotTo(HaveOccurred())

		env := mock.LastEnvelope()
		Expect(env.VirtAddr).To(Equal(uint64(testVirtAddr)))
		Expect(env.Src).To(Equal(barmsg.ChannelEndVF))
		Expect(env.Dst).To(Equal(barmsg.ChannelEndRISC))
		Expect(env.Module).To(Equal(barmsg.ModuleTbl))
		Expect(env.SrcPcieId).To(Equal(uint16(testPcieId)))
		Expect(env.RequestId).NotTo(Equal(uuid.Nil))
	})

	It("applies writes through the agent", func() {
		_, err := barmsg.WriteTableField(ctx, barmsg.FieldSpeed, []byte{0x64, 0x00}, 0)
		Expect(err).NotTo(HaveOccurred())

		value, ok := mock.Field(testPcieId, barmsg.FieldSpeed)
		Expect(ok).To(BeTrue())
		Expect(value).To(Equal([]byte{0x64, 0x00}))
	})

	It("returns the agent's transport status", func() {
		mock.FailNext(barmsg.StatusErrNotReady)

		_, err := barmsg.GetPhysicalPort(ctx)

		var e *barmsg.Error
		Expect(errors.As(err, &e)).To(BeTrue())
		Expect(e.Kind).To(Equal(barmsg.ChannelError))
		Expect(e.Status).To(Equal(barmsg.StatusErrNotReady))

		port, err := barmsg.GetPhysicalPort(ctx)
		Expect(err).NotTo(HaveOccurred())
		Expect(port).To(Equal(uint8(3)))
	})

	It("passes raw replies through and stays framed", func() {
		mock.ReplyNext(func(rsp []byte) (int, barmsg.Status) { return len(rsp), barmsg.StatusOK })

		n, status := client.SyncSend(&barmsg.Envelope{Payload: make([]byte, 8)}, make([]byte, 4))
		Expect(status).To(Equal(barmsg.StatusOK))
		Expect(n).To(Equal(4))

		port, err := barmsg.GetPhysicalPort(ctx)
		Expect(err).NotTo(HaveOccurred())
		Expect(port).To(Equal(uint8(3)))
	})

	It("fails with a socket status once closed", func() {
		Expect(client.Close()).To(Succeed())

		_, err := barmsg.GetPhysicalPort(ctx)

		var e *barmsg.Error
		Expect(errors.As(err, &e)).To(BeTrue())
		Expect(e.Status).To(Equal(barmsg.StatusErrSocket))
	})
})

var _ = Describe("Socket Channel Server", func() {

	It("serves clients on a unix socket", func() {
		config, err := barmsg.LoadMockConfig("")
		Expect(err).NotTo(HaveOccurred())

		path := filepath.Join(GinkgoT().TempDir(), "bar.sock")
		l, err := net.Listen("unix", path)
		Expect(err).NotTo(HaveOccurred())

		done := make(chan error, 1)
		go func() { done <- barmsg.Serve(l, barmsg.NewMockChannel(config)) }()

		for _, id := range []uint16{0x0900, 0x0901} {
			client, err := barmsg.DialSocket("unix", path)
			Expect(err).NotTo(HaveOccurred())

			panel, err := barmsg.GetPanelId(barmsg.NewContext(client, id, testVirtAddr, barmsg.ChannelEndPF))
			Expect(err).NotTo(HaveOccurred())
			Expect(panel).To(Equal(uint8(id - 0x0900 + 7)))

			Expect(client.Close()).To(Succeed())
		}

		Expect(l.Close()).To(Succeed())
		Eventually(done).Should(Receive(BeNil()))
	})
})

var _ = Describe("Socket Channel Failures", func() {

	It("times out an exchange the agent never answers", func() {
		local, remote := net.Pipe()
		defer remote.Close()

		go io.Copy(io.Discard, remote)

		client := barmsg.NewSocketChannel(local)
		client.Timeout = 50 * time.Millisecond

		_, err := barmsg.GetPhysicalPort(barmsg.NewContext(client, testPcieId, testVirtAddr, barmsg.ChannelEndPF))

		var e *barmsg.Error
		Expect(errors.As(err, &e)).To(BeTrue())
		Expect(e.Kind).To(Equal(barmsg.ChannelError))
		Expect(e.Status).To(Equal(barmsg.StatusErrTimeout))

		n, status := client.SyncSend(&barmsg.Envelope{}, make([]byte, 8))
		Expect(n).To(BeZero())
		Expect(status).To(Equal(barmsg.StatusErrSocket))
	})

	It("fails an exchange whose deadline cannot be set", func() {
		local, remote := net.Pipe()
		defer remote.Close()

		conn := &noDeadlineConn{Conn: local}
		client := barmsg.NewSocketChannel(conn)
		client.Timeout = time.Second

		n, status := client.SyncSend(&barmsg.Envelope{Payload: make([]byte, 8)}, make([]byte, 8))
		Expect(n).To(BeZero())
		Expect(status).To(Equal(barmsg.StatusErrSocket))
		Expect(conn.writes).To(BeZero())

		n, status = client.SyncSend(&barmsg.Envelope{}, make([]byte, 8))
		Expect(n).To(BeZero())
		Expect(status).To(Equal(barmsg.StatusErrSocket))
	})

	It("rejects a frame with a bad checksum", func() {
		mock := barmsg.NewMockChannel(nil)

		local, remote := net.Pipe()
		defer local.Close()

		go barmsg.ServeConn(remote, mock)

		frame := make([]byte, 20+16)
		frame[3] = 0x5A // not the CRC-8 of sixteen zero bytes
		binary.LittleEndian.PutUint16(frame[8:], 8)

		_, err := local.Write(frame)
		Expect(err).NotTo(HaveOccurred())

		reply := make([]byte, 8)
		_, err = io.ReadFull(local, reply)
		Expect(err).NotTo(HaveOccurred())

		Expect(barmsg.Status(binary.LittleEndian.Uint16(reply[0:]))).To(Equal(barmsg.StatusErrSocket))
		Expect(binary.LittleEndian.Uint16(reply[2:])).To(BeZero())
		Expect(mock.Sends()).To(BeZero())
	})
})

// noDeadlineConn is a connection that refuses deadlines and counts writes.
type noDeadlineConn struct {
	net.Conn
	writes int
}

func (c *noDeadlineConn) SetDeadline(time.Time) error {
	return errors.New("deadlines not supported")
}

func (c *noDeadlineConn) Write(b []byte) (int, error) {
	c.writes++
	return c.Conn.Write(b)
}
