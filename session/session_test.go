package session_test

import (
	"io"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Diobyte/MSIInovMysticLightDumper/nuvoton_isp"
	"github.com/Diobyte/MSIInovMysticLightDumper/session"
	"github.com/Diobyte/MSIInovMysticLightDumper/usbhid"
)

// fakeConn records writes on both channels and answers reads from a canned
// response.
type fakeConn struct {
	id       usbhid.DeviceIdentity
	writes   [][]byte
	features [][]byte
	readResp []byte
	closed   bool
}

func (c *fakeConn) Write(p []byte) (int, error) {
	c.writes = append(c.writes, append([]byte(nil), p...))
	return len(p), nil
}

func (c *fakeConn) Read(p []byte) (int, error) {
	if c.readResp == nil {
		return 0, nil
	}
	return copy(p, c.readResp), nil
}

func (c *fakeConn) SendFeatureReport(p []byte) (int, error) {
	c.features = append(c.features, append([]byte(nil), p...))
	return len(p), nil
}

func (c *fakeConn) GetFeatureReport(p []byte) (int, error) {
	if c.readResp == nil {
		return 0, nil
	}
	return copy(p, c.readResp), nil
}

func (c *fakeConn) Identity() usbhid.DeviceIdentity { return c.id }

func (c *fakeConn) Close() error {
	c.closed = true
	return nil
}

// fakeBus scripts enumeration: application identities are present while
// app is true, and the bootloader identity appears once it has been polled
// more than bootAvailableAfter times (-1 means never).
type fakeBus struct {
	app                bool
	bootAvailableAfter int
	bootPolls          int
	opens              []*fakeConn
}

func (b *fakeBus) Enumerate(vid, pid uint16) []usbhid.DeviceIdentity {
	if usbhid.IsBootloader(vid, pid) {
		b.bootPolls++
		if b.bootAvailableAfter >= 0 && b.bootPolls > b.bootAvailableAfter {
			return []usbhid.DeviceIdentity{{VendorID: vid, ProductID: pid, Path: "boot0"}}
		}
		return nil
	}
	if b.app && usbhid.IsApplication(vid, pid) {
		return []usbhid.DeviceIdentity{{VendorID: vid, ProductID: pid, Path: "app0"}}
	}
	return nil
}

func (b *fakeBus) Present(vid, pid uint16) bool {
	return len(b.Enumerate(vid, pid)) > 0
}

func (b *fakeBus) Open(id usbhid.DeviceIdentity) (usbhid.Conn, error) {
	c := &fakeConn{id: id}
	b.opens = append(b.opens, c)
	return c, nil
}

func testSessionConfig() session.Config {
	cfg := session.DefaultConfig()
	cfg.SettleDelay = 0
	cfg.TransitionTimeout = 30 * time.Millisecond
	cfg.PollInterval = time.Millisecond
	return cfg
}

func discardLogger() *logrus.Logger {
	log := logrus.New()
	log.SetOutput(io.Discard)
	return log
}

func TestConnectPrefersApplication(t *testing.T) {
	bus := &fakeBus{app: true, bootAvailableAfter: 0}
	sess := session.New(bus, testSessionConfig(), discardLogger())
	require.NoError(t, sess.Connect())
	assert.Equal(t, session.ModeApplication, sess.Mode())
	assert.Equal(t, uint16(0x0DB0), sess.Identity().VendorID)
}

func TestConnectFallsBackToBootloader(t *testing.T) {
	bus := &fakeBus{app: false, bootAvailableAfter: 0}
	sess := session.New(bus, testSessionConfig(), discardLogger())
	require.NoError(t, sess.Connect())
	assert.Equal(t, session.ModeBootloader, sess.Mode())
	assert.Equal(t, usbhid.BootloaderVendorID, sess.Identity().VendorID)
}

func TestConnectWithoutDevice(t *testing.T) {
	bus := &fakeBus{app: false, bootAvailableAfter: -1}
	sess := session.New(bus, testSessionConfig(), discardLogger())
	assert.ErrorIs(t, sess.Connect(), session.ErrNoDevice)
}

func TestSendRoutesChannels(t *testing.T) {
	bus := &fakeBus{app: false, bootAvailableAfter: 0}
	sess := session.New(bus, testSessionConfig(), discardLogger())
	require.NoError(t, sess.Connect())

	conn := bus.opens[0]
	conn.readResp = make([]byte, nuvoton_isp.PacketSize)
	conn.readResp[2], conn.readResp[3] = 0x02, 0x05

	resp, err := sess.Send(nuvoton_isp.CreateGetVersionCmd(), usbhid.InterruptWrite)
	require.NoError(t, err)
	assert.Equal(t, conn.readResp, resp)
	require.Len(t, conn.writes, 1)
	assert.Empty(t, conn.features)

	_, err = sess.Send(nuvoton_isp.CreateGetVersionCmd(), usbhid.FeatureReport)
	require.NoError(t, err)
	require.Len(t, conn.features, 1)
}

func TestSendSilenceIsNotAnError(t *testing.T) {
	bus := &fakeBus{app: false, bootAvailableAfter: 0}
	sess := session.New(bus, testSessionConfig(), discardLogger())
	require.NoError(t, sess.Connect())

	resp, err := sess.Send(nuvoton_isp.CreateGetVersionCmd(), usbhid.InterruptWrite)
	require.NoError(t, err)
	assert.Nil(t, resp)
}

func TestSendWithoutHandle(t *testing.T) {
	bus := &fakeBus{}
	sess := session.New(bus, testSessionConfig(), discardLogger())
	_, err := sess.Send(nuvoton_isp.CreateGetVersionCmd(), usbhid.InterruptWrite)
	assert.ErrorIs(t, err, usbhid.ErrNotOpen)
}

func TestReset(t *testing.T) {
	bus := &fakeBus{app: false, bootAvailableAfter: 0}
	sess := session.New(bus, testSessionConfig(), discardLogger())
	require.NoError(t, sess.Connect())

	require.NoError(t, sess.Reset())
	conn := bus.opens[0]
	require.Len(t, conn.writes, 1)
	assert.Equal(t, byte(nuvoton_isp.CmdResetMCU), conn.writes[0][1])
	assert.True(t, conn.closed)
	assert.Equal(t, session.ModeDisconnected, sess.Mode())
}

func TestResetRefusedInApplicationMode(t *testing.T) {
	bus := &fakeBus{app: true, bootAvailableAfter: -1}
	sess := session.New(bus, testSessionConfig(), discardLogger())
	require.NoError(t, sess.Connect())
	assert.Error(t, sess.Reset())
}
