// Package session owns the open device handle and the mode state machine
// around it: connecting to whichever known identity is on the bus, the
// write/settle/read exchange, and the application/bootloader transitions.
package session

import (
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/Diobyte/MSIInovMysticLightDumper/nuvoton_isp"
	"github.com/Diobyte/MSIInovMysticLightDumper/usbhid"
)

// Mode is the controller's operating state as this session last proved it.
type Mode int

const (
	ModeDisconnected Mode = iota
	ModeApplication
	ModeBootloader
	ModeEnteringBootloader
	ModeLeavingBootloader
)

func (m Mode) String() string {
	switch m {
	case ModeDisconnected:
		return "disconnected"
	case ModeApplication:
		return "application"
	case ModeBootloader:
		return "bootloader"
	case ModeEnteringBootloader:
		return "entering bootloader"
	case ModeLeavingBootloader:
		return "leaving bootloader"
	}
	return fmt.Sprintf("Mode(%d)", int(m))
}

// Bus is the slice of usbhid the session drives. *usbhid.Bus satisfies it;
// tests substitute a scripted fake.
type Bus interface {
	Enumerate(vid, pid uint16) []usbhid.DeviceIdentity
	Present(vid, pid uint16) bool
	Open(id usbhid.DeviceIdentity) (usbhid.Conn, error)
}

// ErrNoDevice means no known identity was on the bus at Connect time.
var ErrNoDevice = errors.New("no compatible device found")

// Config tunes the session's timing.
type Config struct {
	// SettleDelay separates every write from its read, covering firmware
	// processing latency.
	SettleDelay time.Duration
	// TransitionTimeout bounds one wait for re-enumeration.
	TransitionTimeout time.Duration
	// PollInterval is the enumeration poll period during transitions.
	PollInterval time.Duration
	// EntryEncodings is the ordered set of bootloader-entry variants.
	EntryEncodings []EntryEncoding
}

// DefaultConfig returns the timing used against real hardware.
func DefaultConfig() Config {
	return Config{
		SettleDelay:       50 * time.Millisecond,
		TransitionTimeout: 5 * time.Second,
		PollInterval:      500 * time.Millisecond,
		EntryEncodings:    DefaultEntryEncodings(),
	}
}

// Session drives exactly one controller. At most one transport handle is
// open at a time and every call is serialized on the internal mutex; a
// second Session against the same physical device is not supported.
type Session struct {
	mu   sync.Mutex
	bus  Bus
	conn usbhid.Conn
	id   usbhid.DeviceIdentity
	mode Mode
	cfg  Config
	log  logrus.FieldLogger
}

// New returns an unconnected session.
func New(bus Bus, cfg Config, log logrus.FieldLogger) *Session {
	return &Session{bus: bus, cfg: cfg, log: log}
}

// Connect opens whichever known identity is on the bus, application
// identities first. Any previously open handle is closed first.
func (s *Session) Connect() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closeLocked()
	for _, kd := range usbhid.ApplicationDevices {
		ids := s.bus.Enumerate(kd.VendorID, kd.ProductID)
		if len(ids) == 0 {
			continue
		}
		if err := s.openLocked(ids[0], ModeApplication); err != nil {
			return err
		}
		s.log.WithFields(logrus.Fields{
			"device": kd.Name,
			"path":   ids[0].Path,
		}).Info("connected in application mode")
		return nil
	}
	ids := s.bus.Enumerate(usbhid.BootloaderVendorID, usbhid.BootloaderProductID)
	if len(ids) > 0 {
		if err := s.openLocked(ids[0], ModeBootloader); err != nil {
			return err
		}
		s.log.WithField("path", ids[0].Path).Info("connected in bootloader mode")
		return nil
	}
	return ErrNoDevice
}

func (s *Session) openLocked(id usbhid.DeviceIdentity, mode Mode) error {
	conn, err := s.bus.Open(id)
	if err != nil {
		s.mode = ModeDisconnected
		return err
	}
	s.conn, s.id, s.mode = conn, id, mode
	return nil
}

func (s *Session) closeLocked() {
	if s.conn == nil {
		return
	}
	if err := s.conn.Close(); err != nil {
		s.log.WithError(err).Debug("Close()")
	}
	s.conn = nil
}

// Close releases the handle. The session can Connect again afterwards.
func (s *Session) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closeLocked()
	s.mode = ModeDisconnected
	return nil
}

// Mode returns the current operating state.
func (s *Session) Mode() Mode {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.mode
}

// Identity returns the identity of the connected device.
func (s *Session) Identity() usbhid.DeviceIdentity {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.id
}

// Connected reports whether a handle is open.
func (s *Session) Connected() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.conn != nil
}

// Send performs one exchange: write the packet on the chosen channel, wait
// the settle delay, read one report. A silent device yields (nil, nil);
// classifying that is the caller's business.
func (s *Session) Send(packet []byte, method usbhid.TransportMethod) ([]byte, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.sendLocked(packet, method)
}

func (s *Session) sendLocked(packet []byte, method usbhid.TransportMethod) ([]byte, error) {
	if s.conn == nil {
		return nil, &usbhid.TransportError{Op: "send", Err: usbhid.ErrNotOpen}
	}
	if err := s.writeLocked(packet, method); err != nil {
		return nil, err
	}
	time.Sleep(s.cfg.SettleDelay)
	buf := make([]byte, nuvoton_isp.PacketSize)
	var n int
	var err error
	switch method {
	case usbhid.FeatureReport:
		// responses always come back under report id 0
		n, err = s.conn.GetFeatureReport(buf)
	default:
		n, err = s.conn.Read(buf)
	}
	if err != nil {
		return nil, err
	}
	if n == 0 {
		return nil, nil
	}
	return buf[:n], nil
}

func (s *Session) writeLocked(packet []byte, method usbhid.TransportMethod) error {
	switch method {
	case usbhid.FeatureReport:
		_, err := s.conn.SendFeatureReport(packet)
		return err
	case usbhid.InterruptWrite:
		_, err := s.conn.Write(packet)
		return err
	}
	return fmt.Errorf("unknown transport method %v", method)
}

// SendNoReply fires a packet without waiting for an answer, for commands
// that reboot or re-enumerate the device.
func (s *Session) SendNoReply(packet []byte, method usbhid.TransportMethod) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.conn == nil {
		return &usbhid.TransportError{Op: "send", Err: usbhid.ErrNotOpen}
	}
	return s.writeLocked(packet, method)
}

// Reset hard-resets the controller. The device may boot into either mode;
// the session disconnects and the caller reconnects once it re-enumerates.
func (s *Session) Reset() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.mode != ModeBootloader {
		return fmt.Errorf("reset is a bootloader command, session is %s", s.mode)
	}
	if err := s.writeLocked(nuvoton_isp.CreateResetMCUCmd(), usbhid.InterruptWrite); err != nil {
		return err
	}
	s.closeLocked()
	s.mode = ModeDisconnected
	return nil
}
