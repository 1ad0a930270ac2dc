package usbhid

import (
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/sstallion/go-hid"
)

// ErrNotOpen is reported when an I/O call reaches a closed or never-opened
// handle.
var ErrNotOpen = errors.New("device not open")

// TransportError wraps a raw HID I/O fault. The transport never retries;
// classification and retry policy belong to the layers above.
type TransportError struct {
	Op  string
	Err error
}

func (e *TransportError) Error() string {
	return fmt.Sprintf("transport %s: %v", e.Op, e.Err)
}

func (e *TransportError) Unwrap() error { return e.Err }

// Conn is the transport surface the protocol layers drive. *Device
// implements it; tests substitute scripted fakes.
type Conn interface {
	Write(p []byte) (int, error)
	Read(p []byte) (int, error)
	SendFeatureReport(p []byte) (int, error)
	GetFeatureReport(p []byte) (int, error)
	Identity() DeviceIdentity
	Close() error
}

// Config holds tunable parameters for an open device.
type Config struct {
	// ReadTimeout bounds a single interrupt IN read. Expiry is not a
	// fault: the device stayed silent and zero bytes come back.
	ReadTimeout time.Duration
}

// DefaultConfig returns the Config used when none is supplied.
func DefaultConfig() Config {
	return Config{
		ReadTimeout: 1000 * time.Millisecond,
	}
}

// Device is a go-hid backed Conn. All calls are serialized on an internal
// mutex; the controller processes one report at a time anyway.
type Device struct {
	mu     sync.Mutex
	dev    *hid.Device
	id     DeviceIdentity
	config Config
	closed bool
	log    logrus.FieldLogger
}

func newDevice(dev *hid.Device, id DeviceIdentity, config Config, log logrus.FieldLogger) *Device {
	return &Device{dev: dev, id: id, config: config, log: log}
}

// Identity returns the enumeration snapshot the device was opened from.
func (d *Device) Identity() DeviceIdentity {
	return d.id
}

// Write sends one report on the interrupt OUT endpoint.
func (d *Device) Write(p []byte) (int, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.closed || d.dev == nil {
		return 0, &TransportError{Op: "write", Err: ErrNotOpen}
	}
	n, err := d.dev.Write(p)
	if err != nil {
		return n, &TransportError{Op: "write", Err: err}
	}
	return n, nil
}

// Read fills p from the interrupt IN endpoint, waiting at most the
// configured ReadTimeout. A quiet device yields (0, nil).
func (d *Device) Read(p []byte) (int, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.closed || d.dev == nil {
		return 0, &TransportError{Op: "read", Err: ErrNotOpen}
	}
	n, err := d.dev.ReadWithTimeout(p, d.config.ReadTimeout)
	if err != nil {
		return n, &TransportError{Op: "read", Err: err}
	}
	return n, nil
}

// SendFeatureReport pushes one report over the control endpoint.
func (d *Device) SendFeatureReport(p []byte) (int, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.closed || d.dev == nil {
		return 0, &TransportError{Op: "send feature report", Err: ErrNotOpen}
	}
	n, err := d.dev.SendFeatureReport(p)
	if err != nil {
		return n, &TransportError{Op: "send feature report", Err: err}
	}
	return n, nil
}

// GetFeatureReport reads one report over the control endpoint. hidapi
// reports silence and failure identically on this path, so a fault is
// degraded to silence and logged; the next write surfaces a genuinely dead
// handle.
func (d *Device) GetFeatureReport(p []byte) (int, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.closed || d.dev == nil {
		return 0, &TransportError{Op: "get feature report", Err: ErrNotOpen}
	}
	n, err := d.dev.GetFeatureReport(p)
	if err != nil {
		d.log.WithError(err).Debug("GetFeatureReport()")
		return 0, nil
	}
	return n, nil
}

// Close releases the HID handle. Closing twice is harmless.
func (d *Device) Close() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.closed || d.dev == nil {
		return nil
	}
	d.closed = true
	err := d.dev.Close()
	d.dev = nil
	if err != nil {
		return &TransportError{Op: "close", Err: err}
	}
	return nil
}
