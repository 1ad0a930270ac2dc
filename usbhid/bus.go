package usbhid

import (
	"fmt"

	"github.com/google/gousb"
	"github.com/sirupsen/logrus"
	"github.com/sstallion/go-hid"
)

// Init readies the hidapi runtime. Call once at process start.
func Init() error {
	return hid.Init()
}

// Exit tears the hidapi runtime down.
func Exit() error {
	return hid.Exit()
}

// Bus finds and opens controllers. Enumeration goes through hidapi;
// Present additionally checks raw libusb visibility, which still sees a
// device whose HID interface the host refused to expose.
type Bus struct {
	config Config
	log    logrus.FieldLogger
}

// NewBus returns a Bus that opens devices with the given per-device Config.
func NewBus(config Config, log logrus.FieldLogger) *Bus {
	return &Bus{config: config, log: log}
}

// Enumerate snapshots every attached HID interface matching the pair.
func (b *Bus) Enumerate(vid, pid uint16) []DeviceIdentity {
	var found []DeviceIdentity
	err := hid.Enumerate(vid, pid, func(info *hid.DeviceInfo) error {
		found = append(found, DeviceIdentity{
			VendorID:     info.VendorID,
			ProductID:    info.ProductID,
			Path:         info.Path,
			Manufacturer: info.MfrStr,
			Product:      info.ProductStr,
			Serial:       info.SerialNbr,
		})
		return nil
	})
	if err != nil {
		// hidapi reports an empty match set as an error on some platforms
		b.log.WithError(err).Debug("Enumerate()")
	}
	return found
}

// Present reports whether the pair is visible to libusb, without opening
// anything. A device on the raw bus but missing from hidapi enumeration
// usually means a hidraw permission problem rather than absent hardware.
func (b *Bus) Present(vid, pid uint16) bool {
	ctx := gousb.NewContext()
	defer ctx.Close()
	present := false
	devs, err := ctx.OpenDevices(func(desc *gousb.DeviceDesc) bool {
		if desc.Vendor == gousb.ID(vid) && desc.Product == gousb.ID(pid) {
			present = true
		}
		return false
	})
	for _, d := range devs {
		d.Close()
	}
	if err != nil {
		b.log.WithError(err).Debug("OpenDevices()")
	}
	return present
}

// Open opens the device at the identity's path.
func (b *Bus) Open(id DeviceIdentity) (Conn, error) {
	dev, err := hid.OpenPath(id.Path)
	if err != nil {
		return nil, &TransportError{Op: fmt.Sprintf("open %s", id.Path), Err: err}
	}
	return newDevice(dev, id, b.config, b.log), nil
}

// OpenFirst enumerates the pair and opens the first interface found.
func (b *Bus) OpenFirst(vid, pid uint16) (Conn, error) {
	ids := b.Enumerate(vid, pid)
	if len(ids) == 0 {
		return nil, fmt.Errorf("no device %04x:%04x on the bus", vid, pid)
	}
	return b.Open(ids[0])
}
