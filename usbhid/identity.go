// Package usbhid provides access to Mystic Light controllers over USB HID:
// the identity tables for the devices this tool recognizes, bus enumeration,
// and raw report transport.
package usbhid

import "fmt"

// TransportMethod selects the HID channel a report travels on. The
// application firmware listens on the control endpoint (feature reports)
// while the ISP bootloader serves the interrupt endpoints; mode switching
// has to try both.
type TransportMethod int

const (
	// FeatureReport sends via HID SET_FEATURE and reads via GET_FEATURE.
	FeatureReport TransportMethod = iota
	// InterruptWrite sends on the interrupt OUT endpoint and reads from
	// the interrupt IN endpoint.
	InterruptWrite
)

func (m TransportMethod) String() string {
	switch m {
	case FeatureReport:
		return "feature"
	case InterruptWrite:
		return "interrupt"
	}
	return fmt.Sprintf("TransportMethod(%d)", int(m))
}

// DeviceIdentity is an immutable snapshot of an enumerated device.
type DeviceIdentity struct {
	VendorID     uint16
	ProductID    uint16
	Path         string
	Manufacturer string
	Product      string
	Serial       string
}

func (id DeviceIdentity) String() string {
	return fmt.Sprintf("%04x:%04x %q", id.VendorID, id.ProductID, id.Product)
}

// KnownDevice names one (vendor, product) pair the tool recognizes.
type KnownDevice struct {
	VendorID  uint16
	ProductID uint16
	Name      string
}

// The bootloader identity is shared by the whole controller family: the
// Nuvoton LDROM enumerates under the chip vendor's id, not MSI's.
const (
	BootloaderVendorID  uint16 = 0x0416
	BootloaderProductID uint16 = 0x3F00
)

// ApplicationDevices lists the application-mode identities this tool
// recognizes, in the order connection attempts prefer them.
var ApplicationDevices = []KnownDevice{
	{VendorID: 0x0DB0, ProductID: 0x0076, Name: "MSI Mystic Light (legacy)"},
	{VendorID: 0x1462, ProductID: 0x7C70, Name: "MSI Mystic Light (Z890 family)"},
	{VendorID: 0x1462, ProductID: 0x7E06, Name: "MSI Mystic Light (Z790 family)"},
}

// IsApplication reports whether the pair is a known application-mode
// identity.
func IsApplication(vid, pid uint16) bool {
	for _, kd := range ApplicationDevices {
		if kd.VendorID == vid && kd.ProductID == pid {
			return true
		}
	}
	return false
}

// IsBootloader reports whether the pair is the family's bootloader identity.
func IsBootloader(vid, pid uint16) bool {
	return vid == BootloaderVendorID && pid == BootloaderProductID
}

// Lookup returns the display name for a known pair.
func Lookup(vid, pid uint16) (string, bool) {
	for _, kd := range ApplicationDevices {
		if kd.VendorID == vid && kd.ProductID == pid {
			return kd.Name, true
		}
	}
	if IsBootloader(vid, pid) {
		return "Nuvoton ISP bootloader", true
	}
	return "", false
}
