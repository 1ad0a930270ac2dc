package nuvoton_isp

import (
	"fmt"

	"github.com/sirupsen/logrus"

	"github.com/Diobyte/MSIInovMysticLightDumper/usbhid"
)

// Sender is the slice of the session surface the query helpers drive: one
// write, the settle delay, one read.
type Sender interface {
	Send(packet []byte, method usbhid.TransportMethod) ([]byte, error)
}

// Version is a firmware version pair as the device reports it.
type Version struct {
	Major byte
	Minor byte
}

func (v Version) String() string {
	return fmt.Sprintf("%d.%d", v.Major, v.Minor)
}

// ReadVersion asks the bootloader for its firmware version.
func ReadVersion(dev Sender, method usbhid.TransportMethod) (Version, error) {
	resp, err := dev.Send(CreateGetVersionCmd(), method)
	if err != nil {
		return Version{}, err
	}
	if c := ClassifyResponse(resp); c != RespData {
		return Version{}, fmt.Errorf("version query answered with %s", c)
	}
	major, minor, ok := ParseVersionResult(resp)
	if !ok {
		return Version{}, fmt.Errorf("version response too short (%d bytes)", len(resp))
	}
	return Version{Major: major, Minor: minor}, nil
}

// ReadDeviceID asks the bootloader for the part identification word.
func ReadDeviceID(dev Sender, method usbhid.TransportMethod) (uint32, error) {
	resp, err := dev.Send(CreateGetDeviceIDCmd(), method)
	if err != nil {
		return 0, err
	}
	if c := ClassifyResponse(resp); c != RespData {
		return 0, fmt.Errorf("device id query answered with %s", c)
	}
	id, ok := ParseDeviceIDResult(resp)
	if !ok {
		return 0, fmt.Errorf("no id word found in response")
	}
	return id, nil
}

// ReadConfiguration asks the bootloader for the CONFIG word pair.
func ReadConfiguration(dev Sender, method usbhid.TransportMethod) (ConfigWords, error) {
	resp, err := dev.Send(CreateReadConfigCmd(), method)
	if err != nil {
		return ConfigWords{}, err
	}
	if c := ClassifyResponse(resp); c != RespData {
		return ConfigWords{}, fmt.Errorf("config query answered with %s", c)
	}
	cfg, ok := ParseReadConfigResult(resp)
	if !ok {
		return ConfigWords{}, fmt.Errorf("no config word pair found in response")
	}
	return cfg, nil
}

// ReadAPROMVersion asks the running application for its firmware version.
// Application commands only exist on the feature-report channel.
func ReadAPROMVersion(dev Sender) (Version, error) {
	resp, err := dev.Send(CreateAPROMVersionCmd(), usbhid.FeatureReport)
	if err != nil {
		return Version{}, err
	}
	if c := ClassifyResponse(resp); c != RespData {
		return Version{}, fmt.Errorf("version query answered with %s", c)
	}
	major, minor, ok := ParseVersionResult(resp)
	if !ok {
		return Version{}, fmt.Errorf("version response too short (%d bytes)", len(resp))
	}
	return Version{Major: major, Minor: minor}, nil
}

// ReadAPROMChecksum asks the running application for its image checksum.
func ReadAPROMChecksum(dev Sender) (uint32, error) {
	resp, err := dev.Send(CreateAPROMChecksumCmd(), usbhid.FeatureReport)
	if err != nil {
		return 0, err
	}
	if c := ClassifyResponse(resp); c != RespData {
		return 0, fmt.Errorf("checksum query answered with %s", c)
	}
	sum, ok := ParseChecksumResult(resp)
	if !ok {
		return 0, fmt.Errorf("checksum response too short (%d bytes)", len(resp))
	}
	return sum, nil
}

// alternativeProbeOpcodes are tried bare when ReadFlash is rejected, to
// record how the part answers neighboring command space.
var alternativeProbeOpcodes = []byte{CmdReadFlash, 0xC0, 0xC1, 0xD0, CmdAPROMVersion, 0xB1}

// InspectAlternativeReads probes the opcodes above without address or
// length fields and logs each response head. Diagnostic only: the output
// feeds offline analysis of locked parts, nothing is parsed or retried.
func InspectAlternativeReads(dev Sender, method usbhid.TransportMethod, log logrus.FieldLogger) {
	for _, op := range alternativeProbeOpcodes {
		entry := log.WithField("opcode", fmt.Sprintf("%#02x", op))
		resp, err := dev.Send(NewPacket(ReportIDBootloader, op), method)
		if err != nil {
			entry.WithError(err).Debug("probe failed")
			continue
		}
		switch ClassifyResponse(resp) {
		case RespTimeout:
			entry.Debug("no response")
		case RespError:
			entry.Info("rejected")
		default:
			entry.WithField("head", fmt.Sprintf("% X", head(resp, 16))).Info("responded")
		}
	}
}

func head(b []byte, n int) []byte {
	if len(b) <= n {
		return b
	}
	return b[:n]
}
