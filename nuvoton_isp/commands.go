// Package nuvoton_isp implements the ISP command set spoken by the Mystic
// Light controller's Nuvoton bootloader: packet construction, response
// classification, the response-layout heuristics, and small query helpers.
// The codec itself performs no I/O.
package nuvoton_isp

import (
	"encoding/binary"
	"fmt"
)

// Bootloader (LDROM) opcodes.
const (
	CmdUpdateAPROM  = 0xA0 // write one chunk of the application image
	CmdUpdateConfig = 0xA1 // write the CONFIG words
	CmdReadConfig   = 0xA2 // read CONFIG0/CONFIG1
	CmdEraseAll     = 0xA3 // mass erase the application flash
	CmdSyncPackno   = 0xA4 // reset the packet sequence counter
	CmdReadFlash    = 0xA5 // read one chunk of flash; rejected on locked parts
	CmdGetVersion   = 0xA6 // bootloader firmware version
	CmdGetDeviceID  = 0xA7 // part identification word
	CmdGoAPROM      = 0xAB // leave the bootloader and run the application
	CmdResetMCU     = 0xAD // hard reset the controller
	CmdConnect      = 0xAE // handshake after entering the bootloader
)

// Application (APROM) opcodes, served on the feature-report channel with
// report id 0x01.
const (
	CmdGotoLDROM     = 0xA0 // switch the application into the bootloader
	CmdAPROMVersion  = 0xB0 // application firmware version
	CmdAPROMChecksum = 0xB4 // application image checksum
)

// Report geometry: every packet is one 64-byte HID report plus the leading
// report id byte.
const (
	ReportSize = 64
	PacketSize = ReportSize + 1
)

// Report ids.
const (
	ReportIDBootloader  = 0x00
	ReportIDApplication = 0x01
)

// Field offsets within a packet.
const (
	offOpcode  = 1
	offAddress = 5
	offSyncNo  = 7
	offLength  = 9
	offPackno  = 13
	offData    = 18
)

// Payload ceilings per chunk operation.
const (
	// ReadChunkMax is the most payload a read response can carry after
	// the deepest known header.
	ReadChunkMax = 56
	// WriteChunkMax is the image data carried per write packet.
	WriteChunkMax = PacketSize - offData
)

// NewPacket returns a zero-padded packet with the report id and opcode set.
func NewPacket(reportID, opcode byte) []byte {
	p := make([]byte, PacketSize)
	p[0] = reportID
	p[offOpcode] = opcode
	return p
}

// CreateSyncPacknoCmd resets the bootloader's packet sequence counter to n.
// Bulk jobs send it with n=1 before their first chunk.
func CreateSyncPacknoCmd(n uint32) []byte {
	p := NewPacket(ReportIDBootloader, CmdSyncPackno)
	binary.LittleEndian.PutUint32(p[offSyncNo:], n)
	return p
}

// CreateReadFlashCmd asks for n bytes of flash at addr. packno orders the
// request in the job's chunk sequence.
func CreateReadFlashCmd(opcode byte, addr, n, packno uint32) ([]byte, error) {
	if n == 0 || n > ReadChunkMax {
		return nil, fmt.Errorf("read length %d outside 1..%d", n, ReadChunkMax)
	}
	p := NewPacket(ReportIDBootloader, opcode)
	binary.LittleEndian.PutUint32(p[offAddress:], addr)
	binary.LittleEndian.PutUint32(p[offLength:], n)
	binary.LittleEndian.PutUint32(p[offPackno:], packno)
	return p, nil
}

// CreateUpdateAPROMCmd carries one chunk of image data to be programmed at
// addr. Data shorter than WriteChunkMax is padded with 0xFF, the
// erased-flash value, and the length field always states the full width.
func CreateUpdateAPROMCmd(opcode byte, addr, packno uint32, data []byte) ([]byte, error) {
	if len(data) == 0 || len(data) > WriteChunkMax {
		return nil, fmt.Errorf("write chunk size %d outside 1..%d", len(data), WriteChunkMax)
	}
	p := NewPacket(ReportIDBootloader, opcode)
	binary.LittleEndian.PutUint32(p[offAddress:], addr)
	binary.LittleEndian.PutUint32(p[offLength:], WriteChunkMax)
	binary.LittleEndian.PutUint32(p[offPackno:], packno)
	for i := offData; i < PacketSize; i++ {
		p[i] = 0xFF
	}
	copy(p[offData:], data)
	return p, nil
}

// CreateGotoLDROMCmd phrases the application-mode switch command. Firmware
// revisions disagree on the accepted shape, so both the fully padded packet
// and a minimal two-byte report exist.
func CreateGotoLDROMCmd(reportID byte, short bool) []byte {
	if short {
		return []byte{reportID, CmdGotoLDROM}
	}
	return NewPacket(reportID, CmdGotoLDROM)
}

// CreateReadConfigCmd requests the CONFIG word pair.
func CreateReadConfigCmd() []byte {
	return NewPacket(ReportIDBootloader, CmdReadConfig)
}

// CreateEraseAllCmd mass-erases the application flash.
func CreateEraseAllCmd() []byte {
	return NewPacket(ReportIDBootloader, CmdEraseAll)
}

// CreateGetVersionCmd requests the bootloader firmware version.
func CreateGetVersionCmd() []byte {
	return NewPacket(ReportIDBootloader, CmdGetVersion)
}

// CreateGetDeviceIDCmd requests the part identification word.
func CreateGetDeviceIDCmd() []byte {
	return NewPacket(ReportIDBootloader, CmdGetDeviceID)
}

// CreateGoAPROMCmd returns the controller to application mode.
func CreateGoAPROMCmd() []byte {
	return NewPacket(ReportIDBootloader, CmdGoAPROM)
}

// CreateResetMCUCmd hard-resets the controller.
func CreateResetMCUCmd() []byte {
	return NewPacket(ReportIDBootloader, CmdResetMCU)
}

// CreateConnectCmd is the post-entry handshake.
func CreateConnectCmd() []byte {
	return NewPacket(ReportIDBootloader, CmdConnect)
}

// CreateAPROMVersionCmd requests the application firmware version.
func CreateAPROMVersionCmd() []byte {
	return NewPacket(ReportIDApplication, CmdAPROMVersion)
}

// CreateAPROMChecksumCmd requests the application image checksum.
func CreateAPROMChecksumCmd() []byte {
	return NewPacket(ReportIDApplication, CmdAPROMChecksum)
}
