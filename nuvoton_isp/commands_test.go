package nuvoton_isp_test

import (
	"encoding/binary"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Diobyte/MSIInovMysticLightDumper/nuvoton_isp"
)

func TestSimpleCommandConstruction(t *testing.T) {
	cases := []struct {
		name     string
		packet   []byte
		reportID byte
		opcode   byte
	}{
		{"read config", nuvoton_isp.CreateReadConfigCmd(), 0x00, 0xA2},
		{"erase all", nuvoton_isp.CreateEraseAllCmd(), 0x00, 0xA3},
		{"get version", nuvoton_isp.CreateGetVersionCmd(), 0x00, 0xA6},
		{"get device id", nuvoton_isp.CreateGetDeviceIDCmd(), 0x00, 0xA7},
		{"go aprom", nuvoton_isp.CreateGoAPROMCmd(), 0x00, 0xAB},
		{"reset mcu", nuvoton_isp.CreateResetMCUCmd(), 0x00, 0xAD},
		{"connect", nuvoton_isp.CreateConnectCmd(), 0x00, 0xAE},
		{"aprom version", nuvoton_isp.CreateAPROMVersionCmd(), 0x01, 0xB0},
		{"aprom checksum", nuvoton_isp.CreateAPROMChecksumCmd(), 0x01, 0xB4},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			require.Len(t, tc.packet, nuvoton_isp.PacketSize)
			assert.Equal(t, tc.reportID, tc.packet[0])
			assert.Equal(t, tc.opcode, tc.packet[1])
			for i := 2; i < len(tc.packet); i++ {
				if tc.packet[i] != 0 {
					t.Fatalf("byte %d is %#02x, want zero padding", i, tc.packet[i])
				}
			}
		})
	}
}

func TestCreateSyncPacknoCmd(t *testing.T) {
	p := nuvoton_isp.CreateSyncPacknoCmd(1)
	require.Len(t, p, nuvoton_isp.PacketSize)
	assert.Equal(t, byte(nuvoton_isp.CmdSyncPackno), p[1])
	assert.Equal(t, uint32(1), binary.LittleEndian.Uint32(p[7:11]))
}

func TestCreateReadFlashCmd(t *testing.T) {
	p, err := nuvoton_isp.CreateReadFlashCmd(nuvoton_isp.CmdReadFlash, 0x1F80, 56, 7)
	require.NoError(t, err)
	require.Len(t, p, nuvoton_isp.PacketSize)
	assert.Equal(t, byte(nuvoton_isp.CmdReadFlash), p[1])
	assert.Equal(t, uint32(0x1F80), binary.LittleEndian.Uint32(p[5:9]))
	assert.Equal(t, uint32(56), binary.LittleEndian.Uint32(p[9:13]))
	assert.Equal(t, uint32(7), binary.LittleEndian.Uint32(p[13:17]))
}

func TestCreateReadFlashCmdRejectsBadLengths(t *testing.T) {
	_, err := nuvoton_isp.CreateReadFlashCmd(nuvoton_isp.CmdReadFlash, 0, 0, 1)
	assert.Error(t, err)
	_, err = nuvoton_isp.CreateReadFlashCmd(nuvoton_isp.CmdReadFlash, 0, nuvoton_isp.ReadChunkMax+1, 1)
	assert.Error(t, err)
}

func TestCreateUpdateAPROMCmd(t *testing.T) {
	data := []byte{0xDE, 0xAD, 0xBE}
	p, err := nuvoton_isp.CreateUpdateAPROMCmd(nuvoton_isp.CmdUpdateAPROM, 0x400, 9, data)
	require.NoError(t, err)
	require.Len(t, p, nuvoton_isp.PacketSize)
	assert.Equal(t, byte(nuvoton_isp.CmdUpdateAPROM), p[1])
	assert.Equal(t, uint32(0x400), binary.LittleEndian.Uint32(p[5:9]))
	// the length field always states the full chunk width
	assert.Equal(t, uint32(nuvoton_isp.WriteChunkMax), binary.LittleEndian.Uint32(p[9:13]))
	assert.Equal(t, uint32(9), binary.LittleEndian.Uint32(p[13:17]))
	assert.Equal(t, data, p[18:21])
	for i := 21; i < len(p); i++ {
		if p[i] != 0xFF {
			t.Fatalf("byte %d is %#02x, want 0xFF fill", i, p[i])
		}
	}
}

func TestCreateUpdateAPROMCmdRejectsBadSizes(t *testing.T) {
	_, err := nuvoton_isp.CreateUpdateAPROMCmd(nuvoton_isp.CmdUpdateAPROM, 0, 2, nil)
	assert.Error(t, err)
	_, err = nuvoton_isp.CreateUpdateAPROMCmd(nuvoton_isp.CmdUpdateAPROM, 0, 2, make([]byte, nuvoton_isp.WriteChunkMax+1))
	assert.Error(t, err)
}

func TestCreateGotoLDROMCmdShapes(t *testing.T) {
	full := nuvoton_isp.CreateGotoLDROMCmd(nuvoton_isp.ReportIDApplication, false)
	require.Len(t, full, nuvoton_isp.PacketSize)
	assert.Equal(t, byte(0x01), full[0])
	assert.Equal(t, byte(nuvoton_isp.CmdGotoLDROM), full[1])

	short := nuvoton_isp.CreateGotoLDROMCmd(nuvoton_isp.ReportIDApplication, true)
	assert.Equal(t, []byte{0x01, nuvoton_isp.CmdGotoLDROM}, short)

	shortZero := nuvoton_isp.CreateGotoLDROMCmd(nuvoton_isp.ReportIDBootloader, true)
	assert.Equal(t, []byte{0x00, nuvoton_isp.CmdGotoLDROM}, shortZero)
}
