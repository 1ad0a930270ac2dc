package main

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/Diobyte/MSIInovMysticLightDumper/firmware"
	"github.com/Diobyte/MSIInovMysticLightDumper/usbhid"
)

// dumpMeta describes one capture for the JSON sidecar.
type dumpMeta struct {
	Device    usbhid.DeviceIdentity
	Start     uint32
	Requested uint32
	Partial   bool
	Verified  bool
	Elapsed   time.Duration
	WriteHex  bool
}

type sidecarDevice struct {
	VendorID  uint16 `json:"vendor_id"`
	ProductID uint16 `json:"product_id"`
	Product   string `json:"product,omitempty"`
	Serial    string `json:"serial,omitempty"`
}

type dumpSidecar struct {
	Tool           string           `json:"tool"`
	CapturedAt     time.Time        `json:"captured_at"`
	ElapsedSeconds float64          `json:"elapsed_seconds"`
	Device         sidecarDevice    `json:"device"`
	StartAddress   uint32           `json:"start_address"`
	RequestedBytes uint32           `json:"requested_bytes"`
	Partial        bool             `json:"partial"`
	Verified       bool             `json:"verified"`
	Image          *firmware.Report `json:"image"`
}

// writeDumpArtifacts writes the raw image plus its Intel HEX and JSON
// sidecars next to out, returning the paths written so far even on error.
func writeDumpArtifacts(out string, base uint32, data []byte, report *firmware.Report, meta dumpMeta) ([]string, error) {
	stem := strings.TrimSuffix(out, ".bin")
	var files []string

	bin := stem + ".bin"
	if err := os.WriteFile(bin, data, 0o644); err != nil {
		return files, err
	}
	files = append(files, bin)

	if meta.WriteHex && len(data) > 0 {
		hexPath := stem + ".hex"
		f, err := os.Create(hexPath)
		if err != nil {
			return files, err
		}
		err = firmware.WriteIntelHex(f, base, data)
		if cerr := f.Close(); err == nil {
			err = cerr
		}
		if err != nil {
			return files, err
		}
		files = append(files, hexPath)
	}

	side := dumpSidecar{
		Tool:           "mysticdump",
		CapturedAt:     time.Now().UTC(),
		ElapsedSeconds: meta.Elapsed.Seconds(),
		Device: sidecarDevice{
			VendorID:  meta.Device.VendorID,
			ProductID: meta.Device.ProductID,
			Product:   meta.Device.Product,
			Serial:    meta.Device.Serial,
		},
		StartAddress:   meta.Start,
		RequestedBytes: meta.Requested,
		Partial:        meta.Partial,
		Verified:       meta.Verified,
		Image:          report,
	}
	blob, err := json.MarshalIndent(side, "", "  ")
	if err != nil {
		return files, err
	}
	jsonPath := stem + ".json"
	if err := os.WriteFile(jsonPath, blob, 0o644); err != nil {
		return files, err
	}
	files = append(files, jsonPath)
	return files, nil
}

// loadImage reads .bin or .hex firmware images. Raw binaries are assumed
// to start at address 0; HEX files carry their own base.
func loadImage(path string) ([]byte, uint32, error) {
	if strings.EqualFold(filepath.Ext(path), ".hex") {
		f, err := os.Open(path)
		if err != nil {
			return nil, 0, err
		}
		defer f.Close()
		base, data, err := firmware.ReadIntelHex(f)
		if err != nil {
			return nil, 0, fmt.Errorf("%s: %w", path, err)
		}
		return data, base, nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, 0, err
	}
	return data, 0, nil
}

func validity(ok bool) string {
	if ok {
		return "plausible"
	}
	return "implausible"
}

func printReport(r *firmware.Report) {
	fmt.Printf("size:    %d bytes\n", r.Size)
	fmt.Printf("md5:     %s\n", r.MD5)
	fmt.Printf("sha256:  %s\n", r.SHA256)
	fmt.Printf("entropy: %.3f bits/byte (%s)\n", r.Entropy, r.Assessment)
	fmt.Printf("vectors: SP=%#08x (%s)  reset=%#08x (%s)\n",
		r.Vectors.StackPointer, validity(r.Vectors.StackValid),
		r.Vectors.ResetVector, validity(r.Vectors.ResetValid))
	if len(r.Notable) > 0 {
		fmt.Println("notable strings:")
		for _, hit := range r.Notable {
			fmt.Printf("  %#06x  %s\n", hit.Offset, hit.Text)
		}
	}
}
