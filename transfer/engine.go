// Package transfer implements the bulk flash operations against a
// bootloader-mode session: chunked dump, chunked write, dual-pass
// verification, and the guarded flash workflows.
package transfer

import (
	"context"
	"fmt"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/Diobyte/MSIInovMysticLightDumper/nuvoton_isp"
	"github.com/Diobyte/MSIInovMysticLightDumper/usbhid"
)

// Device is the session surface the engine drives.
type Device interface {
	Send(packet []byte, method usbhid.TransportMethod) ([]byte, error)
	SendNoReply(packet []byte, method usbhid.TransportMethod) error
}

// Config tunes the engine. Start from DefaultConfig; the zero value is not
// usable.
type Config struct {
	// Method is the HID channel ISP commands travel on. The bootloader
	// serves the interrupt endpoints natively.
	Method usbhid.TransportMethod
	// MaxConsecutiveErrors aborts a read after this many back-to-back
	// failed chunks.
	MaxConsecutiveErrors int
	// MaxRejections aborts a read once this many error-sentinel responses
	// accumulate over the whole job: persistent rejection is protection,
	// not noise.
	MaxRejections int
	// WriteRetries bounds attempts per write chunk.
	WriteRetries int
	// RetryBackoff separates write retries.
	RetryBackoff time.Duration
	// EraseWait covers the silent mass-erase window.
	EraseWait time.Duration
	// FlashBase and FlashSize describe the APROM extent backed up before
	// flashing.
	FlashBase uint32
	FlashSize uint32
	// ProgressInterval and ProgressBytes rate-limit progress callbacks.
	ProgressInterval time.Duration
	ProgressBytes    int
}

// DefaultConfig matches the controller family: a 128 KiB APROM at 0.
func DefaultConfig() Config {
	return Config{
		Method:               usbhid.InterruptWrite,
		MaxConsecutiveErrors: 10,
		MaxRejections:        10,
		WriteRetries:         10,
		RetryBackoff:         100 * time.Millisecond,
		EraseWait:            3 * time.Second,
		FlashBase:            0x0,
		FlashSize:            0x20000,
		ProgressInterval:     2 * time.Second,
		ProgressBytes:        4096,
	}
}

// Progress receives rate-limited transfer progress. Callbacks run between
// chunk exchanges and must return quickly to keep protocol timing intact.
type Progress func(done, total int)

// Engine runs bulk jobs over one device session.
type Engine struct {
	dev      Device
	cfg      Config
	log      logrus.FieldLogger
	progress Progress

	lastReport time.Time
	lastBytes  int
}

// New returns an Engine over dev.
func New(dev Device, cfg Config, log logrus.FieldLogger) *Engine {
	return &Engine{dev: dev, cfg: cfg, log: log}
}

// OnProgress installs a progress callback for subsequent jobs.
func (e *Engine) OnProgress(fn Progress) {
	e.progress = fn
}

// syncPackno resets the bootloader's sequence counter to 1. A lost ack is
// tolerated; the counter still resets on every revision seen so far.
func (e *Engine) syncPackno() error {
	resp, err := e.dev.Send(nuvoton_isp.CreateSyncPacknoCmd(1), e.cfg.Method)
	if err != nil {
		return fmt.Errorf("sync packet number: %w", err)
	}
	if nuvoton_isp.ClassifyResponse(resp) != nuvoton_isp.RespData {
		e.log.Warn("packet number sync not acknowledged")
	}
	return nil
}

// DumpRange reads size bytes starting at start using the given read opcode,
// normally CmdReadFlash. On abort the prefix collected so far is returned
// together with the error; partial work is never discarded.
func (e *Engine) DumpRange(ctx context.Context, start, size uint32, opcode byte) ([]byte, error) {
	if size == 0 {
		return nil, nil
	}
	if err := e.syncPackno(); err != nil {
		return nil, err
	}
	e.resetProgress()

	log := e.log.WithFields(logrus.Fields{"start": hexAddr(start), "size": size})
	log.Info("reading flash")

	out := make([]byte, 0, size)
	packno := uint32(2) // 1 was consumed by the sync
	addr := start
	consecutive := 0
	rejections := 0
	var layout nuvoton_isp.ResponseLayout
	haveLayout := false

	for uint32(len(out)) < size {
		if err := ctx.Err(); err != nil {
			return out, fmt.Errorf("read cancelled at %s: %w", hexAddr(addr), err)
		}
		req := uint32(nuvoton_isp.ReadChunkMax)
		if haveLayout && uint32(layout.ChunkSize) < req {
			req = uint32(layout.ChunkSize)
		}
		if want := size - uint32(len(out)); want < req {
			req = want
		}
		cmd, err := nuvoton_isp.CreateReadFlashCmd(opcode, addr, req, packno)
		if err != nil {
			return out, err
		}
		resp, err := e.dev.Send(cmd, e.cfg.Method)
		if err != nil {
			return out, err
		}
		switch nuvoton_isp.ClassifyResponse(resp) {
		case nuvoton_isp.RespError:
			rejections++
			consecutive++
			if !haveLayout {
				// rejected before a single byte came back: locked part
				log.WithField("addr", hexAddr(addr)).Error("probe read rejected")
				nuvoton_isp.InspectAlternativeReads(e.dev, e.cfg.Method, e.log)
				return nil, &ReadProtectedError{Addr: addr, Rejections: rejections}
			}
			log.WithField("addr", hexAddr(addr)).Debug("chunk rejected")
			if rejections > e.cfg.MaxRejections {
				log.Error("persistent rejection, treating flash as read-protected")
				return out, &ReadProtectedError{Addr: addr, Rejections: rejections}
			}
		case nuvoton_isp.RespTimeout:
			consecutive++
			log.WithField("addr", hexAddr(addr)).Debug("chunk timed out")
		case nuvoton_isp.RespData:
			if !haveLayout {
				layout = nuvoton_isp.DetectResponseLayout(resp)
				haveLayout = true
				log.WithFields(logrus.Fields{
					"offset": layout.DataOffset,
					"chunk":  layout.ChunkSize,
				}).Debug("response layout fixed")
			}
			avail := len(resp) - layout.DataOffset
			if avail <= 0 {
				consecutive++
				log.WithField("addr", hexAddr(addr)).Debug("response shorter than its data offset")
				break
			}
			take := int(req)
			if avail < take {
				take = avail
			}
			out = append(out, resp[layout.DataOffset:layout.DataOffset+take]...)
			addr += uint32(take)
			packno++
			consecutive = 0
			e.reportProgress(len(out), int(size), false)
		}
		if consecutive >= e.cfg.MaxConsecutiveErrors {
			return out, &ReadAbortedError{Addr: addr, Errors: consecutive}
		}
	}
	e.reportProgress(len(out), int(size), true)
	log.WithField("bytes", len(out)).Info("read complete")
	return out, nil
}

func (e *Engine) resetProgress() {
	e.lastReport = time.Time{}
	e.lastBytes = 0
}

// reportProgress forwards done/total to the callback, rate-limited so
// rendering cannot perturb protocol timing.
func (e *Engine) reportProgress(done, total int, force bool) {
	if e.progress == nil {
		return
	}
	if !force && !e.lastReport.IsZero() &&
		time.Since(e.lastReport) < e.cfg.ProgressInterval &&
		done-e.lastBytes < e.cfg.ProgressBytes {
		return
	}
	e.lastReport = time.Now()
	e.lastBytes = done
	e.progress(done, total)
}

func hexAddr(a uint32) string {
	return fmt.Sprintf("%#06x", a)
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
