package transfer

import (
	"context"
	"fmt"

	"github.com/sirupsen/logrus"

	"github.com/Diobyte/MSIInovMysticLightDumper/nuvoton_isp"
)

// WriteRange programs data into flash starting at start using the given
// write opcode, normally CmdUpdateAPROM. Chunks the device never
// acknowledges are retried with a short backoff; a rejection sentinel on
// this destructive path fails the job immediately.
func (e *Engine) WriteRange(ctx context.Context, start uint32, data []byte, opcode byte) error {
	if len(data) == 0 {
		return nil
	}
	if err := e.syncPackno(); err != nil {
		return err
	}
	e.resetProgress()

	log := e.log.WithFields(logrus.Fields{"start": hexAddr(start), "size": len(data)})
	log.Info("writing flash")

	packno := uint32(2)
	addr := start
	written := 0
	for written < len(data) {
		if err := ctx.Err(); err != nil {
			return fmt.Errorf("write cancelled at %s: %w", hexAddr(addr), err)
		}
		end := written + nuvoton_isp.WriteChunkMax
		if end > len(data) {
			end = len(data)
		}
		cmd, err := nuvoton_isp.CreateUpdateAPROMCmd(opcode, addr, packno, data[written:end])
		if err != nil {
			return err
		}
		if err := e.writeChunk(ctx, cmd, addr, packno); err != nil {
			return err
		}
		written = end
		addr += uint32(nuvoton_isp.WriteChunkMax)
		packno++
		e.reportProgress(written, len(data), false)
	}
	e.reportProgress(written, len(data), true)
	log.Info("write complete")
	return nil
}

// writeChunk sends one chunk until the device acknowledges it or the retry
// budget runs out. Failed attempts re-issue the same packet number.
func (e *Engine) writeChunk(ctx context.Context, cmd []byte, addr, packno uint32) error {
	for attempt := 1; ; attempt++ {
		resp, err := e.dev.Send(cmd, e.cfg.Method)
		if err != nil {
			return &WriteError{Addr: addr, PacketNo: packno, Attempts: attempt, Err: err}
		}
		switch nuvoton_isp.ClassifyResponse(resp) {
		case nuvoton_isp.RespData:
			return nil
		case nuvoton_isp.RespError:
			return &WriteError{Addr: addr, PacketNo: packno, Attempts: attempt, Rejected: true}
		case nuvoton_isp.RespTimeout:
			if attempt >= e.cfg.WriteRetries {
				return &WriteError{Addr: addr, PacketNo: packno, Attempts: attempt}
			}
			e.log.WithFields(logrus.Fields{
				"addr":    hexAddr(addr),
				"attempt": attempt,
			}).Debug("write chunk unacknowledged, retrying")
			if err := sleepCtx(ctx, e.cfg.RetryBackoff); err != nil {
				return fmt.Errorf("write cancelled at %s: %w", hexAddr(addr), err)
			}
		}
	}
}

// EraseAll mass-erases the application flash. The device answers nothing
// while the erase runs, so the command is fire-and-forget followed by a
// fixed wait.
func (e *Engine) EraseAll(ctx context.Context) error {
	e.log.Warn("erasing all application flash")
	if err := e.dev.SendNoReply(nuvoton_isp.CreateEraseAllCmd(), e.cfg.Method); err != nil {
		return fmt.Errorf("erase: %w", err)
	}
	if err := sleepCtx(ctx, e.cfg.EraseWait); err != nil {
		return fmt.Errorf("erase wait: %w", err)
	}
	return nil
}

// FlashWithVerify writes data at the flash base and proves it by reading
// the same extent back. No retry, no rollback: a failed flash surfaces
// exactly as it happened.
func (e *Engine) FlashWithVerify(ctx context.Context, data []byte) error {
	if err := e.WriteRange(ctx, e.cfg.FlashBase, data, nuvoton_isp.CmdUpdateAPROM); err != nil {
		return err
	}
	readback, err := e.DumpRange(ctx, e.cfg.FlashBase, uint32(len(data)), nuvoton_isp.CmdReadFlash)
	if err != nil {
		return fmt.Errorf("read-back after flash: %w", err)
	}
	diffs, total := diffBuffers(data, readback)
	if total > 0 || len(readback) != len(data) {
		e.log.WithField("mismatches", total).Error("read-back does not match written image")
		return &VerifyError{Total: total, Diffs: diffs, First: data, Second: readback}
	}
	e.log.Info("flash verified against read-back")
	return nil
}

// FlashWithBackup dumps the device's full flash extent, refuses to proceed
// when that backup is degenerate, hands it to persist, then flashes with
// read-back verification.
func (e *Engine) FlashWithBackup(ctx context.Context, data []byte, persist func([]byte) error) error {
	e.log.Info("backing up current flash before writing")
	backup, err := e.DumpRange(ctx, e.cfg.FlashBase, e.cfg.FlashSize, nuvoton_isp.CmdReadFlash)
	if err != nil {
		return fmt.Errorf("backup read: %w", err)
	}
	if reason, bad := degenerateImage(backup); bad {
		return &BackupInvalidError{Reason: reason}
	}
	if persist != nil {
		if err := persist(backup); err != nil {
			return fmt.Errorf("backup not persisted: %w", err)
		}
	}
	return e.FlashWithVerify(ctx, data)
}

// degenerateImage reports a buffer useless as a recovery backup.
func degenerateImage(b []byte) (string, bool) {
	if len(b) == 0 {
		return "empty", true
	}
	allFF, all00 := true, true
	for _, v := range b {
		if v != 0xFF {
			allFF = false
		}
		if v != 0x00 {
			all00 = false
		}
		if !allFF && !all00 {
			return "", false
		}
	}
	if allFF {
		return "all 0xFF (erased or unreadable flash)", true
	}
	return "all 0x00 (blank or protected read-out)", true
}
