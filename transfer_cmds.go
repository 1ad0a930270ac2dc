package main

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/Diobyte/MSIInovMysticLightDumper/firmware"
	"github.com/Diobyte/MSIInovMysticLightDumper/nuvoton_isp"
	"github.com/Diobyte/MSIInovMysticLightDumper/transfer"
)

type dumpCmd struct {
	Out      string `arg:"" type:"path" help:"Output file; .hex and .json siblings are written next to it."`
	Addr     uint32 `default:"0" help:"Flash address to start reading from."`
	Size     uint32 `default:"131072" help:"Number of bytes to read."`
	NoVerify bool   `help:"Single read pass instead of two compared passes."`
	NoHex    bool   `help:"Skip the Intel HEX sibling file."`
	Stay     bool   `help:"Leave the controller in bootloader mode afterwards."`
	Yes      bool   `help:"Skip the bootloader-entry confirmation."`
}

func (c *dumpCmd) Run(app *appEnv) error {
	ctx, stop := signalContext()
	defer stop()

	sess, err := openSession(app)
	if err != nil {
		return err
	}
	defer sess.Close()
	if err := ensureBootloader(ctx, app, sess, c.Yes); err != nil {
		return err
	}

	eng := newEngine(app, sess)
	attachProgress(eng, "dumping", int(c.Size))

	start := time.Now()
	var data []byte
	var dumpErr error
	if c.NoVerify {
		data, dumpErr = eng.DumpRange(ctx, c.Addr, c.Size, nuvoton_isp.CmdReadFlash)
	} else {
		data, dumpErr = eng.VerifiedDump(ctx, c.Addr, c.Size, nuvoton_isp.CmdReadFlash)
	}
	elapsed := time.Since(start).Round(time.Millisecond)

	exitUnlessStay := func() {
		if c.Stay {
			return
		}
		if err := sess.ExitBootloader(ctx); err != nil {
			app.log.WithError(err).Warn("could not return to application mode")
		}
	}

	var ve *transfer.VerifyError
	if errors.As(dumpErr, &ve) {
		stem := strings.TrimSuffix(c.Out, ".bin")
		pass1, pass2 := stem+".pass1.bin", stem+".pass2.bin"
		if err := os.WriteFile(pass1, ve.First, 0o644); err != nil {
			return err
		}
		if err := os.WriteFile(pass2, ve.Second, 0o644); err != nil {
			return err
		}
		app.log.WithFields(logrus.Fields{
			"pass1": pass1,
			"pass2": pass2,
		}).Error("read passes disagree; both kept for comparison")
		exitUnlessStay()
		return dumpErr
	}
	if dumpErr != nil && len(data) == 0 {
		exitUnlessStay()
		return dumpErr
	}
	if dumpErr != nil {
		app.log.WithError(dumpErr).Warn("dump incomplete; writing partial image")
	}

	report := firmware.Analyze(data)
	files, err := writeDumpArtifacts(c.Out, c.Addr, data, report, dumpMeta{
		Device:    sess.Identity(),
		Start:     c.Addr,
		Requested: c.Size,
		Partial:   dumpErr != nil,
		Verified:  dumpErr == nil && !c.NoVerify,
		Elapsed:   elapsed,
		WriteHex:  !c.NoHex,
	})
	for _, f := range files {
		fmt.Println("wrote", f)
	}
	if err != nil {
		return err
	}
	printReport(report)

	exitUnlessStay()
	return dumpErr
}

type analyzeCmd struct {
	File string `arg:"" type:"existingfile" help:"Image to analyze (.bin or .hex)."`
}

func (c *analyzeCmd) Run(app *appEnv) error {
	data, base, err := loadImage(c.File)
	if err != nil {
		return err
	}
	if base != 0 {
		fmt.Printf("base address: %#x\n", base)
	}
	printReport(firmware.Analyze(data))
	return nil
}

type flashCmd struct {
	Image   string `arg:"" type:"existingfile" help:"Firmware image to write (.bin or .hex)."`
	Backup  string `type:"path" help:"Backup file path (default: backup-<timestamp>.bin)."`
	Confirm string `help:"Pass FLASH to skip the interactive confirmation."`
	Yes     bool   `help:"Skip the bootloader-entry confirmation."`
}

func (c *flashCmd) Run(app *appEnv) error {
	ctx, stop := signalContext()
	defer stop()

	data, base, err := loadImage(c.Image)
	if err != nil {
		return err
	}
	if base != 0 {
		return fmt.Errorf("image starts at %#x; application images must start at address 0", base)
	}
	if uint32(len(data)) > transfer.DefaultConfig().FlashSize {
		return fmt.Errorf("image is %d bytes, larger than the %d-byte application flash",
			len(data), transfer.DefaultConfig().FlashSize)
	}

	fmt.Println("This overwrites the controller's application firmware. A bad image leaves the LEDs dead until reflashed.")
	if err := confirmToken("FLASH", c.Confirm); err != nil {
		return err
	}

	sess, err := openSession(app)
	if err != nil {
		return err
	}
	defer sess.Close()
	if err := ensureBootloader(ctx, app, sess, c.Yes); err != nil {
		return err
	}

	eng := newEngine(app, sess)
	attachProgress(eng, "flashing", len(data))

	backupPath := c.Backup
	if backupPath == "" {
		backupPath = fmt.Sprintf("backup-%s.bin", time.Now().Format("20060102-150405"))
	}
	persist := func(b []byte) error {
		if err := os.WriteFile(backupPath, b, 0o644); err != nil {
			return err
		}
		app.log.WithField("file", backupPath).Info("backup saved")
		return nil
	}
	if err := eng.FlashWithBackup(ctx, data, persist); err != nil {
		return err
	}
	fmt.Println("flash complete and verified")

	if err := sess.ExitBootloader(ctx); err != nil {
		app.log.WithError(err).Warn("could not return to application mode")
	}
	return nil
}

type eraseCmd struct {
	Confirm string `help:"Pass ERASE to skip the interactive confirmation."`
	Yes     bool   `help:"Skip the bootloader-entry confirmation."`
}

func (c *eraseCmd) Run(app *appEnv) error {
	ctx, stop := signalContext()
	defer stop()

	fmt.Println("This erases all application firmware. The controller stays in bootloader mode until new firmware is flashed.")
	if err := confirmToken("ERASE", c.Confirm); err != nil {
		return err
	}

	sess, err := openSession(app)
	if err != nil {
		return err
	}
	defer sess.Close()
	if err := ensureBootloader(ctx, app, sess, c.Yes); err != nil {
		return err
	}

	eng := newEngine(app, sess)
	if err := eng.EraseAll(ctx); err != nil {
		return err
	}
	fmt.Println("erase issued; flash now reads as 0xFF")
	return nil
}
