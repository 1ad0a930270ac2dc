package main

import (
	"fmt"

	"github.com/Diobyte/MSIInovMysticLightDumper/nuvoton_isp"
	"github.com/Diobyte/MSIInovMysticLightDumper/session"
	"github.com/Diobyte/MSIInovMysticLightDumper/usbhid"
)

type listCmd struct{}

func (c *listCmd) Run(app *appEnv) error {
	bus := usbhid.NewBus(usbhid.DefaultConfig(), app.log)
	found := 0
	for _, kd := range usbhid.ApplicationDevices {
		for _, id := range bus.Enumerate(kd.VendorID, kd.ProductID) {
			fmt.Printf("%04x:%04x  application  %-28s %s\n", id.VendorID, id.ProductID, kd.Name, id.Path)
			found++
		}
	}
	for _, id := range bus.Enumerate(usbhid.BootloaderVendorID, usbhid.BootloaderProductID) {
		fmt.Printf("%04x:%04x  bootloader   %-28s %s\n", id.VendorID, id.ProductID, "Nuvoton ISP", id.Path)
		found++
	}
	if found > 0 {
		return nil
	}
	// Nothing over hidraw. Check raw USB so a permission problem does not
	// masquerade as absent hardware.
	for _, kd := range usbhid.ApplicationDevices {
		if bus.Present(kd.VendorID, kd.ProductID) {
			fmt.Printf("%04x:%04x (%s) is on the USB bus but not visible over hidraw; check udev permissions\n",
				kd.VendorID, kd.ProductID, kd.Name)
			return nil
		}
	}
	if bus.Present(usbhid.BootloaderVendorID, usbhid.BootloaderProductID) {
		fmt.Printf("%04x:%04x (Nuvoton ISP) is on the USB bus but not visible over hidraw; check udev permissions\n",
			usbhid.BootloaderVendorID, usbhid.BootloaderProductID)
		return nil
	}
	fmt.Println("no supported controllers found")
	return nil
}

type infoCmd struct{}

func (c *infoCmd) Run(app *appEnv) error {
	sess, err := openSession(app)
	if err != nil {
		return err
	}
	defer sess.Close()

	id := sess.Identity()
	fmt.Printf("device:  %s\n", id)
	if id.Serial != "" {
		fmt.Printf("serial:  %s\n", id.Serial)
	}
	fmt.Printf("mode:    %s\n", sess.Mode())

	switch sess.Mode() {
	case session.ModeApplication:
		if v, err := nuvoton_isp.ReadAPROMVersion(sess); err == nil {
			fmt.Printf("firmware version: %s\n", v)
		} else {
			app.log.WithError(err).Debug("application version query")
		}
		if sum, err := nuvoton_isp.ReadAPROMChecksum(sess); err == nil {
			fmt.Printf("firmware checksum: %#08x\n", sum)
		} else {
			app.log.WithError(err).Debug("application checksum query")
		}
	case session.ModeBootloader:
		if v, err := nuvoton_isp.ReadVersion(sess, app.method); err == nil {
			fmt.Printf("bootloader version: %s\n", v)
		} else {
			app.log.WithError(err).Debug("bootloader version query")
		}
		if devID, err := nuvoton_isp.ReadDeviceID(sess, app.method); err == nil {
			fmt.Printf("device id: %#08x\n", devID)
		} else {
			app.log.WithError(err).Debug("device id query")
		}
		if cfg, err := nuvoton_isp.ReadConfiguration(sess, app.method); err == nil {
			fmt.Printf("config words: %#08x %#08x\n", cfg.Config0, cfg.Config1)
			if cfg.ReadLocked() {
				app.log.Warn("flash is read-locked; dumps will be rejected")
			}
		} else {
			app.log.WithError(err).Debug("config query")
		}
	}
	return nil
}

type probeCmd struct {
	Yes bool `help:"Skip the bootloader-entry confirmation."`
}

func (c *probeCmd) Run(app *appEnv) error {
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
	nuvoton_isp.InspectAlternativeReads(sess, app.method, app.log)
	return nil
}

type enterBootloaderCmd struct {
	Yes bool `help:"Skip the confirmation prompt."`
}

func (c *enterBootloaderCmd) Run(app *appEnv) error {
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
	fmt.Println("controller is in bootloader mode; run exit-bootloader to hand it back to the application")
	return nil
}

type exitBootloaderCmd struct{}

func (c *exitBootloaderCmd) Run(app *appEnv) error {
	ctx, stop := signalContext()
	defer stop()

	sess, err := openSession(app)
	if err != nil {
		return err
	}
	defer sess.Close()
	if sess.Mode() == session.ModeApplication {
		fmt.Println("controller is already running its application")
		return nil
	}
	if err := sess.ExitBootloader(ctx); err != nil {
		return err
	}
	fmt.Println("controller is back in application mode")
	return nil
}

type resetCmd struct {
	Yes bool `help:"Skip the bootloader-entry confirmation."`
}

func (c *resetCmd) Run(app *appEnv) error {
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
	if err := sess.Reset(); err != nil {
		return err
	}
	fmt.Println("reset issued; the controller will re-enumerate shortly")
	return nil
}
