package session

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/Diobyte/MSIInovMysticLightDumper/nuvoton_isp"
	"github.com/Diobyte/MSIInovMysticLightDumper/usbhid"
)

// EntryEncoding is one way of phrasing the switch-to-bootloader command.
// Firmware revisions disagree on the report id, the channel, and whether
// the report must be fully padded, so entry walks a fixed ordered set.
type EntryEncoding struct {
	ReportID byte
	Method   usbhid.TransportMethod
	Short    bool
}

func (e EntryEncoding) String() string {
	shape := "full"
	if e.Short {
		shape = "short"
	}
	return fmt.Sprintf("id=%#02x %s %s", e.ReportID, e.Method, shape)
}

// DefaultEntryEncodings is the attempt order: the encodings seen on shipped
// firmware first, the short fallbacks last.
func DefaultEntryEncodings() []EntryEncoding {
	return []EntryEncoding{
		{ReportID: nuvoton_isp.ReportIDApplication, Method: usbhid.FeatureReport, Short: false},
		{ReportID: nuvoton_isp.ReportIDApplication, Method: usbhid.InterruptWrite, Short: false},
		{ReportID: nuvoton_isp.ReportIDBootloader, Method: usbhid.FeatureReport, Short: false},
		{ReportID: nuvoton_isp.ReportIDBootloader, Method: usbhid.InterruptWrite, Short: false},
		{ReportID: nuvoton_isp.ReportIDApplication, Method: usbhid.FeatureReport, Short: true},
		{ReportID: nuvoton_isp.ReportIDApplication, Method: usbhid.InterruptWrite, Short: true},
	}
}

// ModeTransitionError means the transition was driven to the end and the
// expected identity never enumerated.
type ModeTransitionError struct {
	Target   Mode
	Attempts int
	Err      error
}

func (e *ModeTransitionError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("mode transition to %s failed after %d attempts: %v", e.Target, e.Attempts, e.Err)
	}
	return fmt.Sprintf("mode transition to %s failed after %d attempts", e.Target, e.Attempts)
}

func (e *ModeTransitionError) Unwrap() error { return e.Err }

// errWaitTimeout distinguishes poll expiry from context cancellation.
var errWaitTimeout = errors.New("device did not enumerate in time")

// EnterBootloader switches the controller from application into bootloader
// mode. Already in bootloader mode it is a no-op. The switch command gets
// no reply; the bootloader identity enumerating is the only proof of
// success. After exhausting every encoding the application device is
// reopened so the caller is not left stranded.
func (s *Session) EnterBootloader(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	switch s.mode {
	case ModeBootloader:
		return nil
	case ModeApplication:
	default:
		return fmt.Errorf("cannot enter bootloader from %s", s.mode)
	}

	appID := s.id
	s.mode = ModeEnteringBootloader
	for i, enc := range s.cfg.EntryEncodings {
		log := s.log.WithFields(logrus.Fields{
			"attempt":  i + 1,
			"encoding": enc.String(),
		})
		if s.conn == nil {
			if err := s.reopenLocked(ctx, appID, ModeEnteringBootloader); err != nil {
				s.mode = ModeDisconnected
				return &ModeTransitionError{Target: ModeBootloader, Attempts: i, Err: err}
			}
		}
		pkt := nuvoton_isp.CreateGotoLDROMCmd(enc.ReportID, enc.Short)
		if err := s.writeLocked(pkt, enc.Method); err != nil {
			// a handle mid-re-enumeration faults here, which can mean the
			// previous attempt actually worked
			log.WithError(err).Debug("switch command write failed")
		}
		s.closeLocked()
		if !s.bus.Present(appID.VendorID, appID.ProductID) {
			log.Info("application identity left the bus")
		}
		id, err := s.waitForLocked(ctx, usbhid.BootloaderVendorID, usbhid.BootloaderProductID)
		if err != nil {
			if ctx.Err() != nil {
				s.mode = ModeDisconnected
				return fmt.Errorf("bootloader entry cancelled: %w", ctx.Err())
			}
			log.Debug("bootloader identity did not appear")
			continue
		}
		if err := s.openLocked(id, ModeBootloader); err != nil {
			return &ModeTransitionError{Target: ModeBootloader, Attempts: i + 1, Err: err}
		}
		if resp, err := s.sendLocked(nuvoton_isp.CreateConnectCmd(), usbhid.InterruptWrite); err == nil && resp != nil {
			log.Debug("bootloader acknowledged connect")
		}
		log.Info("entered bootloader mode")
		return nil
	}

	attempts := len(s.cfg.EntryEncodings)
	if err := s.reopenLocked(ctx, appID, ModeApplication); err != nil {
		s.mode = ModeDisconnected
		s.log.WithError(err).Warn("could not reopen the application device")
	}
	return &ModeTransitionError{Target: ModeBootloader, Attempts: attempts}
}

// ExitBootloader returns the controller to application mode over the
// bootloader's native interrupt channel. Already in application mode it is
// a no-op.
func (s *Session) ExitBootloader(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	switch s.mode {
	case ModeApplication:
		return nil
	case ModeBootloader:
	default:
		return fmt.Errorf("cannot exit bootloader from %s", s.mode)
	}

	s.mode = ModeLeavingBootloader
	if err := s.writeLocked(nuvoton_isp.CreateGoAPROMCmd(), usbhid.InterruptWrite); err != nil {
		s.log.WithError(err).Debug("return-to-application write failed")
	}
	s.closeLocked()

	id, kd, err := s.waitForAnyApplicationLocked(ctx)
	if err != nil {
		s.mode = ModeDisconnected
		if ctx.Err() != nil {
			return fmt.Errorf("bootloader exit cancelled: %w", ctx.Err())
		}
		return &ModeTransitionError{Target: ModeApplication, Attempts: 1, Err: err}
	}
	if err := s.openLocked(id, ModeApplication); err != nil {
		return &ModeTransitionError{Target: ModeApplication, Attempts: 1, Err: err}
	}
	s.log.WithField("device", kd.Name).Info("returned to application mode")
	return nil
}

// reopenLocked reopens a device matching ref's identity pair, waiting for
// it to enumerate if necessary.
func (s *Session) reopenLocked(ctx context.Context, ref usbhid.DeviceIdentity, mode Mode) error {
	ids := s.bus.Enumerate(ref.VendorID, ref.ProductID)
	if len(ids) == 0 {
		id, err := s.waitForLocked(ctx, ref.VendorID, ref.ProductID)
		if err != nil {
			return err
		}
		ids = []usbhid.DeviceIdentity{id}
	}
	return s.openLocked(ids[0], mode)
}

// waitForLocked polls enumeration until the pair appears, the configured
// timeout passes, or ctx is cancelled. This is the one wait primitive for
// USB re-enumeration after a mode switch.
func (s *Session) waitForLocked(ctx context.Context, vid, pid uint16) (usbhid.DeviceIdentity, error) {
	deadline := time.Now().Add(s.cfg.TransitionTimeout)
	ticker := time.NewTicker(s.cfg.PollInterval)
	defer ticker.Stop()
	for {
		if ids := s.bus.Enumerate(vid, pid); len(ids) > 0 {
			return ids[0], nil
		}
		if time.Now().After(deadline) {
			return usbhid.DeviceIdentity{}, errWaitTimeout
		}
		select {
		case <-ctx.Done():
			return usbhid.DeviceIdentity{}, ctx.Err()
		case <-ticker.C:
		}
	}
}

// waitForAnyApplicationLocked polls for any known application identity;
// the family shares one bootloader, so any of them may come back.
func (s *Session) waitForAnyApplicationLocked(ctx context.Context) (usbhid.DeviceIdentity, usbhid.KnownDevice, error) {
	deadline := time.Now().Add(s.cfg.TransitionTimeout)
	ticker := time.NewTicker(s.cfg.PollInterval)
	defer ticker.Stop()
	for {
		for _, kd := range usbhid.ApplicationDevices {
			if ids := s.bus.Enumerate(kd.VendorID, kd.ProductID); len(ids) > 0 {
				return ids[0], kd, nil
			}
		}
		if time.Now().After(deadline) {
			return usbhid.DeviceIdentity{}, usbhid.KnownDevice{}, errWaitTimeout
		}
		select {
		case <-ctx.Done():
			return usbhid.DeviceIdentity{}, usbhid.KnownDevice{}, ctx.Err()
		case <-ticker.C:
		}
	}
}
