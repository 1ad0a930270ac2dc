package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	"github.com/alecthomas/kong"
	kongyaml "github.com/alecthomas/kong-yaml"
	"github.com/schollz/progressbar/v3"
	"github.com/sirupsen/logrus"
	"gopkg.in/natefinch/lumberjack.v2"

	"github.com/Diobyte/MSIInovMysticLightDumper/session"
	"github.com/Diobyte/MSIInovMysticLightDumper/transfer"
	"github.com/Diobyte/MSIInovMysticLightDumper/usbhid"
)

var cli struct {
	Verbose   bool            `short:"v" help:"Enable debug logging."`
	LogFile   string          `type:"path" help:"Also append logs to this file (rotated)."`
	Transport string          `enum:"interrupt,feature" default:"interrupt" help:"Bootloader transport channel."`
	Config    kong.ConfigFlag `help:"Load defaults from a YAML config file."`

	List            listCmd            `cmd:"" help:"List supported controllers on the bus."`
	Info            infoCmd            `cmd:"" help:"Show identity and firmware details of the connected controller."`
	Dump            dumpCmd            `cmd:"" help:"Dump application flash to disk."`
	Analyze         analyzeCmd         `cmd:"" help:"Analyze a previously dumped image file."`
	Flash           flashCmd           `cmd:"" help:"Write a firmware image to application flash."`
	Erase           eraseCmd           `cmd:"" help:"Erase all application flash."`
	Probe           probeCmd           `cmd:"" help:"Probe undocumented bootloader read opcodes."`
	EnterBootloader enterBootloaderCmd `cmd:"" name:"enter-bootloader" help:"Switch the controller into bootloader mode and stay there."`
	ExitBootloader  exitBootloaderCmd  `cmd:"" name:"exit-bootloader" help:"Return a controller stuck in bootloader mode to its application."`
	Reset           resetCmd           `cmd:"" help:"Reset the MCU over the bootloader channel."`
}

// appEnv carries the pieces every command needs.
type appEnv struct {
	log    *logrus.Logger
	method usbhid.TransportMethod
}

func main() {
	ctx := kong.Parse(&cli,
		kong.Name("mysticdump"),
		kong.Description("Firmware dump and recovery tool for MSI Mystic Light controllers (Nuvoton ISP)."),
		kong.UsageOnError(),
		kong.Configuration(kongyaml.Loader, "/etc/mysticdump.yaml", "~/.config/mysticdump.yaml"),
	)

	log := logrus.New()
	log.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})
	if cli.Verbose {
		log.SetLevel(logrus.DebugLevel)
	}
	if cli.LogFile != "" {
		log.SetOutput(io.MultiWriter(os.Stderr, &lumberjack.Logger{
			Filename:   cli.LogFile,
			MaxSize:    10, // megabytes
			MaxBackups: 3,
		}))
	}

	method := usbhid.InterruptWrite
	if cli.Transport == "feature" {
		method = usbhid.FeatureReport
	}

	if err := usbhid.Init(); err != nil {
		log.WithError(err).Fatal("hidapi init failed")
	}
	err := ctx.Run(&appEnv{log: log, method: method})
	_ = usbhid.Exit()
	ctx.FatalIfErrorf(err)
}

// signalContext returns a context cancelled by Ctrl-C or SIGTERM so a
// long transfer can stop between chunks instead of mid-packet.
func signalContext() (context.Context, context.CancelFunc) {
	return signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
}

func openSession(app *appEnv) (*session.Session, error) {
	bus := usbhid.NewBus(usbhid.DefaultConfig(), app.log)
	sess := session.New(bus, session.DefaultConfig(), app.log)
	if err := sess.Connect(); err != nil {
		return nil, err
	}
	return sess, nil
}

// ensureBootloader puts the session into bootloader mode, asking the user
// first unless the command was invoked with --yes.
func ensureBootloader(ctx context.Context, app *appEnv, sess *session.Session, yes bool) error {
	if sess.Mode() == session.ModeBootloader {
		return nil
	}
	if !yes {
		ok, err := confirmYN("Switch the controller into bootloader mode? The LEDs will stop responding until it returns.")
		if err != nil {
			return err
		}
		if !ok {
			return fmt.Errorf("cancelled")
		}
	}
	return sess.EnterBootloader(ctx)
}

func newEngine(app *appEnv, sess *session.Session) *transfer.Engine {
	cfg := transfer.DefaultConfig()
	cfg.Method = app.method
	return transfer.New(sess, cfg, app.log)
}

func attachProgress(eng *transfer.Engine, label string, total int) {
	bar := progressbar.NewOptions(total,
		progressbar.OptionSetDescription(label),
		progressbar.OptionSetWidth(40),
		progressbar.OptionShowBytes(true),
		progressbar.OptionSetWriter(os.Stderr),
		progressbar.OptionOnCompletion(func() { fmt.Fprintln(os.Stderr) }),
	)
	eng.OnProgress(func(done, total int) {
		// FlashWithBackup runs backup, write and read-back phases with
		// different totals under one bar.
		if bar.GetMax() != total {
			bar.ChangeMax(total)
		}
		_ = bar.Set(done)
	})
}
