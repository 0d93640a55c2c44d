// Command talosctl reads and edits the configuration of a Talos macro keyboard
// over its USB serial port.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"time"

	"github.com/talos-macropad/go-talos/configurator"
	"github.com/talos-macropad/go-talos/serial"
	"github.com/talos-macropad/go-talos/simulator"
)

var (
	device   = flag.String("device", "", "Serial device path (default: detect by USB ID)")
	baud     = flag.Int("baud", 115200, "Baud rate")
	timeout  = flag.Duration("timeout", 5*time.Second, "Acknowledgement timeout")
	simulate = flag.Bool("simulate", false, "Talk to an in-process simulated keyboard")
	verbose  = flag.Bool("v", false, "Enable debug logging")
)

type command struct {
	usage string
	run   func(ctx context.Context, cfg *configurator.Configurator, args []string) error

	// offline commands do not open the device
	offline bool
}

var commands = map[string]command{
	"ports":         {usage: "List detected serial ports", run: runPorts, offline: true},
	"dump":          {usage: "Print the device configuration", run: runDump},
	"export":        {usage: "export FILE: write the device configuration to a YAML or JSON file", run: runExport},
	"import":        {usage: "import FILE: write a backup file to the device and save it", run: runImport},
	"set-layer":     {usage: "set-layer -layer N -name NAME [-symbol S] [-save]", run: runSetLayer},
	"set-macro":     {usage: "set-macro -layer N -button B -type T [...] [-save]", run: runSetMacro},
	"set-timeout":   {usage: "set-timeout SECONDS [-save]", run: runSetTimeout},
	"upload-script": {usage: "upload-script -layer N -button B -file F [-platform P] [-shortcut KEYS] [-save]", run: runUploadScript},
	"save":          {usage: "Save the configuration to flash and reload it", run: runSave},
	"bootsel":       {usage: "Reboot into the USB bootloader for a firmware update", run: runBootsel},
}

func main() {
	flag.Usage = usage
	flag.Parse()

	if flag.NArg() == 0 {
		usage()
		os.Exit(2)
	}
	name := flag.Arg(0)
	cmd, ok := commands[name]
	if !ok {
		fmt.Fprintf(os.Stderr, "Error: unknown command %q\n\n", name)
		usage()
		os.Exit(2)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	logger := newLogger(os.Stderr, *verbose)
	if err := run(ctx, cmd, logger, flag.Args()[1:]); err != nil {
		logger.Error(name+" failed", "error", err)
		os.Exit(exitCode(err))
	}
}

func run(ctx context.Context, cmd command, logger zeroLogger, args []string) error {
	sc := serial.DefaultConfig()
	sc.Device = *device
	sc.BaudRate = *baud

	opts := []configurator.Option{
		configurator.WithLogger(logger),
		configurator.WithSerialConfig(sc),
		configurator.WithAckTimeout(*timeout),
	}
	if *simulate {
		dev := simulator.New(nil, simulator.WithLogger(logger))
		opts = append(opts,
			configurator.WithSettleDelay(0),
			configurator.WithDialer(func(context.Context) (configurator.Conn, error) {
				return serial.NewTransport(simulator.NewPipe(dev), logger), nil
			}),
		)
	}
	cfg := configurator.New(opts...)

	if cmd.offline {
		return cmd.run(ctx, cfg, args)
	}

	if err := cfg.Connect(ctx); err != nil {
		return err
	}
	defer cfg.Disconnect()

	return cmd.run(ctx, cfg, args)
}

// exitCode distinguishes a missing device from other failures.
func exitCode(err error) int {
	switch {
	case serial.IsConnectionError(err, serial.DeviceNotFound):
		return 3
	case serial.IsConnectionError(err, serial.PermissionDenied):
		return 4
	case errors.Is(err, context.Canceled):
		return 130
	default:
		return 1
	}
}

func usage() {
	fmt.Fprintf(os.Stderr, "Usage: talosctl [flags] COMMAND [args]\n\nCommands:\n")
	for _, name := range sortedCommands() {
		fmt.Fprintf(os.Stderr, "  %-14s %s\n", name, commands[name].usage)
	}
	fmt.Fprintf(os.Stderr, "\nFlags:\n")
	flag.PrintDefaults()
}
