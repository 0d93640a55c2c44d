package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"sort"
	"strconv"
	"strings"
	"text/tabwriter"

	"github.com/talos-macropad/go-talos/backup"
	"github.com/talos-macropad/go-talos/codec"
	"github.com/talos-macropad/go-talos/configurator"
	"github.com/talos-macropad/go-talos/protocol"
	"github.com/talos-macropad/go-talos/serial"
)

func sortedCommands() []string {
	names := make([]string, 0, len(commands))
	for name := range commands {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

func runPorts(ctx context.Context, _ *configurator.Configurator, _ []string) error {
	ports, err := serial.ListPorts()
	if err != nil {
		return err
	}
	if len(ports) == 0 {
		fmt.Println("No USB serial ports found")
		return nil
	}

	want := serial.DefaultConfig()
	w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "PORT\tVID:PID\tPRODUCT\tSERIAL\t")
	for _, p := range ports {
		mark := ""
		if strings.EqualFold(p.VendorID, want.VendorID) && strings.EqualFold(p.ProductID, want.ProductID) {
			mark = " *"
		}
		fmt.Fprintf(w, "%s%s\t%s:%s\t%s\t%s\t\n", p.Name, mark, p.VendorID, p.ProductID, p.Product, p.Serial)
	}
	return w.Flush()
}

func runDump(ctx context.Context, cfg *configurator.Configurator, _ []string) error {
	res, err := cfg.ReadConfig(ctx)
	if err != nil {
		return err
	}
	printConfig(res.Config)
	if !res.Complete {
		fmt.Printf("\nWarning: configuration incomplete (%d records read)\n", res.Records)
	}
	return nil
}

func printConfig(c *protocol.Configuration) {
	fmt.Printf("Firmware:     %s\n", c.Version)
	fmt.Printf("OLED timeout: %ds\n", c.OLEDTimeout)

	w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
	for l, layer := range c.Layers {
		fmt.Fprintf(w, "\nLayer %d: %s %s\n", l, layer.Symbol, layer.Name)
		for b, m := range layer.Macros {
			fmt.Fprintf(w, "  [%d]\t%s\t%s\t%s\t\n", b, m.Type, m.Name, describe(m))
		}
	}
	w.Flush()
}

func describe(m protocol.MacroEntry) string {
	switch m.Type {
	case protocol.MacroKeyPress:
		return codec.KeyName(uint8(m.Value))
	case protocol.MacroTextString:
		return strconv.Quote(m.MacroString)
	case protocol.MacroLayerToggle:
		return fmt.Sprintf("-> layer %d", m.Value)
	case protocol.MacroKeySequence:
		return codec.FormatSequence(m.Sequence)
	case protocol.MacroScript:
		s := fmt.Sprintf("%s, %d bytes", m.Platform, len(m.Script))
		if len(m.TerminalShortcut) > 0 {
			s += ", terminal " + codec.FormatSequence(m.TerminalShortcut)
		}
		return s
	case protocol.MacroMouseMove:
		return fmt.Sprintf("dx=%d dy=%d x%d", m.MoveX, m.MoveY, m.RepeatCount)
	default:
		return strconv.Itoa(m.Value)
	}
}

func runExport(ctx context.Context, cfg *configurator.Configurator, args []string) error {
	if len(args) != 1 {
		return errors.New("usage: export FILE")
	}
	res, err := cfg.ReadConfig(ctx)
	if err != nil {
		return err
	}
	if !res.Complete {
		return errors.New("configuration incomplete, not exporting")
	}
	if err := backup.Save(args[0], res.Config); err != nil {
		return err
	}
	fmt.Printf("Configuration written to %s\n", args[0])
	return nil
}

func runImport(ctx context.Context, cfg *configurator.Configurator, args []string) error {
	if len(args) != 1 {
		return errors.New("usage: import FILE")
	}
	edited, err := backup.Load(args[0])
	if err != nil {
		return err
	}
	res, err := cfg.ReadConfig(ctx)
	if err != nil {
		return err
	}

	changes := configurator.Diff(res.Config, edited)
	if changes.Len() == 0 {
		fmt.Println("Device already matches the backup")
		return nil
	}
	if err := cfg.SyncConfigMode(ctx, changes.Len()); err != nil {
		return err
	}

	out, err := cfg.Apply(ctx, changes.Changes())
	if err != nil {
		return err
	}
	return report(out, fmt.Sprintf("%d changes written and saved", changes.Len()))
}

func runSetLayer(ctx context.Context, cfg *configurator.Configurator, args []string) error {
	fs := flag.NewFlagSet("set-layer", flag.ContinueOnError)
	layer := fs.Int("layer", 0, "Layer index (0-3)")
	name := fs.String("name", "", "Layer name")
	symbol := fs.String("symbol", codec.Emojis[0], "Layer symbol")
	save := fs.Bool("save", false, "Save to flash afterwards")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if !codec.IsKnownEmoji(*symbol) {
		return fmt.Errorf("symbol %q is not in the device's emoji table", *symbol)
	}

	if err := cfg.SetLayer(ctx, *layer, *name, *symbol); err != nil {
		return err
	}
	return maybeSave(ctx, cfg, *save)
}

func runSetMacro(ctx context.Context, cfg *configurator.Configurator, args []string) error {
	fs := flag.NewFlagSet("set-macro", flag.ContinueOnError)
	layer := fs.Int("layer", 0, "Layer index (0-3)")
	button := fs.Int("button", 0, "Button index (0-6)")
	typ := fs.String("type", "key_press", "Macro type name or number")
	name := fs.String("name", "", "Macro name")
	symbol := fs.String("symbol", "", "Macro symbol")
	value := fs.Int("value", 0, "Type specific value")
	key := fs.String("key", "", "Key name for key_press macros")
	text := fs.String("text", "", "Text for text macros")
	keys := fs.String("keys", "", `Key sequence, e.g. "ctrl+shift+t"`)
	repeat := fs.Int("repeat", 1, "Repeat count")
	interval := fs.Int("interval", 0, "Repeat interval in milliseconds")
	moveX := fs.Int("x", 0, "Mouse X delta, or MIDI velocity/value")
	moveY := fs.Int("y", 0, "Mouse Y delta, or MIDI channel")
	save := fs.Bool("save", false, "Save to flash afterwards")
	if err := fs.Parse(args); err != nil {
		return err
	}

	t, err := protocol.ParseMacroType(*typ)
	if err != nil {
		return err
	}
	m := protocol.MacroEntry{
		Type:           t,
		Name:           *name,
		Symbol:         *symbol,
		Value:          *value,
		MacroString:    *text,
		RepeatCount:    *repeat,
		RepeatInterval: *interval,
		MoveX:          *moveX,
		MoveY:          *moveY,
	}
	if *key != "" {
		code, ok := codec.LookupKey(*key)
		if !ok {
			return fmt.Errorf("unknown key %q", *key)
		}
		m.Value = int(code)
	}
	if *keys != "" {
		steps, err := codec.ParseSequence(*keys)
		if err != nil {
			return err
		}
		m.Sequence = codec.Compile(steps)
	}
	if err := m.Validate(); err != nil {
		return err
	}

	if err := cfg.SetMacro(ctx, *layer, *button, m); err != nil {
		return err
	}
	return maybeSave(ctx, cfg, *save)
}

func runSetTimeout(ctx context.Context, cfg *configurator.Configurator, args []string) error {
	fs := flag.NewFlagSet("set-timeout", flag.ContinueOnError)
	save := fs.Bool("save", false, "Save to flash afterwards")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if fs.NArg() != 1 {
		return errors.New("usage: set-timeout SECONDS")
	}
	seconds, err := strconv.Atoi(fs.Arg(0))
	if err != nil {
		return fmt.Errorf("invalid timeout %q", fs.Arg(0))
	}

	if err := cfg.SetOLEDTimeout(ctx, seconds); err != nil {
		return err
	}
	return maybeSave(ctx, cfg, *save)
}

func runUploadScript(ctx context.Context, cfg *configurator.Configurator, args []string) error {
	fs := flag.NewFlagSet("upload-script", flag.ContinueOnError)
	layer := fs.Int("layer", 0, "Layer index (0-3)")
	button := fs.Int("button", 0, "Button index (0-6)")
	name := fs.String("name", "Script", "Macro name")
	symbol := fs.String("symbol", "", "Macro symbol")
	file := fs.String("file", "", "Script file")
	platform := fs.String("platform", "linux", "Target platform: linux, windows or macos")
	shortcut := fs.String("shortcut", "", `Shortcut that opens a terminal, e.g. "ctrl+alt+t"`)
	save := fs.Bool("save", false, "Save to flash afterwards")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if *file == "" {
		return errors.New("-file is required")
	}

	body, err := os.ReadFile(*file)
	if err != nil {
		return err
	}
	p, err := codec.ParsePlatform(*platform)
	if err != nil {
		return err
	}
	var steps []codec.KeyPress
	if *shortcut != "" {
		if steps, err = codec.ParseSequence(*shortcut); err != nil {
			return err
		}
	}

	m := protocol.MacroEntry{
		Type:             protocol.MacroScript,
		Name:             *name,
		Symbol:           *symbol,
		RepeatCount:      1,
		Script:           string(body),
		Platform:         p,
		TerminalShortcut: codec.Compile(steps),
	}
	if err := cfg.WriteChange(ctx, configurator.MacroEntryChange(*layer, *button, m)); err != nil {
		return err
	}
	fmt.Printf("Uploaded %d bytes to layer %d button %d\n", len(body), *layer, *button)
	return maybeSave(ctx, cfg, *save)
}

func runSave(ctx context.Context, cfg *configurator.Configurator, _ []string) error {
	out, err := cfg.Save(ctx)
	if err != nil {
		return err
	}
	return report(out, "Configuration saved")
}

func runBootsel(ctx context.Context, cfg *configurator.Configurator, _ []string) error {
	out, err := cfg.EnterUpdateMode(ctx)
	if err != nil {
		return err
	}
	return report(out, "Device rebooted into the bootloader, copy the .uf2 file to the new drive")
}

func maybeSave(ctx context.Context, cfg *configurator.Configurator, save bool) error {
	if !save {
		fmt.Println("Written (not saved, run `talosctl save` to persist)")
		return nil
	}
	return runSave(ctx, cfg, nil)
}

func report(out configurator.Outcome, msg string) error {
	switch out.Status {
	case configurator.Succeeded:
		fmt.Println(msg)
	case configurator.SucceededWithWarning:
		fmt.Printf("%s (warning: %s)\n", msg, out.Warning)
	default:
		return out.Err
	}
	return nil
}
