// Package configurator drives the configuration session with a macro keyboard.
//
// A Configurator owns one serial connection and runs the request/response
// exchanges of the configuration protocol over it: reading the full
// configuration, writing macros, layer names and settings, uploading scripts,
// saving to flash and rebooting into the USB bootloader.
//
// Basic usage:
//
//	cfg := configurator.New(configurator.WithLogger(logger))
//	if err := cfg.Connect(ctx); err != nil {
//	    log.Fatal(err)
//	}
//	defer cfg.Disconnect()
//
//	res, err := cfg.ReadConfig(ctx)
//	if err != nil {
//	    log.Fatal(err)
//	}
//
//	edited := res.Config.Clone()
//	edited.Layers[0].Name = "Coding"
//
//	changes := configurator.Diff(res.Config, edited)
//	outcome, err := cfg.Apply(ctx, changes.Changes())
//	if err != nil {
//	    log.Fatal(err)
//	}
//	if outcome.Status == configurator.SucceededWithWarning {
//	    log.Println(outcome.Warning)
//	}
//
// Operations are serialized; concurrent calls wait for the previous
// exchange to finish.
package configurator
