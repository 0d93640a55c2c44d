// Package simulator emulates the macro keyboard firmware on the far end of a
// pipe.
//
// A Device parses commands with the same leniency as the firmware
// dispatcher, keeps a working and a flash copy of the configuration, streams
// GET_CONF in the firmware's record formats and accepts script uploads
// through the READY handshake. It backs the library tests and the
// command-line -simulate flag.
//
//	dev := simulator.New(protocol.DefaultConfiguration())
//	conn := simulator.NewPipe(dev)
//	t := serial.NewTransport(conn, nil)
//	defer t.Close()
package simulator
