// Package serial connects to the macro keyboard's USB CDC port and frames the
// byte stream into lines.
//
// Open and Dial locate the keyboard by its USB identifiers (2E8A:000A) using
// go.bug.st/serial and its enumerator, and classify failures as
// ConnectionError values:
//
//	t, err := serial.Dial(serial.DefaultConfig(), logger)
//	if serial.IsConnectionError(err, serial.PermissionDenied) {
//	    // add the user to the dialout group
//	}
//	defer t.Close()
//
// Transport works over any io.ReadWriteCloser, which is how the tests and the
// simulator drive it through net.Pipe.
package serial
