package serial

import (
	"errors"
	"fmt"
	"io"
	"io/fs"
	"sort"
	"strings"

	gobug "go.bug.st/serial"
	"go.bug.st/serial/enumerator"
)

// Port is the subset of go.bug.st/serial.Port used by the transport.
type Port interface {
	io.ReadWriteCloser

	// ResetInputBuffer discards bytes received but not yet read
	ResetInputBuffer() error
}

// Config holds serial port configuration.
type Config struct {
	// Device path (e.g. "/dev/ttyACM0", "COM3"); empty selects the first
	// port matching VendorID/ProductID
	Device string

	// BaudRate is ignored by USB CDC but required to open the port
	BaudRate int

	// VendorID and ProductID are 4 digit hex USB identifiers
	VendorID  string
	ProductID string
}

// DefaultConfig returns the configuration of the macro keyboard.
func DefaultConfig() Config {
	return Config{
		BaudRate:  115200,
		VendorID:  "2E8A",
		ProductID: "000A",
	}
}

// PortInfo describes a detected serial port.
type PortInfo struct {
	Name      string
	VendorID  string
	ProductID string
	Serial    string
	Product   string
}

// allow tests to override external dependencies
var (
	openPort     = func(name string, mode *gobug.Mode) (Port, error) { return gobug.Open(name, mode) }
	listPorts    = enumerator.GetDetailedPortsList
	getPortsList = gobug.GetPortsList
)

// IsSupported reports whether the host can enumerate serial ports at all.
// It does not open anything.
func IsSupported() bool {
	_, err := getPortsList()
	if err == nil {
		return true
	}
	code, ok := portErrorCode(err)
	return !ok || code != gobug.FunctionNotImplemented
}

// ListPorts returns all USB serial ports, sorted by name.
func ListPorts() ([]PortInfo, error) {
	details, err := listPorts()
	if err != nil {
		if code, ok := portErrorCode(err); ok && code == gobug.FunctionNotImplemented {
			return nil, &ConnectionError{Kind: Unsupported, Device: "serial", Err: err}
		}
		return nil, fmt.Errorf("enumerating ports: %w", err)
	}

	ports := make([]PortInfo, 0, len(details))
	for _, d := range details {
		if d == nil || !d.IsUSB {
			continue
		}
		ports = append(ports, PortInfo{
			Name:      d.Name,
			VendorID:  strings.ToUpper(d.VID),
			ProductID: strings.ToUpper(d.PID),
			Serial:    d.SerialNumber,
			Product:   d.Product,
		})
	}
	sort.Slice(ports, func(i, j int) bool { return ports[i].Name < ports[j].Name })
	return ports, nil
}

// Discover returns the name of the first port whose USB identifiers match cfg.
func Discover(cfg Config) (string, error) {
	want := cfg.VendorID + ":" + cfg.ProductID

	ports, err := ListPorts()
	if err != nil {
		var ce *ConnectionError
		if errors.As(err, &ce) {
			return "", err
		}
		return "", &ConnectionError{Kind: DeviceNotFound, Device: want, Err: err}
	}

	for _, p := range ports {
		if strings.EqualFold(p.VendorID, cfg.VendorID) && strings.EqualFold(p.ProductID, cfg.ProductID) {
			return p.Name, nil
		}
	}
	return "", &ConnectionError{Kind: DeviceNotFound, Device: want}
}

// Open opens the port named by cfg.Device, discovering it first when empty.
// It returns the opened port and its name.
func Open(cfg Config) (Port, string, error) {
	device := cfg.Device
	if device == "" {
		var err error
		if device, err = Discover(cfg); err != nil {
			return nil, "", err
		}
	}

	port, err := openPort(device, &gobug.Mode{
		BaudRate: cfg.BaudRate,
		DataBits: 8,
		Parity:   gobug.NoParity,
		StopBits: gobug.OneStopBit,
	})
	if err != nil {
		return nil, device, classifyOpenError(device, err)
	}
	return port, device, nil
}

// Dial opens the port described by cfg and wraps it in a Transport.
func Dial(cfg Config, logger Logger) (*Transport, error) {
	port, device, err := Open(cfg)
	if err != nil {
		return nil, err
	}
	if logger != nil {
		logger.Info("serial port opened", "device", device, "baud", cfg.BaudRate)
	}
	return NewTransport(port, logger), nil
}

func classifyOpenError(device string, err error) error {
	kind := Other
	if code, ok := portErrorCode(err); ok {
		switch code {
		case gobug.PortNotFound, gobug.InvalidSerialPort:
			kind = DeviceNotFound
		case gobug.PermissionDenied, gobug.PortBusy:
			kind = PermissionDenied
		case gobug.FunctionNotImplemented:
			kind = Unsupported
		}
	} else {
		switch {
		case errors.Is(err, fs.ErrNotExist):
			kind = DeviceNotFound
		case errors.Is(err, fs.ErrPermission):
			kind = PermissionDenied
		}
	}
	return &ConnectionError{Kind: kind, Device: device, Err: err}
}

// portErrorCode extracts the code of a go.bug.st/serial PortError, which the
// library returns both by value and by pointer.
func portErrorCode(err error) (gobug.PortErrorCode, bool) {
	var pp *gobug.PortError
	if errors.As(err, &pp) && pp != nil {
		return pp.Code(), true
	}
	var pv gobug.PortError
	if errors.As(err, &pv) {
		return pv.Code(), true
	}
	return 0, false
}
