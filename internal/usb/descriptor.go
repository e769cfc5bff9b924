package usb

import (
	"fmt"
	"log/slog"
	"time"
)

// Descriptor identifies one candidate device found during enumeration.
// Path is unique among attached devices.
type Descriptor struct {
	Path            string
	Manufacturer    string
	Product         string
	Serial          string
	USBVersion      string
	Bus             int
	Address         int
	InterfaceNumber int
	VendorID        uint16
	ProductID       uint16
}

func (d Descriptor) String() string {
	return fmt.Sprintf("%04x:%04x@%s", d.VendorID, d.ProductID, d.Path)
}

// Endpoints describes the interface and bulk pipes claimed on open.
type Endpoints struct {
	Config        int
	Interface     int
	AltSetting    int
	MaxPacketSize int
	In            uint8
	Out           uint8
}

// Config holds the link settings. VendorID and ProductID select the device
// during auto-discovery.
type Config struct {
	Logger    *slog.Logger
	Endpoints Endpoints
	Timeout   time.Duration
	VendorID  uint16
	ProductID uint16
}

const (
	// SonyVendorID is the USB vendor ID of the console.
	SonyVendorID uint16 = 0x054C
	// BulkModeProductID is the product ID the console reports in USB
	// bulk-transfer mode.
	BulkModeProductID uint16 = 0x01C9

	DefaultTimeout = 5 * time.Second
)

// DefaultEndpoints is interface 0 of configuration 1 with bulk pipes 0x81/0x02.
func DefaultEndpoints() Endpoints {
	return Endpoints{
		Config:        1,
		Interface:     0,
		AltSetting:    0,
		MaxPacketSize: 512,
		In:            0x81,
		Out:           0x02,
	}
}

// DefaultConfig returns the settings for a console in USB mode.
func DefaultConfig() Config {
	return Config{
		VendorID:  SonyVendorID,
		ProductID: BulkModeProductID,
		Endpoints: DefaultEndpoints(),
		Timeout:   DefaultTimeout,
	}
}
