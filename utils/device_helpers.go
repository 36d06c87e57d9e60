package utils

import (
	"fmt"

	"github.com/notargets/gocca"
)

// deviceProperties maps a backend name to its OCCA device properties
var deviceProperties = map[string]string{
	"Serial": `{"mode": "Serial"}`,
	"OpenMP": `{"mode": "OpenMP"}`,
	"CUDA":   `{"mode": "CUDA", "device_id": 0}`,
	"OpenCL": `{"mode": "OpenCL", "platform_id": 0, "device_id": 0}`,
}

// NewDevice creates a device for the named backend (Serial, OpenMP, CUDA, OpenCL)
func NewDevice(mode string) (*gocca.OCCADevice, error) {
	props, ok := deviceProperties[mode]
	if !ok {
		return nil, fmt.Errorf("unknown device mode %q", mode)
	}
	device, err := gocca.NewDevice(props)
	if err != nil {
		return nil, fmt.Errorf("failed to create %s device: %w", mode, err)
	}
	return device, nil
}

// CreateTestDevice creates a Device for testing, preferring parallel backends
func CreateTestDevice() *gocca.OCCADevice {
	// OpenMP first, then CUDA, then fall back to Serial
	for _, mode := range []string{"OpenMP", "CUDA", "Serial"} {
		device, err := NewDevice(mode)
		if err == nil {
			fmt.Printf("Created %s Device\n", device.Mode())
			return device
		}
	}

	// Should not reach here
	panic("Failed to create any Device")
}
