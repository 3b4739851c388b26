package transport

import (
	"fmt"
	"strings"

	"go.bug.st/serial/enumerator"
)

var listPorts = enumerator.GetDetailedPortsList

// ResolvePort maps what the operator typed to a port name. An exact port
// name wins; otherwise name is matched case-insensitively against the USB
// product string and serial number. An empty name picks the first USB port.
func ResolvePort(name string) (string, error) {
	ports, err := listPorts()
	if err != nil {
		return "", fmt.Errorf("enumerator error: %w", err)
	}
	if len(ports) == 0 {
		if name != "" {
			// Some platforms cannot enumerate; trust the operator.
			return name, nil
		}
		return "", fmt.Errorf("no serial ports found")
	}

	if name == "" {
		for _, p := range ports {
			if p.IsUSB {
				return p.Name, nil
			}
		}
		return "", fmt.Errorf("no USB serial port found, specify one")
	}

	for _, p := range ports {
		if p.Name == name {
			return p.Name, nil
		}
	}

	want := strings.ToLower(name)
	for _, p := range ports {
		if !p.IsUSB {
			continue
		}
		if strings.Contains(strings.ToLower(p.Product), want) || strings.EqualFold(p.SerialNumber, name) {
			return p.Name, nil
		}
	}

	return "", fmt.Errorf("specified port %s not found in available ports", name)
}
