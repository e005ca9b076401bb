package workcell

import (
	"context"
	"strings"
	"time"

	"github.com/hipsterbrown/feetech-servo/feetech"
	"go.bug.st/serial/enumerator"
	"go.viam.com/rdk/logging"
)

// DiscoverServoPorts scans the system's serial ports for a responding servo
// bus, for wiring a ServoMirror without knowing the port up front.
func DiscoverServoPorts(ctx context.Context, logger logging.Logger) []string {
	allPorts := enumerateSerialPorts()
	logger.Debugf("found %d total serial ports", len(allPorts))

	candidates := filterCandidatePorts(allPorts)
	logger.Debugf("filtered to %d candidate ports", len(candidates))

	var found []string
	for _, portPath := range candidates {
		select {
		case <-ctx.Done():
			return found
		default:
		}
		if probeServoPort(ctx, portPath, logger) {
			found = append(found, portPath)
		}
	}
	return found
}

// probeServoPort opens the port briefly and pings servo 1.
func probeServoPort(ctx context.Context, portPath string, logger logging.Logger) bool {
	bus, err := feetech.NewBus(feetech.BusConfig{
		Port:     portPath,
		BaudRate: 1000000,
		Protocol: feetech.ProtocolSTS,
		Timeout:  500 * time.Millisecond,
	})
	if err != nil {
		logger.Debugf("failed to open port %s: %v", portPath, err)
		return false
	}
	defer func() {
		if err := bus.Close(); err != nil {
			logger.Debugf("error closing probe bus on %s: %v", portPath, err)
		}
	}()

	servo := feetech.NewServo(bus, 1, &feetech.ModelSTS3215)
	if _, err := servo.Ping(ctx); err != nil {
		return false
	}
	logger.Infof("servo bus found on %s", portPath)
	return true
}

// filterCandidatePorts filters serial ports by platform-specific naming
// patterns.
func filterCandidatePorts(ports []string) []string {
	candidates := []string{}
	for _, port := range ports {
		if isCandidatePort(port) {
			candidates = append(candidates, port)
		}
	}
	return candidates
}

func isCandidatePort(port string) bool {
	// Linux: /dev/ttyUSB*, /dev/ttyACM*
	if strings.HasPrefix(port, "/dev/ttyUSB") || strings.HasPrefix(port, "/dev/ttyACM") {
		return true
	}
	// macOS: /dev/tty.usbmodem*, /dev/tty.usbserial*, /dev/cu.usbmodem*, /dev/cu.usbserial*
	if strings.HasPrefix(port, "/dev/tty.usbmodem") || strings.HasPrefix(port, "/dev/tty.usbserial") ||
		strings.HasPrefix(port, "/dev/cu.usbmodem") || strings.HasPrefix(port, "/dev/cu.usbserial") {
		return true
	}
	// Windows: COM*
	return strings.HasPrefix(port, "COM")
}

func enumerateSerialPorts() []string {
	ports, err := enumerator.GetDetailedPortsList()
	if err != nil {
		return []string{}
	}

	var portPaths []string
	for _, port := range ports {
		portPaths = append(portPaths, port.Name)
	}
	return portPaths
}
