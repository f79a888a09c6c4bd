package scanning

import (
	"fmt"
	"strconv"
	"strings"
)

const (
	// Port validation constants.
	expectedPortRangeParts = 2
	maxPort                = 65535
)

// PortError describes an invalid port specification.
type PortError struct {
	Spec string // Offending part of the specification
	Err  error  // Underlying cause
}

func (e *PortError) Error() string {
	return fmt.Sprintf("validate ports failed for %q: %v", e.Spec, e.Err)
}

func (e *PortError) Unwrap() error {
	return e.Err
}

// ValidatePorts checks a comma-separated nmap port list such as
// "22,80,443" or "1-1024,3389".
func ValidatePorts(spec string) error {
	if strings.TrimSpace(spec) == "" {
		return &PortError{Spec: spec, Err: fmt.Errorf("no ports specified")}
	}
	for _, part := range strings.Split(spec, ",") {
		if err := validatePortPart(part); err != nil {
			return err
		}
	}
	return nil
}

// validatePortPart validates a single port or port range.
func validatePortPart(part string) error {
	if strings.Contains(part, "-") {
		return validatePortRange(part)
	}
	return validateSinglePort(part)
}

// validatePortRange validates a port range (e.g., "80-100").
func validatePortRange(part string) error {
	rangeParts := strings.Split(part, "-")
	if len(rangeParts) != expectedPortRangeParts {
		return &PortError{Spec: part, Err: fmt.Errorf("invalid port range format")}
	}

	start, err := strconv.Atoi(strings.TrimSpace(rangeParts[0]))
	if err != nil {
		return &PortError{Spec: part, Err: fmt.Errorf("invalid start port: %s", rangeParts[0])}
	}
	end, err := strconv.Atoi(strings.TrimSpace(rangeParts[1]))
	if err != nil {
		return &PortError{Spec: part, Err: fmt.Errorf("invalid end port: %s", rangeParts[1])}
	}

	if start < 1 || start > maxPort || end < 1 || end > maxPort {
		return &PortError{Spec: part, Err: fmt.Errorf("port out of range (must be 1-%d)", maxPort)}
	}
	if start > end {
		return &PortError{Spec: part, Err: fmt.Errorf("start port must not exceed end port")}
	}
	return nil
}

// validateSinglePort validates a single port.
func validateSinglePort(part string) error {
	port, err := strconv.Atoi(strings.TrimSpace(part))
	if err != nil {
		return &PortError{Spec: part, Err: fmt.Errorf("invalid port")}
	}
	if port < 1 || port > maxPort {
		return &PortError{Spec: part, Err: fmt.Errorf("port %d out of range (must be 1-%d)", port, maxPort)}
	}
	return nil
}

// normalizePorts strips whitespace so the list is a single nmap argument.
func normalizePorts(spec string) string {
	parts := strings.Split(spec, ",")
	for i, p := range parts {
		parts[i] = strings.ReplaceAll(strings.TrimSpace(p), " ", "")
	}
	return strings.Join(parts, ",")
}
