package model

import "fmt"

// windowsPorts are the SMB and NetBIOS session ports that mark a host as a
// Windows enumeration candidate.
var windowsPorts = []int{445, 139}

// NeedsWindowsEnumeration reports whether the Windows specific scans should
// run for rec. It holds as soon as the OS family is WINDOWS or port 445 or 139
// is open, whichever is seen first, so callers evaluate it after every Apply.
func NeedsWindowsEnumeration(rec *HostRecord) bool {
	return WindowsTriggerReason(rec) != ""
}

// WindowsTriggerReason describes why NeedsWindowsEnumeration holds, or returns
// an empty string when it does not.
func WindowsTriggerReason(rec *HostRecord) string {
	if family, _ := rec.OSFamily(); family == OSWindows {
		return "os_family=WINDOWS"
	}
	for _, port := range windowsPorts {
		for _, proto := range []Protocol{ProtocolTCP, ProtocolUDP} {
			e, ok := rec.services[ServiceKey{Port: port, Protocol: proto}]
			if ok && e.State == StateOpen {
				return fmt.Sprintf("port %d/%s open", port, proto)
			}
		}
	}
	return ""
}
