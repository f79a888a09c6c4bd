package scanning

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/gosnmp/gosnmp"

	"github.com/anstrom/hostenum/internal/config"
	"github.com/anstrom/hostenum/internal/model"
	"github.com/anstrom/hostenum/internal/tools"
)

// System group OIDs.
const (
	OIDSysDescr = "1.3.6.1.2.1.1.1.0"
	OIDSysName  = "1.3.6.1.2.1.1.5.0"
)

var oidLabels = map[string]string{
	OIDSysDescr: "sysDescr.0",
	OIDSysName:  "sysName.0",
}

// SNMPProber reads sysDescr and sysName with an SNMPv2c GET.
type SNMPProber struct {
	Community string
	Port      uint16
	Timeout   time.Duration
	Retries   int
}

// NewSNMPProber creates a prober from configuration.
func NewSNMPProber(cfg config.SNMPConfig) *SNMPProber {
	return &SNMPProber{
		Community: cfg.Community,
		Port:      uint16(cfg.Port),
		Timeout:   cfg.Timeout,
		Retries:   cfg.Retries,
	}
}

// Command wraps the probe as a tools.Command. The rendered command line
// omits the community string.
func (p *SNMPProber) Command(ip string) tools.Command {
	return tools.Command{
		Tool:    "snmp",
		Binary:  "snmp-get",
		Args:    []string{"-v2c", ip + ":" + strconv.Itoa(int(p.Port)), OIDSysDescr, OIDSysName},
		Target:  ip,
		Timeout: p.Timeout * time.Duration(p.Retries+2),
		Source:  model.SourceSNMP,
		Probe:   p.Probe(ip),
	}
}

// Probe returns a tools.ProbeFunc that queries target.
func (p *SNMPProber) Probe(target string) tools.ProbeFunc {
	return func(ctx context.Context) (string, error) {
		client := &gosnmp.GoSNMP{
			Target:    target,
			Port:      p.Port,
			Community: p.Community,
			Version:   gosnmp.Version2c,
			Timeout:   p.Timeout,
			Retries:   p.Retries,
			Context:   ctx,
			MaxOids:   gosnmp.MaxOids,
		}
		if err := client.Connect(); err != nil {
			return "", fmt.Errorf("snmp connect to %s: %w", target, err)
		}
		defer func() { _ = client.Conn.Close() }()

		pkt, err := client.Get([]string{OIDSysDescr, OIDSysName})
		if err != nil {
			return "", fmt.Errorf("snmp get from %s: %w", target, err)
		}
		if pkt.Error != gosnmp.NoError {
			return "", fmt.Errorf("snmp get from %s: %s", target, pkt.Error)
		}
		return FormatPDUs(pkt.Variables), nil
	}
}

// FormatPDUs renders string variables in snmpget's text form, e.g.
// `sysName.0 = STRING: dc01`. Other types and missing objects are skipped.
func FormatPDUs(pdus []gosnmp.SnmpPDU) string {
	var b strings.Builder
	for _, pdu := range pdus {
		if pdu.Type != gosnmp.OctetString {
			continue
		}
		raw, ok := pdu.Value.([]byte)
		if !ok {
			continue
		}
		label, ok := oidLabels[strings.TrimPrefix(pdu.Name, ".")]
		if !ok {
			label = strings.TrimPrefix(pdu.Name, ".")
		}
		value := strings.Join(strings.Fields(string(raw)), " ")
		fmt.Fprintf(&b, "%s = STRING: %s\n", label, value)
	}
	return b.String()
}
