package scanning

import (
	"errors"
	"net/netip"
	"testing"
	"time"

	"github.com/gosnmp/gosnmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/anstrom/hostenum/internal/config"
	"github.com/anstrom/hostenum/internal/model"
	"github.com/anstrom/hostenum/internal/profiles"
	"github.com/anstrom/hostenum/internal/tools"
)

const testIP = "10.0.0.5"

func newPlanner(t *testing.T, profile string, mutate func(*config.Config)) *Planner {
	t.Helper()
	cfg := config.Default()
	if mutate != nil {
		mutate(cfg)
	}
	p, err := profiles.Get(profile)
	require.NoError(t, err)
	planner, err := NewPlanner(cfg, p)
	require.NoError(t, err)
	return planner
}

func recordWith(t *testing.T, services ...model.PortService) *model.HostRecord {
	t.Helper()
	rec := model.NewHostRecord(netip.MustParseAddr(testIP))
	ev := model.NewEvidence(model.SourceGeneral, "nmap", "fixture", time.Now())
	model.AddEvidence(rec, ev)
	for _, svc := range services {
		require.True(t, model.Apply(rec, model.NewServiceFact(model.KindOpenPort, svc, model.ConfidenceVerified, ev)))
	}
	return rec
}

func TestGeneralScan(t *testing.T) {
	tests := []struct {
		name    string
		profile string
		ports   string
		want    string
		timeout time.Duration
	}{
		{"quick", "quick", "", "nmap -sV -sC -T4 --open -Pn -F 10.0.0.5", 10 * time.Minute},
		{"full", "full", "", "nmap -sV -sC -T4 --open -Pn -p- 10.0.0.5", 30 * time.Minute},
		{"custom ports", "quick", "22, 80,443-445", "nmap -sV -sC -T4 --open -Pn -p 22,80,443-445 10.0.0.5", 30 * time.Minute},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p := newPlanner(t, tt.profile, func(c *config.Config) { c.Enumeration.Ports = tt.ports })
			step := p.General(testIP)
			require.Len(t, step.Commands, 1)
			cmd := step.Commands[0]
			assert.Equal(t, tt.want, cmd.String())
			assert.Equal(t, tt.timeout, cmd.Timeout)
			assert.Equal(t, model.SourceGeneral, cmd.Source)
			assert.Equal(t, StageGeneral, step.Name)
		})
	}
}

func TestGeneralScanUsesConfiguredBudget(t *testing.T) {
	p := newPlanner(t, "quick", func(c *config.Config) {
		c.Timeouts.TCPQuick = 3 * time.Minute
		c.Timeouts.TCPFull = 45 * time.Minute
	})
	assert.Equal(t, 3*time.Minute, p.General(testIP).Commands[0].Timeout)

	p = newPlanner(t, "thorough", func(c *config.Config) { c.Timeouts.TCPFull = 45 * time.Minute })
	assert.Equal(t, 45*time.Minute, p.General(testIP).Commands[0].Timeout)
}

func TestNewPlannerRejectsBadPorts(t *testing.T) {
	cfg := config.Default()
	cfg.Enumeration.Ports = "80,70000"
	p, _ := profiles.Get("quick")
	_, err := NewPlanner(cfg, p)
	require.Error(t, err)

	var portErr *PortError
	assert.True(t, errors.As(err, &portErr))
}

func TestOSDetectionAndUDP(t *testing.T) {
	quick := newPlanner(t, "quick", nil)
	osStep, ok := quick.OSDetection(testIP)
	require.True(t, ok)
	assert.Equal(t, "nmap -O --osscan-guess -T4 -Pn 10.0.0.5", osStep.Commands[0].String())
	assert.Equal(t, model.SourceOSDetection, osStep.Commands[0].Source)

	_, ok = quick.UDP(testIP)
	assert.False(t, ok, "quick profile skips UDP")

	thorough := newPlanner(t, "thorough", nil)
	udp, ok := thorough.UDP(testIP)
	require.True(t, ok)
	assert.Equal(t, "nmap -sU --top-ports 100 -T4 -Pn 10.0.0.5", udp.Commands[0].String())
	assert.Equal(t, 10*time.Minute, udp.Commands[0].Timeout)
}

func TestWindowsSteps(t *testing.T) {
	p := newPlanner(t, "quick", nil)

	t.Run("without ldap", func(t *testing.T) {
		rec := recordWith(t, model.PortService{Port: 445, Protocol: model.ProtocolTCP, State: model.StateOpen})
		steps := p.WindowsSteps(testIP, rec)
		require.Len(t, steps, 2)

		assert.Equal(t, StageSMB, steps[0].Name)
		assert.Equal(t, "enum4linux -a 10.0.0.5", steps[0].Commands[0].String())
		assert.Equal(t, "smbclient -L //10.0.0.5 -N", steps[0].Commands[1].String())
		assert.Equal(t, 60*time.Second, steps[0].Commands[1].Timeout)

		assert.Equal(t, StageNetBIOS, steps[1].Name)
		assert.Equal(t, "nmblookup -A 10.0.0.5", steps[1].Commands[0].String())
		assert.Equal(t, "nbtscan 10.0.0.5", steps[1].Commands[1].String())
	})

	t.Run("with ldap", func(t *testing.T) {
		rec := recordWith(t, model.PortService{Port: 389, Protocol: model.ProtocolTCP, State: model.StateOpen})
		steps := p.WindowsSteps(testIP, rec)
		require.Len(t, steps, 3)
		assert.Equal(t,
			"ldapsearch -x -H ldap://10.0.0.5 -s base namingContexts defaultNamingContext",
			steps[2].Commands[0].String())
	})

	t.Run("ldaps only", func(t *testing.T) {
		rec := recordWith(t, model.PortService{Port: 636, Protocol: model.ProtocolTCP, State: model.StateOpen})
		ldap, ok := p.LDAP(testIP, rec)
		require.True(t, ok)
		assert.Contains(t, ldap.Commands[0].Args, "ldaps://10.0.0.5")
	})

	t.Run("disabled", func(t *testing.T) {
		off := newPlanner(t, "quick", func(c *config.Config) { c.Enumeration.Windows.Enabled = false })
		assert.Empty(t, off.WindowsSteps(testIP, recordWith(t)))
	})
}

func TestStepAccepts(t *testing.T) {
	p := newPlanner(t, "quick", nil)
	smb := p.SMB(testIP)
	failed := errors.New("exit status 1")

	assert.True(t, smb.Accepts(tools.Output{}, nil))
	assert.True(t, smb.Accepts(tools.Output{Text: "Domain Name: CORP\nWORKGROUP"}, failed))
	assert.False(t, smb.Accepts(tools.Output{Text: "Connection refused"}, failed))

	netbios := p.NetBIOS(testIP)
	assert.True(t, netbios.Accepts(tools.Output{}, nil))
	assert.False(t, netbios.Accepts(tools.Output{Text: "No reply"}, failed))
}

func TestSNMPStep(t *testing.T) {
	p := newPlanner(t, "thorough", nil)

	_, ok := p.SNMP(testIP, recordWith(t))
	assert.False(t, ok, "no udp/161 seen")

	rec := recordWith(t, model.PortService{Port: 161, Protocol: model.ProtocolUDP, State: model.StateFiltered})
	step, ok := p.SNMP(testIP, rec)
	require.True(t, ok)
	cmd := step.Commands[0]
	assert.NotNil(t, cmd.Probe)
	assert.Equal(t, model.SourceSNMP, cmd.Source)
	assert.NotContains(t, cmd.String(), "public")

	off := newPlanner(t, "thorough", func(c *config.Config) { c.Enumeration.SNMP.Enabled = false })
	_, ok = off.SNMP(testIP, rec)
	assert.False(t, ok)
}

func TestFormatPDUs(t *testing.T) {
	pdus := []gosnmp.SnmpPDU{
		{Name: ".1.3.6.1.2.1.1.1.0", Type: gosnmp.OctetString, Value: []byte("Hardware: Intel64\r\nSoftware: Windows Version 6.3")},
		{Name: ".1.3.6.1.2.1.1.5.0", Type: gosnmp.OctetString, Value: []byte("DC01")},
		{Name: ".1.3.6.1.2.1.1.3.0", Type: gosnmp.TimeTicks, Value: uint32(42)},
		{Name: ".1.3.6.1.2.1.1.4.0", Type: gosnmp.NoSuchObject},
	}

	want := "sysDescr.0 = STRING: Hardware: Intel64 Software: Windows Version 6.3\n" +
		"sysName.0 = STRING: DC01\n"
	assert.Equal(t, want, FormatPDUs(pdus))
}

func TestValidatePorts(t *testing.T) {
	tests := []struct {
		spec    string
		wantErr bool
	}{
		{"80", false},
		{"22,80,443", false},
		{"1-1024,3389", false},
		{"", true},
		{"0", true},
		{"65536", true},
		{"100-10", true},
		{"1-2-3", true},
		{"http", true},
	}
	for _, tt := range tests {
		err := ValidatePorts(tt.spec)
		if (err != nil) != tt.wantErr {
			t.Errorf("ValidatePorts(%q) error = %v, wantErr %v", tt.spec, err, tt.wantErr)
		}
	}
}
