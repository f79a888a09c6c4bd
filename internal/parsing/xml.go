package parsing

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/Ullaakut/nmap/v3"

	"github.com/anstrom/hostenum/internal/model"
)

// decoder claims evidence in a structured format that the line and block
// rules cannot express.
type decoder struct {
	name   string
	detect func(raw string) bool
	decode func(raw string, e *emitter)
}

var defaultDecoders = []decoder{
	{name: "nmap-xml", detect: isNmapXML, decode: decodeNmapXML},
}

func isNmapXML(raw string) bool {
	return strings.Contains(raw, "<nmaprun")
}

// decodeNmapXML maps `-oX` output for the context host. Malformed XML yields
// no facts.
func decodeNmapXML(raw string, e *emitter) {
	run := &nmap.Run{}
	if err := nmap.Parse([]byte(raw), run); err != nil {
		return
	}

	for i := range run.Hosts {
		host := &run.Hosts[i]
		if !xmlHostMatches(host, e) {
			continue
		}
		decodeXMLHost(host, e)
		return
	}
}

func xmlHostMatches(host *nmap.Host, e *emitter) bool {
	for _, addr := range host.Addresses {
		if addr.AddrType == "ipv4" && e.forHost(addr.Addr) {
			return true
		}
	}
	return false
}

func decodeXMLHost(host *nmap.Host, e *emitter) {
	for _, addr := range host.Addresses {
		if addr.AddrType == "mac" {
			extractMAC([]string{addr.Addr, addr.Addr}, withConf(e, verified))
		}
	}
	for _, hn := range host.Hostnames {
		e.textAs(model.KindHostname, hn.Name, verified)
	}

	for _, port := range host.Ports {
		proto, ok := model.ParseProtocol(port.Protocol)
		if !ok {
			continue
		}
		conf := verified
		var state model.PortState
		switch port.State.State {
		case "open":
			state = model.StateOpen
		case "closed":
			state = model.StateClosed
		case "filtered":
			state = model.StateFiltered
		case "open|filtered", "closed|filtered":
			state = model.StateFiltered
			conf = inferred
		default:
			continue
		}
		e.service(model.KindService, model.PortService{
			Port:           int(port.ID),
			Protocol:       proto,
			State:          state,
			ServiceName:    port.Service.Name,
			ServiceVersion: strings.TrimSpace(port.Service.Product + " " + port.Service.Version),
		}, conf)
	}

	var cands []osCandidate
	for _, m := range host.OS.Matches {
		c := osCandidate{name: strings.TrimSpace(m.Name)}
		if score, err := strconv.ParseFloat(fmt.Sprint(m.Accuracy), 64); err == nil {
			c.score, c.scored = score, true
		}
		if c.name != "" {
			cands = append(cands, c)
		}
	}
	classifyOS(cands, verified, e)
}

func withConf(e *emitter, conf model.Confidence) *emitter {
	e.conf = conf
	return e
}
