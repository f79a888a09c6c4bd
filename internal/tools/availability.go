package tools

import (
	"context"
	stderrors "errors"
	"os/exec"
	"sort"

	"github.com/Ullaakut/nmap/v3"
)

// Status reports whether one configured tool can be run.
type Status struct {
	Tool      string `json:"tool" yaml:"tool"`
	Binary    string `json:"binary" yaml:"binary"`
	Path      string `json:"path,omitempty" yaml:"path,omitempty"`
	Available bool   `json:"available" yaml:"available"`
}

// Availability resolves every configured binary, keyed by tool name, and
// returns their statuses sorted by tool name.
func Availability(ctx context.Context, binaries map[string]string, lookPath func(string) (string, error)) []Status {
	if lookPath == nil {
		lookPath = exec.LookPath
	}

	statuses := make([]Status, 0, len(binaries))
	for tool, binary := range binaries {
		st := Status{Tool: tool, Binary: binary}
		if path, err := lookPath(binary); err == nil {
			st.Path = path
			st.Available = true
		}
		if tool == "nmap" && binary == "nmap" && st.Available {
			st.Available = nmapInstalled(ctx)
		}
		statuses = append(statuses, st)
	}

	sort.Slice(statuses, func(i, j int) bool { return statuses[i].Tool < statuses[j].Tool })
	return statuses
}

// nmapInstalled asks the nmap library to locate its default binary.
func nmapInstalled(ctx context.Context) bool {
	_, err := nmap.NewScanner(ctx)
	return !stderrors.Is(err, nmap.ErrNmapNotInstalled)
}

// Missing filters statuses down to the unavailable tools.
func Missing(statuses []Status) []Status {
	var out []Status
	for _, st := range statuses {
		if !st.Available {
			out = append(out, st)
		}
	}
	return out
}
