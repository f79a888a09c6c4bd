package report

import (
	"fmt"
	"io"
	"strings"

	"github.com/olekukonko/tablewriter"

	"github.com/anstrom/hostenum/internal/model"
)

const maxConsoleServices = 6

// Console prints a one-row-per-host summary table.
func Console(w io.Writer, results *model.ResultSet) error {
	table := tablewriter.NewWriter(w)
	table.Header("Address", "Hostname", "OS Family", "Open Services", "Windows", "Vuln Hints", "Notes")

	for _, rec := range results.Records() {
		family, conf := rec.OSFamily()
		osLabel := string(family)
		if conf == model.ConfidenceInferred {
			osLabel += " (inferred)"
		}

		windows := "no"
		if model.NeedsWindowsEnumeration(rec) {
			windows = "yes"
		}

		notes := ""
		if markers := rec.Markers(); len(markers) > 0 {
			notes = markers[0].Value
		}

		if err := table.Append([]string{
			rec.Address().String(),
			rec.Hostname().Value,
			osLabel,
			serviceSummary(rec.Services()),
			windows,
			fmt.Sprintf("%d", len(rec.VulnHints())),
			notes,
		}); err != nil {
			return err
		}
	}

	return table.Render()
}

func serviceSummary(services []model.ServiceEntry) string {
	var parts []string
	for _, svc := range services {
		if svc.State != model.StateOpen {
			continue
		}
		parts = append(parts, fmt.Sprintf("%d/%s", svc.Port, svc.Protocol))
	}
	if len(parts) > maxConsoleServices {
		extra := len(parts) - maxConsoleServices
		parts = append(parts[:maxConsoleServices], fmt.Sprintf("+%d more", extra))
	}
	return strings.Join(parts, ", ")
}
