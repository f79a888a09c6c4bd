package cli

import (
	"fmt"
	"os/exec"

	"github.com/olekukonko/tablewriter"
	"github.com/spf13/cobra"

	"github.com/anstrom/hostenum/internal/tools"
)

// lookPath resolves tool binaries.
var lookPath = exec.LookPath

// toolsCmd represents the tools command.
var toolsCmd = &cobra.Command{
	Use:   "tools",
	Short: "Show which external tools are available",
	Long: `Check every configured external tool against the PATH. Stages whose tools
are missing are skipped during enumeration; nmap is needed for any useful result.`,
	Args: cobra.NoArgs,
	RunE: runTools,
}

func init() {
	rootCmd.AddCommand(toolsCmd)
}

func runTools(cmd *cobra.Command, _ []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	statuses := tools.Availability(cmd.Context(), cfg.Tools.Binaries(), lookPath)
	out := cmd.OutOrStdout()

	table := tablewriter.NewWriter(out)
	table.Header("Tool", "Binary", "Path", "Status")
	for _, st := range statuses {
		status := "available"
		if !st.Available {
			status = "missing"
		}
		if err := table.Append([]string{st.Tool, st.Binary, st.Path, status}); err != nil {
			return err
		}
	}
	if err := table.Render(); err != nil {
		return err
	}

	missing := tools.Missing(statuses)
	fmt.Fprintf(out, "\n%d of %d tools available\n", len(statuses)-len(missing), len(statuses))
	return nil
}
