package cli

import (
	"fmt"
	"strconv"

	"github.com/olekukonko/tablewriter"
	"github.com/spf13/cobra"

	"github.com/anstrom/hostenum/internal/profiles"
)

// profilesCmd represents the profiles command.
var profilesCmd = &cobra.Command{
	Use:   "profiles",
	Short: "List the scan profiles",
	Long: `Display the built-in scan profiles with their port scope, timing and
whether OS detection and the UDP stage are part of them.`,
	Args: cobra.NoArgs,
	RunE: runProfiles,
}

func init() {
	rootCmd.AddCommand(profilesCmd)
}

func runProfiles(cmd *cobra.Command, _ []string) error {
	table := tablewriter.NewWriter(cmd.OutOrStdout())
	table.Header("Name", "Ports", "OS Detection", "UDP Top Ports", "Timing", "Description")

	for _, p := range profiles.List() {
		udp := "-"
		if p.UDPTopPorts > 0 {
			udp = strconv.Itoa(p.UDPTopPorts)
		}
		if err := table.Append([]string{
			p.Name,
			p.PortScope,
			fmt.Sprintf("%t", p.OSDetection),
			udp,
			p.Timing,
			p.Description,
		}); err != nil {
			return err
		}
	}

	return table.Render()
}
