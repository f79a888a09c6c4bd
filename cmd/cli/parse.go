package cli

import (
	"fmt"
	"net/netip"
	"os"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/anstrom/hostenum/internal/enumeration"
	"github.com/anstrom/hostenum/internal/errors"
	"github.com/anstrom/hostenum/internal/logging"
	"github.com/anstrom/hostenum/internal/model"
	"github.com/anstrom/hostenum/internal/report"
)

var (
	parseGeneral  []string
	parseEvidence []string
	parseOutput   string
	parseFormat   string
)

// importSources maps the source names accepted by --evidence.
var importSources = map[string]model.Source{
	string(model.SourceGeneral):     model.SourceGeneral,
	string(model.SourceOSDetection): model.SourceOSDetection,
	string(model.SourceUDP):         model.SourceUDP,
	string(model.SourceSMB):         model.SourceSMB,
	string(model.SourceNetBIOS):     model.SourceNetBIOS,
	string(model.SourceLDAP):        model.SourceLDAP,
	string(model.SourceSNMP):        model.SourceSNMP,
	string(model.SourceImported):    model.SourceImported,
}

// parseCmd represents the parse command.
var parseCmd = &cobra.Command{
	Use:   "parse <address>",
	Short: "Build a report from saved tool output",
	Long: `Build a host record offline from tool output captured earlier, for example
by running nmap or enum4linux by hand. Every file becomes one piece of evidence
and goes through the same extraction rules as a live run.

--general files are treated as the general TCP scan. --evidence accepts
source=file, where source is one of general, os_detection, udp, smb, netbios,
ldap, snmp or imported; a bare file name is imported without a stage.`,
	Example: `  hostenum parse 10.0.0.5 --general nmap.txt
  hostenum parse 10.0.0.5 --general nmap.txt --evidence smb=enum4linux.txt -o host.md`,
	Args: cobra.ExactArgs(1),
	RunE: runParse,
}

func init() {
	rootCmd.AddCommand(parseCmd)

	parseCmd.Flags().StringArrayVar(&parseGeneral, "general", nil, "General scan output file (repeatable)")
	parseCmd.Flags().StringArrayVar(&parseEvidence, "evidence", nil, "Evidence file as source=file (repeatable)")
	parseCmd.Flags().StringVarP(&parseOutput, "output", "o", "", "Report file (default is standard output)")
	parseCmd.Flags().StringVar(&parseFormat, "format", "markdown", "Report format: markdown, json or yaml")
}

// evidenceArg is one file to import under a source.
type evidenceArg struct {
	source model.Source
	path   string
}

// parseEvidenceArg splits source=file. A value without a known source
// prefix is imported as a whole.
func parseEvidenceArg(arg string) (evidenceArg, error) {
	if name, path, ok := strings.Cut(arg, "="); ok {
		source, known := importSources[strings.ToLower(name)]
		if !known {
			return evidenceArg{}, fmt.Errorf("unknown evidence source %q", name)
		}
		if path == "" {
			return evidenceArg{}, fmt.Errorf("missing file for evidence source %q", name)
		}
		return evidenceArg{source: source, path: path}, nil
	}
	return evidenceArg{source: model.SourceImported, path: arg}, nil
}

// loadEvidence reads one saved output file.
func loadEvidence(arg evidenceArg) (model.Evidence, error) {
	// #nosec G304 - evidence files are chosen by the operator
	data, err := os.ReadFile(arg.path)
	if err != nil {
		return model.Evidence{}, fmt.Errorf("failed to read evidence file: %w", err)
	}
	capturedAt := time.Now()
	if info, err := os.Stat(arg.path); err == nil {
		capturedAt = info.ModTime()
	}
	return model.NewEvidence(arg.source, "import "+arg.path, string(data), capturedAt), nil
}

func collectEvidence() ([]model.Evidence, error) {
	args := make([]evidenceArg, 0, len(parseGeneral)+len(parseEvidence))
	for _, path := range parseGeneral {
		args = append(args, evidenceArg{source: model.SourceGeneral, path: path})
	}
	for _, raw := range parseEvidence {
		arg, err := parseEvidenceArg(raw)
		if err != nil {
			return nil, err
		}
		args = append(args, arg)
	}
	if len(args) == 0 {
		return nil, fmt.Errorf("no evidence given, use --general or --evidence")
	}

	evidence := make([]model.Evidence, 0, len(args))
	for _, arg := range args {
		ev, err := loadEvidence(arg)
		if err != nil {
			return nil, err
		}
		evidence = append(evidence, ev)
	}
	return evidence, nil
}

func runParse(cmd *cobra.Command, args []string) error {
	addr, err := netip.ParseAddr(args[0])
	if err != nil || !addr.Is4() {
		return errors.ErrInvalidTarget(args[0])
	}

	format, err := report.ParseFormat(parseFormat)
	if err != nil {
		return err
	}

	evidence, err := collectEvidence()
	if err != nil {
		return err
	}

	startedAt := time.Now()
	logger := logging.Default()
	orchestrator := enumeration.New(nil, nil, enumeration.WithLogger(logger))

	results := model.NewResultSet()
	results.Add(orchestrator.Import(addr, evidence))

	meta := report.Meta{
		RunID:      uuid.NewString(),
		Targets:    addr.String(),
		Profile:    "import",
		Version:    version,
		StartedAt:  startedAt,
		FinishedAt: time.Now(),
	}

	out := cmd.OutOrStdout()
	if parseOutput == "" {
		return report.Render(out, results, meta, format)
	}
	if err := report.WriteFile(parseOutput, results, meta, format); err != nil {
		return err
	}
	if err := report.Console(out, results); err != nil {
		return err
	}
	fmt.Fprintf(out, "\nReport written to %s\n", parseOutput)
	return nil
}
