package targets

import (
	"bufio"
	"fmt"
	"io"
	"strings"
)

// Confirm asks the operator to approve sending DNS queries for spec to
// server. Empty input, "n", "no" and end of input decline.
func Confirm(in io.Reader, out io.Writer, spec, server string) bool {
	fmt.Fprintln(out, strings.Repeat("=", 60))
	fmt.Fprintln(out, "DNS SAFETY CHECK")
	fmt.Fprintln(out, strings.Repeat("=", 60))
	fmt.Fprintf(out, "Targets:    %s\n", spec)
	fmt.Fprintf(out, "DNS server: %s\n", server)
	fmt.Fprintln(out, "Resolving these names sends queries to the server above.")
	fmt.Fprintln(out, "Make sure it belongs to the environment you are authorised to test.")

	scanner := bufio.NewScanner(in)
	for {
		fmt.Fprint(out, "Proceed with DNS resolution? [y/N]: ")
		if !scanner.Scan() {
			fmt.Fprintln(out)
			return false
		}
		switch strings.ToLower(strings.TrimSpace(scanner.Text())) {
		case "y", "yes":
			return true
		case "", "n", "no":
			return false
		default:
			fmt.Fprintln(out, "Please answer 'y' or 'n'.")
		}
	}
}
