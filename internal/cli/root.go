// Package cli implements pdfsign, the offline companion to the signing
// server: it fills and signs a template from a values file, checks single
// values against the field rules, and reports font fitting for a box.
package cli

import (
	"context"
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"github.com/a3tai/mcp-pdf-signer/internal/logging"
)

var (
	version = "dev"
	commit  = "unknown"
	date    = "unknown"
)

// SetVersion sets the version information displayed by --version
func SetVersion(v, c, d string) {
	version, commit, date = v, c, d
}

// NewRootCommand builds the pdfsign command tree writing results to out and
// logs to errOut
func NewRootCommand(out, errOut io.Writer) *cobra.Command {
	var verbose bool

	root := &cobra.Command{
		Use:           "pdfsign",
		Short:         "Fill and sign PDF templates offline",
		Long:          `pdfsign fills a signing template from a values file and writes the signed PDF, using the same validation and rendering as the signing server.`,
		Version:       version,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRun: func(cmd *cobra.Command, args []string) {
			level := "info"
			if verbose {
				level = "debug"
			}
			cmd.SetContext(logging.WithLogger(cmd.Context(), logging.New(errOut, level)))
		},
	}
	root.SetOut(out)
	root.SetErr(errOut)
	root.SetVersionTemplate(fmt.Sprintf("pdfsign %s\ncommit: %s\nbuilt: %s\n", version, commit, date))
	root.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "enable verbose logging")

	root.AddCommand(newComposeCmd())
	root.AddCommand(newCheckCmd())
	root.AddCommand(newFitCmd())
	return root
}

// Execute runs pdfsign with args
func Execute(ctx context.Context, args []string, out, errOut io.Writer) error {
	root := NewRootCommand(out, errOut)
	root.SetArgs(args)
	return root.ExecuteContext(ctx)
}
