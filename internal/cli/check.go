package cli

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	signerr "github.com/a3tai/mcp-pdf-signer/internal/pdf/errors"
	"github.com/a3tai/mcp-pdf-signer/internal/pdf/fieldcheck"
	"github.com/a3tai/mcp-pdf-signer/internal/pdf/form"
)

func newCheckCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "check <field-type> <value>...",
		Short: "Validate and normalize values for a field type",
		Example: `  pdfsign check date 3/5/24
  pdfsign check phone "555.123.4567" "12"`,
		Args: cobra.MinimumNArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			t := form.FieldType(args[0])
			if !t.Valid() {
				return fmt.Errorf("unknown field type %q", args[0])
			}

			var rejected []string
			for _, raw := range args[1:] {
				normalized, err := fieldcheck.Validate(t, raw)
				if err != nil {
					fmt.Fprintf(cmd.OutOrStdout(), "%q\trejected: %s\n", raw, signerr.UserMessage(err))
					rejected = append(rejected, raw)
					continue
				}
				fmt.Fprintf(cmd.OutOrStdout(), "%q\t%s\n", raw, normalized)
			}
			if len(rejected) > 0 {
				return fmt.Errorf("%d value(s) rejected: %s", len(rejected), strings.Join(rejected, ", "))
			}
			return nil
		},
	}
}
