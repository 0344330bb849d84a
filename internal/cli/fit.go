package cli

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/a3tai/mcp-pdf-signer/internal/pdf/raster"
)

func newFitCmd() *cobra.Command {
	var (
		width, height float64
		family        string
		signature     bool
	)

	cmd := &cobra.Command{
		Use:   "fit <text>",
		Short: "Report the font size text is fitted to inside a box",
		Example: `  pdfsign fit "Jane Q. Roe" --width 200 --height 40 --signature
  pdfsign fit "ACME Holdings" --width 120 --height 18`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if width <= 0 || height <= 0 {
				return errors.New("--width and --height must be positive")
			}
			if family == "" {
				family = raster.TextFamily
				if signature {
					family = raster.DefaultSignatureFamily
				}
			}

			size, err := raster.New(raster.DefaultOptions()).FitSize(args[0], family, width, height)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%d\n", size)
			return nil
		},
	}

	cmd.Flags().Float64Var(&width, "width", 0, "box width in PDF points")
	cmd.Flags().Float64Var(&height, "height", 0, "box height in PDF points")
	cmd.Flags().StringVar(&family, "font", "", fmt.Sprintf("font family (%v)", raster.Families()))
	cmd.Flags().BoolVar(&signature, "signature", false, "use the default signature font")
	return cmd
}
