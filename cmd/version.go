package cmd

import (
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/conneroisu/tessera/internal/version"
)

func newVersionCommand() *cobra.Command {
	var (
		format string
		short  bool
	)
	cmd := &cobra.Command{
		Use:   "version",
		Short: "Show version information",
		Long: `Display the version, commit, build time, Go version and platform.

Examples:
  tessera version                 # Multi-line summary
  tessera version --short         # Version only
  tessera version -f json         # JSON output`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			info := version.Get()
			out := cmd.OutOrStdout()
			switch format {
			case "text":
				if short {
					_, err := fmt.Fprintln(out, info.Short())
					return err
				}
				_, err := fmt.Fprint(out, info.String())
				return err
			case "json":
				encoder := json.NewEncoder(out)
				encoder.SetIndent("", "  ")
				return encoder.Encode(info)
			case "yaml":
				encoder := yaml.NewEncoder(out)
				defer encoder.Close()
				return encoder.Encode(info)
			default:
				return fmt.Errorf("unsupported format: %s (supported: text, json, yaml)", format)
			}
		},
	}
	cmd.Flags().StringVarP(&format, "format", "f", "text", "output format (text, json, yaml)")
	cmd.Flags().BoolVar(&short, "short", false, "show the short version only")
	return cmd
}
