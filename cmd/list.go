package cmd

import (
	"encoding/json"
	"fmt"
	"io"
	"strings"
	"text/tabwriter"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/conneroisu/tessera/internal/registry"
	"github.com/conneroisu/tessera/internal/server"
)

type listOptions struct {
	format   string
	withDeps bool
	paths    []string
}

// componentRow is one line of list output.
type componentRow struct {
	Name            string   `json:"name" yaml:"name"`
	DisplayName     string   `json:"display_name" yaml:"display_name"`
	Role            string   `json:"role,omitempty" yaml:"role,omitempty"`
	Observed        []string `json:"observed,omitempty" yaml:"observed,omitempty"`
	ObservesContent bool     `json:"observes_content,omitempty" yaml:"observes_content,omitempty"`
	Source          string   `json:"source" yaml:"source"`
	Dependencies    []string `json:"dependencies,omitempty" yaml:"dependencies,omitempty"`
}

func newListCommand(a *app) *cobra.Command {
	opts := &listOptions{}
	cmd := &cobra.Command{
		Use:     "list",
		Aliases: []string{"l", "ls"},
		Short:   "List all discovered components",
		Long: `List the components declared in the configured scan paths and remote
locations, sorted by name.

Examples:
  tessera list                    # Table output
  tessera list -f json            # JSON output
  tessera list -d -f yaml         # Include dependencies, YAML output`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.runList(cmd, opts)
		},
	}
	cmd.Flags().StringVarP(&opts.format, "format", "f", "table", "output format (table, json, yaml)")
	cmd.Flags().BoolVarP(&opts.withDeps, "with-deps", "d", false, "include component dependencies")
	addPathFlag(cmd.Flags(), &opts.paths)
	return cmd
}

func (a *app) runList(cmd *cobra.Command, opts *listOptions) error {
	format := strings.ToLower(opts.format)
	switch format {
	case "table", "json", "yaml":
	default:
		return fmt.Errorf("unsupported format: %s (supported: table, json, yaml)", opts.format)
	}

	cfg, logger, err := a.setup(cmd)
	if err != nil {
		return err
	}
	reg, _ := loadRegistry(cmd.Context(), cfg, logger, opts.paths)
	rows := componentRows(reg, opts.withDeps)

	out := cmd.OutOrStdout()
	switch format {
	case "json":
		encoder := json.NewEncoder(out)
		encoder.SetIndent("", "  ")
		return encoder.Encode(rows)
	case "yaml":
		encoder := yaml.NewEncoder(out)
		encoder.SetIndent(2)
		defer encoder.Close()
		return encoder.Encode(rows)
	default:
		return writeTable(out, rows, opts.withDeps)
	}
}

func componentRows(reg *registry.ComponentRegistry, withDeps bool) []componentRow {
	defs := reg.GetAll()
	rows := make([]componentRow, 0, len(defs))
	for _, def := range defs {
		row := componentRow{
			Name:            def.Name,
			DisplayName:     server.DisplayName(def.Name),
			Role:            string(def.Role),
			Observed:        def.Observed,
			ObservesContent: def.ObservesContent,
			Source:          def.Source,
		}
		if withDeps {
			if entry, ok := reg.Entry(def.Name); ok {
				row.Dependencies = entry.Dependencies
			}
		}
		rows = append(rows, row)
	}
	return rows
}

func writeTable(out io.Writer, rows []componentRow, withDeps bool) error {
	if len(rows) == 0 {
		_, err := fmt.Fprintln(out, "No components found.")
		return err
	}

	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	header := "NAME\tDISPLAY NAME\tROLE\tOBSERVES\tSOURCE"
	if withDeps {
		header += "\tDEPENDENCIES"
	}
	fmt.Fprintln(w, header)

	for _, row := range rows {
		observes := strings.Join(row.Observed, ",")
		if row.ObservesContent {
			observes = strings.TrimPrefix(observes+",content", ",")
		}
		line := fmt.Sprintf("%s\t%s\t%s\t%s\t%s", row.Name, row.DisplayName, dash(row.Role), dash(observes), row.Source)
		if withDeps {
			line += "\t" + dash(strings.Join(row.Dependencies, ","))
		}
		fmt.Fprintln(w, line)
	}
	fmt.Fprintf(w, "\nTotal: %d components\n", len(rows))
	return w.Flush()
}

func dash(s string) string {
	if s == "" {
		return "-"
	}
	return s
}
