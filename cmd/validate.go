package cmd

import (
	"encoding/json"
	"fmt"
	"io"
	"sort"
	"strings"

	"github.com/spf13/cobra"

	"github.com/conneroisu/tessera/internal/config"
	"github.com/conneroisu/tessera/internal/registry"
)

type validateOptions struct {
	format string
	paths  []string
}

// ValidationReport is the outcome of tessera validate.
type ValidationReport struct {
	Valid          bool       `json:"valid"`
	Components     int        `json:"components"`
	Locations      int        `json:"locations"`
	Errors         []string   `json:"errors,omitempty"`
	Warnings       []string   `json:"warnings,omitempty"`
	CircularCycles [][]string `json:"circular_cycles,omitempty"`
}

func newValidateCommand(a *app) *cobra.Command {
	opts := &validateOptions{}
	cmd := &cobra.Command{
		Use:     "validate",
		Aliases: []string{"v"},
		Short:   "Validate the configuration and component definitions",
		Long: `Validate the configuration, then scan every component definition and report:

- definitions that fail to parse or compile
- duplicate or invalid component names
- circular component dependencies
- custom elements used in markup that are not registered

Examples:
  tessera validate                  # Validate everything
  tessera validate -f json          # Output the report as JSON
  tessera validate -p extra/        # Include another directory`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.runValidate(cmd, opts)
		},
	}
	cmd.Flags().StringVarP(&opts.format, "format", "f", "text", "output format (text, json)")
	addPathFlag(cmd.Flags(), &opts.paths)
	return cmd
}

func (a *app) runValidate(cmd *cobra.Command, opts *validateOptions) error {
	if opts.format != "text" && opts.format != "json" {
		return fmt.Errorf("unsupported format: %s (supported: text, json)", opts.format)
	}

	cfg, logger, err := a.setup(cmd)
	if err != nil {
		return err
	}

	report := &ValidationReport{}
	details := config.ValidateConfigWithDetails(cfg)
	for _, w := range details.Warnings {
		report.Warnings = append(report.Warnings, "config: "+w.Error())
	}

	reg, res := loadRegistry(cmd.Context(), cfg, logger, opts.paths)
	report.Components = reg.Count()
	report.Locations = len(res.Locations)
	for _, scanErr := range res.Errors {
		report.Errors = append(report.Errors, scanErr.Error())
	}
	report.CircularCycles = reg.DetectCircularDependencies()
	report.Warnings = append(report.Warnings, unregisteredDependencies(reg)...)
	report.Valid = len(report.Errors) == 0 && len(report.CircularCycles) == 0

	out := cmd.OutOrStdout()
	if opts.format == "json" {
		encoder := json.NewEncoder(out)
		encoder.SetIndent("", "  ")
		if err := encoder.Encode(report); err != nil {
			return err
		}
	} else {
		writeReport(out, report)
	}

	if !report.Valid {
		return fmt.Errorf("validation failed: %d error(s), %d circular dependency cycle(s)",
			len(report.Errors), len(report.CircularCycles))
	}
	return nil
}

// unregisteredDependencies warns about custom elements a definition uses
// that no definition declares. They render as written.
func unregisteredDependencies(reg *registry.ComponentRegistry) []string {
	var warnings []string
	for _, name := range reg.Names() {
		entry, ok := reg.Entry(name)
		if !ok {
			continue
		}
		for _, dep := range entry.Dependencies {
			if _, found := reg.Get(dep); !found {
				warnings = append(warnings, fmt.Sprintf("%s: uses <%s>, which is not registered", name, dep))
			}
		}
	}
	sort.Strings(warnings)
	return warnings
}

func writeReport(out io.Writer, report *ValidationReport) {
	fmt.Fprintf(out, "Scanned %d location(s), %d component(s)\n", report.Locations, report.Components)
	for _, e := range report.Errors {
		fmt.Fprintf(out, "  ✗ %s\n", e)
	}
	for _, cycle := range report.CircularCycles {
		fmt.Fprintf(out, "  ✗ circular dependency: %s\n", strings.Join(cycle, " -> "))
	}
	for _, w := range report.Warnings {
		fmt.Fprintf(out, "  ⚠ %s\n", w)
	}
	if report.Valid {
		fmt.Fprintln(out, "✓ All components are valid")
	}
}
