package cmd

import (
	"fmt"
	"io"
	"os"
	"sort"

	"github.com/spf13/cobra"

	"github.com/conneroisu/tessera/internal/component"
	"github.com/conneroisu/tessera/internal/renderer"
	"github.com/conneroisu/tessera/internal/style"
)

type renderOptions struct {
	component string
	attrs     map[string]string
	content   string
	fragment  bool
	strict    bool
	paths     []string
}

func newRenderCommand(a *app) *cobra.Command {
	opts := &renderOptions{}
	cmd := &cobra.Command{
		Use:     "render [file]",
		Aliases: []string{"r"},
		Short:   "Render a page with its components upgraded",
		Long: `Render a page or fragment, upgrading every registered custom element to
declarative shadow DOM. The page is read from the file argument, or from
stdin when the argument is "-" or missing. Input starting with a doctype or
<html> is rendered as a full document.

Examples:
  tessera render index.html                      # Render a page
  echo '<user-card name="Ada"></user-card>' | tessera render
  tessera render -c user-card -a name=Ada        # Render one component
  tessera render page.html --style scoped        # Scope styles instead of shadow roots
  tessera render page.html --strict              # Fail when a component fails`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.runRender(cmd, args, opts)
		},
	}

	flags := cmd.Flags()
	flags.StringVarP(&opts.component, "component", "c", "", "render a single registered component")
	flags.StringToStringVarP(&opts.attrs, "attr", "a", nil, "host attribute for --component (key=value)")
	flags.StringVar(&opts.content, "content", "", "light content for --component")
	flags.BoolVar(&opts.fragment, "fragment", false, "treat the input as a fragment even if it looks like a document")
	flags.BoolVar(&opts.strict, "strict", false, "exit with an error when any component fails")
	addPathFlag(flags, &opts.paths)
	flags.String("style", "", "style scoping (shadow, scoped)")
	flags.Int("max-depth", 0, "maximum component nesting depth")
	_ = a.v.BindPFlag("render.style", flags.Lookup("style"))
	_ = a.v.BindPFlag("render.max_depth", flags.Lookup("max-depth"))
	return cmd
}

func (a *app) runRender(cmd *cobra.Command, args []string, opts *renderOptions) error {
	cfg, logger, err := a.setup(cmd)
	if err != nil {
		return err
	}
	ctx := cmd.Context()

	reg, _ := loadRegistry(ctx, cfg, logger, opts.paths)
	r := renderer.NewComponentRenderer(reg, logger, renderer.Options{
		MaxDepth: cfg.Render.MaxDepth,
		Mode:     style.Mode(cfg.Render.Style),
		ComponentOptions: []component.Option{
			component.WithLogger(logger),
			component.WithMaxRenderDepth(cfg.Render.MaxRenderDepth),
		},
	})

	var page *renderer.Page
	switch {
	case opts.component != "":
		page, err = r.RenderComponent(ctx, opts.component, opts.attrs, opts.content)
	default:
		markup, readErr := readInput(cmd, args)
		if readErr != nil {
			return readErr
		}
		if opts.fragment {
			page, err = r.RenderFragment(ctx, markup)
		} else {
			page, err = r.Render(ctx, markup)
		}
	}
	if err != nil {
		return err
	}

	if _, err := io.WriteString(cmd.OutOrStdout(), page.HTML); err != nil {
		return err
	}
	fmt.Fprintln(cmd.OutOrStdout())

	failed := page.Failed()
	for _, u := range failed {
		logger.Warn(ctx, u.Err, "component failed to render", "component", u.Name, "depth", u.Depth)
	}
	for _, entry := range page.Errors.Entries() {
		logger.Debug(ctx, "render diagnostic", "severity", entry.Severity.String(), "error", entry.Err.Error())
	}
	if opts.strict && len(failed) > 0 {
		names := make([]string, 0, len(failed))
		for _, u := range failed {
			names = append(names, u.Name)
		}
		sort.Strings(names)
		return fmt.Errorf("%d component(s) failed to render: %v", len(failed), names)
	}
	return nil
}

func readInput(cmd *cobra.Command, args []string) (string, error) {
	var (
		data []byte
		err  error
	)
	if len(args) == 0 || args[0] == "-" {
		data, err = io.ReadAll(cmd.InOrStdin())
	} else {
		data, err = os.ReadFile(args[0])
	}
	if err != nil {
		return "", fmt.Errorf("failed to read input: %w", err)
	}
	return string(data), nil
}
