package cmd

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/conneroisu/tessera/internal/config"
)

// exampleComponent is written by init --example.
const exampleComponent = `<template name="hello-card" observed="name">
  <article>
    <h2>Hello, {{name}}!</h2>
    <p x-show="count > 0">Clicked {{count}} times</p>
    <button @click="count++">Click me</button>
  </article>
  <script type="application/yaml">
    state:
      name: World
      count: 0
  </script>
  <style>
    :host { display: block; font-family: sans-serif; }
    button { padding: 0.25rem 0.75rem; }
  </style>
</template>
`

func newInitCommand(a *app) *cobra.Command {
	var example bool
	cmd := &cobra.Command{
		Use:     "init [directory]",
		Aliases: []string{"i"},
		Short:   "Write a default .tessera.yml",
		Long: `Write a .tessera.yml with the default configuration into the directory
(the working directory when omitted). An existing file is never overwritten.

Examples:
  tessera init                      # Configure the working directory
  tessera init site --example       # Also write components/hello-card.html`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			dir := "."
			if len(args) == 1 {
				dir = args[0]
			}
			return runInit(cmd, dir, example)
		},
	}
	cmd.Flags().BoolVarP(&example, "example", "e", false, "also write an example component")
	return cmd
}

func runInit(cmd *cobra.Command, dir string, example bool) error {
	cfg := config.Default()
	path := filepath.Join(dir, ".tessera.yml")
	if err := cfg.WriteFile(path); err != nil {
		return err
	}
	fmt.Fprintf(cmd.OutOrStdout(), "Wrote %s\n", path)

	if !example {
		return nil
	}
	componentsDir := filepath.Join(dir, cfg.Components.ScanPaths[0])
	if err := os.MkdirAll(componentsDir, 0o750); err != nil {
		return fmt.Errorf("failed to create %s: %w", componentsDir, err)
	}
	examplePath := filepath.Join(componentsDir, "hello-card.html")
	if _, err := os.Stat(examplePath); err == nil {
		return fmt.Errorf("%s already exists", examplePath)
	}
	if err := os.WriteFile(examplePath, []byte(exampleComponent), 0o600); err != nil {
		return fmt.Errorf("failed to write %s: %w", examplePath, err)
	}
	fmt.Fprintf(cmd.OutOrStdout(), "Wrote %s\n", examplePath)
	return nil
}
