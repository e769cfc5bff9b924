package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"github.com/spf13/cobra/doc"
)

func newDocsCmd() *cobra.Command {
	var dir, format string
	cmd := &cobra.Command{
		Use:    "gen-docs",
		Short:  "Generate documentation for psplink",
		Hidden: true,
		Args:   cobra.NoArgs,
		// Docs need neither config nor logging.
		PersistentPreRunE: func(*cobra.Command, []string) error { return nil },
		RunE: func(cmd *cobra.Command, _ []string) error {
			if err := os.MkdirAll(dir, 0o755); err != nil {
				return fmt.Errorf("create output dir: %w", err)
			}
			root := cmd.Root()
			switch format {
			case "man":
				header := &doc.GenManHeader{
					Title:   "PSPLINK",
					Section: "1",
					Source:  "psplink " + version,
				}
				return doc.GenManTree(root, header, dir)
			case "markdown":
				return doc.GenMarkdownTree(root, dir)
			case "yaml":
				return doc.GenYamlTree(root, dir)
			default:
				return fmt.Errorf("unknown format %q (use man, markdown or yaml)", format)
			}
		},
	}
	cmd.Flags().StringVar(&dir, "dir", "docs", "output directory")
	cmd.Flags().StringVar(&format, "format", "man", "output format: man, markdown or yaml")
	return cmd
}
