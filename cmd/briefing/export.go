package main

import (
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"

	"github.com/dusk-indust/briefing/internal/export"
)

const formatMermaid = "mermaid"

func newExportCmd(flags *globalFlags) *cobra.Command {
	var (
		format  string
		outPath string
	)
	cmd := &cobra.Command{
		Use:   "export <pipeline-id>",
		Short: "Export a pipeline and its step configs as a portable bundle",
		Long: `Export a pipeline as a JSON or YAML bundle, or draw it as a Mermaid
flowchart. Record ids and source ids are left out of the bundle.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := requireUser(flags); err != nil {
				return err
			}
			switch format {
			case export.FormatJSON, export.FormatYAML, formatMermaid:
			default:
				return fmt.Errorf("--format must be json, yaml or mermaid, got %q", format)
			}

			ctx := cmd.Context()
			a, err := newApp(ctx, flags)
			if err != nil {
				return err
			}
			defer a.close()

			b, err := export.Export(ctx, a.store, flags.UserID, args[0])
			if err != nil {
				return err
			}

			var w io.Writer = cmd.OutOrStdout()
			if outPath != "" {
				f, err := os.Create(outPath)
				if err != nil {
					return fmt.Errorf("create %s: %w", outPath, err)
				}
				defer f.Close()
				w = f
			}
			if format == formatMermaid {
				_, err = io.WriteString(w, export.GenerateMermaid(b))
				return err
			}
			return export.Encode(w, b, format)
		},
	}
	cmd.Flags().StringVarP(&format, "format", "f", export.FormatJSON, "json, yaml or mermaid")
	cmd.Flags().StringVarP(&outPath, "output", "o", "", "write to a file instead of stdout")
	return cmd
}

func newImportCmd(flags *globalFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "import <bundle-file>",
		Short: "Import a pipeline bundle for the user",
		Long: `Import a JSON or YAML bundle written by export. Fresh step configs and a
fresh pipeline are created, named with an " (Imported)" suffix, with the
schedule disabled. Use - to read the bundle from stdin.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := requireUser(flags); err != nil {
				return err
			}
			var (
				data []byte
				err  error
			)
			if args[0] == "-" {
				data, err = io.ReadAll(cmd.InOrStdin())
			} else {
				data, err = os.ReadFile(args[0])
			}
			if err != nil {
				return fmt.Errorf("read bundle: %w", err)
			}
			b, err := export.Decode(data, "")
			if err != nil {
				return err
			}

			ctx := cmd.Context()
			a, err := newApp(ctx, flags)
			if err != nil {
				return err
			}
			defer a.close()

			p, err := export.Import(ctx, a.store, flags.UserID, b)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Imported pipeline %s (%s)\n", p.Name, p.ID)
			return nil
		},
	}
}
