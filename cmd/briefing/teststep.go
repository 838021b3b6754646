package main

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strconv"

	"github.com/spf13/cobra"

	"github.com/dusk-indust/briefing/internal/orchestrator"
)

func newTestStepCmd(flags *globalFlags) *cobra.Command {
	var (
		inputPath string
		configID  string
		force     bool
	)
	cmd := &cobra.Command{
		Use:   "test-step <step-number>",
		Short: "Run one pipeline step against an input context",
		Long: `Run a single step in isolation and print its JSON result. Steps are
1 select, 2 generate, 3 format, 4 output and 5 deliver. Results are cached
per user; --force bypasses the cache.

Examples:
  # Select articles from the last day
  echo '{"filter_date":"24h"}' | briefing test-step 1 --user u1 --input -

  # Format a generated report with formatting config fmt-1
  briefing test-step 3 --user u1 --config fmt-1 --input generated.json`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := requireUser(flags); err != nil {
				return err
			}
			step, err := strconv.Atoi(args[0])
			if err != nil {
				return fmt.Errorf("step number must be an integer, got %q", args[0])
			}
			input, err := readInput(cmd.InOrStdin(), inputPath)
			if err != nil {
				return err
			}

			ctx := cmd.Context()
			a, err := newApp(ctx, flags)
			if err != nil {
				return err
			}
			defer a.close()

			res, err := a.exec.TestStep(ctx, orchestrator.TestRequest{
				UserID:       flags.UserID,
				Step:         step,
				Input:        input,
				ConfigRef:    configID,
				ForceRefresh: force,
			})
			if err != nil {
				return err
			}
			if res.Cached {
				fmt.Fprintf(cmd.ErrOrStderr(), "cached (%s)\n", res.Hash)
			}
			var out bytes.Buffer
			if err := json.Indent(&out, res.Result, "", "  "); err != nil {
				out.Reset()
				out.Write(res.Result)
			}
			out.WriteByte('\n')
			_, err = cmd.OutOrStdout().Write(out.Bytes())
			return err
		},
	}
	cmd.Flags().StringVarP(&inputPath, "input", "i", "", "input context JSON file, - for stdin")
	cmd.Flags().StringVar(&configID, "config", "", "library record the step runs with")
	cmd.Flags().BoolVar(&force, "force", false, "bypass the step cache")
	return cmd
}

// readInput returns the raw input context; no path means an empty object.
func readInput(stdin io.Reader, path string) (json.RawMessage, error) {
	var (
		data []byte
		err  error
	)
	switch path {
	case "":
		return json.RawMessage("{}"), nil
	case "-":
		data, err = io.ReadAll(stdin)
	default:
		data, err = os.ReadFile(path)
	}
	if err != nil {
		return nil, fmt.Errorf("read input: %w", err)
	}
	if !json.Valid(data) {
		return nil, fmt.Errorf("input is not valid JSON")
	}
	return data, nil
}
