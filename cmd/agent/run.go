package main

import (
	"encoding/json"
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"

	"github.com/nmslite/inventory-agent/internal/dispatch"
)

func newRunCmd(root *rootOptions) *cobra.Command {
	var inputPath string
	cmd := &cobra.Command{
		Use:   "run",
		Short: "Run tasks read as JSON from STDIN and write results to STDOUT",
		Long: `run reads a JSON array of task requests (or a single request object) from
STDIN, runs them in order, and writes the responses as JSON to STDOUT.
Logs go to stderr or the configured log file, never to STDOUT.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, logger, err := root.load(true)
			if err != nil {
				return err
			}
			d, err := newDispatcher(cfg, logger)
			if err != nil {
				return err
			}

			in := cmd.InOrStdin()
			if inputPath != "" {
				f, err := os.Open(inputPath)
				if err != nil {
					return fmt.Errorf("failed to open input: %w", err)
				}
				defer f.Close()
				in = f
			}
			return runTasks(cmd, d, in, cmd.OutOrStdout())
		},
	}
	cmd.Flags().StringVarP(&inputPath, "input", "i", "", "read requests from file instead of STDIN")
	return cmd
}

func runTasks(cmd *cobra.Command, d *dispatch.Dispatcher, in io.Reader, out io.Writer) error {
	input, err := io.ReadAll(in)
	if err != nil {
		return fmt.Errorf("failed to read input: %w", err)
	}
	reqs, batch, err := dispatch.DecodeRequests(input)
	if err != nil {
		return err
	}

	var result any
	if batch {
		result = d.DispatchBatch(contextOf(cmd), reqs)
	} else {
		result = d.Dispatch(contextOf(cmd), reqs[0])
	}

	if err := json.NewEncoder(out).Encode(result); err != nil {
		return fmt.Errorf("failed to write output: %w", err)
	}
	return nil
}
