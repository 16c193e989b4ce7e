package main

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/perbu/perturb/pkg/adversarial"
)

func newShowCmd(a *app) *cobra.Command {
	var (
		top       int
		threshold float64
		full      bool
	)

	cmd := &cobra.Command{
		Use:   "show <index.gob>",
		Short: "Inspect an index written by generate-adversarial",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			idx, err := adversarial.Load(args[0])
			if err != nil {
				return fmt.Errorf("loading index: %w", err)
			}
			a.logger.Debug("loaded index", "examples", len(idx.Examples), "model", idx.ModelInfo)

			out := cmd.OutOrStdout()
			stats := adversarial.Summarize(idx)
			fmt.Fprintln(out, titleStyle.Render("Program: "+idx.Rule))
			fmt.Fprintln(out, mutedStyle.Render(fmt.Sprintf("policy=%s, beam=%d, max_length=%d, scorer=%s",
				idx.Policy, idx.Beam, idx.MaxLength, idx.ModelInfo)))
			fmt.Fprintf(out, "Examples: %d, changed: %d, mean score: %.4f, max score: %.4f\n\n",
				stats.Examples, stats.Changed, stats.MeanScore, stats.MaxScore)

			results := adversarial.Top(idx, top, threshold)
			if len(results) == 0 {
				fmt.Fprintln(out, mutedStyle.Render("No results found"))
				return nil
			}
			for i, ex := range results {
				fmt.Fprintf(out, "Score: %.4f | %s\n", ex.Score, ex.Sample.ID())
				if full {
					fmt.Fprintf(out, "  - %s\n  + %s\n", ex.Original, ex.Perturbed)
					if i < len(results)-1 {
						fmt.Fprintln(out, mutedStyle.Render(strings.Repeat("-", 80)))
					}
				}
			}
			return nil
		},
	}

	cmd.Flags().IntVar(&top, "top", 10, "number of examples to show, 0 for all")
	cmd.Flags().Float64Var(&threshold, "threshold", 0, "minimum score")
	cmd.Flags().BoolVar(&full, "full", false, "show original and perturbed text")
	return cmd
}
