package main

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"

	"github.com/spf13/cobra"

	"github.com/perbu/perturb/pkg/config"
	"github.com/perbu/perturb/pkg/loader"
	"github.com/perbu/perturb/pkg/search"
)

func newSearchCmd(a *app) *cobra.Command {
	var (
		top       int
		policy    string
		asJSON    bool
		normalize bool
	)

	cmd := &cobra.Command{
		Use:   "search <text>",
		Short: "Find the highest-scoring perturbations of a text",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			text := strings.Join(args, " ")

			if top > 0 {
				a.cfg.Search.Beam = top
			}
			if policy != "" {
				a.cfg.Search.Policy = policy
			}

			engine, err := config.BuildEngine(a.cfg, a.logger)
			if err != nil {
				return err
			}
			if normalize {
				text = loader.Normalize(engine.Alphabet(), text)
			}

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt)
			defer stop()

			a.logger.Debug("searching", "text", text, "beam", a.cfg.Search.Beam, "policy", a.cfg.Search.Policy)
			results, err := engine.Search(ctx, text, a.cfg.Search.Beam)
			if err != nil && results == nil {
				return err
			}
			if err != nil {
				// interrupted: report what the finished rounds found
				a.logger.Warn("search interrupted", "error", err)
			}

			if asJSON {
				return writeJSON(cmd.OutOrStdout(), results)
			}
			writeResults(cmd.OutOrStdout(), results)
			return nil
		},
	}

	cmd.Flags().IntVarP(&top, "top", "k", 0, "beam width and number of results (default from config)")
	cmd.Flags().StringVar(&policy, "policy", "", "saliency aggregation: max or sum")
	cmd.Flags().BoolVar(&asJSON, "json", false, "print results as JSON")
	cmd.Flags().BoolVar(&normalize, "normalize", false, "lower-case and replace runes outside the alphabet first")
	return cmd
}

type jsonResult struct {
	Text  string  `json:"text"`
	Score float64 `json:"score"`
}

func writeJSON(w io.Writer, results []search.Result) error {
	out := make([]jsonResult, len(results))
	for i, r := range results {
		out[i] = jsonResult{Text: r.Text, Score: r.Score}
	}
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(out)
}

func writeResults(w io.Writer, results []search.Result) {
	if len(results) == 0 {
		fmt.Fprintln(w, mutedStyle.Render("No results found"))
		return
	}
	fmt.Fprintf(w, "%s\n\n", titleStyle.Render(fmt.Sprintf("Found %d results:", len(results))))
	for _, r := range results {
		fmt.Fprintf(w, "Score: %.4f | %s\n", r.Score, r.Text)
	}
}
