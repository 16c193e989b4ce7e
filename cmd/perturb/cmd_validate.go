package main

import (
	"fmt"
	"strings"
	"unicode/utf8"

	"github.com/spf13/cobra"

	"github.com/perbu/perturb/pkg/config"
)

func newValidateCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "validate <text>",
		Short: "Check that a text only uses runes of the alphabet",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			text := strings.Join(args, " ")

			alpha, err := config.BuildAlphabet(a.cfg)
			if err != nil {
				return err
			}
			if err := alpha.Validate(text); err != nil {
				return err
			}

			n := utf8.RuneCountInString(text)
			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "ok: %d runes", n)
			if n > alpha.MaxLength() {
				fmt.Fprintf(out, " (scorer sees the first %d)", alpha.MaxLength())
			}
			fmt.Fprintln(out)
			return nil
		},
	}
}
