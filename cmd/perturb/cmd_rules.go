package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/perbu/perturb/pkg/config"
	"github.com/perbu/perturb/pkg/transform"
)

func newRulesCmd(a *app) *cobra.Command {
	var dump bool

	cmd := &cobra.Command{
		Use:   "rules",
		Short: "Print the rule program and its search rounds",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			out := cmd.OutOrStdout()
			if dump {
				data, err := a.cfg.Marshal()
				if err != nil {
					return err
				}
				_, err = out.Write(data)
				return err
			}

			alpha, err := config.BuildAlphabet(a.cfg)
			if err != nil {
				return err
			}
			rule, err := config.BuildProgram(a.cfg, alpha)
			if err != nil {
				return err
			}

			stages := transform.Stages(rule)
			fmt.Fprintf(out, "Program: %s\n", transform.Describe(rule))
			fmt.Fprintf(out, "Rounds:  %d\n", len(stages))
			for i, s := range stages {
				fmt.Fprintf(out, "  %d. %s\n", i+1, transform.Describe(s))
			}
			return nil
		},
	}

	cmd.Flags().BoolVar(&dump, "yaml", false, "print the effective configuration as YAML")
	return cmd
}
