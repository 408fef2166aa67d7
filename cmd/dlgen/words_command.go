package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"dlgen/internal/assets"
)

func newWordsCommand() *cobra.Command {
	return &cobra.Command{
		Use:         "words <amount>",
		Short:       "Spell out a peso amount the way letters render it",
		Args:        cobra.ExactArgs(1),
		Annotations: map[string]string{"skipConfigLoad": "true"},
		RunE: func(cmd *cobra.Command, args []string) error {
			spelled := assets.AmountToWords(args[0])
			if spelled == assets.ErrorConvertingAmount {
				return fmt.Errorf("cannot parse amount %q", args[0])
			}
			out := cmd.OutOrStdout()
			fmt.Fprintln(out, spelled)
			if v, ok := assets.ParseAmount(args[0]); ok {
				fmt.Fprintln(out, assets.FormatAmount(v))
			}
			return nil
		},
	}
}
