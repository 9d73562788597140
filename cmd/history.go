/*
Copyright © 2025 NAME HERE <EMAIL ADDRESS>
*/
package cmd

import (
	"fmt"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/azaurus1/fanet/internal/config"
	"github.com/azaurus1/fanet/internal/results"
)

// historyCmd represents the history command
var historyCmd = &cobra.Command{
	Use:   "history",
	Short: "List stored simulation runs",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := config.LoadConfig(cfgFile)
		if err != nil {
			return err
		}
		if cfg.Results.Path == "" {
			return fmt.Errorf("%w: results.path is not set", config.ErrInvalid)
		}

		store, err := results.Open(cfg.Results.Path)
		if err != nil {
			return err
		}
		defer store.Close()

		runs, err := store.List()
		if err != nil {
			return err
		}

		tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
		fmt.Fprintln(tw, "ID\tSTARTED\tPROTOCOL\tCHANNEL\tSTEPS\tGENERATED\tDELIVERED\tRATIO\tDELAY")
		for _, r := range runs {
			steps := fmt.Sprint(r.Steps)
			if r.Cancelled {
				steps += "*"
			}
			fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\t%d\t%d\t%.3f\t%.2f\n",
				r.ID, r.Started.Format("2006-01-02 15:04:05"), r.Protocol, r.ErrorModel,
				steps, r.Generated, r.Delivered, r.DeliveryRatio, r.MeanDelay)
		}
		return tw.Flush()
	},
}

func init() {
	rootCmd.AddCommand(historyCmd)
}
