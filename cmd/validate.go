/*
Copyright © 2025 NAME HERE <EMAIL ADDRESS>
*/
package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/azaurus1/fanet/internal/config"
)

// validateCmd represents the validate command
var validateCmd = &cobra.Command{
	Use:   "validate",
	Short: "Check a scenario config without running it",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := config.LoadConfig(cfgFile)
		if err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "%s: ok (%s, %d drones, %d steps, %s channel)\n",
			cfgFile, cfg.Routing.Protocol, cfg.Simulation.Drones, cfg.Simulation.Steps, cfg.Channel.ErrorModel)
		return nil
	},
}

func init() {
	rootCmd.AddCommand(validateCmd)
}
