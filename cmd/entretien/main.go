package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var cfgFile string

var rootCmd = &cobra.Command{
	Use:   "entretien",
	Short: "Entretien — Performance Review Backend",
	Long:  "Entretien is a self-hosted backend for running performance review cycles: org-chart imports, review cycles, and the employee/manager conversation workflow behind them.",
}

func init() {
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default: configs/entretien.yaml)")
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
