package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

var Version = "dev"

func main() {
	v := viper.New()
	rootCmd := &cobra.Command{
		Use:           "regctl",
		Short:         "Operate on event registrations offline",
		Version:       Version,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			return loadConfig(v, cmd)
		},
	}

	flags := rootCmd.PersistentFlags()
	flags.String("config", "", "config file (default ./regctl.yaml)")
	flags.String("store", "bolt", "registration store: bolt or postgres")
	flags.String("bolt-path", "eventpay.db", "bolt database file")
	flags.String("database-url", "", "postgres connection string")
	flags.String("catalog", "", "catalog file (default built-in catalog)")

	rootCmd.AddCommand(replayCmd(v))
	rootCmd.AddCommand(catalogCmd(v))
	rootCmd.AddCommand(showCmd(v))
	rootCmd.AddCommand(outboxCmd(v))

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
