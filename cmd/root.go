package cmd

import (
	"fmt"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/dp-IED/Marks-and-Spencer-Reduced-Predictor/cmd/analyze"
	catalogcmd "github.com/dp-IED/Marks-and-Spencer-Reduced-Predictor/cmd/catalog"
	"github.com/dp-IED/Marks-and-Spencer-Reduced-Predictor/cmd/serve"
	"github.com/dp-IED/Marks-and-Spencer-Reduced-Predictor/cmd/train"
	"github.com/dp-IED/Marks-and-Spencer-Reduced-Predictor/internal/conf"
)

// RootCommand creates and returns the root command
func RootCommand(settings *conf.Settings) *cobra.Command {
	rootCmd := &cobra.Command{
		Use:     "reduced-predictor",
		Short:   "Reduced Predictor CLI",
		Long:    "Identifies reduced-to-clear products from shelf videos and predicts upcoming reductions.",
		Version: settings.Version,
	}

	// Set up the global flags for the root command.
	if err := setupFlags(rootCmd, settings); err != nil {
		cobra.CheckErr(err)
	}

	subcommands := []*cobra.Command{
		serve.Command(settings),
		analyze.Command(settings),
		train.Command(settings),
		catalogcmd.Command(settings),
	}
	rootCmd.AddCommand(subcommands...)

	return rootCmd
}

// setupFlags defines flags that are global to the command line interface
func setupFlags(rootCmd *cobra.Command, settings *conf.Settings) error {
	rootCmd.PersistentFlags().BoolVarP(&settings.Debug, "debug", "d", viper.GetBool("debug"), "Enable debug output")
	rootCmd.PersistentFlags().StringVar(&settings.Catalog.Path, "catalog", viper.GetString("catalog.path"), "Path to the catalog snapshot file")
	rootCmd.PersistentFlags().StringVar(&settings.WebServer.Port, "port", viper.GetString("webserver.port"), "Port for the HTTP server")
	rootCmd.PersistentFlags().StringVar(&settings.Oracle.Endpoint, "oracle-endpoint", viper.GetString("oracle.endpoint"), "Base URL of the confirmation oracle")

	if err := viper.BindPFlags(rootCmd.PersistentFlags()); err != nil {
		return fmt.Errorf("error binding flags: %w", err)
	}

	return nil
}
