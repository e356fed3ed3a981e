// Package commands implements the serpent-cli commands.
package commands

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"github.com/use-agent/serpent/engine"
)

var cfgFile string

var rootCmd = &cobra.Command{
	Use:   "serpent-cli",
	Short: "Scrape search engine result pages with a headless browser",
	Long: `serpent-cli drives a headless Chrome through search engine result
pages and prints the results as JSON.

Options are read from a config file (JSON or YAML, using the same keys as
the API), SERPENT_* environment variables and flags, in increasing order
of precedence.

Examples:
  # Two pages of Google results for two keywords
  serpent-cli scrape -k "golang generics" -k "rust async" -p 2

  # Bing, keywords from a file, results written to disk
  serpent-cli scrape -e bing -f keywords.txt -o results.json`,
	SilenceUsage: true,
}

var enginesCmd = &cobra.Command{
	Use:   "engines",
	Short: "List the built-in search engines",
	Run: func(cmd *cobra.Command, args []string) {
		for _, n := range engine.Names() {
			fmt.Fprintln(cmd.OutOrStdout(), n)
		}
	},
}

func init() {
	cobra.OnInitialize(initConfig)
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default $HOME/.serpent.yaml)")
	rootCmd.AddCommand(enginesCmd)
}

// initConfig reads in config file and ENV variables if set.
func initConfig() {
	if cfgFile != "" {
		viper.SetConfigFile(cfgFile)
	} else {
		if home, err := os.UserHomeDir(); err == nil {
			viper.AddConfigPath(home)
		}
		viper.AddConfigPath(".")
		viper.SetConfigName(".serpent")
		viper.SetConfigType("yaml")
	}

	viper.SetEnvPrefix("SERPENT")
	viper.AutomaticEnv()

	if err := viper.ReadInConfig(); err == nil {
		fmt.Fprintln(os.Stderr, "Using config file:", viper.ConfigFileUsed())
	}
}

// Execute runs the root command.
func Execute() error {
	return rootCmd.Execute()
}
