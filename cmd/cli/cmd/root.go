package cmd

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

var cfgFile string

var rootCmd = &cobra.Command{
	Use:   "forgectl",
	Short: "Forgectl is a command line tool for the crmforge dataset platform",
	Long: `forgectl is the command-line interface for crmforge, a synthetic CRM
dataset platform.

crmforge generates realistic business datasets (accounts, contacts,
opportunities, tasks, events), injects them into a target CRM environment in
dependency order, and manages environment snapshots for repeatable demos and
tests.

Common workflows:

  Generate a dataset:
    forgectl generate --name "acme-demo" --accounts 10 --contacts 30

  Inject it once generation completes:
    forgectl inject <dataset-id>

  Check job progress:
    forgectl status <job-id>

  Snapshot an injected environment and promote it:
    forgectl snapshot create --name "baseline" --env sandbox-1 --dataset <dataset-id>
    forgectl snapshot golden <snapshot-id>

  Reset an environment to its golden image:
    forgectl snapshot reset sandbox-1

Configuration:
  Set the API endpoint via environment variable or a config file:
    CRMFORGE_API_URL    API endpoint (default: http://localhost:6161)`,
}

func Execute() error {
	return rootCmd.Execute()
}

func initConfig() {
	if cfgFile != "" {
		viper.SetConfigFile(cfgFile)
	} else {
		home, err := os.UserHomeDir()
		if err != nil {
			fmt.Println(err)
			os.Exit(1)
		}

		// Search config in home directory with name ".forgectl"
		viper.AddConfigPath(home)
		viper.SetConfigName(".forgectl")
		viper.SetConfigType("yaml")
	}

	// Read environment variables that match "CRMFORGE_VARNAME"
	viper.SetEnvPrefix("CRMFORGE")
	viper.AutomaticEnv()

	if err := viper.ReadInConfig(); err == nil {
		fmt.Println("Using config file:", viper.ConfigFileUsed())
	}
}

func init() {
	cobra.OnInitialize(initConfig)

	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default is $HOME/.forgectl.yaml)")

	rootCmd.PersistentFlags().String("url", "http://localhost:6161", "crmforge Controller URL")
	viper.BindPFlag("api_url", rootCmd.PersistentFlags().Lookup("url"))
}
