package cmd

import (
	"crmforge/pkg/api"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

var injectCmd = &cobra.Command{
	Use:   "inject [dataset_id]",
	Short: "Enqueue an injection job for a generated dataset",
	Long: `Enqueue an injection job that pushes a generated dataset into its target
environment. Records are created in dependency order, so parents always exist
before the records that reference them.`,
	Args: cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		datasetID := args[0]
		priority, _ := cmd.Flags().GetInt("priority")

		client := NewForgeClient(viper.GetString("api_url"))
		result, err := client.InjectDataset(datasetID, api.InjectDatasetRequest{Priority: priority})
		if err != nil {
			printClientError(cmd, err)
			return
		}

		cmd.Printf("✓ Injection enqueued!\nJob ID: %s\n", result.JobID)
		cmd.Printf("\nTrack injection with:\n  forgectl status %s\n", result.JobID)
	},
}

var cleanupCmd = &cobra.Command{
	Use:   "cleanup [dataset_id]",
	Short: "Delete a dataset's remote records and then the dataset",
	Long: `Enqueue a cleanup job that removes the dataset's injected records from the
target environment (children before parents) and then deletes the dataset.`,
	Args: cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		client := NewForgeClient(viper.GetString("api_url"))
		result, err := client.CleanupDataset(args[0])
		if err != nil {
			printClientError(cmd, err)
			return
		}

		cmd.Printf("✓ Cleanup enqueued!\nJob ID: %s\n", result.JobID)
	},
}

func init() {
	injectCmd.Flags().Int("priority", 0, "Job priority (higher runs first)")

	rootCmd.AddCommand(injectCmd)
	rootCmd.AddCommand(cleanupCmd)
}
