package cmd

import (
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

var cancelCmd = &cobra.Command{
	Use:   "cancel [job_id]",
	Short: "Cancel a pending or processing job",
	Long: `Request cancellation of a job. Pending jobs stop immediately; processing
jobs stop at the next record boundary, leaving already-injected records in
place. Jobs that already finished cannot be cancelled.`,
	Args: cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		client := NewForgeClient(viper.GetString("api_url"))
		if err := client.CancelJob(args[0]); err != nil {
			printClientError(cmd, err)
			return
		}

		cmd.Printf("✓ Job %s cancelled\n", args[0])
	},
}

func init() {
	rootCmd.AddCommand(cancelCmd)
}
