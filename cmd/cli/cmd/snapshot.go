package cmd

import (
	"crmforge/pkg/api"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

var snapshotCmd = &cobra.Command{
	Use:   "snapshot",
	Short: "Manage environment snapshots",
	Long: `Capture, inspect, promote, and restore environment snapshots.

A snapshot records the injected record set of a dataset. One snapshot per
environment can be promoted to the golden image; resetting the environment
restores that image.`,
}

var snapshotCreateCmd = &cobra.Command{
	Use:   "create",
	Short: "Capture a snapshot of an injected dataset",
	Run: func(cmd *cobra.Command, args []string) {
		flags := cmd.Flags()
		name, _ := flags.GetString("name")
		owner, _ := flags.GetString("owner")
		env, _ := flags.GetString("env")
		datasetID, _ := flags.GetString("dataset")

		if name == "" {
			cmd.Println("Error: --name is required")
			return
		}
		if env == "" {
			cmd.Println("Error: --env is required")
			return
		}
		if datasetID == "" {
			cmd.Println("Error: --dataset is required")
			return
		}

		client := NewForgeClient(viper.GetString("api_url"))
		result, err := client.CreateSnapshot(api.CreateSnapshotRequest{
			Name:          name,
			OwnerID:       owner,
			EnvironmentID: env,
			DatasetID:     datasetID,
		})
		if err != nil {
			printClientError(cmd, err)
			return
		}

		cmd.Printf("✓ Snapshot capture enqueued!\nSnapshot ID: %s\nJob ID:      %s\n", result.SnapshotID, result.JobID)
	},
}

var snapshotGetCmd = &cobra.Command{
	Use:   "get [snapshot_id]",
	Short: "Get details of a snapshot",
	Args:  cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		client := NewForgeClient(viper.GetString("api_url"))
		snap, err := client.GetSnapshot(args[0])
		if err != nil {
			printClientError(cmd, err)
			return
		}

		icon := statusIcon(snap.Status)
		cmd.Printf("%s %sSnapshot Details%s\n", icon, colorBold, colorReset)
		cmd.Println("──────────────────────────────")
		cmd.Printf("%sID:%s          %s\n", colorDim, colorReset, snap.ID)
		cmd.Printf("%sName:%s        %s\n", colorDim, colorReset, snap.Name)
		cmd.Printf("%sEnvironment:%s %s\n", colorDim, colorReset, snap.EnvironmentID)
		cmd.Printf("%sStatus:%s      %s\n", colorDim, colorReset, colorizeStatus(snap.Status))
		if snap.IsGolden {
			cmd.Printf("%sGolden:%s      %syes%s\n", colorDim, colorReset, colorYellow, colorReset)
		}
		cmd.Printf("%sRecords:%s     %d\n", colorDim, colorReset, snap.RecordCount)
		cmd.Printf("%sCreated:%s     %s\n", colorDim, colorReset, formatTimeWithRelative(&snap.CreatedAt))
	},
}

var snapshotGoldenCmd = &cobra.Command{
	Use:   "golden [snapshot_id]",
	Short: "Promote a snapshot to its environment's golden image",
	Args:  cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		client := NewForgeClient(viper.GetString("api_url"))
		if err := client.SetGolden(args[0]); err != nil {
			printClientError(cmd, err)
			return
		}

		cmd.Printf("✓ Snapshot %s is now the golden image\n", args[0])
	},
}

var snapshotResetCmd = &cobra.Command{
	Use:   "reset [environment_id]",
	Short: "Restore an environment from its golden image",
	Long: `Enqueue a restore job that purges the environment's current records and
re-creates the golden image's record set. Pass --keep-current to skip the
purge and restore on top of what is already there.`,
	Args: cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		owner, _ := cmd.Flags().GetString("owner")
		keepCurrent, _ := cmd.Flags().GetBool("keep-current")

		client := NewForgeClient(viper.GetString("api_url"))
		result, err := client.ResetEnvironment(args[0], api.ResetEnvironmentRequest{
			OwnerID:     owner,
			KeepCurrent: keepCurrent,
		})
		if err != nil {
			printClientError(cmd, err)
			return
		}

		cmd.Printf("✓ Reset enqueued!\nSnapshot ID: %s\nJob ID:      %s\n", result.SnapshotID, result.JobID)
	},
}

func init() {
	flags := snapshotCreateCmd.Flags()
	flags.StringP("name", "n", "", "Name of the snapshot (required)")
	flags.String("owner", "", "Owner UUID recorded on the snapshot (optional)")
	flags.String("env", "", "Environment the snapshot belongs to (required)")
	flags.String("dataset", "", "Injected dataset to capture (required)")

	snapshotResetCmd.Flags().String("owner", "", "Owner UUID recorded on the restore job (optional)")
	snapshotResetCmd.Flags().Bool("keep-current", false, "Skip purging current records before restore")

	snapshotCmd.AddCommand(snapshotCreateCmd)
	snapshotCmd.AddCommand(snapshotGetCmd)
	snapshotCmd.AddCommand(snapshotGoldenCmd)
	snapshotCmd.AddCommand(snapshotResetCmd)
	rootCmd.AddCommand(snapshotCmd)
}
