package cmd

import (
	"fmt"
	"sort"
	"time"

	"crmforge/pkg/api"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

var statusCmd = &cobra.Command{
	Use:   "status [job_id]",
	Short: "Get status of a job",
	Long:  `Retrieve detailed status information for a job, including its current state (pending, processing, completed, failed, cancelled), progress, attempts, and timestamps.`,
	Args:  cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		client := NewForgeClient(viper.GetString("api_url"))
		job, err := client.GetJob(args[0])
		if err != nil {
			printClientError(cmd, err)
			return
		}

		printJobStatus(cmd, job)
	},
}

var datasetCmd = &cobra.Command{
	Use:   "dataset [dataset_id]",
	Short: "Get details of a dataset",
	Long:  `Retrieve a dataset's pipeline state and per-object record counts.`,
	Args:  cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		client := NewForgeClient(viper.GetString("api_url"))
		dataset, err := client.GetDataset(args[0])
		if err != nil {
			printClientError(cmd, err)
			return
		}

		printDataset(cmd, dataset)
	},
}

func printJobStatus(cmd *cobra.Command, job *api.JobResponse) {
	icon := statusIcon(job.Status)
	cmd.Printf("%s %sJob Details%s\n", icon, colorBold, colorReset)
	cmd.Println("──────────────────────────────")

	cmd.Printf("%sID:%s          %s\n", colorDim, colorReset, job.ID)
	cmd.Printf("%sType:%s        %s\n", colorDim, colorReset, job.Type)
	cmd.Printf("%sStatus:%s      %s\n", colorDim, colorReset, colorizeStatus(job.Status))
	cmd.Printf("%sAttempts:%s    %d/%d\n", colorDim, colorReset, job.Attempts, job.MaxAttempts)

	if job.Status == "processing" {
		cmd.Printf("%sProgress:%s    %d%%", colorDim, colorReset, job.Progress)
		if job.ProgressMessage != "" {
			cmd.Printf(" %s(%s)%s", colorDim, job.ProgressMessage, colorReset)
		}
		cmd.Println()
	}

	if job.ErrorMessage != nil {
		cmd.Printf("%sError:%s       %s%s%s\n", colorDim, colorReset, colorRed, *job.ErrorMessage, colorReset)
	}

	if job.DatasetID != nil {
		cmd.Printf("%sDataset:%s     %s\n", colorDim, colorReset, *job.DatasetID)
	}

	cmd.Printf("%sCreated:%s     %s\n", colorDim, colorReset, formatTimeWithRelative(&job.CreatedAt))
	if job.CompletedAt != nil {
		duration := job.CompletedAt.Sub(job.CreatedAt)
		cmd.Printf("%sFinished:%s    %s %s(%s)%s\n", colorDim, colorReset,
			formatTimeWithRelative(job.CompletedAt),
			colorCyan, formatDuration(duration), colorReset)
	}
}

func printDataset(cmd *cobra.Command, dataset *api.DatasetResponse) {
	icon := statusIcon(dataset.Status)
	cmd.Printf("%s %sDataset Details%s\n", icon, colorBold, colorReset)
	cmd.Println("──────────────────────────────")

	cmd.Printf("%sID:%s          %s\n", colorDim, colorReset, dataset.ID)
	cmd.Printf("%sName:%s        %s\n", colorDim, colorReset, dataset.Name)
	cmd.Printf("%sStatus:%s      %s\n", colorDim, colorReset, colorizeStatus(dataset.Status))
	if dataset.Scenario != "" {
		cmd.Printf("%sScenario:%s    %s\n", colorDim, colorReset, dataset.Scenario)
	}
	if dataset.EnvironmentID != "" {
		cmd.Printf("%sEnvironment:%s %s\n", colorDim, colorReset, dataset.EnvironmentID)
	}

	if len(dataset.RecordCounts) > 0 {
		cmd.Printf("%sRecords:%s\n", colorDim, colorReset)
		types := make([]string, 0, len(dataset.RecordCounts))
		for t := range dataset.RecordCounts {
			types = append(types, t)
		}
		sort.Strings(types)
		for _, t := range types {
			cmd.Printf("  %-14s %d\n", t+":", dataset.RecordCounts[t])
		}
	}

	cmd.Printf("%sCreated:%s     %s\n", colorDim, colorReset, formatTimeWithRelative(&dataset.CreatedAt))
	if dataset.CompletedAt != nil {
		cmd.Printf("%sCompleted:%s   %s\n", colorDim, colorReset, formatTimeWithRelative(dataset.CompletedAt))
	}
}

// ANSI color codes
const (
	colorReset  = "\033[0m"
	colorBold   = "\033[1m"
	colorDim    = "\033[2m"
	colorRed    = "\033[31m"
	colorGreen  = "\033[32m"
	colorYellow = "\033[33m"
	colorCyan   = "\033[36m"
)

func statusIcon(status string) string {
	switch status {
	case "completed", "ready":
		return colorGreen + "✓" + colorReset
	case "failed":
		return colorRed + "✗" + colorReset
	case "processing", "generating", "injecting", "creating", "restoring":
		return colorYellow + "⏳" + colorReset
	case "pending", "generated":
		return colorCyan + "◯" + colorReset
	default:
		return "•"
	}
}

func colorizeStatus(status string) string {
	icon := statusIcon(status)
	switch status {
	case "completed", "ready":
		return icon + " " + colorGreen + status + colorReset
	case "failed":
		return icon + " " + colorRed + status + colorReset
	case "processing", "generating", "injecting", "creating", "restoring":
		return icon + " " + colorYellow + status + colorReset
	case "pending", "generated", "cancelled":
		return icon + " " + colorCyan + status + colorReset
	default:
		return status
	}
}

func formatTimeWithRelative(t *time.Time) string {
	if t == nil {
		return "-"
	}
	relative := relativeTime(*t)
	return fmt.Sprintf("%s %s(%s ago)%s", t.Format("Mon, 02 Jan 2006 15:04:05 MST"), colorDim, relative, colorReset)
}

func relativeTime(t time.Time) string {
	duration := time.Since(t)

	if duration < time.Minute {
		return fmt.Sprintf("%ds", int(duration.Seconds()))
	} else if duration < time.Hour {
		return fmt.Sprintf("%dm", int(duration.Minutes()))
	} else if duration < 24*time.Hour {
		return fmt.Sprintf("%dh", int(duration.Hours()))
	} else {
		days := int(duration.Hours() / 24)
		if days == 1 {
			return "1 day"
		}
		return fmt.Sprintf("%d days", days)
	}
}

func formatDuration(d time.Duration) string {
	if d < time.Second {
		return fmt.Sprintf("%dms", d.Milliseconds())
	} else if d < time.Minute {
		return fmt.Sprintf("%.1fs", d.Seconds())
	} else if d < time.Hour {
		return fmt.Sprintf("%dm %ds", int(d.Minutes()), int(d.Seconds())%60)
	}
	return fmt.Sprintf("%dh %dm", int(d.Hours()), int(d.Minutes())%60)
}

func init() {
	rootCmd.AddCommand(statusCmd)
	rootCmd.AddCommand(datasetCmd)
}
