package cmd

import (
	"crmforge/pkg/api"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

var generateCmd = &cobra.Command{
	Use:   "generate",
	Short: "Create a dataset and enqueue its generation job",
	Long: `Create a new dataset definition and enqueue a generation job for it.
Record counts select how many of each object type to synthesize; contacts,
opportunities, tasks and events are attached to accounts automatically.

Example:
  forgectl generate --name "acme-demo" --accounts 10 --contacts 30 --opportunities 15
  forgectl generate --name "fast-deal" --accounts 2 --opportunities 4 --scenario fast_sales_cycle`,
	Run: func(cmd *cobra.Command, args []string) {
		flags := cmd.Flags()
		name, _ := flags.GetString("name")
		owner, _ := flags.GetString("owner")
		env, _ := flags.GetString("env")
		scenario, _ := flags.GetString("scenario")
		industry, _ := flags.GetString("industry")
		priority, _ := flags.GetInt("priority")
		accounts, _ := flags.GetInt("accounts")
		contacts, _ := flags.GetInt("contacts")
		opportunities, _ := flags.GetInt("opportunities")
		tasks, _ := flags.GetInt("tasks")
		events, _ := flags.GetInt("events")

		if name == "" {
			cmd.Println("Error: --name is required")
			return
		}
		if accounts <= 0 {
			cmd.Println("Error: --accounts must be at least 1; every other record type hangs off an account")
			return
		}

		counts := map[string]int{"Account": accounts}
		if contacts > 0 {
			counts["Contact"] = contacts
		}
		if opportunities > 0 {
			counts["Opportunity"] = opportunities
		}
		if tasks > 0 {
			counts["Task"] = tasks
		}
		if events > 0 {
			counts["Event"] = events
		}

		client := NewForgeClient(viper.GetString("api_url"))
		result, err := client.CreateDataset(api.CreateDatasetRequest{
			Name:          name,
			OwnerID:       owner,
			EnvironmentID: env,
			Scenario:      scenario,
			Industry:      industry,
			Counts:        counts,
			Priority:      priority,
		})
		if err != nil {
			printClientError(cmd, err)
			return
		}

		cmd.Printf("✓ Dataset created!\nDataset ID: %s\nJob ID:     %s\n", result.DatasetID, result.JobID)
		cmd.Printf("\nTrack generation with:\n  forgectl status %s\n", result.JobID)
	},
}

func printClientError(cmd *cobra.Command, err error) {
	if apiErr, ok := err.(*APIError); ok {
		cmd.Printf("Error (%d): %s\n", apiErr.StatusCode, apiErr.Message)
		return
	}
	cmd.Printf("Error: %v\n", err)
}

func init() {
	flags := generateCmd.Flags()
	flags.StringP("name", "n", "", "Name of the dataset (required)")
	flags.String("owner", "", "Owner UUID recorded on the dataset (optional)")
	flags.String("env", "", "Target environment identifier")
	flags.String("scenario", "", "Scenario template (e.g. fast_sales_cycle)")
	flags.String("industry", "", "Industry flavor for generated names")
	flags.Int("priority", 0, "Job priority (higher runs first)")
	flags.Int("accounts", 5, "Number of accounts to generate")
	flags.Int("contacts", 0, "Number of contacts to generate")
	flags.Int("opportunities", 0, "Number of opportunities to generate")
	flags.Int("tasks", 0, "Number of tasks to generate")
	flags.Int("events", 0, "Number of events to generate")

	rootCmd.AddCommand(generateCmd)
}
