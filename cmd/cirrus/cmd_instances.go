package main

import (
	"fmt"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/veldt-io/cirrus/types"
)

var (
	instancesProvider    string
	instancesShowRetired bool
	instancesStats       bool
)

// instancesCmd represents the instances command
var instancesCmd = &cobra.Command{
	Use:   "instances",
	Short: "List the local instance inventory",
	Long: `List the canonical instance inventory from the local store. Retired
instances are hidden unless --retired is given; --stats prints count and
cost aggregates instead of rows.`,
	Example: `  cirrus instances --provider aws-prod
  cirrus instances --provider aws-prod --retired
  cirrus instances --provider aws-prod --stats`,
	RunE: runInstances,
}

func init() {
	rootCmd.AddCommand(instancesCmd)
	instancesCmd.Flags().StringVar(&instancesProvider, "provider", "", "Provider id (required)")
	instancesCmd.Flags().BoolVar(&instancesShowRetired, "retired", false, "Include retired instances")
	instancesCmd.Flags().BoolVar(&instancesStats, "stats", false, "Print aggregates instead of rows")
	_ = instancesCmd.MarkFlagRequired("provider")
}

func runInstances(cmd *cobra.Command, _ []string) error {
	a, err := newApp(cmd.Context())
	if err != nil {
		return err
	}
	defer a.Close()

	instances, err := a.store.ListInstances(cmd.Context(), instancesProvider)
	if err != nil {
		return err
	}

	if instancesStats {
		printStats(cmd, instances)
		return nil
	}

	w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "ID\tNAME\tSTATUS\tTYPE\tREGION\tMONTHLY USD")
	for i := range instances {
		inst := &instances[i]
		if inst.Retired() && !instancesShowRetired {
			continue
		}
		fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\t%.2f\n",
			inst.ID, inst.Name, inst.Status, inst.InstanceType, inst.Region, inst.MonthlyCostUSD)
	}
	return w.Flush()
}

func printStats(cmd *cobra.Command, instances []types.Instance) {
	stats := types.ComputeStats(instances)
	cmd.Printf("total: %d  running: %d  stopped: %d  retired: %d\n",
		stats.Total, stats.Running, stats.Stopped, stats.Retired)
	cmd.Printf("monthly cost (live instances): $%.2f\n", stats.MonthlyCostUSD)
	for region, count := range stats.ByRegion {
		cmd.Printf("  %s: %d\n", region, count)
	}
}
