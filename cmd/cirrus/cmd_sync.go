package main

import (
	"errors"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/veldt-io/cirrus/syncer"
)

var syncAll bool

// syncCmd represents the sync command
var syncCmd = &cobra.Command{
	Use:   "sync [provider-id]",
	Short: "Run one sync for a provider (or all enabled providers)",
	Long: `Run one sync run: enumerate the provider's instances, diff the
snapshot against the local inventory and commit creates, updates and
retirements. A provider already mid-sync is rejected, not queued.`,
	Example: `  cirrus sync aws-prod          # Sync one provider
  cirrus sync --all             # Sync every enabled provider`,
	Args: cobra.MaximumNArgs(1),
	RunE: runSync,
}

func init() {
	rootCmd.AddCommand(syncCmd)
	syncCmd.Flags().BoolVar(&syncAll, "all", false, "Sync every enabled provider")
}

func runSync(cmd *cobra.Command, args []string) error {
	if !syncAll && len(args) == 0 {
		return fmt.Errorf("provider id required (or use --all)")
	}

	ctx := cmd.Context()
	a, err := newApp(ctx)
	if err != nil {
		return err
	}
	defer a.Close()

	if !syncAll {
		return syncOne(cmd, a, args[0])
	}

	providers, err := a.store.ListProviders(ctx)
	if err != nil {
		return err
	}

	var failed int
	for i := range providers {
		if !providers[i].Enabled {
			continue
		}
		if err := syncOne(cmd, a, providers[i].ID); err != nil {
			failed++
		}
	}
	if failed > 0 {
		return fmt.Errorf("%d provider sync(s) failed", failed)
	}
	return nil
}

func syncOne(cmd *cobra.Command, a *app, providerID string) error {
	result, err := a.engine.Run(cmd.Context(), providerID)
	if err != nil {
		if errors.Is(err, syncer.ErrSyncInProgress) {
			cmd.Printf("%s: sync already in progress\n", providerID)
			return err
		}
		cmd.Printf("%s: sync failed: %v\n", providerID, err)
		return err
	}

	cmd.Printf("%s: %s  observed=%d created=%d updated=%d unchanged=%d retired=%d failed=%d (%s)\n",
		providerID, result.Outcome, result.Observed, result.Created, result.Updated,
		result.Unchanged, result.Retired, len(result.Failed), result.Duration.Round(time.Millisecond))
	return nil
}
