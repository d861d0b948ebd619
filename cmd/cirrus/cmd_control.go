package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/veldt-io/cirrus/syncer"
)

var resizeType string

// controlCmd groups the instance control actions.
var controlCmd = &cobra.Command{
	Use:   "control",
	Short: "Start, stop or resize an instance",
	Long: `Issue a control action against an instance's provider. Actions are
fire-and-confirm: the command returns once the provider accepts the
request and the next sync observes the terminal state.`,
}

var startCmd = &cobra.Command{
	Use:     "start <canonical-id>",
	Short:   "Start an instance",
	Example: `  cirrus control start aws-prod/i-0abc123`,
	Args:    cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return runControl(cmd, args[0], syncer.ActionStart)
	},
}

var stopCmd = &cobra.Command{
	Use:     "stop <canonical-id>",
	Short:   "Stop an instance",
	Example: `  cirrus control stop aws-prod/i-0abc123`,
	Args:    cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return runControl(cmd, args[0], syncer.ActionStop)
	},
}

var resizeCmd = &cobra.Command{
	Use:     "resize <canonical-id>",
	Short:   "Resize an instance to a new type",
	Example: `  cirrus control resize aws-prod/i-0abc123 --type t3.large`,
	Args:    cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return runControl(cmd, args[0], syncer.ActionResize)
	},
}

func init() {
	rootCmd.AddCommand(controlCmd)
	controlCmd.AddCommand(startCmd)
	controlCmd.AddCommand(stopCmd)
	controlCmd.AddCommand(resizeCmd)
	resizeCmd.Flags().StringVar(&resizeType, "type", "", "Target instance type (required)")
	_ = resizeCmd.MarkFlagRequired("type")
}

func runControl(cmd *cobra.Command, canonicalID string, action syncer.ControlAction) error {
	a, err := newApp(cmd.Context())
	if err != nil {
		return err
	}
	defer a.Close()

	if err := a.engine.ControlInstance(cmd.Context(), canonicalID, action, resizeType); err != nil {
		return fmt.Errorf("%s failed: %w", action, err)
	}
	cmd.Printf("%s: %s accepted\n", canonicalID, action)
	return nil
}
