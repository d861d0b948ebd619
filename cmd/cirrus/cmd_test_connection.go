package main

import (
	"github.com/spf13/cobra"
)

// testConnectionCmd represents the test-connection command
var testConnectionCmd = &cobra.Command{
	Use:   "test-connection <provider-id>",
	Short: "Validate a provider's credentials",
	Long: `Validate the provider's credentials with a lightweight liveness call.
No instances are enumerated and nothing is written.`,
	Example: `  cirrus test-connection aws-prod`,
	Args:    cobra.ExactArgs(1),
	RunE:    runTestConnection,
}

func init() {
	rootCmd.AddCommand(testConnectionCmd)
}

func runTestConnection(cmd *cobra.Command, args []string) error {
	a, err := newApp(cmd.Context())
	if err != nil {
		return err
	}
	defer a.Close()

	if err := a.engine.TestConnection(cmd.Context(), args[0]); err != nil {
		return err
	}
	cmd.Printf("%s: connection ok\n", args[0])
	return nil
}
