package main

import (
	"fmt"

	"github.com/spf13/cobra"
)

var userCmd = &cobra.Command{
	Use:   "user",
	Short: "Administrative user operations",
}

var userBanCmd = &cobra.Command{
	Use:   "ban <user-id>",
	Short: "Deactivate an account; outstanding tokens stop resolving",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return setActive(cmd, args[0], false)
	},
}

var userUnbanCmd = &cobra.Command{
	Use:   "unban <user-id>",
	Short: "Reactivate an account",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return setActive(cmd, args[0], true)
	},
}

func init() {
	userCmd.AddCommand(userBanCmd, userUnbanCmd)
}

func setActive(cmd *cobra.Command, userID string, active bool) error {
	a, err := newApp()
	if err != nil {
		return err
	}
	defer a.close()

	if err := a.accounts.SetActive(cmd.Context(), userID, active); err != nil {
		return fmt.Errorf("set active: %w", err)
	}
	fmt.Fprintf(cmd.OutOrStdout(), "user %s active=%t\n", userID, active)
	return nil
}
