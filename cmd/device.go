package main

import (
	"fmt"

	"github.com/spf13/cobra"
)

var deviceIDCmd = &cobra.Command{
	Use:   "device-id",
	Short: "Print the identifier this install sends with auth requests",
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := newApp()
		if err != nil {
			return err
		}
		defer a.Close()

		id, err := a.Device.GetOrCreateDeviceID(cmd.Context())
		if err != nil {
			return fmt.Errorf("failed to resolve device id: %w", err)
		}

		fmt.Println(id)
		return nil
	},
}

func init() {
	rootCmd.AddCommand(deviceIDCmd)
}
