package main

import (
	"context"
	"fmt"
	"time"

	"ferry-booking-client/internal/auth"
	"ferry-booking-client/internal/session"

	"github.com/spf13/cobra"
)

var sessionCmd = &cobra.Command{
	Use:   "session",
	Short: "Inspect or bootstrap the stored session",
}

var sessionInitCmd = &cobra.Command{
	Use:   "init",
	Short: "Resume the stored session or start a guest session",
	Long: `Refreshes a stored token pair into a user session. Without one, or
when the refresh fails, a new guest session is created for this device.`,
	RunE: runSessionInit,
}

var sessionStatusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show the stored tokens without contacting the API",
	RunE:  runSessionStatus,
}

func init() {
	sessionCmd.AddCommand(sessionInitCmd, sessionStatusCmd)
	rootCmd.AddCommand(sessionCmd)
}

func runSessionInit(cmd *cobra.Command, args []string) error {
	a, err := newApp()
	if err != nil {
		return err
	}
	defer a.Close()

	ctx, cancel := context.WithTimeout(cmd.Context(), time.Duration(timeout)*time.Second)
	defer cancel()

	state := a.Session.InitializeAuth(ctx)
	fmt.Printf("Session state: %s\n", state)
	if state == session.StateUnknown {
		return fmt.Errorf("no session could be established: %w", a.Session.LastError())
	}
	return nil
}

func runSessionStatus(cmd *cobra.Command, args []string) error {
	a, err := newApp()
	if err != nil {
		return err
	}
	defer a.Close()

	ctx := cmd.Context()
	cred, err := a.Tokens.GetTokens(ctx)
	if err != nil {
		return err
	}

	fmt.Printf("API: %s\n", a.Client.BaseURL())
	fmt.Printf("Access token stored: %t\n", cred.HasAccess())
	fmt.Printf("Refresh token stored: %t\n", cred.HasRefresh())

	if !cred.HasAccess() {
		fmt.Println("No session on this device. Run 'ferry-client session init'.")
		return nil
	}

	info, err := auth.InspectAccessToken(cred.AccessToken)
	if err != nil {
		fmt.Println("Access token is opaque; details unavailable.")
		return nil
	}

	if info.Kind != "" {
		fmt.Printf("Session kind: %s\n", info.Kind)
	}
	if info.Subject != "" {
		fmt.Printf("Subject: %s\n", info.Subject)
	}
	if !info.ExpiresAt.IsZero() {
		status := "valid"
		if info.Expired(time.Now()) {
			status = "expired, will refresh on next request"
		}
		fmt.Printf("Access token expires: %s (%s)\n", info.ExpiresAt.Local().Format(time.RFC3339), status)
	}
	return nil
}
