package main

import (
	"context"
	"fmt"
	"strings"
	"time"

	"ferry-booking-client/internal/auth"

	"github.com/spf13/cobra"
)

var loginCmd = &cobra.Command{
	Use:   "login",
	Short: "Log in and replace the current session with a user session",
	RunE:  runLoginCommand,
}

var signupCmd = &cobra.Command{
	Use:   "signup",
	Short: "Create an account and switch to its user session",
	Long: `Registers a new account. Extra profile fields can be passed with
--field name=value and are sent as they are.`,
	RunE: runSignupCommand,
}

var logoutCmd = &cobra.Command{
	Use:   "logout",
	Short: "Drop the current session and start a fresh guest session",
	RunE:  runLogoutCommand,
}

var (
	loginName     string
	password      string
	signupEmail   string
	profileFields map[string]string
)

func init() {
	loginCmd.Flags().StringVar(&loginName, "login", "", "account login or email (required)")
	loginCmd.Flags().StringVar(&password, "password", "", "account password (required)")
	loginCmd.MarkFlagRequired("login")
	loginCmd.MarkFlagRequired("password")

	signupCmd.Flags().StringVar(&signupEmail, "email", "", "account email (required)")
	signupCmd.Flags().StringVar(&password, "password", "", "account password (required)")
	signupCmd.Flags().StringToStringVar(&profileFields, "field", nil, "additional profile field, name=value")
	signupCmd.MarkFlagRequired("email")
	signupCmd.MarkFlagRequired("password")

	rootCmd.AddCommand(loginCmd, signupCmd, logoutCmd)
}

func commandContext(cmd *cobra.Command) (context.Context, context.CancelFunc) {
	return context.WithTimeout(cmd.Context(), time.Duration(timeout)*time.Second)
}

func runLoginCommand(cmd *cobra.Command, args []string) error {
	a, err := newApp()
	if err != nil {
		return err
	}
	defer a.Close()

	ctx, cancel := commandContext(cmd)
	defer cancel()

	if _, err := a.Session.Login(ctx, loginName, password); err != nil {
		if auth.IsUnauthorized(err) {
			return fmt.Errorf("login rejected: invalid credentials")
		}
		return fmt.Errorf("login failed: %w", err)
	}

	fmt.Printf("✓ Logged in as %s\n", loginName)
	fmt.Printf("Session state: %s\n", a.Session.State())
	return nil
}

func runSignupCommand(cmd *cobra.Command, args []string) error {
	a, err := newApp()
	if err != nil {
		return err
	}
	defer a.Close()

	payload := auth.SignupPayload{}
	for name, value := range profileFields {
		payload[strings.TrimSpace(name)] = value
	}
	payload["email"] = signupEmail
	payload["password"] = password

	ctx, cancel := commandContext(cmd)
	defer cancel()

	if _, err := a.Session.Signup(ctx, payload); err != nil {
		return fmt.Errorf("signup failed: %w", err)
	}

	fmt.Printf("✓ Account created for %s\n", signupEmail)
	fmt.Printf("Session state: %s\n", a.Session.State())
	return nil
}

func runLogoutCommand(cmd *cobra.Command, args []string) error {
	a, err := newApp()
	if err != nil {
		return err
	}
	defer a.Close()

	ctx, cancel := commandContext(cmd)
	defer cancel()

	if _, err := a.Session.Logout(ctx); err != nil {
		return fmt.Errorf("logged out, but no guest session could be started: %w", err)
	}

	fmt.Println("✓ Logged out")
	fmt.Printf("Session state: %s\n", a.Session.State())
	return nil
}
