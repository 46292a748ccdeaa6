package main

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"strings"

	"ferry-booking-client/internal/auth"
	"ferry-booking-client/internal/client"

	"github.com/spf13/cobra"
)

var callCmd = &cobra.Command{
	Use:   "call <METHOD> <path>",
	Short: "Send an authenticated request to the booking API",
	Long: `Sends one request through the session pipeline. The stored access
token is attached, and an expired token is refreshed and the request
replayed once.`,
	Example: `  ferry-client call GET /api/v1/me
  ferry-client call POST /api/v1/bookings --data '{"sailing":"PIR-HER-0730"}'`,
	Args: cobra.ExactArgs(2),
	RunE: runCallCommand,
}

var (
	callData    string
	callHeaders map[string]string
)

func init() {
	callCmd.Flags().StringVar(&callData, "data", "", "JSON request body")
	callCmd.Flags().StringToStringVarP(&callHeaders, "header", "H", nil, "extra request header, name=value")
	rootCmd.AddCommand(callCmd)
}

func runCallCommand(cmd *cobra.Command, args []string) error {
	req := &client.Request{
		Method:  strings.ToUpper(args[0]),
		Path:    args[1],
		Headers: callHeaders,
	}
	if callData != "" {
		if !json.Valid([]byte(callData)) {
			return fmt.Errorf("--data is not valid JSON")
		}
		req.Body = json.RawMessage(callData)
	}

	a, err := newApp()
	if err != nil {
		return err
	}
	defer a.Close()

	ctx, cancel := commandContext(cmd)
	defer cancel()

	resp, err := a.Client.Do(ctx, req)
	var apiErr *auth.APIError
	if err != nil && !errors.As(err, &apiErr) {
		return err
	}

	fmt.Fprintf(os.Stderr, "HTTP %d\n", resp.StatusCode)
	printBody(resp.Body)

	if apiErr != nil {
		if auth.IsUnauthorized(apiErr) {
			return fmt.Errorf("request unauthorized; run 'ferry-client session init' or log in")
		}
		return fmt.Errorf("request failed with HTTP %d", apiErr.StatusCode)
	}
	return nil
}

func printBody(body []byte) {
	if len(body) == 0 {
		return
	}

	var pretty bytes.Buffer
	if err := json.Indent(&pretty, body, "", "  "); err == nil {
		fmt.Println(pretty.String())
		return
	}
	fmt.Println(string(body))
}
