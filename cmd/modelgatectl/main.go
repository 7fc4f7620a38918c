// Package main is the entry point for modelgatectl, the operator CLI for a
// running gateway. It issues tokens, sends completions, and manages prompt
// templates over the HTTP API.
package main

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"

	"github.com/modelgate/modelgate/pkg/auth"
	"github.com/modelgate/modelgate/pkg/domain"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	rootCmd := &cobra.Command{
		Use:           "modelgatectl",
		Short:         "Operator CLI for the modelgate gateway",
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	rootCmd.PersistentFlags().String("url", envOr("MODELGATE_URL", "http://localhost:8080"), "Gateway base URL")
	rootCmd.PersistentFlags().String("token", os.Getenv("MODELGATE_TOKEN"), "Bearer token for authenticated endpoints")

	rootCmd.AddCommand(
		newTokenCmd(),
		newAskCmd(),
		newPromptsCmd(),
	)
	return rootCmd
}

func envOr(key, fallback string) string {
	if val := os.Getenv(key); val != "" {
		return val
	}
	return fallback
}

// newTokenCmd signs a token locally with the shared key, no gateway needed.
func newTokenCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "token <subject>",
		Short: "Sign an access token locally using MODELGATE_SIGNING_KEY",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			_ = godotenv.Load()

			key := os.Getenv("MODELGATE_SIGNING_KEY")
			if key == "" {
				return fmt.Errorf("MODELGATE_SIGNING_KEY is not set")
			}
			ttl, err := cmd.Flags().GetDuration("ttl")
			if err != nil {
				return err
			}

			token, err := auth.NewTokenManager(key, ttl).Issue(args[0], ttl)
			if err != nil {
				return err
			}
			fmt.Println(token)
			return nil
		},
	}
	cmd.Flags().Duration("ttl", time.Hour, "Token lifetime")
	return cmd
}

func newAskCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "ask",
		Short: "Send a completion request to the gateway",
		RunE: func(cmd *cobra.Command, _ []string) error {
			promptName, _ := cmd.Flags().GetString("prompt")
			promptText, _ := cmd.Flags().GetString("text")
			model, _ := cmd.Flags().GetString("model")
			data, _ := cmd.Flags().GetStringToString("data")

			req := domain.AskRequest{
				PromptName: promptName,
				PromptText: promptText,
				Data:       data,
				Model:      model,
			}

			var resp domain.AskResponse
			if err := call(cmd, http.MethodPost, "/v1/ask", req, &resp); err != nil {
				return err
			}
			return printJSON(resp)
		},
	}
	cmd.Flags().String("prompt", "", "Registered template name")
	cmd.Flags().String("text", "", "Literal prompt text")
	cmd.Flags().String("model", "", "Model override")
	cmd.Flags().StringToString("data", nil, "Template variables (key=value)")
	return cmd
}

func newPromptsCmd() *cobra.Command {
	promptsCmd := &cobra.Command{
		Use:   "prompts",
		Short: "Manage prompt templates on a running gateway",
	}

	listCmd := &cobra.Command{
		Use:   "list",
		Short: "List registered templates",
		RunE: func(cmd *cobra.Command, _ []string) error {
			var resp map[string]any
			if err := call(cmd, http.MethodGet, "/v1/prompts", nil, &resp); err != nil {
				return err
			}
			return printJSON(resp)
		},
	}

	addCmd := &cobra.Command{
		Use:   "add <name>",
		Short: "Register a template",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			body, _ := cmd.Flags().GetString("body")
			description, _ := cmd.Flags().GetString("description")
			if body == "" {
				return fmt.Errorf("--body is required")
			}

			payload := map[string]string{
				"name":        args[0],
				"body":        body,
				"description": description,
			}
			var resp map[string]any
			if err := call(cmd, http.MethodPost, "/v1/prompts", payload, &resp); err != nil {
				return err
			}
			return printJSON(resp)
		},
	}
	addCmd.Flags().String("body", "", "Template body with {placeholder} variables")
	addCmd.Flags().String("description", "", "Template description")

	removeCmd := &cobra.Command{
		Use:   "remove <name>",
		Short: "Remove a user template",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return call(cmd, http.MethodDelete, "/v1/prompts/"+args[0], nil, nil)
		},
	}

	promptsCmd.AddCommand(listCmd, addCmd, removeCmd)
	return promptsCmd
}

// call performs one authenticated request against the gateway API.
func call(cmd *cobra.Command, method, path string, payload, result any) error {
	baseURL, err := cmd.Flags().GetString("url")
	if err != nil {
		return err
	}
	token, err := cmd.Flags().GetString("token")
	if err != nil {
		return err
	}

	var body io.Reader
	if payload != nil {
		encoded, err := json.Marshal(payload)
		if err != nil {
			return err
		}
		body = bytes.NewReader(encoded)
	}

	ctx, cancel := context.WithTimeout(cmd.Context(), 2*time.Minute)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, method, baseURL+path, body)
	if err != nil {
		return err
	}
	if payload != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return err
	}

	if resp.StatusCode >= 400 {
		var apiErr domain.ErrorResponse
		if json.Unmarshal(raw, &apiErr) == nil && apiErr.Code != "" {
			return fmt.Errorf("%s: %s", apiErr.Code, apiErr.Message)
		}
		return fmt.Errorf("gateway returned status %d", resp.StatusCode)
	}

	if result != nil && len(raw) > 0 {
		return json.Unmarshal(raw, result)
	}
	return nil
}

func printJSON(payload any) error {
	encoded, err := json.MarshalIndent(payload, "", "  ")
	if err != nil {
		return err
	}
	fmt.Println(string(encoded))
	return nil
}
