package main

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/agentguard/blackbox/pkg/blackbox"
	"github.com/agentguard/blackbox/pkg/policy"
)

// newDemoCmd creates the demo command
func newDemoCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "demo",
		Short: "Run a sample agent through the wrapper",
		Long: `Executes a canned agent through the monitoring wrapper with a
PII-laden payload and prints the resulting record as JSON. The agent
receives the raw payload; everything printed or persisted is scrubbed.`,
		RunE: runDemo,
	}

	cmd.Flags().Bool("black-box", true, "Strip execution traces from the result")
	cmd.Flags().Bool("keep-hashes", true, "Record SHA-256 digests of input and output")
	cmd.Flags().Bool("attest", true, "Generate an attestation record")
	cmd.Flags().StringSlice("break-glass", nil, "Request IDs exempt from trace stripping")
	cmd.Flags().String("request-id", "", "Request ID (default: random UUID)")
	cmd.Flags().String("task", "summarize customer ticket", "Task description")
	return cmd
}

func runDemo(cmd *cobra.Command, args []string) error {
	logger := newLoggerFromFlags(cmd)

	blackBox, _ := cmd.Flags().GetBool("black-box")
	keepHashes, _ := cmd.Flags().GetBool("keep-hashes")
	attest, _ := cmd.Flags().GetBool("attest")
	breakGlass, _ := cmd.Flags().GetStringSlice("break-glass")
	requestID, _ := cmd.Flags().GetString("request-id")
	task, _ := cmd.Flags().GetString("task")

	if requestID == "" {
		requestID = uuid.NewString()
	}

	p := policy.Policy{
		BlackBox:             blackBox,
		KeepHashes:           keepHashes,
		IncludeCodeSHA:       attest,
		IncludePolicyHash:    attest,
		BreakGlassRequestIDs: breakGlass,
	}

	wrapper, err := blackbox.New(p, demoAgent(), blackbox.WithLogger(logger))
	if err != nil {
		return err
	}
	defer func() {
		if err := wrapper.Close(); err != nil {
			logger.Error("close wrapper", "error", err)
		}
	}()

	payload := map[string]any{
		"customer_email": "jane.doe@example.com",
		"callback_phone": "(415) 555-0199",
		"notes":          "card 4111 1111 1111 1111 on file",
	}

	logger.Info("Running demo agent", "request_id", requestID, "task", task)
	result := wrapper.Run(cmd.Context(), requestID, task, payload)

	out, err := json.MarshalIndent(result, "", "  ")
	if err != nil {
		return fmt.Errorf("encode result: %w", err)
	}
	fmt.Fprintln(cmd.OutOrStdout(), string(out))
	return nil
}

// demoAgent fakes a tool-using agent: it reports intermediate traces and a
// small execution cost.
func demoAgent() blackbox.Agent {
	return blackbox.AgentFunc(func(ctx context.Context, task string, params map[string]any) (any, error) {
		return map[string]any{
			"result":     fmt.Sprintf("completed: %s", task),
			"traces":     []string{"plan", "lookup", "respond"},
			"cost_cents": 0.42,
		}, nil
	})
}
