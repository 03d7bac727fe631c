package main

import (
	"fmt"
	"io"
	"strings"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/agentguard/blackbox/pkg/pii"
)

// newScrubCmd creates the scrub command
func newScrubCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "scrub [text]",
		Short: "Redact PII from text",
		Long: `Runs the builtin redaction catalogue over the given text (or stdin
when no argument is supplied) and prints the scrubbed result.

With --scan, prints per-type match counts instead of redacting.`,
		RunE: runScrub,
	}

	cmd.Flags().Bool("scan", false, "Print match counts instead of redacted text")
	cmd.Flags().String("rules", "", "Path to a YAML file with extra redaction rules")
	return cmd
}

func runScrub(cmd *cobra.Command, args []string) error {
	var text string
	if len(args) > 0 {
		text = strings.Join(args, " ")
	} else {
		data, err := io.ReadAll(cmd.InOrStdin())
		if err != nil {
			return fmt.Errorf("read stdin: %w", err)
		}
		text = string(data)
	}

	var extra []pii.Rule
	if rulesPath, _ := cmd.Flags().GetString("rules"); rulesPath != "" {
		rules, err := pii.LoadRules(rulesPath)
		if err != nil {
			return err
		}
		extra = rules
	}

	redactor, err := pii.NewEnhancedRedactor(extra...)
	if err != nil {
		return err
	}

	if scan, _ := cmd.Flags().GetBool("scan"); scan {
		counts := redactor.Scan(text)
		out, err := yaml.Marshal(counts)
		if err != nil {
			return fmt.Errorf("encode counts: %w", err)
		}
		fmt.Fprint(cmd.OutOrStdout(), string(out))
		return nil
	}

	redacted, _ := redactor.Redact(text).(string)
	fmt.Fprintln(cmd.OutOrStdout(), redacted)
	return nil
}
