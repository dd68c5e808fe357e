package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/SamuelRCrider/leakguard/core"
)

type redactOptions struct {
	projectID string
	rulesPath string
	ruleIDs   []string
	output    string
}

func newRedactCmd(a *app) *cobra.Command {
	o := &redactOptions{}

	cmd := &cobra.Command{
		Use:   "redact <target>",
		Short: "Print a target with every match replaced by [REDACTED:<category>]",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runRedact(cmd, a, o, args[0])
		},
	}

	f := cmd.Flags()
	f.StringVar(&o.projectID, "project", "", "project whose rules apply")
	f.StringVarP(&o.rulesPath, "rules", "r", "", "YAML rule set (overrides database and config)")
	f.StringSliceVar(&o.ruleIDs, "rule-ids", nil, "only apply these rule IDs")
	f.StringVarP(&o.output, "output", "o", "", "write to this file instead of stdout")
	return cmd
}

func runRedact(cmd *cobra.Command, a *app, o *redactOptions, target string) error {
	ctx := cmd.Context()

	src, err := a.ruleSource(ctx, o.rulesPath)
	if err != nil {
		return err
	}
	rules, err := src.RulesFor(ctx, o.projectID, o.ruleIDs)
	if err != nil {
		return err
	}
	scanner, err := core.NewScanner(core.ScannerConfig{MaxContentSize: a.cfg.EngineConfig().MaxContentSize}, rules)
	if err != nil {
		return err
	}
	scanner.WithFindingBuilder(core.FindingBuilder{Whitelist: a.whitelist})

	content, err := a.provider().Fetch(ctx, normalizeTarget(target))
	if err != nil {
		return core.NewError(core.KindTargetFailed, "redact", target, err)
	}
	redacted, n, err := scanner.Redact(content)
	if err != nil {
		return err
	}
	a.logger.Infow("Redacted target", "target", content.Target, "matches", n)

	if o.output == "" {
		_, err = fmt.Fprint(cmd.OutOrStdout(), redacted)
		return err
	}
	if err := os.WriteFile(o.output, []byte(redacted), 0644); err != nil {
		return fmt.Errorf("failed to write %s: %w", o.output, err)
	}
	fmt.Fprintf(cmd.ErrOrStderr(), "%s %d match(es) redacted into %s\n", colorGreen.Sprint("✓"), n, o.output)
	return nil
}
