package main

import (
	"fmt"
	"os"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/SamuelRCrider/leakguard/core"
)

func newRulesCmd(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "rules",
		Short: "Validate, list and manage detection rules",
	}
	cmd.AddCommand(
		newRulesValidateCmd(),
		newRulesListCmd(a),
		newRulesImportCmd(a),
		newRulesToggleCmd(a, "enable", true),
		newRulesToggleCmd(a, "disable", false),
		newRulesExportCmd(),
	)
	return cmd
}

func newRulesValidateCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "validate <rules.yaml>",
		Short: "Check that every rule compiles and matches its examples",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			out := cmd.OutOrStdout()
			set, err := core.LoadRuleSet(args[0])
			if err != nil {
				colorRed.Fprintf(out, "✗ %v\n", err)
				return err
			}

			failures := 0
			for _, rule := range set.Rules {
				failed, err := core.SelfTest(rule)
				if err != nil {
					return err
				}
				if len(failed) > 0 {
					failures++
					colorYellow.Fprintf(out, "✗ %s (%s): %d example(s) not matched\n", rule.ID, rule.Name, len(failed))
					for _, ex := range failed {
						fmt.Fprintf(out, "    %s\n", ex)
					}
					continue
				}
				colorGreen.Fprintf(out, "✓ %s (%s)\n", rule.ID, rule.Name)
			}

			fmt.Fprintf(out, "%d rules, version %s, hash %s\n", len(set.Rules), set.Metadata.Version, set.Metadata.Hash)
			if failures > 0 {
				return fmt.Errorf("%d rule(s) failed their examples", failures)
			}
			return nil
		},
	}
}

func newRulesListCmd(a *app) *cobra.Command {
	var project, rulesPath string
	var all bool

	cmd := &cobra.Command{
		Use:   "list",
		Short: "List rules from the database or a rule set",
		RunE: func(cmd *cobra.Command, args []string) error {
			var rules []core.Rule
			db, err := a.store()
			if err != nil {
				return err
			}
			switch {
			case db != nil && rulesPath == "" && all:
				rules, err = db.ListRules(cmd.Context(), project)
			default:
				src, serr := a.ruleSource(cmd.Context(), rulesPath)
				if serr != nil {
					return serr
				}
				rules, err = src.RulesFor(cmd.Context(), project, nil)
			}
			if err != nil {
				return err
			}

			tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
			fmt.Fprintln(tw, "ID\tNAME\tCATEGORY\tRISK\tENABLED\tSUPERSEDES")
			for _, r := range rules {
				fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%t\t%s\n", r.ID, r.Name, r.Category, r.RiskLevel, r.Enabled, r.Supersedes)
			}
			return tw.Flush()
		},
	}
	cmd.Flags().StringVar(&project, "project", "", "project whose rules to list")
	cmd.Flags().StringVarP(&rulesPath, "rules", "r", "", "YAML rule set instead of the database")
	cmd.Flags().BoolVar(&all, "all", false, "include disabled revisions (database only)")
	return cmd
}

func newRulesImportCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "import <rules.yaml>",
		Short: "Add the rules of a rule set to the database",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			db, err := a.requireStore()
			if err != nil {
				return err
			}
			set, err := core.LoadRuleSet(args[0])
			if err != nil {
				return err
			}
			added, err := db.ImportRules(cmd.Context(), set.Rules)
			if err != nil {
				return err
			}
			colorGreen.Fprintf(cmd.OutOrStdout(), "Imported %d of %d rules\n", added, len(set.Rules))
			return nil
		},
	}
}

func newRulesToggleCmd(a *app, verb string, enabled bool) *cobra.Command {
	return &cobra.Command{
		Use:   verb + " <rule-id>",
		Short: fmt.Sprintf("%s a rule in the database", verb),
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			db, err := a.requireStore()
			if err != nil {
				return err
			}
			if err := db.SetEnabled(cmd.Context(), args[0], enabled); err != nil {
				return err
			}
			colorGreen.Fprintf(cmd.OutOrStdout(), "Rule %s %sd\n", args[0], verb)
			return nil
		},
	}
}

func newRulesExportCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "export-defaults <rules.yaml>",
		Short: "Write the built-in rules as a YAML rule set",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if _, err := os.Stat(args[0]); err == nil {
				return fmt.Errorf("%s already exists", args[0])
			}
			if err := core.SaveRuleSet(core.DefaultRuleSet(), args[0]); err != nil {
				return err
			}
			colorGreen.Fprintf(cmd.OutOrStdout(), "Wrote %s\n", args[0])
			return nil
		},
	}
}
