package main

import (
	"os"

	"github.com/fatih/color"
	"github.com/spf13/cobra"
)

const appName = "leakguard"

var version = "dev"

var (
	colorRed    = color.New(color.FgRed, color.Bold)
	colorGreen  = color.New(color.FgGreen, color.Bold)
	colorYellow = color.New(color.FgYellow)
	colorCyan   = color.New(color.FgCyan)
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		colorRed.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(exitCode(err))
	}
}

func newRootCmd() *cobra.Command {
	a := &app{}

	root := &cobra.Command{
		Use:   appName,
		Short: "Find leaked credentials in files and URLs and export reports",
		Long: `leakguard applies regex detection rules to file:// and http(s):// targets,
collects findings into a detection result and renders it as html, json,
csv or txt.

Examples:
  # scan a config file with the built-in rules
  leakguard scan file:///etc/app/config.yaml

  # scan and write a CSV report, failing the build on high risk findings
  leakguard scan ./deploy.env --report csv --fail-on high

  # render a saved result
  leakguard report result.json --format html --sort-by riskLevel`,
		Version:           version,
		SilenceUsage:      true,
		SilenceErrors:     true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error { return a.init() },
		PersistentPostRun: func(cmd *cobra.Command, args []string) { a.close() },
	}

	root.PersistentFlags().StringVarP(&a.configPath, "config", "c", "", "config file (default ./leakguard.yaml)")
	root.PersistentFlags().BoolVar(&a.debug, "debug", false, "enable debug logging")

	root.AddCommand(
		newScanCmd(a),
		newReportCmd(a),
		newRedactCmd(a),
		newRulesCmd(a),
		newServeMCPCmd(a),
		newServeHTTPCmd(a),
	)
	return root
}
