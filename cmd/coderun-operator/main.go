// Copyright Contributors to the CodeRun Operator project

// coderun-operator is the unified binary for the CodeRun operator.
//
// Available commands:
//   - controller:        Start the Kubernetes controller
//   - render-templates:  Render a CodeRun's ConfigMap files without touching the API server
//   - validate-config:   Validate a controller-config.yaml file
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var rootCmd = &cobra.Command{
	Use:   "coderun-operator",
	Short: "CodeRun operator - Kubernetes-native AI coding agent execution",
	Long: `coderun-operator reconciles CodeRun custom resources into Jobs that run
AI coding CLI agents.

This unified binary provides:
  controller         Start the Kubernetes controller
  render-templates    Render a CodeRun's ConfigMap files to a local directory
  validate-config     Validate a controller-config.yaml file

Examples:
  # Start the controller
  coderun-operator controller --metrics-bind-address=:8080

  # Render the ConfigMap files for a CodeRun manifest, for local inspection
  coderun-operator render-templates --coderun ./my-coderun.yaml --out ./rendered

  # Validate a controller config file before applying it
  coderun-operator validate-config --config ./controller-config.yaml`,
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}
