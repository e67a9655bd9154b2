// Copyright Contributors to the CodeRun Operator project

package main

import (
	"fmt"

	"github.com/spf13/cobra"
	ctrl "sigs.k8s.io/controller-runtime"
	"sigs.k8s.io/controller-runtime/pkg/log/zap"

	"github.com/5dlabs/coderun-operator/internal/config"
)

func init() {
	rootCmd.AddCommand(validateConfigCmd)
	validateConfigCmd.Flags().StringVar(&validateConfigPath, "config", "",
		"Path to the controller-config.yaml file to validate")
	_ = validateConfigCmd.MarkFlagRequired("config")
}

var validateConfigPath string

var validateConfigCmd = &cobra.Command{
	Use:   "validate-config",
	Short: "Validate a controller-config.yaml file",
	Long: `Load and validate a controller configuration file the same way the
controller does at startup, without starting a manager or touching the API
server. Useful for catching a missing default image, a dangling
cliProviders reference, or a non-semver image tag before applying the
config to a cluster.

Example:
  coderun-operator validate-config --config ./controller-config.yaml`,
	RunE: runValidateConfig,
}

func runValidateConfig(cmd *cobra.Command, args []string) error {
	opts := zap.Options{Development: true}
	ctrl.SetLogger(zap.New(zap.UseFlagOptions(&opts)))

	if _, err := config.Load(validateConfigPath); err != nil {
		return err
	}

	fmt.Printf("%s: valid\n", validateConfigPath)
	return nil
}
