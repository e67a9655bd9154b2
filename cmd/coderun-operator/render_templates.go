// Copyright Contributors to the CodeRun Operator project

package main

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"
	ctrl "sigs.k8s.io/controller-runtime"
	"sigs.k8s.io/controller-runtime/pkg/log/zap"
	k8syaml "sigs.k8s.io/yaml"

	v1alpha1 "github.com/5dlabs/coderun-operator/api/v1alpha1"
	"github.com/5dlabs/coderun-operator/internal/agent"
	"github.com/5dlabs/coderun-operator/internal/config"
	"github.com/5dlabs/coderun-operator/internal/template"
	"github.com/5dlabs/coderun-operator/internal/toolcatalog"
)

const toolsConfigAnnotation = "agents.platform/tools-config"

func init() {
	rootCmd.AddCommand(renderTemplatesCmd)
	renderTemplatesCmd.Flags().StringVar(&renderCodeRunPath, "coderun", "",
		"Path to a CodeRun manifest (YAML or JSON)")
	renderTemplatesCmd.Flags().StringVar(&renderConfigPath, "config", "",
		"Path to a controller-config.yaml file (optional; supplies per-agent tool/client-config entries and provider env var naming)")
	renderTemplatesCmd.Flags().StringVar(&renderOutDir, "out", "./rendered",
		"Directory to write the rendered ConfigMap files into")
	_ = renderTemplatesCmd.MarkFlagRequired("coderun")
}

var (
	renderCodeRunPath string
	renderConfigPath  string
	renderOutDir      string
)

var renderTemplatesCmd = &cobra.Command{
	Use:   "render-templates",
	Short: "Render a CodeRun's ConfigMap files without touching the API server",
	Long: `Render the same container.sh, CLI memory file, settings, client-config.json,
mcp.json, guideline docs, and hook scripts the controller would put in a
run's ConfigMap, writing them to a local directory for inspection. Does not
contact the Kubernetes API server.

Example:
  coderun-operator render-templates --coderun ./my-coderun.yaml --out ./rendered`,
	RunE: runRenderTemplates,
}

func runRenderTemplates(cmd *cobra.Command, args []string) error {
	opts := zap.Options{Development: true}
	ctrl.SetLogger(zap.New(zap.UseFlagOptions(&opts)))
	log := ctrl.Log.WithName("render-templates")

	raw, err := os.ReadFile(renderCodeRunPath)
	if err != nil {
		return fmt.Errorf("reading %s: %w", renderCodeRunPath, err)
	}
	var cr v1alpha1.CodeRun
	if err := k8syaml.Unmarshal(raw, &cr); err != nil {
		return fmt.Errorf("parsing %s: %w", renderCodeRunPath, err)
	}

	var agentEntry *toolcatalog.AgentEntry
	var providerEnvKey string
	if renderConfigPath != "" {
		cfg, err := config.Load(renderConfigPath)
		if err != nil {
			return err
		}
		if persona, classifyErr := agent.ShortName(cr.Spec.GithubApp); classifyErr == nil {
			if entry, ok := cfg.Agents[persona]; ok {
				agentEntry = &toolcatalog.AgentEntry{Tools: entry.Tools, ClientConfig: entry.ClientConfig}
			}
		}
		if cr.Spec.CLIConfig != nil {
			cliType := string(cr.Spec.CLIConfig.CLIType)
			if binding, err := cfg.Secrets.ResolveCLIBinding(cliType, cfg.Agent.ProviderForCLI(cliType)); err == nil {
				providerEnvKey = binding.EnvVar
			}
		}
	}

	gen := template.NewGenerator(log)
	data, err := gen.Generate(&cr, template.Inputs{
		AgentEntry:     agentEntry,
		OverlayJSON:    cr.Annotations[toolsConfigAnnotation],
		ProviderEnvKey: providerEnvKey,
	})
	if err != nil {
		return fmt.Errorf("rendering templates: %w", err)
	}

	if err := os.MkdirAll(renderOutDir, 0o755); err != nil {
		return fmt.Errorf("creating %s: %w", renderOutDir, err)
	}
	for name, content := range data {
		path := filepath.Join(renderOutDir, name)
		if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
			return fmt.Errorf("writing %s: %w", path, err)
		}
	}

	log.Info("rendered configmap files", "count", len(data), "dir", renderOutDir)
	return nil
}
