// Copyright Contributors to the CodeRun Operator project

// Package template renders the ConfigMap data mounted into a CodeRun's Job
// pod: the container entrypoint script, the CLI's memory/system-prompt
// file, its settings file(s), client-config.json, mcp.json, the shared
// guideline docs, and any applicable hook scripts.
package template

import (
	"bytes"
	"fmt"
	"text/template"

	"github.com/go-logr/logr"

	v1alpha1 "github.com/5dlabs/coderun-operator/api/v1alpha1"
	"github.com/5dlabs/coderun-operator/internal/toolcatalog"
)

// Generator renders the full set of ConfigMap files for a CodeRun.
type Generator struct {
	src     Source
	catalog *toolcatalog.Catalog
	log     logr.Logger
}

// NewGenerator builds a Generator sourcing templates from AGENT_TEMPLATES_PATH
// (or the embedded default set) and tool names from the default catalog.
func NewGenerator(log logr.Logger) *Generator {
	return &Generator{
		src:     NewSourceFromEnv(),
		catalog: toolcatalog.DefaultCatalog(),
		log:     log,
	}
}

// Inputs bundles the pieces of controller config the generator needs beyond
// the CodeRun itself: the agent's tool/client-config entry and a raw overlay
// JSON blob (from an annotation, may be empty), plus the env var the
// resolved API-key secret will be injected under.
type Inputs struct {
	AgentEntry     *toolcatalog.AgentEntry
	OverlayJSON    string
	ProviderEnvKey string
}

func (g *Generator) newRoot(persona string, cliType string) (*template.Template, error) {
	root := template.New("root").Option("missingkey=zero")
	root, err := registerPartials(root, g.src, g.log)
	if err != nil {
		return nil, fmt.Errorf("template: registering partials: %w", err)
	}
	if err := registerAgentPartial(root, persona); err != nil {
		return nil, fmt.Errorf("template: registering agent partial: %w", err)
	}
	if err := registerCLIInvoke(root, g.src, cliType, g.log); err != nil {
		return nil, fmt.Errorf("template: registering cli invoke: %w", err)
	}
	return root, nil
}

func (g *Generator) parseAndRegister(root *template.Template, name, path string) error {
	data, ok := g.src.Read(path)
	if !ok {
		return fmt.Errorf("template: required template not found: %s", path)
	}
	_, err := root.New(name).Parse(string(data))
	if err != nil {
		return fmt.Errorf("template: parsing %s (%s): %w", name, path, err)
	}
	return nil
}

func renderNamed(root *template.Template, name string, ctx RenderContext) ([]byte, error) {
	var buf bytes.Buffer
	if err := root.ExecuteTemplate(&buf, name, ctx); err != nil {
		return nil, fmt.Errorf("template: rendering %s: %w", name, err)
	}
	return buf.Bytes(), nil
}

func buildRenderContext(cr *v1alpha1.CodeRun, cliType v1alpha1.CLIType, clientConfig *toolcatalog.ClientConfig) RenderContext {
	model := cr.Spec.Model
	settings := map[string]string{}
	if cr.Spec.CLIConfig != nil {
		if cr.Spec.CLIConfig.Model != "" {
			model = cr.Spec.CLIConfig.Model
		}
		settings = cr.Spec.CLIConfig.Settings
	}

	var remoteTools []string
	if clientConfig != nil {
		remoteTools = clientConfig.RemoteTools
	}

	enableDocker := true
	if cr.Spec.EnableDocker != nil {
		enableDocker = *cr.Spec.EnableDocker
	}

	toolsURL := toolsURLFromEnv()
	if v, ok := settings["toolsUrl"]; ok && v != "" {
		toolsURL = v
	}

	return RenderContext{
		TaskID:               cr.Spec.TaskID,
		Service:              cr.Spec.Service,
		RepositoryURL:        cr.Spec.RepositoryURL,
		DocsRepositoryURL:    cr.Spec.DocsRepositoryURL,
		DocsBranch:           cr.Spec.DocsBranch,
		WorkingDirectory:     cr.Spec.WorkingDirectory,
		ContinueSession:      cr.Spec.ContinueSession,
		RetryAttempt:         cr.Status.RetryCount + 1,
		OverwriteMemory:      cr.Spec.OverwriteMemory,
		DocsProjectDirectory: cr.Spec.DocsProjectDirectory,
		GithubApp:            cr.Spec.GithubApp,
		Model:                model,
		EnableDocker:         enableDocker,
		ToolsURL:             toolsURL,
		Cli: CLIContext{
			Type:        string(cliType),
			Model:       model,
			Settings:    settings,
			RemoteTools: remoteTools,
		},
	}
}

// reviewOrRemediateVariant returns the templatefiles directory ("review" or
// "remediate") and whether cliType has a dedicated bundle there. Only Claude
// and Factory ship review/remediate variants (SPEC_FULL.md §4.4.1); any
// other CLI falls through to the standard per-CLI branch instead.
func reviewOrRemediateVariant(runType v1alpha1.RunType, cliType v1alpha1.CLIType) (string, bool) {
	var kind string
	switch runType {
	case v1alpha1.RunTypeReview:
		kind = "review"
	case v1alpha1.RunTypeRemediate:
		kind = "remediate"
	default:
		return "", false
	}
	switch cliType {
	case v1alpha1.CLIClaude:
		return kind + "/claude", true
	case v1alpha1.CLIFactory:
		return kind + "/factory", true
	default:
		return "", false
	}
}

// Generate renders the full ConfigMap data set for cr.
func (g *Generator) Generate(cr *v1alpha1.CodeRun, in Inputs) (map[string]string, error) {
	cliType := effectiveCLIType(cr)
	cli := lowerCLI(cliType)
	persona := resolvePersona(cr.Spec.GithubApp)

	clientConfig, err := toolcatalog.Resolve(g.log, g.catalog, in.AgentEntry, in.OverlayJSON)
	if err != nil {
		return nil, fmt.Errorf("template: resolving tool client config: %w", err)
	}

	root, err := g.newRoot(persona, cli)
	if err != nil {
		return nil, err
	}

	ctx := buildRenderContext(cr, cliType, clientConfig)
	data := make(map[string]string)

	if variantDir, ok := reviewOrRemediateVariant(cr.Spec.RunType, cliType); ok {
		if err := g.renderBundleVariant(root, variantDir, ctx, data); err != nil {
			return nil, err
		}
		return data, nil
	}

	if err := g.renderStandardBundle(root, cr, ctx, cli, clientConfig, in.ProviderEnvKey, data); err != nil {
		return nil, err
	}
	return data, nil
}

func (g *Generator) renderBundleVariant(root *template.Template, variantDir string, ctx RenderContext, data map[string]string) error {
	files := map[string]string{
		"container.sh": variantDir + "/container.sh.hbs",
		"AGENTS.md":    variantDir + "/agents.md.hbs",
	}
	if variantDir == "review/claude" || variantDir == "review/factory" {
		files["post_review.py"] = variantDir + "/post_review.py.hbs"
	}
	for outName, path := range files {
		body, ok := g.src.Read(path)
		if !ok {
			g.log.Info("bundle variant file not found, skipping", "path", path)
			continue
		}
		name := "bundle_" + outName
		if _, err := root.New(name).Parse(string(body)); err != nil {
			return fmt.Errorf("template: parsing %s: %w", path, err)
		}
		rendered, err := renderNamed(root, name, ctx)
		if err != nil {
			return err
		}
		data[outName] = string(rendered)
	}
	return nil
}

func (g *Generator) renderStandardBundle(root *template.Template, cr *v1alpha1.CodeRun, ctx RenderContext, cli string, clientConfig *toolcatalog.ClientConfig, providerEnvKey string, data map[string]string) error {
	if err := g.parseAndRegister(root, "container", "_shared/container.sh.hbs"); err != nil {
		return err
	}
	containerSh, err := renderNamed(root, "container", ctx)
	if err != nil {
		return err
	}
	data["container.sh"] = string(containerSh)

	promptPath := SystemPromptPath(cr)
	if _, ok := g.src.Read(promptPath); !ok {
		g.log.Info("agent-specific system prompt not found, falling back to job default", "path", promptPath)
		promptPath = SystemPromptFallbackPath(cr)
	}
	if err := g.parseAndRegister(root, "system_prompt", promptPath); err != nil {
		return err
	}
	prompt, err := renderNamed(root, "system_prompt", ctx)
	if err != nil {
		return err
	}
	data[memoryFileName(cliTypeOrDefault(cr.Spec.CLIConfig))] = string(prompt)

	settings := map[string]string{}
	if cr.Spec.CLIConfig != nil {
		settings = cr.Spec.CLIConfig.Settings
	}
	rs := NormalizeCliRenderSettings(settings, providerEnvKey)
	cliFiles, err := renderCLISettingsFiles(effectiveCLIType(cr), rs, ctx.Model, ctx.Cli.RemoteTools)
	if err != nil {
		return fmt.Errorf("template: rendering cli settings files: %w", err)
	}
	for name, contents := range cliFiles {
		data[name] = string(contents)
	}

	ccJSON, err := toolcatalog.MarshalPretty(clientConfig)
	if err != nil {
		return fmt.Errorf("template: marshaling client-config.json: %w", err)
	}
	data["client-config.json"] = string(ccJSON)

	for outName, path := range map[string]string{
		"mcp.json":              "code/mcp.json.hbs",
		"coding-guidelines.md":  "code/coding-guidelines.md.hbs",
		"github-guidelines.md": "code/github-guidelines.md.hbs",
	} {
		if body, ok := g.src.Read(path); ok {
			name := "doc_" + outName
			if _, err := root.New(name).Parse(string(body)); err != nil {
				return fmt.Errorf("template: parsing %s: %w", path, err)
			}
			rendered, err := renderNamed(root, name, ctx)
			if err != nil {
				return err
			}
			data[outName] = string(rendered)
		}
	}

	for name, rendered := range RenderHooks(g.src, cli, ctx, g.log) {
		data[name] = string(rendered)
	}

	return nil
}

// cliTypeOrDefault lets memoryFileName be called against a possibly-nil
// CLIConfig pointer from renderStandardBundle without a nil check at every
// call site.
func cliTypeOrDefault(c *v1alpha1.CLIConfig) v1alpha1.CLIType {
	if c == nil || c.CLIType == "" {
		return v1alpha1.CLIClaude
	}
	return c.CLIType
}
