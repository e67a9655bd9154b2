// Copyright Contributors to the CodeRun Operator project

package template

import (
	"encoding/json"
	"os"
	"strconv"
	"strings"

	"github.com/BurntSushi/toml"

	v1alpha1 "github.com/5dlabs/coderun-operator/api/v1alpha1"
)

const (
	defaultSandboxMode        = "danger-full-access"
	defaultProjectDocMaxBytes = 32768
	defaultToolsURL           = "http://tools.cto.svc.cluster.local:3000/mcp"
)

// ModelProviderConfig is the model_provider block every CLI config embeds.
type ModelProviderConfig struct {
	Name    string `json:"name" toml:"name"`
	BaseURL string `json:"base_url" toml:"base_url"`
	EnvKey  string `json:"env_key" toml:"env_key"`
	WireAPI string `json:"wire_api" toml:"wire_api"`
}

func defaultModelProvider(envKey string) ModelProviderConfig {
	if envKey == "" {
		envKey = "OPENAI_API_KEY"
	}
	return ModelProviderConfig{
		Name:    "openai",
		BaseURL: "https://api.openai.com/v1",
		EnvKey:  envKey,
		WireAPI: "chat",
	}
}

// CliRenderSettings is the normalized settings object every CLI-specific
// serializer derives its output from (SPEC_FULL.md §4.4.6).
type CliRenderSettings struct {
	ApprovalPolicy     string
	SandboxMode        string
	ProjectDocMaxBytes int
	ToolsURL           string
	ModelProvider      ModelProviderConfig
	ModelRotation      []string
	ListToolsOnStart   bool
}

func toolsURLFromEnv() string {
	if v := os.Getenv("TOOLS_SERVER_URL"); v != "" {
		return strings.TrimRight(v, "/")
	}
	return defaultToolsURL
}

// parseFlexibleBool accepts "true"/"false"/"yes"/"no"/"on"/"off"/"1"/"0"
// (case-insensitively), matching SPEC_FULL.md §4.4.6's
// listToolsOnStart rule. Anything else is false.
func parseFlexibleBool(s string) bool {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "true", "yes", "on", "1":
		return true
	default:
		return false
	}
}

// parseModelRotation accepts a JSON array, or a JSON string that itself
// contains a JSON array (double-encoded), matching SPEC_FULL.md §4.4.6.
func parseModelRotation(raw string) []string {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return nil
	}
	var arr []string
	if err := json.Unmarshal([]byte(raw), &arr); err == nil {
		return arr
	}
	var inner string
	if err := json.Unmarshal([]byte(raw), &inner); err == nil {
		var arr2 []string
		if err := json.Unmarshal([]byte(inner), &arr2); err == nil {
			return arr2
		}
	}
	return nil
}

// NormalizeCliRenderSettings derives a CliRenderSettings from a CLIConfig's
// free-form settings map, applying the forced/defaulted fields from
// SPEC_FULL.md §4.4.6. providerEnvKey is the env var name the resolved
// secret binding injects the CLI's API key under (empty if unresolved).
func NormalizeCliRenderSettings(settings map[string]string, providerEnvKey string) CliRenderSettings {
	rs := CliRenderSettings{
		ApprovalPolicy:     "never",
		SandboxMode:        defaultSandboxMode,
		ProjectDocMaxBytes: defaultProjectDocMaxBytes,
		ToolsURL:           toolsURLFromEnv(),
		ModelProvider:      defaultModelProvider(providerEnvKey),
	}

	if settings == nil {
		return rs
	}
	if v, ok := settings["sandboxMode"]; ok && v != "" {
		rs.SandboxMode = v
	}
	if v, ok := settings["projectDocMaxBytes"]; ok {
		if n, err := strconv.Atoi(v); err == nil {
			rs.ProjectDocMaxBytes = n
		}
	}
	if v, ok := settings["toolsUrl"]; ok && v != "" {
		rs.ToolsURL = strings.TrimRight(v, "/")
	}
	if v, ok := settings["provider"]; ok && v != "" {
		rs.ModelProvider.Name = v
	}
	if v, ok := settings["modelRotation"]; ok {
		rs.ModelRotation = parseModelRotation(v)
	}
	if v, ok := settings["listToolsOnStart"]; ok {
		rs.ListToolsOnStart = parseFlexibleBool(v)
	}
	// approvalPolicy is always forced to "never" regardless of input.
	return rs
}

// claudeSettings is the shape written to settings.json for the Claude and
// Gemini branches.
type claudeSettings struct {
	ApprovalPolicy     string              `json:"approvalPolicy"`
	SandboxMode        string              `json:"sandboxMode"`
	ProjectDocMaxBytes int                 `json:"projectDocMaxBytes"`
	ToolsURL           string              `json:"toolsUrl"`
	ModelProvider      ModelProviderConfig `json:"modelProvider"`
	ModelRotation      []string            `json:"modelRotation,omitempty"`
	ListToolsOnStart   bool                `json:"listToolsOnStart"`
}

func renderClaudeSettingsJSON(rs CliRenderSettings) ([]byte, error) {
	return json.MarshalIndent(claudeSettings{
		ApprovalPolicy:     rs.ApprovalPolicy,
		SandboxMode:        rs.SandboxMode,
		ProjectDocMaxBytes: rs.ProjectDocMaxBytes,
		ToolsURL:           rs.ToolsURL,
		ModelProvider:      rs.ModelProvider,
		ModelRotation:      rs.ModelRotation,
		ListToolsOnStart:   rs.ListToolsOnStart,
	}, "", "  ")
}

// codexConfig is the shape written to codex-config.toml. The Codex branch
// is the only one that emits TOML instead of JSON (SPEC_FULL.md §4.4.6).
type codexConfig struct {
	ApprovalPolicy     string              `toml:"approval_policy"`
	SandboxMode        string              `toml:"sandbox_mode"`
	ProjectDocMaxBytes int                 `toml:"project_doc_max_bytes"`
	ModelProvider      ModelProviderConfig `toml:"model_provider"`
	ModelRotation      []string            `toml:"model_rotation,omitempty"`
}

func renderCodexConfigTOML(rs CliRenderSettings) ([]byte, error) {
	var b strings.Builder
	enc := toml.NewEncoder(&b)
	if err := enc.Encode(codexConfig{
		ApprovalPolicy:     rs.ApprovalPolicy,
		SandboxMode:        rs.SandboxMode,
		ProjectDocMaxBytes: rs.ProjectDocMaxBytes,
		ModelProvider:      rs.ModelProvider,
		ModelRotation:      rs.ModelRotation,
	}); err != nil {
		return nil, err
	}
	return []byte(b.String()), nil
}

// opencodeExec is the exec block OpenCode's config embeds.
type opencodeExec struct {
	Args []string         `json:"args"`
	Env  map[string]string `json:"env"`
}

type opencodeConfig struct {
	ApprovalPolicy   string              `json:"approvalPolicy"`
	SandboxMode      string              `json:"sandboxMode"`
	ToolsURL         string              `json:"toolsUrl"`
	ModelProvider    ModelProviderConfig `json:"modelProvider"`
	ListToolsOnStart bool                `json:"listToolsOnStart"`
	Exec             opencodeExec        `json:"exec"`
}

func renderOpenCodeConfigJSON(rs CliRenderSettings, model string) ([]byte, error) {
	return json.MarshalIndent(opencodeConfig{
		ApprovalPolicy:   rs.ApprovalPolicy,
		SandboxMode:      rs.SandboxMode,
		ToolsURL:         rs.ToolsURL,
		ModelProvider:    rs.ModelProvider,
		ListToolsOnStart: rs.ListToolsOnStart,
		Exec: opencodeExec{
			Args: []string{"--model", model},
			Env:  map[string]string{"OPENCODE_TOOLS_URL": rs.ToolsURL},
		},
	}, "", "  ")
}

// toolsEndpoint is the "tools.endpoint" sub-object Cursor and Factory
// configs expose, alongside their filtered remoteTools list.
type toolsEndpoint struct {
	Endpoint    string   `json:"endpoint"`
	RemoteTools []string `json:"remoteTools"`
}

type automationConfig struct {
	ApprovalPolicy string `json:"approvalPolicy"`
	SandboxMode    string `json:"sandboxMode"`
}

type cursorOrFactoryConfig struct {
	Automation    automationConfig       `json:"automation"`
	Execution     automationConfig       `json:"execution"`
	ModelProvider ModelProviderConfig    `json:"modelProvider"`
	MCPServers    map[string]interface{} `json:"mcpServers"`
	Tools         toolsEndpoint          `json:"tools"`
}

func renderCursorOrFactoryJSON(rs CliRenderSettings, remoteTools []string) ([]byte, error) {
	return json.MarshalIndent(cursorOrFactoryConfig{
		Automation:    automationConfig{ApprovalPolicy: rs.ApprovalPolicy, SandboxMode: rs.SandboxMode},
		Execution:     automationConfig{ApprovalPolicy: rs.ApprovalPolicy, SandboxMode: rs.SandboxMode},
		ModelProvider: rs.ModelProvider,
		MCPServers:    map[string]interface{}{},
		Tools:         toolsEndpoint{Endpoint: rs.ToolsURL, RemoteTools: remoteTools},
	}, "", "  ")
}

// renderCLISettingsFiles returns the filename(s)->contents produced by
// direct serialization (not template rendering) for cliType, per
// SPEC_FULL.md §4.4.6.
func renderCLISettingsFiles(cliType v1alpha1.CLIType, rs CliRenderSettings, model string, remoteTools []string) (map[string][]byte, error) {
	switch cliType {
	case v1alpha1.CLICodex:
		data, err := renderCodexConfigTOML(rs)
		if err != nil {
			return nil, err
		}
		return map[string][]byte{"codex-config.toml": data}, nil

	case v1alpha1.CLIOpenCode:
		data, err := renderOpenCodeConfigJSON(rs, model)
		if err != nil {
			return nil, err
		}
		return map[string][]byte{"opencode-config.json": data}, nil

	case v1alpha1.CLICursor:
		cfg, err := renderCursorOrFactoryJSON(rs, remoteTools)
		if err != nil {
			return nil, err
		}
		cliJSON, _ := json.MarshalIndent(map[string]string{"model": model}, "", "  ")
		mcpJSON, _ := json.MarshalIndent(map[string][]string{"remoteTools": remoteTools}, "", "  ")
		return map[string][]byte{
			"cursor-cli-config.json": cfg,
			"cursor-cli.json":        cliJSON,
			"cursor-mcp.json":        mcpJSON,
		}, nil

	case v1alpha1.CLIFactory:
		cfg, err := renderCursorOrFactoryJSON(rs, remoteTools)
		if err != nil {
			return nil, err
		}
		cliJSON, _ := json.MarshalIndent(map[string]string{"model": model}, "", "  ")
		return map[string][]byte{
			"factory-cli-config.json": cfg,
			"factory-cli.json":        cliJSON,
		}, nil

	default: // Claude and Gemini both use settings.json
		data, err := renderClaudeSettingsJSON(rs)
		if err != nil {
			return nil, err
		}
		return map[string][]byte{"settings.json": data}, nil
	}
}
