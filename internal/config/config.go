// Copyright Contributors to the CodeRun Operator project

// Package config loads and validates the controller configuration
// (storage defaults, secret bindings, per-CLI image/provider tables, and
// per-agent overrides) read once at process start and threaded by
// reference into every reconcile.
package config

import (
	"fmt"
	"os"
	"strings"

	"github.com/Masterminds/semver/v3"
	"github.com/go-logr/logr"
	ctrllog "sigs.k8s.io/controller-runtime/pkg/log"
	"sigs.k8s.io/yaml"

	operrors "github.com/5dlabs/coderun-operator/internal/errors"
	"github.com/5dlabs/coderun-operator/internal/toolcatalog"
)

// ImageRef is a container image repository+tag pair.
type ImageRef struct {
	Repository string `json:"repository"`
	Tag        string `json:"tag"`
}

func (i ImageRef) String() string {
	if i.Repository == "" {
		return ""
	}
	if i.Tag == "" {
		return i.Repository
	}
	return fmt.Sprintf("%s:%s", i.Repository, i.Tag)
}

// StorageConfig configures the workspace PVCs the resource manager ensures.
type StorageConfig struct {
	WorkspaceSize    string `json:"workspaceSize"`
	StorageClassName string `json:"storageClassName,omitempty"`
}

// ProviderAPIKey names the secret and key holding a model provider's API
// key.
type ProviderAPIKey struct {
	SecretName string `json:"secretName"`
	SecretKey  string `json:"secretKey"`
}

// SecretsConfig configures how CLI API key secret bindings are resolved.
type SecretsConfig struct {
	APIKeySecretName string                    `json:"apiKeySecretName,omitempty"`
	APIKeySecretKey  string                     `json:"apiKeySecretKey,omitempty"`
	ProviderAPIKeys  map[string]ProviderAPIKey `json:"providerApiKeys,omitempty"`
}

// ResolvedSecretBinding is what the job builder needs to wire a CLI's API
// key into the pod as a single secretKeyRef env var.
type ResolvedSecretBinding struct {
	EnvVar     string
	SecretName string
	SecretKey  string
}

// cliEnvVarNames is the deterministic env var name each CLI type's API key
// is injected under.
var cliEnvVarNames = map[string]string{
	"claude":   "ANTHROPIC_API_KEY",
	"codex":    "OPENAI_API_KEY",
	"cursor":   "CURSOR_API_KEY",
	"factory":  "FACTORY_API_KEY",
	"gemini":   "GOOGLE_API_KEY",
	"opencode": "OPENCODE_API_KEY",
}

// ResolveCLIBinding returns the deterministic secret binding for cliType.
// When providerName is set, the providerApiKeys[providerName] entry is used
// and a missing entry is a ConfigError (there is no fallback to the legacy
// pair). When providerName is empty, the legacy single
// apiKeySecretName/apiKeySecretKey pair is used, and a ConfigError is
// returned if it is not configured.
func (s SecretsConfig) ResolveCLIBinding(cliType, providerName string) (ResolvedSecretBinding, error) {
	envVar, ok := cliEnvVarNames[strings.ToLower(cliType)]
	if !ok {
		envVar = "CLI_API_KEY"
	}

	if providerName != "" {
		if p, ok := s.ProviderAPIKeys[providerName]; ok {
			return ResolvedSecretBinding{EnvVar: envVar, SecretName: p.SecretName, SecretKey: p.SecretKey}, nil
		}
		return ResolvedSecretBinding{}, operrors.NewConfigError(
			"resolveCliBinding", fmt.Errorf("no providerApiKeys entry for provider %q (cliType %q)", providerName, cliType))
	}

	if s.APIKeySecretName != "" && s.APIKeySecretKey != "" {
		return ResolvedSecretBinding{EnvVar: envVar, SecretName: s.APIKeySecretName, SecretKey: s.APIKeySecretKey}, nil
	}

	return ResolvedSecretBinding{}, operrors.NewConfigError(
		"resolveCliBinding", fmt.Errorf("no secret binding configured for cliType %q", cliType))
}

// AgentDefaults is the `agent:` block of controller config: cluster-wide
// defaults for image selection and per-githubApp CLI config merge sources.
type AgentDefaults struct {
	Image               ImageRef             `json:"image"`
	CLIImages           map[string]ImageRef  `json:"cliImages,omitempty"`
	CLIProviders        map[string]string    `json:"cliProviders,omitempty"`
	AgentCLIConfigs     map[string]CLIDefaults `json:"agentCliConfigs,omitempty"`
	ServiceAccountName  string               `json:"serviceAccountName,omitempty"`
}

// CLIDefaults is the subset of CLIConfig used as a merge source in
// reconcileCreateOrUpdate step 1.
type CLIDefaults struct {
	Model         string            `json:"model,omitempty"`
	MaxTokens     *int32            `json:"maxTokens,omitempty"`
	Temperature   *string           `json:"temperature,omitempty"`
	ModelRotation string            `json:"modelRotation,omitempty"`
	Settings      map[string]string `json:"settings,omitempty"`
}

// ImageForCLI returns the image configured for cliType, case-insensitively,
// falling back to the cluster-wide default image. Returns a ConfigError if
// neither is configured with a non-empty repository.
func (a AgentDefaults) ImageForCLI(cliType string) (ImageRef, error) {
	for key, ref := range a.CLIImages {
		if strings.EqualFold(key, cliType) {
			if ref.Repository == "" {
				break
			}
			return ref, nil
		}
	}
	if a.Image.Repository != "" {
		return a.Image, nil
	}
	return ImageRef{}, operrors.NewConfigError("imageForCLI", fmt.Errorf("no image configured for CLI type %q", cliType))
}

// ProviderForCLI returns the configured model provider name for cliType, or
// "" if none is configured (provider defaulting then falls to OpenAI per
// SPEC_FULL.md §4.4.6).
func (a AgentDefaults) ProviderForCLI(cliType string) string {
	for key, provider := range a.CLIProviders {
		if strings.EqualFold(key, cliType) {
			return provider
		}
	}
	return ""
}

// ModelRotationConfig configures an agent's allowed model rotation list.
type ModelRotationConfig struct {
	Enabled bool     `json:"enabled"`
	Models  []string `json:"models,omitempty"`
}

// AgentEntry is one entry of the `agents:` map: agent-short-name keyed
// configuration used by both the agent classifier's callers and the tool
// catalog resolver.
type AgentEntry struct {
	GithubApp     string                     `json:"githubApp"`
	Tools         *toolcatalog.ToolsSpec     `json:"tools,omitempty"`
	ClientConfig  *toolcatalog.ClientConfig  `json:"clientConfig,omitempty"`
	ModelRotation *ModelRotationConfig       `json:"modelRotation,omitempty"`
	FrontendStack string                     `json:"frontendStack,omitempty"`
}

// LinearConfig configures the optional Linear progress sidecar.
type LinearConfig struct {
	ServiceURL   string `json:"serviceUrl,omitempty"`
	SidecarImage string `json:"sidecarImage,omitempty"`
}

// CleanupConfig configures the periodic stale-resource sweep (SPEC_FULL.md
// §12.3); this has no equivalent in spec.md's per-reconcile-only cleanup.
type CleanupConfig struct {
	// Schedule is a robfig/cron/v3 standard 5-field expression. Defaults to
	// every 15 minutes when empty.
	Schedule string `json:"schedule,omitempty"`
}

// DefaultCleanupSchedule is used when CleanupConfig.Schedule is empty.
const DefaultCleanupSchedule = "*/15 * * * *"

// CronSchedule returns the configured cron schedule, or DefaultCleanupSchedule.
func (c CleanupConfig) CronSchedule() string {
	if c.Schedule == "" {
		return DefaultCleanupSchedule
	}
	return c.Schedule
}

// Config is the full controller configuration, read once at startup.
type Config struct {
	Storage StorageConfig         `json:"storage"`
	Secrets SecretsConfig         `json:"secrets"`
	Agent   AgentDefaults         `json:"agent"`
	Agents  map[string]AgentEntry `json:"agents,omitempty"`
	Linear  LinearConfig          `json:"linear,omitempty"`
	Cleanup CleanupConfig         `json:"cleanup,omitempty"`
}

// Load reads and parses the controller configuration file at path (YAML),
// then validates it. Returns a *errors.ConfigError on any problem.
func Load(path string) (*Config, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, operrors.NewConfigError("load", fmt.Errorf("reading %s: %w", path, err))
	}

	var cfg Config
	if err := yaml.Unmarshal(raw, &cfg); err != nil {
		return nil, operrors.NewConfigError("load", fmt.Errorf("parsing %s: %w", path, err))
	}

	if err := cfg.Validate(ctrllog.Log.WithName("config")); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate performs the startup sanity checks described in SPEC_FULL.md
// §12.2: a missing default agent image, a cliImages entry with an empty
// repository, and a cliProviders entry naming a provider with no matching
// providerApiKeys entry are all fatal ConfigErrors. A configured image tag
// that is neither "latest" nor a valid semantic version is logged as a
// warning only (operators commonly pin to mutable tags like a git SHA or a
// CI build number, which is not unsafe, just worth flagging).
func (c Config) Validate(log logr.Logger) error {
	if c.Agent.Image.Repository == "" {
		return operrors.NewConfigError("validate", fmt.Errorf("agent.image.repository must be set"))
	}

	for cliKey, ref := range c.Agent.CLIImages {
		if ref.Repository == "" {
			return operrors.NewConfigError("validate", fmt.Errorf("agent.cliImages[%s].repository must be set", cliKey))
		}
		warnIfNotSemver(log, cliKey, ref.Tag)
	}
	warnIfNotSemver(log, "default", c.Agent.Image.Tag)

	for cliKey, provider := range c.Agent.CLIProviders {
		if provider == "" {
			continue
		}
		if _, ok := c.Secrets.ProviderAPIKeys[provider]; !ok {
			return operrors.NewConfigError("validate",
				fmt.Errorf("agent.cliProviders[%s] references provider %q with no secrets.providerApiKeys entry", cliKey, provider))
		}
	}

	return nil
}

func warnIfNotSemver(log logr.Logger, cliKey, tag string) {
	if tag == "" || tag == "latest" {
		return
	}
	if _, err := semver.NewVersion(tag); err != nil {
		log.Info("configured image tag is not a semantic version", "cli", cliKey, "tag", tag)
	}
}
