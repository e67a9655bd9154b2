// Copyright Contributors to the CodeRun Operator project

// Package v1alpha1 contains the v1alpha1 API definitions for the CodeRun
// custom resource.
package v1alpha1

import (
	metav1 "k8s.io/apimachinery/pkg/apis/meta/v1"
	"k8s.io/apimachinery/pkg/runtime"
)

// RunType classifies the kind of work a CodeRun performs, which in turn
// selects the template generator's job-type branch.
// +kubebuilder:validation:Enum=implementation;documentation;intake;quality;test;deploy;security;review;integration;remediate
type RunType string

const (
	RunTypeImplementation RunType = "implementation"
	RunTypeDocumentation  RunType = "documentation"
	RunTypeIntake         RunType = "intake"
	RunTypeQuality        RunType = "quality"
	RunTypeTest           RunType = "test"
	RunTypeDeploy         RunType = "deploy"
	RunTypeSecurity       RunType = "security"
	RunTypeReview         RunType = "review"
	RunTypeIntegration    RunType = "integration"
	RunTypeRemediate      RunType = "remediate"
)

// CLIType is one of the supported command-line AI tools.
// +kubebuilder:validation:Enum=Claude;Codex;Cursor;Factory;Gemini;OpenCode
type CLIType string

const (
	CLIClaude   CLIType = "Claude"
	CLICodex    CLIType = "Codex"
	CLICursor   CLIType = "Cursor"
	CLIFactory  CLIType = "Factory"
	CLIGemini   CLIType = "Gemini"
	CLIOpenCode CLIType = "OpenCode"
)

// CLIConfig describes which CLI to run and how to configure it.
// Settings values are kept as strings; callers that need a richer type
// (bool, int, a JSON array for modelRotation) parse the string themselves,
// matching the flexible-encoding rules in SPEC_FULL.md §4.4.6 — the
// controller never needs to round-trip an arbitrary JSON value through
// this field, only the handful of known setting keys the template
// generator inspects.
type CLIConfig struct {
	// +optional
	CLIType CLIType `json:"cliType,omitempty"`
	// +optional
	Model string `json:"model,omitempty"`
	// +optional
	Settings map[string]string `json:"settings,omitempty"`
	// +optional
	MaxTokens *int32 `json:"maxTokens,omitempty"`
	// +optional
	Temperature *string `json:"temperature,omitempty"`
	// +optional
	ModelRotation string `json:"modelRotation,omitempty"`
}

// EnvFromSecret is the legacy single-key secret env binding, used when
// spec.taskRequirements is absent or empty.
type EnvFromSecret struct {
	Name       string `json:"name"`
	SecretName string `json:"secretName"`
	SecretKey  string `json:"secretKey"`
}

// LinearIntegration configures the optional Linear progress-tracking
// sidecar.
type LinearIntegration struct {
	// +optional
	Enabled bool `json:"enabled,omitempty"`
	// +optional
	SessionID string `json:"sessionId,omitempty"`
	// +optional
	IssueID string `json:"issueId,omitempty"`
	// +optional
	TeamID string `json:"teamId,omitempty"`
}

// CodeRunSpec is the desired state of a CodeRun.
type CodeRunSpec struct {
	// +optional
	// +kubebuilder:default=implementation
	RunType RunType `json:"runType,omitempty"`

	// +optional
	TaskID int32 `json:"taskId,omitempty"`

	// +required
	Service string `json:"service"`

	// +optional
	ContextVersion int32 `json:"contextVersion,omitempty"`

	// +optional
	RepositoryURL string `json:"repositoryUrl,omitempty"`

	// +optional
	DocsRepositoryURL string `json:"docsRepositoryUrl,omitempty"`

	// +optional
	DocsBranch string `json:"docsBranch,omitempty"`

	// +optional
	DocsProjectDirectory string `json:"docsProjectDirectory,omitempty"`

	// +optional
	WorkingDirectory string `json:"workingDirectory,omitempty"`

	// +optional
	Model string `json:"model,omitempty"`

	// +optional
	CLIConfig *CLIConfig `json:"cliConfig,omitempty"`

	// GithubApp identifies the GitHub App persona (e.g. "5DLabs-Rex") that
	// authenticates this run and selects its agent classification.
	// +required
	GithubApp string `json:"githubApp"`

	// +optional
	GithubUser string `json:"githubUser,omitempty"`

	// +optional
	Env map[string]string `json:"env,omitempty"`

	// +optional
	EnvFromSecrets []EnvFromSecret `json:"envFromSecrets,omitempty"`

	// +optional
	// +kubebuilder:default=true
	EnableDocker *bool `json:"enableDocker,omitempty"`

	// +optional
	ContinueSession bool `json:"continueSession,omitempty"`

	// +optional
	OverwriteMemory bool `json:"overwriteMemory,omitempty"`

	// TaskRequirements is base64-encoded YAML: { environment: map<string,
	// string>, secrets: [{name, keys?: [{<k8sKey>: <envName>}]}] }.
	// +optional
	TaskRequirements string `json:"taskRequirements,omitempty"`

	// +optional
	ServiceAccountName string `json:"serviceAccountName,omitempty"`

	// +optional
	LinearIntegration *LinearIntegration `json:"linearIntegration,omitempty"`

	// EnableInputBridge requests a headless Service selecting this run's
	// Job pods, for upstream components that need to address the running
	// pod directly. See SPEC_FULL.md §12.
	// +optional
	EnableInputBridge bool `json:"enableInputBridge,omitempty"`
}

// CodeRunStatus is the observed state of a CodeRun. The reconciler reads
// retryCount from it and writes phase, message and jobName.
type CodeRunStatus struct {
	// +optional
	RetryCount int32 `json:"retryCount,omitempty"`
	// +optional
	Phase string `json:"phase,omitempty"`
	// +optional
	Message string `json:"message,omitempty"`
	// +optional
	JobName string `json:"jobName,omitempty"`
}

// +kubebuilder:object:root=true
// +kubebuilder:subresource:status
// +kubebuilder:resource:scope="Namespaced"
// +kubebuilder:printcolumn:JSONPath=`.spec.runType`,name="RunType",type=string
// +kubebuilder:printcolumn:JSONPath=`.status.phase`,name="Phase",type=string
// +kubebuilder:printcolumn:JSONPath=`.status.jobName`,name="Job",type=string
// +kubebuilder:printcolumn:JSONPath=`.metadata.creationTimestamp`,name="Age",type=date

// CodeRun describes one unit of AI-agent coding work to be materialized
// into a Kubernetes Job.
type CodeRun struct {
	metav1.TypeMeta   `json:",inline"`
	metav1.ObjectMeta `json:"metadata,omitempty"`

	Spec CodeRunSpec `json:"spec"`

	// +optional
	Status CodeRunStatus `json:"status,omitempty"`
}

// +kubebuilder:object:root=true

// CodeRunList is a list of CodeRun.
type CodeRunList struct {
	metav1.TypeMeta `json:",inline"`
	metav1.ListMeta `json:"metadata,omitempty"`
	Items           []CodeRun `json:"items"`
}

// DeepCopyInto copies the receiver into out.
func (in *CodeRun) DeepCopyInto(out *CodeRun) {
	*out = *in
	out.TypeMeta = in.TypeMeta
	in.ObjectMeta.DeepCopyInto(&out.ObjectMeta)
	in.Spec.DeepCopyInto(&out.Spec)
	out.Status = in.Status
}

// DeepCopy returns a deep copy of the receiver.
func (in *CodeRun) DeepCopy() *CodeRun {
	if in == nil {
		return nil
	}
	out := new(CodeRun)
	in.DeepCopyInto(out)
	return out
}

// DeepCopyObject implements runtime.Object.
func (in *CodeRun) DeepCopyObject() runtime.Object {
	if c := in.DeepCopy(); c != nil {
		return c
	}
	return nil
}

// DeepCopyInto copies the receiver into out.
func (in *CodeRunSpec) DeepCopyInto(out *CodeRunSpec) {
	*out = *in
	if in.Env != nil {
		out.Env = make(map[string]string, len(in.Env))
		for k, v := range in.Env {
			out.Env[k] = v
		}
	}
	if in.EnvFromSecrets != nil {
		out.EnvFromSecrets = append([]EnvFromSecret(nil), in.EnvFromSecrets...)
	}
	if in.CLIConfig != nil {
		out.CLIConfig = in.CLIConfig.DeepCopy()
	}
	if in.EnableDocker != nil {
		v := *in.EnableDocker
		out.EnableDocker = &v
	}
	if in.LinearIntegration != nil {
		v := *in.LinearIntegration
		out.LinearIntegration = &v
	}
}

// DeepCopy returns a deep copy of the receiver.
func (in *CLIConfig) DeepCopy() *CLIConfig {
	if in == nil {
		return nil
	}
	out := new(CLIConfig)
	*out = *in
	if in.Settings != nil {
		out.Settings = make(map[string]string, len(in.Settings))
		for k, v := range in.Settings {
			out.Settings[k] = v
		}
	}
	if in.MaxTokens != nil {
		v := *in.MaxTokens
		out.MaxTokens = &v
	}
	if in.Temperature != nil {
		v := *in.Temperature
		out.Temperature = &v
	}
	return out
}

// DeepCopyInto copies the receiver into out.
func (in *CodeRunList) DeepCopyInto(out *CodeRunList) {
	*out = *in
	out.TypeMeta = in.TypeMeta
	in.ListMeta.DeepCopyInto(&out.ListMeta)
	if in.Items != nil {
		out.Items = make([]CodeRun, len(in.Items))
		for i := range in.Items {
			in.Items[i].DeepCopyInto(&out.Items[i])
		}
	}
}

// DeepCopy returns a deep copy of the receiver.
func (in *CodeRunList) DeepCopy() *CodeRunList {
	if in == nil {
		return nil
	}
	out := new(CodeRunList)
	in.DeepCopyInto(out)
	return out
}

// DeepCopyObject implements runtime.Object.
func (in *CodeRunList) DeepCopyObject() runtime.Object {
	if c := in.DeepCopy(); c != nil {
		return c
	}
	return nil
}
