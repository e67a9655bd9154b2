// Copyright Contributors to the CodeRun Operator project

package template

// CLIContext is the `cli` substructure of the container-script render
// context: { type, model, settings, remote_tools }.
type CLIContext struct {
	Type        string
	Model       string
	Settings    map[string]string
	RemoteTools []string
}

// RenderContext is the fixed render context for container.sh, the
// system-prompt files, and hook scripts (SPEC_FULL.md §4.4.5/§4.4.7).
type RenderContext struct {
	TaskID               int32
	Service              string
	RepositoryURL        string
	DocsRepositoryURL    string
	DocsBranch           string
	WorkingDirectory     string
	ContinueSession      bool
	RetryAttempt         int32
	OverwriteMemory      bool
	DocsProjectDirectory string
	GithubApp            string
	Model                string
	EnableDocker         bool
	Cli                  CLIContext
	ToolsURL             string
}
