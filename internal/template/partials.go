// Copyright Contributors to the CodeRun Operator project

package template

import (
	"fmt"
	"text/template"

	"github.com/go-logr/logr"
)

// sharedPartialNames is the fixed set of shared partials every
// container.sh may reference (SPEC_FULL.md §4.4.3).
var sharedPartialNames = map[string]string{
	"header":             "_shared/header.sh.hbs",
	"lang-env-rust":       "_shared/lang-env-rust.sh.hbs",
	"lang-env-go":         "_shared/lang-env-go.sh.hbs",
	"lang-env-node":       "_shared/lang-env-node.sh.hbs",
	"lang-env-expo":       "_shared/lang-env-expo.sh.hbs",
	"config-loader":       "_shared/config-loader.sh.hbs",
	"github-auth":         "_shared/github-auth.sh.hbs",
	"git-setup":           "_shared/git-setup.sh.hbs",
	"task-files":          "_shared/task-files.sh.hbs",
	"tools-config":        "_shared/tools-config.sh.hbs",
	"acceptance-probe":    "_shared/acceptance-probe.sh.hbs",
	"retry-loop":          "_shared/retry-loop.sh.hbs",
	"completion-marker":   "_shared/completion-marker.sh.hbs",
	"tanstack-stack":      "_shared/tanstack-stack.sh.hbs",
	"shadcn-stack":        "_shared/shadcn-stack.sh.hbs",
	"frontend-toolkits":   "_shared/frontend-toolkits.sh.hbs",
}

// agentPartialNames maps a known persona to its system-prompt partial file.
// Unknown personas fall back to "generic", matching systemPromptPath's
// "unknown github-apps default to rex" rule for job selection but a
// separate "generic" fallback for the partial body itself when an agent has
// no dedicated persona write-up.
var agentPartialNames = map[string]string{
	"cipher":  "agents/partials/cipher-system-prompt.md.hbs",
	"cleo":    "agents/partials/cleo-system-prompt.md.hbs",
	"rex":     "agents/partials/rex-system-prompt.md.hbs",
	"tess":    "agents/partials/tess-system-prompt.md.hbs",
	"atlas":   "agents/partials/atlas-system-prompt.md.hbs",
	"bolt":    "agents/partials/bolt-system-prompt.md.hbs",
	"stitch":  "agents/partials/stitch-system-prompt.md.hbs",
	"morgan":  "agents/partials/morgan-system-prompt.md.hbs",
	"generic": "agents/partials/generic-system-prompt.md.hbs",
}

// registerPartials parses every shared and agent partial into root under
// its stable name. A partial file that cannot be found logs a warning and
// is registered as an empty body instead of failing registration, matching
// SPEC_FULL.md §4.4.2's "missing partials log a warning but do not fail".
func registerPartials(root *template.Template, src Source, log logr.Logger) (*template.Template, error) {
	register := func(name, path string) error {
		data, ok := src.Read(path)
		body := ""
		if !ok {
			log.Info("template partial not found, registering empty placeholder", "name", name, "path", path)
		} else {
			body = string(data)
		}
		_, err := root.New(name).Parse(body)
		if err != nil {
			return fmt.Errorf("template: parsing partial %q (%s): %w", name, path, err)
		}
		return nil
	}

	for name, path := range sharedPartialNames {
		if err := register(name, path); err != nil {
			return nil, err
		}
	}
	for name, path := range agentPartialNames {
		if err := register(name, path); err != nil {
			return nil, err
		}
	}
	return root, nil
}

// registerAgentPartial associates the fixed name "agent_partial" with the
// already-parsed partial body for the resolved persona (falling back to
// "generic" for personas with no dedicated write-up), so every
// system-prompt body can include {{template "agent_partial" .}} without
// knowing which persona it is rendering for.
func registerAgentPartial(root *template.Template, persona string) error {
	t := root.Lookup(persona)
	if t == nil {
		t = root.Lookup("generic")
	}
	if t == nil {
		_, err := root.New("agent_partial").Parse("")
		return err
	}
	_, err := root.AddParseTree("agent_partial", t.Tree)
	return err
}

// registerCLIInvoke associates the fixed name "cli_execute" with the
// CLI-specific invoke body for cliType. If the template file is missing, a
// placeholder that echoes a warning is registered so rendering still
// succeeds (SPEC_FULL.md §4.4.3).
func registerCLIInvoke(root *template.Template, src Source, cliType string, log logr.Logger) error {
	path := fmt.Sprintf("clis/%s/invoke.sh.hbs", cliType)
	data, ok := src.Read(path)
	body := fmt.Sprintf(`echo "WARNING: no invoke template registered for CLI %s"`, cliType)
	if ok {
		body = string(data)
	} else {
		log.Info("cli invoke template not found, registering warning placeholder", "cliType", cliType, "path", path)
	}
	_, err := root.New("cli_execute").Parse(body)
	return err
}
