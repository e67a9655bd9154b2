// Copyright Contributors to the CodeRun Operator project

package template

import (
	"bytes"
	"strings"
	"text/template"

	"github.com/go-logr/logr"
)

const hooksDir = "code"

// hookNamePrefixes returns, in precedence order, the filename prefixes that
// identify a hook script applicable to cliType: CLI-specific
// (code_<cli>_hooks_*), shared (code_shared_hooks_*), then the legacy
// undifferentiated form (code_hooks_*), per SPEC_FULL.md §4.4.7.
func hookNamePrefixes(cliType string) []string {
	return []string{
		"code_" + cliType + "_hooks_",
		"code_shared_hooks_",
		"code_hooks_",
	}
}

func matchesAnyPrefix(name string, prefixes []string) bool {
	for _, p := range prefixes {
		if strings.HasPrefix(name, p) {
			return true
		}
	}
	return false
}

func hookOutputName(hbsName string) string {
	return "hooks-" + strings.TrimSuffix(hbsName, ".hbs")
}

// RenderHooks discovers and renders every hook script applicable to cliType
// under the code/ template directory, returning output-filename -> rendered
// bytes. A hook that fails to parse or render is skipped with a warning
// rather than failing the whole ConfigMap build (SPEC_FULL.md §4.4.7).
func RenderHooks(src Source, cliType string, ctx RenderContext, log logr.Logger) map[string][]byte {
	out := make(map[string][]byte)
	prefixes := hookNamePrefixes(cliType)

	for _, name := range src.ListFlat(hooksDir) {
		if !matchesAnyPrefix(name, prefixes) {
			continue
		}
		data, ok := src.Read(hooksDir + "/" + name)
		if !ok {
			continue
		}
		t, err := template.New(name).Parse(string(data))
		if err != nil {
			log.Info("skipping hook, failed to parse", "hook", name, "error", err.Error())
			continue
		}
		var buf bytes.Buffer
		if err := t.Execute(&buf, ctx); err != nil {
			log.Info("skipping hook, failed to render", "hook", name, "error", err.Error())
			continue
		}
		out[hookOutputName(name)] = buf.Bytes()
	}
	return out
}
