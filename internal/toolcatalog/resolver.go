package toolcatalog

import (
	"bytes"
	"encoding/json"
	"fmt"

	"github.com/go-logr/logr"
	"github.com/imdario/mergo"
)

// LocalServer is the resolved (post-merge) shape of one entry under
// client-config.json's "localServers" map.
type LocalServer struct {
	Tools            []string `json:"tools,omitempty"`
	Command          string   `json:"command,omitempty"`
	Args             []string `json:"args,omitempty"`
	WorkingDirectory string   `json:"workingDirectory,omitempty"`
}

// ClientConfig is the exact shape written to client-config.json.
type ClientConfig struct {
	RemoteTools  []string               `json:"remoteTools"`
	LocalServers map[string]LocalServer `json:"localServers"`
}

// LocalServerSpec is one entry of an agent's raw "tools.localServers" map,
// as configured in controller config or an overlay annotation using the
// "tools" shape. Only entries with Enabled == true are emitted.
type LocalServerSpec struct {
	Enabled          bool     `json:"enabled"`
	Tools            []string `json:"tools,omitempty"`
	Command          string   `json:"command,omitempty"`
	Args             []string `json:"args,omitempty"`
	WorkingDirectory string   `json:"workingDirectory,omitempty"`
}

// ToolsSpec is the raw "tools" shape: { remote: [...], localServers: {...} }.
type ToolsSpec struct {
	Remote       []string                   `json:"remote,omitempty"`
	LocalServers map[string]LocalServerSpec `json:"localServers,omitempty"`
}

// AgentEntry is the subset of a controller-config "agents.<name>" entry the
// resolver needs: either a verbatim ClientConfig, or a ToolsSpec to
// synthesize one from.
type AgentEntry struct {
	Tools        *ToolsSpec
	ClientConfig *ClientConfig
}

func synthesizeFromTools(t *ToolsSpec) ClientConfig {
	cc := ClientConfig{
		RemoteTools:  append([]string(nil), t.Remote...),
		LocalServers: make(map[string]LocalServer),
	}
	for name, spec := range t.LocalServers {
		if !spec.Enabled {
			continue
		}
		cc.LocalServers[name] = LocalServer{
			Tools:            append([]string(nil), spec.Tools...),
			Command:          spec.Command,
			Args:             append([]string(nil), spec.Args...),
			WorkingDirectory: spec.WorkingDirectory,
		}
	}
	return cc
}

func emptyClientConfig() ClientConfig {
	return ClientConfig{RemoteTools: []string{}, LocalServers: map[string]LocalServer{}}
}

// baseClientConfig implements step 1 of the resolver algorithm: use the
// agent entry's clientConfig verbatim if present, else synthesize one from
// tools, else an empty config.
func baseClientConfig(entry *AgentEntry) ClientConfig {
	if entry == nil {
		return emptyClientConfig()
	}
	if entry.ClientConfig != nil {
		cc := *entry.ClientConfig
		if cc.LocalServers == nil {
			cc.LocalServers = make(map[string]LocalServer)
		}
		return cc
	}
	if entry.Tools != nil {
		return synthesizeFromTools(entry.Tools)
	}
	return emptyClientConfig()
}

// parseOverlay implements step 2: parse the overlay annotation JSON, which
// is either the "tools" shape (remote+localServers with enabled flags) or
// the "clientConfig" shape (remoteTools+localServers already resolved).
// Non-object entries under localServers are dropped (the object-or-drop
// rule spec.md calls out for the base synthesis applies equally here).
func parseOverlay(raw []byte) (ClientConfig, error) {
	var probe map[string]json.RawMessage
	if err := json.Unmarshal(raw, &probe); err != nil {
		return ClientConfig{}, fmt.Errorf("toolcatalog: invalid overlay JSON: %w", err)
	}
	if rawServers, ok := probe["localServers"]; ok {
		var servers map[string]json.RawMessage
		if json.Unmarshal(rawServers, &servers) == nil {
			for name, v := range servers {
				if t := bytes.TrimSpace(v); len(t) == 0 || t[0] != '{' {
					delete(servers, name)
				}
			}
			probe["localServers"], _ = json.Marshal(servers)
			raw, _ = json.Marshal(probe)
		}
	}

	if _, ok := probe["remoteTools"]; ok {
		var cc ClientConfig
		if err := json.Unmarshal(raw, &cc); err != nil {
			return ClientConfig{}, fmt.Errorf("toolcatalog: invalid overlay clientConfig shape: %w", err)
		}
		if cc.LocalServers == nil {
			cc.LocalServers = make(map[string]LocalServer)
		}
		return cc, nil
	}

	var ts ToolsSpec
	if err := json.Unmarshal(raw, &ts); err != nil {
		return ClientConfig{}, fmt.Errorf("toolcatalog: invalid overlay tools shape: %w", err)
	}
	return synthesizeFromTools(&ts), nil
}

// mergeLocalServer deep-merges one localServers entry: tools arrays are
// unioned (mergo has no set-union semantics for slices, so that part stays
// hand-rolled), everything else is overlay-wins via mergo.Merge with
// mergo.WithOverride — the overlay-over-defaults merge mergo exists for.
func mergeLocalServer(log logr.Logger, name string, base, overlay LocalServer) LocalServer {
	tools := unionPreservingOrder(base.Tools, overlay.Tools)

	merged := base
	merged.Tools = nil
	scalarOverlay := overlay
	scalarOverlay.Tools = nil
	if err := mergo.Merge(&merged, scalarOverlay, mergo.WithOverride); err != nil {
		log.Info("localServer overlay merge failed, keeping base fields", "server", name, "error", err.Error())
		merged = base
	}
	merged.Tools = tools
	return merged
}

// mergeConfigs implements step 3: remoteTools is a union preserving base
// order then overlay additions; localServers are deep-merged key by key,
// with tools arrays unioned and all other fields overlay-wins.
func mergeConfigs(log logr.Logger, base, overlay ClientConfig) ClientConfig {
	out := ClientConfig{
		RemoteTools:  unionPreservingOrder(base.RemoteTools, overlay.RemoteTools),
		LocalServers: make(map[string]LocalServer),
	}

	for name, b := range base.LocalServers {
		out.LocalServers[name] = b
	}
	for name, o := range overlay.LocalServers {
		b, existed := out.LocalServers[name]
		if !existed {
			out.LocalServers[name] = o
			continue
		}
		out.LocalServers[name] = mergeLocalServer(log, name, b, o)
	}
	return out
}

func unionPreservingOrder(base, overlay []string) []string {
	seen := make(map[string]bool, len(base)+len(overlay))
	out := make([]string, 0, len(base)+len(overlay))
	for _, v := range base {
		if !seen[v] {
			seen[v] = true
			out = append(out, v)
		}
	}
	for _, v := range overlay {
		if !seen[v] {
			seen[v] = true
			out = append(out, v)
		}
	}
	return out
}

// normalizeRemoteTools implements step 4: rewrite each remote tool name to
// its canonical form, drop duplicates after canonicalization, drop unknown
// names (logging a warning, never failing).
func normalizeRemoteTools(log logr.Logger, catalog *Catalog, tools []string) []string {
	seen := make(map[string]bool, len(tools))
	out := make([]string, 0, len(tools))
	for _, name := range tools {
		canon, ok := catalog.Canonicalize(name)
		if !ok {
			log.Info("dropping unknown remote tool", "tool", name)
			continue
		}
		if seen[canon] {
			continue
		}
		seen[canon] = true
		out = append(out, canon)
	}
	return out
}

// Resolve produces the client-config.json contents for a run: base from
// entry (controller config), overlay from the raw annotation JSON blob (may
// be empty), normalized and merged per spec.md §4.3. Resolve is idempotent:
// resolving an already-resolved ClientConfig as if it were an overlay over
// itself is a no-op (RemoteTools already canonical and deduplicated,
// LocalServers already deep-merged with themselves).
func Resolve(log logr.Logger, catalog *Catalog, entry *AgentEntry, overlayJSON string) (*ClientConfig, error) {
	base := baseClientConfig(entry)

	overlay := emptyClientConfig()
	if overlayJSON != "" {
		parsed, err := parseOverlay([]byte(overlayJSON))
		if err != nil {
			return nil, err
		}
		overlay = parsed
	}

	merged := mergeConfigs(log, base, overlay)
	merged.RemoteTools = normalizeRemoteTools(log, catalog, merged.RemoteTools)
	if merged.LocalServers == nil {
		merged.LocalServers = make(map[string]LocalServer)
	}
	return &merged, nil
}

// MarshalPretty renders cc as pretty-printed JSON, matching the
// client-config.json file the template generator writes into the ConfigMap.
func MarshalPretty(cc *ClientConfig) ([]byte, error) {
	return json.MarshalIndent(cc, "", "  ")
}
