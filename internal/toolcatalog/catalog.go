// Copyright Contributors to the CodeRun Operator project

// Package toolcatalog normalizes remote MCP tool names against a canonical
// catalog and resolves the per-run client-config.json by merging controller
// defaults with a per-run overlay annotation.
package toolcatalog

import "strings"

// Catalog maps every known remote tool name, including legacy aliases, to a
// single canonical identifier. It is read-only after construction.
type Catalog struct {
	canonical map[string]string
}

// DefaultCatalog returns the canonical tool catalog bundled with the
// operator. It mirrors the set of remote MCP tools the template generator's
// shared partials assume exist (memory, filesystem, search, github).
func DefaultCatalog() *Catalog {
	c := NewCatalog()
	for _, name := range []string{
		"memory_create_entities",
		"memory_search_nodes",
		"memory_read_graph",
		"read_file",
		"write_file",
		"list_directory",
		"brave_search_brave_web_search",
		"github_search_code",
		"github_get_file_contents",
	} {
		c.Register(name)
	}
	// Legacy aliases observed in older overlay annotations.
	c.Alias("brave_web_search", "brave_search_brave_web_search")
	c.Alias("fs_read_file", "read_file")
	c.Alias("fs_write_file", "write_file")
	c.Alias("fs_list_directory", "list_directory")
	return c
}

// NewCatalog returns an empty catalog.
func NewCatalog() *Catalog {
	return &Catalog{canonical: make(map[string]string)}
}

// Register adds name to the catalog as its own canonical identifier.
func (c *Catalog) Register(name string) {
	c.canonical[name] = name
}

// Alias registers alias as mapping to the (already or not-yet registered)
// canonical name.
func (c *Catalog) Alias(alias, canonical string) {
	c.canonical[alias] = canonical
}

// Canonicalize returns the canonical form of name and whether it is known to
// the catalog. Lookups are case-sensitive: the catalog and overlays are
// expected to already use the tool identifiers verbatim, matching how the
// upstream MCP servers name their own tools.
func (c *Catalog) Canonicalize(name string) (string, bool) {
	name = strings.TrimSpace(name)
	if name == "" {
		return "", false
	}
	canon, ok := c.canonical[name]
	return canon, ok
}
