package providers

import (
	"github.com/cubicler/cubicler/pkg/codec"
	"github.com/cubicler/cubicler/pkg/config"
)

// directoryEntry is one server's identity as exposed through
// cubicler_available_servers / cubicler_fetch_server_tools.
type directoryEntry struct {
	identifier  string
	name        string
	description string
	hash        string
}

// Directory is the ServerDirectory built from the providers configuration
// document: every configured MCP server and REST server, side by side.
type Directory struct {
	entries map[string]directoryEntry
	order   []string
}

// NewDirectory builds a Directory over the configured MCP and REST servers.
func NewDirectory(providers *config.ProvidersConfig) *Directory {
	d := &Directory{entries: map[string]directoryEntry{}}
	for _, s := range providers.McpServers {
		d.add(s.Identifier, s.Name, s.Description, codec.Hash(s.Identifier, s.PrimaryString()))
	}
	for _, s := range providers.RestServers {
		d.add(s.Identifier, s.Name, s.Description, codec.Hash(s.Identifier, s.URL))
	}
	return d
}

func (d *Directory) add(identifier, name, description, hash string) {
	d.entries[identifier] = directoryEntry{identifier: identifier, name: name, description: description, hash: hash}
	d.order = append(d.order, identifier)
}

// HashFor implements ServerDirectory.
func (d *Directory) HashFor(identifier string) (string, bool) {
	e, ok := d.entries[identifier]
	return e.hash, ok
}

// Describe implements ServerDirectory.
func (d *Directory) Describe(identifier string) (string, string, bool) {
	e, ok := d.entries[identifier]
	return e.name, e.description, ok
}

// Identifiers implements ServerDirectory.
func (d *Directory) Identifiers() []string {
	return d.order
}
