// Package mcpserver exposes the bean tree and reparent checks as MCP tools.
package mcpserver

import (
	"log/slog"

	"github.com/mark3labs/mcp-go/server"

	"github.com/selfagency/beans-vscode-sub002/internal/hierarchy"
	"github.com/selfagency/beans-vscode-sub002/internal/mutate"
	"github.com/selfagency/beans-vscode-sub002/internal/reparent"
	"github.com/selfagency/beans-vscode-sub002/internal/sorting"
)

// Deps are the shared components the tools run against.
type Deps struct {
	Provider  *hierarchy.Provider
	Store     mutate.Store
	Validator *reparent.Validator
	Sort      sorting.Mode
	Log       *slog.Logger
}

func (d *Deps) defaults() {
	if d.Validator == nil {
		d.Validator = reparent.New()
	}
	if d.Log == nil {
		d.Log = slog.Default()
	}
	if d.Sort == "" {
		d.Sort = sorting.DefaultMode
	}
}

// New creates the MCP server with every tool registered.
func New(version string, d Deps) *server.MCPServer {
	d.defaults()

	s := server.NewMCPServer(
		"beanline",
		version,
		server.WithToolCapabilities(true),
		server.WithRecovery(),
		server.WithInstructions(instructions),
	)

	mover := mutate.NewMover(d.Store, d.Validator, d.Log)

	treeTool := NewTreeTool(d.Provider, d.Sort)
	s.AddTool(treeTool.Definition(), treeTool.Handle)

	searchTool := NewSearchTool(d.Provider)
	s.AddTool(searchTool.Definition(), searchTool.Handle)

	validateTool := NewValidateTool(mover)
	s.AddTool(validateTool.Definition(), validateTool.Handle)

	setParentTool := NewSetParentTool(mover, d.Provider)
	s.AddTool(setParentTool.Definition(), setParentTool.Handle)

	batchTool := NewBatchValidateTool(d.Store, d.Validator)
	s.AddTool(batchTool.Definition(), batchTool.Handle)

	return s
}

// ServeStdio runs s over stdin and stdout until the client disconnects.
func ServeStdio(s *server.MCPServer) error {
	return server.ServeStdio(s)
}

const instructions = `beanline exposes the beans issue tracker as a parent/child tree.
Use beans_tree to see the hierarchy, beans_search to find beans by text,
and always call beans_validate_parent before proposing a new parent.
beans_set_parent validates again before applying the change.`
