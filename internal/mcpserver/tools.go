package mcpserver

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/mark3labs/mcp-go/mcp"
	"golang.org/x/sync/errgroup"

	"github.com/selfagency/beans-vscode-sub002/internal/bean"
	"github.com/selfagency/beans-vscode-sub002/internal/hierarchy"
	"github.com/selfagency/beans-vscode-sub002/internal/mutate"
	"github.com/selfagency/beans-vscode-sub002/internal/rank"
	"github.com/selfagency/beans-vscode-sub002/internal/reparent"
	"github.com/selfagency/beans-vscode-sub002/internal/sorting"
)

// lookupLimit bounds concurrent bean lookups in batch tools.
const lookupLimit = 4

func jsonResult(v any) (*mcp.CallToolResult, error) {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("marshal result: %w", err)
	}
	return mcp.NewToolResultText(string(data)), nil
}

func currentForest(ctx context.Context, p *hierarchy.Provider) (*hierarchy.Forest, error) {
	if f := p.Current(); f != nil {
		return f, nil
	}
	return p.Refresh(ctx)
}

func modeNames() []string {
	modes := sorting.Modes()
	out := make([]string, len(modes))
	for i, m := range modes {
		out[i] = string(m)
	}
	return out
}

// --- beans_tree ---

// TreeTool returns the sorted hierarchy.
type TreeTool struct {
	provider *hierarchy.Provider
	sort     sorting.Mode
}

func NewTreeTool(p *hierarchy.Provider, sort sorting.Mode) *TreeTool {
	return &TreeTool{provider: p, sort: sort}
}

func (t *TreeTool) Definition() mcp.Tool {
	return mcp.NewTool("beans_tree",
		mcp.WithDescription("Return the beans parent/child tree as JSON. Nodes flagged active_descendant hide in-progress work."),
		mcp.WithString("mode",
			mcp.Description("nested (default) shows children under parents; flat lists every bean at the top level."),
			mcp.Enum(string(hierarchy.ModeNested), string(hierarchy.ModeFlat)),
		),
		mcp.WithString("sort",
			mcp.Description("Sort mode applied to every sibling group."),
			mcp.Enum(modeNames()...),
		),
		mcp.WithBoolean("refresh",
			mcp.Description("Reload beans from disk before answering."),
		),
	)
}

func (t *TreeTool) Handle(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	mode, err := hierarchy.ParseMode(req.GetString("mode", ""))
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	sortMode := t.sort
	if s := req.GetString("sort", ""); s != "" {
		if sortMode, err = sorting.ParseMode(s); err != nil {
			return mcp.NewToolResultError(err.Error()), nil
		}
	}

	var f *hierarchy.Forest
	if req.GetBool("refresh", false) {
		f, err = t.provider.Refresh(ctx)
	} else {
		f, err = currentForest(ctx, t.provider)
	}
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	if f.Mode() != mode {
		f = hierarchy.Materialize(f.Beans(), mode)
	}
	return jsonResult(sorting.SortForest(f, sortMode))
}

// --- beans_search ---

// SearchTool ranks beans against a query.
type SearchTool struct {
	provider *hierarchy.Provider
}

func NewSearchTool(p *hierarchy.Provider) *SearchTool { return &SearchTool{provider: p} }

func (t *SearchTool) Definition() mcp.Tool {
	return mcp.NewTool("beans_search",
		mcp.WithDescription("Search beans by id, code, title, body, tags and metadata. Results are ranked by relevance."),
		mcp.WithString("query", mcp.Required(), mcp.Description("Free-text query.")),
		mcp.WithNumber("limit", mcp.Description("Maximum results (default 20).")),
	)
}

func (t *SearchTool) Handle(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	query, err := req.RequireString("query")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	f, err := currentForest(ctx, t.provider)
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	results := rank.Search(f.Beans(), query)
	if limit := req.GetInt("limit", 20); limit > 0 && len(results) > limit {
		results = results[:limit]
	}
	return jsonResult(results)
}

// --- beans_validate_parent ---

// ValidateTool checks a single reparent request without applying it.
type ValidateTool struct {
	mover *mutate.Mover
}

func NewValidateTool(m *mutate.Mover) *ValidateTool { return &ValidateTool{mover: m} }

func (t *ValidateTool) Definition() mcp.Tool {
	return mcp.NewTool("beans_validate_parent",
		mcp.WithDescription("Check whether a bean may be moved under a new parent. Omit parent to check moving it to the top level."),
		mcp.WithString("bean", mcp.Required(), mcp.Description("ID of the bean to move.")),
		mcp.WithString("parent", mcp.Description("ID of the proposed parent.")),
	)
}

func (t *ValidateTool) Handle(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	id, err := req.RequireString("bean")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	_, res, err := t.mover.Check(ctx, id, req.GetString("parent", ""))
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	return jsonResult(res)
}

// --- beans_set_parent ---

// SetParentTool validates and applies a reparent request.
type SetParentTool struct {
	mover    *mutate.Mover
	provider *hierarchy.Provider
}

func NewSetParentTool(m *mutate.Mover, p *hierarchy.Provider) *SetParentTool {
	return &SetParentTool{mover: m, provider: p}
}

func (t *SetParentTool) Definition() mcp.Tool {
	return mcp.NewTool("beans_set_parent",
		mcp.WithDescription("Move a bean under a new parent after validating the move. Omit parent to move it to the top level."),
		mcp.WithString("bean", mcp.Required(), mcp.Description("ID of the bean to move.")),
		mcp.WithString("parent", mcp.Description("ID of the new parent.")),
	)
}

func (t *SetParentTool) Handle(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	id, err := req.RequireString("bean")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	parent := req.GetString("parent", "")
	if err := t.mover.Move(ctx, id, parent); err != nil {
		var rej *mutate.RejectedError
		if errors.As(err, &rej) {
			return mcp.NewToolResultError(rej.Result.Reason), nil
		}
		return mcp.NewToolResultError(err.Error()), nil
	}
	if _, err := t.provider.Refresh(ctx); err != nil {
		return mcp.NewToolResultText(fmt.Sprintf("moved %s; tree refresh failed: %v", id, err)), nil
	}
	if parent == "" {
		return mcp.NewToolResultText(fmt.Sprintf("moved %s to the top level", id)), nil
	}
	return mcp.NewToolResultText(fmt.Sprintf("moved %s under %s", id, parent)), nil
}

// --- beans_validate_parents ---

// BatchValidateTool checks many reparent requests at once.
type BatchValidateTool struct {
	store     mutate.Store
	validator *reparent.Validator
}

func NewBatchValidateTool(s mutate.Store, v *reparent.Validator) *BatchValidateTool {
	return &BatchValidateTool{store: s, validator: v}
}

func (t *BatchValidateTool) Definition() mcp.Tool {
	return mcp.NewTool("beans_validate_parents",
		mcp.WithDescription("Check several moves at once. Results are returned in request order."),
		mcp.WithArray("moves",
			mcp.Required(),
			mcp.Description(`List of {"bean": id, "parent": id} objects; an empty parent means the top level.`),
			mcp.Items(map[string]any{
				"type": "object",
				"properties": map[string]any{
					"bean":   map[string]any{"type": "string"},
					"parent": map[string]any{"type": "string"},
				},
				"required": []string{"bean"},
			}),
		),
	)
}

type moveRequest struct {
	Bean   string `json:"bean"`
	Parent string `json:"parent"`
}

type moveResult struct {
	Bean   string `json:"bean"`
	Parent string `json:"parent,omitempty"`
	reparent.Result
	Error string `json:"error,omitempty"`
}

func (t *BatchValidateTool) Handle(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	raw, ok := req.GetArguments()["moves"]
	if !ok {
		return mcp.NewToolResultError("moves is required"), nil
	}
	data, err := json.Marshal(raw)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("invalid moves: %v", err)), nil
	}
	var reqs []moveRequest
	if err := json.Unmarshal(data, &reqs); err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("invalid moves: %v", err)), nil
	}

	// Resolve every referenced bean once.
	ids := make(map[string]struct{})
	for _, r := range reqs {
		ids[r.Bean] = struct{}{}
		if r.Parent != "" {
			ids[r.Parent] = struct{}{}
		}
	}
	resolved, failed := t.resolve(ctx, ids)

	out := make([]moveResult, len(reqs))
	var moves []reparent.Move
	var index []int
	for i, r := range reqs {
		out[i] = moveResult{Bean: r.Bean, Parent: r.Parent}
		if err := firstErr(failed, r.Bean, r.Parent); err != nil {
			out[i].Error = err.Error()
			continue
		}
		m := reparent.Move{Candidate: resolved[r.Bean]}
		if r.Parent != "" {
			p := resolved[r.Parent]
			m.Parent = &p
		}
		moves = append(moves, m)
		index = append(index, i)
	}

	results := t.validator.ValidateAll(ctx, moves, t.store.Show, lookupLimit)
	for j, res := range results {
		out[index[j]].Result = res
	}
	return jsonResult(out)
}

func (t *BatchValidateTool) resolve(ctx context.Context, ids map[string]struct{}) (map[string]bean.Bean, map[string]error) {
	type fetched struct {
		id  string
		b   bean.Bean
		err error
	}
	list := make([]string, 0, len(ids))
	for id := range ids {
		list = append(list, id)
	}
	results := make([]fetched, len(list))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(lookupLimit)
	for i, id := range list {
		g.Go(func() error {
			b, err := t.store.Show(gctx, id)
			results[i] = fetched{id: id, b: b, err: err}
			return nil
		})
	}
	_ = g.Wait()

	beans := make(map[string]bean.Bean, len(list))
	failed := make(map[string]error)
	for _, r := range results {
		if r.err != nil {
			failed[r.id] = r.err
			continue
		}
		beans[r.id] = r.b
	}
	return beans, failed
}

func firstErr(failed map[string]error, ids ...string) error {
	for _, id := range ids {
		if err, ok := failed[id]; ok {
			return err
		}
	}
	return nil
}
