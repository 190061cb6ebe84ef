package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/selfagency/beans-vscode-sub002/internal/beans"
	"github.com/selfagency/beans-vscode-sub002/internal/claude"
	"github.com/selfagency/beans-vscode-sub002/internal/hierarchy"
	"github.com/selfagency/beans-vscode-sub002/internal/mcpserver"
	"github.com/selfagency/beans-vscode-sub002/internal/mutate"
	"github.com/selfagency/beans-vscode-sub002/internal/rank"
	"github.com/selfagency/beans-vscode-sub002/internal/reporter"
	"github.com/selfagency/beans-vscode-sub002/internal/sorting"
	"github.com/selfagency/beans-vscode-sub002/internal/state"
	"github.com/selfagency/beans-vscode-sub002/internal/throttle"
	"github.com/selfagency/beans-vscode-sub002/internal/ui"
	"github.com/selfagency/beans-vscode-sub002/internal/viewer"
	"github.com/selfagency/beans-vscode-sub002/internal/watch"
)

func treeCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "tree",
		Short: "Show beans as a parent/child tree",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := setup(cmd)
			if err != nil {
				return err
			}
			mode, sortMode, err := a.viewModes()
			if err != nil {
				return err
			}
			p, err := a.provider(mode)
			if err != nil {
				return err
			}
			f, err := p.Refresh(cmd.Context())
			if err != nil {
				return err
			}

			nodes := sorting.SortForest(f, sortMode)
			if flagJSON {
				return reporter.WriteJSON(os.Stdout, nodes)
			}
			ui.PrintBanner(os.Stdout, fmt.Sprintf("%s · %s", mode, sortMode))
			reporter.PrintTree(os.Stdout, nodes)
			reporter.PrintTotals(os.Stdout, f.Beans())
			return nil
		},
	}
	cmd.Flags().StringVar(&flagMode, "mode", "", "Tree mode: nested or flat (default from saved view)")
	cmd.Flags().StringVar(&flagSort, "sort", "", "Sort mode (default from saved view)")
	addFilterFlags(cmd)
	return cmd
}

func listCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List beans without hierarchy",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := setup(cmd)
			if err != nil {
				return err
			}
			_, sortMode, err := a.viewModes()
			if err != nil {
				return err
			}
			filter, err := a.filter()
			if err != nil {
				return err
			}
			list, err := a.client.List(cmd.Context(), filter)
			if err != nil {
				return err
			}

			sorted := sorting.Sort(list, sortMode)
			if flagJSON {
				return reporter.WriteJSON(os.Stdout, sorted)
			}
			reporter.PrintList(os.Stdout, sorted)
			reporter.PrintTotals(os.Stdout, sorted)
			return nil
		},
	}
	cmd.Flags().StringVar(&flagSort, "sort", "", "Sort mode (default from saved view)")
	addFilterFlags(cmd)
	return cmd
}

func searchCmd() *cobra.Command {
	var flagLimit int

	cmd := &cobra.Command{
		Use:   "search <query>",
		Short: "Search beans ranked by relevance",
		Long: `Scores every bean against the query: id and code matches outrank title
matches, which outrank body, tag and metadata matches. Ties fall back to
priority, then status, then title.`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := setup(cmd)
			if err != nil {
				return err
			}
			filter, err := a.filter()
			if err != nil {
				return err
			}
			list, err := a.client.List(cmd.Context(), filter)
			if err != nil {
				return err
			}

			query := strings.Join(args, " ")
			results := rank.Search(list, query)
			if flagLimit > 0 && len(results) > flagLimit {
				results = results[:flagLimit]
			}

			if st, err := state.Load(a.root); err == nil {
				if err := st.SetQuery(query); err != nil {
					a.log.Debug("could not save query", "err", err)
				}
			}

			if flagJSON {
				return reporter.WriteJSON(os.Stdout, results)
			}
			reporter.PrintSearch(os.Stdout, query, results)
			return nil
		},
	}
	cmd.Flags().IntVar(&flagLimit, "limit", 20, "Maximum results (0 for all)")
	addFilterFlags(cmd)
	return cmd
}

func showCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "show <id>",
		Short: "Show one bean",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := setup(cmd)
			if err != nil {
				return err
			}
			b, err := a.client.Show(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			if flagJSON {
				return reporter.WriteJSON(os.Stdout, b)
			}
			reporter.PrintBean(os.Stdout, b)
			return nil
		},
	}
}

// parentArg returns the proposed parent from args, or "" with --top.
func parentArg(args []string, top bool) (string, error) {
	switch {
	case len(args) == 2 && top:
		return "", fmt.Errorf("give a parent id or --top, not both")
	case len(args) == 2:
		return args[1], nil
	case top:
		return "", nil
	default:
		return "", fmt.Errorf("parent id required (or --top to move to the top level)")
	}
}

func reparentCmd() *cobra.Command {
	var flagTop bool

	cmd := &cobra.Command{
		Use:   "reparent <id> [parent-id]",
		Short: "Move a bean under a new parent",
		Long: `Validates the move against the type rules and the existing ancestry and
only then updates the bean through the beans CLI. Use --top to remove
the parent.`,
		Args: cobra.RangeArgs(1, 2),
		RunE: func(cmd *cobra.Command, args []string) error {
			parent, err := parentArg(args, flagTop)
			if err != nil {
				return err
			}
			a, err := setup(cmd)
			if err != nil {
				return err
			}

			err = a.mover.Move(cmd.Context(), args[0], parent)
			var rej *mutate.RejectedError
			if errors.As(err, &rej) {
				if flagJSON {
					reporter.WriteJSON(os.Stdout, rej.Result)
				} else {
					reporter.PrintResult(os.Stdout, args[0], parent, rej.Result)
				}
				return fmt.Errorf("move rejected")
			}
			if err != nil {
				return err
			}

			if flagJSON {
				return reporter.WriteJSON(os.Stdout, map[string]string{"bean": args[0], "parent": parent})
			}
			target := parent
			if target == "" {
				target = "the top level"
			}
			fmt.Printf("%s Moved %s to %s\n", ui.Green("✓"), ui.Bold(args[0]), ui.Bold(target))
			return nil
		},
	}
	cmd.Flags().BoolVar(&flagTop, "top", false, "Move the bean to the top level")
	return cmd
}

func checkParentCmd() *cobra.Command {
	var flagTop bool

	cmd := &cobra.Command{
		Use:   "check-parent <id> [parent-id]",
		Short: "Check whether a bean may move under a parent without changing anything",
		Args:  cobra.RangeArgs(1, 2),
		RunE: func(cmd *cobra.Command, args []string) error {
			parent, err := parentArg(args, flagTop)
			if err != nil {
				return err
			}
			a, err := setup(cmd)
			if err != nil {
				return err
			}
			_, res, err := a.mover.Check(cmd.Context(), args[0], parent)
			if err != nil {
				return err
			}
			if flagJSON {
				return reporter.WriteJSON(os.Stdout, res)
			}
			reporter.PrintResult(os.Stdout, args[0], parent, res)
			return nil
		},
	}
	cmd.Flags().BoolVar(&flagTop, "top", false, "Check moving the bean to the top level")
	return cmd
}

func sortCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "sort [mode]",
		Short: "Show or save the default sort mode",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := setup(cmd)
			if err != nil {
				return err
			}
			st, err := state.Load(a.root)
			if err != nil {
				return err
			}

			if len(args) == 0 {
				current, _ := st.Snapshot(a.cfg.View.Sort, a.cfg.View.Mode)
				if flagJSON {
					return reporter.WriteJSON(os.Stdout, map[string]any{"sort": current, "modes": sorting.Modes()})
				}
				for _, m := range sorting.Modes() {
					mark := "  "
					if string(m) == current {
						mark = ui.Green("● ")
					}
					fmt.Printf("%s%s\n", mark, m)
				}
				return nil
			}

			mode, err := sorting.ParseMode(args[0])
			if err != nil {
				return err
			}
			if err := st.SetSortMode(string(mode)); err != nil {
				return err
			}
			fmt.Printf("%s Sort mode set to %s\n", ui.Green("✓"), ui.Bold(mode))
			return nil
		},
	}
}

func viewCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "view [nested|flat]",
		Short: "Show or save the default tree mode",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := setup(cmd)
			if err != nil {
				return err
			}
			st, err := state.Load(a.root)
			if err != nil {
				return err
			}

			if len(args) == 0 {
				_, current := st.Snapshot(a.cfg.View.Sort, a.cfg.View.Mode)
				if flagJSON {
					return reporter.WriteJSON(os.Stdout, map[string]string{"view": current})
				}
				fmt.Println(current)
				return nil
			}

			mode, err := hierarchy.ParseMode(args[0])
			if err != nil {
				return err
			}
			if err := st.SetViewMode(string(mode)); err != nil {
				return err
			}
			fmt.Printf("%s View mode set to %s\n", ui.Green("✓"), ui.Bold(mode))
			return nil
		},
	}
}

// watchTree returns a refresh function that reloads p and redraws the tree.
func watchTree(p *hierarchy.Provider, sortMode sorting.Mode) func(ctx context.Context) error {
	return func(ctx context.Context) error {
		f, err := p.Refresh(ctx)
		if err != nil {
			return err
		}
		nodes := sorting.SortForest(f, sortMode)
		if flagJSON {
			return reporter.WriteJSON(os.Stdout, nodes)
		}
		fmt.Print("\033[H\033[2J")
		ui.PrintBanner(os.Stdout, fmt.Sprintf("watching · %s · %s", f.Mode(), sortMode))
		reporter.PrintTree(os.Stdout, nodes)
		reporter.PrintTotals(os.Stdout, f.Beans())
		return nil
	}
}

func (a *app) watcher(refresh func(ctx context.Context) error) *watch.Watcher {
	return watch.New(a.dataDir, refresh,
		watch.WithDebounce(a.cfg.Watch.Debounce),
		watch.WithThrottle(throttle.New(a.cfg.Watch.ErrorWindow, nil)),
		watch.WithLogger(a.log),
	)
}

func watchCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "watch",
		Short: "Redraw the tree whenever bean files change",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := setup(cmd)
			if err != nil {
				return err
			}
			if a.dataDir == "" {
				return fmt.Errorf("no beans data directory: run inside a beans project or pass --beans-path")
			}
			mode, sortMode, err := a.viewModes()
			if err != nil {
				return err
			}
			p, err := a.provider(mode)
			if err != nil {
				return err
			}

			refresh := watchTree(p, sortMode)
			if err := refresh(cmd.Context()); err != nil {
				return err
			}
			err = a.watcher(refresh).Run(cmd.Context())
			if errors.Is(err, context.Canceled) {
				return nil
			}
			return err
		},
	}
	cmd.Flags().StringVar(&flagMode, "mode", "", "Tree mode: nested or flat (default from saved view)")
	cmd.Flags().StringVar(&flagSort, "sort", "", "Sort mode (default from saved view)")
	addFilterFlags(cmd)
	return cmd
}

func serveCmd() *cobra.Command {
	var (
		flagPort  int
		flagWatch bool
	)

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve the tree, search and reparent checks as a JSON API",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := setup(cmd)
			if err != nil {
				return err
			}
			mode, sortMode, err := a.viewModes()
			if err != nil {
				return err
			}
			p, err := a.provider(mode)
			if err != nil {
				return err
			}

			port := a.cfg.Serve.Port
			if cmd.Flags().Changed("port") {
				port = flagPort
			}
			if viewer.IsPortOpen(fmt.Sprintf("localhost:%d", port)) {
				return fmt.Errorf("port %d is already in use", port)
			}

			srv := viewer.NewServer(p, a.validator, a.client.Show, sortMode, a.log)
			g, ctx := errgroup.WithContext(cmd.Context())
			g.Go(func() error { return srv.ListenAndServe(ctx, port) })
			if flagWatch && a.dataDir != "" {
				w := a.watcher(func(ctx context.Context) error {
					_, err := p.Refresh(ctx)
					return err
				})
				g.Go(func() error {
					if err := w.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
						return err
					}
					return nil
				})
			}
			fmt.Printf("🌐 Serving on %s\n", ui.Bold(fmt.Sprintf("http://localhost:%d", port)))
			return g.Wait()
		},
	}
	cmd.Flags().IntVar(&flagPort, "port", 7171, "Listen port (default from serve.port)")
	cmd.Flags().BoolVar(&flagWatch, "watch", true, "Refresh the tree when bean files change")
	cmd.Flags().StringVar(&flagMode, "mode", "", "Tree mode: nested or flat (default from saved view)")
	cmd.Flags().StringVar(&flagSort, "sort", "", "Sort mode (default from saved view)")
	addFilterFlags(cmd)
	return cmd
}

func mcpCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "mcp",
		Short: "Serve beanline tools over MCP on stdio",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := setup(cmd)
			if err != nil {
				return err
			}
			mode, sortMode, err := a.viewModes()
			if err != nil {
				return err
			}
			p, err := a.provider(mode)
			if err != nil {
				return err
			}
			s := mcpserver.New(version, mcpserver.Deps{
				Provider:  p,
				Store:     a.client,
				Validator: a.validator,
				Sort:      sortMode,
				Log:       a.log,
			})
			return mcpserver.ServeStdio(s)
		},
	}
}

func suggestParentCmd() *cobra.Command {
	var (
		flagApply bool
		flagModel string
	)

	cmd := &cobra.Command{
		Use:   "suggest-parent <id>",
		Short: "Ask Claude which bean should contain this one",
		Long: `Sends the bean and every open bean its type may be nested under to Claude,
then runs the suggestion through the same checks as reparent. With --apply
an accepted suggestion is written back through the beans CLI.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := setup(cmd)
			if err != nil {
				return err
			}
			model := a.cfg.Claude.Model
			if flagModel != "" {
				model = flagModel
			}
			c, err := claude.NewClient("", model)
			if err != nil {
				return err
			}

			ctx := cmd.Context()
			b, err := a.client.Show(ctx, args[0])
			if err != nil {
				return err
			}
			all, err := a.client.List(ctx, beans.Filter{})
			if err != nil {
				return err
			}

			if !flagJSON {
				fmt.Printf("🔍 Asking Claude for a parent for %s...\n", ui.Code(b))
			}
			sugg, err := claude.SuggestParent(ctx, c, b, all)
			if err != nil {
				return err
			}
			if sugg.Parent == "" {
				if flagJSON {
					return reporter.WriteJSON(os.Stdout, map[string]any{"suggestion": sugg})
				}
				fmt.Printf("%s No parent suggested: %s\n", ui.Yellow("⏭️"), sugg.Reason)
				return nil
			}

			_, res, err := a.mover.Check(ctx, b.ID, sugg.Parent)
			if err != nil {
				return err
			}
			applied := false
			if flagApply && res.Valid {
				if err := a.mover.Move(ctx, b.ID, sugg.Parent); err != nil {
					return err
				}
				applied = true
			}

			if flagJSON {
				return reporter.WriteJSON(os.Stdout, map[string]any{
					"suggestion": sugg,
					"result":     res,
					"applied":    applied,
				})
			}
			fmt.Printf("💡 %s → %s: %s\n", ui.Bold(b.ID), ui.BoldMagenta(sugg.Parent), sugg.Reason)
			reporter.PrintResult(os.Stdout, b.ID, sugg.Parent, res)
			if applied {
				fmt.Printf("%s Moved %s under %s\n", ui.Green("✓"), ui.Bold(b.ID), ui.Bold(sugg.Parent))
			} else if res.Valid {
				fmt.Printf("%s\n", ui.Dim("Run again with --apply to make the change."))
			}
			return nil
		},
	}
	cmd.Flags().BoolVar(&flagApply, "apply", false, "Apply the suggestion if it passes validation")
	cmd.Flags().StringVar(&flagModel, "model", "", "Claude model (default from claude.model)")
	return cmd
}
