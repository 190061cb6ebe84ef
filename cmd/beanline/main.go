package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/selfagency/beans-vscode-sub002/internal/bean"
	"github.com/selfagency/beans-vscode-sub002/internal/beans"
	"github.com/selfagency/beans-vscode-sub002/internal/config"
	"github.com/selfagency/beans-vscode-sub002/internal/hierarchy"
	"github.com/selfagency/beans-vscode-sub002/internal/logging"
	"github.com/selfagency/beans-vscode-sub002/internal/mutate"
	"github.com/selfagency/beans-vscode-sub002/internal/reparent"
	"github.com/selfagency/beans-vscode-sub002/internal/sorting"
	"github.com/selfagency/beans-vscode-sub002/internal/state"
)

var version = "dev"

var (
	flagConfig    string
	flagJSON      bool
	flagBeansPath string
	flagLogLevel  string

	flagMode     string
	flagSort     string
	flagStatuses []string
	flagTypes    []string
	flagTags     []string
)

func main() {
	rootCmd := &cobra.Command{
		Use:   "beanline",
		Short: "Browse and reshape the beans issue hierarchy",
		Long: `Beanline reads issues from the beans CLI, arranges them into a
milestone/epic/feature/task tree, sorts and searches them, and checks every
parent change against the type rules and for cycles before applying it.`,
		SilenceUsage: true,
		Version:      version,
	}

	// Global flags
	rootCmd.PersistentFlags().StringVar(&flagConfig, "config", "", "Config file (default .beanline.yaml)")
	rootCmd.PersistentFlags().BoolVar(&flagJSON, "json", false, "Machine-readable JSON output")
	rootCmd.PersistentFlags().StringVar(&flagBeansPath, "beans-path", "", "Beans data directory passed to the beans CLI")
	rootCmd.PersistentFlags().StringVar(&flagLogLevel, "log-level", "", "Log level: debug, info, warn, error")

	rootCmd.AddCommand(treeCmd())
	rootCmd.AddCommand(listCmd())
	rootCmd.AddCommand(searchCmd())
	rootCmd.AddCommand(showCmd())
	rootCmd.AddCommand(reparentCmd())
	rootCmd.AddCommand(checkParentCmd())
	rootCmd.AddCommand(sortCmd())
	rootCmd.AddCommand(viewCmd())
	rootCmd.AddCommand(watchCmd())
	rootCmd.AddCommand(serveCmd())
	rootCmd.AddCommand(mcpCmd())
	rootCmd.AddCommand(suggestParentCmd())

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	err := rootCmd.ExecuteContext(ctx)
	stop()
	if err != nil {
		os.Exit(1)
	}
}

// app holds the components shared by every command.
type app struct {
	cfg       *config.Config
	log       *slog.Logger
	client    *beans.Client
	validator *reparent.Validator
	mover     *mutate.Mover
	root      string
	dataDir   string
}

// setup loads configuration and builds the engine for cmd.
func setup(cmd *cobra.Command) (*app, error) {
	v := config.New(flagConfig)
	if err := v.BindPFlag("beans.path", cmd.Flags().Lookup("beans-path")); err != nil {
		return nil, fmt.Errorf("bind --beans-path: %w", err)
	}
	if err := v.BindPFlag("log.level", cmd.Flags().Lookup("log-level")); err != nil {
		return nil, fmt.Errorf("bind --log-level: %w", err)
	}
	cfg, err := config.Load(v)
	if err != nil {
		return nil, err
	}

	log, err := logging.Setup(os.Stderr, cfg.Log.Level, cfg.Log.Format)
	if err != nil {
		return nil, err
	}
	if cfg.File != "" {
		log.Debug("config loaded", "file", cfg.File)
	}

	a := &app{cfg: cfg, log: log}

	cwd, err := os.Getwd()
	if err != nil {
		return nil, fmt.Errorf("get working directory: %w", err)
	}
	a.root, a.dataDir = cwd, cfg.Beans.Path
	proj, err := beans.FindProjectConfig(cwd)
	switch {
	case err == nil:
		a.root = proj.Root
		if a.dataDir == "" {
			a.dataDir = proj.DataDir()
		}
	case errors.Is(err, beans.ErrNoProject):
		log.Debug("no beans project file found", "start", cwd)
	default:
		return nil, err
	}

	a.client = beans.NewClient(cfg.Beans.Bin, cfg.Beans.Path,
		beans.WithRetries(cfg.Beans.Retries),
		beans.WithTimeout(cfg.Beans.Timeout),
		beans.WithLogger(log),
	)
	a.validator = reparent.New(
		reparent.WithMaxDepth(cfg.Reparent.MaxDepth),
		reparent.WithLogger(log),
	)
	a.mover = mutate.NewMover(a.client, a.validator, log)
	return a, nil
}

// filter builds the list filter from flags, falling back to view.statuses.
func (a *app) filter() (beans.Filter, error) {
	f := beans.Filter{Tags: flagTags}
	statuses := flagStatuses
	if len(statuses) == 0 {
		statuses = a.cfg.View.Statuses
	}
	for _, s := range statuses {
		st, err := bean.ParseStatus(s)
		if err != nil {
			return f, err
		}
		f.Statuses = append(f.Statuses, st)
	}
	for _, s := range flagTypes {
		t, err := bean.ParseType(s)
		if err != nil {
			return f, err
		}
		f.Types = append(f.Types, t)
	}
	return f, nil
}

// provider returns a hierarchy provider over the filtered bean list.
func (a *app) provider(mode hierarchy.Mode) (*hierarchy.Provider, error) {
	f, err := a.filter()
	if err != nil {
		return nil, err
	}
	src := hierarchy.SourceFunc(func(ctx context.Context) ([]bean.Bean, error) {
		return a.client.List(ctx, f)
	})
	return hierarchy.NewProvider(src, mode), nil
}

// viewModes resolves tree and sort modes: flags, then saved state, then config.
func (a *app) viewModes() (hierarchy.Mode, sorting.Mode, error) {
	st, err := state.Load(a.root)
	if err != nil {
		a.log.Warn("ignoring unreadable view state", "err", err)
		st = &state.ViewState{}
	}
	savedSort, savedView := st.Snapshot(a.cfg.View.Sort, a.cfg.View.Mode)

	viewMode := savedView
	if flagMode != "" {
		viewMode = flagMode
	}
	mode, err := hierarchy.ParseMode(viewMode)
	if err != nil {
		return "", "", err
	}

	sortMode := savedSort
	if flagSort != "" {
		sortMode = flagSort
	}
	sm, err := sorting.ParseMode(sortMode)
	if err != nil {
		return "", "", err
	}
	return mode, sm, nil
}

func addFilterFlags(cmd *cobra.Command) {
	cmd.Flags().StringSliceVar(&flagStatuses, "status", nil, "Only show beans with these statuses")
	cmd.Flags().StringSliceVar(&flagTypes, "type", nil, "Only show beans of these types")
	cmd.Flags().StringSliceVar(&flagTags, "tag", nil, "Only show beans with these tags")
}
