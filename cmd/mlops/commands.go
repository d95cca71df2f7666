package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"sort"
	"strconv"

	"github.com/urfave/cli/v3"
	"gopkg.in/yaml.v3"

	"github.com/starford/mlops-catalog/internal"
	"github.com/starford/mlops-catalog/internal/archive"
	"github.com/starford/mlops-catalog/internal/converter"
	"github.com/starford/mlops-catalog/internal/mcpserver"
	"github.com/starford/mlops-catalog/internal/notebook"
	"github.com/starford/mlops-catalog/internal/registry"
	"github.com/starford/mlops-catalog/internal/tracking"
	"github.com/starford/mlops-catalog/internal/vertex"
	pkgconfig "github.com/starford/mlops-catalog/pkg/config"
)

// app carries the streams shared by every command.
type app struct {
	in  io.Reader
	out io.Writer
}

func newApp(in io.Reader, out io.Writer) *cli.Command {
	a := &app{in: in, out: out}
	return &cli.Command{
		Name:   "mlops",
		Usage:  "MLOps catalog: notebook conversion, JSON archives, model registry and experiment tracking",
		Writer: out,
		Action: a.runNotebooks,
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:        "config",
				Aliases:     []string{"c"},
				Usage:       "Path to config file",
				DefaultText: "config/config.yaml",
				Value:       "config/config.yaml",
				Sources:     cli.EnvVars("MLOPS_CONFIG_FILE"),
			},
		},
		Commands: []*cli.Command{
			{
				Name:   "notebooks",
				Usage:  "Interactive notebook conversion workflow",
				Action: a.runNotebooks,
			},
			{
				Name:      "convert",
				Usage:     "Convert a file; formats are taken from the extensions",
				ArgsUsage: "SRC DST",
				Action:    a.runConvert,
			},
			{
				Name:  "archive",
				Usage: "Manage archived JSON notebooks",
				Commands: []*cli.Command{
					{
						Name:   "list",
						Usage:  "List archived JSON notebooks",
						Action: a.runArchiveList,
					},
					{
						Name:      "restore",
						Usage:     "Copy an archived JSON notebook back to the JSON directory",
						ArgsUsage: "NAME",
						Action:    a.runArchiveRestore,
					},
					{
						Name:  "purge",
						Usage: "Delete archived JSON notebooks older than the retention window",
						Flags: []cli.Flag{
							&cli.IntFlag{
								Name:  "days",
								Usage: "Retention window in days (defaults to workspace.retention_days)",
								Value: archive.DefaultRetentionDays,
							},
						},
						Action: a.runArchivePurge,
					},
				},
			},
			{
				Name:  "model",
				Usage: "Model registry",
				Commands: []*cli.Command{
					{
						Name:      "register",
						Usage:     "Register a model version from a YAML file",
						ArgsUsage: "CONFIG",
						Flags: []cli.Flag{
							&cli.BoolFlag{Name: "dry-run", Usage: "Validate the file without registering"},
						},
						Action: a.runModelRegister,
					},
					{
						Name:      "show",
						Usage:     "Show one registered model version",
						ArgsUsage: "NAME VERSION",
						Action:    a.runModelShow,
					},
					{
						Name:  "list",
						Usage: "List registered models",
						Flags: []cli.Flag{
							&cli.StringFlag{Name: "name", Usage: "Only list versions of this model"},
						},
						Action: a.runModelList,
					},
				},
			},
			{
				Name:  "exp",
				Usage: "Experiment tracking",
				Commands: []*cli.Command{
					{
						Name:      "params",
						Usage:     "Log experiment parameters",
						ArgsUsage: "NAME KEY=VALUE...",
						Action:    a.runExpParams,
					},
					{
						Name:      "log",
						Usage:     "Log one metric value",
						ArgsUsage: "NAME KEY VALUE",
						Flags: []cli.Flag{
							&cli.IntFlag{Name: "step", Usage: "Training step"},
						},
						Action: a.runExpLog,
					},
					{
						Name:      "show",
						Usage:     "Show experiment parameters and metrics",
						ArgsUsage: "NAME",
						Action:    a.runExpShow,
					},
				},
			},
			{
				Name:  "vertex",
				Usage: "Vertex AI settings",
				Commands: []*cli.Command{
					{
						Name:  "show",
						Usage: "Print the resolved Vertex AI settings",
						Flags: []cli.Flag{
							&cli.StringFlag{
								Name:  "vertex-config",
								Usage: "Vertex settings file; its values win over the environment",
							},
						},
						Action: a.runVertexShow,
					},
				},
			},
			{
				Name:      "roundtrip",
				Usage:     "Diff a script against its script to notebook to script round trip",
				ArgsUsage: "FILE.py",
				Action:    a.runRoundtrip,
			},
			{
				Name:   "mcp",
				Usage:  "Serve the notebook tools over MCP stdio",
				Action: a.runMCP,
			},
		},
	}
}

// loadConfig resolves the configuration: defaults, then environment, then
// the optional config file. Paths are expanded last.
func loadConfig(cmd *cli.Command) (*internal.Config, error) {
	cfg := internal.NewDefaultConfig()
	if err := cfg.ApplyEnv(os.LookupEnv); err != nil {
		return nil, fmt.Errorf("failed to read environment: %w", err)
	}
	if err := pkgconfig.LoadOptional(cmd.String("config"), cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}
	cfg.ResolvePaths()
	return cfg, nil
}

func setup(cmd *cli.Command) (*internal.Config, *slog.Logger, error) {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return nil, nil, err
	}
	logger := internal.NewLogger(os.Stderr, cfg.App.LogLevel)
	slog.SetDefault(logger)
	return cfg, logger, nil
}

func requireArgs(cmd *cli.Command, n int) error {
	if cmd.Args().Len() < n {
		return fmt.Errorf("%s: expected %s", cmd.Name, cmd.ArgsUsage)
	}
	return nil
}

func (a *app) runNotebooks(ctx context.Context, cmd *cli.Command) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}

	opts := []internal.Option{
		internal.WithConfig(cfg),
		internal.WithIO(a.in, a.out),
	}

	if err := internal.Run(ctx, opts...); err != nil {
		return fmt.Errorf("app run error: %w", err)
	}

	return nil
}

func (a *app) runConvert(ctx context.Context, cmd *cli.Command) error {
	if err := requireArgs(cmd, 2); err != nil {
		return err
	}
	_, logger, err := setup(cmd)
	if err != nil {
		return err
	}
	res, err := converter.New(logger).Convert(cmd.Args().Get(0), cmd.Args().Get(1))
	if err != nil {
		return err
	}
	fmt.Fprintf(a.out, "converted %s -> %s (sha256 %s)\n", res.Source, res.Target, res.Checksum)
	if res.ArchivePath != "" {
		fmt.Fprintf(a.out, "archived %s\n", res.ArchivePath)
	}
	if res.ArchiveErr != nil {
		fmt.Fprintf(a.out, "warning: %v\n", res.ArchiveErr)
	}
	return nil
}

func archiveManager(cmd *cli.Command) (*internal.Config, *archive.Manager, error) {
	cfg, logger, err := setup(cmd)
	if err != nil {
		return nil, nil, err
	}
	mgr, err := archive.NewManager(internal.JSONDir(cfg.Workspace.Dir), logger)
	if err != nil {
		return nil, nil, err
	}
	return cfg, mgr, nil
}

func (a *app) runArchiveList(ctx context.Context, cmd *cli.Command) error {
	_, mgr, err := archiveManager(cmd)
	if err != nil {
		return err
	}
	n := 0
	for e := range mgr.Entries() {
		ts := "-"
		if !e.Timestamp.IsZero() {
			ts = e.Timestamp.Format("2006-01-02 15:04:05")
		}
		fmt.Fprintf(a.out, "%s\t%s\t%s\n", e.Name, e.OriginalStem, ts)
		n++
	}
	if n == 0 {
		fmt.Fprintln(a.out, "No archives found.")
	}
	return nil
}

func (a *app) runArchiveRestore(ctx context.Context, cmd *cli.Command) error {
	if err := requireArgs(cmd, 1); err != nil {
		return err
	}
	_, mgr, err := archiveManager(cmd)
	if err != nil {
		return err
	}
	dst, err := mgr.Restore(cmd.Args().First())
	if err != nil {
		return err
	}
	fmt.Fprintf(a.out, "restored %s\n", dst)
	return nil
}

func (a *app) runArchivePurge(ctx context.Context, cmd *cli.Command) error {
	cfg, mgr, err := archiveManager(cmd)
	if err != nil {
		return err
	}
	days := cfg.Workspace.RetentionDays
	if cmd.IsSet("days") {
		days = int(cmd.Int("days"))
	}
	n, err := mgr.Purge(days)
	fmt.Fprintf(a.out, "deleted %d archived file(s)\n", n)
	return err
}

func (a *app) runModelRegister(ctx context.Context, cmd *cli.Command) error {
	if err := requireArgs(cmd, 1); err != nil {
		return err
	}
	cfg, logger, err := setup(cmd)
	if err != nil {
		return err
	}
	m, err := registry.LoadModelConfig(cmd.Args().First())
	if err != nil {
		return err
	}
	if cmd.Bool("dry-run") {
		fmt.Fprintf(a.out, "valid: %s@%s (%s)\n", m.Name, m.Version, m.Framework)
		return nil
	}

	store, err := openRegistry(cfg)
	if err != nil {
		return err
	}
	defer store.Close()

	if err := store.Register(m); err != nil {
		return err
	}
	logger.Info("registered model", slog.String("name", m.Name), slog.String("version", m.Version))
	fmt.Fprintf(a.out, "registered %s@%s\n", m.Name, m.Version)
	return nil
}

func openRegistry(cfg *internal.Config) (registry.Store, error) {
	db, err := registry.Open(cfg.RegistryPath())
	if err != nil {
		return nil, err
	}
	return db, nil
}

func (a *app) runModelShow(ctx context.Context, cmd *cli.Command) error {
	if err := requireArgs(cmd, 2); err != nil {
		return err
	}
	cfg, _, err := setup(cmd)
	if err != nil {
		return err
	}
	store, err := openRegistry(cfg)
	if err != nil {
		return err
	}
	defer store.Close()

	m, err := store.Get(cmd.Args().Get(0), cmd.Args().Get(1))
	if err != nil {
		return err
	}
	data, err := yaml.Marshal(m)
	if err != nil {
		return err
	}
	_, err = a.out.Write(data)
	return err
}

func (a *app) runModelList(ctx context.Context, cmd *cli.Command) error {
	cfg, _, err := setup(cmd)
	if err != nil {
		return err
	}
	store, err := openRegistry(cfg)
	if err != nil {
		return err
	}
	defer store.Close()

	list, err := store.List(cmd.String("name"))
	if err != nil {
		return err
	}
	if len(list) == 0 {
		fmt.Fprintln(a.out, "No models registered.")
		return nil
	}
	for _, m := range list {
		fmt.Fprintf(a.out, "%s\t%s\t%s\t%s\t%s\n",
			m.Name, m.Version, m.Framework, m.CreatedAt.Format("2006-01-02 15:04:05"), m.ArtifactsPath)
	}
	return nil
}

func tracker(cmd *cli.Command) (*tracking.Tracker, error) {
	cfg, _, err := setup(cmd)
	if err != nil {
		return nil, err
	}
	return tracking.New(cfg.ExperimentsPath(), cmd.Args().First())
}

func (a *app) runExpParams(ctx context.Context, cmd *cli.Command) error {
	if err := requireArgs(cmd, 2); err != nil {
		return err
	}
	params := map[string]any{}
	for _, arg := range cmd.Args().Tail() {
		k, v, err := tracking.ParseParam(arg)
		if err != nil {
			return err
		}
		params[k] = v
	}
	tr, err := tracker(cmd)
	if err != nil {
		return err
	}
	if err := tr.LogParams(params); err != nil {
		return err
	}
	fmt.Fprintf(a.out, "logged %d param(s) to %s\n", len(params), tr.Name())
	return nil
}

func (a *app) runExpLog(ctx context.Context, cmd *cli.Command) error {
	if err := requireArgs(cmd, 3); err != nil {
		return err
	}
	key := cmd.Args().Get(1)
	value, err := strconv.ParseFloat(cmd.Args().Get(2), 64)
	if err != nil {
		return fmt.Errorf("metric value %q: %w", cmd.Args().Get(2), err)
	}
	tr, err := tracker(cmd)
	if err != nil {
		return err
	}
	step := int(cmd.Int("step"))
	if err := tr.LogMetric(key, value, step); err != nil {
		return err
	}
	fmt.Fprintf(a.out, "logged %s=%g (step %d) to %s\n", key, value, step, tr.Name())
	return nil
}

func (a *app) runExpShow(ctx context.Context, cmd *cli.Command) error {
	if err := requireArgs(cmd, 1); err != nil {
		return err
	}
	tr, err := tracker(cmd)
	if err != nil {
		return err
	}
	params, err := tr.Params()
	if err != nil {
		return err
	}
	metrics, err := tr.Metrics()
	if err != nil {
		return err
	}

	fmt.Fprintf(a.out, "experiment: %s\nparams:\n", tr.Name())
	keys := make([]string, 0, len(params))
	for k := range params {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		fmt.Fprintf(a.out, "  %s: %v\n", k, params[k])
	}
	fmt.Fprintln(a.out, "metrics:")
	for _, p := range metrics {
		fmt.Fprintf(a.out, "  %s\tstep=%d\t%g\t%s\n", p.Key, p.Step, p.Value, p.Timestamp.Format("2006-01-02 15:04:05"))
	}
	return nil
}

func (a *app) runVertexShow(ctx context.Context, cmd *cli.Command) error {
	cfg, _, err := setup(cmd)
	if err != nil {
		return err
	}
	vc := &cfg.Vertex
	if path := cmd.String("vertex-config"); path != "" {
		if vc, err = vertex.FromYAML(path, os.LookupEnv); err != nil {
			return err
		}
	}
	if err := vc.Validate(); err != nil {
		return fmt.Errorf("vertex: %w", err)
	}
	if err := vc.EnsureBasePath(); err != nil {
		return err
	}

	out := struct {
		Vertex           *vertex.Config `yaml:"vertex"`
		StagingBucketURI string         `yaml:"staging_bucket_uri"`
	}{
		Vertex:           vc,
		StagingBucketURI: vc.StagingBucketURI(),
	}
	data, err := yaml.Marshal(out)
	if err != nil {
		return err
	}
	_, err = a.out.Write(data)
	return err
}

func (a *app) runRoundtrip(ctx context.Context, cmd *cli.Command) error {
	if err := requireArgs(cmd, 1); err != nil {
		return err
	}
	path := cmd.Args().First()
	data, err := os.ReadFile(path)
	if err != nil {
		return err
	}
	back, err := notebook.RoundTrip(data)
	if err != nil {
		return err
	}
	diff := notebook.LineDiff(string(data), string(back))
	if diff == "" {
		fmt.Fprintf(a.out, "%s: no differences\n", path)
		return nil
	}
	_, err = io.WriteString(a.out, diff)
	return err
}

func (a *app) runMCP(ctx context.Context, cmd *cli.Command) error {
	cfg, logger, err := setup(cmd)
	if err != nil {
		return err
	}
	srv, err := mcpserver.New(cfg.Workspace.Dir, logger)
	if err != nil {
		return err
	}
	logger.Info("MCP server starting", slog.String("workspace", cfg.Workspace.Dir))
	if err := srv.ServeStdio(); err != nil && !errors.Is(err, context.Canceled) {
		return fmt.Errorf("mcp: %w", err)
	}
	return nil
}
