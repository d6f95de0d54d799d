package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/url"
	"os"
	"os/signal"
	"path/filepath"
	"strconv"
	"syscall"

	"github.com/lmittmann/tint"
	"github.com/mattn/go-isatty"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/coder/websocket"

	"github.com/scenehub/projectsync/internal/config"
	"github.com/scenehub/projectsync/internal/editorhost"
	"github.com/scenehub/projectsync/internal/errs"
	"github.com/scenehub/projectsync/internal/messenger"
	"github.com/scenehub/projectsync/internal/mirror"
	"github.com/scenehub/projectsync/internal/model"
	"github.com/scenehub/projectsync/internal/ports"
	"github.com/scenehub/projectsync/internal/project"
	"github.com/scenehub/projectsync/internal/realtime"
	"github.com/scenehub/projectsync/internal/restapi"
	"github.com/scenehub/projectsync/internal/utils"
	"github.com/scenehub/projectsync/internal/version"
)

const configFileName = "config"

var rootCmd = &cobra.Command{
	Use:     "projectsync",
	Short:   "ProjectSync link daemon",
	Version: version.Detailed(),
	PreRunE: func(cmd *cobra.Command, args []string) error {
		return loadConfig(cmd)
	},
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg := &config.Config{
			Path:        viper.ConfigFileUsed(),
			Email:       viper.GetString("email"),
			ServerURL:   viper.GetString("server_url"),
			WorkspaceDir: viper.GetString("workspace_dir"),
			ProjectID:   viper.GetString("project_id"),
			BranchID:    viper.GetString("branch_id"),
			RefreshToken: viper.GetString("refresh_token"),
			AccessToken: viper.GetString("access_token"),
		}
		if err := cfg.Validate(); err != nil {
			return err
		}

		cmd.SilenceUsage = true
		slog.Info("starting", "version", version.Short(), "config", cfg)

		return run(cmd.Context(), cfg)
	},
}

func init() {
	rootCmd.Flags().SortFlags = false
	rootCmd.Flags().StringP("email", "e", "", "Account email")
	rootCmd.Flags().StringP("workspace", "w", config.DefaultWorkspaceDir, "Local workspace directory")
	rootCmd.Flags().StringP("server", "s", config.DefaultServerURL, "ProjectSync server URL")
	rootCmd.Flags().String("project", "", "Project id to link")
	rootCmd.Flags().String("branch", "main", "Branch id to link")
	rootCmd.PersistentFlags().StringP("config", "c", config.DefaultConfigPath, "ProjectSync config file")
}

func main() {
	logFile := config.DefaultLogFilePath
	if err := os.MkdirAll(filepath.Dir(logFile), 0o755); err != nil {
		fmt.Fprintf(os.Stderr, "failed to create log directory: %v\n", err)
		os.Exit(1)
	}
	file, err := os.OpenFile(logFile, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0o644)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to open log file: %v\n", err)
		os.Exit(1)
	}
	defer file.Close()

	stdoutHandler := tint.NewHandler(os.Stdout, &tint.Options{
		Level:      slog.LevelDebug,
		TimeFormat: "2006-01-02T15:04:05.000Z07:00",
		NoColor:    !isatty.IsTerminal(os.Stdout.Fd()),
	})
	logInterceptor := utils.NewLogInterceptor(file)
	fileHandler := slog.NewTextHandler(logInterceptor, &slog.HandlerOptions{
		Level: slog.LevelDebug,
		ReplaceAttr: func(groups []string, a slog.Attr) slog.Attr {
			if a.Key == slog.TimeKey && len(groups) == 0 {
				return slog.Attr{}
			}
			return a
		},
	})
	slog.SetDefault(slog.New(utils.NewMultiLogHandler(stdoutHandler, fileHandler)))

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := rootCmd.ExecuteContext(ctx); err != nil {
		os.Exit(1)
	}
}

func loadConfig(cmd *cobra.Command) error {
	home, _ := os.UserHomeDir()

	if cmd.Flag("config").Changed {
		configFilePath, _ := cmd.Flags().GetString("config")
		viper.SetConfigFile(configFilePath)
	} else {
		viper.AddConfigPath(filepath.Join(home, ".projectsync"))
		viper.SetConfigName(configFileName)
		viper.SetConfigType("json")
	}

	if err := viper.ReadInConfig(); err != nil {
		enoent := errors.Is(err, os.ErrNotExist)
		_, notFound := err.(viper.ConfigFileNotFoundError)
		if !enoent && !notFound {
			return fmt.Errorf("config read %q: %w", viper.ConfigFileUsed(), err)
		}
	}

	viper.BindPFlag("email", cmd.Flags().Lookup("email"))
	viper.BindPFlag("workspace_dir", cmd.Flags().Lookup("workspace"))
	viper.BindPFlag("server_url", cmd.Flags().Lookup("server"))
	viper.BindPFlag("project_id", cmd.Flags().Lookup("project"))
	viper.BindPFlag("branch_id", cmd.Flags().Lookup("branch"))

	viper.SetEnvPrefix("PROJECTSYNC")
	viper.AutomaticEnv()

	return nil
}

// run wires the ports adapters to a Project and a disk Mirror, dials
// both websocket endpoints, links the project, and blocks until ctx is
// cancelled or the realtime connection drops.
func run(ctx context.Context, cfg *config.Config) error {
	rest := restapi.New(cfg.ServerURL, cfg.AccessToken, "projectsync/"+version.Short())

	wsURL, err := toWebsocketURL(cfg.ServerURL, "/api/v1/realtime")
	if err != nil {
		return err
	}
	rtConn, _, err := websocket.Dial(ctx, wsURL, nil)
	if err != nil {
		return fmt.Errorf("realtime dial: %w", err)
	}
	rt := realtime.Dial(ctx, rtConn)

	msgURL, err := toWebsocketURL(cfg.ServerURL, "/api/v1/messages")
	if err != nil {
		return err
	}
	msgConn, _, err := websocket.Dial(ctx, msgURL, nil)
	if err != nil {
		return fmt.Errorf("messenger dial: %w", err)
	}
	msg := messenger.Dial(msgConn)

	signal := errs.NewSignal(64)
	proj := project.New(rest, rt, msg, signal)

	host := editorhost.New()
	m := mirror.New(host, proj, signal)

	if err := proj.Link(ctx, cfg.ProjectID, cfg.BranchID); err != nil {
		return fmt.Errorf("link project: %w", err)
	}
	if err := m.Link(ctx); err != nil {
		return fmt.Errorf("link mirror: %w", err)
	}

	slog.Info("linked", "project", cfg.ProjectID, "branch", cfg.BranchID)
	go drainSignal(signal)

	msgEvents, err := msg.Subscribe(ctx)
	if err != nil {
		return fmt.Errorf("subscribe messenger: %w", err)
	}
	go dispatchMessenger(ctx, proj, msgEvents)

	select {
	case <-ctx.Done():
	case <-rt.Disconnected():
		slog.Warn("realtime connection dropped")
	}

	m.Unlink()
	if _, _, err := proj.Unlink(); err != nil {
		slog.Error("unlink", "error", err)
	}
	slog.Info("bye")
	return nil
}

// dispatchMessenger reacts to out-of-band asset.new/assets.delete
// notifications: a new asset triggers a resync against the full asset
// list, a delete retires local bookkeeping directly by id.
func dispatchMessenger(ctx context.Context, proj *project.Project, events <-chan ports.MessengerEvent) {
	for ev := range events {
		switch ev.Type {
		case ports.MsgAssetNew:
			if err := proj.Resync(ctx); err != nil {
				slog.Warn("resync after asset.new", "error", err)
			}
		case ports.MsgAssetsDelete:
			for _, raw := range ev.DeletedIDs {
				n, err := strconv.ParseInt(raw, 10, 64)
				if err != nil {
					slog.Warn("assets.delete: bad id", "id", raw, "error", err)
					continue
				}
				proj.Retire(model.UniqueID(n))
			}
		}
	}
}

func drainSignal(s *errs.Signal) {
	for ev := range s.C() {
		switch ev.Severity {
		case errs.SeverityFatal:
			slog.Error("fatal", "error", ev.Err)
		case errs.SeverityRecoverable:
			slog.Warn("recoverable", "error", ev.Err)
		case errs.SeverityAlert:
			if ev.Alert != nil {
				slog.Info("alert", "message", ev.Alert.Message, "actions", ev.Alert.Actions)
			}
		}
	}
}

func toWebsocketURL(base, path string) (string, error) {
	u, err := url.Parse(base)
	if err != nil {
		return "", fmt.Errorf("server url: %w", err)
	}
	switch u.Scheme {
	case "https":
		u.Scheme = "wss"
	default:
		u.Scheme = "ws"
	}
	u.Path = path
	return u.String(), nil
}
