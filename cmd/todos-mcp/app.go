package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"
	"pkt.systems/pslog"

	todos "github.com/digitarald/vscode-agent-todos-sub000"
	"github.com/digitarald/vscode-agent-todos-sub000/internal/logutil"
	"github.com/digitarald/vscode-agent-todos-sub000/internal/version"
)

// viper keys, bound to flags and TODOS_* environment variables.
const (
	listenKey         = "listen"
	mcpPathKey        = "mcp_path"
	todoFileKey       = "todo_file"
	standaloneKey     = "standalone"
	autoInjectKey     = "auto_inject"
	enableSubtasksKey = "enable_subtasks"
	syncDebounceKey   = "sync_debounce"
	watchDebounceKey  = "watch_debounce"
	configKey         = "config"
)

func submain(ctx context.Context) int {
	baseLogger := pslog.LoggerFromEnv(
		pslog.WithEnvPrefix("TODOS_LOG_"),
		pslog.WithEnvOptions(pslog.Options{Mode: pslog.ModeStructured, MinLevel: pslog.InfoLevel}),
		pslog.WithEnvWriter(os.Stderr),
	).With("app", "agent-todos")

	cmd := newRootCommand(baseLogger)
	ctx = withSignalCancel(ctx)
	if err := cmd.ExecuteContext(ctx); err != nil {
		if !errors.Is(err, context.Canceled) {
			logutil.WithSubsystem(baseLogger, "cli.root").Error("command failed", "error", err)
		}
		return 1
	}
	return 0
}

func newRootCommand(baseLogger pslog.Logger) *cobra.Command {
	rootCmd := &cobra.Command{
		Use:           "todos-mcp",
		Short:         "Serve a shared todo list to agent clients over MCP",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return loadConfigFile()
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg := configFromViper()
			server, err := todos.New(cfg, baseLogger)
			if err != nil {
				return err
			}
			ctx := cmd.Context()
			if ctx == nil {
				ctx = context.Background()
			}
			return server.Run(ctx)
		},
	}

	flags := rootCmd.Flags()
	flags.StringP("listen", "l", todos.DefaultListen, "listen address for the MCP endpoint group")
	flags.String("mcp-path", todos.DefaultMCPPath, "HTTP path for the streamable MCP endpoint")
	flags.StringP("todo-file", "f", "", "markdown file backing the local store (empty keeps todos in memory)")
	flags.Bool("standalone", false, "run without a surrounding editor; always exposes the read tool")
	flags.Bool("auto-inject", false, "suppress the read tool because todos are injected into agent context elsewhere")
	flags.Bool("enable-subtasks", false, "accept and advertise the subtasks field on writes")
	flags.Duration("sync-debounce", todos.DefaultSyncDebounce, "coalescing window before store changes propagate")
	flags.Duration("watch-debounce", todos.DefaultWatchDebounce, "coalescing window for todo file change events")
	rootCmd.PersistentFlags().StringP("config", "c", "", "config file (default searches ./todos.yaml, $HOME/.config/todos/todos.yaml)")

	mustBindFlag(listenKey, "TODOS_LISTEN", flags.Lookup("listen"))
	mustBindFlag(mcpPathKey, "TODOS_MCP_PATH", flags.Lookup("mcp-path"))
	mustBindFlag(todoFileKey, "TODOS_FILE", flags.Lookup("todo-file"))
	mustBindFlag(standaloneKey, "TODOS_STANDALONE", flags.Lookup("standalone"))
	mustBindFlag(autoInjectKey, "TODOS_AUTO_INJECT", flags.Lookup("auto-inject"))
	mustBindFlag(enableSubtasksKey, "TODOS_ENABLE_SUBTASKS", flags.Lookup("enable-subtasks"))
	mustBindFlag(syncDebounceKey, "TODOS_SYNC_DEBOUNCE", flags.Lookup("sync-debounce"))
	mustBindFlag(watchDebounceKey, "TODOS_WATCH_DEBOUNCE", flags.Lookup("watch-debounce"))
	mustBindFlag(configKey, "TODOS_CONFIG", rootCmd.PersistentFlags().Lookup("config"))

	rootCmd.AddCommand(newVersionCommand())
	return rootCmd
}

func newVersionCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print the todos-mcp version",
		RunE: func(cmd *cobra.Command, args []string) error {
			fmt.Fprintln(cmd.OutOrStdout(), version.Current())
			return nil
		},
	}
}

func mustBindFlag(key, env string, flag *pflag.Flag) {
	if flag == nil {
		panic(fmt.Sprintf("flag for key %s not found", key))
	}
	if err := viper.BindPFlag(key, flag); err != nil {
		panic(err)
	}
	if env != "" {
		if err := viper.BindEnv(key, env); err != nil {
			panic(err)
		}
	}
}

func loadConfigFile() error {
	if path := strings.TrimSpace(viper.GetString(configKey)); path != "" {
		viper.SetConfigFile(path)
		if err := viper.ReadInConfig(); err != nil {
			return fmt.Errorf("read config %q: %w", path, err)
		}
		return nil
	}
	viper.SetConfigName("todos")
	viper.SetConfigType("yaml")
	viper.AddConfigPath(".")
	if home, err := os.UserHomeDir(); err == nil {
		viper.AddConfigPath(home + "/.config/todos")
	}
	if err := viper.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if errors.As(err, &notFound) {
			return nil
		}
		return fmt.Errorf("read config: %w", err)
	}
	return nil
}

func configFromViper() todos.Config {
	return todos.Config{
		Listen:         strings.TrimSpace(viper.GetString(listenKey)),
		MCPPath:        strings.TrimSpace(viper.GetString(mcpPathKey)),
		TodoFile:       strings.TrimSpace(viper.GetString(todoFileKey)),
		Standalone:     viper.GetBool(standaloneKey),
		AutoInject:     viper.GetBool(autoInjectKey),
		EnableSubtasks: viper.GetBool(enableSubtasksKey),
		SyncDebounce:   viper.GetDuration(syncDebounceKey),
		WatchDebounce:  viper.GetDuration(watchDebounceKey),
	}
}

// withSignalCancel cancels the returned context on SIGINT/SIGTERM. A second
// signal exits immediately.
func withSignalCancel(parent context.Context) context.Context {
	ctx, cancel := context.WithCancel(parent)
	sigCh := make(chan os.Signal, 2)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-sigCh
		cancel()
		select {
		case <-sigCh:
			os.Exit(1)
		case <-time.After(30 * time.Second):
		}
	}()
	return ctx
}
