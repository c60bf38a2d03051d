package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/any-hub/stowage/internal/config"
	"github.com/any-hub/stowage/internal/logging"
	"github.com/any-hub/stowage/internal/stowage"
)

// configEnv 是配置文件路径的环境变量，--config 优先级更高。
const configEnv = "STOWAGE_CONFIG"

var (
	stdOut io.Writer = os.Stdout
	stdErr io.Writer = os.Stderr
)

// cliState 保存 PersistentPreRunE 加载出的配置与日志实例，供各子命令共享。
type cliState struct {
	configFlag string
	configPath string
	cfg        *config.Config
	logger     *logrus.Logger
}

// usageError 标记参数错误，对应退出码 2。
type usageError struct{ error }

func (e usageError) Unwrap() error { return e.error }

func main() {
	os.Exit(run(os.Args[1:]))
}

// run 执行命令并返回退出码，方便测试。
func run(args []string) int {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	root := newRootCommand(&cliState{})
	root.SetArgs(args)
	if err := root.ExecuteContext(ctx); err != nil {
		fmt.Fprintln(stdErr, "错误:", err)
		var uerr usageError
		if errors.As(err, &uerr) {
			return 2
		}
		return 1
	}
	return 0
}

func newRootCommand(st *cliState) *cobra.Command {
	root := &cobra.Command{
		Use:           "stowage",
		Short:         "Local artifact cache for tea packages",
		Long:          "stowage maps package descriptors to files in the tea www directory, lists what is cached and fetches bottles, sources and scripts into it.",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			if cmd.Name() == "version" {
				return nil
			}
			return st.load()
		},
	}
	root.SetOut(stdOut)
	root.SetErr(stdErr)
	root.SetFlagErrorFunc(func(_ *cobra.Command, err error) error {
		return usageError{err}
	})
	root.PersistentFlags().StringVar(&st.configFlag, "config", "", "配置文件路径（可被 "+configEnv+" 指定，缺省时只使用默认值）")

	root.AddCommand(
		newPathCommand(st),
		newListCommand(st),
		newFetchCommand(st),
		newServeCommand(st),
		newCheckConfigCommand(st),
		newVersionCommand(),
	)
	return root
}

// load 结合 --config 与环境变量定位配置文件，随后初始化日志。
func (st *cliState) load() error {
	st.configPath = os.Getenv(configEnv)
	if st.configFlag != "" {
		st.configPath = st.configFlag
	}

	cfg, err := config.Load(st.configPath)
	if err != nil {
		return fmt.Errorf("加载配置失败: %w", err)
	}
	logger, err := logging.InitLogger(cfg.Global)
	if err != nil {
		return fmt.Errorf("初始化日志失败: %w", err)
	}
	st.cfg = cfg
	st.logger = logger
	return nil
}

func (st *cliState) layout() stowage.Layout {
	return stowage.NewLayout(st.cfg.Global.WWW())
}

func newCheckConfigCommand(st *cliState) *cobra.Command {
	return &cobra.Command{
		Use:   "check-config",
		Short: "Validate the configuration and exit",
		Args:  exactArgs(0),
		RunE: func(cmd *cobra.Command, _ []string) error {
			fields := logging.BaseFields("check_config", st.configPath)
			fields["www"] = st.cfg.Global.WWW()
			fields["dist_url"] = st.cfg.Global.DistURL
			fields["result"] = "ok"
			st.logger.WithFields(fields).Info("配置校验通过")
			return nil
		},
	}
}

func exactArgs(n int) cobra.PositionalArgs {
	return wrapArgs(cobra.ExactArgs(n))
}

func minimumArgs(n int) cobra.PositionalArgs {
	return wrapArgs(cobra.MinimumNArgs(n))
}

func wrapArgs(check cobra.PositionalArgs) cobra.PositionalArgs {
	return func(cmd *cobra.Command, args []string) error {
		if err := check(cmd, args); err != nil {
			return usageError{err}
		}
		return nil
	}
}
