// =============================================================================
// councilgate 主入口
// =============================================================================
// 提示词审议网关：HTTP 服务、单次审议、健康检查
//
// 使用方法:
//
//	councilgate serve                               # 启动服务
//	councilgate serve --config config.yaml          # 指定配置文件
//	councilgate evaluate "prompt"                   # 本地执行一次审议
//	councilgate evaluate --mode adaptive --json "p" # 指定模式，JSON 输出
//	councilgate version                             # 显示版本信息
//	councilgate health --addr http://localhost:8080 # 健康检查
// =============================================================================

// @title councilgate API
// @version 1.0.0
// @description Multi-reviewer deliberation gate that admits or denies prompts before they reach an LLM.

// @license.name MIT
// @license.url https://opensource.org/licenses/MIT

// @host localhost:8080
// @BasePath /
// @schemes http https

// @securityDefinitions.apikey ApiKeyAuth
// @in header
// @name X-API-Key
// @description API key for authentication

package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/BaSui01/councilgate/api"
	"github.com/BaSui01/councilgate/config"
	"github.com/BaSui01/councilgate/council"
	"github.com/BaSui01/councilgate/internal/jsonx"
	"github.com/BaSui01/councilgate/internal/telemetry"
	"github.com/spf13/cobra"
	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"
)

// =============================================================================
// 📦 版本信息（构建时注入）
// =============================================================================

var (
	BuildTime = "unknown"
	GitCommit = "unknown"
)

// =============================================================================
// 🎯 主函数
// =============================================================================

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := newRootCmd().ExecuteContext(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:           "councilgate",
		Short:         "Prompt deliberation gate backed by a council of LLM reviewers",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.AddCommand(newServeCmd(), newEvaluateCmd(), newVersionCmd(), newHealthCmd())
	return root
}

// loadConfig 加载配置；path 为空时只使用默认值与环境变量
func loadConfig(path string) (*config.Config, error) {
	loader := config.NewLoader()
	if path != "" {
		loader = loader.WithConfigPath(path)
	}
	cfg, err := loader.Load()
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}
	return cfg, nil
}

// =============================================================================
// 🖥️ serve 命令
// =============================================================================

func newServeCmd() *cobra.Command {
	var configPath string
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the councilgate HTTP server",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := loadConfig(configPath)
			if err != nil {
				return err
			}
			return runServe(cmd.Context(), cfg)
		},
	}
	cmd.Flags().StringVar(&configPath, "config", "", "Path to config file (YAML)")
	return cmd
}

func runServe(ctx context.Context, cfg *config.Config) error {
	logger := initLogger(cfg.Log)
	defer func() { _ = logger.Sync() }()

	logger.Info("Starting councilgate",
		zap.String("version", telemetry.Version()),
		zap.String("build_time", BuildTime),
		zap.String("git_commit", GitCommit),
	)

	otelProviders, err := telemetry.Init(ctx, cfg.Telemetry, logger,
		attribute.String("council.mode", cfg.Council.Mode),
		attribute.Int("council.reviewers", len(cfg.Council.Profiles())),
	)
	if err != nil {
		logger.Warn("failed to initialize telemetry", zap.Error(err))
		otelProviders = nil
	}

	srv := NewServer(cfg, logger, otelProviders)
	if err := srv.Init(); err != nil {
		return err
	}
	if err := srv.Run(ctx); err != nil {
		return err
	}

	logger.Info("councilgate stopped")
	return nil
}

// =============================================================================
// ⚖️ evaluate 命令
// =============================================================================

type evaluateOptions struct {
	configPath string
	mode       string
	asJSON     bool
	verbose    bool
	timeout    time.Duration
}

func newEvaluateCmd() *cobra.Command {
	var opts evaluateOptions
	cmd := &cobra.Command{
		Use:   "evaluate [prompt]",
		Short: "Run one deliberation locally and print the verdict",
		Long: "Run one deliberation against the configured provider. The prompt is read from the\n" +
			"arguments, or from stdin when no argument is given.",
		Args: cobra.ArbitraryArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			prompt := strings.TrimSpace(strings.Join(args, " "))
			if prompt == "" {
				b, err := io.ReadAll(cmd.InOrStdin())
				if err != nil {
					return fmt.Errorf("read prompt: %w", err)
				}
				prompt = strings.TrimSpace(string(b))
			}
			if prompt == "" {
				return errors.New("prompt is required")
			}
			return runEvaluate(cmd.Context(), cmd.OutOrStdout(), prompt, opts)
		},
	}
	cmd.Flags().StringVar(&opts.configPath, "config", "", "Path to config file (YAML)")
	cmd.Flags().StringVar(&opts.mode, "mode", "", "Council mode override: binary, scored or adaptive")
	cmd.Flags().BoolVar(&opts.asJSON, "json", false, "Print the verdict as JSON")
	cmd.Flags().BoolVarP(&opts.verbose, "verbose", "v", false, "Log deliberation progress to stderr")
	cmd.Flags().DurationVar(&opts.timeout, "timeout", 5*time.Minute, "Overall deliberation timeout")
	return cmd
}

func runEvaluate(ctx context.Context, out io.Writer, prompt string, opts evaluateOptions) error {
	cfg, err := loadConfig(opts.configPath)
	if err != nil {
		return err
	}
	if opts.mode != "" {
		mode, err := council.ParseMode(opts.mode)
		if err != nil {
			return err
		}
		cfg.Council.Mode = string(mode)
	}

	// 日志只写 stderr，避免污染 JSON 输出
	logCfg := cfg.Log
	logCfg.OutputPaths = []string{"stderr"}
	logCfg.Format = "console"
	if !opts.verbose {
		logCfg.Level = "warn"
	}
	logger := initLogger(logCfg)
	defer func() { _ = logger.Sync() }()

	stack, err := buildCouncil(cfg, nil, logger)
	if err != nil {
		return err
	}

	if opts.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, opts.timeout)
		defer cancel()
	}

	v := stack.panel.Evaluate(ctx, prompt, nil)

	if opts.asJSON {
		enc := jsonx.NewEncoder(out)
		enc.SetIndent("", "  ")
		return enc.Encode(api.NewVerdictResponse(v, cfg.Council.RiskThreshold))
	}
	_, err = fmt.Fprintln(out, renderVerdict(v, cfg.Council.RiskThreshold))
	return err
}

// =============================================================================
// 🏥 健康检查命令
// =============================================================================

func newHealthCmd() *cobra.Command {
	var addr string
	cmd := &cobra.Command{
		Use:   "health",
		Short: "Check a running server's health endpoint",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if err := checkHealth(cmd.Context(), addr); err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), "OK")
			return nil
		},
	}
	cmd.Flags().StringVar(&addr, "addr", "http://localhost:8080", "Server address")
	return cmd
}

func checkHealth(ctx context.Context, addr string) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, strings.TrimRight(addr, "/")+"/health", nil)
	if err != nil {
		return fmt.Errorf("health check failed: %w", err)
	}
	client := &http.Client{Timeout: 5 * time.Second}
	resp, err := client.Do(req)
	if err != nil {
		return fmt.Errorf("health check failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("health check failed: status %d", resp.StatusCode)
	}
	return nil
}

// =============================================================================
// 📋 版本
// =============================================================================

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Show version information",
		Args:  cobra.NoArgs,
		Run: func(cmd *cobra.Command, _ []string) {
			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "councilgate %s\n", telemetry.Version())
			fmt.Fprintf(out, "  Build Time: %s\n", BuildTime)
			fmt.Fprintf(out, "  Git Commit: %s\n", GitCommit)
		},
	}
}
