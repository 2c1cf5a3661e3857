// Package cmd provides CLI commands for the incident detector.
package cmd

import (
	"io"
	"os"
	"runtime"
	"time"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"
)

// Version information, injected at build time via -ldflags.
var (
	Version   = "dev"
	BuildTime = "unknown"
	GitCommit = "unknown"
)

// Global flags
var (
	cfgFile  string // Config file path
	logLevel string // Log level
)

// rootCmd represents the base command when called without any subcommands.
var rootCmd = &cobra.Command{
	Use:   "detect",
	Short: "事件检测工具 - 基于资源指标的阈值告警与自动响应",
	Long: `事件检测工具对配置的主机执行一次检测：查询最近的资源利用率指标，
判断是否越过阈值，在冷却窗口内去重告警，通知值班频道，并按配置
触发取证快照和处置剧本。

数据流: CloudWatch / VictoriaMetrics → 本工具 → Telegram / EBS 快照 / Step Functions 或 NATS

调度由外部负责（cron、EventBridge、Kubernetes CronJob），每次调用执行一轮检测。`,
	Version: Version,
	Run: func(cmd *cobra.Command, args []string) {
		cmd.Help()
	},
}

// Execute adds all child commands to the root command and sets flags appropriately.
// This is called by main.main(). It only needs to happen once to the rootCmd.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func init() {
	// An empty config path means environment variables only, as in a Lambda-style deployment.
	rootCmd.PersistentFlags().StringVarP(&cfgFile, "config", "c", "", "配置文件路径（为空时仅读取环境变量）")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "", "日志级别 (debug, info, warn, error)，覆盖配置文件")

	rootCmd.SetVersionTemplate(`{{printf "%s\n" .Version}}`)
}

// GetConfigFile returns the config file path from command line flag.
func GetConfigFile() string {
	return cfgFile
}

// GetLogLevel returns the log level from command line flag.
func GetLogLevel() string {
	return logLevel
}

// GetVersionInfo returns formatted version information.
func GetVersionInfo() string {
	return Version + "\n" +
		"Build Time: " + BuildTime + "\n" +
		"Git Commit: " + GitCommit + "\n" +
		"Go Version: " + runtime.Version() + "\n" +
		"OS/Arch: " + runtime.GOOS + "/" + runtime.GOARCH
}

// setupLogger creates a zerolog logger with the specified level and format.
// Timestamps are UTC so that log lines line up with CloudWatch and incident ids.
func setupLogger(level string, format string) zerolog.Logger {
	logLevel, err := zerolog.ParseLevel(level)
	if err != nil || level == "" {
		logLevel = zerolog.InfoLevel
	}
	zerolog.SetGlobalLevel(logLevel)

	zerolog.TimestampFunc = func() time.Time {
		return time.Now().UTC()
	}

	// stdout carries the pass result, so logs always go to stderr.
	var output io.Writer
	if format == "console" {
		output = zerolog.ConsoleWriter{
			Out:        os.Stderr,
			TimeFormat: "15:04:05",
		}
	} else {
		output = os.Stderr
	}

	return zerolog.New(output).With().Timestamp().Logger()
}
