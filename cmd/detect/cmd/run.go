package cmd

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"incident-detector/internal/config"
	"incident-detector/internal/metrics"
	"incident-detector/internal/model"
	"incident-detector/internal/report"
	"incident-detector/internal/service"
)

// Command flags
var (
	outputFormat string   // Pass result format on stdout (json, yaml)
	metricsPath  string   // Path to tracked-metric catalog
	reportDir    string   // Output directory for reports
	formats      []string // Report formats (excel, html, yaml)
)

// runCmd represents the run command.
var runCmd = &cobra.Command{
	Use:   "run",
	Short: "执行一轮事件检测",
	Long: `对配置的全部实体执行一轮检测，包括：
1. 从 CloudWatch 或 VictoriaMetrics 查询窗口平均值
2. 根据阈值判断越限信号
3. 通过冷却存储去重告警
4. 发送 Telegram 通知
5. 按配置创建 EBS 取证快照
6. 按配置启动处置剧本（Step Functions 或 NATS）

检测结果以 JSON（或 YAML）写到标准输出，日志写到标准错误。

示例:
  # 仅使用环境变量（兼容原 Lambda 变量名）
  INSTANCE_IDS=i-0abc,i-0def CPU_HIGH=80 detect run

  # 使用配置文件并输出 YAML
  detect run -c config.yaml --output yaml

  # 同时生成 Excel 和 YAML 报告
  detect run -c config.yaml --report-dir ./reports -f excel,html,yaml

  # 使用自定义指标目录
  detect run -c config.yaml -m metrics.yaml`,
	Run: runDetection,
}

func init() {
	rootCmd.AddCommand(runCmd)

	runCmd.Flags().StringVar(&outputFormat, "output", "json", "标准输出格式 (json, yaml)")
	runCmd.Flags().StringVarP(&metricsPath, "metrics", "m", "", "指标目录文件路径（为空时使用内置目录）")
	runCmd.Flags().StringVarP(&reportDir, "report-dir", "o", "", "报告输出目录")
	runCmd.Flags().StringSliceVarP(&formats, "format", "f", nil, "报告格式 (excel,html,yaml)，可用逗号分隔多个")
}

// runDetection executes one evaluation pass.
func runDetection(cmd *cobra.Command, args []string) {
	if outputFormat != "json" && outputFormat != "yaml" {
		fmt.Fprintf(os.Stderr, "❌ 不支持的输出格式: %s\n", outputFormat)
		os.Exit(1)
	}

	// Step 1: Load configuration
	configPath := GetConfigFile()
	cfg, err := config.Load(configPath)
	if err != nil {
		tmpLogger := setupLogger("error", "console")
		tmpLogger.Error().Err(err).Str("path", configPath).Msg("failed to load config")
		fmt.Fprintf(os.Stderr, "❌ 加载配置失败: %v\n", err)
		os.Exit(1)
	}

	// Step 2: Initialize logger; --log-level overrides the config file
	level := cfg.Logging.Level
	if GetLogLevel() != "" {
		level = GetLogLevel()
	}
	logger := setupLogger(level, cfg.Logging.Format)
	logger.Debug().
		Str("config_path", configPath).
		Str("log_level", level).
		Str("telemetry_source", cfg.Telemetry.Source).
		Int("entities", len(cfg.Entities)).
		Msg("configuration loaded successfully")

	// Step 3: Load the metric catalog
	tracked, err := config.LoadMetrics(metricsPath, cfg.Telemetry.Source)
	if err != nil {
		logger.Error().Err(err).Str("path", metricsPath).Msg("failed to load metrics")
		fmt.Fprintf(os.Stderr, "❌ 加载指标目录失败: %v\n", err)
		os.Exit(1)
	}
	thresholds := cfg.Thresholds.ToModel()
	for _, name := range config.UnthresholdedMetrics(tracked, thresholds) {
		logger.Warn().Str("metric", string(name)).Msg("metric has no threshold and can never breach")
	}

	ctx, cancel := context.WithTimeout(context.Background(), cfg.Detector.PassTimeout)
	defer cancel()

	// Step 4: Build collaborators
	recorder := metrics.NewRecorder()
	w, err := buildWiring(ctx, cfg, recorder, logger)
	if err != nil {
		logger.Error().Err(err).Msg("failed to build collaborators")
		fmt.Fprintf(os.Stderr, "❌ 初始化失败: %v\n", err)
		os.Exit(1)
	}
	defer w.Close()

	orchestrator, err := service.NewOrchestrator(w.deps, thresholds, tracked, cfg.Cooldown.Duration, logger,
		service.WithConcurrency(cfg.Detector.Concurrency),
		service.WithStepTimeout(cfg.Detector.StepTimeout),
		service.WithWindow(cfg.Telemetry.Window),
	)
	if err != nil {
		logger.Error().Err(err).Msg("failed to create orchestrator")
		fmt.Fprintf(os.Stderr, "❌ 创建检测器失败: %v\n", err)
		os.Exit(1)
	}

	// Step 5: Evaluate
	result, passErr := orchestrator.Evaluate(ctx, cfg.Entities)

	if err := writeResult(os.Stdout, result, outputFormat); err != nil {
		logger.Error().Err(err).Msg("failed to write pass result")
	}

	// Step 6: Reports and metrics are best effort
	generateReports(cfg, result, logger)

	pushCtx, pushCancel := context.WithTimeout(context.Background(), cfg.Detector.StepTimeout)
	defer pushCancel()
	if err := recorder.Push(pushCtx, cfg.Metrics.Pushgateway, cfg.Metrics.Job); err != nil {
		logger.Warn().Err(err).Str("pushgateway", cfg.Metrics.Pushgateway).Msg("failed to push pass metrics")
	}

	var cfgErr *service.ConfigurationError
	if errors.As(passErr, &cfgErr) {
		logger.Error().Err(passErr).Msg("evaluation pass aborted")
		w.Close()
		os.Exit(2)
	}

	logger.Info().
		Int("entities", result.Summary.Entities).
		Int("incidents", result.Summary.Incidents).
		Int("suppressed", result.Summary.Suppressed).
		Int("step_errors", result.Summary.StepErrors).
		Dur("duration", result.Duration()).
		Msg("evaluation pass completed")
}

// passOutput is the stdout shape of a completed pass.
type passOutput struct {
	Incidents []model.EvaluationResult `json:"incidents" yaml:"incidents"`
	Summary   model.PassSummary        `json:"summary" yaml:"summary"`
}

// errorOutput is the stdout shape of a pass aborted by a configuration error.
type errorOutput struct {
	Error string `json:"error" yaml:"error"`
}

func newPassOutput(result *model.PassResult) any {
	if result.Error != "" {
		return errorOutput{Error: result.Error}
	}
	incidents := result.Incidents
	if incidents == nil {
		incidents = []model.EvaluationResult{}
	}
	return passOutput{Incidents: incidents, Summary: result.Summary}
}

// writeResult renders result to out in the given format.
func writeResult(out io.Writer, result *model.PassResult, format string) error {
	doc := newPassOutput(result)

	switch format {
	case "yaml":
		enc := yaml.NewEncoder(out)
		enc.SetIndent(2)
		if err := enc.Encode(doc); err != nil {
			return fmt.Errorf("failed to encode YAML: %w", err)
		}
		return enc.Close()
	default:
		enc := json.NewEncoder(out)
		enc.SetIndent("", "  ")
		if err := enc.Encode(doc); err != nil {
			return fmt.Errorf("failed to encode JSON: %w", err)
		}
		return nil
	}
}

// resolveFormats determines the report formats to use.
// Command line flags take precedence over config file.
func resolveFormats(cfg *config.Config) []string {
	if len(formats) > 0 {
		return formats
	}
	return cfg.Report.Formats
}

// resolveReportDir determines the report directory to use.
// Command line flags take precedence over config file.
func resolveReportDir(cfg *config.Config) string {
	if reportDir != "" {
		return reportDir
	}
	if cfg.Report.OutputDir != "" {
		return cfg.Report.OutputDir
	}
	return "./reports"
}

// generateReports writes the optional pass reports. Reports are off unless
// at least one format is configured.
func generateReports(cfg *config.Config, result *model.PassResult, logger zerolog.Logger) {
	reportFormats := resolveFormats(cfg)
	if len(reportFormats) == 0 {
		return
	}

	tz := time.UTC
	if cfg.Report.Timezone != "" {
		if loc, err := time.LoadLocation(cfg.Report.Timezone); err == nil {
			tz = loc
		}
	}

	outputPath := resolveReportDir(cfg)
	filenameBase := report.Filename(cfg.Report.FilenameTemplate, result.StartedAt, tz)

	logger.Debug().
		Strs("formats", reportFormats).
		Str("output_dir", outputPath).
		Msg("starting report generation")

	paths, err := report.NewRegistry(tz, cfg.Report.HTMLTemplate).WriteAll(result, outputPath, filenameBase, reportFormats)
	for _, p := range paths {
		logger.Info().Str("path", p).Msg("report generated successfully")
	}
	if err != nil {
		logger.Error().Err(err).Msg("failed to generate report")
	}
}
