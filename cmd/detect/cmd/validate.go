package cmd

import (
	"context"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/spf13/cobra"

	"incident-detector/internal/config"
	"incident-detector/internal/store"
)

// validateCmd represents the validate command.
var validateCmd = &cobra.Command{
	Use:   "validate",
	Short: "验证配置",
	Long:  "加载并验证配置文件和环境变量，检查格式、必填字段、数值范围和业务逻辑约束；指定 --metrics 时同时校验指标目录，指定 --cooldown 时连接冷却存储并显示各实体的冷却状态。",
	Run:   runValidate,
}

var (
	validateMetricsPath string
	validateCooldown    bool
)

func init() {
	rootCmd.AddCommand(validateCmd)
	validateCmd.Flags().StringVarP(&validateMetricsPath, "metrics", "m", "", "指标目录文件路径（可选）")
	validateCmd.Flags().BoolVar(&validateCooldown, "cooldown", false, "连接冷却存储并显示各实体的冷却状态")
}

// runValidate executes the validate command logic.
func runValidate(cmd *cobra.Command, args []string) {
	configPath := GetConfigFile()

	// Load and validate configuration (Load internally calls Validate)
	cfg, err := config.Load(configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "❌ 配置验证失败: %v\n", err)
		os.Exit(1)
	}

	tracked, err := config.LoadMetrics(validateMetricsPath, cfg.Telemetry.Source)
	if err != nil {
		fmt.Fprintf(os.Stderr, "❌ 指标目录验证失败: %v\n", err)
		os.Exit(1)
	}

	if configPath == "" {
		configPath = "(environment)"
	}
	fmt.Printf("✅ 配置验证通过: %s\n", configPath)
	fmt.Printf("   实体数: %d, 指标数: %d, 指标源: %s\n", len(cfg.Entities), len(tracked), cfg.Telemetry.Source)
	for _, name := range config.UnthresholdedMetrics(tracked, cfg.Thresholds.ToModel()) {
		fmt.Printf("   ⚠️  指标 %s 未配置阈值，不会触发告警\n", name)
	}
	if len(cfg.Entities) == 0 {
		fmt.Println("   ⚠️  未配置任何实体，检测将以配置错误结束")
	}

	if validateCooldown {
		if err := checkCooldownStore(cmd.Context(), cfg); err != nil {
			fmt.Fprintf(os.Stderr, "❌ 冷却存储检查失败: %v\n", err)
			os.Exit(1)
		}
	}
}

// checkCooldownStore opens the configured store and prints each entity's state.
func checkCooldownStore(ctx context.Context, cfg *config.Config) error {
	if ctx == nil {
		ctx = context.Background()
	}
	logger := setupLogger(GetLogLevel(), "console")

	var awsCfg aws.Config
	if strings.HasPrefix(cfg.Cooldown.Store, "dynamodb://") {
		var err error
		awsCfg, err = awsconfig.LoadDefaultConfig(ctx, awsconfig.WithRegion(cfg.AWS.Region))
		if err != nil {
			return fmt.Errorf("failed to load AWS config: %w", err)
		}
	}

	s, err := store.Open(ctx, cfg.Cooldown.Store, store.Options{AWS: awsCfg, Logger: logger})
	if err != nil {
		return err
	}
	defer s.Close()

	fmt.Printf("   冷却存储: %s, 冷却时间: %s\n", cfg.Cooldown.Store, cfg.Cooldown.Duration)
	return describeCooldown(ctx, s, cfg.Entities, cfg.Cooldown.Duration, time.Now(), os.Stdout)
}

// describeCooldown writes one line per entity with its last alert and
// whether an alert at now would be suppressed.
func describeCooldown(ctx context.Context, s store.Store, entities []string, cooldown time.Duration, now time.Time, w io.Writer) error {
	for _, id := range entities {
		rec, err := s.Last(ctx, id)
		if err != nil {
			return err
		}
		switch {
		case rec == nil:
			fmt.Fprintf(w, "   %s: 无告警记录\n", id)
		case rec.Suppresses(now, cooldown):
			remaining := rec.LastAlert.Add(cooldown).Sub(now).Round(time.Second)
			fmt.Fprintf(w, "   %s: 冷却中，上次告警 %s，剩余 %s\n", id, rec.LastAlert.UTC().Format(time.RFC3339), remaining)
		default:
			fmt.Fprintf(w, "   %s: 可告警，上次告警 %s\n", id, rec.LastAlert.UTC().Format(time.RFC3339))
		}
	}
	return nil
}
