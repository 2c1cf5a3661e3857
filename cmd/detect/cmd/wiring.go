package cmd

import (
	"context"
	"fmt"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	awscloudwatch "github.com/aws/aws-sdk-go-v2/service/cloudwatch"
	awsec2 "github.com/aws/aws-sdk-go-v2/service/ec2"
	awssfn "github.com/aws/aws-sdk-go-v2/service/sfn"
	"github.com/rs/zerolog"

	"incident-detector/internal/client/cloudwatch"
	"incident-detector/internal/client/ec2"
	"incident-detector/internal/client/natsbus"
	"incident-detector/internal/client/sfn"
	"incident-detector/internal/client/telegram"
	"incident-detector/internal/client/vm"
	"incident-detector/internal/config"
	"incident-detector/internal/metrics"
	"incident-detector/internal/service"
	"incident-detector/internal/store"
)

// wiring holds the collaborators built from configuration and the
// functions that release them at the end of the pass.
type wiring struct {
	deps    service.Dependencies
	closers []func()
}

// Close releases every collaborator in reverse order of creation.
// Calling it again is a no-op.
func (w *wiring) Close() {
	for i := len(w.closers) - 1; i >= 0; i-- {
		w.closers[i]()
	}
	w.closers = nil
}

// needsAWS reports whether any configured collaborator talks to AWS.
func needsAWS(cfg *config.Config) bool {
	return cfg.Telemetry.Source == "cloudwatch" ||
		cfg.Forensics.Enabled ||
		strings.HasPrefix(cfg.Cooldown.Store, "dynamodb://") ||
		strings.HasPrefix(cfg.Playbook.Endpoint, "arn:aws:states:")
}

// buildWiring constructs every collaborator the configuration asks for.
// Optional capabilities stay nil when not configured.
func buildWiring(ctx context.Context, cfg *config.Config, recorder *metrics.Recorder, logger zerolog.Logger) (*wiring, error) {
	w := &wiring{}
	w.deps.Recorder = recorder

	var awsCfg aws.Config
	if needsAWS(cfg) {
		var err error
		awsCfg, err = awsconfig.LoadDefaultConfig(ctx, awsconfig.WithRegion(cfg.AWS.Region))
		if err != nil {
			return nil, fmt.Errorf("failed to load AWS config: %w", err)
		}
	}

	// Metric source
	switch cfg.Telemetry.Source {
	case "victoriametrics":
		w.deps.Source = vm.NewClient(&cfg.Telemetry.VictoriaMetrics, &cfg.HTTP.Retry, logger)
	default:
		w.deps.Source = cloudwatch.NewClient(awscloudwatch.NewFromConfig(awsCfg), cfg.Telemetry.Period, logger)
	}

	// Notifier
	tg := telegram.NewClient(&cfg.Notifier.Telegram, &cfg.HTTP.Retry, logger)
	if !tg.Enabled() {
		logger.Warn().Msg("telegram credentials not configured, notifications are disabled")
	}
	w.deps.Notifier = tg

	// Cooldown store
	if cfg.Cooldown.Enabled() {
		s, err := store.Open(ctx, cfg.Cooldown.Store, store.Options{AWS: awsCfg, Logger: logger})
		if err != nil {
			w.Close()
			return nil, fmt.Errorf("failed to open cooldown store: %w", err)
		}
		w.deps.Cooldown = s
		w.closers = append(w.closers, func() {
			if err := s.Close(); err != nil {
				logger.Warn().Err(err).Msg("failed to close cooldown store")
			}
		})
	} else {
		logger.Warn().Msg("no cooldown store configured, every breach alerts")
	}

	// Forensics
	if cfg.Forensics.Enabled {
		w.deps.Forensics = ec2.NewForensics(awsec2.NewFromConfig(awsCfg), logger)
	}

	// Playbook
	if cfg.Playbook.Enabled() {
		pb, closeFn, err := buildPlaybook(cfg.Playbook.Endpoint, awsCfg, logger)
		if err != nil {
			w.Close()
			return nil, err
		}
		w.deps.Playbook = pb
		if closeFn != nil {
			w.closers = append(w.closers, closeFn)
		}
	}

	return w, nil
}

// buildPlaybook selects the playbook trigger for endpoint.
func buildPlaybook(endpoint string, awsCfg aws.Config, logger zerolog.Logger) (service.PlaybookTrigger, func(), error) {
	if strings.HasPrefix(endpoint, "arn:aws:states:") {
		return sfn.NewPlaybook(awssfn.NewFromConfig(awsCfg), endpoint, logger), nil, nil
	}

	p, err := natsbus.Dial(endpoint, logger)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to set up NATS playbook: %w", err)
	}
	return p, p.Close, nil
}
