package ingest

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/nats-io/nats.go"

	"github.com/AlphaAgentAI/alphaagent-mvp/engine/domain"
	"github.com/AlphaAgentAI/alphaagent-mvp/pkg/natsutil"
)

const (
	// SubjectBuild receives index build requests.
	SubjectBuild = "alpha.index.build"
	// SubjectBuilt receives build reports once a build finishes.
	SubjectBuilt = "alpha.index.built"
)

// BuildRequest asks the consumer to run an index build. Zero-value fields
// fall back to the consumer's configured defaults.
type BuildRequest struct {
	OutDir string `json:"out_dir,omitempty"`
	Force  bool   `json:"force,omitempty"`
}

// BuildReport is published after every build attempt, successful or not.
type BuildReport struct {
	Manifest  domain.IndexManifest `json:"manifest"`
	Skipped   bool                 `json:"skipped"`
	Error     string               `json:"error,omitempty"`
	ElapsedMS int64                `json:"elapsed_ms"`
}

// Consumer drives index builds from NATS messages. Builds run one at a time
// in subscription order.
type Consumer struct {
	builder  *Builder
	nc       *nats.Conn
	defaults BuildOptions
	logger   *slog.Logger
}

// NewConsumer creates a build consumer. defaults supplies the build options
// a request does not override.
func NewConsumer(builder *Builder, nc *nats.Conn, defaults BuildOptions, logger *slog.Logger) *Consumer {
	if logger == nil {
		logger = slog.Default()
	}
	return &Consumer{builder: builder, nc: nc, defaults: defaults, logger: logger}
}

// Start subscribes to build requests. The returned subscription is live until
// drained or the connection closes.
func (c *Consumer) Start() (*nats.Subscription, error) {
	sub, err := natsutil.Subscribe(c.nc, SubjectBuild, c.handle)
	if err != nil {
		return nil, fmt.Errorf("ingest: subscribe %s: %w", SubjectBuild, err)
	}
	c.logger.Info("build consumer listening", "subject", SubjectBuild)
	return sub, nil
}

func (c *Consumer) handle(ctx context.Context, req BuildRequest) {
	opts := c.defaults
	if req.OutDir != "" {
		opts.OutDir = req.OutDir
	}
	opts.Force = opts.Force || req.Force

	start := time.Now()
	manifest, err := c.builder.Build(ctx, opts)

	report := BuildReport{
		Manifest:  manifest,
		ElapsedMS: time.Since(start).Milliseconds(),
	}
	switch {
	case errors.Is(err, domain.ErrIndexExists):
		report.Skipped = true
	case err != nil:
		report.Error = err.Error()
		c.logger.Error("index build failed", "err", err)
	}

	if err := natsutil.Publish(ctx, c.nc, SubjectBuilt, report); err != nil {
		c.logger.Error("publish build report failed", "subject", SubjectBuilt, "err", err)
	}
}
