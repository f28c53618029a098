package connectors

import (
	"context"
	"fmt"
	"time"

	"papertrader/src/engine"

	"github.com/go-resty/resty/v2"
	logger "github.com/sirupsen/logrus"
)

// OptimizerClient posts performance reports to a webhook. The answer is logged only.
type OptimizerClient struct {
	url    string
	apiKey string
	http   *resty.Client
	log    *logger.Entry
}

// NewOptimizerClient returns nil when no URL is configured.
func NewOptimizerClient(cfg Config, log *logger.Entry) *OptimizerClient {
	if cfg.OptimizerURL == "" {
		return nil
	}
	if log == nil {
		log = logger.NewEntry(logger.StandardLogger())
	}
	return &OptimizerClient{
		url:    cfg.OptimizerURL,
		apiKey: cfg.OptimizerAPIKey,
		http:   newRestClient("", 30*time.Second),
		log:    log.WithField("component", "optimizer"),
	}
}

func (c *OptimizerClient) Submit(ctx context.Context, report engine.PerformanceReport) error {
	req := c.http.R().
		SetContext(ctx).
		SetHeader("Content-Type", "application/json").
		SetBody(report)
	if c.apiKey != "" {
		req.SetAuthToken(c.apiKey)
	}

	resp, err := req.Post(c.url)
	if err != nil {
		return fmt.Errorf("submit report: %w", err)
	}
	if resp.IsError() {
		return fmt.Errorf("submit report: HTTP %d: %s", resp.StatusCode(), string(resp.Body()))
	}

	c.log.WithFields(logger.Fields{
		"status":   resp.StatusCode(),
		"response": truncate(string(resp.Body()), 512),
	}).Info("optimizer answered")
	return nil
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
