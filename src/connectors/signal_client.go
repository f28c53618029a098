package connectors

import (
	"context"
	"errors"
	"fmt"
	"time"

	"papertrader/src/engine"
	"papertrader/src/model"

	"github.com/go-resty/resty/v2"
	logger "github.com/sirupsen/logrus"
)

var ErrInvalidAnalysis = errors.New("invalid analysis")

type analyzeRequest struct {
	Snapshot engine.MarketSnapshot  `json:"market"`
	Strategy engine.StrategyContext `json:"strategy"`
}

// AISignalClient asks an HTTP analysis service for a trading recommendation.
type AISignalClient struct {
	url    string
	apiKey string
	http   *resty.Client
	log    *logger.Entry
}

func NewAISignalClient(cfg Config, log *logger.Entry) *AISignalClient {
	if log == nil {
		log = logger.NewEntry(logger.StandardLogger())
	}
	timeout := cfg.SignalTimeout
	if timeout <= 0 {
		timeout = 60 * time.Second
	}

	return &AISignalClient{
		url:    cfg.SignalURL,
		apiKey: cfg.SignalAPIKey,
		http:   newRestClient("", timeout),
		log:    log.WithField("component", "ai_signal"),
	}
}

// Analyze posts the snapshot and strategy context and validates the answer.
func (c *AISignalClient) Analyze(ctx context.Context, snapshot engine.MarketSnapshot, strategy engine.StrategyContext) (*model.Analysis, error) {
	req := c.http.R().
		SetContext(ctx).
		SetHeader("Content-Type", "application/json").
		SetBody(analyzeRequest{Snapshot: snapshot, Strategy: strategy}).
		SetResult(&model.Analysis{})
	if c.apiKey != "" {
		req.SetAuthToken(c.apiKey)
	}

	start := time.Now()
	resp, err := req.Post(c.url)
	if err != nil {
		return nil, fmt.Errorf("analyze %s: %w", snapshot.Symbol, err)
	}
	if resp.IsError() {
		return nil, fmt.Errorf("analyze %s: HTTP %d: %s", snapshot.Symbol, resp.StatusCode(), string(resp.Body()))
	}

	analysis, ok := resp.Result().(*model.Analysis)
	if !ok || analysis == nil {
		return nil, fmt.Errorf("%w: empty response", ErrInvalidAnalysis)
	}
	if err := validateAnalysis(analysis); err != nil {
		return nil, err
	}

	c.log.WithFields(logger.Fields{
		"symbol":     snapshot.Symbol,
		"direction":  analysis.Direction,
		"confidence": analysis.Confidence,
		"took":       time.Since(start).String(),
	}).Debug("analysis received")

	return analysis, nil
}

func validateAnalysis(a *model.Analysis) error {
	switch a.Direction {
	case model.DirectionLong, model.DirectionShort, model.DirectionNeutral:
	default:
		return fmt.Errorf("%w: direction %q", ErrInvalidAnalysis, a.Direction)
	}
	if a.Confidence < 0 || a.Confidence > 1 {
		return fmt.Errorf("%w: confidence %.4f out of range [0,1]", ErrInvalidAnalysis, a.Confidence)
	}
	if l := a.SuggestedLeverage; l != nil && (*l < 1 || *l > model.MaxLeverage) {
		a.SuggestedLeverage = nil
	}
	return nil
}
