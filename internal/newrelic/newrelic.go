// Package newrelic provides New Relic APM integration for monitoring pool
// operations.
package newrelic

import (
	"context"
	"sync"
	"time"

	"github.com/newrelic/go-agent/v3/newrelic"

	"github.com/tos-network/prizepool/internal/config"
	"github.com/tos-network/prizepool/internal/util"
)

// Agent wraps New Relic APM functionality.
type Agent struct {
	cfg *config.NewRelicConfig
	app *newrelic.Application
	mu  sync.RWMutex
}

// NewAgent creates a new New Relic agent.
func NewAgent(cfg *config.NewRelicConfig) *Agent {
	return &Agent{
		cfg: cfg,
	}
}

// Start initializes the New Relic agent.
func (a *Agent) Start() error {
	if !a.cfg.Enabled {
		util.Info("New Relic APM disabled")
		return nil
	}

	if a.cfg.LicenseKey == "" {
		util.Warn("New Relic license key not configured, APM disabled")
		return nil
	}

	app, err := newrelic.NewApplication(
		newrelic.ConfigAppName(a.cfg.AppName),
		newrelic.ConfigLicense(a.cfg.LicenseKey),
		newrelic.ConfigDistributedTracerEnabled(true),
		newrelic.ConfigAppLogForwardingEnabled(true),
	)
	if err != nil {
		return err
	}

	if err := app.WaitForConnection(5 * time.Second); err != nil {
		util.Warnf("New Relic connection timeout: %v (will retry in background)", err)
	}

	a.mu.Lock()
	a.app = app
	a.mu.Unlock()

	util.Infof("New Relic APM enabled for app: %s", a.cfg.AppName)
	return nil
}

// Stop shuts down the New Relic agent.
func (a *Agent) Stop() {
	a.mu.RLock()
	app := a.app
	a.mu.RUnlock()

	if app != nil {
		util.Info("Shutting down New Relic agent")
		app.Shutdown(10 * time.Second)
	}
}

// Application returns the underlying New Relic application, or nil when
// the agent was not started.
func (a *Agent) Application() *newrelic.Application {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return a.app
}

// IsEnabled returns true if a New Relic application was created. It does
// not check the connection: Start keeps the application even when the
// initial connection attempt times out.
func (a *Agent) IsEnabled() bool {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return a.app != nil
}

// StartTransaction starts a new New Relic transaction, used to time a
// pool operation end to end (e.g. "Deposit", "StartDraw").
func (a *Agent) StartTransaction(name string) *newrelic.Transaction {
	a.mu.RLock()
	app := a.app
	a.mu.RUnlock()

	if app == nil {
		return nil
	}
	return app.StartTransaction(name)
}

// RecordCustomEvent records a custom event.
func (a *Agent) RecordCustomEvent(eventType string, params map[string]interface{}) {
	a.mu.RLock()
	app := a.app
	a.mu.RUnlock()

	if app != nil {
		app.RecordCustomEvent(eventType, params)
	}
}

// RecordCustomMetric records a custom metric.
func (a *Agent) RecordCustomMetric(name string, value float64) {
	a.mu.RLock()
	app := a.app
	a.mu.RUnlock()

	if app != nil {
		app.RecordCustomMetric(name, value)
	}
}

// NoticeError records an error against a transaction.
func (a *Agent) NoticeError(txn *newrelic.Transaction, err error) {
	if txn != nil && err != nil {
		txn.NoticeError(err)
	}
}

// NewContext adds a transaction to a context.
func (a *Agent) NewContext(ctx context.Context, txn *newrelic.Transaction) context.Context {
	if txn == nil {
		return ctx
	}
	return newrelic.NewContext(ctx, txn)
}

// FromContext gets a transaction from a context.
func (a *Agent) FromContext(ctx context.Context) *newrelic.Transaction {
	return newrelic.FromContext(ctx)
}

// RecordDeposit records a deposit event.
func (a *Agent) RecordDeposit(receiver uint64, amount string) {
	a.RecordCustomEvent("Deposit", map[string]interface{}{
		"receiver": receiver,
		"amount":   amount,
	})
}

// RecordWithdrawal records a withdrawal event.
func (a *Agent) RecordWithdrawal(receiver uint64, amount string) {
	a.RecordCustomEvent("Withdrawal", map[string]interface{}{
		"receiver": receiver,
		"amount":   amount,
	})
}

// RecordDrawCompleted records a completed draw.
func (a *Agent) RecordDrawCompleted(roundID uint64, prize string, winnerCount int) {
	a.RecordCustomEvent("DrawCompleted", map[string]interface{}{
		"round_id":     roundID,
		"prize":        prize,
		"winner_count": winnerCount,
	})
}

// RecordInsolvency records a detected insolvency.
func (a *Agent) RecordInsolvency(roundID uint64, shortfall string) {
	a.RecordCustomEvent("InsolvencyDetected", map[string]interface{}{
		"round_id":  roundID,
		"shortfall": shortfall,
	})
}

// UpdatePoolMetrics updates pool-wide gauges: total assets under
// management, the active receiver count, and the pool's current health
// score.
func (a *Agent) UpdatePoolMetrics(totalAssets float64, receivers int64, healthScore float64) {
	a.RecordCustomMetric("Custom/Pool/TotalAssets", totalAssets)
	a.RecordCustomMetric("Custom/Pool/Receivers", float64(receivers))
	a.RecordCustomMetric("Custom/Pool/HealthScore", healthScore)
}
