// Package cost computes per-call spend and keeps session and daily totals.
package cost

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"

	"github.com/tributary-ai/content-orchestrator/internal/metrics"
	"github.com/tributary-ai/content-orchestrator/internal/types"
)

// Public figures are rounded to this many decimal places at the read boundary
const publicPlaces = 4

var perMillion = decimal.NewFromInt(1_000_000)

// PricingSource looks up model pricing
type PricingSource interface {
	LookupPricing(provider types.ProviderID, model string) (types.Pricing, bool)
}

// Sink receives every usage record after it is committed
type Sink interface {
	Record(ctx context.Context, rec types.UsageRecord) error
}

// UsageInput describes one completed provider call
type UsageInput struct {
	Provider     types.ProviderID
	Model        string
	InputTokens  int
	OutputTokens int
	Images       []types.ImageUsage
	// CostOverride replaces the computed total; components are then reported as zero
	CostOverride *float64
	Metadata     map[string]string
}

// Accountant tracks spend. Safe for concurrent use.
type Accountant struct {
	pricing PricingSource
	now     func() time.Time
	sinks   []Sink
	metrics *metrics.Recorder
	logger  *logrus.Logger

	mu       sync.Mutex
	session  decimal.Decimal
	daily    map[types.ProviderID]decimal.Decimal
	dayStamp string
	log      []types.UsageRecord
}

// Option configures an Accountant
type Option func(*Accountant)

// WithClock overrides the time source used for timestamps and the daily rollover
func WithClock(now func() time.Time) Option {
	return func(a *Accountant) { a.now = now }
}

// WithSink mirrors usage records to s
func WithSink(s Sink) Option {
	return func(a *Accountant) { a.sinks = append(a.sinks, s) }
}

// WithMetrics records tokens and spend
func WithMetrics(r *metrics.Recorder) Option {
	return func(a *Accountant) { a.metrics = r }
}

// NewAccountant creates an accountant with empty totals
func NewAccountant(pricing PricingSource, logger *logrus.Logger, opts ...Option) *Accountant {
	a := &Accountant{
		pricing: pricing,
		now:     time.Now,
		logger:  logger,
		daily:   make(map[types.ProviderID]decimal.Decimal),
	}
	for _, opt := range opts {
		opt(a)
	}
	a.dayStamp = dayStamp(a.now())
	return a
}

// EstimateCost computes the cost of a call without recording it. Unknown
// pricing counts as zero.
func (a *Accountant) EstimateCost(in UsageInput) types.CostBreakdown {
	input, output, image, total := a.compute(in)
	return types.CostBreakdown{
		InputCost:  input.InexactFloat64(),
		OutputCost: output.InexactFloat64(),
		ImageCost:  image.InexactFloat64(),
		TotalCost:  total.InexactFloat64(),
	}
}

func (a *Accountant) compute(in UsageInput) (input, output, image, total decimal.Decimal) {
	if in.CostOverride != nil {
		return decimal.Zero, decimal.Zero, decimal.Zero, decimal.NewFromFloat(*in.CostOverride)
	}

	pricing, ok := a.pricing.LookupPricing(in.Provider, in.Model)
	if !ok {
		if a.logger != nil {
			a.logger.WithFields(logrus.Fields{
				"provider": in.Provider,
				"model":    in.Model,
			}).Debug("No pricing for model, counting as zero cost")
		}
		return decimal.Zero, decimal.Zero, decimal.Zero, decimal.Zero
	}

	input = decimal.NewFromInt(int64(in.InputTokens)).Mul(decimal.NewFromFloat(pricing.InputPer1M)).Div(perMillion)
	output = decimal.NewFromInt(int64(in.OutputTokens)).Mul(decimal.NewFromFloat(pricing.OutputPer1M)).Div(perMillion)
	image = decimal.Zero
	for _, usage := range in.Images {
		price, ok := pricing.ImageTiers[usage.Tier]
		if !ok {
			continue
		}
		image = image.Add(decimal.NewFromFloat(price).Mul(decimal.NewFromInt(int64(usage.Count))))
	}
	total = input.Add(output).Add(image)
	return input, output, image, total
}

// RecordUsage computes the call's cost, folds it into the totals and appends it to the log
func (a *Accountant) RecordUsage(ctx context.Context, in UsageInput) types.UsageRecord {
	input, output, image, total := a.compute(in)

	a.mu.Lock()
	now := a.now().UTC()
	a.rolloverLocked(now)

	rec := types.UsageRecord{
		ID:           uuid.New().String(),
		Timestamp:    now,
		Provider:     in.Provider,
		Model:        in.Model,
		InputTokens:  in.InputTokens,
		OutputTokens: in.OutputTokens,
		InputCost:    input.InexactFloat64(),
		OutputCost:   output.InexactFloat64(),
		ImageCost:    image.InexactFloat64(),
		TotalCost:    total.InexactFloat64(),
		Metadata:     copyMetadata(in.Metadata),
	}

	a.session = a.session.Add(total)
	a.daily[in.Provider] = a.daily[in.Provider].Add(total)
	a.log = append(a.log, rec)
	a.mu.Unlock()

	a.metrics.Usage(string(in.Provider), in.InputTokens, in.OutputTokens, rec.TotalCost)

	for _, sink := range a.sinks {
		if err := sink.Record(ctx, rec); err != nil && a.logger != nil {
			a.logger.WithError(err).WithField("record_id", rec.ID).Warn("Failed to mirror usage record")
		}
	}

	if a.logger != nil {
		a.logger.WithFields(logrus.Fields{
			"provider":   rec.Provider,
			"model":      rec.Model,
			"total_cost": rec.TotalCost,
		}).Debug("Usage recorded")
	}

	return rec
}

// rolloverLocked clears the daily map when the UTC date has advanced. Caller holds mu.
func (a *Accountant) rolloverLocked(now time.Time) {
	stamp := dayStamp(now)
	if stamp == a.dayStamp {
		return
	}
	a.daily = make(map[types.ProviderID]decimal.Decimal)
	a.dayStamp = stamp
}

// SessionCost returns spend since process start or the last ResetSession
func (a *Accountant) SessionCost() float64 {
	a.mu.Lock()
	defer a.mu.Unlock()
	return round(a.session)
}

// DailyCost returns today's spend for provider, or across all providers when provider is empty
func (a *Accountant) DailyCost(provider types.ProviderID) float64 {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.rolloverLocked(a.now().UTC())

	if provider != "" {
		return round(a.daily[provider])
	}
	sum := decimal.Zero
	for _, v := range a.daily {
		sum = sum.Add(v)
	}
	return round(sum)
}

// DailyTotals returns today's spend per provider
func (a *Accountant) DailyTotals() map[types.ProviderID]float64 {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.rolloverLocked(a.now().UTC())

	out := make(map[types.ProviderID]float64, len(a.daily))
	for p, v := range a.daily {
		out[p] = round(v)
	}
	return out
}

// SummarizeByProvider derives call counts and spend per provider from the usage log
func (a *Accountant) SummarizeByProvider() []types.ProviderSummary {
	a.mu.Lock()
	calls := make(map[types.ProviderID]int)
	spend := make(map[types.ProviderID]decimal.Decimal)
	for _, rec := range a.log {
		calls[rec.Provider]++
		spend[rec.Provider] = spend[rec.Provider].Add(decimal.NewFromFloat(rec.TotalCost))
	}
	a.mu.Unlock()

	out := make([]types.ProviderSummary, 0, len(calls))
	for p, n := range calls {
		out = append(out, types.ProviderSummary{Provider: p, Calls: n, Spend: round(spend[p])})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Provider < out[j].Provider })
	return out
}

// UsageLog returns a copy of every recorded call in order
func (a *Accountant) UsageLog() []types.UsageRecord {
	a.mu.Lock()
	defer a.mu.Unlock()
	out := make([]types.UsageRecord, len(a.log))
	copy(out, a.log)
	return out
}

// ResetSession zeroes the session total. Daily totals and the log are kept.
func (a *Accountant) ResetSession() {
	a.mu.Lock()
	a.session = decimal.Zero
	a.mu.Unlock()

	if a.logger != nil {
		a.logger.Info("Session cost reset")
	}
}

func round(d decimal.Decimal) float64 {
	return d.Round(publicPlaces).InexactFloat64()
}

func dayStamp(t time.Time) string {
	return t.UTC().Format("2006-01-02")
}

func copyMetadata(m map[string]string) map[string]string {
	if len(m) == 0 {
		return nil
	}
	out := make(map[string]string, len(m))
	for k, v := range m {
		out[k] = v
	}
	return out
}
