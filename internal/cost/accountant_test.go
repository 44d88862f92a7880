package cost

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tributary-ai/content-orchestrator/internal/catalog"
	"github.com/tributary-ai/content-orchestrator/internal/types"
)

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Set(t time.Time) {
	c.mu.Lock()
	c.now = t
	c.mu.Unlock()
}

type memorySink struct {
	mu      sync.Mutex
	records []types.UsageRecord
	err     error
}

func (s *memorySink) Record(ctx context.Context, rec types.UsageRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.records = append(s.records, rec)
	return s.err
}

func newTestAccountant(opts ...Option) *Accountant {
	logger := logrus.New()
	logger.SetLevel(logrus.WarnLevel)
	return NewAccountant(catalog.Default(), logger, opts...)
}

func override(v float64) *float64 { return &v }

func TestEstimateCost_LinearAndExact(t *testing.T) {
	a := newTestAccountant()
	cat := catalog.Default()

	for _, profile := range cat.All() {
		got := a.EstimateCost(UsageInput{
			Provider:    profile.Provider,
			Model:       profile.Model,
			InputTokens: 1_000_000,
		})
		assert.Equal(t, profile.Pricing.InputPer1M, got.InputCost, profile.Key())
		assert.Equal(t, profile.Pricing.InputPer1M, got.TotalCost, profile.Key())
		assert.Equal(t, 0.0, got.OutputCost, profile.Key())
	}

	got := a.EstimateCost(UsageInput{
		Provider:     types.ProviderAnthropic,
		Model:        "claude-sonnet-4-20250514",
		InputTokens:  2_000_000,
		OutputTokens: 500_000,
	})
	assert.Equal(t, 6.0, got.InputCost)
	assert.Equal(t, 7.5, got.OutputCost)
	assert.Equal(t, 13.5, got.TotalCost)
}

func TestEstimateCost_OverrideAlwaysWins(t *testing.T) {
	a := newTestAccountant()

	got := a.EstimateCost(UsageInput{
		Provider:     types.ProviderOpenAI,
		Model:        "gpt-4o",
		InputTokens:  123_456,
		OutputTokens: 9_999,
		Images:       []types.ImageUsage{{Tier: types.ImageTier4K, Count: 3}},
		CostOverride: override(2.5),
	})
	assert.Equal(t, types.CostBreakdown{TotalCost: 2.5}, got)
}

func TestEstimateCost_Images(t *testing.T) {
	a := newTestAccountant()

	got := a.EstimateCost(UsageInput{
		Provider: types.ProviderOpenAI,
		Model:    "dall-e-3",
		Images: []types.ImageUsage{
			{Tier: types.ImageTier1K, Count: 2},
			{Tier: types.ImageTier4K, Count: 1},
		},
	})
	assert.InDelta(t, 0.04*2+0.12, got.ImageCost, 1e-12)
	assert.InDelta(t, got.ImageCost, got.TotalCost, 1e-12)
}

func TestEstimateCost_UnknownModelIsFree(t *testing.T) {
	a := newTestAccountant()

	got := a.EstimateCost(UsageInput{
		Provider:     types.ProviderOpenAI,
		Model:        "gpt-9-preview",
		InputTokens:  1_000_000,
		OutputTokens: 1_000_000,
	})
	assert.Equal(t, types.CostBreakdown{}, got)
}

func TestRecordUsage_DailyRollover(t *testing.T) {
	clock := &fakeClock{now: time.Date(2025, 6, 1, 22, 0, 0, 0, time.UTC)}
	a := newTestAccountant(WithClock(clock.Now))
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		a.RecordUsage(ctx, UsageInput{Provider: types.ProviderOpenAI, Model: "gpt-4o", CostOverride: override(1)})
	}
	assert.Equal(t, 3.0, a.DailyCost(types.ProviderOpenAI))

	clock.Set(time.Date(2025, 6, 2, 0, 0, 1, 0, time.UTC))
	a.RecordUsage(ctx, UsageInput{Provider: types.ProviderOpenAI, Model: "gpt-4o", CostOverride: override(1)})

	assert.Equal(t, 1.0, a.DailyCost(types.ProviderOpenAI))
	assert.Equal(t, 4.0, a.SessionCost(), "session total spans days")
}

func TestDailyCost_ReadsAfterMidnightWithoutWrites(t *testing.T) {
	clock := &fakeClock{now: time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)}
	a := newTestAccountant(WithClock(clock.Now))

	a.RecordUsage(context.Background(), UsageInput{Provider: types.ProviderGroq, Model: "x", CostOverride: override(0.5)})
	assert.Equal(t, 0.5, a.DailyCost(""))

	clock.Set(time.Date(2025, 6, 2, 12, 0, 0, 0, time.UTC))
	assert.Equal(t, 0.0, a.DailyCost(""))
	assert.Empty(t, a.DailyTotals())
}

func TestDailyCost_AllProviders(t *testing.T) {
	a := newTestAccountant()
	ctx := context.Background()

	a.RecordUsage(ctx, UsageInput{Provider: types.ProviderOpenAI, Model: "gpt-4o", CostOverride: override(1.25)})
	a.RecordUsage(ctx, UsageInput{Provider: types.ProviderAnthropic, Model: "claude", CostOverride: override(0.75)})

	assert.Equal(t, 2.0, a.DailyCost(""))
	assert.Equal(t, 0.75, a.DailyCost(types.ProviderAnthropic))
	assert.Equal(t, 0.0, a.DailyCost(types.ProviderQwen))
}

func TestRounding_AtReadBoundaryOnly(t *testing.T) {
	a := newTestAccountant()
	ctx := context.Background()

	// gpt-4o-mini input: 0.15 per 1M, so 1 token costs 0.00000015
	var last types.UsageRecord
	for i := 0; i < 1000; i++ {
		last = a.RecordUsage(ctx, UsageInput{Provider: types.ProviderOpenAI, Model: "gpt-4o-mini", InputTokens: 1})
	}

	assert.Equal(t, 0.00000015, last.InputCost, "records keep full precision")
	// 1000 * 0.00000015 = 0.00015, rounded to 4 places
	assert.Equal(t, 0.0002, a.SessionCost())
}

func TestSummarizeByProvider(t *testing.T) {
	a := newTestAccountant()
	ctx := context.Background()

	a.RecordUsage(ctx, UsageInput{Provider: types.ProviderOpenAI, Model: "gpt-4o", CostOverride: override(1)})
	a.RecordUsage(ctx, UsageInput{Provider: types.ProviderOpenAI, Model: "gpt-4o-mini", CostOverride: override(0.5)})
	a.RecordUsage(ctx, UsageInput{Provider: types.ProviderDeepSeek, Model: "deepseek-chat", CostOverride: override(0.1)})

	summary := a.SummarizeByProvider()
	require.Len(t, summary, 2)
	assert.Equal(t, types.ProviderSummary{Provider: types.ProviderDeepSeek, Calls: 1, Spend: 0.1}, summary[0])
	assert.Equal(t, types.ProviderSummary{Provider: types.ProviderOpenAI, Calls: 2, Spend: 1.5}, summary[1])
}

func TestResetSession(t *testing.T) {
	a := newTestAccountant()
	ctx := context.Background()

	a.RecordUsage(ctx, UsageInput{Provider: types.ProviderOpenAI, Model: "gpt-4o", CostOverride: override(2)})
	a.ResetSession()

	assert.Equal(t, 0.0, a.SessionCost())
	assert.Equal(t, 2.0, a.DailyCost(types.ProviderOpenAI))
	assert.Len(t, a.UsageLog(), 1)
}

func TestUsageLog_IsCopy(t *testing.T) {
	a := newTestAccountant()
	meta := map[string]string{"job": "42"}
	rec := a.RecordUsage(context.Background(), UsageInput{Provider: types.ProviderOpenAI, Model: "gpt-4o", Metadata: meta})

	meta["job"] = "mutated"
	log := a.UsageLog()
	log[0].Model = "changed"

	fresh := a.UsageLog()
	assert.Equal(t, "gpt-4o", fresh[0].Model)
	assert.Equal(t, "42", fresh[0].Metadata["job"])
	assert.NotEmpty(t, rec.ID)
}

func TestRecordUsage_Sinks(t *testing.T) {
	sink := &memorySink{err: errors.New("redis down")}
	a := newTestAccountant(WithSink(sink))

	rec := a.RecordUsage(context.Background(), UsageInput{Provider: types.ProviderRunware, Model: "runware:100@1", CostOverride: override(0.0026)})

	require.Len(t, sink.records, 1)
	assert.Equal(t, rec.ID, sink.records[0].ID)
	assert.Equal(t, 0.0026, a.SessionCost(), "sink failures do not affect local totals")
}

func TestRecordUsage_Concurrent(t *testing.T) {
	clock := &fakeClock{now: time.Date(2025, 6, 1, 23, 59, 59, 0, time.UTC)}
	a := newTestAccountant(WithClock(clock.Now))
	ctx := context.Background()

	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < 20; j++ {
				a.RecordUsage(ctx, UsageInput{Provider: types.ProviderGoogle, Model: "gemini-2.5-flash", CostOverride: override(0.01)})
				_ = a.DailyCost("")
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, 10.0, a.SessionCost())
	assert.Equal(t, 10.0, a.DailyCost(types.ProviderGoogle))
	assert.Len(t, a.UsageLog(), 1000)
}
