package testutil

import (
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestBufferedSlogHandler(t *testing.T) {
	t.Run("captures records", func(t *testing.T) {
		logger, handler := NewTestLogger(t)

		logger.Info("fit done", slog.String("ticker", "AAA.NS"))
		logger.Error("stage failed", slog.Int("code", 1))

		assert.Equal(t, 2, handler.Count())
		assert.True(t, handler.ContainsMessage("fit done"))
		assert.True(t, handler.ContainsAttr("ticker", "AAA.NS"))
		assert.Len(t, handler.GetRecordsByLevel(slog.LevelError), 1)
	})

	t.Run("derived handlers share the buffer", func(t *testing.T) {
		logger, handler := NewTestLogger(t)

		logger.With("component", "classify").Warn("unmapped ticker", "ticker", "ZZZ.NS")
		logger.Warn("unmapped ticker", "ticker", "YYY.NS")

		assert.Equal(t, 2, handler.Count())
		assert.True(t, handler.ContainsAttr("component", "classify"))
		assert.ElementsMatch(t, []any{"ZZZ.NS", "YYY.NS"}, handler.Warned("ticker"))
		AssertLogContains(t, handler, slog.LevelWarn, "unmapped")
	})
}

func TestSyntheticMarket(t *testing.T) {
	params := DefaultSyntheticParams()
	m := NewSyntheticMarket(params)

	assert.Len(t, m.Dates, params.Days)
	assert.Equal(t, []string{params.Market, "AAA", "BBB", "CCC"}, m.Order)
	assert.Equal(t, m.Dates[params.ShockDay], m.EventDate())
	for _, c := range m.Order {
		assert.Len(t, m.Prices[c], params.Days)
		assert.Equal(t, 100.0, m.Prices[c][0])
	}

	again := NewSyntheticMarket(params)
	assert.Equal(t, m.Prices, again.Prices)

	// affected tickers fall relative to the unaffected one after the shock
	end := params.ShockDay + params.ShockDays
	relA := m.Prices["AAA"][end] / m.Prices["AAA"][params.ShockDay-1]
	relC := m.Prices["CCC"][end] / m.Prices["CCC"][params.ShockDay-1]
	assert.Less(t, relA, relC)
}
