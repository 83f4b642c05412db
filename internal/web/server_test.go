package web

import (
	"compress/gzip"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/pkg/errors"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/vadiminshakov/gainboard/internal/domain"
	"github.com/vadiminshakov/gainboard/internal/services/gain"
)

type fakeLeaderboard struct {
	window      domain.Window
	refresh     bool
	err         error
	invalidated int
}

func (f *fakeLeaderboard) Invalidate(context.Context) error {
	if f.err != nil {
		return f.err
	}
	f.invalidated++
	return nil
}

func (f *fakeLeaderboard) LeaderboardJSON(_ context.Context, w domain.Window, refresh bool) ([]byte, error) {
	f.window, f.refresh = w, refresh
	if f.err != nil {
		return nil, f.err
	}
	return []byte(`[{"user_id":1,"rank":1}]`), nil
}

type fakePortfolios struct{ err error }

func (f fakePortfolios) PortfolioValuation(_ context.Context, userID int64) (gain.Valuation, error) {
	if f.err != nil {
		return gain.Valuation{}, f.err
	}
	return gain.Valuation{
		Holdings: []gain.HoldingValuation{{Holding: domain.Holding{UserID: userID, Symbol: "AAPL"}}},
		Summary:  gain.Summary{TotalCurrentValue: decimal.NewFromInt(1800)},
	}, nil
}

func (f fakePortfolios) Snapshots(context.Context, int64) ([]domain.PortfolioSnapshot, error) {
	return nil, f.err
}

type fakePrices struct{}

func (fakePrices) PriceHistory(_ context.Context, symbol string, date time.Time) (domain.PricePoint, error) {
	if symbol == "ZZZZ" {
		return domain.PricePoint{}, errors.Wrap(domain.ErrNotFound, "no data")
	}
	return domain.PricePoint{
		Instrument: domain.Classify(symbol),
		Date:       domain.Day(date),
		Price:      decimal.NewFromInt(150),
		Source:     domain.SourceCache,
	}, nil
}

func newTestServer(lb *fakeLeaderboard, p fakePortfolios) http.Handler {
	s := NewServer(":0", Deps{
		Leaderboard: lb,
		Portfolios:  p,
		Prices:      fakePrices{},
		Metrics:     http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) { _, _ = io.WriteString(w, "ok") }),
	}, zap.NewNop())
	return s.Handler()
}

func do(t *testing.T, h http.Handler, target string) *httptest.ResponseRecorder {
	t.Helper()
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, target, nil))
	return rec
}

func TestLeaderboardRoute(t *testing.T) {
	tests := []struct {
		name        string
		target      string
		status      int
		wantWindow  domain.Window
		wantRefresh bool
	}{
		{name: "default window", target: "/leaderboard", status: http.StatusOK, wantWindow: domain.WindowTotal},
		{name: "daily refresh", target: "/leaderboard?window=daily&refresh=true", status: http.StatusOK, wantWindow: domain.WindowDaily, wantRefresh: true},
		{name: "bad window", target: "/leaderboard?window=hourly", status: http.StatusBadRequest},
		{name: "bad refresh", target: "/leaderboard?refresh=maybe", status: http.StatusBadRequest},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			lb := &fakeLeaderboard{}
			rec := do(t, newTestServer(lb, fakePortfolios{}), tt.target)

			assert.Equal(t, tt.status, rec.Code)
			if tt.status == http.StatusOK {
				assert.JSONEq(t, `[{"user_id":1,"rank":1}]`, rec.Body.String())
				assert.Equal(t, tt.wantWindow, lb.window)
				assert.Equal(t, tt.wantRefresh, lb.refresh)
			}
		})
	}
}

func TestLeaderboardRoute_Failure(t *testing.T) {
	rec := do(t, newTestServer(&fakeLeaderboard{err: errors.New("holdings down")}, fakePortfolios{}), "/leaderboard")
	assert.Equal(t, http.StatusInternalServerError, rec.Code)
}

func TestLeaderboardInvalidateRoute(t *testing.T) {
	lb := &fakeLeaderboard{}
	h := newTestServer(lb, fakePortfolios{})

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodDelete, "/leaderboard", nil))
	assert.Equal(t, http.StatusNoContent, rec.Code)
	assert.Equal(t, 1, lb.invalidated)

	rec = httptest.NewRecorder()
	newTestServer(&fakeLeaderboard{err: errors.New("redis down")}, fakePortfolios{}).
		ServeHTTP(rec, httptest.NewRequest(http.MethodDelete, "/leaderboard", nil))
	assert.Equal(t, http.StatusInternalServerError, rec.Code)
}

func TestPortfolioRoutes(t *testing.T) {
	h := newTestServer(&fakeLeaderboard{}, fakePortfolios{})

	rec := do(t, h, "/portfolio/7")
	require.Equal(t, http.StatusOK, rec.Code)
	var body struct {
		Holdings []map[string]any `json:"holdings"`
		Summary  map[string]any   `json:"summary"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	require.Len(t, body.Holdings, 1)
	assert.Equal(t, "1800", body.Summary["total_current_value"])

	rec = do(t, h, "/portfolio/abc")
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = do(t, h, "/portfolio/7/snapshots")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `[]`, rec.Body.String())

	rec = do(t, newTestServer(&fakeLeaderboard{}, fakePortfolios{err: errors.New("db")}), "/portfolio/7")
	assert.Equal(t, http.StatusInternalServerError, rec.Code)
}

func TestPriceHistoryRoute(t *testing.T) {
	h := newTestServer(&fakeLeaderboard{}, fakePortfolios{})

	rec := do(t, h, "/price/AAPL/history?date=2024-01-02")
	require.Equal(t, http.StatusOK, rec.Code)
	var point domain.PricePoint
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &point))
	assert.Equal(t, "150", point.Price.String())
	assert.Equal(t, "AAPL", point.Instrument.Symbol)

	assert.Equal(t, http.StatusNotFound, do(t, h, "/price/ZZZZ/history?date=2024-01-02").Code)
	assert.Equal(t, http.StatusBadRequest, do(t, h, "/price/AAPL/history?date=yesterday").Code)
}

func TestMetricsAndStreamAvailability(t *testing.T) {
	h := newTestServer(&fakeLeaderboard{}, fakePortfolios{})

	rec := do(t, h, "/metrics")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "ok", rec.Body.String())

	assert.Equal(t, http.StatusServiceUnavailable, do(t, h, "/snapshots/stream").Code)
}

func TestGzip(t *testing.T) {
	h := newTestServer(&fakeLeaderboard{}, fakePortfolios{})

	req := httptest.NewRequest(http.MethodGet, "/leaderboard", nil)
	req.Header.Set("Accept-Encoding", "gzip")
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)

	require.Equal(t, "gzip", rec.Header().Get("Content-Encoding"))
	gz, err := gzip.NewReader(rec.Body)
	require.NoError(t, err)
	body, err := io.ReadAll(gz)
	require.NoError(t, err)
	assert.JSONEq(t, `[{"user_id":1,"rank":1}]`, string(body))
}

func TestParseLastEventID(t *testing.T) {
	assert.Equal(t, uint64(5), parseLastEventID(" 5 ", "9"))
	assert.Equal(t, uint64(9), parseLastEventID("", "9"))
	assert.Equal(t, uint64(0), parseLastEventID("x", ""))
}
