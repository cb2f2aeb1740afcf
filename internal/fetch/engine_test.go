package fetch_test

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/refstream/refstream/internal/fetch"
)

const engineTestURL = "https://vendor.example/case-studies/alpha"

// fakeFetcher scripts one tier of the engine. Each call consumes the
// next scripted response; the final one repeats once the script runs
// out.
type fakeFetcher struct {
	mu        sync.Mutex
	calls     int
	responses []fakeResponse
}

type fakeResponse struct {
	res *fetch.Result
	err error
}

func (f *fakeFetcher) Fetch(_ context.Context, _ string) (*fetch.Result, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	idx := f.calls
	f.calls++
	if idx >= len(f.responses) {
		idx = len(f.responses) - 1
	}
	r := f.responses[idx]
	return r.res, r.err
}

func (f *fakeFetcher) callCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls
}

func wordsResult(engine string, words int) *fetch.Result {
	return &fetch.Result{
		URI:       engineTestURL,
		WordCount: words,
		Engine:    engine,
		FetchedAt: time.Now().UTC(),
	}
}

func newTestEngine(primary, secondary fetch.Fetcher, policy fetch.Policy) *fetch.Engine {
	retry := fetch.RetryPolicy{MaxAttempts: 3, Base: time.Millisecond, Cap: 4 * time.Millisecond}
	return fetch.NewEngine(primary, secondary, policy, retry, zap.NewNop())
}

func TestEngine_PrimarySuccess(t *testing.T) {
	t.Parallel()

	primary := &fakeFetcher{responses: []fakeResponse{{res: wordsResult(fetch.EnginePrimary, 500)}}}
	secondary := &fakeFetcher{responses: []fakeResponse{{res: wordsResult(fetch.EngineSecondary, 900)}}}
	eng := newTestEngine(primary, secondary, fetch.Policy{MinWordCount: 100})

	res, err := eng.Fetch(context.Background(), engineTestURL)
	require.NoError(t, err)
	assert.Equal(t, fetch.EnginePrimary, res.Engine)
	assert.Equal(t, 500, res.WordCount)
	assert.Equal(t, 0, secondary.callCount())
}

func TestEngine_ThinPrimaryEscalates(t *testing.T) {
	t.Parallel()

	primary := &fakeFetcher{responses: []fakeResponse{{res: wordsResult(fetch.EnginePrimary, 40)}}}
	secondary := &fakeFetcher{responses: []fakeResponse{{res: wordsResult(fetch.EngineSecondary, 500)}}}
	eng := newTestEngine(primary, secondary, fetch.Policy{MinWordCount: 100})

	res, err := eng.Fetch(context.Background(), engineTestURL)
	require.NoError(t, err)
	assert.Equal(t, fetch.EngineSecondary, res.Engine)
	assert.Equal(t, 1, primary.callCount(), "thin content is not a retryable failure")
	assert.Equal(t, 1, secondary.callCount())
}

func TestEngine_BothThinKeepsBetter(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name          string
		primaryWords  int
		fallbackWords int
		wantEngine    string
		wantWords     int
	}{
		{"fallback wins", 40, 60, fetch.EngineSecondary, 60},
		{"primary wins", 80, 60, fetch.EnginePrimary, 80},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()

			primary := &fakeFetcher{responses: []fakeResponse{{res: wordsResult(fetch.EnginePrimary, tc.primaryWords)}}}
			secondary := &fakeFetcher{responses: []fakeResponse{{res: wordsResult(fetch.EngineSecondary, tc.fallbackWords)}}}
			eng := newTestEngine(primary, secondary, fetch.Policy{MinWordCount: 100})

			_, err := eng.Fetch(context.Background(), engineTestURL)
			require.Error(t, err)
			require.True(t, fetch.IsQuality(err))

			var qe *fetch.QualityError
			require.ErrorAs(t, err, &qe)
			require.NotNil(t, qe.Best)
			assert.Equal(t, tc.wantEngine, qe.Best.Engine)
			assert.Equal(t, tc.wantWords, qe.Best.WordCount)
			assert.Equal(t, 100, qe.MinWords)
		})
	}
}

func TestEngine_BlockedEscalatesImmediately(t *testing.T) {
	t.Parallel()

	primary := &fakeFetcher{responses: []fakeResponse{
		{err: &fetch.BlockedError{URI: engineTestURL, StatusCode: 403, Marker: "just a moment"}},
	}}
	secondary := &fakeFetcher{responses: []fakeResponse{{res: wordsResult(fetch.EngineSecondary, 400)}}}
	eng := newTestEngine(primary, secondary, fetch.Policy{MinWordCount: 100})

	res, err := eng.Fetch(context.Background(), engineTestURL)
	require.NoError(t, err)
	assert.Equal(t, fetch.EngineSecondary, res.Engine)
	assert.Equal(t, 1, primary.callCount(), "blocks must not be retried on the cheap tier")
}

func TestEngine_PermanentNeverEscalates(t *testing.T) {
	t.Parallel()

	primary := &fakeFetcher{responses: []fakeResponse{
		{err: &fetch.PermanentError{URI: engineTestURL, StatusCode: 404}},
	}}
	secondary := &fakeFetcher{responses: []fakeResponse{{res: wordsResult(fetch.EngineSecondary, 400)}}}
	eng := newTestEngine(primary, secondary, fetch.Policy{MinWordCount: 100})

	_, err := eng.Fetch(context.Background(), engineTestURL)
	require.Error(t, err)
	assert.True(t, fetch.IsPermanent(err))
	assert.Equal(t, 1, primary.callCount())
	assert.Equal(t, 0, secondary.callCount())
}

func TestEngine_TransientRetriesThenSucceeds(t *testing.T) {
	t.Parallel()

	primary := &fakeFetcher{responses: []fakeResponse{
		{err: &fetch.TransientError{URI: engineTestURL, StatusCode: 503}},
		{err: &fetch.TransientError{URI: engineTestURL, StatusCode: 503}},
		{res: wordsResult(fetch.EnginePrimary, 300)},
	}}
	secondary := &fakeFetcher{responses: []fakeResponse{{res: wordsResult(fetch.EngineSecondary, 900)}}}
	eng := newTestEngine(primary, secondary, fetch.Policy{MinWordCount: 100})

	res, err := eng.Fetch(context.Background(), engineTestURL)
	require.NoError(t, err)
	assert.Equal(t, fetch.EnginePrimary, res.Engine)
	assert.Equal(t, 3, primary.callCount())
	assert.Equal(t, 0, secondary.callCount())
}

func TestEngine_TransientExhaustionEscalates(t *testing.T) {
	t.Parallel()

	primary := &fakeFetcher{responses: []fakeResponse{
		{err: &fetch.TransientError{URI: engineTestURL, StatusCode: 500}},
	}}
	secondary := &fakeFetcher{responses: []fakeResponse{{res: wordsResult(fetch.EngineSecondary, 400)}}}
	eng := newTestEngine(primary, secondary, fetch.Policy{MinWordCount: 100})

	res, err := eng.Fetch(context.Background(), engineTestURL)
	require.NoError(t, err)
	assert.Equal(t, fetch.EngineSecondary, res.Engine)
	assert.Equal(t, 3, primary.callCount(), "retry budget spent before escalating")
}

func TestEngine_ForceSecondarySkipsPrimary(t *testing.T) {
	t.Parallel()

	primary := &fakeFetcher{responses: []fakeResponse{{res: wordsResult(fetch.EnginePrimary, 500)}}}
	secondary := &fakeFetcher{responses: []fakeResponse{{res: wordsResult(fetch.EngineSecondary, 400)}}}
	eng := newTestEngine(primary, secondary, fetch.Policy{ForceSecondary: true, MinWordCount: 100})

	res, err := eng.Fetch(context.Background(), engineTestURL)
	require.NoError(t, err)
	assert.Equal(t, fetch.EngineSecondary, res.Engine)
	assert.Equal(t, 0, primary.callCount())
}

func TestEngine_SecondaryFailureKeepsPrimaryBest(t *testing.T) {
	t.Parallel()

	primary := &fakeFetcher{responses: []fakeResponse{{res: wordsResult(fetch.EnginePrimary, 40)}}}
	secondary := &fakeFetcher{responses: []fakeResponse{
		{err: &fetch.TransientError{URI: engineTestURL, StatusCode: 502}},
	}}
	eng := newTestEngine(primary, secondary, fetch.Policy{MinWordCount: 100})

	_, err := eng.Fetch(context.Background(), engineTestURL)
	require.Error(t, err)
	require.True(t, fetch.IsQuality(err))

	var qe *fetch.QualityError
	require.ErrorAs(t, err, &qe)
	require.NotNil(t, qe.Best)
	assert.Equal(t, fetch.EnginePrimary, qe.Best.Engine)
	assert.Equal(t, 40, qe.Best.WordCount)
}

func TestEngine_NoSecondaryConfigured(t *testing.T) {
	t.Parallel()

	primary := &fakeFetcher{responses: []fakeResponse{{res: wordsResult(fetch.EnginePrimary, 40)}}}
	eng := newTestEngine(primary, nil, fetch.Policy{MinWordCount: 100})

	_, err := eng.Fetch(context.Background(), engineTestURL)
	require.Error(t, err)
	assert.True(t, fetch.IsQuality(err), "thin primary with no fallback reports quality, not failure")
}
