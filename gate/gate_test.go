package gate

import (
	"context"
	"crypto/ed25519"
	"crypto/rand"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/mr-tron/base58"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"x402-gateway/breaker"
	"x402-gateway/clock"
	"x402-gateway/ledger"
	"x402-gateway/paygate"
	"x402-gateway/ratelimit"
)

const wireTimeLayout = "2006-01-02T15:04:05.000Z07:00"

var testEpoch = time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC)

func signedIntent(t *testing.T, issuedAt time.Time, amount int64, jobID string) *paygate.PaymentIntent {
	t.Helper()

	pub, priv, err := ed25519.GenerateKey(rand.Reader)
	require.NoError(t, err)

	payer := base58.Encode(pub)
	ts := issuedAt.UTC().Format(wireTimeLayout)

	sig, err := paygate.Sign(payer, amount, jobID, ts, 300, priv)
	require.NoError(t, err)

	return &paygate.PaymentIntent{
		ID:              paygate.DeriveIntentID(payer, amount, jobID, ts, 300),
		Payer:           payer,
		Amount:          amount,
		JobID:           jobID,
		IssuedAt:        ts,
		ValidForSeconds: 300,
		Signature:       base58.Encode(sig),
	}
}

func newTestGate(clk clock.Clock) *Gate {
	return New(Config{
		Ledger: ledger.NewMemory(clk),
		Limiter: ratelimit.New(ratelimit.Config{
			MaxRequests:  5,
			Window:       time.Minute,
			MaxVolume:    10_000_000,
			VolumeWindow: time.Hour,
		}, clk),
		Policy: Policy{MinAmount: 100, MaxAmount: 5_000_000},
		Clock:  clk,
	})
}

// failingLedger always errors, standing in for an unreachable store.
type failingLedger struct{}

func (failingLedger) Reserve(context.Context, string, time.Time) (bool, error) {
	return false, errors.New("connection refused")
}
func (failingLedger) IsReserved(context.Context, string) (bool, error) {
	return false, errors.New("connection refused")
}

func TestAdmitValidIntent(t *testing.T) {
	clk := clock.NewManual(testEpoch)
	g := newTestGate(clk)

	in := signedIntent(t, testEpoch, 1000, "job-1")
	adm, rej := g.Admit(context.Background(), in)
	require.Nil(t, rej)
	require.NotNil(t, adm)
	assert.True(t, adm.Outcome.Valid)
	assert.NotEmpty(t, adm.RequestID)
	assert.Same(t, in, adm.Intent)
}

func TestAdmitReplayRejected(t *testing.T) {
	clk := clock.NewManual(testEpoch)
	g := newTestGate(clk)

	in := signedIntent(t, testEpoch, 1000, "job-1")
	_, rej := g.Admit(context.Background(), in)
	require.Nil(t, rej)

	_, rej = g.Admit(context.Background(), in)
	require.NotNil(t, rej)
	assert.Equal(t, paygate.CodeIntentAlreadyUsed, rej.Code)
}

func TestAdmitConcurrentAtMostOnce(t *testing.T) {
	clk := clock.NewManual(testEpoch)
	g := newTestGate(clk)
	in := signedIntent(t, testEpoch, 1000, "job-1")

	const attempts = 16
	admitted := make([]bool, attempts)
	start := make(chan struct{})
	var wg sync.WaitGroup
	for i := 0; i < attempts; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			<-start
			adm, _ := g.Admit(context.Background(), in)
			admitted[i] = adm != nil
		}(i)
	}
	close(start)
	wg.Wait()

	wins := 0
	for _, ok := range admitted {
		if ok {
			wins++
		}
	}
	assert.Equal(t, 1, wins, "one intent admits exactly once under races")
}

func TestAdmitExpiredIntent(t *testing.T) {
	clk := clock.NewManual(testEpoch)
	g := newTestGate(clk)

	in := signedIntent(t, testEpoch.Add(-10*time.Minute), 1000, "job-1")
	_, rej := g.Admit(context.Background(), in)
	require.NotNil(t, rej)
	assert.Equal(t, paygate.CodeIntentExpired, rej.Code)
}

func TestAdmitMissingID(t *testing.T) {
	clk := clock.NewManual(testEpoch)
	g := newTestGate(clk)

	in := signedIntent(t, testEpoch, 1000, "job-1")
	in.ID = ""
	_, rej := g.Admit(context.Background(), in)
	require.NotNil(t, rej)
	assert.Equal(t, paygate.CodeMissingFields, rej.Code)
}

func TestAdmitTamperBurnsReservation(t *testing.T) {
	clk := clock.NewManual(testEpoch)
	g := newTestGate(clk)

	in := signedIntent(t, testEpoch, 1000, "job-1")
	in.JobID = "job-other" // breaks the signature, keeps the id

	_, rej := g.Admit(context.Background(), in)
	require.NotNil(t, rej)
	assert.Equal(t, paygate.CodeSignatureVerificationFailed, rej.Code)

	// The id was reserved before verification and stays burned; a later
	// attempt with the genuine fields now reads as a replay.
	in.JobID = "job-1"
	_, rej = g.Admit(context.Background(), in)
	require.NotNil(t, rej)
	assert.Equal(t, paygate.CodeIntentAlreadyUsed, rej.Code)
}

func TestAdmitAmountBounds(t *testing.T) {
	clk := clock.NewManual(testEpoch)
	g := newTestGate(clk)

	low := signedIntent(t, testEpoch, 50, "job-low")
	_, rej := g.Admit(context.Background(), low)
	require.NotNil(t, rej)
	assert.Equal(t, paygate.CodeAmountBelowMinimum, rej.Code)
	assert.Equal(t, int64(50), rej.Details["provided"])
	assert.Equal(t, int64(100), rej.Details["required"])

	high := signedIntent(t, testEpoch, 9_000_000, "job-high")
	_, rej = g.Admit(context.Background(), high)
	require.NotNil(t, rej)
	assert.Equal(t, paygate.CodeAmountAboveMaximum, rej.Code)
	assert.Equal(t, int64(5_000_000), rej.Details["allowed"])
}

func TestAdmitRateLimit(t *testing.T) {
	clk := clock.NewManual(testEpoch)
	g := New(Config{
		Ledger:  ledger.NewMemory(clk),
		Limiter: ratelimit.New(ratelimit.Config{MaxRequests: 2, Window: time.Minute}, clk),
		Clock:   clk,
	})

	pub, priv, err := ed25519.GenerateKey(rand.Reader)
	require.NoError(t, err)
	payer := base58.Encode(pub)
	ts := testEpoch.UTC().Format(wireTimeLayout)

	forJob := func(jobID string) *paygate.PaymentIntent {
		sig, err := paygate.Sign(payer, 1000, jobID, ts, 300, priv)
		require.NoError(t, err)
		return &paygate.PaymentIntent{
			ID:              paygate.DeriveIntentID(payer, 1000, jobID, ts, 300),
			Payer:           payer,
			Amount:          1000,
			JobID:           jobID,
			IssuedAt:        ts,
			ValidForSeconds: 300,
			Signature:       base58.Encode(sig),
		}
	}

	_, rej := g.Admit(context.Background(), forJob("job-1"))
	require.Nil(t, rej)
	_, rej = g.Admit(context.Background(), forJob("job-2"))
	require.Nil(t, rej)

	_, rej = g.Admit(context.Background(), forJob("job-3"))
	require.NotNil(t, rej)
	assert.Equal(t, paygate.CodeRateLimitExceeded, rej.Code)
	assert.Equal(t, 2, rej.Details["requestCount"])
}

func TestAdmitStoreUnavailable(t *testing.T) {
	clk := clock.NewManual(testEpoch)
	g := New(Config{Ledger: failingLedger{}, Clock: clk})

	in := signedIntent(t, testEpoch, 1000, "job-1")
	_, rej := g.Admit(context.Background(), in)
	require.NotNil(t, rej)
	assert.Equal(t, paygate.CodeStoreUnavailable, rej.Code)
}

func TestAdmitBreakerOpens(t *testing.T) {
	clk := clock.NewManual(testEpoch)
	br := breaker.New(2, 30*time.Second, clk)
	g := New(Config{
		Ledger:       failingLedger{},
		Breaker:      br,
		SharedLedger: true,
		Clock:        clk,
	})

	// Two store failures trip the breaker, then callers fail fast.
	for i := 0; i < 2; i++ {
		_, rej := g.Admit(context.Background(), signedIntent(t, testEpoch, 1000, "job-1"))
		require.NotNil(t, rej)
		assert.Equal(t, paygate.CodeStoreUnavailable, rej.Code)
	}
	require.Equal(t, breaker.Open, br.State())

	_, rej := g.Admit(context.Background(), signedIntent(t, testEpoch, 1000, "job-2"))
	require.NotNil(t, rej)
	assert.Equal(t, paygate.CodeBreakerOpen, rej.Code)
}

func TestAdmitBreakerNotUsedForLocalLedger(t *testing.T) {
	clk := clock.NewManual(testEpoch)
	br := breaker.New(1, 30*time.Second, clk)
	g := New(Config{
		Ledger:       ledger.NewMemory(clk),
		Breaker:      br,
		SharedLedger: false,
		Clock:        clk,
	})

	// Force the breaker open out of band; an in-process ledger bypasses it.
	br.Execute(func() error { return errors.New("boom") })
	require.Equal(t, breaker.Open, br.State())

	adm, rej := g.Admit(context.Background(), signedIntent(t, testEpoch, 1000, "job-1"))
	require.Nil(t, rej)
	require.NotNil(t, adm)
}

func TestAdmitStrictIntentID(t *testing.T) {
	clk := clock.NewManual(testEpoch)
	g := New(Config{
		Ledger: ledger.NewMemory(clk),
		Policy: Policy{StrictIntentID: true},
		Clock:  clk,
	})

	in := signedIntent(t, testEpoch, 1000, "job-1")
	adm, rej := g.Admit(context.Background(), in)
	require.Nil(t, rej)
	require.NotNil(t, adm)

	in2 := signedIntent(t, testEpoch, 1000, "job-2")
	in2.ID = "FakeButUnusedId"
	_, rej = g.Admit(context.Background(), in2)
	require.NotNil(t, rej)
	assert.Equal(t, paygate.CodeInvalidIntentID, rej.Code)
	assert.Equal(t, "FakeButUnusedId", rej.Details["provided"])
}

func TestRejectionCarriesMessageAndRequestID(t *testing.T) {
	clk := clock.NewManual(testEpoch)
	g := newTestGate(clk)

	in := signedIntent(t, testEpoch.Add(-time.Hour), 1000, "job-1")
	_, rej := g.Admit(context.Background(), in)
	require.NotNil(t, rej)
	assert.Equal(t, rej.Code.Message(), rej.Message)
	assert.NotEmpty(t, rej.RequestID)
}
