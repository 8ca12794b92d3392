package swap

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/mr-tron/base58"
	"github.com/stretchr/testify/require"

	"solswap/internal/domain"
	"solswap/internal/jupiter"
	"solswap/internal/quote"
	"solswap/internal/storage"
)

var (
	testIdentity  = base58.Encode(make([]byte, 32))
	testSignature = base58.Encode(make([]byte, 64))
)

type fakeBuilder struct {
	calls int
	err   error
}

func (f *fakeBuilder) BuildSwapTransaction(ctx context.Context, q *jupiter.QuoteResponse, userPublicKey string) (string, error) {
	f.calls++
	if f.err != nil {
		return "", f.err
	}
	return "unsigned-base64", nil
}

type fakeSigner struct {
	err error
}

func (f *fakeSigner) PublicKey() string { return testIdentity }

func (f *fakeSigner) SignTransaction(ctx context.Context, unsigned string) (string, error) {
	if f.err != nil {
		return "", f.err
	}
	return "signed-base64", nil
}

type fakeSender struct {
	calls     atomic.Int32
	signature string
	err       error
}

func (f *fakeSender) SendTransaction(ctx context.Context, signed string) (string, error) {
	f.calls.Add(1)
	if f.err != nil {
		return "", f.err
	}
	return f.signature, nil
}

type fakeConfirmer struct {
	block chan struct{} // when set, wait for close or ctx expiry
	err   error
}

func (f *fakeConfirmer) WaitForConfirmation(ctx context.Context, signature, commitment string) error {
	if f.block != nil {
		select {
		case <-f.block:
		case <-ctx.Done():
			return domain.ErrConfirmationTimeout
		}
	}
	return f.err
}

type fakeGate struct {
	calls    int
	decision *domain.SecurityDecision
}

func (f *fakeGate) Evaluate(identity string, intent domain.SwapIntent, op domain.OperationKind) *domain.SecurityDecision {
	f.calls++
	if f.decision != nil {
		return f.decision
	}
	return &domain.SecurityDecision{Verdict: domain.VerdictPass}
}

type recordingStore struct {
	mu       sync.Mutex
	inserted []*domain.SwapAttemptRecord
	statuses []domain.AttemptStatus
}

func (s *recordingStore) Insert(ctx context.Context, rec *domain.SwapAttemptRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	snapshot := *rec
	s.inserted = append(s.inserted, &snapshot)
	return nil
}

func (s *recordingStore) UpdateStatus(ctx context.Context, requestID string, status domain.AttemptStatus, signature, failReason string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.statuses = append(s.statuses, status)
	return nil
}

func (s *recordingStore) GetByRequestID(ctx context.Context, requestID string) (*domain.SwapAttemptRecord, error) {
	return nil, storage.ErrNotFound
}

func (s *recordingStore) GetByIdentity(ctx context.Context, identity string, limit int) ([]*domain.SwapAttemptRecord, error) {
	return nil, nil
}

func (s *recordingStore) recordedStatuses() []domain.AttemptStatus {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]domain.AttemptStatus(nil), s.statuses...)
}

type fixture struct {
	builder   *fakeBuilder
	sender    *fakeSender
	confirmer *fakeConfirmer
	gate      *fakeGate
	store     *recordingStore
	executor  *Executor
}

func newFixture(opts ...ExecutorOption) *fixture {
	f := &fixture{
		builder:   &fakeBuilder{},
		sender:    &fakeSender{signature: testSignature},
		confirmer: &fakeConfirmer{},
		gate:      &fakeGate{},
		store:     &recordingStore{},
	}
	f.executor = NewExecutor(f.builder, f.sender, f.confirmer, f.gate, f.store, opts...)
	return f
}

func testSnapshot(intent domain.SwapIntent, fetchedAt time.Time) *quote.Snapshot {
	return &quote.Snapshot{
		Quote: &domain.Quote{
			InputMint:          domain.WrappedSOLMint,
			OutputMint:         domain.USDCMint,
			InAmountBaseUnits:  1250000000,
			OutAmountBaseUnits: 287500000,
			IntentKey:          intent.Key(),
			FetchedAt:          fetchedAt,
		},
		Response: &jupiter.QuoteResponse{},
	}
}

func testIntent() domain.SwapIntent {
	return domain.SwapIntent{FromToken: "SOL", ToToken: "USDC", RawAmount: "1.25", SlippageBps: 50}
}

func TestExecutorHappyPath(t *testing.T) {
	f := newFixture()
	intent := testIntent()

	rec, err := f.executor.Execute(context.Background(), testIdentity, intent, testSnapshot(intent, time.Now()), &fakeSigner{})
	require.NoError(t, err)
	require.Equal(t, domain.AttemptConfirmed, rec.Status)
	require.Equal(t, testSignature, rec.Signature)
	require.Equal(t, 1, f.gate.calls)

	require.Len(t, f.store.inserted, 1)
	require.Equal(t, domain.AttemptPending, f.store.inserted[0].Status)
	require.Equal(t, []domain.AttemptStatus{
		domain.AttemptBuilt,
		domain.AttemptSigned,
		domain.AttemptSubmitted,
		domain.AttemptConfirmed,
	}, f.store.recordedStatuses())
}

func TestExecutorRejectsMismatchedQuote(t *testing.T) {
	f := newFixture()
	intent := testIntent()
	other := domain.SwapIntent{FromToken: "USDC", ToToken: "SOL", RawAmount: "5", SlippageBps: 50}

	rec, err := f.executor.Execute(context.Background(), testIdentity, intent, testSnapshot(other, time.Now()), &fakeSigner{})
	require.ErrorIs(t, err, domain.ErrStaleQuote)
	require.Nil(t, rec)
	require.Zero(t, f.builder.calls, "stale quote must be refused before any network call")
}

func TestExecutorRejectsExpiredQuote(t *testing.T) {
	f := newFixture(WithMaxQuoteAge(time.Second))
	intent := testIntent()

	rec, err := f.executor.Execute(context.Background(), testIdentity, intent, testSnapshot(intent, time.Now().Add(-time.Minute)), &fakeSigner{})
	require.ErrorIs(t, err, domain.ErrStaleQuote)
	require.Nil(t, rec)
	require.Zero(t, f.builder.calls)
}

func TestExecutorGateRejectStopsBeforeNetwork(t *testing.T) {
	f := newFixture()
	f.gate.decision = &domain.SecurityDecision{
		Verdict: domain.VerdictReject,
		Alerts:  []domain.Alert{{Severity: domain.SeverityHigh, Message: "rate limit exceeded"}},
	}
	intent := testIntent()

	rec, err := f.executor.Execute(context.Background(), testIdentity, intent, testSnapshot(intent, time.Now()), &fakeSigner{})
	require.ErrorIs(t, err, domain.ErrSecurityRejected)
	require.Nil(t, rec)
	require.Zero(t, f.builder.calls)
	require.Zero(t, f.sender.calls.Load())
	require.Empty(t, f.store.inserted, "a refused attempt is never created")
}

func TestExecutorSigningDeclined(t *testing.T) {
	f := newFixture()
	intent := testIntent()

	rec, err := f.executor.Execute(context.Background(), testIdentity, intent, testSnapshot(intent, time.Now()),
		&fakeSigner{err: domain.ErrSigningDeclined})
	require.ErrorIs(t, err, domain.ErrSigningDeclined)
	require.Equal(t, domain.AttemptFailed, rec.Status)
	require.Zero(t, f.sender.calls.Load(), "a declined signing must not broadcast")
}

func TestExecutorBroadcastFailure(t *testing.T) {
	f := newFixture()
	f.sender.err = fmt.Errorf("blockhash not found")
	intent := testIntent()

	rec, err := f.executor.Execute(context.Background(), testIdentity, intent, testSnapshot(intent, time.Now()), &fakeSigner{})
	require.ErrorIs(t, err, domain.ErrBroadcastFailed)
	require.Equal(t, domain.AttemptFailed, rec.Status)
	require.Empty(t, rec.Signature)
}

func TestExecutorMalformedSignatureIsNotSuccess(t *testing.T) {
	f := newFixture()
	f.sender.signature = "not-base58-!!"
	intent := testIntent()

	rec, err := f.executor.Execute(context.Background(), testIdentity, intent, testSnapshot(intent, time.Now()), &fakeSigner{})
	require.ErrorIs(t, err, domain.ErrBroadcastFailed)
	require.Equal(t, domain.AttemptFailed, rec.Status)
}

func TestExecutorConfirmationTimeoutLeavesSubmitted(t *testing.T) {
	f := newFixture(WithConfirmTimeout(20 * time.Millisecond))
	f.confirmer.block = make(chan struct{}) // never closed
	intent := testIntent()

	rec, err := f.executor.Execute(context.Background(), testIdentity, intent, testSnapshot(intent, time.Now()), &fakeSigner{})
	require.ErrorIs(t, err, domain.ErrConfirmationTimeout)
	require.Equal(t, domain.AttemptSubmitted, rec.Status, "an unknown outcome is not a failure")
	require.Equal(t, testSignature, rec.Signature)

	statuses := f.store.recordedStatuses()
	require.NotContains(t, statuses, domain.AttemptFailed)
}

func TestExecutorOnChainFailure(t *testing.T) {
	f := newFixture()
	f.confirmer.err = fmt.Errorf("transaction failed on chain: InstructionError")
	intent := testIntent()

	rec, err := f.executor.Execute(context.Background(), testIdentity, intent, testSnapshot(intent, time.Now()), &fakeSigner{})
	require.Error(t, err)
	require.NotErrorIs(t, err, domain.ErrConfirmationTimeout)
	require.Equal(t, domain.AttemptFailed, rec.Status)
}

func TestExecutorSingleFlight(t *testing.T) {
	f := newFixture(WithConfirmTimeout(time.Second))
	release := make(chan struct{})
	f.confirmer.block = release
	intent := testIntent()

	done := make(chan struct{})
	go func() {
		defer close(done)
		_, err := f.executor.Execute(context.Background(), testIdentity, intent, testSnapshot(intent, time.Now()), &fakeSigner{})
		require.NoError(t, err)
	}()

	require.Eventually(t, func() bool { return f.sender.calls.Load() == 1 }, time.Second, time.Millisecond)

	_, err := f.executor.Execute(context.Background(), testIdentity, intent, testSnapshot(intent, time.Now()), &fakeSigner{})
	require.ErrorIs(t, err, domain.ErrExecutionInFlight)

	close(release)
	<-done
}
