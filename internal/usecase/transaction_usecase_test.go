package usecase

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"custody-service/internal/domain"
	"custody-service/internal/xerrors"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

// ---- fakes ----

type fakeStore struct {
	mu        sync.Mutex
	requests  map[uuid.UUID]*domain.TransactionRequest
	approvers map[uuid.UUID][]*domain.Approver
	responses map[uuid.UUID]*domain.TransactionResponse
}

func newFakeStore() *fakeStore {
	return &fakeStore{
		requests:  make(map[uuid.UUID]*domain.TransactionRequest),
		approvers: make(map[uuid.UUID][]*domain.Approver),
		responses: make(map[uuid.UUID]*domain.TransactionResponse),
	}
}

func (s *fakeStore) CreateRequest(ctx context.Context, request *domain.TransactionRequest, approvers []*domain.Approver) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	request.CreatedAt = time.Now()
	s.requests[request.ID] = request
	for i, approver := range approvers {
		approver.ID = int64(i + 1)
		approver.RequestID = request.ID
		approver.CreatedAt = request.CreatedAt
		approver.UpdatedAt = request.CreatedAt
	}
	s.approvers[request.ID] = approvers
	s.responses[request.ID] = &domain.TransactionResponse{
		RequestID: request.ID,
		CreatedAt: request.CreatedAt,
	}
	return nil
}

func (s *fakeStore) GetRequest(ctx context.Context, tenantID string, id uuid.UUID) (*domain.TransactionRequest, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	request, ok := s.requests[id]
	if !ok || request.TenantID != tenantID {
		return nil, xerrors.ErrTransactionNotFound
	}
	return request, nil
}

func (s *fakeStore) GetApprovers(ctx context.Context, requestID uuid.UUID) ([]*domain.Approver, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.approvers[requestID], nil
}

func (s *fakeStore) GetResponse(ctx context.Context, requestID uuid.UUID) (*domain.TransactionResponse, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	response, ok := s.responses[requestID]
	if !ok {
		return nil, xerrors.ErrTransactionNotFound
	}
	copied := *response
	return &copied, nil
}

func (s *fakeStore) ApplyChallengeDecision(ctx context.Context, tenantID, challengeID string, status domain.ApproverStatus) (uuid.UUID, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for requestID, approvers := range s.approvers {
		if s.requests[requestID].TenantID != tenantID {
			continue
		}
		for _, approver := range approvers {
			if approver.ChallengeID == nil || *approver.ChallengeID != challengeID {
				continue
			}
			if approver.Status != domain.ApproverStatusPending {
				return uuid.Nil, xerrors.ErrApproverFinalized
			}
			approver.Status = status
			approver.UpdatedAt = time.Now()
			return requestID, nil
		}
	}
	return uuid.Nil, xerrors.ErrChallengeNotFound
}

func (s *fakeStore) ClaimSubmission(ctx context.Context, requestID uuid.UUID) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	response, ok := s.responses[requestID]
	if !ok {
		return false, xerrors.ErrTransactionNotFound
	}
	if response.SubmissionClaimed {
		return false, nil
	}
	response.SubmissionClaimed = true
	return true, nil
}

func (s *fakeStore) RecordSubmissionResult(ctx context.Context, response *domain.TransactionResponse) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	stored, ok := s.responses[response.RequestID]
	if !ok {
		return xerrors.ErrTransactionNotFound
	}
	if !stored.SubmissionClaimed || stored.TransactionHash != nil {
		return xerrors.ErrAlreadySubmitted
	}
	stored.SignedPayload = response.SignedPayload
	stored.TransactionHash = response.TransactionHash
	stored.Success = response.Success
	stored.ResultPayload = response.ResultPayload
	stored.SubmittedAt = response.SubmittedAt
	return nil
}

func (s *fakeStore) ExpirePendingApprovers(ctx context.Context, cutoff time.Time) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var expired int64
	for _, approvers := range s.approvers {
		for _, approver := range approvers {
			if approver.Status == domain.ApproverStatusPending && approver.CreatedAt.Before(cutoff) {
				approver.Status = domain.ApproverStatusTimedOut
				expired++
			}
		}
	}
	return expired, nil
}

type fakeIdempotency struct {
	mu       sync.Mutex
	reserved map[string]bool
}

func (f *fakeIdempotency) Reserve(ctx context.Context, tenantID, key string, sourceAccountID int64) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	if f.reserved == nil {
		f.reserved = make(map[string]bool)
	}
	composite := fmt.Sprintf("%s/%s/%d", tenantID, key, sourceAccountID)
	if f.reserved[composite] {
		return false, nil
	}
	f.reserved[composite] = true
	return true, nil
}

type fakeAccounts struct {
	byIdentifier map[string]*domain.Account
}

func (f *fakeAccounts) Resolve(ctx context.Context, tenantID, identifier string) (*domain.Account, error) {
	account, ok := f.byIdentifier[identifier]
	if !ok || account.TenantID != tenantID {
		return nil, xerrors.ErrAccountNotFound
	}
	return account, nil
}

func (f *fakeAccounts) GetByID(ctx context.Context, tenantID string, id int64) (*domain.Account, error) {
	for _, account := range f.byIdentifier {
		if account.ID == id && account.TenantID == tenantID {
			return account, nil
		}
	}
	return nil, xerrors.ErrAccountNotFound
}

type fakeAdapter struct {
	mu      sync.Mutex
	name    domain.ChainName
	submits int
	result  *domain.SubmissionResult
	err     error
	txInfo  *domain.TxInfo
}

func (a *fakeAdapter) Name() domain.ChainName { return a.name }

func (a *fakeAdapter) Submit(ctx context.Context, signedPayload string) (*domain.SubmissionResult, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.submits++
	if a.err != nil {
		return nil, a.err
	}
	return a.result, nil
}

func (a *fakeAdapter) GetTransaction(ctx context.Context, hash string) (*domain.TxInfo, error) {
	return a.txInfo, nil
}

func (a *fakeAdapter) submitCount() int {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.submits
}

type fakeRegistry struct {
	adapters map[domain.ChainName]domain.ChainAdapter
}

func (r *fakeRegistry) Get(name domain.ChainName) (domain.ChainAdapter, error) {
	adapter, ok := r.adapters[name]
	if !ok {
		return nil, fmt.Errorf("%w: %s", xerrors.ErrChainNotSupported, name)
	}
	return adapter, nil
}

type fakeSigner struct {
	mu             sync.Mutex
	signs          int
	lastDescriptor *domain.PaymentDescriptor
	err            error
}

func (s *fakeSigner) Sign(ctx context.Context, tenantID string, chain domain.ChainName, desc *domain.PaymentDescriptor) (*domain.SignedPayment, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.signs++
	s.lastDescriptor = desc
	if s.err != nil {
		return nil, s.err
	}
	return &domain.SignedPayment{
		SignedPayload:   "signed-blob",
		TransactionHash: "0xdeadbeef",
	}, nil
}

func (s *fakeSigner) signCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.signs
}

type fakeMfa struct {
	mu         sync.Mutex
	registered map[string]bool
	challenges []domain.ChallengeContext
	next       int
}

func (f *fakeMfa) HasRegisteredDevice(ctx context.Context, deviceID string) (bool, error) {
	return f.registered[deviceID], nil
}

func (f *fakeMfa) SendChallenge(ctx context.Context, deviceID string, challenge domain.ChallengeContext) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.challenges = append(f.challenges, challenge)
	f.next++
	return fmt.Sprintf("challenge-%d", f.next), nil
}

type fakeBus struct {
	mu     sync.Mutex
	events []domain.ApprovalEvent
}

func (b *fakeBus) PublishApproval(ctx context.Context, event domain.ApprovalEvent) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.events = append(b.events, event)
	return nil
}

func (b *fakeBus) published() []domain.ApprovalEvent {
	b.mu.Lock()
	defer b.mu.Unlock()
	return append([]domain.ApprovalEvent(nil), b.events...)
}

// ---- test environment ----

type testEnv struct {
	uc       *TransactionUsecase
	store    *fakeStore
	accounts *fakeAccounts
	adapter  *fakeAdapter
	signer   *fakeSigner
	mfa      *fakeMfa
	bus      *fakeBus
}

func newTestEnv() *testEnv {
	store := newFakeStore()
	adapter := &fakeAdapter{
		name:   domain.ChainStellar,
		result: &domain.SubmissionResult{Accepted: true, ResultCode: "tesSUCCESS"},
	}
	accounts := &fakeAccounts{byIdentifier: map[string]*domain.Account{
		"alice@example.com": {ID: 1, TenantID: "tenant-1", Identifier: "alice@example.com", ApprovalMethod: domain.ApprovalMethodImplicit},
		"bob@example.com":   {ID: 2, TenantID: "tenant-1", Identifier: "bob@example.com", ApprovalMethod: domain.ApprovalMethodImplicit},
		"carol@example.com": {ID: 3, TenantID: "tenant-1", Identifier: "carol@example.com", ApprovalMethod: domain.ApprovalMethodPushChallenge, MfaDeviceID: "device-3"},
		"dave@example.com":  {ID: 4, TenantID: "tenant-1", Identifier: "dave@example.com", ApprovalMethod: domain.ApprovalMethodPushChallenge},
	}}
	signer := &fakeSigner{}
	mfa := &fakeMfa{registered: map[string]bool{"device-3": true}}
	bus := &fakeBus{}

	uc := NewTransactionUsecase(
		store,
		&fakeIdempotency{},
		accounts,
		&fakeRegistry{adapters: map[domain.ChainName]domain.ChainAdapter{domain.ChainStellar: adapter}},
		signer,
		mfa,
		bus,
		zap.NewNop(),
	)

	return &testEnv{uc: uc, store: store, accounts: accounts, adapter: adapter, signer: signer, mfa: mfa, bus: bus}
}

func paymentInput() *PaymentInput {
	return &PaymentInput{
		Chain:            domain.ChainStellar,
		SourceIdentifier: "alice@example.com",
		DestIdentifier:   "bob@example.com",
		Amount:           "25.50",
	}
}

// ---- tests ----

func TestCreatePayment_ImplicitApproverFlow(t *testing.T) {
	env := newTestEnv()
	ctx := context.Background()

	request, approvers, err := env.uc.CreatePayment(ctx, "tenant-1", "key-1", paymentInput())
	require.NoError(t, err)
	require.NotNil(t, request)
	require.Len(t, approvers, 1)

	assert.Equal(t, domain.ApprovalMethodImplicit, approvers[0].Method)
	assert.Equal(t, domain.ApproverStatusApproved, approvers[0].Status)

	// The implicit approval is announced on the bus so the completion
	// workers pick the request up.
	events := env.bus.published()
	require.Len(t, events, 1)
	assert.Equal(t, request.ID.String(), events[0].RequestID)
	assert.Equal(t, "tenant-1", events[0].TenantID)

	// The placeholder response exists and is still unclaimed.
	response, err := env.store.GetResponse(ctx, request.ID)
	require.NoError(t, err)
	assert.False(t, response.SubmissionClaimed)
	assert.Nil(t, response.TransactionHash)
}

func TestCreatePayment_DuplicateIdempotencyKey(t *testing.T) {
	env := newTestEnv()
	ctx := context.Background()

	_, _, err := env.uc.CreatePayment(ctx, "tenant-1", "key-1", paymentInput())
	require.NoError(t, err)

	_, _, err = env.uc.CreatePayment(ctx, "tenant-1", "key-1", paymentInput())
	assert.ErrorIs(t, err, xerrors.ErrDuplicateIdempotencyKey)

	env.store.mu.Lock()
	defer env.store.mu.Unlock()
	assert.Len(t, env.store.requests, 1)
}

func TestCreatePayment_SameKeyDifferentSource(t *testing.T) {
	env := newTestEnv()
	ctx := context.Background()

	_, _, err := env.uc.CreatePayment(ctx, "tenant-1", "key-1", paymentInput())
	require.NoError(t, err)

	// Same key but a different source account is a distinct reservation.
	in := paymentInput()
	in.SourceIdentifier = "bob@example.com"
	in.DestIdentifier = "alice@example.com"
	_, _, err = env.uc.CreatePayment(ctx, "tenant-1", "key-1", in)
	assert.NoError(t, err)
}

func TestCreatePayment_PushChallengeDispatch(t *testing.T) {
	env := newTestEnv()
	ctx := context.Background()

	in := paymentInput()
	in.SourceIdentifier = "carol@example.com"

	request, approvers, err := env.uc.CreatePayment(ctx, "tenant-1", "key-1", in)
	require.NoError(t, err)
	require.Len(t, approvers, 1)

	assert.Equal(t, domain.ApproverStatusPending, approvers[0].Status)
	require.NotNil(t, approvers[0].ChallengeID)
	assert.Equal(t, "challenge-1", *approvers[0].ChallengeID)

	require.Len(t, env.mfa.challenges, 1)
	assert.Equal(t, request.ID.String(), env.mfa.challenges[0].RequestID)
	assert.Contains(t, env.mfa.challenges[0].Reason, "25.50")

	// A pending push approver must not trigger any bus event.
	assert.Empty(t, env.bus.published())
}

func TestCreatePayment_MfaSetupErrorAggregatesApprovers(t *testing.T) {
	env := newTestEnv()
	ctx := context.Background()

	// dave has no device at all; carol's device is deregistered.
	env.mfa.registered["device-3"] = false

	in := paymentInput()
	in.SourceIdentifier = "carol@example.com"
	in.AdditionalSigners = []string{"dave@example.com"}

	_, _, err := env.uc.CreatePayment(ctx, "tenant-1", "key-1", in)

	var mfaErr *xerrors.MfaSetupError
	require.ErrorAs(t, err, &mfaErr)
	assert.ElementsMatch(t, []string{"carol@example.com", "dave@example.com"}, mfaErr.Approvers)

	// Nothing was persisted and no challenge went out.
	env.store.mu.Lock()
	assert.Empty(t, env.store.requests)
	env.store.mu.Unlock()
	assert.Empty(t, env.mfa.challenges)
}

func TestCreatePayment_UnsupportedChain(t *testing.T) {
	env := newTestEnv()

	in := paymentInput()
	in.Chain = domain.ChainBitcoin

	_, _, err := env.uc.CreatePayment(context.Background(), "tenant-1", "key-1", in)
	assert.ErrorIs(t, err, xerrors.ErrChainNotSupported)
}

func TestCreatePayment_InvalidAmount(t *testing.T) {
	env := newTestEnv()

	for _, amount := range []string{"", "0", "0.00", "-5", "1e3", "12.", ".5", "abc"} {
		in := paymentInput()
		in.Amount = amount
		_, _, err := env.uc.CreatePayment(context.Background(), "tenant-1", "key-1", in)
		assert.ErrorIs(t, err, xerrors.ErrInvalidAmount, "amount %q", amount)
	}
}

func TestCreatePayment_UnknownAccount(t *testing.T) {
	env := newTestEnv()

	in := paymentInput()
	in.DestIdentifier = "nobody@example.com"

	_, _, err := env.uc.CreatePayment(context.Background(), "tenant-1", "key-1", in)
	assert.ErrorIs(t, err, xerrors.ErrAccountNotFound)
}

func TestApplyApprovalDecision(t *testing.T) {
	env := newTestEnv()
	ctx := context.Background()

	in := paymentInput()
	in.SourceIdentifier = "carol@example.com"
	request, approvers, err := env.uc.CreatePayment(ctx, "tenant-1", "key-1", in)
	require.NoError(t, err)
	challengeID := *approvers[0].ChallengeID

	requestID, err := env.uc.ApplyApprovalDecision(ctx, "tenant-1", challengeID, true)
	require.NoError(t, err)
	assert.Equal(t, request.ID, requestID)

	stored, err := env.store.GetApprovers(ctx, request.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.ApproverStatusApproved, stored[0].Status)

	// The decision is announced even when it only partially advances the
	// request; a duplicate delivery of the same challenge is rejected.
	require.Len(t, env.bus.published(), 1)
	_, err = env.uc.ApplyApprovalDecision(ctx, "tenant-1", challengeID, true)
	assert.ErrorIs(t, err, xerrors.ErrApproverFinalized)
}

func TestApplyApprovalDecision_DenialPublishes(t *testing.T) {
	env := newTestEnv()
	ctx := context.Background()

	in := paymentInput()
	in.SourceIdentifier = "carol@example.com"
	request, approvers, err := env.uc.CreatePayment(ctx, "tenant-1", "key-1", in)
	require.NoError(t, err)

	_, err = env.uc.ApplyApprovalDecision(ctx, "tenant-1", *approvers[0].ChallengeID, false)
	require.NoError(t, err)

	stored, err := env.store.GetApprovers(ctx, request.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.ApproverStatusDenied, stored[0].Status)
	assert.Len(t, env.bus.published(), 1)
}

func TestApplyApprovalDecision_UnknownChallenge(t *testing.T) {
	env := newTestEnv()

	_, err := env.uc.ApplyApprovalDecision(context.Background(), "tenant-1", "no-such-challenge", true)
	assert.ErrorIs(t, err, xerrors.ErrChallengeNotFound)
}

func TestProcessApprovalEvent_SubmitsWhenAllApproved(t *testing.T) {
	env := newTestEnv()
	ctx := context.Background()

	request, _, err := env.uc.CreatePayment(ctx, "tenant-1", "key-1", paymentInput())
	require.NoError(t, err)

	event := domain.ApprovalEvent{TenantID: "tenant-1", RequestID: request.ID.String()}
	require.NoError(t, env.uc.ProcessApprovalEvent(ctx, event))

	assert.Equal(t, 1, env.signer.signCount())
	assert.Equal(t, 1, env.adapter.submitCount())

	response, err := env.store.GetResponse(ctx, request.ID)
	require.NoError(t, err)
	assert.True(t, response.SubmissionClaimed)
	require.NotNil(t, response.TransactionHash)
	assert.Equal(t, "0xdeadbeef", *response.TransactionHash)
	require.NotNil(t, response.Success)
	assert.True(t, *response.Success)
	require.NotNil(t, response.SubmittedAt)
}

func TestProcessApprovalEvent_WaitsForAllApprovers(t *testing.T) {
	env := newTestEnv()
	ctx := context.Background()

	in := paymentInput()
	in.AdditionalSigners = []string{"carol@example.com"}
	request, _, err := env.uc.CreatePayment(ctx, "tenant-1", "key-1", in)
	require.NoError(t, err)

	event := domain.ApprovalEvent{TenantID: "tenant-1", RequestID: request.ID.String()}
	require.NoError(t, env.uc.ProcessApprovalEvent(ctx, event))

	// carol's push approval is still pending, so nothing may be signed and
	// the claim must stay available for the event that completes the set.
	assert.Zero(t, env.signer.signCount())
	response, err := env.store.GetResponse(ctx, request.ID)
	require.NoError(t, err)
	assert.False(t, response.SubmissionClaimed)
}

func TestProcessApprovalEvent_DeniedApproverBlocksSubmission(t *testing.T) {
	env := newTestEnv()
	ctx := context.Background()

	in := paymentInput()
	in.AdditionalSigners = []string{"carol@example.com"}
	request, approvers, err := env.uc.CreatePayment(ctx, "tenant-1", "key-1", in)
	require.NoError(t, err)

	var challengeID string
	for _, approver := range approvers {
		if approver.ChallengeID != nil {
			challengeID = *approver.ChallengeID
		}
	}
	_, err = env.uc.ApplyApprovalDecision(ctx, "tenant-1", challengeID, false)
	require.NoError(t, err)

	event := domain.ApprovalEvent{TenantID: "tenant-1", RequestID: request.ID.String()}
	require.NoError(t, env.uc.ProcessApprovalEvent(ctx, event))
	assert.Zero(t, env.signer.signCount())
}

func TestProcessApprovalEvent_ConcurrentDuplicatesSubmitOnce(t *testing.T) {
	env := newTestEnv()
	ctx := context.Background()

	request, _, err := env.uc.CreatePayment(ctx, "tenant-1", "key-1", paymentInput())
	require.NoError(t, err)

	event := domain.ApprovalEvent{TenantID: "tenant-1", RequestID: request.ID.String()}

	var wg sync.WaitGroup
	for i := 0; i < 25; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			assert.NoError(t, env.uc.ProcessApprovalEvent(ctx, event))
		}()
	}
	wg.Wait()

	// The submission claim admits exactly one winner regardless of how many
	// duplicate deliveries race.
	assert.Equal(t, 1, env.signer.signCount())
	assert.Equal(t, 1, env.adapter.submitCount())
}

func TestProcessApprovalEvent_DropsMalformedAndUnknown(t *testing.T) {
	env := newTestEnv()
	ctx := context.Background()

	// Both cases are unrecoverable; the event must be consumed, not retried.
	assert.NoError(t, env.uc.ProcessApprovalEvent(ctx, domain.ApprovalEvent{TenantID: "tenant-1", RequestID: "not-a-uuid"}))
	assert.NoError(t, env.uc.ProcessApprovalEvent(ctx, domain.ApprovalEvent{TenantID: "tenant-1", RequestID: uuid.NewString()}))
	assert.Zero(t, env.signer.signCount())
}

func TestProcessApprovalEvent_SigningFailureIsTerminal(t *testing.T) {
	env := newTestEnv()
	ctx := context.Background()

	env.signer.err = fmt.Errorf("vault sealed")

	request, _, err := env.uc.CreatePayment(ctx, "tenant-1", "key-1", paymentInput())
	require.NoError(t, err)

	event := domain.ApprovalEvent{TenantID: "tenant-1", RequestID: request.ID.String()}
	require.NoError(t, env.uc.ProcessApprovalEvent(ctx, event))

	response, err := env.store.GetResponse(ctx, request.ID)
	require.NoError(t, err)
	assert.True(t, response.SubmissionClaimed)
	assert.Nil(t, response.TransactionHash)
	require.NotNil(t, response.Success)
	assert.False(t, *response.Success)
	assert.Contains(t, string(response.ResultPayload), "signing")

	// The claim stays with the failed attempt; a redelivered event must not
	// sign again.
	require.NoError(t, env.uc.ProcessApprovalEvent(ctx, event))
	assert.Equal(t, 1, env.signer.signCount())
}

func TestProcessApprovalEvent_DescriptorCarriesExactAmount(t *testing.T) {
	env := newTestEnv()
	ctx := context.Background()

	in := paymentInput()
	in.Amount = "0.000000000000000001"
	memo := "invoice 42"
	in.Memo = &memo
	in.LedgerFields = map[string]string{"destination_tag": "7"}

	request, _, err := env.uc.CreatePayment(ctx, "tenant-1", "key-1", in)
	require.NoError(t, err)

	event := domain.ApprovalEvent{TenantID: "tenant-1", RequestID: request.ID.String()}
	require.NoError(t, env.uc.ProcessApprovalEvent(ctx, event))

	desc := env.signer.lastDescriptor
	require.NotNil(t, desc)
	assert.Equal(t, "0.000000000000000001", desc.Amount)
	assert.Equal(t, "1", desc.Source)
	assert.Equal(t, "2", desc.Destination)
	require.NotNil(t, desc.Memo)
	assert.Equal(t, "invoice 42", *desc.Memo)
	assert.Equal(t, "7", desc.LedgerFields["destination_tag"])
}

func TestExpirePendingApprovers(t *testing.T) {
	env := newTestEnv()
	ctx := context.Background()

	in := paymentInput()
	in.SourceIdentifier = "carol@example.com"
	request, _, err := env.uc.CreatePayment(ctx, "tenant-1", "key-1", in)
	require.NoError(t, err)

	// Backdate the approver so the sweep picks it up.
	env.store.mu.Lock()
	env.store.approvers[request.ID][0].CreatedAt = time.Now().Add(-time.Hour)
	env.store.mu.Unlock()

	expired, err := env.uc.ExpirePendingApprovers(ctx, 15*time.Minute)
	require.NoError(t, err)
	assert.Equal(t, int64(1), expired)

	stored, err := env.store.GetApprovers(ctx, request.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.ApproverStatusTimedOut, stored[0].Status)
	assert.True(t, stored[0].Status.Terminal())
}
