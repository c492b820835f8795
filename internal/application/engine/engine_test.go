package engine

import (
	"context"
	"encoding/json"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/assoconnect/approval-flow/internal/domain/entity"
	"github.com/assoconnect/approval-flow/internal/domain/workflow"
)

// memStore is an in-memory document store with the same compare-and-swap
// contract as the sqlite repositories.
type memStore struct {
	mu   sync.Mutex
	docs map[string]*entity.Document
	hist map[string][]*entity.TransitionRecord

	// updateStageHook runs before the CAS check, letting tests interleave a
	// competing writer between the engine's read and its write
	updateStageHook func(id string)
}

func newMemStore() *memStore {
	return &memStore{
		docs: make(map[string]*entity.Document),
		hist: make(map[string][]*entity.TransitionRecord),
	}
}

func (s *memStore) Create(ctx context.Context, doc *entity.Document) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	cp := *doc
	s.docs[doc.ID] = &cp
	return nil
}

func (s *memStore) GetByID(ctx context.Context, id string) (*entity.Document, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	doc, ok := s.docs[id]
	if !ok {
		return nil, workflow.ErrNotFound
	}
	cp := *doc
	return &cp, nil
}

func (s *memStore) UpdateStage(ctx context.Context, id string, expected, target workflow.Stage, feedback string) error {
	if s.updateStageHook != nil {
		s.updateStageHook(id)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	doc, ok := s.docs[id]
	if !ok || doc.Stage != expected {
		return workflow.ErrConflict
	}
	doc.Stage = target
	doc.Feedback = feedback
	doc.UpdatedAt = time.Now()
	return nil
}

func (s *memStore) UpdatePayload(ctx context.Context, id string, expected workflow.Stage, payload string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	doc, ok := s.docs[id]
	if !ok || doc.Stage != expected {
		return workflow.ErrConflict
	}
	doc.Payload = payload
	return nil
}

func (s *memStore) ListByTypeAndStage(ctx context.Context, docType workflow.DocumentType, stage workflow.Stage) ([]*entity.Document, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []*entity.Document
	for _, doc := range s.docs {
		if doc.Type == docType && doc.Stage == stage {
			cp := *doc
			out = append(out, &cp)
		}
	}
	return out, nil
}

func (s *memStore) Delete(ctx context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.docs[id]; !ok {
		return workflow.ErrNotFound
	}
	delete(s.docs, id)
	delete(s.hist, id)
	return nil
}

func (s *memStore) Append(ctx context.Context, rec *entity.TransitionRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	cp := *rec
	cp.ID = int64(len(s.hist[rec.DocumentID]) + 1)
	s.hist[rec.DocumentID] = append(s.hist[rec.DocumentID], &cp)
	rec.ID = cp.ID
	return nil
}

func (s *memStore) ListByDocumentID(ctx context.Context, documentID string) ([]*entity.TransitionRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]*entity.TransitionRecord{}, s.hist[documentID]...), nil
}

func (s *memStore) WithTransaction(ctx context.Context, fn func(ctx context.Context) error) error {
	return fn(ctx)
}

func (s *memStore) historyLen(id string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.hist[id])
}

func (s *memStore) stage(id string) workflow.Stage {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.docs[id].Stage
}

func newTestEngine(store *memStore) Engine {
	return New(workflow.NewRegistry(), store, store, store, zap.NewNop())
}

func createReport(t *testing.T, eng Engine) *entity.Document {
	t.Helper()
	doc, err := eng.CreateDocument(context.Background(),
		workflow.TypeMeetingReport, "commission-1", workflow.RoleCommissionAdmin,
		"April board meeting", `{"attendees":12}`)
	require.NoError(t, err)
	return doc
}

func createBudgetRequest(t *testing.T, eng Engine) *entity.Document {
	t.Helper()
	doc, err := eng.CreateDocument(context.Background(),
		workflow.TypeBudgetRequest, "commission-2", workflow.RoleFinanceRequester,
		"Summer festival budget", `{"amountRequested":1500}`)
	require.NoError(t, err)
	return doc
}

func TestCreateDocument(t *testing.T) {
	store := newMemStore()
	created := time.Date(2026, 4, 7, 18, 30, 0, 0, time.UTC)
	eng := New(workflow.NewRegistry(), store, store, store, zap.NewNop(),
		WithClock(func() time.Time { return created }))

	doc, err := eng.CreateDocument(context.Background(),
		workflow.TypeMeetingReport, "commission-1", workflow.RoleCommissionAdmin,
		"April board meeting", `{"attendees":12}`)
	require.NoError(t, err)
	assert.Equal(t, created, doc.CreatedAt)

	assert.Equal(t, workflow.StageDraft, doc.Stage)
	assert.Equal(t, "commission-1", doc.OriginatorID)

	// Creation is itself the first audit entry
	require.Len(t, doc.History, 1)
	rec := doc.History[0]
	assert.Equal(t, workflow.StageDraft, rec.FromStage)
	assert.Equal(t, workflow.StageDraft, rec.ToStage)
	assert.Equal(t, entity.ActionCreate, rec.Action)
	assert.Equal(t, workflow.RoleCommissionAdmin, rec.ActorRole)
}

func TestCreateDocument_WrongOriginatorRole(t *testing.T) {
	store := newMemStore()
	eng := newTestEngine(store)

	_, err := eng.CreateDocument(context.Background(),
		workflow.TypeMeetingReport, "reviewer-1", workflow.RoleAdminReviewer, "", "")
	assert.ErrorIs(t, err, workflow.ErrWrongRole)
	assert.Empty(t, store.docs)
}

func TestCreateDocument_UnknownType(t *testing.T) {
	store := newMemStore()
	eng := newTestEngine(store)

	_, err := eng.CreateDocument(context.Background(),
		workflow.DocumentType("grant_application"), "x", workflow.RoleCommissionAdmin, "", "")
	assert.ErrorIs(t, err, workflow.ErrUnknownDocumentType)
}

// Scenario: only the originator commission submits a draft; the admin
// reviewer gets WrongRole and nothing moves.
func TestApplyTransition_SubmitReport(t *testing.T) {
	store := newMemStore()
	eng := newTestEngine(store)
	ctx := context.Background()

	doc := createReport(t, eng)

	_, err := eng.ApplyTransition(ctx, doc.ID, "reviewer-1", workflow.RoleAdminReviewer,
		workflow.StageSubmittedToAdmin, "")
	assert.ErrorIs(t, err, workflow.ErrWrongRole)
	assert.Equal(t, workflow.StageDraft, store.stage(doc.ID))
	assert.Equal(t, 1, store.historyLen(doc.ID))

	updated, err := eng.ApplyTransition(ctx, doc.ID, "commission-1", workflow.RoleCommissionAdmin,
		workflow.StageSubmittedToAdmin, "")
	require.NoError(t, err)
	assert.Equal(t, workflow.StageSubmittedToAdmin, updated.Stage)
	assert.Len(t, updated.History, 2)
}

// Scenario: rejection back to draft demands a non-blank note, which becomes
// the document's feedback; resubmission clears it.
func TestApplyTransition_RejectionFeedback(t *testing.T) {
	store := newMemStore()
	eng := newTestEngine(store)
	ctx := context.Background()

	doc := createReport(t, eng)
	_, err := eng.ApplyTransition(ctx, doc.ID, "commission-1", workflow.RoleCommissionAdmin,
		workflow.StageSubmittedToAdmin, "")
	require.NoError(t, err)

	_, err = eng.ApplyTransition(ctx, doc.ID, "reviewer-1", workflow.RoleAdminReviewer,
		workflow.StageDraft, "")
	assert.ErrorIs(t, err, workflow.ErrMissingFeedback)

	_, err = eng.ApplyTransition(ctx, doc.ID, "reviewer-1", workflow.RoleAdminReviewer,
		workflow.StageDraft, "   ")
	assert.ErrorIs(t, err, workflow.ErrMissingFeedback)
	assert.Equal(t, workflow.StageSubmittedToAdmin, store.stage(doc.ID))
	assert.Equal(t, 2, store.historyLen(doc.ID))

	rejected, err := eng.ApplyTransition(ctx, doc.ID, "reviewer-1", workflow.RoleAdminReviewer,
		workflow.StageDraft, "Missing attendee list")
	require.NoError(t, err)
	assert.Equal(t, workflow.StageDraft, rejected.Stage)
	assert.Equal(t, "Missing attendee list", rejected.Feedback)

	resubmitted, err := eng.ApplyTransition(ctx, doc.ID, "commission-1", workflow.RoleCommissionAdmin,
		workflow.StageSubmittedToAdmin, "")
	require.NoError(t, err)
	assert.Empty(t, resubmitted.Feedback)
}

func TestApplyTransition_TerminalStageIsFinal(t *testing.T) {
	store := newMemStore()
	eng := newTestEngine(store)
	ctx := context.Background()

	doc := createBudgetRequest(t, eng)
	steps := []struct {
		actor  string
		role   workflow.Role
		target workflow.Stage
	}{
		{"finance-1", workflow.RoleFinanceReviewer, workflow.StageReviewedByFinance},
		{"finance-1", workflow.RoleFinanceReviewer, workflow.StageSubmittedToBureau},
		{"bureau-1", workflow.RoleBureauMember, workflow.StageApproved},
	}
	for _, s := range steps {
		_, err := eng.ApplyTransition(ctx, doc.ID, s.actor, s.role, s.target, "")
		require.NoError(t, err)
	}
	require.Equal(t, workflow.StageApproved, store.stage(doc.ID))
	historyBefore := store.historyLen(doc.ID)

	// No un-archive: every further attempt is denied without mutation
	for i := 0; i < 2; i++ {
		_, err := eng.ApplyTransition(ctx, doc.ID, "bureau-1", workflow.RoleBureauMember,
			workflow.StageRejected, "too late")
		assert.ErrorIs(t, err, workflow.ErrTerminalStage)
	}
	assert.Equal(t, workflow.StageApproved, store.stage(doc.ID))
	assert.Equal(t, historyBefore, store.historyLen(doc.ID))
}

func TestApplyTransition_DenialIsIdempotent(t *testing.T) {
	store := newMemStore()
	eng := newTestEngine(store)
	ctx := context.Background()

	doc := createReport(t, eng)

	var kinds []error
	for i := 0; i < 2; i++ {
		_, err := eng.ApplyTransition(ctx, doc.ID, "commission-1", workflow.RoleCommissionAdmin,
			workflow.StageSubmittedToBureau, "")
		kinds = append(kinds, err)
	}

	assert.ErrorIs(t, kinds[0], workflow.ErrIllegalTransition)
	assert.ErrorIs(t, kinds[1], workflow.ErrIllegalTransition)
	assert.Equal(t, workflow.StageDraft, store.stage(doc.ID))
	assert.Equal(t, 1, store.historyLen(doc.ID))
}

func TestApplyTransition_NotFound(t *testing.T) {
	eng := newTestEngine(newMemStore())

	_, err := eng.ApplyTransition(context.Background(), "missing", "x",
		workflow.RoleCommissionAdmin, workflow.StageSubmittedToAdmin, "")
	assert.ErrorIs(t, err, workflow.ErrNotFound)
}

// Scenario: two bureau members race on the same budget request; the loser's
// retry observes the terminal stage the winner committed.
func TestApplyTransition_LostRaceObservesTerminal(t *testing.T) {
	store := newMemStore()
	eng := newTestEngine(store)
	ctx := context.Background()

	doc := createBudgetRequest(t, eng)
	_, err := eng.ApplyTransition(ctx, doc.ID, "finance-1", workflow.RoleFinanceReviewer,
		workflow.StageReviewedByFinance, "")
	require.NoError(t, err)
	_, err = eng.ApplyTransition(ctx, doc.ID, "finance-1", workflow.RoleFinanceReviewer,
		workflow.StageSubmittedToBureau, "")
	require.NoError(t, err)

	// The competing approver commits between the loser's read and write
	raced := false
	store.updateStageHook = func(id string) {
		if raced {
			return
		}
		raced = true
		store.mu.Lock()
		store.docs[id].Stage = workflow.StageApproved
		store.mu.Unlock()
	}

	_, err = eng.ApplyTransition(ctx, doc.ID, "bureau-2", workflow.RoleBureauMember,
		workflow.StageRejected, "not this quarter")
	assert.ErrorIs(t, err, workflow.ErrTerminalStage)
	assert.Equal(t, workflow.StageApproved, store.stage(doc.ID))
}

// alwaysConflicting simulates a writer that loses every compare-and-swap race.
type alwaysConflicting struct {
	*memStore
	attempts int
}

func (s *alwaysConflicting) UpdateStage(ctx context.Context, id string, expected, target workflow.Stage, feedback string) error {
	s.attempts++
	return workflow.ErrConflict
}

func TestApplyTransition_ConflictAfterRetriesExhausted(t *testing.T) {
	store := newMemStore()
	losing := &alwaysConflicting{memStore: store}
	eng := New(workflow.NewRegistry(), losing, store, store, zap.NewNop())
	ctx := context.Background()

	doc := createReport(t, eng)

	_, err := eng.ApplyTransition(ctx, doc.ID, "commission-1", workflow.RoleCommissionAdmin,
		workflow.StageSubmittedToAdmin, "")
	assert.ErrorIs(t, err, workflow.ErrConflict)
	assert.Equal(t, casRetries+1, losing.attempts)
	assert.Equal(t, 1, store.historyLen(doc.ID))
}

func TestSetAmountApproved(t *testing.T) {
	store := newMemStore()
	eng := newTestEngine(store)
	ctx := context.Background()

	doc := createBudgetRequest(t, eng)

	updated, err := eng.SetAmountApproved(ctx, doc.ID, "finance-1", workflow.RoleFinanceReviewer, 1200.50)
	require.NoError(t, err)

	// The stage does not move; the amount lands in the payload
	assert.Equal(t, workflow.StageSubmittedToFinance, updated.Stage)

	var payload map[string]interface{}
	require.NoError(t, json.Unmarshal([]byte(updated.Payload), &payload))
	assert.Equal(t, 1200.50, payload["amountApproved"])
	assert.Equal(t, float64(1500), payload["amountRequested"])

	history, err := eng.GetHistory(ctx, doc.ID)
	require.NoError(t, err)
	require.Len(t, history, 2)
	assert.Equal(t, entity.ActionAmountApproved, history[1].Action)
	assert.Equal(t, history[1].FromStage, history[1].ToStage)
}

func TestSetAmountApproved_Denials(t *testing.T) {
	store := newMemStore()
	eng := newTestEngine(store)
	ctx := context.Background()

	report := createReport(t, eng)
	_, err := eng.SetAmountApproved(ctx, report.ID, "finance-1", workflow.RoleFinanceReviewer, 10)
	assert.ErrorIs(t, err, workflow.ErrIllegalTransition)

	budget := createBudgetRequest(t, eng)
	_, err = eng.SetAmountApproved(ctx, budget.ID, "bureau-1", workflow.RoleBureauMember, 10)
	assert.ErrorIs(t, err, workflow.ErrWrongRole)
}

func TestDeleteDocument(t *testing.T) {
	store := newMemStore()
	eng := newTestEngine(store)
	ctx := context.Background()

	doc := createReport(t, eng)

	err := eng.DeleteDocument(ctx, doc.ID, "someone-else", workflow.RoleCommissionAdmin)
	assert.ErrorIs(t, err, workflow.ErrWrongRole)

	err = eng.DeleteDocument(ctx, doc.ID, "commission-1", workflow.RoleCommissionAdmin)
	require.NoError(t, err)

	_, err = eng.GetDocument(ctx, doc.ID)
	assert.ErrorIs(t, err, workflow.ErrNotFound)
}

func TestDeleteDocument_OnlyAtInitialStage(t *testing.T) {
	store := newMemStore()
	eng := newTestEngine(store)
	ctx := context.Background()

	doc := createReport(t, eng)
	_, err := eng.ApplyTransition(ctx, doc.ID, "commission-1", workflow.RoleCommissionAdmin,
		workflow.StageSubmittedToAdmin, "")
	require.NoError(t, err)

	err = eng.DeleteDocument(ctx, doc.ID, "commission-1", workflow.RoleCommissionAdmin)
	assert.ErrorIs(t, err, workflow.ErrIllegalTransition)
}

// Scenario: the inbox reflects committed transitions immediately.
func TestListPending_ReadAfterWrite(t *testing.T) {
	store := newMemStore()
	eng := newTestEngine(store)
	ctx := context.Background()

	first := createBudgetRequest(t, eng)
	second := createBudgetRequest(t, eng)

	pending, err := eng.ListPending(ctx, workflow.TypeBudgetRequest, workflow.StageSubmittedToFinance)
	require.NoError(t, err)
	assert.Len(t, pending, 2)

	_, err = eng.ApplyTransition(ctx, first.ID, "finance-1", workflow.RoleFinanceReviewer,
		workflow.StageReviewedByFinance, "")
	require.NoError(t, err)

	pending, err = eng.ListPending(ctx, workflow.TypeBudgetRequest, workflow.StageSubmittedToFinance)
	require.NoError(t, err)
	require.Len(t, pending, 1)
	assert.Equal(t, second.ID, pending[0].ID)
}

func TestListPending_Validation(t *testing.T) {
	eng := newTestEngine(newMemStore())
	ctx := context.Background()

	_, err := eng.ListPending(ctx, workflow.DocumentType("grant_application"), workflow.StageDraft)
	assert.ErrorIs(t, err, workflow.ErrUnknownDocumentType)

	_, err = eng.ListPending(ctx, workflow.TypeBudgetRequest, workflow.StageDraft)
	assert.ErrorIs(t, err, workflow.ErrIllegalTransition)
}

func TestGetHistory_MonotonicGrowth(t *testing.T) {
	store := newMemStore()
	eng := newTestEngine(store)
	ctx := context.Background()

	doc := createReport(t, eng)

	lens := []int{store.historyLen(doc.ID)}
	transitions := []struct {
		actor  string
		role   workflow.Role
		target workflow.Stage
		note   string
	}{
		{"commission-1", workflow.RoleCommissionAdmin, workflow.StageSubmittedToAdmin, ""},
		{"reviewer-1", workflow.RoleAdminReviewer, workflow.StageDraft, "fix the budget annex"},
		{"commission-1", workflow.RoleCommissionAdmin, workflow.StageSubmittedToAdmin, ""},
		{"reviewer-1", workflow.RoleAdminReviewer, workflow.StageValidatedByAdmin, ""},
	}
	for _, tr := range transitions {
		_, err := eng.ApplyTransition(ctx, doc.ID, tr.actor, tr.role, tr.target, tr.note)
		require.NoError(t, err)
		lens = append(lens, store.historyLen(doc.ID))
	}

	for i := 1; i < len(lens); i++ {
		assert.Equal(t, lens[i-1]+1, lens[i], "history must only grow")
	}

	history, err := eng.GetHistory(ctx, doc.ID)
	require.NoError(t, err)
	require.Len(t, history, 5)
	for i := 1; i < len(history); i++ {
		assert.False(t, history[i].Timestamp.Before(history[i-1].Timestamp),
			"timestamps must be non-decreasing")
		assert.Equal(t, history[i-1].ToStage, history[i].FromStage,
			"each record must chain from the previous one")
	}

	_, err = eng.GetHistory(ctx, "missing")
	assert.ErrorIs(t, err, workflow.ErrNotFound)
}
