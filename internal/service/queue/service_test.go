package queue

import (
	"context"
	"sort"
	"sync"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/smartqueue/smartqueue-api/internal/model"
	"github.com/smartqueue/smartqueue-api/internal/repository"
	apperrors "github.com/smartqueue/smartqueue-api/pkg/errors"
)

type fixedSettings struct {
	minutes int
}

func (f fixedSettings) ConsultationMinutes(ctx context.Context) (int, error) {
	return f.minutes, nil
}

// memRepo is an in-memory QueueRepository. Atomic serializes callers with
// a mutex the way the postgres advisory lock does.
type memRepo struct {
	mu       sync.Mutex
	patients map[uuid.UUID]*model.Patient
	entries  map[uuid.UUID]*model.QueueEntry
	events   []*model.OutboxEvent
}

func newMemRepo() *memRepo {
	return &memRepo{
		patients: make(map[uuid.UUID]*model.Patient),
		entries:  make(map[uuid.UUID]*model.QueueEntry),
	}
}

func (r *memRepo) Atomic(ctx context.Context, fn func(repository.QueueStore) error) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	return fn(r)
}

func (r *memRepo) InsertPatient(ctx context.Context, p *model.Patient) error {
	cp := *p
	r.patients[p.ID] = &cp
	return nil
}

func (r *memRepo) GetPatient(ctx context.Context, id uuid.UUID) (*model.Patient, error) {
	p, ok := r.patients[id]
	if !ok {
		return nil, apperrors.NotFound("patient", nil)
	}
	cp := *p
	return &cp, nil
}

func (r *memRepo) UpdatePatientStatus(ctx context.Context, id uuid.UUID, status model.PatientStatus) error {
	p, ok := r.patients[id]
	if !ok {
		return apperrors.NotFound("patient", nil)
	}
	p.Status = status
	return nil
}

func (r *memRepo) InsertEntry(ctx context.Context, e *model.QueueEntry) error {
	for _, existing := range r.entries {
		if existing.PatientID == e.PatientID {
			return apperrors.Conflict("patient already has an active queue entry", nil)
		}
	}
	cp := *e
	r.entries[e.ID] = &cp
	return nil
}

func (r *memRepo) GetEntry(ctx context.Context, id uuid.UUID) (*model.QueueEntry, error) {
	e, ok := r.entries[id]
	if !ok {
		return nil, apperrors.NotFound("queue entry", nil)
	}
	cp := *e
	return &cp, nil
}

func (r *memRepo) GetEntryByPatient(ctx context.Context, patientID uuid.UUID) (*model.QueueEntry, error) {
	for _, e := range r.entries {
		if e.PatientID == patientID {
			cp := *e
			return &cp, nil
		}
	}
	return nil, apperrors.NotFound("queue entry", nil)
}

func (r *memRepo) FirstEntry(ctx context.Context) (*model.QueueEntry, error) {
	var first *model.QueueEntry
	for _, e := range r.entries {
		if first == nil || e.Position < first.Position {
			first = e
		}
	}
	if first == nil {
		return nil, nil
	}
	cp := *first
	return &cp, nil
}

func (r *memRepo) ListEntries(ctx context.Context) ([]*model.QueueEntry, error) {
	entries := make([]*model.QueueEntry, 0, len(r.entries))
	for _, e := range r.entries {
		cp := *e
		entries = append(entries, &cp)
	}
	sort.Slice(entries, func(i, j int) bool { return entries[i].Position < entries[j].Position })
	return entries, nil
}

func (r *memRepo) UpdateEntry(ctx context.Context, e *model.QueueEntry) error {
	if _, ok := r.entries[e.ID]; !ok {
		return apperrors.NotFound("queue entry", nil)
	}
	cp := *e
	r.entries[e.ID] = &cp
	return nil
}

func (r *memRepo) DeleteEntry(ctx context.Context, id uuid.UUID) (bool, error) {
	if _, ok := r.entries[id]; !ok {
		return false, nil
	}
	delete(r.entries, id)
	return true, nil
}

func (r *memRepo) CountEntries(ctx context.Context) (int, error) {
	return len(r.entries), nil
}

func (r *memRepo) AppendEvent(ctx context.Context, event *model.OutboxEvent) error {
	r.events = append(r.events, event)
	return nil
}

func newTestService(avg int) (*Service, *memRepo) {
	repo := newMemRepo()
	return NewService(repo, fixedSettings{minutes: avg}), repo
}

// assertDensePositions checks active positions are exactly 1..N.
func assertDensePositions(t *testing.T, repo *memRepo) {
	t.Helper()
	entries, err := repo.ListEntries(context.Background())
	require.NoError(t, err)
	for i, e := range entries {
		assert.Equal(t, i+1, e.Position)
	}
}

func TestEnrollFirstPatient(t *testing.T) {
	svc, repo := newTestService(15)

	patient, entry, err := svc.Enroll(context.Background(), EnrollInput{
		Name:         "Amina Benali",
		Phone:        "06 12 34 56 78",
		RequirePhone: true,
	})
	require.NoError(t, err)

	assert.Equal(t, 1, entry.Position)
	assert.Equal(t, 0, entry.EstimatedWaitTime)
	assert.Equal(t, model.PatientStatusWaiting, patient.Status)
	require.NotNil(t, patient.Phone)
	assert.Equal(t, "0612345678", *patient.Phone)

	require.Len(t, repo.events, 1)
	assert.Equal(t, model.EventQueueCreate, repo.events[0].EventType)
}

func TestEnrollAssignsSequentialPositions(t *testing.T) {
	svc, repo := newTestService(15)

	names := []string{"A", "B", "C"}
	for i, name := range names {
		_, entry, err := svc.Enroll(context.Background(), EnrollInput{Name: name})
		require.NoError(t, err)
		assert.Equal(t, i+1, entry.Position)
		assert.Equal(t, i*15, entry.EstimatedWaitTime)
	}

	assertDensePositions(t, repo)
}

func TestEnrollValidation(t *testing.T) {
	svc, _ := newTestService(15)
	ctx := context.Background()

	_, _, err := svc.Enroll(ctx, EnrollInput{Name: "  "})
	assert.True(t, apperrors.IsValidation(err))

	_, _, err = svc.Enroll(ctx, EnrollInput{Name: "No Phone", RequirePhone: true})
	assert.True(t, apperrors.IsValidation(err))

	_, _, err = svc.Enroll(ctx, EnrollInput{Name: "Bad Phone", Phone: "123456"})
	assert.True(t, apperrors.IsValidation(err))

	// Front-desk walk-ins may omit the phone.
	_, _, err = svc.Enroll(ctx, EnrollInput{Name: "Walk In"})
	assert.NoError(t, err)
}

func TestCurrentPosition(t *testing.T) {
	svc, _ := newTestService(15)
	ctx := context.Background()

	a, _, err := svc.Enroll(ctx, EnrollInput{Name: "A"})
	require.NoError(t, err)
	b, _, err := svc.Enroll(ctx, EnrollInput{Name: "B"})
	require.NoError(t, err)

	pos, err := svc.CurrentPosition(ctx, b.ID)
	require.NoError(t, err)
	assert.Equal(t, 2, pos)

	pos, err = svc.CurrentPosition(ctx, a.ID)
	require.NoError(t, err)
	assert.Equal(t, 1, pos)
}

func TestCurrentPositionWithoutEntry(t *testing.T) {
	svc, _ := newTestService(15)

	pos, err := svc.CurrentPosition(context.Background(), uuid.New())
	assert.True(t, apperrors.IsNotFound(err))
	assert.Zero(t, pos)
}

func TestCallNextEmptyQueue(t *testing.T) {
	svc, repo := newTestService(15)

	entry, ok, err := svc.CallNext(context.Background())
	require.NoError(t, err)
	assert.False(t, ok)
	assert.Nil(t, entry)
	assert.Empty(t, repo.events)
}

func TestCallNextMarksFirstPatient(t *testing.T) {
	svc, repo := newTestService(15)
	ctx := context.Background()

	first, _, err := svc.Enroll(ctx, EnrollInput{Name: "First"})
	require.NoError(t, err)
	_, _, err = svc.Enroll(ctx, EnrollInput{Name: "Second"})
	require.NoError(t, err)

	entry, ok, err := svc.CallNext(ctx)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, first.ID, entry.PatientID)
	assert.Equal(t, 1, entry.Position)
	assert.Equal(t, 0, entry.EstimatedWaitTime)

	patient, err := repo.GetPatient(ctx, first.ID)
	require.NoError(t, err)
	assert.Equal(t, model.PatientStatusCalled, patient.Status)

	// The called entry stays on the board until completed.
	count, _ := repo.CountEntries(ctx)
	assert.Equal(t, 2, count)

	// Re-calling is a no-op on the same entry.
	again, ok, err := svc.CallNext(ctx)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, entry.ID, again.ID)
}

func TestCompleteShiftsPositions(t *testing.T) {
	svc, repo := newTestService(15)
	ctx := context.Background()

	a, aEntry, err := svc.Enroll(ctx, EnrollInput{Name: "A"})
	require.NoError(t, err)
	b, _, err := svc.Enroll(ctx, EnrollInput{Name: "B"})
	require.NoError(t, err)
	c, _, err := svc.Enroll(ctx, EnrollInput{Name: "C"})
	require.NoError(t, err)

	_, ok, err := svc.CallNext(ctx)
	require.NoError(t, err)
	require.True(t, ok)

	require.NoError(t, svc.Complete(ctx, aEntry.ID, a.ID))

	bEntry, err := repo.GetEntryByPatient(ctx, b.ID)
	require.NoError(t, err)
	assert.Equal(t, 1, bEntry.Position)
	assert.Equal(t, 0, bEntry.EstimatedWaitTime)

	// B is next up but has not been called in.
	bPatient, err := repo.GetPatient(ctx, b.ID)
	require.NoError(t, err)
	assert.Equal(t, model.PatientStatusWaiting, bPatient.Status)

	cEntry, err := repo.GetEntryByPatient(ctx, c.ID)
	require.NoError(t, err)
	assert.Equal(t, 2, cEntry.Position)
	assert.Equal(t, 15, cEntry.EstimatedWaitTime)

	aPatient, err := repo.GetPatient(ctx, a.ID)
	require.NoError(t, err)
	assert.Equal(t, model.PatientStatusCompleted, aPatient.Status)

	assertDensePositions(t, repo)
}

func TestDoubleCompleteReturnsNotFound(t *testing.T) {
	svc, repo := newTestService(15)
	ctx := context.Background()

	a, aEntry, err := svc.Enroll(ctx, EnrollInput{Name: "A"})
	require.NoError(t, err)
	_, _, err = svc.Enroll(ctx, EnrollInput{Name: "B"})
	require.NoError(t, err)

	_, _, err = svc.CallNext(ctx)
	require.NoError(t, err)
	require.NoError(t, svc.Complete(ctx, aEntry.ID, a.ID))

	err = svc.Complete(ctx, aEntry.ID, a.ID)
	assert.True(t, apperrors.IsNotFound(err))

	// The duplicate must not disturb remaining positions.
	assertDensePositions(t, repo)
	count, _ := repo.CountEntries(ctx)
	assert.Equal(t, 1, count)
}

func TestCancelMiddleEntry(t *testing.T) {
	svc, repo := newTestService(10)
	ctx := context.Background()

	a, _, err := svc.Enroll(ctx, EnrollInput{Name: "A"})
	require.NoError(t, err)
	b, bEntry, err := svc.Enroll(ctx, EnrollInput{Name: "B"})
	require.NoError(t, err)
	c, _, err := svc.Enroll(ctx, EnrollInput{Name: "C"})
	require.NoError(t, err)

	require.NoError(t, svc.Cancel(ctx, bEntry.ID, b.ID))

	aEntry, err := repo.GetEntryByPatient(ctx, a.ID)
	require.NoError(t, err)
	assert.Equal(t, 1, aEntry.Position)
	assert.Equal(t, 0, aEntry.EstimatedWaitTime)

	cEntry, err := repo.GetEntryByPatient(ctx, c.ID)
	require.NoError(t, err)
	assert.Equal(t, 2, cEntry.Position)
	assert.Equal(t, 10, cEntry.EstimatedWaitTime)

	bPatient, err := repo.GetPatient(ctx, b.ID)
	require.NoError(t, err)
	assert.Equal(t, model.PatientStatusCancelled, bPatient.Status)

	assertDensePositions(t, repo)
}

func TestEntryPatientMismatch(t *testing.T) {
	svc, _ := newTestService(15)
	ctx := context.Background()

	_, aEntry, err := svc.Enroll(ctx, EnrollInput{Name: "A"})
	require.NoError(t, err)

	err = svc.Complete(ctx, aEntry.ID, uuid.New())
	assert.True(t, apperrors.IsNotFound(err))
}

func TestViewerStateTransitions(t *testing.T) {
	svc, _ := newTestService(15)
	ctx := context.Background()

	a, aEntry, err := svc.Enroll(ctx, EnrollInput{Name: "A"})
	require.NoError(t, err)
	b, _, err := svc.Enroll(ctx, EnrollInput{Name: "B"})
	require.NoError(t, err)

	state, err := svc.ViewerState(ctx, b.ID)
	require.NoError(t, err)
	assert.Equal(t, model.ViewWaiting, state.View)
	require.NotNil(t, state.Position)
	assert.Equal(t, 2, *state.Position)
	require.NotNil(t, state.EstimatedWaitMinutes)
	assert.Equal(t, 15, *state.EstimatedWaitMinutes)

	_, _, err = svc.CallNext(ctx)
	require.NoError(t, err)

	state, err = svc.ViewerState(ctx, a.ID)
	require.NoError(t, err)
	assert.Equal(t, model.ViewYourTurn, state.View)
	assert.Equal(t, model.PatientStatusCalled, state.Status)

	require.NoError(t, svc.Complete(ctx, aEntry.ID, a.ID))

	state, err = svc.ViewerState(ctx, a.ID)
	require.NoError(t, err)
	assert.Equal(t, model.ViewThankYou, state.View)
	assert.Nil(t, state.Position)
}

func TestSnapshotOrdersByPosition(t *testing.T) {
	svc, _ := newTestService(15)
	ctx := context.Background()

	for _, name := range []string{"A", "B", "C"} {
		_, _, err := svc.Enroll(ctx, EnrollInput{Name: name})
		require.NoError(t, err)
	}

	board, err := svc.Snapshot(ctx)
	require.NoError(t, err)
	require.Len(t, board, 3)
	for i, be := range board {
		assert.Equal(t, i+1, be.Entry.Position)
	}
	assert.Equal(t, "A", board[0].Patient.Name)
	assert.Equal(t, "C", board[2].Patient.Name)
}
