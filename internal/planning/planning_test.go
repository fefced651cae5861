package planning

import (
	"context"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/joescharf/board/internal/models"
	"github.com/joescharf/board/internal/patch"
	"github.com/joescharf/board/internal/realtime"
	"github.com/joescharf/board/internal/store"
)

type recorder struct {
	mu     sync.Mutex
	events []realtime.Event
}

func (r *recorder) Publish(_ context.Context, boardID string, ev realtime.Event) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	ev.BoardID = boardID
	r.events = append(r.events, ev)
	return 1
}

func (r *recorder) last() realtime.Event {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.events[len(r.events)-1]
}

type fixture struct {
	store *store.SQLiteStore
	svc   *Service
	pub   *recorder
	board *models.Board
	ctx   context.Context
}

func setup(t *testing.T) *fixture {
	t.Helper()
	s, err := store.NewSQLiteStore(filepath.Join(t.TempDir(), "test.db"))
	require.NoError(t, err)
	require.NoError(t, s.Migrate(context.Background()))
	t.Cleanup(func() { s.Close() })

	f := &fixture{store: s, pub: &recorder{}, ctx: context.Background()}
	clock := time.Date(2024, 1, 1, 9, 0, 0, 0, time.UTC)
	f.svc = NewService(s, f.pub, WithClock(func() time.Time { return clock }))
	f.board = &models.Board{Name: "Board", Key: "BRD"}
	require.NoError(t, s.CreateBoard(f.ctx, f.board))
	return f
}

func (f *fixture) epic(t *testing.T, title string) *models.Epic {
	t.Helper()
	e, err := f.svc.CreateEpic(f.ctx, &models.EpicInput{BoardID: f.board.ID, Title: title})
	require.NoError(t, err)
	return e
}

func (f *fixture) sprint(t *testing.T, name string) *models.Sprint {
	t.Helper()
	sp, err := f.svc.CreateSprint(f.ctx, &models.SprintInput{
		BoardID: f.board.ID, Name: name, StartDate: "2024-01-01", EndDate: "2024-01-07",
	})
	require.NoError(t, err)
	return sp
}

func (f *fixture) item(t *testing.T, epicID, sprintID *string) *models.WorkItem {
	t.Helper()
	now := time.Date(2024, 1, 1, 9, 0, 0, 0, time.UTC)
	w := &models.WorkItem{
		BoardID: f.board.ID, EpicID: epicID, SprintID: sprintID,
		Title: "X", Type: "story", Status: models.StatusOpen, CreatedAt: now, UpdatedAt: now,
	}
	require.NoError(t, f.store.InTx(f.ctx, func(tx store.Tx) error { return tx.InsertWorkItem(f.ctx, w) }))
	return w
}

func (f *fixture) sprintOf(t *testing.T, id string) *string {
	t.Helper()
	w, err := f.store.GetWorkItem(f.ctx, id)
	require.NoError(t, err)
	return w.SprintID
}

func TestCreateEpic_Defaults(t *testing.T) {
	f := setup(t)
	e := f.epic(t, "Checkout")

	assert.NotEmpty(t, e.ID)
	assert.Equal(t, models.EpicStatusActive, e.Status)
	assert.Equal(t, models.DefaultEpicScore, e.Impact)
	assert.Equal(t, 125, e.ICEScore())

	ev := f.pub.last()
	assert.Equal(t, realtime.EpicCreated, ev.Type)
	assert.Equal(t, e.ID, ev.EpicID)
	assert.Equal(t, f.board.ID, ev.BoardID)
}

func TestCreateEpic_Validation(t *testing.T) {
	f := setup(t)

	_, err := f.svc.CreateEpic(f.ctx, &models.EpicInput{BoardID: f.board.ID})
	assert.ErrorIs(t, err, models.ErrValidation)

	_, err = f.svc.CreateEpic(f.ctx, &models.EpicInput{BoardID: f.board.ID, Title: "X", Impact: 11})
	assert.ErrorIs(t, err, models.ErrValidation)

	_, err = f.svc.CreateEpic(f.ctx, &models.EpicInput{BoardID: f.board.ID, Title: "X", Status: "OPEN"})
	assert.ErrorIs(t, err, models.ErrValidation)

	_, err = f.svc.CreateEpic(f.ctx, &models.EpicInput{BoardID: "nope", Title: "X"})
	assert.ErrorIs(t, err, models.ErrNotFound)

	assert.Empty(t, f.pub.events)
}

func TestUpdateEpic(t *testing.T) {
	f := setup(t)
	e := f.epic(t, "Checkout")

	got, err := f.svc.UpdateEpic(f.ctx, e.ID, &models.EpicPatch{Status: patch.Of(models.EpicStatusDone), Ease: patch.Of(9)})
	require.NoError(t, err)
	assert.Equal(t, models.EpicStatusDone, got.Status)
	assert.Equal(t, 9, got.Ease)
	assert.Equal(t, "Checkout", got.Title)
	assert.Equal(t, realtime.EpicUpdated, f.pub.last().Type)

	_, err = f.svc.UpdateEpic(f.ctx, e.ID, &models.EpicPatch{Impact: patch.Of(0)})
	assert.ErrorIs(t, err, models.ErrValidation)

	_, err = f.svc.UpdateEpic(f.ctx, "missing", &models.EpicPatch{})
	assert.ErrorIs(t, err, models.ErrNotFound)
}

func TestDeleteEpic(t *testing.T) {
	f := setup(t)
	e := f.epic(t, "Checkout")

	require.NoError(t, f.svc.DeleteEpic(f.ctx, e.ID))
	assert.Equal(t, realtime.EpicDeleted, f.pub.last().Type)

	_, err := f.svc.GetEpic(f.ctx, e.ID)
	assert.ErrorIs(t, err, models.ErrNotFound)
	assert.ErrorIs(t, f.svc.DeleteEpic(f.ctx, e.ID), models.ErrNotFound)
}

func TestCreateSprint(t *testing.T) {
	f := setup(t)
	sp := f.sprint(t, "S1")

	assert.Equal(t, models.SprintStatePlanned, sp.State)
	assert.Equal(t, "2024-01-01", sp.StartDate.Format(models.DateLayout))
	assert.Equal(t, realtime.SprintCreated, f.pub.last().Type)
	assert.Equal(t, sp.ID, f.pub.last().SprintID)

	_, err := f.svc.CreateSprint(f.ctx, &models.SprintInput{BoardID: f.board.ID, Name: "S", StartDate: "01/01/2024", EndDate: "2024-01-07"})
	assert.ErrorIs(t, err, models.ErrValidation)

	_, err = f.svc.CreateSprint(f.ctx, &models.SprintInput{BoardID: f.board.ID, Name: "S", StartDate: "2024-01-01"})
	assert.ErrorIs(t, err, models.ErrValidation)

	_, err = f.svc.CreateSprint(f.ctx, &models.SprintInput{BoardID: f.board.ID, Name: "S", State: "DONE", StartDate: "2024-01-01", EndDate: "2024-01-02"})
	assert.ErrorIs(t, err, models.ErrValidation)
}

func TestUpdateAndDeleteSprint(t *testing.T) {
	f := setup(t)
	sp := f.sprint(t, "S1")

	got, err := f.svc.UpdateSprint(f.ctx, sp.ID, &models.SprintPatch{
		State:   patch.Of(models.SprintStateClosed),
		EndDate: patch.Of("2024-01-14"),
	})
	require.NoError(t, err)
	assert.Equal(t, models.SprintStateClosed, got.State)
	assert.Equal(t, "2024-01-14", got.EndDate.Format(models.DateLayout))
	assert.Equal(t, "S1", got.Name)
	assert.Equal(t, realtime.SprintUpdated, f.pub.last().Type)

	_, err = f.svc.UpdateSprint(f.ctx, sp.ID, &models.SprintPatch{StartDate: patch.Of("bad")})
	assert.ErrorIs(t, err, models.ErrValidation)

	require.NoError(t, f.svc.DeleteSprint(f.ctx, sp.ID))
	assert.Equal(t, realtime.SprintDeleted, f.pub.last().Type)
	_, err = f.svc.UpdateSprint(f.ctx, sp.ID, &models.SprintPatch{})
	assert.ErrorIs(t, err, models.ErrNotFound)
}

func TestSetEpicsForSprint_CascadesOntoItems(t *testing.T) {
	f := setup(t)
	e1 := f.epic(t, "E1")
	e2 := f.epic(t, "E2")
	s1 := f.sprint(t, "S1")
	s0 := f.sprint(t, "S0")

	w1 := f.item(t, &e1.ID, nil)
	w2 := f.item(t, &e1.ID, &s0.ID)
	w3 := f.item(t, &e2.ID, nil)
	w4 := f.item(t, nil, nil)

	res, err := f.svc.SetEpicsForSprint(f.ctx, s1.ID, []string{e1.ID})
	require.NoError(t, err)
	assert.Equal(t, &SprintEpics{SprintID: s1.ID, EpicIDs: []string{e1.ID}}, res)

	assert.Equal(t, s1.ID, *f.sprintOf(t, w1.ID))
	assert.Equal(t, s1.ID, *f.sprintOf(t, w2.ID))
	assert.Nil(t, f.sprintOf(t, w3.ID))
	assert.Nil(t, f.sprintOf(t, w4.ID))

	ev := f.pub.last()
	assert.Equal(t, realtime.SprintEpicsUpdated, ev.Type)
	assert.Equal(t, s1.ID, ev.SprintID)
	assert.Equal(t, []string{e1.ID}, ev.EpicIDs)
	assert.Equal(t, f.board.ID, ev.BoardID)
}

func TestSetEpicsForSprint_NeverUnassigns(t *testing.T) {
	f := setup(t)
	e1 := f.epic(t, "E1")
	e2 := f.epic(t, "E2")
	s1 := f.sprint(t, "S1")
	w := f.item(t, &e1.ID, nil)

	_, err := f.svc.SetEpicsForSprint(f.ctx, s1.ID, []string{e1.ID})
	require.NoError(t, err)

	res, err := f.svc.SetEpicsForSprint(f.ctx, s1.ID, []string{e2.ID})
	require.NoError(t, err)
	assert.Equal(t, []string{e2.ID}, res.EpicIDs)
	assert.Equal(t, s1.ID, *f.sprintOf(t, w.ID), "removing the link must not unassign items")

	got, err := f.svc.GetSprintEpics(f.ctx, s1.ID)
	require.NoError(t, err)
	assert.Equal(t, []string{e2.ID}, got.EpicIDs)

	res, err = f.svc.SetEpicsForSprint(f.ctx, s1.ID, nil)
	require.NoError(t, err)
	assert.Empty(t, res.EpicIDs)
	got, err = f.svc.GetSprintEpics(f.ctx, s1.ID)
	require.NoError(t, err)
	assert.Empty(t, got.EpicIDs)
}

func TestSetEpicsForSprint_Idempotent(t *testing.T) {
	f := setup(t)
	e1 := f.epic(t, "E1")
	e2 := f.epic(t, "E2")
	s1 := f.sprint(t, "S1")
	w1 := f.item(t, &e1.ID, nil)
	w2 := f.item(t, &e2.ID, nil)

	first, err := f.svc.SetEpicsForSprint(f.ctx, s1.ID, []string{e1.ID, e2.ID, e1.ID})
	require.NoError(t, err)
	before1, err := f.store.GetWorkItem(f.ctx, w1.ID)
	require.NoError(t, err)

	second, err := f.svc.SetEpicsForSprint(f.ctx, s1.ID, []string{e1.ID, e2.ID})
	require.NoError(t, err)
	after1, err := f.store.GetWorkItem(f.ctx, w1.ID)
	require.NoError(t, err)

	assert.Equal(t, first, second)
	assert.Equal(t, []string{e1.ID, e2.ID}, second.EpicIDs)
	assert.Equal(t, before1, after1)
	assert.Equal(t, s1.ID, *f.sprintOf(t, w2.ID))

	links, err := f.svc.GetSprintEpics(f.ctx, s1.ID)
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{e1.ID, e2.ID}, links.EpicIDs)
}

func TestSetEpicsForSprint_SkipsDeletedItems(t *testing.T) {
	f := setup(t)
	e1 := f.epic(t, "E1")
	s1 := f.sprint(t, "S1")
	w := f.item(t, &e1.ID, nil)
	require.NoError(t, f.store.InTx(f.ctx, func(tx store.Tx) error {
		return tx.SoftDeleteWorkItem(f.ctx, w.ID, time.Now().UTC())
	}))

	_, err := f.svc.SetEpicsForSprint(f.ctx, s1.ID, []string{e1.ID})
	require.NoError(t, err)

	items, err := f.store.ListWorkItems(f.ctx, store.WorkItemFilter{BoardID: f.board.ID, SprintID: s1.ID})
	require.NoError(t, err)
	assert.Empty(t, items)
}

func TestSetEpicsForSprint_Failures(t *testing.T) {
	f := setup(t)
	e1 := f.epic(t, "E1")
	s1 := f.sprint(t, "S1")
	w := f.item(t, &e1.ID, nil)
	published := len(f.pub.events)

	_, err := f.svc.SetEpicsForSprint(f.ctx, "missing", []string{e1.ID})
	assert.ErrorIs(t, err, models.ErrNotFound)

	require.NoError(t, f.svc.DeleteSprint(f.ctx, s1.ID))
	published++
	_, err = f.svc.SetEpicsForSprint(f.ctx, s1.ID, []string{e1.ID})
	assert.ErrorIs(t, err, models.ErrNotFound)

	s2 := f.sprint(t, "S2")
	published++
	_, err = f.svc.SetEpicsForSprint(f.ctx, s2.ID, []string{e1.ID, "ghost"})
	assert.ErrorIs(t, err, models.ErrNotFound)
	assert.Nil(t, f.sprintOf(t, w.ID), "failed call must not cascade")

	other := &models.Board{Name: "Other", Key: "OTH"}
	require.NoError(t, f.store.CreateBoard(f.ctx, other))
	foreign, err := f.svc.CreateEpic(f.ctx, &models.EpicInput{BoardID: other.ID, Title: "F"})
	require.NoError(t, err)
	published++
	_, err = f.svc.SetEpicsForSprint(f.ctx, s2.ID, []string{foreign.ID})
	assert.ErrorIs(t, err, models.ErrValidation)

	assert.Len(t, f.pub.events, published)
}
