package workflow

import (
	"context"
	"database/sql"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/erazemk/lostfound/internal/db"
	"github.com/erazemk/lostfound/internal/model"
	"github.com/erazemk/lostfound/internal/notify"
	"github.com/erazemk/lostfound/internal/store"
)

var testNow = time.Date(2026, 3, 2, 9, 0, 0, 0, time.UTC)

type recorder struct {
	mu     sync.Mutex
	events []notify.Event
}

func (r *recorder) Publish(e notify.Event) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, e)
}

func (r *recorder) kinds() []notify.Kind {
	r.mu.Lock()
	defer r.mu.Unlock()
	kinds := make([]notify.Kind, 0, len(r.events))
	for _, e := range r.events {
		kinds = append(kinds, e.Kind)
	}
	return kinds
}

func (r *recorder) last() notify.Event {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.events[len(r.events)-1]
}

func (r *recorder) reset() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = nil
}

type fakeImages struct {
	deleted []string
}

func (f *fakeImages) Delete(_ context.Context, key string) error {
	f.deleted = append(f.deleted, key)
	return nil
}

type clock struct {
	now time.Time
}

func (c *clock) Now() time.Time { return c.now }

type harness struct {
	m      *Machine
	db     *sql.DB
	events *recorder
	images *fakeImages
	clock  *clock
}

func newHarness(t *testing.T) *harness {
	t.Helper()

	h := &harness{
		db:     db.NewTestDB(t),
		events: &recorder{},
		images: &fakeImages{},
		clock:  &clock{now: testNow},
	}
	h.m = New(h.db, Options{Publisher: h.events, Images: h.images, Now: h.clock.Now})

	for _, u := range []model.User{
		{ID: "u1", Email: "mreyes.a11111111@umak.edu.ph", DisplayName: "Maria Reyes"},
		{ID: "u2", Email: "jdelacruz.k11223344@umak.edu.ph", DisplayName: "Juan Dela Cruz"},
		{ID: "admin", Email: "office@umak.edu.ph", DisplayName: "Ana Santos", IsAdmin: true},
	} {
		u.StudentID = model.DeriveStudentID(u.Email, u.DisplayName, u.IsAdmin)
		u.CreatedAt, u.UpdatedAt = testNow, testNow
		require.NoError(t, store.UpsertUser(context.Background(), h.db, &u))
	}
	return h
}

func (h *harness) report(t *testing.T, name, status, reporter string) (*model.Item, *model.Process) {
	t.Helper()
	item, p, err := h.m.ReportItem(context.Background(), ReportInput{
		Name:       name,
		Status:     status,
		ReporterID: reporter,
	})
	require.NoError(t, err)
	return item, p
}

func (h *harness) process(t *testing.T, id string) *model.Process {
	t.Helper()
	p, err := store.GetProcess(context.Background(), h.db, id)
	require.NoError(t, err)
	return p
}

func (h *harness) item(t *testing.T, id string) *model.Item {
	t.Helper()
	item, err := store.GetItem(context.Background(), h.db, id)
	require.NoError(t, err)
	return item
}

func (h *harness) questions(t *testing.T, processID string) []model.VerificationQuestion {
	t.Helper()
	qs, err := store.ListQuestions(context.Background(), h.db, processID)
	require.NoError(t, err)
	return qs
}

func twoAnswers() []ClaimAnswer {
	return []ClaimAnswer{
		{Question: "What colour is the zipper?", Answer: "Yellow"},
		{Question: "What is inside the front pocket?", Answer: "A calculator"},
	}
}

func TestReportItemInitialState(t *testing.T) {
	h := newHarness(t)

	for _, tt := range []struct {
		status   string
		expected string
	}{
		{model.ItemStatusLost, model.StatusPendingApproval},
		{model.ItemStatusFound, model.StatusAwaitingSurrender},
	} {
		item, p := h.report(t, "Umbrella", tt.status, "u1")

		got := h.process(t, p.ID)
		require.NotNil(t, got)
		assert.Equal(t, item.ID, got.ItemID)
		assert.Equal(t, tt.expected, got.Status)
		assert.NotEmpty(t, got.Message)

		stored := h.item(t, item.ID)
		require.NotNil(t, stored)
		assert.False(t, stored.Approved)
		assert.Equal(t, "A11111111", stored.StudentID)

		e := h.events.last()
		assert.Equal(t, notify.KindItemReported, e.Kind)
		assert.Equal(t, tt.status, e.ItemStatus)
		assert.Equal(t, "mreyes.a11111111@umak.edu.ph", e.To)
	}
}

func TestReportItemValidation(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	inputs := []ReportInput{
		{Name: "  ", Status: model.ItemStatusLost, ReporterID: "u1"},
		{Name: "Wallet", Status: "stolen", ReporterID: "u1"},
		{Name: "Wallet", Status: model.ItemStatusLost},
		{Name: "Wallet", Status: model.ItemStatusLost, ReporterID: "u1",
			AdditionalDescriptions: []model.AdditionalDescription{{Title: "", Text: "x"}}},
	}
	for _, in := range inputs {
		_, _, err := h.m.ReportItem(ctx, in)
		var verr *ValidationError
		assert.ErrorAs(t, err, &verr, "input %+v", in)
	}

	items, err := store.ListItems(ctx, h.db, store.ItemFilter{})
	require.NoError(t, err)
	assert.Empty(t, items)
	assert.Empty(t, h.events.kinds())
}

func TestBlueBackpackScenario(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	item, p := h.report(t, "Blue Backpack", model.ItemStatusLost, "u1")
	assert.Equal(t, model.StatusPendingApproval, h.process(t, p.ID).Status)

	_, err := h.m.ApproveItem(ctx, item.ID, true)
	require.NoError(t, err)
	assert.True(t, h.item(t, item.ID).Approved)
	assert.Equal(t, notify.KindItemApproved, h.events.last().Kind)

	_, err = h.m.SubmitClaim(ctx, ClaimInput{ItemID: item.ID, RequestorID: "u2", Answers: twoAnswers()})
	require.NoError(t, err)
	claimed := h.process(t, p.ID)
	assert.Equal(t, model.StatusClaimRequest, claimed.Status)
	require.NotNil(t, claimed.RequestorUserID)
	assert.Equal(t, "u2", *claimed.RequestorUserID)
	assert.Len(t, h.questions(t, p.ID), 2)

	_, err = h.m.ApproveClaim(ctx, p.ID)
	require.NoError(t, err)

	final := h.process(t, p.ID)
	assert.Equal(t, model.StatusPendingRetrieval, final.Status)
	assert.Equal(t, "u2", final.UserID)
	assert.Nil(t, final.RequestorUserID)
	assert.Empty(t, h.questions(t, p.ID))

	transferred := h.item(t, item.ID)
	assert.Equal(t, "u2", transferred.ReporterID)
	assert.Equal(t, "K11223344", transferred.StudentID)
	assert.False(t, transferred.Approved)

	e := h.events.last()
	assert.Equal(t, notify.KindClaimApproved, e.Kind)
	assert.Equal(t, "jdelacruz.k11223344@umak.edu.ph", e.To)
	require.Len(t, e.Transcript, 2)
	assert.Equal(t, "Yellow", e.Transcript[0].Answer)

	assert.Equal(t, []notify.Kind{
		notify.KindItemReported,
		notify.KindItemApproved,
		notify.KindClaimSubmitted,
		notify.KindClaimApproved,
	}, h.events.kinds())
}

func TestApproveClaimUnresolvableRequestor(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	item, p := h.report(t, "Calculator", model.ItemStatusLost, "u1")
	_, err := h.m.SubmitClaim(ctx, ClaimInput{ItemID: item.ID, RequestorID: "ghost", Answers: twoAnswers()})
	require.NoError(t, err)
	before := h.process(t, p.ID)
	h.events.reset()

	_, err = h.m.ApproveClaim(ctx, p.ID)
	var nf *NotFoundError
	require.ErrorAs(t, err, &nf)

	after := h.process(t, p.ID)
	assert.Equal(t, before, after)
	assert.Len(t, h.questions(t, p.ID), 2)
	assert.Equal(t, "u1", h.item(t, item.ID).ReporterID)
	assert.Empty(t, h.events.kinds())
}

func TestApproveClaimUnknownProcess(t *testing.T) {
	h := newHarness(t)

	_, err := h.m.ApproveClaim(context.Background(), "missing")
	var nf *NotFoundError
	assert.ErrorAs(t, err, &nf)
}

func TestHandleWrongAnswer(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	_, p := h.report(t, "Watch", model.ItemStatusLost, "u1")
	_, err := h.m.StartVerification(ctx, p.ID, []string{"Brand?", "Strap colour?"})
	require.NoError(t, err)

	for attempt := 1; attempt <= 2; attempt++ {
		got, err := h.m.HandleWrongAnswer(ctx, p.ID)
		require.NoError(t, err)
		assert.Equal(t, model.StatusInVerification, got.Status)
		assert.Equal(t, attempt, got.VerificationAttempts)
		assert.Contains(t, got.Message, attemptsRemainingMessage(3-attempt))
		assert.Equal(t, notify.KindAttemptFailed, h.events.last().Kind)
		assert.Equal(t, 3-attempt, h.events.last().RemainingAttempts)
	}

	got, err := h.m.HandleWrongAnswer(ctx, p.ID)
	require.NoError(t, err)
	assert.Equal(t, model.StatusVerificationFailed, got.Status)
	assert.Equal(t, 3, got.VerificationAttempts)
	assert.Equal(t, notify.KindMaxAttempts, h.events.last().Kind)

	_, err = h.m.HandleWrongAnswer(ctx, p.ID)
	var conflict *ConflictError
	assert.ErrorAs(t, err, &conflict)
}

func TestVerificationRound(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	_, p := h.report(t, "Phone", model.ItemStatusLost, "u1")
	_, err := h.m.StartVerification(ctx, p.ID, []string{"Lock screen picture?", "Case colour?"})
	require.NoError(t, err)

	qs := h.questions(t, p.ID)
	require.Len(t, qs, 2)

	_, err = h.m.SubmitAnswers(ctx, p.ID, []Answer{{QuestionID: qs[0].ID, Answer: "A cat"}})
	var verr *ValidationError
	require.ErrorAs(t, err, &verr)

	got, err := h.m.SubmitAnswers(ctx, p.ID, []Answer{
		{QuestionID: qs[0].ID, Answer: "A cat"},
		{QuestionID: qs[1].ID, Answer: "Green"},
	})
	require.NoError(t, err)
	assert.Equal(t, model.StatusAwaitingReview, got.Status)
	assert.Equal(t, "Green", h.questions(t, p.ID)[1].Answer)
	assert.Equal(t, notify.KindAnswersSubmitted, h.events.last().Kind)

	got, err = h.m.ReviewAnswers(ctx, p.ID, true)
	require.NoError(t, err)
	assert.Equal(t, model.StatusPendingRetrieval, got.Status)
	assert.Empty(t, h.questions(t, p.ID))
	assert.Equal(t, notify.KindReadyForPickup, h.events.last().Kind)
}

func TestSubmitAnswersWithoutQuestions(t *testing.T) {
	h := newHarness(t)

	_, p := h.report(t, "Phone", model.ItemStatusLost, "u1")
	_, err := h.m.SubmitAnswers(context.Background(), p.ID, nil)
	var nf *NotFoundError
	assert.ErrorAs(t, err, &nf)
}

func TestStartVerificationValidation(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	_, p := h.report(t, "Phone", model.ItemStatusLost, "u1")

	var verr *ValidationError
	_, err := h.m.StartVerification(ctx, p.ID, nil)
	assert.ErrorAs(t, err, &verr)
	_, err = h.m.StartVerification(ctx, p.ID, []string{"ok", " "})
	assert.ErrorAs(t, err, &verr)

	var nf *NotFoundError
	_, err = h.m.StartVerification(ctx, "missing", []string{"ok"})
	assert.ErrorAs(t, err, &nf)
}

func TestCancelVerification(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	_, p := h.report(t, "Keys", model.ItemStatusLost, "u1")

	// Nothing to remove yet.
	got, err := h.m.CancelVerification(ctx, p.ID)
	require.NoError(t, err)
	assert.Equal(t, model.StatusPendingApproval, got.Status)
	assert.Zero(t, got.VerificationAttempts)

	_, err = h.m.StartVerification(ctx, p.ID, []string{"How many keys?"})
	require.NoError(t, err)
	_, err = h.m.HandleWrongAnswer(ctx, p.ID)
	require.NoError(t, err)
	_, err = h.m.HandleWrongAnswer(ctx, p.ID)
	require.NoError(t, err)

	got, err = h.m.CancelVerification(ctx, p.ID)
	require.NoError(t, err)
	assert.Equal(t, model.StatusPendingApproval, got.Status)
	assert.Zero(t, h.process(t, p.ID).VerificationAttempts)
	assert.Empty(t, h.questions(t, p.ID))
}

func TestScanSurrenderQRCodeIdempotent(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	item, p := h.report(t, "Tumbler", model.ItemStatusFound, "u1")
	in := ScanInput{ProcessID: p.ID, ItemID: item.ID, Type: ScanTypeSurrender, Timestamp: testNow}

	h.clock.now = testNow.Add(time.Hour)
	first, err := h.m.ScanSurrenderQRCode(ctx, in)
	require.NoError(t, err)
	assert.False(t, first.AlreadyPendingRetrieval)
	assert.Equal(t, model.StatusPendingRetrieval, first.Process.Status)
	afterFirst := h.process(t, p.ID)

	h.clock.now = testNow.Add(2 * time.Hour)
	second, err := h.m.ScanSurrenderQRCode(ctx, in)
	require.NoError(t, err)
	assert.True(t, second.AlreadyPendingRetrieval)
	assert.Equal(t, model.StatusPendingRetrieval, second.Process.Status)

	afterSecond := h.process(t, p.ID)
	assert.True(t, afterFirst.UpdatedAt.Equal(afterSecond.UpdatedAt))
	assert.Equal(t, afterFirst.Version, afterSecond.Version)

	assert.Equal(t, []notify.Kind{notify.KindItemReported, notify.KindReadyForPickup}, h.events.kinds())
}

func TestScanSurrenderQRCodeValidation(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	item, p := h.report(t, "Tumbler", model.ItemStatusFound, "u1")

	var verr *ValidationError
	_, err := h.m.ScanSurrenderQRCode(ctx, ScanInput{ProcessID: p.ID, ItemID: item.ID, Type: "claim"})
	assert.ErrorAs(t, err, &verr)
	_, err = h.m.ScanSurrenderQRCode(ctx, ScanInput{ProcessID: p.ID, ItemID: "other", Type: ScanTypeSurrender})
	assert.ErrorAs(t, err, &verr)

	var nf *NotFoundError
	_, err = h.m.ScanSurrenderQRCode(ctx, ScanInput{ProcessID: "missing", Type: ScanTypeSurrender})
	assert.ErrorAs(t, err, &nf)

	assert.Equal(t, model.StatusAwaitingSurrender, h.process(t, p.ID).Status)
}

func TestMatchItems(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	lostItem, lost, err := h.m.ReportItem(ctx, ReportInput{
		Name: "Blue Backpack", Status: model.ItemStatusLost, ReporterID: "u2", Image: "lost.jpg",
	})
	require.NoError(t, err)
	foundItem, found := h.report(t, "Blue backpack near gym", model.ItemStatusFound, "u1")
	h.events.reset()

	got, err := h.m.MatchItems(ctx, lost.ID, found.ID)
	require.NoError(t, err)
	assert.Equal(t, model.StatusPendingRetrieval, got.Status)

	assert.Nil(t, h.process(t, lost.ID))
	assert.Nil(t, h.item(t, lostItem.ID))
	assert.Equal(t, model.StatusPendingRetrieval, h.process(t, found.ID).Status)
	assert.NotNil(t, h.item(t, foundItem.ID))

	require.Equal(t, []notify.Kind{notify.KindReadyForPickup}, h.events.kinds())
	assert.Equal(t, "jdelacruz.k11223344@umak.edu.ph", h.events.last().To)
	assert.Equal(t, []string{"lost.jpg"}, h.images.deleted)
}

func TestMatchItemsRollsBack(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	_, a := h.report(t, "Jacket", model.ItemStatusLost, "u1")
	_, b := h.report(t, "Other jacket", model.ItemStatusLost, "u2")
	h.events.reset()

	_, err := h.m.MatchItems(ctx, a.ID, b.ID)
	var verr *ValidationError
	require.ErrorAs(t, err, &verr)
	assert.Equal(t, model.StatusPendingApproval, h.process(t, a.ID).Status)
	assert.Equal(t, model.StatusPendingApproval, h.process(t, b.ID).Status)

	_, err = h.m.MatchItems(ctx, a.ID, "missing")
	var nf *NotFoundError
	require.ErrorAs(t, err, &nf)
	assert.NotNil(t, h.process(t, a.ID))
	assert.Empty(t, h.events.kinds())
}

func TestClaimResolutionsClearRequestor(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	item, p := h.report(t, "Notebook", model.ItemStatusFound, "u1")

	claimAgain := func() {
		t.Helper()
		_, err := h.m.SubmitClaim(ctx, ClaimInput{ItemID: item.ID, RequestorID: "u2", Answers: twoAnswers()})
		require.NoError(t, err)
		require.NotNil(t, h.process(t, p.ID).RequestorUserID)
	}

	claimAgain()
	got, err := h.m.CancelClaim(ctx, p.ID)
	require.NoError(t, err)
	assert.Equal(t, model.StatusApproved, got.Status)
	assert.Nil(t, h.process(t, p.ID).RequestorUserID)
	assert.Empty(t, h.questions(t, p.ID))

	claimAgain()
	got, err = h.m.RejectClaim(ctx, p.ID)
	require.NoError(t, err)
	assert.Equal(t, model.StatusApproved, got.Status)
	assert.Nil(t, h.process(t, p.ID).RequestorUserID)
	assert.Empty(t, h.questions(t, p.ID))
	e := h.events.last()
	assert.Equal(t, notify.KindClaimRejected, e.Kind)
	assert.Len(t, e.Transcript, 2)

	claimAgain()
	_, err = h.m.ApproveClaim(ctx, p.ID)
	require.NoError(t, err)
	assert.Nil(t, h.process(t, p.ID).RequestorUserID)
}

func TestSubmitClaimByResponsibleUser(t *testing.T) {
	h := newHarness(t)

	item, _ := h.report(t, "Notebook", model.ItemStatusFound, "u1")
	_, err := h.m.SubmitClaim(context.Background(), ClaimInput{ItemID: item.ID, RequestorID: "u1", Answers: twoAnswers()})
	var verr *ValidationError
	assert.ErrorAs(t, err, &verr)
}

func TestCancelClaimWithoutClaim(t *testing.T) {
	h := newHarness(t)

	_, p := h.report(t, "Notebook", model.ItemStatusFound, "u1")
	_, err := h.m.CancelClaim(context.Background(), p.ID)
	var conflict *ConflictError
	assert.ErrorAs(t, err, &conflict)
}

func TestHandOverAndNoShow(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	item, p := h.report(t, "Lunchbox", model.ItemStatusFound, "u1")
	_, err := h.m.ApproveItem(ctx, item.ID, true)
	require.NoError(t, err)
	_, err = h.m.ScanSurrenderQRCode(ctx, ScanInput{ProcessID: p.ID, Type: ScanTypeSurrender})
	require.NoError(t, err)

	got, err := h.m.NoShow(ctx, p.ID)
	require.NoError(t, err)
	assert.Equal(t, model.StatusNoShow, got.Status)
	stored := h.item(t, item.ID)
	assert.False(t, stored.Approved)
	assert.Equal(t, model.ItemStatusFound, stored.Status)
	assert.Equal(t, notify.KindNoShow, h.events.last().Kind)

	_, err = h.m.HandOver(ctx, p.ID)
	var conflict *ConflictError
	require.ErrorAs(t, err, &conflict)

	got, err = h.m.MarkHandedOverFromNoShow(ctx, p.ID)
	require.NoError(t, err)
	assert.Equal(t, model.StatusHandedOver, got.Status)
}

func TestHandOver(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	item, p := h.report(t, "Lunchbox", model.ItemStatusFound, "u1")
	_, err := h.m.ApproveItem(ctx, item.ID, true)
	require.NoError(t, err)
	_, err = h.m.ScanSurrenderQRCode(ctx, ScanInput{ProcessID: p.ID, Type: ScanTypeSurrender})
	require.NoError(t, err)

	got, err := h.m.HandOver(ctx, p.ID)
	require.NoError(t, err)
	assert.Equal(t, model.StatusHandedOver, got.Status)
	assert.False(t, h.item(t, item.ID).Approved)
	assert.Equal(t, notify.KindHandedOver, h.events.last().Kind)

	_, err = h.m.ApproveItem(ctx, item.ID, true)
	var conflict *ConflictError
	assert.ErrorAs(t, err, &conflict)
}

func TestUndoRetrieval(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	_, p := h.report(t, "Cap", model.ItemStatusFound, "u1")

	_, err := h.m.UndoRetrieval(ctx, p.ID)
	var conflict *ConflictError
	require.ErrorAs(t, err, &conflict)

	_, err = h.m.MarkHandedOverFromNoShow(ctx, p.ID)
	require.ErrorAs(t, err, &conflict)

	_, err = h.m.ScanSurrenderQRCode(ctx, ScanInput{ProcessID: p.ID, Type: ScanTypeSurrender})
	require.NoError(t, err)

	got, err := h.m.UndoRetrieval(ctx, p.ID)
	require.NoError(t, err)
	assert.Equal(t, model.StatusApproved, got.Status)

	var nf *NotFoundError
	_, err = h.m.UndoRetrieval(ctx, "missing")
	assert.ErrorAs(t, err, &nf)
}

func TestSetStatus(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	item, p := h.report(t, "Glasses", model.ItemStatusLost, "u1")

	got, err := h.m.SetStatus(ctx, item.ID, model.StatusInVerification, `["Frame colour?","Case brand?"]`)
	require.NoError(t, err)
	assert.Equal(t, model.StatusInVerification, got.Status)
	assert.Len(t, h.questions(t, p.ID), 2)

	var verr *ValidationError
	_, err = h.m.SetStatus(ctx, item.ID, model.StatusInVerification, `Frame colour?`)
	assert.ErrorAs(t, err, &verr)
	_, err = h.m.SetStatus(ctx, item.ID, "lost_forever", "")
	assert.ErrorAs(t, err, &verr)

	// Overrides ignore the transition table.
	got, err = h.m.SetStatus(ctx, item.ID, model.StatusVerified, "")
	require.NoError(t, err)
	assert.Equal(t, model.StatusVerified, got.Status)
	assert.Equal(t, defaultMessages[model.StatusVerified], got.Message)

	got, err = h.m.SetStatus(ctx, item.ID, model.StatusCancelled, "Reporter found it at home")
	require.NoError(t, err)
	assert.Equal(t, "Reporter found it at home", got.Message)

	var nf *NotFoundError
	_, err = h.m.SetStatus(ctx, "missing", model.StatusApproved, "")
	assert.ErrorAs(t, err, &nf)
}

func TestSetStatusRejected(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	item, p := h.report(t, "Glasses", model.ItemStatusLost, "u1")
	h.events.reset()

	_, err := h.m.SetStatus(ctx, item.ID, model.StatusRejected, "")
	require.NoError(t, err)
	assert.Nil(t, h.item(t, item.ID))
	assert.Nil(t, h.process(t, p.ID))
	assert.Equal(t, []notify.Kind{notify.KindReportRejected}, h.events.kinds())
}

func TestSetStatusLeavingClaimClearsRequestor(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	item, p := h.report(t, "Glasses", model.ItemStatusFound, "u1")
	_, err := h.m.SubmitClaim(ctx, ClaimInput{ItemID: item.ID, RequestorID: "u2", Answers: twoAnswers()})
	require.NoError(t, err)

	_, err = h.m.SetStatus(ctx, item.ID, model.StatusApproved, "")
	require.NoError(t, err)
	assert.Nil(t, h.process(t, p.ID).RequestorUserID)
	assert.Empty(t, h.questions(t, p.ID))
}

func TestCreateFoundProcess(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	item := &model.Item{Name: "Charger", Status: model.ItemStatusFound, ReporterID: "u1", CreatedAt: testNow, UpdatedAt: testNow}
	require.NoError(t, store.CreateItem(ctx, h.db, item))

	p, err := h.m.CreateFoundProcess(ctx, item.ID, "u1")
	require.NoError(t, err)
	assert.Equal(t, model.StatusAwaitingSurrender, p.Status)

	_, err = h.m.CreateFoundProcess(ctx, item.ID, "u1")
	var conflict *ConflictError
	assert.ErrorAs(t, err, &conflict)

	_, err = h.m.CreateFoundProcess(ctx, "missing", "u1")
	var nf *NotFoundError
	assert.ErrorAs(t, err, &nf)
}

func TestUpdateItemDetails(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	item, _, err := h.m.ReportItem(ctx, ReportInput{
		Name: "Bottle", Status: model.ItemStatusLost, ReporterID: "u1", Image: "old.jpg",
	})
	require.NoError(t, err)
	_, err = h.m.ApproveItem(ctx, item.ID, true)
	require.NoError(t, err)

	image := "new.jpg"
	got, err := h.m.UpdateItemDetails(ctx, item.ID, ItemDetails{
		Name:     "Steel bottle",
		Location: "Library",
		Image:    &image,
		AdditionalDescriptions: []model.AdditionalDescription{
			{Title: "Sticker", Text: "Mountain"},
		},
	})
	require.NoError(t, err)
	assert.Equal(t, "Steel bottle", got.Name)

	stored := h.item(t, item.ID)
	assert.Equal(t, "Library", stored.Location)
	assert.Equal(t, "new.jpg", stored.Image)
	assert.True(t, stored.Approved)
	require.Len(t, stored.AdditionalDescriptions, 1)
	assert.Equal(t, []string{"old.jpg"}, h.images.deleted)

	_, err = h.m.UpdateItemDetails(ctx, item.ID, ItemDetails{Name: ""})
	var verr *ValidationError
	assert.ErrorAs(t, err, &verr)
}

func TestDeleteProcessAndItem(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	item, p, err := h.m.ReportItem(ctx, ReportInput{
		Name: "Scarf", Status: model.ItemStatusFound, ReporterID: "u1", Image: "scarf.jpg",
	})
	require.NoError(t, err)

	require.NoError(t, h.m.DeleteProcessAndItem(ctx, p.ID))
	assert.Nil(t, h.process(t, p.ID))
	assert.Nil(t, h.item(t, item.ID))
	assert.Equal(t, []string{"scarf.jpg"}, h.images.deleted)

	err = h.m.DeleteProcessAndItem(ctx, p.ID)
	var nf *NotFoundError
	assert.ErrorAs(t, err, &nf)
}

func TestExpireSurrender(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	cutoff := testNow.Add(time.Hour)

	item, p, err := h.m.ReportItem(ctx, ReportInput{
		Name: "Scarf", Status: model.ItemStatusFound, ReporterID: "u1", Image: "scarf.jpg",
	})
	require.NoError(t, err)
	_, scanned := h.report(t, "Tumbler", model.ItemStatusFound, "u1")
	_, err = h.m.ScanSurrenderQRCode(ctx, ScanInput{ProcessID: scanned.ID, Type: ScanTypeSurrender})
	require.NoError(t, err)

	expired, err := h.m.ExpireSurrender(ctx, scanned.ID, cutoff)
	require.NoError(t, err)
	assert.False(t, expired)
	assert.NotNil(t, h.process(t, scanned.ID))

	expired, err = h.m.ExpireSurrender(ctx, p.ID, testNow)
	require.NoError(t, err)
	assert.False(t, expired, "not older than cutoff")
	assert.NotNil(t, h.process(t, p.ID))

	expired, err = h.m.ExpireSurrender(ctx, p.ID, cutoff)
	require.NoError(t, err)
	assert.True(t, expired)
	assert.Nil(t, h.process(t, p.ID))
	assert.Nil(t, h.item(t, item.ID))
	assert.Equal(t, []string{"scarf.jpg"}, h.images.deleted)

	expired, err = h.m.ExpireSurrender(ctx, p.ID, cutoff)
	require.NoError(t, err)
	assert.False(t, expired)
}

func TestLeavingRoundDropsRequestorAndQuestions(t *testing.T) {
	ctx := context.Background()

	claimed := func(t *testing.T, h *harness, name string) (*model.Item, *model.Process) {
		t.Helper()
		item, p := h.report(t, name, model.ItemStatusFound, "u1")
		_, err := h.m.SubmitClaim(ctx, ClaimInput{ItemID: item.ID, RequestorID: "u2", Answers: twoAnswers()})
		require.NoError(t, err)
		require.NotNil(t, h.process(t, p.ID).RequestorUserID)
		require.Len(t, h.questions(t, p.ID), 2)
		return item, p
	}

	t.Run("scan", func(t *testing.T) {
		h := newHarness(t)
		item, p := claimed(t, h, "Umbrella")

		res, err := h.m.ScanSurrenderQRCode(ctx, ScanInput{ProcessID: p.ID, ItemID: item.ID, Type: ScanTypeSurrender})
		require.NoError(t, err)
		assert.Nil(t, res.Process.RequestorUserID)
		assert.Nil(t, h.process(t, p.ID).RequestorUserID)
		assert.Empty(t, h.questions(t, p.ID))

		_, err = h.m.HandOver(ctx, p.ID)
		require.NoError(t, err)
		got := h.process(t, p.ID)
		assert.Equal(t, model.StatusHandedOver, got.Status)
		assert.Nil(t, got.RequestorUserID)
	})

	t.Run("match", func(t *testing.T) {
		h := newHarness(t)
		_, found := claimed(t, h, "Calculator")
		_, lost := h.report(t, "Casio calculator", model.ItemStatusLost, "u2")

		_, err := h.m.MatchItems(ctx, lost.ID, found.ID)
		require.NoError(t, err)
		got := h.process(t, found.ID)
		assert.Equal(t, model.StatusPendingRetrieval, got.Status)
		assert.Nil(t, got.RequestorUserID)
		assert.Empty(t, h.questions(t, found.ID))
	})

	t.Run("verification", func(t *testing.T) {
		h := newHarness(t)
		item, p := h.report(t, "Lunchbox", model.ItemStatusLost, "u1")
		_, err := h.m.StartVerification(ctx, p.ID, []string{"Colour?"})
		require.NoError(t, err)

		_, err = h.m.ScanSurrenderQRCode(ctx, ScanInput{ProcessID: p.ID, ItemID: item.ID, Type: ScanTypeSurrender})
		require.NoError(t, err)
		assert.Empty(t, h.questions(t, p.ID))
	})

	t.Run("within round keeps questions", func(t *testing.T) {
		h := newHarness(t)
		_, p := h.report(t, "Wallet", model.ItemStatusLost, "u1")
		_, err := h.m.StartVerification(ctx, p.ID, []string{"Brand?"})
		require.NoError(t, err)

		_, err = h.m.HandleWrongAnswer(ctx, p.ID)
		require.NoError(t, err)
		assert.Len(t, h.questions(t, p.ID), 1)
	})
}

func TestNotificationSkippedForUnknownUser(t *testing.T) {
	h := newHarness(t)

	_, _, err := h.m.ReportItem(context.Background(), ReportInput{
		Name: "Pen", Status: model.ItemStatusLost, ReporterID: "not-synced",
	})
	require.NoError(t, err)
	assert.Empty(t, h.events.kinds())
}

func TestPendingQueries(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	_, p1 := h.report(t, "Ring", model.ItemStatusLost, "u1")
	item2, p2 := h.report(t, "Book", model.ItemStatusFound, "u1")
	_, _ = h.report(t, "Shoe", model.ItemStatusLost, "u2")

	_, err := h.m.SubmitClaim(ctx, ClaimInput{ItemID: item2.ID, RequestorID: "u2", Answers: twoAnswers()})
	require.NoError(t, err)
	_, err = h.m.SetStatus(ctx, h.process(t, p1.ID).ItemID, model.StatusCancelled, "")
	require.NoError(t, err)

	mine, err := h.m.GetPendingForUser(ctx, "u1")
	require.NoError(t, err)
	require.Len(t, mine, 1)
	assert.Equal(t, p2.ID, mine[0].ID)

	theirs, err := h.m.GetPendingForUser(ctx, "u2")
	require.NoError(t, err)
	assert.Len(t, theirs, 2)

	all, err := h.m.GetPendingAll(ctx)
	require.NoError(t, err)
	assert.Len(t, all, 2)
	for _, p := range all {
		require.NotNil(t, p.Item)
	}
}

func TestListPublicItems(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	item, _ := h.report(t, "Ring", model.ItemStatusLost, "u1")
	_, _ = h.report(t, "Book", model.ItemStatusFound, "u1")

	items, err := h.m.ListPublicItems(ctx, store.ItemFilter{})
	require.NoError(t, err)
	assert.Empty(t, items)

	_, err = h.m.ApproveItem(ctx, item.ID, true)
	require.NoError(t, err)

	items, err = h.m.ListPublicItems(ctx, store.ItemFilter{})
	require.NoError(t, err)
	require.Len(t, items, 1)
	assert.Equal(t, item.ID, items[0].ID)
}

func TestListQuestions(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	_, p := h.report(t, "Ring", model.ItemStatusLost, "u1")

	qs, err := h.m.ListQuestions(ctx, p.ID)
	require.NoError(t, err)
	assert.Empty(t, qs)

	_, err = h.m.ListQuestions(ctx, "missing")
	var nf *NotFoundError
	assert.ErrorAs(t, err, &nf)
}
