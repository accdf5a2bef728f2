// Package workflow is the process state machine. Every operation validates
// the current state, applies its changes to the item, process and question
// stores inside one transaction, and publishes its notifications only after
// the transaction has committed.
package workflow

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/erazemk/lostfound/internal/dbx"
	"github.com/erazemk/lostfound/internal/model"
	"github.com/erazemk/lostfound/internal/notify"
	"github.com/erazemk/lostfound/internal/store"
)

// ImageStore removes item images when their item goes away.
type ImageStore interface {
	Delete(ctx context.Context, key string) error
}

// Options configures a Machine. Every field is optional.
type Options struct {
	Publisher notify.Publisher
	Images    ImageStore
	Logger    *slog.Logger
	Now       func() time.Time
}

// Machine runs state machine operations against a database.
type Machine struct {
	db        *sql.DB
	publisher notify.Publisher
	images    ImageStore
	logger    *slog.Logger
	now       func() time.Time
}

// New creates a Machine.
func New(db *sql.DB, opts Options) *Machine {
	m := &Machine{
		db:        db,
		publisher: opts.Publisher,
		images:    opts.Images,
		logger:    opts.Logger,
		now:       opts.Now,
	}
	if m.logger == nil {
		m.logger = slog.Default()
	}
	if m.now == nil {
		m.now = time.Now
	}
	return m
}

// unit is the state of one operation's transaction: the handle, the
// notifications to send and the image blobs to remove once it commits.
type unit struct {
	m      *Machine
	tx     dbx.DBTX
	now    time.Time
	events []notify.Event
	images []string
}

func (m *Machine) run(ctx context.Context, op string, fn func(ctx context.Context, u *unit) error) error {
	u := &unit{m: m, now: m.now().UTC()}

	err := dbx.WithTx(ctx, m.db, func(ctx context.Context, tx dbx.DBTX) error {
		u.tx = tx
		return fn(ctx, u)
	})
	if err != nil {
		if errors.Is(err, store.ErrConflict) {
			return &ConflictError{Msg: "record was modified concurrently, retry", Err: err}
		}
		return err
	}

	m.afterCommit(ctx, op, u)
	return nil
}

func (m *Machine) afterCommit(ctx context.Context, op string, u *unit) {
	if m.publisher != nil {
		for _, e := range u.events {
			m.publisher.Publish(e)
		}
	}

	if m.images == nil {
		return
	}
	for _, key := range u.images {
		if err := m.images.Delete(ctx, key); err != nil {
			m.logger.Warn("failed to delete item image", "op", op, "image", key, "error", err)
		}
	}
}

func (u *unit) process(ctx context.Context, id string) (*model.Process, error) {
	p, err := store.GetProcess(ctx, u.tx, id)
	if err != nil {
		return nil, err
	}
	if p == nil {
		return nil, notFound("process", id)
	}
	return p, nil
}

func (u *unit) processByItem(ctx context.Context, itemID string) (*model.Process, error) {
	p, err := store.GetProcessByItem(ctx, u.tx, itemID)
	if err != nil {
		return nil, err
	}
	if p == nil {
		return nil, notFound("process for item", itemID)
	}
	return p, nil
}

func (u *unit) item(ctx context.Context, id string) (*model.Item, error) {
	item, err := store.GetItem(ctx, u.tx, id)
	if err != nil {
		return nil, err
	}
	if item == nil {
		return nil, notFound("item", id)
	}
	return item, nil
}

// round names the question round a status belongs to, or "" for none.
func round(status string) string {
	switch status {
	case model.StatusClaimRequest:
		return "claim"
	case model.StatusInVerification, model.StatusAwaitingReview:
		return "verification"
	}
	return ""
}

// leaveRound ends the question round of p when moving to status: the
// requestor is dropped and the round's questions are deleted.
func (u *unit) leaveRound(ctx context.Context, p *model.Process, status string) error {
	r := round(p.Status)
	if r == "" || r == round(status) {
		return nil
	}
	p.RequestorUserID = nil
	return u.clearQuestions(ctx, p.ID)
}

// transition moves p to status with message and persists it. Leaving a
// claim or verification round discards its requestor and questions.
func (u *unit) transition(ctx context.Context, op Op, p *model.Process, status, message string) error {
	if err := u.leaveRound(ctx, p, status); err != nil {
		return err
	}
	from := p.Status
	p.Status = status
	p.Message = message
	p.UpdatedAt = u.now
	if err := store.UpdateProcess(ctx, u.tx, p); err != nil {
		return err
	}
	u.m.logger.Info("process transitioned", "op", op, "process_id", p.ID, "item_id", p.ItemID, "from", from, "to", status)
	return nil
}

func (u *unit) saveItem(ctx context.Context, item *model.Item) error {
	item.UpdatedAt = u.now
	return store.UpdateItem(ctx, u.tx, item)
}

// deleteItem removes item together with its process and questions and
// schedules its image for removal.
func (u *unit) deleteItem(ctx context.Context, item *model.Item) error {
	if err := store.DeleteItem(ctx, u.tx, item.ID); err != nil {
		return err
	}
	if item.Image != "" {
		u.images = append(u.images, item.Image)
	}
	return nil
}

func (u *unit) clearQuestions(ctx context.Context, processID string) error {
	_, err := store.DeleteQuestions(ctx, u.tx, processID)
	return err
}

func (u *unit) transcript(ctx context.Context, processID string) ([]notify.QA, error) {
	questions, err := store.ListQuestions(ctx, u.tx, processID)
	if err != nil {
		return nil, err
	}
	qa := make([]notify.QA, 0, len(questions))
	for _, q := range questions {
		qa = append(qa, notify.QA{Question: q.Question, Answer: q.Answer})
	}
	return qa, nil
}

// notify queues an event for userID. Unknown users are skipped.
func (u *unit) notify(ctx context.Context, kind notify.Kind, userID string, item *model.Item, p *model.Process, opts ...func(*notify.Event)) error {
	if userID == "" || item == nil {
		return nil
	}
	user, err := store.GetUser(ctx, u.tx, userID)
	if err != nil {
		return fmt.Errorf("resolving notification recipient: %w", err)
	}
	if user == nil {
		u.m.logger.Debug("notification recipient not found", "kind", kind, "user_id", userID)
		return nil
	}

	e := notify.Event{
		Kind:          kind,
		To:            user.Email,
		RecipientName: user.DisplayName,
		ItemID:        item.ID,
		ItemName:      item.Name,
		ItemStatus:    item.Status,
		OccurredAt:    u.now,
	}
	if p != nil {
		e.ProcessID = p.ID
	}
	for _, opt := range opts {
		opt(&e)
	}
	u.events = append(u.events, e)
	return nil
}

// itemFor loads the item of p, returning nil when it is gone.
func (u *unit) itemFor(ctx context.Context, p *model.Process) (*model.Item, error) {
	return store.GetItem(ctx, u.tx, p.ItemID)
}
