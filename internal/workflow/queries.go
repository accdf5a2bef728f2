package workflow

import (
	"context"

	"github.com/erazemk/lostfound/internal/model"
	"github.com/erazemk/lostfound/internal/store"
)

// GetItem returns an item or a NotFoundError.
func (m *Machine) GetItem(ctx context.Context, id string) (*model.Item, error) {
	item, err := store.GetItem(ctx, m.db, id)
	if err != nil {
		return nil, err
	}
	if item == nil {
		return nil, notFound("item", id)
	}
	return item, nil
}

// GetProcess returns a process or a NotFoundError.
func (m *Machine) GetProcess(ctx context.Context, id string) (*model.Process, error) {
	p, err := store.GetProcess(ctx, m.db, id)
	if err != nil {
		return nil, err
	}
	if p == nil {
		return nil, notFound("process", id)
	}
	return p, nil
}

// ListPublicItems returns approved items matching filter.
func (m *Machine) ListPublicItems(ctx context.Context, filter store.ItemFilter) ([]model.Item, error) {
	filter.ApprovedOnly = true
	return store.ListItems(ctx, m.db, filter)
}

// ListQuestions returns the current question set of a process.
func (m *Machine) ListQuestions(ctx context.Context, processID string) ([]model.VerificationQuestion, error) {
	if _, err := m.GetProcess(ctx, processID); err != nil {
		return nil, err
	}
	questions, err := store.ListQuestions(ctx, m.db, processID)
	if err != nil {
		return nil, err
	}
	if questions == nil {
		questions = []model.VerificationQuestion{}
	}
	return questions, nil
}

// GetPendingForUser returns the unresolved processes a user reported,
// is responsible for or has a claim on.
func (m *Machine) GetPendingForUser(ctx context.Context, userID string) ([]model.Process, error) {
	return m.pending(ctx, store.ProcessFilter{UserID: userID})
}

// GetPendingAll returns every unresolved process.
func (m *Machine) GetPendingAll(ctx context.Context) ([]model.Process, error) {
	return m.pending(ctx, store.ProcessFilter{})
}

func (m *Machine) pending(ctx context.Context, filter store.ProcessFilter) ([]model.Process, error) {
	all, err := store.ListProcesses(ctx, m.db, filter)
	if err != nil {
		return nil, err
	}
	pending := []model.Process{}
	for _, p := range all {
		if !model.Terminal(p.Status) {
			pending = append(pending, p)
		}
	}
	return pending, nil
}

// ListProcessesByStatus returns every process in status, oldest first.
func (m *Machine) ListProcessesByStatus(ctx context.Context, status string) ([]model.Process, error) {
	return store.ListProcesses(ctx, m.db, store.ProcessFilter{Status: status})
}
