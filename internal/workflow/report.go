package workflow

import (
	"context"
	"encoding/json"
	"strings"
	"time"

	"github.com/erazemk/lostfound/internal/model"
	"github.com/erazemk/lostfound/internal/notify"
	"github.com/erazemk/lostfound/internal/store"
)

// ReportInput describes a new lost or found item report.
type ReportInput struct {
	Name                   string
	Description            string
	Category               string
	Location               string
	Image                  string
	Status                 string
	ReporterID             string
	AdditionalDescriptions []model.AdditionalDescription
}

// ReportItem creates an item and its process in the initial state for the
// item's status.
func (m *Machine) ReportItem(ctx context.Context, in ReportInput) (*model.Item, *model.Process, error) {
	in.Name = strings.TrimSpace(in.Name)
	if in.Name == "" {
		return nil, nil, validationf("name is required")
	}
	if !model.ValidItemStatus(in.Status) {
		return nil, nil, validationf("status must be %q or %q", model.ItemStatusLost, model.ItemStatusFound)
	}
	if in.ReporterID == "" {
		return nil, nil, validationf("reporter is required")
	}
	for _, d := range in.AdditionalDescriptions {
		if strings.TrimSpace(d.Title) == "" {
			return nil, nil, validationf("additional description title is required")
		}
	}

	var item *model.Item
	var p *model.Process
	err := m.run(ctx, "report_item", func(ctx context.Context, u *unit) error {
		reporter, err := store.GetUser(ctx, u.tx, in.ReporterID)
		if err != nil {
			return err
		}

		item = &model.Item{
			Name:                   in.Name,
			Description:            in.Description,
			Category:               in.Category,
			Location:               in.Location,
			Image:                  in.Image,
			ReporterID:             in.ReporterID,
			Status:                 in.Status,
			CreatedAt:              u.now,
			UpdatedAt:              u.now,
			AdditionalDescriptions: in.AdditionalDescriptions,
		}
		if reporter != nil {
			item.StudentID = reporter.StudentID
		}
		if item.AdditionalDescriptions == nil {
			item.AdditionalDescriptions = []model.AdditionalDescription{}
		}
		if err := store.CreateItem(ctx, u.tx, item); err != nil {
			return err
		}

		status := model.InitialStatus(in.Status)
		p = &model.Process{
			ItemID:    item.ID,
			UserID:    in.ReporterID,
			Status:    status,
			Message:   defaultMessages[status],
			CreatedAt: u.now,
			UpdatedAt: u.now,
		}
		if err := store.CreateProcess(ctx, u.tx, p); err != nil {
			return err
		}

		m.logger.Info("item reported", "item_id", item.ID, "process_id", p.ID, "status", item.Status)
		return u.notify(ctx, notify.KindItemReported, in.ReporterID, item, p)
	})
	if err != nil {
		return nil, nil, err
	}
	return item, p, nil
}

// ApproveItem sets the item's public listing flag. The process is untouched.
func (m *Machine) ApproveItem(ctx context.Context, itemID string, approved bool) (*model.Item, error) {
	var item *model.Item
	err := m.run(ctx, string(OpApproveItem), func(ctx context.Context, u *unit) error {
		var err error
		if item, err = u.item(ctx, itemID); err != nil {
			return err
		}
		p, err := u.processByItem(ctx, itemID)
		if err != nil {
			return err
		}
		if err := checkTransition(OpApproveItem, p); err != nil {
			return err
		}

		item.Approved = approved
		if err := u.saveItem(ctx, item); err != nil {
			return err
		}
		m.logger.Info("item approval changed", "item_id", item.ID, "approved", approved)

		if !approved {
			return nil
		}
		return u.notify(ctx, notify.KindItemApproved, item.ReporterID, item, p)
	})
	if err != nil {
		return nil, err
	}
	return item, nil
}

// ItemDetails is an edit of an item's descriptive fields. Nil Image and
// AdditionalDescriptions keep the current values.
type ItemDetails struct {
	Name                   string
	Description            string
	Category               string
	Location               string
	Image                  *string
	AdditionalDescriptions []model.AdditionalDescription
}

// UpdateItemDetails edits an item's descriptive fields. Approval and
// ownership are not affected. A replaced image is removed after commit.
func (m *Machine) UpdateItemDetails(ctx context.Context, itemID string, d ItemDetails) (*model.Item, error) {
	d.Name = strings.TrimSpace(d.Name)
	if d.Name == "" {
		return nil, validationf("name is required")
	}
	for _, ad := range d.AdditionalDescriptions {
		if strings.TrimSpace(ad.Title) == "" {
			return nil, validationf("additional description title is required")
		}
	}

	var item *model.Item
	err := m.run(ctx, string(OpUpdateDetails), func(ctx context.Context, u *unit) error {
		var err error
		if item, err = u.item(ctx, itemID); err != nil {
			return err
		}
		p, err := u.processByItem(ctx, itemID)
		if err != nil {
			return err
		}
		if err := checkTransition(OpUpdateDetails, p); err != nil {
			return err
		}

		item.Name = d.Name
		item.Description = d.Description
		item.Category = d.Category
		item.Location = d.Location
		if d.Image != nil && *d.Image != item.Image {
			if item.Image != "" {
				u.images = append(u.images, item.Image)
			}
			item.Image = *d.Image
		}
		if d.AdditionalDescriptions != nil {
			item.AdditionalDescriptions = d.AdditionalDescriptions
		}
		return u.saveItem(ctx, item)
	})
	if err != nil {
		return nil, err
	}
	return item, nil
}

// CreateFoundProcess opens an awaiting_surrender process for an item that
// has none.
func (m *Machine) CreateFoundProcess(ctx context.Context, itemID, userID string) (*model.Process, error) {
	if userID == "" {
		return nil, validationf("user is required")
	}

	var p *model.Process
	err := m.run(ctx, "create_found_process", func(ctx context.Context, u *unit) error {
		if _, err := u.item(ctx, itemID); err != nil {
			return err
		}
		existing, err := store.GetProcessByItem(ctx, u.tx, itemID)
		if err != nil {
			return err
		}
		if existing != nil {
			return &ConflictError{Msg: "item " + itemID + " already has a process"}
		}

		p = &model.Process{
			ItemID:    itemID,
			UserID:    userID,
			Status:    model.StatusAwaitingSurrender,
			Message:   msgAwaitingSurrender,
			CreatedAt: u.now,
			UpdatedAt: u.now,
		}
		return store.CreateProcess(ctx, u.tx, p)
	})
	if err != nil {
		return nil, err
	}
	return p, nil
}

// SetStatus is the administrator override: it moves the item's process to
// any status of the closed set. in_verification starts a verification round
// with message holding a JSON array of questions; rejected deletes the
// report. An empty message is replaced with the status's default text.
func (m *Machine) SetStatus(ctx context.Context, itemID, status, message string) (*model.Process, error) {
	if !model.ValidStatus(status) {
		return nil, validationf("unknown status %q", status)
	}

	switch status {
	case model.StatusInVerification:
		var questions []string
		if err := json.Unmarshal([]byte(message), &questions); err != nil {
			return nil, validationf("message must be a JSON array of questions: %v", err)
		}
		p, err := m.processIDForItem(ctx, itemID)
		if err != nil {
			return nil, err
		}
		return m.StartVerification(ctx, p, questions)
	case model.StatusRejected:
		return nil, m.rejectReport(ctx, itemID)
	}

	if message == "" {
		message = defaultMessages[status]
	}

	var p *model.Process
	err := m.run(ctx, "set_status", func(ctx context.Context, u *unit) error {
		var err error
		if p, err = u.processByItem(ctx, itemID); err != nil {
			return err
		}
		return u.transition(ctx, "set_status", p, status, message)
	})
	if err != nil {
		return nil, err
	}
	return p, nil
}

func (m *Machine) processIDForItem(ctx context.Context, itemID string) (string, error) {
	p, err := store.GetProcessByItem(ctx, m.db, itemID)
	if err != nil {
		return "", err
	}
	if p == nil {
		return "", notFound("process for item", itemID)
	}
	return p.ID, nil
}

func (m *Machine) rejectReport(ctx context.Context, itemID string) error {
	return m.run(ctx, "reject_report", func(ctx context.Context, u *unit) error {
		item, err := u.item(ctx, itemID)
		if err != nil {
			return err
		}
		p, err := u.processByItem(ctx, itemID)
		if err != nil {
			return err
		}
		if err := u.notify(ctx, notify.KindReportRejected, item.ReporterID, item, p); err != nil {
			return err
		}
		m.logger.Info("report rejected", "item_id", item.ID, "process_id", p.ID)
		return u.deleteItem(ctx, item)
	})
}

// DeleteProcessAndItem removes a process, its item and its questions. The
// item image is removed after commit.
func (m *Machine) DeleteProcessAndItem(ctx context.Context, processID string) error {
	return m.run(ctx, "delete", func(ctx context.Context, u *unit) error {
		p, err := u.process(ctx, processID)
		if err != nil {
			return err
		}
		item, err := u.itemFor(ctx, p)
		if err != nil {
			return err
		}
		if item == nil {
			return store.DeleteProcess(ctx, u.tx, p.ID)
		}
		m.logger.Info("process deleted", "process_id", p.ID, "item_id", item.ID, "status", p.Status)
		return u.deleteItem(ctx, item)
	})
}

// ExpireSurrender deletes a found-item report that was never surrendered.
// The process is re-read inside the transaction and only removed when it is
// still awaiting surrender and was created before cutoff; otherwise nothing
// changes and false is returned.
func (m *Machine) ExpireSurrender(ctx context.Context, processID string, cutoff time.Time) (bool, error) {
	expired := false
	err := m.run(ctx, "expire_surrender", func(ctx context.Context, u *unit) error {
		p, err := store.GetProcess(ctx, u.tx, processID)
		if err != nil {
			return err
		}
		if p == nil {
			m.logger.Debug("expired report already gone", "process_id", processID)
			return nil
		}
		if p.Status != model.StatusAwaitingSurrender || !p.CreatedAt.Before(cutoff) {
			m.logger.Debug("report no longer expirable", "process_id", p.ID, "status", p.Status, "created_at", p.CreatedAt)
			return nil
		}

		item, err := u.itemFor(ctx, p)
		if err != nil {
			return err
		}
		expired = true
		if item == nil {
			return store.DeleteProcess(ctx, u.tx, p.ID)
		}
		m.logger.Info("process expired", "process_id", p.ID, "item_id", item.ID)
		return u.deleteItem(ctx, item)
	})
	if err != nil {
		return false, err
	}
	return expired, nil
}

// DeleteItem removes an item and, with it, its process.
func (m *Machine) DeleteItem(ctx context.Context, itemID string) error {
	return m.run(ctx, "delete", func(ctx context.Context, u *unit) error {
		item, err := u.item(ctx, itemID)
		if err != nil {
			return err
		}
		m.logger.Info("item deleted", "item_id", item.ID)
		return u.deleteItem(ctx, item)
	})
}
