package workflow

import (
	"context"
	"time"

	"github.com/erazemk/lostfound/internal/model"
	"github.com/erazemk/lostfound/internal/notify"
)

// ScanTypeSurrender is the only QR code type accepted at the office.
const ScanTypeSurrender = "surrender"

// MatchItems resolves a lost report against a found one. The found process
// becomes ready for pickup and the lost report is deleted; the lost item's
// reporter is told where to collect it.
func (m *Machine) MatchItems(ctx context.Context, lostProcessID, foundProcessID string) (*model.Process, error) {
	if lostProcessID == "" || foundProcessID == "" {
		return nil, validationf("lost and found process ids are required")
	}
	if lostProcessID == foundProcessID {
		return nil, validationf("cannot match a process with itself")
	}

	var found *model.Process
	err := m.run(ctx, string(OpMatch), func(ctx context.Context, u *unit) error {
		lost, err := u.process(ctx, lostProcessID)
		if err != nil {
			return err
		}
		if found, err = u.process(ctx, foundProcessID); err != nil {
			return err
		}
		if err := checkTransition(OpMatch, lost); err != nil {
			return err
		}
		if err := checkTransition(OpMatch, found); err != nil {
			return err
		}

		lostItem, err := u.item(ctx, lost.ItemID)
		if err != nil {
			return err
		}
		foundItem, err := u.item(ctx, found.ItemID)
		if err != nil {
			return err
		}
		if lostItem.Status != model.ItemStatusLost || foundItem.Status != model.ItemStatusFound {
			return validationf("match needs a lost item and a found item")
		}

		if err := u.transition(ctx, OpMatch, found, model.StatusPendingRetrieval, msgPendingRetrieval); err != nil {
			return err
		}
		if err := u.notify(ctx, notify.KindReadyForPickup, lostItem.ReporterID, lostItem, found); err != nil {
			return err
		}

		m.logger.Info("items matched", "lost_item_id", lostItem.ID, "found_item_id", foundItem.ID)
		return u.deleteItem(ctx, lostItem)
	})
	if err != nil {
		return nil, err
	}
	return found, nil
}

// ScanInput is the payload of a scanned QR code.
type ScanInput struct {
	ProcessID string
	ItemID    string
	Type      string
	Timestamp time.Time
}

// ScanResult is the outcome of a scan. AlreadyPendingRetrieval is set when
// the scan changed nothing.
type ScanResult struct {
	Process                 *model.Process
	AlreadyPendingRetrieval bool
}

// ScanSurrenderQRCode confirms at the office that an item has been handed in.
// Scanning an item that is already pending retrieval is a no-op.
func (m *Machine) ScanSurrenderQRCode(ctx context.Context, in ScanInput) (*ScanResult, error) {
	if in.Type != ScanTypeSurrender {
		return nil, validationf("invalid QR code type %q", in.Type)
	}
	if in.ProcessID == "" {
		return nil, validationf("process id is required")
	}

	res := &ScanResult{}
	err := m.run(ctx, string(OpScan), func(ctx context.Context, u *unit) error {
		p, err := u.process(ctx, in.ProcessID)
		if err != nil {
			return err
		}
		res.Process = p
		if in.ItemID != "" && in.ItemID != p.ItemID {
			return validationf("QR code item does not match process")
		}
		if p.Status == model.StatusPendingRetrieval {
			res.AlreadyPendingRetrieval = true
			return nil
		}
		if err := checkTransition(OpScan, p); err != nil {
			return err
		}

		if err := u.transition(ctx, OpScan, p, model.StatusPendingRetrieval, msgPendingRetrieval); err != nil {
			return err
		}
		m.logger.Info("surrender scanned", "process_id", p.ID, "scanned_at", in.Timestamp)

		item, err := u.itemFor(ctx, p)
		if err != nil {
			return err
		}
		return u.notify(ctx, notify.KindReadyForPickup, p.UserID, item, p)
	})
	if err != nil {
		return nil, err
	}
	return res, nil
}

// HandOver closes a process: the item has been collected.
func (m *Machine) HandOver(ctx context.Context, processID string) (*model.Process, error) {
	return m.retire(ctx, OpHandOver, processID, model.StatusHandedOver, msgHandedOver, notify.KindHandedOver)
}

// NoShow records that the owner did not collect the item.
func (m *Machine) NoShow(ctx context.Context, processID string) (*model.Process, error) {
	return m.retire(ctx, OpNoShow, processID, model.StatusNoShow, msgNoShow, notify.KindNoShow)
}

// retire moves a process out of circulation and unlists its item.
func (m *Machine) retire(ctx context.Context, op Op, processID, status, message string, kind notify.Kind) (*model.Process, error) {
	var p *model.Process
	err := m.run(ctx, string(op), func(ctx context.Context, u *unit) error {
		var err error
		if p, err = u.process(ctx, processID); err != nil {
			return err
		}
		if err := checkTransition(op, p); err != nil {
			return err
		}

		item, err := u.itemFor(ctx, p)
		if err != nil {
			return err
		}
		if item != nil {
			item.Approved = false
			if err := u.saveItem(ctx, item); err != nil {
				return err
			}
		}
		if err := u.transition(ctx, op, p, status, message); err != nil {
			return err
		}
		return u.notify(ctx, kind, p.UserID, item, p)
	})
	if err != nil {
		return nil, err
	}
	return p, nil
}

// UndoRetrieval puts a pending_retrieval process back to approved.
func (m *Machine) UndoRetrieval(ctx context.Context, processID string) (*model.Process, error) {
	return m.simple(ctx, OpUndoRetrieval, processID, model.StatusApproved, msgApproved)
}

// MarkHandedOverFromNoShow closes a no_show process whose owner turned up
// later.
func (m *Machine) MarkHandedOverFromNoShow(ctx context.Context, processID string) (*model.Process, error) {
	return m.simple(ctx, OpMarkHandedOver, processID, model.StatusHandedOver, msgHandedOver)
}

func (m *Machine) simple(ctx context.Context, op Op, processID, status, message string) (*model.Process, error) {
	var p *model.Process
	err := m.run(ctx, string(op), func(ctx context.Context, u *unit) error {
		var err error
		if p, err = u.process(ctx, processID); err != nil {
			return err
		}
		if err := checkTransition(op, p); err != nil {
			return err
		}
		return u.transition(ctx, op, p, status, message)
	})
	if err != nil {
		return nil, err
	}
	return p, nil
}
