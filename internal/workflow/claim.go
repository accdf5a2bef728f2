package workflow

import (
	"context"
	"strings"

	"github.com/erazemk/lostfound/internal/model"
	"github.com/erazemk/lostfound/internal/notify"
	"github.com/erazemk/lostfound/internal/store"
)

// ClaimAnswer is a question the claimant answered to prove ownership.
type ClaimAnswer struct {
	Question       string `json:"question"`
	Answer         string `json:"answer"`
	AdditionalInfo string `json:"additionalInfo,omitempty"`
}

// ClaimInput is a request by a user to be recognised as an item's owner.
type ClaimInput struct {
	ItemID      string
	RequestorID string
	Answers     []ClaimAnswer
}

// SubmitClaim records a pending claim on an item.
func (m *Machine) SubmitClaim(ctx context.Context, in ClaimInput) (*model.Process, error) {
	if in.RequestorID == "" {
		return nil, validationf("requestor is required")
	}
	if len(in.Answers) == 0 {
		return nil, validationf("at least one question and answer is required")
	}
	set := make([]model.VerificationQuestion, 0, len(in.Answers))
	for _, a := range in.Answers {
		q := strings.TrimSpace(a.Question)
		if q == "" {
			return nil, validationf("questions must not be empty")
		}
		set = append(set, model.VerificationQuestion{
			Question:       q,
			Answer:         strings.TrimSpace(a.Answer),
			AdditionalInfo: a.AdditionalInfo,
		})
	}

	var p *model.Process
	err := m.run(ctx, string(OpSubmitClaim), func(ctx context.Context, u *unit) error {
		item, err := u.item(ctx, in.ItemID)
		if err != nil {
			return err
		}
		if p, err = u.processByItem(ctx, in.ItemID); err != nil {
			return err
		}
		if err := checkTransition(OpSubmitClaim, p); err != nil {
			return err
		}
		if p.UserID == in.RequestorID {
			return validationf("cannot claim an item you are responsible for")
		}

		if err := u.clearQuestions(ctx, p.ID); err != nil {
			return err
		}
		if err := store.CreateQuestions(ctx, u.tx, p.ID, set, u.now); err != nil {
			return err
		}
		requestor := in.RequestorID
		p.RequestorUserID = &requestor
		if err := u.transition(ctx, OpSubmitClaim, p, model.StatusClaimRequest, msgClaimRequest); err != nil {
			return err
		}
		return u.notify(ctx, notify.KindClaimSubmitted, in.RequestorID, item, p)
	})
	if err != nil {
		return nil, err
	}
	return p, nil
}

// CancelClaim withdraws a pending claim.
func (m *Machine) CancelClaim(ctx context.Context, processID string) (*model.Process, error) {
	var p *model.Process
	err := m.run(ctx, string(OpCancelClaim), func(ctx context.Context, u *unit) error {
		var err error
		if p, err = u.process(ctx, processID); err != nil {
			return err
		}
		if err := checkTransition(OpCancelClaim, p); err != nil {
			return err
		}

		if err := u.clearQuestions(ctx, p.ID); err != nil {
			return err
		}
		p.RequestorUserID = nil
		return u.transition(ctx, OpCancelClaim, p, model.StatusApproved, msgApproved)
	})
	if err != nil {
		return nil, err
	}
	return p, nil
}

// claim is a pending claim with everything needed to resolve it.
type claim struct {
	process    *model.Process
	item       *model.Item
	requestor  *model.User
	transcript []notify.QA
}

func (u *unit) pendingClaim(ctx context.Context, op Op, processID string) (*claim, error) {
	p, err := u.process(ctx, processID)
	if err != nil {
		return nil, err
	}
	if err := checkTransition(op, p); err != nil {
		return nil, err
	}
	if p.RequestorUserID == nil || *p.RequestorUserID == "" {
		return nil, notFound("claim requestor for process", p.ID)
	}

	requestor, err := store.GetUser(ctx, u.tx, *p.RequestorUserID)
	if err != nil {
		return nil, err
	}
	if requestor == nil {
		return nil, notFound("user", *p.RequestorUserID)
	}
	item, err := u.itemFor(ctx, p)
	if err != nil {
		return nil, err
	}
	if item == nil {
		return nil, notFound("item", p.ItemID)
	}

	transcript, err := u.transcript(ctx, p.ID)
	if err != nil {
		return nil, err
	}
	return &claim{process: p, item: item, requestor: requestor, transcript: transcript}, nil
}

func withTranscript(qa []notify.QA) func(*notify.Event) {
	return func(e *notify.Event) { e.Transcript = qa }
}

// ApproveClaim transfers the item to the claimant and makes it ready for
// pickup. Nothing changes when the claimant or the item cannot be resolved.
func (m *Machine) ApproveClaim(ctx context.Context, processID string) (*model.Process, error) {
	var p *model.Process
	err := m.run(ctx, string(OpApproveClaim), func(ctx context.Context, u *unit) error {
		c, err := u.pendingClaim(ctx, OpApproveClaim, processID)
		if err != nil {
			return err
		}
		p = c.process

		c.item.ReporterID = c.requestor.ID
		c.item.StudentID = c.requestor.StudentID
		c.item.Approved = false
		if err := u.saveItem(ctx, c.item); err != nil {
			return err
		}

		if err := u.notify(ctx, notify.KindClaimApproved, c.requestor.ID, c.item, p, withTranscript(c.transcript)); err != nil {
			return err
		}
		if err := u.clearQuestions(ctx, p.ID); err != nil {
			return err
		}
		p.UserID = c.requestor.ID
		p.RequestorUserID = nil
		return u.transition(ctx, OpApproveClaim, p, model.StatusPendingRetrieval, msgPendingRetrieval)
	})
	if err != nil {
		return nil, err
	}
	return p, nil
}

// RejectClaim turns a claim down and lists the item again.
func (m *Machine) RejectClaim(ctx context.Context, processID string) (*model.Process, error) {
	var p *model.Process
	err := m.run(ctx, string(OpRejectClaim), func(ctx context.Context, u *unit) error {
		c, err := u.pendingClaim(ctx, OpRejectClaim, processID)
		if err != nil {
			return err
		}
		p = c.process

		if err := u.notify(ctx, notify.KindClaimRejected, c.requestor.ID, c.item, p, withTranscript(c.transcript)); err != nil {
			return err
		}
		if err := u.clearQuestions(ctx, p.ID); err != nil {
			return err
		}
		p.RequestorUserID = nil
		return u.transition(ctx, OpRejectClaim, p, model.StatusApproved, msgApproved)
	})
	if err != nil {
		return nil, err
	}
	return p, nil
}
