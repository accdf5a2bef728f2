package workflow

import (
	"context"
	"strings"

	"github.com/erazemk/lostfound/internal/model"
	"github.com/erazemk/lostfound/internal/notify"
	"github.com/erazemk/lostfound/internal/store"
)

// StartVerification asks the process owner to answer questions. Any earlier
// question set is replaced.
func (m *Machine) StartVerification(ctx context.Context, processID string, questions []string) (*model.Process, error) {
	set := make([]model.VerificationQuestion, 0, len(questions))
	for _, q := range questions {
		q = strings.TrimSpace(q)
		if q == "" {
			return nil, validationf("questions must not be empty")
		}
		set = append(set, model.VerificationQuestion{Question: q})
	}
	if len(set) == 0 {
		return nil, validationf("at least one question is required")
	}

	var p *model.Process
	err := m.run(ctx, string(OpStartVerification), func(ctx context.Context, u *unit) error {
		var err error
		if p, err = u.process(ctx, processID); err != nil {
			return err
		}
		if err := checkTransition(OpStartVerification, p); err != nil {
			return err
		}

		if err := u.clearQuestions(ctx, p.ID); err != nil {
			return err
		}
		if err := store.CreateQuestions(ctx, u.tx, p.ID, set, u.now); err != nil {
			return err
		}
		if err := u.transition(ctx, OpStartVerification, p, model.StatusInVerification, msgInVerification); err != nil {
			return err
		}

		item, err := u.itemFor(ctx, p)
		if err != nil {
			return err
		}
		return u.notify(ctx, notify.KindVerificationStarted, p.UserID, item, p)
	})
	if err != nil {
		return nil, err
	}
	return p, nil
}

// Answer is a response to one verification question.
type Answer struct {
	QuestionID string `json:"questionId"`
	Answer     string `json:"answer"`
}

// SubmitAnswers stores answers onto the current question set and hands the
// process to an administrator for review. Every question must be answered.
func (m *Machine) SubmitAnswers(ctx context.Context, processID string, answers []Answer) (*model.Process, error) {
	byID := make(map[string]string, len(answers))
	for _, a := range answers {
		byID[a.QuestionID] = strings.TrimSpace(a.Answer)
	}

	var p *model.Process
	err := m.run(ctx, string(OpSubmitAnswers), func(ctx context.Context, u *unit) error {
		var err error
		if p, err = u.process(ctx, processID); err != nil {
			return err
		}
		questions, err := store.ListQuestions(ctx, u.tx, p.ID)
		if err != nil {
			return err
		}
		if len(questions) == 0 {
			return notFound("verification questions for process", p.ID)
		}
		if err := checkTransition(OpSubmitAnswers, p); err != nil {
			return err
		}

		if len(byID) != len(questions) {
			return validationf("expected %d answers, got %d", len(questions), len(byID))
		}
		for i := range questions {
			answer, ok := byID[questions[i].ID]
			if !ok || answer == "" {
				return validationf("question %q is not answered", questions[i].Question)
			}
			questions[i].Answer = answer
		}
		if err := store.SaveAnswers(ctx, u.tx, questions, u.now); err != nil {
			return err
		}
		if err := u.transition(ctx, OpSubmitAnswers, p, model.StatusAwaitingReview, msgAwaitingReview); err != nil {
			return err
		}

		item, err := u.itemFor(ctx, p)
		if err != nil {
			return err
		}
		return u.notify(ctx, notify.KindAnswersSubmitted, p.UserID, item, p)
	})
	if err != nil {
		return nil, err
	}
	return p, nil
}

// ReviewAnswers records an administrator's verdict on submitted answers. It
// is the single verification-attempt operation behind HandleCorrectAnswer and
// HandleWrongAnswer.
func (m *Machine) ReviewAnswers(ctx context.Context, processID string, correct bool) (*model.Process, error) {
	if correct {
		return m.HandleCorrectAnswer(ctx, processID)
	}
	return m.HandleWrongAnswer(ctx, processID)
}

// HandleWrongAnswer counts a failed attempt. The third failure ends
// verification; before that the owner may answer again.
func (m *Machine) HandleWrongAnswer(ctx context.Context, processID string) (*model.Process, error) {
	var p *model.Process
	err := m.run(ctx, string(OpWrongAnswer), func(ctx context.Context, u *unit) error {
		var err error
		if p, err = u.process(ctx, processID); err != nil {
			return err
		}
		if err := checkTransition(OpWrongAnswer, p); err != nil {
			return err
		}

		p.VerificationAttempts++
		item, err := u.itemFor(ctx, p)
		if err != nil {
			return err
		}

		if p.VerificationAttempts >= model.MaxVerificationAttempts {
			if err := u.transition(ctx, OpWrongAnswer, p, model.StatusVerificationFailed, msgVerificationFailed); err != nil {
				return err
			}
			return u.notify(ctx, notify.KindMaxAttempts, p.UserID, item, p)
		}

		remaining := model.MaxVerificationAttempts - p.VerificationAttempts
		if err := u.transition(ctx, OpWrongAnswer, p, model.StatusInVerification, attemptsRemainingMessage(remaining)); err != nil {
			return err
		}
		return u.notify(ctx, notify.KindAttemptFailed, p.UserID, item, p, func(e *notify.Event) {
			e.RemainingAttempts = remaining
		})
	})
	if err != nil {
		return nil, err
	}
	return p, nil
}

// HandleCorrectAnswer accepts the owner's answers: the item is ready for
// pickup and the question set is discarded.
func (m *Machine) HandleCorrectAnswer(ctx context.Context, processID string) (*model.Process, error) {
	var p *model.Process
	err := m.run(ctx, string(OpCorrectAnswer), func(ctx context.Context, u *unit) error {
		var err error
		if p, err = u.process(ctx, processID); err != nil {
			return err
		}
		if err := checkTransition(OpCorrectAnswer, p); err != nil {
			return err
		}

		if err := u.clearQuestions(ctx, p.ID); err != nil {
			return err
		}
		if err := u.transition(ctx, OpCorrectAnswer, p, model.StatusPendingRetrieval, msgPendingRetrieval); err != nil {
			return err
		}

		item, err := u.itemFor(ctx, p)
		if err != nil {
			return err
		}
		return u.notify(ctx, notify.KindReadyForPickup, p.UserID, item, p)
	})
	if err != nil {
		return nil, err
	}
	return p, nil
}

// CancelVerification abandons verification: attempts are reset, questions
// removed and the report goes back to pending_approval.
func (m *Machine) CancelVerification(ctx context.Context, processID string) (*model.Process, error) {
	var p *model.Process
	err := m.run(ctx, string(OpCancelVerification), func(ctx context.Context, u *unit) error {
		var err error
		if p, err = u.process(ctx, processID); err != nil {
			return err
		}
		if err := checkTransition(OpCancelVerification, p); err != nil {
			return err
		}

		if err := u.clearQuestions(ctx, p.ID); err != nil {
			return err
		}
		p.VerificationAttempts = 0
		return u.transition(ctx, OpCancelVerification, p, model.StatusPendingApproval, msgPendingApproval)
	})
	if err != nil {
		return nil, err
	}
	return p, nil
}
