package workflow

import (
	"fmt"
	"slices"

	"github.com/erazemk/lostfound/internal/model"
)

// Op names a state machine operation.
type Op string

// Operations checked against the transition table.
const (
	OpApproveItem        Op = "approve_item"
	OpStartVerification  Op = "start_verification"
	OpSubmitAnswers      Op = "submit_answers"
	OpWrongAnswer        Op = "wrong_answer"
	OpCorrectAnswer      Op = "correct_answer"
	OpCancelVerification Op = "cancel_verification"
	OpSubmitClaim        Op = "submit_claim"
	OpCancelClaim        Op = "cancel_claim"
	OpApproveClaim       Op = "approve_claim"
	OpRejectClaim        Op = "reject_claim"
	OpMatch              Op = "match"
	OpScan               Op = "scan"
	OpHandOver           Op = "hand_over"
	OpNoShow             Op = "no_show"
	OpUndoRetrieval      Op = "undo_retrieval"
	OpMarkHandedOver     Op = "mark_handed_over"
	OpUpdateDetails      Op = "update_details"
)

var active = []string{
	model.StatusPendingApproval,
	model.StatusApproved,
	model.StatusInVerification,
	model.StatusAwaitingReview,
	model.StatusVerified,
	model.StatusVerificationFailed,
	model.StatusAwaitingSurrender,
	model.StatusPendingRetrieval,
	model.StatusClaimRequest,
	model.StatusNoShow,
}

// transitions lists the states each operation may start from. Anything not
// listed is rejected with a ConflictError. Deletion and the admin status
// override are not part of the table.
var transitions = map[Op][]string{
	OpApproveItem: active,
	OpStartVerification: {
		model.StatusPendingApproval,
		model.StatusApproved,
		model.StatusInVerification,
		model.StatusAwaitingReview,
		model.StatusVerified,
	},
	OpSubmitAnswers: {model.StatusInVerification},
	OpWrongAnswer:   {model.StatusAwaitingReview, model.StatusInVerification},
	OpCorrectAnswer: {model.StatusAwaitingReview, model.StatusInVerification},
	OpCancelVerification: {
		model.StatusPendingApproval,
		model.StatusApproved,
		model.StatusInVerification,
		model.StatusAwaitingReview,
		model.StatusVerified,
		model.StatusVerificationFailed,
	},
	OpSubmitClaim: {
		model.StatusPendingApproval,
		model.StatusApproved,
		model.StatusAwaitingSurrender,
		model.StatusPendingRetrieval,
		model.StatusVerified,
	},
	OpCancelClaim:    {model.StatusClaimRequest},
	OpApproveClaim:   {model.StatusClaimRequest},
	OpRejectClaim:    {model.StatusClaimRequest},
	OpMatch:          active,
	OpScan:           active,
	OpHandOver:       {model.StatusPendingRetrieval, model.StatusApproved, model.StatusVerified},
	OpNoShow:         {model.StatusPendingRetrieval},
	OpUndoRetrieval:  {model.StatusPendingRetrieval},
	OpMarkHandedOver: {model.StatusNoShow},
	OpUpdateDetails:  active,
}

// Allowed reports whether op may run on a process in state from.
func Allowed(op Op, from string) bool {
	return slices.Contains(transitions[op], from)
}

func checkTransition(op Op, p *model.Process) error {
	if !Allowed(op, p.Status) {
		return &ConflictError{Msg: fmt.Sprintf("cannot %s: process %s is %s", op, p.ID, p.Status)}
	}
	return nil
}

// Status messages stored on the process alongside each state.
const (
	msgPendingApproval    = "Your report is waiting for approval."
	msgAwaitingSurrender  = "Please surrender the item at the lost and found office within 3 days."
	msgInVerification     = "Please answer the verification questions to confirm ownership."
	msgAwaitingReview     = "Your answers have been submitted and are being reviewed."
	msgVerificationFailed = "Maximum verification attempts reached. Please visit the lost and found office."
	msgPendingRetrieval   = "The item is ready for pickup at the lost and found office."
	msgClaimRequest       = "A claim for this item is being reviewed."
	msgApproved           = "The item is listed."
	msgHandedOver         = "The item has been handed over."
	msgNoShow             = "The item was not picked up."
)

func attemptsRemainingMessage(remaining int) string {
	return fmt.Sprintf("Incorrect answers. %d attempt(s) remaining.", remaining)
}

var defaultMessages = map[string]string{
	model.StatusPendingApproval:    msgPendingApproval,
	model.StatusApproved:           msgApproved,
	model.StatusInVerification:     msgInVerification,
	model.StatusAwaitingReview:     msgAwaitingReview,
	model.StatusVerified:           "Ownership verified.",
	model.StatusVerificationFailed: msgVerificationFailed,
	model.StatusAwaitingSurrender:  msgAwaitingSurrender,
	model.StatusPendingRetrieval:   msgPendingRetrieval,
	model.StatusClaimRequest:       msgClaimRequest,
	model.StatusHandedOver:         msgHandedOver,
	model.StatusNoShow:             msgNoShow,
	model.StatusRejected:           "The report was rejected.",
	model.StatusCancelled:          "The report was cancelled.",
}
