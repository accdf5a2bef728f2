package notify

import (
	"fmt"
	"strings"
)

// Render produces the plain-text subject and body of an event.
func Render(e Event) (subject, body string) {
	var b strings.Builder

	name := e.RecipientName
	if name == "" {
		name = "there"
	}
	fmt.Fprintf(&b, "Hi %s,\n\n", name)

	switch e.Kind {
	case KindItemReported:
		if e.ItemStatus == "found" {
			subject = "Found item reported: " + e.ItemName
			fmt.Fprintf(&b, "Thank you for reporting the found item %q. Please surrender it at the lost and found office within 3 days so it can be listed.\n", e.ItemName)
		} else {
			subject = "Lost item reported: " + e.ItemName
			fmt.Fprintf(&b, "Your report for the lost item %q has been received and is waiting for approval.\n", e.ItemName)
		}
	case KindItemApproved:
		if e.ItemStatus == "found" {
			subject = "Found item published: " + e.ItemName
			fmt.Fprintf(&b, "The found item %q you surrendered is now listed so its owner can claim it.\n", e.ItemName)
		} else {
			subject = "Lost item report approved: " + e.ItemName
			fmt.Fprintf(&b, "Your lost item report for %q has been approved and is now visible to others.\n", e.ItemName)
		}
	case KindReportRejected:
		subject = "Report rejected: " + e.ItemName
		fmt.Fprintf(&b, "Your report for %q was rejected by an administrator and has been removed.\n", e.ItemName)
	case KindVerificationStarted:
		subject = "Verify your ownership: " + e.ItemName
		fmt.Fprintf(&b, "We may have found your item %q. Please answer the verification questions to confirm it is yours.\n", e.ItemName)
	case KindAnswersSubmitted:
		subject = "Answers received: " + e.ItemName
		fmt.Fprintf(&b, "Your verification answers for %q were received and are awaiting review.\n", e.ItemName)
	case KindAttemptFailed:
		subject = "Verification unsuccessful: " + e.ItemName
		fmt.Fprintf(&b, "Your answers for %q did not match. You have %d attempt(s) remaining.\n", e.ItemName, e.RemainingAttempts)
	case KindMaxAttempts:
		subject = "Verification failed: " + e.ItemName
		fmt.Fprintf(&b, "You have used all verification attempts for %q. Please visit the lost and found office for assistance.\n", e.ItemName)
	case KindReadyForPickup:
		subject = "Ready for pickup: " + e.ItemName
		fmt.Fprintf(&b, "The item %q is ready for pickup at the lost and found office. Please bring your ID.\n", e.ItemName)
	case KindClaimSubmitted:
		subject = "Claim submitted: " + e.ItemName
		fmt.Fprintf(&b, "Your claim for %q was submitted and is awaiting review.\n", e.ItemName)
	case KindClaimApproved:
		subject = "Claim approved: " + e.ItemName
		fmt.Fprintf(&b, "Your claim for %q was approved. The item is ready for pickup at the lost and found office.\n", e.ItemName)
	case KindClaimRejected:
		subject = "Claim rejected: " + e.ItemName
		fmt.Fprintf(&b, "Your claim for %q could not be verified and was rejected.\n", e.ItemName)
	case KindHandedOver:
		subject = "Item handed over: " + e.ItemName
		fmt.Fprintf(&b, "The item %q has been handed over. This case is now closed.\n", e.ItemName)
	case KindNoShow:
		subject = "Missed pickup: " + e.ItemName
		fmt.Fprintf(&b, "You did not pick up %q at the scheduled time. Please contact the lost and found office.\n", e.ItemName)
	default:
		subject = "Lost and found update: " + e.ItemName
		fmt.Fprintf(&b, "There is an update on %q.\n", e.ItemName)
	}

	if len(e.Transcript) > 0 {
		b.WriteString("\nVerification transcript:\n")
		for i, qa := range e.Transcript {
			answer := qa.Answer
			if answer == "" {
				answer = "(no answer)"
			}
			fmt.Fprintf(&b, "%d. %s\n   %s\n", i+1, qa.Question, answer)
		}
	}

	b.WriteString("\nUMak Lost and Found\n")
	return subject, b.String()
}
