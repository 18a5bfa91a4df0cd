package ledger

import "time"

// PledgeStatus is the lifecycle state of a pledge.
type PledgeStatus string

const (
	PledgeCreated   PledgeStatus = "created"
	PledgeSettled   PledgeStatus = "settled"
	PledgeCancelled PledgeStatus = "cancelled"
	PledgeExpired   PledgeStatus = "expired"
)

// Terminal reports whether no further transition is allowed.
func (s PledgeStatus) Terminal() bool {
	switch s {
	case PledgeSettled, PledgeCancelled, PledgeExpired:
		return true
	default:
		return false
	}
}

// Pledge is one submitted payment and its invoice.
type Pledge struct {
	ID             string       `json:"id"`
	Recipient      string       `json:"recipient"`
	GoalEventID    string       `json:"goal_event_id,omitempty"`
	SubmitterName  string       `json:"submitter_name,omitempty"`
	MessageText    string       `json:"message_text,omitempty"`
	VoiceModel     string       `json:"voice_model,omitempty"`
	AmountSats     int64        `json:"amount_sats"`
	PaymentRequest string       `json:"payment_request,omitempty"`
	VerifyURL      string       `json:"verify_url,omitempty"`
	Status         PledgeStatus `json:"status"`
	ErrorMessage   string       `json:"error_message,omitempty"`
	CreatedAt      time.Time    `json:"created_at"`
	UpdatedAt      time.Time    `json:"updated_at"`
	SettledAt      *time.Time   `json:"settled_at,omitempty"`
}

// AlertOutcome records what the alert engine did with a receipt.
type AlertOutcome string

const (
	AlertNarrated AlertOutcome = "narrated"
	AlertDropped  AlertOutcome = "dropped"
	AlertFailed   AlertOutcome = "failed"
)

// Alert is one receipt processed by the alert engine.
type Alert struct {
	ReceiptID        string       `json:"receipt_id"`
	Recipient        string       `json:"recipient"`
	AmountSats       int64        `json:"amount_sats"`
	SubmitterName    string       `json:"submitter_name,omitempty"`
	MessageText      string       `json:"message_text,omitempty"`
	VoiceModel       string       `json:"voice_model,omitempty"`
	Outcome          AlertOutcome `json:"outcome"`
	ErrorMessage     string       `json:"error_message,omitempty"`
	ReceiptCreatedAt time.Time    `json:"receipt_created_at"`
	ProcessedAt      time.Time    `json:"processed_at"`
}

// Stats summarizes the ledger for status output.
type Stats struct {
	Pledges     map[PledgeStatus]int `json:"pledges"`
	Alerts      map[AlertOutcome]int `json:"alerts"`
	SettledSats int64                `json:"settled_sats"`
}
