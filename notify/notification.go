package notify

type Kind string

const (
	KindWelcome        Kind = "welcome"
	KindPasswordReset  Kind = "password_reset"
	KindPickReminder   Kind = "pick_reminder"
	KindRoundResult    Kind = "round_result"
	KindCompetitionWon Kind = "competition_won"
)

// Notification is one message fanned out to a set of users by email and,
// when Push is set, to their registered devices.
type Notification struct {
	Kind    Kind
	UserIDs []int
	// Email overrides recipient lookup for messages to a single address.
	Email    string
	Name     string
	Subject  string
	Body     string
	Link     string
	LinkText string
	Push     bool
}

// Recipient is a resolved email target.
type Recipient struct {
	UserID int
	Name   string
	Email  string
}
