package domain

import "strings"

// Transaction kinds understood by the projection and the sync worker.
// Unknown kinds are carried through untouched so newer clients can queue
// operations older projections do not understand.
const (
	KindTransfer      = "TRANSFER"
	KindDebit         = "DEBIT"
	KindCredit        = "CREDIT"
	KindCreateAccount = "CREATE_ACCOUNT"
)

// Sync worker states.
const (
	SyncIdle              = "IDLE"
	SyncDraining          = "DRAINING"
	SyncWaitingForAuth    = "WAITING_FOR_AUTH"
	SyncWaitingForNetwork = "WAITING_FOR_NETWORK"
)

// NormalizeKind maps a transaction kind to its canonical upper-case form.
// Legacy queues persisted lower-case kinds for debit/credit.
func NormalizeKind(kind string) string {
	return strings.ToUpper(strings.TrimSpace(kind))
}
