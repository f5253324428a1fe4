package document

import (
	"fmt"
	"math/rand/v2"
	"time"
)

// Kind is the movement document type
type Kind string

const (
	KindReceipt    Kind = "receipt"
	KindDelivery   Kind = "delivery"
	KindTransfer   Kind = "transfer"
	KindAdjustment Kind = "adjustment"
)

// AllKinds lists every document kind
var AllKinds = []Kind{KindReceipt, KindDelivery, KindTransfer, KindAdjustment}

// ParseKind accepts the singular kind or its plural route form
func ParseKind(s string) (Kind, bool) {
	switch s {
	case "receipt", "receipts":
		return KindReceipt, true
	case "delivery", "deliveries":
		return KindDelivery, true
	case "transfer", "transfers":
		return KindTransfer, true
	case "adjustment", "adjustments":
		return KindAdjustment, true
	}
	return "", false
}

// IsValid returns true if the kind is known
func (k Kind) IsValid() bool {
	switch k {
	case KindReceipt, KindDelivery, KindTransfer, KindAdjustment:
		return true
	}
	return false
}

// String returns the string representation of Kind
func (k Kind) String() string {
	return string(k)
}

// IsOutbound reports whether the kind takes stock out of a warehouse and
// therefore holds reservations while non-done.
func (k Kind) IsOutbound() bool {
	return k == KindDelivery || k == KindTransfer
}

// Label is the name used in user-facing messages
func (k Kind) Label() string {
	switch k {
	case KindDelivery:
		return "delivery order"
	default:
		return string(k)
	}
}

// NumberPrefix returns the document number prefix of the kind
func (k Kind) NumberPrefix() string {
	switch k {
	case KindReceipt:
		return "REC"
	case KindDelivery:
		return "DO"
	case KindTransfer:
		return "TRF"
	case KindAdjustment:
		return "ADJ"
	}
	return "DOC"
}

const numberAlphabet = "ABCDEFGHIJKLMNOPQRSTUVWXYZ0123456789"

// GenerateNumber returns <PREFIX>-<unix millis>-<6 random alphanumerics>
func GenerateNumber(kind Kind, now time.Time) string {
	suffix := make([]byte, 6)
	for i := range suffix {
		suffix[i] = numberAlphabet[rand.IntN(len(numberAlphabet))]
	}
	return fmt.Sprintf("%s-%d-%s", kind.NumberPrefix(), now.UnixMilli(), suffix)
}

// Status is the lifecycle state of a document
type Status string

const (
	StatusDraft    Status = "draft"
	StatusWaiting  Status = "waiting"
	StatusReady    Status = "ready"
	StatusDone     Status = "done"
	StatusCanceled Status = "canceled"
)

// IsValid returns true if the status is known
func (s Status) IsValid() bool {
	switch s {
	case StatusDraft, StatusWaiting, StatusReady, StatusDone, StatusCanceled:
		return true
	}
	return false
}

// IsTerminal reports whether no further transition is possible
func (s Status) IsTerminal() bool {
	return s == StatusDone || s == StatusCanceled
}

// String returns the string representation of Status
func (s Status) String() string {
	return string(s)
}
