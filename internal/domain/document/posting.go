package document

import (
	"fmt"
	"strings"

	"github.com/erp/inventory-engine/internal/domain/shared"
	"github.com/erp/inventory-engine/internal/domain/stock"
	"github.com/google/uuid"
)

// ErrLineAlreadyPosted is returned when a line leg was stamped by an
// earlier or concurrent validation
var ErrLineAlreadyPosted = shared.NewDomainError("LINE_ALREADY_POSTED", "Document line is already posted")

// Posting is one ledger leg of a document line. Release is the reservation
// handed back in the same step; Inbound marks the destination leg of a
// transfer.
type Posting struct {
	LineID          uuid.UUID
	ProductID       uuid.UUID
	WarehouseID     uuid.UUID
	TransactionType stock.TransactionType
	Change          int64
	Release         int64
	Inbound         bool
	Notes           string
}

// Key returns the balance key touched by the posting
func (p Posting) Key() stock.Key {
	return stock.Key{ProductID: p.ProductID, WarehouseID: p.WarehouseID}
}

// PendingPostings lists the legs that still have to reach the ledger, in
// posting order. A transfer line's inbound leg follows its outbound leg.
func (d *Document) PendingPostings() []Posting {
	var out []Posting
	for _, l := range d.Lines {
		switch d.Kind {
		case KindReceipt:
			if l.PostedAt == nil {
				out = append(out, Posting{
					LineID: l.ID, ProductID: l.ProductID, WarehouseID: d.WarehouseID,
					TransactionType: stock.TransactionTypeReceipt, Change: l.Quantity,
					Notes: "Receipt: " + d.Number,
				})
			}
		case KindDelivery:
			if l.PostedAt == nil {
				out = append(out, Posting{
					LineID: l.ID, ProductID: l.ProductID, WarehouseID: d.WarehouseID,
					TransactionType: stock.TransactionTypeDelivery, Change: -l.Quantity, Release: l.Quantity,
					Notes: "Delivery: " + d.Number,
				})
			}
		case KindTransfer:
			if l.PostedAt == nil {
				out = append(out, Posting{
					LineID: l.ID, ProductID: l.ProductID, WarehouseID: d.WarehouseID,
					TransactionType: stock.TransactionTypeTransferOut, Change: -l.Quantity, Release: l.Quantity,
					Notes: "Transfer out: " + d.Number,
				})
			}
			if l.InboundPostedAt == nil {
				out = append(out, Posting{
					LineID: l.ID, ProductID: l.ProductID, WarehouseID: d.DestinationWarehouse(),
					TransactionType: stock.TransactionTypeTransferIn, Change: l.Quantity, Inbound: true,
					Notes: "Transfer in: " + d.Number,
				})
			}
		case KindAdjustment:
			if l.PostedAt == nil {
				reason := d.Reason
				if reason == "" {
					reason = "Stock count"
				}
				out = append(out, Posting{
					LineID: l.ID, ProductID: l.ProductID, WarehouseID: d.WarehouseID,
					TransactionType: stock.TransactionTypeAdjustment, Change: l.Difference,
					Notes: fmt.Sprintf("Adjustment: %s - %s", d.Number, reason),
				})
			}
		}
	}
	return out
}

// PostingResult identifies one leg in a partial posting report
type PostingResult struct {
	LineID          uuid.UUID             `json:"line_id"`
	ProductID       uuid.UUID             `json:"product_id"`
	WarehouseID     uuid.UUID             `json:"warehouse_id"`
	TransactionType stock.TransactionType `json:"transaction_type"`
	QuantityChange  int64                 `json:"quantity_change"`
}

// PostingFailure is a leg that did not post
type PostingFailure struct {
	PostingResult
	Reason string `json:"reason"`
	Err    error  `json:"-"`
}

// PartialPostingError reports a validation where some legs posted and some
// did not. Posted legs stay posted; retrying validation resumes with the
// failed ones.
type PartialPostingError struct {
	DocumentID uuid.UUID        `json:"document_id"`
	Number     string           `json:"number"`
	Posted     []PostingResult  `json:"posted"`
	Failed     []PostingFailure `json:"failed"`
}

func (e *PartialPostingError) Error() string {
	reasons := make([]string, 0, len(e.Failed))
	for _, f := range e.Failed {
		reasons = append(reasons, fmt.Sprintf("%s %s: %s", f.TransactionType, f.ProductID, f.Reason))
	}
	return fmt.Sprintf("%s posted %d of %d legs; failed: %s",
		e.Number, len(e.Posted), len(e.Posted)+len(e.Failed), strings.Join(reasons, "; "))
}

func (e *PartialPostingError) Unwrap() error { return shared.ErrPartialPosting }

// ResultOf describes p for reports
func ResultOf(p Posting) PostingResult {
	return PostingResult{
		LineID:          p.LineID,
		ProductID:       p.ProductID,
		WarehouseID:     p.WarehouseID,
		TransactionType: p.TransactionType,
		QuantityChange:  p.Change,
	}
}
