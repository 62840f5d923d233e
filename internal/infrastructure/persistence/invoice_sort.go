package persistence

import (
	"strings"

	"gorm.io/gorm/clause"
)

// InvoiceSortBalance orders invoices by what is still owed on them
const InvoiceSortBalance = "balance"

// invoiceSortColumns maps accepted sort keys to invoice columns.
// Anything else sorts by created_at.
var invoiceSortColumns = map[string]string{
	"created_at":      "created_at",
	"updated_at":      "updated_at",
	"invoice_number":  "invoice_number",
	"student_id":      "student_id",
	"class_id":        "class_id",
	"total_amount":    "total_amount",
	"paid_amount":     "paid_amount",
	"discount_amount": "discount_amount",
	"due_date":        "due_date",
	"status":          "status",
}

// invoiceOrder builds the ORDER BY for an invoice listing. Direction defaults
// to descending; id breaks ties so pages stay stable.
func invoiceOrder(orderBy, orderDir string) clause.OrderBy {
	desc := !strings.EqualFold(strings.TrimSpace(orderDir), "asc")
	key := strings.ToLower(strings.TrimSpace(orderBy))

	primary := clause.OrderByColumn{Desc: desc}
	switch col, ok := invoiceSortColumns[key]; {
	case key == InvoiceSortBalance:
		primary.Column = clause.Column{Name: "total_amount - paid_amount", Raw: true}
	case ok:
		primary.Column = clause.Column{Name: col}
	default:
		primary.Column = clause.Column{Name: "created_at"}
	}

	return clause.OrderBy{Columns: []clause.OrderByColumn{
		primary,
		{Column: clause.Column{Name: "id"}},
	}}
}
