package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/devlin/erpmirror/internal/domain"
	"github.com/devlin/erpmirror/internal/erp"
	"github.com/shopspring/decimal"
)

// errNoParseableID marks a record that cannot be mirrored because no id field
// could be extracted. Such records are skipped; the page continues.
var errNoParseableID = errors.New("record has no parseable id")

// sentinelInvoiceDate is used when no date field on a record parses. A fixed
// past date keeps unknown invoices from being silently back-dated to the sync
// time.
var sentinelInvoiceDate = time.Date(2000, time.January, 1, 0, 0, 0, 0, time.UTC)

// statusCodeNames maps the remote numeric status code to the local taxonomy.
var statusCodeNames = map[int64]string{
	2: domain.InvoiceStatusInvoiced,
	3: domain.InvoiceStatusCancelled,
}

var dateLayouts = []string{
	time.RFC3339,
	"2006-01-02T15:04:05",
	"2006-01-02 15:04:05",
	"2006-01-02",
}

// stringExtractor tries to pull one string value out of a raw record. The
// normalizer runs an ordered list per field and takes the first non-empty
// result, which keeps the source system's tolerant duck-typed lookup without
// dynamic typing leaking past this file.
type stringExtractor func(erp.RawRecord) (string, bool)

// key extracts a flat string field.
func key(name string) stringExtractor {
	return func(raw erp.RawRecord) (string, bool) {
		if v, ok := raw[name]; ok {
			if s, ok := v.(string); ok && strings.TrimSpace(s) != "" {
				return strings.TrimSpace(s), true
			}
		}
		return "", false
	}
}

// nested extracts a string field from an embedded object, e.g. customer.name.
func nested(object, field string) stringExtractor {
	return func(raw erp.RawRecord) (string, bool) {
		obj, ok := raw[object].(map[string]any)
		if !ok {
			return "", false
		}
		if s, ok := obj[field].(string); ok && strings.TrimSpace(s) != "" {
			return strings.TrimSpace(s), true
		}
		return "", false
	}
}

func firstString(raw erp.RawRecord, extractors ...stringExtractor) (string, bool) {
	for _, extract := range extractors {
		if s, ok := extract(raw); ok {
			return s, true
		}
	}
	return "", false
}

// parseDecimal accepts either a JSON string or a JSON number representation
// of a money amount.
func parseDecimal(v any) (decimal.Decimal, bool) {
	switch n := v.(type) {
	case json.Number:
		if d, err := decimal.NewFromString(n.String()); err == nil {
			return d, true
		}
	case string:
		if d, err := decimal.NewFromString(strings.TrimSpace(n)); err == nil {
			return d, true
		}
	case float64:
		return decimal.NewFromFloat(n), true
	}
	return decimal.Zero, false
}

// decimalField tries an ordered key list; parse failures leave the zero value.
func decimalField(raw erp.RawRecord, keys ...string) decimal.Decimal {
	for _, k := range keys {
		if v, ok := raw[k]; ok {
			if d, ok := parseDecimal(v); ok {
				return d
			}
		}
	}
	return decimal.Zero
}

func int64Field(raw erp.RawRecord, keys ...string) (int64, bool) {
	for _, k := range keys {
		v, ok := raw[k]
		if !ok {
			continue
		}
		switch n := v.(type) {
		case json.Number:
			if i, err := n.Int64(); err == nil {
				return i, true
			}
		case string:
			if i, err := strconv.ParseInt(strings.TrimSpace(n), 10, 64); err == nil {
				return i, true
			}
		case float64:
			return int64(n), true
		}
	}
	return 0, false
}

func boolField(raw erp.RawRecord, keys ...string) bool {
	for _, k := range keys {
		v, ok := raw[k]
		if !ok {
			continue
		}
		switch b := v.(type) {
		case bool:
			return b
		case json.Number:
			return b.String() != "0"
		case string:
			if parsed, err := strconv.ParseBool(b); err == nil {
				return parsed
			}
		}
	}
	return false
}

// timeField tries an ordered key list against the known date layouts.
func timeField(raw erp.RawRecord, keys ...string) (time.Time, bool) {
	for _, k := range keys {
		s, ok := raw[k].(string)
		if !ok || s == "" {
			continue
		}
		for _, layout := range dateLayouts {
			if t, err := time.Parse(layout, s); err == nil {
				return t, true
			}
		}
	}
	return time.Time{}, false
}

// statusField prefers the numeric status code mapped through the fixed table;
// an unmapped code yields Unknown. Without a numeric code it falls back to a
// raw string status, then Active.
func statusField(raw erp.RawRecord) string {
	if code, ok := int64Field(raw, "status_code", "status"); ok {
		if name, ok := statusCodeNames[code]; ok {
			return name
		}
		return domain.InvoiceStatusUnknown
	}
	if s, ok := firstString(raw, key("status"), key("state")); ok {
		return s
	}
	return domain.InvoiceStatusActive
}

// normalizer turns heterogeneous raw ERP records into Invoice rows, resolving
// the salesperson reference through the local mirror first and the remote
// client second.
type normalizer struct {
	store  LocalStore
	remote RemoteSource
}

// normalize maps one raw record into an Invoice. CreatedAt/UpdatedAt are left
// for the orchestrator, which owns the write-once semantics.
func (n *normalizer) normalize(ctx context.Context, raw erp.RawRecord) (*domain.Invoice, error) {
	id, ok := int64Field(raw, "id", "invoice_id")
	if !ok || id <= 0 {
		return nil, errNoParseableID
	}

	inv := &domain.Invoice{ID: id}

	if number, ok := firstString(raw, key("user_code"), key("invoice_number"), key("number")); ok {
		inv.InvoiceNumber = number
	} else {
		inv.InvoiceNumber = fmt.Sprintf("INV-%d", id)
	}

	if name, ok := firstString(raw,
		nested("customer", "name"),
		nested("customer", "company_name"),
		key("customer_name"),
		key("client_name"),
		key("company_name"),
	); ok {
		inv.CustomerName = name
	} else {
		inv.CustomerName = "Unknown Customer"
	}

	inv.Currency, _ = firstString(raw, key("currency"), key("currency_code"))
	inv.Total = decimalField(raw, "total", "total_amount", "amount")
	inv.Paid = decimalField(raw, "paid", "paid_amount", "amount_paid")
	inv.Unpaid = decimalField(raw, "unpaid", "unpaid_amount", "balance", "amount_due")
	inv.Status = statusField(raw)
	inv.Locked = boolField(raw, "locked", "is_locked")
	inv.Sent = boolField(raw, "sent", "is_sent")

	if sentAt, ok := timeField(raw, "sent_at", "sent_date"); ok {
		inv.SentAt = &sentAt
	}
	if invoiceDate, ok := timeField(raw, "invoice_date", "date", "invoice_created_date", "created_date"); ok {
		inv.InvoiceDate = invoiceDate
	} else {
		inv.InvoiceDate = sentinelInvoiceDate
	}

	if employeeID, ok := int64Field(raw, "employee_id", "salesperson_id"); ok && employeeID > 0 {
		inv.EmployeeID = &employeeID
		inv.SalespersonName = n.resolveSalesperson(ctx, employeeID)
	} else {
		inv.SalespersonName = domain.NoSalesperson
	}

	return inv, nil
}

// resolveSalesperson checks the local employee mirror before going remote.
// The remote client already degrades failures to "Unknown", so no error can
// stall the record pipeline here.
func (n *normalizer) resolveSalesperson(ctx context.Context, employeeID int64) string {
	if emp, err := n.store.GetEmployeeByID(ctx, employeeID); err == nil && emp != nil && emp.FullName != "" {
		return emp.FullName
	}
	name := n.remote.ResolveEmployeeName(ctx, employeeID)
	if name == "" || name == "Unknown" {
		return domain.UnknownSalesperson
	}
	return name
}
