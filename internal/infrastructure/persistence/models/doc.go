// Package models holds the GORM rows behind the fee engine's tables and the
// mappers to and from domain types. Domain types carry no gorm tags.
//
// School reference data (years, classes, students, fee catalog) lives in
// school.go and is read-only here. Invoices, breakups, receipts, allocations
// and document sequences live in fee.go; audit entries in audit.go.
package models
