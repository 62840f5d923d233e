// Package fee holds the school fee settlement domain: fee heads and class fee
// structures, student discounts, invoices with one breakup line per fee head,
// receipts with their allocation lines, and the pure calculations between
// them (tax split, discount resolution, invoice pricing, settlement summary).
//
// Amounts are decimal.Decimal with cent precision. Every type here is scoped
// to one school.
package fee
