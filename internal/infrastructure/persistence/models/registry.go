package models

// All returns every persistence model in dependency order. Production
// schemas come from the SQL migrations; this list backs AutoMigrate in
// tests and local tooling.
func All() []any {
	return []any{
		&AcademicYearModel{},
		&ClassModel{},
		&StudentModel{},
		&FeeHeadModel{},
		&FeeStructureModel{},
		&DiscountModel{},
		&InvoiceModel{},
		&FeeBreakupModel{},
		&ReceiptModel{},
		&PaymentAllocationModel{},
		&DocumentSequenceModel{},
		&AuditLogModel{},
	}
}
