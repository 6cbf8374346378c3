package lead

func validFinanceForm() FormData {
	return FormData{
		Urgency:         "right-away",
		VehicleType:     "suv",
		PaymentType:     "finance",
		FinanceBudget:   "400-500",
		CreditRating:    "good",
		TradeIn:         "no",
		FullName:        "Jordan Smith",
		Phone:           "(416) 555-0199",
		Email:           "jordan@example.com",
		DateOfBirth:     "1990-05-14",
		BestTimeToReach: "evening",
		LicenseClass:    "g-or-above",
		Cosigner:        "no",
	}
}

func statusPtr(s Status) *Status         { return &s }
func reasonPtr(r DeadReason) *DeadReason { return &r }
func strPtr(s string) *string            { return &s }
