package lead

import "strings"

// FormData is the applicant's submission. It is validated once and never
// modified after the lead is created.
type FormData struct {
	Urgency       string `json:"urgency,omitempty"`
	VehicleType   string `json:"vehicleType,omitempty"`
	PaymentType   string `json:"paymentType,omitempty"`
	FinanceBudget string `json:"financeBudget,omitempty"`
	CashBudget    string `json:"cashBudget,omitempty"`
	CreditRating  string `json:"creditRating,omitempty"`

	TradeIn      string `json:"tradeIn,omitempty"`
	TradeInYear  string `json:"tradeInYear,omitempty"`
	TradeInMake  string `json:"tradeInMake,omitempty"`
	TradeInModel string `json:"tradeInModel,omitempty"`

	FullName        string `json:"fullName,omitempty"`
	Phone           string `json:"phone,omitempty"`
	Email           string `json:"email,omitempty"`
	DateOfBirth     string `json:"dateOfBirth,omitempty"`
	BestTimeToReach string `json:"bestTimeToReach,omitempty"`
	LicenseClass    string `json:"licenseClass,omitempty"`

	Cosigner         string `json:"cosigner,omitempty"`
	CosignerFullName string `json:"cosignerFullName,omitempty"`
	CosignerPhone    string `json:"cosignerPhone,omitempty"`
	CosignerEmail    string `json:"cosignerEmail,omitempty"`
}

// Trimmed returns a copy with surrounding whitespace removed from every field.
func (f FormData) Trimmed() FormData {
	for _, p := range []*string{
		&f.Urgency, &f.VehicleType, &f.PaymentType, &f.FinanceBudget, &f.CashBudget, &f.CreditRating,
		&f.TradeIn, &f.TradeInYear, &f.TradeInMake, &f.TradeInModel,
		&f.FullName, &f.Phone, &f.Email, &f.DateOfBirth, &f.BestTimeToReach, &f.LicenseClass,
		&f.Cosigner, &f.CosignerFullName, &f.CosignerPhone, &f.CosignerEmail,
	} {
		*p = strings.TrimSpace(*p)
	}
	f.Email = strings.ToLower(f.Email)
	f.CosignerEmail = strings.ToLower(f.CosignerEmail)
	return f
}

// FirstName is the first word of the applicant's full name.
func (f FormData) FirstName() string {
	fields := strings.Fields(f.FullName)
	if len(fields) == 0 {
		return ""
	}
	return fields[0]
}
