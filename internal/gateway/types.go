package gateway

// PrefilledCustomer carries the invoice customer details used to pre-populate
// the gateway-hosted mandate authorisation form.
type PrefilledCustomer struct {
	GivenName    string `json:"given_name,omitempty"`
	FamilyName   string `json:"family_name,omitempty"`
	CompanyName  string `json:"company_name,omitempty"`
	Email        string `json:"email,omitempty"`
	AddressLine1 string `json:"address_line1,omitempty"`
	City         string `json:"city,omitempty"`
	PostalCode   string `json:"postal_code,omitempty"`
	CountryCode  string `json:"country_code,omitempty"`
}

// RedirectFlowRequest opens a hosted mandate authorisation flow.
type RedirectFlowRequest struct {
	SessionToken       string             `json:"session_token"`
	SuccessRedirectURL string             `json:"success_redirect_url"`
	Description        string             `json:"description,omitempty"`
	PrefilledCustomer  *PrefilledCustomer `json:"prefilled_customer,omitempty"`
}

// RedirectFlow is the gateway's view of an open authorisation flow.
type RedirectFlow struct {
	ID          string `json:"id"`
	RedirectURL string `json:"redirect_url"`
}

// CompletedRedirectFlow is returned once the payer has granted the mandate.
type CompletedRedirectFlow struct {
	ID        string
	MandateID string
}

// PaymentRequest creates a debit against an existing mandate.
type PaymentRequest struct {
	MandateID   string
	Amount      int64
	Currency    string
	Description string
	Metadata    map[string]string
}

// Payment is the gateway's record of a created debit.
type Payment struct {
	ID     string `json:"id"`
	Status string `json:"status"`
}

// Mandate holds the subset of the remote mandate the integration needs: its
// identifier and the linked bank account.
type Mandate struct {
	ID            string
	BankAccountID string
}

// BankAccount holds the metadata used to synthesize a human-readable source label.
type BankAccount struct {
	ID                  string `json:"id"`
	BankName            string `json:"bank_name"`
	AccountNumberEnding string `json:"account_number_ending"`
}
