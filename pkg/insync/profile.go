package insync

// CardKind selects which card-info endpoint a profile routes to. The v10
// backend serves every card from one endpoint; v5 splits debit and credit.
type CardKind string

const (
	CardDebit  CardKind = "debit"
	CardCredit CardKind = "credit"
)

// Profile describes one version of the backend protocol: the endpoint
// base, the client identity the backend expects in headers, and the
// default request fields that drifted between protocol versions. The
// session protocol itself is version-independent; everything that differs
// lives here.
type Profile struct {
	Name      string
	BaseURL   string
	ClientApp string // X-Client-App header
	UserAgent string

	// DeviceName is the fixed device description submitted during
	// interactive authorization. It describes this client, not the user.
	DeviceName string

	// OperationSource is the default operationSource field on product
	// info requests.
	OperationSource string

	// HistoryDefaults are merged into every History request body. The
	// backend rejects History calls missing its version's filler field.
	HistoryDefaults map[string]any

	// LoanProductType is the Products query type that lists loans.
	LoanProductType string

	// CardInfoEndpoints routes CardInfo calls per card kind.
	CardInfoEndpoints map[CardKind]string
}

// ProfileV10 is the current protocol generation.
func ProfileV10() Profile {
	return Profile{
		Name:            "v10",
		BaseURL:         "https://insync2.alfa-bank.by/mBank256/v10/",
		ClientApp:       "Android/5.9.1",
		UserAgent:       "okhttp/3.12.5",
		DeviceName:      "Android (insync.by go api)",
		OperationSource: "PRODUCT",
		HistoryDefaults: map[string]any{"shortcutId": ""},
		LoanProductType: "CREDIT",
		CardInfoEndpoints: map[CardKind]string{
			CardDebit:  "Card/Info",
			CardCredit: "Card/Info",
		},
	}
}

// ProfileV5 is the legacy protocol generation, kept for installations that
// were registered against the old backend.
func ProfileV5() Profile {
	return Profile{
		Name:            "v5",
		BaseURL:         "https://insync.alfa-bank.by/mBank512/v5/",
		ClientApp:       "Android/2.1.0",
		UserAgent:       "okhttp/3.6.0",
		DeviceName:      "Android (insync.by go api)",
		OperationSource: "SIDEMENU",
		HistoryDefaults: map[string]any{"searchQuery": ""},
		LoanProductType: "LOAN",
		CardInfoEndpoints: map[CardKind]string{
			CardDebit:  "DebitCard/Info",
			CardCredit: "CreditCard/Info",
		},
	}
}

func (p Profile) cardInfoEndpoint(kind CardKind) string {
	return p.CardInfoEndpoints[kind]
}
