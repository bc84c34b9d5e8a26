package insync

import "encoding/json"

// Protocol endpoints. Domain endpoints that differ per protocol version
// live on the Profile instead.
const (
	epCheckDeviceStatus    = "CheckDeviceStatus"
	epLoginByToken         = "LoginByToken"
	epLogout               = "Logout"
	epAuthorization        = "Authorization"
	epAuthorizationConfirm = "AuthorizationConfirm"

	epDesktop               = "Desktop"
	epHistory               = "History"
	epProducts              = "Products"
	epAccountInfo           = "Account/Info"
	epDepositInfo           = "Deposit/Info"
	epLoanInfo              = "Loan/Info"
	epStatementShow         = "Statement/Show"
	epPerfLog               = "Log"
	epAddProductShortcut    = "AddProductShortcut"
	epRemoveProductShortcut = "RemoveProductShortcut"
	epDesktopDelete         = "DesktopDelete"
	epOwnTransferForm       = "OwnTransfer/Form"
	epOwnTransferData       = "OwnTransfer/Data"
	epSchedulesAccounts     = "Schedules/Accounts"
	epSchedulesPlans        = "Schedules/Plans"
)

// Business status markers.
const (
	statusOK           = "OK"
	statusTokenExpired = "TOKEN_EXPIRED"
	statusActive       = "ACTIVE"

	tokenTypePIN = "PIN"
)

// statusReply is the envelope shared by session-protocol replies. Status
// is a pointer so an absent field is distinguishable from an empty string;
// a non-string value fails decoding, which surfaces as a protocol
// violation.
type statusReply struct {
	Status *string `json:"status"`
}

type deviceStatusReply struct {
	Status    *string `json:"status"`
	SessionID string  `json:"sessionId"`
}

type loginReply struct {
	Status *string `json:"status"`
	Token  string  `json:"token"`
}

type authConfirmReply struct {
	Status    *string `json:"status"`
	SessionID string  `json:"sessionId"`
	Token     string  `json:"token"`
}

// decodeReply unmarshals a reply body, reporting malformed bodies as
// protocol violations.
func decodeReply(endpoint string, raw json.RawMessage, v any) error {
	if err := json.Unmarshal(raw, v); err != nil {
		return &ProtocolError{Endpoint: endpoint, Reason: "malformed reply: " + err.Error()}
	}
	return nil
}

// requireStatus enforces the presence of a string status field.
func requireStatus(endpoint string, status *string) (string, error) {
	if status == nil {
		return "", &ProtocolError{Endpoint: endpoint, Reason: "status field missing or not a string"}
	}
	return *status, nil
}

// Money is an amount with its currency as the backend reports it. Amount
// stays a json.Number so no precision is lost on monetary values.
type Money struct {
	Amount   json.Number `json:"amount"`
	Currency string      `json:"currency"`
}

// ProductInfo is the display block the backend attaches to products and
// history items.
type ProductInfo struct {
	Title       string `json:"title"`
	Description string `json:"description"`
	Amount      Money  `json:"amount"`
}

// Product is one entry of a Products listing.
type Product struct {
	ID   string      `json:"id"`
	Type string      `json:"type"`
	Info ProductInfo `json:"info"`
}

// ProductList is the reply of a Products query.
type ProductList struct {
	Items []Product `json:"items"`
}

// InfoReply is the detail reply of the Account/Deposit/Loan/Card info
// endpoints. Not every field is present for every product type.
type InfoReply struct {
	ObjectID      string      `json:"objectId"`
	Info          ProductInfo `json:"info"`
	ProductName   string      `json:"productName"`
	Rate          json.Number `json:"rate"`
	DueDate       string      `json:"dueDate"`
	AccountNumber string      `json:"accountNumber"`
}

// HistoryItem is one transaction of a History page. Raw preserves the
// complete item body for consumers that need fields the client does not
// model.
type HistoryItem struct {
	ID              string
	TransactionType string
	Date            string
	Title           string
	Amount          Money
	Raw             json.RawMessage
}

func (it *HistoryItem) UnmarshalJSON(b []byte) error {
	var aux struct {
		ID              string `json:"id"`
		TransactionType string `json:"transactionType"`
		Date            string `json:"date"`
		Info            struct {
			Title  string `json:"title"`
			Amount Money  `json:"amount"`
		} `json:"info"`
	}
	if err := json.Unmarshal(b, &aux); err != nil {
		return err
	}
	it.ID = aux.ID
	it.TransactionType = aux.TransactionType
	it.Date = aux.Date
	it.Title = aux.Info.Title
	it.Amount = aux.Info.Amount
	it.Raw = append(it.Raw[:0], b...)
	return nil
}

// HistoryPage is one page of transaction history.
type HistoryPage struct {
	Items []HistoryItem `json:"items"`
}

// Summary aggregates the caller's products into one view.
type Summary struct {
	Accounts []SummaryAccount `json:"accounts"`
	Deposits []SummaryDeposit `json:"deposits"`
	Loans    []SummaryLoan    `json:"loans"`
}

type SummaryAccount struct {
	ID          string      `json:"id"`
	Title       string      `json:"title"`
	Number      string      `json:"number"`
	Description string      `json:"description"`
	Currency    string      `json:"currency"`
	Amount      json.Number `json:"amount"`
}

type SummaryDeposit struct {
	ID          string      `json:"id"`
	Title       string      `json:"title"`
	Number      string      `json:"number"`
	Description string      `json:"description"`
	Currency    string      `json:"currency"`
	Amount      json.Number `json:"amount"`
	Rate        json.Number `json:"rate"`
	Due         string      `json:"due"`
}

type SummaryLoan struct {
	ID          string      `json:"id"`
	Title       string      `json:"title"`
	Number      string      `json:"number"`
	Description string      `json:"description"`
	Currency    string      `json:"currency"`
	Amount      json.Number `json:"amount"`
	Rate        json.Number `json:"rate"`
}
