package insync

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
)

// ProductKind enumerates Products query types shared by both protocol
// versions. Loans use Profile.LoanProductType instead.
type ProductKind string

const (
	ProductAccount ProductKind = "ACCOUNT"
	ProductDeposit ProductKind = "DEPOSIT"
)

// Desktop loads the backend desktop for this device. The reply layout is
// version-specific, so it is returned raw.
func (c *Client) Desktop(ctx context.Context) (json.RawMessage, error) {
	return c.Call(ctx, epDesktop, map[string]any{"deviceId": c.deviceID}, nil)
}

// HistoryDirection filters transaction history by flow direction.
type HistoryDirection string

const (
	DirectionExpense HistoryDirection = "EXPENSE"
	DirectionIncome  HistoryDirection = "INCOME"
	DirectionAll     HistoryDirection = "ALL"
)

// HistoryFilter narrows a History query. The zero value requests the first
// page with the default page size. Dates use the backend's compact form,
// e.g. "20170422134511".
type HistoryFilter struct {
	Offset   int
	PageSize int

	MinAmount int
	MaxAmount int
	MinDate   string
	MaxDate   string
	Direction HistoryDirection

	// TransactionType is one of the backend's two-letter type codes:
	// cd, tr, cv, at, fe, ch, er.
	TransactionType string
}

// History fetches one page of transaction history.
func (c *Client) History(ctx context.Context, f HistoryFilter) (*HistoryPage, error) {
	pageSize := f.PageSize
	if pageSize <= 0 {
		pageSize = 15
	}

	body := map[string]any{
		"offset":   f.Offset,
		"pageSize": pageSize,
	}
	for k, v := range c.profile.HistoryDefaults {
		body[k] = v
	}
	if f.MinAmount != 0 {
		body["minAmount"] = f.MinAmount
	}
	if f.MaxAmount != 0 {
		body["maxAmount"] = f.MaxAmount
	}
	if f.MinDate != "" {
		body["minDate"] = f.MinDate
	}
	if f.MaxDate != "" {
		body["maxDate"] = f.MaxDate
	}
	if f.Direction != "" {
		body["direction"] = string(f.Direction)
	}
	if f.TransactionType != "" {
		body["transactionType"] = f.TransactionType
	}

	raw, err := c.Call(ctx, epHistory, body, nil)
	if err != nil {
		return nil, err
	}
	var page HistoryPage
	if err := decodeReply(epHistory, raw, &page); err != nil {
		return nil, err
	}
	return &page, nil
}

// Products lists products of the given kind.
func (c *Client) Products(ctx context.Context, kind ProductKind) (*ProductList, error) {
	raw, err := c.Call(ctx, epProducts, map[string]any{"type": string(kind)}, nil)
	if err != nil {
		return nil, err
	}
	var list ProductList
	if err := decodeReply(epProducts, raw, &list); err != nil {
		return nil, err
	}
	return &list, nil
}

func (c *Client) productInfo(ctx context.Context, endpoint, id string) (*InfoReply, error) {
	raw, err := c.Call(ctx, endpoint, map[string]any{
		"id":              id,
		"operationSource": c.profile.OperationSource,
	}, nil)
	if err != nil {
		return nil, err
	}
	var info InfoReply
	if err := decodeReply(endpoint, raw, &info); err != nil {
		return nil, err
	}
	return &info, nil
}

// AccountInfo fetches account details.
func (c *Client) AccountInfo(ctx context.Context, id string) (*InfoReply, error) {
	return c.productInfo(ctx, epAccountInfo, id)
}

// DepositInfo fetches deposit details.
func (c *Client) DepositInfo(ctx context.Context, id string) (*InfoReply, error) {
	return c.productInfo(ctx, epDepositInfo, id)
}

// LoanInfo fetches loan details.
func (c *Client) LoanInfo(ctx context.Context, id string) (*InfoReply, error) {
	return c.productInfo(ctx, epLoanInfo, id)
}

// CardInfo fetches card details, routed to the endpoint the profile
// defines for the card kind.
func (c *Client) CardInfo(ctx context.Context, id string, kind CardKind) (*InfoReply, error) {
	endpoint := c.profile.cardInfoEndpoint(kind)
	if endpoint == "" {
		return nil, fmt.Errorf("insync: profile %s has no card info endpoint for kind %q", c.profile.Name, kind)
	}
	return c.productInfo(ctx, endpoint, id)
}

// StatementShow renders a statement for the given object and date range
// and returns its text. Dates use the backend's compact form; objectType
// defaults to "ACCOUNT".
func (c *Client) StatementShow(ctx context.Context, dateFrom, dateTo, objectID, objectType string) (string, error) {
	if objectType == "" {
		objectType = "ACCOUNT"
	}
	raw, err := c.Call(ctx, epStatementShow, map[string]any{
		"dateFrom": dateFrom,
		"dateTo":   dateTo,
		"objectId": objectID,
		"type":     objectType,
	}, nil)
	if err != nil {
		return "", err
	}
	var reply struct {
		Text *string `json:"text"`
	}
	if err := decodeReply(epStatementShow, raw, &reply); err != nil {
		return "", err
	}
	if reply.Text == nil {
		return "", &ProtocolError{Endpoint: epStatementShow, Reason: "text field missing"}
	}
	return *reply.Text, nil
}

// PerfLog reports a client-side timing measurement, e.g. rq="DESKTOP_LOAD"
// or "START_TO_PROMPT" with ts in milliseconds. The mobile app sends these
// and some backends expect them.
func (c *Client) PerfLog(ctx context.Context, rq string, ts int64) error {
	_, err := c.Call(ctx, epPerfLog, map[string]any{
		"deviceId": c.deviceID,
		"rq":       rq,
		"ts":       ts,
	}, nil)
	return err
}

// AddProductShortcut pins a product to the desktop.
func (c *Client) AddProductShortcut(ctx context.Context, productType, id string) error {
	_, err := c.Call(ctx, epAddProductShortcut, map[string]any{"type": productType, "id": id}, nil)
	return err
}

// RemoveProductShortcut unpins a product from the desktop.
func (c *Client) RemoveProductShortcut(ctx context.Context, productType, id string) error {
	_, err := c.Call(ctx, epRemoveProductShortcut, map[string]any{"type": productType, "id": id}, nil)
	return err
}

// DeleteShortcut removes a desktop shortcut by its shortcut id.
func (c *Client) DeleteShortcut(ctx context.Context, shortcutID string) error {
	_, err := c.Call(ctx, epDesktopDelete, map[string]any{"shortcutId": shortcutID}, nil)
	return err
}

// OwnTransfer moves funds between two of the caller's own products. The
// backend runs it as a two-step form: Form allocates a transaction id,
// Data submits the amount against it.
func (c *Client) OwnTransfer(ctx context.Context, sourceID, destinationID string, amount json.Number, operationSource string) error {
	if operationSource == "" {
		operationSource = "DESKTOP"
	}

	raw, err := c.Call(ctx, epOwnTransferForm, map[string]any{
		"sourceId":        sourceID,
		"destinationId":   destinationID,
		"operationSource": operationSource,
	}, nil)
	if err != nil {
		return err
	}
	var form struct {
		TransactionID *string `json:"transactionId"`
	}
	if err := decodeReply(epOwnTransferForm, raw, &form); err != nil {
		return err
	}
	if form.TransactionID == nil {
		return &ProtocolError{Endpoint: epOwnTransferForm, Reason: "transactionId not found"}
	}

	raw, err = c.Call(ctx, epOwnTransferData, map[string]any{
		"transactionId": *form.TransactionID,
		"amount":        amount,
	}, nil)
	if err != nil {
		return err
	}
	var data statusReply
	if err := decodeReply(epOwnTransferData, raw, &data); err != nil {
		return err
	}
	status, err := requireStatus(epOwnTransferData, data.Status)
	if err != nil {
		return err
	}
	if status != statusOK {
		return &StatusError{Endpoint: epOwnTransferData, Status: status}
	}
	return nil
}

// SchedulesAccounts lists accounts eligible for scheduled payments.
func (c *Client) SchedulesAccounts(ctx context.Context) (json.RawMessage, error) {
	return c.Call(ctx, epSchedulesAccounts, nil, nil)
}

// SchedulesPlans lists configured payment schedules.
func (c *Client) SchedulesPlans(ctx context.Context) (json.RawMessage, error) {
	return c.Call(ctx, epSchedulesPlans, nil, nil)
}

// Summary aggregates accounts, deposits and loans into one view. Loans
// reference an underlying account that is not always part of the ACCOUNT
// listing; such accounts are back-filled via an extra lookup. A failed
// back-fill lookup skips that account and logs a warning; the rest of the
// summary is unaffected.
func (c *Client) Summary(ctx context.Context) (*Summary, error) {
	summary := &Summary{
		Accounts: []SummaryAccount{},
		Deposits: []SummaryDeposit{},
		Loans:    []SummaryLoan{},
	}
	seen := map[string]bool{}

	accounts, err := c.Products(ctx, ProductAccount)
	if err != nil {
		return nil, err
	}
	for _, acc := range accounts.Items {
		seen[acc.Info.Description] = true
		summary.Accounts = append(summary.Accounts, SummaryAccount{
			ID:          acc.ID,
			Title:       acc.Info.Title,
			Number:      acc.Info.Description,
			Description: acc.Info.Description,
			Currency:    acc.Info.Amount.Currency,
			Amount:      acc.Info.Amount.Amount,
		})
	}

	deposits, err := c.Products(ctx, ProductDeposit)
	if err != nil {
		return nil, err
	}
	for _, dep := range deposits.Items {
		info, err := c.DepositInfo(ctx, dep.ID)
		if err != nil {
			return nil, err
		}
		summary.Deposits = append(summary.Deposits, SummaryDeposit{
			ID:          dep.ID,
			Title:       dep.Info.Title,
			Number:      dep.Info.Description,
			Description: strings.TrimSpace(info.ProductName),
			Currency:    dep.Info.Amount.Currency,
			Amount:      dep.Info.Amount.Amount,
			Rate:        info.Rate,
			Due:         formatDueDate(info.DueDate),
		})
	}

	loans, err := c.Products(ctx, ProductKind(c.profile.LoanProductType))
	if err != nil {
		return nil, err
	}
	for _, loan := range loans.Items {
		info, err := c.LoanInfo(ctx, loan.ID)
		if err != nil {
			return nil, err
		}
		summary.Loans = append(summary.Loans, SummaryLoan{
			ID:          loan.ID,
			Title:       loan.Info.Title,
			Number:      loan.Info.Description,
			Description: strings.TrimSpace(info.ProductName),
			Currency:    loan.Info.Amount.Currency,
			Amount:      loan.Info.Amount.Amount,
			Rate:        info.Rate,
		})

		if info.AccountNumber == "" || seen[info.AccountNumber] {
			continue
		}
		account, err := c.AccountInfo(ctx, info.ObjectID)
		if err != nil {
			// Back-fill is best effort: the linked account may not be
			// visible to this profile. Skip it, loudly.
			c.logger.Warn("loan account back-fill failed", "loan_id", loan.ID, "error", err)
			continue
		}
		summary.Accounts = append(summary.Accounts, SummaryAccount{
			ID:          account.ObjectID,
			Title:       account.Info.Title,
			Number:      account.Info.Description,
			Description: account.Info.Description,
			Currency:    account.Info.Amount.Currency,
			Amount:      account.Info.Amount.Amount,
		})
		seen[account.Info.Description] = true
	}

	return summary, nil
}

// formatDueDate turns the backend's compact yyyymmdd form into yyyy-mm-dd,
// passing anything shorter through untouched.
func formatDueDate(due string) string {
	if len(due) < 8 {
		return due
	}
	return due[0:4] + "-" + due[4:6] + "-" + due[6:8]
}
