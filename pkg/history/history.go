// Package history maintains a local, queryable copy of the transaction
// history behind an authenticated insync client. It is a consumer of the
// core's request surface: it opens a session, paginates the History
// endpoint and classifies transaction types into labels.
package history

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"log/slog"

	"github.com/insyncby/insync/pkg/insync"
)

// Source is the slice of the client the reconciler needs. *insync.Client
// satisfies it.
type Source interface {
	History(ctx context.Context, f insync.HistoryFilter) (*insync.HistoryPage, error)
}

// Transaction is one reconciled history entry.
type Transaction struct {
	ID       string
	Title    string
	Date     string
	TypeCode string
	Amount   string
	Currency string
	Raw      json.RawMessage
}

// TypeLabel resolves the backend's two-letter transaction type code into a
// stable label. Unknown codes map to "unknown".
func TypeLabel(code string) string {
	if label, ok := typeLabels[code]; ok {
		return label
	}
	return "unknown"
}

var typeLabels = map[string]string{
	"cd": "terminal",
	"tr": "transfer",
	"cv": "currency_exchange",
	"at": "atm_withdrawal",
	"fe": "bank_fee",
	"ch": "cash_desk",
	"er": "ssis_payment",
}

// Label is a convenience for the stored transaction.
func (t Transaction) Label() string { return TypeLabel(t.TypeCode) }

// Reconciler pulls transaction history page by page and mirrors it into a
// Store.
type Reconciler struct {
	src      Source
	store    *Store
	pageSize int
	logger   *slog.Logger
}

// NewReconciler wires a reconciler. A zero or negative page size falls
// back to the config default.
func NewReconciler(src Source, store *Store, cfg Config, logger *slog.Logger) *Reconciler {
	pageSize := cfg.PageSize
	if pageSize <= 0 {
		pageSize = defaultPageSize
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Reconciler{src: src, store: store, pageSize: pageSize, logger: logger}
}

// Reload replaces the stored history with a full pull from the backend,
// paging until a short or empty page. It returns the number of
// transactions stored; on error the count covers what landed before the
// failure.
func (r *Reconciler) Reload(ctx context.Context) (int, error) {
	if err := r.store.Clear(ctx); err != nil {
		return 0, err
	}

	offset, total := 0, 0
	for {
		page, err := r.src.History(ctx, insync.HistoryFilter{Offset: offset, PageSize: r.pageSize})
		if err != nil {
			return total, err
		}
		if len(page.Items) == 0 {
			break
		}

		for _, item := range page.Items {
			tx := fromItem(item)
			if err := r.store.Upsert(ctx, tx); err != nil {
				return total, err
			}
			total++
		}
		r.logger.Debug("history page stored", "offset", offset, "items", len(page.Items))

		if len(page.Items) < r.pageSize {
			break
		}
		offset += len(page.Items)
	}

	r.logger.Info("history reloaded", "transactions", total)
	return total, nil
}

func fromItem(item insync.HistoryItem) Transaction {
	id := item.ID
	if id == "" {
		// Some backends omit item ids; derive a stable one from the body.
		sum := sha256.Sum256(item.Raw)
		id = hex.EncodeToString(sum[:16])
	}
	return Transaction{
		ID:       id,
		Title:    item.Title,
		Date:     item.Date,
		TypeCode: item.TransactionType,
		Amount:   item.Amount.Amount.String(),
		Currency: item.Amount.Currency,
		Raw:      item.Raw,
	}
}
