package history

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/insyncby/insync/pkg/insync"
)

// fakeSource serves canned history pages and records the filters it saw.
type fakeSource struct {
	items   []insync.HistoryItem
	err     error
	filters []insync.HistoryFilter
}

func (s *fakeSource) History(_ context.Context, f insync.HistoryFilter) (*insync.HistoryPage, error) {
	s.filters = append(s.filters, f)
	if s.err != nil {
		return nil, s.err
	}

	end := f.Offset + f.PageSize
	if end > len(s.items) {
		end = len(s.items)
	}
	if f.Offset >= len(s.items) {
		return &insync.HistoryPage{Items: []insync.HistoryItem{}}, nil
	}
	return &insync.HistoryPage{Items: s.items[f.Offset:end]}, nil
}

func makeItems(n int) []insync.HistoryItem {
	items := make([]insync.HistoryItem, n)
	for i := range items {
		items[i] = insync.HistoryItem{
			ID:              fmt.Sprintf("tx%03d", i),
			TransactionType: "cd",
			Date:            fmt.Sprintf("202401%02d000000", i%28+1),
			Title:           "Purchase",
			Amount:          insync.Money{Amount: json.Number("-1.5"), Currency: "BYN"},
			Raw:             json.RawMessage(fmt.Sprintf(`{"id":"tx%03d"}`, i)),
		}
	}
	return items
}

func TestTypeLabel(t *testing.T) {
	t.Parallel()

	require.Equal(t, "terminal", TypeLabel("cd"))
	require.Equal(t, "transfer", TypeLabel("tr"))
	require.Equal(t, "currency_exchange", TypeLabel("cv"))
	require.Equal(t, "atm_withdrawal", TypeLabel("at"))
	require.Equal(t, "bank_fee", TypeLabel("fe"))
	require.Equal(t, "cash_desk", TypeLabel("ch"))
	require.Equal(t, "ssis_payment", TypeLabel("er"))
	require.Equal(t, "unknown", TypeLabel("xx"))
	require.Equal(t, "unknown", TypeLabel(""))

	require.Equal(t, "transfer", Transaction{TypeCode: "tr"}.Label())
}

func TestReloadPagesUntilShortPage(t *testing.T) {
	t.Parallel()

	src := &fakeSource{items: makeItems(25)}
	store := newTestStore(t)

	r := NewReconciler(src, store, Config{PageSize: 10}, nil)
	total, err := r.Reload(context.Background())
	require.NoError(t, err)
	require.Equal(t, 25, total)

	// Two full pages plus the short final one.
	require.Len(t, src.filters, 3)
	require.Equal(t, 0, src.filters[0].Offset)
	require.Equal(t, 10, src.filters[1].Offset)
	require.Equal(t, 20, src.filters[2].Offset)

	n, err := store.Count(context.Background())
	require.NoError(t, err)
	require.EqualValues(t, 25, n)
}

func TestReloadStopsOnEmptyPage(t *testing.T) {
	t.Parallel()

	// An item count that is a multiple of the page size forces an extra
	// empty-page probe.
	src := &fakeSource{items: makeItems(20)}
	store := newTestStore(t)

	r := NewReconciler(src, store, Config{PageSize: 10}, nil)
	total, err := r.Reload(context.Background())
	require.NoError(t, err)
	require.Equal(t, 20, total)
	require.Len(t, src.filters, 3)
}

func TestReloadReplacesPreviousContents(t *testing.T) {
	t.Parallel()

	store := newTestStore(t)
	ctx := context.Background()
	require.NoError(t, store.Upsert(ctx, Transaction{ID: "stale", TypeCode: "tr", Amount: "1", Currency: "BYN"}))

	src := &fakeSource{items: makeItems(3)}
	r := NewReconciler(src, store, Config{PageSize: 10}, nil)
	total, err := r.Reload(ctx)
	require.NoError(t, err)
	require.Equal(t, 3, total)

	list, err := store.Transactions(ctx)
	require.NoError(t, err)
	for _, tx := range list {
		require.NotEqual(t, "stale", tx.ID)
	}
}

func TestReloadPropagatesSourceError(t *testing.T) {
	t.Parallel()

	src := &fakeSource{err: errors.New("session expired")}
	store := newTestStore(t)

	r := NewReconciler(src, store, Config{PageSize: 10}, nil)
	total, err := r.Reload(context.Background())
	require.Error(t, err)
	require.Zero(t, total)
}

func TestFromItemDerivesMissingID(t *testing.T) {
	t.Parallel()

	item := insync.HistoryItem{
		TransactionType: "at",
		Date:            "20240102030405",
		Title:           "ATM",
		Amount:          insync.Money{Amount: json.Number("-50"), Currency: "BYN"},
		Raw:             json.RawMessage(`{"transactionType":"at"}`),
	}

	a := fromItem(item)
	b := fromItem(item)
	require.NotEmpty(t, a.ID)
	require.Equal(t, a.ID, b.ID, "derived ids are stable per body")

	item.Raw = json.RawMessage(`{"transactionType":"fe"}`)
	c := fromItem(item)
	require.NotEqual(t, a.ID, c.ID)
}
