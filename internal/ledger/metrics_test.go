package ledger

import (
	"context"
	"testing"

	dto "github.com/prometheus/client_model/go"

	"github.com/jmcale/bookpay/internal/metrics"
)

func TestRecordIncrementsTransactionCounter(t *testing.T) {
	metrics.TransactionsTotal.Reset()

	l := New(NewMemoryStore())
	_, err := l.Record(context.Background(), &Transaction{
		BookingID: "bkg_1111111111111111",
		Type:      TypePayment,
		Amount:    10000,
		Currency:  "usd",
	})
	if err != nil {
		t.Fatalf("Record failed: %v", err)
	}

	counter, err := metrics.TransactionsTotal.GetMetricWithLabelValues("payment", "pending")
	if err != nil {
		t.Fatalf("GetMetricWithLabelValues failed: %v", err)
	}
	m := &dto.Metric{}
	_ = counter.Write(m)

	if m.Counter.GetValue() != 1.0 {
		t.Errorf("expected counter value 1, got %f", m.Counter.GetValue())
	}
}
