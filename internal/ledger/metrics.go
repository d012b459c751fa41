package ledger

import (
	"github.com/jmcale/bookpay/internal/metrics"
)

// observeTransaction increments the transaction counter for a recorded or
// status-changed entry.
func observeTransaction(t Type, s Status) {
	metrics.TransactionsTotal.WithLabelValues(string(t), string(s)).Inc()
}
