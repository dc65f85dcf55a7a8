package audit

import (
	"context"
	"log/slog"

	"github.com/SylvanasW1ndrunner/NexusWallet/pkg/account"
)

// Sink adapts a Log to the account.EventSink interface. Events are
// appended synchronously; an append failure is logged and the event is
// still reported through slog so it is never silently lost.
type Sink struct {
	Log    *Log
	Logger *slog.Logger
}

func (s Sink) Emit(e account.Event) {
	logger := s.Logger
	if logger == nil {
		logger = slog.Default()
	}

	rec, err := s.Log.Append(context.Background(), e)
	if err != nil {
		logger.Error("audit append failed", "event", string(e.Type), "account", e.Account.Hex(), "error", err)
		account.SlogSink{Logger: logger}.Emit(e)
		return
	}

	logger.Info(string(e.Type), "account", e.Account.Hex(), "audit_seq", rec.Seq, "audit_cid", rec.CID)
}
