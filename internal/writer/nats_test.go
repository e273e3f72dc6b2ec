// Auditwal - Durable Audit Journal and Delivery
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/auditwal

package writer

import (
	"context"
	"testing"
	"time"

	"github.com/nats-io/nats.go/jetstream"
)

func TestNATSWriter_EmbeddedPublishAndDedup(t *testing.T) {
	if testing.Short() {
		t.Skip("embedded NATS server test")
	}

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	w, err := NewNATSWriter(ctx, NATSConfig{
		Embedded:      true,
		StoreDir:      t.TempDir(),
		SubjectPrefix: "audit.test",
		Stream:        "AUDIT_TEST",
	})
	if err != nil {
		t.Fatalf("NewNATSWriter() error = %v", err)
	}
	defer w.Close()

	if !w.Connected() {
		t.Fatal("Connected() = false")
	}

	recs := testRecords("c1", "c2")
	code := 500
	recs[1].Status = "error"
	recs[1].HTTPCode = &code

	if err := w.WriteBatch(ctx, recs); err != nil {
		t.Fatalf("WriteBatch() error = %v", err)
	}
	// Same correlation IDs inside the duplicate window are dropped.
	if err := w.WriteBatch(ctx, recs); err != nil {
		t.Fatalf("replayed WriteBatch() error = %v", err)
	}

	js, err := jetstream.New(w.conn)
	if err != nil {
		t.Fatalf("jetstream.New() error = %v", err)
	}
	stream, err := js.Stream(ctx, "AUDIT_TEST")
	if err != nil {
		t.Fatalf("Stream() error = %v", err)
	}
	info, err := stream.Info(ctx)
	if err != nil {
		t.Fatalf("Info() error = %v", err)
	}
	if info.State.Msgs != 2 {
		t.Errorf("stream messages = %d, want 2", info.State.Msgs)
	}

	msg, err := stream.GetLastMsgForSubject(ctx, w.Subject("error"))
	if err != nil {
		t.Fatalf("GetLastMsgForSubject(error) error = %v", err)
	}
	if got := msg.Header.Get("Nats-Msg-Id"); got != "c2" {
		t.Errorf("Nats-Msg-Id = %q, want c2", got)
	}
}

func TestNATSWriter_RequiresURL(t *testing.T) {
	if _, err := NewNATSWriter(context.Background(), NATSConfig{}); err == nil {
		t.Error("NewNATSWriter() without url succeeded")
	}
}

func TestNATSWriter_EmbeddedRequiresStoreDir(t *testing.T) {
	if _, err := NewNATSWriter(context.Background(), NATSConfig{Embedded: true}); err == nil {
		t.Error("embedded writer without store dir succeeded")
	}
}
