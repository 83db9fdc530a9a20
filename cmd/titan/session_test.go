package main

import (
	"bytes"
	"strings"
	"testing"

	"github.com/jankotek/titan/pkg/store/memstore"
	"github.com/jankotek/titan/pkg/transaction"
)

func newTestSession(t *testing.T) (*session, *bytes.Buffer, *memstore.Store) {
	t.Helper()
	st := memstore.New()
	var out bytes.Buffer
	return newSession(transaction.NewManager(st), &out), &out, st
}

// run executes each line and returns the output of the last one
func run(s *session, out *bytes.Buffer, lines ...string) string {
	for _, line := range lines {
		out.Reset()
		s.execute(line)
	}
	return out.String()
}

func TestSessionImplicitTransactions(t *testing.T) {
	s, out, st := newTestSession(t)

	if got := run(s, out, "PUT users alice hello world"); got != "Value stored\n" {
		t.Errorf("unexpected PUT output %q", got)
	}
	if st.CommitCount() != 1 {
		t.Errorf("expected 1 commit, got %d", st.CommitCount())
	}
	if got := run(s, out, "GET users alice"); got != "hello world\n" {
		t.Errorf("unexpected GET output %q", got)
	}
	if got := run(s, out, "delete users alice", "get users alice"); got != "Key not found\n" {
		t.Errorf("expected deleted key to be gone, got %q", got)
	}
}

func TestSessionExplicitTransaction(t *testing.T) {
	s, out, st := newTestSession(t)

	if got := run(s, out, "BEGIN"); !strings.HasPrefix(got, "Started transaction ") {
		t.Errorf("unexpected BEGIN output %q", got)
	}
	if !s.inTransaction() {
		t.Fatal("expected an open transaction")
	}
	if got := run(s, out, "BEGIN"); !strings.Contains(got, "already in progress") {
		t.Errorf("expected nested BEGIN to fail, got %q", got)
	}

	run(s, out, "PUT t a 1", "PUT t b 2")
	if got := run(s, out, "GET t a"); got != "1\n" {
		t.Errorf("expected read-your-writes, got %q", got)
	}
	if st.CommitCount() != 0 {
		t.Errorf("expected nothing committed yet, got %d commits", st.CommitCount())
	}

	if got := run(s, out, "COMMIT"); got != "Transaction committed\n" {
		t.Errorf("unexpected COMMIT output %q", got)
	}
	if s.inTransaction() {
		t.Error("expected transaction to be closed")
	}
	if got := run(s, out, "SCAN t a z"); got != "a: 1\nb: 2\n2 entries found\n" {
		t.Errorf("unexpected SCAN output %q", got)
	}
}

func TestSessionRollback(t *testing.T) {
	s, out, _ := newTestSession(t)

	run(s, out, "BEGIN", "PUT t a 1")
	if got := run(s, out, "ROLLBACK"); got != "Transaction rolled back\n" {
		t.Errorf("unexpected ROLLBACK output %q", got)
	}
	if got := run(s, out, "GET t a"); got != "Key not found\n" {
		t.Errorf("expected rolled back write to be gone, got %q", got)
	}
	if got := run(s, out, "COMMIT"); !strings.Contains(got, "no transaction in progress") {
		t.Errorf("expected COMMIT without BEGIN to fail, got %q", got)
	}
}

func TestSessionPutNX(t *testing.T) {
	s, out, _ := newTestSession(t)

	run(s, out, "PUTNX t a 1")
	got := run(s, out, "PUTNX t a 2")
	if !strings.Contains(got, "permanent failure") || !strings.Contains(got, "key already exists") {
		t.Errorf("expected a permanent key-exists failure, got %q", got)
	}
	if got := run(s, out, "GET t a"); got != "1\n" {
		t.Errorf("expected original value to survive, got %q", got)
	}
}

func TestSessionScanLimit(t *testing.T) {
	s, out, _ := newTestSession(t)

	run(s, out, "PUT t a 1", "PUT t b 2", "PUT t c 3")
	if got := run(s, out, "SCAN t a z 2"); got != "a: 1\nb: 2\n2 entries found\n" {
		t.Errorf("unexpected limited SCAN output %q", got)
	}
	if got := run(s, out, "SCAN t a z -1"); !strings.Contains(got, "invalid limit") {
		t.Errorf("expected negative limit to be rejected, got %q", got)
	}
}

func TestSessionUsageErrors(t *testing.T) {
	s, out, _ := newTestSession(t)

	tests := []struct {
		line     string
		expected string
	}{
		{"GET t", "usage: GET table key"},
		{"PUT t k", "usage: PUT table key value"},
		{"PUTNX t", "usage: PUTNX table key value"},
		{"DELETE t", "usage: DELETE table key"},
		{"SCAN t a", "usage: SCAN table start end [limit]"},
		{"FROB", "Unknown command: FROB"},
		{".frob", "Unknown command: .frob"},
	}

	for _, tc := range tests {
		t.Run(tc.line, func(t *testing.T) {
			if got := run(s, out, tc.line); !strings.Contains(got, tc.expected) {
				t.Errorf("expected %q in output, got %q", tc.expected, got)
			}
		})
	}
}

func TestSessionStatsAndExit(t *testing.T) {
	s, out, _ := newTestSession(t)

	run(s, out, "PUT t a 1", "BEGIN")
	got := run(s, out, ".stats")
	for _, want := range []string{"Started: 2", "Committed: 1", "Active: 1", "insert: 1 (avg", "delete: 0"} {
		if !strings.Contains(got, want) {
			t.Errorf("expected %q in stats, got %q", want, got)
		}
	}

	out.Reset()
	if !s.execute(".exit") {
		t.Error("expected .exit to end the session")
	}
	if s.inTransaction() {
		t.Error("expected .exit to roll back the open transaction")
	}
	if s.execute("") {
		t.Error("expected an empty line to be ignored")
	}
}

func TestPrompt(t *testing.T) {
	if got := prompt("", false); got != "titan> " {
		t.Errorf("unexpected prompt %q", got)
	}
	if got := prompt("/data", true); got != "titan:/data[TX]> " {
		t.Errorf("unexpected prompt %q", got)
	}
}
