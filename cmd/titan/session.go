package main

import (
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/jankotek/titan/pkg/backend"
	"github.com/jankotek/titan/pkg/store"
	"github.com/jankotek/titan/pkg/transaction"
)

const helpText = `
Titan transaction shell

Commands:
  .help                       - Show this help message
  .stats                      - Show transaction statistics
  .exit                       - Exit the program

  BEGIN                       - Begin a transaction
  COMMIT                      - Commit the current transaction
  ROLLBACK                    - Roll back the current transaction

  PUT table key value         - Store a key-value pair
  PUTNX table key value       - Store a key-value pair only if the key is absent
  GET table key               - Retrieve a value by key
  DELETE table key            - Delete a key
  SCAN table start end [n]    - List keys in [start, end), at most n of them

Outside BEGIN/COMMIT every command runs in its own transaction.
`

// session executes shell commands against a transaction manager. At most one
// explicit transaction is open at a time.
type session struct {
	mgr *transaction.Manager
	tx  *transaction.Tx
	out io.Writer
}

func newSession(mgr *transaction.Manager, out io.Writer) *session {
	return &session{mgr: mgr, out: out}
}

// inTransaction reports whether an explicit transaction is open
func (s *session) inTransaction() bool {
	return s.tx != nil
}

// execute runs one command line and reports whether the shell should exit
func (s *session) execute(line string) bool {
	parts := strings.Fields(line)
	if len(parts) == 0 {
		return false
	}

	cmd := strings.ToUpper(parts[0])
	args := parts[1:]

	if strings.HasPrefix(cmd, ".") {
		switch strings.ToLower(cmd) {
		case ".help":
			fmt.Fprint(s.out, helpText)
		case ".stats":
			s.printStats()
		case ".exit":
			s.close()
			fmt.Fprintln(s.out, "Goodbye!")
			return true
		default:
			fmt.Fprintf(s.out, "Unknown command: %s\n", parts[0])
		}
		return false
	}

	var err error
	switch cmd {
	case "BEGIN":
		err = s.begin()
	case "COMMIT":
		err = s.commit()
	case "ROLLBACK":
		err = s.rollback()
	case "GET":
		err = s.get(args)
	case "PUT":
		err = s.put(args, true)
	case "PUTNX":
		err = s.put(args, false)
	case "DELETE":
		err = s.del(args)
	case "SCAN":
		err = s.scan(args)
	default:
		fmt.Fprintf(s.out, "Unknown command: %s\n", parts[0])
		return false
	}

	if err != nil {
		fmt.Fprintf(s.out, "Error: %s\n", describe(err))
	}
	return false
}

// close rolls back an open transaction
func (s *session) close() {
	if s.tx != nil {
		s.tx.Rollback()
		s.tx = nil
	}
}

func (s *session) begin() error {
	if s.tx != nil {
		return errors.New("transaction already in progress")
	}
	s.tx = s.mgr.Begin()
	fmt.Fprintf(s.out, "Started transaction %s\n", s.tx.ID())
	return nil
}

func (s *session) commit() error {
	if s.tx == nil {
		return errors.New("no transaction in progress")
	}
	tx := s.tx
	s.tx = nil
	if err := tx.Commit(); err != nil {
		return err
	}
	fmt.Fprintln(s.out, "Transaction committed")
	return nil
}

func (s *session) rollback() error {
	if s.tx == nil {
		return errors.New("no transaction in progress")
	}
	tx := s.tx
	s.tx = nil
	if err := tx.Rollback(); err != nil {
		return err
	}
	fmt.Fprintln(s.out, "Transaction rolled back")
	return nil
}

// run calls fn inside the open transaction, or inside a fresh one that is
// committed when fn succeeds and rolled back when it fails
func (s *session) run(fn func(tx transaction.Transaction) error) error {
	if s.tx != nil {
		return fn(s.tx)
	}

	tx := s.mgr.Begin()
	if err := fn(tx); err != nil {
		tx.Rollback()
		return err
	}
	return tx.Commit()
}

func (s *session) get(args []string) error {
	if len(args) != 2 {
		return errors.New("usage: GET table key")
	}
	return s.run(func(tx transaction.Transaction) error {
		value, err := tx.Get(args[0], []byte(args[1]))
		if errors.Is(err, store.ErrKeyNotFound) {
			fmt.Fprintln(s.out, "Key not found")
			return nil
		}
		if err != nil {
			return err
		}
		fmt.Fprintf(s.out, "%s\n", value)
		return nil
	})
}

func (s *session) put(args []string, allowOverwrite bool) error {
	if len(args) < 3 {
		if allowOverwrite {
			return errors.New("usage: PUT table key value")
		}
		return errors.New("usage: PUTNX table key value")
	}
	value := strings.Join(args[2:], " ")
	err := s.run(func(tx transaction.Transaction) error {
		return tx.Insert(args[0], []byte(args[1]), []byte(value), allowOverwrite)
	})
	if err != nil {
		return err
	}
	if s.tx != nil {
		fmt.Fprintln(s.out, "Value stored in transaction (will be visible after commit)")
	} else {
		fmt.Fprintln(s.out, "Value stored")
	}
	return nil
}

func (s *session) del(args []string) error {
	if len(args) != 2 {
		return errors.New("usage: DELETE table key")
	}
	err := s.run(func(tx transaction.Transaction) error {
		return tx.Delete(args[0], []byte(args[1]))
	})
	if err != nil {
		return err
	}
	if s.tx != nil {
		fmt.Fprintln(s.out, "Key deleted in transaction (will be applied after commit)")
	} else {
		fmt.Fprintln(s.out, "Key deleted")
	}
	return nil
}

func (s *session) scan(args []string) error {
	if len(args) != 3 && len(args) != 4 {
		return errors.New("usage: SCAN table start end [limit]")
	}
	limit := transaction.NoLimit
	if len(args) == 4 {
		n, err := strconv.Atoi(args[3])
		if err != nil || n < 0 {
			return fmt.Errorf("invalid limit %q", args[3])
		}
		limit = n
	}

	return s.run(func(tx transaction.Transaction) error {
		entries, err := tx.GetSlice(args[0], transaction.Limit(limit), []byte(args[1]), []byte(args[2]))
		if err != nil {
			return err
		}
		printEntries(s.out, entries)
		return nil
	})
}

func (s *session) printStats() {
	stats := s.mgr.GetTransactionStats()
	fmt.Fprintf(s.out, "Store: %s\n", s.mgr.Store())
	fmt.Fprintln(s.out, "Transactions:")
	fmt.Fprintf(s.out, "  Started: %d\n", stats["tx_started"])
	fmt.Fprintf(s.out, "  Committed: %d\n", stats["tx_committed"])
	fmt.Fprintf(s.out, "  Rolled back: %d\n", stats["tx_rolled_back"])
	fmt.Fprintf(s.out, "  Failed: %d\n", stats["tx_failed"])
	fmt.Fprintf(s.out, "  Active: %d\n", stats["tx_active"])

	fmt.Fprintln(s.out, "Operations:")
	for _, op := range []string{"get", "insert", "delete", "scan"} {
		count := getUint64(stats, op+"_ops")
		if latency, ok := stats[op+"_latency"].(map[string]interface{}); ok {
			avg := getUint64(latency, "avg_ns")
			fmt.Fprintf(s.out, "  %s: %d (avg %.3f ms)\n", op, count, float64(avg)/1e6)
		} else {
			fmt.Fprintf(s.out, "  %s: %d\n", op, count)
		}
	}
	fmt.Fprintf(s.out, "  Bytes read: %d\n", getUint64(stats, "total_bytes_read"))
	fmt.Fprintf(s.out, "  Bytes written: %d\n", getUint64(stats, "total_bytes_written"))
}

func getUint64(m map[string]interface{}, key string) uint64 {
	if v, ok := m[key].(uint64); ok {
		return v
	}
	return 0
}

func printEntries(out io.Writer, entries []transaction.KeyValueEntry) {
	for _, e := range entries {
		fmt.Fprintf(out, "%s: %s\n", e.Key, e.Value)
	}
	fmt.Fprintf(out, "%d entries found\n", len(entries))
}

// describe prefixes an error with its retry classification
func describe(err error) string {
	switch {
	case backend.IsTemporary(err):
		return "temporary failure, retry: " + err.Error()
	case backend.IsPermanent(err):
		return "permanent failure: " + err.Error()
	default:
		return err.Error()
	}
}
