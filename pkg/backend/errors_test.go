package backend

import (
	stderrors "errors"
	"fmt"
	"testing"

	"github.com/pkg/errors"
)

var errCause = stderrors.New("disk on fire")

func TestClassification(t *testing.T) {
	tmp := Temporary(errCause)
	if !IsTemporary(tmp) || IsPermanent(tmp) {
		t.Errorf("expected temporary classification, got %v", tmp)
	}
	if !stderrors.Is(tmp, errCause) {
		t.Errorf("expected cause to be reachable through errors.Is")
	}
	if errors.Cause(tmp) != errCause {
		t.Errorf("expected errors.Cause to return the original error")
	}

	perm := Permanent(errCause)
	if !IsPermanent(perm) || IsTemporary(perm) {
		t.Errorf("expected permanent classification, got %v", perm)
	}
	if !stderrors.Is(perm, errCause) {
		t.Errorf("expected cause to be reachable through errors.Is")
	}
}

func TestClassificationIsSticky(t *testing.T) {
	tmp := Temporary(errCause)
	if got := Permanent(tmp); !IsTemporary(got) || IsPermanent(got) {
		t.Errorf("expected temporary to stay temporary, got %v", got)
	}

	wrapped := fmt.Errorf("commit: %w", Permanent(errCause))
	if !IsPermanent(wrapped) {
		t.Errorf("expected classification to survive fmt.Errorf wrapping")
	}
	if got := Temporary(wrapped); IsTemporary(got) {
		t.Errorf("expected permanent to stay permanent, got %v", got)
	}
}

func TestNilErrors(t *testing.T) {
	if Temporary(nil) != nil {
		t.Errorf("expected Temporary(nil) to be nil")
	}
	if Permanent(nil) != nil {
		t.Errorf("expected Permanent(nil) to be nil")
	}
	if IsTemporary(nil) || IsPermanent(nil) {
		t.Errorf("expected nil to carry no classification")
	}
}

func TestPermanentf(t *testing.T) {
	err := Permanentf("key %q already exists", "k")
	if !IsPermanent(err) {
		t.Fatalf("expected permanent error")
	}
	if err.Error() != `permanent backend failure: key "k" already exists` {
		t.Errorf("unexpected message: %s", err.Error())
	}
}

func TestPermanentfWrapsCause(t *testing.T) {
	errExists := stderrors.New("exists")
	err := Permanentf("insert %q: %w", "k", errExists)
	if !IsPermanent(err) {
		t.Fatalf("expected permanent error")
	}
	if !stderrors.Is(err, errExists) {
		t.Errorf("expected wrapped cause to be reachable, got %v", err)
	}
	if err.Error() != `permanent backend failure: insert "k": exists` {
		t.Errorf("unexpected message: %s", err.Error())
	}
}
