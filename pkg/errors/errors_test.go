package errors

import (
	"errors"
	"fmt"
	"strings"
	"testing"
)

func TestError_IsMatchesByCode(t *testing.T) {
	err := InsufficientSources(0, 1)
	if !errors.Is(err, ErrInsufficientSources) {
		t.Error("Expected errors.Is to match ErrInsufficientSources")
	}
	if errors.Is(err, ErrComparisonFailed) {
		t.Error("Codes differ, must not match")
	}

	wrapped := fmt.Errorf("compare: %w", err)
	if !IsCode(wrapped, CodeInsufficientSources) {
		t.Error("IsCode must see through fmt wrapping")
	}
}

func TestError_MessageIsStable(t *testing.T) {
	err := ComparisonFailed(1, 2, errors.New("boom"))
	want := "[E102] comparison failed (left=1, right=2): boom"
	for i := 0; i < 5; i++ {
		if got := err.Error(); got != want {
			t.Fatalf("Expected %q, got %q", want, got)
		}
	}
}

func TestWrap_Nil(t *testing.T) {
	if Wrap(nil, CodeIOFailed, "x") != nil {
		t.Error("Wrap(nil) must return nil")
	}
}

func TestGetCode_Unknown(t *testing.T) {
	if GetCode(errors.New("plain")) != CodeUnknown {
		t.Error("Expected CodeUnknown for plain errors")
	}
	if !IsRetryable(IOFailed("a.csv", errors.New("eof"))) {
		t.Error("IO failures are retryable")
	}
}

func TestMultiError(t *testing.T) {
	var m MultiError
	if m.Combined() != nil {
		t.Error("Empty MultiError must combine to nil")
	}
	m.Add(nil)
	m.Add(errors.New("a"))
	if m.Combined().Error() != "a" {
		t.Error("Single error must be returned as-is")
	}
	m.Add(errors.New("b"))
	if !strings.Contains(m.Error(), "2 errors occurred") {
		t.Errorf("Unexpected message: %s", m.Error())
	}
}
