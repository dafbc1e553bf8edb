package logging

import (
	"errors"
	"log/slog"
	"strings"
	"testing"
)

func TestWithOperation(t *testing.T) {
	logger := slog.Default()
	result := WithOperation(logger, "test_operation")
	if result == nil {
		t.Error("WithOperation returned nil")
	}
}

func TestWithRunID(t *testing.T) {
	logger := slog.Default()
	result := WithRunID(logger, "run-123")
	if result == nil {
		t.Error("WithRunID returned nil")
	}
}

func TestOperationAttr(t *testing.T) {
	attr := Operation("test_op")
	if attr.Key != KeyOperation {
		t.Errorf("Operation key = %q, want %q", attr.Key, KeyOperation)
	}
	if attr.Value.String() != "test_op" {
		t.Errorf("Operation value = %q, want %q", attr.Value.String(), "test_op")
	}
}

func TestServiceAttr(t *testing.T) {
	attr := Service("gmail")
	if attr.Key != KeyService {
		t.Errorf("Service key = %q, want %q", attr.Key, KeyService)
	}
	if attr.Value.String() != "gmail" {
		t.Errorf("Service value = %q, want %q", attr.Value.String(), "gmail")
	}
}

func TestFolderAttr(t *testing.T) {
	attr := Folder("folder123")
	if attr.Key != KeyFolder {
		t.Errorf("Folder key = %q, want %q", attr.Key, KeyFolder)
	}
}

func TestTableAttr(t *testing.T) {
	attr := Table("p.d.t")
	if attr.Key != KeyTable {
		t.Errorf("Table key = %q, want %q", attr.Key, KeyTable)
	}
	if attr.Value.String() != "p.d.t" {
		t.Errorf("Table value = %q, want %q", attr.Value.String(), "p.d.t")
	}
}

func TestStatusAttr(t *testing.T) {
	attr := Status(StatusSuccess)
	if attr.Key != KeyStatus {
		t.Errorf("Status key = %q, want %q", attr.Key, KeyStatus)
	}
}

func TestErrAttr(t *testing.T) {
	t.Run("non-nil error", func(t *testing.T) {
		err := errors.New("something failed")
		attr := Err(err)
		if attr.Key != KeyError {
			t.Errorf("Err key = %q, want %q", attr.Key, KeyError)
		}
		if attr.Value.String() != "something failed" {
			t.Errorf("Err value = %q, want %q", attr.Value.String(), "something failed")
		}
	})

	t.Run("nil error", func(t *testing.T) {
		attr := Err(nil)
		// A nil error should produce an empty group that slog omits
		if attr.Key != "" {
			t.Errorf("Err(nil) key = %q, want empty", attr.Key)
		}
	})
}

func TestAnonymizeEmail(t *testing.T) {
	tests := []struct {
		name  string
		email string
	}{
		{name: "regular email", email: "alice@example.com"},
		{name: "sanitized identifier", email: "alice_example_com"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := AnonymizeEmail(tt.email)
			if !strings.HasPrefix(got, "user:") {
				t.Errorf("AnonymizeEmail(%q) = %q, want user: prefix", tt.email, got)
			}
			if strings.Contains(got, tt.email) {
				t.Errorf("AnonymizeEmail(%q) leaked the input", tt.email)
			}
		})
	}

	t.Run("deterministic", func(t *testing.T) {
		if AnonymizeEmail("a@b.c") != AnonymizeEmail("a@b.c") {
			t.Error("AnonymizeEmail is not deterministic")
		}
	})

	t.Run("empty input", func(t *testing.T) {
		if got := AnonymizeEmail(""); got != "" {
			t.Errorf("AnonymizeEmail(\"\") = %q, want empty", got)
		}
	})
}

func TestSanitizeToken(t *testing.T) {
	if got := SanitizeToken(""); got != "<empty>" {
		t.Errorf("SanitizeToken(\"\") = %q, want <empty>", got)
	}
	got := SanitizeToken("ya29.secret-token")
	if strings.Contains(got, "secret") {
		t.Errorf("SanitizeToken leaked token content: %q", got)
	}
	if !strings.Contains(got, "17") {
		t.Errorf("SanitizeToken should report length, got %q", got)
	}
}

func TestExtractDomain(t *testing.T) {
	tests := []struct {
		email string
		want  string
	}{
		{email: "alice@example.com", want: "example.com"},
		{email: "no-at-sign", want: ""},
		{email: "", want: ""},
		{email: "a@b@c", want: ""},
	}

	for _, tt := range tests {
		if got := ExtractDomain(tt.email); got != tt.want {
			t.Errorf("ExtractDomain(%q) = %q, want %q", tt.email, got, tt.want)
		}
	}
}
