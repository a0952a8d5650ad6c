package mysql

import (
	"errors"
	"strings"
	"testing"
)

func TestSanitizeTableName(t *testing.T) {
	valid := []string{"job_messages", "queue.job_messages", "JOBS_1", strings.Repeat("a", maxIdentifierLen)}
	for _, name := range valid {
		if _, err := sanitizeTableName(name); err != nil {
			t.Fatalf("expected valid name %q: %v", name, err)
		}
	}

	invalid := []string{
		"jobs;drop",
		"job-messages",
		"queue..jobs",
		"queue.jobs;",
		"a.b.c",
		".jobs",
		strings.Repeat("a", maxIdentifierLen+1),
	}
	for _, name := range invalid {
		if _, err := sanitizeTableName(name); !errors.Is(err, ErrInvalidTableName) {
			t.Fatalf("name %q: err = %v, want ErrInvalidTableName", name, err)
		}
	}

	if _, err := sanitizeTableName(""); !errors.Is(err, ErrTableNameRequired) {
		t.Fatalf("empty name: err = %v, want ErrTableNameRequired", err)
	}
}
