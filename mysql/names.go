package mysql

import (
	"fmt"
	"regexp"
	"strings"
)

// maxIdentifierLen is the MySQL limit for schema and table names.
const maxIdentifierLen = 64

var identifierPattern = regexp.MustCompile(`^[A-Za-z0-9_]+$`)

// sanitizeTableName accepts "table" or "schema.table" made of ASCII letters,
// digits and underscores. The result is interpolated into SQL text.
func sanitizeTableName(name string) (string, error) {
	if name == "" {
		return "", ErrTableNameRequired
	}

	parts := strings.Split(name, ".")
	if len(parts) > 2 {
		return "", fmt.Errorf("%w: %s", ErrInvalidTableName, name)
	}
	for _, part := range parts {
		if len(part) > maxIdentifierLen || !identifierPattern.MatchString(part) {
			return "", fmt.Errorf("%w: %s", ErrInvalidTableName, name)
		}
	}

	return name, nil
}
