package store

import (
	"fmt"
	"regexp"
	"strings"
	"unicode"
	"unicode/utf8"
)

// ReservedField is stripped from stored documents and carries the record key.
const ReservedField = "key"

const maxNameLen = 64

var tableRe = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_]*$`)

// ValidTable checks that name can be used as a table name.
func ValidTable(name string) error {
	if len(name) > maxNameLen || !tableRe.MatchString(name) || strings.HasPrefix(strings.ToLower(name), "sqlite_") {
		return fmt.Errorf("%w: table %q", ErrInvalidName, name)
	}
	return nil
}

// ValidKey checks that key can address a record. Keys are never empty.
func ValidKey(key string) error {
	if key == "" {
		return fmt.Errorf("%w: empty key", ErrInvalidName)
	}
	return nil
}

// ValidField checks that name can be used as a top-level document field.
// Double quotes, backslashes and control characters are rejected so the
// name can be embedded in a quoted JSON path label.
func ValidField(name string) error {
	if name == "" || name == ReservedField || !utf8.ValidString(name) {
		return fmt.Errorf("%w: field %q", ErrInvalidName, name)
	}
	for _, r := range name {
		if r == '"' || r == '\\' || unicode.IsControl(r) {
			return fmt.Errorf("%w: field %q", ErrInvalidName, name)
		}
	}
	return nil
}

func quoteTable(name string) (string, error) {
	if err := ValidTable(name); err != nil {
		return "", err
	}
	return `"` + name + `"`, nil
}

// sqlPath returns the SQLite JSON path of a validated top-level field.
func sqlPath(field string) string {
	return `$."` + field + `"`
}

// gjsonPath escapes every character gjson and sjson could read as path syntax.
func gjsonPath(field string) string {
	var b strings.Builder
	for _, r := range field {
		if !unicode.IsLetter(r) && !unicode.IsDigit(r) && r != '_' {
			b.WriteByte('\\')
		}
		b.WriteRune(r)
	}
	return b.String()
}
