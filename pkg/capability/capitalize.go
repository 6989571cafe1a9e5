package capability

import (
	"context"
	"strings"
	"unicode"
	"unicode/utf8"
)

// Capitalize upper-cases the first rune of a string and lower-cases the rest.
// Served through Adapt, any item that is not a string fails.
type Capitalize struct{}

func (Capitalize) Handle(_ context.Context, item string) (string, error) {
	if item == "" {
		return item, nil
	}
	first, size := utf8.DecodeRuneInString(item)
	return string(unicode.ToUpper(first)) + strings.ToLower(item[size:]), nil
}

func (Capitalize) Rollback(context.Context, []string) error {
	return nil
}
