package validators

import (
	"net/http"
	"strconv"
	"strings"

	pkgerrors "github.com/angelmondragon/commerce-core/pkg/errors"
	"github.com/angelmondragon/commerce-core/pkg/pagination"
)

// maxCursorLength is far above any cursor the API issues.
const maxCursorLength = 256

// ParseQueryInt reads an optional integer bounded to [lo, hi].
func ParseQueryInt(r *http.Request, key string, fallback, lo, hi int) (int, error) {
	raw := strings.TrimSpace(r.URL.Query().Get(key))
	if raw == "" {
		return fallback, nil
	}
	value, err := strconv.Atoi(raw)
	if err != nil {
		return 0, pkgerrors.New(pkgerrors.CodeValidation, "query parameter must be numeric").WithDetail("field", key)
	}
	if value < lo || value > hi {
		return 0, pkgerrors.New(pkgerrors.CodeValidation, "query parameter out of range").
			WithDetails(map[string]any{"field": key, "min": lo, "max": hi})
	}
	return value, nil
}

// PageParams reads ?limit= and ?cursor= for a keyset-paginated list.
func PageParams(r *http.Request) (pagination.Params, error) {
	limit, err := ParseQueryInt(r, "limit", pagination.DefaultLimit, 1, pagination.MaxLimit)
	if err != nil {
		return pagination.Params{}, err
	}
	cursor := strings.TrimSpace(r.URL.Query().Get("cursor"))
	if len(cursor) > maxCursorLength {
		return pagination.Params{}, pkgerrors.New(pkgerrors.CodeValidation, "cursor too long").WithDetail("field", "cursor")
	}
	return pagination.Params{Limit: limit, Cursor: cursor}, nil
}

// ParseQueryEnum upper-cases an optional filter value and hands it to parse.
// A missing parameter yields nil.
func ParseQueryEnum[T any](r *http.Request, key string, parse func(string) (T, error)) (*T, error) {
	raw := strings.ToUpper(strings.TrimSpace(r.URL.Query().Get(key)))
	if raw == "" {
		return nil, nil
	}
	value, err := parse(raw)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid query filter").
			WithDetails(map[string]any{"field": key, "value": raw})
	}
	return &value, nil
}

// QueryRef reads an opaque reference filter, bounded to the column width.
func QueryRef(r *http.Request, key string) string {
	return SanitizeString(r.URL.Query().Get(key), MaxRefLength)
}
