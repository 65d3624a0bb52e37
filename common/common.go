package common

import (
	"errors"
	"fmt"
	"net/url"
	"sort"
	"strings"
)

// Public errors shared across packages
var (
	// ErrFunctionNotSupported is returned by unified methods a venue cannot
	// service
	ErrFunctionNotSupported = errors.New("unsupported wrapper function")
	// ErrNotYetImplemented is a placeholder for scaffolded functionality
	ErrNotYetImplemented = errors.New("not yet implemented")
	// ErrNilPointer defines an error for a nil pointer dereference guard
	ErrNilPointer = errors.New("nil pointer")
)

// EncodeURLValues appends alphabetized, percent-encoded values onto a path.
// Used for general URL composition.
func EncodeURLValues(urlPath string, values url.Values) string {
	u := urlPath
	if len(values) > 0 {
		u += "?" + values.Encode()
	}
	return u
}

// SortedRawQuery joins values as `k=v&…` in alphabetical key order without
// percent-encoding. Signature dialects in the Binance family, LBank and
// Pionex sign this exact form, so the composed URL must reuse the returned
// string verbatim rather than re-encoding.
func SortedRawQuery(values url.Values) string {
	keys := make([]string, 0, len(values))
	for k := range values {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	var b strings.Builder
	for _, k := range keys {
		for _, v := range values[k] {
			if b.Len() > 0 {
				b.WriteByte('&')
			}
			b.WriteString(k)
			b.WriteByte('=')
			b.WriteString(v)
		}
	}
	return b.String()
}

// GetURIPath strips any query or fragment from a URI and returns the bare
// path component. Kraken and Bitstamp sign over this form.
func GetURIPath(uri string) string {
	u, err := url.Parse(uri)
	if err != nil {
		if idx := strings.Index(uri, "?"); idx != -1 {
			return uri[:idx]
		}
		return uri
	}
	return u.Path
}

// InArray checks if a string is contained within a slice
func InArray(needle string, haystack []string) bool {
	for x := range haystack {
		if haystack[x] == needle {
			return true
		}
	}
	return false
}

// FmtError prefixes an error with the owning venue name so multi-venue
// callers can attribute failures
func FmtError(venue string, err error) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("%s: %w", venue, err)
}
