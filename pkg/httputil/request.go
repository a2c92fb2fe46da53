package httputil

import (
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"
	"strings"

	"github.com/gorilla/mux"
)

const (
	defaultPerPage = 25
	maxPerPage     = 100
)

// Page is a 1-based page request
type Page struct {
	Number  int
	PerPage int
}

// Offset returns the SQL offset for the page
func (p Page) Offset() uint64 {
	return uint64((p.Number - 1) * p.PerPage)
}

// Limit returns the SQL limit for the page
func (p Page) Limit() uint64 {
	return uint64(p.PerPage)
}

// ParseJSON decodes JSON from the request body into the destination
func ParseJSON(r *http.Request, dest interface{}) error {
	decoder := json.NewDecoder(r.Body)
	decoder.DisallowUnknownFields()
	if err := decoder.Decode(dest); err != nil {
		return fmt.Errorf("invalid JSON: %w", err)
	}
	return nil
}

// ParseJSONOrError decodes JSON and writes a 400 on failure
func ParseJSONOrError(w http.ResponseWriter, r *http.Request, dest interface{}) bool {
	if err := ParseJSON(r, dest); err != nil {
		WriteBadRequest(w, err.Error())
		return false
	}
	return true
}

// ParsePathInt64 extracts and parses an int64 path parameter
func ParsePathInt64(r *http.Request, key string) (int64, error) {
	str := mux.Vars(r)[key]
	if str == "" {
		return 0, fmt.Errorf("missing path parameter: %s", key)
	}
	val, err := strconv.ParseInt(str, 10, 64)
	if err != nil || val <= 0 {
		return 0, fmt.Errorf("invalid id for %s: %s", key, str)
	}
	return val, nil
}

// ParsePathInt64OrError extracts an int64 path parameter and writes a 400 on failure
func ParsePathInt64OrError(w http.ResponseWriter, r *http.Request, key string) (int64, bool) {
	val, err := ParsePathInt64(r, key)
	if err != nil {
		WriteBadRequest(w, err.Error())
		return 0, false
	}
	return val, true
}

// ParsePathString extracts a string path parameter
func ParsePathString(r *http.Request, key string) (string, error) {
	str := mux.Vars(r)[key]
	if str == "" {
		return "", fmt.Errorf("missing path parameter: %s", key)
	}
	return str, nil
}

// ParseQueryInt64 extracts and parses an int64 query parameter
func ParseQueryInt64(r *http.Request, key string, defaultVal int64) (int64, error) {
	str := r.URL.Query().Get(key)
	if str == "" {
		return defaultVal, nil
	}
	val, err := strconv.ParseInt(str, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("invalid integer for query param %s: %s", key, str)
	}
	return val, nil
}

// ParseQueryString extracts a trimmed string query parameter
func ParseQueryString(r *http.Request, key string, defaultVal string) string {
	val := strings.TrimSpace(r.URL.Query().Get(key))
	if val == "" {
		return defaultVal
	}
	return val
}

// ParsePage reads page/perPage query parameters, clamping perPage to a sane range
func ParsePage(r *http.Request) (Page, error) {
	page := Page{Number: 1, PerPage: defaultPerPage}

	if str := r.URL.Query().Get("page"); str != "" {
		n, err := strconv.Atoi(str)
		if err != nil || n < 1 {
			return Page{}, fmt.Errorf("invalid page: %s", str)
		}
		page.Number = n
	}

	if str := r.URL.Query().Get("perPage"); str != "" {
		n, err := strconv.Atoi(str)
		if err != nil || n < 1 {
			return Page{}, fmt.Errorf("invalid perPage: %s", str)
		}
		if n > maxPerPage {
			n = maxPerPage
		}
		page.PerPage = n
	}

	return page, nil
}
