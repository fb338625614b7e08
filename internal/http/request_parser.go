// Package http provides the JSON API over the settlement service.
//
// This file implements utilities for decoding request bodies and query
// parameters shared by the handlers.

package http

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"

	"golang.org/x/text/language"

	"travelai/internal/core"
)

// maxBodyBytes bounds every JSON request body.
const maxBodyBytes = 1 << 20

var errBadRequest = errors.New("bad request")

// DecodeJSON reads one JSON document from the request body into dst.
// Unknown fields are rejected.
func DecodeJSON(r *http.Request, dst any) error {
	dec := json.NewDecoder(io.LimitReader(r.Body, maxBodyBytes))
	dec.DisallowUnknownFields()
	if err := dec.Decode(dst); err != nil {
		// Malformed amounts surface as ErrInvalidAmount from ExactAmount.
		if errors.Is(err, core.ErrInvalidAmount) {
			return err
		}
		return fmt.Errorf("%w: %v", errBadRequest, err)
	}
	if dec.More() {
		return fmt.Errorf("%w: trailing data after JSON body", errBadRequest)
	}
	return nil
}

// ParseLocale returns the locale query parameter or the fallback, rejecting
// tags that are not valid BCP 47.
func ParseLocale(query url.Values, fallback string) (string, error) {
	locale := sanitizeInput(query.Get("locale"))
	if locale == "" {
		locale = fallback
	}
	if _, err := language.Parse(locale); err != nil {
		return "", fmt.Errorf("%w: %q", core.ErrInvalidLocale, locale)
	}
	return locale, nil
}

// ParseCategories reads a comma separated categories parameter. An absent
// parameter yields nil, meaning every category.
func ParseCategories(query url.Values) ([]core.Category, error) {
	raw := sanitizeInput(query.Get("categories"))
	if raw == "" {
		return nil, nil
	}
	var out []core.Category
	for _, part := range strings.Split(raw, ",") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		c, err := core.ParseCategory(part)
		if err != nil {
			return nil, err
		}
		out = append(out, c)
	}
	return out, nil
}

// sanitizeInput removes control characters and trims whitespace.
func sanitizeInput(s string) string {
	s = strings.TrimSpace(s)
	return strings.Map(func(r rune) rune {
		if r < 32 && r != 9 && r != 10 && r != 13 {
			return -1
		}
		return r
	}, s)
}

// requestError maps decode failures to a response builder.
func requestError(r *http.Request, err error, operation string) *JSONResponseBuilder {
	if errors.Is(err, errBadRequest) {
		return BadRequestError(err.Error())
	}
	return ServiceErrorResponse(r, err, operation)
}
