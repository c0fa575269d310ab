// Package http provides HTTP server and handler implementations.
//
// This file implements utilities for parsing request bodies. The dashboard
// posts JSON; plain form posts are accepted too so the endpoints can be
// driven with curl -d.

package http

import (
	"bytes"
	"encoding/json"
	"io"
	"net/http"
	"net/url"
	"strings"

	"github.com/shopspring/decimal"

	"kasharian/internal/core"
)

// maxBodyBytes bounds every request body.
const maxBodyBytes = 1 << 16

// RequestBodyParser handles different content types for request body parsing.
type RequestBodyParser struct {
	body        []byte
	contentType string
	jsonData    map[string]any
	formData    url.Values
	parsed      bool
	err         error
}

// NewRequestBodyParser creates a parser for the given request.
// It reads the body once and stores it for subsequent parsing.
func NewRequestBodyParser(w http.ResponseWriter, r *http.Request) *RequestBodyParser {
	p := &RequestBodyParser{
		contentType: r.Header.Get("Content-Type"),
	}
	if r.Body != nil {
		p.body, p.err = io.ReadAll(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	}
	return p
}

// Parse attempts to parse the body as JSON or form data. Numbers in JSON
// stay json.Number so amounts keep their exact decimal text.
func (p *RequestBodyParser) Parse() error {
	if p.parsed {
		return p.err
	}
	p.parsed = true

	if p.err != nil {
		p.err = errBadBody
		return p.err
	}

	body := bytes.TrimSpace(p.body)
	if len(body) == 0 {
		p.formData = url.Values{}
		return nil
	}

	if body[0] == '{' || strings.HasPrefix(p.contentType, "application/json") {
		dec := json.NewDecoder(bytes.NewReader(body))
		dec.UseNumber()
		p.jsonData = make(map[string]any)
		if err := dec.Decode(&p.jsonData); err != nil {
			p.jsonData = nil
			p.err = errBadBody
			return p.err
		}
		return nil
	}

	form, err := url.ParseQuery(string(body))
	if err != nil {
		p.err = errBadBody
		return p.err
	}
	p.formData = form
	return nil
}

// Get returns a sanitized string value from the parsed data (JSON or form).
func (p *RequestBodyParser) Get(key string) string {
	if p.jsonData != nil {
		if val, ok := p.jsonData[key]; ok {
			return sanitizeInput(stringValue(val))
		}
		return ""
	}
	if p.formData != nil {
		return sanitizeInput(p.formData.Get(key))
	}
	return ""
}

// Amount reads key as a finite decimal amount. Missing and malformed values
// give core.ErrInvalidAmount.
func (p *RequestBodyParser) Amount(key string) (decimal.Decimal, error) {
	if p.jsonData != nil {
		v, ok := p.jsonData[key]
		if !ok {
			return decimal.Zero, core.ErrInvalidAmount
		}
		return core.AmountFromJSON(v)
	}
	return core.ParseAmount(p.Get(key))
}

// stringValue converts a decoded JSON value to string.
func stringValue(v any) string {
	switch val := v.(type) {
	case string:
		return val
	case json.Number:
		return val.String()
	case bool:
		if val {
			return "true"
		}
		return "false"
	default:
		return ""
	}
}
