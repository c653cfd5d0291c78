/*
Package req provides helper functions for HTTP request parsing and data binding.

JSON bodies are decoded strictly (unknown fields and trailing data are rejected) and then
checked against their `validate` struct tags.
*/
package req

import (
	"encoding/json"
	"net/http"
	"strings"

	"github.com/go-playground/validator/v10"

	"textrelay/internal/pkg/errs"
)

// MaxBodySize bounds every JSON request body.
const MaxBodySize int64 = 64 << 10 // 64 KB

var validate = validator.New()

// BindJSON decodes the JSON body of r into dst and validates it.
func BindJSON(w http.ResponseWriter, r *http.Request, dst any) *errs.CustomError {
	contentType := r.Header.Get("Content-Type")
	if !strings.HasPrefix(contentType, "application/json") {
		return errs.NewError(errs.ErrUnsupportedMediaType)
	}

	r.Body = http.MaxBytesReader(w, r.Body, MaxBodySize)

	decoder := json.NewDecoder(r.Body)
	decoder.DisallowUnknownFields()

	if err := decoder.Decode(dst); err != nil {
		return errs.NewError(errs.ErrInvalidJSONFormat)
	}

	if decoder.More() {
		return errs.NewError(errs.ErrExtraContentInBody)
	}

	if err := validate.Struct(dst); err != nil {
		return errs.NewError(errs.ErrInvalidParams)
	}

	return nil
}
