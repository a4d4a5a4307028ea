// Package validation decodes and validates generation request bodies.
// A body that passes validation is converted into one of the
// processing.Request variants; nothing downstream sees the raw wire shape.
package validation

import (
	"encoding/json"
	stderrors "errors"
	"fmt"
	"io"
	"net/http"
	"reflect"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/teilomillet/luagen/server/processing"
)

var validate = validator.New()

func init() {
	validate.RegisterTagNameFunc(func(fld reflect.StructField) string {
		name := strings.SplitN(fld.Tag.Get("json"), ",", 2)[0]
		if name == "-" {
			return ""
		}
		return name
	})
}

// GenerationBody is the wire form of a generation request. Strings are
// trimmed and the mode defaulted before the rules below are applied, so
// "required" also rejects whitespace-only values.
type GenerationBody struct {
	Mode        string `json:"mode" validate:"oneof=generate fix update"`
	Prompt      string `json:"prompt" validate:"required_unless=Mode fix"`
	ExistingLua string `json:"existingLua" validate:"required_if=Mode fix"`
	Issue       string `json:"issue" validate:"required_if=Mode fix"`
}

// Error describes why a body was rejected. Field is the JSON name of the
// offending field, empty when the body as a whole is malformed.
type Error struct {
	Field   string
	Message string
}

func (e *Error) Error() string {
	return e.Message
}

func missing(field string) *Error {
	return &Error{Field: field, Message: "Missing " + field}
}

// wireBody defers typing so a field of the wrong JSON type only matters when
// the resolved mode reads it.
type wireBody struct {
	Mode        json.RawMessage `json:"mode"`
	Prompt      json.RawMessage `json:"prompt"`
	ExistingLua json.RawMessage `json:"existingLua"`
	Issue       json.RawMessage `json:"issue"`
}

// text returns the string held by raw. Absent and null values are empty;
// ok is false for any other non-string value.
func text(raw json.RawMessage) (s string, ok bool) {
	if len(raw) == 0 {
		return "", true
	}
	if err := json.Unmarshal(raw, &s); err != nil {
		return "", false
	}
	return s, true
}

// ParseRequest decodes r and returns the validated request variant. An empty
// body is treated as an empty object. A field holding a non-string value is
// treated as empty, so it is only rejected when the mode requires it. A
// non-string mode is unsupported. A body cut off by http.MaxBytesReader
// returns the *http.MaxBytesError unchanged.
func ParseRequest(r io.Reader) (processing.Request, error) {
	var wire wireBody
	if err := json.NewDecoder(r).Decode(&wire); err != nil && !stderrors.Is(err, io.EOF) {
		var maxErr *http.MaxBytesError
		if stderrors.As(err, &maxErr) {
			return nil, err
		}
		return nil, &Error{Message: "Invalid request body"}
	}

	mode, ok := text(wire.Mode)
	if !ok {
		return nil, &Error{Field: "mode", Message: "Unsupported mode: " + string(wire.Mode)}
	}
	body := GenerationBody{Mode: mode}
	body.Prompt, _ = text(wire.Prompt)
	body.ExistingLua, _ = text(wire.ExistingLua)
	body.Issue, _ = text(wire.Issue)

	return Validate(body)
}

// Validate normalizes body and converts it into a processing.Request.
func Validate(body GenerationBody) (processing.Request, error) {
	body.Mode = strings.TrimSpace(body.Mode)
	if body.Mode == "" {
		body.Mode = string(processing.ModeGenerate)
	}
	body.Prompt = strings.TrimSpace(body.Prompt)
	body.ExistingLua = strings.TrimSpace(body.ExistingLua)
	body.Issue = strings.TrimSpace(body.Issue)

	if err := validate.Struct(body); err != nil {
		var verrs validator.ValidationErrors
		if !stderrors.As(err, &verrs) || len(verrs) == 0 {
			return nil, fmt.Errorf("validate request: %w", err)
		}
		first := verrs[0]
		if first.Field() == "mode" {
			return nil, &Error{Field: "mode", Message: "Unsupported mode: " + body.Mode}
		}
		return nil, missing(first.Field())
	}

	switch processing.Mode(body.Mode) {
	case processing.ModeGenerate:
		return processing.GenerateRequest{Prompt: body.Prompt}, nil
	case processing.ModeFix:
		return processing.FixRequest{ExistingLua: body.ExistingLua, Issue: body.Issue}, nil
	case processing.ModeUpdate:
		return processing.UpdateRequest{Prompt: body.Prompt, ExistingLua: body.ExistingLua}, nil
	default:
		return nil, &Error{Field: "mode", Message: "Unsupported mode: " + body.Mode}
	}
}
