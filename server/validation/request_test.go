package validation

import (
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/teilomillet/luagen/server/processing"
)

func TestParseRequest(t *testing.T) {
	tests := []struct {
		name      string
		body      string
		want      processing.Request
		wantField string
		wantMsg   string
	}{
		{
			name: "mode defaults to generate",
			body: `{"prompt":"  make a door  "}`,
			want: processing.GenerateRequest{Prompt: "make a door"},
		},
		{
			name: "explicit generate",
			body: `{"mode":"generate","prompt":"x"}`,
			want: processing.GenerateRequest{Prompt: "x"},
		},
		{
			name: "fix",
			body: `{"mode":"fix","existingLua":" print(1 ","issue":" syntax error "}`,
			want: processing.FixRequest{ExistingLua: "print(1", Issue: "syntax error"},
		},
		{
			name: "fix ignores prompt",
			body: `{"mode":"fix","existingLua":"a","issue":"b"}`,
			want: processing.FixRequest{ExistingLua: "a", Issue: "b"},
		},
		{
			name: "update without script",
			body: `{"mode":"update","prompt":"add sound"}`,
			want: processing.UpdateRequest{Prompt: "add sound"},
		},
		{
			name: "update with script",
			body: `{"mode":"update","prompt":"add sound","existingLua":"local x = 1"}`,
			want: processing.UpdateRequest{Prompt: "add sound", ExistingLua: "local x = 1"},
		},
		{
			name:      "missing prompt",
			body:      `{}`,
			wantField: "prompt",
			wantMsg:   "Missing prompt",
		},
		{
			name:      "blank prompt",
			body:      `{"prompt":"   \n"}`,
			wantField: "prompt",
			wantMsg:   "Missing prompt",
		},
		{
			name:      "update needs prompt",
			body:      `{"mode":"update","existingLua":"x"}`,
			wantField: "prompt",
			wantMsg:   "Missing prompt",
		},
		{
			name:      "fix with blank issue",
			body:      `{"mode":"fix","existingLua":"print(1)","issue":"  "}`,
			wantField: "issue",
			wantMsg:   "Missing issue",
		},
		{
			name:      "fix reports script first",
			body:      `{"mode":"fix"}`,
			wantField: "existingLua",
			wantMsg:   "Missing existingLua",
		},
		{
			name:      "unsupported mode",
			body:      `{"mode":"explain","prompt":"x"}`,
			wantField: "mode",
			wantMsg:   "Unsupported mode: explain",
		},
		{
			name: "wrong type on a field generate ignores",
			body: `{"prompt":"make a part","issue":5,"existingLua":{"a":1}}`,
			want: processing.GenerateRequest{Prompt: "make a part"},
		},
		{
			name: "wrong type on optional update script",
			body: `{"mode":"update","prompt":"add sound","existingLua":false}`,
			want: processing.UpdateRequest{Prompt: "add sound"},
		},
		{
			name: "fix ignores a non-string prompt",
			body: `{"mode":"fix","prompt":[1],"existingLua":"a","issue":"b"}`,
			want: processing.FixRequest{ExistingLua: "a", Issue: "b"},
		},
		{
			name:      "wrong type on a required fix field",
			body:      `{"mode":"fix","existingLua":"print(1)","issue":5}`,
			wantField: "issue",
			wantMsg:   "Missing issue",
		},
		{
			name:      "null prompt is missing",
			body:      `{"prompt":null}`,
			wantField: "prompt",
			wantMsg:   "Missing prompt",
		},
		{
			name:      "non-string mode",
			body:      `{"mode":3,"prompt":"x"}`,
			wantField: "mode",
			wantMsg:   "Unsupported mode: 3",
		},
		{
			name:      "wrong type is reported as missing",
			body:      `{"prompt":42}`,
			wantField: "prompt",
			wantMsg:   "Missing prompt",
		},
		{
			name:    "malformed json",
			body:    `{"prompt":`,
			wantMsg: "Invalid request body",
		},
		{
			name:    "not an object",
			body:    `["prompt"]`,
			wantMsg: "Invalid request body",
		},
		{
			name:      "empty body",
			body:      ``,
			wantField: "prompt",
			wantMsg:   "Missing prompt",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ParseRequest(strings.NewReader(tt.body))
			if tt.wantMsg == "" {
				require.NoError(t, err)
				assert.Equal(t, tt.want, got)
				return
			}

			require.Error(t, err)
			assert.Nil(t, got)
			var verr *Error
			require.ErrorAs(t, err, &verr)
			assert.Equal(t, tt.wantField, verr.Field)
			assert.Equal(t, tt.wantMsg, verr.Message)
		})
	}
}

func TestValidateModeIsTrimmed(t *testing.T) {
	got, err := Validate(GenerationBody{Mode: " update ", Prompt: "x"})
	require.NoError(t, err)
	assert.Equal(t, processing.ModeUpdate, got.Mode())
}

func TestParseRequestBodyTooLarge(t *testing.T) {
	rec := httptest.NewRecorder()
	body := http.MaxBytesReader(rec, io.NopCloser(strings.NewReader(`{"prompt":"`+strings.Repeat("a", 64)+`"}`)), 16)

	_, err := ParseRequest(body)

	var maxErr *http.MaxBytesError
	require.ErrorAs(t, err, &maxErr)
	assert.Equal(t, int64(16), maxErr.Limit)
}
