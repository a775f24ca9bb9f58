package greeting_test

import (
	"net/http"
	"strings"
	"testing"
	"unicode/utf16"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nadzzz/islandgreet/internal/greeting"
)

func TestValidateName(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		raw     any
		want    string
		wantErr bool
	}{
		{name: "trims surrounding space", raw: "  Tom  ", want: "Tom"},
		{name: "keeps inner space", raw: " Mary Jane ", want: "Mary Jane"},
		{name: "trims tabs and newlines", raw: "\tAmara\n", want: "Amara"},
		{name: "trims byte order mark", raw: "\uFEFFKofi", want: "Kofi"},
		{name: "trims line and paragraph separators", raw: "\u2028Kofi\u2029", want: "Kofi"},
		{name: "keeps next line", raw: "\u0085Kofi\u0085", want: "\u0085Kofi\u0085"},
		{name: "next line only", raw: "\u0085", want: "\u0085"},
		{name: "nil", raw: nil, wantErr: true},
		{name: "number", raw: 42.0, wantErr: true},
		{name: "bool", raw: true, wantErr: true},
		{name: "object", raw: map[string]any{"first": "Tom"}, wantErr: true},
		{name: "empty", raw: "", wantErr: true},
		{name: "only whitespace", raw: " \t\n ", wantErr: true},
		{name: "non-breaking space only", raw: "\u00a0", wantErr: true},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()

			got, gerr := greeting.ValidateName(tc.raw)
			if tc.wantErr {
				require.NotNil(t, gerr)
				assert.Equal(t, greeting.CodeMissingName, gerr.Code)
				assert.Equal(t, http.StatusBadRequest, gerr.Status)
				assert.Empty(t, got)
				return
			}
			require.Nil(t, gerr)
			assert.Equal(t, tc.want, got)
		})
	}
}

func TestValidateNameTruncates(t *testing.T) {
	t.Parallel()

	got, gerr := greeting.ValidateName(strings.Repeat("a", 250))
	require.Nil(t, gerr)
	assert.Len(t, got, greeting.MaxNameLength)

	exact, gerr := greeting.ValidateName(strings.Repeat("b", greeting.MaxNameLength))
	require.Nil(t, gerr)
	assert.Len(t, exact, greeting.MaxNameLength)
}

func TestValidateNameCountsUTF16Units(t *testing.T) {
	t.Parallel()

	// "é" is one UTF-16 unit but two UTF-8 bytes.
	got, gerr := greeting.ValidateName(strings.Repeat("é", 120))
	require.Nil(t, gerr)
	assert.Len(t, utf16.Encode([]rune(got)), greeting.MaxNameLength)

	// A surrogate pair straddling the limit is dropped whole.
	raw := strings.Repeat("x", 99) + "😀" + "tail"
	got, gerr = greeting.ValidateName(raw)
	require.Nil(t, gerr)
	assert.Equal(t, strings.Repeat("x", 99), got)
}

func TestErrorTaxonomy(t *testing.T) {
	t.Parallel()

	for _, code := range greeting.Codes {
		e := greeting.New(code)
		assert.Equal(t, code, e.Code)
		assert.NotEmpty(t, e.Message(), code)
		assert.GreaterOrEqual(t, e.Status, 400, code)
	}

	assert.Equal(t, "Name is required", greeting.New(greeting.CodeMissingName).Message())
	assert.Equal(t, "Failed to generate speech", greeting.New(greeting.CodeSpeech).Message())
	assert.Equal(t, http.StatusInternalServerError, greeting.New(greeting.CodeTextGen).Status)
}

func TestErrorWithStatus(t *testing.T) {
	t.Parallel()

	e := greeting.New(greeting.CodeSpeech).WithStatus(http.StatusTooManyRequests)
	assert.Equal(t, http.StatusTooManyRequests, e.Status)

	// Non-error statuses never replace the default.
	e = greeting.New(greeting.CodeSpeech).WithStatus(http.StatusOK)
	assert.Equal(t, http.StatusBadGateway, e.Status)
}

func TestErrorBody(t *testing.T) {
	t.Parallel()

	body := greeting.New(greeting.CodeMissingName).Body()
	assert.Equal(t, greeting.Body{Error: "Name is required"}, body)

	body = greeting.New(greeting.CodeTextGen).WithDetails("upstream said no").Body()
	assert.Equal(t, "upstream said no", body.Details)
}

func TestFlavor(t *testing.T) {
	t.Parallel()

	assert.Equal(t, "Island Prompt", greeting.Standard.TemplateName())
	assert.Equal(t, "Island Prompt P", greeting.Alternate.TemplateName())
	assert.Equal(t, "bomboclaat", greeting.Standard.PathSegment())
	assert.Equal(t, "pussyclaat", greeting.Alternate.PathSegment())
	assert.Equal(t, "/api/greet", greeting.Standard.Endpoint())
	assert.Equal(t, "/api/greet-pussyclaat", greeting.Alternate.Endpoint())

	for in, want := range map[string]greeting.Flavor{
		"":           greeting.Standard,
		"standard":   greeting.Standard,
		"bomboclaat": greeting.Standard,
		"Alternate":  greeting.Alternate,
		"pussyclaat": greeting.Alternate,
	} {
		got, err := greeting.ParseFlavor(in)
		require.NoError(t, err, in)
		assert.Equal(t, want, got, in)
	}

	_, err := greeting.ParseFlavor("spicy")
	assert.Error(t, err)
}
