package task

import (
	"encoding/json"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseKind(t *testing.T) {
	tests := []struct {
		in   string
		want Kind
	}{
		{"file_operation", KindFileOperation},
		{"File-Operation", KindFileOperation},
		{" code formatting ", KindCodeFormatting},
		{"unsupported_kind", Kind("unsupported_kind")},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			assert.Equal(t, tt.want, ParseKind(tt.in))
		})
	}
}

func TestKindsAreKnownAndUnique(t *testing.T) {
	seen := map[Kind]bool{}
	for _, k := range Kinds() {
		assert.True(t, k.Known(), "kind %s should be known", k)
		assert.False(t, seen[k], "duplicate kind %s", k)
		seen[k] = true
	}
	assert.Len(t, seen, 12)
	assert.False(t, Kind("unsupported_kind").Known())
}

func TestInPlaceKinds(t *testing.T) {
	for _, k := range Kinds() {
		assert.Equal(t, k == KindCodeFormatting, k.InPlace(), "kind %s", k)
	}
}

func TestKindsReturnsCopy(t *testing.T) {
	ks := Kinds()
	ks[0] = "mutated"
	assert.Equal(t, KindFileOperation, Kinds()[0])
}

func TestParseDescriptor(t *testing.T) {
	d, err := ParseDescriptor([]byte(`{"type":"file_operation","input":"/data/dates.txt","output":"/data/out.txt","operation":"count_weekday","weekday":"Wednesday"}`))
	require.NoError(t, err)

	assert.Equal(t, KindFileOperation, d.Kind)
	assert.Equal(t, "/data/dates.txt", d.Params["input"])
	assert.Equal(t, "Wednesday", d.Params["weekday"])
	assert.False(t, d.Has("type"))
}

func TestParseDescriptorNestedParametersAndFence(t *testing.T) {
	raw := "```json\n{\"task_type\":\"markdown-conversion\",\"input\":\"/data/a.md\",\"parameters\":{\"output\":\"/data/a.html\",\"input\":\"ignored\"}}\n```"
	d, err := ParseDescriptor([]byte(raw))
	require.NoError(t, err)

	assert.Equal(t, KindMarkdownConversion, d.Kind)
	assert.Equal(t, "/data/a.md", d.Params["input"])
	assert.Equal(t, "/data/a.html", d.Params["output"])
	assert.False(t, d.Has("parameters"))
}

func TestParseDescriptorErrors(t *testing.T) {
	_, err := ParseDescriptor([]byte(`   `))
	assert.Error(t, err)

	_, err = ParseDescriptor([]byte(`[1,2]`))
	assert.Error(t, err)

	_, err = ParseDescriptor([]byte(`{"input":"/data/x"}`))
	assert.ErrorIs(t, err, ErrMissingKind)
}

func TestDecodeDescriptorRoundTripShape(t *testing.T) {
	d := NewDescriptor(KindAPIFetch, map[string]any{"api_url": "http://x", "output": "/data/o.json"})
	data, err := json.Marshal(d)
	require.NoError(t, err)

	back, err := DecodeDescriptor(strings.NewReader(string(data)))
	require.NoError(t, err)
	assert.Equal(t, d.Kind, back.Kind)
	assert.Equal(t, d.Params, back.Params)
}

func TestDescriptorWithDoesNotMutate(t *testing.T) {
	d := NewDescriptor(KindFileOperation, map[string]any{"input": "a"})
	d2 := d.With("input", "/data/a")
	assert.Equal(t, "a", d.Params["input"])
	assert.Equal(t, "/data/a", d2.Params["input"])
}

func TestDescriptorAccessors(t *testing.T) {
	d := NewDescriptor(KindImageProcessing, map[string]any{
		"width":   float64(640),
		"height":  "480",
		"ratio":   1.5,
		"flag":    "true",
		"files":   []any{"a.txt", "b.txt"},
		"single":  "c.txt",
		"mixed":   []any{"a", 1},
		"empty":   "  ",
		"number":  3,
		"nothing": nil,
	})

	w, err := d.Int("width")
	require.NoError(t, err)
	assert.Equal(t, 640, w)

	h, err := d.Int("height")
	require.NoError(t, err)
	assert.Equal(t, 480, h)

	_, err = d.Int("ratio")
	assert.ErrorIs(t, err, ErrInvalidParameter)

	_, err = d.Int("missing")
	assert.ErrorIs(t, err, ErrInvalidParameter)

	b, err := d.Bool("flag")
	require.NoError(t, err)
	assert.True(t, b)

	b, err = d.Bool("missing")
	require.NoError(t, err)
	assert.False(t, b)

	files, err := d.Strings("files")
	require.NoError(t, err)
	assert.Equal(t, []string{"a.txt", "b.txt"}, files)

	single, err := d.Strings("single")
	require.NoError(t, err)
	assert.Equal(t, []string{"c.txt"}, single)

	_, err = d.Strings("mixed")
	assert.ErrorIs(t, err, ErrInvalidParameter)

	_, err = d.String("empty")
	assert.ErrorIs(t, err, ErrInvalidParameter)

	_, err = d.String("number")
	assert.ErrorIs(t, err, ErrInvalidParameter)

	s, err := d.OptionalString("nothing", "default")
	require.NoError(t, err)
	assert.Equal(t, "default", s)
}

func TestOutcomeDetail(t *testing.T) {
	assert.Equal(t, "Success", Success("Success").Detail())
	assert.Equal(t, "nope", ValidationFailure(CodeAccessDenied, "nope").Detail())
	assert.Contains(t, UnknownKind("weird").Detail(), `"weird"`)
	assert.Contains(t, HandlerFailure(errors.New("boom")).Detail(), "boom")
	assert.Contains(t, Timeout(19*time.Second).Detail(), "19s")
	assert.Error(t, HandlerFailure(nil).Cause)
}

func TestOutcomeKindString(t *testing.T) {
	assert.Equal(t, "success", OutcomeSuccess.String())
	assert.Equal(t, "timeout", OutcomeTimeout.String())
	assert.Equal(t, "outcome(42)", OutcomeKind(42).String())
}
