package workflow

import (
	"encoding/base64"
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestCanonicalizeCompactsJSON(t *testing.T) {
	out, err := Canonicalize(&SourceFile{
		Name: "data.json",
		Data: []byte("{\n  \"hello\": \"world\",\n  \"n\": 1\n}"),
	})
	require.NoError(t, err)
	require.Equal(t, []byte(`{"hello":"world","n":1}`), out)
}

func TestCanonicalizeIsDeterministic(t *testing.T) {
	spaced := &SourceFile{Name: "a.json", Data: []byte(`{"k": "v"}`)}
	compact := &SourceFile{Name: "b.json", Data: []byte(`{"k":"v"}`)}

	first, err := Canonicalize(spaced)
	require.NoError(t, err)
	second, err := Canonicalize(compact)
	require.NoError(t, err)
	require.Equal(t, first, second)
}

func TestCanonicalizeWrapsBinary(t *testing.T) {
	raw := []byte{0x89, 'P', 'N', 'G', 0x00}
	out, err := Canonicalize(&SourceFile{Name: "image.png", Data: raw})
	require.NoError(t, err)

	var wrapped map[string]string
	require.NoError(t, json.Unmarshal(out, &wrapped))
	require.Equal(t, "image.png", wrapped["name"])

	decoded, err := base64.StdEncoding.DecodeString(wrapped["content"])
	require.NoError(t, err)
	require.Equal(t, raw, decoded)
}
