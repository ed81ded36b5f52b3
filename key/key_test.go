package key

import (
	"bytes"
	"sort"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEncode_MatchesJSONStringify(t *testing.T) {
	tests := []struct {
		name string
		key  Key
		want string
	}{
		{"file", ForFile("a.js"), `["file","a.js"]`},
		{"plugin", ForPlugin("babel", "k"), `["plugin","babel","k"]`},
		{"html is not escaped", ForFile("<a&b>.js"), `["file","<a&b>.js"]`},
		{"quotes are escaped", ForFile(`say "hi".js`), `["file","say \"hi\".js"]`},
		{"empty id", ForFile(""), `["file",""]`},
		{"ampersand in plugin key", ForPlugin("a&b", "<k>"), `["plugin","a&b","<k>"]`},
		{"backslash", ForFile(`src\a.js`), `["file","src\\a.js"]`},
		{"short escapes", ForFile("a\b\f\n\r\tb"), `["file","a\b\f\n\r\tb"]`},
		{"other control characters", ForFile("a\x00\x1fb"), `["file","a\u0000\u001fb"]`},
		{"line separators stay raw", ForFile("a\u2028\u2029b"), "[\"file\",\"a\u2028\u2029b\"]"},
		{"non-ascii stays raw", ForFile("dätei€.js"), `["file","dätei€.js"]`},
		{"del stays raw", ForFile("a\x7fb"), "[\"file\",\"a\x7fb\"]"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			b, err := tt.key.Encode()
			require.NoError(t, err)
			assert.Equal(t, tt.want, string(b))
		})
	}
}

func TestEncode_UnknownNamespace(t *testing.T) {
	_, err := Key{Namespace: "other", ID: "x"}.Encode()
	assert.ErrorIs(t, err, ErrMalformed)

	assert.Panics(t, func() { Key{}.MustEncode() })
}

func TestDecode(t *testing.T) {
	for _, k := range []Key{
		ForFile("src/index.js"),
		ForFile("<a&b>\b\f\u2028\x01.js"),
		ForFile(`C:\src\"q".js`),
		ForPlugin("babel", "src/index.js"),
		ForPlugin("", ""),
	} {
		got, err := Decode(k.MustEncode())
		require.NoError(t, err)
		assert.Equal(t, k, got)
	}
}

func TestDecode_Malformed(t *testing.T) {
	for _, raw := range []string{
		``,
		`"file"`,
		`[]`,
		`["file"]`,
		`["file","a","b"]`,
		`["plugin","babel"]`,
		`["other","a"]`,
	} {
		_, err := Decode([]byte(raw))
		assert.ErrorIs(t, err, ErrMalformed, raw)
	}
}

func TestPrefix_GroupsNamespace(t *testing.T) {
	keys := [][]byte{
		ForPlugin("babel", "a").MustEncode(),
		ForFile("b.js").MustEncode(),
		ForPlugin("css", "z").MustEncode(),
		ForFile("a.js").MustEncode(),
	}
	sort.Slice(keys, func(i, j int) bool { return bytes.Compare(keys[i], keys[j]) < 0 })

	// file keys sort before plugin keys and stay contiguous
	assert.True(t, bytes.HasPrefix(keys[0], Prefix(File)))
	assert.True(t, bytes.HasPrefix(keys[1], Prefix(File)))
	assert.True(t, bytes.HasPrefix(keys[2], Prefix(Plugin)))
	assert.True(t, bytes.HasPrefix(keys[3], Prefix(Plugin)))
	assert.Equal(t, `["file","a.js"]`, string(keys[0]))
}

func TestString(t *testing.T) {
	assert.Equal(t, "file/a.js", ForFile("a.js").String())
	assert.Equal(t, "plugin/babel/k", ForPlugin("babel", "k").String())
}
