package request

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	ferrors "git.home.luguber.info/inful/repocache/internal/foundation/errors"
)

// Golden vectors freeze the on-disk cache layout; never update them casually.
func TestFingerprintGolden(t *testing.T) {
	assert.Equal(t,
		"d3a2b9e9be965c7375b49ff1a687fdaeb31f821c9bd25f4cf99e21d51329ed0c",
		Fingerprint("git@x/y.git", "abc123", []string{"/"}, false))
	assert.Equal(t,
		"f963f53de3785c85584fc707af6df08559e1a347306b59fdd7ff735f0682ae2d",
		Fingerprint("git@x/y.git", "abc123", []string{"/lib", "/docs"}, true))
}

func TestFingerprintNormalization(t *testing.T) {
	base := Fingerprint("git@x/y.git", "abc123", []string{"/"}, false)

	equivalent := []struct {
		name   string
		repo   string
		commit string
		mask   []string
	}{
		{"whitespace", "  git@x/y.git\n", " abc123 ", []string{"/"}},
		{"uppercase hex commit", "git@x/y.git", "ABC123", []string{"/"}},
		{"empty mask means root", "git@x/y.git", "abc123", nil},
		{"root subsumes paths", "git@x/y.git", "abc123", []string{"docs", "/"}},
		{"dot is root", "git@x/y.git", "abc123", []string{"."}},
	}
	for _, tc := range equivalent {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, base, Fingerprint(tc.repo, tc.commit, tc.mask, false))
		})
	}

	masked := Fingerprint("git@x/y.git", "abc123", []string{"docs/", "/lib", "/docs"}, false)
	assert.Equal(t, masked, Fingerprint("git@x/y.git", "abc123", []string{"/lib", "docs"}, false))
}

func TestFingerprintChangesWithEveryField(t *testing.T) {
	base := Fingerprint("git@x/y.git", "abc123", []string{"/"}, false)
	variants := map[string]string{
		"repo":       Fingerprint("git@x/z.git", "abc123", []string{"/"}, false),
		"commit":     Fingerprint("git@x/y.git", "abc124", []string{"/"}, false),
		"mask":       Fingerprint("git@x/y.git", "abc123", []string{"/docs"}, false),
		"submodules": Fingerprint("git@x/y.git", "abc123", []string{"/"}, true),
		"branch ref": Fingerprint("git@x/y.git", "Main", []string{"/"}, false),
	}
	seen := map[string]string{base: "base"}
	for field, fp := range variants {
		prev, dup := seen[fp]
		require.Falsef(t, dup, "%s collides with %s", field, prev)
		seen[fp] = field
	}
	// Non-hex references keep their case.
	assert.NotEqual(t, Fingerprint("r", "Main", nil, false), Fingerprint("r", "main", nil, false))
}

func TestFingerprintFieldBoundaries(t *testing.T) {
	a := Fingerprint("ab", "cdef", []string{"/"}, false)
	b := Fingerprint("abc", "def", []string{"/"}, false)
	assert.NotEqual(t, a, b)
}

func TestNewValidation(t *testing.T) {
	_, err := New("", "abc123", nil, false)
	require.Error(t, err)
	assert.True(t, ferrors.HasCategory(err, ferrors.CategoryValidation))

	_, err = New("git@x/y.git", "  ", nil, false)
	require.Error(t, err)

	r, err := New("git@x/y.git", "ABC123", []string{"b", "a", "a/"}, true)
	require.NoError(t, err)
	assert.Equal(t, "abc123", r.CommitHash())
	assert.Equal(t, []string{"/a", "/b"}, r.CheckoutMask())
	assert.False(t, r.FullTree())
	assert.True(t, r.Submodules())
	assert.Len(t, r.Fingerprint(), 64)
}

func TestJSONRoundTripCarriesFingerprint(t *testing.T) {
	r := MustNew("git@x/y.git", "abc123", []string{"/"}, false)
	data, err := json.Marshal(r)
	require.NoError(t, err)
	assert.Contains(t, string(data), `"fingerprint":"d3a2b9e9`)

	back, err := FromJSON(data)
	require.NoError(t, err)
	assert.Equal(t, r, back)
	assert.True(t, back.FullTree())
}

func TestFromJSONRejectsForeignFingerprint(t *testing.T) {
	_, err := FromJSON([]byte(`{"repo":"git@x/y.git","commit_hash":"abc123","fingerprint":"deadbeef"}`))
	require.Error(t, err)
	assert.True(t, ferrors.HasCategory(err, ferrors.CategoryValidation))

	_, err = FromJSON([]byte(`{not json`))
	require.Error(t, err)
}
