package naming

import (
	"regexp"
	"strings"
	"sync"
	"testing"
	"time"
	"unicode/utf8"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var identifierPattern = regexp.MustCompile(`^GBS_\d{14}_[A-Z0-9]{6}$`)

func TestNewIdentifierFormat(t *testing.T) {
	at := time.Date(2026, 3, 14, 9, 26, 53, 0, time.FixedZone("IST", 5*3600+1800))
	id := NewIdentifier(at)

	assert.Regexp(t, identifierPattern, id)
	assert.True(t, strings.HasPrefix(id, "GBS_20260314035653_"), "timestamp is rendered in UTC: %s", id)
}

func TestNewIdentifierUniqueUnderConcurrency(t *testing.T) {
	const n = 10000
	base := time.Date(2026, 10, 15, 12, 0, 0, 0, time.UTC)

	ids := make([]string, n)
	var wg sync.WaitGroup
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			// 100 submissions share each second.
			ids[i] = NewIdentifier(base.Add(time.Duration(i%100) * time.Second))
		}(i)
	}
	wg.Wait()

	seen := make(map[string]struct{}, n)
	for _, id := range ids {
		require.Regexp(t, identifierPattern, id)
		_, dup := seen[id]
		require.False(t, dup, "duplicate identifier %s", id)
		seen[id] = struct{}{}
	}
}

func TestSanitizeLabel(t *testing.T) {
	cases := []struct {
		in, want string
	}{
		{"  Acme Corp  ", "Acme Corp"},
		{"Acme/Corp: <Booth #4>", "AcmeCorp Booth 4"},
		{"Müller & Söhne GmbH.", "Mller  Shne GmbH."},
		{"../../etc/passwd", "....etcpasswd"},
		{"", ""},
		{"!!!", ""},
	}
	for _, tc := range cases {
		assert.Equal(t, tc.want, SanitizeLabel(tc.in), tc.in)
	}
}

func TestSanitizeLabelProperties(t *testing.T) {
	allowed := regexp.MustCompile(`^[\w. ]*$`)
	inputs := []string{
		strings.Repeat("Global Trade Fair 2026 / Hall B ", 10),
		"a\tb\nc\\d|e*f?g\"h",
		strings.Repeat("ü", 200),
		"中文公司名称 有限公司",
	}
	for _, in := range inputs {
		got := SanitizeLabel(in)
		assert.LessOrEqual(t, utf8.RuneCountInString(got), MaxLabelLen, in)
		assert.Regexp(t, allowed, got)
		assert.NotContains(t, got, "/")
	}
}

func TestFolderName(t *testing.T) {
	id := "GBS_20261015120000_ABC123"
	assert.Equal(t, id+"_Acme_Corp", FolderName(id, "Acme Corp"))
	assert.Equal(t, id, FolderName(id, "   "))
	assert.Equal(t, id, FolderName(id, "%%%"))
}

func TestSanitizeFilename(t *testing.T) {
	cases := map[string]string{
		"card front.jpg":        "card front.jpg",
		"booth-photo_01.PNG":    "booth-photo_01.PNG",
		"../../secret.pdf":      "....secret.pdf",
		"cat:alogue?.pdf":       "catalogue.pdf",
		"   ":                   "file",
		"..":                    "file",
		"<>|":                   "file",
		"Katalog (deutsch).pdf": "Katalog deutsch.pdf",
	}
	for in, want := range cases {
		assert.Equal(t, want, SanitizeFilename(in), in)
	}
}
