package httpkit

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestParseBool(t *testing.T) {
	assert.True(t, ParseBool("true"))
	for _, s := range []string{"", "false", "True", "1", "yes"} {
		assert.False(t, ParseBool(s), s)
	}
}

func TestContentDisposition(t *testing.T) {
	assert.Equal(t,
		`attachment; filename="report.pdf"; filename*=UTF-8''report.pdf`,
		ContentDisposition("report.pdf", false))
	assert.Equal(t,
		`inline; filename="report.pdf"; filename*=UTF-8''report.pdf`,
		ContentDisposition("report.pdf", true))

	// non-ascii names fall back to underscores in the plain parameter and
	// survive percent-encoded in the extended one
	got := ContentDisposition("übersicht.txt", false)
	assert.Contains(t, got, `filename="_bersicht.txt"`)
	assert.Contains(t, got, "filename*=UTF-8''%C3%BCbersicht.txt")
}
