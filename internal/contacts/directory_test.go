package contacts

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestNormalize(t *testing.T) {
	cases := map[string]string{
		"Mr. Ted":          "ted",
		"  DR.  Anna   Lee": "anna lee",
		"Ms Maria Garcia":  "maria garcia",
		"Mr.":              "mr",
		"Li.Wei":           "liwei",
		"":                 "",
	}
	for in, want := range cases {
		assert.Equal(t, want, Normalize(in), in)
	}
}

func TestLookup(t *testing.T) {
	cases := map[string]string{
		"Mr. Ted":            "ted@globalbasesourcing.com",
		"ted":                "ted@globalbasesourcing.com",
		"Ted Mosby":          "ted@globalbasesourcing.com",
		"Dr. Anna Lee":       "anna@globalbasesourcing.com",
		"anna":               "anna@globalbasesourcing.com",
		"Rahul":              "rahul@globalbasesourcing.com",
		"Mrs. Fatima Khan":   "fatima@globalbasesourcing.com",
		"Li Wei":             "liwei@globalbasesourcing.com",
		"Someone Unknown":    "",
		"":                   "",
		"Prof. Kenji Tanaka": "kenji@globalbasesourcing.com",
	}
	for in, want := range cases {
		assert.Equal(t, want, Lookup(in), in)
	}
}
