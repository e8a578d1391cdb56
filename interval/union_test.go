package interval

import (
	"strings"
	"testing"

	"github.com/grailbio/testutil/expect"
	"github.com/stretchr/testify/require"
)

func TestUnion(t *testing.T) {
	u := NewUnion([]Entry{
		{"chr1", 10, 20},
		{"1", 15, 30},
		{"chr1", 30, 40},
		{"chr1", 100, 100},
		{"chr2", 0, 5},
	})
	expect.EQ(t, u.endpoints["1"], []PosType{10, 40})
	expect.EQ(t, u.Bases(), 35)
	tests := []struct {
		contig string
		pos    int
		want   bool
	}{
		{"chr1", 10, false},
		{"chr1", 11, true},
		{"1", 40, true},
		{"chr1", 41, false},
		{"chr1", 100, false},
		{"chr2", 1, true},
		{"chr2", 0, false},
		{"chr3", 1, false},
	}
	for _, tt := range tests {
		expect.EQ(t, u.Contains(tt.contig, tt.pos), tt.want, "%s:%d", tt.contig, tt.pos)
	}
}

func TestParseRegion(t *testing.T) {
	e, err := ParseRegion("chr17:43044295-43125364")
	require.NoError(t, err)
	expect.EQ(t, e, Entry{"chr17", 43044294, 43125364})
	e, err = ParseRegion("chrX:5")
	require.NoError(t, err)
	expect.EQ(t, e, Entry{"chrX", 4, 5})
	e, err = ParseRegion("chrM")
	require.NoError(t, err)
	expect.EQ(t, e, Entry{"chrM", 0, posTypeMax - 1})
	for _, bad := range []string{"", "chr1:0-5", "chr1:10-5", "chr1:a-5"} {
		_, err = ParseRegion(bad)
		expect.True(t, err != nil, bad)
	}
}

func TestParseBED(t *testing.T) {
	u, err := ParseBED(strings.NewReader("track name=x\n# comment\nchr1\t0\t10\tname\n\nchr1 5 20\n"))
	require.NoError(t, err)
	expect.EQ(t, u.Bases(), 20)
	expect.True(t, u.Contains("chr1", 20))
	_, err = ParseBED(strings.NewReader("chr1\t10\n"))
	expect.HasSubstr(t, err.Error(), "fewer tokens")
	_, err = ParseBED(strings.NewReader("chr1\t10\t5\n"))
	expect.HasSubstr(t, err.Error(), "invalid coordinate pair")
}
