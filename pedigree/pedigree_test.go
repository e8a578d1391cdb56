package pedigree

import (
	"context"
	"io/ioutil"
	"path/filepath"
	"strings"
	"testing"

	"github.com/grailbio/testutil"
	"github.com/grailbio/testutil/assert"
	"github.com/grailbio/testutil/expect"
	"github.com/stretchr/testify/require"
)

const testFam = `# family	id	father	mother	sex	phenotype
FAM1	kid	dad	mum	1	2
FAM1	dad	0	0	1	1
FAM1	mum	0	0	2	1
FAM2	solo	0	0	2	2
FAM3	half	0	mum3	2	2
FAM4	odd	mum4	dad4	1	2
FAM4	mum4	0	0	2	1
FAM4	dad4	0	0	1	1
FAM5	self	self	x	0	2
`

func TestParse(t *testing.T) {
	p, err := Parse(strings.NewReader(testFam))
	require.NoError(t, err)
	expect.EQ(t, len(p.Individuals), 9)
	kid, ok := p.Individual("kid")
	require.True(t, ok)
	expect.EQ(t, kid, Individual{Family: "FAM1", ID: "kid", Father: "dad", Mother: "mum", Sex: Male, Phenotype: "2"})
	_, ok = p.Individual("nobody")
	expect.False(t, ok)

	trios := p.Trios()
	var children []string
	for _, tr := range trios {
		children = append(children, tr.Child)
	}
	expect.EQ(t, children, []string{"half", "kid", "odd", "self"})
	expect.True(t, trios[1].Complete())
	expect.False(t, trios[0].Complete())

	byChild := map[string]Trio{}
	for _, tr := range trios {
		byChild[tr.Child] = tr
	}
	expect.NoError(t, p.Check(byChild["kid"]))
	// mum3 has no line of her own, so her sex is not checked.
	expect.NoError(t, p.Check(byChild["half"]))
	expect.HasSubstr(t, p.Check(byChild["odd"]).Error(), "father mum4 is female")
	expect.HasSubstr(t, p.Check(byChild["self"]).Error(), "own parent")
	expect.HasSubstr(t, p.Check(Trio{Child: "x"}).Error(), "no parents")
	expect.HasSubstr(t, p.Check(Trio{Child: "x", Father: "y", Mother: "y"}).Error(), "same individual")
}

func TestParseErrors(t *testing.T) {
	_, err := Parse(strings.NewReader("F\ta\t0\t0\t1\t1\nF\ta\t0\t0\t1\t1\n"))
	expect.HasSubstr(t, err.Error(), `duplicate individual "a"`)
	_, err = Parse(strings.NewReader("F\t0\t0\t0\t1\t1\n"))
	expect.HasSubstr(t, err.Error(), "empty individual id")
}

func TestRead(t *testing.T) {
	tmpdir, cleanup := testutil.TempDir(t, "", "")
	defer cleanup()
	path := filepath.Join(tmpdir, "ped.fam")
	assert.NoError(t, ioutil.WriteFile(path, []byte(testFam), 0600))
	p, err := Read(context.Background(), path)
	require.NoError(t, err)
	expect.EQ(t, len(p.Trios()), 4)
}

func TestSexString(t *testing.T) {
	expect.EQ(t, Male.String(), "male")
	expect.EQ(t, Female.String(), "female")
	expect.EQ(t, Unknown.String(), "unknown")
	expect.EQ(t, parseSex("-9"), Unknown)
}
