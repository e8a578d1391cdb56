package panel

import (
	"context"
	"io/ioutil"
	"path/filepath"
	"testing"

	"github.com/grailbio/testutil"
	"github.com/grailbio/testutil/assert"
	"github.com/grailbio/testutil/expect"
	"github.com/stretchr/testify/require"
)

const testPanel = `{
  "ENSG1": {"new": true, "moi": "Biallelic"},
  "ENSG2": {"new": false},
  "ENSG3": {},
  "panel_metadata": {"current_version": "1.2"}
}`

func TestParse(t *testing.T) {
	p, err := Parse([]byte(testPanel))
	require.NoError(t, err)
	expect.EQ(t, p.Genes(), []string{"ENSG1", "ENSG2", "ENSG3"})
	expect.True(t, p.IsGreen("ENSG2"))
	expect.False(t, p.IsGreen("panel_metadata"))
	expect.True(t, p.IsNew("ENSG1"))
	expect.False(t, p.IsNew("ENSG2"))
	expect.False(t, p.IsNew("ENSG3"))

	_, err = Parse([]byte(`[1, 2]`))
	expect.HasSubstr(t, err.Error(), "object at top level")
	_, err = Parse([]byte(`{"ENSG1": {"new": "yes"}}`))
	expect.HasSubstr(t, err.Error(), "expect a boolean")
	_, err = Parse([]byte(`{`))
	expect.HasSubstr(t, err.Error(), "panel: parse")
}

func TestNew(t *testing.T) {
	p, err := New([]string{"A", "B"}, []string{"B"})
	require.NoError(t, err)
	expect.True(t, p.IsNew("B"))
	_, err = New([]string{"A"}, []string{"B"})
	expect.HasSubstr(t, err.Error(), "not green")
}

func TestLoad(t *testing.T) {
	tmpdir, cleanup := testutil.TempDir(t, "", "")
	defer cleanup()
	path := filepath.Join(tmpdir, "panel.json")
	assert.NoError(t, ioutil.WriteFile(path, []byte(testPanel), 0600))
	p, err := Load(context.Background(), path)
	require.NoError(t, err)
	expect.EQ(t, len(p.Green), 3)
	_, err = Load(context.Background(), filepath.Join(tmpdir, "missing.json"))
	expect.NotNil(t, err)
}
