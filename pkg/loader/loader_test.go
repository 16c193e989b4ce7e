package loader

import (
	"testing"
	"testing/fstest"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/perbu/perturb/pkg/alphabet"
)

func TestSplitDocument(t *testing.T) {
	content := `first sample

  second sample
third`

	samples, err := SplitDocument("notes.txt", content)
	require.NoError(t, err)
	require.Len(t, samples, 3)

	assert.Equal(t, Sample{Path: "notes.txt", Line: 1, Text: "first sample"}, samples[0])
	assert.Equal(t, Sample{Path: "notes.txt", Line: 3, Text: "second sample"}, samples[1])
	assert.Equal(t, "notes.txt:4", samples[2].ID())
}

func TestSplitDocument_CSV(t *testing.T) {
	content := `"3","Wall St. Bears Claw Back","Short-sellers are seeing green again."
"4","Google IPO","Auction, not roadshow"
"no label here"
`
	samples, err := SplitDocument("train.csv", content)
	require.NoError(t, err)
	require.Len(t, samples, 3)

	assert.Equal(t, "Wall St. Bears Claw Back Short-sellers are seeing green again.", samples[0].Text)
	assert.Equal(t, "Google IPO Auction, not roadshow", samples[1].Text)
	assert.Equal(t, "no label here", samples[2].Text)
	assert.Equal(t, 2, samples[1].Line)
}

func TestSplitDocument_BadCSV(t *testing.T) {
	_, err := SplitDocument("bad.csv", "\"unterminated,field\n")
	assert.Error(t, err)
}

func TestLoadSamples(t *testing.T) {
	fsys := fstest.MapFS{
		"corpus/b.txt":       {Data: []byte("bravo\n")},
		"corpus/a.md":        {Data: []byte("alpha one\nalpha two\n")},
		"corpus/skip.json":   {Data: []byte(`{"ignored": true}`)},
		"corpus/sub/c.csv":   {Data: []byte("1,charlie\n")},
		"elsewhere/d.txt":    {Data: []byte("not loaded\n")},
		"corpus/empty.txt":   {Data: []byte("\n\n")},
		"corpus/sub/e.notes": {Data: []byte("ignored")},
	}

	samples, err := LoadSamples(fsys, "corpus")
	require.NoError(t, err)

	var got []string
	for _, s := range samples {
		got = append(got, s.ID()+"="+s.Text)
	}
	assert.Equal(t, []string{
		"a.md:1=alpha one",
		"a.md:2=alpha two",
		"b.txt:1=bravo",
		"sub/c.csv:1=charlie",
	}, got)
}

func TestLoadDocuments_MissingRoot(t *testing.T) {
	_, err := LoadDocuments(fstest.MapFS{}, "nope")
	assert.Error(t, err)
}

func TestNormalize(t *testing.T) {
	a, err := alphabet.New("abc ", alphabet.WithMaxLength(5))
	require.NoError(t, err)

	assert.Equal(t, "abc  a", Normalize(a, "ABc!?a"))
	assert.NoError(t, a.Validate(Normalize(a, "Zebra crab")))
}
