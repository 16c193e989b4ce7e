package transform

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/perbu/perturb/pkg/edit"
	"github.com/perbu/perturb/pkg/pattern"
)

var letters = []rune("abc")

func textsOf(cands []Candidate) []string {
	out := make([]string, len(cands))
	for i, c := range cands {
		out[i] = c.Text
	}
	return out
}

func substituteLetters() *Leaf {
	return New(nil, edit.Substitute(edit.NoneOf(' '), edit.Except(letters)), nil)
}

func TestLeaf_SubstituteEveryPosition(t *testing.T) {
	got := substituteLetters().Apply("ab")
	assert.Equal(t, []string{"bb", "cb", "aa", "ac"}, textsOf(got))
	for _, c := range got[:2] {
		assert.Equal(t, [][]int{{0}}, c.Paths)
	}
	for _, c := range got[2:] {
		assert.Equal(t, [][]int{{1}}, c.Paths)
	}
}

func TestLeaf_EmptyInputIsDeadBranch(t *testing.T) {
	assert.Empty(t, substituteLetters().Apply(""))
	assert.Empty(t, New(nil, edit.Delete(edit.Always), nil).Apply(""))
}

func TestLeaf_DeleteToEmpty(t *testing.T) {
	got := New(nil, edit.Delete(edit.Always), nil).Apply("a")
	require.Len(t, got, 1)
	assert.Equal(t, "", got[0].Text)
	assert.Equal(t, [][]int{{0}}, got[0].Paths)
}

func TestLeaf_InsertIncludesBothEnds(t *testing.T) {
	got := New(nil, edit.Insert(edit.Set('c')), nil).Apply("ab")
	assert.Equal(t, []string{"cab", "acb", "abc"}, textsOf(got))
}

func TestLeaf_InsertDeduplicates(t *testing.T) {
	// inserting 'a' before or after an existing 'a' gives the same string
	got := New(nil, edit.Insert(edit.Set('a')), nil).Apply("a")
	assert.Equal(t, []string{"aa"}, textsOf(got))
	assert.Equal(t, [][]int{{0}, {1}}, got[0].Paths)
}

func TestLeaf_DuplicateTextKeepsEveryPath(t *testing.T) {
	del := New(nil, edit.Delete(edit.OneOf('c')), nil)
	assert.Equal(t, edit.KindDelete, del.Operator().Kind())

	got := del.Apply("acc")
	require.Len(t, got, 1)
	assert.Equal(t, "ac", got[0].Text)
	assert.Equal(t, [][]int{{1}, {2}}, got[0].Paths)
}

func TestLeaf_ContextPatterns(t *testing.T) {
	// substitute only a rune preceded by "a"
	leaf := New(pattern.Literal("a"), edit.Substitute(edit.Always, edit.Set('c')), nil)
	assert.Equal(t, []string{"acb", "aac"}, textsOf(leaf.Apply("aab")))

	// delete only a rune followed by "b": right context starts after it
	del := New(nil, edit.Delete(edit.Always), pattern.Literal("b"))
	assert.Equal(t, []string{"ab"}, textsOf(del.Apply("aab")))

	// insert only in front of "b"
	ins := New(nil, edit.Insert(edit.Set('c')), pattern.Literal("b"))
	assert.Equal(t, []string{"acb"}, textsOf(ins.Apply("ab")))
}

func TestCompose_InsertThenSubstitute(t *testing.T) {
	rule := Compose(
		New(nil, edit.Insert(edit.Set('b')), nil),
		New(nil, edit.Substitute(edit.OneOf('b'), edit.Set('c')), nil),
	)
	got := rule.Apply("a")
	assert.Equal(t, []string{"ca", "ac"}, textsOf(got))
	assert.Equal(t, [][]int{{0}}, got[0].Paths)
	assert.Equal(t, [][]int{{1}}, got[1].Paths)
}

func TestCompose_EmptyStageFailsWhole(t *testing.T) {
	rule := Compose(
		New(nil, edit.Delete(edit.Always), nil),
		New(nil, edit.Delete(edit.Always), nil),
	)
	assert.Empty(t, rule.Apply("a"))
	assert.Equal(t, []string{""}, textsOf(rule.Apply("ab")))
}

func TestCompose_TracksShiftedEdits(t *testing.T) {
	rule := Compose(
		New(nil, edit.Substitute(edit.OneOf('b'), edit.Set('c')), nil),
		New(pattern.MustCompile(`^`), edit.Insert(edit.Set('a')), nil),
	)
	got := rule.Apply("ab")
	require.Len(t, got, 1)
	assert.Equal(t, "aac", got[0].Text)
	require.Len(t, got[0].Paths, 1)
	assert.ElementsMatch(t, []int{2, 0}, got[0].Paths[0])
}

func TestCompose_Identity(t *testing.T) {
	got := Compose().Apply("ab")
	require.Len(t, got, 1)
	assert.Equal(t, "ab", got[0].Text)
	assert.Empty(t, got[0].Paths)
	assert.Equal(t, [][]int{nil}, got[0].EditPaths())
}

func TestUnion_DeduplicatesAcrossChildren(t *testing.T) {
	toC := New(nil, edit.Substitute(edit.OneOf('b'), edit.Set('c')), nil)
	insC := New(pattern.Literal("a"), edit.Insert(edit.Set('c')), pattern.Literal("b"))
	delB := New(nil, edit.Delete(edit.OneOf('b')), nil)

	got := Union(toC, Compose(insC, delB)).Apply("ab")
	assert.Equal(t, []string{"ac"}, textsOf(got))
	assert.Equal(t, [][]int{{1}, {1, 2}}, got[0].Paths, "paths from both children")
}

func TestUnion_DeadChildDoesNotAffectOthers(t *testing.T) {
	dead := New(nil, edit.Delete(edit.Never), nil)
	ins := New(nil, edit.Insert(edit.Set('c')), nil)
	assert.Equal(t, []string{"ca", "ac"}, textsOf(Union(dead, ins).Apply("a")))
	assert.Empty(t, Union().Apply("a"))
}

func TestRepeatAndStages(t *testing.T) {
	sub := substituteLetters()
	rep := Repeat(sub, 3)
	assert.Len(t, Stages(rep), 3)
	assert.Len(t, Stages(Union(sub)), 1)
	assert.Empty(t, Repeat(sub, -1).Rules())

	// two substitutions of "a": every pair of edits
	two := Repeat(sub, 2).Apply("a")
	assert.ElementsMatch(t, []string{"a", "b", "c"}, textsOf(two))
}

func TestApplyDoesNotMutateTree(t *testing.T) {
	rule := Compose(substituteLetters(), substituteLetters())
	first := textsOf(rule.Apply("ab"))
	second := textsOf(rule.Apply("ab"))
	assert.Equal(t, first, second)
}

func TestDescribe(t *testing.T) {
	rule := Compose(
		substituteLetters(),
		Union(New(pattern.Literal("a"), edit.Insert(edit.Set('b')), nil), New(nil, edit.Delete(edit.Always), nil)),
	)
	assert.Equal(t, "compose(substitute[.*|.*], union(insert[a|.*], delete[.*|.*]))", Describe(rule))
}
