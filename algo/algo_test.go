package algo_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/newmassrael/reactive-state-machine-sub002/algo"
	"github.com/newmassrael/reactive-state-machine-sub002/model"
	"github.com/newmassrael/reactive-state-machine-sub002/parser"
)

func mustParse(t *testing.T, xml string) *model.Document {
	t.Helper()
	doc, result, err := parser.ParseBytes([]byte(xml), "test.scxml")
	require.NoError(t, err)
	require.False(t, result.HasErrors(), "diagnostics: %v", result.Diagnostics)
	require.NotNil(t, doc)
	return doc
}

const hierarchyXML = `<scxml version="1.0" datamodel="null" initial="a">
  <state id="a" initial="a1">
    <state id="a1">
      <transition event="go" target="b1"/>
    </state>
    <state id="a2"/>
  </state>
  <state id="b" initial="b1">
    <state id="b1"/>
  </state>
  <parallel id="p">
    <state id="r1" initial="r1a"><state id="r1a"/></state>
    <state id="r2" initial="r2a"><state id="r2a"/></state>
  </parallel>
</scxml>`

func TestMatchDescriptor(t *testing.T) {
	cases := []struct {
		descriptor, event string
		want              bool
	}{
		{"*", "anything.at.all", true},
		{"foo", "foo", true},
		{"foo", "foo.bar", true},
		{"foo", "foo.bar.baz", true},
		{"foo", "foobar", false},
		{"foo.*", "foo", true},
		{"foo.*", "foo.bar", true},
		{"foo.*", "foobar", false},
		{"foo.bar", "foo", false},
		{"foo.bar", "foo.bar.baz", true},
		{"", "foo", false},
		{"error", "error.execution", true},
		{"done.state", "done.state.p", true},
	}
	for _, tc := range cases {
		assert.Equal(t, tc.want, algo.MatchDescriptor(tc.descriptor, tc.event),
			"MatchDescriptor(%q, %q)", tc.descriptor, tc.event)
	}
}

func TestMatchAnyDescriptor(t *testing.T) {
	assert.True(t, algo.MatchAnyDescriptor([]string{"a", "b"}, "b.c"))
	assert.False(t, algo.MatchAnyDescriptor([]string{"a", "b"}, "c"))
	assert.False(t, algo.MatchAnyDescriptor(nil, "c"))
}

func TestAncestryQueries(t *testing.T) {
	doc := mustParse(t, hierarchyXML)
	a := doc.StateByID("a")
	a1 := doc.StateByID("a1")
	b1 := doc.StateByID("b1")
	r1a := doc.StateByID("r1a")
	p := doc.StateByID("p")

	assert.True(t, algo.IsDescendant(a1, a))
	assert.True(t, algo.IsDescendant(a1, doc.Root))
	assert.False(t, algo.IsDescendant(a, a1))
	assert.False(t, algo.IsDescendant(a, a))

	anc := algo.Ancestors(a1)
	require.Len(t, anc, 2)
	assert.Same(t, a, anc[0])
	assert.Same(t, doc.Root, anc[1])

	assert.Empty(t, algo.ProperAncestors(a1, a))
	assert.Len(t, algo.ProperAncestors(r1a, nil), 3)

	assert.Same(t, a, algo.LCA(a1, doc.StateByID("a2")))
	assert.Same(t, doc.Root, algo.LCA(a1, b1))
	assert.Same(t, p, algo.LCA(r1a, doc.StateByID("r2a")))
	assert.Same(t, a, algo.LCA(a, a1))
}

func TestFindLCCA(t *testing.T) {
	doc := mustParse(t, hierarchyXML)
	a1 := doc.StateByID("a1")
	a2 := doc.StateByID("a2")
	b1 := doc.StateByID("b1")

	// The LCCA of siblings is their compound parent, never a member of the
	// input.
	assert.Same(t, doc.StateByID("a"), algo.FindLCCA([]*model.State{a1, a2}))
	assert.Same(t, doc.Root, algo.FindLCCA([]*model.State{a1, b1}))
	assert.Same(t, doc.Root, algo.FindLCCA([]*model.State{doc.StateByID("a"), b1}))
}

func TestEntryExitOrder(t *testing.T) {
	doc := mustParse(t, hierarchyXML)
	states := []*model.State{
		doc.StateByID("a1"),
		doc.StateByID("a"),
		doc.StateByID("b"),
	}
	entry := algo.EntryOrder(states)
	assert.Equal(t, "a", entry[0].ID)
	assert.Equal(t, "b", entry[1].ID)
	assert.Equal(t, "a1", entry[2].ID)

	exit := algo.ExitOrder(states)
	assert.Equal(t, "a1", exit[0].ID)
	assert.Equal(t, "b", exit[1].ID)
	assert.Equal(t, "a", exit[2].ID)
}

func TestIsInFinalState(t *testing.T) {
	doc := mustParse(t, `<scxml version="1.0" datamodel="null" initial="m">
  <state id="m" initial="m1">
    <state id="m1"/>
    <final id="mf"/>
  </state>
  <parallel id="p">
    <state id="r1"><final id="r1f"/><state id="r1a"/></state>
    <state id="r2"><final id="r2f"/></state>
  </parallel>
</scxml>`)

	m := doc.StateByID("m")
	config := algo.NewStateSet(m, doc.StateByID("m1"))
	assert.False(t, algo.IsInFinalState(m, config))
	config = algo.NewStateSet(m, doc.StateByID("mf"))
	assert.True(t, algo.IsInFinalState(m, config))

	p := doc.StateByID("p")
	config = algo.NewStateSet(p,
		doc.StateByID("r1"), doc.StateByID("r1f"),
		doc.StateByID("r2"), doc.StateByID("r2f"))
	assert.True(t, algo.IsInFinalState(p, config))

	config = algo.NewStateSet(p,
		doc.StateByID("r1"), doc.StateByID("r1a"),
		doc.StateByID("r2"), doc.StateByID("r2f"))
	assert.False(t, algo.IsInFinalState(p, config))
}

func TestStateSet(t *testing.T) {
	doc := mustParse(t, hierarchyXML)
	set := algo.NewStateSet(doc.StateByID("b"), doc.StateByID("a"))
	assert.Equal(t, 2, set.Len())
	assert.True(t, set.Contains(doc.StateByID("a")))

	clone := set.Clone()
	clone.Remove(doc.StateByID("a"))
	assert.True(t, set.Contains(doc.StateByID("a")))
	assert.False(t, clone.Contains(doc.StateByID("a")))

	ordered := set.SortedDocumentOrder()
	assert.Equal(t, "a", ordered[0].ID)
	assert.Equal(t, "b", ordered[1].ID)
}
