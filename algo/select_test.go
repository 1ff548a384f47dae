package algo_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/newmassrael/reactive-state-machine-sub002/algo"
	"github.com/newmassrael/reactive-state-machine-sub002/model"
)

func condTrue(*model.Transition) bool { return true }

func noHistory(*model.State) ([]*model.State, bool) { return nil, false }

// activeConfig builds the configuration for a set of atomic states plus all
// their ancestors, the shape every quiescent configuration has.
func activeConfig(doc *model.Document, ids ...string) algo.StateSet {
	config := make(algo.StateSet)
	for _, id := range ids {
		s := doc.StateByID(id)
		config.Add(s)
		for _, anc := range algo.Ancestors(s) {
			config.Add(anc)
		}
	}
	return config
}

func TestSelectChildPreemptsAncestor(t *testing.T) {
	// S4: a transition in a child preempts a conflicting one in its
	// ancestor.
	doc := mustParse(t, `<scxml version="1.0" datamodel="null" initial="r">
  <state id="r" initial="a">
    <state id="a">
      <transition event="e" target="x"/>
    </state>
    <transition event="e" target="y"/>
  </state>
  <state id="x"/>
  <state id="y"/>
</scxml>`)

	config := activeConfig(doc, "a")
	selected := algo.SelectTransitions(config, algo.MatchEvent("e"), condTrue, noHistory, nil)
	require.Len(t, selected, 1)
	assert.Same(t, doc.StateByID("a"), selected[0].Source)
	assert.Equal(t, []string{"x"}, selected[0].Targets)
}

func TestSelectHonorsCondition(t *testing.T) {
	doc := mustParse(t, `<scxml version="1.0" datamodel="null" initial="r">
  <state id="r" initial="a">
    <state id="a">
      <transition event="e" cond="false" target="x"/>
    </state>
    <transition event="e" target="y"/>
  </state>
  <state id="x"/>
  <state id="y"/>
</scxml>`)

	cond := func(tr *model.Transition) bool { return tr.Cond != "false" }
	config := activeConfig(doc, "a")
	selected := algo.SelectTransitions(config, algo.MatchEvent("e"), cond, noHistory, nil)
	require.Len(t, selected, 1)
	assert.Equal(t, []string{"y"}, selected[0].Targets)
}

func TestSelectDocumentOrderWithinState(t *testing.T) {
	doc := mustParse(t, `<scxml version="1.0" datamodel="null" initial="a">
  <state id="a">
    <transition event="e" target="x"/>
    <transition event="e" target="y"/>
  </state>
  <state id="x"/>
  <state id="y"/>
</scxml>`)

	config := activeConfig(doc, "a")
	selected := algo.SelectTransitions(config, algo.MatchEvent("e"), condTrue, noHistory, nil)
	require.Len(t, selected, 1)
	assert.Equal(t, []string{"x"}, selected[0].Targets)
}

func TestSelectParallelNonConflicting(t *testing.T) {
	// Transitions inside independent regions of one parallel state are
	// selected together; their exit sets are disjoint (property 8).
	doc := mustParse(t, `<scxml version="1.0" datamodel="null" initial="p">
  <parallel id="p">
    <state id="r1" initial="r1a">
      <state id="r1a"><transition event="e" target="r1b"/></state>
      <state id="r1b"/>
    </state>
    <state id="r2" initial="r2a">
      <state id="r2a"><transition event="e" target="r2b"/></state>
      <state id="r2b"/>
    </state>
  </parallel>
</scxml>`)

	config := activeConfig(doc, "r1a", "r2a")
	selected := algo.SelectTransitions(config, algo.MatchEvent("e"), condTrue, noHistory, nil)
	require.Len(t, selected, 2)

	e1 := algo.ComputeExitSet(selected[:1], config, noHistory, nil)
	e2 := algo.ComputeExitSet(selected[1:], config, noHistory, nil)
	for s := range e1 {
		assert.False(t, e2.Contains(s), "exit sets must be disjoint, both contain %s", s.ID)
	}
}

func TestComputeExitSet(t *testing.T) {
	doc := mustParse(t, hierarchyXML)
	config := activeConfig(doc, "a1")
	go1 := doc.StateByID("a1").Transitions[0] // a1 --go--> b1

	exit := algo.ComputeExitSet([]*model.Transition{go1}, config, noHistory, nil)
	assert.True(t, exit.Contains(doc.StateByID("a1")))
	assert.True(t, exit.Contains(doc.StateByID("a")))
	assert.False(t, exit.Contains(doc.Root))
}

func TestInternalTransitionExitSet(t *testing.T) {
	// An internal transition whose targets are descendants of the source
	// keeps the source active: the exit set stops below it.
	doc := mustParse(t, `<scxml version="1.0" datamodel="null" initial="a">
  <state id="a" initial="a1">
    <transition event="e" type="internal" target="a2"/>
    <state id="a1"/>
    <state id="a2"/>
  </state>
</scxml>`)

	config := activeConfig(doc, "a1")
	tr := doc.StateByID("a").Transitions[0]
	exit := algo.ComputeExitSet([]*model.Transition{tr}, config, noHistory, nil)
	assert.False(t, exit.Contains(doc.StateByID("a")))
	assert.True(t, exit.Contains(doc.StateByID("a1")))
}

func TestTargetlessTransitionExitSetEmpty(t *testing.T) {
	doc := mustParse(t, `<scxml version="1.0" datamodel="null" initial="a">
  <state id="a">
    <transition event="e"/>
  </state>
</scxml>`)

	config := activeConfig(doc, "a")
	tr := doc.StateByID("a").Transitions[0]
	exit := algo.ComputeExitSet([]*model.Transition{tr}, config, noHistory, nil)
	assert.Equal(t, 0, exit.Len())
}

func TestComputeEntrySetResolvesInitial(t *testing.T) {
	doc := mustParse(t, hierarchyXML)
	go1 := doc.StateByID("a1").Transitions[0] // targets b1

	entry := algo.ComputeEntrySet(doc, []*model.Transition{go1}, noHistory, nil)
	assert.True(t, entry.ToEnter.Contains(doc.StateByID("b1")))
	assert.True(t, entry.ToEnter.Contains(doc.StateByID("b")))
	assert.False(t, entry.ToEnter.Contains(doc.StateByID("a")))
}

func TestComputeEntrySetParallelRegions(t *testing.T) {
	doc := mustParse(t, hierarchyXML)
	tr := &model.Transition{
		Source:       doc.StateByID("a1"),
		Targets:      []string{"p"},
		TargetStates: []*model.State{doc.StateByID("p")},
	}

	entry := algo.ComputeEntrySet(doc, []*model.Transition{tr}, noHistory, nil)
	for _, id := range []string{"p", "r1", "r1a", "r2", "r2a"} {
		assert.True(t, entry.ToEnter.Contains(doc.StateByID(id)), "expected %s in entry set", id)
	}
}

func TestComputeEntrySetHistoryReplay(t *testing.T) {
	doc := mustParse(t, `<scxml version="1.0" datamodel="null" initial="m">
  <state id="m" initial="m1">
    <history id="h"><transition target="m1"/></history>
    <state id="m1"/>
    <state id="m2"/>
  </state>
  <state id="out">
    <transition event="back" target="h"/>
  </state>
</scxml>`)

	tr := doc.StateByID("out").Transitions[0]

	// Without a record the default transition target applies.
	entry := algo.ComputeEntrySet(doc, []*model.Transition{tr}, noHistory, nil)
	assert.True(t, entry.ToEnter.Contains(doc.StateByID("m1")))
	assert.False(t, entry.ToEnter.Contains(doc.StateByID("m2")))

	// A record replays the stored configuration instead.
	withRecord := func(h *model.State) ([]*model.State, bool) {
		return []*model.State{doc.StateByID("m2")}, true
	}
	entry = algo.ComputeEntrySet(doc, []*model.Transition{tr}, withRecord, nil)
	assert.True(t, entry.ToEnter.Contains(doc.StateByID("m2")))
	assert.False(t, entry.ToEnter.Contains(doc.StateByID("m1")))
}

func TestConflictsSameSource(t *testing.T) {
	doc := mustParse(t, `<scxml version="1.0" datamodel="null" initial="a">
  <state id="a">
    <transition event="e"/>
    <transition event="e"/>
  </state>
</scxml>`)

	config := activeConfig(doc, "a")
	a := doc.StateByID("a")
	assert.True(t, algo.Conflicts(a.Transitions[0], a.Transitions[1], config, noHistory, nil))
}
