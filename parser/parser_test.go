package parser_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/newmassrael/reactive-state-machine-sub002/model"
	"github.com/newmassrael/reactive-state-machine-sub002/parser"
)

func parse(t *testing.T, xml string) (*model.Document, parser.Result) {
	t.Helper()
	doc, result, err := parser.ParseBytes([]byte(xml), "test.scxml")
	require.NoError(t, err)
	return doc, result
}

func diagnosticCodes(result parser.Result) []string {
	var codes []string
	for _, d := range result.Diagnostics {
		codes = append(codes, d.Code)
	}
	return codes
}

func TestParseBasicDocument(t *testing.T) {
	doc, result := parse(t, `<scxml xmlns="http://www.w3.org/2005/07/scxml" version="1.0"
  datamodel="ecmascript" name="demo" initial="a">
  <datamodel>
    <data id="Var1" expr="0"/>
  </datamodel>
  <state id="a" initial="a1">
    <onentry>
      <raise event="started"/>
      <log label="entry" expr="'in a'"/>
    </onentry>
    <onexit>
      <assign location="Var1" expr="Var1 + 1"/>
    </onexit>
    <state id="a1">
      <transition event="go stop.*" cond="Var1 == 0" target="b"/>
    </state>
  </state>
  <final id="b">
    <donedata>
      <param name="result" expr="Var1"/>
    </donedata>
  </final>
</scxml>`)
	require.False(t, result.HasErrors(), "diagnostics: %v", result.Diagnostics)
	require.NotNil(t, doc)

	assert.Equal(t, "demo", doc.Name)
	assert.Equal(t, "ecmascript", doc.Datamodel)
	assert.Equal(t, "1.0", doc.Version)
	assert.Equal(t, model.BindingEarly, doc.Binding)
	assert.Equal(t, []string{"a"}, doc.Root.Initial)
	require.Len(t, doc.Root.Data, 1)
	assert.Equal(t, "Var1", doc.Root.Data[0].ID)

	a := doc.StateByID("a")
	require.NotNil(t, a)
	assert.Equal(t, model.KindCompound, a.Kind)
	assert.Equal(t, []string{"a1"}, a.Initial)
	require.Len(t, a.OnEntry, 1)
	require.Len(t, a.OnEntry[0], 2)
	raise, ok := a.OnEntry[0][0].(*model.Raise)
	require.True(t, ok)
	assert.Equal(t, "started", raise.Event)
	require.Len(t, a.OnExit, 1)

	a1 := doc.StateByID("a1")
	require.Len(t, a1.Transitions, 1)
	tr := a1.Transitions[0]
	assert.Equal(t, []string{"go", "stop.*"}, tr.Events)
	assert.Equal(t, "Var1 == 0", tr.Cond)
	require.Len(t, tr.TargetStates, 1)
	assert.Equal(t, "b", tr.TargetStates[0].ID)

	b := doc.StateByID("b")
	assert.Equal(t, model.KindFinal, b.Kind)
	require.NotNil(t, b.DoneData)
	require.Len(t, b.DoneData.Params, 1)
	assert.Equal(t, "result", b.DoneData.Params[0].Name)
}

func TestParseDuplicateStateID(t *testing.T) {
	doc, result := parse(t, `<scxml version="1.0" datamodel="null">
  <state id="a"/>
  <state id="a"/>
</scxml>`)
	assert.Nil(t, doc)
	assert.True(t, result.HasErrors())
	assert.Contains(t, diagnosticCodes(result), parser.CodeDuplicateID)
}

func TestParseUnresolvedTarget(t *testing.T) {
	doc, result := parse(t, `<scxml version="1.0" datamodel="null">
  <state id="a">
    <transition event="e" target="missing"/>
  </state>
</scxml>`)
	assert.Nil(t, doc)
	assert.Contains(t, diagnosticCodes(result), parser.CodeUnresolvedTarget)
}

func TestParseMalformedDescriptor(t *testing.T) {
	doc, result := parse(t, `<scxml version="1.0" datamodel="null">
  <state id="a">
    <transition event="e,f" target="a"/>
  </state>
</scxml>`)
	assert.Nil(t, doc)
	assert.Contains(t, diagnosticCodes(result), parser.CodeBadDescriptor)
}

func TestParseIllegalNesting(t *testing.T) {
	doc, result := parse(t, `<scxml version="1.0" datamodel="null">
  <final id="f">
    <state id="inner"/>
  </final>
</scxml>`)
	assert.Nil(t, doc)
	assert.Contains(t, diagnosticCodes(result), parser.CodeIllegalNesting)
}

func TestParseHistoryRules(t *testing.T) {
	// A history state needs exactly one default transition.
	doc, result := parse(t, `<scxml version="1.0" datamodel="null">
  <state id="m">
    <history id="h"/>
    <state id="m1"/>
  </state>
</scxml>`)
	assert.Nil(t, doc)
	assert.Contains(t, diagnosticCodes(result), parser.CodeIllegalNesting)

	doc, result = parse(t, `<scxml version="1.0" datamodel="null" initial="m">
  <state id="m" initial="m1">
    <history id="h" type="deep"><transition target="m1"/></history>
    <state id="m1"/>
  </state>
</scxml>`)
	require.False(t, result.HasErrors(), "diagnostics: %v", result.Diagnostics)
	h := doc.StateByID("h")
	assert.Equal(t, model.KindHistoryDeep, h.Kind)
	require.Len(t, h.Transitions, 1)
}

func TestParseMissingRequiredAttributes(t *testing.T) {
	doc, result := parse(t, `<scxml version="1.0" datamodel="ecmascript">
  <state id="a">
    <onentry>
      <raise/>
      <foreach array="[1]"/>
    </onentry>
    <datamodel><data expr="1"/></datamodel>
  </state>
</scxml>`)
	assert.Nil(t, doc)
	codes := diagnosticCodes(result)
	count := 0
	for _, c := range codes {
		if c == parser.CodeMissingAttribute {
			count++
		}
	}
	assert.GreaterOrEqual(t, count, 3)
}

func TestParseUnknownDatamodel(t *testing.T) {
	doc, result := parse(t, `<scxml version="1.0" datamodel="xpath"><state id="a"/></scxml>`)
	assert.Nil(t, doc)
	assert.Contains(t, diagnosticCodes(result), parser.CodeUnknownDatamodel)
}

func TestParseIfElseifElse(t *testing.T) {
	doc, result := parse(t, `<scxml version="1.0" datamodel="ecmascript" initial="a">
  <state id="a">
    <onentry>
      <if cond="Var1 == 1">
        <raise event="one"/>
      <elseif cond="Var1 == 2"/>
        <raise event="two"/>
      <else/>
        <raise event="other"/>
        <raise event="extra"/>
      </if>
    </onentry>
  </state>
</scxml>`)
	require.False(t, result.HasErrors(), "diagnostics: %v", result.Diagnostics)

	entry := doc.StateByID("a").OnEntry[0]
	require.Len(t, entry, 1)
	ifAction, ok := entry[0].(*model.If)
	require.True(t, ok)
	require.Len(t, ifAction.Branches, 2)
	assert.Equal(t, "Var1 == 1", ifAction.Branches[0].Cond)
	require.Len(t, ifAction.Branches[0].Body, 1)
	assert.Equal(t, "Var1 == 2", ifAction.Branches[1].Cond)
	require.Len(t, ifAction.Branches[1].Body, 1)
	require.Len(t, ifAction.Else, 2)
}

func TestParseSend(t *testing.T) {
	doc, result := parse(t, `<scxml version="1.0" datamodel="ecmascript" initial="a">
  <state id="a">
    <onentry>
      <send event="ping" delay="100ms" id="p1">
        <param name="x" expr="1"/>
        <param name="x" expr="2"/>
      </send>
      <send eventexpr="Var1" targetexpr="Var2" namelist="Var3 Var4"/>
      <cancel sendid="p1"/>
    </onentry>
  </state>
</scxml>`)
	require.False(t, result.HasErrors(), "diagnostics: %v", result.Diagnostics)

	entry := doc.StateByID("a").OnEntry[0]
	require.Len(t, entry, 3)

	send1 := entry[0].(*model.Send)
	assert.Equal(t, "ping", send1.Event)
	assert.Equal(t, "100ms", send1.Delay)
	assert.Equal(t, "p1", send1.ID)
	require.Len(t, send1.Params, 2)

	send2 := entry[1].(*model.Send)
	assert.Equal(t, "Var1", send2.EventExpr)
	assert.Equal(t, "Var2", send2.TargetExpr)
	assert.Equal(t, []string{"Var3", "Var4"}, send2.Namelist)

	cancel := entry[2].(*model.CancelAction)
	assert.Equal(t, "p1", cancel.SendID)
}

func TestParseInvoke(t *testing.T) {
	doc, result := parse(t, `<scxml version="1.0" datamodel="ecmascript" initial="a">
  <state id="a">
    <invoke type="scxml" id="child" autoforward="true">
      <param name="seed" expr="1"/>
      <content><scxml version="1.0" datamodel="ecmascript"><final id="done"/></scxml></content>
      <finalize><assign location="Var1" expr="_event.data"/></finalize>
    </invoke>
  </state>
</scxml>`)
	require.False(t, result.HasErrors(), "diagnostics: %v", result.Diagnostics)

	invokes := doc.StateByID("a").Invokes
	require.Len(t, invokes, 1)
	inv := invokes[0]
	assert.Equal(t, "scxml", inv.Type)
	assert.Equal(t, "child", inv.ID)
	assert.True(t, inv.AutoForward)
	require.Len(t, inv.Params, 1)
	require.NotNil(t, inv.Content)
	assert.Contains(t, inv.Content.Value, "<scxml")
	require.Len(t, inv.Finalize, 1)
}

func TestParseInitialElement(t *testing.T) {
	doc, result := parse(t, `<scxml version="1.0" datamodel="ecmascript">
  <state id="a">
    <initial>
      <transition target="a2"><raise event="via.initial"/></transition>
    </initial>
    <state id="a1"/>
    <state id="a2"/>
  </state>
</scxml>`)
	require.False(t, result.HasErrors(), "diagnostics: %v", result.Diagnostics)

	a := doc.StateByID("a")
	assert.Equal(t, []string{"a2"}, a.Initial)
	require.Len(t, a.InitialActions, 1)
}

func TestParseDefaultInitialIsFirstChild(t *testing.T) {
	doc, result := parse(t, `<scxml version="1.0" datamodel="null">
  <state id="a">
    <state id="a1"/>
    <state id="a2"/>
  </state>
</scxml>`)
	require.False(t, result.HasErrors())
	assert.Equal(t, []string{"a1"}, doc.StateByID("a").Initial)
	assert.Equal(t, []string{"a"}, doc.Root.Initial)
}
