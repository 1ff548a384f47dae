// Package w3ctest is the conformance harness: TXML preprocessing, test
// manifests, the runner, and result persistence. It is peripheral to the
// engines; nothing under the runtime packages depends on it.
package w3ctest

import (
	"fmt"
	"regexp"
)

// The W3C conformance tests are distributed as TXML: SCXML with conf:*
// attributes and elements that a profile-specific preprocessor rewrites.
// ConvertTXML implements the ECMAScript-profile substitutions for the
// vocabulary the bundled tests use. Pure text substitution, as in the
// upstream processor; no DOM round trip.

type substitution struct {
	pattern *regexp.Regexp
	replace string
}

var txmlSubstitutions = []substitution{
	// Root attributes.
	{regexp.MustCompile(`conf:datamodel="[^"]*"`), `datamodel="ecmascript"`},
	{regexp.MustCompile(`\s*xmlns:conf="[^"]*"`), ``},

	// Terminal states.
	{regexp.MustCompile(`<conf:pass\s*/>`), `<final id="pass"/>`},
	{regexp.MustCompile(`<conf:fail\s*/>`), `<final id="fail"/>`},
	{regexp.MustCompile(`conf:targetpass="[^"]*"`), `target="pass"`},
	{regexp.MustCompile(`conf:targetfail="[^"]*"`), `target="fail"`},

	// Datamodel variables: conf ids number the Var namespace.
	{regexp.MustCompile(`conf:id="(\d+)"`), `id="Var$1"`},
	{regexp.MustCompile(`conf:location="(\d+)"`), `location="Var$1"`},
	{regexp.MustCompile(`conf:varExpr="(\d+)"`), `expr="Var$1"`},
	{regexp.MustCompile(`conf:expr="([^"]*)"`), `expr="$1"`},
	{regexp.MustCompile(`conf:quoteExpr="([^"]*)"`), `expr="'$1'"`},
	{regexp.MustCompile(`conf:eventExpr="(\d+)"`), `eventexpr="Var$1"`},
	{regexp.MustCompile(`conf:targetVar="(\d+)"`), `targetexpr="Var$1"`},

	// Conditions.
	{regexp.MustCompile(`conf:idVal="(\d+)=([^"]*)"`), `cond="Var$1==$2"`},
	{regexp.MustCompile(`conf:compareIDVal="(\d+)([=<>]+)(\d+)"`), `cond="Var$1$2Var$3"`},
	{regexp.MustCompile(`conf:true="[^"]*"`), `cond="true"`},
	{regexp.MustCompile(`conf:false="[^"]*"`), `cond="false"`},
	{regexp.MustCompile(`conf:inState="([^"]*)"`), `cond="In('$1')"`},
	{regexp.MustCompile(`conf:unboundVar="(\d+)"`), `cond="typeof Var$1 === 'undefined'"`},
	{regexp.MustCompile(`conf:eventNameVal="([^"]*)"`), `cond="_event.name=='$1'"`},
	{regexp.MustCompile(`conf:eventDataFieldValue="([^"]*)=([^"]*)"`), `cond="_event.data.$1==$2"`},

	// Executable content elements.
	{regexp.MustCompile(`<conf:incrementID\s+id="(\d+)"\s*/>`), `<assign location="Var$1" expr="Var$1 + 1"/>`},
	{regexp.MustCompile(`<conf:sumVars\s+id1="(\d+)"\s+id2="(\d+)"\s*/>`), `<assign location="Var$1" expr="Var$1 + Var$2"/>`},
	{regexp.MustCompile(`<conf:array123\s*/>`), `[1,2,3]`},

	// Event payload plumbing.
	{regexp.MustCompile(`conf:namelist="(\d+)"`), `namelist="Var$1"`},
	{regexp.MustCompile(`conf:eventdataVal="([^"]*)"`), `cond="_event.data == $1"`},
	{regexp.MustCompile(`conf:eventField="([^"]*)"`), `expr="_event.$1"`},
	{regexp.MustCompile(`conf:eventDataNamelistValue="(\d+)"`), `expr="_event.data.Var$1"`},

	// Delays and send ids used by the timing tests.
	{regexp.MustCompile(`conf:delay="([^"]*)"`), `delay="$1ms"`},
	{regexp.MustCompile(`conf:sendIDExpr="(\d+)"`), `sendidexpr="Var$1"`},
	{regexp.MustCompile(`conf:idlocation="(\d+)"`), `idlocation="Var$1"`},

	// Invalid-construct markers: expressions that must fail to evaluate.
	{regexp.MustCompile(`conf:illegalExpr="[^"]*"`), `expr="!&gt;"`},
	{regexp.MustCompile(`conf:illegalCond="[^"]*"`), `cond="!&gt;"`},
	{regexp.MustCompile(`conf:illegalLocation="[^"]*"`), `location=""`},
	{regexp.MustCompile(`conf:illegalTarget="[^"]*"`), `target="baz"`},
	{regexp.MustCompile(`conf:unreachableTarget="[^"]*"`), `target="#_scxml_nonexistent"`},
	{regexp.MustCompile(`conf:invalidSendType="[^"]*"`), `type="invalid"`},
}

var leftoverConf = regexp.MustCompile(`conf:[A-Za-z0-9]+`)

// ConvertTXML rewrites a TXML test into plain SCXML for the ECMAScript
// datamodel. It fails loudly on conf: vocabulary it does not know rather
// than producing a silently wrong test.
func ConvertTXML(txml []byte) ([]byte, error) {
	out := txml
	for _, sub := range txmlSubstitutions {
		out = sub.pattern.ReplaceAll(out, []byte(sub.replace))
	}
	if rest := leftoverConf.Find(out); rest != nil {
		return nil, fmt.Errorf("w3ctest: unsupported TXML construct %q", rest)
	}
	return out, nil
}
