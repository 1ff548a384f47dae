package codegen

import (
	"bytes"
	"fmt"
	"strconv"
	"strings"

	"github.com/newmassrael/reactive-state-machine-sub002/model"
)

// emitActions writes a []model.Action literal for the Definition function.
// The compiled content funcs inline the same blocks for execution; the model
// copy keeps donedata evaluation, finalize and dynamic fallbacks identical
// to the interpreter's view of the document.
func (g *generator) emitActions(buf *bytes.Buffer, actions []model.Action, depth int) {
	ind := strings.Repeat("\t", depth)
	fmt.Fprintf(buf, "[]model.Action{\n")
	for _, action := range actions {
		fmt.Fprintf(buf, "%s\t", ind)
		g.emitActionLiteral(buf, action, depth+1)
		fmt.Fprintf(buf, ",\n")
	}
	fmt.Fprintf(buf, "%s}", ind)
}

func (g *generator) emitActionLiteral(buf *bytes.Buffer, action model.Action, depth int) {
	ind := strings.Repeat("\t", depth)
	switch a := action.(type) {
	case *model.Raise:
		fmt.Fprintf(buf, "&model.Raise{Event: %s}", strconv.Quote(a.Event))

	case *model.Log:
		fmt.Fprintf(buf, "&model.Log{Label: %s, Expr: %s}", strconv.Quote(a.Label), strconv.Quote(a.Expr))

	case *model.Assign:
		fmt.Fprintf(buf, "&model.Assign{Location: %s, Expr: %s, Content: %s}",
			strconv.Quote(a.Location), strconv.Quote(a.Expr), strconv.Quote(a.Content))

	case *model.ScriptAction:
		fmt.Fprintf(buf, "&model.ScriptAction{Source: %s}", strconv.Quote(a.Source))

	case *model.Send:
		fmt.Fprintf(buf, "%s", sendLiteral(a))

	case *model.CancelAction:
		fmt.Fprintf(buf, "&model.CancelAction{SendID: %s, SendIDExpr: %s}",
			strconv.Quote(a.SendID), strconv.Quote(a.SendIDExpr))

	case *model.If:
		fmt.Fprintf(buf, "&model.If{\n%s\tBranches: []model.Branch{\n", ind)
		for _, branch := range a.Branches {
			fmt.Fprintf(buf, "%s\t\t{Cond: %s, Body: ", ind, strconv.Quote(branch.Cond))
			g.emitActions(buf, branch.Body, depth+2)
			fmt.Fprintf(buf, "},\n")
		}
		fmt.Fprintf(buf, "%s\t},\n", ind)
		if len(a.Else) > 0 {
			fmt.Fprintf(buf, "%s\tElse: ", ind)
			g.emitActions(buf, a.Else, depth+1)
			fmt.Fprintf(buf, ",\n")
		}
		fmt.Fprintf(buf, "%s}", ind)

	case *model.Foreach:
		fmt.Fprintf(buf, "&model.Foreach{\n%s\tArray: %s,\n%s\tItem: %s,\n", ind,
			strconv.Quote(a.Array), ind, strconv.Quote(a.Item))
		if a.Index != "" {
			fmt.Fprintf(buf, "%s\tIndex: %s,\n", ind, strconv.Quote(a.Index))
		}
		fmt.Fprintf(buf, "%s\tBody: ", ind)
		g.emitActions(buf, a.Body, depth+1)
		fmt.Fprintf(buf, ",\n%s}", ind)

	default:
		// The action variant is closed; reaching this is a generator bug.
		fmt.Fprintf(buf, "nil /* unknown action %T */", action)
	}
}
