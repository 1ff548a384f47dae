package codegen

import (
	"bytes"
	"fmt"
	"strconv"
	"strings"

	"github.com/newmassrael/reactive-state-machine-sub002/interpreter"
	"github.com/newmassrael/reactive-state-machine-sub002/model"
)

// emitCompiledContent writes compiledContent(), the inlined executable
// content blocks: one straight-line function per onentry/onexit block,
// transition body, initial transition, and history default.
func (g *generator) emitCompiledContent(buf *bytes.Buffer) {
	fmt.Fprintf(buf, "\n// compiledContent carries the inlined executable-content blocks.\n")
	fmt.Fprintf(buf, "func compiledContent() *interpreter.Compiled {\n")
	fmt.Fprintf(buf, "\treturn &interpreter.Compiled{\n")

	g.emitBlockMap(buf, "OnEntry", func(s *model.State) [][]model.Action { return s.OnEntry })
	g.emitBlockMap(buf, "OnExit", func(s *model.State) [][]model.Action { return s.OnExit })

	fmt.Fprintf(buf, "\t\tTransition: map[string]interpreter.ActionFunc{\n")
	g.walkTransitions(func(t *model.Transition) {
		if len(t.Actions) == 0 {
			return
		}
		fmt.Fprintf(buf, "\t\t\t%s: ", strconv.Quote(interpreter.TransitionKey(t)))
		g.emitActionFunc(buf, t.Actions, 3)
		fmt.Fprintf(buf, ",\n")
	})
	fmt.Fprintf(buf, "\t\t},\n")

	fmt.Fprintf(buf, "\t\tInitial: map[string]interpreter.ActionFunc{\n")
	g.walkStates(func(s *model.State) {
		if len(s.InitialActions) == 0 {
			return
		}
		fmt.Fprintf(buf, "\t\t\t%s: ", strconv.Quote(s.ID))
		g.emitActionFunc(buf, s.InitialActions, 3)
		fmt.Fprintf(buf, ",\n")
	})
	fmt.Fprintf(buf, "\t\t},\n")

	fmt.Fprintf(buf, "\t\tHistoryDefault: map[string]interpreter.ActionFunc{\n")
	g.walkStates(func(s *model.State) {
		if !s.IsHistory() || len(s.Transitions) == 0 || len(s.Transitions[0].Actions) == 0 {
			return
		}
		fmt.Fprintf(buf, "\t\t\t%s: ", strconv.Quote(s.Parent.ID))
		g.emitActionFunc(buf, s.Transitions[0].Actions, 3)
		fmt.Fprintf(buf, ",\n")
	})
	fmt.Fprintf(buf, "\t\t},\n")

	fmt.Fprintf(buf, "\t}\n}\n")
}

func (g *generator) walkStates(fn func(s *model.State)) {
	var walk func(s *model.State)
	walk = func(s *model.State) {
		fn(s)
		for _, c := range s.Children {
			walk(c)
		}
	}
	walk(g.doc.Root)
}

func (g *generator) emitBlockMap(buf *bytes.Buffer, field string, blocks func(*model.State) [][]model.Action) {
	fmt.Fprintf(buf, "\t\t%s: map[string][]interpreter.ActionFunc{\n", field)
	g.walkStates(func(s *model.State) {
		bs := blocks(s)
		if len(bs) == 0 || s.ID == "" {
			return
		}
		fmt.Fprintf(buf, "\t\t\t%s: {\n", strconv.Quote(s.ID))
		for _, block := range bs {
			fmt.Fprintf(buf, "\t\t\t\t")
			g.emitActionFunc(buf, block, 4)
			fmt.Fprintf(buf, ",\n")
		}
		fmt.Fprintf(buf, "\t\t\t},\n")
	})
	fmt.Fprintf(buf, "\t\t},\n")
}

// emitActionFunc writes one block as a func literal over the Hooks surface.
func (g *generator) emitActionFunc(buf *bytes.Buffer, actions []model.Action, depth int) {
	ind := strings.Repeat("\t", depth)
	fmt.Fprintf(buf, "func(ctx context.Context, h *interpreter.Hooks) error {\n")
	g.emitActionBody(buf, actions, depth+1)
	fmt.Fprintf(buf, "%s\treturn nil\n%s}", ind, ind)
}

// emitActionBody writes the straight-line statements for an action list.
// Any failing call returns its error, which aborts the rest of the block
// exactly like the interpreted executor.
func (g *generator) emitActionBody(buf *bytes.Buffer, actions []model.Action, depth int) {
	ind := strings.Repeat("\t", depth)
	for _, action := range actions {
		switch a := action.(type) {
		case *model.Raise:
			fmt.Fprintf(buf, "%sif err := h.Raise(%s); err != nil {\n%s\treturn err\n%s}\n",
				ind, strconv.Quote(a.Event), ind, ind)

		case *model.Log:
			fmt.Fprintf(buf, "%sif err := h.Log(ctx, %s, %s); err != nil {\n%s\treturn err\n%s}\n",
				ind, strconv.Quote(a.Label), strconv.Quote(a.Expr), ind, ind)

		case *model.Assign:
			if a.Expr != "" {
				fmt.Fprintf(buf, "%sif err := h.Assign(ctx, %s, %s); err != nil {\n%s\treturn err\n%s}\n",
					ind, strconv.Quote(a.Location), strconv.Quote(a.Expr), ind, ind)
			} else {
				fmt.Fprintf(buf, "%sif err := h.AssignValue(ctx, %s, %s); err != nil {\n%s\treturn err\n%s}\n",
					ind, strconv.Quote(a.Location), strconv.Quote(a.Content), ind, ind)
			}

		case *model.ScriptAction:
			fmt.Fprintf(buf, "%sif err := h.Script(ctx, %s); err != nil {\n%s\treturn err\n%s}\n",
				ind, strconv.Quote(a.Source), ind, ind)

		case *model.If:
			// The linear branch search compiles to a one-shot loop so each
			// taken arm can break out past the remaining conds.
			fmt.Fprintf(buf, "%sfor {\n", ind)
			first := true
			for _, branch := range a.Branches {
				assign := ":="
				if !first {
					assign = "="
				}
				fmt.Fprintf(buf, "%s\tok, err %s h.Cond(ctx, %s)\n", ind, assign, strconv.Quote(branch.Cond))
				fmt.Fprintf(buf, "%s\tif err != nil {\n%s\t\treturn err\n%s\t}\n", ind, ind, ind)
				fmt.Fprintf(buf, "%s\tif ok {\n", ind)
				g.emitActionBody(buf, branch.Body, depth+2)
				fmt.Fprintf(buf, "%s\t\tbreak\n%s\t}\n", ind, ind)
				first = false
			}
			g.emitActionBody(buf, a.Else, depth+1)
			fmt.Fprintf(buf, "%s\tbreak\n%s}\n", ind, ind)

		case *model.Foreach:
			fmt.Fprintf(buf, "%sif err := h.Foreach(ctx, %s, %s, %s, func(ctx context.Context) error {\n",
				ind, strconv.Quote(a.Array), strconv.Quote(a.Item), strconv.Quote(a.Index))
			g.emitActionBody(buf, a.Body, depth+1)
			fmt.Fprintf(buf, "%s\treturn nil\n%s}); err != nil {\n%s\treturn err\n%s}\n", ind, ind, ind, ind)

		case *model.Send:
			fmt.Fprintf(buf, "%sif err := h.Send(ctx, %s); err != nil {\n%s\treturn err\n%s}\n",
				ind, sendLiteral(a), ind, ind)

		case *model.CancelAction:
			fmt.Fprintf(buf, "%sif err := h.Cancel(ctx, &model.CancelAction{SendID: %s, SendIDExpr: %s}); err != nil {\n%s\treturn err\n%s}\n",
				ind, strconv.Quote(a.SendID), strconv.Quote(a.SendIDExpr), ind, ind)
		}
	}
}

func sendLiteral(a *model.Send) string {
	var sb strings.Builder
	sb.WriteString("&model.Send{")
	fields := []struct{ name, value string }{
		{"Event", a.Event},
		{"EventExpr", a.EventExpr},
		{"Target", a.Target},
		{"TargetExpr", a.TargetExpr},
		{"Type", a.Type},
		{"TypeExpr", a.TypeExpr},
		{"ID", a.ID},
		{"IDLocation", a.IDLocation},
		{"Delay", a.Delay},
		{"DelayExpr", a.DelayExpr},
	}
	first := true
	for _, f := range fields {
		if f.value == "" {
			continue
		}
		if !first {
			sb.WriteString(", ")
		}
		fmt.Fprintf(&sb, "%s: %s", f.name, strconv.Quote(f.value))
		first = false
	}
	if len(a.Namelist) > 0 {
		if !first {
			sb.WriteString(", ")
		}
		fmt.Fprintf(&sb, "Namelist: %s", stringSliceLiteral(a.Namelist))
		first = false
	}
	if len(a.Params) > 0 {
		if !first {
			sb.WriteString(", ")
		}
		fmt.Fprintf(&sb, "Params: %s", paramsLiteral(a.Params))
		first = false
	}
	if a.Content != nil {
		if !first {
			sb.WriteString(", ")
		}
		fmt.Fprintf(&sb, "Content: &model.Content{Expr: %s, Value: %s}",
			strconv.Quote(a.Content.Expr), strconv.Quote(a.Content.Value))
	}
	sb.WriteString("}")
	return sb.String()
}
