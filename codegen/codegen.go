// Package codegen is the AOT pass: it walks a parsed document and emits a
// Go source file whose machine is observationally identical to the
// interpreter over the same document. The emitted code rebuilds the document
// model as constants, carries precomputed descriptor tables and transition
// domains, and inlines every executable-content block as a straight-line
// function over the interpreter's Hooks surface. Descriptor matching, LCA,
// exit sets and conflict resolution still go through the shared algo
// package, which is what keeps the two engines in lockstep.
package codegen

import (
	"bytes"
	"fmt"
	"go/format"
	"sort"
	"strconv"
	"strings"
	"text/template"

	"github.com/newmassrael/reactive-state-machine-sub002/algo"
	"github.com/newmassrael/reactive-state-machine-sub002/interpreter"
	"github.com/newmassrael/reactive-state-machine-sub002/model"
)

// Options controls generation.
type Options struct {
	// Package is the emitted package name; defaults to "machine".
	Package string
	// Source names the input document in the generated header.
	Source string
}

const fileTemplate = `// Code generated by rsm codegen from {{.Source}}. DO NOT EDIT.

package {{.Package}}

import (
{{- if .HasContent}}
	"context"
{{end}}
	"github.com/newmassrael/reactive-state-machine-sub002/algo"
	"github.com/newmassrael/reactive-state-machine-sub002/interpreter"
	"github.com/newmassrael/reactive-state-machine-sub002/model"
)

// State identifiers.
const (
{{- range .States}}
	{{.Const}} = {{.Quoted}}
{{- end}}
)

// transitionDescriptors holds the precomputed event descriptors per
// transition key.
var transitionDescriptors = map[string][]string{
{{- range .Descriptors}}
	{{.Key}}: {{.Value}},
{{- end}}
}

// transitionDomains holds the statically computed transition domains; an
// empty value names the document root. Transitions with history targets are
// absent and resolve dynamically.
var transitionDomains = map[string]string{
{{- range .Domains}}
	{{.Key}}: {{.Value}},
{{- end}}
}

// dispatchTable implements interpreter.Dispatch from the precomputed
// tables, delegating descriptor semantics to the shared matcher.
type dispatchTable struct {
	doc *model.Document
}

func (d *dispatchTable) Matches(t *model.Transition, eventName string) bool {
	descriptors, ok := transitionDescriptors[interpreter.TransitionKey(t)]
	if !ok {
		descriptors = t.Events
	}
	if eventName == "" {
		return len(descriptors) == 0
	}
	return len(descriptors) > 0 && algo.MatchAnyDescriptor(descriptors, eventName)
}

func (d *dispatchTable) TransitionDomain(t *model.Transition) (*model.State, bool) {
	id, ok := transitionDomains[interpreter.TransitionKey(t)]
	if !ok {
		return nil, false
	}
	if id == "" {
		return d.doc.Root, true
	}
	return d.doc.StateByID(id), true
}

// New builds a session over the compiled document with precomputed dispatch
// and inlined executable content. Additional options append after the
// compiled ones, so callers may override the clock, logger, or observer.
func New(opts ...interpreter.Option) (*interpreter.Session, error) {
	doc, err := Definition()
	if err != nil {
		return nil, err
	}
	compiled := append([]interpreter.Option{
		interpreter.WithDispatch(&dispatchTable{doc: doc}),
		interpreter.WithCompiled(compiledContent()),
	}, opts...)
	return interpreter.New(doc, compiled...)
}
`

// Generate emits the machine source for one document.
func Generate(doc *model.Document, opts Options) ([]byte, error) {
	if opts.Package == "" {
		opts.Package = "machine"
	}
	if opts.Source == "" {
		opts.Source = "scxml"
	}

	g := &generator{doc: doc}
	var buf bytes.Buffer

	tmpl := template.Must(template.New("file").Parse(fileTemplate))
	if err := tmpl.Execute(&buf, g.templateData(opts)); err != nil {
		return nil, fmt.Errorf("codegen: %w", err)
	}

	g.emitDefinition(&buf)
	g.emitCompiledContent(&buf)

	formatted, err := format.Source(buf.Bytes())
	if err != nil {
		return nil, fmt.Errorf("codegen: emitted source does not format: %w", err)
	}
	return formatted, nil
}

type generator struct {
	doc *model.Document
}

type constEntry struct{ Const, Quoted string }
type tableEntry struct{ Key, Value string }

type templateData struct {
	Package     string
	Source      string
	HasContent  bool
	States      []constEntry
	Descriptors []tableEntry
	Domains     []tableEntry
}

func (g *generator) templateData(opts Options) templateData {
	data := templateData{Package: opts.Package, Source: opts.Source}
	g.walkStates(func(s *model.State) {
		if len(s.OnEntry) > 0 || len(s.OnExit) > 0 || len(s.InitialActions) > 0 {
			data.HasContent = true
		}
		for _, t := range s.Transitions {
			if len(t.Actions) > 0 {
				data.HasContent = true
			}
		}
	})
	for _, st := range g.doc.States {
		data.States = append(data.States, constEntry{
			Const:  "State" + exportName(st.ID),
			Quoted: strconv.Quote(st.ID),
		})
	}

	g.walkTransitions(func(t *model.Transition) {
		key := strconv.Quote(interpreter.TransitionKey(t))
		data.Descriptors = append(data.Descriptors, tableEntry{
			Key:   key,
			Value: stringSliceLiteral(t.Events),
		})
		if domain, ok := staticDomain(t); ok {
			data.Domains = append(data.Domains, tableEntry{
				Key:   key,
				Value: strconv.Quote(domain),
			})
		}
	})
	sort.Slice(data.Descriptors, func(i, j int) bool { return data.Descriptors[i].Key < data.Descriptors[j].Key })
	sort.Slice(data.Domains, func(i, j int) bool { return data.Domains[i].Key < data.Domains[j].Key })
	return data
}

// staticDomain precomputes the transition domain when no history state is
// involved; history targets depend on run-time records.
func staticDomain(t *model.Transition) (string, bool) {
	if t.IsTargetless() {
		return "", false
	}
	for _, target := range t.TargetStates {
		if target.IsHistory() {
			return "", false
		}
	}
	domain := algo.TransitionDomain(t, nil)
	if domain == nil {
		return "", false
	}
	return domain.ID, true
}

func (g *generator) walkTransitions(fn func(t *model.Transition)) {
	var walk func(s *model.State)
	walk = func(s *model.State) {
		for _, t := range s.Transitions {
			fn(t)
		}
		for _, c := range s.Children {
			walk(c)
		}
	}
	walk(g.doc.Root)
}

// emitDefinition writes the Definition function rebuilding the document
// model with no XML parsing at run time.
func (g *generator) emitDefinition(buf *bytes.Buffer) {
	fmt.Fprintf(buf, "\n// Definition rebuilds the compiled document model.\n")
	fmt.Fprintf(buf, "func Definition() (*model.Document, error) {\n")
	fmt.Fprintf(buf, "\troot := ")
	g.emitState(buf, g.doc.Root, 1)
	fmt.Fprintf(buf, "\n\treturn model.NewDocument(%s, %s, %s, %s, root)\n}\n",
		strconv.Quote(g.doc.Name),
		strconv.Quote(g.doc.Datamodel),
		bindingLiteral(g.doc.Binding),
		strconv.Quote(g.doc.Version))
}

func bindingLiteral(b model.Binding) string {
	if b == model.BindingLate {
		return "model.BindingLate"
	}
	return "model.BindingEarly"
}

func kindLiteral(k model.Kind) string {
	switch k {
	case model.KindCompound:
		return "model.KindCompound"
	case model.KindParallel:
		return "model.KindParallel"
	case model.KindFinal:
		return "model.KindFinal"
	case model.KindHistoryShallow:
		return "model.KindHistoryShallow"
	case model.KindHistoryDeep:
		return "model.KindHistoryDeep"
	default:
		return "model.KindAtomic"
	}
}

func (g *generator) emitState(buf *bytes.Buffer, s *model.State, depth int) {
	ind := strings.Repeat("\t", depth)
	fmt.Fprintf(buf, "&model.State{\n")
	if s.ID != "" {
		fmt.Fprintf(buf, "%s\tID: %s,\n", ind, strconv.Quote(s.ID))
	}
	fmt.Fprintf(buf, "%s\tKind: %s,\n", ind, kindLiteral(s.Kind))
	if len(s.Initial) > 0 {
		fmt.Fprintf(buf, "%s\tInitial: %s,\n", ind, stringSliceLiteral(s.Initial))
	}
	if len(s.InitialActions) > 0 {
		fmt.Fprintf(buf, "%s\tInitialActions: ", ind)
		g.emitActions(buf, s.InitialActions, depth+1)
		fmt.Fprintf(buf, ",\n")
	}
	if len(s.Transitions) > 0 {
		fmt.Fprintf(buf, "%s\tTransitions: []*model.Transition{\n", ind)
		for _, t := range s.Transitions {
			fmt.Fprintf(buf, "%s\t\t{\n", ind)
			if len(t.Events) > 0 {
				fmt.Fprintf(buf, "%s\t\t\tEvents: %s,\n", ind, stringSliceLiteral(t.Events))
			}
			if t.Cond != "" {
				fmt.Fprintf(buf, "%s\t\t\tCond: %s,\n", ind, strconv.Quote(t.Cond))
			}
			if len(t.Targets) > 0 {
				fmt.Fprintf(buf, "%s\t\t\tTargets: %s,\n", ind, stringSliceLiteral(t.Targets))
			}
			if t.Internal {
				fmt.Fprintf(buf, "%s\t\t\tInternal: true,\n", ind)
			}
			if len(t.Actions) > 0 {
				fmt.Fprintf(buf, "%s\t\t\tActions: ", ind)
				g.emitActions(buf, t.Actions, depth+3)
				fmt.Fprintf(buf, ",\n")
			}
			fmt.Fprintf(buf, "%s\t\t},\n", ind)
		}
		fmt.Fprintf(buf, "%s\t},\n", ind)
	}
	for i, blocks := range [][][]model.Action{s.OnEntry, s.OnExit} {
		if len(blocks) == 0 {
			continue
		}
		field := "OnEntry"
		if i == 1 {
			field = "OnExit"
		}
		fmt.Fprintf(buf, "%s\t%s: [][]model.Action{\n", ind, field)
		for _, block := range blocks {
			fmt.Fprintf(buf, "%s\t\t", ind)
			g.emitActions(buf, block, depth+2)
			fmt.Fprintf(buf, ",\n")
		}
		fmt.Fprintf(buf, "%s\t},\n", ind)
	}
	if len(s.Data) > 0 {
		fmt.Fprintf(buf, "%s\tData: []model.Data{\n", ind)
		for _, d := range s.Data {
			fmt.Fprintf(buf, "%s\t\t{ID: %s, Expr: %s, Src: %s, Content: %s},\n", ind,
				strconv.Quote(d.ID), strconv.Quote(d.Expr), strconv.Quote(d.Src), strconv.Quote(d.Content))
		}
		fmt.Fprintf(buf, "%s\t},\n", ind)
	}
	if s.DoneData != nil {
		fmt.Fprintf(buf, "%s\tDoneData: &model.DoneData{\n", ind)
		if s.DoneData.Content != nil {
			fmt.Fprintf(buf, "%s\t\tContent: &model.Content{Expr: %s, Value: %s},\n", ind,
				strconv.Quote(s.DoneData.Content.Expr), strconv.Quote(s.DoneData.Content.Value))
		}
		if len(s.DoneData.Params) > 0 {
			fmt.Fprintf(buf, "%s\t\tParams: %s,\n", ind, paramsLiteral(s.DoneData.Params))
		}
		fmt.Fprintf(buf, "%s\t},\n", ind)
	}
	if len(s.Invokes) > 0 {
		fmt.Fprintf(buf, "%s\tInvokes: []*model.Invoke{\n", ind)
		for _, inv := range s.Invokes {
			g.emitInvoke(buf, inv, depth+2)
		}
		fmt.Fprintf(buf, "%s\t},\n", ind)
	}
	if len(s.Children) > 0 {
		fmt.Fprintf(buf, "%s\tChildren: []*model.State{\n", ind)
		for _, c := range s.Children {
			fmt.Fprintf(buf, "%s\t\t", ind)
			g.emitState(buf, c, depth+2)
			fmt.Fprintf(buf, ",\n")
		}
		fmt.Fprintf(buf, "%s\t},\n", ind)
	}
	fmt.Fprintf(buf, "%s}", ind)
}

func (g *generator) emitInvoke(buf *bytes.Buffer, inv *model.Invoke, depth int) {
	ind := strings.Repeat("\t", depth)
	fmt.Fprintf(buf, "%s{\n", ind)
	emitStringField(buf, ind, "Type", inv.Type)
	emitStringField(buf, ind, "TypeExpr", inv.TypeExpr)
	emitStringField(buf, ind, "Src", inv.Src)
	emitStringField(buf, ind, "SrcExpr", inv.SrcExpr)
	emitStringField(buf, ind, "ID", inv.ID)
	emitStringField(buf, ind, "IDLocation", inv.IDLocation)
	if len(inv.Namelist) > 0 {
		fmt.Fprintf(buf, "%s\tNamelist: %s,\n", ind, stringSliceLiteral(inv.Namelist))
	}
	if inv.AutoForward {
		fmt.Fprintf(buf, "%s\tAutoForward: true,\n", ind)
	}
	if len(inv.Params) > 0 {
		fmt.Fprintf(buf, "%s\tParams: %s,\n", ind, paramsLiteral(inv.Params))
	}
	if inv.Content != nil {
		fmt.Fprintf(buf, "%s\tContent: &model.Content{Expr: %s, Value: %s},\n", ind,
			strconv.Quote(inv.Content.Expr), strconv.Quote(inv.Content.Value))
	}
	if len(inv.Finalize) > 0 {
		fmt.Fprintf(buf, "%s\tFinalize: ", ind)
		g.emitActions(buf, inv.Finalize, depth+1)
		fmt.Fprintf(buf, ",\n")
	}
	fmt.Fprintf(buf, "%s},\n", ind)
}

func emitStringField(buf *bytes.Buffer, ind, name, value string) {
	if value != "" {
		fmt.Fprintf(buf, "%s\t%s: %s,\n", ind, name, strconv.Quote(value))
	}
}

func stringSliceLiteral(values []string) string {
	if len(values) == 0 {
		return "nil"
	}
	quoted := make([]string, len(values))
	for i, v := range values {
		quoted[i] = strconv.Quote(v)
	}
	return "[]string{" + strings.Join(quoted, ", ") + "}"
}

func paramsLiteral(params []model.Param) string {
	var sb strings.Builder
	sb.WriteString("[]model.Param{")
	for i, p := range params {
		if i > 0 {
			sb.WriteString(", ")
		}
		fmt.Fprintf(&sb, "{Name: %s, Expr: %s, Location: %s}",
			strconv.Quote(p.Name), strconv.Quote(p.Expr), strconv.Quote(p.Location))
	}
	sb.WriteString("}")
	return sb.String()
}

// exportName turns a state id into a Go identifier fragment.
func exportName(id string) string {
	var sb strings.Builder
	upper := true
	for _, r := range id {
		switch {
		case r >= 'a' && r <= 'z':
			if upper {
				sb.WriteRune(r - 'a' + 'A')
			} else {
				sb.WriteRune(r)
			}
			upper = false
		case (r >= 'A' && r <= 'Z') || (r >= '0' && r <= '9'):
			sb.WriteRune(r)
			upper = false
		default:
			upper = true
		}
	}
	if sb.Len() == 0 {
		return "X"
	}
	name := sb.String()
	if name[0] >= '0' && name[0] <= '9' {
		name = "X" + name
	}
	return name
}
