// Package parser translates an SCXML XML DOM into the immutable document
// model, reporting structural problems as positioned diagnostics in the
// style of an XML validator: the caller gets every error found, not just
// the first.
package parser

import (
	"regexp"
	"strings"

	"github.com/agentflare-ai/go-xmldom"

	"github.com/newmassrael/reactive-state-machine-sub002/model"
)

type parser struct {
	source string
	result Result
	ids    map[string]xmldom.Element
}

// Parse builds the document model from a decoded DOM. A document with error
// diagnostics yields a nil model; warnings alone do not prevent loading.
func Parse(doc xmldom.Document, sourceName string) (*model.Document, Result) {
	p := &parser{source: sourceName, ids: make(map[string]xmldom.Element)}
	root := doc.DocumentElement()
	if root == nil {
		p.result.Add(Diagnostic{
			Severity: SeverityError,
			Code:     CodeMissingAttribute,
			Message:  "document has no root element",
			Position: Position{File: sourceName},
		})
		return nil, p.result
	}
	if local(root) != "scxml" {
		p.errorf(root, CodeIllegalNesting, "", "root element must be <scxml>, got <%s>", local(root))
		return nil, p.result
	}

	datamodelName := attr(root, "datamodel")
	switch datamodelName {
	case "", "null", "ecmascript":
	default:
		p.errorf(root, CodeUnknownDatamodel, "datamodel", "unsupported datamodel %q", datamodelName)
	}
	binding := model.BindingEarly
	switch attr(root, "binding") {
	case "", "early":
	case "late":
		binding = model.BindingLate
	default:
		p.errorf(root, CodeBadAttributeValue, "binding", "binding must be 'early' or 'late'")
	}

	rootState := &model.State{Kind: model.KindCompound, Pos: pos(root)}
	p.parseStateBody(root, rootState)
	if initial := attr(root, "initial"); initial != "" {
		rootState.Initial = strings.Fields(initial)
	}
	var script model.Action
	for _, el := range children(root) {
		if local(el) == "script" {
			script = &model.ScriptAction{Source: text(el), Pos: pos(el)}
		}
	}

	p.checkTargets(rootState)
	if p.result.HasErrors() {
		return nil, p.result
	}

	d, err := model.NewDocument(attr(root, "name"), datamodelName, binding, attr(root, "version"), rootState)
	if err != nil {
		p.errorf(root, CodeDepthExceeded, "", "%v", err)
		return nil, p.result
	}
	d.Script = script
	return d, p.result
}

// ParseBytes decodes and parses raw SCXML. XML-level failures are returned
// as the error; structural failures land in the Result.
func ParseBytes(data []byte, sourceName string) (*model.Document, Result, error) {
	decoder := xmldom.NewDecoderFromBytes(data)
	doc, err := decoder.Decode()
	if err != nil {
		return nil, Result{}, err
	}
	d, res := Parse(doc, sourceName)
	return d, res, nil
}

// parseState builds one state node and its subtree.
func (p *parser) parseState(el xmldom.Element) *model.State {
	s := &model.State{ID: attr(el, "id"), Pos: pos(el)}
	switch local(el) {
	case "state":
		s.Kind = model.KindAtomic // promoted to compound when children appear
	case "parallel":
		s.Kind = model.KindParallel
	case "final":
		s.Kind = model.KindFinal
	case "history":
		switch attr(el, "type") {
		case "", "shallow":
			s.Kind = model.KindHistoryShallow
		case "deep":
			s.Kind = model.KindHistoryDeep
		default:
			p.errorf(el, CodeBadAttributeValue, "type", "history type must be 'shallow' or 'deep'")
			s.Kind = model.KindHistoryShallow
		}
	}

	if s.ID != "" {
		if prev, dup := p.ids[s.ID]; dup {
			line, _, _ := prev.Position()
			p.errorf(el, CodeDuplicateID, "id", "duplicate state id %q (first declared at line %d)", s.ID, line)
		} else {
			p.ids[s.ID] = el
		}
	}

	p.parseStateBody(el, s)

	if initial := attr(el, "initial"); initial != "" {
		if s.Kind == model.KindParallel {
			p.errorf(el, CodeBadInitial, "initial", "<parallel> cannot carry an initial attribute")
		} else {
			s.Initial = strings.Fields(initial)
		}
	}

	switch s.Kind {
	case model.KindAtomic:
		if hasStateChildren(s) {
			s.Kind = model.KindCompound
		}
	case model.KindFinal:
		if hasStateChildren(s) {
			p.errorf(el, CodeIllegalNesting, "", "<final> cannot contain child states")
		}
		if len(s.Transitions) > 0 {
			p.errorf(el, CodeIllegalNesting, "", "<final> cannot have outgoing transitions")
		}
	case model.KindHistoryShallow, model.KindHistoryDeep:
		if len(s.Children) > 0 {
			p.errorf(el, CodeIllegalNesting, "", "<history> cannot contain child states")
		}
		if len(s.Transitions) != 1 {
			p.errorf(el, CodeIllegalNesting, "", "<history> must carry exactly one default transition")
		} else if t := s.Transitions[0]; len(t.Events) > 0 || t.Cond != "" {
			p.errorf(el, CodeIllegalNesting, "", "a history default transition cannot have event or cond")
		}
	}
	return s
}

// parseStateBody parses the shared children of scxml/state/parallel/final.
func (p *parser) parseStateBody(el xmldom.Element, s *model.State) {
	for _, child := range children(el) {
		switch local(child) {
		case "state", "parallel", "final", "history":
			cs := p.parseState(child)
			if cs.IsHistory() && local(el) != "state" {
				p.errorf(child, CodeIllegalNesting, "", "<history> may only appear inside <state>")
			}
			s.Children = append(s.Children, cs)
		case "initial":
			p.parseInitial(child, s)
		case "transition":
			if t := p.parseTransition(child); t != nil {
				s.Transitions = append(s.Transitions, t)
			}
		case "onentry":
			s.OnEntry = append(s.OnEntry, p.parseExecutable(child))
		case "onexit":
			s.OnExit = append(s.OnExit, p.parseExecutable(child))
		case "datamodel":
			for _, data := range children(child) {
				if local(data) != "data" {
					continue
				}
				id := attr(data, "id")
				if id == "" {
					p.errorf(data, CodeMissingAttribute, "id", "<data> requires an id attribute")
					continue
				}
				s.Data = append(s.Data, model.Data{
					ID:      id,
					Expr:    attr(data, "expr"),
					Src:     attr(data, "src"),
					Content: text(data),
					Pos:     pos(data),
				})
			}
		case "donedata":
			s.DoneData = p.parseDoneData(child)
		case "invoke":
			s.Invokes = append(s.Invokes, p.parseInvoke(child))
		case "script":
			// Handled at document level for <scxml>; illegal elsewhere.
			if local(el) != "scxml" {
				p.warnf(child, CodeIllegalNesting, "", "<script> outside onentry/onexit is ignored")
			}
		}
	}
}

func (p *parser) parseInitial(el xmldom.Element, s *model.State) {
	for _, child := range children(el) {
		if local(child) != "transition" {
			continue
		}
		target := attr(child, "target")
		if target == "" {
			p.errorf(child, CodeMissingAttribute, "target", "<initial> transition requires a target")
			return
		}
		if len(s.Initial) > 0 {
			p.errorf(el, CodeBadInitial, "", "state declares both an initial attribute and an <initial> element")
		}
		s.Initial = strings.Fields(target)
		s.InitialActions = p.parseExecutable(child)
		return
	}
	p.errorf(el, CodeMissingAttribute, "", "<initial> requires a <transition> child")
}

var descriptorPattern = regexp.MustCompile(`^(\*|[\w-]+(\.[\w-]+)*(\.\*)?)$`)

func (p *parser) parseTransition(el xmldom.Element) *model.Transition {
	t := &model.Transition{
		Cond: attr(el, "cond"),
		Pos:  pos(el),
	}
	if event := attr(el, "event"); event != "" {
		t.Events = strings.Fields(event)
		for _, desc := range t.Events {
			if !descriptorPattern.MatchString(desc) {
				p.errorf(el, CodeBadDescriptor, "event", "malformed event descriptor %q", desc)
			}
		}
	}
	if target := attr(el, "target"); target != "" {
		t.Targets = strings.Fields(target)
	}
	switch attr(el, "type") {
	case "", "external":
	case "internal":
		t.Internal = true
	default:
		p.errorf(el, CodeBadAttributeValue, "type", "transition type must be 'internal' or 'external'")
	}
	t.Actions = p.parseExecutable(el)
	return t
}

func (p *parser) parseDoneData(el xmldom.Element) *model.DoneData {
	dd := &model.DoneData{}
	for _, child := range children(el) {
		switch local(child) {
		case "content":
			dd.Content = &model.Content{Expr: attr(child, "expr"), Value: strings.TrimSpace(text(child))}
		case "param":
			if param, ok := p.parseParam(child); ok {
				dd.Params = append(dd.Params, param)
			}
		}
	}
	return dd
}

func (p *parser) parseParam(el xmldom.Element) (model.Param, bool) {
	param := model.Param{
		Name:     attr(el, "name"),
		Expr:     attr(el, "expr"),
		Location: attr(el, "location"),
	}
	if param.Name == "" {
		p.errorf(el, CodeMissingAttribute, "name", "<param> requires a name attribute")
		return param, false
	}
	if param.Expr != "" && param.Location != "" {
		p.errorf(el, CodeBadAttributeValue, "", "<param> cannot have both expr and location")
		return param, false
	}
	return param, true
}

func (p *parser) parseInvoke(el xmldom.Element) *model.Invoke {
	inv := &model.Invoke{
		Type:        attr(el, "type"),
		TypeExpr:    attr(el, "typeexpr"),
		Src:         attr(el, "src"),
		SrcExpr:     attr(el, "srcexpr"),
		ID:          attr(el, "id"),
		IDLocation:  attr(el, "idlocation"),
		AutoForward: attr(el, "autoforward") == "true",
		Pos:         pos(el),
	}
	if namelist := attr(el, "namelist"); namelist != "" {
		inv.Namelist = strings.Fields(namelist)
	}
	for _, child := range children(el) {
		switch local(child) {
		case "param":
			if param, ok := p.parseParam(child); ok {
				inv.Params = append(inv.Params, param)
			}
		case "content":
			inv.Content = &model.Content{Expr: attr(child, "expr"), Value: innerXML(child)}
		case "finalize":
			inv.Finalize = p.parseExecutable(child)
		}
	}
	return inv
}

// checkTargets verifies that every transition target and initial reference
// resolves, with positions pointing at the offending element.
func (p *parser) checkTargets(root *model.State) {
	var walk func(s *model.State)
	walk = func(s *model.State) {
		for _, t := range s.Transitions {
			for _, target := range t.Targets {
				if _, ok := p.ids[target]; !ok {
					p.result.Add(Diagnostic{
						Severity:  SeverityError,
						Code:      CodeUnresolvedTarget,
						Message:   "transition targets unknown state \"" + target + "\"",
						Position:  Position{File: p.source, Line: t.Pos.Line, Column: t.Pos.Column},
						Tag:       "transition",
						Attribute: "target",
					})
				}
			}
		}
		for _, target := range s.Initial {
			if _, ok := p.ids[target]; !ok {
				p.result.Add(Diagnostic{
					Severity:  SeverityError,
					Code:      CodeUnresolvedTarget,
					Message:   "initial references unknown state \"" + target + "\"",
					Position:  Position{File: p.source, Line: s.Pos.Line, Column: s.Pos.Column},
					Tag:       "state",
					Attribute: "initial",
				})
			}
		}
		for _, c := range s.Children {
			walk(c)
		}
	}
	walk(root)
}

func hasStateChildren(s *model.State) bool {
	for _, c := range s.Children {
		if !c.IsHistory() {
			return true
		}
	}
	return false
}

// DOM access helpers.

func attr(el xmldom.Element, name string) string {
	return strings.TrimSpace(string(el.GetAttribute(xmldom.DOMString(name))))
}

func local(el xmldom.Element) string {
	return strings.ToLower(string(el.LocalName()))
}

func text(el xmldom.Element) string {
	return string(el.TextContent())
}

func pos(el xmldom.Element) model.Position {
	line, col, _ := el.Position()
	return model.Position{Line: line, Column: col}
}

func children(el xmldom.Element) []xmldom.Element {
	list := el.Children()
	out := make([]xmldom.Element, 0, list.Length())
	for i := uint(0); i < list.Length(); i++ {
		if child := list.Item(i); child != nil {
			out = append(out, child)
		}
	}
	return out
}

// innerXML serializes an element's children, used for inline <content>
// holding a nested <scxml> document for invoke.
func innerXML(el xmldom.Element) string {
	list := el.Children()
	if list.Length() == 0 {
		return strings.TrimSpace(text(el))
	}
	var sb strings.Builder
	for i := uint(0); i < list.Length(); i++ {
		child := list.Item(i)
		if child == nil {
			continue
		}
		data, err := xmldom.Marshal(child)
		if err != nil {
			continue
		}
		sb.Write(data)
	}
	return sb.String()
}
