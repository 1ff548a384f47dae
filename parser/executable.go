package parser

import (
	"strings"

	"github.com/agentflare-ai/go-xmldom"

	"github.com/newmassrael/reactive-state-machine-sub002/model"
)

// parseExecutable parses the executable-content children of onentry, onexit,
// transition, if-branch, foreach, and finalize elements into one action
// block.
func (p *parser) parseExecutable(el xmldom.Element) []model.Action {
	var actions []model.Action
	for _, child := range children(el) {
		if a := p.parseAction(child); a != nil {
			actions = append(actions, a)
		}
	}
	return actions
}

func (p *parser) parseAction(el xmldom.Element) model.Action {
	switch local(el) {
	case "raise":
		event := attr(el, "event")
		if event == "" {
			p.errorf(el, CodeMissingAttribute, "event", "<raise> requires an event attribute")
			return nil
		}
		return &model.Raise{Event: event, Pos: pos(el)}

	case "send":
		return p.parseSend(el)

	case "cancel":
		a := &model.CancelAction{
			SendID:     attr(el, "sendid"),
			SendIDExpr: attr(el, "sendidexpr"),
			Pos:        pos(el),
		}
		if a.SendID == "" && a.SendIDExpr == "" {
			p.errorf(el, CodeMissingAttribute, "sendid", "<cancel> requires sendid or sendidexpr")
			return nil
		}
		if a.SendID != "" && a.SendIDExpr != "" {
			p.errorf(el, CodeBadAttributeValue, "", "<cancel> cannot have both sendid and sendidexpr")
			return nil
		}
		return a

	case "assign":
		a := &model.Assign{
			Location: attr(el, "location"),
			Expr:     attr(el, "expr"),
			Pos:      pos(el),
		}
		if a.Expr == "" {
			a.Content = strings.TrimSpace(text(el))
		}
		// An empty location is kept: it must fail at run time with
		// error.execution, not at load time (W3C 5.4).
		return a

	case "log":
		return &model.Log{Label: attr(el, "label"), Expr: attr(el, "expr"), Pos: pos(el)}

	case "if":
		return p.parseIf(el)

	case "foreach":
		a := &model.Foreach{
			Array: attr(el, "array"),
			Item:  attr(el, "item"),
			Index: attr(el, "index"),
			Body:  p.parseExecutable(el),
			Pos:   pos(el),
		}
		if a.Array == "" {
			p.errorf(el, CodeMissingAttribute, "array", "<foreach> requires an array attribute")
			return nil
		}
		if a.Item == "" {
			p.errorf(el, CodeMissingAttribute, "item", "<foreach> requires an item attribute")
			return nil
		}
		return a

	case "script":
		return &model.ScriptAction{Source: text(el), Pos: pos(el)}

	case "elseif", "else":
		// Consumed by parseIf; reaching here means they sit outside <if>.
		p.errorf(el, CodeIllegalNesting, "", "<%s> may only appear inside <if>", local(el))
		return nil

	default:
		return nil
	}
}

// parseIf partitions the children of <if> into branches at each <elseif> and
// <else> marker (W3C 4.3): the branch condition owns the actions that follow
// it up to the next marker.
func (p *parser) parseIf(el xmldom.Element) model.Action {
	cond := attr(el, "cond")
	if cond == "" {
		p.errorf(el, CodeMissingAttribute, "cond", "<if> requires a cond attribute")
		return nil
	}
	action := &model.If{Pos: pos(el)}
	current := &model.Branch{Cond: cond}
	inElse := false

	flush := func() {
		if current != nil {
			action.Branches = append(action.Branches, *current)
			current = nil
		}
	}

	for _, child := range children(el) {
		switch local(child) {
		case "elseif":
			if inElse {
				p.errorf(child, CodeIllegalNesting, "", "<elseif> cannot follow <else>")
				continue
			}
			flush()
			elseifCond := attr(child, "cond")
			if elseifCond == "" {
				p.errorf(child, CodeMissingAttribute, "cond", "<elseif> requires a cond attribute")
			}
			current = &model.Branch{Cond: elseifCond}
		case "else":
			if inElse {
				p.errorf(child, CodeIllegalNesting, "", "duplicate <else>")
				continue
			}
			flush()
			inElse = true
		default:
			a := p.parseAction(child)
			if a == nil {
				continue
			}
			if inElse {
				action.Else = append(action.Else, a)
			} else {
				current.Body = append(current.Body, a)
			}
		}
	}
	flush()
	return action
}

func (p *parser) parseSend(el xmldom.Element) model.Action {
	a := &model.Send{
		Event:      attr(el, "event"),
		EventExpr:  attr(el, "eventexpr"),
		Target:     attr(el, "target"),
		TargetExpr: attr(el, "targetexpr"),
		Type:       attr(el, "type"),
		TypeExpr:   attr(el, "typeexpr"),
		ID:         attr(el, "id"),
		IDLocation: attr(el, "idlocation"),
		Delay:      attr(el, "delay"),
		DelayExpr:  attr(el, "delayexpr"),
		Pos:        pos(el),
	}
	if a.Event != "" && a.EventExpr != "" {
		p.errorf(el, CodeBadAttributeValue, "", "<send> cannot have both event and eventexpr")
		return nil
	}
	if a.Delay != "" && a.DelayExpr != "" {
		p.errorf(el, CodeBadAttributeValue, "", "<send> cannot have both delay and delayexpr")
		return nil
	}
	if namelist := attr(el, "namelist"); namelist != "" {
		a.Namelist = strings.Fields(namelist)
	}
	for _, child := range children(el) {
		switch local(child) {
		case "param":
			if param, ok := p.parseParam(child); ok {
				a.Params = append(a.Params, param)
			}
		case "content":
			a.Content = &model.Content{Expr: attr(child, "expr"), Value: strings.TrimSpace(text(child))}
		}
	}
	if a.Content != nil && (len(a.Params) > 0 || len(a.Namelist) > 0) {
		p.errorf(el, CodeBadAttributeValue, "", "<send> content excludes param and namelist")
		return nil
	}
	return a
}
