package imap

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/emersion/go-imap/v2"

	"github.com/bscott/mailfetch/internal/search"
	"github.com/bscott/mailfetch/internal/structure"
)

// criteriaFromQuery maps search terms onto go-imap search criteria.
// Dates are read in the local zone; IMAP compares whole days only.
func criteriaFromQuery(q search.Query) (*imap.SearchCriteria, error) {
	criteria := &imap.SearchCriteria{}
	for _, term := range q {
		switch strings.ToUpper(term.Key) {
		case "ALL":
		case "SINCE":
			t, err := search.ParseDate(term.Value, time.Local)
			if err != nil {
				return nil, fmt.Errorf("invalid SINCE date %q: %w", term.Value, err)
			}
			criteria.Since = t
		case "BEFORE":
			t, err := search.ParseDate(term.Value, time.Local)
			if err != nil {
				return nil, fmt.Errorf("invalid BEFORE date %q: %w", term.Value, err)
			}
			criteria.Before = t
		default:
			return nil, fmt.Errorf("unsupported search key %q", term.Key)
		}
	}
	return criteria, nil
}

type pendingPart struct {
	src    imap.BodyStructure
	id     string
	parent *structure.Composite
	slot   int
}

// convertStructure turns a go-imap body structure into a structure.Part
// tree numbered with IMAP section numbers. A single-part root is part 1.
// An encapsulated message that is not itself an attachment becomes a
// composite whose children are numbered below it. The tree is built with
// an explicit stack, so nesting depth is not limited by the call stack.
func convertStructure(bs imap.BodyStructure) structure.Part {
	if bs == nil {
		return nil
	}

	var root structure.Part
	place := func(p pendingPart, part structure.Part) {
		if p.parent == nil {
			root = part
			return
		}
		p.parent.Children[p.slot] = part
	}

	rootID := ""
	if _, ok := bs.(*imap.BodyStructureSinglePart); ok {
		rootID = "1"
	}
	stack := []pendingPart{{src: bs, id: rootID}}

	pushChildren := func(parent *structure.Composite, id string, children []imap.BodyStructure) {
		parent.Children = make([]structure.Part, len(children))
		for i := len(children) - 1; i >= 0; i-- {
			stack = append(stack, pendingPart{src: children[i], id: childID(id, i+1), parent: parent, slot: i})
		}
	}

	for len(stack) > 0 {
		p := stack[len(stack)-1]
		stack = stack[:len(stack)-1]

		switch b := p.src.(type) {
		case *imap.BodyStructureMultiPart:
			c := &structure.Composite{Subtype: strings.ToLower(b.Subtype), PartID: p.id}
			place(p, c)
			pushChildren(c, p.id, b.Children)

		case *imap.BodyStructureSinglePart:
			leaf := convertLeaf(b, p.id)
			if b.MessageRFC822 == nil || b.MessageRFC822.BodyStructure == nil || leaf.IsAttachment() {
				place(p, leaf)
				continue
			}

			c := &structure.Composite{Subtype: "rfc822", PartID: p.id}
			place(p, c)
			inner := b.MessageRFC822.BodyStructure
			if mp, ok := inner.(*imap.BodyStructureMultiPart); ok {
				pushChildren(c, p.id, mp.Children)
				continue
			}
			c.Children = make([]structure.Part, 1)
			stack = append(stack, pendingPart{src: inner, id: childID(p.id, 1), parent: c, slot: 0})
		}
	}

	return root
}

func convertLeaf(b *imap.BodyStructureSinglePart, id string) *structure.Leaf {
	leaf := &structure.Leaf{
		Type:    b.Type,
		Subtype: b.Subtype,
		Params:  b.Params,
		Size:    int64(b.Size),
		PartID:  id,
	}
	if b.Extended != nil && b.Extended.Disposition != nil {
		leaf.Disposition = &structure.Disposition{
			Kind:   b.Extended.Disposition.Value,
			Params: b.Extended.Disposition.Params,
		}
	}
	return leaf
}

func childID(parent string, n int) string {
	if parent == "" {
		return strconv.Itoa(n)
	}
	return parent + "." + strconv.Itoa(n)
}
