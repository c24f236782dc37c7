// Package structure models a message's MIME body structure as a tree of
// leaf and composite parts and finds the attachments in it.
package structure

import (
	"strings"

	"github.com/bscott/mailfetch/internal/model"
	"github.com/bscott/mailfetch/internal/rfc2047"
)

// Part is either a *Leaf or a *Composite.
type Part interface {
	isPart()
}

type Disposition struct {
	Kind   string
	Params map[string]string
}

// Leaf is a single body part. PartID is the IMAP section number ("1",
// "2.1", ...) and may be empty when the source did not number the part.
type Leaf struct {
	Type        string
	Subtype     string
	Params      map[string]string
	Disposition *Disposition
	Size        int64
	PartID      string
	Content     []byte
}

// Composite is a multipart container, or an encapsulated message.
type Composite struct {
	Subtype  string
	PartID   string
	Children []Part
}

func (*Leaf) isPart()      {}
func (*Composite) isPart() {}

// MediaType returns the lower-cased type/subtype of the leaf.
func (l *Leaf) MediaType() string {
	return strings.ToLower(l.Type + "/" + l.Subtype)
}

// IsAttachment reports whether the leaf is an attachment that can be
// fetched on its own: disposition "attachment" and a part number.
func (l *Leaf) IsAttachment() bool {
	return l.Disposition != nil && strings.EqualFold(l.Disposition.Kind, "attachment") && l.PartID != ""
}

// Filename returns the decoded disposition filename, falling back to the
// name parameter. A bare "/" counts as no filename.
func (l *Leaf) Filename() string {
	if l.Disposition == nil {
		return ""
	}
	for _, key := range []string{"filename", "name"} {
		v, ok := lookup(l.Disposition.Params, key)
		if !ok || v == "" || v == "/" {
			continue
		}
		return rfc2047.Decode(v)
	}
	return ""
}

// Attachments walks the trees rooted at roots depth-first, left to right,
// and returns a descriptor for every attachment leaf in visiting order.
// The walk uses an explicit stack, so nesting depth is bounded only by
// memory.
func Attachments(roots ...Part) []model.Attachment {
	var out []model.Attachment

	stack := make([]Part, 0, len(roots))
	for i := len(roots) - 1; i >= 0; i-- {
		stack = append(stack, roots[i])
	}

	for len(stack) > 0 {
		p := stack[len(stack)-1]
		stack = stack[:len(stack)-1]

		switch p := p.(type) {
		case *Composite:
			if p == nil {
				continue
			}
			for i := len(p.Children) - 1; i >= 0; i-- {
				stack = append(stack, p.Children[i])
			}
		case *Leaf:
			if p == nil || !p.IsAttachment() {
				continue
			}
			out = append(out, model.Attachment{
				Filename:    p.Filename(),
				ContentType: p.MediaType(),
				Size:        p.Size,
				PartID:      p.PartID,
				Content:     p.Content,
			})
		}
	}

	return out
}

func lookup(params map[string]string, key string) (string, bool) {
	if v, ok := params[key]; ok {
		return v, true
	}
	for k, v := range params {
		if strings.EqualFold(k, key) {
			return v, true
		}
	}
	return "", false
}
