// Package model holds the records produced by a retrieval run.
package model

import "time"

// NotAvailable is the placeholder for header fields a message does not carry.
const NotAvailable = "N/A"

// Identity ties a record to its position in the open folder and its
// durable unique id. UID is zero until the attributes event resolves.
type Identity struct {
	SeqNum uint32 `json:"seq_num"`
	UID    uint32 `json:"uid"`
}

type Attachment struct {
	Filename    string `json:"filename,omitempty"`
	ContentType string `json:"content_type"`
	Size        int64  `json:"size"`
	PartID      string `json:"part_id,omitempty"`
	Content     []byte `json:"-"`
}

// Record is one fully retrieved message. Records handed out by the
// collector have both their identity and their body resolved.
type Record struct {
	Identity    Identity            `json:"identity"`
	Headers     map[string][]string `json:"headers,omitempty"`
	Subject     string              `json:"subject"`
	From        string              `json:"from"`
	To          string              `json:"to"`
	Date        time.Time           `json:"-"`
	Text        string              `json:"text,omitempty"`
	HTML        string              `json:"html,omitempty"`
	Attachments []Attachment        `json:"attachments,omitempty"`
	Raw         []byte              `json:"-"`
}

// DateString formats the record date with layout, or returns N/A when
// the message had no usable date.
func (r *Record) DateString(layout string) string {
	if r.Date.IsZero() {
		return NotAvailable
	}
	return r.Date.Format(layout)
}

func (r *Record) HasAttachments() bool {
	return len(r.Attachments) > 0
}
