// Package mailparse turns raw RFC 5322 messages into structured messages
// using go-message.
package mailparse

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"
	"time"

	"github.com/emersion/go-message"
	_ "github.com/emersion/go-message/charset"
	"github.com/emersion/go-message/mail"

	"github.com/bscott/mailfetch/internal/model"
	"github.com/bscott/mailfetch/internal/rfc2047"
)

// Message is the parsed form of one raw message. Subject, From and To are
// model.NotAvailable when the header is missing; Date is zero when it is
// missing or unparseable.
type Message struct {
	Headers     map[string][]string
	Subject     string
	From        string
	To          string
	Date        time.Time
	Text        string
	HTML        string
	Attachments []model.Attachment
}

type Parser struct{}

func New() *Parser {
	return &Parser{}
}

// Parse reads the headers and walks every part of raw. Unknown charsets
// are tolerated; a malformed header block or MIME structure is an error.
func (p *Parser) Parse(raw []byte) (*Message, error) {
	mr, err := mail.CreateReader(bytes.NewReader(raw))
	if err != nil && !message.IsUnknownCharset(err) {
		return nil, fmt.Errorf("failed to read message header: %w", err)
	}
	defer mr.Close()

	msg := &Message{
		Headers: collectHeaders(mr.Header),
		Subject: subject(mr.Header),
		From:    addressHeader(mr.Header, "From"),
		To:      addressHeader(mr.Header, "To"),
	}
	if date, err := mr.Header.Date(); err == nil {
		msg.Date = date
	}

	for {
		part, err := mr.NextPart()
		if err == io.EOF {
			break
		}
		if err != nil && !message.IsUnknownCharset(err) {
			return nil, fmt.Errorf("failed to read message part: %w", err)
		}

		body, err := io.ReadAll(part.Body)
		if err != nil {
			return nil, fmt.Errorf("failed to read part body: %w", err)
		}

		switch h := part.Header.(type) {
		case *mail.InlineHeader:
			contentType, _, _ := h.ContentType()
			switch {
			case strings.HasPrefix(contentType, "text/plain") && msg.Text == "":
				msg.Text = string(body)
			case strings.HasPrefix(contentType, "text/html") && msg.HTML == "":
				msg.HTML = string(body)
			}
		case *mail.AttachmentHeader:
			filename, err := h.Filename()
			if err != nil {
				_, params, _ := h.ContentDisposition()
				filename = params["filename"]
			}
			contentType, _, _ := h.ContentType()
			msg.Attachments = append(msg.Attachments, model.Attachment{
				Filename:    rfc2047.Decode(filename),
				ContentType: contentType,
				Size:        int64(len(body)),
				Content:     body,
			})
		}
	}

	return msg, nil
}

// Section returns the decoded content of the part numbered partID ("1",
// "2.1", ...) in raw, following IMAP section numbering: the body of a
// single-part message is part 1, and the parts of an encapsulated
// message/rfc822 are numbered below the part that carries it.
func (p *Parser) Section(raw []byte, partID string) ([]byte, error) {
	path := splitPartNum(partID)
	if path == nil {
		return nil, fmt.Errorf("invalid part number %q", partID)
	}

	e, err := message.Read(bytes.NewReader(raw))
	if err != nil && !message.IsUnknownCharset(err) {
		return nil, fmt.Errorf("failed to read message: %w", err)
	}

	for depth, n := range path {
		if depth > 0 && isEncapsulated(e) {
			inner, err := message.Read(e.Body)
			if err != nil && !message.IsUnknownCharset(err) {
				return nil, fmt.Errorf("failed to read encapsulated message at %s: %w", partID, err)
			}
			e = inner
		}

		mr := e.MultipartReader()
		if mr == nil {
			if n != 1 {
				return nil, fmt.Errorf("part %s not found", partID)
			}
			continue
		}

		e, err = nthPart(mr, n)
		if err != nil {
			return nil, fmt.Errorf("part %s not found: %w", partID, err)
		}
	}

	return io.ReadAll(e.Body)
}

func nthPart(mr message.MultipartReader, n int) (*message.Entity, error) {
	for i := 1; ; i++ {
		part, err := mr.NextPart()
		if err == io.EOF {
			return nil, errors.New("no such part")
		}
		if err != nil && !message.IsUnknownCharset(err) {
			return nil, err
		}
		if i == n {
			return part, nil
		}
	}
}

func isEncapsulated(e *message.Entity) bool {
	mediaType, _, err := e.Header.ContentType()
	return err == nil && strings.EqualFold(mediaType, "message/rfc822")
}

// splitPartNum parses a dotted part number. It returns nil for an empty or
// malformed value.
func splitPartNum(s string) []int {
	if s == "" {
		return nil
	}
	fields := strings.Split(s, ".")
	nums := make([]int, len(fields))
	for i, f := range fields {
		n, err := strconv.Atoi(f)
		if err != nil || n < 1 {
			return nil
		}
		nums[i] = n
	}
	return nums
}

func collectHeaders(h mail.Header) map[string][]string {
	headers := make(map[string][]string)
	fields := h.Fields()
	for fields.Next() {
		key := fields.Key()
		value, err := fields.Text()
		if err != nil {
			value = fields.Value()
		}
		headers[key] = append(headers[key], value)
	}
	return headers
}

func subject(h mail.Header) string {
	s, err := h.Subject()
	if err != nil {
		s = rfc2047.Decode(h.Get("Subject"))
	}
	if strings.TrimSpace(s) == "" {
		return model.NotAvailable
	}
	return s
}

// addressHeader renders an address list header as "Name <addr>, ...",
// falling back to the raw header text when it does not parse.
func addressHeader(h mail.Header, key string) string {
	addrs, err := h.AddressList(key)
	if err != nil || len(addrs) == 0 {
		raw := strings.TrimSpace(rfc2047.Decode(h.Get(key)))
		if raw == "" {
			return model.NotAvailable
		}
		return raw
	}

	parts := make([]string, len(addrs))
	for i, a := range addrs {
		if a.Name != "" {
			parts[i] = fmt.Sprintf("%s <%s>", a.Name, a.Address)
		} else {
			parts[i] = a.Address
		}
	}
	return strings.Join(parts, ", ")
}
