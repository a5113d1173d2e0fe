// Package ticket parses and re-serializes support-ticket JSON documents.
// Two shapes are supported: the flat export shape
// {"description": ..., "comments": [{"body": ...}]} and the nested Zendesk
// API shape under a top-level "ticket" object. Unknown fields at every
// level pass through to the output byte-for-byte; only the text and
// identity fields the engine sanitizes are rewritten.
package ticket

import (
	"encoding/json"
	"errors"
	"fmt"
)

// ErrInputFormat marks malformed or wrongly shaped ticket input. The
// message carries the JSON path of the offending field.
var ErrInputFormat = errors.New("ticket input format invalid")

// Shape identifies the detected document layout.
type Shape int

const (
	// ShapeFlat is the plain export shape with top-level description and comments.
	ShapeFlat Shape = iota
	// ShapeZendesk is the nested Zendesk API export with a "ticket" object.
	ShapeZendesk
)

// Person is an identity field pair (requester, assignee, or comment
// author). The engine overwrites Name with a pseudonym label and Email
// with the email token; Marshal writes the values back in place.
type Person struct {
	Name  string
	Email string

	raw       map[string]json.RawMessage
	parent    map[string]json.RawMessage
	parentKey string
	hasName   bool
	hasEmail  bool
}

// Comment is one ticket comment. Body is the sanitizable text; Author is
// set in Zendesk mode only.
type Comment struct {
	Body   string
	Author *Person

	raw     map[string]json.RawMessage
	hasBody bool
}

// Document is a parsed ticket. The engine mutates the exported text and
// identity fields in place and calls Marshal to serialize the result.
type Document struct {
	Shape       Shape
	Subject     string // Zendesk only
	Description string
	Comments    []Comment
	People      []*Person // requester then assignee, Zendesk only

	root           map[string]json.RawMessage
	ticketObj      map[string]json.RawMessage // Zendesk only
	commentsWrap   map[string]json.RawMessage // Zendesk only, nil when absent
	hasSubject     bool
	hasDescription bool
}

// Parse decodes ticket JSON into a Document. Shape detection is explicit:
// a top-level "ticket" key selects the Zendesk layout, anything else must
// satisfy the strict flat contract.
func Parse(data []byte) (*Document, error) {
	var root map[string]json.RawMessage
	if err := json.Unmarshal(data, &root); err != nil {
		return nil, fmt.Errorf("%w: document must be a JSON object: %v", ErrInputFormat, err)
	}
	if root == nil {
		return nil, fmt.Errorf("%w: document must be a JSON object", ErrInputFormat)
	}
	if _, ok := root["ticket"]; ok {
		return parseZendesk(root)
	}
	return parseFlat(root)
}

func parseFlat(root map[string]json.RawMessage) (*Document, error) {
	doc := &Document{Shape: ShapeFlat, root: root, hasDescription: true}

	descRaw, ok := root["description"]
	if !ok {
		return nil, fmt.Errorf("%w: missing \"description\"", ErrInputFormat)
	}
	if err := json.Unmarshal(descRaw, &doc.Description); err != nil {
		return nil, fmt.Errorf("%w: \"description\" must be a string", ErrInputFormat)
	}

	commentsRaw, ok := root["comments"]
	if !ok {
		return doc, nil
	}
	var items []json.RawMessage
	if err := json.Unmarshal(commentsRaw, &items); err != nil {
		return nil, fmt.Errorf("%w: \"comments\" must be an array", ErrInputFormat)
	}
	for i, item := range items {
		var m map[string]json.RawMessage
		if err := json.Unmarshal(item, &m); err != nil || m == nil {
			return nil, fmt.Errorf("%w: comments[%d] must be an object", ErrInputFormat, i)
		}
		bodyRaw, ok := m["body"]
		if !ok {
			return nil, fmt.Errorf("%w: comments[%d] missing \"body\"", ErrInputFormat, i)
		}
		var body string
		if err := json.Unmarshal(bodyRaw, &body); err != nil {
			return nil, fmt.Errorf("%w: comments[%d].body must be a string", ErrInputFormat, i)
		}
		doc.Comments = append(doc.Comments, Comment{Body: body, raw: m, hasBody: true})
	}
	return doc, nil
}

// parseZendesk accepts the nested Zendesk API export. Absent fields are
// tolerated; present fields must be well-typed.
func parseZendesk(root map[string]json.RawMessage) (*Document, error) {
	doc := &Document{Shape: ShapeZendesk, root: root}

	var ticketObj map[string]json.RawMessage
	if err := json.Unmarshal(root["ticket"], &ticketObj); err != nil || ticketObj == nil {
		return nil, fmt.Errorf("%w: \"ticket\" must be an object", ErrInputFormat)
	}
	doc.ticketObj = ticketObj

	if raw, ok := ticketObj["subject"]; ok {
		if err := json.Unmarshal(raw, &doc.Subject); err != nil {
			return nil, fmt.Errorf("%w: ticket.subject must be a string", ErrInputFormat)
		}
		doc.hasSubject = true
	}
	if raw, ok := ticketObj["description"]; ok {
		if err := json.Unmarshal(raw, &doc.Description); err != nil {
			return nil, fmt.Errorf("%w: ticket.description must be a string", ErrInputFormat)
		}
		doc.hasDescription = true
	}

	for _, role := range []string{"requester", "assignee"} {
		person, err := parsePerson(ticketObj, role, "ticket."+role)
		if err != nil {
			return nil, err
		}
		if person != nil {
			doc.People = append(doc.People, person)
		}
	}

	commentsRaw, ok := root["comments"]
	if !ok {
		return doc, nil
	}
	var wrap map[string]json.RawMessage
	if err := json.Unmarshal(commentsRaw, &wrap); err != nil || wrap == nil {
		return nil, fmt.Errorf("%w: \"comments\" must be an object", ErrInputFormat)
	}
	doc.commentsWrap = wrap

	var items []json.RawMessage
	if raw, ok := wrap["comments"]; ok {
		if err := json.Unmarshal(raw, &items); err != nil {
			return nil, fmt.Errorf("%w: comments.comments must be an array", ErrInputFormat)
		}
	}
	for i, item := range items {
		var m map[string]json.RawMessage
		if err := json.Unmarshal(item, &m); err != nil || m == nil {
			return nil, fmt.Errorf("%w: comments.comments[%d] must be an object", ErrInputFormat, i)
		}
		c := Comment{raw: m}

		if raw, ok := m["body"]; ok {
			if err := json.Unmarshal(raw, &c.Body); err != nil {
				return nil, fmt.Errorf("%w: comments.comments[%d].body must be a string", ErrInputFormat, i)
			}
			c.hasBody = true
		}
		if raw, ok := m["html_body"]; ok {
			var htmlBody string
			if err := json.Unmarshal(raw, &htmlBody); err != nil {
				return nil, fmt.Errorf("%w: comments.comments[%d].html_body must be a string", ErrInputFormat, i)
			}
			// html_body is stripped to text and never re-emitted; the
			// sanitized plain body is the only surviving copy.
			if !c.hasBody || c.Body == "" {
				c.Body = StripHTML(htmlBody)
				c.hasBody = true
			}
			delete(m, "html_body")
		}

		author, err := parsePerson(m, "author", fmt.Sprintf("comments.comments[%d].author", i))
		if err != nil {
			return nil, err
		}
		c.Author = author

		doc.Comments = append(doc.Comments, c)
	}
	return doc, nil
}

func parsePerson(parent map[string]json.RawMessage, key, path string) (*Person, error) {
	raw, ok := parent[key]
	if !ok {
		return nil, nil
	}
	var m map[string]json.RawMessage
	if err := json.Unmarshal(raw, &m); err != nil || m == nil {
		return nil, fmt.Errorf("%w: %s must be an object", ErrInputFormat, path)
	}
	p := &Person{raw: m, parent: parent, parentKey: key}
	if nameRaw, ok := m["name"]; ok {
		if err := json.Unmarshal(nameRaw, &p.Name); err != nil {
			return nil, fmt.Errorf("%w: %s.name must be a string", ErrInputFormat, path)
		}
		p.hasName = true
	}
	if emailRaw, ok := m["email"]; ok {
		if err := json.Unmarshal(emailRaw, &p.Email); err != nil {
			return nil, fmt.Errorf("%w: %s.email must be a string", ErrInputFormat, path)
		}
		p.hasEmail = true
	}
	return p, nil
}

// Marshal serializes the document with the current field values. Unknown
// fields come back byte-for-byte; JSON object key order follows Go's
// canonical map marshaling and is not significant.
func (d *Document) Marshal() ([]byte, error) {
	switch d.Shape {
	case ShapeZendesk:
		return d.marshalZendesk()
	default:
		return d.marshalFlat()
	}
}

func (d *Document) marshalFlat() ([]byte, error) {
	if err := setString(d.root, "description", d.Description); err != nil {
		return nil, err
	}
	if len(d.Comments) > 0 {
		items := make([]map[string]json.RawMessage, len(d.Comments))
		for i := range d.Comments {
			if err := setString(d.Comments[i].raw, "body", d.Comments[i].Body); err != nil {
				return nil, err
			}
			items[i] = d.Comments[i].raw
		}
		raw, err := json.Marshal(items)
		if err != nil {
			return nil, fmt.Errorf("marshalling comments: %w", err)
		}
		d.root["comments"] = raw
	}
	return json.Marshal(d.root)
}

func (d *Document) marshalZendesk() ([]byte, error) {
	if d.hasSubject {
		if err := setString(d.ticketObj, "subject", d.Subject); err != nil {
			return nil, err
		}
	}
	if d.hasDescription {
		if err := setString(d.ticketObj, "description", d.Description); err != nil {
			return nil, err
		}
	}
	for _, p := range d.People {
		if err := p.writeBack(); err != nil {
			return nil, err
		}
	}

	ticketRaw, err := json.Marshal(d.ticketObj)
	if err != nil {
		return nil, fmt.Errorf("marshalling ticket: %w", err)
	}
	d.root["ticket"] = ticketRaw

	if d.commentsWrap != nil {
		items := make([]map[string]json.RawMessage, len(d.Comments))
		for i := range d.Comments {
			c := &d.Comments[i]
			if c.hasBody {
				if err := setString(c.raw, "body", c.Body); err != nil {
					return nil, err
				}
			}
			if c.Author != nil {
				if err := c.Author.writeBack(); err != nil {
					return nil, err
				}
			}
			items[i] = c.raw
		}
		raw, err := json.Marshal(items)
		if err != nil {
			return nil, fmt.Errorf("marshalling comments: %w", err)
		}
		d.commentsWrap["comments"] = raw
		wrapRaw, err := json.Marshal(d.commentsWrap)
		if err != nil {
			return nil, fmt.Errorf("marshalling comments wrapper: %w", err)
		}
		d.root["comments"] = wrapRaw
	}

	return json.Marshal(d.root)
}

// writeBack re-marshals the person object into its parent so the mutated
// name and email reach the output document.
func (p *Person) writeBack() error {
	if p.hasName {
		if err := setString(p.raw, "name", p.Name); err != nil {
			return err
		}
	}
	if p.hasEmail {
		if err := setString(p.raw, "email", p.Email); err != nil {
			return err
		}
	}
	raw, err := json.Marshal(p.raw)
	if err != nil {
		return fmt.Errorf("marshalling %s: %w", p.parentKey, err)
	}
	p.parent[p.parentKey] = raw
	return nil
}

func setString(m map[string]json.RawMessage, key, val string) error {
	raw, err := json.Marshal(val)
	if err != nil {
		return fmt.Errorf("marshalling %s: %w", key, err)
	}
	m[key] = raw
	return nil
}
