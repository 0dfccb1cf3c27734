package td

import (
	"encoding/json"
	"fmt"

	"github.com/tidwall/gjson"
)

// Interaction operation tags, as they appear in a Thing Description form.
const (
	OpReadProperty    = "readproperty"
	OpWriteProperty   = "writeproperty"
	OpObserveProperty = "observeproperty"
	OpInvokeAction    = "invokeaction"
	OpSubscribeEvent  = "subscribeevent"
)

// Form describes one concrete endpoint for an interaction: where to reach it,
// how, and which operations it serves. A form with no op tags serves any
// operation.
type Form struct {
	Href        string   `json:"href"`
	ContentType string   `json:"contentType,omitempty"`
	Method      string   `json:"htv:methodName,omitempty"`
	Op          []string `json:"op,omitempty"`
}

// UnmarshalJSON accepts op as either a single string or an array of strings,
// both of which appear in real documents.
func (f *Form) UnmarshalJSON(data []byte) error {
	f.Href = gjson.GetBytes(data, "href").String()
	f.ContentType = gjson.GetBytes(data, "contentType").String()
	f.Method = gjson.GetBytes(data, "htv:methodName").String()

	op := gjson.GetBytes(data, "op")

	switch {
	case op.Type == gjson.String:
		f.Op = []string{op.String()}
	case op.IsArray():
		for _, v := range op.Array() {
			f.Op = append(f.Op, v.String())
		}
	}

	return nil
}

func (f Form) ServesOp(op string) bool {
	for _, o := range f.Op {
		if o == op {
			return true
		}
	}

	return false
}

// Property describes one named property interaction of a Thing.
type Property struct {
	Title      string `json:"title,omitempty"`
	Type       string `json:"type,omitempty"`
	ReadOnly   bool   `json:"readOnly,omitempty"`
	WriteOnly  bool   `json:"writeOnly,omitempty"`
	Observable bool   `json:"observable,omitempty"`
	Forms      []Form `json:"forms,omitempty"`
}

// Action describes one named action interaction of a Thing.
type Action struct {
	Title string `json:"title,omitempty"`
	Forms []Form `json:"forms,omitempty"`
}

// Event describes one named event interaction of a Thing.
type Event struct {
	Title string `json:"title,omitempty"`
	Forms []Form `json:"forms,omitempty"`
}

// Document is a parsed Thing Description. It is immutable once loaded; a
// refreshed description replaces the whole Document reference rather than
// editing fields in place, so concurrent readers never observe a partial
// update.
type Document struct {
	Title string `json:"title"`
	ID    string `json:"id"`
	Base  string `json:"base,omitempty"`

	Properties map[string]Property `json:"properties,omitempty"`
	Actions    map[string]Action   `json:"actions,omitempty"`
	Events     map[string]Event    `json:"events,omitempty"`

	// URL is the location the document was fetched from, used as the
	// fallback base when resolving relative form hrefs. Empty for inline
	// documents.
	URL string `json:"-"`
}

// Parse decodes and minimally validates a Thing Description. An absent
// @context is tolerated, id may be provided as either id or @id, but a
// document without both a title and an identifier is rejected.
func Parse(data []byte, url string) (*Document, error) {
	doc := &Document{}

	if err := json.Unmarshal(data, doc); err != nil {
		return nil, fmt.Errorf("failed to parse thing description: %w", err)
	}

	if doc.ID == "" {
		if atID := gjson.GetBytes(data, "@id"); atID.Exists() {
			doc.ID = atID.String()
		}
	}

	if doc.Title == "" {
		return nil, fmt.Errorf("thing description has no title")
	}

	if doc.ID == "" {
		return nil, fmt.Errorf("thing description '%s' has no identifier", doc.Title)
	}

	doc.URL = url
	return doc, nil
}

func (d *Document) Property(name string) (Property, bool) {
	p, found := d.Properties[name]
	return p, found
}

func (d *Document) Action(name string) (Action, bool) {
	a, found := d.Actions[name]
	return a, found
}

func (d *Document) Event(name string) (Event, bool) {
	e, found := d.Events[name]
	return e, found
}
