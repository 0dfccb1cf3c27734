package v1

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"

	"github.com/gorilla/mux"
	"github.com/shimmeringbee/wotbind/state"
	"github.com/shimmeringbee/wotbind/td"
	"github.com/shimmeringbee/wotbind/thing"
)

type thingController struct {
	thingMapper state.ThingMapper
}

// ExportedThing is the API view of a consumed thing.
type ExportedThing struct {
	Identifier string                      `json:"id"`
	Title      string                      `json:"title"`
	Properties map[string]ExportedProperty `json:"properties"`
	Actions    []string                    `json:"actions,omitempty"`
}

type ExportedProperty struct {
	Mode       string `json:"mode"`
	Observable bool   `json:"observable"`
}

func exportThing(c *thing.Client) ExportedThing {
	doc := c.Document()

	properties := make(map[string]ExportedProperty, len(doc.Properties))
	for name, p := range doc.Properties {
		capability := td.DeriveCapability(p)

		properties[name] = ExportedProperty{
			Mode:       string(capability.Mode),
			Observable: capability.CanObserve,
		}
	}

	var actions []string
	for name := range doc.Actions {
		actions = append(actions, name)
	}

	return ExportedThing{
		Identifier: doc.ID,
		Title:      doc.Title,
		Properties: properties,
		Actions:    actions,
	}
}

func (t *thingController) listThings(w http.ResponseWriter, r *http.Request) {
	apiThings := make(map[string]ExportedThing)

	for id, c := range t.thingMapper.Things() {
		apiThings[id] = exportThing(c)
	}

	data, err := json.Marshal(apiThings)
	if err != nil {
		http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
		return
	}

	w.Header().Add("content-type", "application/json")
	w.Write(data)
}

func (t *thingController) getThing(w http.ResponseWriter, r *http.Request) {
	params := mux.Vars(r)

	id, ok := params["identifier"]
	if !ok {
		http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
		return
	}

	c, found := t.thingMapper.Thing(id)
	if !found {
		http.NotFound(w, r)
		return
	}

	data, err := json.Marshal(exportThing(c))
	if err != nil {
		http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
		return
	}

	w.Header().Add("content-type", "application/json")
	w.Write(data)
}

func (t *thingController) getProperty(w http.ResponseWriter, r *http.Request) {
	c, name, ok := t.resolveProperty(w, r)
	if !ok {
		return
	}

	writeResult(w, c.ReadProperty(r.Context(), name))
}

func (t *thingController) putProperty(w http.ResponseWriter, r *http.Request) {
	c, name, ok := t.resolveProperty(w, r)
	if !ok {
		return
	}

	var value any

	data, err := io.ReadAll(r.Body)
	if err != nil {
		http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
		return
	}

	if err := json.Unmarshal(data, &value); err != nil {
		http.Error(w, http.StatusText(http.StatusBadRequest), http.StatusBadRequest)
		return
	}

	writeResult(w, c.WriteProperty(r.Context(), name, value))
}

func (t *thingController) invokeAction(w http.ResponseWriter, r *http.Request) {
	params := mux.Vars(r)

	c, found := t.thingMapper.Thing(params["identifier"])
	if !found {
		http.NotFound(w, r)
		return
	}

	name := params["name"]
	if _, found := c.Document().Action(name); !found {
		http.NotFound(w, r)
		return
	}

	var parameters any

	if r.Body != nil {
		data, err := io.ReadAll(r.Body)
		if err != nil {
			http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
			return
		}

		if len(data) > 0 {
			if err := json.Unmarshal(data, &parameters); err != nil {
				http.Error(w, http.StatusText(http.StatusBadRequest), http.StatusBadRequest)
				return
			}
		}
	}

	writeResult(w, c.InvokeAction(r.Context(), name, parameters))
}

func (t *thingController) resolveProperty(w http.ResponseWriter, r *http.Request) (*thing.Client, string, bool) {
	params := mux.Vars(r)

	c, found := t.thingMapper.Thing(params["identifier"])
	if !found {
		http.NotFound(w, r)
		return nil, "", false
	}

	name := params["name"]
	if _, found := c.Document().Property(name); !found {
		http.NotFound(w, r)
		return nil, "", false
	}

	return c, name, true
}

// writeResult renders an operation result: the body is always the result
// itself, the status code reflects the outcome.
func writeResult(w http.ResponseWriter, result thing.Result) {
	data, err := json.Marshal(result)
	if err != nil {
		http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
		return
	}

	w.Header().Add("content-type", "application/json")

	if !result.OK {
		w.WriteHeader(statusForFailure(result))
	}

	w.Write(data)
}

// statusForFailure distinguishes caller errors, where the capability document
// forbids the operation, from failures of the thing itself.
func statusForFailure(result thing.Result) int {
	if result.Error == nil {
		return http.StatusBadGateway
	}

	switch {
	case errors.Is(result.Error.Cause, thing.ErrReadOnlyProperty),
		errors.Is(result.Error.Cause, thing.ErrWriteOnlyProperty),
		errors.Is(result.Error.Cause, thing.ErrNotObservable):
		return http.StatusMethodNotAllowed
	case errors.Is(result.Error.Cause, thing.ErrPropertyNotFound),
		errors.Is(result.Error.Cause, thing.ErrActionNotFound):
		return http.StatusNotFound
	default:
		return http.StatusBadGateway
	}
}
