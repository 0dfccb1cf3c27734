package v1

import (
	"encoding/json"
	"io"
	"net/http"

	"github.com/gorilla/mux"
	"github.com/shimmeringbee/wotbind/binder"
	"github.com/shimmeringbee/wotbind/config"
)

type bindingController struct {
	binder *binder.Binder
}

func (b *bindingController) listBindings(w http.ResponseWriter, r *http.Request) {
	data, err := json.Marshal(b.binder.Bindings())
	if err != nil {
		http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
		return
	}

	w.Header().Add("content-type", "application/json")
	w.Write(data)
}

type createBindingResponse struct {
	Identifier string `json:"id"`
}

func (b *bindingController) createBinding(w http.ResponseWriter, r *http.Request) {
	data, err := io.ReadAll(r.Body)
	if err != nil {
		http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
		return
	}

	cfg := config.BindingConfig{}
	if err := json.Unmarshal(data, &cfg); err != nil {
		http.Error(w, http.StatusText(http.StatusBadRequest), http.StatusBadRequest)
		return
	}

	id, err := b.binder.BindDeclared(cfg)
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	body, err := json.Marshal(createBindingResponse{Identifier: id})
	if err != nil {
		http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
		return
	}

	w.Header().Add("content-type", "application/json")
	w.WriteHeader(http.StatusCreated)
	w.Write(body)
}

func (b *bindingController) deleteBinding(w http.ResponseWriter, r *http.Request) {
	params := mux.Vars(r)

	if !b.binder.Unbind(params["identifier"]) {
		http.NotFound(w, r)
		return
	}

	http.Error(w, http.StatusText(http.StatusNoContent), http.StatusNoContent)
}
