package v1

import (
	"net/http"

	"github.com/gorilla/mux"
	"github.com/shimmeringbee/logwrap"
	"github.com/shimmeringbee/wotbind/binder"
	"github.com/shimmeringbee/wotbind/interface/http/auth"
	"github.com/shimmeringbee/wotbind/state"
)

func ConstructRouter(things state.ThingMapper, b *binder.Binder, l logwrap.Logger, ap auth.AuthenticationProvider, eventbus state.EventSubscriber) http.Handler {
	protected := mux.NewRouter()

	tc := thingController{
		thingMapper: things,
	}

	bc := bindingController{
		binder: b,
	}

	wc := websocketController{
		eventbus: eventbus,
		eventMapper: websocketEventMapper{
			thingMapper: things,
		},
		logger: l,
	}

	protected.HandleFunc("/things", tc.listThings).Methods("GET")
	protected.HandleFunc("/things/{identifier}", tc.getThing).Methods("GET")
	protected.HandleFunc("/things/{identifier}/properties/{name}", tc.getProperty).Methods("GET")
	protected.HandleFunc("/things/{identifier}/properties/{name}", tc.putProperty).Methods("PUT")
	protected.HandleFunc("/things/{identifier}/actions/{name}", tc.invokeAction).Methods("POST")

	protected.HandleFunc("/bindings", bc.listBindings).Methods("GET")
	protected.HandleFunc("/bindings", bc.createBinding).Methods("POST")
	protected.HandleFunc("/bindings/{identifier}", bc.deleteBinding).Methods("DELETE")

	protected.HandleFunc("/websocket", wc.serveWebsocket).Methods("GET")

	apiRoot := mux.NewRouter()
	apiRoot.Handle("/auth/type", authenticationType(ap)).Methods("GET")
	apiRoot.Handle("/auth/check", ap.AuthenticationMiddleware(http.HandlerFunc(authenticationCheck))).Methods("GET")
	apiRoot.PathPrefix("/auth").Handler(ap.AuthenticationRouter())
	apiRoot.PathPrefix("/").Handler(ap.AuthenticationMiddleware(protected))

	return apiRoot
}
