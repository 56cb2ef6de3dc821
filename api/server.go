package api

import (
	"fmt"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/oapi-codegen/runtime"
)

// Query parameters of POST /verify
type VerifyParams struct {
	// Add real-time edges and check strict serializability
	Realtime *bool `form:"realtime,omitempty" json:"realtime,omitempty"`
	// The maximum number of reported violations. 0 reports all of them.
	MaxViolations *int `form:"maxViolations,omitempty" json:"maxViolations,omitempty"`
}

type ServerInterface interface {
	// (GET /health)
	Health(w http.ResponseWriter, r *http.Request)
	// (POST /verify)
	Verify(w http.ResponseWriter, r *http.Request, params VerifyParams)
}

type InvalidParamFormatError struct {
	ParamName string
	Err       error
}

func (e *InvalidParamFormatError) Error() string {
	return fmt.Sprintf("Invalid format for parameter %s: %s", e.ParamName, e.Err.Error())
}

func (e *InvalidParamFormatError) Unwrap() error {
	return e.Err
}

type ChiServerOptions struct {
	BaseURL          string
	BaseRouter       chi.Router
	ErrorHandlerFunc func(w http.ResponseWriter, r *http.Request, err error)
}

// Binds the request parameters before calling the ServerInterface
type serverInterfaceWrapper struct {
	handler          ServerInterface
	errorHandlerFunc func(w http.ResponseWriter, r *http.Request, err error)
}

func (siw *serverInterfaceWrapper) verify(w http.ResponseWriter, r *http.Request) {
	var params VerifyParams

	if err := runtime.BindQueryParameter("form", true, false, "realtime", r.URL.Query(), &params.Realtime); err != nil {
		siw.errorHandlerFunc(w, r, &InvalidParamFormatError{ParamName: "realtime", Err: err})
		return
	}
	if err := runtime.BindQueryParameter("form", true, false, "maxViolations", r.URL.Query(), &params.MaxViolations); err != nil {
		siw.errorHandlerFunc(w, r, &InvalidParamFormatError{ParamName: "maxViolations", Err: err})
		return
	}
	siw.handler.Verify(w, r, params)
}

// Mount the routes of the ServerInterface on a chi router
func HandlerWithOptions(si ServerInterface, options ChiServerOptions) http.Handler {
	r := options.BaseRouter
	if r == nil {
		r = chi.NewRouter()
	}
	if options.ErrorHandlerFunc == nil {
		options.ErrorHandlerFunc = func(w http.ResponseWriter, r *http.Request, err error) {
			http.Error(w, err.Error(), http.StatusBadRequest)
		}
	}
	wrapper := serverInterfaceWrapper{
		handler:          si,
		errorHandlerFunc: options.ErrorHandlerFunc,
	}

	r.Group(func(r chi.Router) {
		r.Get(options.BaseURL+"/health", si.Health)
	})
	r.Group(func(r chi.Router) {
		r.Post(options.BaseURL+"/verify", wrapper.verify)
	})
	return r
}
