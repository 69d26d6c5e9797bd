package http

import (
	"context"
	"fmt"
	"net/http"
	"sync"

	"github.com/aretw0/casefile/api"
	"github.com/getkin/kin-openapi/openapi3"
	"github.com/getkin/kin-openapi/openapi3filter"
	"github.com/getkin/kin-openapi/routers"
	"github.com/getkin/kin-openapi/routers/legacy"
	"github.com/go-chi/chi/v5"
	"github.com/oapi-codegen/runtime"
)

// ErrorResponse is the body of every non-2xx JSON reply.
type ErrorResponse struct {
	Error string `json:"error"`
	Code  string `json:"code"`
}

// StartRequest is the body of POST /calls.
type StartRequest struct {
	CallID string `json:"call_id"`
	ANI    string `json:"ani"`
}

// ToolRequest is the body of POST /calls/{callID}/tools/{tool}.
type ToolRequest struct {
	Args map[string]any `json:"args"`
}

// FormSubmission is the body of POST /webhooks/sms-form.
type FormSubmission struct {
	CallID string `json:"call_id"`
	Token  string `json:"token,omitempty"`
	Email  string `json:"email"`
}

// SubscribeEventsParams defines parameters for SubscribeEvents.
type SubscribeEventsParams struct {
	Watch *[]string `form:"watch,omitempty" json:"watch,omitempty"`
}

// ServerInterface represents all server handlers of api/openapi.yaml.
type ServerInterface interface {
	// (GET /health)
	GetHealth(w http.ResponseWriter, r *http.Request)
	// (POST /calls)
	StartCall(w http.ResponseWriter, r *http.Request)
	// (GET /calls/{callID})
	GetCall(w http.ResponseWriter, r *http.Request, callID string)
	// (GET /calls/{callID}/events)
	SubscribeEvents(w http.ResponseWriter, r *http.Request, callID string, params SubscribeEventsParams)
	// (POST /calls/{callID}/tools/{tool})
	InvokeTool(w http.ResponseWriter, r *http.Request, callID string, tool string)
	// (POST /calls/{callID}/hangup)
	Hangup(w http.ResponseWriter, r *http.Request, callID string)
	// (POST /webhooks/sms-form)
	SubmitSMSForm(w http.ResponseWriter, r *http.Request)
}

// MiddlewareFunc wraps every contract route.
type MiddlewareFunc func(http.Handler) http.Handler

// InvalidParamFormatError reports a path or query parameter that did not bind.
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

// ServerInterfaceWrapper binds parameters and hands off to the ServerInterface.
type ServerInterfaceWrapper struct {
	Handler            ServerInterface
	HandlerMiddlewares []MiddlewareFunc
	ErrorHandlerFunc   func(w http.ResponseWriter, r *http.Request, err error)
}

func (siw *ServerInterfaceWrapper) wrap(h http.Handler) http.Handler {
	for _, middleware := range siw.HandlerMiddlewares {
		h = middleware(h)
	}
	return h
}

func (siw *ServerInterfaceWrapper) pathParam(w http.ResponseWriter, r *http.Request, name string, dest *string) bool {
	err := runtime.BindStyledParameterWithOptions("simple", name, chi.URLParam(r, name), dest,
		runtime.BindStyledParameterOptions{ParamLocation: runtime.ParamLocationPath, Explode: false, Required: true})
	if err != nil {
		siw.ErrorHandlerFunc(w, r, &InvalidParamFormatError{ParamName: name, Err: err})
		return false
	}
	return true
}

// GetHealth operation middleware
func (siw *ServerInterfaceWrapper) GetHealth(w http.ResponseWriter, r *http.Request) {
	siw.wrap(http.HandlerFunc(siw.Handler.GetHealth)).ServeHTTP(w, r)
}

// StartCall operation middleware
func (siw *ServerInterfaceWrapper) StartCall(w http.ResponseWriter, r *http.Request) {
	siw.wrap(http.HandlerFunc(siw.Handler.StartCall)).ServeHTTP(w, r)
}

// GetCall operation middleware
func (siw *ServerInterfaceWrapper) GetCall(w http.ResponseWriter, r *http.Request) {
	var callID string
	if !siw.pathParam(w, r, "callID", &callID) {
		return
	}
	siw.wrap(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		siw.Handler.GetCall(w, r, callID)
	})).ServeHTTP(w, r)
}

// SubscribeEvents operation middleware
func (siw *ServerInterfaceWrapper) SubscribeEvents(w http.ResponseWriter, r *http.Request) {
	var callID string
	if !siw.pathParam(w, r, "callID", &callID) {
		return
	}

	var params SubscribeEventsParams
	if err := runtime.BindQueryParameter("form", false, false, "watch", r.URL.Query(), &params.Watch); err != nil {
		siw.ErrorHandlerFunc(w, r, &InvalidParamFormatError{ParamName: "watch", Err: err})
		return
	}

	siw.wrap(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		siw.Handler.SubscribeEvents(w, r, callID, params)
	})).ServeHTTP(w, r)
}

// InvokeTool operation middleware
func (siw *ServerInterfaceWrapper) InvokeTool(w http.ResponseWriter, r *http.Request) {
	var callID, tool string
	if !siw.pathParam(w, r, "callID", &callID) || !siw.pathParam(w, r, "tool", &tool) {
		return
	}
	siw.wrap(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		siw.Handler.InvokeTool(w, r, callID, tool)
	})).ServeHTTP(w, r)
}

// Hangup operation middleware
func (siw *ServerInterfaceWrapper) Hangup(w http.ResponseWriter, r *http.Request) {
	var callID string
	if !siw.pathParam(w, r, "callID", &callID) {
		return
	}
	siw.wrap(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		siw.Handler.Hangup(w, r, callID)
	})).ServeHTTP(w, r)
}

// SubmitSMSForm operation middleware
func (siw *ServerInterfaceWrapper) SubmitSMSForm(w http.ResponseWriter, r *http.Request) {
	siw.wrap(http.HandlerFunc(siw.Handler.SubmitSMSForm)).ServeHTTP(w, r)
}

// ChiServerOptions configures HandlerWithOptions.
type ChiServerOptions struct {
	BaseRouter       chi.Router
	Middlewares      []MiddlewareFunc
	ErrorHandlerFunc func(w http.ResponseWriter, r *http.Request, err error)
}

// HandlerFromMux mounts every contract route of si on r.
func HandlerFromMux(si ServerInterface, r chi.Router) http.Handler {
	return HandlerWithOptions(si, ChiServerOptions{BaseRouter: r})
}

// HandlerWithOptions mounts every contract route of si on options.BaseRouter.
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
	wrapper := ServerInterfaceWrapper{
		Handler:            si,
		HandlerMiddlewares: options.Middlewares,
		ErrorHandlerFunc:   options.ErrorHandlerFunc,
	}

	r.Get("/health", wrapper.GetHealth)
	r.Post("/calls", wrapper.StartCall)
	r.Get("/calls/{callID}", wrapper.GetCall)
	r.Get("/calls/{callID}/events", wrapper.SubscribeEvents)
	r.Post("/calls/{callID}/tools/{tool}", wrapper.InvokeTool)
	r.Post("/calls/{callID}/hangup", wrapper.Hangup)
	r.Post("/webhooks/sms-form", wrapper.SubmitSMSForm)

	return r
}

var (
	specOnce sync.Once
	specDoc  *openapi3.T
	specErr  error
)

// GetSwagger parses and validates the embedded contract.
func GetSwagger() (*openapi3.T, error) {
	specOnce.Do(func() {
		loader := openapi3.NewLoader()
		specDoc, specErr = loader.LoadFromData(api.Spec)
		if specErr != nil {
			specErr = fmt.Errorf("load openapi spec: %w", specErr)
			return
		}
		if err := specDoc.Validate(context.Background()); err != nil {
			specErr = fmt.Errorf("invalid openapi spec: %w", err)
		}
	})
	return specDoc, specErr
}

// requestValidator rejects requests that do not match the contract. Requests
// for routes outside it (metrics, /openapi.yaml) pass through untouched.
func requestValidator(router routers.Router, reject func(w http.ResponseWriter, r *http.Request, err error)) MiddlewareFunc {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			route, pathParams, err := router.FindRoute(r)
			if err != nil {
				next.ServeHTTP(w, r)
				return
			}
			input := &openapi3filter.RequestValidationInput{
				Request:    r,
				PathParams: pathParams,
				Route:      route,
			}
			if err := openapi3filter.ValidateRequest(r.Context(), input); err != nil {
				reject(w, r, err)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

func newSpecRouter() (routers.Router, error) {
	doc, err := GetSwagger()
	if err != nil {
		return nil, err
	}
	return legacy.NewRouter(doc)
}
