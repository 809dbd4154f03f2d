package rest

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/sleepcircle/wearlink/internal/pkg/httpx"
	"github.com/sleepcircle/wearlink/internal/pkg/middleware"
	"github.com/sleepcircle/wearlink/internal/pkg/router"
	"github.com/sleepcircle/wearlink/internal/services/wearable/internal/service"
)

type linkService interface {
	Initiate(ctx context.Context, userID string) (service.InitiateResponse, error)
	Callback(r service.CallbackRequest) string
	Exchange(ctx context.Context, r service.ExchangeRequest) error
	Disconnect(ctx context.Context, userID string) error
	Status(ctx context.Context, userID string) (service.StatusResponse, error)
	Refresh(ctx context.Context, userID string) error
}

type API struct {
	srv  linkService
	auth router.Middleware
	rt   *router.Router
}

// NewAPI creates the oauth endpoints. auth guards every route that acts on
// behalf of the caller.
func NewAPI(srv linkService, auth router.Middleware) *API {
	api := &API{
		srv:  srv,
		auth: auth,
		rt:   router.New(),
	}

	api.mount()
	return api
}

func (api *API) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	api.rt.ServeHTTP(w, r)
}

func (api *API) mount() {
	api.rt.HandleFunc("POST /initiate", api.handleInitiate, api.auth)
	api.rt.HandleFunc("GET /callback", api.handleCallback)
	api.rt.HandleFunc("POST /exchange", api.handleExchange)
	api.rt.HandleFunc("POST /disconnect", api.handleDisconnect, api.auth)
	api.rt.HandleFunc("GET /status", api.handleStatus, api.auth)
	api.rt.HandleFunc("POST /refresh", api.handleRefresh, api.auth)
}

type initiateResponse struct {
	AuthURL      string `json:"authUrl"`
	CodeVerifier string `json:"codeVerifier"`
	State        string `json:"state"`
}

func (api *API) handleInitiate(w http.ResponseWriter, r *http.Request) {
	resp, err := api.srv.Initiate(r.Context(), middleware.UserIDFromContext(r.Context()))
	if err != nil {
		httpx.HandleErr(w, r, err)
		return
	}

	err = httpx.WriteJSON(w, http.StatusOK, initiateResponse{
		AuthURL:      resp.AuthURL,
		CodeVerifier: resp.CodeVerifier,
		State:        resp.State,
	})
	if err != nil {
		httpx.HandleErr(w, r, fmt.Errorf("write response json: %w", err))
		return
	}
}

func (api *API) handleCallback(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	target := api.srv.Callback(service.CallbackRequest{
		Code:  q.Get("code"),
		State: q.Get("state"),
		Error: q.Get("error"),
	})

	http.Redirect(w, r, target, http.StatusFound)
}

type exchangeRequest struct {
	Code         string `json:"code"`
	CodeVerifier string `json:"code_verifier"`
	LocalUserID  string `json:"local_user_id"`
	State        string `json:"state"`
}

type successResponse struct {
	Success bool `json:"success"`
}

func (api *API) handleExchange(w http.ResponseWriter, r *http.Request) {
	var req exchangeRequest
	if err := httpx.ReadJSON(r, &req); err != nil {
		httpx.HandleErr(w, r, fmt.Errorf("read request json: %w", err))
		return
	}

	err := api.srv.Exchange(r.Context(), service.ExchangeRequest{
		Code:         req.Code,
		CodeVerifier: req.CodeVerifier,
		LocalUserID:  req.LocalUserID,
		State:        req.State,
	})
	if err != nil {
		httpx.HandleErr(w, r, err)
		return
	}

	api.writeSuccess(w, r)
}

func (api *API) handleDisconnect(w http.ResponseWriter, r *http.Request) {
	if err := api.srv.Disconnect(r.Context(), middleware.UserIDFromContext(r.Context())); err != nil {
		httpx.HandleErr(w, r, err)
		return
	}

	api.writeSuccess(w, r)
}

type statusResponse struct {
	Connected      bool       `json:"connected"`
	Provider       string     `json:"provider,omitempty"`
	ProviderUserID string     `json:"providerUserId,omitempty"`
	UpdatedAt      *time.Time `json:"updatedAt,omitempty"`
}

func (api *API) handleStatus(w http.ResponseWriter, r *http.Request) {
	st, err := api.srv.Status(r.Context(), middleware.UserIDFromContext(r.Context()))
	if err != nil {
		httpx.HandleErr(w, r, err)
		return
	}

	resp := statusResponse{Connected: st.Connected}
	if st.Connected {
		resp.Provider = st.Provider
		resp.ProviderUserID = st.ProviderUserID
		resp.UpdatedAt = &st.UpdatedAt
	}

	if err = httpx.WriteJSON(w, http.StatusOK, resp); err != nil {
		httpx.HandleErr(w, r, fmt.Errorf("write response json: %w", err))
		return
	}
}

func (api *API) handleRefresh(w http.ResponseWriter, r *http.Request) {
	if err := api.srv.Refresh(r.Context(), middleware.UserIDFromContext(r.Context())); err != nil {
		httpx.HandleErr(w, r, err)
		return
	}

	api.writeSuccess(w, r)
}

func (api *API) writeSuccess(w http.ResponseWriter, r *http.Request) {
	if err := httpx.WriteJSON(w, http.StatusOK, successResponse{Success: true}); err != nil {
		httpx.HandleErr(w, r, fmt.Errorf("write response json: %w", err))
	}
}
