// Copyright (c) 2026 ToeiRei
// Gatekeeper - license-gated access control
// This source code is licensed under the MIT license found in the LICENSE file.

package httpapi

import (
	"net/http"
	"reflect"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/render"
	"github.com/go-playground/validator/v10"
	"github.com/toeirei/gatekeeper/internal/core"
	"github.com/toeirei/gatekeeper/internal/model"
	"github.com/toeirei/gatekeeper/internal/security"
)

var validate = newValidate()

func newValidate() *validator.Validate {
	v := validator.New(validator.WithRequiredStructEnabled())
	// Report JSON field names in validation errors.
	v.RegisterTagNameFunc(func(fld reflect.StructField) string {
		name := strings.SplitN(fld.Tag.Get("json"), ",", 2)[0]
		if name == "-" {
			return ""
		}
		return name
	})
	return v
}

// LoginRequest is the body of POST /v1/login. The machine fields describe the
// client's host and take part in hardware binding.
type LoginRequest struct {
	Username   string `json:"username" validate:"required"`
	Password   string `json:"password" validate:"required"`
	MachineID  string `json:"machine_id" validate:"required"`
	CPUID      string `json:"cpu_id"`
	MACAddress string `json:"mac_address"`
	OSVersion  string `json:"os_version"`
	Auxiliary  string `json:"auxiliary" validate:"max=4096"`
}

// Bind implements render.Binder.
func (l *LoginRequest) Bind(r *http.Request) error { return validate.Struct(l) }

func (l *LoginRequest) host() model.HostAttributes {
	return model.HostAttributes{
		Fingerprint: model.MachineFingerprint{MachineID: l.MachineID, CPUID: l.CPUID, MACAddress: l.MACAddress},
		OSVersion:   l.OSVersion,
		Auxiliary:   l.Auxiliary,
	}
}

// RegisterRequest is the body of POST /v1/register.
type RegisterRequest struct {
	Username string `json:"username" validate:"required,max=255"`
	Password string `json:"password" validate:"required"`
	Confirm  string `json:"confirm" validate:"required,eqfield=Password"`
	Key      string `json:"key" validate:"required,max=255"`
}

// Bind implements render.Binder.
func (rr *RegisterRequest) Bind(r *http.Request) error { return validate.Struct(rr) }

// RedeemRequest is the body of POST /v1/accounts/{id}/redeem.
type RedeemRequest struct {
	Key string `json:"key" validate:"required,max=255"`
}

// Bind implements render.Binder.
func (rr *RedeemRequest) Bind(r *http.Request) error { return validate.Struct(rr) }

// LoginResponse reports an accepted login. Expired logins are accepted; the
// client must gate licensed features on Expired.
type LoginResponse struct {
	AccountID int64      `json:"account_id"`
	Username  string     `json:"username"`
	Expired   bool       `json:"expired"`
	Message   string     `json:"message"`
	ProductID int64      `json:"product_id,omitempty"`
	ExpiresAt *time.Time `json:"expires_at,omitempty"`
}

// AccountResponse is returned by a successful registration.
type AccountResponse struct {
	AccountID int64 `json:"account_id"`
}

// SubscriptionResponse describes one subscription.
type SubscriptionResponse struct {
	ProductID   int64     `json:"product_id"`
	ProductName string    `json:"product_name,omitempty"`
	ExpiresAt   time.Time `json:"expires_at"`
}

func (s *Server) health(w http.ResponseWriter, r *http.Request) {
	render.JSON(w, r, map[string]string{"status": "ok"})
}

func (s *Server) login(w http.ResponseWriter, r *http.Request) {
	var req LoginRequest
	if err := render.Bind(r, &req); err != nil {
		_ = render.Render(w, r, errInvalidRequest(err))
		return
	}
	pw := security.FromString(req.Password)
	defer pw.Zero()

	res, err := s.svc.Validator.LoginFrom(r.Context(), req.Username, pw, req.host())
	if err != nil {
		_ = render.Render(w, r, errFromCore(err))
		return
	}
	out := LoginResponse{
		AccountID: res.AccountID,
		Username:  res.Username,
		Expired:   res.Expired,
		Message:   res.Message,
	}
	if res.Subscription != nil {
		exp := res.Subscription.ExpiresAt
		out.ProductID = res.Subscription.ProductID
		out.ExpiresAt = &exp
	}
	render.JSON(w, r, out)
}

func (s *Server) register(w http.ResponseWriter, r *http.Request) {
	var req RegisterRequest
	if err := render.Bind(r, &req); err != nil {
		_ = render.Render(w, r, errInvalidRequest(err))
		return
	}
	reg := core.Registration{
		Username: req.Username,
		Password: security.FromString(req.Password),
		Confirm:  security.FromString(req.Confirm),
		Key:      req.Key,
	}
	defer reg.Password.Zero()
	defer reg.Confirm.Zero()

	id, err := s.svc.Ledger.Register(r.Context(), reg)
	if err != nil {
		_ = render.Render(w, r, errFromCore(err))
		return
	}
	render.Status(r, http.StatusCreated)
	render.JSON(w, r, AccountResponse{AccountID: id})
}

func (s *Server) redeem(w http.ResponseWriter, r *http.Request) {
	id, ok := accountID(w, r)
	if !ok {
		return
	}
	var req RedeemRequest
	if err := render.Bind(r, &req); err != nil {
		_ = render.Render(w, r, errInvalidRequest(err))
		return
	}
	sub, err := s.svc.Ledger.Redeem(r.Context(), strings.TrimSpace(req.Key), id)
	if err != nil {
		_ = render.Render(w, r, errFromCore(err))
		return
	}
	render.JSON(w, r, SubscriptionResponse{ProductID: sub.ProductID, ExpiresAt: sub.ExpiresAt})
}

func (s *Server) subscriptions(w http.ResponseWriter, r *http.Request) {
	id, ok := accountID(w, r)
	if !ok {
		return
	}
	subs, err := s.svc.Ledger.ActiveSubscriptions(r.Context(), id)
	if err != nil {
		_ = render.Render(w, r, errFromCore(err))
		return
	}
	out := make([]SubscriptionResponse, 0, len(subs))
	for _, p := range subs {
		out = append(out, SubscriptionResponse{ProductID: p.ProductID, ProductName: p.ProductName, ExpiresAt: p.ExpiresAt})
	}
	render.JSON(w, r, out)
}

func accountID(w http.ResponseWriter, r *http.Request) (int64, bool) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil || id <= 0 {
		_ = render.Render(w, r, &ErrResponse{HTTPStatusCode: http.StatusBadRequest, StatusText: StatusInvalidRequest, Reason: "invalid account id"})
		return 0, false
	}
	return id, true
}
