package main

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"strings"
	"time"

	"pedraum/assignment"
	"pedraum/auth"
	"pedraum/demand"
	"pedraum/pricing"
	"pedraum/supplier"
)

type demandService interface {
	Get(ctx context.Context, id string) (demand.Demand, error)
	List(ctx context.Context, f demand.Filters) ([]demand.Demand, int, error)
	Update(ctx context.Context, id string, p demand.UpdateParams) (demand.Demand, error)
	Approve(ctx context.Context, id, notes string, publish bool) error
	Reject(ctx context.Context, id, notes string) error
	BackToPending(ctx context.Context, id string) error
	SetStatus(ctx context.Context, id string, next demand.Status) error
	Delete(ctx context.Context, id string) error
}

type assignmentService interface {
	SendToSuppliers(ctx context.Context, demandID string, supplierIDs []string, basePriceCents int64) (int, error)
	SetPaymentStatus(ctx context.Context, demandID, supplierID string, ps pricing.PaymentStatus) error
	Unlock(ctx context.Context, demandID, supplierID string) error
	Cancel(ctx context.Context, demandID, supplierID string) error
	Reactivate(ctx context.Context, demandID, supplierID string) error
	Delete(ctx context.Context, demandID, supplierID string) error
	ListByDemand(ctx context.Context, demandID string) ([]assignment.Assignment, error)
}

type supplierDirectory interface {
	Search(ctx context.Context, f supplier.Filters, refresh bool) ([]supplier.Supplier, error)
	Get(ctx context.Context, id string) (supplier.Supplier, error)
	ToggleFreePlan(ctx context.Context, id string, currentlyFree bool) error
}

type authService interface {
	Register(ctx context.Context, req auth.RegisterRequest) (*auth.User, error)
	Login(ctx context.Context, req auth.LoginRequest) (auth.LoginResult, error)
	VerifyToken(token string) (string, auth.Role, error)
}

type geoClient interface {
	CitiesByUF(ctx context.Context, uf string) []string
}

// Server is the admin HTTP surface.
type Server struct {
	demands     demandService
	assignments assignmentService
	suppliers   supplierDirectory
	authService authService
	geo         geoClient
}

type ctxKey int

const (
	ctxKeyUserID ctxKey = iota
	ctxKeyRole
)

func (s *Server) routes() http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("GET /healthz", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})

	mux.HandleFunc("POST /api/auth/register", s.handleRegister)
	mux.HandleFunc("POST /api/auth/login", s.handleLogin)

	admin := s.requireRole(auth.RoleAdmin)

	mux.HandleFunc("GET /api/demands", admin(s.handleListDemands))
	mux.HandleFunc("GET /api/demands/{id}", admin(s.handleGetDemand))
	mux.HandleFunc("PUT /api/demands/{id}", admin(s.handleUpdateDemand))
	mux.HandleFunc("DELETE /api/demands/{id}", admin(s.handleDeleteDemand))
	mux.HandleFunc("POST /api/demands/{id}/approve", admin(s.handleApproveDemand))
	mux.HandleFunc("POST /api/demands/{id}/reject", admin(s.handleRejectDemand))
	mux.HandleFunc("POST /api/demands/{id}/pending", admin(s.handleDemandBackToPending))
	mux.HandleFunc("POST /api/demands/{id}/status", admin(s.handleDemandStatus))
	mux.HandleFunc("POST /api/demands/{id}/send", admin(s.handleSendDemand))
	mux.HandleFunc("GET /api/demands/{id}/assignments", admin(s.handleListAssignments))
	mux.HandleFunc("POST /api/demands/{id}/assignments/{supplierId}/unlock", admin(s.handleUnlock))
	mux.HandleFunc("POST /api/demands/{id}/assignments/{supplierId}/cancel", admin(s.handleCancel))
	mux.HandleFunc("POST /api/demands/{id}/assignments/{supplierId}/reactivate", admin(s.handleReactivate))
	mux.HandleFunc("POST /api/demands/{id}/assignments/{supplierId}/payment", admin(s.handlePaymentStatus))
	mux.HandleFunc("DELETE /api/demands/{id}/assignments/{supplierId}", admin(s.handleDeleteAssignment))

	mux.HandleFunc("GET /api/suppliers", admin(s.handleListSuppliers))
	mux.HandleFunc("GET /api/suppliers/{id}", admin(s.handleGetSupplier))
	mux.HandleFunc("POST /api/suppliers/{id}/free-plan", admin(s.handleToggleFreePlan))

	mux.HandleFunc("GET /api/geo/{uf}/cities", admin(s.handleCities))

	return mux
}

// requireRole authenticates the bearer token and gates the handler on the
// given role.
func (s *Server) requireRole(role auth.Role) func(http.HandlerFunc) http.HandlerFunc {
	return func(next http.HandlerFunc) http.HandlerFunc {
		return func(w http.ResponseWriter, r *http.Request) {
			header := r.Header.Get("Authorization")
			token, ok := strings.CutPrefix(header, "Bearer ")
			if !ok || token == "" {
				writeError(w, http.StatusUnauthorized, "missing bearer token")
				return
			}
			userID, userRole, err := s.authService.VerifyToken(token)
			if err != nil {
				writeError(w, http.StatusUnauthorized, "invalid token")
				return
			}
			if userRole != role {
				writeError(w, http.StatusForbidden, "insufficient role")
				return
			}
			ctx := context.WithValue(r.Context(), ctxKeyUserID, userID)
			ctx = context.WithValue(ctx, ctxKeyRole, userRole)
			next(w, r.WithContext(ctx))
		}
	}
}

type errorResponse struct {
	Error string `json:"error"`
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, errorResponse{Error: msg})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

// writeServiceError maps domain sentinels onto HTTP statuses.
func writeServiceError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, demand.ErrValidation),
		errors.Is(err, assignment.ErrValidation),
		errors.Is(err, auth.ErrWeakPassword):
		writeError(w, http.StatusBadRequest, err.Error())
	case errors.Is(err, demand.ErrInvalidTransition):
		writeError(w, http.StatusConflict, err.Error())
	case errors.Is(err, assignment.ErrCapReached),
		errors.Is(err, assignment.ErrLockedPayment):
		writeError(w, http.StatusConflict, err.Error())
	case errors.Is(err, auth.ErrDuplicateEmail):
		writeError(w, http.StatusConflict, err.Error())
	case errors.Is(err, auth.ErrInvalidCredentials):
		writeError(w, http.StatusUnauthorized, err.Error())
	case errors.Is(err, demand.ErrNotFound),
		errors.Is(err, assignment.ErrNotFound),
		errors.Is(err, assignment.ErrDemandNotFound),
		errors.Is(err, supplier.ErrNotFound),
		errors.Is(err, auth.ErrUserNotFound):
		writeError(w, http.StatusNotFound, err.Error())
	default:
		writeError(w, http.StatusInternalServerError, "internal error")
	}
}

type userResponse struct {
	ID    string `json:"id"`
	Email string `json:"email"`
	Name  string `json:"name"`
	Role  string `json:"role"`
}

func (s *Server) handleRegister(w http.ResponseWriter, r *http.Request) {
	var req auth.RegisterRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid body")
		return
	}
	user, err := s.authService.Register(r.Context(), req)
	if err != nil {
		if strings.Contains(err.Error(), "required") || strings.Contains(err.Error(), "invalid role") {
			writeError(w, http.StatusBadRequest, err.Error())
			return
		}
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, userResponse{
		ID:    user.ID,
		Email: user.Email,
		Name:  user.Name,
		Role:  string(user.Role),
	})
}

type loginResponse struct {
	Token string       `json:"token"`
	User  userResponse `json:"user"`
}

func (s *Server) handleLogin(w http.ResponseWriter, r *http.Request) {
	var req auth.LoginRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid body")
		return
	}
	res, err := s.authService.Login(r.Context(), req)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, loginResponse{
		Token: res.Token,
		User: userResponse{
			ID:    res.User.ID,
			Email: res.User.Email,
			Name:  res.User.Name,
			Role:  string(res.User.Role),
		},
	})
}

type demandResponse struct {
	ID             string   `json:"id"`
	Title          string   `json:"title"`
	Description    string   `json:"description"`
	Category       string   `json:"category"`
	Subcategory    string   `json:"subcategory,omitempty"`
	State          string   `json:"state"`
	City           string   `json:"city"`
	Deadline       string   `json:"deadline,omitempty"`
	Budget         *int64   `json:"budget,omitempty"`
	Notes          string   `json:"notes,omitempty"`
	Tags           []string `json:"tags"`
	Images         []string `json:"images"`
	PDFURL         *string  `json:"pdfUrl,omitempty"`
	ContactName    string   `json:"contactName"`
	ContactEmail   string   `json:"contactEmail"`
	ContactMask    string   `json:"contactWhatsapp"`
	PriceCents     int64    `json:"priceCents"`
	Price          string   `json:"price"`
	Currency       string   `json:"currency"`
	UnlockCap      *int     `json:"unlockCap"`
	UnlockCount    int      `json:"unlockCount"`
	UnlockedFor    []string `json:"unlockedFor"`
	Status         string   `json:"status"`
	Curated        bool     `json:"curated"`
	CurationNotes  string   `json:"curationNotes,omitempty"`
	CuratedAt      string   `json:"curatedAt,omitempty"`
	PublishedAt    string   `json:"publishedAt,omitempty"`
	LastSentAt     string   `json:"lastSentAt,omitempty"`
	CreatedAt      string   `json:"createdAt"`
}

func toDemandResponse(d demand.Demand) demandResponse {
	resp := demandResponse{
		ID:            d.ID,
		Title:         d.Title,
		Description:   d.Description,
		Category:      d.Category,
		Subcategory:   d.Subcategory,
		State:         d.State,
		City:          d.City,
		Deadline:      d.Deadline,
		Budget:        d.Budget,
		Notes:         d.Notes,
		Tags:          d.Tags,
		Images:        d.Images,
		PDFURL:        d.PDFURL,
		ContactName:   d.ContactName,
		ContactEmail:  d.ContactEmail,
		ContactMask:   d.ContactWhatsAppMask,
		PriceCents:    d.DefaultPriceCents,
		Price:         pricing.FormatBRL(d.DefaultPriceCents),
		Currency:      d.Currency,
		UnlockCap:     d.UnlockCap,
		UnlockCount:   d.UnlockCount,
		UnlockedFor:   d.UnlockedFor,
		Status:        string(d.Status),
		Curated:       d.Curated,
		CurationNotes: d.CurationNotes,
		CreatedAt:     d.CreatedAt.Format(time.RFC3339),
	}
	if d.CuratedAt != nil {
		resp.CuratedAt = d.CuratedAt.Format(time.RFC3339)
	}
	if d.PublishedAt != nil {
		resp.PublishedAt = d.PublishedAt.Format(time.RFC3339)
	}
	if d.LastSentAt != nil {
		resp.LastSentAt = d.LastSentAt.Format(time.RFC3339)
	}
	return resp
}

type demandListResponse struct {
	Items []demandResponse `json:"items"`
	Total int              `json:"total"`
}

func (s *Server) handleListDemands(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	f := demand.Filters{
		Status:   demand.Status(q.Get("status")),
		Category: q.Get("category"),
		State:    q.Get("state"),
		Page:     atoiDefault(q.Get("page"), 1),
		PageSize: atoiDefault(q.Get("pageSize"), 20),
	}
	items, total, err := s.demands.List(r.Context(), f)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	resp := demandListResponse{Items: make([]demandResponse, 0, len(items)), Total: total}
	for _, d := range items {
		resp.Items = append(resp.Items, toDemandResponse(d))
	}
	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) handleGetDemand(w http.ResponseWriter, r *http.Request) {
	d, err := s.demands.Get(r.Context(), r.PathValue("id"))
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toDemandResponse(d))
}

type updateDemandRequest struct {
	Title           string   `json:"title"`
	Description     string   `json:"description"`
	Category        string   `json:"category"`
	Subcategory     string   `json:"subcategory"`
	State           string   `json:"state"`
	City            string   `json:"city"`
	Deadline        string   `json:"deadline"`
	Budget          *int64   `json:"budget"`
	Notes           string   `json:"notes"`
	Tags            []string `json:"tags"`
	Images          []string `json:"images"`
	PDFURL          *string  `json:"pdfUrl"`
	ContactName     string   `json:"contactName"`
	ContactEmail    string   `json:"contactEmail"`
	ContactWhatsApp string   `json:"contactWhatsapp"`
	Price           string   `json:"price"`
	PriceCents      *int64   `json:"priceCents"`
	UnlockCap       *int     `json:"unlockCap"`
}

func (s *Server) handleUpdateDemand(w http.ResponseWriter, r *http.Request) {
	var req updateDemandRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid body")
		return
	}
	priceCents := pricing.ReaisToCents(req.Price)
	if req.PriceCents != nil {
		priceCents = *req.PriceCents
	}
	d, err := s.demands.Update(r.Context(), r.PathValue("id"), demand.UpdateParams{
		Title:             req.Title,
		Description:       req.Description,
		Category:          req.Category,
		Subcategory:       req.Subcategory,
		State:             req.State,
		City:              req.City,
		Deadline:          req.Deadline,
		Budget:            req.Budget,
		Notes:             req.Notes,
		Tags:              req.Tags,
		Images:            req.Images,
		PDFURL:            req.PDFURL,
		ContactName:       req.ContactName,
		ContactEmail:      req.ContactEmail,
		ContactWhatsApp:   req.ContactWhatsApp,
		DefaultPriceCents: priceCents,
		UnlockCap:         req.UnlockCap,
	})
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toDemandResponse(d))
}

func (s *Server) handleDeleteDemand(w http.ResponseWriter, r *http.Request) {
	if err := s.demands.Delete(r.Context(), r.PathValue("id")); err != nil {
		writeServiceError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

type curationRequest struct {
	Notes   string `json:"notes"`
	Publish bool   `json:"publish"`
}

func (s *Server) handleApproveDemand(w http.ResponseWriter, r *http.Request) {
	var req curationRequest
	if r.Body != nil {
		json.NewDecoder(r.Body).Decode(&req)
	}
	if err := s.demands.Approve(r.Context(), r.PathValue("id"), req.Notes, req.Publish); err != nil {
		writeServiceError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleRejectDemand(w http.ResponseWriter, r *http.Request) {
	var req curationRequest
	if r.Body != nil {
		json.NewDecoder(r.Body).Decode(&req)
	}
	if err := s.demands.Reject(r.Context(), r.PathValue("id"), req.Notes); err != nil {
		writeServiceError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleDemandBackToPending(w http.ResponseWriter, r *http.Request) {
	if err := s.demands.BackToPending(r.Context(), r.PathValue("id")); err != nil {
		writeServiceError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleDemandStatus(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Status string `json:"status"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid body")
		return
	}
	if err := s.demands.SetStatus(r.Context(), r.PathValue("id"), demand.Status(req.Status)); err != nil {
		writeServiceError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

type sendRequest struct {
	SupplierIDs []string `json:"supplierIds"`
	Price       string   `json:"price"`
	PriceCents  *int64   `json:"priceCents"`
}

type sendResponse struct {
	Created int `json:"created"`
}

func (s *Server) handleSendDemand(w http.ResponseWriter, r *http.Request) {
	var req sendRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid body")
		return
	}
	priceCents := pricing.ReaisToCents(req.Price)
	if req.PriceCents != nil {
		priceCents = *req.PriceCents
	}
	created, err := s.assignments.SendToSuppliers(r.Context(), r.PathValue("id"), req.SupplierIDs, priceCents)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, sendResponse{Created: created})
}

type assignmentResponse struct {
	SupplierID      string `json:"supplierId"`
	Status          string `json:"status"`
	AmountCents     int64  `json:"amountCents"`
	Amount          string `json:"amount"`
	Currency        string `json:"currency"`
	PaymentStatus   string `json:"paymentStatus"`
	BillingType     string `json:"billingType"`
	UnlockedByAdmin bool   `json:"unlockedByAdmin"`
	UnlockedAt      string `json:"unlockedAt,omitempty"`
	CreatedAt       string `json:"createdAt"`
}

func (s *Server) handleListAssignments(w http.ResponseWriter, r *http.Request) {
	list, err := s.assignments.ListByDemand(r.Context(), r.PathValue("id"))
	if err != nil {
		writeServiceError(w, err)
		return
	}
	resp := make([]assignmentResponse, 0, len(list))
	for _, a := range list {
		item := assignmentResponse{
			SupplierID:      a.SupplierID,
			Status:          string(a.Status),
			AmountCents:     a.AmountCents,
			Amount:          pricing.FormatBRL(a.AmountCents),
			Currency:        a.Currency,
			PaymentStatus:   string(a.PaymentStatus),
			BillingType:     string(a.BillingType),
			UnlockedByAdmin: a.UnlockedByAdmin,
			CreatedAt:       a.CreatedAt.Format(time.RFC3339),
		}
		if a.UnlockedAt != nil {
			item.UnlockedAt = a.UnlockedAt.Format(time.RFC3339)
		}
		resp = append(resp, item)
	}
	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) handleUnlock(w http.ResponseWriter, r *http.Request) {
	if err := s.assignments.Unlock(r.Context(), r.PathValue("id"), r.PathValue("supplierId")); err != nil {
		writeServiceError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleCancel(w http.ResponseWriter, r *http.Request) {
	if err := s.assignments.Cancel(r.Context(), r.PathValue("id"), r.PathValue("supplierId")); err != nil {
		writeServiceError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleReactivate(w http.ResponseWriter, r *http.Request) {
	if err := s.assignments.Reactivate(r.Context(), r.PathValue("id"), r.PathValue("supplierId")); err != nil {
		writeServiceError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handlePaymentStatus(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Status string `json:"status"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid body")
		return
	}
	err := s.assignments.SetPaymentStatus(r.Context(), r.PathValue("id"), r.PathValue("supplierId"), pricing.PaymentStatus(req.Status))
	if err != nil {
		writeServiceError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleDeleteAssignment(w http.ResponseWriter, r *http.Request) {
	if err := s.assignments.Delete(r.Context(), r.PathValue("id"), r.PathValue("supplierId")); err != nil {
		writeServiceError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

type supplierResponse struct {
	ID         string   `json:"id"`
	Name       string   `json:"name"`
	Email      string   `json:"email,omitempty"`
	WhatsApp   string   `json:"whatsapp,omitempty"`
	City       string   `json:"city,omitempty"`
	State      string   `json:"state,omitempty"`
	UFs        []string `json:"ufs"`
	Nationwide bool     `json:"servesBrazil"`
	Categories []string `json:"categories"`
	Sponsor    bool     `json:"sponsor"`
	FreePlan   bool     `json:"freePlan"`
}

func toSupplierResponse(sp supplier.Supplier) supplierResponse {
	return supplierResponse{
		ID:         sp.ID,
		Name:       sp.Name,
		Email:      sp.Email,
		WhatsApp:   sp.WhatsAppMask,
		City:       sp.City,
		State:      sp.State,
		UFs:        sp.UFs,
		Nationwide: sp.ServesBrazil,
		Categories: sp.Categories,
		Sponsor:    sp.Sponsor,
		FreePlan:   sp.FreePlan,
	}
}

func (s *Server) handleListSuppliers(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	f := supplier.Filters{
		Category: q.Get("category"),
		UF:       q.Get("uf"),
		Kind:     q.Get("kind"),
		Query:    q.Get("q"),
	}
	list, err := s.suppliers.Search(r.Context(), f, q.Get("refresh") == "true")
	if err != nil {
		writeServiceError(w, err)
		return
	}
	resp := make([]supplierResponse, 0, len(list))
	for _, sp := range list {
		resp = append(resp, toSupplierResponse(sp))
	}
	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) handleGetSupplier(w http.ResponseWriter, r *http.Request) {
	sp, err := s.suppliers.Get(r.Context(), r.PathValue("id"))
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toSupplierResponse(sp))
}

func (s *Server) handleToggleFreePlan(w http.ResponseWriter, r *http.Request) {
	var req struct {
		CurrentlyFree bool `json:"currentlyFree"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid body")
		return
	}
	if err := s.suppliers.ToggleFreePlan(r.Context(), r.PathValue("id"), req.CurrentlyFree); err != nil {
		if errors.Is(err, supplier.ErrFreePlanNotUpdated) {
			writeError(w, http.StatusNotFound, err.Error())
			return
		}
		writeServiceError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleCities(w http.ResponseWriter, r *http.Request) {
	cities := s.geo.CitiesByUF(r.Context(), r.PathValue("uf"))
	if cities == nil {
		cities = []string{}
	}
	writeJSON(w, http.StatusOK, cities)
}

func atoiDefault(s string, def int) int {
	n, err := strconv.Atoi(s)
	if err != nil || n <= 0 {
		return def
	}
	return n
}
