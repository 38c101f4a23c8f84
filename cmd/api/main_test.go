package main

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"pedraum/assignment"
	"pedraum/auth"
	"pedraum/demand"
	"pedraum/pricing"
	"pedraum/supplier"
)

type stubAuth struct{}

func (stubAuth) Register(_ context.Context, req auth.RegisterRequest) (*auth.User, error) {
	if req.Email == "taken@example.com" {
		return nil, auth.ErrDuplicateEmail
	}
	return &auth.User{ID: "u1", Email: req.Email, Name: req.Name, Role: auth.RoleSupplier}, nil
}

func (stubAuth) Login(_ context.Context, req auth.LoginRequest) (auth.LoginResult, error) {
	if req.Password != "correct" {
		return auth.LoginResult{}, auth.ErrInvalidCredentials
	}
	return auth.LoginResult{
		Token: "tok",
		User:  auth.User{ID: "u1", Email: req.Email, Role: auth.RoleAdmin},
	}, nil
}

func (stubAuth) VerifyToken(token string) (string, auth.Role, error) {
	switch token {
	case "admin-token":
		return "admin-1", auth.RoleAdmin, nil
	case "supplier-token":
		return "sup-1", auth.RoleSupplier, nil
	default:
		return "", "", errors.New("bad token")
	}
}

type stubDemands struct {
	demand    demand.Demand
	list      []demand.Demand
	err       error
	updated   demand.UpdateParams
	curations []string
}

func (s *stubDemands) Get(_ context.Context, id string) (demand.Demand, error) {
	return s.demand, s.err
}

func (s *stubDemands) List(_ context.Context, f demand.Filters) ([]demand.Demand, int, error) {
	return s.list, len(s.list), s.err
}

func (s *stubDemands) Update(_ context.Context, id string, p demand.UpdateParams) (demand.Demand, error) {
	s.updated = p
	return s.demand, s.err
}

func (s *stubDemands) Approve(_ context.Context, id, notes string, publish bool) error {
	s.curations = append(s.curations, "approve:"+id)
	return s.err
}

func (s *stubDemands) Reject(_ context.Context, id, notes string) error {
	s.curations = append(s.curations, "reject:"+id)
	return s.err
}

func (s *stubDemands) BackToPending(_ context.Context, id string) error {
	s.curations = append(s.curations, "pending:"+id)
	return s.err
}

func (s *stubDemands) SetStatus(_ context.Context, id string, next demand.Status) error {
	return s.err
}

func (s *stubDemands) Delete(_ context.Context, id string) error {
	return s.err
}

type stubAssignments struct {
	created   int
	list      []assignment.Assignment
	err       error
	unlocked  []string
	canceled  []string
	payments  []string
}

func (s *stubAssignments) SendToSuppliers(_ context.Context, demandID string, ids []string, price int64) (int, error) {
	return s.created, s.err
}

func (s *stubAssignments) SetPaymentStatus(_ context.Context, demandID, supplierID string, ps pricing.PaymentStatus) error {
	s.payments = append(s.payments, supplierID+":"+string(ps))
	return s.err
}

func (s *stubAssignments) Unlock(_ context.Context, demandID, supplierID string) error {
	s.unlocked = append(s.unlocked, supplierID)
	return s.err
}

func (s *stubAssignments) Cancel(_ context.Context, demandID, supplierID string) error {
	s.canceled = append(s.canceled, supplierID)
	return s.err
}

func (s *stubAssignments) Reactivate(_ context.Context, demandID, supplierID string) error {
	return s.err
}

func (s *stubAssignments) Delete(_ context.Context, demandID, supplierID string) error {
	return s.err
}

func (s *stubAssignments) ListByDemand(_ context.Context, demandID string) ([]assignment.Assignment, error) {
	return s.list, s.err
}

type stubSuppliers struct {
	pool []supplier.Supplier
	err  error
}

func (s *stubSuppliers) Search(_ context.Context, f supplier.Filters, refresh bool) ([]supplier.Supplier, error) {
	if s.err != nil {
		return nil, s.err
	}
	return supplier.Apply(s.pool, f), nil
}

func (s *stubSuppliers) Get(_ context.Context, id string) (supplier.Supplier, error) {
	for _, sp := range s.pool {
		if sp.ID == id {
			return sp, nil
		}
	}
	return supplier.Supplier{}, supplier.ErrNotFound
}

func (s *stubSuppliers) ToggleFreePlan(_ context.Context, id string, currentlyFree bool) error {
	return s.err
}

type stubGeo struct {
	cities []string
}

func (s stubGeo) CitiesByUF(_ context.Context, uf string) []string {
	return s.cities
}

func newTestServer(demands *stubDemands, assigns *stubAssignments, sups *stubSuppliers) *Server {
	if demands == nil {
		demands = &stubDemands{}
	}
	if assigns == nil {
		assigns = &stubAssignments{}
	}
	if sups == nil {
		sups = &stubSuppliers{}
	}
	return &Server{
		demands:     demands,
		assignments: assigns,
		suppliers:   sups,
		authService: stubAuth{},
		geo:         stubGeo{cities: []string{"Belo Horizonte", "Uberlândia"}},
	}
}

func doRequest(t *testing.T, s *Server, method, path, token, body string) *httptest.ResponseRecorder {
	t.Helper()
	var reader *strings.Reader
	if body == "" {
		reader = strings.NewReader("{}")
	} else {
		reader = strings.NewReader(body)
	}
	req := httptest.NewRequest(method, path, reader)
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	rec := httptest.NewRecorder()
	s.routes().ServeHTTP(rec, req)
	return rec
}

func TestAuthGate(t *testing.T) {
	s := newTestServer(nil, nil, nil)

	if rec := doRequest(t, s, http.MethodGet, "/api/demands", "", ""); rec.Code != http.StatusUnauthorized {
		t.Errorf("no token: got %d, want 401", rec.Code)
	}
	if rec := doRequest(t, s, http.MethodGet, "/api/demands", "garbage", ""); rec.Code != http.StatusUnauthorized {
		t.Errorf("bad token: got %d, want 401", rec.Code)
	}
	if rec := doRequest(t, s, http.MethodGet, "/api/demands", "supplier-token", ""); rec.Code != http.StatusForbidden {
		t.Errorf("wrong role: got %d, want 403", rec.Code)
	}
	if rec := doRequest(t, s, http.MethodGet, "/api/demands", "admin-token", ""); rec.Code != http.StatusOK {
		t.Errorf("admin: got %d, want 200", rec.Code)
	}
}

func TestHandleGetDemand_Success(t *testing.T) {
	now := time.Date(2025, 8, 1, 12, 0, 0, 0, time.UTC)
	unlockCap := 2
	s := newTestServer(&stubDemands{demand: demand.Demand{
		ID:                "d1",
		Title:             "Bateria tracionária 48V",
		DefaultPriceCents: 1990,
		UnlockCap:         &unlockCap,
		Status:            demand.StatusApproved,
		CreatedAt:         now,
	}}, nil, nil)

	rec := doRequest(t, s, http.MethodGet, "/api/demands/d1", "admin-token", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("got %d, want 200", rec.Code)
	}

	var resp demandResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if resp.ID != "d1" || resp.Status != "approved" {
		t.Fatalf("unexpected payload: %+v", resp)
	}
	if resp.Price != "R$ 19,90" {
		t.Errorf("price = %q, want formatted BRL", resp.Price)
	}
	if resp.UnlockCap == nil || *resp.UnlockCap != 2 {
		t.Errorf("unlockCap = %v, want 2", resp.UnlockCap)
	}
	if resp.CreatedAt != now.Format(time.RFC3339) {
		t.Errorf("createdAt = %q", resp.CreatedAt)
	}
}

func TestHandleGetDemand_NotFound(t *testing.T) {
	s := newTestServer(&stubDemands{err: demand.ErrNotFound}, nil, nil)

	rec := doRequest(t, s, http.MethodGet, "/api/demands/missing", "admin-token", "")
	if rec.Code != http.StatusNotFound {
		t.Fatalf("got %d, want 404", rec.Code)
	}
}

func TestHandleUpdateDemand_ParsesPriceString(t *testing.T) {
	demands := &stubDemands{demand: demand.Demand{ID: "d1"}}
	s := newTestServer(demands, nil, nil)

	body := `{"title":"Empilhadeira","price":"19,90"}`
	rec := doRequest(t, s, http.MethodPut, "/api/demands/d1", "admin-token", body)
	if rec.Code != http.StatusOK {
		t.Fatalf("got %d, want 200: %s", rec.Code, rec.Body.String())
	}
	if demands.updated.DefaultPriceCents != 1990 {
		t.Errorf("price cents = %d, want 1990", demands.updated.DefaultPriceCents)
	}
}

func TestHandleUpdateDemand_ValidationError(t *testing.T) {
	s := newTestServer(&stubDemands{err: demand.ErrValidation}, nil, nil)

	rec := doRequest(t, s, http.MethodPut, "/api/demands/d1", "admin-token", `{"title":""}`)
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("got %d, want 400", rec.Code)
	}
}

func TestHandleSendDemand(t *testing.T) {
	s := newTestServer(nil, &stubAssignments{created: 2}, nil)

	body := `{"supplierIds":["a","b"],"priceCents":1990}`
	rec := doRequest(t, s, http.MethodPost, "/api/demands/d1/send", "admin-token", body)
	if rec.Code != http.StatusOK {
		t.Fatalf("got %d, want 200", rec.Code)
	}
	var resp sendResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if resp.Created != 2 {
		t.Errorf("created = %d, want 2", resp.Created)
	}
}

func TestHandleUnlock_CapConflict(t *testing.T) {
	s := newTestServer(nil, &stubAssignments{err: assignment.ErrCapReached}, nil)

	rec := doRequest(t, s, http.MethodPost, "/api/demands/d1/assignments/s1/unlock", "admin-token", "")
	if rec.Code != http.StatusConflict {
		t.Fatalf("got %d, want 409", rec.Code)
	}
}

func TestHandleListAssignments(t *testing.T) {
	now := time.Date(2025, 8, 1, 12, 0, 0, 0, time.UTC)
	s := newTestServer(nil, &stubAssignments{list: []assignment.Assignment{{
		DemandID:      "d1",
		SupplierID:    "s1",
		Status:        assignment.StatusUnlocked,
		AmountCents:   1990,
		Currency:      "BRL",
		PaymentStatus: pricing.PaymentPaid,
		BillingType:   pricing.BillingPaid,
		CreatedAt:     now,
	}}}, nil)

	rec := doRequest(t, s, http.MethodGet, "/api/demands/d1/assignments", "admin-token", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("got %d, want 200", rec.Code)
	}
	var resp []assignmentResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(resp) != 1 || resp[0].SupplierID != "s1" || resp[0].Amount != "R$ 19,90" {
		t.Fatalf("unexpected payload: %+v", resp)
	}
}

func TestHandleListSuppliers_Filtered(t *testing.T) {
	s := newTestServer(nil, nil, &stubSuppliers{pool: []supplier.Supplier{
		{ID: "1", Name: "Baterias MG", UFs: []string{"MG"}},
		{ID: "2", Name: "Peças SP", UFs: []string{"SP"}},
	}})

	rec := doRequest(t, s, http.MethodGet, "/api/suppliers?uf=MG", "admin-token", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("got %d, want 200", rec.Code)
	}
	var resp []supplierResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(resp) != 1 || resp[0].ID != "1" {
		t.Fatalf("unexpected payload: %+v", resp)
	}
}

func TestHandleCities(t *testing.T) {
	s := newTestServer(nil, nil, nil)

	rec := doRequest(t, s, http.MethodGet, "/api/geo/MG/cities", "admin-token", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("got %d, want 200", rec.Code)
	}
	var cities []string
	if err := json.Unmarshal(rec.Body.Bytes(), &cities); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(cities) != 2 {
		t.Fatalf("cities = %v", cities)
	}
}

func TestHandleLogin(t *testing.T) {
	s := newTestServer(nil, nil, nil)

	rec := doRequest(t, s, http.MethodPost, "/api/auth/login", "", `{"email":"a@b.com","password":"correct"}`)
	if rec.Code != http.StatusOK {
		t.Fatalf("got %d, want 200", rec.Code)
	}
	var resp loginResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if resp.Token != "tok" || resp.User.Role != "admin" {
		t.Fatalf("unexpected payload: %+v", resp)
	}

	rec = doRequest(t, s, http.MethodPost, "/api/auth/login", "", `{"email":"a@b.com","password":"wrong"}`)
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("got %d, want 401", rec.Code)
	}
}

func TestHandleRegister_Duplicate(t *testing.T) {
	s := newTestServer(nil, nil, nil)

	rec := doRequest(t, s, http.MethodPost, "/api/auth/register", "",
		`{"email":"taken@example.com","password":"strongpass","name":"X"}`)
	if rec.Code != http.StatusConflict {
		t.Fatalf("got %d, want 409", rec.Code)
	}
}
