package main

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/Twhite2/Retail-Chain/agreement"
	"github.com/Twhite2/Retail-Chain/dispute"
	"github.com/Twhite2/Retail-Chain/event"
	"github.com/Twhite2/Retail-Chain/identity"
	"github.com/Twhite2/Retail-Chain/iot"
	"github.com/Twhite2/Retail-Chain/shipment"
	"github.com/Twhite2/Retail-Chain/store"
	"github.com/Twhite2/Retail-Chain/supplier"
	"github.com/Twhite2/Retail-Chain/verifier"
)

type ctxKey int

const (
	ctxKeyUserID ctxKey = iota
	ctxKeyRole
)

type identityService interface {
	Register(ctx context.Context, req identity.RegisterRequest) (*identity.User, error)
	Login(ctx context.Context, req identity.LoginRequest) (identity.LoginResult, error)
	VerifyToken(token string) (string, identity.Role, error)
	GetUserByID(ctx context.Context, userID string) (*identity.User, error)
}

type storeService interface {
	Initialize(ctx context.Context, ownerID string, params store.InitializeParams) (store.Store, error)
	SetActive(ctx context.Context, callerID, storeID string, active bool) (store.Store, error)
	AddProduct(ctx context.Context, callerID string, params store.AddProductParams) (store.Product, error)
	UpdateProduct(ctx context.Context, callerID string, params store.UpdateProductParams) (store.Product, error)
}

type supplierService interface {
	Register(ctx context.Context, callerID string, params supplier.RegisterParams) (supplier.Supplier, error)
	Verify(ctx context.Context, callerID string, cred *verifier.Credential, supplierID string) (supplier.Supplier, error)
	Update(ctx context.Context, callerID, supplierID string, params supplier.UpdateParams) (supplier.Supplier, error)
	Rate(ctx context.Context, callerID string, params supplier.RateParams) (supplier.Supplier, error)
	AddCatalogProduct(ctx context.Context, callerID string, params supplier.CatalogProductParams) (supplier.CatalogProduct, error)
}

type verifierService interface {
	Register(ctx context.Context, holderID string, params verifier.RegisterParams) (verifier.Credential, error)
	Get(ctx context.Context, holderID string) (verifier.Credential, error)
}

type agreementService interface {
	Create(ctx context.Context, callerID string, params agreement.CreateParams) (agreement.Record, error)
	Accept(ctx context.Context, callerID, agreementID string) (agreement.Record, error)
	AddProducts(ctx context.Context, callerID, agreementID string, productIDs []string) ([]string, error)
	Complete(ctx context.Context, callerID, agreementID string) (agreement.Record, error)
	Cancel(ctx context.Context, callerID, agreementID string) (agreement.Record, error)
}

type disputeService interface {
	Open(ctx context.Context, callerID, agreementID, reason string) (dispute.Record, error)
	Resolve(ctx context.Context, callerID string, cred *verifier.Credential, disputeID string, outcome dispute.Outcome, notes string) (dispute.Record, error)
}

type shipmentService interface {
	Create(ctx context.Context, callerID string, params shipment.CreateParams) (shipment.Shipment, error)
	UpdateStatus(ctx context.Context, callerID string, cred *verifier.Credential, shipmentID string, to shipment.Status) (shipment.Shipment, error)
	VerifyDelivery(ctx context.Context, callerID, shipmentID string) (shipment.Shipment, error)
	AddException(ctx context.Context, callerID string, cred *verifier.Credential, shipmentID, description string) (shipment.Shipment, error)
	RecordLocation(ctx context.Context, callerID string, cred *verifier.Credential, shipmentID string, params shipment.LocationParams) (shipment.LocationPing, error)
}

type iotService interface {
	AddReading(ctx context.Context, callerID string, params iot.AddReadingParams) (iot.Reading, error)
	VerifyReading(ctx context.Context, callerID string, cred *verifier.Credential, readingID string) (iot.Reading, error)
}

type eventService interface {
	Record(ctx context.Context, recorderID string, params event.RecordParams) (event.Record, error)
}

// Server exposes the supply chain services over HTTP. Handlers translate JSON
// requests into service calls and sentinel errors into status codes; nothing
// domain-specific lives here.
type Server struct {
	identityService  identityService
	storeService     storeService
	supplierService  supplierService
	verifierService  verifierService
	agreementService agreementService
	disputeService   disputeService
	shipmentService  shipmentService
	iotService       iotService
	eventService     eventService
}

func (s *Server) routes() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/api/auth/register", s.handleRegister)
	mux.HandleFunc("/api/auth/login", s.handleLogin)

	mux.HandleFunc("/api/me", s.withAuth(s.handleMe))
	mux.HandleFunc("/api/stores", s.withAuth(s.handleStores))
	mux.HandleFunc("/api/stores/", s.withAuth(s.handleStoreDetail))
	mux.HandleFunc("/api/products/", s.withAuth(s.handleProductDetail))
	mux.HandleFunc("/api/suppliers", s.withAuth(s.handleSuppliers))
	mux.HandleFunc("/api/suppliers/", s.withAuth(s.handleSupplierDetail))
	mux.HandleFunc("/api/verifiers", s.withAuth(s.handleVerifiers))
	mux.HandleFunc("/api/agreements", s.withAuth(s.handleAgreements))
	mux.HandleFunc("/api/agreements/", s.withAuth(s.handleAgreementDetail))
	mux.HandleFunc("/api/disputes", s.withAuth(s.handleDisputes))
	mux.HandleFunc("/api/disputes/", s.withAuth(s.handleDisputeDetail))
	mux.HandleFunc("/api/shipments", s.withAuth(s.handleShipments))
	mux.HandleFunc("/api/shipments/", s.withAuth(s.handleShipmentDetail))
	mux.HandleFunc("/api/readings", s.withAuth(s.handleReadings))
	mux.HandleFunc("/api/readings/", s.withAuth(s.handleReadingDetail))
	mux.HandleFunc("/api/events", s.withAuth(s.handleEvents))
	return mux
}

func (s *Server) withAuth(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		header := r.Header.Get("Authorization")
		if !strings.HasPrefix(header, "Bearer ") {
			writeError(w, http.StatusUnauthorized, "missing bearer token")
			return
		}
		userID, role, err := s.identityService.VerifyToken(strings.TrimPrefix(header, "Bearer "))
		if err != nil {
			writeError(w, http.StatusUnauthorized, "invalid token")
			return
		}
		ctx := context.WithValue(r.Context(), ctxKeyUserID, userID)
		ctx = context.WithValue(ctx, ctxKeyRole, role)
		next(w, r.WithContext(ctx))
	}
}

func callerID(r *http.Request) string {
	id, _ := r.Context().Value(ctxKeyUserID).(string)
	return id
}

// credentialFor loads the caller's verifier credential, if any. Operations
// that accept an optional credential treat absence as nil.
func (s *Server) credentialFor(ctx context.Context, userID string) *verifier.Credential {
	cred, err := s.verifierService.Get(ctx, userID)
	if err != nil {
		return nil
	}
	return &cred
}

func (s *Server) handleRegister(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	var req identity.RegisterRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	user, err := s.identityService.Register(r.Context(), req)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, userResponse{
		ID:       user.ID,
		Email:    user.Email,
		FullName: user.FullName,
		Role:     string(user.Role),
	})
}

func (s *Server) handleLogin(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	var req identity.LoginRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	result, err := s.identityService.Login(r.Context(), req)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, loginResponse{
		Token: result.Token,
		User: userResponse{
			ID:       result.User.ID,
			Email:    result.User.Email,
			FullName: result.User.FullName,
			Role:     string(result.User.Role),
		},
	})
}

func (s *Server) handleMe(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	user, err := s.identityService.GetUserByID(r.Context(), callerID(r))
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, userResponse{
		ID:       user.ID,
		Email:    user.Email,
		FullName: user.FullName,
		Role:     string(user.Role),
	})
}

func (s *Server) handleStores(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	var req struct {
		Name     string `json:"name"`
		Location string `json:"location"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	st, err := s.storeService.Initialize(r.Context(), callerID(r), store.InitializeParams{
		Name:     req.Name,
		Location: req.Location,
	})
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, toStoreResponse(st))
}

func (s *Server) handleStoreDetail(w http.ResponseWriter, r *http.Request) {
	id, sub, ok := splitDetail(r.URL.Path, "/api/stores/")
	if !ok {
		writeError(w, http.StatusBadRequest, "store id required")
		return
	}

	switch {
	case sub == "" && r.Method == http.MethodPatch:
		var req struct {
			Active *bool `json:"active"`
		}
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.Active == nil {
			writeError(w, http.StatusBadRequest, "active flag required")
			return
		}
		st, err := s.storeService.SetActive(r.Context(), callerID(r), id, *req.Active)
		if err != nil {
			writeServiceError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, toStoreResponse(st))

	case sub == "products" && r.Method == http.MethodPost:
		var req struct {
			Name        string `json:"name"`
			Description string `json:"description"`
			Price       int64  `json:"price"`
			Quantity    int64  `json:"quantity"`
		}
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeError(w, http.StatusBadRequest, "invalid request body")
			return
		}
		p, err := s.storeService.AddProduct(r.Context(), callerID(r), store.AddProductParams{
			StoreID:     id,
			Name:        req.Name,
			Description: req.Description,
			Price:       req.Price,
			Quantity:    req.Quantity,
		})
		if err != nil {
			writeServiceError(w, err)
			return
		}
		writeJSON(w, http.StatusCreated, toProductResponse(p))

	default:
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
	}
}

func (s *Server) handleProductDetail(w http.ResponseWriter, r *http.Request) {
	id, sub, ok := splitDetail(r.URL.Path, "/api/products/")
	if !ok || sub != "" {
		writeError(w, http.StatusBadRequest, "product id required")
		return
	}
	if r.Method != http.MethodPatch {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	var req struct {
		Price    *int64 `json:"price"`
		Quantity *int64 `json:"quantity"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	p, err := s.storeService.UpdateProduct(r.Context(), callerID(r), store.UpdateProductParams{
		ProductID: id,
		Price:     req.Price,
		Quantity:  req.Quantity,
	})
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toProductResponse(p))
}

func (s *Server) handleSuppliers(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	var req struct {
		Name          string `json:"name"`
		Certification string `json:"certification"`
		Description   string `json:"description"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	sup, err := s.supplierService.Register(r.Context(), callerID(r), supplier.RegisterParams{
		Name:          req.Name,
		Certification: req.Certification,
		Description:   req.Description,
	})
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, toSupplierResponse(sup))
}

func (s *Server) handleSupplierDetail(w http.ResponseWriter, r *http.Request) {
	id, sub, ok := splitDetail(r.URL.Path, "/api/suppliers/")
	if !ok {
		writeError(w, http.StatusBadRequest, "supplier id required")
		return
	}
	caller := callerID(r)

	switch {
	case sub == "" && r.Method == http.MethodPatch:
		var req struct {
			Certification *string `json:"certification"`
			Description   *string `json:"description"`
		}
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeError(w, http.StatusBadRequest, "invalid request body")
			return
		}
		sup, err := s.supplierService.Update(r.Context(), caller, id, supplier.UpdateParams{
			Certification: req.Certification,
			Description:   req.Description,
		})
		if err != nil {
			writeServiceError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, toSupplierResponse(sup))

	case sub == "verify" && r.Method == http.MethodPost:
		sup, err := s.supplierService.Verify(r.Context(), caller, s.credentialFor(r.Context(), caller), id)
		if err != nil {
			writeServiceError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, toSupplierResponse(sup))

	case sub == "rating" && r.Method == http.MethodPost:
		var req struct {
			AgreementID string `json:"agreementId"`
			Rating      int16  `json:"rating"`
		}
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeError(w, http.StatusBadRequest, "invalid request body")
			return
		}
		sup, err := s.supplierService.Rate(r.Context(), caller, supplier.RateParams{
			SupplierID:  id,
			AgreementID: req.AgreementID,
			Rating:      req.Rating,
		})
		if err != nil {
			writeServiceError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, toSupplierResponse(sup))

	case sub == "products" && r.Method == http.MethodPost:
		var req struct {
			Name              string `json:"name"`
			Description       string `json:"description"`
			Price             int64  `json:"price"`
			AvailableQuantity int64  `json:"availableQuantity"`
		}
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeError(w, http.StatusBadRequest, "invalid request body")
			return
		}
		p, err := s.supplierService.AddCatalogProduct(r.Context(), caller, supplier.CatalogProductParams{
			Name:              req.Name,
			Description:       req.Description,
			Price:             req.Price,
			AvailableQuantity: req.AvailableQuantity,
		})
		if err != nil {
			writeServiceError(w, err)
			return
		}
		writeJSON(w, http.StatusCreated, catalogProductResponse{
			ID:                p.ID,
			SupplierID:        p.SupplierID,
			Name:              p.Name,
			Description:       p.Description,
			Price:             p.Price,
			AvailableQuantity: p.AvailableQuantity,
			CreatedAt:         p.CreatedAt.Format(time.RFC3339),
		})

	default:
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
	}
}

func (s *Server) handleVerifiers(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	var req struct {
		Level        int16  `json:"level"`
		Organization string `json:"organization"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	cred, err := s.verifierService.Register(r.Context(), callerID(r), verifier.RegisterParams{
		Level:        req.Level,
		Organization: req.Organization,
	})
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, credentialResponse{
		ID:           cred.ID,
		HolderID:     cred.HolderID,
		IsVerifier:   cred.IsVerifier,
		Level:        cred.Level,
		Organization: cred.Organization,
		CreatedAt:    cred.CreatedAt.Format(time.RFC3339),
	})
}

func (s *Server) handleAgreements(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	var req struct {
		SupplierID    string    `json:"supplierId"`
		StoreID       string    `json:"storeId"`
		Terms         string    `json:"terms"`
		Deadline      time.Time `json:"deadline"`
		PaymentAmount int64     `json:"paymentAmount"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	rec, err := s.agreementService.Create(r.Context(), callerID(r), agreement.CreateParams{
		SupplierID:    req.SupplierID,
		StoreID:       req.StoreID,
		Terms:         req.Terms,
		Deadline:      req.Deadline,
		PaymentAmount: req.PaymentAmount,
	})
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, toAgreementResponse(rec))
}

func (s *Server) handleAgreementDetail(w http.ResponseWriter, r *http.Request) {
	id, sub, ok := splitDetail(r.URL.Path, "/api/agreements/")
	if !ok {
		writeError(w, http.StatusBadRequest, "agreement id required")
		return
	}
	if r.Method != http.MethodPost {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	caller := callerID(r)

	switch sub {
	case "accept":
		rec, err := s.agreementService.Accept(r.Context(), caller, id)
		if err != nil {
			writeServiceError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, toAgreementResponse(rec))

	case "products":
		var req struct {
			ProductIDs []string `json:"productIds"`
		}
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeError(w, http.StatusBadRequest, "invalid request body")
			return
		}
		products, err := s.agreementService.AddProducts(r.Context(), caller, id, req.ProductIDs)
		if err != nil {
			writeServiceError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, struct {
			ProductIDs []string `json:"productIds"`
		}{ProductIDs: products})

	case "complete":
		rec, err := s.agreementService.Complete(r.Context(), caller, id)
		if err != nil {
			writeServiceError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, toAgreementResponse(rec))

	case "cancel":
		rec, err := s.agreementService.Cancel(r.Context(), caller, id)
		if err != nil {
			writeServiceError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, toAgreementResponse(rec))

	default:
		writeError(w, http.StatusNotFound, "unknown agreement action")
	}
}

func (s *Server) handleDisputes(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	var req struct {
		AgreementID string `json:"agreementId"`
		Reason      string `json:"reason"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	rec, err := s.disputeService.Open(r.Context(), callerID(r), req.AgreementID, req.Reason)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, toDisputeResponse(rec))
}

func (s *Server) handleDisputeDetail(w http.ResponseWriter, r *http.Request) {
	id, sub, ok := splitDetail(r.URL.Path, "/api/disputes/")
	if !ok || sub != "resolve" {
		writeError(w, http.StatusBadRequest, "dispute id and action required")
		return
	}
	if r.Method != http.MethodPost {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	var req struct {
		Outcome uint8  `json:"outcome"`
		Notes   string `json:"notes"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	caller := callerID(r)
	rec, err := s.disputeService.Resolve(r.Context(), caller, s.credentialFor(r.Context(), caller), id, dispute.Outcome(req.Outcome), req.Notes)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toDisputeResponse(rec))
}

func (s *Server) handleShipments(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	var req struct {
		StoreID     string    `json:"storeId"`
		AgreementID *string   `json:"agreementId"`
		TrackingID  string    `json:"trackingId"`
		Origin      string    `json:"origin"`
		Destination string    `json:"destination"`
		ETA         time.Time `json:"eta"`
		ProductIDs  []string  `json:"productIds"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	sh, err := s.shipmentService.Create(r.Context(), callerID(r), shipment.CreateParams{
		StoreID:     req.StoreID,
		AgreementID: req.AgreementID,
		TrackingID:  req.TrackingID,
		Origin:      req.Origin,
		Destination: req.Destination,
		ETA:         req.ETA,
		ProductIDs:  req.ProductIDs,
	})
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, toShipmentResponse(sh))
}

func (s *Server) handleShipmentDetail(w http.ResponseWriter, r *http.Request) {
	id, sub, ok := splitDetail(r.URL.Path, "/api/shipments/")
	if !ok {
		writeError(w, http.StatusBadRequest, "shipment id required")
		return
	}
	if r.Method != http.MethodPost {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	caller := callerID(r)

	switch sub {
	case "status":
		var req struct {
			Status string `json:"status"`
		}
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeError(w, http.StatusBadRequest, "invalid request body")
			return
		}
		sh, err := s.shipmentService.UpdateStatus(r.Context(), caller, s.credentialFor(r.Context(), caller), id, shipment.Status(req.Status))
		if err != nil {
			writeServiceError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, toShipmentResponse(sh))

	case "verify":
		sh, err := s.shipmentService.VerifyDelivery(r.Context(), caller, id)
		if err != nil {
			writeServiceError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, toShipmentResponse(sh))

	case "exceptions":
		var req struct {
			Description string `json:"description"`
		}
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeError(w, http.StatusBadRequest, "invalid request body")
			return
		}
		sh, err := s.shipmentService.AddException(r.Context(), caller, s.credentialFor(r.Context(), caller), id, req.Description)
		if err != nil {
			writeServiceError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, toShipmentResponse(sh))

	case "locations":
		var req struct {
			Latitude  float64 `json:"latitude"`
			Longitude float64 `json:"longitude"`
			Name      string  `json:"name"`
		}
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeError(w, http.StatusBadRequest, "invalid request body")
			return
		}
		ping, err := s.shipmentService.RecordLocation(r.Context(), caller, s.credentialFor(r.Context(), caller), id, shipment.LocationParams{
			Latitude:  req.Latitude,
			Longitude: req.Longitude,
			Name:      req.Name,
		})
		if err != nil {
			writeServiceError(w, err)
			return
		}
		writeJSON(w, http.StatusCreated, locationResponse{
			ShipmentID: ping.ShipmentID,
			Latitude:   ping.Latitude,
			Longitude:  ping.Longitude,
			Name:       ping.Name,
			RecordedBy: ping.RecordedBy,
			RecordedAt: ping.RecordedAt.Format(time.RFC3339),
		})

	default:
		writeError(w, http.StatusNotFound, "unknown shipment action")
	}
}

func (s *Server) handleReadings(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	var req struct {
		ShipmentID string `json:"shipmentId"`
		DataType   string `json:"dataType"`
		Value      string `json:"value"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	rec, err := s.iotService.AddReading(r.Context(), callerID(r), iot.AddReadingParams{
		ShipmentID: req.ShipmentID,
		DataType:   iot.DataType(req.DataType),
		Value:      req.Value,
	})
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, toReadingResponse(rec))
}

func (s *Server) handleReadingDetail(w http.ResponseWriter, r *http.Request) {
	id, sub, ok := splitDetail(r.URL.Path, "/api/readings/")
	if !ok || sub != "verify" {
		writeError(w, http.StatusBadRequest, "reading id and action required")
		return
	}
	if r.Method != http.MethodPost {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	caller := callerID(r)
	rec, err := s.iotService.VerifyReading(r.Context(), caller, s.credentialFor(r.Context(), caller), id)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toReadingResponse(rec))
}

func (s *Server) handleEvents(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	var req struct {
		EventType       string    `json:"eventType"`
		RelatedEntityID string    `json:"relatedEntityId"`
		Location        string    `json:"location"`
		OccurredAt      time.Time `json:"occurredAt"`
		Metadata        string    `json:"metadata"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	rec, err := s.eventService.Record(r.Context(), callerID(r), event.RecordParams{
		Type:            event.Type(req.EventType),
		RelatedEntityID: req.RelatedEntityID,
		Location:        req.Location,
		OccurredAt:      req.OccurredAt,
		Metadata:        req.Metadata,
	})
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, eventResponse{
		ID:              rec.ID,
		EventType:       string(rec.Type),
		RecorderID:      rec.RecorderID,
		RelatedEntityID: rec.RelatedEntityID,
		Location:        rec.Location,
		OccurredAt:      rec.OccurredAt.Format(time.RFC3339),
		CreatedAt:       rec.CreatedAt.Format(time.RFC3339),
	})
}

// splitDetail extracts "{id}" or "{id}/{action}" from a prefixed path.
func splitDetail(path, prefix string) (id, action string, ok bool) {
	rest := strings.TrimPrefix(path, prefix)
	if rest == "" || rest == path {
		return "", "", false
	}
	parts := strings.SplitN(strings.TrimSuffix(rest, "/"), "/", 2)
	if parts[0] == "" {
		return "", "", false
	}
	if len(parts) == 2 {
		return parts[0], parts[1], true
	}
	return parts[0], "", true
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}

// writeServiceError maps sentinel errors to HTTP status codes.
func writeServiceError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, identity.ErrInvalidCredentials):
		writeError(w, http.StatusUnauthorized, err.Error())
	case isNotFound(err):
		writeError(w, http.StatusNotFound, err.Error())
	case isForbidden(err):
		writeError(w, http.StatusForbidden, err.Error())
	case isConflict(err):
		writeError(w, http.StatusConflict, err.Error())
	case isBadRequest(err):
		writeError(w, http.StatusBadRequest, err.Error())
	default:
		writeError(w, http.StatusInternalServerError, "internal error")
	}
}

func isNotFound(err error) bool {
	for _, target := range []error{
		store.ErrNotFound, supplier.ErrNotFound, verifier.ErrNotFound,
		agreement.ErrNotFound, dispute.ErrNotFound, shipment.ErrNotFound,
		iot.ErrNotFound, identity.ErrUserNotFound,
	} {
		if errors.Is(err, target) {
			return true
		}
	}
	return false
}

func isForbidden(err error) bool {
	for _, target := range []error{
		store.ErrUnauthorized, supplier.ErrUnauthorized, supplier.ErrUnauthorizedVerifier,
		agreement.ErrUnauthorized, dispute.ErrUnauthorized, dispute.ErrUnauthorizedVerifier,
		shipment.ErrUnauthorized, iot.ErrUnauthorizedVerifier,
	} {
		if errors.Is(err, target) {
			return true
		}
	}
	return false
}

func isConflict(err error) bool {
	for _, target := range []error{
		supplier.ErrDuplicate, identity.ErrDuplicateEmail, dispute.ErrPending,
		dispute.ErrAlreadyResolved, agreement.ErrAlreadyAccepted, agreement.ErrAlreadyCompleted,
		agreement.ErrCanceled, agreement.ErrInDispute, agreement.ErrInvalidStatus,
		shipment.ErrInvalidTransition, shipment.ErrAlreadyVerified, shipment.ErrNotDelivered,
		shipment.ErrNotMoving, dispute.ErrAgreementNotActive, store.ErrInactive,
	} {
		if errors.Is(err, target) {
			return true
		}
	}
	return false
}

func isBadRequest(err error) bool {
	for _, target := range []error{
		store.ErrInvalidPrice, store.ErrInvalidQuantity, store.ErrCounterOverflow,
		supplier.ErrInvalidRating, supplier.ErrVerificationRequired, supplier.ErrCounterOverflow,
		agreement.ErrInvalidTerms, agreement.ErrInvalidDeadline, agreement.ErrInvalidPaymentAmount,
		dispute.ErrInvalidReason, dispute.ErrInvalidOutcome,
		shipment.ErrInvalidTracking, shipment.ErrInvalidETA, shipment.ErrVerificationRequired,
		shipment.ErrAgreementMismatch, shipment.ErrInvalidLocation,
		iot.ErrInvalidDataType, iot.ErrInvalidValue,
		event.ErrInvalidType, event.ErrMissingEntity,
		identity.ErrWeakPassword,
	} {
		if errors.Is(err, target) {
			return true
		}
	}
	return false
}

type userResponse struct {
	ID       string `json:"id"`
	Email    string `json:"email"`
	FullName string `json:"fullName"`
	Role     string `json:"role"`
}

type loginResponse struct {
	Token string       `json:"token"`
	User  userResponse `json:"user"`
}

type storeResponse struct {
	ID            string `json:"id"`
	OwnerID       string `json:"ownerId"`
	Name          string `json:"name"`
	Location      string `json:"location"`
	TotalProducts int64  `json:"totalProducts"`
	IsActive      bool   `json:"isActive"`
	CreatedAt     string `json:"createdAt"`
}

func toStoreResponse(st store.Store) storeResponse {
	return storeResponse{
		ID:            st.ID,
		OwnerID:       st.OwnerID,
		Name:          st.Name,
		Location:      st.Location,
		TotalProducts: st.TotalProducts,
		IsActive:      st.IsActive,
		CreatedAt:     st.CreatedAt.Format(time.RFC3339),
	}
}

type productResponse struct {
	ID          string `json:"id"`
	StoreID     string `json:"storeId"`
	Name        string `json:"name"`
	Description string `json:"description"`
	Price       int64  `json:"price"`
	Quantity    int64  `json:"quantity"`
	CreatedAt   string `json:"createdAt"`
}

func toProductResponse(p store.Product) productResponse {
	return productResponse{
		ID:          p.ID,
		StoreID:     p.StoreID,
		Name:        p.Name,
		Description: p.Description,
		Price:       p.Price,
		Quantity:    p.Quantity,
		CreatedAt:   p.CreatedAt.Format(time.RFC3339),
	}
}

type supplierResponse struct {
	ID               string `json:"id"`
	Name             string `json:"name"`
	Certification    string `json:"certification"`
	Description      string `json:"description"`
	ProductsSupplied int64  `json:"productsSupplied"`
	IsVerified       bool   `json:"isVerified"`
	Rating           int16  `json:"rating"`
	CreatedAt        string `json:"createdAt"`
}

func toSupplierResponse(sup supplier.Supplier) supplierResponse {
	return supplierResponse{
		ID:               sup.ID,
		Name:             sup.Name,
		Certification:    sup.Certification,
		Description:      sup.Description,
		ProductsSupplied: sup.ProductsSupplied,
		IsVerified:       sup.IsVerified,
		Rating:           sup.Rating,
		CreatedAt:        sup.CreatedAt.Format(time.RFC3339),
	}
}

type catalogProductResponse struct {
	ID                string `json:"id"`
	SupplierID        string `json:"supplierId"`
	Name              string `json:"name"`
	Description       string `json:"description"`
	Price             int64  `json:"price"`
	AvailableQuantity int64  `json:"availableQuantity"`
	CreatedAt         string `json:"createdAt"`
}

type credentialResponse struct {
	ID           string `json:"id"`
	HolderID     string `json:"holderId"`
	IsVerifier   bool   `json:"isVerifier"`
	Level        int16  `json:"level"`
	Organization string `json:"organization"`
	CreatedAt    string `json:"createdAt"`
}

type agreementResponse struct {
	ID            string   `json:"id"`
	SupplierID    string   `json:"supplierId"`
	StoreID       string   `json:"storeId"`
	Terms         string   `json:"terms"`
	Deadline      string   `json:"deadline"`
	PaymentAmount int64    `json:"paymentAmount"`
	Status        string   `json:"status"`
	ProductIDs    []string `json:"productIds"`
	CreatedAt     string   `json:"createdAt"`
}

func toAgreementResponse(rec agreement.Record) agreementResponse {
	return agreementResponse{
		ID:            rec.ID,
		SupplierID:    rec.SupplierID,
		StoreID:       rec.StoreID,
		Terms:         rec.Terms,
		Deadline:      rec.Deadline.Format(time.RFC3339),
		PaymentAmount: rec.PaymentAmount,
		Status:        string(rec.Status),
		ProductIDs:    rec.Products,
		CreatedAt:     rec.CreatedAt.Format(time.RFC3339),
	}
}

type disputeResponse struct {
	ID              string `json:"id"`
	AgreementID     string `json:"agreementId"`
	RaisedBy        string `json:"raisedBy"`
	Reason          string `json:"reason"`
	Resolved        bool   `json:"resolved"`
	ResolvedBy      string `json:"resolvedBy,omitempty"`
	ResolutionNotes string `json:"resolutionNotes,omitempty"`
	CreatedAt       string `json:"createdAt"`
}

func toDisputeResponse(rec dispute.Record) disputeResponse {
	resp := disputeResponse{
		ID:          rec.ID,
		AgreementID: rec.AgreementID,
		RaisedBy:    rec.RaisedBy,
		Reason:      rec.Reason,
		Resolved:    rec.Resolved,
		CreatedAt:   rec.CreatedAt.Format(time.RFC3339),
	}
	if rec.ResolvedBy != nil {
		resp.ResolvedBy = *rec.ResolvedBy
	}
	if rec.ResolutionNotes != nil {
		resp.ResolutionNotes = *rec.ResolutionNotes
	}
	return resp
}

type shipmentResponse struct {
	ID          string   `json:"id"`
	SupplierID  string   `json:"supplierId"`
	StoreID     string   `json:"storeId"`
	AgreementID string   `json:"agreementId,omitempty"`
	TrackingID  string   `json:"trackingId"`
	Origin      string   `json:"origin"`
	Destination string   `json:"destination"`
	Status      string   `json:"status"`
	ETA         string   `json:"eta"`
	DeliveredAt string   `json:"deliveredAt,omitempty"`
	VerifiedAt  string   `json:"verifiedAt,omitempty"`
	ProductIDs  []string `json:"productIds"`
	CreatedAt   string   `json:"createdAt"`
}

func toShipmentResponse(sh shipment.Shipment) shipmentResponse {
	resp := shipmentResponse{
		ID:          sh.ID,
		SupplierID:  sh.SupplierID,
		StoreID:     sh.StoreID,
		TrackingID:  sh.TrackingID,
		Origin:      sh.Origin,
		Destination: sh.Destination,
		Status:      string(sh.Status),
		ETA:         sh.ETA.Format(time.RFC3339),
		ProductIDs:  sh.Products,
		CreatedAt:   sh.CreatedAt.Format(time.RFC3339),
	}
	if sh.AgreementID != nil {
		resp.AgreementID = *sh.AgreementID
	}
	if sh.DeliveredAt != nil {
		resp.DeliveredAt = sh.DeliveredAt.Format(time.RFC3339)
	}
	if sh.VerifiedAt != nil {
		resp.VerifiedAt = sh.VerifiedAt.Format(time.RFC3339)
	}
	return resp
}

type locationResponse struct {
	ShipmentID string  `json:"shipmentId"`
	Latitude   float64 `json:"latitude"`
	Longitude  float64 `json:"longitude"`
	Name       string  `json:"name"`
	RecordedBy string  `json:"recordedBy"`
	RecordedAt string  `json:"recordedAt"`
}

type readingResponse struct {
	ID         string `json:"id"`
	ShipmentID string `json:"shipmentId"`
	DataType   string `json:"dataType"`
	Value      string `json:"value"`
	RecordedBy string `json:"recordedBy"`
	RecordedAt string `json:"recordedAt"`
	Verified   bool   `json:"verified"`
	VerifiedBy string `json:"verifiedBy,omitempty"`
}

func toReadingResponse(rec iot.Reading) readingResponse {
	resp := readingResponse{
		ID:         rec.ID,
		ShipmentID: rec.ShipmentID,
		DataType:   string(rec.DataType),
		Value:      rec.Value,
		RecordedBy: rec.RecordedBy,
		RecordedAt: rec.RecordedAt.Format(time.RFC3339),
		Verified:   rec.Verified,
	}
	if rec.VerifiedBy != nil {
		resp.VerifiedBy = *rec.VerifiedBy
	}
	return resp
}

type eventResponse struct {
	ID              string `json:"id"`
	EventType       string `json:"eventType"`
	RecorderID      string `json:"recorderId"`
	RelatedEntityID string `json:"relatedEntityId"`
	Location        string `json:"location"`
	OccurredAt      string `json:"occurredAt"`
	CreatedAt       string `json:"createdAt"`
}
