package http

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"
	"github.com/robertarktes/event-pass-gate/internal/booking"
	"github.com/robertarktes/event-pass-gate/internal/domain"
	"github.com/robertarktes/event-pass-gate/internal/gate"
	"github.com/robertarktes/event-pass-gate/internal/observability"
	"golang.org/x/sync/errgroup"
)

const (
	defaultLogLimit = 100
	maxLogLimit     = 1000
	readyTimeout    = 2 * time.Second
	// recorded when neither the request nor a token names the operator
	defaultOperator = "Gate"
)

type PassResolver interface {
	Resolve(ctx context.Context, searchValue string) (*gate.ResolvedPass, error)
}

type EntryAdmitter interface {
	Admit(ctx context.Context, req gate.AdmitRequest) (*gate.Admission, error)
}

type BookingService interface {
	Create(ctx context.Context, req booking.CreateRequest) (*domain.Booking, error)
	Get(ctx context.Context, id string) (*domain.Booking, error)
}

type BookingLister interface {
	ListBookings(ctx context.Context) ([]domain.Booking, error)
}

type PassTypeCatalog interface {
	ListPassTypes(ctx context.Context, activeOnly bool) ([]domain.PassType, error)
	CreatePassType(ctx context.Context, p domain.PassType) (domain.PassType, error)
}

type Pinger interface {
	Ping(ctx context.Context) error
}

type Deps struct {
	Resolver  PassResolver
	Admitter  EntryAdmitter
	Bookings  BookingService
	Gate      BookingLister
	EntryLogs gate.EntryLogReader
	PassTypes PassTypeCatalog
	// Checks are pinged by Readyz, keyed by dependency name.
	Checks map[string]Pinger
	Logger observability.Logger
}

type Handlers struct {
	resolver  PassResolver
	admitter  EntryAdmitter
	bookings  BookingService
	gate      BookingLister
	entryLogs gate.EntryLogReader
	passTypes PassTypeCatalog
	checks    map[string]Pinger
	logger    observability.Logger
	validate  *validator.Validate
}

func NewHandlers(d Deps) *Handlers {
	return &Handlers{
		resolver:  d.Resolver,
		admitter:  d.Admitter,
		bookings:  d.Bookings,
		gate:      d.Gate,
		entryLogs: d.EntryLogs,
		passTypes: d.PassTypes,
		checks:    d.Checks,
		logger:    d.Logger,
		validate:  validator.New(validator.WithRequiredStructEnabled()),
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"message": msg})
}

func decodeJSON(r *http.Request, dst any) error {
	r.Body = http.MaxBytesReader(nil, r.Body, 1<<20)
	return json.NewDecoder(r.Body).Decode(dst)
}

// internalError logs err and reports its message to the client.
func (h *Handlers) internalError(w http.ResponseWriter, r *http.Request, err error) {
	observability.FromContext(r.Context(), h.logger).WithError(err).Error("request failed")
	writeError(w, http.StatusInternalServerError, err.Error())
}

type searchRequest struct {
	SearchValue string `json:"search_value" validate:"max=200"`
}

// SearchPass handles POST /v1/entry/search.
func (h *Handlers) SearchPass(w http.ResponseWriter, r *http.Request) {
	var req searchRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body: "+err.Error())
		return
	}
	if err := h.validate.Struct(req); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	pass, err := h.resolver.Resolve(r.Context(), req.SearchValue)
	switch {
	case errors.Is(err, domain.ErrInvalidInput):
		writeError(w, http.StatusBadRequest, "Pass ID or mobile number required")
		return
	case errors.Is(err, domain.ErrNotFound):
		writeError(w, http.StatusNotFound, "Pass not found for this Pass ID or mobile number")
		return
	case err != nil:
		h.internalError(w, r, err)
		return
	}

	all := make([]bookingSummary, 0, len(pass.Bookings))
	for _, b := range pass.Bookings {
		all = append(all, newBookingSummary(b))
	}
	writeJSON(w, http.StatusOK, searchResponse{
		Message:     "Pass found",
		Booking:     newPrimaryView(pass),
		AllBookings: all,
	})
}

type checkinRequest struct {
	BookingID     string `json:"booking_id" validate:"required"`
	PeopleEntered int    `json:"people_entered" validate:"gte=0"`
	ScannedBy     string `json:"scanned_by" validate:"max=100"`
	AdminOverride bool   `json:"admin_override"`
	AdminPIN      string `json:"admin_pin" validate:"max=64"`
}

// MarkEntry handles POST /v1/entry/checkin.
func (h *Handlers) MarkEntry(w http.ResponseWriter, r *http.Request) {
	var req checkinRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body: "+err.Error())
		return
	}
	if err := h.validate.Struct(req); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	count := req.PeopleEntered
	if count == 0 {
		count = 1
	}
	operator := req.ScannedBy
	if operator == "" {
		if claims, ok := ClaimsFromContext(r.Context()); ok {
			operator = claims.Name
		}
	}
	if operator == "" {
		operator = defaultOperator
	}

	adm, err := h.admitter.Admit(r.Context(), gate.AdmitRequest{
		BookingID:     req.BookingID,
		Count:         count,
		Operator:      operator,
		AdminOverride: req.AdminOverride,
		AdminPIN:      req.AdminPIN,
	})
	if err != nil {
		h.admitError(w, r, err)
		return
	}

	observability.FromContext(r.Context(), h.logger).WithFields(map[string]interface{}{
		"booking_id": adm.BookingID,
		"admitted":   adm.Admitted,
		"entered":    adm.Entered,
		"override":   req.AdminOverride,
	}).Info("entry marked")

	writeJSON(w, http.StatusOK, map[string]any{
		"message": "Entry marked successfully",
		"booking": admissionView{
			ID:            adm.BookingID,
			BookingID:     adm.BookingCode,
			BuyerName:     adm.BuyerName,
			PassType:      adm.PassType,
			TotalAllowed:  adm.Allowed,
			TotalEntered:  adm.Entered,
			Remaining:     adm.Remaining,
			ThisEntry:     adm.Admitted,
			Status:        adm.Status,
			FullyUtilized: adm.FullyUtilized,
			EntryLogID:    adm.LogID,
		},
	})
}

func (h *Handlers) admitError(w http.ResponseWriter, r *http.Request, err error) {
	var capErr *domain.CapacityError
	switch {
	case errors.Is(err, domain.ErrInvalidOverride):
		writeError(w, http.StatusForbidden, "Invalid admin PIN")
	case errors.Is(err, domain.ErrBookingNotFound):
		writeError(w, http.StatusNotFound, "Booking not found")
	case errors.As(err, &capErr) && errors.Is(capErr.Reason, domain.ErrFullyUtilized):
		writeJSON(w, http.StatusBadRequest, map[string]any{
			"message":          "Pass fully utilized",
			"alreadyCheckedIn": true,
			"details": map[string]int{
				"total_allowed":   capErr.Allowed,
				"already_entered": capErr.Entered,
				"remaining":       0,
			},
		})
	case errors.As(err, &capErr):
		writeJSON(w, http.StatusBadRequest, map[string]any{
			"message":   fmt.Sprintf("Cannot enter %d people. Only %d remaining.", capErr.Requested, capErr.Remaining),
			"remaining": capErr.Remaining,
		})
	case errors.Is(err, domain.ErrInvalidInput):
		writeError(w, http.StatusBadRequest, err.Error())
	case errors.Is(err, domain.ErrSerializationFailure), errors.Is(err, domain.ErrConflict):
		writeError(w, http.StatusConflict, "Entry conflicted with another scan, please retry")
	default:
		h.internalError(w, r, err)
	}
}

// GetEntryLogs handles GET /v1/entry/logs.
func (h *Handlers) GetEntryLogs(w http.ResponseWriter, r *http.Request) {
	limit := defaultLogLimit
	if raw := r.URL.Query().Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 1 {
			writeError(w, http.StatusBadRequest, "limit must be a positive integer")
			return
		}
		limit = min(n, maxLogLimit)
	}

	logs, err := h.entryLogs.ListEntryLogs(r.Context(), limit)
	if err != nil {
		h.internalError(w, r, err)
		return
	}
	out := make([]entryLogView, 0, len(logs))
	for _, l := range logs {
		out = append(out, newEntryLogView(l))
	}
	writeJSON(w, http.StatusOK, out)
}

// GetGateBookings handles GET /v1/entry/bookings, newest first.
func (h *Handlers) GetGateBookings(w http.ResponseWriter, r *http.Request) {
	bookings, err := h.gate.ListBookings(r.Context())
	if err != nil {
		h.internalError(w, r, err)
		return
	}
	out := make([]gateBookingView, 0, len(bookings))
	for i := len(bookings) - 1; i >= 0; i-- {
		b := bookings[i]
		capacity, entered := domain.Usage(b)
		out = append(out, gateBookingView{
			ID:            b.ID,
			BookingID:     b.Code,
			BuyerName:     b.BuyerName,
			BuyerPhone:    b.BuyerPhone,
			TotalPeople:   capacity,
			PeopleEntered: entered,
			PaymentStatus: b.PaymentStatus,
		})
	}
	writeJSON(w, http.StatusOK, out)
}

type passRequest struct {
	PassTypeID  string `json:"pass_type_id" validate:"required"`
	PeopleCount int    `json:"people_count" validate:"gte=0"`
}

type createBookingRequest struct {
	PassTypeID    string        `json:"pass_type_id" validate:"required_without=Passes"`
	BuyerName     string        `json:"buyer_name" validate:"required,max=200"`
	BuyerPhone    string        `json:"buyer_phone" validate:"omitempty,max=20"`
	TotalPeople   int           `json:"total_people" validate:"gte=0"`
	TotalPasses   int           `json:"total_passes" validate:"gte=0"`
	CustomPrice   int64         `json:"custom_price" validate:"gte=0"`
	IsOwnerPass   bool          `json:"is_owner_pass"`
	MarkAsPaid    bool          `json:"mark_as_paid"`
	PaymentStatus string        `json:"payment_status" validate:"omitempty,oneof=Pending Paid Refunded"`
	PaymentMode   string        `json:"payment_mode" validate:"omitempty,oneof=Cash UPI Card Online"`
	Notes         string        `json:"notes" validate:"max=1000"`
	Passes        []passRequest `json:"passes" validate:"omitempty,dive"`
}

// CreateBooking handles POST /v1/bookings.
func (h *Handlers) CreateBooking(w http.ResponseWriter, r *http.Request) {
	var req createBookingRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body: "+err.Error())
		return
	}
	if err := h.validate.Struct(req); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	passes := make([]booking.PassRequest, 0, len(req.Passes))
	for _, p := range req.Passes {
		passes = append(passes, booking.PassRequest{PassTypeID: p.PassTypeID, PeopleCount: p.PeopleCount})
	}
	b, err := h.bookings.Create(r.Context(), booking.CreateRequest{
		PassTypeID:    req.PassTypeID,
		BuyerName:     req.BuyerName,
		BuyerPhone:    req.BuyerPhone,
		TotalPeople:   req.TotalPeople,
		TotalPasses:   req.TotalPasses,
		CustomPrice:   req.CustomPrice,
		IsOwnerPass:   req.IsOwnerPass,
		MarkAsPaid:    req.MarkAsPaid,
		PaymentStatus: domain.PaymentStatus(req.PaymentStatus),
		PaymentMode:   domain.PaymentMode(req.PaymentMode),
		Notes:         req.Notes,
		Passes:        passes,
	})
	if errors.Is(err, domain.ErrInvalidInput) {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	if err != nil {
		h.internalError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, newBookingView(*b))
}

// GetBooking handles GET /v1/bookings/{id}.
func (h *Handlers) GetBooking(w http.ResponseWriter, r *http.Request) {
	b, err := h.bookings.Get(r.Context(), chi.URLParam(r, "id"))
	if errors.Is(err, domain.ErrBookingNotFound) {
		writeError(w, http.StatusNotFound, "Booking not found")
		return
	}
	if err != nil {
		h.internalError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, newBookingView(*b))
}

// ListPassTypes handles GET /v1/pass-types.
func (h *Handlers) ListPassTypes(w http.ResponseWriter, r *http.Request) {
	types, err := h.passTypes.ListPassTypes(r.Context(), r.URL.Query().Get("all") != "true")
	if err != nil {
		h.internalError(w, r, err)
		return
	}
	out := make([]passTypeView, 0, len(types))
	for _, p := range types {
		out = append(out, passTypeView(p))
	}
	writeJSON(w, http.StatusOK, out)
}

type createPassTypeRequest struct {
	ID            string `json:"_id" validate:"omitempty,max=64"`
	Name          string `json:"name" validate:"required,max=100"`
	Price         int64  `json:"price" validate:"gte=0"`
	MaxPeople     int    `json:"max_people" validate:"required,gte=1,lte=100"`
	ValidForEvent string `json:"valid_for_event" validate:"max=200"`
	Description   string `json:"description" validate:"max=1000"`
	IsActive      *bool  `json:"is_active"`
}

// CreatePassType handles POST /v1/pass-types. New types are active unless
// is_active is false.
func (h *Handlers) CreatePassType(w http.ResponseWriter, r *http.Request) {
	var req createPassTypeRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body: "+err.Error())
		return
	}
	if err := h.validate.Struct(req); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	p, err := h.passTypes.CreatePassType(r.Context(), domain.PassType{
		ID:            req.ID,
		Name:          req.Name,
		Price:         req.Price,
		MaxPeople:     req.MaxPeople,
		ValidForEvent: req.ValidForEvent,
		Description:   req.Description,
		IsActive:      req.IsActive == nil || *req.IsActive,
	})
	if errors.Is(err, domain.ErrConflict) {
		writeError(w, http.StatusConflict, "Pass type already exists")
		return
	}
	if err != nil {
		h.internalError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, passTypeView(p))
}

func (h *Handlers) Healthz(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
	w.Write([]byte("OK"))
}

// Readyz pings every dependency concurrently and fails on the first error.
func (h *Handlers) Readyz(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), readyTimeout)
	defer cancel()

	g, gctx := errgroup.WithContext(ctx)
	for name, check := range h.checks {
		g.Go(func() error {
			if err := check.Ping(gctx); err != nil {
				return errors.Wrapf(err, "%s not ready", name)
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		observability.FromContext(r.Context(), h.logger).WithError(err).Warn("readiness check failed")
		writeJSON(w, http.StatusServiceUnavailable, map[string]string{"status": "unavailable", "error": err.Error()})
		return
	}
	w.WriteHeader(http.StatusOK)
	w.Write([]byte("Ready"))
}
