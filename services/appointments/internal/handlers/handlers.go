package handlers

import (
	"encoding/json"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/diagnosis/solaris-scheduler/internal/http/middleware"
	"github.com/diagnosis/solaris-scheduler/internal/http/response"
	"github.com/diagnosis/solaris-scheduler/pkg/appointment"
	"github.com/diagnosis/solaris-scheduler/pkg/logger"
	"github.com/diagnosis/solaris-scheduler/pkg/schedule"
	"github.com/diagnosis/solaris-scheduler/services/appointments/internal/service"
)

type Handlers struct {
	appointments service.AppointmentService
}

func New(appointments service.AppointmentService) *Handlers {
	return &Handlers{appointments: appointments}
}

// Routes mounts the appointment API on r. Callers put authentication in front.
func (h *Handlers) Routes(r chi.Router) {
	r.Get("/", h.ListAppointments)
	r.Post("/", h.CreateAppointment)
	r.Get("/user/{userId}", h.ListUserAppointments)
	r.Get("/{id}", h.GetAppointment)
	r.Put("/{id}", h.UpdateAppointment)
	r.Delete("/{id}", h.DeleteAppointment)
}

// ListAppointments handles GET /api/appointments?startDate=&endDate=[&userId=]
func (h *Handlers) ListAppointments(w http.ResponseWriter, r *http.Request) {
	var q appointment.RangeQuery
	var ok bool
	if q.StartDate, ok = queryTime(w, r, "startDate"); !ok {
		return
	}
	if q.EndDate, ok = queryTime(w, r, "endDate"); !ok {
		return
	}
	if v := r.URL.Query().Get("userId"); v != "" {
		id, err := strconv.ParseInt(v, 10, 64)
		if err != nil || id <= 0 {
			response.BadRequest(w, "Invalid userId")
			return
		}
		q.UserID = id
	}

	out, err := h.appointments.ListRange(r.Context(), middleware.Claims(r), q)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	response.WriteJSON(w, http.StatusOK, out)
}

func (h *Handlers) CreateAppointment(w http.ResponseWriter, r *http.Request) {
	var req appointment.BookingRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		response.BadRequest(w, "Invalid JSON format")
		return
	}
	req.IdempotencyKey = r.Header.Get("Idempotency-Key")

	a, err := h.appointments.Create(r.Context(), middleware.Claims(r), req)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	response.WriteJSON(w, http.StatusCreated, a)
}

func (h *Handlers) GetAppointment(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r, "id")
	if !ok {
		return
	}
	a, err := h.appointments.Get(r.Context(), middleware.Claims(r), id)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	response.WriteJSON(w, http.StatusOK, a)
}

func (h *Handlers) ListUserAppointments(w http.ResponseWriter, r *http.Request) {
	userID, ok := pathID(w, r, "userId")
	if !ok {
		return
	}
	out, err := h.appointments.ListByUser(r.Context(), middleware.Claims(r), userID)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	response.WriteJSON(w, http.StatusOK, out)
}

func (h *Handlers) UpdateAppointment(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r, "id")
	if !ok {
		return
	}
	var req appointment.BookingRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		response.BadRequest(w, "Invalid JSON format")
		return
	}
	a, err := h.appointments.Update(r.Context(), middleware.Claims(r), id, req)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	response.WriteJSON(w, http.StatusOK, a)
}

func (h *Handlers) DeleteAppointment(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r, "id")
	if !ok {
		return
	}
	if err := h.appointments.Delete(r.Context(), middleware.Claims(r), id); err != nil {
		h.fail(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// fail logs what the client will not see and writes the mapped error.
func (h *Handlers) fail(w http.ResponseWriter, r *http.Request, err error) {
	logger.WarnContext(r.Context(), "Appointment request failed", "error", err, "path", r.URL.Path)
	response.FromError(w, err)
}

func pathID(w http.ResponseWriter, r *http.Request, name string) (int64, bool) {
	id, err := strconv.ParseInt(chi.URLParam(r, name), 10, 64)
	if err != nil || id <= 0 {
		response.BadRequest(w, "Invalid "+name)
		return 0, false
	}
	return id, true
}

// queryTime accepts a wall-clock timestamp or a bare date. Missing values stay
// zero and leave that side of the range open.
func queryTime(w http.ResponseWriter, r *http.Request, name string) (schedule.LocalTime, bool) {
	v := r.URL.Query().Get(name)
	if v == "" {
		return schedule.LocalTime{}, true
	}
	if t, err := schedule.ParseLocalTime(v); err == nil {
		return t, true
	}
	if d, err := schedule.ParseDate(v); err == nil {
		if name == "endDate" {
			return d.EndOfDay(), true
		}
		return d.StartOfDay(), true
	}
	response.BadRequest(w, "Invalid "+name+", expected "+schedule.LocalLayout)
	return schedule.LocalTime{}, false
}
