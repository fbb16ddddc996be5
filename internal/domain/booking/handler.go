package booking

import (
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"

	"github.com/carehub/carehub/internal/domain/tariff"
	"github.com/carehub/carehub/pkg/pagination"
)

type Handler struct {
	svc *Service
}

func NewHandler(svc *Service) *Handler {
	return &Handler{svc: svc}
}

func (h *Handler) RegisterRoutes(api *echo.Group) {
	g := api.Group("/bookings")
	g.POST("", h.Create)
	g.GET("", h.List)
	g.GET("/:id", h.Get)
	g.PUT("/:id", h.Update)
	g.POST("/:id/cancel", h.Cancel)
	g.POST("/:id/complete", h.Complete)
	g.POST("/:id/no-show", h.NoShow)
}

// httpError maps domain errors to status codes.
func httpError(err error) error {
	var (
		ce *ConflictError
		ve *ValidationError
	)
	switch {
	case errors.As(err, &ve):
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	case errors.As(err, &ce), errors.Is(err, ErrConcurrentUpdate):
		return echo.NewHTTPError(http.StatusConflict, err.Error())
	case errors.Is(err, tariff.ErrNotFound):
		return echo.NewHTTPError(http.StatusUnprocessableEntity, err.Error())
	case errors.Is(err, ErrNotFound):
		return echo.NewHTTPError(http.StatusNotFound, "booking not found")
	default:
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
}

func (h *Handler) Create(c echo.Context) error {
	var req Request
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	b, err := h.svc.Create(c.Request().Context(), req)
	if err != nil {
		return httpError(err)
	}
	return c.JSON(http.StatusCreated, b.ToResponse())
}

func (h *Handler) Update(c echo.Context) error {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid id")
	}
	var req Request
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	b, err := h.svc.Update(c.Request().Context(), id, req)
	if err != nil {
		return httpError(err)
	}
	return c.JSON(http.StatusOK, b.ToResponse())
}

func (h *Handler) Get(c echo.Context) error {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid id")
	}
	b, err := h.svc.Get(c.Request().Context(), id)
	if err != nil {
		return httpError(err)
	}
	return c.JSON(http.StatusOK, b.ToResponse())
}

type cancelRequest struct {
	Reason string `json:"reason"`
}

func (h *Handler) Cancel(c echo.Context) error {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid id")
	}
	var req cancelRequest
	if c.Request().ContentLength != 0 {
		if err := c.Bind(&req); err != nil {
			return echo.NewHTTPError(http.StatusBadRequest, err.Error())
		}
	}
	b, err := h.svc.Cancel(c.Request().Context(), id, strings.TrimSpace(req.Reason))
	if err != nil {
		return httpError(err)
	}
	return c.JSON(http.StatusOK, b.ToResponse())
}

func (h *Handler) Complete(c echo.Context) error {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid id")
	}
	b, err := h.svc.Complete(c.Request().Context(), id)
	if err != nil {
		return httpError(err)
	}
	return c.JSON(http.StatusOK, b.ToResponse())
}

func (h *Handler) NoShow(c echo.Context) error {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid id")
	}
	b, err := h.svc.NoShow(c.Request().Context(), id)
	if err != nil {
		return httpError(err)
	}
	return c.JSON(http.StatusOK, b.ToResponse())
}

// List filters by practice_id, practitioner_id (repeatable or comma
// separated), patient_id, status and a [from, to) window on start. from and
// to accept RFC 3339 timestamps or plain dates.
func (h *Handler) List(c echo.Context) error {
	pg := pagination.FromContext(c)
	var f Filter

	for _, p := range []struct {
		name string
		dst  **uuid.UUID
	}{{"practice_id", &f.PracticeID}, {"patient_id", &f.PatientID}} {
		if v := c.QueryParam(p.name); v != "" {
			id, err := uuid.Parse(v)
			if err != nil {
				return echo.NewHTTPError(http.StatusBadRequest, "invalid "+p.name)
			}
			*p.dst = &id
		}
	}
	for _, raw := range c.QueryParams()["practitioner_id"] {
		for _, v := range strings.Split(raw, ",") {
			if v = strings.TrimSpace(v); v == "" {
				continue
			}
			id, err := uuid.Parse(v)
			if err != nil {
				return echo.NewHTTPError(http.StatusBadRequest, "invalid practitioner_id")
			}
			f.PractitionerIDs = append(f.PractitionerIDs, id)
		}
	}
	if v := c.QueryParam("status"); v != "" {
		st := Status(v)
		if !st.Valid() {
			return echo.NewHTTPError(http.StatusBadRequest, "invalid status")
		}
		f.Status = &st
	}
	for _, p := range []struct {
		name string
		dst  **time.Time
	}{{"from", &f.From}, {"to", &f.To}} {
		if v := c.QueryParam(p.name); v != "" {
			t, err := parseTimeParam(v, h.svc.loc)
			if err != nil {
				return echo.NewHTTPError(http.StatusBadRequest, "invalid "+p.name)
			}
			*p.dst = &t
		}
	}

	items, total, err := h.svc.Search(c.Request().Context(), f, pg.Limit, pg.Offset)
	if err != nil {
		return httpError(err)
	}
	out := make([]Response, 0, len(items))
	for _, b := range items {
		out = append(out, b.ToResponse())
	}
	return c.JSON(http.StatusOK, pagination.NewResponse(out, total, pg.Limit, pg.Offset))
}

func parseTimeParam(v string, loc *time.Location) (time.Time, error) {
	if t, err := time.Parse(time.RFC3339, v); err == nil {
		return t, nil
	}
	return time.ParseInLocation("2006-01-02", v, loc)
}
