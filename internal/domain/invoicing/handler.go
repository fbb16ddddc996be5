package invoicing

import (
	"errors"
	"net/http"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"

	"github.com/carehub/carehub/internal/domain/booking"
	"github.com/carehub/carehub/internal/platform/db"
	"github.com/carehub/carehub/pkg/pagination"
)

type Handler struct {
	svc *Service
}

func NewHandler(svc *Service) *Handler {
	return &Handler{svc: svc}
}

func (h *Handler) RegisterRoutes(api *echo.Group) {
	g := api.Group("/invoices")
	g.POST("/preview", h.Preview)
	g.POST("", h.Create)
	g.GET("", h.List)
	g.GET("/:id", h.Get)
	g.POST("/:id/pay", h.MarkPaid)
}

func httpError(err error) error {
	var ve *ValidationError
	switch {
	case errors.As(err, &ve):
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	case errors.Is(err, ErrAlreadyInvoiced), errors.Is(err, db.ErrSerialization):
		return echo.NewHTTPError(http.StatusConflict, err.Error())
	case errors.Is(err, booking.ErrNotFound):
		return echo.NewHTTPError(http.StatusNotFound, err.Error())
	case errors.Is(err, ErrNotFound):
		return echo.NewHTTPError(http.StatusNotFound, "invoice not found")
	default:
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
}

func (h *Handler) Preview(c echo.Context) error {
	var req Request
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	p, err := h.svc.Preview(c.Request().Context(), req)
	if err != nil {
		return httpError(err)
	}
	return c.JSON(http.StatusOK, p)
}

func (h *Handler) Create(c echo.Context) error {
	var req Request
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	inv, err := h.svc.Create(c.Request().Context(), req)
	if err != nil {
		return httpError(err)
	}
	return c.JSON(http.StatusCreated, inv.ToResponse())
}

func (h *Handler) Get(c echo.Context) error {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid id")
	}
	inv, err := h.svc.Get(c.Request().Context(), id)
	if err != nil {
		return httpError(err)
	}
	return c.JSON(http.StatusOK, inv.ToResponse())
}

type payRequest struct {
	PaidDate string `json:"paid_date"`
}

func (h *Handler) MarkPaid(c echo.Context) error {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid id")
	}
	var req payRequest
	if c.Request().ContentLength != 0 {
		if err := c.Bind(&req); err != nil {
			return echo.NewHTTPError(http.StatusBadRequest, err.Error())
		}
	}
	inv, err := h.svc.MarkPaid(c.Request().Context(), id, req.PaidDate)
	if err != nil {
		return httpError(err)
	}
	return c.JSON(http.StatusOK, inv.ToResponse())
}

func (h *Handler) List(c echo.Context) error {
	pg := pagination.FromContext(c)
	var f Filter
	for _, p := range []struct {
		name string
		dst  **uuid.UUID
	}{{"patient_id", &f.PatientID}, {"practitioner_id", &f.PractitionerID}} {
		if v := c.QueryParam(p.name); v != "" {
			id, err := uuid.Parse(v)
			if err != nil {
				return echo.NewHTTPError(http.StatusBadRequest, "invalid "+p.name)
			}
			*p.dst = &id
		}
	}
	if v := c.QueryParam("state"); v != "" {
		st := State(v)
		if !st.Valid() {
			return echo.NewHTTPError(http.StatusBadRequest, "invalid state")
		}
		f.State = &st
	}

	items, total, err := h.svc.Search(c.Request().Context(), f, pg.Limit, pg.Offset)
	if err != nil {
		return httpError(err)
	}
	out := make([]Response, 0, len(items))
	for _, inv := range items {
		out = append(out, inv.ToResponse())
	}
	return c.JSON(http.StatusOK, pagination.NewResponse(out, total, pg.Limit, pg.Offset))
}
