package tariff

import (
	"bytes"
	"errors"
	"fmt"
	"net/http"
	"strconv"

	"github.com/labstack/echo/v4"
)

type Handler struct {
	svc *Service
}

func NewHandler(svc *Service) *Handler {
	return &Handler{svc: svc}
}

func (h *Handler) RegisterRoutes(api *echo.Group) {
	api.GET("/pathology-categories", h.ListCategories)

	t := api.Group("/tariffs")
	t.GET("", h.ListRows)
	t.GET("/lookup", h.Lookup)
	t.GET("/export", h.Export)
	t.POST("/import", h.Import)
}

func (h *Handler) ListCategories(c echo.Context) error {
	items, err := h.svc.ListCategories(c.Request().Context())
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
	return c.JSON(http.StatusOK, map[string]interface{}{"data": items})
}

func (h *Handler) Lookup(c echo.Context) error {
	year, err := strconv.Atoi(c.QueryParam("year"))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid year")
	}
	session, err := strconv.Atoi(c.QueryParam("session"))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid session")
	}
	place, err := ParsePlace(c.QueryParam("place"))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	ref := c.QueryParam("category_id")
	if ref == "" {
		ref = c.QueryParam("category")
	}
	if ref == "" {
		return echo.NewHTTPError(http.StatusBadRequest, "category_id is required")
	}

	ctx := c.Request().Context()
	cat, err := h.svc.ResolveCategory(ctx, ref)
	if err != nil {
		if errors.Is(err, ErrCategoryNotFound) {
			return echo.NewHTTPError(http.StatusNotFound, "pathology category not found")
		}
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
	row, err := h.svc.Lookup(ctx, year, cat.ID, place, session)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return echo.NewHTTPError(http.StatusUnprocessableEntity, err.Error())
		}
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
	return c.JSON(http.StatusOK, row.ToResponse())
}

func (h *Handler) listParams(c echo.Context) (int, Place, error) {
	year, err := strconv.Atoi(c.QueryParam("year"))
	if err != nil {
		return 0, "", echo.NewHTTPError(http.StatusBadRequest, "invalid year")
	}
	place, err := ParsePlace(c.QueryParam("place"))
	if err != nil {
		return 0, "", echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	return year, place, nil
}

func (h *Handler) ListRows(c echo.Context) error {
	year, place, err := h.listParams(c)
	if err != nil {
		return err
	}
	rows, err := h.svc.ListRows(c.Request().Context(), year, place)
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
	out := make([]RowResponse, 0, len(rows))
	for _, r := range rows {
		out = append(out, r.ToResponse())
	}
	return c.JSON(http.StatusOK, map[string]interface{}{"data": out, "total": len(out)})
}

const xlsxMIME = "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"

// Export downloads the year's rate card in the import format.
func (h *Handler) Export(c echo.Context) error {
	year, place, err := h.listParams(c)
	if err != nil {
		return err
	}
	rows, err := h.svc.ListRows(c.Request().Context(), year, place)
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
	lines := make([]RateLine, 0, len(rows))
	for _, r := range rows {
		lines = append(lines, LineFromRow(r))
	}
	var buf bytes.Buffer
	if err := WriteXLSX(&buf, lines); err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
	c.Response().Header().Set(echo.HeaderContentDisposition,
		fmt.Sprintf(`attachment; filename="tariffs-%d-%s.xlsx"`, year, place))
	return c.Blob(http.StatusOK, xlsxMIME, buf.Bytes())
}

// Import accepts a multipart form with year, place, reset and an optional
// file (.csv or .xlsx). Without a file the built-in 2025 card is loaded.
func (h *Handler) Import(c echo.Context) error {
	year, err := strconv.Atoi(c.FormValue("year"))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid year")
	}
	place := PlaceOffice
	if v := c.FormValue("place"); v != "" {
		if place, err = ParsePlace(v); err != nil {
			return echo.NewHTTPError(http.StatusBadRequest, err.Error())
		}
	}
	reset, _ := strconv.ParseBool(c.FormValue("reset"))

	var lines []RateLine
	if fh, err := c.FormFile("file"); err == nil {
		f, err := fh.Open()
		if err != nil {
			return echo.NewHTTPError(http.StatusBadRequest, err.Error())
		}
		defer f.Close()
		if lines, err = ParseFile(fh.Filename, f); err != nil {
			return echo.NewHTTPError(http.StatusBadRequest, err.Error())
		}
	} else if !errors.Is(err, http.ErrMissingFile) && !errors.Is(err, http.ErrNotMultipart) {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}

	res, err := h.svc.Import(c.Request().Context(), ImportOptions{Year: year, Place: place, Reset: reset}, lines)
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	return c.JSON(http.StatusOK, res)
}
