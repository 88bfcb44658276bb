package abha

import (
	"net/http"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"

	"github.com/ohcnetwork/abdm-gateway/pkg/pagination"
)

type Handler struct {
	svc *Service
}

func NewHandler(svc *Service) *Handler {
	return &Handler{svc: svc}
}

func (h *Handler) RegisterRoutes(api *echo.Group) {
	api.POST("/abha", h.CreateAbhaNumber)
	api.GET("/abha", h.ListAbhaNumbers)
	api.GET("/abha/:id", h.GetAbhaNumber)
	api.PUT("/abha/:id", h.UpdateAbhaNumber)
	api.DELETE("/abha/:id", h.DeleteAbhaNumber)

	api.POST("/abha/:id/care-contexts", h.AddCareContext)
	api.GET("/abha/:id/care-contexts", h.ListCareContexts)
}

func (h *Handler) CreateAbhaNumber(c echo.Context) error {
	var a AbhaNumber
	if err := c.Bind(&a); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	if err := h.svc.CreateAbhaNumber(c.Request().Context(), &a); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	return c.JSON(http.StatusCreated, a)
}

func (h *Handler) GetAbhaNumber(c echo.Context) error {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		// Fall back to ABHA address / number lookup.
		a, lerr := h.svc.GetByIdentifier(c.Request().Context(), c.Param("id"))
		if lerr != nil {
			return echo.NewHTTPError(http.StatusNotFound, "abha number not found")
		}
		return c.JSON(http.StatusOK, a)
	}
	a, err := h.svc.GetAbhaNumber(c.Request().Context(), id)
	if err != nil {
		return echo.NewHTTPError(http.StatusNotFound, "abha number not found")
	}
	return c.JSON(http.StatusOK, a)
}

func (h *Handler) ListAbhaNumbers(c echo.Context) error {
	pg := pagination.FromContext(c)
	abhas, total, err := h.svc.ListAbhaNumbers(c.Request().Context(), pg.Limit, pg.Offset)
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
	return c.JSON(http.StatusOK, pagination.NewResponse(abhas, total, pg.Limit, pg.Offset))
}

func (h *Handler) UpdateAbhaNumber(c echo.Context) error {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid id")
	}
	var a AbhaNumber
	if err := c.Bind(&a); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	a.ID = id
	if err := h.svc.UpdateAbhaNumber(c.Request().Context(), &a); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	return c.JSON(http.StatusOK, a)
}

func (h *Handler) DeleteAbhaNumber(c echo.Context) error {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid id")
	}
	if err := h.svc.DeleteAbhaNumber(c.Request().Context(), id); err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
	return c.NoContent(http.StatusNoContent)
}

func (h *Handler) AddCareContext(c echo.Context) error {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid id")
	}
	var cc LinkedCareContext
	if err := c.Bind(&cc); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	cc.AbhaNumberID = id
	if err := h.svc.AddCareContext(c.Request().Context(), &cc); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	return c.JSON(http.StatusCreated, cc)
}

func (h *Handler) ListCareContexts(c echo.Context) error {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid id")
	}
	ccs, err := h.svc.ListCareContexts(c.Request().Context(), id)
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
	if ccs == nil {
		ccs = []*LinkedCareContext{}
	}
	return c.JSON(http.StatusOK, ccs)
}
