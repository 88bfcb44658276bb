package hip

import (
	"errors"
	"net/http"

	"github.com/labstack/echo/v4"
)

// requestIDHeader is the correlation header on consent manager callbacks.
const requestIDHeader = "REQUEST-ID"

type Handler struct {
	svc *Service
}

func NewHandler(svc *Service) *Handler {
	return &Handler{svc: svc}
}

// RegisterCallbackRoutes mounts the consent manager facing callbacks.
func (h *Handler) RegisterCallbackRoutes(g *echo.Group) {
	g.POST("/v3/hip/token/on-generate-token", h.OnGenerateToken)
	g.POST("/v3/hip/link/on-carecontext", h.OnLinkCareContext)
	g.POST("/v3/hip/patient/care-context/discover", h.Discover)
	g.POST("/v3/hip/link/care-context/init", h.LinkInit)
	g.POST("/v3/hip/link/care-context/confirm", h.LinkConfirm)
	g.POST("/v3/hip/consent/request/notify", h.ConsentNotify)
	g.POST("/v3/hip/health-information/request", h.HealthInfoRequest)
}

// RegisterRoutes mounts the host facing endpoints.
func (h *Handler) RegisterRoutes(api *echo.Group) {
	api.POST("/hip/link-carecontexts", h.LinkCareContexts)
}

func (h *Handler) Discover(c echo.Context) error {
	var req DiscoverRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	if err := h.svc.HandleDiscover(c.Request().Context(), req, c.Request().Header.Get(requestIDHeader)); err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
	return c.NoContent(http.StatusAccepted)
}

func (h *Handler) LinkInit(c echo.Context) error {
	var req LinkInitRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	if err := h.svc.HandleLinkInit(c.Request().Context(), req, c.Request().Header.Get(requestIDHeader)); err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
	return c.NoContent(http.StatusAccepted)
}

func (h *Handler) LinkConfirm(c echo.Context) error {
	var req LinkConfirmRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	err := h.svc.HandleLinkConfirm(c.Request().Context(), req, c.Request().Header.Get(requestIDHeader))
	switch {
	case errors.Is(err, ErrLinkSessionNotFound):
		return echo.NewHTTPError(http.StatusNotFound, err.Error())
	case errors.Is(err, ErrInvalidOTP):
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	case err != nil:
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
	return c.NoContent(http.StatusAccepted)
}

func (h *Handler) OnGenerateToken(c echo.Context) error {
	var resp GenerateTokenResponse
	if err := c.Bind(&resp); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	err := h.svc.HandleOnGenerateToken(c.Request().Context(), resp)
	switch {
	case errors.Is(err, ErrLinkSessionNotFound):
		return echo.NewHTTPError(http.StatusNotFound, err.Error())
	case err != nil:
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
	return c.NoContent(http.StatusAccepted)
}

// OnLinkCareContext acknowledges the gateway's response to a care context
// push. Failed links only get logged for now; the contexts stay flagged
// linked and a retry endpoint can resubmit them.
func (h *Handler) OnLinkCareContext(c echo.Context) error {
	return c.NoContent(http.StatusAccepted)
}

func (h *Handler) ConsentNotify(c echo.Context) error {
	var req ConsentNotifyRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	err := h.svc.HandleConsentNotify(c.Request().Context(), req, c.Request().Header.Get(requestIDHeader))
	switch {
	case errors.Is(err, ErrPatientNotKnown):
		return echo.NewHTTPError(http.StatusNotFound, err.Error())
	case err != nil:
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
	return c.NoContent(http.StatusAccepted)
}

func (h *Handler) HealthInfoRequest(c echo.Context) error {
	var req HealthInfoRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	err := h.svc.HandleHealthInfoRequest(c.Request().Context(), req, c.Request().Header.Get(requestIDHeader))
	switch {
	case errors.Is(err, ErrConsentNotFound):
		return echo.NewHTTPError(http.StatusNotFound, err.Error())
	case err != nil:
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
	return c.NoContent(http.StatusAccepted)
}

type linkCareContextsRequest struct {
	AbhaIdentifier        string   `json:"abha_identifier"`
	CareContextReferences []string `json:"care_context_references"`
}

// LinkCareContexts lets the facility push selected care contexts to the
// patient's ABHA record.
func (h *Handler) LinkCareContexts(c echo.Context) error {
	var req linkCareContextsRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	if err := h.svc.LinkCareContexts(c.Request().Context(), req.AbhaIdentifier, req.CareContextReferences); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	return c.JSON(http.StatusAccepted, map[string]string{"detail": "link request initiated"})
}
