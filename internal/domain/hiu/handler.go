package hiu

import (
	"errors"
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

// RegisterCallbackRoutes mounts the consent manager facing callbacks on
// their v0.5 paths.
func (h *Handler) RegisterCallbackRoutes(g *echo.Group) {
	g.POST("/v0.5/consent-requests/on-init", h.OnConsentInit)
	g.POST("/v0.5/consent-requests/on-status", h.OnConsentStatus)
	g.POST("/v0.5/consents/hiu/notify", h.ConsentNotify)
	g.POST("/v0.5/consents/on-fetch", h.OnConsentFetch)
	g.POST("/v0.5/health-information/hiu/on-request", h.OnHealthInfoRequest)
	g.POST(transferPath, h.Transfer)
}

// RegisterRoutes mounts the host facing endpoints.
func (h *Handler) RegisterRoutes(api *echo.Group) {
	api.POST("/hiu/consent-requests", h.CreateConsentRequest)
	api.GET("/hiu/consent-requests", h.ListConsentRequests)
	api.GET("/hiu/consent-requests/:id", h.GetConsentRequest)
	api.GET("/hiu/consent-requests/:id/artefacts", h.ListConsentArtefacts)
	api.GET("/hiu/consent-requests/:id/status", h.PollConsentStatus)
	api.POST("/hiu/health-information/request", h.RequestHealthInformation)
	api.POST("/hiu/patients/find", h.FindPatient)
	api.POST("/hiu/identity/authenticate", h.AuthenticateIdentity)
}

func (h *Handler) CreateConsentRequest(c echo.Context) error {
	var in CreateConsentRequestInput
	if err := c.Bind(&in); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	req, err := h.svc.CreateConsentRequest(c.Request().Context(), in)
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	return c.JSON(http.StatusCreated, req)
}

func (h *Handler) ListConsentRequests(c echo.Context) error {
	pg := pagination.FromContext(c)
	reqs, total, err := h.svc.consents.ListRequests(c.Request().Context(), pg.Limit, pg.Offset)
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
	return c.JSON(http.StatusOK, pagination.NewResponse(reqs, total, pg.Limit, pg.Offset))
}

func (h *Handler) GetConsentRequest(c echo.Context) error {
	req, err := h.svc.consents.GetRequest(c.Request().Context(), c.Param("id"))
	if err != nil {
		return echo.NewHTTPError(http.StatusNotFound, "consent request not found")
	}
	return c.JSON(http.StatusOK, req)
}

// ListConsentArtefacts returns the artefacts fetched for a request, one
// per provider the patient granted access to.
func (h *Handler) ListConsentArtefacts(c echo.Context) error {
	req, err := h.svc.consents.GetRequest(c.Request().Context(), c.Param("id"))
	if err != nil {
		return echo.NewHTTPError(http.StatusNotFound, "consent request not found")
	}
	arts, err := h.svc.consents.ListArtefactsByRequest(c.Request().Context(), req.ID)
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
	return c.JSON(http.StatusOK, arts)
}

// PollConsentStatus returns the local state and re-polls the consent
// manager; the fresh answer arrives on the on-status callback.
func (h *Handler) PollConsentStatus(c echo.Context) error {
	req, err := h.svc.PollConsentStatus(c.Request().Context(), c.Param("id"))
	switch {
	case errors.Is(err, ErrRequestNotFound):
		return echo.NewHTTPError(http.StatusNotFound, err.Error())
	case errors.Is(err, ErrNotRegistered):
		return echo.NewHTTPError(http.StatusConflict, err.Error())
	case err != nil:
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
	return c.JSON(http.StatusOK, req)
}

type healthInfoRequestBody struct {
	ArtefactID string `json:"artefact_id"`
}

func (h *Handler) RequestHealthInformation(c echo.Context) error {
	var body healthInfoRequestBody
	if err := c.Bind(&body); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	artefactID, err := uuid.Parse(body.ArtefactID)
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid artefact id")
	}
	err = h.svc.RequestHealthInformation(c.Request().Context(), artefactID)
	switch {
	case errors.Is(err, ErrArtefactNotFound):
		return echo.NewHTTPError(http.StatusNotFound, err.Error())
	case err != nil:
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
	return c.JSON(http.StatusAccepted, map[string]string{"detail": "health information request initiated"})
}

type abhaIdentifierBody struct {
	AbhaIdentifier string `json:"abha_identifier"`
}

func (h *Handler) FindPatient(c echo.Context) error {
	var body abhaIdentifierBody
	if err := c.Bind(&body); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	if err := h.svc.FindPatient(c.Request().Context(), body.AbhaIdentifier); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	return c.JSON(http.StatusAccepted, map[string]string{"detail": "patient find initiated"})
}

func (h *Handler) AuthenticateIdentity(c echo.Context) error {
	var body abhaIdentifierBody
	if err := c.Bind(&body); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	result, err := h.svc.AuthenticateIdentity(c.Request().Context(), body.AbhaIdentifier)
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	return c.JSON(http.StatusOK, result)
}

func (h *Handler) OnConsentInit(c echo.Context) error {
	var cb OnConsentInitCallback
	if err := c.Bind(&cb); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	return h.callbackStatus(c, h.svc.HandleOnConsentInit(c.Request().Context(), cb))
}

func (h *Handler) OnConsentStatus(c echo.Context) error {
	var cb OnConsentStatusCallback
	if err := c.Bind(&cb); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	return h.callbackStatus(c, h.svc.HandleOnConsentStatus(c.Request().Context(), cb))
}

func (h *Handler) ConsentNotify(c echo.Context) error {
	var cb ConsentNotifyCallback
	if err := c.Bind(&cb); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	return h.callbackStatus(c, h.svc.HandleConsentNotify(c.Request().Context(), cb))
}

func (h *Handler) OnConsentFetch(c echo.Context) error {
	var cb OnConsentFetchCallback
	if err := c.Bind(&cb); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	return h.callbackStatus(c, h.svc.HandleOnConsentFetch(c.Request().Context(), cb))
}

func (h *Handler) OnHealthInfoRequest(c echo.Context) error {
	var cb OnHealthInfoRequestCallback
	if err := c.Bind(&cb); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	return h.callbackStatus(c, h.svc.HandleOnHealthInfoRequest(c.Request().Context(), cb))
}

func (h *Handler) Transfer(c echo.Context) error {
	var req TransferRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	return h.callbackStatus(c, h.svc.HandleTransfer(c.Request().Context(), req))
}

func (h *Handler) callbackStatus(c echo.Context, err error) error {
	switch {
	case errors.Is(err, ErrRequestNotFound), errors.Is(err, ErrArtefactNotFound):
		return echo.NewHTTPError(http.StatusNotFound, err.Error())
	case err != nil:
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
	return c.NoContent(http.StatusAccepted)
}
