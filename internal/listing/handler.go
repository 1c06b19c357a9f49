package listing

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"certpipe/internal/logger"
	"certpipe/pkg/errors"
)

type BaseHandler struct {
	Service Service
	Logger  logger.Logger
}

func (h *BaseHandler) HandleError(c *gin.Context, err error) {
	h.Logger.ErrorwCtx(c.Request.Context(), "Request error", "error", err, "path", c.Request.URL.Path)

	status := errors.ToHTTPStatus(err)
	response := errors.ToErrorResponse(err)

	c.JSON(status, response)
}

type Handler struct {
	BaseHandler
}

func NewHandler(service Service, log logger.Logger) *Handler {
	return &Handler{
		BaseHandler: BaseHandler{
			Service: service,
			Logger:  log,
		},
	}
}

func (h *Handler) RegisterRoutes(router *gin.Engine) {
	v1 := router.Group("/api/v1")
	{
		listings := v1.Group("/listings")
		{
			listings.GET("/group/:groupId", h.ListByGroup)
			listings.GET("/certificate/:certificate", h.ListByCertificate)
			listings.GET("/stats", h.GetStats)
			listings.DELETE("/purge", h.Purge)
		}
	}
}

// ListByGroup godoc
// @Summary      List listings for a group
// @Description  Get the most recent trade listings captured from one chat group
// @Tags         listings
// @Accept       json
// @Produce      json
// @Param        groupId  path   string  true   "Group wxid"
// @Param        limit    query  int     false  "Maximum rows to return"
// @Success      200  {array}    TradeListing
// @Failure      400  {object}  errors.ErrorResponse
// @Failure      500  {object}  errors.ErrorResponse
// @Router       /listings/group/{groupId} [get]
func (h *Handler) ListByGroup(c *gin.Context) {
	limit := parseLimit(c)
	listings, err := h.Service.ListByGroup(c.Request.Context(), c.Param("groupId"), limit)
	if err != nil {
		h.HandleError(c, err)
		return
	}
	c.JSON(http.StatusOK, listings)
}

// ListByCertificate godoc
// @Summary      List listings mentioning a certificate
// @Description  Get listings whose split certificate set contains the given certificate
// @Tags         listings
// @Accept       json
// @Produce      json
// @Param        certificate  path   string  true   "Certificate name"
// @Param        limit        query  int     false  "Maximum rows to return"
// @Success      200  {array}    TradeListing
// @Failure      400  {object}  errors.ErrorResponse
// @Failure      500  {object}  errors.ErrorResponse
// @Router       /listings/certificate/{certificate} [get]
func (h *Handler) ListByCertificate(c *gin.Context) {
	limit := parseLimit(c)
	listings, err := h.Service.ListByCertificate(c.Request.Context(), c.Param("certificate"), limit)
	if err != nil {
		h.HandleError(c, err)
		return
	}
	c.JSON(http.StatusOK, listings)
}

// GetStats godoc
// @Summary      Listing statistics
// @Description  Aggregate counts and averages over all stored listings
// @Tags         listings
// @Accept       json
// @Produce      json
// @Success      200  {object}   Stats
// @Failure      500  {object}  errors.ErrorResponse
// @Router       /listings/stats [get]
func (h *Handler) GetStats(c *gin.Context) {
	stats, err := h.Service.Stats(c.Request.Context())
	if err != nil {
		h.HandleError(c, err)
		return
	}
	c.JSON(http.StatusOK, stats)
}

// Purge godoc
// @Summary      Purge old listings
// @Description  Delete listings older than the given number of days
// @Tags         listings
// @Accept       json
// @Produce      json
// @Param        days  query  int  true  "Retention window in days"
// @Success      200  {object}  map[string]int64
// @Failure      400  {object}  errors.ErrorResponse
// @Failure      500  {object}  errors.ErrorResponse
// @Router       /listings/purge [delete]
func (h *Handler) Purge(c *gin.Context) {
	days, err := strconv.Atoi(c.Query("days"))
	if err != nil || days <= 0 {
		c.JSON(http.StatusBadRequest, errors.ToErrorResponse(errors.ErrValidation.WithDetail("message", "days must be a positive integer")))
		return
	}

	deleted, err := h.Service.Purge(c.Request.Context(), days)
	if err != nil {
		h.HandleError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"deleted": deleted})
}

func parseLimit(c *gin.Context) int {
	raw := c.Query("limit")
	if raw == "" {
		return 0
	}
	limit, err := strconv.Atoi(raw)
	if err != nil {
		return 0
	}
	return limit
}
