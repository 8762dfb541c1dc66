package rankings

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/queuetimes/parkpulse/pkg/logger"
)

// Handler exposes the rankings HTTP surface.
type Handler struct {
	service *Service
}

// NewHandler creates a rankings handler.
func NewHandler(service *Service) *Handler {
	return &Handler{service: service}
}

// RegisterRoutes mounts the rankings endpoints on a router group.
func (h *Handler) RegisterRoutes(rg *gin.RouterGroup) {
	rg.GET("/rankings/parks", h.ParkRankings)
	rg.GET("/rankings/rides", h.RideRankings)
	rg.GET("/parks", h.ListParks)
	rg.GET("/parks/:id", h.ParkDetail)
	rg.GET("/parks/:id/rides", h.ParkRides)
	rg.GET("/parks/:id/chart", h.ParkChart)
}

// apiError is the error envelope of every rankings endpoint.
func apiError(c *gin.Context, status int, code, message string) {
	c.JSON(status, gin.H{"error": code, "message": message})
}

func parseQuery(c *gin.Context) (Period, Filter, SortBy, int, bool) {
	period, err := ParsePeriod(c.Query("period"))
	if err != nil {
		apiError(c, http.StatusBadRequest, "invalid_period", err.Error())
		return "", "", "", 0, false
	}
	filter, err := ParseFilter(c.Query("filter"))
	if err != nil {
		apiError(c, http.StatusBadRequest, "invalid_filter", err.Error())
		return "", "", "", 0, false
	}
	sortBy, err := ParseSortBy(c.Query("sort_by"))
	if err != nil {
		apiError(c, http.StatusBadRequest, "invalid_sort_by", err.Error())
		return "", "", "", 0, false
	}
	limit := 0
	if raw := c.Query("limit"); raw != "" {
		limit, err = strconv.Atoi(raw)
		if err != nil || limit <= 0 {
			apiError(c, http.StatusBadRequest, "invalid_limit", "limit must be a positive integer")
			return "", "", "", 0, false
		}
	}
	return period, filter, sortBy, limit, true
}

// ParkRankings handles GET /rankings/parks.
func (h *Handler) ParkRankings(c *gin.Context) {
	period, filter, sortBy, limit, ok := parseQuery(c)
	if !ok {
		return
	}

	resp, err := h.service.ParkRankings(c.Request.Context(), period, filter, sortBy, limit)
	if err != nil {
		logger.Error("failed to build park rankings",
			zap.String("period", string(period)),
			zap.Error(err),
		)
		apiError(c, http.StatusInternalServerError, "internal_error", "failed to build park rankings")
		return
	}
	c.JSON(http.StatusOK, resp)
}

// RideRankings handles GET /rankings/rides.
func (h *Handler) RideRankings(c *gin.Context) {
	period, filter, _, limit, ok := parseQuery(c)
	if !ok {
		return
	}

	resp, err := h.service.RideRankings(c.Request.Context(), period, filter, limit)
	if err != nil {
		logger.Error("failed to build ride rankings",
			zap.String("period", string(period)),
			zap.Error(err),
		)
		apiError(c, http.StatusInternalServerError, "internal_error", "failed to build ride rankings")
		return
	}
	c.JSON(http.StatusOK, resp)
}

// ListParks handles GET /parks.
func (h *Handler) ListParks(c *gin.Context) {
	filter, err := ParseFilter(c.Query("filter"))
	if err != nil {
		apiError(c, http.StatusBadRequest, "invalid_filter", err.Error())
		return
	}

	parks, err := h.service.store.ListParks(c.Request.Context(), filter)
	if err != nil {
		logger.Error("failed to list parks", zap.Error(err))
		apiError(c, http.StatusInternalServerError, "internal_error", "failed to list parks")
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"success":     true,
		"data":        parks,
		"attribution": DefaultAttribution,
	})
}

// ParkDetail handles GET /parks/:id.
func (h *Handler) ParkDetail(c *gin.Context) {
	parkID, err := strconv.Atoi(c.Param("id"))
	if err != nil {
		apiError(c, http.StatusBadRequest, "invalid_park_id", "park id must be an integer")
		return
	}

	park, rides, err := h.service.ParkDetail(c.Request.Context(), parkID)
	if err != nil {
		if errors.Is(err, ErrParkNotFound) {
			apiError(c, http.StatusNotFound, "park_not_found", "park not found")
			return
		}
		logger.Error("failed to load park detail", zap.Int("park_id", parkID), zap.Error(err))
		apiError(c, http.StatusInternalServerError, "internal_error", "failed to load park")
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"success":     true,
		"data":        gin.H{"park": park, "rides": rides},
		"attribution": DefaultAttribution,
	})
}

// ParkRides handles GET /parks/:id/rides.
func (h *Handler) ParkRides(c *gin.Context) {
	parkID, err := strconv.Atoi(c.Param("id"))
	if err != nil {
		apiError(c, http.StatusBadRequest, "invalid_park_id", "park id must be an integer")
		return
	}

	_, rides, err := h.service.ParkDetail(c.Request.Context(), parkID)
	if err != nil {
		if errors.Is(err, ErrParkNotFound) {
			apiError(c, http.StatusNotFound, "park_not_found", "park not found")
			return
		}
		logger.Error("failed to list park rides", zap.Int("park_id", parkID), zap.Error(err))
		apiError(c, http.StatusInternalServerError, "internal_error", "failed to list rides")
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"success":     true,
		"data":        rides,
		"attribution": DefaultAttribution,
	})
}

// ParkChart handles GET /parks/:id/chart.
func (h *Handler) ParkChart(c *gin.Context) {
	parkID, err := strconv.Atoi(c.Param("id"))
	if err != nil {
		apiError(c, http.StatusBadRequest, "invalid_park_id", "park id must be an integer")
		return
	}
	period, err := ParsePeriod(c.Query("period"))
	if err != nil {
		apiError(c, http.StatusBadRequest, "invalid_period", err.Error())
		return
	}

	resp, err := h.service.ParkChart(c.Request.Context(), parkID, period)
	if err != nil {
		if errors.Is(err, ErrParkNotFound) {
			apiError(c, http.StatusNotFound, "park_not_found", "park not found")
			return
		}
		logger.Error("failed to build park chart",
			zap.Int("park_id", parkID),
			zap.String("period", string(period)),
			zap.Error(err),
		)
		apiError(c, http.StatusInternalServerError, "internal_error", "failed to build chart")
		return
	}
	c.JSON(http.StatusOK, resp)
}
