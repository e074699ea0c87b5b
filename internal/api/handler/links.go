package handler

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/pawel/toolgate/internal/shortener"
)

// LinksHandler handles short link creation, stats and redirects.
type LinksHandler struct {
	service *shortener.Service
}

func NewLinksHandler(service *shortener.Service) *LinksHandler {
	return &LinksHandler{service: service}
}

type createLinkRequest struct {
	URL string `json:"url"`
}

// Create handles POST /api/v1/links.
// Parameters:
//   - c: Gin request context.
// Returns: none (writes JSON response).
func (h *LinksHandler) Create(c *gin.Context) {
	var req createLinkRequest
	if err := c.ShouldBindJSON(&req); err != nil || req.URL == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Missing or invalid url"})
		return
	}

	link, err := h.service.Shorten(c.Request.Context(), req.URL)
	if errors.Is(err, shortener.ErrInvalidURL) {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Missing or invalid url: must be an absolute http(s) URL"})
		return
	}
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Link creation failed: " + err.Error()})
		return
	}

	c.JSON(http.StatusCreated, gin.H{
		"code":     link.Code,
		"shortUrl": h.service.ShortURL(link.Code),
	})
}

// Stats handles GET /api/v1/links/:code/stats.
// Parameters:
//   - c: Gin request context.
// Returns: none (writes JSON response).
func (h *LinksHandler) Stats(c *gin.Context) {
	link, err := h.service.Stats(c.Request.Context(), c.Param("code"))
	if errors.Is(err, shortener.ErrNotFound) {
		c.JSON(http.StatusNotFound, gin.H{"error": "Link not found"})
		return
	}
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Stats lookup failed: " + err.Error()})
		return
	}

	c.JSON(http.StatusOK, link)
}

// Redirect handles GET /r/:code.
// Parameters:
//   - c: Gin request context.
// Returns: none (issues a redirect).
func (h *LinksHandler) Redirect(c *gin.Context) {
	target, err := h.service.Resolve(c.Request.Context(), c.Param("code"))
	if errors.Is(err, shortener.ErrNotFound) {
		c.JSON(http.StatusNotFound, gin.H{"error": "Link not found"})
		return
	}
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Resolve failed: " + err.Error()})
		return
	}

	c.Redirect(http.StatusFound, target)
}
