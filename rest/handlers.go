package rest

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"github.com/sirupsen/logrus"

	"github.com/shortly-systems/shortly/services/analytics"
	"github.com/shortly-systems/shortly/services/idgen"
	redirect "github.com/shortly-systems/shortly/services/redirect/domain"
	shortener "github.com/shortly-systems/shortly/services/shortener/domain"
	"github.com/shortly-systems/shortly/services/ws"
	"github.com/shortly-systems/shortly/utils/apperror"
	"github.com/shortly-systems/shortly/utils/cache"
)

// maxBulkItems caps a single bulk shorten request.
const maxBulkItems = 100

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	// Live feeds are consumed by dashboards on other origins.
	CheckOrigin: func(*http.Request) bool { return true },
}

// ReadyCheck probes one dependency for the readiness endpoint.
type ReadyCheck func(ctx context.Context) error

// Server binds the HTTP handlers to the domain services.
type Server struct {
	shortener   *shortener.Service
	redirect    *redirect.Service
	hub         *ws.Hub
	ids         *idgen.Generator
	cache       *cache.MultiLayer
	publisher   analytics.Publisher
	readyChecks map[string]ReadyCheck
	log         *logrus.Entry
}

func NewServer(
	shortenerSvc *shortener.Service,
	redirectSvc *redirect.Service,
	hub *ws.Hub,
	ids *idgen.Generator,
	multiCache *cache.MultiLayer,
	publisher analytics.Publisher,
	readyChecks map[string]ReadyCheck,
	log *logrus.Logger,
) *Server {
	return &Server{
		shortener:   shortenerSvc,
		redirect:    redirectSvc,
		hub:         hub,
		ids:         ids,
		cache:       multiCache,
		publisher:   publisher,
		readyChecks: readyChecks,
		log:         log.WithField("component", "rest"),
	}
}

// handleRedirect serves GET /{shortCode}.
//
//	@Summary	Redirect to the long URL
//	@Tags		redirect
//	@Param		shortCode	path	string	true	"short code"
//	@Success	301
//	@Failure	400	{object}	map[string]any
//	@Failure	404	{object}	map[string]any
//	@Failure	410	{object}	map[string]any
//	@Router		/{shortCode} [get]
func (s *Server) handleRedirect(c *gin.Context) {
	shortCode := c.Param("shortCode")

	outcome := s.redirect.Resolve(c.Request.Context(), shortCode)
	if outcome.Status != http.StatusMovedPermanently {
		renderError(c, apperror.ByCode(outcome.ErrCode))
		return
	}

	c.Header("Cache-Control", "no-store")
	c.Redirect(http.StatusMovedPermanently, outcome.LongURL)

	click := redirect.ClickContext{
		IPAddress:   c.ClientIP(),
		UserAgent:   c.Request.UserAgent(),
		Referrer:    c.Request.Referer(),
		CountryCode: c.GetHeader("X-Country-Code"),
		Region:      c.GetHeader("X-Region"),
		City:        c.GetHeader("X-City"),
	}
	go s.redirect.AfterRedirect(outcome.Mapping, click)
}

// handleShorten serves POST /api/v1/url/shorten.
//
//	@Summary	Create a short URL
//	@Tags		url
//	@Accept		json
//	@Produce	json
//	@Param		request	body		object	true	"url, optional customAlias and expiryDays"
//	@Success	200		{object}	map[string]any
//	@Failure	400		{object}	map[string]any
//	@Failure	409		{object}	map[string]any
//	@Failure	429		{object}	map[string]any
//	@Router		/api/v1/url/shorten [post]
func (s *Server) handleShorten(c *gin.Context) {
	var req shortener.CreateURLRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		renderError(c, apperror.ErrValidation.WithCause(err))
		return
	}
	if principal, ok := CurrentPrincipal(c); ok {
		req.UserID = &principal.UserID
	}

	resp, err := s.shortener.CreateShortURL(c.Request.Context(), &req)
	if err != nil {
		renderError(c, err)
		return
	}
	c.JSON(http.StatusOK, resp)
}

// handleBulkShorten serves POST /api/v1/url/shorten/bulk.
//
//	@Summary	Create up to 100 short URLs in one call
//	@Tags		url
//	@Accept		json
//	@Produce	json
//	@Success	200	{object}	map[string]any
//	@Failure	400	{object}	map[string]any
//	@Router		/api/v1/url/shorten/bulk [post]
func (s *Server) handleBulkShorten(c *gin.Context) {
	var body struct {
		URLs []shortener.CreateURLRequest `json:"urls" binding:"required"`
	}
	if err := c.ShouldBindJSON(&body); err != nil {
		renderError(c, apperror.ErrValidation.WithCause(err))
		return
	}
	if len(body.URLs) == 0 || len(body.URLs) > maxBulkItems {
		renderError(c, apperror.ErrValidation.WithDetails(map[string]any{
			"reason": "urls must contain between 1 and 100 items",
		}))
		return
	}
	if principal, ok := CurrentPrincipal(c); ok {
		for i := range body.URLs {
			body.URLs[i].UserID = &principal.UserID
		}
	}

	items := s.shortener.BulkCreate(c.Request.Context(), body.URLs)
	succeeded := 0
	for _, item := range items {
		if item.Result != nil {
			succeeded++
		}
	}
	c.JSON(http.StatusOK, gin.H{
		"results":   items,
		"total":     len(items),
		"succeeded": succeeded,
		"failed":    len(items) - succeeded,
	})
}

// handleResolve serves GET /api/v1/url/resolve/{shortCode}: mapping metadata
// without following the redirect.
//
//	@Summary	Resolve a short code to its metadata
//	@Tags		url
//	@Produce	json
//	@Param		shortCode	path		string	true	"short code"
//	@Success	200			{object}	map[string]any
//	@Failure	404			{object}	map[string]any
//	@Failure	410			{object}	map[string]any
//	@Router		/api/v1/url/resolve/{shortCode} [get]
func (s *Server) handleResolve(c *gin.Context) {
	mapping, err := s.shortener.Resolve(c.Request.Context(), c.Param("shortCode"))
	if err != nil {
		renderError(c, err)
		return
	}
	c.JSON(http.StatusOK, mapping)
}

// handleDelete serves DELETE /api/v1/url/{shortCode}. Requires auth; only the
// owner may delete.
//
//	@Summary	Soft-delete a short URL
//	@Tags		url
//	@Produce	json
//	@Param		shortCode	path		string	true	"short code"
//	@Success	200			{object}	map[string]any
//	@Failure	401	{object}	map[string]any
//	@Failure	403	{object}	map[string]any
//	@Failure	404	{object}	map[string]any
//	@Security	BearerAuth
//	@Router		/api/v1/url/{shortCode} [delete]
func (s *Server) handleDelete(c *gin.Context) {
	principal, ok := CurrentPrincipal(c)
	if !ok {
		renderError(c, apperror.ErrUnauthorized)
		return
	}
	shortCode := c.Param("shortCode")
	if err := s.shortener.Delete(c.Request.Context(), shortCode, principal.UserID); err != nil {
		renderError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"shortCode": shortCode, "deleted": true})
}

// handleLiveClicks serves GET /api/v1/ws/{shortCode}: upgrades to WebSocket
// and streams click events for the code until the client disconnects.
func (s *Server) handleLiveClicks(c *gin.Context) {
	shortCode := c.Param("shortCode")
	if !shortener.IsValidShortCode(shortCode) {
		renderError(c, apperror.ErrInvalidShortCode)
		return
	}

	conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		s.log.WithError(err).Warn("websocket upgrade failed")
		return
	}

	client := ws.NewClient(conn)
	s.hub.Subscribe(shortCode, client)

	// Block on the read side to detect disconnects; subscribers never send.
	go func() {
		defer func() {
			s.hub.Unsubscribe(shortCode, client)
			client.Close()
		}()
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()
}

// handleAdminStats serves GET /api/v1/admin/stats.
//
//	@Summary	Operational counters
//	@Tags		admin
//	@Produce	json
//	@Success	200	{object}	map[string]any
//	@Security	BearerAuth
//	@Router		/api/v1/admin/stats [get]
func (s *Server) handleAdminStats(c *gin.Context) {
	if _, ok := CurrentPrincipal(c); !ok {
		renderError(c, apperror.ErrUnauthorized)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"redirects": s.redirect.StatsSnapshot(),
		"cache":     s.cache.Stats(),
		"idgen":     s.ids.GetStatus(),
		"websocket": s.hub.Stats(),
		"analytics": gin.H{
			"pending": s.publisher.Pending(),
			"dropped": s.publisher.Dropped(),
		},
	})
}

// handleCacheWarmup serves POST /api/v1/admin/cache/warmup: batch-primes L1
// and L2 with the named codes ahead of an expected traffic spike.
//
//	@Summary	Prime caches with a list of short codes
//	@Tags		admin
//	@Accept		json
//	@Produce	json
//	@Success	200	{object}	map[string]any
//	@Failure	400	{object}	map[string]any
//	@Security	BearerAuth
//	@Router		/api/v1/admin/cache/warmup [post]
func (s *Server) handleCacheWarmup(c *gin.Context) {
	if _, ok := CurrentPrincipal(c); !ok {
		renderError(c, apperror.ErrUnauthorized)
		return
	}
	var body struct {
		ShortCodes []string `json:"shortCodes" binding:"required"`
	}
	if err := c.ShouldBindJSON(&body); err != nil {
		renderError(c, apperror.ErrValidation.WithCause(err))
		return
	}

	warmed, err := s.shortener.WarmCacheByCodes(c.Request.Context(), body.ShortCodes)
	if err != nil {
		renderError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"requested": len(body.ShortCodes), "warmed": warmed})
}

// handleHealth is the liveness probe.
func (s *Server) handleHealth(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok", "time": time.Now().UTC()})
}

// handleReady reports per-dependency readiness; 503 when any check fails.
func (s *Server) handleReady(c *gin.Context) {
	status := http.StatusOK
	deps := gin.H{}
	for name, check := range s.readyChecks {
		if err := check(c.Request.Context()); err != nil {
			deps[name] = err.Error()
			status = http.StatusServiceUnavailable
		} else {
			deps[name] = "ok"
		}
	}
	c.JSON(status, gin.H{"status": http.StatusText(status), "dependencies": deps})
}
