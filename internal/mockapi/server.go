// Package mockapi is an in-memory stand-in for the remote prediction and
// publishing service. It backs local development (`predictdash mock-api`)
// and the client end-to-end tests.
package mockapi

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"sort"
	"strconv"
	"sync"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"

	"predictdash/internal/api"
	"predictdash/internal/infra/clock"
	"predictdash/internal/infra/logx"
)

// Fixture is one publishable owner.
type Fixture struct {
	ID      int64
	Preview api.Preview
}

type Options struct {
	Token       string
	AdminHeader string
	Clock       clock.Clock
}

type Server struct {
	token  string
	header string
	clock  clock.Clock

	mu        sync.Mutex
	fixtures  map[int64]*Fixture
	panels    map[string][]gin.H
	history   map[int64][]api.HistoryRow
	locked    map[int64]bool
	publishes int
	requests  int
}

func New(opts Options) *Server {
	if opts.AdminHeader == "" {
		opts.AdminHeader = "X-Admin-Token"
	}
	return &Server{
		token:    opts.Token,
		header:   opts.AdminHeader,
		clock:    clock.OrReal(opts.Clock),
		fixtures: make(map[int64]*Fixture),
		panels:   make(map[string][]gin.H),
		history:  make(map[int64][]api.HistoryRow),
		locked:   make(map[int64]bool),
	}
}

// AddFixture registers or replaces a fixture.
func (s *Server) AddFixture(f Fixture) {
	s.mu.Lock()
	s.fixtures[f.ID] = &f
	s.mu.Unlock()
}

// SetPanel replaces the items of a list section.
func (s *Server) SetPanel(section string, items []gin.H) {
	s.mu.Lock()
	s.panels[section] = items
	s.mu.Unlock()
}

// Lock makes publishes for owner report a held reservation.
func (s *Server) Lock(owner int64) { s.mu.Lock(); s.locked[owner] = true; s.mu.Unlock() }

// Unlock releases the reservation for owner.
func (s *Server) Unlock(owner int64) { s.mu.Lock(); delete(s.locked, owner); s.mu.Unlock() }

// Publishes counts accepted POST /api/publish calls.
func (s *Server) Publishes() int { s.mu.Lock(); defer s.mu.Unlock(); return s.publishes }

// Requests counts authorised requests of any kind.
func (s *Server) Requests() int { s.mu.Lock(); defer s.mu.Unlock(); return s.requests }

// Handler builds the gin engine.
func (s *Server) Handler() http.Handler {
	r := gin.New()
	r.Use(gin.Recovery(), requestLog())
	r.Use(cors.New(cors.Config{
		AllowAllOrigins: true,
		AllowMethods:    []string{http.MethodGet, http.MethodPost},
		AllowHeaders:    []string{"Content-Type", "X-Request-Id", s.header},
		ExposeHeaders:   []string{api.TotalCountHeader},
	}))

	g := r.Group("/api")
	g.Use(s.auth())
	{
		g.GET("/panels/:section", s.listPanel)
		g.GET("/publish/:owner/preview", s.preview)
		g.GET("/publish/:owner/post-preview", s.postPreview)
		g.GET("/publish/:owner/history", s.historyRows)
		g.POST("/publish", s.publish)
	}
	return r
}

// ListenAndServe serves until ctx is cancelled.
func (s *Server) ListenAndServe(ctx context.Context, addr string) error {
	srv := &http.Server{Addr: addr, Handler: s.Handler(), ReadHeaderTimeout: 5 * time.Second}
	errc := make(chan error, 1)
	go func() { errc <- srv.ListenAndServe() }()
	logx.Infow("mock api listening", "addr", addr)
	select {
	case err := <-errc:
		return err
	case <-ctx.Done():
		sctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
		defer cancel()
		if err := srv.Shutdown(sctx); err != nil {
			return err
		}
		if err := <-errc; !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	}
}

func requestLog() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		logx.Debugw("mock api request",
			"method", c.Request.Method,
			"path", c.Request.URL.Path,
			"status", c.Writer.Status(),
			"request_id", c.GetHeader("X-Request-Id"),
			"elapsed", time.Since(start).String(),
		)
	}
}

func (s *Server) auth() gin.HandlerFunc {
	return func(c *gin.Context) {
		if s.token != "" && c.GetHeader(s.header) != s.token {
			c.AbortWithStatusJSON(http.StatusForbidden, gin.H{"error": "invalid admin token"})
			return
		}
		s.mu.Lock()
		s.requests++
		s.mu.Unlock()
		c.Next()
	}
}

func intQuery(c *gin.Context, name string, def int) int {
	v, err := strconv.Atoi(c.Query(name))
	if err != nil || v <= 0 {
		return def
	}
	return v
}

func (s *Server) listPanel(c *gin.Context) {
	section := c.Param("section")
	page := intQuery(c, "page", 1)
	limit := intQuery(c, "limit", 50)

	s.mu.Lock()
	var items []gin.H
	var ok bool
	if section == "publishing" {
		items, ok = s.publishingItemsLocked(), true
	} else {
		items, ok = s.panels[section]
	}
	s.mu.Unlock()
	if !ok {
		c.JSON(http.StatusNotFound, gin.H{"error": fmt.Sprintf("unknown section %q", section)})
		return
	}
	from := min((page-1)*limit, len(items))
	to := min(from+limit, len(items))
	c.Header(api.TotalCountHeader, strconv.Itoa(len(items)))
	c.JSON(http.StatusOK, items[from:to])
}

// publishingItemsLocked derives the publishing queue from recorded history
// so a submission is visible on the next uncached load.
func (s *Server) publishingItemsLocked() []gin.H {
	items := []gin.H{}
	owners := make([]int64, 0, len(s.history))
	for id := range s.history {
		owners = append(owners, id)
	}
	sort.Slice(owners, func(i, j int) bool { return owners[i] < owners[j] })
	for _, id := range owners {
		for _, h := range s.history[id] {
			items = append(items, gin.H{"fixture": id, "market": h.Market, "lang": h.Language, "status": h.Status, "at": h.CreatedAt})
		}
	}
	return items
}

func (s *Server) fixture(c *gin.Context, raw string) (*Fixture, bool) {
	id, err := strconv.ParseInt(raw, 10, 64)
	if err != nil || id <= 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid fixture id"})
		return nil, false
	}
	s.mu.Lock()
	f, ok := s.fixtures[id]
	s.mu.Unlock()
	if !ok {
		c.JSON(http.StatusNotFound, gin.H{"error": fmt.Sprintf("fixture %d not found", id)})
		return nil, false
	}
	return f, true
}

func (s *Server) preview(c *gin.Context) {
	f, ok := s.fixture(c, c.Param("owner"))
	if !ok {
		return
	}
	c.JSON(http.StatusOK, f.Preview)
}

func (s *Server) postPreview(c *gin.Context) {
	f, ok := s.fixture(c, c.Param("owner"))
	if !ok {
		return
	}
	variant := c.DefaultQuery("variant", "standard")
	out := api.PostPreview{Variant: variant}
	for _, m := range f.Preview.Markets {
		if !m.Ready() {
			continue
		}
		for _, lang := range []string{"en", "es"} {
			out.Markets = append(out.Markets, api.PostPreviewMarket{
				Market: m.Market,
				Lang:   lang,
				Title:  fmt.Sprintf("[%s] %s", variant, m.Headline),
				Body:   m.Analysis,
			})
		}
	}
	c.JSON(http.StatusOK, out)
}

func (s *Server) historyRows(c *gin.Context) {
	f, ok := s.fixture(c, c.Param("owner"))
	if !ok {
		return
	}
	limit := intQuery(c, "limit", 25)
	s.mu.Lock()
	rows := s.history[f.ID]
	if len(rows) > limit {
		rows = rows[:limit]
	}
	rows = append([]api.HistoryRow{}, rows...)
	s.mu.Unlock()
	c.JSON(http.StatusOK, rows)
}

func (s *Server) publish(c *gin.Context) {
	var req api.PublishRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid body: " + err.Error()})
		return
	}
	f, ok := s.fixture(c, strconv.FormatInt(req.OwnerID, 10))
	if !ok {
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.publishes++
	if s.locked[f.ID] {
		c.JSON(http.StatusOK, api.PublishResponse{DryRun: req.DryRun, ReservationLocked: true, Results: []api.PublishResultRow{}})
		return
	}
	now := s.clock.Now().UTC()
	resp := api.PublishResponse{DryRun: req.DryRun, Results: []api.PublishResultRow{}}
	for _, m := range f.Preview.Markets {
		row := api.PublishResultRow{Market: m.Market, Lang: "en"}
		switch {
		case !m.Ready() && !req.Force:
			reason := m.Reasons[0]
			row.Status = api.StatusSkipped
			row.Reason = &reason
		case req.DryRun:
			row.Status = api.StatusDryRun
		default:
			row.Status = api.StatusOK
		}
		resp.Results = append(resp.Results, row)
		h := api.HistoryRow{
			CreatedAt:    now,
			Market:       row.Market,
			Language:     row.Lang,
			Status:       row.Status,
			Reason:       row.Reason,
			Experimental: m.Experimental,
		}
		s.history[f.ID] = append([]api.HistoryRow{h}, s.history[f.ID]...)
	}
	c.JSON(http.StatusOK, resp)
}
