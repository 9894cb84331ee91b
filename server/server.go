// Package server exposes the docket services as a JSON HTTP API built on
// gin. Every tenant-scoped route takes the company in the clientId query
// parameter and requires a bearer session token.
package server

import (
	"context"
	"errors"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/wudi/docketkit/account"
	"github.com/wudi/docketkit/audit"
	"github.com/wudi/docketkit/champion"
	"github.com/wudi/docketkit/compliance"
	"github.com/wudi/docketkit/configcard"
	"github.com/wudi/docketkit/observability"
	"github.com/wudi/docketkit/pipeline"
	"github.com/wudi/docketkit/security"
	"github.com/wudi/docketkit/stock"
	"github.com/wudi/docketkit/store"
	"github.com/wudi/docketkit/team"
)

const userKey = "docketkit.user"

// Deps are the services behind the API. Logger is optional.
type Deps struct {
	Store       *store.Store
	Accounts    *account.Service
	Team        *team.Service
	Processor   *pipeline.Processor
	Audit       *audit.StoreWriter
	ConfigCards *configcard.Service
	Champion    *champion.Service
	Compliance  *compliance.Service
	Stock       *stock.Service
	Limits      security.Limits
	Logger      observability.Logger
}

// Server routes API requests to the services.
type Server struct {
	Deps
	log    observability.Logger
	router *gin.Engine
}

// New builds the router. mode is a gin mode: debug, release or test.
func New(deps Deps, mode string) *Server {
	if mode != "" {
		gin.SetMode(mode)
	}
	s := &Server{Deps: deps, log: observability.OrNop(deps.Logger)}
	r := gin.New()
	r.Use(gin.Recovery(), s.logRequests)
	if deps.Limits.MaxMultipartMemory > 0 {
		r.MaxMultipartMemory = deps.Limits.MaxMultipartMemory
	}
	r.GET("/healthz", func(c *gin.Context) { c.JSON(http.StatusOK, gin.H{"status": "ok"}) })

	api := r.Group("/api")
	api.POST("/auth/login", s.login)
	api.POST("/companies", s.createCompany)
	api.POST("/team/accept", s.acceptInvitation)

	authed := api.Group("", s.authenticate)
	{
		authed.POST("/auth/logout", s.logout)
		authed.GET("/companies/:id", s.getCompany)
		authed.PUT("/companies/:id", s.updateCompany)

		authed.POST("/upload-docket", s.uploadDocket)
		authed.POST("/bulk-process-dockets", s.bulkProcess)
		authed.GET("/bulk-process-dockets", s.bulkStats)
		authed.GET("/delivery-records", s.listRecords)
		authed.GET("/delivery-records/:id", s.getRecord)

		authed.GET("/compliance-alerts", s.listAlerts)
		authed.POST("/compliance-alerts/:id/resolve", s.resolveAlert)
		authed.GET("/suppliers/performance", s.supplierPerformance)

		authed.GET("/team/invite", s.listInvitations)
		authed.POST("/team/invite", s.invite)
		authed.DELETE("/team/invite", s.cancelInvitation)

		authed.GET("/config/configcards", s.getConfigCards)
		authed.POST("/config/configcards", s.saveConfigCards)
		authed.POST("/config/configcards/:id/validate", s.validateCardValues)
		authed.GET("/config/departments", s.listDepartments)
		authed.POST("/config/departments", s.createDepartment)
		authed.DELETE("/config/departments", s.deactivateDepartment)
		authed.GET("/config/job-titles", s.listJobTitles)
		authed.POST("/config/job-titles", s.createJobTitle)
		authed.DELETE("/config/job-titles", s.deactivateJobTitle)

		authed.GET("/champion/success-score", s.successScore)
		authed.GET("/champion/incentives", s.incentives)
		authed.POST("/champion/incentives", s.claimIncentive)
		authed.GET("/champion/invite-owner", s.ownerInvitationStatus)
		authed.POST("/champion/invite-owner", s.inviteOwner)

		authed.GET("/stock/dashboard", s.stockDashboard)
		authed.POST("/stock/items", s.createStockItem)
		authed.POST("/stock/counts", s.recordStockCount)
		authed.POST("/stock/batches", s.addStockBatch)

		authed.GET("/audit-logs", s.auditLogs)
	}
	s.router = r
	return s
}

// Handler returns the root http.Handler.
func (s *Server) Handler() http.Handler { return s.router }

// Run serves on addr until ctx is done, then shuts down within
// shutdownTimeout.
func (s *Server) Run(ctx context.Context, addr string, readTimeout, writeTimeout, shutdownTimeout time.Duration) error {
	srv := &http.Server{
		Addr:         addr,
		Handler:      s.router,
		ReadTimeout:  readTimeout,
		WriteTimeout: writeTimeout,
	}
	errc := make(chan error, 1)
	go func() {
		s.log.Info("http server listening", observability.String("addr", addr))
		errc <- srv.ListenAndServe()
	}()
	select {
	case err := <-errc:
		return err
	case <-ctx.Done():
	}
	shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), shutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return err
	}
	if err := <-errc; !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

func (s *Server) logRequests(c *gin.Context) {
	start := time.Now()
	c.Next()
	s.log.Debug("request",
		observability.String("method", c.Request.Method),
		observability.String("path", c.FullPath()),
		observability.Int("status", c.Writer.Status()),
		observability.Duration("elapsed", time.Since(start)))
}

func bearer(c *gin.Context) string {
	token, ok := strings.CutPrefix(c.GetHeader("Authorization"), "Bearer ")
	if !ok {
		return ""
	}
	return strings.TrimSpace(token)
}

func (s *Server) authenticate(c *gin.Context) {
	user, err := s.Accounts.Resolve(c.Request.Context(), bearer(c))
	if err != nil {
		s.fail(c, err)
		c.Abort()
		return
	}
	c.Set(userKey, user)
	c.Next()
}

func currentUser(c *gin.Context) store.User {
	u, _ := c.MustGet(userKey).(store.User)
	return u
}

// clientID reads the tenant of a request from the clientId query parameter.
func clientID(c *gin.Context) (string, error) {
	id := strings.TrimSpace(c.Query("clientId"))
	if id == "" {
		return "", missing("clientId")
	}
	return id, nil
}

// tenant returns the acting user and company of a tenant-scoped request,
// writing the error response when the company is missing.
func (s *Server) tenant(c *gin.Context) (actorID, companyID string, ok bool) {
	companyID, err := clientID(c)
	if err != nil {
		s.fail(c, err)
		return "", "", false
	}
	return currentUser(c).ID, companyID, true
}

func queryInt(c *gin.Context, key string) int {
	n, err := strconv.Atoi(c.Query(key))
	if err != nil || n < 0 {
		return 0
	}
	return n
}

func (s *Server) bind(c *gin.Context, dst any) bool {
	if err := c.ShouldBindJSON(dst); err != nil {
		s.fail(c, invalid(err))
		return false
	}
	return true
}
