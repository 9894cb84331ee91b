package server

import (
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/wudi/docketkit/account"
	"github.com/wudi/docketkit/intake"
	"github.com/wudi/docketkit/pipeline"
	"github.com/wudi/docketkit/store"
	"github.com/wudi/docketkit/streaming"
)

// DefaultListLimit bounds record and audit listings without a limit.
const DefaultListLimit = 100

func formClient(c *gin.Context) string {
	if id := strings.TrimSpace(c.PostForm("clientId")); id != "" {
		return id
	}
	return strings.TrimSpace(c.Query("clientId"))
}

func (s *Server) uploadDocket(c *gin.Context) {
	ctx := c.Request.Context()
	actor := currentUser(c).ID
	company := formClient(c)
	fh, err := c.FormFile("file")
	if company == "" || err != nil {
		s.fail(c, missing("file, clientId"))
		return
	}
	if _, err := s.Accounts.Authorize(ctx, company, actor); err != nil {
		s.fail(c, err)
		return
	}
	f, err := intake.FromHeader("file", fh, s.Limits.MaxFileSize)
	if err != nil {
		s.fail(c, err)
		return
	}
	res, err := s.Processor.ProcessOne(ctx, pipeline.SingleRequest{ClientID: company, UserID: actor, File: f})
	if err != nil {
		s.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, res)
}

func (s *Server) bulkProcess(c *gin.Context) {
	ctx := c.Request.Context()
	actor := currentUser(c).ID
	company := formClient(c)
	userID := strings.TrimSpace(c.PostForm("userId"))
	if company == "" || userID == "" {
		s.fail(c, missing("clientId or userId"))
		return
	}
	if userID != actor {
		s.fail(c, account.ErrForbidden)
		return
	}
	if _, err := s.Accounts.Authorize(ctx, company, actor); err != nil {
		s.fail(c, err)
		return
	}
	priority, err := pipeline.ParsePriority(c.PostForm("processingPriority"))
	if err != nil {
		s.fail(c, err)
		return
	}
	batchSize, _ := strconv.Atoi(c.PostForm("batchSize"))
	form, err := c.MultipartForm()
	if err != nil {
		s.fail(c, intake.ErrNoFiles)
		return
	}
	files, err := intake.FromMultipart(form, intake.BulkFieldPrefix, s.Limits)
	if err != nil {
		s.fail(c, err)
		return
	}
	req := pipeline.Request{ClientID: company, UserID: actor, Files: files, Priority: priority, BatchSize: batchSize}
	if c.Query("stream") == "true" {
		s.streamBulk(c, req)
		return
	}
	sum, err := s.Processor.Process(ctx, req)
	if err != nil {
		s.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"success": true,
		"message": fmt.Sprintf("Bulk processing completed: %d/%d files processed successfully", sum.Processed, sum.Total),
		"results": sum,
	})
}

// streamBulk runs req and reports progress as server-sent events, ending
// with a summary event.
func (s *Server) streamBulk(c *gin.Context, req pipeline.Request) {
	stream := streaming.NewStream(64)
	req.Stream = stream
	var (
		sum    pipeline.Summary
		runErr error
	)
	go func() {
		defer stream.Close()
		sum, runErr = s.Processor.Process(c.Request.Context(), req)
	}()
	c.Header("Cache-Control", "no-cache")
	for ev := range stream.Events() {
		c.SSEvent(eventName(ev), ev)
		c.Writer.Flush()
	}
	if runErr != nil {
		_, msg := StatusOf(runErr)
		c.SSEvent("error", ErrorBody{Error: msg, Details: runErr.Error()})
		return
	}
	c.SSEvent("summary", sum)
}

func eventName(ev streaming.Event) string {
	switch ev.Type() {
	case streaming.EventRunStart:
		return "run_start"
	case streaming.EventBatchStart:
		return "batch_start"
	case streaming.EventFileDone:
		return "file_done"
	case streaming.EventBatchDone:
		return "batch_done"
	case streaming.EventRunDone:
		return "run_done"
	}
	return "event"
}

func (s *Server) bulkStats(c *gin.Context) {
	actor, company, ok := s.tenant(c)
	if !ok {
		return
	}
	ctx := c.Request.Context()
	if _, err := s.Accounts.Authorize(ctx, company, actor); err != nil {
		s.fail(c, err)
		return
	}
	stats, recent, err := s.Processor.Stats(ctx, company)
	if err != nil {
		s.fail(c, err)
		return
	}
	if recent == nil {
		recent = []store.DeliveryRecord{}
	}
	c.JSON(http.StatusOK, gin.H{"stats": stats, "recentUploads": recent})
}

func (s *Server) listRecords(c *gin.Context) {
	actor, company, ok := s.tenant(c)
	if !ok {
		return
	}
	ctx := c.Request.Context()
	if _, err := s.Accounts.Authorize(ctx, company, actor); err != nil {
		s.fail(c, err)
		return
	}
	limit := queryInt(c, "limit")
	if limit == 0 {
		limit = DefaultListLimit
	}
	records, err := s.Store.ListDeliveryRecords(ctx, store.RecordFilter{
		ClientID: company,
		BulkOnly: c.Query("bulk") == "true",
		Status:   c.Query("status"),
		Supplier: c.Query("supplier"),
		Limit:    limit,
	})
	if err != nil {
		s.fail(c, err)
		return
	}
	if records == nil {
		records = []store.DeliveryRecord{}
	}
	c.JSON(http.StatusOK, gin.H{"records": records})
}

func (s *Server) getRecord(c *gin.Context) {
	actor, company, ok := s.tenant(c)
	if !ok {
		return
	}
	ctx := c.Request.Context()
	if _, err := s.Accounts.Authorize(ctx, company, actor); err != nil {
		s.fail(c, err)
		return
	}
	rec, err := s.Store.GetDeliveryRecord(ctx, company, c.Param("id"))
	if err != nil {
		s.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, rec)
}

func (s *Server) listAlerts(c *gin.Context) {
	actor, company, ok := s.tenant(c)
	if !ok {
		return
	}
	alerts, err := s.Compliance.Alerts(c.Request.Context(), actor, company, c.Query("all") != "true", queryInt(c, "limit"))
	if err != nil {
		s.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true, "data": alerts})
}

func (s *Server) resolveAlert(c *gin.Context) {
	actor, company, ok := s.tenant(c)
	if !ok {
		return
	}
	if err := s.Compliance.Resolve(c.Request.Context(), actor, company, c.Param("id")); err != nil {
		s.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true})
}

// supplierPerformance covers the last ?days= days, or all history.
func (s *Server) supplierPerformance(c *gin.Context) {
	actor, company, ok := s.tenant(c)
	if !ok {
		return
	}
	var since time.Time
	if days := queryInt(c, "days"); days > 0 {
		since = s.Store.Now().AddDate(0, 0, -days)
	}
	perf, err := s.Compliance.SupplierPerformance(c.Request.Context(), actor, company, since)
	if err != nil {
		s.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"suppliers": perf})
}

func (s *Server) auditLogs(c *gin.Context) {
	actor, company, ok := s.tenant(c)
	if !ok {
		return
	}
	ctx := c.Request.Context()
	if _, err := s.Accounts.Authorize(ctx, company, actor, account.RoleOwner, account.RoleAdmin, account.RoleManager); err != nil {
		s.fail(c, err)
		return
	}
	limit := queryInt(c, "limit")
	if limit == 0 {
		limit = DefaultListLimit
	}
	logs, err := s.Audit.List(ctx, company, c.Query("action"), limit)
	if err != nil {
		s.fail(c, err)
		return
	}
	if logs == nil {
		logs = []store.AuditLog{}
	}
	c.JSON(http.StatusOK, gin.H{"logs": logs})
}
