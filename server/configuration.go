package server

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/wudi/docketkit/champion"
	"github.com/wudi/docketkit/configcard"
	"github.com/wudi/docketkit/stock"
	"github.com/wudi/docketkit/store"
)

func (s *Server) getConfigCards(c *gin.Context) {
	actor, company, ok := s.tenant(c)
	if !ok {
		return
	}
	defs, err := s.ConfigCards.Get(c.Request.Context(), actor, company)
	if err != nil {
		s.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, defs)
}

func (s *Server) saveConfigCards(c *gin.Context) {
	actor, company, ok := s.tenant(c)
	if !ok {
		return
	}
	var cards []configcard.Card
	if !s.bind(c, &cards) {
		return
	}
	defs, err := s.ConfigCards.Save(c.Request.Context(), actor, company, cards)
	if err != nil {
		s.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true, "configCards": defs.Cards, "updatedAt": defs.UpdatedAt})
}

func (s *Server) validateCardValues(c *gin.Context) {
	actor, company, ok := s.tenant(c)
	if !ok {
		return
	}
	var values map[string]any
	if !s.bind(c, &values) {
		return
	}
	problems, err := s.ConfigCards.ValidateValues(c.Request.Context(), actor, company, c.Param("id"), values)
	if err != nil {
		s.fail(c, err)
		return
	}
	if problems == nil {
		problems = []configcard.FieldError{}
	}
	c.JSON(http.StatusOK, gin.H{"valid": len(problems) == 0, "errors": problems})
}

func (s *Server) listDepartments(c *gin.Context) {
	actor, company, ok := s.tenant(c)
	if !ok {
		return
	}
	deps, err := s.ConfigCards.Departments(c.Request.Context(), actor, company)
	if err != nil {
		s.fail(c, err)
		return
	}
	if deps == nil {
		deps = []store.Department{}
	}
	c.JSON(http.StatusOK, gin.H{"departments": deps})
}

func (s *Server) createDepartment(c *gin.Context) {
	actor, company, ok := s.tenant(c)
	if !ok {
		return
	}
	var req struct {
		Name        string `json:"name"`
		Description string `json:"description"`
	}
	if !s.bind(c, &req) {
		return
	}
	d, err := s.ConfigCards.CreateDepartment(c.Request.Context(), actor, company, req.Name, req.Description)
	if err != nil {
		s.fail(c, err)
		return
	}
	c.JSON(http.StatusCreated, gin.H{"department": d})
}

func (s *Server) deactivateDepartment(c *gin.Context) {
	actor, company, ok := s.tenant(c)
	if !ok {
		return
	}
	id := c.Query("id")
	if id == "" {
		s.fail(c, missing("id"))
		return
	}
	if err := s.ConfigCards.DeactivateDepartment(c.Request.Context(), actor, company, id); err != nil {
		s.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true})
}

func (s *Server) listJobTitles(c *gin.Context) {
	actor, company, ok := s.tenant(c)
	if !ok {
		return
	}
	titles, err := s.ConfigCards.JobTitles(c.Request.Context(), actor, company)
	if err != nil {
		s.fail(c, err)
		return
	}
	if titles == nil {
		titles = []store.JobTitle{}
	}
	c.JSON(http.StatusOK, gin.H{"jobTitles": titles})
}

func (s *Server) createJobTitle(c *gin.Context) {
	actor, company, ok := s.tenant(c)
	if !ok {
		return
	}
	var req configcard.JobTitleRequest
	if !s.bind(c, &req) {
		return
	}
	j, err := s.ConfigCards.CreateJobTitle(c.Request.Context(), actor, company, req)
	if err != nil {
		s.fail(c, err)
		return
	}
	c.JSON(http.StatusCreated, gin.H{"jobTitle": j})
}

func (s *Server) deactivateJobTitle(c *gin.Context) {
	actor, company, ok := s.tenant(c)
	if !ok {
		return
	}
	id := c.Query("id")
	if id == "" {
		s.fail(c, missing("id"))
		return
	}
	if err := s.ConfigCards.DeactivateJobTitle(c.Request.Context(), actor, company, id); err != nil {
		s.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true})
}

func (s *Server) successScore(c *gin.Context) {
	actor, company, ok := s.tenant(c)
	if !ok {
		return
	}
	score, err := s.Champion.SuccessScore(c.Request.Context(), actor, company)
	if err != nil {
		s.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, score)
}

func (s *Server) incentives(c *gin.Context) {
	actor, company, ok := s.tenant(c)
	if !ok {
		return
	}
	inc, err := s.Champion.Incentives(c.Request.Context(), actor, company)
	if err != nil {
		s.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, inc)
}

func (s *Server) claimIncentive(c *gin.Context) {
	actor, company, ok := s.tenant(c)
	if !ok {
		return
	}
	var req champion.ClaimRequest
	if !s.bind(c, &req) {
		return
	}
	reward, err := s.Champion.Claim(c.Request.Context(), actor, company, req)
	if err != nil {
		s.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true, "reward": reward})
}

func (s *Server) ownerInvitationStatus(c *gin.Context) {
	actor, company, ok := s.tenant(c)
	if !ok {
		return
	}
	status, err := s.Champion.OwnerInvitationStatus(c.Request.Context(), actor, company)
	if err != nil {
		s.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, status)
}

func (s *Server) inviteOwner(c *gin.Context) {
	actor, company, ok := s.tenant(c)
	if !ok {
		return
	}
	var req champion.OwnerInviteRequest
	if !s.bind(c, &req) {
		return
	}
	inv, sent, err := s.Champion.InviteOwner(c.Request.Context(), actor, company, req)
	if err != nil {
		s.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true, "invitation": inv, "emailSent": sent})
}

func (s *Server) stockDashboard(c *gin.Context) {
	actor, company, ok := s.tenant(c)
	if !ok {
		return
	}
	d, err := s.Stock.Dashboard(c.Request.Context(), actor, company)
	if err != nil {
		s.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, d)
}

func (s *Server) createStockItem(c *gin.Context) {
	actor, company, ok := s.tenant(c)
	if !ok {
		return
	}
	var req stock.ItemRequest
	if !s.bind(c, &req) {
		return
	}
	item, err := s.Stock.CreateItem(c.Request.Context(), actor, company, req)
	if err != nil {
		s.fail(c, err)
		return
	}
	c.JSON(http.StatusCreated, gin.H{"item": item})
}

func (s *Server) recordStockCount(c *gin.Context) {
	actor, company, ok := s.tenant(c)
	if !ok {
		return
	}
	var req stock.CountRequest
	if !s.bind(c, &req) {
		return
	}
	count, err := s.Stock.RecordCount(c.Request.Context(), actor, company, req)
	if err != nil {
		s.fail(c, err)
		return
	}
	c.JSON(http.StatusCreated, gin.H{"count": count})
}

func (s *Server) addStockBatch(c *gin.Context) {
	actor, company, ok := s.tenant(c)
	if !ok {
		return
	}
	var req stock.BatchRequest
	if !s.bind(c, &req) {
		return
	}
	batch, err := s.Stock.AddBatch(c.Request.Context(), actor, company, req)
	if err != nil {
		s.fail(c, err)
		return
	}
	c.JSON(http.StatusCreated, gin.H{"batch": batch})
}
