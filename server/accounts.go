package server

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/wudi/docketkit/account"
	"github.com/wudi/docketkit/store"
	"github.com/wudi/docketkit/team"
)

type sessionResponse struct {
	Token     string     `json:"token"`
	ExpiresAt time.Time  `json:"expiresAt"`
	User      store.User `json:"user"`
}

func newSession(sess store.Session, u store.User) sessionResponse {
	return sessionResponse{Token: sess.Token, ExpiresAt: sess.ExpiresAt, User: u}
}

func (s *Server) login(c *gin.Context) {
	var req struct {
		Email    string `json:"email"`
		Password string `json:"password"`
	}
	if !s.bind(c, &req) {
		return
	}
	email, err := account.NormalizeEmail(req.Email)
	if err != nil {
		s.fail(c, err)
		return
	}
	sess, u, err := s.Accounts.Login(c.Request.Context(), email, req.Password)
	if err != nil {
		s.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, newSession(sess, u))
}

func (s *Server) logout(c *gin.Context) {
	if err := s.Accounts.Logout(c.Request.Context(), bearer(c)); err != nil {
		s.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true})
}

func (s *Server) createCompany(c *gin.Context) {
	var req account.Signup
	if !s.bind(c, &req) {
		return
	}
	company, owner, err := s.Accounts.CreateCompany(c.Request.Context(), req)
	if err != nil {
		s.fail(c, err)
		return
	}
	c.JSON(http.StatusCreated, gin.H{"success": true, "company": company, "user": owner})
}

func (s *Server) getCompany(c *gin.Context) {
	company, err := s.Accounts.Company(c.Request.Context(), currentUser(c).ID, c.Param("id"))
	if err != nil {
		s.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, company)
}

func (s *Server) updateCompany(c *gin.Context) {
	var req account.CompanyUpdate
	if !s.bind(c, &req) {
		return
	}
	company, err := s.Accounts.UpdateCompany(c.Request.Context(), currentUser(c).ID, c.Param("id"), req)
	if err != nil {
		s.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true, "company": company})
}

func (s *Server) listInvitations(c *gin.Context) {
	actor, company, ok := s.tenant(c)
	if !ok {
		return
	}
	invs, err := s.Team.List(c.Request.Context(), actor, company)
	if err != nil {
		s.fail(c, err)
		return
	}
	if invs == nil {
		invs = []store.Invitation{}
	}
	c.JSON(http.StatusOK, gin.H{"invitations": invs})
}

func (s *Server) invite(c *gin.Context) {
	var req team.InviteRequest
	if !s.bind(c, &req) {
		return
	}
	inv, link, err := s.Team.Invite(c.Request.Context(), currentUser(c).ID, req)
	if err != nil {
		s.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true, "invitation": inv, "invitationUrl": link})
}

func (s *Server) cancelInvitation(c *gin.Context) {
	actor, company, ok := s.tenant(c)
	if !ok {
		return
	}
	id := c.Query("invitationId")
	if id == "" {
		s.fail(c, missing("invitationId"))
		return
	}
	if err := s.Team.Cancel(c.Request.Context(), actor, company, id); err != nil {
		s.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true})
}

func (s *Server) acceptInvitation(c *gin.Context) {
	var req team.AcceptRequest
	if !s.bind(c, &req) {
		return
	}
	if req.Token == "" {
		s.fail(c, missing("token"))
		return
	}
	u, sess, err := s.Team.Accept(c.Request.Context(), req)
	if err != nil {
		s.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, newSession(sess, u))
}
