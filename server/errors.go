package server

import (
	"errors"
	"fmt"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/wudi/docketkit/account"
	"github.com/wudi/docketkit/champion"
	"github.com/wudi/docketkit/configcard"
	"github.com/wudi/docketkit/intake"
	"github.com/wudi/docketkit/observability"
	"github.com/wudi/docketkit/pipeline"
	"github.com/wudi/docketkit/security"
	"github.com/wudi/docketkit/store"
	"github.com/wudi/docketkit/team"
)

// ErrorBody is the JSON body of every failed request.
type ErrorBody struct {
	Error   string `json:"error"`
	Details string `json:"details,omitempty"`
}

// errorStatus maps sentinel errors to a status and public message. The first
// match wins, so specific errors come before the store sentinels they may
// wrap.
var errorStatus = []struct {
	err     error
	status  int
	message string
}{
	{intake.ErrNoFiles, http.StatusBadRequest, "No files provided for processing"},
	{pipeline.ErrMissingFields, http.StatusBadRequest, "Missing required fields"},
	{pipeline.ErrInvalidPriority, http.StatusBadRequest, "Invalid processing priority"},
	{security.ErrTooLarge, http.StatusBadRequest, "File too large"},
	{security.ErrUnsupportedType, http.StatusBadRequest, "Unsupported file type"},
	{security.ErrEmptyFile, http.StatusBadRequest, "Empty file"},
	{security.ErrTooManyFiles, http.StatusBadRequest, "Too many files"},
	{configcard.ErrInvalidDefinition, http.StatusBadRequest, "Invalid ConfigCard definitions"},
	{champion.ErrRewardUnavailable, http.StatusBadRequest, "Reward not available or already claimed"},
	{team.ErrInvalidRole, http.StatusBadRequest, "Invalid role"},
	{account.ErrInvalidInput, http.StatusBadRequest, "Invalid request"},
	{account.ErrInvalidCredentials, http.StatusUnauthorized, "Invalid email or password"},
	{account.ErrUnauthorized, http.StatusUnauthorized, "Unauthorized"},
	{account.ErrForbidden, http.StatusForbidden, "Access denied"},
	{team.ErrExpired, http.StatusGone, "Invitation has expired"},
	{team.ErrNotPending, http.StatusGone, "Invitation is no longer pending"},
	{team.ErrAlreadyMember, http.StatusConflict, "User is already a member"},
	{team.ErrPendingInvitation, http.StatusConflict, "Invitation already pending"},
	{champion.ErrOwnerExists, http.StatusConflict, "Owner already has an account"},
	{champion.ErrOwnerInvitePending, http.StatusConflict, "Owner invitation already pending"},
	{account.ErrAccountExists, http.StatusConflict, "Account already exists"},
	{account.ErrDuplicateBusiness, http.StatusConflict, "Business already registered"},
	{store.ErrNotFound, http.StatusNotFound, "Not found"},
	{store.ErrConflict, http.StatusConflict, "Already exists"},
}

// StatusOf returns the HTTP status and public message for err.
func StatusOf(err error) (int, string) {
	for _, e := range errorStatus {
		if errors.Is(err, e.err) {
			return e.status, e.message
		}
	}
	return http.StatusInternalServerError, "Internal server error"
}

func (s *Server) fail(c *gin.Context, err error) {
	status, msg := StatusOf(err)
	if status >= http.StatusInternalServerError {
		s.log.Error("request failed", observability.String("path", c.FullPath()), observability.Err(err))
	}
	c.JSON(status, ErrorBody{Error: msg, Details: err.Error()})
}

func missing(fields string) error {
	return fmt.Errorf("%w: %s", pipeline.ErrMissingFields, fields)
}

func invalid(err error) error {
	return fmt.Errorf("%w: %v", account.ErrInvalidInput, err)
}
