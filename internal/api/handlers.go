package api

import (
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"attendo/internal/attendance"
	"attendo/internal/auth"
)

var errAdminSignup = errors.New("admin identities can only be created by an admin")

type sessionResponse struct {
	Identity auth.Identity  `json:"identity"`
	Tokens   auth.TokenPair `json:"tokens"`
}

func (s *Server) issue(c *gin.Context, status int, ident auth.Identity) {
	tokens, err := auth.Issue(ident, s.cfg.JWTIssuer, s.cfg.JWTSigningKey, s.cfg.AccessTTL, s.cfg.RefreshTTL)
	if err != nil {
		s.logger.Error("token issue failed", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "token issue failed"})
		return
	}
	c.JSON(status, sessionResponse{Identity: ident, Tokens: tokens})
}

func (s *Server) register(c *gin.Context) {
	var req struct {
		Email    string `json:"email" binding:"required"`
		Password string `json:"password" binding:"required"`
		Name     string `json:"name"`
		Role     string `json:"role"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	role := auth.Role(strings.ToLower(req.Role))
	if role == "" {
		role = auth.RoleStudent
	}
	if role == auth.RoleAdmin && !s.cfg.AllowAdminSignup && !s.callerIsAdmin(c) {
		s.fail(c, errAdminSignup)
		return
	}

	ident, err := s.dir.Create(c.Request.Context(), req.Email, req.Password, req.Name, role)
	if err != nil {
		s.fail(c, err)
		return
	}
	s.logger.Info("identity registered", zap.String("identity_id", ident.ID), zap.String("role", string(ident.Role)))
	s.issue(c, http.StatusCreated, ident)
}

// callerIsAdmin reports whether the request carries a valid admin access token.
func (s *Server) callerIsAdmin(c *gin.Context) bool {
	token, ok := auth.BearerToken(c.GetHeader("Authorization"))
	if !ok {
		return false
	}
	claims, err := auth.Parse(token, s.cfg.JWTSigningKey, s.cfg.JWTIssuer, auth.KindAccess)
	if err != nil {
		return false
	}
	ident, err := s.dir.Lookup(c.Request.Context(), claims.Subject)
	return err == nil && ident.IsAdmin()
}

func (s *Server) login(c *gin.Context) {
	var req struct {
		Email    string `json:"email" binding:"required"`
		Password string `json:"password" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	ident, err := s.dir.Authenticate(c.Request.Context(), req.Email, req.Password)
	if err != nil {
		s.fail(c, err)
		return
	}
	s.issue(c, http.StatusOK, ident)
}

func (s *Server) refresh(c *gin.Context) {
	var req struct {
		RefreshToken string `json:"refresh_token" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	claims, err := auth.Parse(req.RefreshToken, s.cfg.JWTSigningKey, s.cfg.JWTIssuer, auth.KindRefresh)
	if err != nil {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "invalid refresh token"})
		return
	}
	ident, err := s.dir.Lookup(c.Request.Context(), claims.Subject)
	if err != nil {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "unknown identity"})
		return
	}
	s.issue(c, http.StatusOK, ident)
}

func (s *Server) me(c *gin.Context) {
	ident, _ := auth.FromContext(c)
	c.JSON(http.StatusOK, gin.H{"identity": ident})
}

func (s *Server) mark(c *gin.Context) {
	var req struct {
		Type       string     `json:"type" binding:"required"`
		Notes      string     `json:"notes"`
		Latitude   *float64   `json:"latitude"`
		Longitude  *float64   `json:"longitude"`
		CapturedAt *time.Time `json:"captured_at"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	typ, err := attendance.ParseType(req.Type)
	if err != nil {
		s.fail(c, err)
		return
	}

	ident, _ := auth.FromContext(c)
	rec, err := s.svc.Mark(c.Request.Context(), auth.Bound{Identity: ident}, locatorFor(req.Latitude, req.Longitude, req.CapturedAt), typ, req.Notes)
	if err != nil {
		s.fail(c, err)
		return
	}
	c.JSON(http.StatusCreated, gin.H{"record": rec})
}

func (s *Server) records(c *gin.Context) {
	ident, _ := auth.FromContext(c)
	records, err := s.svc.RecordsFor(c.Request.Context(), ident)
	if err != nil {
		s.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"records": nonNil(records)})
}

func (s *Server) today(c *gin.Context) {
	ident, _ := auth.FromContext(c)
	records, err := s.svc.TodayRecords(c.Request.Context(), ident)
	if err != nil {
		s.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"records": nonNil(records)})
}

func (s *Server) stats(c *gin.Context) {
	ident, _ := auth.FromContext(c)
	stats, err := s.svc.Stats(c.Request.Context(), ident)
	if err != nil {
		s.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, stats)
}

func (s *Server) identities(c *gin.Context) {
	all, err := s.dir.List(c.Request.Context())
	if err != nil {
		s.fail(c, err)
		return
	}
	if all == nil {
		all = []auth.Identity{}
	}
	c.JSON(http.StatusOK, gin.H{"identities": all})
}

func (s *Server) audit(c *gin.Context) {
	if s.auditor == nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "audit trail not configured"})
		return
	}
	day := time.Now().In(s.svc.Location())
	if v := c.Query("day"); v != "" {
		parsed, err := time.ParseInLocation(time.DateOnly, v, s.svc.Location())
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "day must be YYYY-MM-DD"})
			return
		}
		day = parsed
	}
	entries, err := s.auditor.Entries(c.Request.Context(), day)
	if err != nil {
		s.fail(c, err)
		return
	}
	if entries == nil {
		entries = []attendance.AuditEntry{}
	}
	c.JSON(http.StatusOK, gin.H{"day": day.Format(time.DateOnly), "entries": entries})
}

func (s *Server) auditDays(c *gin.Context) {
	if s.auditor == nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "audit trail not configured"})
		return
	}
	days, err := s.auditor.Days(c.Request.Context())
	if err != nil {
		s.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"days": days})
}

func nonNil(records []attendance.Record) []attendance.Record {
	if records == nil {
		return []attendance.Record{}
	}
	return records
}
