package server

import (
	"context"
	"errors"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/MarcoPoloResearchLab/fable/internal/apperr"
	"github.com/MarcoPoloResearchLab/fable/internal/auth"
	"github.com/MarcoPoloResearchLab/fable/internal/collaborators"
	"github.com/MarcoPoloResearchLab/fable/internal/pages"
	"github.com/MarcoPoloResearchLab/fable/internal/users"
)

const userIDContextKey = "fable_user_id"

var (
	errMissingSessionValidator = errors.New("session validator dependency required")
	errMissingUserProvisioner  = errors.New("user provisioner dependency required")
	errMissingPagesService     = errors.New("pages service dependency required")
	errMissingCollabService    = errors.New("collaborators service dependency required")
	errInvalidAuthorization    = errors.New("authorization header missing or invalid")
)

// SessionValidator checks bearer tokens and returns the session claims.
type SessionValidator interface {
	ValidateToken(token string) (auth.SessionClaims, error)
}

// UserProvisioner creates the user row for a first-seen session subject.
type UserProvisioner interface {
	EnsureUser(ctx context.Context, id, username, email string) (users.User, error)
}

// Dependencies wires the HTTP layer to the domain services.
type Dependencies struct {
	Sessions      SessionValidator
	Users         UserProvisioner
	Pages         *pages.Service
	Collaborators *collaborators.Service
	Logger        *zap.Logger
}

// NewHTTPHandler builds the gin router for the Fable API.
func NewHTTPHandler(deps Dependencies) (http.Handler, error) {
	if deps.Sessions == nil {
		return nil, errMissingSessionValidator
	}
	if deps.Users == nil {
		return nil, errMissingUserProvisioner
	}
	if deps.Pages == nil {
		return nil, errMissingPagesService
	}
	if deps.Collaborators == nil {
		return nil, errMissingCollabService
	}

	logger := deps.Logger
	if logger == nil {
		logger = zap.NewNop()
	}

	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(cors.New(cors.Config{
		AllowOrigins: []string{"*"},
		AllowMethods: []string{http.MethodGet, http.MethodPost, http.MethodPatch, http.MethodDelete, http.MethodOptions},
		AllowHeaders: []string{"Authorization", "Content-Type"},
		MaxAge:       12 * time.Hour,
	}))

	handler := &httpHandler{
		sessions:      deps.Sessions,
		users:         deps.Users,
		pages:         deps.Pages,
		collaborators: deps.Collaborators,
		logger:        logger,
	}

	router.GET("/healthz", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})

	router.GET("/works/:workId/pages", handler.handleListPages)
	router.GET("/works/:workId/pages/:pageNumber", handler.handleGetPage)
	router.GET("/works/:workId/collaborators", handler.handleListCollaborators)
	router.GET("/works/:workId/contributors", handler.handleListContributors)

	protected := router.Group("/")
	protected.Use(handler.authorizeRequest)
	protected.POST("/works/:workId/pages", handler.handleCreatePage)
	protected.PATCH("/pages/:id", handler.handleUpdatePage)
	protected.DELETE("/pages/:id", handler.handleDeletePage)
	protected.GET("/works/:workId/contributions", handler.handlePendingContributions)
	protected.POST("/pages/:id/approve", handler.handleApproveContribution)
	protected.DELETE("/pages/:id/reject", handler.handleRejectContribution)
	protected.POST("/works/:workId/collaborators", handler.handleRequestCollaboration)
	protected.POST("/works/:workId/collaborators/:userId/approve", handler.handleApproveCollaborator)
	protected.DELETE("/works/:workId/collaborators/:userId", handler.handleRemoveCollaborator)
	protected.GET("/works/:workId/collaborators/pending", handler.handlePendingRequests)

	return router, nil
}

type httpHandler struct {
	sessions      SessionValidator
	users         UserProvisioner
	pages         *pages.Service
	collaborators *collaborators.Service
	logger        *zap.Logger
}

type authorPayload struct {
	ID        string    `json:"id"`
	Username  string    `json:"username"`
	Email     string    `json:"email"`
	CreatedAt time.Time `json:"createdAt"`
}

type pagePayload struct {
	ID         string        `json:"id"`
	WorkID     string        `json:"workId"`
	AuthorID   string        `json:"authorId"`
	Content    string        `json:"content"`
	PageNumber *int          `json:"pageNumber"`
	Status     string        `json:"status"`
	ApprovedAt *time.Time    `json:"approvedAt"`
	CreatedAt  time.Time     `json:"createdAt"`
	Author     authorPayload `json:"author"`
}

type collaboratorPayload struct {
	WorkID     string        `json:"workId"`
	UserID     string        `json:"userId"`
	ApprovedAt *time.Time    `json:"approvedAt"`
	CreatedAt  time.Time     `json:"createdAt"`
	User       authorPayload `json:"user"`
}

type contributorPayload struct {
	UserID    string `json:"userId"`
	Username  string `json:"username"`
	PageCount int    `json:"pageCount"`
}

type contentPayload struct {
	Content string `json:"content" binding:"required"`
}

func toAuthorPayload(profile users.Profile) authorPayload {
	return authorPayload{
		ID:        profile.ID,
		Username:  profile.Username,
		Email:     profile.Email,
		CreatedAt: profile.CreatedAt,
	}
}

func toPagePayload(page pages.PageWithAuthor) pagePayload {
	return pagePayload{
		ID:         page.Page.ID,
		WorkID:     page.Page.WorkID,
		AuthorID:   page.Page.AuthorID,
		Content:    page.Page.Content,
		PageNumber: page.Page.PageNumber,
		Status:     string(page.Page.Status),
		ApprovedAt: page.Page.ApprovedAt,
		CreatedAt:  page.Page.CreatedAt,
		Author:     toAuthorPayload(page.Author),
	}
}

func toPagePayloads(rows []pages.PageWithAuthor) []pagePayload {
	payloads := make([]pagePayload, 0, len(rows))
	for _, row := range rows {
		payloads = append(payloads, toPagePayload(row))
	}
	return payloads
}

func toCollaboratorPayload(row collaborators.CollaboratorWithUser) collaboratorPayload {
	return collaboratorPayload{
		WorkID:     row.Collaborator.WorkID,
		UserID:     row.Collaborator.UserID,
		ApprovedAt: row.Collaborator.ApprovedAt,
		CreatedAt:  row.Collaborator.CreatedAt,
		User:       toAuthorPayload(row.User),
	}
}

func toCollaboratorPayloads(rows []collaborators.CollaboratorWithUser) []collaboratorPayload {
	payloads := make([]collaboratorPayload, 0, len(rows))
	for _, row := range rows {
		payloads = append(payloads, toCollaboratorPayload(row))
	}
	return payloads
}

func (h *httpHandler) handleCreatePage(c *gin.Context) {
	var request contentPayload
	if err := c.ShouldBindJSON(&request); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid_request"})
		return
	}

	page, err := h.pages.Create(c.Request.Context(), c.Param("workId"), h.actorID(c), request.Content)
	if err != nil {
		h.renderError(c, err, "page creation failed")
		return
	}
	c.JSON(http.StatusCreated, toPagePayload(page))
}

func (h *httpHandler) handleListPages(c *gin.Context) {
	rows, err := h.pages.FindAll(c.Request.Context(), c.Param("workId"))
	if err != nil {
		h.renderError(c, err, "page listing failed")
		return
	}
	c.JSON(http.StatusOK, toPagePayloads(rows))
}

func (h *httpHandler) handleGetPage(c *gin.Context) {
	pageNumber, err := strconv.Atoi(c.Param("pageNumber"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid_page_number"})
		return
	}

	page, err := h.pages.FindOne(c.Request.Context(), c.Param("workId"), pageNumber)
	if err != nil {
		h.renderError(c, err, "page lookup failed")
		return
	}
	c.JSON(http.StatusOK, toPagePayload(page))
}

func (h *httpHandler) handleUpdatePage(c *gin.Context) {
	var request contentPayload
	if err := c.ShouldBindJSON(&request); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid_request"})
		return
	}

	page, err := h.pages.Update(c.Request.Context(), c.Param("id"), h.actorID(c), request.Content)
	if err != nil {
		h.renderError(c, err, "page update failed")
		return
	}
	c.JSON(http.StatusOK, toPagePayload(page))
}

func (h *httpHandler) handleDeletePage(c *gin.Context) {
	if err := h.pages.Remove(c.Request.Context(), c.Param("id"), h.actorID(c)); err != nil {
		h.renderError(c, err, "page deletion failed")
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "Page deleted successfully"})
}

func (h *httpHandler) handlePendingContributions(c *gin.Context) {
	rows, err := h.pages.GetPendingContributions(c.Request.Context(), c.Param("workId"), h.actorID(c))
	if err != nil {
		h.renderError(c, err, "pending contribution listing failed")
		return
	}
	c.JSON(http.StatusOK, toPagePayloads(rows))
}

func (h *httpHandler) handleApproveContribution(c *gin.Context) {
	page, err := h.pages.ApproveContribution(c.Request.Context(), c.Param("id"), h.actorID(c))
	if err != nil {
		h.renderError(c, err, "contribution approval failed")
		return
	}
	c.JSON(http.StatusCreated, toPagePayload(page))
}

func (h *httpHandler) handleRejectContribution(c *gin.Context) {
	if err := h.pages.RejectContribution(c.Request.Context(), c.Param("id"), h.actorID(c)); err != nil {
		h.renderError(c, err, "contribution rejection failed")
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "Contribution rejected successfully"})
}

func (h *httpHandler) handleListContributors(c *gin.Context) {
	rows, err := h.pages.GetCollaborators(c.Request.Context(), c.Param("workId"))
	if err != nil {
		h.renderError(c, err, "contributor listing failed")
		return
	}
	payloads := make([]contributorPayload, 0, len(rows))
	for _, row := range rows {
		payloads = append(payloads, contributorPayload{
			UserID:    row.UserID,
			Username:  row.Username,
			PageCount: row.PageCount,
		})
	}
	c.JSON(http.StatusOK, payloads)
}

func (h *httpHandler) handleRequestCollaboration(c *gin.Context) {
	row, err := h.collaborators.RequestCollaboration(c.Request.Context(), c.Param("workId"), h.actorID(c))
	if err != nil {
		h.renderError(c, err, "collaboration request failed")
		return
	}
	c.JSON(http.StatusCreated, toCollaboratorPayload(row))
}

func (h *httpHandler) handleApproveCollaborator(c *gin.Context) {
	row, err := h.collaborators.ApproveCollaborator(c.Request.Context(), c.Param("workId"), c.Param("userId"), h.actorID(c))
	if err != nil {
		h.renderError(c, err, "collaborator approval failed")
		return
	}
	c.JSON(http.StatusOK, toCollaboratorPayload(row))
}

func (h *httpHandler) handleRemoveCollaborator(c *gin.Context) {
	if err := h.collaborators.RemoveCollaborator(c.Request.Context(), c.Param("workId"), c.Param("userId"), h.actorID(c)); err != nil {
		h.renderError(c, err, "collaborator removal failed")
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "Collaborator removed successfully"})
}

func (h *httpHandler) handleListCollaborators(c *gin.Context) {
	rows, err := h.collaborators.GetCollaborators(c.Request.Context(), c.Param("workId"))
	if err != nil {
		h.renderError(c, err, "collaborator listing failed")
		return
	}
	c.JSON(http.StatusOK, toCollaboratorPayloads(rows))
}

func (h *httpHandler) handlePendingRequests(c *gin.Context) {
	rows, err := h.collaborators.GetPendingRequests(c.Request.Context(), c.Param("workId"), h.actorID(c))
	if err != nil {
		h.renderError(c, err, "pending request listing failed")
		return
	}
	c.JSON(http.StatusOK, toCollaboratorPayloads(rows))
}

func (h *httpHandler) authorizeRequest(c *gin.Context) {
	header := c.GetHeader("Authorization")
	if !strings.HasPrefix(header, "Bearer ") {
		c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": errInvalidAuthorization.Error()})
		return
	}
	token := strings.TrimSpace(strings.TrimPrefix(header, "Bearer "))
	if token == "" {
		c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": errInvalidAuthorization.Error()})
		return
	}

	claims, err := h.sessions.ValidateToken(token)
	if err != nil {
		h.logger.Warn("token validation failed", zap.Error(err))
		c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
		return
	}

	if _, err := h.users.EnsureUser(c.Request.Context(), claims.Subject, claims.Username, claims.Email); err != nil {
		h.logger.Error("user provisioning failed", zap.Error(err), zap.String("user_id", claims.Subject))
		c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": "internal_error"})
		return
	}

	c.Set(userIDContextKey, claims.Subject)
	c.Next()
}

func (h *httpHandler) actorID(c *gin.Context) string {
	return c.GetString(userIDContextKey)
}

// renderError maps domain error categories onto HTTP statuses; anything
// uncategorized is an internal failure and is logged, not exposed.
func (h *httpHandler) renderError(c *gin.Context, err error, logMessage string) {
	var domainErr *apperr.Error
	if errors.As(err, &domainErr) {
		c.JSON(statusForKind(domainErr.Kind()), gin.H{"message": domainErr.Message()})
		return
	}
	h.logger.Error(logMessage, zap.Error(err))
	c.JSON(http.StatusInternalServerError, gin.H{"error": "internal_error"})
}

func statusForKind(kind apperr.Kind) int {
	switch kind {
	case apperr.KindNotFound:
		return http.StatusNotFound
	case apperr.KindForbidden:
		return http.StatusForbidden
	case apperr.KindConflict:
		return http.StatusConflict
	case apperr.KindBadRequest:
		return http.StatusBadRequest
	default:
		return http.StatusInternalServerError
	}
}
