package httpapi

import (
	"net/http"
	"strconv"
	"time"

	"github.com/labstack/echo/v4"
	"go.uber.org/zap"

	"github.com/ledgerline/workassist/internal/ingest"
	"github.com/ledgerline/workassist/internal/semindex"
	"github.com/ledgerline/workassist/internal/store"
)

// ProjectRequest is the body for creating or updating a project. Absent
// fields leave the current value unchanged on update.
type ProjectRequest struct {
	Name        *string `json:"name"`
	Company     *string `json:"company"`
	Description *string `json:"description"`
	Status      *string `json:"status"`
}

func (s *Server) handleListProjects(c echo.Context) error {
	projects, err := s.store.ListProjects(c.Request().Context())
	if err != nil {
		return httpError(err)
	}
	if projects == nil {
		projects = []store.Project{}
	}
	return c.JSON(http.StatusOK, projects)
}

func (s *Server) handleCreateProject(c echo.Context) error {
	var req ProjectRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}
	if req.Name == nil || *req.Name == "" {
		return echo.NewHTTPError(http.StatusBadRequest, "name is required")
	}

	project := &store.Project{Name: *req.Name}
	if req.Company != nil {
		project.Company = *req.Company
	}
	if req.Description != nil {
		project.Description = *req.Description
	}
	if req.Status != nil {
		project.Status = *req.Status
	}

	created, err := s.store.CreateProject(c.Request().Context(), project)
	if err != nil {
		return httpError(err)
	}
	return c.JSON(http.StatusCreated, created)
}

func (s *Server) handleGetProject(c echo.Context) error {
	project, err := s.store.GetProject(c.Request().Context(), c.Param("id"))
	if err != nil {
		return httpError(err)
	}
	return c.JSON(http.StatusOK, project)
}

func (s *Server) handleUpdateProject(c echo.Context) error {
	var req ProjectRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}

	project, err := s.store.UpdateProject(c.Request().Context(), c.Param("id"), store.ProjectUpdate{
		Name:        req.Name,
		Company:     req.Company,
		Description: req.Description,
		Status:      req.Status,
	})
	if err != nil {
		return httpError(err)
	}
	return c.JSON(http.StatusOK, project)
}

func (s *Server) handleDeleteProject(c echo.Context) error {
	ctx := c.Request().Context()
	id := c.Param("id")

	owned, err := s.store.DeleteProject(ctx, id)
	if err != nil {
		return httpError(err)
	}

	// The rows are gone; drop their index entries so nothing dangles.
	for kind, ids := range map[semindex.Kind][]string{
		semindex.KindEmail:        owned.EmailIDs,
		semindex.KindStatusUpdate: owned.StatusUpdateIDs,
		semindex.KindDeliverable:  owned.DeliverableIDs,
	} {
		for _, entityID := range ids {
			if err := s.index.Delete(ctx, kind, entityID); err != nil {
				s.logger.Warn("index entry deletion failed",
					zap.String("kind", string(kind)),
					zap.String("entity_id", entityID),
					zap.Error(err))
			}
		}
	}

	return c.JSON(http.StatusOK, map[string]string{"message": "project deleted"})
}

// EmailRequest is the body for POST /api/work/emails/process.
type EmailRequest struct {
	Subject      string   `json:"subject"`
	Sender       string   `json:"sender"`
	Recipients   []string `json:"recipients"`
	CC           []string `json:"cc"`
	Content      string   `json:"content"`
	ReceivedDate string   `json:"received_date"`
}

func (s *Server) handleProcessEmail(c echo.Context) error {
	var req EmailRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}

	input := ingest.EmailInput{
		Subject:    req.Subject,
		Sender:     req.Sender,
		Recipients: req.Recipients,
		CC:         req.CC,
		Content:    req.Content,
	}
	if req.ReceivedDate != "" {
		received, err := parseDate(req.ReceivedDate)
		if err != nil {
			return echo.NewHTTPError(http.StatusBadRequest, "invalid received_date")
		}
		input.ReceivedDate = &received
	}

	receipt, err := s.coordinator.ProcessEmail(c.Request().Context(), input)
	if err != nil {
		return httpError(err)
	}
	return c.JSON(http.StatusCreated, receipt)
}

func (s *Server) handleListEmails(c echo.Context) error {
	filter := store.EmailFilter{
		ProjectID:  c.QueryParam("project_id"),
		Importance: c.QueryParam("importance"),
	}
	if limit := c.QueryParam("limit"); limit != "" {
		n, err := strconv.Atoi(limit)
		if err != nil || n < 1 {
			return echo.NewHTTPError(http.StatusBadRequest, "invalid limit")
		}
		filter.Limit = n
	}

	emails, err := s.store.ListEmails(c.Request().Context(), filter)
	if err != nil {
		return httpError(err)
	}
	if emails == nil {
		emails = []*store.Email{}
	}
	return c.JSON(http.StatusOK, emails)
}

func (s *Server) handleCreateStatusUpdate(c echo.Context) error {
	var input ingest.StatusInput
	if err := c.Bind(&input); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}

	receipt, err := s.coordinator.ProcessStatusUpdate(c.Request().Context(), input)
	if err != nil {
		return httpError(err)
	}
	return c.JSON(http.StatusCreated, receipt)
}

func (s *Server) handleListStatusUpdates(c echo.Context) error {
	projectID := c.Param("projectID")
	if _, err := s.store.GetProject(c.Request().Context(), projectID); err != nil {
		return httpError(err)
	}

	updates, err := s.store.ListStatusUpdates(c.Request().Context(), projectID)
	if err != nil {
		return httpError(err)
	}
	if updates == nil {
		updates = []*store.StatusUpdate{}
	}
	return c.JSON(http.StatusOK, updates)
}

// DeliverableRequest is the body for POST /api/work/deliverables.
type DeliverableRequest struct {
	ProjectID   string `json:"project_id"`
	Title       string `json:"title"`
	Description string `json:"description"`
	DueDate     string `json:"due_date"`
	Status      string `json:"status"`
	Priority    string `json:"priority"`
	AssignedTo  string `json:"assigned_to"`
}

func (s *Server) handleListDeliverables(c echo.Context) error {
	filter := store.DeliverableFilter{
		ProjectID: c.QueryParam("project_id"),
		Status:    c.QueryParam("status"),
	}
	if days := c.QueryParam("upcoming_days"); days != "" {
		n, err := strconv.Atoi(days)
		if err != nil || n < 1 {
			return echo.NewHTTPError(http.StatusBadRequest, "invalid upcoming_days")
		}
		filter.DueWithinDays = n
	}

	deliverables, err := s.store.ListDeliverables(c.Request().Context(), filter)
	if err != nil {
		return httpError(err)
	}
	if deliverables == nil {
		deliverables = []*store.Deliverable{}
	}
	return c.JSON(http.StatusOK, deliverables)
}

func (s *Server) handleCreateDeliverable(c echo.Context) error {
	var req DeliverableRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}
	ctx := c.Request().Context()

	project, err := s.store.GetProject(ctx, req.ProjectID)
	if err != nil {
		return httpError(err)
	}

	deliverable := &store.Deliverable{
		ProjectID:   project.ID,
		ProjectName: project.Name,
		Title:       req.Title,
		Description: req.Description,
		Status:      req.Status,
		Priority:    req.Priority,
		AssignedTo:  req.AssignedTo,
	}
	if req.DueDate != "" {
		due, err := parseDate(req.DueDate)
		if err != nil {
			return echo.NewHTTPError(http.StatusBadRequest, "invalid due_date")
		}
		deliverable.DueDate = &due
	}

	created, err := s.store.CreateDeliverable(ctx, deliverable)
	if err != nil {
		return httpError(err)
	}
	created.VectorID = s.coordinator.IndexDeliverable(ctx, created)

	return c.JSON(http.StatusCreated, created)
}

// DeliverableUpdateRequest is the body for PUT /api/work/deliverables/:id.
// Absent fields leave the current value unchanged.
type DeliverableUpdateRequest struct {
	Title       *string `json:"title"`
	Description *string `json:"description"`
	DueDate     *string `json:"due_date"`
	Status      *string `json:"status"`
	Priority    *string `json:"priority"`
	AssignedTo  *string `json:"assigned_to"`
}

func (s *Server) handleUpdateDeliverable(c echo.Context) error {
	var req DeliverableUpdateRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}
	ctx := c.Request().Context()

	update := store.DeliverableUpdate{
		Title:       req.Title,
		Description: req.Description,
		Status:      req.Status,
		Priority:    req.Priority,
		AssignedTo:  req.AssignedTo,
	}
	if req.DueDate != nil {
		due, err := parseDate(*req.DueDate)
		if err != nil {
			return echo.NewHTTPError(http.StatusBadRequest, "invalid due_date")
		}
		update.DueDate = &due
	}

	updated, err := s.store.UpdateDeliverable(ctx, c.Param("id"), update)
	if err != nil {
		return httpError(err)
	}
	// Re-index so the stored text and metadata track the new state.
	updated.VectorID = s.coordinator.IndexDeliverable(ctx, updated)

	return c.JSON(http.StatusOK, updated)
}

func (s *Server) handleDeleteDeliverable(c echo.Context) error {
	ctx := c.Request().Context()
	id := c.Param("id")

	if err := s.store.DeleteDeliverable(ctx, id); err != nil {
		return httpError(err)
	}
	if err := s.index.Delete(ctx, semindex.KindDeliverable, id); err != nil {
		s.logger.Warn("index entry deletion failed",
			zap.String("kind", string(semindex.KindDeliverable)),
			zap.String("entity_id", id),
			zap.Error(err))
	}

	return c.JSON(http.StatusOK, map[string]string{"message": "deliverable deleted"})
}

// QueryRequest is the body for POST /api/work/query.
type QueryRequest struct {
	Query string `json:"query"`
}

func (s *Server) handleQuery(c echo.Context) error {
	var req QueryRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}

	answer, err := s.engine.AnswerQuestion(c.Request().Context(), req.Query)
	if err != nil {
		return httpError(err)
	}
	return c.JSON(http.StatusOK, answer)
}

func (s *Server) handleListPeople(c echo.Context) error {
	people, err := s.store.ListPeople(c.Request().Context())
	if err != nil {
		return httpError(err)
	}
	if people == nil {
		people = []*store.Person{}
	}
	return c.JSON(http.StatusOK, people)
}

// parseDate accepts RFC3339 timestamps and bare dates.
func parseDate(value string) (time.Time, error) {
	if t, err := time.Parse(time.RFC3339, value); err == nil {
		return t, nil
	}
	return time.Parse("2006-01-02", value)
}
