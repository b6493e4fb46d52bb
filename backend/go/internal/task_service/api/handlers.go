package api

import (
	"errors"
	"net/http"
	"strconv"
	"strings"

	"jaqpot/backend/go/internal/dispatcher"
	"jaqpot/backend/go/internal/entitymanager"
	"jaqpot/backend/go/internal/models"
	"jaqpot/backend/go/internal/task_service/service"
	"jaqpot/backend/go/pkg/httpmiddleware"
	"jaqpot/backend/go/pkg/logger"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
)

// HeaderTotal carries the size of the full result set of a list request.
const HeaderTotal = "total"

// API provides handlers for the task service.
type API struct {
	tasks           *service.TaskService
	notifications   *service.NotificationService
	connections     *service.ConnectionManager
	defaultPageSize int
	logger          *logger.Logger
	upgrader        websocket.Upgrader
}

// NewAPI creates a new API handler.
func NewAPI(tasks *service.TaskService, notifications *service.NotificationService, connections *service.ConnectionManager, defaultPageSize int, logger *logger.Logger) *API {
	if defaultPageSize <= 0 {
		defaultPageSize = 10
	}
	return &API{
		tasks:           tasks,
		notifications:   notifications,
		connections:     connections,
		defaultPageSize: defaultPageSize,
		logger:          logger,
		upgrader: websocket.Upgrader{
			CheckOrigin: func(r *http.Request) bool {
				return true // Requests are authenticated by bearer token, not by origin.
			},
		},
	}
}

// ExternalValidationHandler submits an EXTERNAL validation of an existing model.
func (a *API) ExternalValidationHandler(c *gin.Context) {
	var req service.ExternalValidation
	if !a.bind(c, &req) {
		return
	}
	req.BaseURI = baseURI(c)
	task, err := a.tasks.SubmitExternal(c.Request.Context(), httpmiddleware.Principal(c), req)
	a.accepted(c, task, err)
}

// CrossValidationHandler submits a k-fold CROSS validation of an algorithm.
func (a *API) CrossValidationHandler(c *gin.Context) {
	var req service.CrossValidation
	if !a.bind(c, &req) {
		return
	}
	task, err := a.tasks.SubmitCross(c.Request.Context(), httpmiddleware.Principal(c), req)
	a.accepted(c, task, err)
}

// SplitValidationHandler submits a train/test SPLIT validation of an algorithm.
func (a *API) SplitValidationHandler(c *gin.Context) {
	var req service.SplitValidation
	if !a.bind(c, &req) {
		return
	}
	task, err := a.tasks.SubmitSplit(c.Request.Context(), httpmiddleware.Principal(c), req)
	a.accepted(c, task, err)
}

// GetTaskHandler returns a single task. The response status mirrors the
// task's httpStatus so clients can poll on the status code alone.
func (a *API) GetTaskHandler(c *gin.Context) {
	task, err := a.tasks.GetTask(c.Request.Context(), c.Param("id"), httpmiddleware.Principal(c))
	if err != nil {
		a.fail(c, err)
		return
	}
	status := task.HTTPStatus
	if status == 0 {
		status = http.StatusOK
	}
	c.JSON(status, task)
}

// GetTasksHandler lists the caller's tasks, optionally filtered by status.
func (a *API) GetTasksHandler(c *gin.Context) {
	start, limit, ok := a.page(c)
	if !ok {
		return
	}
	status := models.TaskStatus(strings.ToUpper(c.Query("status")))
	tasks, total, err := a.tasks.ListTasks(c.Request.Context(), httpmiddleware.Principal(c), status, start, limit)
	if err != nil {
		a.fail(c, err)
		return
	}
	c.Header(HeaderTotal, strconv.FormatInt(total, 10))
	c.JSON(http.StatusOK, tasks)
}

// GetNotificationsHandler lists the caller's notifications, unread by default.
func (a *API) GetNotificationsHandler(c *gin.Context) {
	start, limit, ok := a.page(c)
	if !ok {
		return
	}
	query := models.NotificationQuery(strings.ToUpper(c.Query("query")))
	nots, total, err := a.notifications.List(c.Request.Context(), httpmiddleware.Principal(c), query, start, limit)
	if err != nil {
		a.fail(c, err)
		return
	}
	c.Header(HeaderTotal, strconv.FormatInt(total, 10))
	c.JSON(http.StatusOK, nots)
}

// CreateNotificationHandler sends a notification from the caller to another user.
func (a *API) CreateNotificationHandler(c *gin.Context) {
	var n models.Notification
	if !a.bind(c, &n) {
		return
	}
	created, err := a.notifications.Create(c.Request.Context(), httpmiddleware.Principal(c), &n)
	if err != nil {
		a.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, created)
}

// UpdateNotificationHandler replaces one of the caller's notifications.
func (a *API) UpdateNotificationHandler(c *gin.Context) {
	var n models.Notification
	if !a.bind(c, &n) {
		return
	}
	updated, err := a.notifications.Update(c.Request.Context(), httpmiddleware.Principal(c), &n)
	if err != nil {
		a.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, updated)
}

// WebSocketHandler upgrades the connection and streams the caller's task events.
func (a *API) WebSocketHandler(c *gin.Context) {
	principal := httpmiddleware.Principal(c)
	log := httpmiddleware.RequestLogger(c, a.logger)

	conn, err := a.upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		log.WithError(models.NewErrorInfo(err)).Error("Failed to upgrade WebSocket connection")
		return
	}
	remove := a.connections.Add(principal, conn)

	// The read loop only detects the client going away; inbound frames are ignored.
	go func() {
		defer remove()
		for {
			if _, _, err := conn.NextReader(); err != nil {
				return
			}
		}
	}()
}

func (a *API) bind(c *gin.Context, obj any) bool {
	if err := c.ShouldBind(obj); err != nil {
		httpmiddleware.RequestLogger(c, a.logger).WithError(models.NewErrorInfo(err)).Warn("Invalid request payload")
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request payload"})
		return false
	}
	return true
}

func (a *API) accepted(c *gin.Context, task *models.Task, err error) {
	if err != nil {
		a.fail(c, err)
		return
	}
	c.JSON(http.StatusAccepted, task)
}

// page reads start and max. A missing max means the configured default page size.
func (a *API) page(c *gin.Context) (start, limit int, ok bool) {
	start, err := strconv.Atoi(c.DefaultQuery("start", "0"))
	if err != nil || start < 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "start must be a non-negative integer"})
		return 0, 0, false
	}
	limit, err = strconv.Atoi(c.DefaultQuery("max", strconv.Itoa(a.defaultPageSize)))
	if err != nil || limit <= 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "max must be a positive integer"})
		return 0, 0, false
	}
	if limit > entitymanager.MaxPageSize {
		limit = entitymanager.MaxPageSize
	}
	return start, limit, true
}

// fail translates service and store errors to a response. Server side
// failures get a generic body; the cause is only logged.
func (a *API) fail(c *gin.Context, err error) {
	status := statusFor(err)
	if status >= http.StatusInternalServerError {
		httpmiddleware.RequestLogger(c, a.logger).WithError(models.NewErrorInfo(err)).Error("Request failed")
		c.JSON(status, gin.H{"error": "Internal server error"})
		return
	}
	c.JSON(status, gin.H{"error": err.Error()})
}

func statusFor(err error) int {
	switch {
	case errors.Is(err, entitymanager.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, entitymanager.ErrDuplicateID),
		errors.Is(err, entitymanager.ErrPreconditionFailed),
		errors.Is(err, models.ErrTaskTerminal):
		return http.StatusConflict
	case errors.Is(err, service.ErrInvalidRequest),
		errors.Is(err, entitymanager.ErrInvalidCriteria),
		errors.Is(err, entitymanager.ErrInvalidPage),
		errors.Is(err, dispatcher.ErrInvalidParams),
		errors.Is(err, dispatcher.ErrMissingType),
		errors.Is(err, dispatcher.ErrTaskNotQueued),
		errors.Is(err, models.ErrInvalidTransition),
		errors.Is(err, models.ErrProgressRegression),
		errors.Is(err, models.ErrProgressOutOfRange):
		return http.StatusBadRequest
	}
	return http.StatusInternalServerError
}

// baseURI is the externally visible root of this service, used by the
// compute side to build resource links.
func baseURI(c *gin.Context) string {
	scheme := "http"
	if c.Request.TLS != nil {
		scheme = "https"
	}
	if fwd := c.GetHeader("X-Forwarded-Proto"); fwd != "" {
		scheme = fwd
	}
	return scheme + "://" + c.Request.Host + "/api/v1/"
}
