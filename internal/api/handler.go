package api

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/labstack/echo/v4"

	"RegimeSentinel/internal/engine"
	"RegimeSentinel/internal/model"
	"RegimeSentinel/internal/recorder"
)

// Reader is the read side of the engine.
type Reader interface {
	Today(ctx context.Context) (model.RegimeSnapshot, error)
	History(ctx context.Context, from, to time.Time) ([]model.RegimeSnapshot, error)
}

// HistoryRequest holds the history query parameters.
type HistoryRequest struct {
	From  string `query:"from" validate:"omitempty,datetime=2006-01-02"`
	To    string `query:"to" validate:"omitempty,datetime=2006-01-02"`
	Limit int    `query:"limit" default:"500" validate:"min=1,max=5000"`
}

// RunsRequest holds the run log query parameters.
type RunsRequest struct {
	Limit int `query:"limit" default:"20" validate:"min=1,max=500"`
}

// Handler serves the regime read endpoints.
type Handler struct {
	reader   Reader
	recorder recorder.Recorder
}

// NewHandler creates a Handler. rec may be nil.
func NewHandler(reader Reader, rec recorder.Recorder) *Handler {
	if rec == nil {
		rec = recorder.NewNoopRecorder()
	}
	return &Handler{reader: reader, recorder: rec}
}

// RegisterRoutes mounts the handler on e.
func (h *Handler) RegisterRoutes(e *echo.Echo) {
	g := e.Group("/api/v1")
	g.GET("/regime/today", h.today)
	g.GET("/regime/history", h.history)
	g.GET("/runs", h.runs)
	e.GET("/healthz", h.health)
}

func (h *Handler) today(c echo.Context) error {
	snap, err := h.reader.Today(c.Request().Context())
	if errors.Is(err, engine.ErrNoSnapshot) {
		return dataResponse(c, http.StatusServiceUnavailable, err.Error())
	}
	if err != nil {
		return err
	}
	return ok(c, snap)
}

func (h *Handler) history(c echo.Context) error {
	var req HistoryRequest
	if errs := bindQuery(c, &req); errs != nil {
		return dataResponse(c, http.StatusBadRequest, errs)
	}
	// Formats were validated above.
	from, _ := parseOptionalDate(req.From)
	to, _ := parseOptionalDate(req.To)
	if !from.IsZero() && !to.IsZero() && to.Before(from) {
		return dataResponse(c, http.StatusBadRequest, []ValidationError{{
			Code: "ERR_RANGE", Field: "to", Message: "to must not be before from",
		}})
	}

	rows, err := h.reader.History(c.Request().Context(), from, to)
	if err != nil {
		return err
	}
	total := len(rows)
	if total > req.Limit {
		rows = rows[total-req.Limit:]
	}
	return list(c, rows, total)
}

func (h *Handler) runs(c echo.Context) error {
	var req RunsRequest
	if errs := bindQuery(c, &req); errs != nil {
		return dataResponse(c, http.StatusBadRequest, errs)
	}
	runs, err := h.recorder.RecentRuns(c.Request().Context(), req.Limit)
	if err != nil {
		return err
	}
	if runs == nil {
		runs = []recorder.Run{}
	}
	return list(c, runs, len(runs))
}

func (h *Handler) health(c echo.Context) error {
	return c.JSON(http.StatusOK, map[string]string{"status": "ok"})
}

func parseOptionalDate(s string) (time.Time, error) {
	if s == "" {
		return time.Time{}, nil
	}
	return model.ParseDate(s)
}
