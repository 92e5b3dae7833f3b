package routes

import (
	"context"
	"embed"
	"errors"
	"html/template"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"go-batchd/internal/scheduler/dto"
	"go-batchd/internal/scheduler/models"
	"go-batchd/internal/scheduler/services"

	"github.com/go-chi/chi/v5"
)

//go:embed templates/home.html
var templateFS embed.FS

// Admin is the slice of the admin service the form console consumes.
type Admin interface {
	ConsoleData(ctx context.Context) (*dto.ConsoleData, error)
	ManualRun(ctx context.Context, typeCode, payload string) error
	CreateSchedule(ctx context.Context, typeCode, cronExpr, payload string, enabled *int) (int64, error)
	EnqueueTask(ctx context.Context, typeCode, payload string, priority int, notBefore string) (int64, error)
	ToggleSchedule(ctx context.Context, id int64, enabled bool) (*models.Schedule, error)
	DeleteSchedule(ctx context.Context, id int64) (int64, error)
	DeleteTask(ctx context.Context, id int64) error
	CancelTask(ctx context.Context, id int64) (*services.CancelResult, error)
}

// Forms serves the HTML console and its POST endpoints. Every POST answers
// with a 303 redirect back to "/" carrying the outcome in query fields, so a
// browser refresh never replays the action.
type Forms struct {
	admin Admin
	tmpl  *template.Template
}

// NewForms creates the console over the given admin backend.
func NewForms(admin Admin) *Forms {
	return &Forms{
		admin: admin,
		tmpl:  template.Must(template.ParseFS(templateFS, "templates/home.html")),
	}
}

// Register mounts the console on a chi router.
func (f *Forms) Register(r chi.Router) {
	r.Get("/", f.home)
	r.Post("/manual/run", f.manualRun)
	r.Post("/schedules", f.createSchedule)
	r.Post("/tasks/enqueue", f.enqueueTask)
	r.Post("/schedule/{id}/toggle", f.toggleSchedule)
	r.Post("/schedule/{id}/delete", f.deleteSchedule)
	r.Post("/tasks/{id}/delete", f.deleteTask)
	r.Post("/tasks/{id}/cancel", f.cancelTask)
}

// consolePage is the template model for home.html. The banner fields echo
// whatever the last POST put in the redirect query.
type consolePage struct {
	Schedules   []models.Schedule
	Tasks       []models.Task
	Runners     []string
	HasResult   bool
	OK          bool
	LastType    string
	LastPayload string
	Cost        string
	Error       string
	Info        string
}

func (f *Forms) home(w http.ResponseWriter, r *http.Request) {
	data, err := f.admin.ConsoleData(r.Context())
	if err != nil {
		slog.Error("Console data load failed", slog.Any("error", err))
		http.Error(w, "console unavailable", http.StatusInternalServerError)
		return
	}
	q := r.URL.Query()
	page := consolePage{
		Schedules:   data.Schedules,
		Tasks:       data.Tasks,
		Runners:     data.Runners,
		HasResult:   q.Has("ok"),
		OK:          q.Get("ok") == "true",
		LastType:    q.Get("type"),
		LastPayload: q.Get("payload"),
		Cost:        q.Get("cost"),
		Error:       q.Get("error"),
		Info:        q.Get("info"),
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	if err := f.tmpl.Execute(w, page); err != nil {
		slog.Error("Console render failed", slog.Any("error", err))
	}
}

func (f *Forms) manualRun(w http.ResponseWriter, r *http.Request) {
	typeCode := r.FormValue("type")
	payload := services.NormalizePayload(r.FormValue("payload"))

	start := time.Now()
	err := f.admin.ManualRun(r.Context(), typeCode, payload)
	cost := time.Since(start).Milliseconds()

	q := url.Values{}
	q.Set("ok", strconv.FormatBool(err == nil))
	q.Set("type", typeCode)
	q.Set("payload", payload)
	q.Set("cost", strconv.FormatInt(cost, 10))
	if err != nil {
		switch {
		case errors.Is(err, services.ErrUnknownType):
			q.Set("error", MsgNoRunner(typeCode))
		case errors.Is(err, services.ErrBadPayload):
			q.Set("error", MsgBadPayload(err))
		default:
			slog.Warn("Manual run failed", slog.String("type", typeCode), slog.Any("error", err))
			q.Set("error", SafeMsg(err.Error()))
		}
	}
	redirectHome(w, r, q)
}

func (f *Forms) createSchedule(w http.ResponseWriter, r *http.Request) {
	typeCode := r.FormValue("type")
	cronExpr := r.FormValue("cron")
	payload := services.NormalizePayload(r.FormValue("payload"))

	var enabled *int
	if v := r.FormValue("enabled"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			enabled = &n
		}
	}

	q := url.Values{}
	q.Set("type", typeCode)
	q.Set("payload", payload)
	if _, err := f.admin.CreateSchedule(r.Context(), typeCode, cronExpr, payload, enabled); err != nil {
		q.Set("ok", "false")
		switch {
		case errors.Is(err, services.ErrUnknownType):
			q.Set("error", MsgUnknownType(typeCode))
		case errors.Is(err, services.ErrBadPayload):
			q.Set("error", MsgBadSchedulePayload(err))
		default:
			q.Set("error", SafeMsg(err.Error()))
		}
		redirectHome(w, r, q)
		return
	}
	q.Set("ok", "true")
	redirectHome(w, r, q)
}

func (f *Forms) enqueueTask(w http.ResponseWriter, r *http.Request) {
	typeCode := r.FormValue("type")
	payload := services.NormalizePayload(r.FormValue("payload"))
	notBefore := r.FormValue("notBefore")

	q := url.Values{}
	q.Set("type", typeCode)
	q.Set("payload", payload)
	if _, err := f.admin.EnqueueTask(r.Context(), typeCode, payload, 0, notBefore); err != nil {
		q.Set("ok", "false")
		switch {
		case errors.Is(err, services.ErrUnknownType):
			q.Set("error", MsgUnknownType(typeCode))
		case errors.Is(err, services.ErrBadPayload):
			q.Set("error", MsgBadPayload(err))
		case errors.Is(err, services.ErrBadNotBefore):
			q.Set("error", MsgBadNotBefore)
		default:
			q.Set("error", SafeMsg(err.Error()))
		}
		redirectHome(w, r, q)
		return
	}
	q.Set("ok", "true")
	redirectHome(w, r, q)
}

func (f *Forms) toggleSchedule(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}
	enabled := formBool(r.FormValue("enabled"))

	q := url.Values{}
	if _, err := f.admin.ToggleSchedule(r.Context(), id, enabled); err != nil {
		q.Set("ok", "false")
		if errors.Is(err, services.ErrScheduleNotFound) {
			q.Set("error", MsgScheduleNotFound(id))
		} else {
			q.Set("error", SafeMsg(err.Error()))
		}
		redirectHome(w, r, q)
		return
	}
	q.Set("ok", "true")
	redirectHome(w, r, q)
}

func (f *Forms) deleteSchedule(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}

	q := url.Values{}
	linked, err := f.admin.DeleteSchedule(r.Context(), id)
	if err != nil {
		q.Set("ok", "false")
		switch {
		case errors.Is(err, services.ErrScheduleNotFound):
			q.Set("error", MsgScheduleNotFound(id))
		case errors.Is(err, services.ErrScheduleHasTasks):
			q.Set("error", MsgScheduleHasTasks(linked))
		default:
			q.Set("error", SafeMsg(err.Error()))
		}
		redirectHome(w, r, q)
		return
	}
	q.Set("ok", "true")
	q.Set("info", MsgScheduleDeleted(id))
	redirectHome(w, r, q)
}

func (f *Forms) deleteTask(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}

	q := url.Values{}
	if err := f.admin.DeleteTask(r.Context(), id); err != nil {
		q.Set("ok", "false")
		switch {
		case errors.Is(err, services.ErrTaskNotFound):
			q.Set("error", MsgTaskNotFound(id))
		case errors.Is(err, services.ErrTaskActive):
			q.Set("error", MsgTaskActive(id))
		default:
			q.Set("error", SafeMsg(err.Error()))
		}
		redirectHome(w, r, q)
		return
	}
	q.Set("ok", "true")
	q.Set("info", MsgTaskDeleted(id))
	redirectHome(w, r, q)
}

func (f *Forms) cancelTask(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}

	q := url.Values{}
	result, err := f.admin.CancelTask(r.Context(), id)
	if err != nil {
		q.Set("ok", "false")
		if errors.Is(err, services.ErrTaskNotFound) {
			q.Set("error", MsgTaskNotFound(id))
		} else {
			q.Set("error", SafeMsg(err.Error()))
		}
		redirectHome(w, r, q)
		return
	}
	q.Set("ok", "true")
	switch result.Outcome {
	case services.CancelOutcomeCanceled:
		q.Set("info", MsgTaskCanceled(id))
	case services.CancelOutcomeRequested:
		q.Set("info", MsgCancelRequested(id))
	default:
		q.Set("info", MsgCancelNotNeeded(id, result.Status))
	}
	redirectHome(w, r, q)
}

func redirectHome(w http.ResponseWriter, r *http.Request, q url.Values) {
	http.Redirect(w, r, "/?"+q.Encode(), http.StatusSeeOther)
}

func pathID(w http.ResponseWriter, r *http.Request) (int64, bool) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil {
		http.Error(w, "invalid id", http.StatusBadRequest)
		return 0, false
	}
	return id, true
}

func formBool(v string) bool {
	if v == "on" {
		return true
	}
	b, _ := strconv.ParseBool(v)
	return b
}
