package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"github.com/asynkron/protoactor-go/actor"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/render"
	"github.com/google/uuid"
	"github.com/justinas/alice"
	"github.com/rs/zerolog/hlog"
	"github.com/rs/zerolog/log"
	supervisor "go-autoagent/internal/agents/supervisor/actor"
	"go-autoagent/internal/config"
	"go-autoagent/pkg/events"
	"go-autoagent/pkg/llm"
	"go-autoagent/pkg/logger"
	"go-autoagent/pkg/messages"
	"go-autoagent/pkg/models"
	"go-autoagent/pkg/security"
	"go-autoagent/pkg/tools"
	"io"
	"net/http"
	"path/filepath"
	"time"
)

type command struct {
	Goal      string `json:"goal"`
	Workspace string `json:"workspace,omitempty"`
	Mode      string `json:"mode,omitempty"`
}

type getStatus struct {
	Status models.Status `json:"status"`
}

type errorResponse struct {
	Error string `json:"error"`
}

type toolStat struct {
	tools.UsageStats
	AverageTime time.Duration `json:"average_time"`
}

type toolInfo struct {
	Name        string         `json:"name"`
	Description string         `json:"description"`
	Parameters  map[string]any `json:"parameters"`
}

type Deps struct {
	Config   *config.Config
	Registry *tools.Registry
	Model    llm.Model
	Sink     events.Sink
}

type Server struct {
	ac       *actor.RootContext
	deps     Deps
	server   *http.Server
	sessions *sessionsCache
}

func New(ac *actor.RootContext, deps Deps) *Server {
	s := &Server{ac: ac, deps: deps, sessions: newSessionsCache()}

	r := chi.NewRouter()
	r.Use(logMiddleware())
	r.Post("/new", s.newGoal)
	r.Get("/status/{id}", s.status)
	r.Get("/tools", s.listTools)
	r.Get("/tools/stats", s.toolStats)
	r.Route("/sessions", func(r chi.Router) {
		r.Post("/", s.newSession)
		r.Get("/{id}", s.status)
		r.Delete("/{id}", s.stopSession)
		r.Post("/{id}/goals", s.startGoal)
		r.Delete("/{id}/run", s.cancelRun)
	})

	s.server = &http.Server{
		Addr:    fmt.Sprint(":", deps.Config.Server.Port),
		Handler: r,
	}
	return s
}

func (s *Server) Handler() http.Handler {
	return s.server.Handler
}

func (s *Server) Start() error {
	log.Info().Str("addr", s.server.Addr).Msg("http server started")
	err := s.server.ListenAndServe()
	if err != http.ErrServerClosed {
		return fmt.Errorf("http server: %w", err)
	}
	return nil
}

// Stop shuts the http server down and then stops every session actor.
func (s *Server) Stop(ctx context.Context) error {
	err := s.server.Shutdown(ctx)
	for _, pid := range s.sessions.all() {
		s.ac.Stop(pid)
	}
	if err != nil {
		return fmt.Errorf("http server: %w", err)
	}
	return nil
}

// POST /new starts a session and its first goal in one call.
func (s *Server) newGoal(w http.ResponseWriter, r *http.Request) {
	log.Debug().Msg("new request")
	cmd := command{}
	if err := unmarshalRequestBody(r, &cmd); err != nil || cmd.Goal == "" {
		w.WriteHeader(http.StatusBadRequest)
		render.JSON(w, r, errorResponse{Error: "body must contain a goal"})
		return
	}
	mode, ok := s.mode(cmd.Mode)
	if !ok {
		w.WriteHeader(http.StatusBadRequest)
		render.JSON(w, r, errorResponse{Error: "unknown mode " + cmd.Mode})
		return
	}

	id, err := s.spawnSession(cmd.Workspace)
	if err != nil {
		s.fail(w, r, http.StatusBadRequest, err)
		return
	}
	sess, _ := s.sessions.get(id)
	if _, err := s.start(sess, cmd.Goal, mode); err != nil {
		s.fail(w, r, http.StatusInternalServerError, err)
		return
	}

	log.Debug().Str(logger.SessionIDField, id.String()).Msg("agent job has been started")
	render.JSON(w, r, struct {
		Id string `json:"id"`
	}{id.String()})
}

func (s *Server) newSession(w http.ResponseWriter, r *http.Request) {
	cmd := command{}
	if r.ContentLength != 0 {
		if err := unmarshalRequestBody(r, &cmd); err != nil {
			w.WriteHeader(http.StatusBadRequest)
			render.JSON(w, r, errorResponse{Error: "unable to parse body"})
			return
		}
	}
	id, err := s.spawnSession(cmd.Workspace)
	if err != nil {
		s.fail(w, r, http.StatusBadRequest, err)
		return
	}
	w.WriteHeader(http.StatusCreated)
	render.JSON(w, r, struct {
		Id string `json:"id"`
	}{id.String()})
}

func (s *Server) startGoal(w http.ResponseWriter, r *http.Request) {
	sess, ok := s.lookup(w, r)
	if !ok {
		return
	}
	cmd := command{}
	if err := unmarshalRequestBody(r, &cmd); err != nil || cmd.Goal == "" {
		w.WriteHeader(http.StatusBadRequest)
		render.JSON(w, r, errorResponse{Error: "body must contain a goal"})
		return
	}
	mode, ok := s.mode(cmd.Mode)
	if !ok {
		w.WriteHeader(http.StatusBadRequest)
		render.JSON(w, r, errorResponse{Error: "unknown mode " + cmd.Mode})
		return
	}

	runID, err := s.start(sess, cmd.Goal, mode)
	if err != nil {
		s.fail(w, r, http.StatusConflict, err)
		return
	}
	w.WriteHeader(http.StatusAccepted)
	render.JSON(w, r, struct {
		RunID string `json:"run_id"`
	}{runID.String()})
}

func (s *Server) status(w http.ResponseWriter, r *http.Request) {
	sess, ok := s.lookup(w, r)
	if !ok {
		return
	}
	res, err := s.ac.RequestFuture(sess.pid, messages.GetStatus{}, time.Minute).Result() // blocking
	if err != nil {
		s.fail(w, r, http.StatusInternalServerError, fmt.Errorf("unable to get status from actor: %w", err))
		return
	}
	status, ok := res.(models.Status)
	if !ok {
		s.fail(w, r, http.StatusInternalServerError, fmt.Errorf("unknown status from actor: %T", res))
		return
	}
	render.JSON(w, r, getStatus{status})
}

func (s *Server) cancelRun(w http.ResponseWriter, r *http.Request) {
	sess, ok := s.lookup(w, r)
	if !ok {
		return
	}
	res, err := s.ac.RequestFuture(sess.pid, messages.CancelRun{}, time.Minute).Result()
	if err != nil {
		s.fail(w, r, http.StatusInternalServerError, err)
		return
	}
	cancelled, _ := res.(messages.RunCancelled)
	if !cancelled.Active {
		w.WriteHeader(http.StatusNotFound)
		render.JSON(w, r, errorResponse{Error: "no active run"})
		return
	}
	w.WriteHeader(http.StatusAccepted)
	render.JSON(w, r, struct {
		RunID string `json:"run_id"`
	}{cancelled.RunID.String()})
}

func (s *Server) stopSession(w http.ResponseWriter, r *http.Request) {
	sess, ok := s.lookup(w, r)
	if !ok {
		return
	}
	id, _ := uuid.Parse(chi.URLParam(r, "id"))
	s.sessions.remove(id)
	s.ac.Stop(sess.pid)
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) listTools(w http.ResponseWriter, r *http.Request) {
	res := make([]toolInfo, 0)
	for _, name := range s.deps.Registry.Names() {
		tool, ok := s.deps.Registry.Lookup(name)
		if !ok {
			continue
		}
		res = append(res, toolInfo{Name: name, Description: tool.Description(), Parameters: tool.Schema().JSON()})
	}
	render.JSON(w, r, res)
}

func (s *Server) toolStats(w http.ResponseWriter, r *http.Request) {
	res := make(map[string]toolStat)
	for name, stats := range s.deps.Registry.Stats() {
		res[name] = toolStat{UsageStats: stats, AverageTime: stats.AverageTime()}
	}
	render.JSON(w, r, res)
}

func (s *Server) spawnSession(workspace string) (uuid.UUID, error) {
	cfg := s.deps.Config
	id := uuid.New()
	dir, err := s.workspaceDir(workspace, id)
	if err != nil {
		return uuid.Nil, err
	}
	sandbox, err := security.NewSandbox(dir)
	if err != nil {
		return uuid.Nil, fmt.Errorf("workspace: %w", err)
	}
	ws := tools.NewWorkspace(sandbox, cfg.CommandFilter(), cfg.Limits())

	decider := func(reason interface{}) actor.Directive {
		log.Error().Msgf("handling failure for session. reason: %v", reason)
		return actor.RestartDirective
	}
	strategy := actor.NewOneForOneStrategy(3, 10000, decider)

	props := actor.PropsFromProducer(supervisor.New(id, supervisor.Config{
		Model:       s.deps.Model,
		Executor:    s.deps.Registry.Bind(ws),
		Sink:        s.deps.Sink,
		Loop:        cfg.LoopOptions(),
		Decision:    cfg.DecisionOptions(),
		StopTimeout: cfg.Behavior.StopTimeout.Duration,
	}), actor.WithSupervisor(strategy))
	pid := s.ac.Spawn(props)
	s.sessions.add(id, session{pid: pid})
	log.Info().Str(logger.SessionIDField, id.String()).Str("workspace", sandbox.Root()).Msg("session created")
	return id, nil
}

// workspaceDir places a session workspace under the configured root. Clients may
// name a relative directory there; anything that would leave the root is refused.
func (s *Server) workspaceDir(requested string, id uuid.UUID) (string, error) {
	root, err := security.NewSandbox(s.deps.Config.Workspace.Root)
	if err != nil {
		return "", fmt.Errorf("workspace root: %w", err)
	}
	if requested == "" {
		return filepath.Join(root.Root(), id.String()), nil
	}
	if filepath.IsAbs(requested) || filepath.VolumeName(requested) != "" {
		return "", &security.SandboxViolation{AttemptedPath: requested, Reason: "workspace must be relative to the workspace root"}
	}
	dir, err := root.SanitizePath(requested)
	if err != nil {
		return "", err
	}
	if dir == root.Root() {
		return "", &security.SandboxViolation{AttemptedPath: requested, ResolvedPath: dir, Reason: "workspace must be a directory below the workspace root"}
	}
	return dir, nil
}

func (s *Server) start(sess session, goal string, mode models.Mode) (uuid.UUID, error) {
	timeout := s.deps.Config.Behavior.StopTimeout.Duration + 5*time.Second
	res, err := s.ac.RequestFuture(sess.pid, messages.StartGoal{RunID: uuid.New(), Goal: goal, Mode: mode}, timeout).Result()
	if err != nil {
		return uuid.Nil, fmt.Errorf("start goal: %w", err)
	}
	switch v := res.(type) {
	case messages.GoalStarted:
		return v.RunID, nil
	case error:
		return uuid.Nil, v
	}
	return uuid.Nil, fmt.Errorf("unexpected reply %T", res)
}

func (s *Server) mode(name string) (models.Mode, bool) {
	if name == "" {
		return s.deps.Config.DefaultMode(), true
	}
	return models.ParseMode(name)
}

func (s *Server) lookup(w http.ResponseWriter, r *http.Request) (session, bool) {
	idParam := chi.URLParam(r, "id")
	id, err := uuid.Parse(idParam)
	if err != nil {
		w.WriteHeader(http.StatusBadRequest)
		log.Debug().Msg("cannot parse id")
		render.JSON(w, r, errorResponse{Error: "unable to parse id"})
		return session{}, false
	}
	sess, ok := s.sessions.get(id)
	if !ok {
		w.WriteHeader(http.StatusNotFound)
		log.Debug().Str(logger.SessionIDField, idParam).Msg("cannot find id")
		render.JSON(w, r, errorResponse{Error: "unknown session"})
		return session{}, false
	}
	return sess, true
}

func (s *Server) fail(w http.ResponseWriter, r *http.Request, code int, err error) {
	log.Error().Err(err).Int("status", code).Msg("request failed")
	w.WriteHeader(code)
	render.JSON(w, r, errorResponse{Error: err.Error()})
}

func logMiddleware() func(http.Handler) http.Handler {
	c := alice.New()
	c = c.Append(hlog.NewHandler(log.Logger))
	c = c.Append(hlog.RemoteAddrHandler("ip"))
	c = c.Append(hlog.UserAgentHandler("agent"))
	c = c.Append(hlog.RefererHandler("referer"))
	c = c.Append(hlog.RequestIDHandler("req_id", "Request-Id"))
	c = c.Append(hlog.AccessHandler(func(r *http.Request, status, size int, duration time.Duration) {
		hlog.FromRequest(r).Info().
			Str("verb", r.Method).
			Stringer("url", r.URL).
			Int("size", size).
			Int("status", status).
			Int64("duration", duration.Milliseconds()).
			Msg("REQ")
	}))

	return c.Then
}

func unmarshalRequestBody(req *http.Request, output interface{}) error {
	if req.Body == nil {
		return errors.New("invalid body in request")
	}

	body, err := io.ReadAll(req.Body)
	if err != nil {
		return err
	}
	if err = req.Body.Close(); err != nil {
		return err
	}
	if err = json.Unmarshal(body, &output); err != nil {
		return err
	}

	return nil
}
