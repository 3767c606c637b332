package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"

	"github.com/harunnryd/kakunin/internal/confirm"
	"github.com/harunnryd/kakunin/internal/dialog"
	kakuninErrors "github.com/harunnryd/kakunin/internal/errors"
	"github.com/harunnryd/kakunin/internal/logger"
	"github.com/harunnryd/kakunin/internal/store"
)

type createSessionRequest struct {
	Title string `json:"title"`
}

type startRequest struct {
	Requirement string `json:"requirement"`
}

type answerRequest struct {
	Answer any `json:"answer"`
}

type modifyRequest struct {
	Field  string `json:"field"`
	Value  any    `json:"value"`
	Reason string `json:"reason"`
}

type cancelRequest struct {
	Reason string `json:"reason"`
}

type errorResponse struct {
	Success bool   `json:"success"`
	Error   string `json:"error"`
}

type sessionResponse struct {
	Session store.SessionMeta     `json:"session"`
	Status  *confirm.StatusResult `json:"status,omitempty"`
}

type historyResponse struct {
	Turns   []dialog.Turn         `json:"turns"`
	Changes []dialog.ChangeRecord `json:"changes"`
}

// statusFor maps an error category onto an HTTP status code.
func statusFor(err error) int {
	switch {
	case err == nil:
		return http.StatusOK
	case errors.Is(err, kakuninErrors.ErrNotFound), errors.Is(err, kakuninErrors.ErrUnknownQuestion):
		return http.StatusNotFound
	case errors.Is(err, kakuninErrors.ErrInvalidInput):
		return http.StatusBadRequest
	case errors.Is(err, kakuninErrors.ErrNoCurrentQuestion),
		errors.Is(err, kakuninErrors.ErrApprovalBlocked),
		errors.Is(err, kakuninErrors.ErrIllegalTransition),
		errors.Is(err, kakuninErrors.ErrConflict):
		return http.StatusConflict
	case errors.Is(err, kakuninErrors.ErrUpstreamParse):
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, r *http.Request, err error) {
	status := statusFor(err)
	if status == http.StatusInternalServerError {
		logger.FromContext(r.Context()).Error("Request failed", "error", err)
	}
	writeJSON(w, status, errorResponse{Success: false, Error: err.Error()})
}

// writeResult writes a flow result, using err (the result's Err) for the status.
func writeResult(w http.ResponseWriter, err error, v any) {
	writeJSON(w, statusFor(err), v)
}

func decodeBody(r *http.Request, v any) error {
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		if errors.Is(err, io.EOF) {
			return nil
		}
		return kakuninErrors.InvalidInput(fmt.Sprintf("invalid request body: %v", err))
	}
	return nil
}

// withFlow runs fn on the session named by the path and writes whatever it
// returns. fn reports the flow-level error used for the status code.
func (s *Server) withFlow(w http.ResponseWriter, r *http.Request, fn func(*confirm.Flow) (any, error)) {
	var (
		body    any
		flowErr error
	)
	err := s.registry.With(r.Context(), r.PathValue("id"), func(f *confirm.Flow) error {
		body, flowErr = fn(f)
		return nil
	})
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeResult(w, flowErr, body)
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	body := map[string]any{
		"status":   "ok",
		"sessions": len(s.registry.List()),
	}
	if s.componentHealth != nil {
		body["components"] = s.componentHealth(r.Context())
	}
	writeJSON(w, http.StatusOK, body)
}

func (s *Server) handleCreateSession(w http.ResponseWriter, r *http.Request) {
	var req createSessionRequest
	if err := decodeBody(r, &req); err != nil {
		writeError(w, r, err)
		return
	}
	meta, err := s.registry.Create(r.Context(), req.Title)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, sessionResponse{Session: meta})
}

func (s *Server) handleListSessions(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{"sessions": s.registry.List()})
}

func (s *Server) handleGetSession(w http.ResponseWriter, r *http.Request) {
	var status confirm.StatusResult
	err := s.registry.With(r.Context(), r.PathValue("id"), func(f *confirm.Flow) error {
		status = f.Status()
		return nil
	})
	if err != nil {
		writeError(w, r, err)
		return
	}
	meta, err := s.registry.Get(r.PathValue("id"))
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, sessionResponse{Session: meta, Status: &status})
}

func (s *Server) handleDeleteSession(w http.ResponseWriter, r *http.Request) {
	if err := s.registry.Delete(r.Context(), r.PathValue("id")); err != nil {
		writeError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleStart(w http.ResponseWriter, r *http.Request) {
	var req startRequest
	if err := decodeBody(r, &req); err != nil {
		writeError(w, r, err)
		return
	}
	s.withFlow(w, r, func(f *confirm.Flow) (any, error) {
		res := f.Start(r.Context(), req.Requirement)
		return res, res.Err
	})
}

func (s *Server) handleCurrentQuestion(w http.ResponseWriter, r *http.Request) {
	s.withFlow(w, r, func(f *confirm.Flow) (any, error) {
		return map[string]any{"state": f.State(), "question": f.CurrentQuestion()}, nil
	})
}

func (s *Server) handleQuestions(w http.ResponseWriter, r *http.Request) {
	s.withFlow(w, r, func(f *confirm.Flow) (any, error) {
		return map[string]any{"questions": f.Questions()}, nil
	})
}

func (s *Server) handleAnswer(w http.ResponseWriter, r *http.Request) {
	var req answerRequest
	if err := decodeBody(r, &req); err != nil {
		writeError(w, r, err)
		return
	}
	s.withFlow(w, r, func(f *confirm.Flow) (any, error) {
		res := f.Answer(req.Answer)
		return res, res.Err
	})
}

func (s *Server) handleAnswerQuestion(w http.ResponseWriter, r *http.Request) {
	var req answerRequest
	if err := decodeBody(r, &req); err != nil {
		writeError(w, r, err)
		return
	}
	s.withFlow(w, r, func(f *confirm.Flow) (any, error) {
		res := f.AnswerQuestion(r.PathValue("qid"), req.Answer)
		return res, res.Err
	})
}

func (s *Server) handleApprove(w http.ResponseWriter, r *http.Request) {
	s.withFlow(w, r, func(f *confirm.Flow) (any, error) {
		res := f.Approve()
		return res, res.Err
	})
}

func (s *Server) handleModify(w http.ResponseWriter, r *http.Request) {
	var req modifyRequest
	if err := decodeBody(r, &req); err != nil {
		writeError(w, r, err)
		return
	}
	s.withFlow(w, r, func(f *confirm.Flow) (any, error) {
		res := f.Modify(req.Field, req.Value, req.Reason)
		return res, res.Err
	})
}

func (s *Server) handleCancel(w http.ResponseWriter, r *http.Request) {
	var req cancelRequest
	if err := decodeBody(r, &req); err != nil {
		writeError(w, r, err)
		return
	}
	s.withFlow(w, r, func(f *confirm.Flow) (any, error) {
		res := f.Cancel(req.Reason)
		return res, res.Err
	})
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	s.withFlow(w, r, func(f *confirm.Flow) (any, error) {
		return f.Status(), nil
	})
}

func (s *Server) handleHistory(w http.ResponseWriter, r *http.Request) {
	s.withFlow(w, r, func(f *confirm.Flow) (any, error) {
		return historyResponse{Turns: f.History(), Changes: f.Changes()}, nil
	})
}
