package httpapi

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/radieske/vs-wager-platform/internal/settlement/domain"
	"github.com/radieske/vs-wager-platform/internal/settlement/dto"
	"github.com/radieske/vs-wager-platform/internal/settlement/lifecycle"
	"github.com/radieske/vs-wager-platform/internal/settlement/prize"
)

// UserHeader identifica o usuário autenticado (definido pelo gateway)
const UserHeader = "X-User-ID"

type Wagers interface {
	CreateWager(ctx context.Context, creatorID int64, in domain.NewWager) (*domain.Wager, error)
	ListWagers(ctx context.Context, f domain.WagerFilter) ([]domain.Wager, error)
	GetWager(ctx context.Context, id int64) (*domain.Wager, error)
	PlacePrediction(ctx context.Context, wagerID, userID int64, side domain.Side, amount decimal.Decimal) (*domain.PredictionResult, error)
	SettleWager(ctx context.Context, wagerID, callerID int64, side *domain.Side) (*lifecycle.Settlement, error)
}

type Prizes interface {
	Preview(ctx context.Context, start, end *time.Time) (*prize.Distribution, error)
	Execute(ctx context.Context, start, end *time.Time) (*prize.Execution, error)
}

// Server expõe as apostas e o prêmio quinzenal via REST
type Server struct {
	log    *zap.Logger
	wagers Wagers
	prizes Prizes

	OnRequest func(route string, code int) // métricas
}

func NewServer(log *zap.Logger, wagers Wagers, prizes Prizes) *Server {
	return &Server{log: log, wagers: wagers, prizes: prizes}
}

func (s *Server) Router() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)
	r.Use(s.instrument)

	r.Get("/v1/wagers", s.listWagers)
	r.Get("/v1/wagers/{id}", s.getWager)
	r.Post("/v1/wagers", s.createWager)
	r.Post("/v1/wagers/{id}/predict", s.predict)
	r.Put("/v1/wagers/{id}/settle", s.settle)

	r.Get("/v1/prize/preview", s.previewPrize)
	r.Post("/v1/prize/execute", s.executePrize)
	return r
}

func (s *Server) instrument(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)
		if s.OnRequest != nil {
			s.OnRequest(chi.RouteContext(r.Context()).RoutePattern(), ww.Status())
		}
	})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// writeError traduz a classe do erro de domínio no status HTTP
func (s *Server) writeError(w http.ResponseWriter, r *http.Request, err error) {
	status := http.StatusInternalServerError
	switch {
	case errors.Is(err, domain.ErrValidation):
		status = http.StatusBadRequest
	case errors.Is(err, domain.ErrForbidden):
		status = http.StatusForbidden
	case errors.Is(err, domain.ErrNotFound):
		status = http.StatusNotFound
	case errors.Is(err, domain.ErrInvalidState), errors.Is(err, domain.ErrAlreadyExecuted):
		status = http.StatusConflict
	}

	msg := err.Error()
	if status == http.StatusInternalServerError {
		s.log.Error("request failed",
			zap.String("path", r.URL.Path),
			zap.String("requestId", middleware.GetReqID(r.Context())),
			zap.Error(err))
		msg = "internal error"
	}
	writeJSON(w, status, dto.ErrorResponse{Error: msg})
}

func badRequest(w http.ResponseWriter, msg string) {
	writeJSON(w, http.StatusBadRequest, dto.ErrorResponse{Error: msg})
}

func userID(r *http.Request) (int64, bool) {
	id, err := strconv.ParseInt(r.Header.Get(UserHeader), 10, 64)
	return id, err == nil && id > 0
}

func requireUser(w http.ResponseWriter, r *http.Request) (int64, bool) {
	id, ok := userID(r)
	if !ok {
		writeJSON(w, http.StatusUnauthorized, dto.ErrorResponse{Error: "missing or invalid " + UserHeader})
	}
	return id, ok
}

func wagerID(w http.ResponseWriter, r *http.Request) (int64, bool) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil {
		badRequest(w, "invalid wager id")
		return 0, false
	}
	return id, true
}

func (s *Server) listWagers(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	f := domain.WagerFilter{Category: q.Get("category")}

	switch st := domain.WagerStatus(q.Get("status")); st {
	case "", domain.WagerActive, domain.WagerEnded:
		f.Status = st
	default:
		badRequest(w, "status must be 'active' or 'ended'")
		return
	}
	if v := q.Get("isPublic"); v != "" {
		public := v == "true"
		f.IsPublic = &public
	}

	ws, err := s.wagers.ListWagers(r.Context(), f)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, ws)
}

func (s *Server) getWager(w http.ResponseWriter, r *http.Request) {
	id, ok := wagerID(w, r)
	if !ok {
		return
	}
	wg, err := s.wagers.GetWager(r.Context(), id)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, wg)
}

func (s *Server) createWager(w http.ResponseWriter, r *http.Request) {
	uid, ok := requireUser(w, r)
	if !ok {
		return
	}
	var req dto.CreateWagerRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		badRequest(w, "bad json")
		return
	}

	public := true
	if req.IsPublic != nil {
		public = *req.IsPublic
	}
	wg, err := s.wagers.CreateWager(r.Context(), uid, domain.NewWager{
		Name:         req.Name,
		Description:  req.Description,
		Category:     req.Category,
		Side1:        req.Side1,
		Side2:        req.Side2,
		IsPublic:     public,
		WagerEndTime: req.WagerEndTime,
	})
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, wg)
}

func (s *Server) predict(w http.ResponseWriter, r *http.Request) {
	uid, ok := requireUser(w, r)
	if !ok {
		return
	}
	id, ok := wagerID(w, r)
	if !ok {
		return
	}
	var req dto.PredictRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		badRequest(w, "bad json")
		return
	}
	side, err := domain.ParseSide(req.Side)
	if err != nil {
		s.writeError(w, r, err)
		return
	}

	res, err := s.wagers.PlacePrediction(r.Context(), id, uid, side, req.Amount)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, dto.PredictResponse{Success: true, PredictionResult: *res})
}

func (s *Server) settle(w http.ResponseWriter, r *http.Request) {
	uid, ok := requireUser(w, r)
	if !ok {
		return
	}
	id, ok := wagerID(w, r)
	if !ok {
		return
	}

	var req dto.SettleRequest
	if r.ContentLength != 0 {
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			badRequest(w, "bad json")
			return
		}
	}
	var side *domain.Side
	if req.WinningSide != nil && *req.WinningSide != "" {
		sd := domain.Side(*req.WinningSide)
		side = &sd
	}

	st, err := s.wagers.SettleWager(r.Context(), id, uid, side)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, dto.SettleResponse{
		Success:  true,
		Message:  "Wager settled and payouts distributed successfully",
		Wager:    st.Wager,
		Payouts:  st.Payouts,
		Outcomes: st.Outcomes,
	})
}

// parseBounds lê start/end em RFC3339; ausentes ficam nil
func parseBounds(startRaw, endRaw string) (*time.Time, *time.Time, error) {
	var start, end *time.Time
	for _, b := range []struct {
		raw string
		dst **time.Time
	}{{startRaw, &start}, {endRaw, &end}} {
		if b.raw == "" {
			continue
		}
		t, err := time.Parse(time.RFC3339, b.raw)
		if err != nil {
			return nil, nil, errors.New("start/end must be RFC3339 timestamps")
		}
		*b.dst = &t
	}
	return start, end, nil
}

func (s *Server) previewPrize(w http.ResponseWriter, r *http.Request) {
	start, end, err := parseBounds(r.URL.Query().Get("start"), r.URL.Query().Get("end"))
	if err != nil {
		badRequest(w, err.Error())
		return
	}
	d, err := s.prizes.Preview(r.Context(), start, end)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, d)
}

func (s *Server) executePrize(w http.ResponseWriter, r *http.Request) {
	if _, ok := requireUser(w, r); !ok {
		return
	}
	var req dto.ExecutePrizeRequest
	if r.ContentLength != 0 {
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			badRequest(w, "bad json")
			return
		}
	}

	ex, err := s.prizes.Execute(r.Context(), req.Start, req.End)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, ex)
}
