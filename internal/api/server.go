package api

import (
	"context"
	"crypto/subtle"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"tradewinds/internal/config"
	"tradewinds/internal/engine"
	"tradewinds/internal/game"
	"tradewinds/internal/metrics"
	"tradewinds/internal/store"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
)

type contextKey string

const playerContextKey contextKey = "player"

// historyPointsMax caps a single history response.
const historyPointsMax = 500

type Server struct {
	cfg  config.APIConfig
	log  *slog.Logger
	game *game.Service
	mux  *chi.Mux
	now  func() time.Time
}

func New(cfg config.APIConfig, logger *slog.Logger, gameSvc *game.Service) *Server {
	if logger == nil {
		logger = slog.Default()
	}
	s := &Server{
		cfg:  cfg,
		log:  logger,
		game: gameSvc,
		mux:  chi.NewRouter(),
		now:  time.Now,
	}
	s.routes()
	return s
}

func (s *Server) Handler() http.Handler {
	return s.mux
}

func (s *Server) routes() {
	r := s.mux
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(60 * time.Second))
	r.Use(metrics.Middleware)

	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusOK, map[string]any{"ok": true})
	})
	r.Method(http.MethodGet, "/metrics", metrics.Handler())

	// The tick endpoint lets a cron or sidecar drive the market when no
	// dedicated worker runs.
	r.With(s.tickAuthMiddleware).Post("/internal/tick", s.handleTick)

	r.Route("/v1", func(r chi.Router) {
		r.Get("/market", s.handleMarket)
		r.Get("/market/{id}/quote", s.handleQuote)
		r.Get("/market/{id}/history", s.handleHistory)
		r.Get("/events", s.handleEvents)
		r.Get("/leaderboard", s.handleLeaderboard)

		r.Group(func(r chi.Router) {
			r.Use(s.playerMiddleware)
			r.Get("/dashboard", s.handleDashboard)
			r.Post("/claim", s.handleClaim)
			r.Post("/trade", s.handleTrade)
			r.Get("/trades", s.handleTrades)
			r.Post("/bank/deposit", s.handleBankMove(s.game.Deposit))
			r.Post("/bank/withdraw", s.handleBankMove(s.game.Withdraw))
			r.Post("/bank/borrow", s.handleBankMove(s.game.Borrow))
			r.Post("/bank/repay", s.handleBankMove(s.game.Repay))
		})
	})
}

// playerMiddleware resolves the caller from the X-Player-ID header,
// creating the player record on first sight.
func (s *Server) playerMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id := strings.TrimSpace(r.Header.Get("X-Player-ID"))
		if id == "" {
			writeError(w, http.StatusUnauthorized, "missing X-Player-ID header")
			return
		}
		name := strings.TrimSpace(r.Header.Get("X-Player-Name"))
		p, err := s.game.EnsurePlayer(r.Context(), id, name)
		if err != nil {
			writeDomainError(w, err)
			return
		}
		ctx := context.WithValue(r.Context(), playerContextKey, p.ID)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

func (s *Server) tickAuthMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if s.cfg.TickSecret == "" {
			writeError(w, http.StatusForbidden, "tick endpoint disabled")
			return
		}
		token := bearerToken(r.Header.Get("Authorization"))
		if subtle.ConstantTimeCompare([]byte(token), []byte(s.cfg.TickSecret)) != 1 {
			writeError(w, http.StatusUnauthorized, "invalid tick token")
			return
		}
		next.ServeHTTP(w, r)
	})
}

func playerFromContext(ctx context.Context) (string, error) {
	id, ok := ctx.Value(playerContextKey).(string)
	if !ok || id == "" {
		return "", errors.New("missing player context")
	}
	return id, nil
}

func (s *Server) handleMarket(w http.ResponseWriter, r *http.Request) {
	out, err := s.game.Market(r.Context())
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"commodities": out})
}

func (s *Server) handleQuote(w http.ResponseWriter, r *http.Request) {
	out, err := s.game.Quote(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, out)
}

func (s *Server) handleHistory(w http.ResponseWriter, r *http.Request) {
	points := historyPointsMax
	if v := r.URL.Query().Get("points"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n <= 0 {
			writeError(w, http.StatusBadRequest, "invalid points")
			return
		}
		if n < points {
			points = n
		}
	}
	out, err := s.game.History(r.Context(), chi.URLParam(r, "id"), points)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"points": out})
}

func (s *Server) handleEvents(w http.ResponseWriter, r *http.Request) {
	out, err := s.game.Events(r.Context(), 50)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"events": out})
}

func (s *Server) handleLeaderboard(w http.ResponseWriter, r *http.Request) {
	out, err := s.game.Leaderboard(r.Context(), 100)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"rows": out})
}

func (s *Server) handleDashboard(w http.ResponseWriter, r *http.Request) {
	playerID, err := playerFromContext(r.Context())
	if err != nil {
		writeError(w, http.StatusUnauthorized, err.Error())
		return
	}
	out, err := s.game.Dashboard(r.Context(), playerID, s.now())
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, out)
}

func (s *Server) handleClaim(w http.ResponseWriter, r *http.Request) {
	playerID, err := playerFromContext(r.Context())
	if err != nil {
		writeError(w, http.StatusUnauthorized, err.Error())
		return
	}
	rcpt, err := s.game.Settle(r.Context(), playerID, s.now())
	if err != nil {
		writeDomainError(w, err)
		return
	}
	if rcpt == nil {
		writeJSON(w, http.StatusOK, map[string]any{"claimed": false})
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"claimed": true, "receipt": rcpt})
}

func (s *Server) handleTrade(w http.ResponseWriter, r *http.Request) {
	playerID, err := playerFromContext(r.Context())
	if err != nil {
		writeError(w, http.StatusUnauthorized, err.Error())
		return
	}
	var in struct {
		Commodity string `json:"commodity"`
		Action    string `json:"action"`
		Quantity  int64  `json:"quantity"`
	}
	if err := decodeJSON(r, &in); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	receipt, err := s.game.ExecuteTrade(r.Context(), s.now(), game.TradeInput{
		PlayerID:  playerID,
		Commodity: in.Commodity,
		Action:    engine.TradeAction(in.Action),
		Quantity:  in.Quantity,
	})
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, receipt)
}

func (s *Server) handleTrades(w http.ResponseWriter, r *http.Request) {
	playerID, err := playerFromContext(r.Context())
	if err != nil {
		writeError(w, http.StatusUnauthorized, err.Error())
		return
	}
	out, err := s.game.Trades(r.Context(), playerID, 50)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"trades": out})
}

func (s *Server) handleBankMove(move func(ctx context.Context, playerID string, amount float64, now time.Time) error) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		playerID, err := playerFromContext(r.Context())
		if err != nil {
			writeError(w, http.StatusUnauthorized, err.Error())
			return
		}
		var in struct {
			Amount float64 `json:"amount"`
		}
		if err := decodeJSON(r, &in); err != nil {
			writeError(w, http.StatusBadRequest, err.Error())
			return
		}
		if err := move(r.Context(), playerID, in.Amount, s.now()); err != nil {
			writeDomainError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"ok": true})
	}
}

func (s *Server) handleTick(w http.ResponseWriter, r *http.Request) {
	out, err := s.game.RunMarketTick(r.Context(), s.now())
	if err != nil {
		if errors.Is(err, engine.ErrConflict) {
			// Another node won this slot; report it as a no-op.
			writeJSON(w, http.StatusOK, map[string]any{"applied": false})
			return
		}
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"applied": true, "outcome": out})
}

func writeDomainError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, engine.ErrConflict):
		writeError(w, http.StatusConflict, err.Error())
	case errors.Is(err, engine.ErrPrivilegeRequired):
		writeError(w, http.StatusForbidden, err.Error())
	case errors.Is(err, engine.ErrUnknownCommodity), errors.Is(err, store.ErrNotFound):
		writeError(w, http.StatusNotFound, err.Error())
	case errors.Is(err, engine.ErrInvalidInput),
		errors.Is(err, engine.ErrInsufficientFunds),
		errors.Is(err, engine.ErrInsufficientHoldings),
		errors.Is(err, engine.ErrInsufficientInventory),
		errors.Is(err, engine.ErrInsufficientLiquidity),
		errors.Is(err, engine.ErrNoPosition):
		writeError(w, http.StatusBadRequest, err.Error())
	default:
		writeError(w, http.StatusInternalServerError, err.Error())
	}
}

func decodeJSON(r *http.Request, out any) error {
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(out); err != nil {
		return err
	}
	return nil
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, map[string]any{"error": strings.TrimSpace(message)})
}

func bearerToken(header string) string {
	header = strings.TrimSpace(header)
	if header == "" {
		return ""
	}
	parts := strings.SplitN(header, " ", 2)
	if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") {
		return ""
	}
	return strings.TrimSpace(parts[1])
}
