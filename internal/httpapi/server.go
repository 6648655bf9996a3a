// Package httpapi exposes the duel operations as a small JSON API. The
// gateway in front of this service authenticates callers and forwards the
// user id in X-User-Id; everything else is the manager's business.
package httpapi

import (
	"encoding/json"
	"errors"
	"strings"

	"github.com/valyala/fasthttp"

	"github.com/park285/cf-duels/internal/duel"
	"github.com/park285/cf-duels/internal/msgcat"
	"github.com/park285/cf-duels/internal/obslog"
	"github.com/park285/cf-duels/internal/userstore"
	"go.uber.org/zap"
)

const userIDHeader = "X-User-Id"

type Server struct {
	mgr  *duel.Manager
	msgs *msgcat.Catalog
}

func NewServer(mgr *duel.Manager, msgs *msgcat.Catalog) *Server {
	return &Server{mgr: mgr, msgs: msgs}
}

// ListenAndServe blocks serving the API on addr.
func (s *Server) ListenAndServe(addr string) error {
	return fasthttp.ListenAndServe(addr, s.Handle)
}

// Handle routes a request. Paths:
//
//	POST /duels                       create challenge
//	GET  /duels                       list caller's duels
//	GET  /duels/pending               list open challenges for caller
//	GET  /duels/{id}                  battle state
//	POST /duels/{id}/accept
//	POST /duels/{id}/reject
//	POST /duels/{id}/draw             offer draw
//	POST /duels/{id}/draw/respond     accept/reject offer
//	POST /duels/{id}/draw/withdraw
//	POST /duels/{id}/check            winner poll
func (s *Server) Handle(ctx *fasthttp.RequestCtx) {
	userID := strings.TrimSpace(string(ctx.Request.Header.Peek(userIDHeader)))
	if userID == "" {
		writeError(ctx, fasthttp.StatusUnauthorized, "missing "+userIDHeader)
		return
	}

	path := strings.Trim(string(ctx.Path()), "/")
	parts := strings.Split(path, "/")
	method := string(ctx.Method())

	if len(parts) == 0 || parts[0] != "duels" {
		writeError(ctx, fasthttp.StatusNotFound, "not found")
		return
	}

	switch {
	case len(parts) == 1 && method == fasthttp.MethodPost:
		s.createChallenge(ctx, userID)
	case len(parts) == 1 && method == fasthttp.MethodGet:
		s.listDuels(ctx, userID)
	case len(parts) == 2 && parts[1] == "pending" && method == fasthttp.MethodGet:
		s.listPending(ctx, userID)
	case len(parts) == 2 && method == fasthttp.MethodGet:
		s.battleState(ctx, userID, parts[1])
	case len(parts) == 3 && method == fasthttp.MethodPost:
		s.duelAction(ctx, userID, parts[1], parts[2], "")
	case len(parts) == 4 && parts[2] == "draw" && method == fasthttp.MethodPost:
		s.duelAction(ctx, userID, parts[1], "draw", parts[3])
	default:
		writeError(ctx, fasthttp.StatusNotFound, "not found")
	}
}

type createRequest struct {
	OpponentID string   `json:"opponent_id"`
	RatingMin  int      `json:"rating_min"`
	RatingMax  int      `json:"rating_max"`
	Tags       []string `json:"tags"`
}

func (s *Server) createChallenge(ctx *fasthttp.RequestCtx, userID string) {
	var req createRequest
	if err := json.Unmarshal(ctx.PostBody(), &req); err != nil {
		writeError(ctx, fasthttp.StatusBadRequest, "invalid request body")
		return
	}
	d, err := s.mgr.CreateChallenge(ctx, userID, req.OpponentID,
		duel.RatingRange{Min: req.RatingMin, Max: req.RatingMax}, req.Tags)
	if err != nil {
		s.writeDomainError(ctx, err)
		return
	}
	writeJSON(ctx, fasthttp.StatusCreated, map[string]any{
		"message": s.render("duel.challenge_sent", map[string]any{"Opponent": req.OpponentID}),
		"duel":    d,
	})
}

func (s *Server) listDuels(ctx *fasthttp.RequestCtx, userID string) {
	duels, err := s.mgr.ListUserDuels(ctx, userID)
	if err != nil {
		s.writeDomainError(ctx, err)
		return
	}
	writeJSON(ctx, fasthttp.StatusOK, duels)
}

func (s *Server) listPending(ctx *fasthttp.RequestCtx, userID string) {
	duels, err := s.mgr.ListPending(ctx, userID)
	if err != nil {
		s.writeDomainError(ctx, err)
		return
	}
	writeJSON(ctx, fasthttp.StatusOK, duels)
}

type participantView struct {
	ID       string `json:"id"`
	Username string `json:"username"`
	Handle   string `json:"handle,omitempty"`
	Rating   *int   `json:"rating,omitempty"`
	Points   int    `json:"points"`
}

func toParticipantView(u *userstore.User) participantView {
	return participantView{
		ID:       u.ID,
		Username: u.Username,
		Handle:   u.Handle,
		Rating:   u.Rating,
		Points:   u.Points,
	}
}

func (s *Server) battleState(ctx *fasthttp.RequestCtx, userID, duelID string) {
	d, challenger, opponent, err := s.mgr.BattleView(ctx, duelID, userID)
	if err != nil {
		s.writeDomainError(ctx, err)
		return
	}
	writeJSON(ctx, fasthttp.StatusOK, map[string]any{
		"duel":       d,
		"challenger": toParticipantView(challenger),
		"opponent":   toParticipantView(opponent),
	})
}

type drawResponseRequest struct {
	Action string `json:"action"` // accept | reject
}

func (s *Server) duelAction(ctx *fasthttp.RequestCtx, userID, duelID, action, sub string) {
	switch action {
	case "accept":
		d, err := s.mgr.Accept(ctx, duelID, userID)
		if err != nil {
			s.writeDomainError(ctx, err)
			return
		}
		writeJSON(ctx, fasthttp.StatusOK, map[string]any{
			"message": s.render("duel.accepted", nil),
			"duel":    d,
		})
	case "reject":
		if err := s.mgr.Reject(ctx, duelID, userID); err != nil {
			s.writeDomainError(ctx, err)
			return
		}
		writeJSON(ctx, fasthttp.StatusOK, map[string]any{"message": s.render("duel.rejected", nil)})
	case "check":
		d, decided, err := s.mgr.CheckWinner(ctx, duelID, userID)
		if err != nil {
			s.writeDomainError(ctx, err)
			return
		}
		msg := s.render("duel.no_winner", nil)
		if decided && d.Result != nil && d.Result.PointsAwarded != nil {
			msg = s.render("duel.winner", map[string]any{
				"Winner": d.Result.Winner,
				"Gains":  d.Result.PointsAwarded.Winner,
				"Loser":  d.Other(d.Result.Winner),
				"Loss":   -d.Result.PointsAwarded.Loser,
			})
		}
		writeJSON(ctx, fasthttp.StatusOK, map[string]any{
			"message": msg,
			"decided": decided,
			"duel":    d,
		})
	case "draw":
		s.drawAction(ctx, userID, duelID, sub)
	default:
		writeError(ctx, fasthttp.StatusNotFound, "not found")
	}
}

func (s *Server) drawAction(ctx *fasthttp.RequestCtx, userID, duelID, sub string) {
	switch sub {
	case "":
		d, err := s.mgr.OfferDraw(ctx, duelID, userID)
		if err != nil {
			s.writeDomainError(ctx, err)
			return
		}
		writeJSON(ctx, fasthttp.StatusOK, map[string]any{
			"message": s.render("draw.offered", nil),
			"duel":    d,
		})
	case "respond":
		var req drawResponseRequest
		if err := json.Unmarshal(ctx.PostBody(), &req); err != nil {
			writeError(ctx, fasthttp.StatusBadRequest, "invalid request body")
			return
		}
		var accept bool
		switch req.Action {
		case "accept":
			accept = true
		case "reject":
			accept = false
		default:
			writeError(ctx, fasthttp.StatusBadRequest, `action must be "accept" or "reject"`)
			return
		}
		d, err := s.mgr.RespondDraw(ctx, duelID, userID, accept)
		if err != nil {
			s.writeDomainError(ctx, err)
			return
		}
		key := "draw.rejected"
		if accept {
			key = "draw.accepted"
		}
		writeJSON(ctx, fasthttp.StatusOK, map[string]any{
			"message": s.render(key, nil),
			"duel":    d,
		})
	case "withdraw":
		d, err := s.mgr.WithdrawDraw(ctx, duelID, userID)
		if err != nil {
			s.writeDomainError(ctx, err)
			return
		}
		writeJSON(ctx, fasthttp.StatusOK, map[string]any{
			"message": s.render("draw.withdrawn", nil),
			"duel":    d,
		})
	default:
		writeError(ctx, fasthttp.StatusNotFound, "not found")
	}
}

func (s *Server) writeDomainError(ctx *fasthttp.RequestCtx, err error) {
	switch {
	case errors.Is(err, duel.ErrInvalidArgs), errors.Is(err, duel.ErrSelfChallenge):
		writeError(ctx, fasthttp.StatusBadRequest, err.Error())
	case errors.Is(err, duel.ErrNotOpponent),
		errors.Is(err, duel.ErrNotParticipant),
		errors.Is(err, duel.ErrNotFriends),
		errors.Is(err, duel.ErrNotOfferRecipient),
		errors.Is(err, duel.ErrNotOfferOwner):
		writeError(ctx, fasthttp.StatusForbidden, err.Error())
	case errors.Is(err, duel.ErrNotFound), errors.Is(err, userstore.ErrUserNotFound):
		writeError(ctx, fasthttp.StatusNotFound, err.Error())
	case errors.Is(err, duel.ErrDuplicatePending),
		errors.Is(err, duel.ErrNotPending),
		errors.Is(err, duel.ErrNotActive),
		errors.Is(err, duel.ErrChallengeExpired),
		errors.Is(err, duel.ErrDrawOfferPending),
		errors.Is(err, duel.ErrNoDrawOffer),
		errors.Is(err, duel.ErrConflict):
		writeError(ctx, fasthttp.StatusConflict, err.Error())
	case errors.Is(err, duel.ErrNoMatchingProblem):
		writeError(ctx, fasthttp.StatusUnprocessableEntity, err.Error())
	default:
		// external collaborator failure; the caller may retry
		obslog.L().Error("api_upstream_error", zap.Error(err))
		writeError(ctx, fasthttp.StatusBadGateway, "upstream service unavailable, try again")
	}
}

func (s *Server) render(key string, data map[string]any) string {
	if s.msgs == nil {
		return ""
	}
	msg, err := s.msgs.Render(key, data)
	if err != nil {
		return ""
	}
	return msg
}

func writeJSON(ctx *fasthttp.RequestCtx, status int, v any) {
	body, err := json.Marshal(v)
	if err != nil {
		writeError(ctx, fasthttp.StatusInternalServerError, "encode response")
		return
	}
	ctx.SetStatusCode(status)
	ctx.SetContentType("application/json")
	ctx.SetBody(body)
}

func writeError(ctx *fasthttp.RequestCtx, status int, msg string) {
	ctx.SetStatusCode(status)
	ctx.SetContentType("application/json")
	body, _ := json.Marshal(map[string]string{"message": msg})
	ctx.SetBody(body)
}
