package webserver

import (
	"context"
	"encoding/json"
	"github.com/gorilla/mux"
	"github.com/lefinal/gacha-arena/battle"
	"github.com/lefinal/gacha-arena/errors"
	"github.com/lefinal/gacha-arena/event"
	"github.com/lefinal/gacha-arena/matchmaking"
	"github.com/lefinal/gacha-arena/rating"
	"github.com/lefinal/gacha-arena/store"
	"go.uber.org/zap"
	"net/http"
	"strconv"
	"time"
)

const (
	defaultLeaderboardLimit = 10
	maxLeaderboardLimit     = 100
)

// Arena provides read access to the arena state.
type Arena interface {
	// Matches returns snapshots of all matches that have not been torn down.
	Matches() []battle.Match
	// MatchOf returns the match the given player is currently in.
	MatchOf(userID string) (battle.Match, bool)
	// Queue returns all queued players in queue order.
	Queue() []matchmaking.QueueEntry
}

// Leaderboard provides the best players by rating.
type Leaderboard interface {
	Leaderboard(ctx context.Context, limit uint) ([]store.LeaderboardEntry, error)
}

// queueEntry is the public representation of a matchmaking.QueueEntry.
type queueEntry struct {
	Position    int         `json:"position"`
	UserID      string      `json:"user_id"`
	DisplayName string      `json:"display_name"`
	Rating      int         `json:"rating"`
	Tier        rating.Tier `json:"tier"`
	JoinedAt    time.Time   `json:"joined_at"`
}

// queueResponse is the response for queue requests.
type queueResponse struct {
	Size    int          `json:"size"`
	Entries []queueEntry `json:"entries"`
}

type leaderboardEntry struct {
	Position    int         `json:"position"`
	UserID      string      `json:"user_id"`
	DisplayName string      `json:"display_name"`
	Rating      int         `json:"rating"`
	Tier        rating.Tier `json:"tier"`
	// TierProgress is the progress through Tier in percent.
	TierProgress  int `json:"tier_progress"`
	Wins          int `json:"wins"`
	Losses        int `json:"losses"`
	CardsDefeated int `json:"cards_defeated"`
	DamageDealt   int `json:"damage_dealt"`
}

type apiHandlers struct {
	logger      *zap.Logger
	arena       Arena
	leaderboard Leaderboard
}

func (api *apiHandlers) handleMatches(w http.ResponseWriter, _ *http.Request) {
	api.respondJSON(w, http.StatusOK, api.arena.Matches())
}

func (api *apiHandlers) handlePlayerMatch(w http.ResponseWriter, r *http.Request) {
	userID := mux.Vars(r)["userID"]
	m, ok := api.arena.MatchOf(userID)
	if !ok {
		api.respondErr(w, errors.NewResourceNotFoundError("player not in match", errors.Details{"user_id": userID}))
		return
	}
	api.respondJSON(w, http.StatusOK, m)
}

func (api *apiHandlers) handleQueue(w http.ResponseWriter, _ *http.Request) {
	entries := api.arena.Queue()
	res := queueResponse{
		Size:    len(entries),
		Entries: make([]queueEntry, 0, len(entries)),
	}
	for i, entry := range entries {
		res.Entries = append(res.Entries, queueEntry{
			Position:    i + 1,
			UserID:      entry.UserID,
			DisplayName: entry.DisplayName,
			Rating:      entry.Rating,
			Tier:        rating.TierFor(entry.Rating),
			JoinedAt:    entry.JoinedAt,
		})
	}
	api.respondJSON(w, http.StatusOK, res)
}

func (api *apiHandlers) handleLeaderboard(w http.ResponseWriter, r *http.Request) {
	limit := defaultLeaderboardLimit
	if rawLimit := r.URL.Query().Get("limit"); rawLimit != "" {
		var err error
		limit, err = strconv.Atoi(rawLimit)
		if err != nil || limit < 1 || limit > maxLeaderboardLimit {
			api.respondErr(w, errors.NewBadRequestError(errors.KindInvalidQuery, "invalid limit",
				errors.Details{"was": rawLimit, "max": maxLeaderboardLimit}))
			return
		}
	}
	entries, err := api.leaderboard.Leaderboard(r.Context(), uint(limit))
	if err != nil {
		api.respondErr(w, errors.Wrap(err, "leaderboard", nil))
		return
	}
	res := make([]leaderboardEntry, 0, len(entries))
	for _, entry := range entries {
		playerRating := rating.BaseRating
		if entry.Rating.Valid {
			playerRating = entry.Rating.Int
		}
		res = append(res, leaderboardEntry{
			Position:      entry.Position,
			UserID:        entry.UserID,
			DisplayName:   entry.DisplayName,
			Rating:        playerRating,
			Tier:          rating.TierFor(playerRating),
			TierProgress:  rating.Progress(playerRating),
			Wins:          entry.Wins,
			Losses:        entry.Losses,
			CardsDefeated: entry.CardsDefeated,
			DamageDealt:   entry.DamageDealt,
		})
	}
	api.respondJSON(w, http.StatusOK, res)
}

// respondJSON writes the given payload as JSON response.
func (api *apiHandlers) respondJSON(w http.ResponseWriter, status int, payload interface{}) {
	raw, err := json.Marshal(payload)
	if err != nil {
		api.respondErr(w, errors.Error{
			Code:    errors.ErrInternal,
			Kind:    errors.KindEncodeJSON,
			Err:     err,
			Message: "marshal response",
		})
		return
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_, err = w.Write(raw)
	if err != nil {
		api.logger.Debug("write response", zap.Error(err))
	}
}

// respondErr logs the given error and responds with its public
// representation.
func (api *apiHandlers) respondErr(w http.ResponseWriter, err error) {
	errors.Log(api.logger, err)
	raw, marshalErr := json.Marshal(event.ErrorEventPayloadFromError(err))
	if marshalErr != nil {
		w.WriteHeader(http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(httpStatus(err))
	_, _ = w.Write(raw)
}

// httpStatus maps the errors.Code of the given error to an HTTP status code.
func httpStatus(err error) int {
	e, _ := errors.Cast(err)
	switch e.Code {
	case errors.ErrBadRequest, errors.ErrProtocolViolation:
		return http.StatusBadRequest
	case errors.ErrNotFound:
		return http.StatusNotFound
	case errors.ErrAborted:
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}
