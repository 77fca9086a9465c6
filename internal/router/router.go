package router

import (
	"net/http"

	"github.com/glimra/backend/internal/gamify"
)

// New returns an http.Handler that serves the gamification API under /api/v1.
func New(h *gamify.Handler) http.Handler {
	mux := http.NewServeMux()
	base := "/api/v1"

	mux.HandleFunc("GET "+base+"/gamification/balance", h.GetBalance)
	mux.HandleFunc("GET "+base+"/gamification/history", h.GetHistory)
	mux.HandleFunc("GET "+base+"/gamification/badges", h.ListBadges)
	mux.HandleFunc("POST "+base+"/gamification/deduct", h.DeductPoints)

	mux.HandleFunc("GET "+base+"/leaderboard", h.GetLeaderboard)
	mux.HandleFunc("GET "+base+"/leaderboard/rank", h.GetUserRank)

	mux.HandleFunc("GET "+base+"/challenges", h.ListChallenges)
	mux.HandleFunc("POST "+base+"/challenges/{id}/join", h.JoinChallenge)
	mux.HandleFunc("POST "+base+"/challenges/{id}/progress", h.UpdateProgress)
	mux.HandleFunc("GET "+base+"/challenges/{id}/stats", h.ChallengeStats)

	mux.HandleFunc("POST "+base+"/events", h.IngestEvent)

	return mux
}
