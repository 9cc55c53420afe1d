package http

import (
	"net/http"

	"cashbook/internal/auth"
)

type profileRequest struct {
	FullName string `json:"full_name" validate:"required,max=100"`
}

type friendRequest struct {
	FriendID string `json:"friend_id" validate:"required,max=64"`
}

func (s *Server) handleGetProfile(w http.ResponseWriter, r *http.Request) {
	p, err := s.svc.Profiles.Get(r.Context(), auth.UserID(r.Context()))
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, p)
}

// handlePutProfile registers the caller or renames them.
func (s *Server) handlePutProfile(w http.ResponseWriter, r *http.Request) {
	var req profileRequest
	if err := s.decode(w, r, &req); err != nil {
		s.fail(w, r, err)
		return
	}
	p, err := s.svc.Profiles.Ensure(r.Context(), auth.UserID(r.Context()), req.FullName)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, p)
}

func (s *Server) handleListFriends(w http.ResponseWriter, r *http.Request) {
	friends, err := s.svc.Profiles.Friends(r.Context(), auth.UserID(r.Context()))
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, friends)
}

func (s *Server) handleAddFriend(w http.ResponseWriter, r *http.Request) {
	var req friendRequest
	if err := s.decode(w, r, &req); err != nil {
		s.fail(w, r, err)
		return
	}
	userID := auth.UserID(r.Context())
	if req.FriendID == userID {
		s.fail(w, r, badRequest("cannot befriend yourself"))
		return
	}
	f, err := s.svc.Profiles.AddFriend(r.Context(), userID, req.FriendID)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, f)
}
