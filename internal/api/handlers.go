// Copyright (c) 2026 spooncast
// Licensed under the PolyForm Noncommercial License 1.0.0

package api

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/spooncast/echo/internal/log"
	"github.com/spooncast/echo/internal/session"
	"github.com/spooncast/echo/internal/types"
)

// optionsResponse is GET /echo/option's body (spec.md §6.1).
type optionsResponse struct {
	Versions  []int    `json:"versions"`
	Protocols []string `json:"protocols"`
	Formats   []string `json:"formats"`
}

func (s *Server) handleOptions(w http.ResponseWriter, _ *http.Request) {
	respondJSON(w, optionsResponse{
		Versions:  []int{3, 4},
		Protocols: []string{"srt", "rtmp"},
		Formats:   []string{"aac"},
	})
}

type publishRequest struct {
	Media  json.RawMessage   `json:"media"`
	Reason string            `json:"reason,omitempty"`
	Props  map[string]string `json:"props,omitempty"`
}

type transport struct {
	Protocol string `json:"protocol"`
	Address  string `json:"address"`
	Port     int    `json:"port,omitempty"`
}

type rtmpTarget struct {
	URL  string `json:"url"`
	Name string `json:"name"`
}

type publishResponse struct {
	Publish struct {
		Name       types.AppName   `json:"name"`
		Control    string          `json:"control,omitempty"`
		Transports []transport     `json:"transports"`
		Media      json.RawMessage `json:"media"`
		RTMP       rtmpTarget      `json:"rtmp"`
	} `json:"publish"`
}

// handlePublish implements POST /echo/{3|4}/publish/{name} (spec.md §6.1,
// end-to-end scenario 1): authorize, mint a stream key, allocate transport,
// sign and set the binding cookie.
func (s *Server) handlePublish(protoVersion int) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		name := types.AppName(chi.URLParam(r, "name"))
		if name == "" {
			respondError(w, r, http.StatusBadRequest, errBadRequest)
			return
		}

		var req publishRequest
		if r.Body != nil {
			if err := json.NewDecoder(r.Body).Decode(&req); err != nil && !errors.Is(err, io.EOF) {
				respondError(w, r, http.StatusBadRequest, errBadRequest)
				return
			}
		}

		auth, ok := bearerOrBasicFromRequest(r)
		if !ok {
			respondError(w, r, http.StatusUnauthorized, errUnauthorized)
			return
		}

		key, err := s.manager.AuthorizeSession(r.Context(), name, auth)
		if err != nil {
			switch {
			case errors.Is(err, session.ErrExpiredToken):
				respondError(w, r, 460, errExpiredToken)
			case errors.Is(err, session.ErrUnauthorized):
				respondError(w, r, http.StatusUnauthorized, errUnauthorized)
			default:
				log.L().Error().Err(err).Msg("api: authorize_session failed")
				respondError(w, r, http.StatusInternalServerError, errInternal)
			}
			return
		}

		var resp publishResponse
		resp.Publish.Name = name
		resp.Publish.Media = req.Media
		resp.Publish.RTMP = rtmpTarget{Name: key}

		switch protoVersion {
		case 3:
			port, perr := s.srtPool.Acquire()
			if perr != nil {
				respondError(w, r, http.StatusInternalServerError, errNoPort)
				return
			}
			resp.Publish.RTMP.URL = "srt://" + s.cfg.SRTPrivIP.String()
			resp.Publish.Transports = []transport{{Protocol: "srt", Address: s.cfg.SRTPrivIP.String(), Port: port}}
		case 4:
			_, port, _ := strings.Cut(s.cfg.RTMPAddr, ":")
			host := "127.0.0.1"
			resp.Publish.RTMP.URL = "rtmp://" + host + ":" + port + "/" + string(name)
			resp.Publish.Transports = []transport{{Protocol: "rtmp", Address: host}}
		}

		if err := signCookie(w, s.cfg.PrivKey, sessionCookie{Name: name, ServerAddr: s.cfg.Addr}); err != nil {
			log.L().Error().Err(err).Msg("api: failed to sign session cookie")
			respondError(w, r, http.StatusInternalServerError, errInternal)
			return
		}

		respondJSON(w, resp)
	}
}

type reasonRequest struct {
	Reason string `json:"reason,omitempty"`
}

// handleTeardown implements POST /echo/3/teardown and PUT /echo/4/teardown,
// forwarding to the owning node when the cookie's server_addr differs
// (spec.md §6.1, end-to-end scenario 6).
func (s *Server) handleTeardown(w http.ResponseWriter, r *http.Request) {
	cookie, ok := s.requireCookie(w, r)
	if !ok {
		return
	}
	if s.forwardIfForeign(w, r, cookie) {
		return
	}

	reason := readReason(r)
	if err := s.manager.ReleaseSession(r.Context(), cookie.Name, cookie.SessionID, reason); err != nil {
		s.respondSessionErr(w, r, err)
		return
	}

	type teardownResponse struct {
		Teardown struct {
			Name types.AppName `json:"name"`
		} `json:"teardown"`
	}
	var resp teardownResponse
	resp.Teardown.Name = cookie.Name
	respondJSON(w, resp)
}

func (s *Server) handlePause(w http.ResponseWriter, r *http.Request) {
	cookie, ok := s.requireCookie(w, r)
	if !ok {
		return
	}
	if s.forwardIfForeign(w, r, cookie) {
		return
	}
	if err := s.manager.PauseSession(r.Context(), cookie.Name, cookie.SessionID, readReason(r)); err != nil {
		s.respondSessionErr(w, r, err)
		return
	}
	respondJSON(w, map[string]any{"pause": map[string]any{"name": cookie.Name}})
}

func (s *Server) handleResume(w http.ResponseWriter, r *http.Request) {
	cookie, ok := s.requireCookie(w, r)
	if !ok {
		return
	}
	if s.forwardIfForeign(w, r, cookie) {
		return
	}
	if err := s.manager.ResumeSession(r.Context(), cookie.Name, cookie.SessionID, readReason(r)); err != nil {
		s.respondSessionErr(w, r, err)
		return
	}
	respondJSON(w, map[string]any{"resume": map[string]any{"name": cookie.Name}})
}

// handleState implements GET /echo/4/state, reading the live snapshot from
// internal/stat's store.
func (s *Server) handleState(w http.ResponseWriter, r *http.Request) {
	cookie, ok := s.requireCookie(w, r)
	if !ok {
		return
	}
	if s.forwardIfForeign(w, r, cookie) {
		return
	}

	snap, found := s.stats.Get(cookie.SessionID)
	if !found {
		respondError(w, r, http.StatusNotFound, errNotFound)
		return
	}

	type qualityDTO struct {
		TotalCount  uint64 `json:"total_count"`
		DropCount   uint64 `json:"drop_count"`
		BadCount    uint64 `json:"bad_count"`
		FillerCount uint64 `json:"filler_count"`
	}
	respondJSON(w, map[string]any{
		"name":     snap.Name,
		"protocol": snap.Protocol,
		"state":    snap.State,
		"quality": qualityDTO{
			TotalCount:  snap.Quality.TotalCount,
			DropCount:   snap.Quality.DropCount,
			BadCount:    snap.Quality.BadCount,
			FillerCount: snap.Quality.FillerCount,
		},
	})
}

func readReason(r *http.Request) types.StateReason {
	var req reasonRequest
	if r.Body != nil {
		_ = json.NewDecoder(r.Body).Decode(&req)
	}
	if req.Reason == "" {
		return types.ReasonUnknown()
	}
	return types.NewStateReason(50000, req.Reason)
}

func (s *Server) requireCookie(w http.ResponseWriter, r *http.Request) (sessionCookie, bool) {
	cookie, err := readCookie(r, s.cfg.PrivKey)
	if err != nil {
		respondError(w, r, http.StatusUnauthorized, errUnauthorized)
		return sessionCookie{}, false
	}
	return cookie, true
}

// forwardIfForeign proxies the request to the node that issued the cookie
// when it isn't this one, copying back its status and body verbatim
// (spec.md §6.1 "forwards to the owning node if server_addr differs").
func (s *Server) forwardIfForeign(w http.ResponseWriter, r *http.Request, cookie sessionCookie) bool {
	if cookie.ServerAddr == "" || cookie.ServerAddr == s.cfg.Addr {
		return false
	}
	s.forward(w, r, cookie.ServerAddr)
	return true
}

func (s *Server) respondSessionErr(w http.ResponseWriter, r *http.Request, err error) {
	switch {
	case errors.Is(err, session.ErrSessionNotFound):
		respondError(w, r, http.StatusNotFound, errNotFound)
	case errors.Is(err, session.ErrManagerClosed):
		respondError(w, r, http.StatusServiceUnavailable, errInternal)
	default:
		log.L().Error().Err(err).Msg("api: session operation failed")
		respondError(w, r, http.StatusInternalServerError, errInternal)
	}
}
