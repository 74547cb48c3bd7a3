// Copyright 2026 Blink Labs Software
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package api

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"github.com/blinklabs-io/warden/database/models"
	"github.com/blinklabs-io/warden/database/types"
	"github.com/blinklabs-io/warden/mute"
)

const (
	codeBadRequest        = "bad_request"
	codeInvalidDuration   = "invalid_duration"
	codeAlreadyMuted      = "already_muted"
	codeNotMuted          = "not_muted"
	codeMuteNotFound      = "mute_not_found"
	codeGuildNotFound     = "guild_not_found"
	codeMuteRoleNotSet    = "mute_role_not_configured"
	codeInternal          = "internal_error"
	maxRequestBodyBytes   = 1 << 16
	defaultListMutesLimit = 100
)

// errorCodes maps domain errors to their HTTP status and code
var errorCodes = []struct {
	err    error
	status int
	code   string
}{
	{mute.ErrInvalidDuration, http.StatusBadRequest, codeInvalidDuration},
	{mute.ErrAlreadyMuted, http.StatusConflict, codeAlreadyMuted},
	{mute.ErrNotMuted, http.StatusNotFound, codeNotMuted},
	{mute.ErrMuteNotFound, http.StatusNotFound, codeMuteNotFound},
	{types.ErrGuildNotFound, http.StatusNotFound, codeGuildNotFound},
	{mute.ErrMuteRoleNotConfigured, http.StatusPreconditionFailed, codeMuteRoleNotSet},
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	//nolint:errcheck,errchkjson
	json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, code string, message string) {
	writeJSON(w, status, ErrorResponse{
		StatusCode: status,
		Code:       code,
		Message:    message,
	})
}

// writeDomainError writes the response for an error returned by the
// moderator, logging anything that is not a domain error
func (s *Server) writeDomainError(w http.ResponseWriter, r *http.Request, err error) {
	for _, ec := range errorCodes {
		if errors.Is(err, ec.err) {
			writeError(w, ec.status, ec.code, err.Error())
			return
		}
	}
	s.logger.Error(
		"request failed",
		"method", r.Method,
		"path", r.URL.Path,
		"error", err,
	)
	writeError(w, http.StatusInternalServerError, codeInternal, "internal server error")
}

// snowflakeParam parses a path parameter, writing a 400 on failure
func snowflakeParam(w http.ResponseWriter, r *http.Request, name string) (types.Snowflake, bool) {
	id, err := types.ParseSnowflake(r.PathValue(name))
	if err != nil {
		writeError(w, http.StatusBadRequest, codeBadRequest, "invalid "+name+" id")
		return 0, false
	}
	return id, true
}

func decodeBody(w http.ResponseWriter, r *http.Request, dest any) bool {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxRequestBodyBytes))
	dec.DisallowUnknownFields()
	if err := dec.Decode(dest); err != nil {
		writeError(w, http.StatusBadRequest, codeBadRequest, "invalid request body: "+err.Error())
		return false
	}
	return true
}

// muteResponse builds the response for a mute operation that may have
// succeeded with a role warning
func (s *Server) muteResponse(
	w http.ResponseWriter,
	r *http.Request,
	status int,
	m *models.Mute,
	err error,
) {
	if err != nil {
		if m == nil || !errors.Is(err, mute.ErrRoleApplyFailed) {
			s.writeDomainError(w, r, err)
			return
		}
		writeJSON(w, status, MuteResponse{Mute: m, Warning: err.Error()})
		return
	}
	writeJSON(w, status, MuteResponse{Mute: m})
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, HealthResponse{IsHealthy: true})
}

func (s *Server) handleListMutes(w http.ResponseWriter, r *http.Request) {
	guildID, ok := snowflakeParam(w, r, "guild")
	if !ok {
		return
	}
	filter := models.MuteFilter{
		GuildID: &guildID,
		Limit:   defaultListMutesLimit,
	}
	query := r.URL.Query()
	if user := query.Get("user"); user != "" {
		userID, err := types.ParseSnowflake(user)
		if err != nil {
			writeError(w, http.StatusBadRequest, codeBadRequest, "invalid user id")
			return
		}
		filter.UserID = &userID
	}
	if active := query.Get("active"); active != "" {
		v, err := strconv.ParseBool(active)
		if err != nil {
			writeError(w, http.StatusBadRequest, codeBadRequest, "invalid active flag")
			return
		}
		filter.ActiveOnly = v
	}
	if limit := query.Get("limit"); limit != "" {
		v, err := strconv.Atoi(limit)
		if err != nil || v < 0 {
			writeError(w, http.StatusBadRequest, codeBadRequest, "invalid limit")
			return
		}
		filter.Limit = v
	}
	switch query.Get("order") {
	case "", "asc":
	case "desc":
		filter.Descending = true
	default:
		writeError(w, http.StatusBadRequest, codeBadRequest, "order must be asc or desc")
		return
	}
	mutes, err := s.moderator.ListMutes(r.Context(), filter)
	if err != nil {
		s.writeDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, mutes)
}

func (s *Server) handleMute(w http.ResponseWriter, r *http.Request) {
	guildID, ok := snowflakeParam(w, r, "guild")
	if !ok {
		return
	}
	var req MuteRequest
	if !decodeBody(w, r, &req) {
		return
	}
	d, err := mute.ParseDuration(req.Duration)
	if err != nil {
		s.writeDomainError(w, r, err)
		return
	}
	m, err := s.moderator.Mute(r.Context(), mute.MuteRequest{
		Reason:      req.Reason,
		Duration:    d,
		UserID:      req.UserID,
		GuildID:     guildID,
		ModeratorID: req.ModeratorID,
	})
	s.muteResponse(w, r, http.StatusCreated, m, err)
}

func (s *Server) handleActiveMute(w http.ResponseWriter, r *http.Request) {
	guildID, ok := snowflakeParam(w, r, "guild")
	if !ok {
		return
	}
	userID, ok := snowflakeParam(w, r, "user")
	if !ok {
		return
	}
	m, err := s.moderator.ActiveMute(r.Context(), userID, guildID)
	if err != nil {
		s.writeDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, m)
}

func (s *Server) handleUnmute(w http.ResponseWriter, r *http.Request) {
	guildID, ok := snowflakeParam(w, r, "guild")
	if !ok {
		return
	}
	userID, ok := snowflakeParam(w, r, "user")
	if !ok {
		return
	}
	m, err := s.moderator.Unmute(r.Context(), userID, guildID)
	s.muteResponse(w, r, http.StatusOK, m, err)
}

func (s *Server) handleDeleteMute(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.ParseUint(r.PathValue("id"), 10, 64)
	if err != nil {
		writeError(w, http.StatusBadRequest, codeBadRequest, "invalid mute id")
		return
	}
	m, err := s.moderator.DeleteMute(r.Context(), uint(id))
	if err != nil {
		s.writeDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, m)
}

func (s *Server) handleWarn(w http.ResponseWriter, r *http.Request) {
	guildID, ok := snowflakeParam(w, r, "guild")
	if !ok {
		return
	}
	var req WarnRequest
	if !decodeBody(w, r, &req) {
		return
	}
	warn, err := s.moderator.Warn(r.Context(), mute.WarnRequest{
		Reason:      req.Reason,
		UserID:      req.UserID,
		GuildID:     guildID,
		ModeratorID: req.ModeratorID,
	})
	if err != nil {
		s.writeDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, warn)
}

func (s *Server) handleWarns(w http.ResponseWriter, r *http.Request) {
	guildID, ok := snowflakeParam(w, r, "guild")
	if !ok {
		return
	}
	userID, ok := snowflakeParam(w, r, "user")
	if !ok {
		return
	}
	warns, err := s.moderator.Warns(r.Context(), userID, guildID)
	if err != nil {
		s.writeDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, warns)
}

type guildRole int

const (
	muteRole guildRole = iota
	modRole
)

func (s *Server) setRole(r *http.Request, which guildRole, guildID types.Snowflake, roleID *types.Snowflake) error {
	if which == modRole {
		return s.moderator.SetModRole(r.Context(), guildID, roleID)
	}
	return s.moderator.SetMuteRole(r.Context(), guildID, roleID)
}

func (s *Server) handleGetRole(which guildRole) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		guildID, ok := snowflakeParam(w, r, "guild")
		if !ok {
			return
		}
		resp := RoleResponse{GuildID: guildID}
		guild, err := s.moderator.Guild(r.Context(), guildID)
		switch {
		case errors.Is(err, types.ErrGuildNotFound):
		case err != nil:
			s.writeDomainError(w, r, err)
			return
		case which == modRole:
			resp.RoleID = guild.ModRoleID
		default:
			resp.RoleID = guild.MuteRoleID
		}
		writeJSON(w, http.StatusOK, resp)
	}
}

func (s *Server) handleSetRole(which guildRole) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		guildID, ok := snowflakeParam(w, r, "guild")
		if !ok {
			return
		}
		var req RoleRequest
		if !decodeBody(w, r, &req) {
			return
		}
		if err := s.setRole(r, which, guildID, &req.RoleID); err != nil {
			s.writeDomainError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, RoleResponse{GuildID: guildID, RoleID: &req.RoleID})
	}
}

func (s *Server) handleClearRole(which guildRole) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		guildID, ok := snowflakeParam(w, r, "guild")
		if !ok {
			return
		}
		if err := s.setRole(r, which, guildID, nil); err != nil {
			s.writeDomainError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, RoleResponse{GuildID: guildID})
	}
}
