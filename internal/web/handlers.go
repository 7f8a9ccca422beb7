package web

import (
	"encoding/json"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/JonMunkholm/evesync/internal/access"
	"github.com/JonMunkholm/evesync/internal/cache"
	"github.com/JonMunkholm/evesync/internal/core"
)

// maxBodySize bounds JSON request bodies.
const maxBodySize = 64 << 10

// ============================================================================
// Request helpers
// ============================================================================

func keyIDParam(r *http.Request) (int64, error) {
	raw := chi.URLParam(r, "keyID")
	id, err := strconv.ParseInt(raw, 10, 64)
	if err != nil || id <= 0 {
		return 0, badRequest("key id must be a positive integer: " + raw)
	}
	return id, nil
}

func decodeJSON(w http.ResponseWriter, r *http.Request, v any) error {
	r.Body = http.MaxBytesReader(w, r.Body, maxBodySize)
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil {
		return badRequest("invalid request body: " + err.Error())
	}
	return nil
}

// ============================================================================
// Health and catalogue
// ============================================================================

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	if err := s.service.Ping(r.Context()); err != nil {
		writeJSON(w, http.StatusServiceUnavailable, map[string]string{"status": "unavailable"})
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) handleListEndpoints(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.service.ListEndpoints())
}

// ============================================================================
// Capability table
// ============================================================================

// handleListMasks lists the capability table, optionally for one section.
func (s *Server) handleListMasks(w http.ResponseWriter, r *http.Request) {
	section := strings.ToLower(strings.TrimSpace(r.URL.Query().Get("section")))
	entries := s.service.Registry().Entries()
	if section != "" {
		filtered := entries[:0:0]
		for _, e := range entries {
			if e.Section == section {
				filtered = append(filtered, e)
			}
		}
		entries = filtered
	}
	writeJSON(w, http.StatusOK, entries)
}

type maskResponse struct {
	Section string   `json:"section,omitempty"`
	Mask    int64    `json:"mask"`
	APIs    []string `json:"apis"`
}

// handleAPIsToMask resolves ?apis=A,B[&section=char] to a mask.
func (s *Server) handleAPIsToMask(w http.ResponseWriter, r *http.Request) {
	apis := r.URL.Query().Get("apis")
	section := r.URL.Query().Get("section")
	if strings.TrimSpace(apis) == "" {
		s.respondError(w, r, badRequest("apis query parameter is required"))
		return
	}

	mask, err := s.service.Registry().APIsToMask(apis, section)
	if err != nil {
		s.respondError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, maskResponse{
		Section: strings.ToLower(strings.TrimSpace(section)),
		Mask:    mask,
		APIs:    splitNames(apis),
	})
}

// handleMaskToAPIs expands a mask within a section.
func (s *Server) handleMaskToAPIs(w http.ResponseWriter, r *http.Request) {
	section := chi.URLParam(r, "section")
	raw := chi.URLParam(r, "mask")
	mask, err := strconv.ParseInt(raw, 10, 64)
	if err != nil {
		s.respondError(w, r, badRequest("mask must be an integer: "+raw))
		return
	}

	apis, err := s.service.Registry().MaskToAPIs(mask, section)
	if err != nil {
		s.respondError(w, r, err)
		return
	}
	if apis == nil {
		apis = []string{}
	}
	writeJSON(w, http.StatusOK, maskResponse{Section: section, Mask: mask, APIs: apis})
}

func splitNames(s string) []string {
	var out []string
	for _, n := range strings.Split(s, ",") {
		if n = strings.TrimSpace(n); n != "" {
			out = append(out, n)
		}
	}
	return out
}

// ============================================================================
// Registered keys
// ============================================================================

type keyResponse struct {
	*access.Key
	Capabilities []string `json:"capabilities"`
	Changed      *bool    `json:"changed,omitempty"`
}

func (s *Server) keyResponse(k *access.Key) keyResponse {
	return keyResponse{Key: k, Capabilities: k.ActiveAPIs(s.service.Registry())}
}

func (s *Server) handleGetKey(w http.ResponseWriter, r *http.Request) {
	id, err := keyIDParam(r)
	if err != nil {
		s.respondError(w, r, err)
		return
	}
	k, err := s.service.Key(r.Context(), id)
	if err != nil {
		s.respondError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, s.keyResponse(k))
}

type putKeyRequest struct {
	VCode  *string `json:"v_code"`
	Active *bool   `json:"active"`
}

// handlePutKey registers a key or updates its verification code and
// active flag.
func (s *Server) handlePutKey(w http.ResponseWriter, r *http.Request) {
	id, err := keyIDParam(r)
	if err != nil {
		s.respondError(w, r, err)
		return
	}
	var req putKeyRequest
	if err := decodeJSON(w, r, &req); err != nil {
		s.respondError(w, r, err)
		return
	}
	if req.VCode == nil && req.Active == nil {
		s.respondError(w, r, badRequest("v_code or active is required"))
		return
	}

	var k *access.Key
	if req.VCode != nil {
		if k, err = s.service.RegisterKey(r.Context(), id, *req.VCode); err != nil {
			s.respondError(w, r, err)
			return
		}
	}
	if req.Active != nil {
		if k, err = s.service.SetKeyActive(r.Context(), id, *req.Active); err != nil {
			s.respondError(w, r, err)
			return
		}
	}
	writeJSON(w, http.StatusOK, s.keyResponse(k))
}

type capabilityRequest struct {
	API     string `json:"api"`
	Section string `json:"section"`
}

func (s *Server) handleAddCapability(w http.ResponseWriter, r *http.Request) {
	id, err := keyIDParam(r)
	if err != nil {
		s.respondError(w, r, err)
		return
	}
	var req capabilityRequest
	if err := decodeJSON(w, r, &req); err != nil {
		s.respondError(w, r, err)
		return
	}
	if strings.TrimSpace(req.API) == "" {
		s.respondError(w, r, badRequest("api is required"))
		return
	}

	k, already, err := s.service.AddCapability(r.Context(), id, req.API, req.Section)
	if err != nil {
		s.respondError(w, r, err)
		return
	}
	changed := !already
	resp := s.keyResponse(k)
	resp.Changed = &changed
	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) handleRemoveCapability(w http.ResponseWriter, r *http.Request) {
	id, err := keyIDParam(r)
	if err != nil {
		s.respondError(w, r, err)
		return
	}

	k, was, err := s.service.RemoveCapability(r.Context(), id, chi.URLParam(r, "api"), r.URL.Query().Get("section"))
	if err != nil {
		s.respondError(w, r, err)
		return
	}
	resp := s.keyResponse(k)
	resp.Changed = &was
	writeJSON(w, http.StatusOK, resp)
}

// ============================================================================
// Locks and diagnostics
// ============================================================================

func (s *Server) handleListLocks(w http.ResponseWriter, r *http.Request) {
	locks, err := s.service.Locks(r.Context())
	if err != nil {
		s.respondError(w, r, err)
		return
	}
	if locks == nil {
		locks = []cache.Lock{}
	}
	writeJSON(w, http.StatusOK, locks)
}

// handleReapLocks removes locks older than ?stale_after (default from
// configuration).
func (s *Server) handleReapLocks(w http.ResponseWriter, r *http.Request) {
	staleAfter := s.cfg.Lock.StaleAfter
	if raw := r.URL.Query().Get("stale_after"); raw != "" {
		d, err := time.ParseDuration(raw)
		if err != nil || d < 0 {
			s.respondError(w, r, badRequest("stale_after must be a non-negative duration: "+raw))
			return
		}
		staleAfter = d
	}
	reaped := s.service.ReapLocks(r.Context(), staleAfter)
	writeJSON(w, http.StatusOK, map[string]any{"reaped": reaped, "stale_after": staleAfter.String()})
}

func (s *Server) handleRecentDocuments(w http.ResponseWriter, r *http.Request) {
	limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))
	docs, err := s.service.Archive().Recent(r.Context(), limit)
	if err != nil {
		s.respondError(w, r, err)
		return
	}
	if docs == nil {
		docs = []core.RawDocument{}
	}
	writeJSON(w, http.StatusOK, docs)
}

func (s *Server) handleLimiterStatus(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.service.Limiter().Status())
}

// ============================================================================
// Manual polls
// ============================================================================

func (s *Server) handlePoll(w http.ResponseWriter, r *http.Request) {
	summary, err := s.service.Poll(r.Context())
	if err != nil {
		s.respondError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, summary)
}

func (s *Server) handlePollKey(w http.ResponseWriter, r *http.Request) {
	id, err := keyIDParam(r)
	if err != nil {
		s.respondError(w, r, err)
		return
	}
	summary, err := s.service.PollKey(r.Context(), id)
	if err != nil {
		s.respondError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, summary)
}

// handleRunEndpoint runs one cycle. Query parameters other than owner_id
// become request arguments.
func (s *Server) handleRunEndpoint(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	var owner int64
	if raw := q.Get("owner_id"); raw != "" {
		v, err := strconv.ParseInt(raw, 10, 64)
		if err != nil {
			s.respondError(w, r, badRequest("owner_id must be an integer: "+raw))
			return
		}
		owner = v
	}

	var args []core.Arg
	for name, values := range q {
		if name == "owner_id" || len(values) == 0 {
			continue
		}
		args = append(args, core.Arg{Name: name, Value: values[0]})
	}

	res, err := s.service.RunEndpoint(r.Context(), chi.URLParam(r, "section"), chi.URLParam(r, "name"), owner, args...)
	if err != nil {
		s.respondError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}
