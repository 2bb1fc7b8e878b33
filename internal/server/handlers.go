package server

import (
	"encoding/json"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/hyperjump/kinji/internal/models"
	"github.com/hyperjump/kinji/internal/resource"
	"github.com/hyperjump/kinji/internal/search"
	"github.com/hyperjump/kinji/internal/session"
	"github.com/hyperjump/kinji/internal/storage"
	"github.com/hyperjump/kinji/internal/vector"
	"github.com/hyperjump/kinji/internal/view"
)

type searchRequest struct {
	Query string `json:"query"`
	K     int    `json:"k"`
}

// snapshot returns the current snapshot or writes a 503.
func (s *Server) snapshot(w http.ResponseWriter, r *http.Request) (*resource.Snapshot, bool) {
	snap, err := s.registry.Get(r.Context(), s.config)
	if err != nil {
		status, kind := classify(err)
		if status == http.StatusInternalServerError {
			status, kind = http.StatusServiceUnavailable, "unavailable"
		}
		s.logger.Error("snapshot unavailable", zap.Error(err))
		s.respondJSON(w, status, errorBody{Error: err.Error(), Kind: kind})
		return nil, false
	}
	return snap, true
}

func (s *Server) handleSearch(w http.ResponseWriter, r *http.Request) {
	var req searchRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.respondError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	snap, ok := s.snapshot(w, r)
	if !ok {
		return
	}
	k := s.config.Search.ClampK(req.K)
	s.logger.Debug("search request", zap.String("query", req.Query), zap.Int("k", k))
	resp, err := snap.Engine.Search(r.Context(), search.Text{Query: req.Query}, k)
	if err != nil {
		s.fail(w, "search failed", err)
		return
	}
	s.respondJSON(w, http.StatusOK, resp)
}

func (s *Server) handleSimilar(w http.ResponseWriter, r *http.Request) {
	snap, ok := s.snapshot(w, r)
	if !ok {
		return
	}
	k, err := queryInt(r, "k")
	if err != nil {
		s.respondError(w, http.StatusBadRequest, "invalid k")
		return
	}
	k = s.config.Search.ClampK(k)
	id := models.RecordID(chi.URLParam(r, "id"))
	resp, err := snap.Engine.Search(r.Context(), search.ByIdentity{ID: id}, k)
	if err != nil {
		s.fail(w, "similar failed", err)
		return
	}
	s.respondJSON(w, http.StatusOK, resp)
}

type recordsResponse struct {
	Total   int              `json:"total"`
	Offset  int              `json:"offset"`
	Records []*models.Record `json:"records"`
}

// filterFromQuery reads year_from, year_to, journal (repeatable), q and fuzzy.
func filterFromQuery(r *http.Request) (view.Filter, error) {
	q := r.URL.Query()
	var f view.Filter
	var err error
	if f.YearFrom, err = queryInt(r, "year_from"); err != nil {
		return f, err
	}
	if f.YearTo, err = queryInt(r, "year_to"); err != nil {
		return f, err
	}
	f.Journals = q["journal"]
	f.Text = q.Get("q")
	f.Fuzzy = q.Get("fuzzy") == "true"
	return f, nil
}

func (s *Server) handleListRecords(w http.ResponseWriter, r *http.Request) {
	f, err := filterFromQuery(r)
	if err != nil {
		s.respondError(w, http.StatusBadRequest, "invalid filter: "+err.Error())
		return
	}
	offset, err := queryInt(r, "offset")
	if err != nil || offset < 0 {
		s.respondError(w, http.StatusBadRequest, "invalid offset")
		return
	}
	limit, err := queryInt(r, "limit")
	if err != nil || limit < 0 {
		s.respondError(w, http.StatusBadRequest, "invalid limit")
		return
	}
	snap, ok := s.snapshot(w, r)
	if !ok {
		return
	}
	_, ids, err := view.Apply(r.Context(), snap.Store, f, snap.Text)
	if err != nil {
		s.respondError(w, http.StatusBadRequest, err.Error())
		return
	}

	resp := recordsResponse{Total: len(ids), Offset: offset, Records: []*models.Record{}}
	if offset < len(ids) {
		page := ids[offset:]
		if limit > 0 && limit < len(page) {
			page = page[:limit]
		}
		for _, id := range page {
			rec, err := snap.Store.Get(id)
			if err != nil {
				s.fail(w, "list records failed", err)
				return
			}
			resp.Records = append(resp.Records, rec)
		}
	}
	s.respondJSON(w, http.StatusOK, resp)
}

func (s *Server) handleGetRecord(w http.ResponseWriter, r *http.Request) {
	snap, ok := s.snapshot(w, r)
	if !ok {
		return
	}
	rec, err := snap.Store.Get(models.RecordID(chi.URLParam(r, "id")))
	if err != nil {
		s.fail(w, "get record failed", err)
		return
	}
	s.respondJSON(w, http.StatusOK, rec)
}

type sessionResponse struct {
	ID    string        `json:"id"`
	State session.State `json:"state"`
}

func (s *Server) handleCreateSession(w http.ResponseWriter, r *http.Request) {
	id := s.sessions.Create()
	st, _ := s.sessions.Get(id)
	s.respondJSON(w, http.StatusCreated, sessionResponse{ID: id, State: st})
}

func (s *Server) handleGetSession(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	st, err := s.sessions.Get(id)
	if err != nil {
		s.fail(w, "get session failed", err)
		return
	}
	s.respondJSON(w, http.StatusOK, sessionResponse{ID: id, State: st})
}

func (s *Server) handleDeleteSession(w http.ResponseWriter, r *http.Request) {
	if err := s.sessions.Delete(chi.URLParam(r, "id")); err != nil {
		s.fail(w, "delete session failed", err)
		return
	}
	s.respondJSON(w, http.StatusOK, map[string]string{"status": "deleted"})
}

// eventRequest is the wire form of a selection event.
type eventRequest struct {
	Type string          `json:"type"`
	Text string          `json:"text,omitempty"`
	ID   models.RecordID `json:"id,omitempty"`
	K    int             `json:"k,omitempty"`
}

func (e eventRequest) event() (session.Event, bool) {
	switch e.Type {
	case "search":
		return session.Search{Text: e.Text}, true
	case "click_neighbor":
		return session.ClickNeighbor{ID: e.ID}, true
	case "search_focus_again":
		return session.SearchFocusAgain{}, true
	default:
		return nil, false
	}
}

func (s *Server) handleSessionEvent(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	var req eventRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.respondError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	ev, ok := req.event()
	if !ok {
		s.respondError(w, http.StatusBadRequest, "unknown event type: "+req.Type)
		return
	}
	if _, err := s.sessions.Get(id); err != nil {
		s.fail(w, "session event failed", err)
		return
	}
	snap, ok := s.snapshot(w, r)
	if !ok {
		return
	}
	st, err := s.sessions.Apply(r.Context(), id, snap.Engine, ev, s.config.Search.ClampK(req.K))
	if err != nil {
		s.fail(w, "session event failed", err)
		return
	}
	s.respondJSON(w, http.StatusOK, sessionResponse{ID: id, State: st})
}

type viewResponse struct {
	Projection   view.Projection `json:"projection"`
	VisibleCount int             `json:"visible_count"`
}

func (s *Server) handleSessionView(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	var f view.Filter
	if err := json.NewDecoder(r.Body).Decode(&f); err != nil {
		s.respondError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	st, err := s.sessions.Get(id)
	if err != nil {
		s.fail(w, "session view failed", err)
		return
	}
	snap, ok := s.snapshot(w, r)
	if !ok {
		return
	}
	visible, _, err := view.Apply(r.Context(), snap.Store, f, snap.Text)
	if err != nil {
		s.respondError(w, http.StatusBadRequest, err.Error())
		return
	}
	s.respondJSON(w, http.StatusOK, viewResponse{
		Projection:   view.Reconcile(visible, st.Focus, st.NeighborIDs()),
		VisibleCount: visible.Len(),
	})
}

func (s *Server) handleReload(w http.ResponseWriter, r *http.Request) {
	snap, err := s.Reload(r.Context())
	if err != nil {
		status, kind := classify(err)
		if status == http.StatusInternalServerError {
			status, kind = http.StatusServiceUnavailable, "unavailable"
		}
		s.logger.Error("reload failed", zap.Error(err))
		s.respondJSON(w, status, errorBody{Error: err.Error(), Kind: kind})
		return
	}
	s.respondJSON(w, http.StatusOK, map[string]interface{}{
		"status":  "reloaded",
		"records": snap.Store.Len(),
	})
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	s.respondJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

type statusResponse struct {
	Records        int                    `json:"records"`
	IndexSize      int                    `json:"index_size"`
	Dimension      int                    `json:"dimension"`
	Metric         string                 `json:"metric"`
	IndexType      string                 `json:"index_type"`
	FAISSAvailable bool                   `json:"faiss_available"`
	Manifest       *storage.Manifest      `json:"manifest,omitempty"`
	Artifacts      []storage.ArtifactSize `json:"artifacts"`
	DiskUsageBytes int64                  `json:"disk_usage_bytes"`
	Sessions       int                    `json:"sessions"`
	LoadedAt       time.Time              `json:"loaded_at"`
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	snap, ok := s.snapshot(w, r)
	if !ok {
		return
	}
	resp := statusResponse{
		Records:        snap.Store.Len(),
		IndexSize:      snap.Index.Size(),
		Dimension:      snap.Index.Dimension(),
		Metric:         snap.Index.Metric().String(),
		IndexType:      snap.Index.Type(),
		FAISSAvailable: vector.IsFAISSAvailable(),
		Manifest:       snap.Manifest,
		Sessions:       s.sessions.Len(),
		LoadedAt:       snap.LoadedAt,
	}
	var err error
	resp.Artifacts, resp.DiskUsageBytes, err = storage.ArtifactUsage(s.config.Storage.RecordsPath, s.config.Storage.IndexPath)
	if err != nil {
		s.logger.Warn("status: stat artifacts failed", zap.Error(err))
	}
	s.respondJSON(w, http.StatusOK, resp)
}

func queryInt(r *http.Request, name string) (int, error) {
	v := r.URL.Query().Get(name)
	if v == "" {
		return 0, nil
	}
	return strconv.Atoi(v)
}

// fail logs err and writes the mapped error response.
func (s *Server) fail(w http.ResponseWriter, msg string, err error) {
	status, kind := classify(err)
	if status >= http.StatusInternalServerError {
		s.logger.Error(msg, zap.Error(err))
	} else {
		s.logger.Debug(msg, zap.Error(err))
	}
	s.respondJSON(w, status, errorBody{Error: err.Error(), Kind: kind})
}

func (s *Server) respondJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(data)
}

func (s *Server) respondError(w http.ResponseWriter, status int, message string) {
	s.respondJSON(w, status, errorBody{Error: message, Kind: "bad_request"})
}
