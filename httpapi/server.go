// Package httpapi wraps backend.Coordinator and projectindex.Index in the
// HTTP surface crowdfund clients and pledgers talk to.
package httpapi

import (
	"errors"
	"io"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/lightningnetwork/lnd/clock"
	"github.com/vinumeris/lighthouse/backend"
	"github.com/vinumeris/lighthouse/envelope"
	"github.com/vinumeris/lighthouse/pledge"
	"github.com/vinumeris/lighthouse/projectindex"
)

// maxPledgeUploadSize is the POST body cap a pledge upload is held to.
const maxPledgeUploadSize = 1 << 20 // 1 MiB

// Server holds the dependencies every handler needs.
type Server struct {
	Coordinator *backend.Coordinator
	Index       *projectindex.Index

	// Clock stamps every status response; overridden in tests with
	// clock.NewTestClock for deterministic Timestamp assertions.
	Clock clock.Clock
}

// clock returns s.Clock, defaulting to the wall clock when the caller left
// it unset.
func (s *Server) clock() clock.Clock {
	if s.Clock == nil {
		return clock.NewDefaultClock()
	}
	return s.Clock
}

// NewRouter builds the chi router for s's endpoints.
func NewRouter(s *Server) chi.Router {
	r := chi.NewRouter()
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Logger)

	r.Route(projectindex.URLPathPrefix+"{idWithFormat}", func(r chi.Router) {
		r.Get("/", s.handleGetProject)
		r.Post("/", s.handlePostPledge)
	})

	return r
}

func (s *Server) handleGetProject(w http.ResponseWriter, r *http.Request) {
	idWithFormat := chi.URLParam(r, "idWithFormat")
	id, format, err := projectindex.ParsePathID(projectindex.URLPathPrefix + idWithFormat)
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	proj, ok := s.Index.Lookup(id)
	if !ok {
		http.NotFound(w, r)
		return
	}

	if format == formatRawProject {
		w.Header().Set("Content-Type", rawProjectMimeType)
		w.Write(proj.Bytes())
		return
	}

	snap, err := s.Coordinator.Snapshot(r.Context(), id)
	if err != nil {
		http.NotFound(w, r)
		return
	}

	authenticated := authenticateRequest(r, proj)
	status := buildStatus(proj, snap, authenticated, s.clock().Now().Unix())

	writeStatus(w, format, status)
}

func (s *Server) handlePostPledge(w http.ResponseWriter, r *http.Request) {
	idWithFormat := chi.URLParam(r, "idWithFormat")
	id, _, err := projectindex.ParsePathID(projectindex.URLPathPrefix + idWithFormat)
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	if _, ok := s.Index.Lookup(id); !ok {
		http.NotFound(w, r)
		return
	}

	r.Body = http.MaxBytesReader(w, r.Body, maxPledgeUploadSize)
	raw, err := readAll(r)
	if err != nil {
		http.Error(w, "pledge too large", http.StatusBadRequest)
		return
	}

	if err := s.Coordinator.SubmitPledge(r.Context(), id, raw); err != nil {
		if isInfrastructureError(err) {
			log.Errorf("pledge submission for project %v failed: %v", id, err)
			http.Error(w, err.Error(), http.StatusInternalServerError)
			return
		}
		log.Debugf("rejected pledge for project %v: %v", id, err)
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	w.WriteHeader(http.StatusOK)
}

// isInfrastructureError reports whether err reflects a failure of the
// backend's own plumbing (store, oracle transport) rather than a fault in
// the submitted pledge. Unknown project, closed project, duplicate pledge,
// a malformed envelope, or any pledge.ValidationError other than one of
// Kind Transport is the submitter's fault and gets 400 instead.
func isInfrastructureError(err error) bool {
	if errors.Is(err, backend.ErrNoStoreExists) {
		return true
	}
	if errors.Is(err, backend.ErrProjectNotFound) || errors.Is(err, backend.ErrProjectClosed) ||
		errors.Is(err, backend.ErrDuplicatePledge) {
		return false
	}
	var verr *pledge.ValidationError
	if errors.As(err, &verr) {
		return verr.Kind == pledge.KindTransport
	}
	var merr *envelope.ErrMalformed
	return !errors.As(err, &merr)
}

func readAll(r *http.Request) ([]byte, error) {
	defer r.Body.Close()
	return io.ReadAll(r.Body)
}
