package indexserver

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"slices"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"gopkg.in/op/go-logging.v1"

	"dualinbox/internal/crypto"
	"dualinbox/internal/domain"
	"dualinbox/internal/index"
	"dualinbox/internal/log"
	"dualinbox/internal/services/registration"
	"dualinbox/internal/storage"
)

const maxBlobBytes = 64 << 20

type decision struct {
	accept bool
	block  bool
}

type metrics struct {
	registrations *prometheus.CounterVec
	blobs         prometheus.Counter
	requests      *prometheus.CounterVec
}

func newMetrics(reg prometheus.Registerer) (*metrics, error) {
	m := &metrics{
		registrations: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "dualinbox_index_registrations_total",
			Help: "Topic registrations received, by outcome.",
		}, []string{"outcome"}),
		blobs: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "dualinbox_index_blobs_stored_total",
			Help: "Blobs stored.",
		}),
		requests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "dualinbox_index_requests_total",
			Help: "HTTP requests served, by status code and method.",
		}, []string{"code", "method"}),
	}
	for _, c := range []prometheus.Collector{m.registrations, m.blobs, m.requests} {
		if err := reg.Register(c); err != nil {
			return nil, err
		}
	}
	return m, nil
}

// Server holds the index state.
type Server struct {
	log     *logging.Logger
	metrics *metrics
	gather  prometheus.Gatherer

	mu     sync.RWMutex
	owners map[string]map[string]decision
	blobs  map[string][]byte
}

// New returns an empty Server registering its metrics with reg.
func New(backend *log.Backend, reg *prometheus.Registry) (*Server, error) {
	m, err := newMetrics(reg)
	if err != nil {
		return nil, err
	}
	return &Server{
		log:     backend.GetLogger("indexd"),
		metrics: m,
		gather:  reg,
		owners:  make(map[string]map[string]decision),
		blobs:   make(map[string][]byte),
	}, nil
}

// Handler returns the HTTP API.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("POST "+index.RegisterPath, s.handleRegister)
	mux.HandleFunc("GET "+index.ConsentPath+"{address}", s.handleConsent)
	mux.HandleFunc("PUT "+storage.BlobPath, s.handlePutBlob)
	mux.HandleFunc("GET "+storage.BlobPath+"{digest}", s.handleGetBlob)
	mux.Handle("GET /metrics", promhttp.HandlerFor(s.gather, promhttp.HandlerOpts{}))
	return s.accessLog(promhttp.InstrumentHandlerCounter(s.metrics.requests, mux))
}

func (s *Server) handleRegister(w http.ResponseWriter, r *http.Request) {
	defer r.Body.Close()
	var req domain.RegistrationRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	owner, err := domain.ParseAddress(req.OwnerAddress)
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	inboxKey, err := proofKey(req.SignedPublicKey)
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	accepted := make(map[string]decision, len(req.Registrations))
	for _, reg := range req.Registrations {
		sig, err := crypto.UnB64(reg.Signature)
		if err != nil || reg.Topic == "" ||
			!crypto.VerifyEd25519(inboxKey, registration.SigningPayload(owner, reg.Topic), sig) {
			s.metrics.registrations.WithLabelValues("rejected").Inc()
			continue
		}
		d := decision{accept: isSet(reg.Accept), block: isSet(reg.Block)}
		if d.accept && d.block {
			s.metrics.registrations.WithLabelValues("rejected").Inc()
			continue
		}
		accepted[reg.Topic] = d
		s.metrics.registrations.WithLabelValues("accepted").Inc()
	}

	s.mu.Lock()
	topics, ok := s.owners[owner.Key()]
	if !ok {
		topics = make(map[string]decision)
		s.owners[owner.Key()] = topics
	}
	for t, d := range accepted {
		topics[t] = d
	}
	s.mu.Unlock()

	s.log.Infof("Registered %d/%d topics for %s", len(accepted), len(req.Registrations), owner)
	writeJSON(w, index.RegisterResponse{Count: len(accepted)})
}

func proofKey(signedPublicKey string) ([]byte, error) {
	proof, err := crypto.UnB64(signedPublicKey)
	if err != nil {
		return nil, err
	}
	if len(proof) < 32 {
		return nil, errors.New("signed public key too short")
	}
	return proof[:32], nil
}

func isSet(v *bool) bool { return v != nil && *v }

func (s *Server) handleConsent(w http.ResponseWriter, r *http.Request) {
	owner, err := domain.ParseAddress(r.PathValue("address"))
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	s.mu.RLock()
	topics, ok := s.owners[owner.Key()]
	resp := domain.PreferencesResponse{AcceptedTopics: []string{}, BlockedTopics: []string{}}
	for t, d := range topics {
		switch {
		case d.accept:
			resp.AcceptedTopics = append(resp.AcceptedTopics, t)
		case d.block:
			resp.BlockedTopics = append(resp.BlockedTopics, t)
		}
	}
	s.mu.RUnlock()
	if !ok {
		http.Error(w, "not found", http.StatusNotFound)
		return
	}
	slices.Sort(resp.AcceptedTopics)
	slices.Sort(resp.BlockedTopics)
	writeJSON(w, resp)
}

func (s *Server) handlePutBlob(w http.ResponseWriter, r *http.Request) {
	defer r.Body.Close()
	data, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxBlobBytes))
	if err != nil {
		http.Error(w, err.Error(), http.StatusRequestEntityTooLarge)
		return
	}
	digest := crypto.Digest(data)
	s.mu.Lock()
	s.blobs[digest] = data
	s.mu.Unlock()
	s.metrics.blobs.Inc()

	scheme := "http"
	if r.TLS != nil || r.Header.Get("X-Forwarded-Proto") == "https" {
		scheme = "https"
	}
	w.Header().Set("Content-Type", "text/plain")
	w.WriteHeader(http.StatusCreated)
	_, _ = io.WriteString(w, scheme+"://"+r.Host+storage.BlobPath+digest)
}

func (s *Server) handleGetBlob(w http.ResponseWriter, r *http.Request) {
	s.mu.RLock()
	data, ok := s.blobs[r.PathValue("digest")]
	s.mu.RUnlock()
	if !ok {
		http.Error(w, "not found", http.StatusNotFound)
		return
	}
	w.Header().Set("Content-Type", "application/octet-stream")
	_, _ = w.Write(data)
}

func writeJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(v)
}

type statusRecorder struct {
	http.ResponseWriter
	status int
	bytes  int
}

func (r *statusRecorder) WriteHeader(code int) {
	r.status = code
	r.ResponseWriter.WriteHeader(code)
}

func (r *statusRecorder) Write(b []byte) (int, error) {
	if r.status == 0 {
		r.status = http.StatusOK
	}
	n, err := r.ResponseWriter.Write(b)
	r.bytes += n
	return n, err
}

func (s *Server) accessLog(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		rec := &statusRecorder{ResponseWriter: w}
		next.ServeHTTP(rec, r)
		s.log.Debugf("%s %s from %s: %d %dB %s", r.Method, r.URL.Path, r.RemoteAddr, rec.status, rec.bytes, time.Since(start))
	})
}
