// Package httpapi exposes the scan workflow and the dashboard reports as JSON.
package httpapi

import (
	"context"
	"errors"
	"io"
	"net"
	"net/http"
	"strings"
	"time"

	jsoniter "github.com/json-iterator/go"
	"go.uber.org/zap"

	"library-circulation/barcode"
	"library-circulation/circulation"
	"library-circulation/internal/auth"
	"library-circulation/library"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

// Catalog is the read side the API needs besides the workflow.
type Catalog interface {
	LookupBook(ctx context.Context, code string) (*library.Book, error)
	Summary(ctx context.Context, now time.Time) (*library.Summary, error)
	OverdueLoans(ctx context.Context, now time.Time) ([]*library.OverdueLoan, error)
}

type Server struct {
	svc     *circulation.Service
	catalog Catalog
	gate    *auth.Gate
	prefix  string
	log     *zap.Logger
	now     func() time.Time
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (sr *statusRecorder) WriteHeader(code int) {
	sr.status = code
	sr.ResponseWriter.WriteHeader(code)
}

func New(svc *circulation.Service, catalog Catalog, gate *auth.Gate, prefix string, log *zap.Logger) *Server {
	if gate == nil {
		gate = auth.NewGate(nil)
	}
	if log == nil {
		log = zap.NewNop()
	}
	if prefix == "" {
		prefix = barcode.DefaultPrefix
	}
	return &Server{
		svc:     svc,
		catalog: catalog,
		gate:    gate,
		prefix:  prefix,
		log:     log,
		now:     time.Now,
	}
}

func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /api/health", s.handleHealth)
	mux.HandleFunc("GET /api/items/{barcode}", s.withStaff(s.handleItem))
	mux.HandleFunc("POST /api/scan", s.withStaff(s.handleScan))
	mux.HandleFunc("POST /api/barcodes", s.withStaff(s.handleGenerate))
	mux.HandleFunc("GET /api/barcodes/{barcode}", s.handleValidate)
	mux.HandleFunc("GET /api/reports/summary", s.withStaff(s.handleSummary))
	mux.HandleFunc("GET /api/reports/overdue", s.withStaff(s.handleOverdue))
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		mux.ServeHTTP(rec, r)
		s.log.Info("http",
			zap.String("method", r.Method),
			zap.String("path", r.URL.Path),
			zap.Int("status", rec.status),
			zap.Duration("took", time.Since(start)))
	})
}

// ListenAndServe serves until ctx is cancelled, then shuts down gracefully.
func (s *Server) ListenAndServe(ctx context.Context, addr string) error {
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return err
	}
	return s.Serve(ctx, ln)
}

// Serve is ListenAndServe on an existing listener.
func (s *Server) Serve(ctx context.Context, ln net.Listener) error {
	srv := &http.Server{
		Handler:           s.Handler(),
		ReadHeaderTimeout: 5 * time.Second,
	}
	errc := make(chan error, 1)
	go func() { errc <- srv.Serve(ln) }()
	s.log.Info("http api listening", zap.String("addr", ln.Addr().String()))

	select {
	case err := <-errc:
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return err
	}
	if err := <-errc; !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{"ok": true})
}

func (s *Server) handleItem(w http.ResponseWriter, r *http.Request, _ string) {
	code := r.PathValue("barcode")
	if !barcode.Validate(code) {
		writeError(w, circulation.ErrInvalidBarcode)
		return
	}
	book, err := s.catalog.LookupBook(r.Context(), code)
	if errors.Is(err, library.ErrNotFound) {
		writeError(w, circulation.ErrItemNotFound)
		return
	}
	if err != nil {
		s.log.Error("item lookup failed", zap.String("barcode", code), zap.Error(err))
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, book)
}

type scanRequest struct {
	Barcode  string `json:"barcode"`
	Intent   string `json:"intent"`
	MemberID int64  `json:"member_id"`
}

type scanResponse struct {
	Kind library.ScanKind `json:"kind"`
	Item *library.Book    `json:"item"`
	Loan *library.Loan    `json:"loan,omitempty"`
}

func (s *Server) handleScan(w http.ResponseWriter, r *http.Request, actor string) {
	var body scanRequest
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid json"})
		return
	}
	intent, err := circulation.ParseIntent(body.Intent)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": err.Error()})
		return
	}

	res, err := s.svc.Scan(r.Context(), circulation.ScanRequest{
		Barcode:  strings.TrimSpace(body.Barcode),
		Intent:   intent,
		MemberID: body.MemberID,
		Actor:    actor,
	})
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, scanResponse{Kind: res.Kind, Item: res.Item, Loan: res.Loan})
}

func (s *Server) handleGenerate(w http.ResponseWriter, r *http.Request, _ string) {
	var body struct {
		Identifier string `json:"identifier"`
		Prefix     string `json:"prefix"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil && !errors.Is(err, io.EOF) {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid json"})
		return
	}
	if strings.Contains(body.Prefix, "-") {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "prefix must not contain '-'"})
		return
	}

	var code string
	if body.Identifier == "" {
		code = barcode.GenerateRandom(barcode.DefaultSource)
	} else {
		prefix := body.Prefix
		if prefix == "" {
			prefix = s.prefix
		}
		code = barcode.GenerateWithPrefix(body.Identifier, prefix)
	}
	writeJSON(w, http.StatusCreated, map[string]string{"barcode": code})
}

func (s *Server) handleValidate(w http.ResponseWriter, r *http.Request) {
	c, err := barcode.Parse(r.PathValue("barcode"))
	if err != nil {
		writeJSON(w, http.StatusOK, map[string]any{"valid": false, "error": err.Error()})
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"valid":      true,
		"prefix":     c.Prefix,
		"identifier": c.Identifier,
		"checksum":   c.Checksum,
	})
}

func (s *Server) handleSummary(w http.ResponseWriter, r *http.Request, _ string) {
	sum, err := s.catalog.Summary(r.Context(), s.now())
	if err != nil {
		s.log.Error("summary report failed", zap.Error(err))
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, sum)
}

func (s *Server) handleOverdue(w http.ResponseWriter, r *http.Request, _ string) {
	rows, err := s.catalog.OverdueLoans(r.Context(), s.now())
	if err != nil {
		s.log.Error("overdue report failed", zap.Error(err))
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, rows)
}

// withStaff checks HTTP basic credentials against the gate and passes the
// staff username on as the audit actor.
func (s *Server) withStaff(fn func(w http.ResponseWriter, r *http.Request, actor string)) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		user, pass, ok := r.BasicAuth()
		if s.gate.Open() {
			fn(w, r, user)
			return
		}
		if !ok {
			w.Header().Set("WWW-Authenticate", `Basic realm="library"`)
			writeJSON(w, http.StatusUnauthorized, map[string]string{"error": "credentials required"})
			return
		}
		if err := s.gate.Authorize(user, pass); err != nil {
			s.log.Warn("auth: rejected", zap.String("user", user), zap.String("remote", r.RemoteAddr), zap.Error(err))
			status := http.StatusUnauthorized
			if errors.Is(err, auth.ErrNotAllowed) {
				status = http.StatusForbidden
			}
			writeJSON(w, status, map[string]string{"error": err.Error()})
			return
		}
		fn(w, r, user)
	}
}

func writeError(w http.ResponseWriter, err error) {
	status := http.StatusInternalServerError
	switch {
	case errors.Is(err, circulation.ErrInvalidBarcode):
		status = http.StatusBadRequest
	case errors.Is(err, circulation.ErrItemNotFound):
		status = http.StatusNotFound
	case errors.Is(err, circulation.ErrGuard):
		status = http.StatusConflict
	}
	writeJSON(w, status, map[string]string{"error": circulation.Message(err)})
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}
