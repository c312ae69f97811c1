// Package api provides the HTTP surface for KaraBot.
//
// It exposes the platform webhook (GET verification, POST delivery), a
// basic-auth admin surface over the conversation store, and static serving
// for uploaded media.
package api

import (
	"fmt"
	"log/slog"
	"net/http"
	"path/filepath"

	"github.com/karabot/karabot/internal/delivery"
	"github.com/karabot/karabot/internal/dispatch"
	"github.com/karabot/karabot/internal/flow"
	"github.com/karabot/karabot/internal/store"
	"github.com/karabot/karabot/internal/whatsapp"
)

// DefaultAddr is the listen address used when none is configured.
const DefaultAddr = ":8080"

// Opts holds configuration options for the API server.
type Opts struct {
	Addr          string
	VerifyToken   string
	AdminUsername string
	AdminPassword string
	UploadsDir    string
	MediaDir      string
	PublicBaseURL string
	ScriptPath    string
}

// Option defines a configuration option for the API server.
type Option func(*Opts)

// WithAddr sets the listen address.
func WithAddr(addr string) Option {
	return func(o *Opts) {
		o.Addr = addr
	}
}

// WithVerifyToken sets the webhook verification token.
func WithVerifyToken(token string) Option {
	return func(o *Opts) {
		o.VerifyToken = token
	}
}

// WithAdminCredentials sets the basic-auth credentials for the admin surface.
func WithAdminCredentials(username, password string) Option {
	return func(o *Opts) {
		o.AdminUsername = username
		o.AdminPassword = password
	}
}

// WithUploadsDir sets the directory for operator file uploads.
func WithUploadsDir(dir string) Option {
	return func(o *Opts) {
		o.UploadsDir = dir
	}
}

// WithMediaDir sets the directory for downloaded inbound media.
func WithMediaDir(dir string) Option {
	return func(o *Opts) {
		o.MediaDir = dir
	}
}

// WithPublicBaseURL sets the externally reachable base URL used to build
// upload links.
func WithPublicBaseURL(url string) Option {
	return func(o *Opts) {
		o.PublicBaseURL = url
	}
}

// WithScriptPath sets the conversation script file path.
func WithScriptPath(path string) Option {
	return func(o *Opts) {
		o.ScriptPath = path
	}
}

// Server holds the HTTP handlers and their collaborators.
type Server struct {
	opts       Opts
	st         store.Store
	port       delivery.Port
	dispatcher *dispatch.Dispatcher
}

// NewServer creates a server over already-wired collaborators.
func NewServer(opts Opts, st store.Store, port delivery.Port, dispatcher *dispatch.Dispatcher) *Server {
	if opts.Addr == "" {
		opts.Addr = DefaultAddr
	}
	return &Server{opts: opts, st: st, port: port, dispatcher: dispatcher}
}

// Handler builds the route table.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /{$}", s.healthHandler)
	mux.HandleFunc("GET /webhook", s.verifyWebhookHandler)
	mux.HandleFunc("POST /webhook", s.deliverWebhookHandler)

	mux.HandleFunc("GET /admin/users", s.requireAdmin(s.listUsersHandler))
	mux.HandleFunc("GET /admin/users/{id}/messages", s.requireAdmin(s.listMessagesHandler))
	mux.HandleFunc("POST /admin/users/{id}/send", s.requireAdmin(s.sendMessageHandler))
	mux.HandleFunc("POST /admin/uploads", s.requireAdmin(s.uploadHandler))
	mux.HandleFunc("GET /admin/stats", s.requireAdmin(s.statsHandler))

	if s.opts.UploadsDir != "" {
		mux.Handle("GET /static/uploads/", http.StripPrefix("/static/uploads/", http.FileServer(http.Dir(s.opts.UploadsDir))))
	}
	return mux
}

// ListenAndServe starts the HTTP server and blocks.
func (s *Server) ListenAndServe() error {
	slog.Info("KaraBot API listening", "addr", s.opts.Addr)
	return http.ListenAndServe(s.opts.Addr, s.Handler())
}

// Run wires every module from options and starts the server. It is the
// single composition point: the flow engine, orchestrator, and dispatcher
// receive their dependencies here, never through package globals.
func Run(waOpts []whatsapp.Option, storeOpts []store.Option, flowCfg flow.Config, apiOpts []Option) error {
	var opts Opts
	for _, opt := range apiOpts {
		opt(&opts)
	}

	st, err := buildStore(storeOpts)
	if err != nil {
		return fmt.Errorf("failed to initialize store: %w", err)
	}
	defer st.Close()

	client, err := whatsapp.NewClient(waOpts...)
	if err != nil {
		return fmt.Errorf("failed to initialize WhatsApp client: %w", err)
	}

	script, err := flow.LoadScript(opts.ScriptPath)
	if err != nil {
		// A structurally invalid script refuses startup; a missing one
		// already degraded to empty inside LoadScript.
		return fmt.Errorf("failed to load script: %w", err)
	}
	engine := flow.NewEngine(script, flowCfg)
	orch := delivery.NewOrchestrator(client)

	mediaDir := opts.MediaDir
	if mediaDir == "" && opts.UploadsDir != "" {
		mediaDir = filepath.Join(filepath.Dir(opts.UploadsDir), "media")
	}
	var media *dispatch.MediaStore
	if mediaDir != "" {
		media, err = dispatch.NewMediaStore(client, mediaDir)
		if err != nil {
			return fmt.Errorf("failed to initialize media store: %w", err)
		}
	}

	dispatcher := dispatch.NewDispatcher(st, engine, orch, media, dispatch.NewCounters())
	server := NewServer(opts, st, client, dispatcher)
	return server.ListenAndServe()
}

// buildStore picks a backend from the configured DSN, defaulting to the
// in-memory store when none is set.
func buildStore(storeOpts []store.Option) (store.Store, error) {
	var cfg store.Opts
	for _, opt := range storeOpts {
		opt(&cfg)
	}
	switch {
	case cfg.DSN == "":
		slog.Warn("No database DSN configured, using in-memory store")
		return store.NewInMemoryStore(), nil
	case store.DetectDSNType(cfg.DSN) == "postgres":
		slog.Debug("Detected PostgreSQL DSN, configuring PostgreSQL store")
		return store.NewPostgresStore(storeOpts...)
	default:
		slog.Debug("Detected SQLite DSN, configuring SQLite store")
		return store.NewSQLiteStore(storeOpts...)
	}
}
