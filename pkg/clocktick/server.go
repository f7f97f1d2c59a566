// Package clocktick is the client SDK for the clocktick scheduling service.
//
// A Server registers named, typed handler functions in a dotted-path route
// tree, schedules delayed or recurring invocations of them through the
// service's HTTP API, and receives those invocations back as signed,
// encrypted HTTP callbacks (it implements http.Handler for the webhook
// endpoint).
package clocktick

import (
	"io"
	"net/http"
	"net/url"
	"time"

	"clocktick/pkg/envelope"
	"clocktick/pkg/logx"
	"clocktick/pkg/route"
	"clocktick/pkg/sigcheck"
)

// DefaultBaseURL is the production API root.
const DefaultBaseURL = "https://clocktick.dev/api/v1"

// Config carries the required construction inputs. Anything optional goes
// through Option.
type Config struct {
	// APIKey authenticates outbound requests (Authorization: Bearer).
	APIKey string
	// Secret derives the symmetric payload key. Derivation is lazy and
	// happens at most once per Server.
	Secret string
	// PublicKey is the hex-encoded ed25519 trust anchor for inbound
	// callbacks.
	PublicKey string
	// DefaultEndpoint receives jobs whose route carries no endpoint
	// override.
	DefaultEndpoint string
	// Routes is the nested handler namespace.
	Routes route.Group
}

type options struct {
	baseURL     string
	client      *http.Client
	log         logx.Logger
	entropy     io.Reader
	now         func() time.Time
	failureHook route.FailureHook
}

// Option adjusts Server construction.
type Option func(*options)

// WithBaseURL overrides the API root (no trailing slash).
func WithBaseURL(u string) Option { return func(o *options) { o.baseURL = u } }

// WithHTTPClient overrides the outbound HTTP client. Timeouts and transport
// tuning belong to this client; the SDK adds none of its own.
func WithHTTPClient(c *http.Client) Option { return func(o *options) { o.client = c } }

// WithLogger attaches a structured logger. The default is silent.
func WithLogger(l logx.Logger) Option { return func(o *options) { o.log = l } }

// WithEntropy overrides the nonce source used for payload encryption.
// Tests use this to pin nonces.
func WithEntropy(r io.Reader) Option { return func(o *options) { o.entropy = r } }

// WithClock overrides the freshness clock for inbound verification.
func WithClock(now func() time.Time) Option { return func(o *options) { o.now = now } }

// WithFailureHook replaces the default handler-failure reporter (which logs
// through the configured logger).
func WithFailureHook(h route.FailureHook) Option { return func(o *options) { o.failureHook = h } }

// Server is the SDK entry point. Immutable after construction (the one-time
// key derivation aside) and safe for concurrent use.
type Server struct {
	apiKey  string
	baseURL string
	client  *http.Client
	log     logx.Logger

	cipher   *envelope.Cipher
	verifier *sigcheck.Verifier
	tree     *route.Tree
}

// New validates the trust anchor and secret, builds the route tree and
// returns a ready Server. All registration and key-material mistakes
// surface here, before any request is served.
func New(cfg Config, opts ...Option) (*Server, error) {
	o := options{
		baseURL: DefaultBaseURL,
		log:     logx.Nop(),
	}
	for _, opt := range opts {
		opt(&o)
	}

	var cipherOpts []envelope.Option
	if o.entropy != nil {
		cipherOpts = append(cipherOpts, envelope.WithEntropy(o.entropy))
	}
	cipher, err := envelope.New(cfg.Secret, cipherOpts...)
	if err != nil {
		return nil, err
	}

	var verifierOpts []sigcheck.Option
	if o.now != nil {
		verifierOpts = append(verifierOpts, sigcheck.WithClock(o.now))
	}
	verifier, err := sigcheck.New(cfg.PublicKey, verifierOpts...)
	if err != nil {
		return nil, err
	}

	log := o.log
	failureHook := o.failureHook
	if failureHook == nil {
		failureHook = func(path string, v any, stack string) {
			log.Error("job handler failed",
				logx.String("job_type", path),
				logx.Any("failure", v),
				logx.Stack(stack),
			)
		}
	}
	tree, err := route.New(cfg.Routes, cfg.DefaultEndpoint, route.WithFailureHook(failureHook))
	if err != nil {
		return nil, err
	}

	return &Server{
		apiKey:   cfg.APIKey,
		baseURL:  o.baseURL,
		client:   o.client,
		log:      log,
		cipher:   cipher,
		verifier: verifier,
		tree:     tree,
	}, nil
}

// Routes lists every registered dotted path.
func (s *Server) Routes() []string { return s.tree.Paths() }

// Endpoint reports the effective endpoint id for a registered path (the
// innermost override, else the server default).
func (s *Server) Endpoint(path string) (string, error) {
	leaf, err := s.tree.Resolve(path)
	if err != nil {
		return "", err
	}
	return leaf.Endpoint, nil
}

func (s *Server) jobsURL(id string) string {
	u := s.baseURL + "/jobs"
	if id != "" {
		u += "/" + url.PathEscape(id)
	}
	return u
}
