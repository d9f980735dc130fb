package appservice

import (
	"context"
	"crypto/tls"
	"net"
	"net/http"

	"github.com/davecgh/go-spew/spew"
	"github.com/gorilla/mux"
	lru "github.com/hashicorp/golang-lru"
	jsoniter "github.com/json-iterator/go"
	prefixed "github.com/matterbridge/logrus-prefixed-formatter"
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
	"golang.org/x/net/netutil"

	"github.com/42wim/matrixclient/event"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

const (
	// DefaultMaxConcurrentRequests is the connection admission ceiling.
	DefaultMaxConcurrentRequests = 64

	txnCacheSize = 128
)

// Transaction is the batch the homeserver pushes to the gateway.
type Transaction struct {
	Events []jsoniter.RawMessage `json:"events"`
}

// Gateway is the HTTP server the homeserver pushes events and queries
// to. Set the callbacks before Start; they are invoked synchronously on
// the serving goroutine, so the homeserver only sees a transaction
// acknowledged after every event in it has been handled.
type Gateway struct {
	// QueryAlias reports whether the service is willing to provision the
	// queried room alias. Nil means no.
	QueryAlias func(alias string) bool

	// QueryUser reports whether the service is willing to provision the
	// queried user. Nil means no.
	QueryUser func(userID string) bool

	// OnEvent receives every event of every transaction, in order.
	OnEvent func(ev *event.Event)

	// MaxConcurrentRequests caps concurrently served connections; further
	// connections queue in the listener backlog until a slot frees.
	MaxConcurrentRequests int

	reg     *Registration
	router  *mux.Router
	server  *http.Server
	ln      net.Listener
	seenTxn *lru.Cache
	metrics *gatewayMetrics

	logger     *logrus.Entry
	rootLogger *logrus.Logger
}

// NewGateway builds a gateway for a registration. Start it with Start or
// StartTLS.
func NewGateway(reg *Registration) *Gateway {
	rootLogger := logrus.New()
	rootLogger.SetFormatter(&prefixed.TextFormatter{
		PrefixPadding: 13,
		DisableColors: true,
	})

	seen, _ := lru.New(txnCacheSize)

	g := &Gateway{
		MaxConcurrentRequests: DefaultMaxConcurrentRequests,
		reg:                   reg,
		seenTxn:               seen,
		metrics:               newGatewayMetrics(),
		rootLogger:            rootLogger,
		logger:                rootLogger.WithFields(logrus.Fields{"prefix": "appservice"}),
	}

	router := mux.NewRouter()
	// An unknown path is a protocol violation by the caller and is
	// reported before any token check.
	router.NotFoundHandler = http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		g.respond(w, r, http.StatusBadRequest)
	})
	router.HandleFunc("/transactions/{txnID}", g.guard("PUT", g.handleTransaction))
	router.HandleFunc("/rooms/{alias}", g.guard("GET", g.handleRoomQuery))
	router.HandleFunc("/users/{userID}", g.guard("GET", g.handleUserQuery))
	g.router = router

	return g
}

// SetLogLevel tries to parse the specified level and if successful sets
// the log level accordingly.
func (g *Gateway) SetLogLevel(level string) {
	l, err := logrus.ParseLevel(level)
	if err != nil {
		g.logger.Warnf("Failed to parse specified log-level '%s': %#v", level, err)
	} else {
		g.rootLogger.SetLevel(l)
	}
}

// guard wraps a handler with the fixed admission order: token first,
// method second, then the handler.
func (g *Gateway) guard(method string, handler http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		g.metrics.inFlight.Inc()
		defer g.metrics.inFlight.Dec()

		if r.URL.Query().Get("access_token") != g.reg.HSToken {
			g.respond(w, r, http.StatusForbidden)
			return
		}
		if r.Method != method {
			g.respond(w, r, http.StatusMethodNotAllowed)
			return
		}
		handler(w, r)
	}
}

// respond writes the uniform `{}` body with the given status and counts
// the request.
func (g *Gateway) respond(w http.ResponseWriter, r *http.Request, status int) {
	g.metrics.observe(r, status)
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	w.Write([]byte("{}")) //nolint:errcheck
}

func (g *Gateway) handleTransaction(w http.ResponseWriter, r *http.Request) {
	txnID := mux.Vars(r)["txnID"]

	// Redelivered transactions are acknowledged without reprocessing;
	// the homeserver retries until it sees a 200.
	if _, seen := g.seenTxn.Get(txnID); seen {
		g.logger.Debugf("transaction %s already processed", txnID)
		g.respond(w, r, http.StatusOK)
		return
	}

	txn := &Transaction{}
	if err := json.NewDecoder(r.Body).Decode(txn); err != nil {
		g.logger.Warnf("malformed transaction %s: %v", txnID, err)
		g.respond(w, r, http.StatusBadRequest)
		return
	}

	g.logger.Debugf("transaction %s with %d events", txnID, len(txn.Events))
	for _, raw := range txn.Events {
		ev, err := event.ParseEvent(raw)
		if err != nil {
			g.logger.Debugf("skipping undecodable event in transaction %s: %v", txnID, err)
			continue
		}
		if g.rootLogger.IsLevelEnabled(logrus.TraceLevel) {
			g.logger.Trace(spew.Sdump(ev))
		}
		if g.OnEvent != nil {
			g.OnEvent(ev)
		}
	}

	g.seenTxn.Add(txnID, struct{}{})
	g.respond(w, r, http.StatusOK)
}

func (g *Gateway) handleRoomQuery(w http.ResponseWriter, r *http.Request) {
	alias := mux.Vars(r)["alias"]
	if g.QueryAlias != nil && g.QueryAlias(alias) {
		g.respond(w, r, http.StatusOK)
		return
	}
	g.respond(w, r, http.StatusNotFound)
}

func (g *Gateway) handleUserQuery(w http.ResponseWriter, r *http.Request) {
	userID := mux.Vars(r)["userID"]
	if g.QueryUser != nil && g.QueryUser(userID) {
		g.respond(w, r, http.StatusOK)
		return
	}
	g.respond(w, r, http.StatusNotFound)
}

// Start listens on addr and serves in the background. The listener is
// wrapped in an admission limiter; connections beyond the ceiling wait
// until a served connection completes, whatever its outcome.
func (g *Gateway) Start(addr string) error {
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return errors.Wrap(err, "listen")
	}
	g.serve(ln, nil)
	return nil
}

// StartTLS is Start with TLS. The certificate reloads on SIGHUP.
func (g *Gateway) StartTLS(addr, certPath, keyPath string) error {
	reloader, err := newKeypairReloader(certPath, keyPath, g.logger)
	if err != nil {
		return errors.Wrap(err, "load keypair")
	}

	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return errors.Wrap(err, "listen")
	}
	g.serve(ln, &tls.Config{GetCertificate: reloader.getCertificate})
	return nil
}

func (g *Gateway) serve(ln net.Listener, tlsConfig *tls.Config) {
	limited := netutil.LimitListener(ln, g.MaxConcurrentRequests)
	if tlsConfig != nil {
		limited = tls.NewListener(limited, tlsConfig)
	}

	g.ln = ln
	g.server = &http.Server{Handler: g.router}

	g.logger.Infof("gateway %s listening on %s", g.reg.ID, ln.Addr())
	go func() {
		if err := g.server.Serve(limited); err != nil && !errors.Is(err, http.ErrServerClosed) {
			g.logger.Errorf("gateway serve: %v", err)
		}
	}()
}

// Addr returns the bound listen address, useful with ":0".
func (g *Gateway) Addr() net.Addr {
	if g.ln == nil {
		return nil
	}
	return g.ln.Addr()
}

// Shutdown stops the gateway, waiting for in-flight requests up to the
// context deadline.
func (g *Gateway) Shutdown(ctx context.Context) error {
	if g.server == nil {
		return nil
	}
	return g.server.Shutdown(ctx)
}

// MetricsHandler exposes the gateway's Prometheus metrics.
func (g *Gateway) MetricsHandler() http.Handler {
	return g.metrics.handler()
}
