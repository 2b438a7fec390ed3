package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/rs/cors"
	"github.com/sirupsen/logrus"

	"github.com/example/blogauth/internal/auth"
	cfg "github.com/example/blogauth/internal/config"
	"github.com/example/blogauth/internal/store"
)

type App struct {
	DB     store.DB
	Ledger store.Ledger
	Issuer *auth.Issuer
	Hasher *auth.Hasher
	Log    logrus.FieldLogger

	metrics     *Metrics
	rateLimiter *RateLimiter
	corsOrigins []string
	now         func() time.Time
}

type AppConfig struct {
	DB store.DB
	// Ledger defaults to DB.
	Ledger             store.Ledger
	Issuer             *auth.Issuer
	Hasher             *auth.Hasher
	Log                logrus.FieldLogger
	Registry           *prometheus.Registry
	LoginRatePerMinute int
	CORSAllowedOrigins []string
	Now                func() time.Time
}

func NewApp(c AppConfig) *App {
	a := &App{
		DB:          c.DB,
		Ledger:      c.Ledger,
		Issuer:      c.Issuer,
		Hasher:      c.Hasher,
		Log:         c.Log,
		corsOrigins: c.CORSAllowedOrigins,
		now:         c.Now,
	}
	if a.Ledger == nil {
		a.Ledger = c.DB
	}
	if a.Hasher == nil {
		a.Hasher = auth.NewHasher(0)
	}
	if a.Log == nil {
		a.Log = logrus.StandardLogger()
	}
	if a.now == nil {
		a.now = time.Now
	}
	if len(a.corsOrigins) == 0 {
		a.corsOrigins = []string{"*"}
	}
	reg := c.Registry
	if reg == nil {
		reg = prometheus.NewRegistry()
	}
	a.metrics = NewMetrics(reg)
	perMinute := c.LoginRatePerMinute
	if perMinute <= 0 {
		perMinute = 20
	}
	a.rateLimiter = NewRateLimiter(perMinute)
	return a
}

// Router builds the full HTTP handler, CORS included.
func (a *App) Router() http.Handler {
	r := mux.NewRouter()
	r.NotFoundHandler = http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		writeError(w, http.StatusNotFound, "Resource not found")
	})
	r.MethodNotAllowedHandler = http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		writeError(w, http.StatusMethodNotAllowed, "Method not allowed")
	})

	r.Use(SecurityHeaders)
	r.Use(a.Logging)

	r.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	}).Methods("GET")
	r.HandleFunc("/ready", a.HandleReady).Methods("GET")
	r.Handle("/metrics", a.metrics.Handler()).Methods("GET")

	access := a.Guard(auth.KindAccess)
	refresh := a.Guard(auth.KindRefresh)
	protect := func(h http.HandlerFunc) http.Handler { return access(h) }

	// auth
	r.Handle("/register", a.RateLimit(http.HandlerFunc(a.HandleRegister))).Methods("POST")
	r.Handle("/login", a.RateLimit(http.HandlerFunc(a.HandleLogin))).Methods("POST")
	r.Handle("/logout", protect(a.HandleLogout)).Methods("POST")
	r.Handle("/me", protect(a.HandleMe)).Methods("GET")
	r.Handle("/refresh", refresh(http.HandlerFunc(a.HandleRefresh))).Methods("POST")
	r.Handle("/change-password", protect(a.HandleChangePassword)).Methods("PUT")

	// users
	r.HandleFunc("/users/{id:[0-9]+}", a.HandleGetUser).Methods("GET")
	r.Handle("/users/me", protect(a.HandleUpdateProfile)).Methods("PUT")

	// posts
	r.HandleFunc("/posts", a.HandleListPosts).Methods("GET")
	r.Handle("/posts", protect(a.HandleCreatePost)).Methods("POST")
	r.Handle("/my-posts", protect(a.HandleMyPosts)).Methods("GET")
	r.HandleFunc("/posts/{id:[0-9]+}", a.HandleGetPost).Methods("GET")
	r.Handle("/posts/{id:[0-9]+}", protect(a.HandleUpdatePost)).Methods("PUT")
	r.Handle("/posts/{id:[0-9]+}", protect(a.HandleDeletePost)).Methods("DELETE")

	// comments
	r.HandleFunc("/posts/{id:[0-9]+}/comments", a.HandleListComments).Methods("GET")
	r.Handle("/posts/{id:[0-9]+}/comments", protect(a.HandleCreateComment)).Methods("POST")
	r.Handle("/comments/{id:[0-9]+}", protect(a.HandleUpdateComment)).Methods("PUT")
	r.Handle("/comments/{id:[0-9]+}", protect(a.HandleDeleteComment)).Methods("DELETE")

	// likes
	r.Handle("/posts/{id:[0-9]+}/like", protect(a.HandleLike)).Methods("POST")
	r.Handle("/posts/{id:[0-9]+}/like", protect(a.HandleUnlike)).Methods("DELETE")
	r.HandleFunc("/posts/{id:[0-9]+}/likes-count", a.HandleLikesCount).Methods("GET")

	c := cors.New(cors.Options{
		AllowedOrigins: a.corsOrigins,
		AllowedMethods: []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders: []string{"Content-Type", "Authorization"},
		MaxAge:         3600,
	})
	return c.Handler(r)
}

func (a *App) HandleReady(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
	defer cancel()

	err := a.DB.Ping(ctx)
	if err == nil {
		if p, ok := a.Ledger.(interface{ Ping(context.Context) error }); ok {
			err = p.Ping(ctx)
		}
	}
	if err != nil {
		a.Log.WithError(err).Warn("readiness check failed")
		writeJSON(w, http.StatusServiceUnavailable, map[string]bool{"ready": false})
		return
	}
	writeJSON(w, http.StatusOK, map[string]bool{"ready": true})
}

func newLogger(level string) *logrus.Logger {
	log := logrus.New()
	log.SetFormatter(&logrus.JSONFormatter{})
	log.SetOutput(os.Stdout)
	lvl, err := logrus.ParseLevel(level)
	if err != nil {
		log.WithField("level", level).Warn("unknown LOG_LEVEL, using info")
		lvl = logrus.InfoLevel
	}
	log.SetLevel(lvl)
	return log
}

func openStore(c *cfg.Config, log *logrus.Logger) (store.DB, error) {
	switch c.DBAdapter {
	case "sqlite":
		return store.NewSQLiteDB(c.SQLiteFile)
	case "memory":
		log.Warn("using in-memory database (not recommended for production)")
		return store.NewMemoryDB(), nil
	default:
		log.Info("applying database migrations")
		if err := store.ApplyMigrations(c.MigrationsDir, c.PostgresDSN, log); err != nil {
			return nil, err
		}
		return store.NewPostgresDB(c.PostgresDSN)
	}
}

func main() {
	c, err := cfg.New()
	if err != nil {
		logrus.Fatalf("config: %v", err)
	}
	log := newLogger(c.LogLevel)

	db, err := openStore(c, log)
	if err != nil {
		log.WithError(err).WithField("adapter", c.DBAdapter).Fatal("store init failed")
	}
	log.WithField("adapter", c.DBAdapter).Info("store ready")

	var ledger store.Ledger = db
	var redisLedger *store.RedisLedger
	if c.RevocationBackend == "redis" {
		redisLedger, err = store.NewRedisLedger(c.RedisURL)
		if err != nil {
			log.WithError(err).Fatal("redis ledger init failed")
		}
		ledger = redisLedger
	}
	if c.RevocationCacheSize > 0 {
		ledger = store.NewCachedLedger(ledger, c.RevocationCacheSize, c.RevocationCacheTTL)
	}

	issuer, err := auth.NewIssuer(auth.IssuerConfig{
		Secret:     []byte(c.JwtSecret),
		AccessTTL:  c.AccessTokenTTL,
		RefreshTTL: c.RefreshTokenTTL,
	})
	if err != nil {
		log.WithError(err).Fatal("token issuer init failed")
	}

	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))

	app := NewApp(AppConfig{
		DB:                 db,
		Ledger:             ledger,
		Issuer:             issuer,
		Hasher:             auth.NewHasher(c.BcryptCost),
		Log:                log,
		Registry:           reg,
		LoginRatePerMinute: c.LoginRatePerMinute,
		CORSAllowedOrigins: c.CORSAllowedOrigins,
	})

	pruner, err := NewPruner(ledger, c.PruneSchedule, log, app.metrics)
	if err != nil {
		log.WithError(err).Fatal("pruner init failed")
	}
	pruner.Start()

	srv := &http.Server{Handler: app.Router(), Addr: ":" + c.Port, ReadTimeout: 5 * time.Second, WriteTimeout: 10 * time.Second}

	go func() {
		log.WithField("port", c.Port).Info("starting server")
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.WithError(err).Fatal("server error")
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	log.Info("shutting down")

	pruner.Stop()
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(ctx); err != nil {
		log.WithError(err).Error("shutdown failed")
	}
	if redisLedger != nil {
		_ = redisLedger.Close()
	}
	if err := db.Close(); err != nil {
		log.WithError(err).Warn("closing store")
	}
	log.Info("server exited properly")
}
