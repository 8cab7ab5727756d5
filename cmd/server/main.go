package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/cors"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	log "github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/xtrntr/tokenmarket/internal/api"
	"github.com/xtrntr/tokenmarket/internal/auth"
	"github.com/xtrntr/tokenmarket/internal/config"
	"github.com/xtrntr/tokenmarket/internal/db"
	"github.com/xtrntr/tokenmarket/internal/ledger"
	"github.com/xtrntr/tokenmarket/internal/market"
	"github.com/xtrntr/tokenmarket/internal/metrics"
	"github.com/xtrntr/tokenmarket/internal/models"
	"github.com/xtrntr/tokenmarket/internal/stream"
	"github.com/xtrntr/tokenmarket/migrations"
)

const shutdownTimeout = 10 * time.Second

var (
	listenAddr string
	logLevel   int
)

var rootCmd = &cobra.Command{
	Use:   "tokenmarket",
	Short: "Round based token marketplace",
	Long: `tokenmarket alternates sale rounds, where the marketplace issues tokens at a
fixed price, with trade rounds, where holders sell to each other through an
escrowed order book. Purchases pay a two level referral reward.`,
	SilenceUsage:      true,
	PersistentPreRunE: initConfig,
}

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the HTTP API, websocket stream and metrics endpoint",
	RunE:  runServe,
}

func init() {
	rootCmd.AddCommand(serveCmd)
	rootCmd.RunE = runServe

	rootCmd.PersistentFlags().StringVar(&listenAddr, "listen", "", "address to listen on, overrides TOKENMARKET_LISTEN_ADDR")
	rootCmd.PersistentFlags().IntVar(&logLevel, "log-level", -1, "logrus level 0-6, overrides TOKENMARKET_LOG_LEVEL")
}

func initConfig(cmd *cobra.Command, args []string) error {
	if err := config.InitConfig(); err != nil {
		return err
	}
	if listenAddr != "" {
		config.Set(config.ListenAddrKey, listenAddr)
	}
	if logLevel >= 0 {
		config.Set(config.LogLevelKey, logLevel)
	}
	log.SetLevel(log.Level(config.GetInt(config.LogLevelKey)))
	return nil
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func runServe(cmd *cobra.Command, args []string) error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	owner := models.Address(config.GetString(config.OwnerAddressKey))
	self := models.Address(config.GetString(config.MarketAddressKey))
	decimals := int32(config.GetInt(config.TokenDecimalsKey))

	pricingParams, err := config.GetPricing()
	if err != nil {
		return err
	}

	// Token and base currency ledgers, the marketplace issues and burns tokens
	tokens := ledger.NewMemory("ACDM", owner)
	funds := ledger.NewMemory("ETH", owner)
	for _, role := range []ledger.Role{ledger.RoleMinter, ledger.RoleBurner} {
		if err := tokens.Grant(owner, role, self); err != nil {
			return err
		}
	}
	if err := funds.Grant(owner, ledger.RoleMinter, owner); err != nil {
		return err
	}

	// Users and event journal live in postgres when configured
	var (
		store    auth.UserStore = auth.NewMemoryStore()
		database *db.DB
		journal  *db.Journal
	)
	if pg := config.GetString(config.PgConnectAddrKey); pg != "" {
		database, err = db.NewDB(ctx, pg)
		if err != nil {
			return err
		}
		defer database.Close(context.Background())

		if err := database.Migrate(ctx, migrations.Init); err != nil {
			return err
		}
		store = database
		journal = db.NewJournal(database, 0)
	} else {
		log.Warn("no postgres configured, users are kept in memory and events are not journaled")
	}

	m := metrics.New(decimals)
	var hub *stream.Hub
	sinks := market.Sinks{
		market.LogSink,
		m,
		market.SinkFunc(func(e models.Event) { hub.Publish(e) }),
	}
	if journal != nil {
		sinks = append(sinks, journal)
	}

	engine := market.NewEngine(
		market.Config{
			Self:          self,
			Owner:         owner,
			RoundDuration: config.GetDuration(config.RoundDurationKey),
			Pricing:       pricingParams,
		},
		tokens, tokens.Capability(self), funds,
		market.WithSink(sinks),
	)
	hub = stream.NewHub(engine)

	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	if err := m.Register(reg, engine); err != nil {
		return err
	}

	if config.GetBool(config.AutoInitKey) {
		price, _ := config.GetAmount(config.StartPriceKey)
		supply, _ := config.GetAmount(config.StartSupplyKey)
		if _, err := engine.Initialize(owner, price, supply); err != nil {
			return err
		}
	}

	faucet, _ := config.GetAmount(config.FaucetAmountKey)
	handler := api.NewHandler(engine, auth.NewAuthService(store, []byte(config.GetString(config.JWTSecretKey))), tokens, funds)
	handler.Faucet = funds.Capability(owner)
	handler.FaucetAmount = faucet
	if database != nil {
		handler.Events = database
	}

	r := chi.NewRouter()
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   []string{"*"},
		AllowedMethods:   []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type"},
		ExposedHeaders:   []string{"Link"},
		AllowCredentials: true,
		MaxAge:           300,
	}))
	handler.Routes(r, api.Extras{
		Metrics: promhttp.HandlerFor(reg, promhttp.HandlerOpts{}),
		Stream:  hub.ServeWS,
	})

	server := &http.Server{
		Addr:              config.GetString(config.ListenAddrKey),
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
	}

	g, gCtx := errgroup.WithContext(ctx)
	g.Go(func() error {
		log.Infof("starting server on %s", server.Addr)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-gCtx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		log.Info("shutting down server")
		return server.Shutdown(shutdownCtx)
	})
	g.Go(func() error {
		return hub.Run(gCtx, config.GetDuration(config.BroadcastIntervalKey))
	})
	if journal != nil {
		g.Go(func() error {
			return journal.Run(gCtx)
		})
	}

	return g.Wait()
}
