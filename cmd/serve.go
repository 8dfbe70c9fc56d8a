package cmd

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/spf13/cobra"

	"agriaid/config"
	"agriaid/conn"
	"agriaid/diagnose"
	"agriaid/history"
	"agriaid/location"
	"agriaid/logger"
	"agriaid/provider"
	"agriaid/speech"
	"agriaid/wizard"
)

var servePort string

func NewServeCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the wizard HTTP API",
		Long: `Serve the crop disease wizard over HTTP.

Each browser or app session walks through the three wizard steps:
  POST /sessions                      create a session
  POST /sessions/:id/start            crop, days_planted and an optional photo
  GET  /sessions/:id/diseases/stream  candidates as they are visualized
  POST /sessions/:id/select           pick a visualized disease
  GET  /sessions/:id/solution         the action plan
  POST /sessions/:id/speech           the plan read aloud (audio/mpeg)`,
		RunE: runServe,
	}
	cmd.Flags().StringVarP(&servePort, "port", "p", "", "Port to listen on (overrides PORT)")
	return cmd
}

func runServe(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig(true)
	if err != nil {
		return err
	}
	if servePort != "" {
		cfg.Server.Port = servePort
	}
	log, err := newLogger(cfg)
	if err != nil {
		return err
	}
	defer log.Sync()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	gw, err := provider.NewGateway(ctx, cfg.AI)
	if err != nil {
		return err
	}
	locator, err := location.FromConfig(cfg.Location)
	if err != nil {
		return err
	}
	rec, closeDB, err := openHistory(ctx, cfg.MySQL, log)
	if err != nil {
		return err
	}
	defer closeDB()

	opts := diagnose.Options{
		Gateway:       gw,
		Timeouts:      wizard.Timeouts{Text: cfg.AI.Timeout, Image: cfg.AI.ImageTimeout},
		Location:      locator,
		History:       rec,
		Log:           log,
		SessionTTL:    cfg.Server.SessionTTL,
		SpeechTimeout: cfg.Speech.Timeout,
	}
	if cfg.Speech.ElevenLabsAPIKey != "" {
		opts.Voice = speech.NewElevenLabs(cfg.Speech.ElevenLabsAPIKey, cfg.Speech.VoiceID, cfg.Speech.ModelID)
	} else {
		log.Warnf(ctx, "ELEVENLABS_API_KEY not set; clients will use their local voice")
	}
	h := diagnose.NewHandler(opts)
	go h.Store().Run(ctx)

	srv := &http.Server{
		Addr:              ":" + cfg.Server.Port,
		Handler:           newRouter(cfg.Server, h, log),
		ReadHeaderTimeout: 10 * time.Second,
	}
	errCh := make(chan error, 1)
	go func() {
		log.Infof(ctx, "listening on %s (provider=%s)", srv.Addr, cfg.AI.Provider)
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("server failed: %w", err)
		}
		return nil
	case <-ctx.Done():
	}
	log.Infof(context.Background(), "shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	return srv.Shutdown(shutdownCtx)
}

func newRouter(sc config.ServerConfig, h *diagnose.Handler, log logger.Logger) *gin.Engine {
	gin.SetMode(gin.ReleaseMode)
	r := gin.New()
	corsCfg := cors.Config{
		AllowOrigins: sc.CORSOrigins,
		AllowMethods: []string{"GET", "POST", "OPTIONS"},
		AllowHeaders: []string{"Origin", "Content-Type", "Accept"},
		MaxAge:       12 * time.Hour,
	}
	if len(sc.CORSOrigins) == 0 {
		corsCfg.AllowOrigins = nil
		corsCfg.AllowAllOrigins = true
	}
	r.Use(
		diagnose.RequestLogger(log),
		gin.Recovery(),
		diagnose.LimitBodySize(12<<20),
		cors.New(corsCfg),
	)
	h.RegisterRoutes(r)
	return r
}

// openHistory connects the plan history when a database is configured.
func openHistory(ctx context.Context, mc config.MySQLConfig, log logger.Logger) (history.Recorder, func(), error) {
	if !mc.Enabled() {
		return history.Nop{}, func() {}, nil
	}
	connectCtx, cancel := context.WithTimeout(ctx, 15*time.Second)
	defer cancel()
	db, err := conn.NewMySQL(connectCtx, mc)
	if err != nil {
		return nil, nil, fmt.Errorf("connect history database: %w", err)
	}
	repo := history.NewRepository(db)
	if err := repo.Migrate(connectCtx); err != nil {
		db.Close()
		return nil, nil, err
	}
	log.Infof(ctx, "plan history enabled on %s/%s", mc.Host, mc.Name)
	return repo, func() { db.Close() }, nil
}
