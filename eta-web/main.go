package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"porter-eta/config"
	"porter-eta/eta-web/assets"
	httpapi "porter-eta/eta-web/internal/api/http"
	"porter-eta/eta-web/internal/gallery"
	"porter-eta/eta-web/internal/service"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

var errPredictionFailed = errors.New("prediction failed")

func main() {
	if err := newRootCmd().Execute(); err != nil {
		if !errors.Is(err, errPredictionFailed) {
			fmt.Fprintln(os.Stderr, "Error:", err)
		}
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	var cfgFile string

	root := &cobra.Command{
		Use:           "eta-web",
		Short:         "Delivery time estimation form",
		Long:          `eta-web serves a form that collects delivery order attributes, asks the prediction service for an estimated delivery time and shows the result, next to a gallery of case study graphs.`,
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	pf := root.PersistentFlags()
	pf.StringVar(&cfgFile, "config", "", "config file (yaml)")
	pf.String("predictor-url", service.DefaultPredictURL, "prediction endpoint")
	pf.Bool("strict-input", false, "reject unparseable numbers instead of sending null")
	pf.String("manifest", "", "gallery manifest file (default is the bundled manifest)")
	pf.String("asset-dir", "./public", "directory gallery images are served from")
	pf.String("log-level", "info", "log level")
	pf.String("log-encoding", "json", "log encoding (json or console)")

	serve := &cobra.Command{
		Use:   "serve",
		Short: "Run the web form",
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := loadApp(cmd, cfgFile)
			if err != nil {
				return err
			}
			return a.serve()
		},
	}
	serve.Flags().String("host", "0.0.0.0", "listen host")
	serve.Flags().Int("port", 5173, "listen port")

	var sets []string
	predict := &cobra.Command{
		Use:   "predict",
		Short: "Submit one order from the command line",
		Example: `  eta-web predict --set subtotal=2400 --set store_primary_category=pizza`,
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := loadApp(cmd, cfgFile)
			if err != nil {
				return err
			}
			defer a.logger.Sync()
			return a.predictOnce(cmd, sets)
		},
	}
	predict.Flags().StringArrayVar(&sets, "set", nil, "field=value override of the default order (repeatable)")

	graphs := &cobra.Command{
		Use:   "gallery",
		Short: "List the analysis gallery",
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := loadApp(cmd, cfgFile)
			if err != nil {
				return err
			}
			defer a.logger.Sync()
			a.listGallery(cmd)
			return nil
		},
	}

	root.AddCommand(serve, predict, graphs)
	root.RunE = serve.RunE
	root.Flags().AddFlagSet(serve.Flags())
	return root
}

type app struct {
	cfg     *config.Config
	logger  *zap.Logger
	gallery *gallery.Gallery
	forms   *service.FormService
}

func loadApp(cmd *cobra.Command, cfgFile string) (*app, error) {
	cfg, err := config.Load(cfgFile, cmd.Flags())
	if err != nil {
		return nil, err
	}

	logger, err := config.NewLogger(cfg.Log)
	if err != nil {
		return nil, err
	}

	gal, err := loadGallery(cfg.Gallery, logger)
	if err != nil {
		return nil, err
	}

	client := &http.Client{Timeout: cfg.Predictor.Timeout}
	predictor := service.NewPredictionClient(cfg.Predictor.URL, client, logger)
	forms := service.NewFormService(predictor, logger, service.WithStrictInput(cfg.Form.StrictInput))

	return &app{
		cfg:     cfg,
		logger:  logger,
		gallery: gal,
		forms:   forms,
	}, nil
}

func loadGallery(cfg config.GalleryConfig, logger *zap.Logger) (*gallery.Gallery, error) {
	var (
		gal *gallery.Gallery
		err error
	)
	if cfg.Manifest != "" {
		gal, err = gallery.LoadFile(cfg.Manifest)
	} else {
		var raw []byte
		if raw, err = assets.FS.ReadFile(assets.Manifest); err == nil {
			gal, err = gallery.Parse(raw)
		}
	}
	if err != nil {
		return nil, fmt.Errorf("load gallery: %w", err)
	}

	if cfg.AssetDir != "" {
		if info, statErr := os.Stat(cfg.AssetDir); statErr == nil && info.IsDir() {
			if broken := gal.MarkBroken(os.DirFS(cfg.AssetDir)); broken > 0 {
				logger.Warn("gallery images missing", zap.Int("count", broken), zap.String("asset_dir", cfg.AssetDir))
			}
		} else {
			logger.Warn("gallery asset directory not found", zap.String("asset_dir", cfg.AssetDir))
		}
	}
	logger.Debug("gallery loaded", zap.Int("items", len(gal.Items)))
	return gal, nil
}

func (a *app) serve() error {
	defer a.logger.Sync()

	sessions := service.NewSessionStore(a.cfg.Session.TTL, nil)
	handler, err := httpapi.NewHandler(a.forms, sessions, a.gallery, a.logger, httpapi.Config{
		CookieName: a.cfg.Session.Cookie,
		PublicURL:  a.cfg.Server.PublicURL,
		AssetDir:   a.cfg.Gallery.AssetDir,
	})
	if err != nil {
		return err
	}

	srv := &http.Server{
		Addr:              a.cfg.Server.Addr(),
		Handler:           httpapi.NewRouter(handler, a.cfg.CORS.AllowedOrigins),
		ReadHeaderTimeout: 10 * time.Second,
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if a.cfg.Session.SweepInterval > 0 {
		go sessions.Run(ctx, a.cfg.Session.SweepInterval)
	}

	srvErr := make(chan error, 1)
	go func() {
		a.logger.Info("eta-web starting",
			zap.String("address", srv.Addr),
			zap.String("predictor", a.cfg.Predictor.URL))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			srvErr <- err
		}
	}()

	select {
	case <-ctx.Done():
		a.logger.Info("received shutdown signal")
	case err := <-srvErr:
		a.forms.Close()
		return fmt.Errorf("server error: %w", err)
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		a.logger.Warn("graceful shutdown failed", zap.Error(err))
	}
	a.forms.Close()
	a.logger.Info("eta-web stopped")
	return nil
}

func (a *app) predictOnce(cmd *cobra.Command, sets []string) error {
	sessions := service.NewSessionStore(0, nil)
	sess := sessions.New()

	for _, kv := range sets {
		name, value, ok := strings.Cut(kv, "=")
		if !ok {
			return fmt.Errorf("--set %q: expected field=value", kv)
		}
		if _, ok := a.forms.UpdateField(sess, strings.TrimSpace(name), value); !ok {
			return fmt.Errorf("--set %q: %s is not an editable field", kv, name)
		}
	}

	a.forms.Submit(sess)
	a.forms.Wait()

	st := sess.State()
	if st.Error != "" {
		fmt.Fprintln(cmd.ErrOrStderr(), st.Error)
		return errPredictionFailed
	}
	if st.Prediction == nil {
		return errPredictionFailed
	}
	fmt.Fprintf(cmd.OutOrStdout(), "%s min\n", httpapi.FormatMinutes(*st.Prediction))
	return nil
}

func (a *app) listGallery(cmd *cobra.Command) {
	out := cmd.OutOrStdout()
	if a.gallery.Empty() {
		fmt.Fprintln(out, "No graphs found.")
		return
	}
	for _, item := range a.gallery.Items {
		marker := ""
		if item.Broken {
			marker = " [missing]"
		}
		fmt.Fprintf(out, "%d\t%s\t%s (Page %d)%s\n", item.ID, item.Src, item.SourcePDF, item.Page, marker)
	}
}
