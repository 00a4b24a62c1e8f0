package app

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	httpSwagger "github.com/swaggo/http-swagger"

	"chatcore/pkg/api"
	"chatcore/pkg/auth"
	"chatcore/pkg/config"
	"chatcore/pkg/logger"
)

func (a *App) secConfig() auth.SecConfig {
	s := a.cfg.Security
	return auth.SecConfig{
		AllowedOrigins: s.AllowedOrigins,
		RPS:            s.RPS,
		Burst:          s.Burst,
		IPWhitelist:    s.IPWhitelist,
		FrontendKeys:   config.KeySet(s.FrontendKeys),
		BackendKeys:    config.KeySet(s.BackendKeys),
		AdminKeys:      config.KeySet(s.AdminKeys),
		SigningKeys:    config.KeySet(s.SigningKeys),
		AllowUnauth:    s.AllowUnauth,
	}
}

func (a *App) serveHTTP(ctx context.Context) error {
	router := api.NewRouter(a.service, a.tracker, a.registry, a.gateway)

	router.Handle("/metrics", promhttp.Handler()).Methods(http.MethodGet)
	router.PathPrefix("/docs/").Handler(httpSwagger.Handler(
		httpSwagger.URL("/openapi.yaml"),
	)).Methods(http.MethodGet)
	router.HandleFunc("/openapi.yaml", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/yaml")
		http.ServeFile(w, r, "docs/openapi.yaml")
	}).Methods(http.MethodGet)

	handler := auth.Middleware(a.secConfig())(router)

	srv := &http.Server{
		Addr:              a.cfg.Server.Addr,
		Handler:           handler,
		ReadHeaderTimeout: 10 * time.Second,
		IdleTimeout:       120 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("http_listening", "addr", a.cfg.Server.Addr, "tls", a.cfg.Server.TLSCert != "")
		var err error
		if a.cfg.Server.TLSCert != "" {
			err = srv.ListenAndServeTLS(a.cfg.Server.TLSCert, a.cfg.Server.TLSKey)
		} else {
			err = srv.ListenAndServe()
		}
		errCh <- err
	}()

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			logger.Warn("http_shutdown_failed", "error", err)
		}
		<-errCh
		return nil
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	}
}
