// clevertouchd polls a CleverTouch account, exports the radiator state as
// Prometheus metrics and, when configured, bridges the devices to Home
// Assistant over MQTT.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"os"
	"sync"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	clevertouch "github.com/hemphen/clevertouch-go"
	"github.com/hemphen/clevertouch-go/internal/bridge"
	"github.com/hemphen/clevertouch-go/internal/config"
	"github.com/hemphen/clevertouch-go/internal/logging"
	"github.com/hemphen/clevertouch-go/internal/metrics"
	"github.com/hemphen/clevertouch-go/internal/tokenstore"
)

// PasswordEnvVar authenticates with the password grant instead of a stored
// refresh token. Intended for first runs and containers without a state file.
const PasswordEnvVar = "CLEVERTOUCH_PASSWORD"

func main() {
	configPath := flag.String("config", "clevertouch.yaml", "path to the configuration file")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "clevertouchd: %v\n", err)
		os.Exit(1)
	}

	level := cfg.LogLevel
	if level == "" {
		level = "info"
	}
	if err := logging.Initialize(level); err != nil {
		fmt.Fprintf(os.Stderr, "clevertouchd: %v\n", err)
		os.Exit(1)
	}
	defer logging.Sync()

	account := clevertouch.NewAccount(clevertouch.Config{
		Host:         cfg.API.Host,
		Manufacturer: cfg.API.Manufacturer,
	})

	ctx := context.Background()
	if err := startSession(ctx, account, cfg); err != nil {
		logging.Fatal("session start failed", zap.Error(err))
	}
	logging.Info("session established", zap.String("email", account.Email()))

	// Account, Home and Device objects are not safe for concurrent use, and
	// the daemon touches them from three goroutines: the poll loop, every
	// Prometheus scrape and paho's command handler. cloudMu serializes them.
	var cloudMu sync.Mutex

	registry := prometheus.NewRegistry()
	registry.MustRegister(metrics.NewCollector(account, &cloudMu))

	var haBridge *bridge.Bridge
	var mqttClient mqtt.Client
	if cfg.MQTT != nil {
		haBridge = bridge.New(account, cfg.MQTT.TopicPrefix, cfg.MQTT.DiscoveryPrefix, &cloudMu)

		opts := cfg.MQTT.ClientOptions().SetClientID("clevertouchd")
		// Subscriptions and discovery go in OnConnect so they are redone
		// after a reconnect.
		opts.SetOnConnectHandler(func(client mqtt.Client) {
			haBridge.Subscribe(client)
			if err := haBridge.Register(context.Background(), client); err != nil {
				logging.Error("device registration failed", zap.Error(err))
			}
		})

		mqttClient = mqtt.NewClient(opts)
		if t := mqttClient.Connect(); t.Wait() && t.Error() != nil {
			logging.Fatal("MQTT connect failed", zap.Error(t.Error()))
		}
		logging.Info("MQTT connected", zap.String("broker", cfg.MQTT.Broker))
	}

	go pollLoop(account, cfg, haBridge, mqttClient, &cloudMu)

	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(registry, promhttp.HandlerOpts{}))
	mux.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		fmt.Fprintln(w, "ok")
	})

	logging.Info("listening", zap.String("addr", cfg.Metrics.ListenAddr))
	if err := http.ListenAndServe(cfg.Metrics.ListenAddr, mux); err != nil {
		logging.Fatal("http serve failed", zap.Error(err))
	}
}

// startSession authenticates with PasswordEnvVar when set, otherwise resumes
// from the persisted refresh token. Either way the (possibly rotated)
// refresh token is persisted afterwards.
func startSession(ctx context.Context, account *clevertouch.Account, cfg *config.Config) error {
	if password := os.Getenv(PasswordEnvVar); password != "" {
		if err := account.Authenticate(ctx, cfg.API.Email, password); err != nil {
			return err
		}
		return saveToken(account, cfg.API.TokenFile)
	}

	state, err := tokenstore.Load(cfg.API.TokenFile)
	if err != nil {
		return fmt.Errorf("no stored session, run `clevertouch-cli login` or set %s: %w", PasswordEnvVar, err)
	}
	if state.Email != cfg.API.Email {
		return fmt.Errorf("stored session belongs to %s but config wants %s", state.Email, cfg.API.Email)
	}

	account.Resume(state.Email, state.RefreshToken)
	if err := account.RefreshSession(ctx); err != nil {
		return err
	}
	return saveToken(account, cfg.API.TokenFile)
}

func saveToken(account *clevertouch.Account, path string) error {
	return tokenstore.Save(path, tokenstore.State{
		Email:        account.Email(),
		RefreshToken: account.Session().RefreshTokenValue(),
	})
}

// pollLoop refreshes device state on the configured interval. The metrics
// collector shares the session and benefits from the token refreshes.
func pollLoop(account *clevertouch.Account, cfg *config.Config, haBridge *bridge.Bridge, client mqtt.Client, cloudMu *sync.Mutex) {
	ticker := time.NewTicker(cfg.PollInterval())
	defer ticker.Stop()

	for {
		if err := pollOnce(account, cfg, haBridge, client, cloudMu); err != nil {
			logging.Error("poll failed", zap.Error(err))
		}
		<-ticker.C
	}
}

// pollOnce polls all homes. Token refresh is explicit throughout the
// library, so an expired access token surfaces as *AuthError and is
// answered with one RefreshSession and a retry. The first attempt may have
// spent most of its budget before failing, so the refresh-and-retry leg
// gets a timeout of its own.
func pollOnce(account *clevertouch.Account, cfg *config.Config, haBridge *bridge.Bridge, client mqtt.Client, cloudMu *sync.Mutex) error {
	ctx, cancel := context.WithTimeout(context.Background(), cfg.PollInterval())
	err := poll(ctx, account, haBridge, client, cloudMu)
	cancel()

	var authErr *clevertouch.AuthError
	if !errors.As(err, &authErr) {
		return err
	}
	logging.Info("session expired, refreshing", zap.Error(err))

	ctx, cancel = context.WithTimeout(context.Background(), cfg.PollInterval())
	defer cancel()

	cloudMu.Lock()
	err = account.RefreshSession(ctx)
	if err == nil {
		err = saveToken(account, cfg.API.TokenFile)
	}
	cloudMu.Unlock()
	if err != nil {
		return err
	}
	return poll(ctx, account, haBridge, client, cloudMu)
}

func poll(ctx context.Context, account *clevertouch.Account, haBridge *bridge.Bridge, client mqtt.Client, cloudMu *sync.Mutex) error {
	// Publish serializes on cloudMu itself.
	if haBridge != nil {
		return haBridge.Publish(ctx, client)
	}

	cloudMu.Lock()
	defer cloudMu.Unlock()

	homes, err := account.GetHomes(ctx)
	if err != nil {
		return err
	}
	for _, home := range homes {
		if err := home.Refresh(ctx); err != nil {
			return err
		}
	}
	return nil
}
