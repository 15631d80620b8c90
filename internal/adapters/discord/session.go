package discord

import (
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"discord-interactions-server/internal/adapters/metrics"
	"discord-interactions-server/internal/config"

	"github.com/bwmarrin/discordgo"
)

const requestTimeout = 20 * time.Second

// NewSession builds a REST-only session; no gateway connection is opened.
func NewSession(cfg *config.Config) (*discordgo.Session, error) {
	discord, err := discordgo.New("Bot " + cfg.Token)
	if err != nil {
		slog.Error("Failed to create discord session", "error", err)
		return nil, err
	}

	discord.Client = &http.Client{
		Timeout:   requestTimeout,
		Transport: NewMetricsRoundTripper(http.DefaultTransport),
	}

	return discord, nil
}

type ApplicationSession interface {
	Application(appID string) (*discordgo.Application, error)
}

// ResolveApplicationID returns the configured id, or asks the API for the bot's own
// application when none is configured.
func ResolveApplicationID(session ApplicationSession, configured string) (string, error) {
	if configured != "" {
		return configured, nil
	}

	app, err := session.Application("@me")
	if err != nil {
		return "", fmt.Errorf("fetch current application: %w", err)
	}
	if app == nil || app.ID == "" {
		return "", fmt.Errorf("fetch current application: empty response")
	}

	slog.Info("Resolved application id", "application_id", app.ID)
	return app.ID, nil
}

// -- Middleware --

type MetricsRoundTripper struct {
	Proxied http.RoundTripper
}

func NewMetricsRoundTripper(proxied http.RoundTripper) *MetricsRoundTripper {
	if proxied == nil {
		proxied = http.DefaultTransport
	}
	return &MetricsRoundTripper{Proxied: proxied}
}

func (mrt *MetricsRoundTripper) RoundTrip(req *http.Request) (*http.Response, error) {
	start := time.Now()
	resp, err := mrt.Proxied.RoundTrip(req)
	duration := time.Since(start).Seconds()

	status := "error"
	if err == nil {
		status = fmt.Sprintf("%d", resp.StatusCode)
	}

	endpoint := endpointLabel(req.URL.Path)
	metrics.DiscordRequestDuration.WithLabelValues(req.Method, endpoint, status).Observe(duration)
	metrics.DiscordRequests.WithLabelValues(req.Method, endpoint, status).Inc()

	return resp, err
}

func endpointLabel(path string) string {
	switch {
	case strings.Contains(path, "/guilds/") && strings.Contains(path, "/commands"):
		return "guild_commands"
	case strings.Contains(path, "/commands"):
		return "global_commands"
	case strings.Contains(path, "/applications/"):
		return "application"
	default:
		return "other"
	}
}
