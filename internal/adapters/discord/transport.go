package discord

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/bwmarrin/discordgo"
)

// Requester is the part of *discordgo.Session the transport needs. Rate limiting and
// retries on 429 are handled by discordgo.
type Requester interface {
	RequestWithBucketID(method, urlStr string, data interface{}, bucketID string, options ...discordgo.RequestOption) ([]byte, error)
}

// Transport issues command requests against the Discord REST API.
type Transport struct {
	requester Requester
	baseURL   string
}

func NewTransport(requester Requester) *Transport {
	return &Transport{
		requester: requester,
		baseURL:   strings.TrimSuffix(discordgo.EndpointAPI, "/"),
	}
}

func (t *Transport) Get(ctx context.Context, path string) ([]*discordgo.ApplicationCommand, error) {
	body, err := t.do(ctx, http.MethodGet, path, nil)
	if err != nil {
		return nil, err
	}

	var commands []*discordgo.ApplicationCommand
	if err := json.Unmarshal(body, &commands); err != nil {
		return nil, fmt.Errorf("decode commands: %w", err)
	}
	return commands, nil
}

func (t *Transport) Post(ctx context.Context, path string, payload any) (*discordgo.ApplicationCommand, error) {
	return t.sendCommand(ctx, http.MethodPost, path, payload)
}

func (t *Transport) Patch(ctx context.Context, path string, payload any) (*discordgo.ApplicationCommand, error) {
	return t.sendCommand(ctx, http.MethodPatch, path, payload)
}

func (t *Transport) Delete(ctx context.Context, path string) error {
	_, err := t.do(ctx, http.MethodDelete, path, nil)
	return err
}

func (t *Transport) sendCommand(ctx context.Context, method, path string, payload any) (*discordgo.ApplicationCommand, error) {
	body, err := t.do(ctx, method, path, payload)
	if err != nil {
		return nil, err
	}
	if len(body) == 0 {
		return nil, nil
	}

	var cmd discordgo.ApplicationCommand
	if err := json.Unmarshal(body, &cmd); err != nil {
		return nil, fmt.Errorf("decode command: %w", err)
	}
	return &cmd, nil
}

func (t *Transport) do(ctx context.Context, method, path string, payload any) ([]byte, error) {
	url := t.baseURL + path
	body, err := t.requester.RequestWithBucketID(method, url, payload, url, discordgo.WithContext(ctx))
	if err != nil {
		return nil, fmt.Errorf("%s %s: %w", method, path, err)
	}
	return body, nil
}

// StatusCode extracts the HTTP status from a REST failure returned by the transport.
func StatusCode(err error) (int, bool) {
	var restErr *discordgo.RESTError
	if errors.As(err, &restErr) && restErr.Response != nil {
		return restErr.Response.StatusCode, true
	}
	return 0, false
}
