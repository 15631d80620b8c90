package main

import (
	"context"
	"errors"
	"strconv"
	"strings"
	"sync"

	"discord-interactions-server/internal/core/domain"
	"discord-interactions-server/internal/core/ports"

	"github.com/bwmarrin/discordgo"
)

// mockTransport keeps commands per collection path.
type mockTransport struct {
	mu      sync.Mutex
	byPath  map[string][]*discordgo.ApplicationCommand
	nextID  int
	getErr  map[string]error
	methods []string
}

func newMockTransport() *mockTransport {
	return &mockTransport{
		byPath: make(map[string][]*discordgo.ApplicationCommand),
		nextID: 1000,
		getErr: make(map[string]error),
	}
}

func (m *mockTransport) seed(path string, cmds ...*discordgo.ApplicationCommand) {
	m.byPath[path] = append(m.byPath[path], cmds...)
}

func (m *mockTransport) Get(ctx context.Context, path string) ([]*discordgo.ApplicationCommand, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.methods = append(m.methods, "GET")

	if err := m.getErr[path]; err != nil {
		return nil, err
	}
	out := make([]*discordgo.ApplicationCommand, 0, len(m.byPath[path]))
	for _, c := range m.byPath[path] {
		cp := *c
		out = append(out, &cp)
	}
	return out, nil
}

func (m *mockTransport) Post(ctx context.Context, path string, body any) (*discordgo.ApplicationCommand, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.methods = append(m.methods, "POST")

	payload, ok := body.(*discordgo.ApplicationCommand)
	if !ok {
		return nil, errors.New("unexpected body")
	}
	cmd := *payload
	cmd.ID = strconv.Itoa(m.nextID)
	m.nextID++
	m.byPath[path] = append(m.byPath[path], &cmd)

	cp := cmd
	return &cp, nil
}

func (m *mockTransport) Patch(ctx context.Context, path string, body any) (*discordgo.ApplicationCommand, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.methods = append(m.methods, "PATCH")

	collection, id := splitPath(path)
	for _, c := range m.byPath[collection] {
		if c.ID != id {
			continue
		}
		if changes, ok := body.(map[string]any); ok {
			if v, ok := changes["description"].(string); ok {
				c.Description = v
			}
		}
		cp := *c
		return &cp, nil
	}
	return nil, errors.New("404 Not Found")
}

func (m *mockTransport) Delete(ctx context.Context, path string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.methods = append(m.methods, "DELETE")

	collection, id := splitPath(path)
	cmds := m.byPath[collection]
	for i, c := range cmds {
		if c.ID == id {
			m.byPath[collection] = append(cmds[:i], cmds[i+1:]...)
			return nil
		}
	}
	return errors.New("404 Not Found")
}

func (m *mockTransport) count(method string) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	n := 0
	for _, got := range m.methods {
		if got == method {
			n++
		}
	}
	return n
}

func splitPath(path string) (string, string) {
	i := strings.LastIndex(path, "/")
	return path[:i], path[i+1:]
}

type mockSnapshots struct {
	saved   map[string][]*discordgo.ApplicationCommand
	loaded  map[string]*ports.Snapshot
	saveErr error
	closed  bool
}

func newMockSnapshots() *mockSnapshots {
	return &mockSnapshots{
		saved:  make(map[string][]*discordgo.ApplicationCommand),
		loaded: make(map[string]*ports.Snapshot),
	}
}

func (m *mockSnapshots) SaveSnapshot(ctx context.Context, scope domain.Scope, commands []*discordgo.ApplicationCommand) error {
	if m.saveErr != nil {
		return m.saveErr
	}
	m.saved[scope.Key()] = commands
	return nil
}

func (m *mockSnapshots) LoadSnapshot(ctx context.Context, scope domain.Scope) (*ports.Snapshot, error) {
	return m.loaded[scope.Key()], nil
}

func (m *mockSnapshots) Close() {
	m.closed = true
}

type mockCloser struct {
	closed bool
}

func (m *mockCloser) Close() {
	m.closed = true
}
