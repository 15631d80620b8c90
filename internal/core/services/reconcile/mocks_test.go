package reconcile

import (
	"context"
	"errors"
	"strconv"
	"strings"
	"sync"

	"github.com/bwmarrin/discordgo"
)

type call struct {
	method string
	path   string
	body   any
}

// fakeRemote is an in-memory command API. Failure hooks are keyed by command name.
type fakeRemote struct {
	mu       sync.Mutex
	commands map[string]*discordgo.ApplicationCommand
	order    []string
	nextID   int
	calls    []call

	getErr     error
	getBlock   chan struct{}
	postErr    map[string]error
	patchErr   map[string]error
	deleteErr  map[string]error
	patchEmpty bool
}

func newFakeRemote(existing ...*discordgo.ApplicationCommand) *fakeRemote {
	f := &fakeRemote{
		commands:  make(map[string]*discordgo.ApplicationCommand),
		nextID:    100,
		postErr:   make(map[string]error),
		patchErr:  make(map[string]error),
		deleteErr: make(map[string]error),
	}
	for _, cmd := range existing {
		f.commands[cmd.ID] = cmd
		f.order = append(f.order, cmd.ID)
	}
	return f
}

func (f *fakeRemote) Get(ctx context.Context, path string) ([]*discordgo.ApplicationCommand, error) {
	if f.getBlock != nil {
		<-f.getBlock
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, call{method: "GET", path: path})

	if f.getErr != nil {
		return nil, f.getErr
	}

	out := make([]*discordgo.ApplicationCommand, 0, len(f.order))
	for _, id := range f.order {
		if cmd, ok := f.commands[id]; ok {
			cp := *cmd
			out = append(out, &cp)
		}
	}
	return out, nil
}

func (f *fakeRemote) Post(ctx context.Context, path string, body any) (*discordgo.ApplicationCommand, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, call{method: "POST", path: path, body: body})

	payload, ok := body.(*discordgo.ApplicationCommand)
	if !ok {
		return nil, errors.New("unexpected post body")
	}
	if err := f.postErr[payload.Name]; err != nil {
		return nil, err
	}

	cmd := *payload
	cmd.ID = strconv.Itoa(f.nextID)
	cmd.ApplicationID = "app"
	f.nextID++
	f.commands[cmd.ID] = &cmd
	f.order = append(f.order, cmd.ID)

	cp := cmd
	return &cp, nil
}

func (f *fakeRemote) Patch(ctx context.Context, path string, body any) (*discordgo.ApplicationCommand, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, call{method: "PATCH", path: path, body: body})

	id := path[strings.LastIndex(path, "/")+1:]
	cmd, ok := f.commands[id]
	if !ok {
		return nil, errors.New("404 Not Found")
	}
	if err := f.patchErr[cmd.Name]; err != nil {
		return nil, err
	}

	switch b := body.(type) {
	case map[string]any:
		if v, ok := b["description"].(string); ok {
			cmd.Description = v
		}
		if v, ok := b["options"].([]*discordgo.ApplicationCommandOption); ok {
			cmd.Options = v
		}
	case *discordgo.ApplicationCommand:
		cmd.Description = b.Description
		cmd.Options = b.Options
	}

	if f.patchEmpty {
		return nil, nil
	}
	cp := *cmd
	return &cp, nil
}

func (f *fakeRemote) Delete(ctx context.Context, path string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, call{method: "DELETE", path: path})

	id := path[strings.LastIndex(path, "/")+1:]
	cmd, ok := f.commands[id]
	if !ok {
		return errors.New("404 Not Found")
	}
	if err := f.deleteErr[cmd.Name]; err != nil {
		return err
	}
	delete(f.commands, id)
	return nil
}

// removeOutOfBand deletes a command without going through the store.
func (f *fakeRemote) removeOutOfBand(id string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.commands, id)
}

func (f *fakeRemote) callsTo(method string) []call {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []call
	for _, c := range f.calls {
		if c.method == method {
			out = append(out, c)
		}
	}
	return out
}

func (f *fakeRemote) resetCalls() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = nil
}

type fakeLocker struct {
	keys     []string
	err      error
	unlocked int
}

func (l *fakeLocker) Lock(ctx context.Context, key string) (func(context.Context) error, error) {
	if l.err != nil {
		return nil, l.err
	}
	l.keys = append(l.keys, key)
	return func(context.Context) error {
		l.unlocked++
		return nil
	}, nil
}
