package domain

import (
	"errors"
	"testing"

	"github.com/bwmarrin/discordgo"
)

func stringOpt(name string) *discordgo.ApplicationCommandOption {
	return &discordgo.ApplicationCommandOption{Type: discordgo.ApplicationCommandOptionString, Name: name, Description: name}
}

func subCommand(name string, opts ...*discordgo.ApplicationCommandOption) *discordgo.ApplicationCommandOption {
	return &discordgo.ApplicationCommandOption{Type: discordgo.ApplicationCommandOptionSubCommand, Name: name, Description: name, Options: opts}
}

func TestNewDescriptor_Validation(t *testing.T) {
	tests := []struct {
		name    string
		def     Definition
		wantErr bool
	}{
		{"valid plain command", Definition{Name: "ping", Description: "Replies with pong"}, false},
		{"valid with options", Definition{Name: "track-world", Options: []*discordgo.ApplicationCommandOption{stringOpt("name")}}, false},
		{"missing name", Definition{Description: "nameless"}, true},
		{"blank name", Definition{Name: "   "}, true},
		{"uppercase chat input name", Definition{Name: "Ping"}, true},
		{"name with spaces", Definition{Name: "track world"}, true},
		{"name too long", Definition{Name: "abcdefghijklmnopqrstuvwxyz0123456"}, true},
		{"user command may use spaces", Definition{Name: "Show Profile", Type: discordgo.UserApplicationCommand}, false},
		{"user command with options", Definition{Name: "Show Profile", Type: discordgo.UserApplicationCommand, Options: []*discordgo.ApplicationCommandOption{stringOpt("x")}}, true},
		{"nil option", Definition{Name: "ping", Options: []*discordgo.ApplicationCommandOption{nil}}, true},
		{"option without name", Definition{Name: "ping", Options: []*discordgo.ApplicationCommandOption{{Type: discordgo.ApplicationCommandOptionString}}}, true},
		{"unknown option type", Definition{Name: "ping", Options: []*discordgo.ApplicationCommandOption{{Type: 42, Name: "x"}}}, true},
		{"duplicate option names", Definition{Name: "ping", Options: []*discordgo.ApplicationCommandOption{stringOpt("x"), stringOpt("x")}}, true},
		{"sub commands", Definition{Name: "guild", Options: []*discordgo.ApplicationCommandOption{subCommand("add", stringOpt("name")), subCommand("list")}}, false},
		{"sub command mixed with plain option", Definition{Name: "guild", Options: []*discordgo.ApplicationCommandOption{subCommand("add"), stringOpt("name")}}, true},
		{"sub command inside sub command", Definition{Name: "guild", Options: []*discordgo.ApplicationCommandOption{subCommand("add", subCommand("deep"))}}, true},
		{"plain option with children", Definition{Name: "ping", Options: []*discordgo.ApplicationCommandOption{{Type: discordgo.ApplicationCommandOptionString, Name: "x", Options: []*discordgo.ApplicationCommandOption{stringOpt("y")}}}}, true},
		{"group of sub commands", Definition{Name: "config", Options: []*discordgo.ApplicationCommandOption{{Type: discordgo.ApplicationCommandOptionSubCommandGroup, Name: "guild", Options: []*discordgo.ApplicationCommandOption{subCommand("add")}}}}, false},
		{"group holding plain option", Definition{Name: "config", Options: []*discordgo.ApplicationCommandOption{{Type: discordgo.ApplicationCommandOptionSubCommandGroup, Name: "guild", Options: []*discordgo.ApplicationCommandOption{stringOpt("x")}}}}, true},
		{"malformed choice", Definition{Name: "ping", Options: []*discordgo.ApplicationCommandOption{{Type: discordgo.ApplicationCommandOptionString, Name: "x", Choices: []*discordgo.ApplicationCommandOptionChoice{nil}}}}, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			d, err := NewDescriptor(tt.def)
			if tt.wantErr {
				var invalid *InvalidDescriptorError
				if !errors.As(err, &invalid) {
					t.Fatalf("expected InvalidDescriptorError, got %v", err)
				}
				if d != nil {
					t.Error("descriptor should be nil on error")
				}
				return
			}
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if !d.Desired() || d.RemoteID() != "" || d.Snapshot() != nil {
				t.Errorf("fresh descriptor should be desired without remote identity")
			}
		})
	}
}

func TestHydrateDescriptor(t *testing.T) {
	remote := &discordgo.ApplicationCommand{ID: "1", ApplicationID: "app", Name: "ping", Description: "v1", Version: "9"}

	d, err := HydrateDescriptor(remote)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if d.RemoteID() != "1" || d.Snapshot() != remote || d.Desired() {
		t.Errorf("unexpected hydrated descriptor %+v", d)
	}
	if d.Definition().Description != "v1" {
		t.Errorf("expected definition from remote, got %q", d.Definition().Description)
	}

	if _, err := HydrateDescriptor(&discordgo.ApplicationCommand{Name: "ping"}); err == nil {
		t.Error("expected error for missing id")
	}
	if _, err := HydrateDescriptor(nil); err == nil {
		t.Error("expected error for nil remote")
	}
}

func TestPayload_ExcludesRemoteFields(t *testing.T) {
	remote := &discordgo.ApplicationCommand{ID: "1", ApplicationID: "app", GuildID: "42", Version: "9", Name: "ping", Description: "v1"}
	d, _ := HydrateDescriptor(remote)

	p := d.Payload()
	if p.ID != "" || p.ApplicationID != "" || p.GuildID != "" || p.Version != "" {
		t.Errorf("payload leaks remote fields: %+v", p)
	}
	if p.Name != "ping" || p.Description != "v1" || p.Type != discordgo.ChatApplicationCommand {
		t.Errorf("unexpected payload %+v", p)
	}
	if p.Options == nil {
		t.Error("options should serialize as an empty list")
	}
}

func TestChanges(t *testing.T) {
	perms := int64(discordgo.PermissionAdministrator)
	nsfw := true

	tests := []struct {
		name     string
		def      Definition
		remote   *discordgo.ApplicationCommand
		wantKeys []string
	}{
		{"identical", Definition{Name: "ping", Description: "v1"}, &discordgo.ApplicationCommand{ID: "1", Name: "ping", Description: "v1", Type: discordgo.ChatApplicationCommand}, nil},
		{"zero type equals chat input", Definition{Name: "ping", Description: "v1"}, &discordgo.ApplicationCommand{ID: "1", Name: "ping", Description: "v1"}, nil},
		{"description", Definition{Name: "ping", Description: "v2"}, &discordgo.ApplicationCommand{ID: "1", Name: "ping", Description: "v1"}, []string{"description"}},
		{"options", Definition{Name: "ping", Options: []*discordgo.ApplicationCommandOption{stringOpt("x")}}, &discordgo.ApplicationCommand{ID: "1", Name: "ping"}, []string{"options"}},
		{"empty vs nil options", Definition{Name: "ping", Options: []*discordgo.ApplicationCommandOption{}}, &discordgo.ApplicationCommand{ID: "1", Name: "ping"}, nil},
		{"permissions", Definition{Name: "ping", DefaultMemberPermissions: &perms}, &discordgo.ApplicationCommand{ID: "1", Name: "ping"}, []string{"default_member_permissions"}},
		{"nsfw", Definition{Name: "ping", NSFW: &nsfw}, &discordgo.ApplicationCommand{ID: "1", Name: "ping"}, []string{"nsfw"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			d, err := NewDescriptor(tt.def)
			if err != nil {
				t.Fatalf("new descriptor: %v", err)
			}
			d.Bind(tt.remote)

			changes := d.Changes()
			if len(changes) != len(tt.wantKeys) {
				t.Fatalf("expected keys %v, got %v", tt.wantKeys, changes)
			}
			for _, k := range tt.wantKeys {
				if _, ok := changes[k]; !ok {
					t.Errorf("missing change %q in %v", k, changes)
				}
			}
			if d.Drifted() != (len(tt.wantKeys) > 0) {
				t.Errorf("Drifted() disagrees with Changes()")
			}
		})
	}
}

func TestChanges_WithoutSnapshotReturnsEverything(t *testing.T) {
	d, _ := NewDescriptor(Definition{Name: "ping", Description: "Replies with pong"})

	changes := d.Changes()
	for _, k := range []string{"name", "description", "type"} {
		if _, ok := changes[k]; !ok {
			t.Errorf("expected %q in %v", k, changes)
		}
	}
}

func TestBind_KeepsDesiredDefinition(t *testing.T) {
	d, _ := NewDescriptor(Definition{Name: "ping", Description: "local"})
	d.Bind(&discordgo.ApplicationCommand{ID: "1", Name: "ping", Description: "remote"})

	if d.RemoteID() != "1" {
		t.Errorf("expected remote id 1, got %q", d.RemoteID())
	}
	if d.Definition().Description != "local" {
		t.Errorf("bind must not overwrite a desired definition")
	}

	h, _ := HydrateDescriptor(&discordgo.ApplicationCommand{ID: "2", Name: "echo", Description: "old"})
	h.Bind(&discordgo.ApplicationCommand{ID: "2", Name: "echo", Description: "new"})
	if h.Definition().Description != "new" {
		t.Errorf("remote-only descriptor should follow the remote definition")
	}
}

func TestSameName(t *testing.T) {
	a, _ := NewDescriptor(Definition{Name: "ping"})
	b, _ := HydrateDescriptor(&discordgo.ApplicationCommand{ID: "9", Name: "ping"})
	c, _ := NewDescriptor(Definition{Name: "echo"})

	if !a.SameName(b) {
		t.Error("descriptors with the same name should match regardless of id")
	}
	if a.SameName(c) || a.SameName(nil) {
		t.Error("unexpected match")
	}
}

func TestResolve(t *testing.T) {
	d, err := Resolve(Definition{Name: "ping"})
	if err != nil || d.Name() != "ping" {
		t.Fatalf("resolve definition: %v", err)
	}

	same, err := Resolve(d)
	if err != nil || same != d {
		t.Errorf("resolving a descriptor should return it unchanged")
	}

	var nilDescriptor *Descriptor
	if _, err := Resolve(nilDescriptor); err == nil {
		t.Error("expected error for nil descriptor")
	}
	if _, err := Resolve(nil); err == nil {
		t.Error("expected error for nil entry")
	}
}

func TestResolve_HydratedDescriptorBecomesDesired(t *testing.T) {
	remote := &discordgo.ApplicationCommand{ID: "9", Name: "ping", Description: "Replies with pong"}
	h, err := HydrateDescriptor(remote)
	if err != nil {
		t.Fatalf("hydrate: %v", err)
	}

	d, err := Resolve(h)
	if err != nil {
		t.Fatalf("resolve: %v", err)
	}
	if !d.Desired() {
		t.Error("a resolved descriptor should be desired")
	}
	if h.Desired() {
		t.Error("the hydrated descriptor itself should be left untouched")
	}
	if d.RemoteID() != "9" || d.Snapshot() != remote || d.Definition().Description != "Replies with pong" {
		t.Errorf("resolved copy lost state: %s", d)
	}

	d.Bind(&discordgo.ApplicationCommand{ID: "9", Name: "ping", Description: "changed remotely"})
	if d.Definition().Description != "Replies with pong" {
		t.Error("bind must not overwrite the definition once desired")
	}
}
