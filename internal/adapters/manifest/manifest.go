package manifest

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"discord-interactions-server/internal/core/domain"

	"github.com/BurntSushi/toml"
	"github.com/bwmarrin/discordgo"
	"golang.org/x/text/cases"
	"golang.org/x/text/language"
	"gopkg.in/yaml.v3"
)

type Format string

const (
	FormatYAML Format = "yaml"
	FormatTOML Format = "toml"
)

var adminPerms = int64(discordgo.PermissionAdministrator)

var optionTypes = map[string]discordgo.ApplicationCommandOptionType{
	"sub_command":       discordgo.ApplicationCommandOptionSubCommand,
	"sub_command_group": discordgo.ApplicationCommandOptionSubCommandGroup,
	"string":            discordgo.ApplicationCommandOptionString,
	"integer":           discordgo.ApplicationCommandOptionInteger,
	"boolean":           discordgo.ApplicationCommandOptionBoolean,
	"user":              discordgo.ApplicationCommandOptionUser,
	"channel":           discordgo.ApplicationCommandOptionChannel,
	"role":              discordgo.ApplicationCommandOptionRole,
	"mentionable":       discordgo.ApplicationCommandOptionMentionable,
	"number":            discordgo.ApplicationCommandOptionNumber,
	"attachment":        discordgo.ApplicationCommandOptionAttachment,
}

var commandTypes = map[string]discordgo.ApplicationCommandType{
	"":           discordgo.ChatApplicationCommand,
	"chat_input": discordgo.ChatApplicationCommand,
	"user":       discordgo.UserApplicationCommand,
	"message":    discordgo.MessageApplicationCommand,
}

// File is the on-disk layout of a command manifest.
type File struct {
	Global []Command            `yaml:"global" toml:"global"`
	Guilds map[string][]Command `yaml:"guilds" toml:"guilds"`
}

type Command struct {
	Name                     string   `yaml:"name" toml:"name"`
	Description              string   `yaml:"description" toml:"description"`
	Type                     string   `yaml:"type" toml:"type"`
	AdminOnly                bool     `yaml:"admin_only" toml:"admin_only"`
	DefaultMemberPermissions *int64   `yaml:"default_member_permissions" toml:"default_member_permissions"`
	NSFW                     *bool    `yaml:"nsfw" toml:"nsfw"`
	Options                  []Option `yaml:"options" toml:"options"`
}

type Option struct {
	Type         string   `yaml:"type" toml:"type"`
	Name         string   `yaml:"name" toml:"name"`
	Description  string   `yaml:"description" toml:"description"`
	Required     bool     `yaml:"required" toml:"required"`
	Autocomplete bool     `yaml:"autocomplete" toml:"autocomplete"`
	MinValue     *float64 `yaml:"min_value" toml:"min_value"`
	MaxValue     float64  `yaml:"max_value" toml:"max_value"`
	MinLength    *int     `yaml:"min_length" toml:"min_length"`
	MaxLength    int      `yaml:"max_length" toml:"max_length"`
	Choices      []Choice `yaml:"choices" toml:"choices"`
	Options      []Option `yaml:"options" toml:"options"`
}

type Choice struct {
	Name  string `yaml:"name" toml:"name"`
	Value any    `yaml:"value" toml:"value"`
}

// ScopeDefinitions is the desired command set of one scope.
type ScopeDefinitions struct {
	Scope       domain.Scope
	Definitions []domain.Definition
}

// Manifest is a parsed command manifest, global scope first, then guilds by id.
type Manifest struct {
	Scopes []ScopeDefinitions
}

func Load(path string) (*Manifest, error) {
	format, err := formatFromPath(path)
	if err != nil {
		return nil, err
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read manifest: %w", err)
	}

	return Parse(data, format)
}

func Parse(data []byte, format Format) (*Manifest, error) {
	var file File

	switch format {
	case FormatYAML:
		dec := yaml.NewDecoder(bytes.NewReader(data))
		dec.KnownFields(true)
		if err := dec.Decode(&file); err != nil && !errors.Is(err, io.EOF) {
			return nil, fmt.Errorf("decode yaml manifest: %w", err)
		}
	case FormatTOML:
		md, err := toml.Decode(string(data), &file)
		if err != nil {
			return nil, fmt.Errorf("decode toml manifest: %w", err)
		}
		if undecoded := md.Undecoded(); len(undecoded) > 0 {
			return nil, fmt.Errorf("decode toml manifest: unknown key %q", undecoded[0].String())
		}
	default:
		return nil, fmt.Errorf("unsupported manifest format %q", format)
	}

	return file.build()
}

func formatFromPath(path string) (Format, error) {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		return FormatYAML, nil
	case ".toml":
		return FormatTOML, nil
	default:
		return "", fmt.Errorf("unsupported manifest extension %q", filepath.Ext(path))
	}
}

func (f File) build() (*Manifest, error) {
	m := &Manifest{}

	global, err := buildDefinitions(f.Global)
	if err != nil {
		return nil, fmt.Errorf("global: %w", err)
	}
	m.Scopes = append(m.Scopes, ScopeDefinitions{Scope: domain.GlobalScope(), Definitions: global})

	guildIDs := make([]string, 0, len(f.Guilds))
	for id := range f.Guilds {
		guildIDs = append(guildIDs, id)
	}
	sort.Strings(guildIDs)

	for _, id := range guildIDs {
		if id == "" || id == "global" {
			return nil, fmt.Errorf("guilds: invalid guild id %q", id)
		}
		defs, err := buildDefinitions(f.Guilds[id])
		if err != nil {
			return nil, fmt.Errorf("guild %s: %w", id, err)
		}
		m.Scopes = append(m.Scopes, ScopeDefinitions{Scope: domain.GuildScope(id), Definitions: defs})
	}

	return m, nil
}

// RedirectGlobal moves the global commands into the given guild, which is handy while
// developing since guild commands update instantly. The global scope is kept, empty, so
// leftovers from earlier global syncs are removed.
func (m *Manifest) RedirectGlobal(guildID string) {
	if guildID == "" || len(m.Scopes) == 0 {
		return
	}

	global := m.Scopes[0].Definitions
	m.Scopes[0].Definitions = nil

	for i := range m.Scopes {
		if m.Scopes[i].Scope.GuildID() == guildID {
			m.Scopes[i].Definitions = append(global, m.Scopes[i].Definitions...)
			return
		}
	}
	m.Scopes = append(m.Scopes, ScopeDefinitions{Scope: domain.GuildScope(guildID), Definitions: global})
}

// Entries returns the definitions of a scope as queue entries.
func (s ScopeDefinitions) Entries() []domain.Entry {
	entries := make([]domain.Entry, len(s.Definitions))
	for i, d := range s.Definitions {
		entries[i] = d
	}
	return entries
}

func buildDefinitions(commands []Command) ([]domain.Definition, error) {
	defs := make([]domain.Definition, 0, len(commands))
	for i, c := range commands {
		def, err := c.definition()
		if err != nil {
			return nil, fmt.Errorf("command %d (%s): %w", i, c.Name, err)
		}
		defs = append(defs, def)
	}
	return defs, nil
}

func (c Command) definition() (domain.Definition, error) {
	cmdType, ok := commandTypes[strings.ToLower(c.Type)]
	if !ok {
		return domain.Definition{}, fmt.Errorf("unknown command type %q", c.Type)
	}

	name := strings.TrimSpace(c.Name)
	if cmdType == discordgo.ChatApplicationCommand {
		name = normalizeName(name)
	}

	options, err := buildOptions(c.Options)
	if err != nil {
		return domain.Definition{}, err
	}

	perms := c.DefaultMemberPermissions
	if c.AdminOnly {
		if perms != nil && *perms != adminPerms {
			return domain.Definition{}, fmt.Errorf("admin_only conflicts with default_member_permissions")
		}
		admin := adminPerms
		perms = &admin
	}

	return domain.Definition{
		Name:                     name,
		Description:              strings.TrimSpace(c.Description),
		Type:                     cmdType,
		Options:                  options,
		DefaultMemberPermissions: perms,
		NSFW:                     c.NSFW,
	}, nil
}

func buildOptions(options []Option) ([]*discordgo.ApplicationCommandOption, error) {
	if len(options) == 0 {
		return nil, nil
	}

	out := make([]*discordgo.ApplicationCommandOption, 0, len(options))
	for _, o := range options {
		optType, ok := optionTypes[strings.ToLower(o.Type)]
		if !ok {
			return nil, fmt.Errorf("option %q: unknown type %q", o.Name, o.Type)
		}

		children, err := buildOptions(o.Options)
		if err != nil {
			return nil, err
		}

		opt := &discordgo.ApplicationCommandOption{
			Type:         optType,
			Name:         normalizeName(o.Name),
			Description:  strings.TrimSpace(o.Description),
			Required:     o.Required,
			Autocomplete: o.Autocomplete,
			MinValue:     o.MinValue,
			MaxValue:     o.MaxValue,
			MinLength:    o.MinLength,
			MaxLength:    o.MaxLength,
			Options:      children,
		}
		for _, ch := range o.Choices {
			opt.Choices = append(opt.Choices, &discordgo.ApplicationCommandOptionChoice{
				Name:  ch.Name,
				Value: ch.Value,
			})
		}
		out = append(out, opt)
	}
	return out, nil
}

func normalizeName(name string) string {
	return cases.Lower(language.Und).String(strings.TrimSpace(name))
}
