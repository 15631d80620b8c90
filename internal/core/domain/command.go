package domain

import (
	"encoding/json"
	"fmt"
	"reflect"
	"regexp"
	"strconv"
	"strings"

	"github.com/bwmarrin/discordgo"
)

var chatInputName = regexp.MustCompile(`^[-_\p{L}\p{N}]{1,32}$`)

const maxDescriptionLength = 100

// Definition is the caller-declared shape of a command before it has a remote identity.
type Definition struct {
	Name                     string
	Description              string
	Type                     discordgo.ApplicationCommandType
	Options                  []*discordgo.ApplicationCommandOption
	DefaultMemberPermissions *int64
	NSFW                     *bool
}

// Entry is anything that can be queued for reconciliation: a plain Definition or an
// already constructed *Descriptor.
type Entry interface {
	descriptor() (*Descriptor, error)
}

func (d Definition) descriptor() (*Descriptor, error) {
	return NewDescriptor(d)
}

// Resolve turns an Entry into a validated descriptor.
func Resolve(e Entry) (*Descriptor, error) {
	if e == nil {
		return nil, &InvalidDescriptorError{Reason: "entry is nil"}
	}
	return e.descriptor()
}

// Descriptor is the local representation of one command, with or without a remote identity.
// A Descriptor is not safe for concurrent mutation; the reconcile store serializes access.
type Descriptor struct {
	def      Definition
	desired  bool
	remoteID string
	snapshot *discordgo.ApplicationCommand
}

func NewDescriptor(def Definition) (*Descriptor, error) {
	if err := def.Validate(); err != nil {
		return nil, err
	}
	return &Descriptor{def: def, desired: true}, nil
}

// HydrateDescriptor builds a descriptor from a remote command. The result is not desired:
// it only records what exists remotely.
func HydrateDescriptor(remote *discordgo.ApplicationCommand) (*Descriptor, error) {
	if remote == nil {
		return nil, &InvalidDescriptorError{Reason: "remote command is nil"}
	}
	if remote.ID == "" {
		return nil, &InvalidDescriptorError{Name: remote.Name, Reason: "remote command has no id"}
	}
	if remote.Name == "" {
		return nil, &InvalidDescriptorError{Reason: "remote command has no name"}
	}

	return &Descriptor{
		def:      definitionFrom(remote),
		remoteID: remote.ID,
		snapshot: remote,
	}, nil
}

func (d *Descriptor) descriptor() (*Descriptor, error) {
	if d == nil {
		return nil, &InvalidDescriptorError{Reason: "descriptor is nil"}
	}
	if err := d.def.Validate(); err != nil {
		return nil, err
	}
	if d.desired {
		return d, nil
	}
	// Queueing a hydrated descriptor declares its current definition as desired.
	cp := *d
	cp.desired = true
	return &cp, nil
}

func (d *Descriptor) Name() string                            { return d.def.Name }
func (d *Descriptor) Definition() Definition                  { return d.def }
func (d *Descriptor) RemoteID() string                        { return d.remoteID }
func (d *Descriptor) Snapshot() *discordgo.ApplicationCommand { return d.snapshot }

// Desired reports whether the descriptor carries a caller-declared definition, as opposed
// to one hydrated purely from remote state.
func (d *Descriptor) Desired() bool { return d.desired }

// SameName is the equality used when diffing; remote ids are unknown before creation.
func (d *Descriptor) SameName(other *Descriptor) bool {
	return other != nil && d.def.Name == other.def.Name
}

// Bind records the remote identity and latest remote representation of the command.
func (d *Descriptor) Bind(remote *discordgo.ApplicationCommand) {
	if remote == nil {
		return
	}
	if remote.ID != "" {
		d.remoteID = remote.ID
	}
	d.snapshot = remote
	if !d.desired {
		d.def = definitionFrom(remote)
	}
}

// Payload is the upload body for the command. Remote-only fields are never included.
func (d *Descriptor) Payload() *discordgo.ApplicationCommand {
	options := d.def.Options
	if options == nil {
		options = []*discordgo.ApplicationCommandOption{}
	}
	return &discordgo.ApplicationCommand{
		Type:                     d.def.effectiveType(),
		Name:                     d.def.Name,
		Description:              d.def.Description,
		Options:                  options,
		DefaultMemberPermissions: d.def.DefaultMemberPermissions,
		NSFW:                     d.def.NSFW,
	}
}

// Changes returns the fields of the payload that differ from the last remote snapshot,
// keyed by their wire names. Without a snapshot every field is returned.
func (d *Descriptor) Changes() map[string]any {
	if d.snapshot == nil {
		p := d.Payload()
		changes := map[string]any{
			"name":        p.Name,
			"description": p.Description,
			"type":        p.Type,
			"options":     p.Options,
			"nsfw":        boolValue(p.NSFW),
		}
		if p.DefaultMemberPermissions != nil {
			changes["default_member_permissions"] = strconv.FormatInt(*p.DefaultMemberPermissions, 10)
		}
		return changes
	}

	changes := make(map[string]any)
	remote := d.snapshot

	if remote.Name != d.def.Name {
		changes["name"] = d.def.Name
	}
	if remote.Description != d.def.Description {
		changes["description"] = d.def.Description
	}
	if normalizeType(remote.Type) != d.def.effectiveType() {
		changes["type"] = d.def.effectiveType()
	}
	if !sameOptions(remote.Options, d.def.Options) {
		options := d.def.Options
		if options == nil {
			options = []*discordgo.ApplicationCommandOption{}
		}
		changes["options"] = options
	}
	if !samePermissions(remote.DefaultMemberPermissions, d.def.DefaultMemberPermissions) {
		if d.def.DefaultMemberPermissions == nil {
			changes["default_member_permissions"] = nil
		} else {
			changes["default_member_permissions"] = strconv.FormatInt(*d.def.DefaultMemberPermissions, 10)
		}
	}
	if boolValue(remote.NSFW) != boolValue(d.def.NSFW) {
		changes["nsfw"] = boolValue(d.def.NSFW)
	}

	return changes
}

// Drifted reports whether the remote snapshot differs from the local definition.
func (d *Descriptor) Drifted() bool {
	return len(d.Changes()) > 0
}

func (d *Descriptor) String() string {
	if d.remoteID == "" {
		return d.def.Name
	}
	return fmt.Sprintf("%s (%s)", d.def.Name, d.remoteID)
}

// Validate checks the name and the structure of the option list.
func (d Definition) Validate() error {
	if strings.TrimSpace(d.Name) == "" {
		return &InvalidDescriptorError{Reason: "name is required"}
	}

	if d.effectiveType() == discordgo.ChatApplicationCommand {
		if !chatInputName.MatchString(d.Name) {
			return &InvalidDescriptorError{Name: d.Name, Reason: "name must be 1-32 letters, digits, '-' or '_'"}
		}
		if strings.ToLower(d.Name) != d.Name {
			return &InvalidDescriptorError{Name: d.Name, Reason: "name must be lowercase"}
		}
		if len(d.Description) > maxDescriptionLength {
			return &InvalidDescriptorError{Name: d.Name, Reason: "description is longer than 100 characters"}
		}
	} else if len(d.Options) > 0 {
		return &InvalidDescriptorError{Name: d.Name, Reason: "only chat input commands take options"}
	}

	if err := validateOptions(d.Options, 0); err != nil {
		return &InvalidDescriptorError{Name: d.Name, Reason: err.Error()}
	}

	return nil
}

func (d Definition) effectiveType() discordgo.ApplicationCommandType {
	return normalizeType(d.Type)
}

// validateOptions enforces the nesting rules: groups hold sub commands, sub commands hold
// plain options, and sub commands are never mixed with plain options on one level.
func validateOptions(options []*discordgo.ApplicationCommandOption, depth int) error {
	seen := make(map[string]bool, len(options))
	var subCommands, plain int

	for i, opt := range options {
		if opt == nil {
			return fmt.Errorf("option %d is nil", i)
		}
		if opt.Name == "" {
			return fmt.Errorf("option %d has no name", i)
		}
		if seen[opt.Name] {
			return fmt.Errorf("option %q is declared twice", opt.Name)
		}
		seen[opt.Name] = true

		if !knownOptionType(opt.Type) {
			return fmt.Errorf("option %q has unknown type %d", opt.Name, opt.Type)
		}

		switch opt.Type {
		case discordgo.ApplicationCommandOptionSubCommandGroup:
			subCommands++
			if depth > 0 {
				return fmt.Errorf("option %q: sub command groups must be top level", opt.Name)
			}
			for _, child := range opt.Options {
				if child != nil && child.Type != discordgo.ApplicationCommandOptionSubCommand {
					return fmt.Errorf("option %q: groups may only contain sub commands", opt.Name)
				}
			}
			if err := validateOptions(opt.Options, depth+1); err != nil {
				return err
			}
		case discordgo.ApplicationCommandOptionSubCommand:
			subCommands++
			if depth > 1 {
				return fmt.Errorf("option %q: sub commands nested too deep", opt.Name)
			}
			for _, child := range opt.Options {
				if child != nil && isSubCommandType(child.Type) {
					return fmt.Errorf("option %q: sub commands cannot contain sub commands", opt.Name)
				}
			}
			if err := validateOptions(opt.Options, depth+1); err != nil {
				return err
			}
		default:
			plain++
			if len(opt.Options) > 0 {
				return fmt.Errorf("option %q: only sub commands take nested options", opt.Name)
			}
			for j, choice := range opt.Choices {
				if choice == nil || choice.Name == "" {
					return fmt.Errorf("option %q: choice %d is malformed", opt.Name, j)
				}
			}
		}
	}

	if subCommands > 0 && plain > 0 {
		return fmt.Errorf("sub commands cannot be mixed with plain options")
	}
	return nil
}

func knownOptionType(t discordgo.ApplicationCommandOptionType) bool {
	return t >= discordgo.ApplicationCommandOptionSubCommand && t <= discordgo.ApplicationCommandOptionAttachment
}

func isSubCommandType(t discordgo.ApplicationCommandOptionType) bool {
	return t == discordgo.ApplicationCommandOptionSubCommand || t == discordgo.ApplicationCommandOptionSubCommandGroup
}

func definitionFrom(remote *discordgo.ApplicationCommand) Definition {
	return Definition{
		Name:                     remote.Name,
		Description:              remote.Description,
		Type:                     remote.Type,
		Options:                  remote.Options,
		DefaultMemberPermissions: remote.DefaultMemberPermissions,
		NSFW:                     remote.NSFW,
	}
}

func normalizeType(t discordgo.ApplicationCommandType) discordgo.ApplicationCommandType {
	if t == 0 {
		return discordgo.ChatApplicationCommand
	}
	return t
}

func sameOptions(a, b []*discordgo.ApplicationCommandOption) bool {
	if len(a) == 0 && len(b) == 0 {
		return true
	}
	left, errA := json.Marshal(a)
	right, errB := json.Marshal(b)
	if errA != nil || errB != nil {
		return reflect.DeepEqual(a, b)
	}
	return string(left) == string(right)
}

func samePermissions(a, b *int64) bool {
	if a == nil || b == nil {
		return a == nil && b == nil
	}
	return *a == *b
}

func boolValue(b *bool) bool {
	return b != nil && *b
}
