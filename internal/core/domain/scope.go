package domain

import (
	"fmt"
	"net/url"
)

const globalScopeKey = "global"

// Scope selects the command set a store reconciles: the global set or one guild's set.
type Scope struct {
	guildID string
}

func GlobalScope() Scope {
	return Scope{}
}

func GuildScope(guildID string) Scope {
	return Scope{guildID: guildID}
}

// ParseScope maps a scope key back to a Scope. "global" and "" select the global set.
func ParseScope(key string) Scope {
	if key == globalScopeKey {
		return GlobalScope()
	}
	return GuildScope(key)
}

func (s Scope) Key() string {
	if s.guildID == "" {
		return globalScopeKey
	}
	return s.guildID
}

func (s Scope) IsGuild() bool   { return s.guildID != "" }
func (s Scope) GuildID() string { return s.guildID }
func (s Scope) String() string  { return s.Key() }

func (s Scope) CommandsPath(appID string) string {
	if s.IsGuild() {
		return fmt.Sprintf("/applications/%s/guilds/%s/commands", url.PathEscape(appID), url.PathEscape(s.guildID))
	}
	return fmt.Sprintf("/applications/%s/commands", url.PathEscape(appID))
}

func (s Scope) CommandPath(appID, commandID string) string {
	return s.CommandsPath(appID) + "/" + url.PathEscape(commandID)
}
