package ports

import (
	"context"
	"time"

	"discord-interactions-server/internal/core/domain"

	"github.com/bwmarrin/discordgo"
)

// Transport is the REST collaborator used by the reconcile store. Paths are relative to
// the API root, e.g. /applications/{appId}/commands.
type Transport interface {
	Get(ctx context.Context, path string) ([]*discordgo.ApplicationCommand, error)
	Post(ctx context.Context, path string, body any) (*discordgo.ApplicationCommand, error)
	Patch(ctx context.Context, path string, body any) (*discordgo.ApplicationCommand, error)
	Delete(ctx context.Context, path string) error
}

type Snapshot struct {
	Scope    domain.Scope
	Commands []*discordgo.ApplicationCommand
	SyncedAt time.Time
}

// SnapshotRepository persists the last reconciled remote state of a scope.
type SnapshotRepository interface {
	SaveSnapshot(ctx context.Context, scope domain.Scope, commands []*discordgo.ApplicationCommand) error
	LoadSnapshot(ctx context.Context, scope domain.Scope) (*Snapshot, error)
	Close()
}

// Locker serializes reconciliation passes across processes.
type Locker interface {
	Lock(ctx context.Context, key string) (unlock func(context.Context) error, err error)
}
