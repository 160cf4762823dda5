// Package players reads the online player count and the configured player
// limit of a Project Zomboid server through its RCON console.
package players

import (
	"context"
	"errors"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/cyberinferno/pzrcon/cacher"
	"github.com/cyberinferno/pzrcon/logger"
)

const (
	// PlayersCommand lists the connected players.
	PlayersCommand = "players"

	// OptionsCommand dumps the server options, including MaxPlayers.
	OptionsCommand = "showoptions"

	// DefaultMaxPlayersTTL is how long a server's player limit stays cached.
	DefaultMaxPlayersTTL = 10 * time.Minute
)

// ErrMaxPlayersUnknown is returned when the server options carry no MaxPlayers entry.
var ErrMaxPlayersUnknown = errors.New("players: MaxPlayers not found in server options")

var (
	connectedRe  = regexp.MustCompile(`Players connected \((\d+)\)`)
	maxPlayersRe = regexp.MustCompile(`\*\s*MaxPlayers\s*=\s*(\d+)`)
)

// Executor runs one console command on a connected server.
type Executor interface {
	ExecuteCommand(serverID int, command string) (string, error)
}

// Count is the player count of one server. Max is 0 when the limit is unknown.
type Count struct {
	Current int
	Max     int
}

// Probe queries player counts on demand. The player limit rarely changes, so
// it is cached per server; call Invalidate after changing server options.
type Probe struct {
	exec  Executor
	cache cacher.Cacher[int]
	ttl   time.Duration
	log   logger.Logger
}

// NewProbe creates a Probe.
//
// Parameters:
//   - exec: Runs the console commands, usually a *registry.Registry
//   - cache: Stores player limits per server
//   - ttl: Lifetime of a cached player limit; zero means DefaultMaxPlayersTTL
//   - log: Probe logger; nil discards logs
//
// Returns:
//   - A new *Probe
func NewProbe(exec Executor, cache cacher.Cacher[int], ttl time.Duration, log logger.Logger) *Probe {
	if ttl <= 0 {
		ttl = DefaultMaxPlayersTTL
	}

	if log == nil {
		log = logger.NewNopLogger()
	}

	return &Probe{
		exec:  exec,
		cache: cache,
		ttl:   ttl,
		log:   log.With(logger.Field{Key: "component", Value: "players"}),
	}
}

// Count runs the players command and combines its result with the cached
// player limit.
//
// Parameters:
//   - ctx: Context for cache access
//   - serverID: The server identity
//
// Returns:
//   - The current and maximum player count; Max is 0 if the limit is unknown
//   - The executor error if either command fails
func (p *Probe) Count(ctx context.Context, serverID int) (Count, error) {
	resp, err := p.exec.ExecuteCommand(serverID, PlayersCommand)
	if err != nil {
		return Count{}, err
	}

	count := Count{Current: ParsePlayers(resp)}
	count.Max, err = p.MaxPlayers(ctx, serverID)
	if errors.Is(err, ErrMaxPlayersUnknown) {
		p.log.Warn("player limit unavailable", logger.Field{Key: "server_id", Value: serverID})
		return count, nil
	}

	if err != nil {
		return Count{}, err
	}

	return count, nil
}

// MaxPlayers returns the configured player limit of serverID, running the
// options command on a cache miss. A missing entry is not cached.
//
// Returns:
//   - The player limit
//   - ErrMaxPlayersUnknown if the options do not contain it, or the executor error
func (p *Probe) MaxPlayers(ctx context.Context, serverID int) (int, error) {
	return p.cache.GetOrFetch(ctx, cacheKey(serverID), p.ttl, func(context.Context) (int, error) {
		resp, err := p.exec.ExecuteCommand(serverID, OptionsCommand)
		if err != nil {
			return 0, err
		}

		n, ok := ParseMaxPlayers(resp)
		if !ok {
			return 0, ErrMaxPlayersUnknown
		}

		p.log.Debug("player limit fetched",
			logger.Field{Key: "server_id", Value: serverID},
			logger.Field{Key: "max_players", Value: n},
		)
		return n, nil
	})
}

// Invalidate drops the cached player limit of serverID.
func (p *Probe) Invalidate(ctx context.Context, serverID int) error {
	return p.cache.Delete(ctx, cacheKey(serverID))
}

// ParsePlayers extracts the player count from the output of the players
// command. The "Players connected (N)" header wins; without it the lines
// starting with "-" are counted.
func ParsePlayers(resp string) int {
	if m := connectedRe.FindStringSubmatch(resp); m != nil {
		if n, err := strconv.Atoi(m[1]); err == nil {
			return n
		}
	}

	n := 0
	for _, line := range strings.Split(resp, "\n") {
		if strings.HasPrefix(strings.TrimSpace(line), "-") {
			n++
		}
	}

	return n
}

// ParseMaxPlayers extracts "* MaxPlayers=N" from the output of the options command.
func ParseMaxPlayers(resp string) (int, bool) {
	m := maxPlayersRe.FindStringSubmatch(resp)
	if m == nil {
		return 0, false
	}

	n, err := strconv.Atoi(m[1])
	if err != nil {
		return 0, false
	}

	return n, true
}

func cacheKey(serverID int) string {
	return "max_players:" + strconv.Itoa(serverID)
}
