package players

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/cyberinferno/pzrcon/cacher"
	"github.com/cyberinferno/pzrcon/rcon"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeExecutor struct {
	mu        sync.Mutex
	responses map[string]string
	err       error
	calls     []string
}

func (f *fakeExecutor) ExecuteCommand(serverID int, command string) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.calls = append(f.calls, command)
	if f.err != nil {
		return "", f.err
	}

	return f.responses[command], nil
}

func (f *fakeExecutor) count(command string) int {
	f.mu.Lock()
	defer f.mu.Unlock()

	n := 0
	for _, c := range f.calls {
		if c == command {
			n++
		}
	}
	return n
}

const options = "List of Server Options:\n* PVP=true\n* MaxPlayers=32\n* PauseEmpty=true"

func newTestProbe(exec Executor) *Probe {
	return NewProbe(exec, cacher.NewMemoryCacher[int](time.Minute), time.Minute, nil)
}

func TestParsePlayers(t *testing.T) {
	tests := []struct {
		name string
		resp string
		want int
	}{
		{"header", "Players connected (2):\n- alice\n- bob", 2},
		{"header wins over lines", "Players connected (5):\n- alice", 5},
		{"empty server", "Players connected (0):", 0},
		{"dash lines only", "- alice\n  - bob\ncarol", 2},
		{"nothing recognizable", rcon.NoResponse, 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, ParsePlayers(tt.resp))
		})
	}
}

func TestParseMaxPlayers(t *testing.T) {
	n, ok := ParseMaxPlayers(options)
	assert.True(t, ok)
	assert.Equal(t, 32, n)

	n, ok = ParseMaxPlayers("*MaxPlayers = 16")
	assert.True(t, ok)
	assert.Equal(t, 16, n)

	_, ok = ParseMaxPlayers("* PVP=true")
	assert.False(t, ok)
}

func TestProbe_Count(t *testing.T) {
	ctx := context.Background()

	t.Run("combines current and max", func(t *testing.T) {
		exec := &fakeExecutor{responses: map[string]string{
			PlayersCommand: "Players connected (2):\n- alice\n- bob",
			OptionsCommand: options,
		}}
		p := newTestProbe(exec)

		got, err := p.Count(ctx, 1)
		require.NoError(t, err)
		assert.Equal(t, Count{Current: 2, Max: 32}, got)
	})

	t.Run("player limit is cached", func(t *testing.T) {
		exec := &fakeExecutor{responses: map[string]string{
			PlayersCommand: "Players connected (1):",
			OptionsCommand: options,
		}}
		p := newTestProbe(exec)

		for i := 0; i < 3; i++ {
			_, err := p.Count(ctx, 1)
			require.NoError(t, err)
		}
		assert.Equal(t, 3, exec.count(PlayersCommand))
		assert.Equal(t, 1, exec.count(OptionsCommand))
	})

	t.Run("unknown limit reports zero and is not cached", func(t *testing.T) {
		exec := &fakeExecutor{responses: map[string]string{
			PlayersCommand: "Players connected (3):",
			OptionsCommand: "* PVP=true",
		}}
		p := newTestProbe(exec)

		got, err := p.Count(ctx, 1)
		require.NoError(t, err)
		assert.Equal(t, Count{Current: 3}, got)

		_, err = p.Count(ctx, 1)
		require.NoError(t, err)
		assert.Equal(t, 2, exec.count(OptionsCommand))
	})

	t.Run("executor error is returned", func(t *testing.T) {
		boom := rcon.NewError(1, "execute", rcon.ErrNotConnected, nil)
		p := newTestProbe(&fakeExecutor{err: boom})

		_, err := p.Count(ctx, 1)
		assert.ErrorIs(t, err, rcon.ErrNotConnected)
	})
}

func TestProbe_Invalidate(t *testing.T) {
	ctx := context.Background()
	exec := &fakeExecutor{responses: map[string]string{OptionsCommand: options}}
	p := newTestProbe(exec)

	n, err := p.MaxPlayers(ctx, 4)
	require.NoError(t, err)
	assert.Equal(t, 32, n)

	require.NoError(t, p.Invalidate(ctx, 4))
	exec.responses[OptionsCommand] = "* MaxPlayers=64"

	n, err = p.MaxPlayers(ctx, 4)
	require.NoError(t, err)
	assert.Equal(t, 64, n)
	assert.Equal(t, 2, exec.count(OptionsCommand))
}

func TestProbe_MaxPlayersError(t *testing.T) {
	boom := errors.New("transport")
	p := newTestProbe(&fakeExecutor{err: boom})

	_, err := p.MaxPlayers(context.Background(), 1)
	assert.ErrorIs(t, err, boom)
}
