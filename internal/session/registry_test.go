package session_test

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"testing"

	"github.com/koopa0/pong-arena/internal/game"
	"github.com/koopa0/pong-arena/internal/session"
	"github.com/koopa0/pong-arena/internal/storage"
	apperrors "github.com/koopa0/pong-arena/pkg/errors"
	"github.com/koopa0/pong-arena/pkg/roomcode"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, &slog.HandlerOptions{Level: slog.LevelError}))
}

// fixedCodes 依序返回固定房間碼，用完後重複最後一個
func fixedCodes(codes ...string) roomcode.Generator {
	var mu sync.Mutex
	i := 0
	return roomcode.GeneratorFunc(func() (string, error) {
		mu.Lock()
		defer mu.Unlock()
		code := codes[min(i, len(codes)-1)]
		i++
		return code, nil
	})
}

func TestRegistry_CreateRoom(t *testing.T) {
	reg := session.NewRegistry(nil, testLogger(), session.WithCodeGenerator(fixedCodes("AB12CD")))

	snap, err := reg.CreateRoom(context.Background(), "host")
	require.NoError(t, err)
	assert.Equal(t, "AB12CD", snap.ID)
	assert.Equal(t, []string{"host"}, snap.ParticipantIDs())
	assert.Equal(t, session.StatusAwaitingOpponent, snap.Status)

	_, err = reg.CreateRoom(context.Background(), "host")
	assert.ErrorIs(t, err, apperrors.ErrAlreadyInRoom)
}

func TestRegistry_CreateRoom_RegeneratesOnCollision(t *testing.T) {
	ctx := context.Background()
	store := storage.NewMemoryStore()

	// 另一個實例已預留 CCCCCC
	ok, err := store.Reserve(ctx, "CCCCCC")
	require.NoError(t, err)
	require.True(t, ok)

	reg := session.NewRegistry(store, testLogger(),
		session.WithCodeGenerator(fixedCodes("AAAAAA", "AAAAAA", "CCCCCC", "DDDDDD")))

	first, err := reg.CreateRoom(ctx, "p1")
	require.NoError(t, err)
	assert.Equal(t, "AAAAAA", first.ID)

	second, err := reg.CreateRoom(ctx, "p2")
	require.NoError(t, err)
	assert.Equal(t, "DDDDDD", second.ID)
}

func TestRegistry_CreateRoom_Exhausted(t *testing.T) {
	ctx := context.Background()
	reg := session.NewRegistry(nil, testLogger(), session.WithCodeGenerator(fixedCodes("AAAAAA")))

	_, err := reg.CreateRoom(ctx, "p1")
	require.NoError(t, err)

	_, err = reg.CreateRoom(ctx, "p2")
	require.Error(t, err)
	assert.Equal(t, apperrors.ErrCodeInternal, apperrors.CodeOf(err))

	_, inRoom := reg.RoomOf("p2")
	assert.False(t, inRoom)
}

func TestRegistry_JoinRoom(t *testing.T) {
	tests := []struct {
		name     string
		setup    func(t *testing.T, reg *session.Registry)
		roomID   string
		joiner   string
		wantErr  error
		validate func(t *testing.T, snap session.Snapshot)
	}{
		{
			name:   "join waiting room",
			roomID: "AB12CD",
			joiner: "guest",
			validate: func(t *testing.T, snap session.Snapshot) {
				assert.Equal(t, []string{"host", "guest"}, snap.ParticipantIDs())
				assert.Equal(t, session.StatusLobby, snap.Status)
			},
		},
		{
			name:   "code is case-insensitive",
			roomID: "ab12cd",
			joiner: "guest",
			validate: func(t *testing.T, snap session.Snapshot) {
				assert.Equal(t, "AB12CD", snap.ID)
			},
		},
		{
			name:    "unknown code",
			roomID:  "ZZZZZZ",
			joiner:  "guest",
			wantErr: apperrors.ErrRoomNotFound,
		},
		{
			name:    "malformed code",
			roomID:  "AB-2CD",
			joiner:  "guest",
			wantErr: apperrors.ErrRoomNotFound,
		},
		{
			name:    "wrong length",
			roomID:  "AB12CD7",
			joiner:  "guest",
			wantErr: apperrors.ErrRoomNotFound,
		},
		{
			name: "full room",
			setup: func(t *testing.T, reg *session.Registry) {
				_, err := reg.JoinRoom(context.Background(), "AB12CD", "guest")
				require.NoError(t, err)
			},
			roomID:  "AB12CD",
			joiner:  "third",
			wantErr: apperrors.ErrRoomFull,
		},
		{
			name:    "host joins own room",
			roomID:  "AB12CD",
			joiner:  "host",
			wantErr: apperrors.ErrAlreadyInRoom,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			reg := session.NewRegistry(nil, testLogger(), session.WithCodeGenerator(fixedCodes("AB12CD")))
			_, err := reg.CreateRoom(context.Background(), "host")
			require.NoError(t, err)
			if tt.setup != nil {
				tt.setup(t, reg)
			}

			snap, err := reg.JoinRoom(context.Background(), tt.roomID, tt.joiner)
			if tt.wantErr != nil {
				assert.ErrorIs(t, err, tt.wantErr)
				return
			}
			require.NoError(t, err)
			tt.validate(t, snap)
		})
	}
}

// TestRegistry_FullRoomAlwaysRejects 任何已滿房間的加入都返回 ROOM_FULL
func TestRegistry_FullRoomAlwaysRejects(t *testing.T) {
	ctx := context.Background()
	reg := session.NewRegistry(nil, testLogger())

	for i := 0; i < 50; i++ {
		snap, err := reg.CreateRoom(ctx, fmt.Sprintf("host-%d", i))
		require.NoError(t, err)
		_, err = reg.JoinRoom(ctx, snap.ID, fmt.Sprintf("guest-%d", i))
		require.NoError(t, err)

		_, err = reg.JoinRoom(ctx, snap.ID, fmt.Sprintf("late-%d", i))
		assert.True(t, apperrors.IsRoomFull(err), "room %s", snap.ID)
	}
	assert.Equal(t, 50, reg.Len())
}

func TestRegistry_RemoveRoomIdempotent(t *testing.T) {
	ctx := context.Background()
	store := storage.NewMemoryStore()
	reg := session.NewRegistry(store, testLogger(), session.WithCodeGenerator(fixedCodes("AB12CD")))

	_, err := reg.CreateRoom(ctx, "host")
	require.NoError(t, err)
	_, err = reg.JoinRoom(ctx, "AB12CD", "guest")
	require.NoError(t, err)

	assert.Equal(t, []string{"host", "guest"}, reg.RemoveRoom(ctx, "AB12CD"))
	assert.Nil(t, reg.RemoveRoom(ctx, "AB12CD"))

	_, err = reg.Get("AB12CD")
	assert.ErrorIs(t, err, apperrors.ErrRoomNotFound)
	assert.Zero(t, reg.Len())
	assert.Zero(t, store.Len(), "code reservation released")

	// 玩家可以再建立新房間
	_, err = reg.CreateRoom(ctx, "guest")
	require.NoError(t, err)
}

func TestRegistry_Disconnect(t *testing.T) {
	ctx := context.Background()
	reg := session.NewRegistry(nil, testLogger(), session.WithCodeGenerator(fixedCodes("AB12CD")))

	_, err := reg.CreateRoom(ctx, "host")
	require.NoError(t, err)
	_, err = reg.JoinRoom(ctx, "AB12CD", "guest")
	require.NoError(t, err)
	room, err := reg.Get("AB12CD")
	require.NoError(t, err)

	roomID, others, ok := reg.Disconnect(ctx, "guest")
	require.True(t, ok)
	assert.Equal(t, "AB12CD", roomID)
	assert.Equal(t, []string{"host"}, others)

	// 持有舊指標的處理器也只會得到 ROOM_NOT_FOUND
	_, err = room.Ready("host")
	assert.ErrorIs(t, err, apperrors.ErrRoomNotFound)
	_, err = reg.Get("AB12CD")
	assert.ErrorIs(t, err, apperrors.ErrRoomNotFound)

	_, _, ok = reg.Disconnect(ctx, "host")
	assert.False(t, ok, "host no longer belongs to a room")
}

// TestRegistry_ConcurrentDisconnectAndUpdates 斷線與更新並發時不會崩潰
func TestRegistry_ConcurrentDisconnectAndUpdates(t *testing.T) {
	ctx := context.Background()
	reg := session.NewRegistry(nil, testLogger())

	for i := 0; i < 20; i++ {
		snap, err := reg.CreateRoom(ctx, fmt.Sprintf("h%d", i))
		require.NoError(t, err)
		_, err = reg.JoinRoom(ctx, snap.ID, fmt.Sprintf("g%d", i))
		require.NoError(t, err)
		room, err := reg.Get(snap.ID)
		require.NoError(t, err)
		_, err = room.Start(fmt.Sprintf("h%d", i))
		require.NoError(t, err)

		var wg sync.WaitGroup
		for j := 0; j < 10; j++ {
			wg.Add(2)
			go func() {
				defer wg.Done()
				_, _, _ = room.MovePaddle(fmt.Sprintf("g%d", i), game.Paddle{X: float64(j)})
			}()
			go func() {
				defer wg.Done()
				_, _, _ = room.ApplyBall(fmt.Sprintf("h%d", i), game.Ball{Direction: game.Vec3{Z: 1}, Speed: 12})
			}()
		}
		wg.Add(1)
		go func() {
			defer wg.Done()
			reg.Disconnect(ctx, fmt.Sprintf("h%d", i))
		}()
		wg.Wait()

		assert.Equal(t, session.StatusTornDown, room.Status())
	}
	assert.Zero(t, reg.Len())
}

func TestRegistry_Stats(t *testing.T) {
	ctx := context.Background()
	reg := session.NewRegistry(nil, testLogger())

	a, err := reg.CreateRoom(ctx, "a")
	require.NoError(t, err)
	_, err = reg.CreateRoom(ctx, "b")
	require.NoError(t, err)
	_, err = reg.JoinRoom(ctx, a.ID, "c")
	require.NoError(t, err)

	stats := reg.Stats()
	assert.Equal(t, 2, stats["total_rooms"])
	assert.Equal(t, 3, stats["total_participants"])
	byStatus := stats["rooms_by_status"].(map[session.Status]int)
	assert.Equal(t, 1, byStatus[session.StatusLobby])
	assert.Equal(t, 1, byStatus[session.StatusAwaitingOpponent])
}
