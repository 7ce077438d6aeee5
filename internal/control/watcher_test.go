package control

import (
	"context"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

type target struct {
	mu  sync.Mutex
	log []Command
}

func (t *target) add(c Command) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.log = append(t.log, c)
}

func (t *target) Pause()  { t.add(CommandPause) }
func (t *target) Resume() { t.add(CommandResume) }
func (t *target) Cancel() { t.add(CommandCancel) }

func (t *target) commands() []Command {
	t.mu.Lock()
	defer t.mu.Unlock()
	return append([]Command(nil), t.log...)
}

func TestParse(t *testing.T) {
	cases := map[string]Command{
		"":             CommandNone,
		"  \n":         CommandNone,
		"pause":        CommandPause,
		"PAUSA\n":      CommandPause,
		"reanudar":     CommandResume,
		"resume now":   CommandResume,
		"cancelar":     CommandCancel,
		"\tcancel\r\n": CommandCancel,
	}
	for in, want := range cases {
		got, err := Parse(in)
		require.NoError(t, err, in)
		assert.Equal(t, want, got, in)
	}
	_, err := Parse("reboot")
	assert.Error(t, err)
}

func TestWatcherAppliesCommands(t *testing.T) {
	path := filepath.Join(t.TempDir(), "control", "autorndc.ctl")
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0755))
	// A stale command must not be replayed.
	require.NoError(t, os.WriteFile(path, []byte("cancel"), 0644))

	tg := &target{}
	w := NewWatcher(path, tg, nil)
	applied := make(chan Command, 64)
	w.OnCommand = func(c Command) {
		select {
		case applied <- c:
		default:
		}
	}

	ctx, cancel := context.WithCancel(context.Background())
	errc := make(chan error, 1)
	go func() { errc <- w.Run(ctx) }()

	require.Eventually(t, func() bool {
		data, err := os.ReadFile(path)
		return err == nil && len(data) == 0
	}, 2*time.Second, 10*time.Millisecond)
	// Give the watcher time to register the directory after the reset.
	time.Sleep(50 * time.Millisecond)

	require.NoError(t, os.WriteFile(path, []byte("pausa\n"), 0644))
	waitFor(t, applied, CommandPause)
	require.NoError(t, os.WriteFile(path, []byte("reanudar\n"), 0644))
	waitFor(t, applied, CommandResume)

	cancel()
	require.NoError(t, <-errc)

	cmds := tg.commands()
	assert.NotContains(t, cmds, CommandCancel)
	assert.Contains(t, cmds, CommandPause)
	assert.Contains(t, cmds, CommandResume)
}

func waitFor(t *testing.T, ch <-chan Command, want Command) {
	t.Helper()
	deadline := time.After(2 * time.Second)
	for {
		select {
		case got := <-ch:
			if got == want {
				return
			}
		case <-deadline:
			t.Fatalf("command %s not applied", want)
		}
	}
}
