package watcher

import (
	"context"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEventTypeString(t *testing.T) {
	assert.Equal(t, "created", EventTypeCreated.String())
	assert.Equal(t, "modified", EventTypeModified.String())
	assert.Equal(t, "deleted", EventTypeDeleted.String())
	assert.Equal(t, "renamed", EventTypeRenamed.String())
	assert.Equal(t, "unknown", EventType(99).String())
}

func TestEventTypeFromOp(t *testing.T) {
	assert.Equal(t, EventTypeCreated, eventType(fsnotify.Create|fsnotify.Write))
	assert.Equal(t, EventTypeModified, eventType(fsnotify.Write))
	assert.Equal(t, EventTypeDeleted, eventType(fsnotify.Remove))
	assert.Equal(t, EventTypeRenamed, eventType(fsnotify.Rename))
	assert.Equal(t, EventTypeModified, eventType(fsnotify.Chmod))
}

func TestFilters(t *testing.T) {
	html := ExtensionFilter(".html", ".TMPL")
	assert.True(t, html("a/card.html"))
	assert.True(t, html("a/card.tmpl"))
	assert.False(t, html("a/card.go"))

	assert.False(t, NoHiddenFilter("a/.card.html.swp"))
	assert.True(t, NoHiddenFilter("a/card.html"))
	assert.False(t, NoBackupFilter("card.html~"))
	assert.True(t, NoBackupFilter("card.html"))
}

func TestDebouncerDeduplicates(t *testing.T) {
	d := NewDebouncer(10 * time.Millisecond)
	d.addEvent(ChangeEvent{Type: EventTypeCreated, Path: "b.html"})
	d.addEvent(ChangeEvent{Type: EventTypeModified, Path: "a.html"})
	d.addEvent(ChangeEvent{Type: EventTypeModified, Path: "b.html"})

	select {
	case events := <-d.output:
		require.Len(t, events, 2)
		assert.Equal(t, "a.html", events[0].Path)
		assert.Equal(t, "b.html", events[1].Path)
		assert.Equal(t, EventTypeModified, events[1].Type)
	case <-time.After(time.Second):
		t.Fatal("debouncer did not flush")
	}
}

func TestFileWatcherReportsChanges(t *testing.T) {
	dir := t.TempDir()
	fw, err := NewFileWatcher(20*time.Millisecond, nil)
	require.NoError(t, err)
	defer fw.Stop()

	var (
		mu   sync.Mutex
		seen []string
	)
	fw.AddFilter(ExtensionFilter(".html"))
	fw.AddHandler(func(events []ChangeEvent) error {
		mu.Lock()
		defer mu.Unlock()
		for _, e := range events {
			seen = append(seen, filepath.Base(e.Path))
		}
		return nil
	})
	require.NoError(t, fw.AddRecursive(dir))

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	require.NoError(t, fw.Start(ctx))

	require.NoError(t, os.WriteFile(filepath.Join(dir, "notes.txt"), []byte("x"), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "card.html"), []byte("<template></template>"), 0o644))

	assert.Eventually(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return len(seen) > 0
	}, 5*time.Second, 20*time.Millisecond)

	mu.Lock()
	defer mu.Unlock()
	assert.NotContains(t, seen, "notes.txt")
	assert.Contains(t, seen, "card.html")
}
