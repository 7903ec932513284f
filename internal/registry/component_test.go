package registry

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/conneroisu/tessera/internal/component"
	"github.com/conneroisu/tessera/internal/errors"
)

func def(name, markup string) *component.Definition {
	return &component.Definition{Name: name, Markup: markup}
}

func TestNewComponentRegistry(t *testing.T) {
	registry := NewComponentRegistry()

	assert.NotNil(t, registry)
	assert.Equal(t, 0, registry.Count())
	assert.Empty(t, registry.GetAll())
}

func TestComponentRegistry_DefineIfAbsent(t *testing.T) {
	registry := NewComponentRegistry()

	first := def("user-card", "<p>first</p>")
	added, err := registry.Define(first)
	require.NoError(t, err)
	assert.True(t, added)

	added, err = registry.Define(def("user-card", "<p>second</p>"))
	require.NoError(t, err)
	assert.False(t, added)

	got, exists := registry.Get("user-card")
	assert.True(t, exists)
	assert.Same(t, first, got)
	assert.Equal(t, 1, registry.Count())
}

func TestComponentRegistry_DefineRejectsInvalidNames(t *testing.T) {
	registry := NewComponentRegistry()

	_, err := registry.Define(def("usercard", ""))
	require.Error(t, err)
	assert.True(t, errors.IsType(err, errors.ErrorTypeValidation))

	_, err = registry.Define(nil)
	assert.Error(t, err)
	assert.Equal(t, 0, registry.Count())
}

func TestComponentRegistry_Replace(t *testing.T) {
	registry := NewComponentRegistry()
	ch := registry.Watch()

	require.NoError(t, registry.Replace(def("user-card", "<p>a</p>")))
	require.NoError(t, registry.Replace(def("user-card", "<p>b</p>")))

	got, _ := registry.Get("user-card")
	assert.Equal(t, "<p>b</p>", got.Markup)

	assert.Equal(t, EventTypeAdded, (<-ch).Type)
	assert.Equal(t, EventTypeUpdated, (<-ch).Type)
}

func TestComponentRegistry_Lookup(t *testing.T) {
	registry := NewComponentRegistry()

	_, err := registry.Lookup("missing-card")
	require.Error(t, err)
	var te *errors.TesseraError
	require.ErrorAs(t, err, &te)
	assert.Equal(t, errors.ErrCodeComponentNotFound, te.Code)
}

func TestComponentRegistry_GetAllSorted(t *testing.T) {
	registry := NewComponentRegistry()
	for _, name := range []string{"zeta-box", "alpha-box", "mid-box"} {
		_, err := registry.Define(def(name, ""))
		require.NoError(t, err)
	}

	all := registry.GetAll()
	require.Len(t, all, 3)
	assert.Equal(t, "alpha-box", all[0].Name)
	assert.Equal(t, []string{"alpha-box", "mid-box", "zeta-box"}, registry.Names())
}

func TestComponentRegistry_Remove(t *testing.T) {
	registry := NewComponentRegistry()
	_, err := registry.Define(def("user-card", ""))
	require.NoError(t, err)
	ch := registry.Watch()

	registry.Remove("user-card")
	registry.Remove("user-card")

	_, exists := registry.Get("user-card")
	assert.False(t, exists)

	select {
	case event := <-ch:
		assert.Equal(t, EventTypeRemoved, event.Type)
		assert.Equal(t, "user-card", event.Name)
	case <-time.After(time.Second):
		t.Fatal("expected removal event")
	}
	select {
	case event := <-ch:
		t.Fatalf("unexpected event %v", event.Type)
	default:
	}
}

func TestComponentRegistry_UnWatchClosesChannel(t *testing.T) {
	registry := NewComponentRegistry()
	ch := registry.Watch()
	registry.UnWatch(ch)

	_, open := <-ch
	assert.False(t, open)

	_, err := registry.Define(def("user-card", ""))
	require.NoError(t, err)
}

func TestComponentRegistry_ConcurrentDefine(t *testing.T) {
	registry := NewComponentRegistry()

	var (
		wg    sync.WaitGroup
		mu    sync.Mutex
		added int
	)
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			ok, err := registry.Define(def("race-card", ""))
			assert.NoError(t, err)
			if ok {
				mu.Lock()
				added++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, 1, added)
	assert.Equal(t, 1, registry.Count())
}
