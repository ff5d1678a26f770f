package util

import (
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestRender(t *testing.T) {
	vars := map[string]any{
		"name":    "Carla",
		"age":     float64(17),
		"ratio":   1.5,
		"address": map[string]any{"city": "Pune"},
	}
	for scenario, tc := range map[string]struct {
		template string
		want     string
	}{
		"plain text":            {"hello", "hello"},
		"simple variable":       {"Hi {{name}}!", "Hi Carla!"},
		"spaces in braces":      {"Hi {{ name }}", "Hi Carla"},
		"integral number":       {"age {{age}}", "age 17"},
		"fractional number":     {"{{ratio}}", "1.5"},
		"nested path":           {"from {{address.city}}", "from Pune"},
		"missing renders empty": {"[{{nope}}]", "[]"},
		"repeated":              {"{{name}}/{{name}}", "Carla/Carla"},
	} {
		t.Run(scenario, func(t *testing.T) {
			require.Equal(t, tc.want, Render(tc.template, vars))
		})
	}
}

func TestLookup(t *testing.T) {
	vars := map[string]any{"a": map[string]any{"b": "c"}, "x.y": 1}
	v, ok := Lookup(vars, "a.b")
	require.True(t, ok)
	require.Equal(t, "c", v)
	v, ok = Lookup(vars, "x.y")
	require.True(t, ok)
	require.Equal(t, 1, v)
	_, ok = Lookup(vars, "a.z")
	require.False(t, ok)
	_, ok = Lookup(nil, "a")
	require.False(t, ok)
}

func TestJsonEncDec(t *testing.T) {
	type rec struct {
		Name string `json:"name"`
	}
	ed := NewJsonEncoderDecoder[rec]()
	b, err := ed.Encode(rec{Name: "n"})
	require.NoError(t, err)
	out, err := ed.Decode(b)
	require.NoError(t, err)
	require.Equal(t, "n", out.Name)
	_, err = ed.Decode([]byte("{"))
	require.Error(t, err)
}

func TestWorkerPool(t *testing.T) {
	wg := &sync.WaitGroup{}
	pool := NewWorkerPool("test", 3, 10, wg)
	pool.Start()
	var count atomic.Int32
	done := make(chan struct{}, 20)
	for i := 0; i < 20; i++ {
		require.True(t, pool.Dispatch(func() {
			count.Add(1)
			done <- struct{}{}
		}))
	}
	require.True(t, pool.Dispatch(func() { panic("boom") }))
	for i := 0; i < 20; i++ {
		<-done
	}
	require.Equal(t, int32(20), count.Load())
	pool.Stop()
	wg.Wait()
	require.False(t, pool.Dispatch(func() {}))
}

func TestTickWorker(t *testing.T) {
	wg := &sync.WaitGroup{}
	ticks := make(chan struct{}, 10)
	tw := NewTickWorker("tick", 5*time.Millisecond, func() {
		select {
		case ticks <- struct{}{}:
		default:
		}
	}, wg)
	tw.Start()
	require.True(t, tw.IsRunning())
	<-ticks
	tw.Stop()
	wg.Wait()
	require.False(t, tw.IsRunning())
}
