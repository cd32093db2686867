package cron

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/require"
)

func noop(name string) Job {
	return JobFunc{JobName: name, Fn: func(context.Context) error { return nil }}
}

func TestRegistryKeepsOrderAndCopies(t *testing.T) {
	registry := NewRegistry(noop("a"), nil)
	require.NoError(t, registry.Register(noop("b")))

	jobs := registry.Jobs()
	require.Equal(t, []string{"a", "b"}, []string{jobs[0].Name(), jobs[1].Name()})
	jobs[0] = nil
	require.NotNil(t, registry.Jobs()[0])
}

func TestRegistryRejectsBadNames(t *testing.T) {
	registry := NewRegistry(noop("a"))
	require.Error(t, registry.Register(noop("a")))
	require.Error(t, registry.Register(noop(" ")))
	require.Panics(t, func() { NewRegistry(noop("x"), noop("x")) })
}

func TestRegistryDisable(t *testing.T) {
	registry := NewRegistry(noop("refunds"), noop("retention"), noop("expiry"))

	require.NoError(t, registry.Disable("retention", ""))
	var names []string
	for _, job := range registry.Jobs() {
		names = append(names, job.Name())
	}
	require.Equal(t, []string{"refunds", "expiry"}, names)
	require.Equal(t, []string{"refunds", "retention", "expiry"}, registry.Names())

	require.Error(t, registry.Disable("retension"))
}

func TestJobFuncRuns(t *testing.T) {
	boom := errors.New("boom")
	job := JobFunc{JobName: "f", Fn: func(context.Context) error { return boom }}
	require.ErrorIs(t, job.Run(context.Background()), boom)
}
