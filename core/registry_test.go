package core

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRegister_Validation(t *testing.T) {
	t.Parallel()

	testCases := []struct {
		name   string
		mutate func(d *Descriptor)
	}{
		{"empty id", func(d *Descriptor) { d.ID = "" }},
		{"empty name", func(d *Descriptor) { d.Name = "" }},
		{"empty version", func(d *Descriptor) { d.Version = "" }},
		{"empty namespace", func(d *Descriptor) { d.Namespace = "" }},
		{"namespace without slash", func(d *Descriptor) { d.Namespace = "nope" }},
		{"empty base path", func(d *Descriptor) { d.BasePath = "" }},
		{"base path without slash", func(d *Descriptor) { d.BasePath = "nope" }},
		{"no phases", func(d *Descriptor) { d.Phases = nil }},
		{"min players zero", func(d *Descriptor) { d.DefaultSettings.MinPlayers = 0 }},
		{"max below min", func(d *Descriptor) { d.DefaultSettings.MaxPlayers = 1 }},
		{"nil handler", func(d *Descriptor) { d.Handlers = map[string]Handler{"x": {}} }},
	}

	for _, tc := range testCases {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			reg := NewRegistry(testLog)
			d := testDescriptor("broken")
			tc.mutate(d)

			err := reg.Register(context.Background(), d)

			assert.ErrorIs(t, err, ErrInvalidPlugin)
			assert.Equal(t, 0, reg.Count())
		})
	}
}

func TestRegister_Collisions(t *testing.T) {
	t.Parallel()

	testCases := []struct {
		name    string
		second  func() *Descriptor
		wantErr error
	}{
		{
			name:    "duplicate id",
			second:  func() *Descriptor { return testDescriptor("alpha") },
			wantErr: ErrDuplicateID,
		},
		{
			name: "duplicate namespace",
			second: func() *Descriptor {
				d := testDescriptor("beta")
				d.Namespace = "/alpha"
				return d
			},
			wantErr: ErrDuplicateNamespace,
		},
		{
			name: "duplicate base path",
			second: func() *Descriptor {
				d := testDescriptor("beta")
				d.BasePath = "/games/alpha"
				return d
			},
			wantErr: ErrDuplicateBasePath,
		},
	}

	for _, tc := range testCases {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			reg := NewRegistry(testLog)
			require.NoError(t, reg.Register(context.Background(), testDescriptor("alpha")))

			err := reg.Register(context.Background(), tc.second())

			assert.ErrorIs(t, err, tc.wantErr)
			assert.Equal(t, 1, reg.Count())
		})
	}
}

func TestRegister_InitializeFailureRollsBack(t *testing.T) {
	t.Parallel()
	reg := NewRegistry(testLog)
	d := testDescriptor("flaky")
	d.OnInitialize = func(context.Context) error { return errors.New("nope") }

	err := reg.Register(context.Background(), d)

	assert.ErrorIs(t, err, ErrInitializationFailed)
	assert.Equal(t, 0, reg.Count())
	_, ok := reg.ByID("flaky")
	assert.False(t, ok)
	_, ok = reg.ByNamespace("/flaky")
	assert.False(t, ok)
}

func TestRegistry_Lookups(t *testing.T) {
	t.Parallel()
	reg := NewRegistry(testLog)
	require.NoError(t, reg.Register(context.Background(), testDescriptor("alpha")))
	require.NoError(t, reg.Register(context.Background(), testDescriptor("beta")))

	d, ok := reg.ByID("alpha")
	require.True(t, ok)
	assert.Equal(t, "alpha", d.ID)

	d, ok = reg.ByNamespace("/beta")
	require.True(t, ok)
	assert.Equal(t, "beta", d.ID)

	d, ok = reg.ByBasePath("/games/alpha")
	require.True(t, ok)
	assert.Equal(t, "alpha", d.ID)

	_, ok = reg.ByID("gamma")
	assert.False(t, ok)

	assert.Len(t, reg.All(), 2)
}

func TestUnregister(t *testing.T) {
	t.Parallel()
	reg := NewRegistry(testLog)
	cleanedUp := false
	d := testDescriptor("alpha")
	d.OnCleanup = func(context.Context) error {
		cleanedUp = true
		return nil
	}
	require.NoError(t, reg.Register(context.Background(), d))

	require.NoError(t, reg.Unregister(context.Background(), "alpha"))

	assert.True(t, cleanedUp)
	assert.Equal(t, 0, reg.Count())
	_, ok := reg.ByNamespace("/alpha")
	assert.False(t, ok)

	assert.ErrorIs(t, reg.Unregister(context.Background(), "alpha"), ErrPluginNotFound)
}

func TestDestroyAll(t *testing.T) {
	t.Parallel()
	reg := NewRegistry(testLog)

	good := testDescriptor("good")
	bad := testDescriptor("bad")
	bad.OnCleanup = func(context.Context) error { return errors.New("cleanup failed") }
	require.NoError(t, reg.Register(context.Background(), good))
	require.NoError(t, reg.Register(context.Background(), bad))

	errs := reg.DestroyAll(context.Background())

	// cleanup failures are logged, never fatal
	assert.Empty(t, errs)
	assert.Equal(t, 0, reg.Count())
}
