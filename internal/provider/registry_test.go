package provider

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRegistry_CreateAndList(t *testing.T) {
	r := NewRegistry()
	r.RegisterFactory("mock-a", NewMockFactory("mock-a", MockTurn{Text: "hi"}))
	r.RegisterFactory("mock-b", NewMockFactory("mock-b", MockTurn{Text: "there"}))

	assert.ElementsMatch(t, []string{"mock-a", "mock-b"}, r.List())

	p, err := r.Create("mock-a", "model-x", Options{})
	require.NoError(t, err)
	assert.Equal(t, "mock-a", p.Name())
}

func TestRegistry_CreateUnknownProvider(t *testing.T) {
	r := NewRegistry()
	_, err := r.Create("nope", "model-x", Options{})
	assert.ErrorIs(t, err, ErrProviderNotFound)
}

func TestRegistry_ListAllModels(t *testing.T) {
	r := NewRegistry()
	r.RegisterFactory("mock-a", NewMockFactory("mock-a"))
	r.RegisterFactory("mock-b", NewMockFactory("mock-b"))

	all := r.ListAllModels(context.Background(), Options{})
	require.Len(t, all, 2)

	names := map[string]bool{}
	for _, tm := range all {
		names[tm.ProviderName] = true
		assert.Equal(t, "mock-model", tm.Model.Name)
	}
	assert.True(t, names["mock-a"])
	assert.True(t, names["mock-b"])
}
