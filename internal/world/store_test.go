package world

import (
	"testing"

	"github.com/emergentlabs/agentsim/internal/kernelerr"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestStore() *ArtifactStore {
	return NewArtifactStore(NewIDRegistry())
}

func baseArtifact(id string) *Artifact {
	return &Artifact{
		ID:        id,
		Kind:      KindData,
		CreatedBy: "tester",
		Interface: Interface{Description: "test artifact", DataType: DataTypeData},
	}
}

func TestStore_WriteThenReadRoundTrip(t *testing.T) {
	s := newTestStore()
	a := baseArtifact("x")
	a.Content = []byte("hello")
	require.NoError(t, s.Create(a))

	got, err := s.Get("x")
	require.NoError(t, err)
	assert.Equal(t, []byte("hello"), got.Content)
	assert.Equal(t, "test artifact", got.Interface.Description)
}

func TestStore_SoftDeleteObservability(t *testing.T) {
	s := newTestStore()
	require.NoError(t, s.Create(baseArtifact("x")))
	require.NoError(t, s.SoftDelete("x", "tester"))

	got, err := s.Get("x")
	require.NoError(t, err)
	assert.True(t, got.Deleted)
	assert.Equal(t, "tester", got.DeletedBy)
	assert.False(t, got.DeletedAt.IsZero())

	err = s.Write("x", []byte("new"), "", nil, nil, nil)
	require.Error(t, err)
	ke, ok := kernelerr.As(err)
	require.True(t, ok)
	assert.Equal(t, kernelerr.CodeDeleted, ke.Code)
}

func TestStore_ListExcludesTombstonesByDefault(t *testing.T) {
	s := newTestStore()
	require.NoError(t, s.Create(baseArtifact("x")))
	require.NoError(t, s.Create(baseArtifact("y")))
	require.NoError(t, s.SoftDelete("x", "tester"))

	live := s.List(KindData, false)
	assert.Len(t, live, 1)
	assert.Equal(t, "y", live[0].ID)

	all := s.List(KindData, true)
	assert.Len(t, all, 2)
}

func TestStore_IDCollisionAcrossKinds(t *testing.T) {
	s := newTestStore()
	require.NoError(t, s.Create(baseArtifact("foo")))

	dup := baseArtifact("foo")
	dup.Kind = KindAgent
	dup.HasStanding = true
	err := s.Create(dup)
	require.Error(t, err)
	ke, ok := kernelerr.As(err)
	require.True(t, ok)
	assert.Equal(t, kernelerr.CodeIDCollision, ke.Code)
}

func TestArtifact_ExecutableRequiresMethods(t *testing.T) {
	a := baseArtifact("svc")
	a.Kind = KindExecutable
	err := a.Validate()
	require.Error(t, err)
}

func TestArtifact_HasLoopRequiresHasStanding(t *testing.T) {
	a := baseArtifact("agent1")
	a.HasLoop = true
	a.HasStanding = false
	err := a.Validate()
	require.Error(t, err)
}

func TestArtifact_CreatedByImmutableAcrossWrites(t *testing.T) {
	s := newTestStore()
	a := baseArtifact("x")
	require.NoError(t, s.Create(a))

	require.NoError(t, s.Write("x", []byte("v2"), "", nil, nil, map[string]any{"k": "v"}))

	got, err := s.Get("x")
	require.NoError(t, err)
	assert.Equal(t, "tester", got.CreatedBy)
}
