package errors

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestErrorBuilder(t *testing.T) {
	t.Parallel()

	base := NewStd("index rebuild failed")
	ee := New(base).
		Component("catalog").
		Category(CategoryCatalog).
		Context("snapshot_path", "catalog.json").
		Build()

	assert.Equal(t, "index rebuild failed", ee.Error())
	assert.Equal(t, "catalog", ee.GetComponent())
	assert.Equal(t, string(CategoryCatalog), ee.GetCategory())
	assert.Equal(t, "catalog.json", ee.GetContext()["snapshot_path"])
	assert.False(t, ee.GetTimestamp().IsZero())
}

func TestErrorBuilderDefaultsToGeneric(t *testing.T) {
	t.Parallel()

	ee := Newf("something %s", "odd").Build()
	assert.Equal(t, CategoryGeneric, ee.Category)
}

func TestUnwrapPreservesChain(t *testing.T) {
	t.Parallel()

	sentinel := NewStd("root cause")
	wrapped := fmt.Errorf("outer: %w", sentinel)
	ee := New(wrapped).Category(CategoryDatabase).Build()

	assert.True(t, Is(ee, sentinel))

	var target *EnhancedError
	require.True(t, As(ee, &target))
	assert.Equal(t, CategoryDatabase, target.Category)
}

func TestTaxonomyConstructors(t *testing.T) {
	t.Parallel()

	t.Run("dimension mismatch", func(t *testing.T) {
		t.Parallel()
		err := DimensionMismatchError(128, 512)
		assert.True(t, IsDimensionMismatch(err))
		assert.Equal(t, 128, err.GetContext()["got_dimension"])
		assert.Equal(t, 512, err.GetContext()["want_dimension"])
	})

	t.Run("no candidates", func(t *testing.T) {
		t.Parallel()
		err := NoCandidatesError()
		assert.True(t, IsCategory(err, CategoryNoCandidates))
	})

	t.Run("insufficient data", func(t *testing.T) {
		t.Parallel()
		err := InsufficientDataError(10, 50)
		assert.True(t, IsInsufficientData(err))
		assert.Contains(t, err.Error(), "at least 50")
	})
}

func TestIsCategoryOnPlainError(t *testing.T) {
	t.Parallel()

	assert.False(t, IsCategory(NewStd("plain"), CategoryDatabase))
	assert.False(t, IsNotFound(nil))
}

func TestGetContextReturnsCopy(t *testing.T) {
	t.Parallel()

	ee := New(NewStd("x")).Context("k", "v").Build()
	ctx := ee.GetContext()
	ctx["k"] = "mutated"
	assert.Equal(t, "v", ee.GetContext()["k"])
}
