package entity_test

import (
	"testing"

	"github.com/jlefever/cochange-tool/internal/entity"
	"github.com/stretchr/testify/require"
)

func TestFileHasNoParent(t *testing.T) {
	file := &entity.Entity{Name: "A.java", Kind: entity.FileKind}
	require.True(t, file.IsFile())
	require.Nil(t, file.Parent)
}

func TestPathFlattensRootToLeaf(t *testing.T) {
	file := &entity.Entity{Name: "A.java", Kind: entity.FileKind}
	class := &entity.Entity{Name: "A", Kind: "class", Parent: file}
	method := &entity.Entity{Name: "foo", Kind: "method", Parent: class}

	require.Equal(t, []entity.Segment{
		{Name: "A.java", Kind: entity.FileKind},
		{Name: "A", Kind: "class"},
		{Name: "foo", Kind: "method"},
	}, method.Path())
}

func TestKeyDistinguishesDistinctPathsAndMatchesEqualOnes(t *testing.T) {
	fileA := &entity.Entity{Name: "A.java", Kind: entity.FileKind}
	classA1 := &entity.Entity{Name: "A", Kind: "class", Parent: fileA}
	classA2 := &entity.Entity{Name: "A", Kind: "class", Parent: &entity.Entity{Name: "A.java", Kind: entity.FileKind}}
	classB := &entity.Entity{Name: "B", Kind: "class", Parent: fileA}

	require.Equal(t, classA1.Key(), classA2.Key())
	require.NotEqual(t, classA1.Key(), classB.Key())
}
