package session

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"banner-studio/internal/design"
)

func TestStore_NewSessionDefaults(t *testing.T) {
	s := NewStore(Options{})
	sess := s.Snapshot(1, "alice")

	assert.Equal(t, int64(1), sess.UserID)
	assert.Equal(t, "alice", sess.Username)
	assert.Equal(t, design.AspectSquare, sess.Brief.AspectRatio)
	assert.Equal(t, 1, sess.Brief.Variations)
	assert.NotEmpty(t, sess.Brief.HeadlineStyle)
}

func TestStore_UpdateBrief(t *testing.T) {
	s := NewStore(Options{})
	b := s.UpdateBrief(1, "", func(b *design.Brief) {
		b.Headline = "Sale"
		b.Variations = 3
	})
	assert.Equal(t, "Sale", b.Headline)
	assert.Equal(t, 3, s.Snapshot(1, "").Brief.Variations)
}

func TestStore_AddAssets(t *testing.T) {
	s := NewStore(Options{})
	refs, products := s.AddAssets(1, "", RoleReference, design.Asset{Data: []byte{1}})
	assert.Equal(t, 1, refs)
	assert.Equal(t, 0, products)

	many := make([]design.Asset, MaxAssetsPerRole+2)
	for i := range many {
		many[i] = design.Asset{Name: string(rune('a' + i)), Data: []byte{byte(i)}}
	}
	_, products = s.AddAssets(1, "", RoleProduct, many...)
	assert.Equal(t, MaxAssetsPerRole, products)

	sess := s.Snapshot(1, "")
	assert.Equal(t, "c", sess.Brief.Products[0].Name)
}

func TestStore_SnapshotIsACopy(t *testing.T) {
	s := NewStore(Options{})
	s.AddAssets(1, "", RoleProduct, design.Asset{Data: []byte{1}})

	snap := s.Snapshot(1, "")
	snap.Brief.Products[0].Name = "changed"
	snap.Brief.Products = append(snap.Brief.Products, design.Asset{})

	again := s.Snapshot(1, "")
	require.Len(t, again.Brief.Products, 1)
	assert.Empty(t, again.Brief.Products[0].Name)
}

func TestStore_Images(t *testing.T) {
	s := NewStore(Options{MaxImages: 2})

	assert.Equal(t, 1, s.AddImage(1, "", Image{Result: design.Result{Style: "A"}}))
	assert.Equal(t, 2, s.AddImage(1, "", Image{Result: design.Result{Style: "B"}}))
	assert.Equal(t, 2, s.AddImage(1, "", Image{Result: design.Result{Style: "C"}}))

	img, ok := s.Image(1, 1)
	require.True(t, ok)
	assert.Equal(t, "B", img.Result.Style)

	_, ok = s.Image(1, 3)
	assert.False(t, ok)
	_, ok = s.Image(2, 1)
	assert.False(t, ok)
}

func TestStore_Reset(t *testing.T) {
	s := NewStore(Options{})
	s.UpdateBrief(1, "", func(b *design.Brief) { b.AspectRatio = design.AspectPortrait })
	s.AddImage(1, "", Image{})

	s.Reset(1)

	sess := s.Snapshot(1, "")
	assert.Equal(t, design.AspectSquare, sess.Brief.AspectRatio)
	assert.Empty(t, sess.Images)
}

func TestStore_TryBegin(t *testing.T) {
	s := NewStore(Options{})

	require.True(t, s.TryBegin(1))
	assert.False(t, s.TryBegin(1))
	assert.True(t, s.TryBegin(2), "other users are not blocked")

	s.Reset(1)
	assert.False(t, s.TryBegin(1), "reset does not end a running generation")

	s.End(1)
	assert.True(t, s.TryBegin(1))
}
