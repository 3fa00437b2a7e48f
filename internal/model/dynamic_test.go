package model_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/tessera/internal/model"
	"github.com/roach88/tessera/internal/testutil"
	"github.com/roach88/tessera/internal/value"
)

func TestDynamicShard_EditAndCodec(t *testing.T) {
	reg, err := model.NewRegistry(model.NewDynamicShard(inventoryInfo))
	require.NoError(t, err)
	v := model.NewView(reg.NewModel())

	snap := v.CreateSnapshot(model.CopyOnWrite, model.Tracking)
	inv, err := model.Edit[*model.MutableDynamicShard](snap, inventoryInfo)
	require.NoError(t, err)
	items, ok := inv.Collection("items")
	require.True(t, ok)

	item := testutil.Entity("item", 1)
	require.NoError(t, items.Add(item, model.NewRecord(value.Object{"sku": value.String("A-1"), "count": value.Int(3)})))
	require.NoError(t, items.Modify(item, func(r model.Record) model.Record {
		return r.With("count", value.Int(4))
	}))

	c, err := v.ApplySnapshot(snap)
	require.NoError(t, err)

	shard, err := model.Read[*model.DynamicShard](c.New, inventoryInfo)
	require.NoError(t, err)
	frozen, _ := shard.Collection("items")
	rec, err := frozen.Get(item)
	require.NoError(t, err)
	count, _ := rec.Get("count")
	assert.Equal(t, value.Int(4), count)

	data, err := model.MarshalChanges(c.Changes)
	require.NoError(t, err)
	assert.JSONEq(t, `{"frames":[{"shard":"inventory","members":[{"member":"items","changes":[
		{"action":"added","entity":"item/00000000-0000-0000-0000-000000000001","new":{"count":4,"sku":"A-1"}}
	]}]}]}`, string(data))

	decoded, err := model.UnmarshalChanges(reg, data)
	require.NoError(t, err)
	assert.Equal(t, 1, decoded.Len())
}

func TestRecord_EqualAndString(t *testing.T) {
	a := model.NewRecord(value.Object{"sku": value.String("A-1")})
	b := model.NewRecord(value.Object{"sku": value.String("A-1"), "note": value.Null{}})
	assert.True(t, a.Equal(b))
	assert.False(t, a.Equal(a.With("sku", value.String("B-2"))))
	assert.Equal(t, `{"sku":"A-1"}`, a.String())
}

func TestCollectionInfo_Validate(t *testing.T) {
	ok := value.Object{"sku": value.String("A"), "count": value.Int(1)}
	require.NoError(t, inventoryItems.Validate(ok))

	tests := map[string]value.Object{
		"missing required": {"sku": value.String("A")},
		"wrong kind":       {"sku": value.String("A"), "count": value.String("1")},
		"unknown field":    {"sku": value.String("A"), "count": value.Int(1), "extra": value.Bool(true)},
	}
	for name, bag := range tests {
		t.Run(name, func(t *testing.T) {
			err := inventoryItems.Validate(bag)
			assert.True(t, model.HasCode(err, model.ErrCodeInvalidProperties), "got %v", err)
		})
	}
}

func TestCollectionInfo_FloatAcceptsInt(t *testing.T) {
	info := model.NewCollectionInfo("s", "c", "x", []model.FieldInfo{{Name: "f", Kind: value.KindFloat}}, model.DecodeRecord)
	assert.NoError(t, info.Validate(value.Object{"f": value.Int(2)}))

	bag := value.Object{"f": value.Int(2)}
	p, err := info.Decode(bag)
	require.NoError(t, err)
	assert.Equal(t, value.Object{"f": value.Float(2)}, p.Bag())
	assert.True(t, p.Equal(model.NewRecord(value.Object{"f": value.Float(2)})))
	assert.Equal(t, value.Int(2), bag["f"], "input bag is left alone")
}

func TestNewShardInfo_PanicsOnForeignMember(t *testing.T) {
	assert.Panics(t, func() { model.NewShardInfo("other", inventoryItems) })
	assert.Panics(t, func() { model.NewShardInfo("inventory", inventoryItems, inventoryItems) })
}

func TestRegistry(t *testing.T) {
	_, err := model.NewRegistry(model.NewDynamicShard(inventoryInfo), model.NewDynamicShard(inventoryInfo))
	assert.True(t, model.HasCode(err, model.ErrCodeDuplicateShard))

	reg, err := model.NewRegistry(model.NewDynamicShard(inventoryInfo))
	require.NoError(t, err)

	m, err := reg.Member("inventory", "items")
	require.NoError(t, err)
	assert.Same(t, inventoryItems, m)

	_, err = reg.Member("inventory", "nope")
	assert.True(t, model.HasCode(err, model.ErrCodeUnknownMember))

	assert.Equal(t, []*model.ShardInfo{inventoryInfo}, reg.Shards())
}

func TestCardinality_Parse(t *testing.T) {
	for _, c := range []model.Cardinality{model.OneToOne, model.OneToMany, model.ManyToMany} {
		parsed, err := model.ParseCardinality(c.String())
		require.NoError(t, err)
		assert.Equal(t, c, parsed)
	}
	_, err := model.ParseCardinality("few-to-few")
	assert.Error(t, err)
}
