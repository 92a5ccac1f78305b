package chibi

import (
	"encoding/json"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// memPersister keeps configuration as JSON in memory
type memPersister struct {
	data  []byte
	saves int
	err   error
}

func (p *memPersister) Load(v any) (bool, error) {
	if p.err != nil {
		return false, p.err
	}
	if p.data == nil {
		return false, nil
	}
	return true, json.Unmarshal(p.data, v)
}

func (p *memPersister) Save(v any) error {
	if p.err != nil {
		return p.err
	}
	data, err := json.Marshal(v)
	if err != nil {
		return err
	}
	p.data = data
	p.saves++
	return nil
}

func goblin(scale float32) *Rule {
	return &Rule{Field: FieldName, Value: "Goblin", Scale: scale, Enabled: true}
}

func TestStoreAdd(t *testing.T) {
	p := &memPersister{}
	s := NewRuleStore(p, quiet)

	added, err := s.Add(goblin(2))
	require.NoError(t, err)
	assert.True(t, added)
	assert.Equal(t, 1, p.saves)

	added, err = s.Add(&Rule{Field: FieldName, Value: "Goblin", Scale: 2, ScaleEffect: true})
	require.NoError(t, err)
	assert.False(t, added, "structural duplicate must not be added")
	assert.Equal(t, 1, s.Len())
	assert.Equal(t, 1, p.saves)

	_, err = s.Add(&Rule{Field: FieldName, Value: "", Scale: 2})
	assert.ErrorIs(t, err, ErrInvalidRule)
	assert.Equal(t, 1, s.Len())

	assert.JSONEq(t, `{"customizePresets":[{"type":"Name","value":"Goblin","scale":2,"scaleVfx":false,"enabled":true}]}`, string(p.data))
}

func TestStoreNilRule(t *testing.T) {
	s := NewRuleStore(&memPersister{}, quiet)
	_, _ = s.Add(goblin(2))

	added, err := s.Add(nil)
	assert.ErrorIs(t, err, ErrInvalidRule)
	assert.False(t, added)
	assert.False(t, s.Contains(nil))

	removed, err := s.RemoveRule(nil)
	require.NoError(t, err)
	assert.False(t, removed)
	assert.Equal(t, 1, s.Len())
}

func TestStoreLoad(t *testing.T) {
	p := &memPersister{data: []byte(`{"customizePresets":[
		{"type":"Name","value":"Goblin","scale":2,"enabled":true},
		{"type":"Name","value":"Goblin","scale":2,"enabled":false},
		{"type":"DataID","value":"","scale":2},
		null,
		{"type":"DataID","value":"42","scale":0.5,"scaleVfx":true}
	]}`)}
	s := NewRuleStore(p, quiet)
	require.NoError(t, s.Load())
	require.Equal(t, 2, s.Len())

	r, err := s.At(1)
	require.NoError(t, err)
	assert.Equal(t, Rule{Field: FieldDataID, Value: "42", Scale: 0.5, ScaleEffect: true}, *r)

	var retired []*Rule
	s.OnRetire(func(r *Rule) { retired = append(retired, r) })
	p.data = nil
	require.NoError(t, s.Load())
	assert.Zero(t, s.Len())
	assert.Len(t, retired, 2)

	p.err = errors.New("disk on fire")
	assert.ErrorIs(t, s.Load(), p.err)
}

func TestStoreWithoutPersister(t *testing.T) {
	s := NewRuleStore(nil, nil)
	require.NoError(t, s.Load())
	added, err := s.Add(goblin(2))
	require.NoError(t, err)
	assert.True(t, added)
	assert.NoError(t, s.Save())
}

func TestStoreSaveFailure(t *testing.T) {
	p := &memPersister{err: errors.New("read-only")}
	s := NewRuleStore(p, quiet)
	added, err := s.Add(goblin(2))
	assert.True(t, added)
	assert.ErrorIs(t, err, p.err)
}

func TestStoreRemove(t *testing.T) {
	s := NewRuleStore(&memPersister{}, quiet)
	a, b := goblin(2), goblin(3)
	_, _ = s.Add(a)
	_, _ = s.Add(b)

	var retired []*Rule
	s.OnRetire(func(r *Rule) { retired = append(retired, r) })

	require.NoError(t, s.Remove(0))
	assert.Equal(t, []*Rule{a}, retired)
	assert.Equal(t, []*Rule{b}, s.Rules())

	assert.Error(t, s.Remove(1))
	assert.Error(t, s.Remove(-1))

	removed, err := s.RemoveRule(goblin(2))
	require.NoError(t, err)
	assert.False(t, removed)

	removed, err = s.RemoveRule(&Rule{Field: FieldName, Value: "Goblin", Scale: 3})
	require.NoError(t, err)
	assert.True(t, removed)
	assert.Equal(t, []*Rule{a, b}, retired)
	assert.Zero(t, s.Len())
}

func TestStoreUpdate(t *testing.T) {
	p := &memPersister{}
	s := NewRuleStore(p, quiet)
	_, _ = s.Add(goblin(2))
	_, _ = s.Add(goblin(3))

	var retired []*Rule
	s.OnRetire(func(r *Rule) { retired = append(retired, r) })

	t.Run("scale change keeps overrides", func(t *testing.T) {
		changed, err := s.Update(1, func(r *Rule) { r.Scale = 4 })
		require.NoError(t, err)
		assert.True(t, changed)
		assert.Empty(t, retired)
	})

	t.Run("disable retires", func(t *testing.T) {
		changed, err := s.Update(0, func(r *Rule) { r.Enabled = false })
		require.NoError(t, err)
		assert.True(t, changed)
		require.Len(t, retired, 1)
		assert.False(t, retired[0].Enabled)
	})

	t.Run("effect toggle retires", func(t *testing.T) {
		retired = nil
		_, err := s.Update(1, func(r *Rule) { r.ScaleEffect = true })
		require.NoError(t, err)
		assert.Len(t, retired, 1)
	})

	t.Run("no change", func(t *testing.T) {
		saves := p.saves
		changed, err := s.Update(0, func(r *Rule) {})
		require.NoError(t, err)
		assert.False(t, changed)
		assert.Equal(t, saves, p.saves)
	})

	t.Run("duplicate is reverted", func(t *testing.T) {
		changed, err := s.Update(1, func(r *Rule) { r.Scale = 2 })
		require.NoError(t, err)
		assert.False(t, changed)
		r, _ := s.At(1)
		assert.Equal(t, float32(4), r.Scale)
	})

	t.Run("invalid is reverted", func(t *testing.T) {
		_, err := s.Update(1, func(r *Rule) { r.Scale = 0 })
		assert.ErrorIs(t, err, ErrInvalidRule)
		r, _ := s.At(1)
		assert.Equal(t, float32(4), r.Scale)
	})

	_, err := s.Update(5, func(r *Rule) {})
	assert.Error(t, err)
}

func TestStoreOrdered(t *testing.T) {
	s := NewRuleStore(nil, quiet)
	_, _ = s.Add(&Rule{Field: FieldDataID, Value: "42", Scale: 1})
	_, _ = s.Add(goblin(3))
	_, _ = s.Add(&Rule{Field: FieldName, Value: "Bat", Scale: 1})
	_, _ = s.Add(goblin(2))

	var got []string
	for _, r := range s.Ordered() {
		got = append(got, r.String())
	}
	assert.Equal(t, []string{`Name="Bat" x1`, `Name="Goblin" x2`, `Name="Goblin" x3`, `DataID="42" x1`}, got)

	first, _ := s.At(0)
	assert.Equal(t, FieldDataID, first.Field, "store order must be kept")
}
