package chibi

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const gameCodeAddr = 0x140001000

// isTargetable prologue preceded by some padding
var gameCode = []byte{
	0xCC, 0xCC, 0xCC, 0xCC,
	0x40, 0x53, 0x48, 0x83, 0xEC, 0x20, 0xF3, 0x0F, 0x10, 0x89, 0x34, 0x01, 0x00, 0x00,
	0x0F, 0x57, 0xC0, 0x0F, 0x2E, 0xC8, 0x48, 0x8B, 0xD9, 0x7A, 0x0A,
	0xC3,
}

// fakeBinder installs detour and exposes the callback, so tests can play the game
type fakeBinder struct {
	after func(obj uintptr)
	err   error
}

func (b *fakeBinder) Bind(e *Detours, target uintptr, after func(obj uintptr)) (*Detour, error) {
	if b.err != nil {
		return nil, b.err
	}
	d, err := e.Install(target, 0x7FF000)
	if err != nil {
		return nil, err
	}
	b.after = after
	return d, nil
}

type moduleFixture struct {
	module  *Module
	rules   *RuleStore
	objects *fakeObjects
	zones   *ZoneFeed
	binder  *fakeBinder
	patcher *fakePatcher
	detours *Detours
	clock   *fakeClock
}

func newModuleFixture(t *testing.T, code []byte) *moduleFixture {
	t.Helper()
	f := &moduleFixture{
		rules:   NewRuleStore(&memPersister{}, quiet),
		objects: newFakeObjects(),
		zones:   NewZoneFeed(),
		binder:  &fakeBinder{},
		patcher: newFakePatcher(),
		clock:   &fakeClock{t: time.Unix(1000, 0)},
	}
	for i, b := range code {
		f.patcher.mem[gameCodeAddr+uintptr(i)] = b
	}
	f.detours = NewDetours(f.patcher, quiet)

	var err error
	f.module, err = NewModule(Services{
		Locator: NewLocator(MemoryImage{{Name: ".text", Addr: gameCodeAddr, Data: code}}),
		Detours: f.detours,
		Binder:  f.binder,
		Rules:   f.rules,
		Objects: f.objects,
		Zones:   f.zones,
		Logger:  quiet,
		Clock:   f.clock.now,
	})
	require.NoError(t, err)
	return f
}

func TestNewModuleMissingServices(t *testing.T) {
	_, err := NewModule(Services{})
	assert.Error(t, err)
	_, err = NewModule(Services{Locator: NewLocator(MemoryImage{}), Detours: NewDetours(newFakePatcher(), quiet), Binder: &fakeBinder{}})
	assert.Error(t, err)
}

func TestModuleLifecycle(t *testing.T) {
	f := newModuleFixture(t, gameCode)
	m := f.module
	assert.Equal(t, StateUninitialized, m.State())

	require.NoError(t, m.Start())
	assert.Equal(t, StateActive, m.State())
	assert.True(t, m.Hooked())
	assert.Equal(t, 1, f.detours.Len())
	assert.Equal(t, 1, f.zones.Len())
	assert.Equal(t, byte(0xE9), f.patcher.mem[gameCodeAddr+4])

	assert.ErrorIs(t, m.Start(), ErrState)

	_, _ = f.rules.Add(goblin(2))
	g := f.objects.spawn(0x1000, "Goblin", 1)
	f.binder.after(0x1000)
	assert.Equal(t, float32(2), g.Scale)

	require.NoError(t, m.Stop())
	assert.Equal(t, StateTornDown, m.State())
	assert.Equal(t, float32(1), g.Scale)
	assert.Zero(t, m.Scaler().History().Len())
	assert.False(t, m.Hooked())
	assert.Zero(t, f.detours.Len())
	assert.Zero(t, f.zones.Len())
	assert.Equal(t, gameCode[4:7], f.patcher.code(gameCodeAddr+4))

	require.NoError(t, m.Stop())
	assert.ErrorIs(t, m.Start(), ErrState)
}

func TestModuleZoneChange(t *testing.T) {
	f := newModuleFixture(t, gameCode)
	require.NoError(t, f.module.Start())
	_, _ = f.rules.Add(goblin(2))
	g := f.objects.spawn(0x1000, "Goblin", 1)
	f.binder.after(0x1000)
	require.Equal(t, 1, f.module.Scaler().History().Len())

	f.zones.Publish(129)
	assert.Zero(t, f.module.Scaler().History().Len())
	assert.Equal(t, float32(2), g.Scale, "objects are gone, nothing to restore")

	// new object at the same address is evaluated immediately
	g2 := f.objects.spawn(0x1000, "Goblin", 1)
	f.binder.after(0x1000)
	assert.Equal(t, float32(2), g2.Scale)
}

func TestModuleDisableRule(t *testing.T) {
	f := newModuleFixture(t, gameCode)
	require.NoError(t, f.module.Start())
	_, _ = f.rules.Add(goblin(2))
	_, _ = f.rules.Add(&Rule{Field: FieldName, Value: "Bat", Scale: 0.5, Enabled: true})
	g := f.objects.spawn(0x1000, "Goblin", 1)
	bat := f.objects.spawn(0x2000, "Bat", 1)
	f.binder.after(0x1000)
	f.binder.after(0x2000)

	changed, err := f.rules.Update(0, func(r *Rule) { r.Enabled = false })
	require.NoError(t, err)
	require.True(t, changed)

	assert.Equal(t, float32(1), g.Scale)
	assert.Equal(t, float32(0.5), bat.Scale)
	assert.Equal(t, 1, f.module.Scaler().History().Len())

	// disabled rule is not applied again
	f.clock.advance(time.Second)
	f.binder.after(0x1000)
	assert.Equal(t, float32(1), g.Scale)

	require.NoError(t, f.rules.Remove(1))
	assert.Equal(t, float32(1), bat.Scale)
	assert.Zero(t, f.module.Scaler().History().Len())
}

func TestModuleStopOutOfWorld(t *testing.T) {
	f := newModuleFixture(t, gameCode)
	require.NoError(t, f.module.Start())
	_, _ = f.rules.Add(goblin(2))
	g := f.objects.spawn(0x1000, "Goblin", 1)
	f.binder.after(0x1000)

	f.objects.player = false
	require.NoError(t, f.module.Stop())
	assert.Equal(t, float32(2), g.Scale)
	assert.Zero(t, f.module.Scaler().History().Len())
	assert.Zero(t, f.detours.Len())
}

func TestModuleStopWithInvalidObjects(t *testing.T) {
	f := newModuleFixture(t, gameCode)
	require.NoError(t, f.module.Start())
	_, _ = f.rules.Add(goblin(2))
	f.objects.spawn(0x1000, "Goblin", 1)
	g := f.objects.spawn(0x2000, "Goblin", 1)
	f.binder.after(0x1000)
	f.binder.after(0x2000)

	f.objects.invalid[0x1000] = true
	require.NoError(t, f.module.Stop())
	assert.Equal(t, float32(1), g.Scale)
	assert.Zero(t, f.module.Scaler().History().Len())
	assert.Zero(t, f.detours.Len())
}

func TestModuleStopPanickingObjects(t *testing.T) {
	f := newModuleFixture(t, gameCode)
	require.NoError(t, f.module.Start())
	_, _ = f.rules.Add(goblin(2))
	f.objects.spawn(0x1000, "Goblin", 1)
	f.binder.after(0x1000)

	f.objects.panics = true
	assert.NotPanics(t, func() { require.NoError(t, f.module.Stop()) })
	assert.Zero(t, f.module.Scaler().History().Len())
	assert.Zero(t, f.detours.Len())
}

func TestModuleStopUninstallFailure(t *testing.T) {
	f := newModuleFixture(t, gameCode)
	require.NoError(t, f.module.Start())
	f.patcher.failOn[gameCodeAddr+4] = true

	assert.ErrorIs(t, f.module.Stop(), errWrite)
	assert.Equal(t, StateTornDown, f.module.State())
	assert.Equal(t, 1, f.detours.Len(), "detour stays registered for retry")

	delete(f.patcher.failOn, gameCodeAddr+4)
	assert.NoError(t, f.detours.Close())
}

func TestModuleDegraded(t *testing.T) {
	f := newModuleFixture(t, gameCode[:10])
	require.NoError(t, f.module.Start())
	assert.Equal(t, StateActive, f.module.State())
	assert.False(t, f.module.Hooked())
	assert.Nil(t, f.binder.after)

	// rules still work, only nothing calls the module
	_, _ = f.rules.Add(goblin(2))
	require.NoError(t, f.rules.Remove(0))
	require.NoError(t, f.module.Stop())
	assert.Equal(t, StateTornDown, f.module.State())
}

func TestModuleBindFailure(t *testing.T) {
	f := newModuleFixture(t, gameCode)
	f.binder.err = ErrUnsupported

	err := f.module.Start()
	assert.ErrorIs(t, err, ErrUnsupported)
	assert.Equal(t, StateUninitialized, f.module.State())
	assert.Zero(t, f.zones.Len())

	f.binder.err = nil
	require.NoError(t, f.module.Start())
	assert.True(t, f.module.Hooked())
}

func TestModuleRetireAfterStop(t *testing.T) {
	f := newModuleFixture(t, gameCode)
	require.NoError(t, f.module.Start())
	require.NoError(t, f.module.Stop())

	_, _ = f.rules.Add(goblin(2))
	assert.NoError(t, f.rules.Remove(0))
}

func TestModuleInspect(t *testing.T) {
	f := newModuleFixture(t, gameCode)
	f.objects.spawn(0x1000, "Goblin", 1.25).ModelCharaID = 7

	snap, ok := f.module.Inspect(0x1000)
	require.True(t, ok)
	assert.Equal(t, "Goblin", snap.Name)
	assert.Equal(t, uint32(7), snap.ModelCharaID)

	_, ok = f.module.Inspect(0)
	assert.False(t, ok)
}

func TestZoneFeed(t *testing.T) {
	feed := NewZoneFeed()
	var got []string
	cancelA := feed.OnZoneChanged(func(zone uint16) { got = append(got, "a") })
	feed.OnZoneChanged(func(zone uint16) {
		got = append(got, "b")
		cancelA()
	})
	assert.Equal(t, 2, feed.Len())

	feed.Publish(1)
	assert.Equal(t, []string{"a", "b"}, got)
	assert.Equal(t, 1, feed.Len())

	feed.Publish(2)
	assert.Equal(t, []string{"a", "b", "b"}, got)
	cancelA()
	assert.Equal(t, 1, feed.Len())
}

func TestStateString(t *testing.T) {
	assert.Equal(t, "active", StateActive.String())
	assert.Equal(t, "State(7)", State(7).String())
}
