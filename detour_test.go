package chibi

import (
	"errors"
	"testing"

	"github.com/apex/log"
	"github.com/apex/log/handlers/discard"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var quiet = &log.Logger{Handler: discard.Default, Level: log.DebugLevel}

// fakePatcher patches a simulated address space
type fakePatcher struct {
	mem    map[uintptr]byte
	failOn map[uintptr]bool
	writes int
}

func newFakePatcher() *fakePatcher {
	return &fakePatcher{mem: make(map[uintptr]byte), failOn: make(map[uintptr]bool)}
}

var errWrite = errors.New("write failed")

func (p *fakePatcher) Jump(target, dest uintptr) ([]byte, error) {
	return []byte{0xE9, byte(dest), byte(dest >> 8)}, nil
}

func (p *fakePatcher) Write(target uintptr, code, prev []byte) error {
	if p.failOn[target] {
		return errWrite
	}
	p.writes++
	for i, b := range code {
		if prev != nil {
			prev[i] = p.mem[target+uintptr(i)]
		}
		p.mem[target+uintptr(i)] = b
	}
	return nil
}

func (p *fakePatcher) code(addr uintptr) []byte {
	return []byte{p.mem[addr], p.mem[addr+1], p.mem[addr+2]}
}

func TestInstallUninstall(t *testing.T) {
	p := newFakePatcher()
	p.mem[0x100], p.mem[0x101], p.mem[0x102] = 0x40, 0x53, 0x48
	e := NewDetours(p, quiet)

	d, err := e.Install(0x100, 0x2040)
	require.NoError(t, err)
	assert.True(t, d.Active())
	assert.Equal(t, []byte{0xE9, 0x40, 0x20}, p.code(0x100))
	assert.Equal(t, 1, e.Len())

	require.NoError(t, e.Uninstall(d))
	assert.False(t, d.Active())
	assert.Equal(t, []byte{0x40, 0x53, 0x48}, p.code(0x100))
	assert.Equal(t, 0, e.Len())

	writes := p.writes
	require.NoError(t, e.Uninstall(d))
	require.NoError(t, e.Uninstall(nil))
	assert.Equal(t, writes, p.writes, "repeated uninstall must not touch the code")
}

func TestDoubleHook(t *testing.T) {
	e := NewDetours(newFakePatcher(), quiet)

	_, err := e.Install(0x100, 0x200)
	require.NoError(t, err)
	_, err = e.Install(0x100, 0x300)
	assert.ErrorIs(t, err, ErrAlreadyHooked)
}

func TestInstallNilAddress(t *testing.T) {
	e := NewDetours(newFakePatcher(), quiet)

	_, err := e.Install(0, 0x200)
	assert.Error(t, err)
	assert.Equal(t, 0, e.Len())
}

func TestCallOriginal(t *testing.T) {
	p := newFakePatcher()
	p.mem[0x100] = 0x40
	e := NewDetours(p, quiet)
	d, err := e.Install(0x100, 0x2040)
	require.NoError(t, err)

	var seen, nested byte
	err = d.CallOriginal(func() {
		seen = p.mem[0x100]
		_ = d.CallOriginal(func() { nested = p.mem[0x100] })
	})
	require.NoError(t, err)
	assert.Equal(t, byte(0x40), seen, "original prologue must be in place while original runs")
	assert.Equal(t, byte(0x40), nested)
	assert.Equal(t, byte(0xE9), p.mem[0x100], "detour must be re-applied")
}

func TestCallOriginalWriteCount(t *testing.T) {
	p := newFakePatcher()
	e := NewDetours(p, quiet)
	d, err := e.Install(0x100, 0x2040)
	require.NoError(t, err)

	before := p.writes
	require.NoError(t, d.CallOriginal(func() {
		_ = d.CallOriginal(func() {})
	}))
	assert.Equal(t, 2, p.writes-before, "one restore and one re-apply per outermost call")
}

func TestCallOriginalAfterUninstall(t *testing.T) {
	e := NewDetours(newFakePatcher(), quiet)
	d, _ := e.Install(0x100, 0x200)
	require.NoError(t, e.Uninstall(d))

	called := false
	require.NoError(t, d.CallOriginal(func() { called = true }))
	assert.True(t, called)
}

func TestCallOriginalWriteFailure(t *testing.T) {
	p := newFakePatcher()
	e := NewDetours(p, quiet)
	d, _ := e.Install(0x100, 0x200)
	p.failOn[0x100] = true

	called := false
	err := d.CallOriginal(func() { called = true })
	assert.ErrorIs(t, err, errWrite)
	assert.False(t, called, "original must not be called while detour is still in place")
}

func TestCloseAttemptsAll(t *testing.T) {
	p := newFakePatcher()
	e := NewDetours(p, quiet)
	_, _ = e.Install(0x100, 0x200)
	_, _ = e.Install(0x300, 0x400)
	_, _ = e.Install(0x500, 0x600)
	p.failOn[0x300] = true

	err := e.Close()
	assert.ErrorIs(t, err, errWrite)
	assert.Equal(t, 1, e.Len(), "failed detour stays registered")

	p.failOn[0x300] = false
	assert.NoError(t, e.Close())
	assert.Equal(t, 0, e.Len())
}

func TestHookNotFunc(t *testing.T) {
	e := NewDetours(newFakePatcher(), quiet)

	var nilFunc func()
	_, err := Hook(e, nilFunc, func() {})
	assert.ErrorIs(t, err, ErrNotFunc)
	_, err = Hook(e, 1, 2)
	assert.ErrorIs(t, err, ErrNotFunc)
}
