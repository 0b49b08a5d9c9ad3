//go:build linux

package process_linux

import (
	"bytes"
	"errors"
	"os"
	"os/exec"
	"runtime"
	"testing"
	"unsafe"

	"procmem/memory"
	"procmem/process"
	"procmem/process/memory_map"
	"procmem/scan"

	"github.com/spf13/afero"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/sys/unix"
)

var sink []any

// escape keeps v on the heap so its address stays put for the whole test.
func escape[T any](v *T) *T {
	sink = append(sink, v)
	return v
}

func addrOf[T any](v *T) process.ProcessMemoryAddress {
	return process.ProcessMemoryAddress(uintptr(unsafe.Pointer(v)))
}

// guardedPages maps one read-write page followed by an inaccessible one.
func guardedPages(t *testing.T) []byte {
	pageSize := os.Getpagesize()
	b, err := unix.Mmap(-1, 0, 2*pageSize, unix.PROT_READ|unix.PROT_WRITE, unix.MAP_PRIVATE|unix.MAP_ANON)
	require.NoError(t, err)
	require.NoError(t, unix.Mprotect(b[pageSize:], unix.PROT_NONE))
	t.Cleanup(func() { unix.Munmap(b) })
	return b
}

func readOnlyPage(t *testing.T, content []byte) []byte {
	b, err := unix.Mmap(-1, 0, os.Getpagesize(), unix.PROT_READ|unix.PROT_WRITE, unix.MAP_PRIVATE|unix.MAP_ANON)
	require.NoError(t, err)
	copy(b, content)
	require.NoError(t, unix.Mprotect(b, unix.PROT_READ))
	t.Cleanup(func() { unix.Munmap(b) })
	return b
}

func protectionAt(t *testing.T, space process.RegionLister, addr process.ProcessMemoryAddress) memory_map.Protection {
	mm, err := space.GetMemoryMap()
	require.NoError(t, err)
	region := memory_map.Find(uint64(addr), mm)
	require.NotNil(t, region)
	return region.Protection
}

func openSelf(t *testing.T) *RemoteProcess {
	p, err := Open(process.ProcessID(os.Getpid()))
	if errors.Is(err, unix.ENOSYS) || errors.Is(err, unix.EPERM) {
		t.Skip("pidfd_open unavailable:", err)
	}
	require.NoError(t, err)
	t.Cleanup(func() { p.Close() })
	return p
}

type spaceUnderTest interface {
	process.AddressSpace
	process.RegionLister
}

func eachSpace(t *testing.T, fn func(t *testing.T, space spaceUnderTest)) {
	t.Run("local", func(t *testing.T) { fn(t, NewLocal()) })
	t.Run("remote", func(t *testing.T) { fn(t, openSelf(t)) })
}

func TestValidation(t *testing.T) {
	eachSpace(t, func(t *testing.T, space spaceUnderTest) {
		x := escape(new(int64))
		assert.True(t, space.IsValidAddress(addrOf(x)))
		assert.False(t, space.IsValidAddress(0))
		assert.False(t, space.IsValidAddress(^process.ProcessMemoryAddress(0)))

		b := guardedPages(t)
		assert.True(t, space.IsValidAddress(addrOf(&b[0])))
		assert.False(t, space.IsValidAddress(addrOf(&b[os.Getpagesize()])), "guard page")
		runtime.KeepAlive(x)
	})
}

func TestTypedAccess(t *testing.T) {
	eachSpace(t, func(t *testing.T, space spaceUnderTest) {
		x := escape(new(int64))
		*x = 41

		assert.Equal(t, int64(41), memory.Get[int64](space, addrOf(x)))
		assert.True(t, memory.Patch[int64](space, addrOf(x), 41, 42))
		assert.Equal(t, int64(42), *x)
		assert.False(t, memory.Patch[int64](space, addrOf(x), 41, 43))
		assert.Equal(t, int64(42), *x)

		f := escape(new(float64))
		assert.True(t, memory.Set[float64](space, addrOf(f), 2.5))
		assert.Equal(t, 2.5, *f)

		assert.Equal(t, int32(-1), memory.Get[int32](space, 0))
		runtime.KeepAlive(x)
		runtime.KeepAlive(f)
	})
}

func TestWriteToReadOnlyPage(t *testing.T) {
	eachSpace(t, func(t *testing.T, space spaceUnderTest) {
		page := readOnlyPage(t, []byte{1, 0, 0, 0})
		addr := addrOf(&page[0])

		assert.True(t, memory.Set[int32](space, addr, 7))
		assert.Equal(t, byte(7), page[0])
		assert.Equal(t, memory_map.ProtRead, protectionAt(t, space, addr).Base())
	})
}

func TestShortReadAtGuardPage(t *testing.T) {
	eachSpace(t, func(t *testing.T, space spaceUnderTest) {
		b := guardedPages(t)
		pageSize := os.Getpagesize()
		copy(b[pageSize-3:], "abc")
		start := addrOf(&b[pageSize-3])

		data, err := space.ReadMemory(start, 8)
		assert.ErrorIs(t, err, process.ErrTransferMismatch)
		assert.Equal(t, []byte("abc"), data)

		assert.Equal(t, "abc", memory.NarrowStrings(space, memory.Direct).Get(start))
		assert.Equal(t, "ab", memory.NarrowStrings(space, memory.Direct).GetN(start, 2))

		_, err = memory.Read[int64](space, start)
		assert.Error(t, err)
	})
}

func TestOversizedReadStopsAtMapping(t *testing.T) {
	eachSpace(t, func(t *testing.T, space spaceUnderTest) {
		b := guardedPages(t)
		pageSize := os.Getpagesize()
		copy(b, []byte{0xAA, 0xBB})
		start := addrOf(&b[0])

		data, err := space.ReadMemory(start, process.ProcessMemorySize(1<<62))
		assert.ErrorIs(t, err, process.ErrTransferMismatch)
		assert.Len(t, data, pageSize)

		assert.NotPanics(t, func() {
			_, err = scan.Region(space, start, process.ProcessMemorySize(1<<62), process.MustParseAOB("AA BB"))
		})
		assert.Error(t, err)

		data, err = space.ReadMemory(addrOf(&b[pageSize]), 16)
		assert.ErrorIs(t, err, process.ErrTransferMismatch)
		assert.Empty(t, data)
	})
}

// adjacentPages maps two read-write pages and applies the given protections.
func adjacentPages(t *testing.T, first, second int) []byte {
	pageSize := os.Getpagesize()
	b, err := unix.Mmap(-1, 0, 2*pageSize, unix.PROT_READ|unix.PROT_WRITE, unix.MAP_PRIVATE|unix.MAP_ANON)
	require.NoError(t, err)
	t.Cleanup(func() { unix.Munmap(b) })
	require.NoError(t, unix.Mprotect(b[:pageSize], first))
	require.NoError(t, unix.Mprotect(b[pageSize:], second))
	return b
}

func TestStraddlingWriteRestoresEachPage(t *testing.T) {
	pageSize := os.Getpagesize()
	space := NewLocal()
	rw := memory_map.ProtRead | memory_map.ProtWrite

	for _, tc := range []struct {
		name          string
		first, second int
		want0, want1  memory_map.Protection
	}{
		{"read-only then writable", unix.PROT_READ, unix.PROT_READ | unix.PROT_WRITE, memory_map.ProtRead, rw},
		{"writable then read-only", unix.PROT_READ | unix.PROT_WRITE, unix.PROT_READ, rw, memory_map.ProtRead},
	} {
		t.Run(tc.name, func(t *testing.T) {
			b := adjacentPages(t, tc.first, tc.second)
			addr := addrOf(&b[pageSize-4])

			require.True(t, memory.Set[int64](space, addr, 0x0102030405060708))
			assert.Equal(t, int64(0x0102030405060708), memory.Get[int64](space, addr))
			assert.Equal(t, tc.want0, protectionAt(t, space, addrOf(&b[0])).Base())
			assert.Equal(t, tc.want1, protectionAt(t, space, addrOf(&b[pageSize])).Base())
		})
	}
}

type node struct {
	next  *node
	value int32
}

func TestFollowChainThroughGoPointers(t *testing.T) {
	eachSpace(t, func(t *testing.T, space spaceUnderTest) {
		leaf := escape(&node{value: 1234})
		mid := escape(&node{next: leaf})
		root := escape(&node{next: mid})

		valueOffset := int64(unsafe.Offsetof(leaf.value))
		addr := memory.FollowChain(space, addrOf(&root.next), 0, valueOffset)
		assert.Equal(t, addrOf(&leaf.value), addr)
		assert.Equal(t, int32(1234), memory.Get[int32](space, addr))

		v := escape(new(int32))
		*v = 77
		holder := escape(&v)
		ptr := memory.New[int32](space, memory.Indirect)
		assert.Equal(t, int32(77), ptr.Get(addrOf(holder)))
		assert.True(t, ptr.Set(addrOf(holder), 78))
		assert.Equal(t, int32(78), *v)
		runtime.KeepAlive(root)
	})
}

func TestMainModule(t *testing.T) {
	module, err := NewLocal().MainModule()
	require.NoError(t, err)

	exe, err := os.Readlink("/proc/self/exe")
	require.NoError(t, err)
	assert.Equal(t, exe, module.Path)
	assert.NotZero(t, module.Size)
	assert.True(t, module.Contains(module.EntryPoint), module.String())

	addr, err := scan.MainModule(NewLocal(), NewLocal(), process.MustParseAOB("7F 45 4C 46"))
	require.NoError(t, err)
	assert.Equal(t, module.Base, addr)
}

func TestModuleFromMaps(t *testing.T) {
	mm := []memory_map.MemoryMapItem{
		{Address: 0x400000, Size: 0x1000, Path: "/bin/app"},
		{Address: 0x401000, Size: 0x3000, Path: "/bin/app"},
		{Address: 0x7f0000000000, Size: 0x1000, Path: "/lib/libc.so"},
	}

	module, err := moduleFromMaps(mm, "/bin/app")
	require.NoError(t, err)
	assert.Equal(t, "app", module.Name)
	assert.Equal(t, process.ProcessMemoryAddress(0x400000), module.Base)
	assert.Equal(t, process.ProcessMemorySize(0x4000), module.Size)

	_, err = moduleFromMaps(mm, "/bin/other")
	assert.Error(t, err)
}

// linkFs adds symlinks to an in-memory filesystem.
type linkFs struct {
	afero.Fs
	links map[string]string
}

func (fs linkFs) ReadlinkIfPossible(name string) (string, error) {
	target, ok := fs.links[name]
	if !ok {
		return "", &os.PathError{Op: "readlink", Path: name, Err: os.ErrNotExist}
	}
	return target, nil
}

func TestMainModuleOnFakeFs(t *testing.T) {
	image, err := os.ReadFile("/proc/self/exe")
	require.NoError(t, err)

	mem := afero.NewMemMapFs()
	require.NoError(t, afero.WriteFile(mem, "/proc/self/maps", []byte(
		"00400000-00401000 r--p 00000000 08:01 99 /opt/app/bin\n"+
			"00401000-00480000 r-xp 00001000 08:01 99 /opt/app/bin\n"+
			"7f0000000000-7f0000001000 rw-p 00000000 00:00 0\n"), 0644))
	require.NoError(t, afero.WriteFile(mem, "/opt/app/bin", image, 0755))
	fs := linkFs{Fs: mem, links: map[string]string{"/proc/self/exe": "/opt/app/bin"}}

	module, err := NewLocal(WithFs(fs)).MainModule()
	require.NoError(t, err)
	assert.Equal(t, "bin", module.Name)
	assert.Equal(t, "/opt/app/bin", module.Path)
	assert.Equal(t, process.ProcessMemoryAddress(0x400000), module.Base)
	assert.Equal(t, process.ProcessMemorySize(0x80000), module.Size)

	info, err := readELFInfo(bytes.NewReader(image), 0x400000)
	require.NoError(t, err)
	assert.Equal(t, process.ProcessMemoryAddress(info.entry), module.EntryPoint)

	// an unreadable image still yields the module, without entry point
	require.NoError(t, mem.Remove("/opt/app/bin"))
	module, err = NewLocal(WithFs(fs)).MainModule()
	require.NoError(t, err)
	assert.Zero(t, module.EntryPoint)

	delete(fs.links, "/proc/self/exe")
	_, err = NewLocal(WithFs(fs)).MainModule()
	assert.Error(t, err)

	_, err = NewLocal(WithFs(mem)).MainModule()
	assert.Error(t, err)
}

func TestReadELFInfoOfSelf(t *testing.T) {
	f, err := os.Open("/proc/self/exe")
	require.NoError(t, err)
	defer f.Close()

	info, err := readELFInfo(f, 0)
	require.NoError(t, err)
	assert.Equal(t, hostPointerSize, info.pointerSize)
}

func TestHandleLifecycle(t *testing.T) {
	cmd := exec.Command("sleep", "30")
	require.NoError(t, cmd.Start())

	h, err := OpenHandle(process.ProcessID(cmd.Process.Pid))
	if err != nil {
		cmd.Process.Kill()
		cmd.Wait()
		t.Skip("pidfd_open unavailable:", err)
	}
	defer h.Close()

	p, err := NewRemoteProcess(h)
	require.NoError(t, err)

	require.NoError(t, h.Check())
	mm, err := p.GetMemoryMap()
	require.NoError(t, err)
	var alive process.ProcessMemoryAddress
	for _, region := range mm {
		if region.IsReadable() {
			alive = process.ProcessMemoryAddress(region.Address)
			break
		}
	}
	require.NotZero(t, alive)
	assert.True(t, p.IsValidAddress(alive))

	require.NoError(t, cmd.Process.Kill())
	cmd.Wait()

	assert.ErrorIs(t, h.Check(), process.ErrInvalidHandle)
	assert.False(t, p.IsValidAddress(alive))
	assert.Equal(t, int32(-1), memory.Get[int32](p, alive))

	require.NoError(t, h.Close())
	assert.ErrorIs(t, h.Check(), process.ErrInvalidHandle)

	var nilHandle *Handle
	assert.ErrorIs(t, nilHandle.Check(), process.ErrInvalidHandle)
}
