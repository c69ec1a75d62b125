package kernel

import (
	"encoding/binary"
	"sort"

	"github.com/sarchlab/nachosim/noff"
)

// A Demo is a built-in user program along with its executable image.
type Demo struct {
	Description string
	Image       noff.Image
	Program     Program
}

// SortSize is the number of words the sort demo sorts.
const SortSize = 256

// Demos returns the built-in user programs by name.
func Demos() map[string]Demo {
	return map[string]Demo{
		"halt": {
			Description: "halts the machine",
			Image:       noff.Image{Code: code(64)},
			Program:     func(ctx *UserContext) { ctx.Halt() },
		},
		"exit": {
			Description: "exits with the code stored in its data segment",
			Image:       noff.Image{Code: code(64), Data: words(42)},
			Program: func(ctx *UserContext) {
				ctx.Exit(ctx.LoadWord(dataBase(ctx)))
			},
		},
		"hello": {
			Description: "prints a greeting on the console",
			Image:       noff.Image{Code: code(64)},
			Program: func(ctx *UserContext) {
				ctx.Print("Hello, world!\n")
			},
		},
		"sort": {
			Description: "sorts an array in place and exits with its first word",
			Image:       SortImage(SortSize),
			Program:     SortProgram,
		},
		"fork": {
			Description: "forks a thread that shares its memory",
			Image:       noff.Image{Code: code(64), BSSSize: 16},
			Program:     forkProgram,
		},
		"exec": {
			Description: "runs exit in a child process and exits with its code",
			Image:       noff.Image{Code: code(64)},
			Program: func(ctx *UserContext) {
				ctx.Exit(ctx.Join(ctx.Exec("exit")))
			},
		},
	}
}

// RegisterDemos adds the built-in programs to a loader.
func RegisterDemos(l *MemLoader) {
	for name, d := range Demos() {
		l.Register(name, d.Image, d.Program)
	}
}

// DemoPrograms returns the programs of the demos, to run over images read
// from disk.
func DemoPrograms() map[string]Program {
	programs := make(map[string]Program)
	for name, d := range Demos() {
		programs[name] = d.Program
	}

	return programs
}

// DemoNames returns the names of the demos in alphabetical order.
func DemoNames() []string {
	var names []string
	for name := range Demos() {
		names = append(names, name)
	}

	sort.Strings(names)

	return names
}

// SortImage builds an executable whose data segment holds the count
// followed by the numbers n down to 1.
func SortImage(n int) noff.Image {
	data := make([]int, n+1)
	data[0] = n

	for i := 1; i <= n; i++ {
		data[i] = n - i + 1
	}

	return noff.Image{
		Code: code(256),
		Data: words(data...),
	}
}

// SortProgram sorts the words of the data segment with an insertion sort and
// exits with the smallest one.
func SortProgram(ctx *UserContext) {
	base := dataBase(ctx)
	n := ctx.LoadWord(base)
	at := func(i int) uint64 { return base + 4 + uint64(i)*4 }

	for i := 1; i < n; i++ {
		v := ctx.LoadWord(at(i))
		j := i - 1

		for j >= 0 && ctx.LoadWord(at(j)) > v {
			ctx.StoreWord(at(j+1), ctx.LoadWord(at(j)))
			j--
		}

		ctx.StoreWord(at(j+1), v)
	}

	ctx.Exit(ctx.LoadWord(at(0)))
}

func forkProgram(ctx *UserContext) {
	flag := bssBase(ctx)

	ctx.Fork(func(child *UserContext) {
		child.StoreWord(flag, 7)
		child.Exit(7)
	})

	for ctx.LoadWord(flag) == 0 {
		ctx.Yield()
	}

	ctx.Exit(ctx.LoadWord(flag))
}

func dataBase(ctx *UserContext) uint64 {
	return uint64(ctx.Space().Executable().Header.InitData.VirtualAddr)
}

func bssBase(ctx *UserContext) uint64 {
	return uint64(ctx.Space().Executable().Header.UninitData.VirtualAddr)
}

// code returns filler instructions.
func code(size int) []byte {
	buf := make([]byte, size)
	for i := range buf {
		buf[i] = byte(i)
	}

	return buf
}

func words(values ...int) []byte {
	buf := make([]byte, 4*len(values))
	for i, v := range values {
		binary.LittleEndian.PutUint32(buf[4*i:], uint32(v))
	}

	return buf
}
