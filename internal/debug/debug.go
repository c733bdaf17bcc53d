//go:build debug

// Package debug includes logging and assertion helpers used by the allocator
// core. Everything in this package except [Fatalf] is a no-op unless the repo
// is built with the "debug" build tag.
package debug

import (
	"flag"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"runtime"
	"strings"

	"github.com/timandy/routine"

	"github.com/flier/goheap/internal/xflag"
)

// Enabled is true when the module is built with the debug tag.
const Enabled = true

var (
	debugPattern = xflag.Func("filter", "regexp to filter debug logs by", regexp.Compile)
	nocapture    = flag.Bool("nocapture", false, "disables capturing debug logs as test logs")
)

// Log prints debugging information to stderr (or to the current *testing.T,
// via [WithTesting]).
//
// context is optional fmt.Printf-style args printed before operation; it lets
// a caller tag a whole run of related log lines, such as the address range an
// arena block spans.
func Log(context []any, operation string, format string, args ...any) {
	skip := 1
again:
	pc, file, line, _ := runtime.Caller(skip)

	fn := runtime.FuncForPC(pc)
	name := fn.Name()
	name = name[strings.LastIndex(name, ".")+1:]
	if strings.HasPrefix(name, "log") || strings.Contains(name, "Log") {
		skip++
		goto again
	}

	pkg := fn.Name()
	pkg = strings.TrimPrefix(pkg, "github.com/flier/goheap/")
	pkg = pkg[:strings.Index(pkg, ".")]

	file = filepath.Base(file)

	buf := new(strings.Builder)

	_, _ = fmt.Fprintf(buf, "%s/%s:%d [g%04d", pkg, file, line, routine.Goid())
	if len(context) >= 1 {
		_, _ = fmt.Fprintf(buf, ", "+context[0].(string), context[1:]...)
	}
	_, _ = fmt.Fprintf(buf, "] %s: ", operation)
	_, _ = fmt.Fprintf(buf, format, args...)

	if *debugPattern != nil &&
		!(*debugPattern).MatchString(buf.String()) {
		return
	}

	t := tls.Get()
	if !*nocapture && t != nil {
		t.Log(buf.String())
		return
	}

	_, _ = buf.Write([]byte{'\n'})
	_, _ = os.Stderr.WriteString(buf.String())
	_ = os.Stderr.Sync()
}

// Assert panics if cond is false, but only in debug builds.
//
// Use this for invariants the allocator must never violate internally
// (registry ordering, the no-adjacent-free-blocks invariant, ...). It is not
// a substitute for [Fatalf]: Assert is compiled out in release builds,
// Fatalf never is.
func Assert(cond bool, format string, args ...any) {
	if !cond {
		panic(fmt.Errorf("goheap: internal assertion failed: "+format, args...))
	}
}
