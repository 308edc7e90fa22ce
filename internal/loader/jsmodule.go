package loader

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strings"
	"sync"

	"github.com/dop251/goja"
	"github.com/keyhub-labs/keyhub/internal/capability"
	"go.uber.org/zap"
)

// maxExportDepth bounds how deep exported objects are walked for
// capabilities.
const maxExportDepth = 8

// jsModule is one CommonJS entry point evaluated in its own VM. A goja
// runtime is not safe for concurrent use, so every entry into the VM holds
// mu.
type jsModule struct {
	mu      sync.Mutex
	vm      *goja.Runtime
	host    Host
	hostObj *goja.Object

	// callCtx is the context of the call currently inside the VM.
	callCtx context.Context
}

// loadJS evaluates the file at path and returns the capability tree it
// exports. The source is wrapped as (function (exports, module, keyhub) {...}).
// A module that exports a function is treated as a factory: it is called
// with the host object and its (possibly promised) result is the export.
func loadJS(ctx context.Context, path string, h Host) (*capability.Tree, error) {
	src, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	wrapped := "(function (exports, module, keyhub) {\n" + string(src) + "\n})"
	prog, err := goja.Compile(path, wrapped, false)
	if err != nil {
		return nil, fmt.Errorf("compiling %s: %w", path, err)
	}

	m := &jsModule{vm: goja.New(), host: h}
	m.vm.SetMaxCallStackSize(1024)
	m.vm.Set("require", goja.Undefined())
	m.vm.Set("process", goja.Undefined())
	m.hostObj = m.newHostObject()

	m.mu.Lock()
	defer m.mu.Unlock()
	stop := m.enter(ctx)
	defer stop()

	fnVal, err := m.vm.RunProgram(prog)
	if err != nil {
		return nil, m.jsError(err)
	}
	wrapper, ok := goja.AssertFunction(fnVal)
	if !ok {
		return nil, fmt.Errorf("%s did not evaluate to a module function", path)
	}

	module := m.vm.NewObject()
	exports := m.vm.NewObject()
	if err := module.Set("exports", exports); err != nil {
		return nil, err
	}
	if _, err := wrapper(goja.Undefined(), exports, module, m.hostObj); err != nil {
		return nil, m.jsError(err)
	}

	exported := module.Get("exports")
	if factory, ok := goja.AssertFunction(exported); ok {
		out, err := factory(goja.Undefined(), m.hostObj)
		if err != nil {
			return nil, m.jsError(err)
		}
		out, err = m.settle(out)
		if err != nil {
			return nil, fmt.Errorf("initializing %s: %w", path, err)
		}
		if out != nil && !goja.IsUndefined(out) && !goja.IsNull(out) {
			exported = out
		}
	}

	root, ok := exported.(*goja.Object)
	if !ok {
		return nil, fmt.Errorf("%s exports %s, want an object", path, describeValue(exported))
	}

	tree := capability.NewTree()
	m.collect(tree, root, nil, map[*goja.Object]bool{})
	return tree, nil
}

// collect binds every function reachable from obj through plain objects.
// A function may also carry nested capabilities as properties.
func (m *jsModule) collect(tree *capability.Tree, obj *goja.Object, prefix capability.Path, seen map[*goja.Object]bool) {
	if seen[obj] || len(prefix) > maxExportDepth {
		return
	}
	seen[obj] = true

	for _, key := range obj.Keys() {
		val := obj.Get(key)
		child, ok := val.(*goja.Object)
		if !ok {
			continue
		}
		path := append(append(capability.Path(nil), prefix...), key)
		if fn, ok := goja.AssertFunction(child); ok {
			// Insert fails only on duplicates, which a JS object cannot hold.
			_ = tree.Insert(path, m.bind(fn, obj))
		}
		switch child.ClassName() {
		case "Object", "Function":
			m.collect(tree, child, path, seen)
		}
	}
}

// bind adapts a JS function to capability.Func. The function is called as
// fn(keyhub, ...args) with this bound to its parent object.
func (m *jsModule) bind(fn goja.Callable, this *goja.Object) capability.Func {
	return func(ctx context.Context, args ...any) (any, error) {
		m.mu.Lock()
		defer m.mu.Unlock()
		stop := m.enter(ctx)
		defer stop()

		jsArgs := make([]goja.Value, 0, len(args)+1)
		jsArgs = append(jsArgs, m.hostObj)
		for _, a := range args {
			jsArgs = append(jsArgs, m.vm.ToValue(a))
		}

		v, err := fn(this, jsArgs...)
		if err != nil {
			return nil, m.jsError(err)
		}
		v, err = m.settle(v)
		if err != nil {
			return nil, err
		}
		if v == nil || goja.IsUndefined(v) || goja.IsNull(v) {
			return nil, nil
		}
		return v.Export(), nil
	}
}

// enter records ctx as the active call and interrupts the VM when ctx is
// done. The returned func must be called, with mu held, when the call
// leaves the VM.
func (m *jsModule) enter(ctx context.Context) func() {
	m.callCtx = ctx
	if ctx.Done() == nil {
		return func() { m.callCtx = nil }
	}

	done := make(chan struct{})
	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		select {
		case <-ctx.Done():
			m.vm.Interrupt(ctx.Err())
		case <-done:
		}
	}()
	return func() {
		close(done)
		wg.Wait()
		m.vm.ClearInterrupt()
		m.callCtx = nil
	}
}

// settle unwraps a promise. goja drains its job queue before returning to
// Go, so anything still pending depends on an event loop that does not
// exist here.
func (m *jsModule) settle(v goja.Value) (goja.Value, error) {
	obj, ok := v.(*goja.Object)
	if !ok {
		return v, nil
	}
	p, ok := obj.Export().(*goja.Promise)
	if !ok {
		return v, nil
	}
	switch p.State() {
	case goja.PromiseStateFulfilled:
		return p.Result(), nil
	case goja.PromiseStateRejected:
		return nil, fmt.Errorf("promise rejected: %s", describeValue(p.Result()))
	default:
		return nil, errors.New("promise never settled (timers and I/O callbacks are not available)")
	}
}

// jsError turns a goja failure into a Go error. Interrupts caused by the
// call's context surface as that context's error.
func (m *jsModule) jsError(err error) error {
	var interrupted *goja.InterruptedError
	if errors.As(err, &interrupted) {
		if cause, ok := interrupted.Value().(error); ok {
			return fmt.Errorf("add-on interrupted: %w", cause)
		}
		return fmt.Errorf("add-on interrupted: %v", interrupted.Value())
	}
	var exc *goja.Exception
	if errors.As(err, &exc) {
		return fmt.Errorf("uncaught exception: %s", strings.TrimSpace(exc.Error()))
	}
	return err
}

// newHostObject builds the keyhub object passed to add-on code.
func (m *jsModule) newHostObject() *goja.Object {
	vm := m.vm
	rec := m.host.Record

	obj := vm.NewObject()
	_ = obj.Set("package", map[string]any{
		"name":    rec.Name,
		"version": rec.Version,
		"type":    string(rec.Type),
		"dir":     rec.PackageDir,
	})

	props := map[string]any{}
	for k, v := range m.host.Context {
		props[k] = v
	}
	_ = obj.Set("properties", props)

	logger := vm.NewObject()
	_ = logger.Set("debug", m.logFunc(m.host.Logger.Debug))
	_ = logger.Set("info", m.logFunc(m.host.Logger.Info))
	_ = logger.Set("warn", m.logFunc(m.host.Logger.Warn))
	_ = logger.Set("error", m.logFunc(m.host.Logger.Error))
	_ = obj.Set("logger", logger)

	software := vm.NewObject()
	_ = software.Set("executables", func(call goja.FunctionCall) goja.Value {
		name := call.Argument(0).String()
		ctx := m.callCtx
		if ctx == nil {
			ctx = context.Background()
		}
		rows, err := m.host.Executables(ctx, name)
		if err != nil {
			panic(vm.NewGoError(err))
		}
		out := make([]any, 0, len(rows))
		for _, r := range rows {
			out = append(out, map[string]any{
				"name":          r.Name,
				"path":          r.Path,
				"arch":          r.Arch,
				"os":            r.OS,
				"userInstalled": r.UserInstalled,
				"software":      r.SoftwareName,
				"owner":         r.OwnerName,
			})
		}
		return vm.ToValue(out)
	})
	_ = obj.Set("software", software)

	return obj
}

func (m *jsModule) logFunc(log func(string, ...zap.Field)) func(goja.FunctionCall) goja.Value {
	return func(call goja.FunctionCall) goja.Value {
		parts := make([]string, 0, len(call.Arguments))
		for _, arg := range call.Arguments {
			parts = append(parts, arg.String())
		}
		log(strings.Join(parts, " "))
		return goja.Undefined()
	}
}

func describeValue(v goja.Value) string {
	switch {
	case v == nil || goja.IsUndefined(v):
		return "undefined"
	case goja.IsNull(v):
		return "null"
	}
	return v.String()
}
