package engine

import (
	"context"

	"github.com/tetratelabs/wazero"
	"github.com/tetratelabs/wazero/api"
	"go.uber.org/zap"
)

const i32t = api.ValueTypeI32

type hostImport struct {
	name    string
	fn      api.GoModuleFunc
	params  []api.ValueType
	results []api.ValueType
}

// hostImports is the wren_host module. Every function resolves the calling
// guest from ctx and forwards to its Callbacks.
var hostImports = []hostImport{
	{ImportReallocate, hostReallocate, []api.ValueType{i32t, i32t, i32t}, []api.ValueType{i32t}},
	{ImportError, hostError, []api.ValueType{i32t, i32t, i32t, i32t, i32t}, nil},
	{ImportWrite, hostWrite, []api.ValueType{i32t, i32t}, nil},
	{ImportBindMethod, hostBindMethod, []api.ValueType{i32t, i32t, i32t, i32t, i32t}, []api.ValueType{i32t}},
	{ImportBindClass, hostBindClass, []api.ValueType{i32t, i32t, i32t}, []api.ValueType{i32t}},
	{ImportCallForeign, hostCallForeign, []api.ValueType{i32t, i32t}, nil},
	{ImportAllocate, hostAllocate, []api.ValueType{i32t, i32t}, nil},
	{ImportFinalize, hostFinalize, []api.ValueType{i32t, i32t}, nil},
	{ImportLoadModule, hostLoadModule, []api.ValueType{i32t, i32t}, []api.ValueType{i32t}},
	{ImportResolveModule, hostResolveModule, []api.ValueType{i32t, i32t, i32t}, []api.ValueType{i32t}},
}

func buildHostModule(r wazero.Runtime) wazero.HostModuleBuilder {
	builder := r.NewHostModuleBuilder(HostModule)
	for _, imp := range hostImports {
		builder = builder.NewFunctionBuilder().
			WithGoModuleFunction(imp.fn, imp.params, imp.results).
			WithName(imp.name).
			Export(imp.name)
	}
	return builder
}

func hostImportNames() map[string]struct{} {
	names := make(map[string]struct{}, len(hostImports))
	for _, imp := range hostImports {
		names[imp.name] = struct{}{}
	}
	return names
}

// mustGuest returns the calling guest. Host imports are only reachable
// through WazeroGuest calls, which always stamp ctx.
func mustGuest(ctx context.Context) *WazeroGuest {
	g := guestFromContext(ctx)
	if g == nil {
		panic("wren_host import called outside a guest call")
	}
	return g
}

func (g *WazeroGuest) str(ptr uint32, what string) string {
	s, err := readCString(g.mem, ptr)
	if err != nil {
		Logger().Warn("unreadable guest string", zap.String("arg", what), zapPtr(ptr), zapErr(err))
		return ""
	}
	return s
}

func hostReallocate(ctx context.Context, _ api.Module, stack []uint64) {
	g := mustGuest(ctx)
	ptr, size := api.DecodeU32(stack[0]), api.DecodeU32(stack[1])
	out, err := g.heap.reallocate(ctx, ptr, size)
	if err != nil {
		Logger().Warn("guest reallocate failed", zapPtr(ptr), zap.Uint32("size", size), zapErr(err))
		out = 0
	}
	stack[0] = api.EncodeU32(out)
}

func hostError(ctx context.Context, _ api.Module, stack []uint64) {
	g := mustGuest(ctx)
	vm := VMRef(api.DecodeU32(stack[0]))
	typ := ErrorType(api.DecodeI32(stack[1]))
	module := g.str(api.DecodeU32(stack[2]), "module")
	line := int(api.DecodeI32(stack[3]))
	msg := g.str(api.DecodeU32(stack[4]), "message")
	g.cb.Error(ctx, g, vm, typ, module, line, msg)
}

func hostWrite(ctx context.Context, _ api.Module, stack []uint64) {
	g := mustGuest(ctx)
	vm := VMRef(api.DecodeU32(stack[0]))
	g.cb.Write(ctx, g, vm, g.str(api.DecodeU32(stack[1]), "text"))
}

func hostBindMethod(ctx context.Context, _ api.Module, stack []uint64) {
	g := mustGuest(ctx)
	vm := VMRef(api.DecodeU32(stack[0]))
	module := g.str(api.DecodeU32(stack[1]), "module")
	class := g.str(api.DecodeU32(stack[2]), "class")
	isStatic := api.DecodeU32(stack[3]) != 0
	sig := g.str(api.DecodeU32(stack[4]), "signature")

	id := g.cb.BindForeignMethod(ctx, g, vm, module, class, isStatic, sig)
	if id > MaxForeignMethods {
		Logger().Error("foreign method id exceeds trampoline pool", zap.Uint32("id", id))
		id = 0
	}
	stack[0] = api.EncodeU32(id)
}

func hostBindClass(ctx context.Context, _ api.Module, stack []uint64) {
	g := mustGuest(ctx)
	vm := VMRef(api.DecodeU32(stack[0]))
	module := g.str(api.DecodeU32(stack[1]), "module")
	class := g.str(api.DecodeU32(stack[2]), "class")

	id := g.cb.BindForeignClass(ctx, g, vm, module, class)
	if id > MaxForeignClasses {
		Logger().Error("foreign class id exceeds trampoline pool", zap.Uint32("id", id))
		id = 0
	}
	stack[0] = api.EncodeU32(id)
}

func hostCallForeign(ctx context.Context, _ api.Module, stack []uint64) {
	g := mustGuest(ctx)
	g.cb.CallForeign(ctx, g, VMRef(api.DecodeU32(stack[0])), api.DecodeU32(stack[1]))
}

func hostAllocate(ctx context.Context, _ api.Module, stack []uint64) {
	g := mustGuest(ctx)
	g.cb.Allocate(ctx, g, VMRef(api.DecodeU32(stack[0])), api.DecodeU32(stack[1]))
}

func hostFinalize(ctx context.Context, _ api.Module, stack []uint64) {
	g := mustGuest(ctx)
	g.cb.Finalize(ctx, g, api.DecodeU32(stack[0]), api.DecodeU32(stack[1]))
}

func hostLoadModule(ctx context.Context, _ api.Module, stack []uint64) {
	g := mustGuest(ctx)
	vm := VMRef(api.DecodeU32(stack[0]))
	name := g.str(api.DecodeU32(stack[1]), "name")

	source, ok := g.cb.LoadModule(ctx, g, vm, name)
	if !ok {
		stack[0] = 0
		return
	}
	// The shim frees the source through reallocate once Wren has compiled it.
	ptr, err := allocString(g.allocator(ctx), g.mem, source)
	if err != nil {
		Logger().Warn("copy module source into guest", zap.String("module", name), zapErr(err))
		ptr = 0
	}
	stack[0] = api.EncodeU32(ptr)
}

func hostResolveModule(ctx context.Context, _ api.Module, stack []uint64) {
	g := mustGuest(ctx)
	vm := VMRef(api.DecodeU32(stack[0]))
	importer := g.str(api.DecodeU32(stack[1]), "importer")
	namePtr := api.DecodeU32(stack[2])
	name := g.str(namePtr, "name")

	resolved := g.cb.ResolveModule(ctx, g, vm, importer, name)
	if resolved == name {
		stack[0] = api.EncodeU32(namePtr)
		return
	}
	// A different name is owned, and later freed, by Wren.
	ptr, err := allocString(g.allocator(ctx), g.mem, resolved)
	if err != nil {
		Logger().Warn("copy resolved module name into guest", zap.String("module", resolved), zapErr(err))
		ptr = namePtr
	}
	stack[0] = api.EncodeU32(ptr)
}
