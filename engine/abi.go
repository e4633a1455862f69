package engine

// Guest export names. The Wren C API is exported under its C names.
const (
	// ABIMarker must be exported by every compatible guest.
	ABIMarker = "wrenhost_abi_version_1"

	// ExportNewVM: (user_data, initial_heap, min_heap, growth_percent, relative_import) -> vm
	ExportNewVM = "wrenhost_new_vm"

	ExportFreeVM            = "wrenFreeVM"
	ExportGetUserData       = "wrenGetUserData"
	ExportCollectGarbage    = "wrenCollectGarbage"
	ExportInterpret         = "wrenInterpret"
	ExportMakeCallHandle    = "wrenMakeCallHandle"
	ExportCall              = "wrenCall"
	ExportReleaseHandle     = "wrenReleaseHandle"
	ExportGetSlotCount      = "wrenGetSlotCount"
	ExportEnsureSlots       = "wrenEnsureSlots"
	ExportGetSlotType       = "wrenGetSlotType"
	ExportGetSlotBool       = "wrenGetSlotBool"
	ExportGetSlotBytes      = "wrenGetSlotBytes"
	ExportGetSlotDouble     = "wrenGetSlotDouble"
	ExportGetSlotForeign    = "wrenGetSlotForeign"
	ExportGetSlotString     = "wrenGetSlotString"
	ExportGetSlotHandle     = "wrenGetSlotHandle"
	ExportSetSlotBool       = "wrenSetSlotBool"
	ExportSetSlotBytes      = "wrenSetSlotBytes"
	ExportSetSlotDouble     = "wrenSetSlotDouble"
	ExportSetSlotNewForeign = "wrenSetSlotNewForeign"
	ExportSetSlotNewList    = "wrenSetSlotNewList"
	ExportSetSlotNull       = "wrenSetSlotNull"
	ExportSetSlotString     = "wrenSetSlotString"
	ExportSetSlotHandle     = "wrenSetSlotHandle"
	ExportGetListCount      = "wrenGetListCount"
	ExportGetListElement    = "wrenGetListElement"
	ExportInsertInList      = "wrenInsertInList"
	ExportGetVariable       = "wrenGetVariable"
	ExportHasVariable       = "wrenHasVariable"
	ExportHasModule         = "wrenHasModule"
	ExportAbortFiber        = "wrenAbortFiber"

	ExportMalloc  = "malloc"
	ExportRealloc = "realloc"
	ExportFree    = "free"
)

// requiredExports lists every function the host calls.
var requiredExports = []string{
	ABIMarker,
	ExportNewVM,
	ExportFreeVM,
	ExportGetUserData,
	ExportCollectGarbage,
	ExportInterpret,
	ExportMakeCallHandle,
	ExportCall,
	ExportReleaseHandle,
	ExportGetSlotCount,
	ExportEnsureSlots,
	ExportGetSlotType,
	ExportGetSlotBool,
	ExportGetSlotBytes,
	ExportGetSlotDouble,
	ExportGetSlotForeign,
	ExportGetSlotString,
	ExportGetSlotHandle,
	ExportSetSlotBool,
	ExportSetSlotBytes,
	ExportSetSlotDouble,
	ExportSetSlotNewForeign,
	ExportSetSlotNewList,
	ExportSetSlotNull,
	ExportSetSlotString,
	ExportSetSlotHandle,
	ExportGetListCount,
	ExportGetListElement,
	ExportInsertInList,
	ExportGetVariable,
	ExportHasVariable,
	ExportHasModule,
	ExportAbortFiber,
	ExportMalloc,
	ExportRealloc,
	ExportFree,
}

// HostModule is the import module the guest shim calls back into.
const HostModule = "wren_host"

// Host import names.
const (
	// ImportReallocate: (ptr, size, user_data) -> ptr
	ImportReallocate = "reallocate"
	// ImportError: (vm, type, module, line, message)
	ImportError = "error"
	// ImportWrite: (vm, text)
	ImportWrite = "write"
	// ImportBindMethod: (vm, module, class, is_static, signature) -> method id, 0 if unbound
	ImportBindMethod = "bind_method"
	// ImportBindClass: (vm, module, class) -> class id, 0 if unbound
	ImportBindClass = "bind_class"
	// ImportCallForeign: (vm, method id)
	ImportCallForeign = "call_foreign"
	// ImportAllocate: (vm, class id)
	ImportAllocate = "allocate"
	// ImportFinalize: (data, class id)
	ImportFinalize = "finalize"
	// ImportLoadModule: (vm, name) -> source, 0 if not found
	ImportLoadModule = "load_module"
	// ImportResolveModule: (vm, importer, name) -> name
	ImportResolveModule = "resolve_module"
)

// Trampoline pool sizes compiled into the guest shim.
const (
	MaxForeignMethods = 1000
	MaxForeignClasses = 100
)

// WrenType is the guest's WrenType classification of a slot.
type WrenType int32

const (
	TypeBool WrenType = iota
	TypeNum
	TypeForeign
	TypeList
	TypeMap
	TypeNull
	TypeString
	TypeUnknown
)

// InterpretResult is the guest's WrenInterpretResult.
type InterpretResult int32

const (
	ResultSuccess InterpretResult = iota
	ResultCompileError
	ResultRuntimeError
)

func (r InterpretResult) String() string {
	switch r {
	case ResultSuccess:
		return "success"
	case ResultCompileError:
		return "compile error"
	case ResultRuntimeError:
		return "runtime error"
	default:
		return "unknown result"
	}
}

// ErrorType is the guest's WrenErrorType.
type ErrorType int32

const (
	ErrorCompile ErrorType = iota
	ErrorRuntime
	ErrorStackTrace
)

// EnvelopeSize is the byte size of the record stored in a foreign object's data.
const EnvelopeSize = 12

// Envelope is the host record stored in a foreign object's guest memory.
// Context names the owning host context, Tag the Go type and Object the
// native value in the context's object table. Object 0 means no value.
type Envelope struct {
	Context uint32
	Tag     uint32
	Object  uint32
}
