package wren

import (
	"fmt"
	"weak"

	"go.uber.org/zap"

	"github.com/wippyai/wren-runtime/resource"
)

// tagEntry tags entries of the runtime's single-type tables: host contexts
// and handles.
const tagEntry resource.Tag = 1

// FatalError reports a callback for a VM whose wrapper is already gone.
// It is raised as a panic and never recovered by the runtime.
type FatalError struct {
	Detail string
}

func (e *FatalError) Error() string {
	return "wren: fatal: " + e.Detail
}

// hostContext is the per-VM state every callback resolves through the VM's
// user data. It lives exactly as long as the VM.
type hostContext struct {
	printer Printer
	loader  Loader
	lib     *boundLibrary
	errs    *errorQueue
	objects *resource.Table
	log     *zap.Logger
	cell    weak.Pointer[cell]
	key     uint32
}

// upgrade resolves the wrapper cell for the duration of a callback.
func (hc *hostContext) upgrade() *cell {
	c := hc.cell.Value()
	if c == nil || c.core == nil {
		panic(&FatalError{Detail: fmt.Sprintf("callback for VM context %d after its wrapper was released", hc.key)})
	}
	return c
}

// Drop releases native values the VM never finalized.
func (hc *hostContext) Drop() {
	if n := hc.objects.Len(); n > 0 {
		hc.log.Warn("dropping unfinalized foreign objects", zap.Int("count", n))
	}
	_ = hc.objects.Close()
}

// objectLogger traces foreign objects entering and leaving a VM's table.
func objectLogger(log *zap.Logger) resource.Observer {
	return resource.ObserverFunc(func(e resource.Event) {
		o, ok := e.Value.(*foreignObject)
		if !ok || !log.Core().Enabled(zap.DebugLevel) {
			return
		}
		msg := "foreign object created"
		if e.Type == resource.EventDropped {
			msg = "foreign object dropped"
		}
		log.Debug(msg,
			zap.String("module", o.class.module),
			zap.String("class", o.class.name),
			zap.Uint32("handle", uint32(e.Handle)))
	})
}

// foreignObject is the table entry behind a foreign envelope.
type foreignObject struct {
	value any
	class *boundClass
	log   *zap.Logger
}

// Drop runs the class finalizer hook. The table calls it once per object.
func (o *foreignObject) Drop() {
	if o.class.destruct == nil {
		return
	}
	defer func() {
		if p := recover(); p != nil {
			o.log.Error("foreign finalizer panicked",
				zap.String("module", o.class.module),
				zap.String("class", o.class.name),
				zap.Any("panic", p))
		}
	}()
	o.class.destruct(o.value)
}
