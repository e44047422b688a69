// Command libcouncil builds the council as a C shared library:
//
//	go build -buildmode=c-shared -o libcouncil.so ./cmd/libcouncil
package main

/*
#include <stdlib.h>

// topic: event name, payload: JSON
typedef void (*EventCallback)(char* topic, char* payload);

// Go cannot call a C function pointer directly.
static void invokeCallback(EventCallback cb, char* topic, char* payload) {
    if (cb) {
        cb(topic, payload);
    }
}
*/
import "C"
import (
	"context"
	"sync"
	"unsafe"

	"github.com/dyike/AnalystCouncil/config"
	"github.com/dyike/AnalystCouncil/internal/council"
	"github.com/dyike/AnalystCouncil/pkg/app"
	"github.com/dyike/AnalystCouncil/pkg/bridge"
)

var (
	globalCallback C.EventCallback

	mu      sync.Mutex
	runtime *app.Runtime
)

func init() {
	bridge.SetNotifyImpl(func(topic, payload string) {
		if globalCallback == nil {
			return
		}
		cTopic := C.CString(topic)
		cPayload := C.CString(payload)
		defer C.free(unsafe.Pointer(cTopic))
		defer C.free(unsafe.Pointer(cPayload))

		C.invokeCallback(globalCallback, cTopic, cPayload)
	})
}

//export InitSDK
func InitSDK(configPath *C.char) *C.char {
	mgr, err := config.NewManager(config.WithConfigPath(C.GoString(configPath)))
	if err != nil {
		return C.CString("Error: " + err.Error())
	}
	rt, err := app.NewRuntime(mgr,
		app.WithNotifier(bridge.Notify),
		app.WithBuilder(func(cfg config.Config) (*app.Engine, error) {
			return app.BuildEngine(cfg.WithEnv(), app.WithCouncilOptions(council.WithObserver(bridge.ObserveExpert)))
		}),
	)
	if err != nil {
		return C.CString("Error: " + err.Error())
	}

	mu.Lock()
	old := runtime
	runtime = rt
	mu.Unlock()
	if old != nil {
		old.Close()
	}
	return C.CString("Success")
}

//export RegisterCallback
func RegisterCallback(cb C.EventCallback) {
	globalCallback = cb
}

//export UpdateConfig
func UpdateConfig(jsonStr *C.char) *C.char {
	rt := current()
	if rt == nil {
		return C.CString("Error: SDK not initialized")
	}
	if err := rt.UpdateConfigJSON(C.GoString(jsonStr)); err != nil {
		return C.CString("Error: " + err.Error())
	}
	return C.CString("Success")
}

//export Call
func Call(method *C.char, params *C.char) *C.char {
	var backend bridge.Backend
	if rt := current(); rt != nil {
		backend = rt
	}
	resp := bridge.Dispatch(context.Background(), backend, C.GoString(method), C.GoString(params))
	return C.CString(resp)
}

//export Shutdown
func Shutdown() {
	mu.Lock()
	rt := runtime
	runtime = nil
	mu.Unlock()
	if rt != nil {
		rt.Close()
	}
}

//export FreeString
func FreeString(str *C.char) {
	C.free(unsafe.Pointer(str))
}

func current() *app.Runtime {
	mu.Lock()
	defer mu.Unlock()
	return runtime
}

func main() {}
