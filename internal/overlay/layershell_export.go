//go:build linux && cgo

package overlay

// This file only re-exports the idle trampoline; //export forbids
// definitions in the preamble, so the C helpers live in layershell.go.

/*
#include <glib.h>
*/
import "C"

//export shadeDispatchIdle
func shadeDispatchIdle(data C.gpointer) C.gboolean {
	if b := activeLayerShell; b != nil {
		b.flushDispatch()
	}
	return C.G_SOURCE_REMOVE
}
