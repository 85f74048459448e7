package internal

import (
	"encoding/json"
	"net/http"
	"runtime"
)

// Version is stamped at build time via
// -ldflags "-X multichat/internal.Version=v1.2.3".
var Version = "dev"

// HandleVersion reports the running build, useful when diagnosing a client
// and server that disagree about the wire contract.
func HandleVersion(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		methodNotAllowed(w, http.MethodGet)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(map[string]string{
		"version": Version,
		"go":      runtime.Version(),
	})
}
