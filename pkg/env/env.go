package env

import (
	"fmt"
	"net/http"

	"github.com/carlmjohnson/versioninfo"
)

const unset = "unset"

// Version may be set at link time with -ldflags "-X .../pkg/env.Version=..."; otherwise it falls back to VCS build info.
var Version = unset

func init() {
	if Version == unset {
		Version = versioninfo.Short()
	}
}

func VersionHandler(w http.ResponseWriter, r *http.Request) {
	fmt.Fprintf(w, "%s\n", Version) // nolint:errcheck
}
