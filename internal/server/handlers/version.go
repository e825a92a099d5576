package handlers

import (
	"net/http"
	"os"
	"path/filepath"
	"runtime"
	"sync"

	"github.com/fulmenhq/gofulmen/appidentity"
	"github.com/fulmenhq/gofulmen/crucible"
)

// buildState is what /version reports about this process.
type buildState struct {
	mu        sync.RWMutex
	version   string
	commit    string
	buildDate string
	identity  *appidentity.Identity
	engine    EngineInfo
}

var build = &buildState{version: "dev", commit: "unknown", buildDate: "unknown"}

// SetVersionInfo records build metadata injected by main.
func SetVersionInfo(version, commit, buildDate string) {
	build.mu.Lock()
	defer build.mu.Unlock()
	build.version, build.commit, build.buildDate = version, commit, buildDate
}

func SetAppIdentity(identity *appidentity.Identity) {
	build.mu.Lock()
	defer build.mu.Unlock()
	build.identity = identity
}

// SetEngineInfo records the network and cover settings the agent runs with.
func SetEngineInfo(info EngineInfo) {
	build.mu.Lock()
	defer build.mu.Unlock()
	build.engine = info
}

// VersionResponse is the /version body.
type VersionResponse struct {
	App          AppInfo     `json:"app"`
	Engine       EngineInfo  `json:"engine"`
	Dependencies DepInfo     `json:"dependencies"`
	Runtime      RuntimeInfo `json:"runtime"`
}

type AppInfo struct {
	Name      string `json:"name"`
	Version   string `json:"version"`
	Commit    string `json:"git_commit"`
	BuildDate string `json:"build_date"`
	GoVersion string `json:"go_version,omitempty"`
}

// EngineInfo describes the running mimicry engine.
type EngineInfo struct {
	Network       string `json:"network,omitempty"`
	CoverTarget   int    `json:"cover_target"`
	DecoysEnabled bool   `json:"decoys_enabled"`
	PrivateRoute  bool   `json:"private_route"`
}

type DepInfo struct {
	Gofulmen string `json:"gofulmen"`
	Crucible string `json:"crucible"`
}

type RuntimeInfo struct {
	Platform      string `json:"platform"`
	NumCPU        int    `json:"num_cpu"`
	NumGoroutines int    `json:"num_goroutines"`
}

func (b *buildState) response() VersionResponse {
	b.mu.RLock()
	defer b.mu.RUnlock()

	name := "unknown"
	switch {
	case b.identity != nil && b.identity.BinaryName != "":
		name = b.identity.BinaryName
	case len(os.Args) > 0 && os.Args[0] != "":
		name = filepath.Base(os.Args[0])
	}

	deps := crucible.GetVersion()
	return VersionResponse{
		App: AppInfo{
			Name:      name,
			Version:   b.version,
			Commit:    b.commit,
			BuildDate: b.buildDate,
			GoVersion: runtime.Version(),
		},
		Engine:       b.engine,
		Dependencies: DepInfo{Gofulmen: deps.Gofulmen, Crucible: deps.Crucible},
		Runtime: RuntimeInfo{
			Platform:      runtime.GOOS + "/" + runtime.GOARCH,
			NumCPU:        runtime.NumCPU(),
			NumGoroutines: runtime.NumGoroutine(),
		},
	}
}

// VersionHandler serves build, engine and runtime metadata.
func VersionHandler(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, build.response())
}
