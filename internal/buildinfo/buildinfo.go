// Package buildinfo reports the version stamped into the binary.
package buildinfo

import "runtime/debug"

// Set with -ldflags "-X prospector/internal/buildinfo.Version=...".
var (
    Version = "dev"
    Commit  = ""
    BuiltAt = ""
)

// Info returns the stamped values. A binary built without ldflags falls back
// to the VCS revision and time recorded by the Go toolchain.
func Info() map[string]string {
    commit, builtAt := Commit, BuiltAt
    if commit == "" || builtAt == "" {
        if bi, ok := debug.ReadBuildInfo(); ok {
            for _, s := range bi.Settings {
                switch {
                case s.Key == "vcs.revision" && commit == "":
                    commit = s.Value
                case s.Key == "vcs.time" && builtAt == "":
                    builtAt = s.Value
                }
            }
        }
    }
    return map[string]string{
        "version": Version,
        "commit":  commit,
        "builtAt": builtAt,
    }
}
