package flowline

// Version is the library version, overridable at build time with
// -ldflags "-X github.com/mroche14/flowline.Version=...".
var Version = "0.1.0"
