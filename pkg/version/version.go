package version

// Version is the current version of lanpeek.
// Overridable at build time:
//   go build -ldflags="-X 'github.com/quyphuc2111/lanpeek/pkg/version.Version=v1.0.0'"
var Version = "dev"
