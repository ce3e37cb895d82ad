package version

// version is injected at build time with -ldflags "-X github.com/xerc1155/xchain/pkg/version.version=...".
var version = "development"

func Version() string {
	if version == "" {
		panic("binary compiled with empty version")
	}
	return version
}
