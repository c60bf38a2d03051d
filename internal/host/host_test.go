package host

import (
	"runtime"
	"testing"
)

func TestDetectMapsGoArch(t *testing.T) {
	cases := []struct {
		goos, goarch string
		want         Host
	}{
		{"darwin", "arm64", Host{PlatformDarwin, ArchAarch64}},
		{"linux", "amd64", Host{PlatformLinux, ArchX86_64}},
		{"linux", "riscv64", Host{PlatformLinux, Arch("riscv64")}},
	}
	for _, tc := range cases {
		if got := Detect(tc.goos, tc.goarch); got != tc.want {
			t.Fatalf("Detect(%s, %s) = %v, want %v", tc.goos, tc.goarch, got, tc.want)
		}
	}
}

func TestCurrentMatchesRuntime(t *testing.T) {
	if got := Current(); got != Detect(runtime.GOOS, runtime.GOARCH) {
		t.Fatalf("unexpected current host %v", got)
	}
}

func TestKnown(t *testing.T) {
	if !(Host{PlatformLinux, ArchAarch64}).Known() {
		t.Fatalf("linux/aarch64 should be known")
	}
	if (Host{Platform("plan9"), ArchX86_64}).Known() {
		t.Fatalf("plan9 should not be known")
	}
	if (Host{PlatformDarwin, Arch("mips")}).Known() {
		t.Fatalf("mips should not be known")
	}
}
