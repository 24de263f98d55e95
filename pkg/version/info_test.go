package version

import "testing"

func TestCurrent_Defaults(t *testing.T) {
	oldVersion := AppVersion
	oldCommit := GitCommit
	oldBuildTime := BuildTime
	t.Cleanup(func() {
		AppVersion = oldVersion
		GitCommit = oldCommit
		BuildTime = oldBuildTime
	})

	AppVersion = ""
	GitCommit = ""
	BuildTime = ""

	info := Current("")

	if info.Service != Unknown {
		t.Fatalf("expected service %q, got %q", Unknown, info.Service)
	}
	if info.Version != DevelopmentVersion {
		t.Fatalf("expected version %q, got %q", DevelopmentVersion, info.Version)
	}
	if info.Commit != Unknown {
		t.Fatalf("expected commit %q, got %q", Unknown, info.Commit)
	}
	if info.BuildTime != Unknown {
		t.Fatalf("expected build_time %q, got %q", Unknown, info.BuildTime)
	}
}

func TestInfo_String(t *testing.T) {
	info := Info{Service: "docstore", Version: "v1.4.0", Commit: "abc123", BuildTime: "2026-01-02T03:04:05Z"}

	want := "docstore@v1.4.0 (commit=abc123, build_time=2026-01-02T03:04:05Z)"
	if got := info.String(); got != want {
		t.Fatalf("expected %q, got %q", want, got)
	}
}
