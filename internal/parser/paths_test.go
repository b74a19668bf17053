package parser

import "testing"

func TestProjectDirName(t *testing.T) {
	tests := []struct {
		workingDir, want string
	}{
		{"/Users/dev/code/myapp", "-Users-dev-code-myapp"},
		{"/a/b", "-a-b"},
		{"/", "-"},
	}
	for _, tt := range tests {
		if got := ProjectDirName(tt.workingDir); got != tt.want {
			t.Errorf("ProjectDirName(%q) = %q, want %q", tt.workingDir, got, tt.want)
		}
	}
}

func TestWorkingDirFromProjectDir(t *testing.T) {
	tests := []struct {
		projectDir, want string
	}{
		{"-Users-dev-code-myapp", "/Users/dev/code/myapp"},
		{"-a-b", "/a/b"},
		{"--a-b", "/a/b"},
		{"a-b", "/a/b"},
	}
	for _, tt := range tests {
		if got := WorkingDirFromProjectDir(tt.projectDir); got != tt.want {
			t.Errorf("WorkingDirFromProjectDir(%q) = %q, want %q", tt.projectDir, got, tt.want)
		}
	}
}

func TestProjectName(t *testing.T) {
	tests := []struct {
		workingDir, want string
	}{
		{"/Users/dev/code/myapp", "myapp"},
		{"/srv", "srv"},
		{"", "unknown"},
		{"/", "unknown"},
	}
	for _, tt := range tests {
		if got := ProjectName(tt.workingDir); got != tt.want {
			t.Errorf("ProjectName(%q) = %q, want %q", tt.workingDir, got, tt.want)
		}
	}
}
