package asset

import (
	"path/filepath"
	"testing"
)

func TestPagePath(t *testing.T) {
	got, err := PagePath(filepath.Join("out", "job-1"), 3)
	if err != nil {
		t.Fatal(err)
	}
	want := filepath.Join("out", "job-1", "pages", "page_3.png")
	if got != want {
		t.Errorf("期待値 %s, 実際の値 %s", want, got)
	}
	if !PageFileRegex.MatchString(filepath.Base(got)) {
		t.Errorf("%s が PageFileRegex に一致しません", got)
	}
}

func TestJobOutputDir(t *testing.T) {
	if _, err := JobOutputDir("out", ""); err == nil {
		t.Error("空のジョブIDはエラーになるべきです")
	}
	got, err := JobOutputDir("out", "abc")
	if err != nil {
		t.Fatal(err)
	}
	if got != filepath.Join("out", "abc") {
		t.Errorf("期待値 %s, 実際の値 %s", filepath.Join("out", "abc"), got)
	}
}

func TestPageFileRegex(t *testing.T) {
	tests := map[string]bool{
		"page_1.png":  true,
		"page_12.png": true,
		"page.png":    false,
		"page_x.png":  false,
		"pageA1.png":  false,
	}
	for name, want := range tests {
		if got := PageFileRegex.MatchString(name); got != want {
			t.Errorf("%s: 期待値 %v, 実際の値 %v", name, want, got)
		}
	}
}
