package ai

import (
	"go/parser"
	"go/token"
	"path/filepath"
	"strconv"
	"strings"
	"testing"
)

// The cloud engines must build without cgo, so nothing here may pull in the
// tesseract or opencv bindings.
func TestPackageHasNoCgoImports(t *testing.T) {
	files, err := filepath.Glob("*.go")
	if err != nil {
		t.Fatal(err)
	}
	banned := []string{"/internal/ocr/tesseract", "gosseract", "gocv.io"}
	fset := token.NewFileSet()
	for _, name := range files {
		f, err := parser.ParseFile(fset, name, nil, parser.ImportsOnly)
		if err != nil {
			t.Fatalf("parse %s: %v", name, err)
		}
		for _, imp := range f.Imports {
			path, _ := strconv.Unquote(imp.Path.Value)
			if path == "C" {
				t.Fatalf("%s uses cgo", name)
			}
			for _, b := range banned {
				if strings.Contains(path, b) {
					t.Fatalf("%s imports %s", name, path)
				}
			}
		}
	}
}
