package codeindex

import (
	"context"
	"encoding/csv"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

const greeterSrc = `package demo

import "fmt"

// Greeter formats greetings for a named person.
type Greeter struct {
	// Name is who gets greeted.
	Name string ` + "`json:\"name\"`" + `
	Age  int
}

// Store persists greetings.
type Store interface {
	Save(name string) error
}

// Hello renders the greeting line.
func (g *Greeter) Hello() string {
	return fmt.Sprintf("hello %s", g.Name)
}

func run(s Store) {
	g := &Greeter{Name: "demo"}
	_ = s.Save(g.Hello())
}
`

func writeFile(t *testing.T, root, rel, content string) {
	t.Helper()
	path := filepath.Join(root, rel)
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		t.Fatalf("failed to create dir for %s: %v", rel, err)
	}
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("failed to write %s: %v", rel, err)
	}
}

func loadCSV(t *testing.T, path string) [][]string {
	t.Helper()
	f, err := os.Open(path)
	if err != nil {
		t.Fatalf("failed to open %s: %v", path, err)
	}
	defer f.Close()
	rows, err := csv.NewReader(f).ReadAll()
	if err != nil {
		t.Fatalf("failed to read %s: %v", path, err)
	}
	if len(rows) == 0 {
		t.Fatalf("%s has no header", path)
	}
	return rows
}

// findRow returns the first data row whose column col equals val, nil when
// absent.
func findRow(rows [][]string, col int, val string) []string {
	for _, r := range rows[1:] {
		if r[col] == val {
			return r
		}
	}
	return nil
}

func TestIndexWritesInventories(t *testing.T) {
	root := t.TempDir()
	output := filepath.Join(t.TempDir(), "index")

	writeFile(t, root, "greeter.go", greeterSrc)
	writeFile(t, root, "util/strings.go", "package util\n\nfunc Upper(s string) string { return s }\n")
	writeFile(t, root, "greeter_test.go", "package demo\n\nimport \"testing\"\n\nfunc TestHello(t *testing.T) {}\n")
	writeFile(t, root, "vendor/dep/dep.go", "package dep\n\ntype Dep struct{}\n")
	writeFile(t, root, "broken.go", "package demo\n\nfunc (\n")

	ix := NewIndexer()
	if err := ix.Index(context.Background(), root, output, nil, nil); err != nil {
		t.Fatalf("Index() error = %v", err)
	}

	types := loadCSV(t, filepath.Join(output, "types.csv"))
	if got := strings.Join(types[0], ","); got != "package,kind,name,qualified,embeds,type_params,doc,file,line" {
		t.Errorf("unexpected types.csv header %q", got)
	}
	greeter := findRow(types, 2, "Greeter")
	if greeter == nil {
		t.Fatal("expected a types.csv row for Greeter")
	}
	if greeter[1] != "struct" || greeter[3] != "demo.Greeter" || greeter[7] != "greeter.go" {
		t.Errorf("unexpected Greeter row %v", greeter)
	}
	if greeter[6] != "Greeter formats greetings for a named person." {
		t.Errorf("unexpected Greeter doc %q", greeter[6])
	}
	store := findRow(types, 2, "Store")
	if store == nil || store[1] != "interface" {
		t.Errorf("expected an interface row for Store, got %v", store)
	}
	if dep := findRow(types, 2, "Dep"); dep != nil {
		t.Errorf("expected the vendored type to be excluded, got %v", dep)
	}

	fields := loadCSV(t, filepath.Join(output, "fields.csv"))
	name := findRow(fields, 1, "Name")
	if name == nil {
		t.Fatal("expected a fields.csv row for Name")
	}
	if name[0] != "demo.Greeter" || name[2] != "string" || name[3] != `json:"name"` || name[4] != "false" {
		t.Errorf("unexpected Name row %v", name)
	}
	if name[5] != "Name is who gets greeted." {
		t.Errorf("unexpected Name doc %q", name[5])
	}
	if age := findRow(fields, 1, "Age"); age == nil || age[2] != "int" || age[3] != "" {
		t.Errorf("unexpected Age row %v", age)
	}

	funcs := loadCSV(t, filepath.Join(output, "funcs.csv"))
	hello := findRow(funcs, 2, "Hello")
	if hello == nil {
		t.Fatal("expected a funcs.csv row for Hello")
	}
	if hello[1] != "demo.Greeter" || hello[3] != "Hello()" || hello[5] != "string" {
		t.Errorf("unexpected Hello row %v", hello)
	}
	save := findRow(funcs, 2, "Save")
	if save == nil {
		t.Fatal("expected a funcs.csv row for the interface method Save")
	}
	if save[1] != "demo.Store" || save[3] != "Save(string)" || save[4] != "name string" || save[5] != "error" {
		t.Errorf("unexpected Save row %v", save)
	}
	if runRow := findRow(funcs, 2, "run"); runRow == nil || runRow[1] != "" || runRow[3] != "run(Store)" {
		t.Errorf("unexpected run row %v", runRow)
	}
	if upper := findRow(funcs, 2, "Upper"); upper == nil || upper[7] != "util/strings.go" {
		t.Errorf("expected the nested file path in the Upper row, got %v", upper)
	}
	if test := findRow(funcs, 2, "TestHello"); test != nil {
		t.Errorf("expected _test.go files to be excluded, got %v", test)
	}

	calls := loadCSV(t, filepath.Join(output, "calls.csv"))
	sprintf := findRow(calls, 1, "fmt.Sprintf")
	if sprintf == nil {
		t.Fatal("expected a calls.csv row for fmt.Sprintf")
	}
	if sprintf[0] != "demo.Greeter.Hello" || sprintf[2] != "2" {
		t.Errorf("unexpected fmt.Sprintf row %v", sprintf)
	}
	if saveCall := findRow(calls, 1, "s.Save"); saveCall == nil || saveCall[0] != "demo.run" || saveCall[2] != "1" {
		t.Errorf("unexpected s.Save row %v", saveCall)
	}
}

func TestIndexRootValidation(t *testing.T) {
	tmp := t.TempDir()
	file := filepath.Join(tmp, "not-a-dir.txt")
	if err := os.WriteFile(file, []byte("x"), 0o644); err != nil {
		t.Fatal(err)
	}

	tests := []struct {
		name    string
		root    string
		wantSub string
	}{
		{"missing root", filepath.Join(tmp, "nope"), "failed to stat root"},
		{"root is a file", file, "is not a directory"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := NewIndexer().Index(context.Background(), tt.root, filepath.Join(tmp, "out"), nil, nil)
			if err == nil {
				t.Fatal("expected an error")
			}
			if !strings.Contains(err.Error(), tt.wantSub) {
				t.Errorf("error %q does not mention %q", err, tt.wantSub)
			}
		})
	}
}

func TestIndexHonorsIncludes(t *testing.T) {
	root := t.TempDir()
	output := filepath.Join(t.TempDir(), "index")

	writeFile(t, root, "keep/a.go", "package keep\n\nfunc A() {}\n")
	writeFile(t, root, "drop/b.go", "package drop\n\nfunc B() {}\n")

	if err := NewIndexer().Index(context.Background(), root, output, []string{"keep/**"}, nil); err != nil {
		t.Fatalf("Index() error = %v", err)
	}

	funcs := loadCSV(t, filepath.Join(output, "funcs.csv"))
	if findRow(funcs, 2, "A") == nil {
		t.Error("expected the included file to be indexed")
	}
	if findRow(funcs, 2, "B") != nil {
		t.Error("expected the non-included file to be skipped")
	}
}
