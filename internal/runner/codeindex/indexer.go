package codeindex

import (
	"bufio"
	"context"
	"encoding/csv"
	"fmt"
	"go/ast"
	"go/parser"
	"go/token"
	"go/types"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"runtime"
	"strconv"
	"strings"
	"sync"
	"sync/atomic"

	"golang.org/x/sync/errgroup"
)

// Indexer walks a Go source tree and writes CSV inventories of its types,
// functions, struct fields and call sites. Files are parsed in parallel;
// each file's rows are buffered locally and appended to the shared writers
// under short per-table critical sections.
type Indexer struct{}

// NewIndexer creates a new indexer instance
func NewIndexer() *Indexer {
	return &Indexer{}
}

// Index parses every accepted .go file under root and writes types.csv,
// funcs.csv, fields.csv and calls.csv into the output directory. Files that
// fail to read or parse are skipped with a warning so one broken file never
// sinks the whole index.
func (ix *Indexer) Index(ctx context.Context, root, output string, includes, excludes []string) error {
	rootAbs, err := filepath.Abs(root)
	if err != nil {
		return fmt.Errorf("failed to resolve root %s: %w", root, err)
	}
	info, err := os.Stat(rootAbs)
	if err != nil {
		return fmt.Errorf("failed to stat root %s: %w", rootAbs, err)
	}
	if !info.IsDir() {
		return fmt.Errorf("root %s is not a directory", rootAbs)
	}
	if err := os.MkdirAll(output, 0o755); err != nil {
		return fmt.Errorf("failed to create output dir %s: %w", output, err)
	}

	filter := NewPathFilter(includes, excludes)
	files, err := collectGoFiles(rootAbs, filter)
	if err != nil {
		return err
	}
	slog.Info("Code index starting", slog.String("root", rootAbs), slog.Int("files", len(files)))

	tables, err := newTableSet(output)
	if err != nil {
		return err
	}

	var parsed atomic.Int64

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(runtime.GOMAXPROCS(0))
	for _, file := range files {
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			rows := parseFile(rootAbs, file)
			if rows == nil {
				return nil
			}
			if err := tables.append(rows); err != nil {
				return err
			}
			parsed.Add(1)
			return nil
		})
	}

	runErr := g.Wait()
	if err := tables.close(); err != nil && runErr == nil {
		runErr = err
	}
	if runErr != nil {
		return fmt.Errorf("code index failed: %w", runErr)
	}

	slog.Info("Code index finished",
		slog.Int64("parsed", parsed.Load()),
		slog.Int("total", len(files)),
		slog.String("output", output))
	return nil
}

func collectGoFiles(root string, filter *PathFilter) ([]string, error) {
	var files []string
	err := filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() || !strings.HasSuffix(d.Name(), ".go") {
			return nil
		}
		rel, rerr := filepath.Rel(root, path)
		if rerr != nil {
			rel = d.Name()
		}
		if filter.Accept(rel) {
			files = append(files, path)
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("failed to walk %s: %w", root, err)
	}
	return files, nil
}

// fileRows holds one parsed file's output before it is flushed to the shared
// writers in a single locked append per table.
type fileRows struct {
	types  [][]string
	funcs  [][]string
	fields [][]string
	calls  [][]string
}

// parseFile reads and parses one file. Unreadable or unparsable files return
// nil after a warning.
func parseFile(root, path string) *fileRows {
	src, err := os.ReadFile(path)
	if err != nil {
		slog.Warn("Skipping unreadable file", slog.String("file", path), slog.String("error", err.Error()))
		return nil
	}
	fset := token.NewFileSet()
	f, err := parser.ParseFile(fset, path, src, parser.ParseComments)
	if err != nil {
		slog.Warn("Skipping unparsable file", slog.String("file", path), slog.String("error", err.Error()))
		return nil
	}

	rel, err := filepath.Rel(root, path)
	if err != nil {
		rel = filepath.Base(path)
	}

	c := &fileCollector{
		fset: fset,
		pkg:  f.Name.Name,
		file: filepath.ToSlash(rel),
		rows: &fileRows{},
	}
	for _, decl := range f.Decls {
		switch d := decl.(type) {
		case *ast.GenDecl:
			if d.Tok != token.TYPE {
				continue
			}
			for _, spec := range d.Specs {
				if ts, ok := spec.(*ast.TypeSpec); ok {
					c.typeSpec(d, ts)
				}
			}
		case *ast.FuncDecl:
			c.funcDecl(d)
		}
	}
	return c.rows
}

// fileCollector accumulates rows for a single file.
type fileCollector struct {
	fset *token.FileSet
	pkg  string
	file string
	rows *fileRows
}

func (c *fileCollector) line(p token.Pos) string {
	return strconv.Itoa(c.fset.Position(p).Line)
}

func (c *fileCollector) typeSpec(decl *ast.GenDecl, spec *ast.TypeSpec) {
	name := spec.Name.Name
	qualified := c.pkg + "." + name
	doc := docSummary(spec.Doc)
	if doc == "" {
		doc = docSummary(decl.Doc)
	}
	c.rows.types = append(c.rows.types, []string{
		c.pkg, kindOf(spec), name, qualified,
		embedsOf(spec.Type), typeParamsOf(spec.TypeParams),
		doc, c.file, c.line(spec.Pos()),
	})

	switch t := spec.Type.(type) {
	case *ast.StructType:
		c.structFields(qualified, t)
	case *ast.InterfaceType:
		c.interfaceMethods(qualified, t)
	}
}

func (c *fileCollector) structFields(owner string, st *ast.StructType) {
	if st.Fields == nil {
		return
	}
	for _, field := range st.Fields.List {
		typ := types.ExprString(field.Type)
		tag := ""
		if field.Tag != nil {
			tag = strings.Trim(field.Tag.Value, "`")
		}
		doc := docSummary(field.Doc)
		if doc == "" {
			doc = docSummary(field.Comment)
		}
		if len(field.Names) == 0 {
			// Embedded field: the implicit name is the type itself.
			c.rows.fields = append(c.rows.fields, []string{
				owner, typ, typ, tag, "true", doc, c.file, c.line(field.Pos()),
			})
			continue
		}
		for _, n := range field.Names {
			c.rows.fields = append(c.rows.fields, []string{
				owner, n.Name, typ, tag, "false", doc, c.file, c.line(field.Pos()),
			})
		}
	}
}

func (c *fileCollector) interfaceMethods(owner string, it *ast.InterfaceType) {
	if it.Methods == nil {
		return
	}
	for _, m := range it.Methods.List {
		ft, ok := m.Type.(*ast.FuncType)
		if !ok || len(m.Names) == 0 {
			// Embedded interfaces are covered by the embeds column.
			continue
		}
		doc := docSummary(m.Doc)
		for _, n := range m.Names {
			c.rows.funcs = append(c.rows.funcs, []string{
				c.pkg, owner, n.Name, signature(n.Name, ft),
				paramsOf(ft), resultsOf(ft), doc, c.file, c.line(m.Pos()),
			})
		}
	}
}

func (c *fileCollector) funcDecl(d *ast.FuncDecl) {
	owner := ""
	if d.Recv != nil && len(d.Recv.List) > 0 {
		owner = c.pkg + "." + receiverBase(d.Recv.List[0].Type)
	}
	name := d.Name.Name
	c.rows.funcs = append(c.rows.funcs, []string{
		c.pkg, owner, name, signature(name, d.Type),
		paramsOf(d.Type), resultsOf(d.Type), docSummary(d.Doc), c.file, c.line(d.Pos()),
	})

	if d.Body == nil {
		return
	}
	caller := c.pkg + "." + name
	if owner != "" {
		caller = owner + "." + name
	}
	ast.Inspect(d.Body, func(n ast.Node) bool {
		call, ok := n.(*ast.CallExpr)
		if !ok {
			return true
		}
		c.rows.calls = append(c.rows.calls, []string{
			caller, types.ExprString(call.Fun), strconv.Itoa(len(call.Args)), c.file, c.line(call.Pos()),
		})
		return true
	})
}

// tableSet owns the four output CSVs.
type tableSet struct {
	types  *csvFile
	funcs  *csvFile
	fields *csvFile
	calls  *csvFile
}

func newTableSet(dir string) (*tableSet, error) {
	ts := &tableSet{}
	specs := []struct {
		dst    **csvFile
		name   string
		header []string
	}{
		{&ts.types, "types.csv", []string{"package", "kind", "name", "qualified", "embeds", "type_params", "doc", "file", "line"}},
		{&ts.funcs, "funcs.csv", []string{"package", "owner", "func", "signature", "params", "results", "doc", "file", "line"}},
		{&ts.fields, "fields.csv", []string{"struct", "field", "type", "tag", "embedded", "doc", "file", "line"}},
		{&ts.calls, "calls.csv", []string{"caller", "callee", "args", "file", "line"}},
	}
	for _, sp := range specs {
		f, err := newCSVFile(filepath.Join(dir, sp.name), sp.header)
		if err != nil {
			ts.close()
			return nil, err
		}
		*sp.dst = f
	}
	return ts, nil
}

func (t *tableSet) append(rows *fileRows) error {
	if err := t.types.append(rows.types); err != nil {
		return err
	}
	if err := t.fields.append(rows.fields); err != nil {
		return err
	}
	if err := t.funcs.append(rows.funcs); err != nil {
		return err
	}
	return t.calls.append(rows.calls)
}

func (t *tableSet) close() error {
	var first error
	for _, c := range []*csvFile{t.types, t.funcs, t.fields, t.calls} {
		if c == nil {
			continue
		}
		if err := c.close(); err != nil && first == nil {
			first = err
		}
	}
	return first
}

// csvFile is one output table: a csv writer guarded by its own mutex so
// parallel workers append whole-file batches without interleaving rows.
type csvFile struct {
	mu sync.Mutex
	f  *os.File
	bw *bufio.Writer
	w  *csv.Writer
}

func newCSVFile(path string, header []string) (*csvFile, error) {
	f, err := os.Create(path)
	if err != nil {
		return nil, fmt.Errorf("failed to create %s: %w", path, err)
	}
	bw := bufio.NewWriter(f)
	w := csv.NewWriter(bw)
	if err := w.Write(header); err != nil {
		f.Close()
		return nil, fmt.Errorf("failed to write header of %s: %w", path, err)
	}
	return &csvFile{f: f, bw: bw, w: w}, nil
}

func (c *csvFile) append(rows [][]string) error {
	if len(rows) == 0 {
		return nil
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	for _, row := range rows {
		if err := c.w.Write(row); err != nil {
			return err
		}
	}
	return nil
}

func (c *csvFile) close() error {
	c.w.Flush()
	if err := c.w.Error(); err != nil {
		c.f.Close()
		return err
	}
	if err := c.bw.Flush(); err != nil {
		c.f.Close()
		return err
	}
	return c.f.Close()
}

func kindOf(spec *ast.TypeSpec) string {
	if spec.Assign.IsValid() {
		return "alias"
	}
	switch t := spec.Type.(type) {
	case *ast.StructType:
		return "struct"
	case *ast.InterfaceType:
		return "interface"
	case *ast.FuncType:
		return "func"
	case *ast.MapType:
		return "map"
	case *ast.ArrayType:
		if t.Len == nil {
			return "slice"
		}
		return "array"
	case *ast.ChanType:
		return "chan"
	default:
		return "named"
	}
}

func embedsOf(expr ast.Expr) string {
	var embeds []string
	switch t := expr.(type) {
	case *ast.StructType:
		if t.Fields == nil {
			return ""
		}
		for _, f := range t.Fields.List {
			if len(f.Names) == 0 {
				embeds = append(embeds, types.ExprString(f.Type))
			}
		}
	case *ast.InterfaceType:
		if t.Methods == nil {
			return ""
		}
		for _, m := range t.Methods.List {
			if len(m.Names) == 0 {
				embeds = append(embeds, types.ExprString(m.Type))
			}
		}
	}
	return strings.Join(embeds, ", ")
}

func typeParamsOf(fl *ast.FieldList) string {
	if fl == nil || len(fl.List) == 0 {
		return ""
	}
	return "[" + fieldList(fl) + "]"
}

// signature renders "name(paramType,paramType)" the way operators will grep
// for it, one entry per declared parameter name.
func signature(name string, ft *ast.FuncType) string {
	var parts []string
	if ft.Params != nil {
		for _, p := range ft.Params.List {
			typ := types.ExprString(p.Type)
			n := len(p.Names)
			if n == 0 {
				n = 1
			}
			for i := 0; i < n; i++ {
				parts = append(parts, typ)
			}
		}
	}
	return name + "(" + strings.Join(parts, ",") + ")"
}

func paramsOf(ft *ast.FuncType) string {
	return fieldList(ft.Params)
}

func resultsOf(ft *ast.FuncType) string {
	return fieldList(ft.Results)
}

func fieldList(fl *ast.FieldList) string {
	if fl == nil {
		return ""
	}
	var parts []string
	for _, f := range fl.List {
		typ := types.ExprString(f.Type)
		if len(f.Names) == 0 {
			parts = append(parts, typ)
			continue
		}
		for _, n := range f.Names {
			parts = append(parts, n.Name+" "+typ)
		}
	}
	return strings.Join(parts, ", ")
}

func receiverBase(expr ast.Expr) string {
	switch t := expr.(type) {
	case *ast.StarExpr:
		return receiverBase(t.X)
	case *ast.IndexExpr:
		return receiverBase(t.X)
	case *ast.IndexListExpr:
		return receiverBase(t.X)
	case *ast.Ident:
		return t.Name
	default:
		return types.ExprString(expr)
	}
}

func docSummary(cg *ast.CommentGroup) string {
	if cg == nil {
		return ""
	}
	return strings.Join(strings.Fields(cg.Text()), " ")
}
