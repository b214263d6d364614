// Package linter содержит анализатор, запрещающий аварийное завершение процесса
// вне main.main: трекер встраивается в чужие процессы и не должен их ронять.
package linter

import (
	"go/ast"
	"go/types"

	"golang.org/x/tools/go/analysis"
)

// zapPath — путь пакета zap, чьи методы Fatal* и Panic* завершают процесс.
const zapPath = "go.uber.org/zap"

var Analyzer = &analysis.Analyzer{
	Name: "noexit",
	Doc:  "reports builtin panic, log.Fatal, os.Exit and zap Fatal/Panic calls outside main.main",
	Run:  run,
}

var (
	logFatal = map[string]bool{"Fatal": true, "Fatalf": true, "Fatalln": true}
	zapExit  = map[string]bool{
		"Fatal": true, "Fatalf": true, "Fatalw": true, "Fatalln": true,
		"Panic": true, "Panicf": true, "Panicw": true, "Panicln": true,
	}
)

func run(pass *analysis.Pass) (interface{}, error) {
	for _, file := range pass.Files {
		pkgName := file.Name.Name
		for _, decl := range file.Decls {
			inMain := false
			if fDecl, ok := decl.(*ast.FuncDecl); ok {
				if fDecl.Body == nil {
					continue
				}
				inMain = pkgName == "main" && fDecl.Recv == nil && fDecl.Name.Name == "main"
			}
			ast.Inspect(decl, func(node ast.Node) bool {
				if call, ok := node.(*ast.CallExpr); ok {
					checkCall(pass, call, inMain)
				}
				return true
			})
		}
	}
	return nil, nil
}

// checkCall сообщает о вызове, если он завершает процесс.
//
// panic запрещён везде, включая main.main.
func checkCall(pass *analysis.Pass, call *ast.CallExpr, inMain bool) {
	switch fun := call.Fun.(type) {
	case *ast.Ident:
		if fun.Name != "panic" {
			return
		}
		// Встроенный panic не принадлежит ни одному пакету.
		if obj := pass.TypesInfo.Uses[fun]; obj != nil && obj.Pkg() == nil {
			pass.Reportf(fun.Pos(), "use of builtin panic is discouraged")
		}
	case *ast.SelectorExpr:
		if inMain {
			return
		}
		if path, ok := importedPackage(pass, fun); ok {
			switch {
			case path == "log" && logFatal[fun.Sel.Name],
				path == "os" && fun.Sel.Name == "Exit":
				pass.Reportf(fun.Sel.Pos(), "call to log.Fatal or os.Exit outside main.main")
			}
			return
		}
		if isZapMethod(pass, fun) && zapExit[fun.Sel.Name] {
			pass.Reportf(fun.Sel.Pos(), "call to zap %s outside main.main", fun.Sel.Name)
		}
	}
}

// importedPackage возвращает путь пакета для выражения вида pkg.Func.
func importedPackage(pass *analysis.Pass, sel *ast.SelectorExpr) (string, bool) {
	ident, ok := sel.X.(*ast.Ident)
	if !ok {
		return "", false
	}
	pkgName, ok := pass.TypesInfo.Uses[ident].(*types.PkgName)
	if !ok {
		return "", false
	}
	return pkgName.Imported().Path(), true
}

// isZapMethod проверяет, что sel — вызов метода типа из пакета zap.
func isZapMethod(pass *analysis.Pass, sel *ast.SelectorExpr) bool {
	selection, ok := pass.TypesInfo.Selections[sel]
	if !ok || selection.Kind() != types.MethodVal {
		return false
	}
	pkg := selection.Obj().Pkg()
	return pkg != nil && pkg.Path() == zapPath
}
