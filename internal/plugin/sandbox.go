package plugin

import (
	"fmt"
	"go/parser"
	"go/token"
	"strconv"
	"strings"
)

// allowedImports is the whitelist of packages a plugin may import:
// pure text and data manipulation only. Everything reaching the
// filesystem, network, process table, or runtime is absent, so a
// hostile plugin is limited to burning its time budget.
var allowedImports = map[string]bool{
	"errors":       true,
	"fmt":          true,
	"math":         true,
	"regexp":       true,
	"sort":         true,
	"strconv":      true,
	"strings":      true,
	"unicode":      true,
	"unicode/utf8": true,
}

// vetSource parses the plugin source, rejects any import outside the
// whitelist, and returns the declared package name used for symbol
// lookup. Parsing the AST rather than scanning lines means aliased or
// dot imports cannot slip past the check.
func vetSource(filename string, src []byte) (string, error) {
	fset := token.NewFileSet()
	file, err := parser.ParseFile(fset, filename, src, parser.ImportsOnly)
	if err != nil {
		return "", fmt.Errorf("parse plugin: %w", err)
	}

	var forbidden []string
	for _, imp := range file.Imports {
		path, err := strconv.Unquote(imp.Path.Value)
		if err != nil {
			return "", fmt.Errorf("malformed import %s", imp.Path.Value)
		}
		if !allowedImports[path] {
			forbidden = append(forbidden, path)
		}
	}
	if len(forbidden) > 0 {
		return "", fmt.Errorf("forbidden imports: %s", strings.Join(forbidden, ", "))
	}

	return file.Name.Name, nil
}
