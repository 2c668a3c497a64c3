package parse

import (
	"fmt"
	"sync"
	"unsafe"

	"github.com/alexaandru/go-sitter-forest/java"
	sitter "github.com/alexaandru/go-tree-sitter-bare"
)

var (
	languageCacheMu sync.Mutex
	languageCache   = map[string]*sitter.Language{}
)

// Language resolves a grammar by name (e.g. "java") to a tree-sitter
// Language handle, loading and caching it on first use.
func Language(name string) (*sitter.Language, error) {
	languageCacheMu.Lock()
	defer languageCacheMu.Unlock()

	if lang, ok := languageCache[name]; ok {
		return lang, nil
	}

	ptr, ok := languageLoader(name)
	if !ok {
		return nil, fmt.Errorf("unsupported grammar: %s", name)
	}

	lang := sitter.NewLanguage(ptr)
	languageCache[name] = lang

	return lang, nil
}

// languageLoader dispatches to the forest grammar's GetLanguage function.
// Only "java" is wired by default (spec's file filter default); add a case
// per additional forest subpackage a deployment wants to parse.
func languageLoader(name string) (unsafe.Pointer, bool) {
	switch name {
	case "java":
		return java.GetLanguage(), true
	default:
		return nil, false
	}
}
