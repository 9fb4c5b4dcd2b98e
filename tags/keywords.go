package tags

// extKeywords lists the domain words tagged when they appear in a file of
// the given extension.
var extKeywords = map[string][]string{
	"go":   {"goroutine", "channel", "interface", "struct", "context", "mutex", "http", "grpc", "sql", "json"},
	"py":   {"django", "flask", "numpy", "pandas", "asyncio", "pytest", "decorator", "torch", "sklearn"},
	"js":   {"react", "node", "promise", "async", "express", "component", "webpack", "dom"},
	"ts":   {"react", "node", "promise", "async", "express", "component", "typescript", "angular"},
	"java": {"spring", "servlet", "thread", "stream", "maven", "junit", "hibernate"},
	"rs":   {"tokio", "async", "trait", "borrow", "lifetime", "unsafe", "serde"},
	"sql":  {"select", "join", "index", "transaction", "schema", "trigger", "view"},
	"md":   {"install", "usage", "api", "license", "todo", "changelog", "configuration"},
	"html": {"form", "script", "style", "table", "canvas", "iframe"},
	"pdf":  {"abstract", "methodology", "results", "conclusion", "theorem", "proof", "dataset", "appendix"},
	"txt":  {"todo", "notes", "summary", "meeting"},
	"docx": {"agenda", "summary", "proposal", "contract", "minutes"},
}

// programmingKeywords never become frequency tags.
var programmingKeywords = func() map[string]bool {
	m := map[string]bool{}
	for _, w := range []string{
		"func", "return", "var", "const", "import", "package", "class", "def", "self", "this",
		"function", "let", "int", "string", "bool", "true", "false", "nil", "null", "none",
		"else", "elif", "for", "while", "break", "continue", "switch", "case", "public",
		"private", "static", "void", "new", "struct", "type", "interface", "err", "if",
	} {
		m[w] = true
	}
	return m
}()
