package policy

// DefaultRoutes map common task vocabulary to agent types when a project
// does not define its own routing.
var DefaultRoutes = []Route{
	{Agent: "reviewer", Keywords: []string{"review", "audit", "verify", "validate"}},
	{Agent: "tester", Keywords: []string{"test", "coverage", "regression"}},
	{Agent: "documenter", Keywords: []string{"document", "readme", "changelog", "docs"}},
}
