// Package retrieval provides ranked semantic search over the chunk store:
// query expansion, query embedding, cosine-similarity retrieval, and the
// pinned navigation merge.
package retrieval

// DefaultRules maps trigger words to the expansion terms appended to a
// query before embedding. Triggers match whole words, case-insensitively.
func DefaultRules() map[string][]string {
	return map[string][]string{
		"contact":    {"email", "social media", "github", "linkedin"},
		"reach":      {"contact", "email", "social media"},
		"hire":       {"contact", "resume", "experience", "skills"},
		"resume":     {"cv", "experience", "skills", "work history"},
		"cv":         {"resume", "experience", "skills"},
		"about":      {"bio", "background", "introduction"},
		"who":        {"about", "bio", "background"},
		"project":    {"portfolio", "work", "github"},
		"work":       {"experience", "projects", "portfolio"},
		"skill":      {"technology", "stack", "experience"},
		"skills":     {"technologies", "stack", "experience"},
		"blog":       {"article", "post", "writing"},
		"article":    {"blog", "post"},
		"go":         {"golang"},
		"golang":     {"go"},
		"database":   {"postgres", "sql", "storage"},
		"deploy":     {"deployment", "hosting", "infrastructure"},
		"kubernetes": {"k8s", "containers", "deployment"},
		"docker":     {"containers", "images"},
	}
}
