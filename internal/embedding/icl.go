package embedding

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/maypok86/otter"
)

// ICLExample is a cached in-context-learning hint for one (language,
// target-snippet) pair: an instruction plus the examples judged most
// relevant to the target. Advisory only — a provider that doesn't
// consume ICL hints simply ignores this.
type ICLExample struct {
	Instruction      string
	SelectedExamples []string
	TargetSnippet    string
	SimilarityScore  float64
	Timestamp        time.Time
}

type languageTemplate struct {
	instruction string
	examples    []string
}

// defaultLanguageTemplates mirrors
// original_source/chunkhound/embeddings.py's ICLContextManager
// _language_templates: one instruction + a small example pool per
// language, falling back to "generic".
func defaultLanguageTemplates() map[string]languageTemplate {
	return map[string]languageTemplate{
		"python": {
			instruction: "Generate embeddings for Python code with understanding of classes, functions, and imports.",
			examples: []string{
				"class DataProcessor:\n    def process(self, data):\n        return data.strip()",
				"def calculate_metrics(values):\n    return {'mean': sum(values) / len(values)}",
			},
		},
		"javascript": {
			instruction: "Generate embeddings for JavaScript code with understanding of functions, objects, and async patterns.",
			examples: []string{
				"async function fetchData(url) {\n    const response = await fetch(url);\n    return response.json();\n}",
				"const userService = {\n    async getUser(id) {\n        return this.api.get(`/users/${id}`);\n    }\n};",
			},
		},
		"typescript": {
			instruction: "Generate embeddings for TypeScript code with understanding of types, interfaces, and generics.",
			examples: []string{
				"interface User {\n    id: number;\n    name: string;\n    email: string;\n}",
				"function processItems<T>(items: T[], processor: (item: T) => T): T[] {\n    return items.map(processor);\n}",
			},
		},
		"java": {
			instruction: "Generate embeddings for Java code with understanding of classes, methods, and annotations.",
			examples: []string{
				"@Service\npublic class UserService {\n    @Autowired\n    private UserRepository repository;\n}",
				"public class Calculator {\n    public int add(int a, int b) {\n        return a + b;\n    }\n}",
			},
		},
		"go": {
			instruction: "Generate embeddings for Go code with understanding of packages, interfaces, and goroutines.",
			examples: []string{
				"func (s *Service) Process(ctx context.Context, req Request) (Response, error) {\n    return s.handle(ctx, req)\n}",
				"type Store interface {\n    Get(id string) (*Record, error)\n    Put(r *Record) error\n}",
			},
		},
		"generic": {
			instruction: "Generate embeddings for code with semantic understanding of programming constructs.",
			examples: []string{
				"function process(data) {\n    return data.map(item => transform(item));\n}",
				"class Handler {\n    execute(request) {\n        return this.process(request.data);\n    }\n}",
			},
		},
	}
}

// ICLCache maps (language, hash(first-200-chars-of-target)) to the best
// example set for that target. Grounded on
// original_source/chunkhound/embeddings.py's ICLContextManager, with
// the capacity-bound eviction itself borrowed from
// mvp-joe-project-cortex's internal/graph/searcher.go fileCache
// (otter.MustBuilder, weight-based admission/eviction).
type ICLCache struct {
	mu        sync.Mutex
	entries   otter.Cache[string, ICLExample]
	templates map[string]languageTemplate
	threshold float64
}

// NewICLCache creates a cache with the given capacity and reuse
// threshold (default 0.8).
func NewICLCache(capacity int, threshold float64) *ICLCache {
	if capacity <= 0 {
		capacity = 100
	}
	if threshold <= 0 {
		threshold = 0.8
	}
	cache, err := otter.MustBuilder[string, ICLExample](capacity).Build()
	if err != nil {
		// otter only fails to build on an invalid (non-positive) capacity,
		// already guarded above.
		panic(fmt.Sprintf("embedding: build ICL cache: %v", err))
	}
	return &ICLCache{
		entries:   cache,
		templates: defaultLanguageTemplates(),
		threshold: threshold,
	}
}

func iclCacheKey(language, target string) string {
	snippet := target
	if len(snippet) > 200 {
		snippet = snippet[:200]
	}
	sum := sha256.Sum256([]byte(snippet))
	return language + ":" + hex.EncodeToString(sum[:8])
}

// ContextFor returns the ICL context for target in language, reusing a
// cached entry when its stored similarity against target meets the
// reuse threshold, otherwise computing and caching a fresh one.
func (c *ICLCache) ContextFor(language, target string) ICLExample {
	key := iclCacheKey(language, target)

	c.mu.Lock()
	defer c.mu.Unlock()

	if cached, ok := c.entries.Get(key); ok {
		if jaccardSimilarity(target, cached.TargetSnippet) >= c.threshold {
			return cached
		}
	}

	tmpl, ok := c.templates[strings.ToLower(language)]
	if !ok {
		tmpl = c.templates["generic"]
	}

	snippet := target
	if len(snippet) > 200 {
		snippet = snippet[:200]
	}

	entry := ICLExample{
		Instruction:      tmpl.instruction,
		SelectedExamples: selectBestExamples(tmpl.examples, target),
		TargetSnippet:    snippet,
		SimilarityScore:  1.0,
		Timestamp:        time.Now(),
	}

	c.entries.Set(key, entry)
	return entry
}

// selectBestExamples scores each candidate by Jaccard similarity against
// target and keeps the top two.
func selectBestExamples(examples []string, target string) []string {
	if len(examples) <= 2 {
		out := make([]string, len(examples))
		copy(out, examples)
		return out
	}

	type scored struct {
		score   float64
		example string
	}
	results := make([]scored, len(examples))
	for i, ex := range examples {
		results[i] = scored{score: jaccardSimilarity(target, ex), example: ex}
	}

	for i := 1; i < len(results); i++ {
		for j := i; j > 0 && results[j].score > results[j-1].score; j-- {
			results[j], results[j-1] = results[j-1], results[j]
		}
	}

	return []string{results[0].example, results[1].example}
}

// jaccardSimilarity scores two texts by whitespace-tokenized, lowercased
// Jaccard similarity.
func jaccardSimilarity(a, b string) float64 {
	if a == "" || b == "" {
		return 0
	}
	tokensA := tokenSet(a)
	tokensB := tokenSet(b)
	if len(tokensA) == 0 || len(tokensB) == 0 {
		return 0
	}

	intersection := 0
	for tok := range tokensA {
		if tokensB[tok] {
			intersection++
		}
	}
	union := len(tokensA) + len(tokensB) - intersection
	if union == 0 {
		return 0
	}
	return float64(intersection) / float64(union)
}

func tokenSet(s string) map[string]bool {
	fields := strings.Fields(strings.ToLower(s))
	set := make(map[string]bool, len(fields))
	for _, f := range fields {
		set[f] = true
	}
	return set
}
