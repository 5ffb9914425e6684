package reduce

import (
	"regexp"
	"strings"

	"go.uber.org/zap"
	"golang.org/x/net/html"
	"golang.org/x/net/html/atom"
)

// tokenRun matches either one tag or one run of text between tags, so token
// chunking never splits inside a tag. The tag alternative also consumes an
// unterminated trailing "<...", so every input byte lands in some run.
var tokenRun = regexp.MustCompile(`<[^>]*>?|[^<]+`)

// ChunkContent splits content into fragments each within maxTokens. Semantic
// chunking along top-level blocks is preferred; it is only accepted when the
// blocks cover more than half of the content's tokens, otherwise the whole
// input is re-chunked by token runs. Any non-empty input yields at least one
// fragment.
func ChunkContent(raw string, maxTokens int) []string {
	if strings.TrimSpace(raw) == "" {
		return nil
	}
	if maxTokens <= 0 {
		maxTokens = 1
	}
	total := EstimateTokens(raw)
	if total <= maxTokens {
		return []string{raw}
	}

	blocks := topLevelBlocks(raw)
	var covered int
	for _, b := range blocks {
		covered += EstimateTokens(b)
	}
	if len(blocks) > 0 && covered*2 > total {
		return packBlocks(blocks, maxTokens)
	}

	zap.L().Debug("reduce: semantic chunking rejected, falling back to token runs",
		zap.Int("blocks", len(blocks)),
		zap.Int("covered_tokens", covered),
		zap.Int("total_tokens", total))
	return chunkByTokens(raw, maxTokens)
}

// topLevelBlocks returns the rendered direct element children of the body.
func topLevelBlocks(raw string) []string {
	doc, err := html.Parse(strings.NewReader(raw))
	if err != nil {
		return nil
	}
	body := findTag(doc, atom.Body)
	if body == nil {
		return nil
	}
	var blocks []string
	for c := body.FirstChild; c != nil; c = c.NextSibling {
		if c.Type != html.ElementNode {
			continue
		}
		if rendered := renderNode(c); strings.TrimSpace(rendered) != "" {
			blocks = append(blocks, rendered)
		}
	}
	return blocks
}

// packBlocks greedily packs blocks into chunks under the token budget.
// Blocks that alone exceed the budget are split by token runs.
func packBlocks(blocks []string, maxTokens int) []string {
	var chunks []string
	var current strings.Builder

	flush := func() {
		if current.Len() > 0 {
			chunks = append(chunks, current.String())
			current.Reset()
		}
	}

	for _, block := range blocks {
		if EstimateTokens(block) > maxTokens {
			flush()
			chunks = append(chunks, chunkByTokens(block, maxTokens)...)
			continue
		}
		if (current.Len()+len(block))/4 > maxTokens {
			flush()
		}
		current.WriteString(block)
	}
	flush()
	return chunks
}

// chunkByTokens splits raw content along tag/text run boundaries. Runs that
// alone exceed the budget are cut at character offsets.
func chunkByTokens(raw string, maxTokens int) []string {
	runs := tokenRun.FindAllString(raw, -1)
	maxChars := maxTokens * 4

	var chunks []string
	var current strings.Builder

	flush := func() {
		if current.Len() > 0 {
			chunks = append(chunks, current.String())
			current.Reset()
		}
	}

	for _, run := range runs {
		if EstimateTokens(run) > maxTokens {
			flush()
			for start := 0; start < len(run); start += maxChars {
				end := start + maxChars
				if end > len(run) {
					end = len(run)
				}
				chunks = append(chunks, run[start:end])
			}
			continue
		}
		if (current.Len()+len(run))/4 > maxTokens {
			flush()
		}
		current.WriteString(run)
	}
	flush()

	if len(chunks) == 0 && strings.TrimSpace(raw) != "" {
		chunks = []string{raw}
	}
	return chunks
}
