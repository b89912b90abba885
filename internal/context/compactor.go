package context

import "strings"

// compact shrinks candidates whose token count exceeds threshold toward
// max(threshold, tokens*0.5), preferring the content of fenced code blocks
// when present. It returns the number of candidates it compressed.
func compact(candidates []Candidate, threshold int) int {
	ops := 0
	for i := range candidates {
		c := &candidates[i]
		if c.Tokens <= threshold {
			continue
		}

		target := tokens5050(c.Tokens, threshold)
		c.Content = compactContent(c.Content, target*4)
		c.Tokens = estimateTokens(c.Content)
		ops++
	}
	return ops
}

func tokens5050(tokens, threshold int) int {
	half := tokens / 2
	if half > threshold {
		return half
	}
	return threshold
}

// compactContent prefers fenced code block bodies; if none are present it
// falls back to a leading-prefix truncation.
func compactContent(content string, charBudget int) string {
	blocks := fencedCodeBlocks(content)
	if len(blocks) > 0 {
		var b strings.Builder
		for _, block := range blocks {
			if b.Len() >= charBudget {
				break
			}
			remaining := charBudget - b.Len()
			if len(block) > remaining {
				block = block[:remaining]
			}
			b.WriteString(block)
			b.WriteString("\n")
		}
		if b.Len() > 0 {
			return truncateToChars(b.String(), charBudget)
		}
	}
	return truncateToChars(content, charBudget)
}

func fencedCodeBlocks(content string) []string {
	lines := strings.Split(content, "\n")
	var blocks []string
	var cur []string
	inFence := false
	for _, line := range lines {
		if strings.HasPrefix(strings.TrimSpace(line), "```") {
			if inFence {
				blocks = append(blocks, strings.Join(cur, "\n"))
				cur = nil
			}
			inFence = !inFence
			continue
		}
		if inFence {
			cur = append(cur, line)
		}
	}
	return blocks
}

func truncateToChars(s string, n int) string {
	if n < 0 {
		n = 0
	}
	if len(s) <= n {
		return s
	}
	return s[:n]
}
