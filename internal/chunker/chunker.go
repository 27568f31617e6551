// Package chunker 将提取出的长文本切分为带重叠的、受 token 预算约束的文本分块。
// 切分是纯函数：无 I/O、确定性，相同输入永远产生相同分块。
package chunker

import (
	"regexp"
	"strings"
)

// charsPerToken 是 token 预算到字符预算的近似换算比例。
const charsPerToken = 4

// cutThreshold 是优先切点（段落/句子边界）允许出现的最早位置，占窗口长度的比例。
const cutThreshold = 0.6

// Chunk 是一个文本分块。Index 在单个文档内从 0 开始且连续。
type Chunk struct {
	Index   int
	Content string
}

var trailingSpaceRe = regexp.MustCompile(`[ \t]+\n`)

// Split 将文本切分为有序分块序列。
// maxTokens 为单块 token 预算，overlapTokens 为相邻分块的重叠 token 数。
// 空白输入产生零个分块；非空输入至少产生一个分块，且扫描位置每轮严格前进，
// 即使 overlap 不小于窗口、或单个连续 token 超出预算也能终止。
func Split(text string, maxTokens, overlapTokens int) []Chunk {
	maxChars := maxTokens * charsPerToken
	overlapChars := overlapTokens * charsPerToken
	if maxChars <= 0 {
		return nil
	}

	runes := []rune(normalize(text))
	if len(runes) == 0 {
		return nil
	}

	var chunks []Chunk
	start := 0
	for start < len(runes) {
		end := start + maxChars
		last := end >= len(runes)
		if last {
			end = len(runes)
		}
		window := runes[start:end]

		// 窗口已覆盖到文本末尾时不再寻找切点，整体作为最后一块
		cut := len(window)
		if !last {
			cut = findCut(window)
		}

		piece := strings.TrimSpace(string(window[:cut]))
		if piece != "" {
			chunks = append(chunks, Chunk{Index: len(chunks), Content: piece})
		}
		if last {
			break
		}

		// 回退 overlap 形成上下文衔接窗口；回退导致不前进时放弃重叠，保证终止
		advance := cut - overlapChars
		if advance <= 0 {
			advance = cut
		}
		start += advance
	}
	return chunks
}

// findCut 在窗口内按级联偏好选择切点：
// 段落边界（空行）≥ 60% 窗口处，其次句子边界（句点+空格）同阈值，
// 其次最后一个词边界（空格），否则硬切整个窗口。
// 返回值保证 ≥ 1，扫描因此必定前进。
func findCut(window []rune) int {
	threshold := int(float64(len(window)) * cutThreshold)

	if cut := lastParagraphBreak(window); cut >= threshold && cut >= 1 {
		return cut
	}
	if cut := lastSentenceEnd(window); cut >= threshold && cut >= 1 {
		return cut
	}
	if cut := lastWordBoundary(window); cut >= 1 {
		return cut
	}
	return len(window)
}

// lastParagraphBreak 返回窗口内最后一个空行的起始位置，不存在时返回 -1。
func lastParagraphBreak(window []rune) int {
	for i := len(window) - 2; i >= 0; i-- {
		if window[i] == '\n' && window[i+1] == '\n' {
			return i
		}
	}
	return -1
}

// lastSentenceEnd 返回窗口内最后一个 “句点+空格” 之后的位置，不存在时返回 -1。
func lastSentenceEnd(window []rune) int {
	for i := len(window) - 2; i >= 0; i-- {
		if window[i] == '.' && window[i+1] == ' ' {
			return i + 1
		}
	}
	return -1
}

// lastWordBoundary 返回窗口内最后一个空格的位置，不存在时返回 -1。
func lastWordBoundary(window []rune) int {
	for i := len(window) - 1; i >= 0; i-- {
		if window[i] == ' ' || window[i] == '\n' || window[i] == '\t' {
			return i
		}
	}
	return -1
}

// normalize 统一换行符并去掉换行前的尾部空白。
func normalize(text string) string {
	text = strings.ReplaceAll(text, "\r\n", "\n")
	text = strings.ReplaceAll(text, "\r", "\n")
	return trailingSpaceRe.ReplaceAllString(text, "\n")
}
