package chunker

import (
	"fmt"
	"strings"
	"testing"
)

// buildWords 生成由唯一单词组成的文本，总长度不小于 n 个字符。
func buildWords(n int) string {
	var b strings.Builder
	for i := 0; b.Len() < n; i++ {
		fmt.Fprintf(&b, "w%06d ", i)
	}
	return b.String()
}

func TestSplit_EmptyInput(t *testing.T) {
	if got := Split("", 1000, 100); len(got) != 0 {
		t.Fatalf("expected 0 chunks for empty input, got %d", len(got))
	}
	if got := Split("   \n\t  \n ", 1000, 100); len(got) != 0 {
		t.Fatalf("expected 0 chunks for whitespace input, got %d", len(got))
	}
}

func TestSplit_SmallInput(t *testing.T) {
	// 50 个字符的短文本应产生恰好一个分块，内容等于去除首尾空白后的输入
	text := "  This is a short document of about fifty chars.  "
	chunks := Split(text, 1000, 100)
	if len(chunks) != 1 {
		t.Fatalf("expected 1 chunk, got %d", len(chunks))
	}
	if chunks[0].Index != 0 {
		t.Errorf("expected index 0, got %d", chunks[0].Index)
	}
	if chunks[0].Content != strings.TrimSpace(text) {
		t.Errorf("expected content to equal trimmed input, got %q", chunks[0].Content)
	}
}

func TestSplit_ContiguousIndexes(t *testing.T) {
	chunks := Split(buildWords(20000), 1000, 100)
	if len(chunks) < 2 {
		t.Fatalf("expected multiple chunks, got %d", len(chunks))
	}
	for i, c := range chunks {
		if c.Index != i {
			t.Errorf("chunk %d has index %d", i, c.Index)
		}
		if c.Content == "" {
			t.Errorf("chunk %d has empty content", i)
		}
	}
}

func TestSplit_OverlapBetweenChunks(t *testing.T) {
	// 5000 字符、1000 token 窗口、100 token 重叠：至少 2 块，
	// 每块不超过 4000 字符，后一块的头部应出现在前一块的尾部
	chunks := Split(buildWords(5000), 1000, 100)
	if len(chunks) < 2 {
		t.Fatalf("expected at least 2 chunks, got %d", len(chunks))
	}
	for i, c := range chunks {
		if n := len([]rune(c.Content)); n > 4000 {
			t.Errorf("chunk %d has %d chars, budget is 4000", i, n)
		}
	}
	for i := 1; i < len(chunks); i++ {
		head := chunks[i].Content
		if len(head) > 200 {
			head = head[:200]
		}
		if !strings.Contains(chunks[i-1].Content, head) {
			t.Errorf("chunk %d head not found in chunk %d tail", i, i-1)
		}
	}
}

func TestSplit_ForwardProgressOnUnbrokenRun(t *testing.T) {
	// 回归：10000 字符的连续非空白文本必须终止并产生多个分块
	chunks := Split(strings.Repeat("x", 10000), 1000, 100)
	if len(chunks) < 2 {
		t.Fatalf("expected multiple chunks, got %d", len(chunks))
	}
	total := 0
	for i, c := range chunks {
		n := len([]rune(c.Content))
		if n > 4000 {
			t.Errorf("chunk %d has %d chars, budget is 4000", i, n)
		}
		total += n
	}
	if total < 10000 {
		t.Errorf("chunks cover %d chars, expected at least the full 10000", total)
	}
}

func TestSplit_OverlapNotSmallerThanWindow(t *testing.T) {
	// overlap >= 窗口时放弃重叠，扫描仍须前进并终止
	chunks := Split(buildWords(2000), 10, 20)
	if len(chunks) == 0 {
		t.Fatal("expected chunks, got none")
	}
	for i, c := range chunks {
		if c.Index != i {
			t.Errorf("chunk %d has index %d", i, c.Index)
		}
	}
}

func TestSplit_PrefersParagraphBreak(t *testing.T) {
	// 段落边界位于窗口 60% 之后时应优先作为切点
	para1 := strings.Repeat("a", 150) + ". " + strings.Repeat("b", 150)
	para2 := strings.Repeat("c", 300)
	text := para1 + "\n\n" + para2
	chunks := Split(text, 100, 0) // 400 字符窗口，空行在 302 处 (> 240)
	if len(chunks) < 2 {
		t.Fatalf("expected at least 2 chunks, got %d", len(chunks))
	}
	if chunks[0].Content != para1 {
		t.Errorf("expected first chunk to stop at the paragraph break, got %q", chunks[0].Content)
	}
}

func TestSplit_FallsBackToSentenceBoundary(t *testing.T) {
	// 无段落边界时退而使用句子边界
	sentence := strings.Repeat("a", 300) + ". "
	text := sentence + strings.Repeat("b", 300)
	chunks := Split(text, 100, 0) // 400 字符窗口，句点后空格在 301 处 (> 240)
	if len(chunks) < 2 {
		t.Fatalf("expected at least 2 chunks, got %d", len(chunks))
	}
	if !strings.HasSuffix(chunks[0].Content, ".") {
		t.Errorf("expected first chunk to end at sentence boundary, got tail %q", chunks[0].Content[len(chunks[0].Content)-10:])
	}
}

func TestSplit_NormalizesLineEndings(t *testing.T) {
	chunks := Split("line one   \r\nline two\r", 1000, 100)
	if len(chunks) != 1 {
		t.Fatalf("expected 1 chunk, got %d", len(chunks))
	}
	if strings.Contains(chunks[0].Content, "\r") {
		t.Error("expected carriage returns to be normalized away")
	}
	if strings.Contains(chunks[0].Content, "   \n") {
		t.Error("expected trailing spaces before newline to be trimmed")
	}
}

func TestSplit_Deterministic(t *testing.T) {
	text := buildWords(12000)
	a := Split(text, 1000, 100)
	b := Split(text, 1000, 100)
	if len(a) != len(b) {
		t.Fatalf("chunk counts differ: %d vs %d", len(a), len(b))
	}
	for i := range a {
		if a[i] != b[i] {
			t.Fatalf("chunk %d differs between runs", i)
		}
	}
}
