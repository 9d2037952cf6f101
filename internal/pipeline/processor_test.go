package pipeline

import (
	"strings"
	"testing"
)

func TestSplitTextChunksWithOverlap(t *testing.T) {
	text := strings.Repeat("a", 2500)
	chunks := splitText(text, 1000, 100)

	if len(chunks) != 3 {
		t.Fatalf("期望 3 个分块，实际 %d 个", len(chunks))
	}
	if len([]rune(chunks[0])) != 1000 || len([]rune(chunks[1])) != 1000 {
		t.Errorf("前两个分块长度应为 1000，实际 %d / %d", len([]rune(chunks[0])), len([]rune(chunks[1])))
	}
	// 步长 900，末块覆盖 1800..2500
	if len([]rune(chunks[2])) != 700 {
		t.Errorf("末块长度应为 700，实际 %d", len([]rune(chunks[2])))
	}
}

func TestSplitTextShortInput(t *testing.T) {
	chunks := splitText("short text", 1000, 100)
	if len(chunks) != 1 || chunks[0] != "short text" {
		t.Fatalf("短文本应返回单个分块，实际: %v", chunks)
	}
}

func TestSplitTextEmptyInput(t *testing.T) {
	if chunks := splitText("", 1000, 100); len(chunks) != 0 {
		t.Fatalf("空文本不应产生分块，实际: %v", chunks)
	}
}

func TestSplitTextOverlapNotSmallerThanChunk(t *testing.T) {
	// 重叠大于等于块大小时退化为无重叠切分，避免死循环
	chunks := splitText(strings.Repeat("b", 30), 10, 10)
	if len(chunks) != 3 {
		t.Fatalf("期望 3 个分块，实际 %d 个", len(chunks))
	}
}

func TestSplitTextMultibyte(t *testing.T) {
	text := strings.Repeat("界", 15)
	chunks := splitText(text, 10, 2)
	for i, c := range chunks {
		for _, r := range c {
			if r != '界' {
				t.Fatalf("分块 %d 出现被截断的多字节字符: %q", i, c)
			}
		}
	}
}
