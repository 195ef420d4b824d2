package text

import "strings"

const DefaultMinRunes = 20

// Segment 一段待合成的文本，Seq 从 1 开始连续编号
type Segment struct {
	Seq  int
	Text string
}

type Segmenter struct {
	MinRunes int
}

func NewSegmenter(minRunes int) *Segmenter {
	if minRunes <= 0 {
		minRunes = DefaultMinRunes
	}
	return &Segmenter{MinRunes: minRunes}
}

// Split 把整段文本切分为有序的可朗读分段。
// 末尾缺少标点时补一个句号；按段落切分后在段落内按标点聚合，
// 缓冲达到 MinRunes 或段落结束时产出一个分段。
func (s *Segmenter) Split(input string) []Segment {
	if strings.TrimSpace(input) == "" {
		return nil
	}

	input = ensureTerminated(input)

	var pieces []string
	for _, para := range strings.Split(input, "\n") {
		if strings.TrimSpace(para) == "" {
			continue
		}
		pieces = append(pieces, s.splitParagraph(para)...)
	}

	segments := make([]Segment, 0, len(pieces))
	for i, piece := range pieces {
		segments = append(segments, Segment{Seq: i + 1, Text: piece})
	}
	return segments
}

func (s *Segmenter) splitParagraph(para string) []string {
	var (
		outputs []string
		buffer  []rune
		clause  []rune
	)

	flushBuffer := func() {
		if strings.TrimSpace(string(buffer)) != "" {
			outputs = append(outputs, string(buffer))
		}
		buffer = buffer[:0]
	}

	endClause := func() {
		if strings.TrimSpace(string(clause)) == "" {
			clause = clause[:0]
			return
		}
		buffer = append(buffer, clause...)
		clause = clause[:0]
		if len(buffer) >= s.MinRunes {
			flushBuffer()
		}
	}

	for _, r := range para {
		clause = append(clause, r)
		if isTerminator(r) {
			endClause()
		}
	}

	// 段落结尾可能没有标点，残留子句并入缓冲后整体产出
	endClause()
	flushBuffer()
	return outputs
}

func ensureTerminated(input string) string {
	runes := []rune(input)
	for i := len(runes) - 1; i >= 0; i-- {
		r := runes[i]
		if isTerminator(r) {
			return input
		}
		if !isSpace(r) {
			break
		}
	}
	return input + "。"
}

func isTerminator(r rune) bool {
	switch r {
	case '。', '！', '？', '；', '，', '.', '!', '?', ';':
		return true
	default:
		return false
	}
}

func isSpace(r rune) bool {
	switch r {
	case ' ', '\t', '\r', '\n':
		return true
	default:
		return false
	}
}
