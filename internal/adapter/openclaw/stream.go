package openclaw

import (
	"bufio"
	"io"
	"strings"

	"github.com/tidwall/gjson"
)

// Usage is the token accounting reported by the gateway.
type Usage struct {
	PromptTokens     int
	CompletionTokens int
	TotalTokens      int
}

// StreamResult is what a relayed completion produced.
type StreamResult struct {
	Content string
	Model   string
	Usage   *Usage
}

// RelayStream copies SSE lines from src to dst verbatim, calling flush after
// every event, and accumulates the assistant text from the deltas.
func RelayStream(src io.Reader, dst io.Writer, flush func()) (*StreamResult, error) {
	res := &StreamResult{}
	var content strings.Builder

	reader := bufio.NewReaderSize(src, 64<<10)
	for {
		line, err := reader.ReadString('\n')
		if len(line) > 0 {
			if _, werr := io.WriteString(dst, line); werr != nil {
				return res, werr
			}
			trimmed := strings.TrimRight(line, "\r\n")
			if trimmed == "" {
				flush()
			} else if data, ok := strings.CutPrefix(trimmed, "data:"); ok {
				observeChunk(strings.TrimSpace(data), res, &content)
			}
		}
		if err == io.EOF {
			flush()
			break
		}
		if err != nil {
			res.Content = content.String()
			return res, err
		}
	}
	res.Content = content.String()
	return res, nil
}

// ParseCompletion extracts the same fields from a non-streamed reply.
func ParseCompletion(body []byte) *StreamResult {
	res := &StreamResult{
		Content: gjson.GetBytes(body, "choices.0.message.content").String(),
		Model:   gjson.GetBytes(body, "model").String(),
	}
	res.Usage = usageFrom(gjson.GetBytes(body, "usage"))
	return res
}

func observeChunk(data string, res *StreamResult, content *strings.Builder) {
	if data == "" || data == "[DONE]" || !gjson.Valid(data) {
		return
	}
	chunk := gjson.Parse(data)
	content.WriteString(chunk.Get("choices.0.delta.content").String())
	if m := chunk.Get("model").String(); m != "" {
		res.Model = m
	}
	if u := usageFrom(chunk.Get("usage")); u != nil {
		res.Usage = u
	}
}

func usageFrom(v gjson.Result) *Usage {
	if !v.IsObject() {
		return nil
	}
	return &Usage{
		PromptTokens:     int(v.Get("prompt_tokens").Int()),
		CompletionTokens: int(v.Get("completion_tokens").Int()),
		TotalTokens:      int(v.Get("total_tokens").Int()),
	}
}
