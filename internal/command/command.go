// Package command 解析问题文本末尾的快捷指令
package command

import (
	"fmt"
	"strconv"
	"strings"
	"unicode"

	"github.com/superfm831010/SQLBothp/common/utils"
	"github.com/superfm831010/SQLBothp/internal/types"
)

// Command 快捷指令
type Command string

const (
	None       Command = ""
	Regenerate Command = "regenerate"
	Analysis   Command = "analysis"
	Predict    Command = "predict"
)

// Token 指令在文本中的写法
func (c Command) Token() string {
	if c == None {
		return ""
	}
	return "/" + string(c)
}

var commands = map[string]Command{
	Regenerate.Token(): Regenerate,
	Analysis.Token():   Analysis,
	Predict.Token():    Predict,
}

// ParseError 指令解析失败
type ParseError struct {
	Message string
	Tokens  []string
}

func (e *ParseError) Error() string {
	return e.Message
}

// Unwrap 使 errors.Is(err, types.ErrParse) 成立
func (e *ParseError) Unwrap() error {
	return types.ErrParse
}

// Result 解析结果，失败时 Text 为原文且 Command 为 None
type Result struct {
	Command  Command
	Text     string
	TargetID *int64
	Err      *ParseError
}

// Error 以 error 形式返回解析错误
func (r Result) Error() error {
	if r.Err == nil {
		return nil
	}
	return r.Err
}

type word struct {
	text       string
	start, end int
}

// words 按空白切分并保留字节位置
func words(text string) []word {
	var out []word
	start := -1
	for i, r := range text {
		if unicode.IsSpace(r) {
			if start >= 0 {
				out = append(out, word{text: text[start:i], start: start, end: i})
				start = -1
			}
			continue
		}
		if start < 0 {
			start = i
		}
	}
	if start >= 0 {
		out = append(out, word{text: text[start:], start: start, end: len(text)})
	}
	return out
}

// Parse 解析快捷指令。指令必须是独立的词，且只能出现在文本末尾，后面可跟一个整数记录ID
func Parse(text string) Result {
	ws := words(text)

	var found []string
	first := -1
	for i, w := range ws {
		if _, ok := commands[w.text]; !ok {
			continue
		}
		if first < 0 {
			first = i
		}
		if !utils.SliceContains(found, w.text) {
			found = append(found, w.text)
		}
	}

	switch {
	case len(found) == 0:
		return Result{Text: text}
	case len(found) > 1:
		return fail(text, found, "multiple commands: "+strings.Join(found, ", "))
	}

	// 以第一次出现的位置为准，其后只允许一个记录ID
	cmd := commands[ws[first].text]
	trailing := ws[first+1:]
	var target *int64
	switch len(trailing) {
	case 0:
	case 1:
		if !isDigits(trailing[0].text) {
			return fail(text, found, fmt.Sprintf("unexpected content after %s: %q", cmd.Token(), trailing[0].text))
		}
		id, err := strconv.ParseInt(trailing[0].text, 10, 64)
		if err != nil {
			return fail(text, found, fmt.Sprintf("invalid record id after %s: %q", cmd.Token(), trailing[0].text))
		}
		target = &id
	default:
		return fail(text, found, fmt.Sprintf("%s must be at the end of the question", cmd.Token()))
	}

	return Result{
		Command:  cmd,
		Text:     strings.TrimRightFunc(text[:ws[first].start], unicode.IsSpace),
		TargetID: target,
	}
}

func fail(text string, tokens []string, msg string) Result {
	return Result{Text: text, Err: &ParseError{Message: msg, Tokens: tokens}}
}

func isDigits(s string) bool {
	if s == "" {
		return false
	}
	for _, r := range s {
		if r < '0' || r > '9' {
			return false
		}
	}
	return true
}
