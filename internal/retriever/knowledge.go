package retriever

import (
	"encoding/xml"
	"strings"
)

// TerminologyCluster 一组同义词，第一个为主词
type TerminologyCluster struct {
	RootID      int64
	Words       []string
	Description string
	Score       float64
}

// Example 一条 SQL 示例
type Example struct {
	ID       int64
	Question string
	Answer   string
	Score    float64
}

// Knowledge 检索结果
type Knowledge struct {
	Terminologies []TerminologyCluster
	Examples      []Example
	Degraded      bool
}

type cdata struct {
	Text string `xml:",cdata"`
}

type xmlTerminologies struct {
	XMLName xml.Name         `xml:"terminologies"`
	Items   []xmlTerminology `xml:"terminology"`
}

type xmlTerminology struct {
	Words       []cdata `xml:"words>word"`
	Description cdata   `xml:"description"`
}

type xmlExamples struct {
	XMLName xml.Name     `xml:"sql-examples"`
	Items   []xmlExample `xml:"sql-example"`
}

type xmlExample struct {
	Question cdata `xml:"question"`
	Answer   cdata `xml:"suggestion-answer"`
}

// TerminologiesXML 术语提示词片段，无结果时为空串
func (k *Knowledge) TerminologiesXML() string {
	if k == nil || len(k.Terminologies) == 0 {
		return ""
	}
	doc := xmlTerminologies{Items: make([]xmlTerminology, 0, len(k.Terminologies))}
	for _, t := range k.Terminologies {
		item := xmlTerminology{Description: cdata{t.Description}}
		for _, w := range t.Words {
			item.Words = append(item.Words, cdata{w})
		}
		doc.Items = append(doc.Items, item)
	}
	return marshal(doc)
}

// ExamplesXML SQL 示例提示词片段，无结果时为空串
func (k *Knowledge) ExamplesXML() string {
	if k == nil || len(k.Examples) == 0 {
		return ""
	}
	doc := xmlExamples{Items: make([]xmlExample, 0, len(k.Examples))}
	for _, e := range k.Examples {
		doc.Items = append(doc.Items, xmlExample{Question: cdata{e.Question}, Answer: cdata{e.Answer}})
	}
	return marshal(doc)
}

var unescaper = strings.NewReplacer(
	"&lt;", "<",
	"&gt;", ">",
	"&amp;", "&",
	"&quot;", `"`,
	"&apos;", "'",
)

func marshal(v any) string {
	out, err := xml.MarshalIndent(v, "", "  ")
	if err != nil {
		return ""
	}
	return Unescape(string(out))
}

// Unescape 反复还原实体直到不再变化
func Unescape(s string) string {
	for {
		next := unescaper.Replace(s)
		if next == s {
			return s
		}
		s = next
	}
}
