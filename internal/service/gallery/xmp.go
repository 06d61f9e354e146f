package gallery

import (
	"bytes"
	"os"
	"strings"

	"golang.org/x/net/html"
)

var (
	xmpStart = []byte("<x:xmpmeta")
	xmpEnd   = []byte("</x:xmpmeta>")
)

// XMPKeywords возвращает ключевые слова dc:subject из встроенного XMP пакета через пробел.
// Нет файла, пакета или ключевых слов — пустая строка.
func XMPKeywords(path string) string {
	data, err := os.ReadFile(path)
	if err != nil {
		return ""
	}
	start := bytes.Index(data, xmpStart)
	if start < 0 {
		return ""
	}
	end := bytes.Index(data[start:], xmpEnd)
	if end < 0 {
		return ""
	}
	return subjectKeywords(data[start : start+end+len(xmpEnd)])
}

func subjectKeywords(packet []byte) string {
	z := html.NewTokenizer(bytes.NewReader(packet))
	var (
		inSubject, inItem bool
		words             []string
		cur               strings.Builder
	)
	for {
		switch z.Next() {
		case html.ErrorToken:
			return strings.Join(words, " ")
		case html.StartTagToken:
			name, _ := z.TagName()
			switch string(name) {
			case "dc:subject":
				inSubject = true
			case "rdf:li":
				if inSubject {
					inItem = true
					cur.Reset()
				}
			}
		case html.EndTagToken:
			name, _ := z.TagName()
			switch string(name) {
			case "dc:subject":
				inSubject = false
			case "rdf:li":
				if inItem {
					if w := strings.TrimSpace(cur.String()); w != "" {
						words = append(words, w)
					}
					inItem = false
				}
			}
		case html.TextToken:
			if inItem {
				cur.Write(z.Text())
			}
		}
	}
}
