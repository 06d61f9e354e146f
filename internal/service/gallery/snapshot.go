package gallery

import (
	"io"
	"strings"

	"golang.org/x/net/html"
)

// Captions — подписи по имени файла.
type Captions map[string]string

// Placeholder — текст пустой подписи на странице.
const Placeholder = "Click to add searchable caption..."

// ParseSnapshot достаёт подписи из сохранённой страницы галереи.
// Ключ фигуры — alt картинки, title аудио или title самой фигуры; подпись — текст figcaption.
func ParseSnapshot(r io.Reader) (Captions, error) {
	doc, err := html.Parse(r)
	if err != nil {
		return nil, err
	}
	out := Captions{}
	var walk func(n *html.Node)
	walk = func(n *html.Node) {
		if n.Type == html.ElementNode && n.Data == "figure" {
			if key, caption, ok := figureCaption(n); ok {
				out[key] = caption
			}
			return
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}
	}
	walk(doc)
	return out, nil
}

func figureCaption(fig *html.Node) (string, string, bool) {
	var imgAlt, audioTitle string
	var caption *html.Node
	var find func(n *html.Node)
	find = func(n *html.Node) {
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			if c.Type == html.ElementNode {
				switch c.Data {
				case "img":
					if imgAlt == "" {
						imgAlt = attr(c, "alt")
					}
				case "audio":
					if audioTitle == "" {
						audioTitle = attr(c, "title")
					}
				case "figcaption":
					if caption == nil {
						caption = c
					}
				}
			}
			find(c)
		}
	}
	find(fig)

	key := imgAlt
	if key == "" {
		key = audioTitle
	}
	if key == "" {
		key = attr(fig, "title")
	}
	if key == "" || caption == nil {
		return "", "", false
	}
	text := strings.TrimSpace(textContent(caption))
	if text == Placeholder {
		text = ""
	}
	return key, text, true
}

func attr(n *html.Node, name string) string {
	for _, a := range n.Attr {
		if a.Key == name {
			return a.Val
		}
	}
	return ""
}

func textContent(n *html.Node) string {
	var sb strings.Builder
	var walk func(n *html.Node)
	walk = func(n *html.Node) {
		if n.Type == html.TextNode {
			sb.WriteString(n.Data)
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}
	}
	walk(n)
	return sb.String()
}
