package gallery

import (
	"fmt"
	"html/template"
	"io"
	"os"
	"path/filepath"
	"strings"
)

// Page — данные для отрисовки галереи.
type Page struct {
	Listing  Listing
	Captions Captions
	Models   []string // локальные модели для выпадающего списка
	Selected string
}

// CaptionID — id элемента подписи на странице.
func CaptionID(name string) string { return strings.ReplaceAll(name, ".", "_") }

func (p Page) caption(name string) string {
	if c := strings.TrimSpace(p.Captions[name]); c != "" {
		return c
	}
	return Placeholder
}

var funcs = template.FuncMap{"captionID": CaptionID}

const styles = `<style>
html { height: 100%; width: 100%; }
body { display: flex; flex-wrap: wrap; justify-content: flex-start; margin: 0; padding: 0;
  background-color: #333; color: white; font-family: arial,verdana,helvetica,sans-serif; }
a { color: #eee; text-decoration: none; }
a:hover { color: #ccc; }
figure { width: 320px; display: inline; white-space: nowrap; }
figure:hover { white-space: normal; }
figcaption { position: relative; width: inherit; overflow: hidden; text-overflow: ellipsis; background: #181818; }
header { width: 100%; background-color: #101010; }
header div { margin: 0 auto; width: 350px; }
.button { background: linear-gradient(to bottom, #e6e6e6 5%, #757575 100%); border-radius: 5px;
  display: inline-block; cursor: pointer; color: #505739; font-size: 14px; font-weight: bold; padding: 5px; }
.button:hover { background: linear-gradient(to bottom, #757575 5%, #e6e6e6 100%); }
</style>`

const searchScript = `<script>
let figures = document.querySelectorAll('figure');
function filterFigures(event) {
  if (event.key == "Escape") event.target.value = '';
  let term = (event.target.value || '').trim().toLowerCase();
  if (term.length == 0) term = ' ';
  figures.forEach(f => {
    const c = f.querySelector('figcaption');
    f.style.display = (!c || c.innerText.toLowerCase().includes(term)) ? 'inline-block' : 'none';
  });
}
const search = document.getElementById('search');
search.addEventListener('keyup', filterFigures, true);
search.addEventListener('click', e => { e.target.select(); filterFigures(e); }, true);
</script>`

var pageTmpl = template.Must(template.New("page").Funcs(funcs).Parse(`<!DOCTYPE html>
<html><head><meta charset="UTF-8"><title>Image Gallery</title>` + styles + `</head>
<body>
<header>
<label for="ai" style="position:absolute; left:5px; top:5px;">AI to use
  <select id="ai" onChange="switchAI(this.value)">
    <option value="lorem"{{if eq .Selected "lorem"}} selected{{end}}>Lorem Ipsum</option>
    <option value="openai"{{if eq .Selected "openai"}} selected{{end}}>OpenAI</option>
    <option value="gemini"{{if eq .Selected "gemini"}} selected{{end}}>Gemini</option>
    {{- range .Models}}
    <option value="{{.}}"{{if eq $.Selected .}} selected{{end}}>{{.}}</option>
    {{- end}}
  </select>
</label>
<div>
  <input class="search" placeholder="Search..." type="search" id="search">
  <a class="button" id="ai_caption_all" title="Caption all media on this page using AI">AI Caption All</a>
  <a class="button" id="save">Save Gallery</a>
</div>
</header>
{{- range .Listing.Images}}
<figure style="float: left; margin: 10px;" title="{{.}}">
  <img src="/images/{{.}}" alt="{{.}}" title="{{.}}" style="width: 320px;"><br>
  <figcaption contenteditable="true" id="{{captionID .}}">{{$.Caption .}}</figcaption>
  <a class="button ai-button" data-type="image" data-filename="{{.}}">Use AI</a>
</figure>
{{- end}}
{{- range .Listing.Audio}}
<figure style="float: left; margin: 10px;" title="{{.}}">
  <audio controls src="/media/{{.}}" title="{{.}}" style="width: 320px;"></audio><br>
  <figcaption contenteditable="true" id="{{captionID .}}">{{$.Caption .}}</figcaption>
  <a class="button ai-button ai-audio" data-type="audio" data-filename="{{.}}" style="display:none">Use AI</a>
</figure>
{{- end}}
<script>
function switchAI(val) {
  fetch('/model/' + encodeURIComponent(val)).then(r => r.json()).then(d => {
    document.querySelectorAll('.ai-audio').forEach(b => b.style.display = d.audio ? 'inline-block' : 'none');
  });
}
switchAI(document.getElementById('ai').value);
function describe(btn) {
  const name = btn.dataset.filename;
  const ele = document.getElementById(name.split('.').join('_'));
  btn.innerText = 'Please Wait...';
  return fetch('/describe/' + encodeURIComponent(name)).then(r => r.json()).then(d => {
    ele.textContent = d.description;
    btn.innerText = 'Re-Caption';
  }).catch(() => { btn.innerText = 'Error'; });
}
document.querySelectorAll('.ai-button').forEach(b => b.addEventListener('click', () => describe(b)));
document.querySelectorAll('figcaption').forEach(c => c.addEventListener('click', () => {
  if (c.textContent == "{{.Placeholder}}") c.textContent = '';
}));
document.getElementById('ai_caption_all').addEventListener('click', async e => {
  const ctl = e.target;
  ctl.innerText = 'Captioning...';
  const names = Array.from(document.querySelectorAll('.ai-button'))
    .filter(b => b.offsetParent !== null).map(b => b.dataset.filename);
  const res = await fetch('/caption-all', {method: 'POST', headers: {'Content-Type': 'application/json'},
    body: JSON.stringify({files: names})}).then(r => r.json());
  (res.results || []).forEach(r => {
    if (r.caption) document.getElementById(r.file.split('.').join('_')).textContent = r.caption;
  });
  ctl.innerText = 'Done';
});
document.getElementById('save').addEventListener('click', () => {
  const captions = {};
  document.querySelectorAll('figure').forEach(f => {
    const c = f.querySelector('figcaption');
    if (c) captions[f.title] = c.textContent;
  });
  fetch('/save', {method: 'POST', headers: {'Content-Type': 'application/json'},
    body: JSON.stringify({captions: captions})}).then(r => r.json()).then(d => alert('Saved ' + d.path));
});
</script>
` + searchScript + `
</body></html>
`))

// snapshotTmpl — статическая страница для папки: без выбора модели, кнопок и путей сервера.
var snapshotTmpl = template.Must(template.New("snapshot").Funcs(funcs).Parse(`<!DOCTYPE html>
<html><head><meta charset="UTF-8"><title>Image Gallery</title>` + styles + `</head>
<body>
<header><div><input class="search" placeholder="Search..." type="search" id="search"></div></header>
{{- range .Listing.Images}}
<figure style="float: left; margin: 10px;" title="{{.}}">
  <img src="{{.}}" alt="{{.}}" title="{{.}}" style="width: 320px;"><br>
  <figcaption id="{{captionID .}}">{{$.Caption .}}</figcaption>
</figure>
{{- end}}
{{- range .Listing.Audio}}
<figure style="float: left; margin: 10px;" title="{{.}}">
  <audio controls src="{{.}}" title="{{.}}" style="width: 320px;"></audio><br>
  <figcaption id="{{captionID .}}">{{$.Caption .}}</figcaption>
</figure>
{{- end}}
` + searchScript + `
</body></html>
`))

type view struct {
	Page
	Placeholder string
}

func (v view) Caption(name string) string { return v.caption(name) }

// RenderPage рисует интерактивную страницу-конструктор галереи.
func RenderPage(w io.Writer, p Page) error {
	return pageTmpl.Execute(w, view{Page: p, Placeholder: Placeholder})
}

// RenderSnapshot рисует статическую страницу с поиском для сохранения рядом с файлами.
func RenderSnapshot(w io.Writer, p Page) error {
	return snapshotTmpl.Execute(w, view{Page: p, Placeholder: Placeholder})
}

// SaveSnapshot атомарно записывает index.html в папку галереи и возвращает путь к нему.
func SaveSnapshot(dir string, p Page) (string, error) {
	tmp, err := os.CreateTemp(dir, ".index-*.html")
	if err != nil {
		return "", fmt.Errorf("save snapshot: %w", err)
	}
	tmpPath := tmp.Name()
	defer os.Remove(tmpPath)

	if err := RenderSnapshot(tmp, p); err != nil {
		_ = tmp.Close()
		return "", fmt.Errorf("render snapshot: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return "", fmt.Errorf("save snapshot: %w", err)
	}
	dst := filepath.Join(dir, SnapshotName)
	if err := os.Rename(tmpPath, dst); err != nil {
		return "", fmt.Errorf("save snapshot: %w", err)
	}
	return dst, nil
}
