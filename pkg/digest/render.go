package digest

import (
	"bytes"
	"fmt"
	htmltemplate "html/template"
	texttemplate "text/template"
)

// Rendered is a digest ready for delivery or preview.
type Rendered struct {
	Subject string `json:"subject"`
	Text    string `json:"text"`
	HTML    string `json:"html"`
}

const textLayout = `{{.Title}} for {{.Date}}

TOP STORY
{{.Lead.Item.Title}}
{{.Lead.Blurb}}
{{.Lead.Item.URL}}
{{range .Rest}}
- {{.Item.Title}}{{if .Item.Origin}} ({{.Item.Origin}}){{end}}
  {{.Blurb}}
  {{.Item.URL}}
{{end}}`

const htmlLayout = `<!doctype html>
<html><body style="font-family:sans-serif;max-width:640px;margin:auto">
<h1>{{.Title}}</h1>
<p style="color:#666">{{.Date}}</p>
<div>
{{if .Lead.Item.ImageURL}}<img src="{{.Lead.Item.ImageURL}}" alt="" style="max-width:100%">{{end}}
<h2><a href="{{.Lead.Item.URL}}">{{.Lead.Item.Title}}</a></h2>
<p>{{.Lead.Blurb}}</p>
</div>
{{if .Rest}}<ul>
{{range .Rest}}<li><a href="{{.Item.URL}}">{{.Item.Title}}</a>{{if .Item.Origin}} <small>{{.Item.Origin}}</small>{{end}}<br>{{.Blurb}}</li>
{{end}}</ul>{{end}}
</body></html>`

var (
	textTmpl = texttemplate.Must(texttemplate.New("digest.txt").Parse(textLayout))
	htmlTmpl = htmltemplate.Must(htmltemplate.New("digest.html").Parse(htmlLayout))
)

// Render produces subject plus text and HTML bodies. title is the
// newsletter name, e.g. "NWSL Daily".
func Render(d *Digest, title string) (Rendered, error) {
	if d == nil {
		return Rendered{}, ErrNoStories
	}
	if title == "" {
		title = "Daily Digest"
	}

	data := struct {
		Title string
		Date  string
		Lead  Story
		Rest  []Story
	}{
		Title: title,
		Date:  d.Date.Format("Monday, January 2"),
		Lead:  d.Lead,
		Rest:  d.Rest,
	}

	var text, html bytes.Buffer
	if err := textTmpl.Execute(&text, data); err != nil {
		return Rendered{}, fmt.Errorf("render text digest: %w", err)
	}
	if err := htmlTmpl.Execute(&html, data); err != nil {
		return Rendered{}, fmt.Errorf("render html digest: %w", err)
	}

	return Rendered{
		Subject: fmt.Sprintf("%s: %s", title, d.Lead.Item.Title),
		Text:    text.String(),
		HTML:    html.String(),
	}, nil
}
