package export

import (
	"bytes"
	"fmt"
	"html/template"
	"time"
)

// PrintDelay gives the print view time to lay out before the dialog opens.
const PrintDelay = 500 * time.Millisecond

const printCSS = `
  @page { margin: 2cm; size: auto; }
  html, body { margin: 0; padding: 0; background: #fff; width: 100%; }
  body { font-family: 'Georgia', 'Times New Roman', serif; padding: 40px; color: #000; line-height: 1.6; }
  .print-container { display: block; max-width: 800px; margin: 0 auto; }
  h1 { font-size: 24pt; font-weight: bold; margin: 0 0 20px 0; color: #000; border-bottom: 2px solid #000; padding-bottom: 10px; }
  h2 { font-size: 18pt; font-weight: bold; margin-top: 30px; margin-bottom: 15px; border-bottom: 1px solid #ddd; }
  h3 { font-size: 14pt; font-weight: bold; margin-top: 25px; margin-bottom: 10px; }
  p { margin-bottom: 1em; text-align: justify; }
  ul, ol { margin-bottom: 1em; margin-left: 2em; }
  li { margin-bottom: 0.5em; }
  blockquote { border-left: 4px solid #e5e7eb; padding-left: 16px; margin: 16px 0; font-style: italic; background-color: #f9fafb; padding: 12px 16px; color: #374151; display: block; }
  code { font-family: monospace; background-color: #f3f4f6; padding: 2px 4px; border-radius: 4px; font-size: 0.9em; color: #111827; border: 1px solid #e5e7eb; }
  pre { background-color: #f3f4f6; padding: 1em; border-radius: 4px; overflow-x: auto; margin-bottom: 1em; }
  strong { font-weight: 700; color: #000; }
  a { color: #000 !important; text-decoration: none !important; border-bottom: 1px dotted #000; }
  hr { border: 0; border-top: 1px solid #e5e7eb; margin: 32px 0; }
`

var printTemplate = template.Must(template.New("print").Parse(`<!DOCTYPE html>
<html>
<head>
<meta charset="utf-8">
<title>{{.Title}}</title>
<style>{{.CSS}}</style>
</head>
<body>
<div class="print-container">
<h1>{{.Title}}</h1>
{{.Body}}
</div>
<script>
window.onload = function() {
  setTimeout(function() { window.print(); }, {{.DelayMillis}});
};
</script>
</body>
</html>
`))

type printPage struct {
	Title       string
	CSS         template.CSS
	Body        template.HTML
	DelayMillis int64
}

// printDocument wraps rendered HTML in a standalone printable page.
func printDocument(title string, body []byte) ([]byte, error) {
	var buf bytes.Buffer
	err := printTemplate.Execute(&buf, printPage{
		Title:       title,
		CSS:         template.CSS(printCSS),
		Body:        template.HTML(body),
		DelayMillis: PrintDelay.Milliseconds(),
	})
	if err != nil {
		return nil, fmt.Errorf("print template: %w", err)
	}
	return buf.Bytes(), nil
}
