package handlers

import (
	"html/template"
	"io"

	"github.com/opensafely-core/reports/cmd/reports/service"
)

// reportPage is the shell the sanitized notebook content is embedded in.
// The content itself is marked safe: it has already been through the
// sanitizer, which is the single place escaping decisions live.
var reportPage = template.Must(template.New("report").Parse(`<!DOCTYPE html>
<html lang="en">
<head>
<meta charset="utf-8">
<meta name="viewport" content="width=device-width, initial-scale=1">
<title>{{.Title}} | OpenSAFELY: Reports</title>
<style>
.overflow-wrapper { overflow-x: auto; }
</style>
</head>
<body>
<article>
<header>
<h1>{{.Title}}</h1>
<p>Last updated: <time datetime="{{.LastUpdated}}">{{.LastUpdated}}</time></p>
</header>
{{.Content}}
</article>
</body>
</html>
`))

type reportPageData struct {
	Title       string
	LastUpdated string
	Content     template.HTML
}

func writeReportPage(w io.Writer, rendered *service.RenderedReport) error {
	return reportPage.Execute(w, reportPageData{
		Title:       rendered.Report.Title,
		LastUpdated: rendered.LastUpdated.Format("2 January 2006"),
		Content:     template.HTML(rendered.HTML),
	})
}
