package export

import (
	"context"
	"fmt"
	"html/template"
	"io"
	"sort"
	"time"

	"github.com/coffersTech/loglens/internal/cache"
	"github.com/coffersTech/loglens/internal/index"
)

const reportTemplate = `<!doctype html><html><head><meta charset="utf-8">
<title>loglens report</title>
<style>
body{font-family:system-ui,Segoe UI,Arial,sans-serif;margin:20px;}
h1{margin:0 0 8px 0;}
.small{color:#666;font-size:12px;}
table{border-collapse:collapse;width:100%;margin-top:12px;}
th,td{border:1px solid #ddd;padding:6px;font-size:12px;vertical-align:top;}
th{background:#f6f6f6;text-align:left;position:sticky;top:0;}
code{background:#f2f2f2;padding:1px 4px;border-radius:4px;}
</style>
</head><body>
<h1>loglens report</h1>
<div class="small">Generated: {{.Generated}}</div>
<h2>Summary</h2>
<ul>
<li>Total matched rows: <code>{{.Total}}</code></li>
{{range .Levels}}<li>{{.Name}}: <code>{{.Count}}</code></li>
{{end}}</ul>
<h2>Preview (first up to {{.PreviewCap}} rows)</h2>
<table><thead><tr><th>#</th><th>Timestamp</th><th>Level</th><th>Message</th></tr></thead><tbody>
{{range .Rows}}<tr><td>{{.N}}</td><td>{{.Timestamp}}</td><td>{{.Level}}</td><td>{{.Message}}</td></tr>
{{end}}</tbody></table>
</body></html>
`

type levelCount struct {
	Name  string
	Count int
}

type reportRow struct {
	N         int
	Timestamp string
	Level     string
	Message   string
}

type reportData struct {
	Generated  string
	Total      int
	PreviewCap int
	Levels     []levelCount
	Rows       []reportRow
}

// writeHTML renders the tabular report: a per-level summary over every
// matched row and a preview table capped at htmlPreviewCap rows. The
// summary pass streams the same bounded windows as the preview, so the
// report never holds more than one window plus the preview in memory.
func writeHTML(ctx context.Context, w io.Writer, src RowSource, total int, progress func(done, total int64)) error {
	counts := make(map[uint8]int)
	previewCap := total
	if previewCap > htmlPreviewCap {
		previewCap = htmlPreviewCap
	}
	preview := make([]reportRow, 0, previewCap)

	err := eachWindow(ctx, src, total, func(start int, rows []cache.Row) error {
		for i, r := range rows {
			counts[r.Level]++
			if n := start + i; n < previewCap {
				preview = append(preview, reportRow{
					N:         n + 1,
					Timestamp: r.Timestamp,
					Level:     index.DecodeLevel(r.Level),
					Message:   r.Message,
				})
			}
		}
		if progress != nil {
			progress(int64(start+len(rows)), int64(total))
		}
		return nil
	})
	if err != nil {
		return err
	}

	levels := make([]levelCount, 0, len(counts))
	for lvl, c := range counts {
		levels = append(levels, levelCount{Name: index.DecodeLevel(lvl), Count: c})
	}
	sort.Slice(levels, func(i, j int) bool {
		if levels[i].Count != levels[j].Count {
			return levels[i].Count > levels[j].Count
		}
		return levels[i].Name < levels[j].Name
	})

	tmpl := template.Must(template.New("report").Parse(reportTemplate))
	data := reportData{
		Generated:  time.Now().Format("2006-01-02 15:04:05"),
		Total:      total,
		PreviewCap: htmlPreviewCap,
		Levels:     levels,
		Rows:       preview,
	}
	if err := tmpl.Execute(w, data); err != nil {
		return fmt.Errorf("export: %w", err)
	}
	return nil
}
