package report

import (
	"bytes"
	"html/template"

	"github.com/SamuelRCrider/leakguard/core"
)

type htmlRow struct {
	Index       int
	Target      string
	RuleName    string
	RiskLevel   core.RiskLevel
	Category    string
	MatchedText string
	Line        string
	FoundAt     string
}

type htmlData struct {
	Result        *core.DetectionResult
	GeneratedAt   string
	StartTime     string
	EndTime       string
	ShowSummary   bool
	ShowDetails   bool
	TotalFindings int
	FilteredCount int
	Risks         []levelCount
	Categories    []nameCount
	Targets       []nameCount
	Rows          []htmlRow
}

var htmlTemplate = template.Must(template.New("report").Parse(htmlLayout))

func renderHTML(v *view) ([]byte, error) {
	data := htmlData{
		Result:        v.result,
		GeneratedAt:   formatTime(v.generatedAt),
		StartTime:     formatTime(v.result.StartTime),
		EndTime:       formatEnd(v.result.EndTime),
		ShowSummary:   !v.opts.OmitSummary,
		ShowDetails:   !v.opts.OmitDetails,
		TotalFindings: v.summary.TotalFindings,
		FilteredCount: len(v.findings),
		Risks:         v.risks,
		Categories:    v.categories,
		Targets:       v.targets,
	}
	for i, f := range v.findings {
		data.Rows = append(data.Rows, htmlRow{
			Index:       i + 1,
			Target:      f.Target,
			RuleName:    f.RuleName,
			RiskLevel:   f.RiskLevel,
			Category:    f.Category,
			MatchedText: truncate(f.MatchedText, htmlMatchLimit),
			Line:        lineLabel(f.LineNumber),
			FoundAt:     formatTime(f.CreatedAt),
		})
	}

	var buf bytes.Buffer
	if err := htmlTemplate.Execute(&buf, data); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

const htmlLayout = `<!DOCTYPE html>
<html lang="zh-CN">
<head>
    <meta charset="UTF-8">
    <meta name="viewport" content="width=device-width, initial-scale=1.0">
    <title>敏感信息检测报告 - {{.Result.Name}}</title>
    <style>
        body { font-family: Arial, sans-serif; margin: 20px; background-color: #f5f5f5; }
        .container { max-width: 1200px; margin: 0 auto; background: white; padding: 20px; border-radius: 8px; }
        .header { border-bottom: 2px solid #3498db; padding-bottom: 20px; margin-bottom: 30px; }
        .section { margin-bottom: 30px; }
        .section-title { color: #2c3e50; border-left: 4px solid #3498db; padding-left: 10px; }
        .stats-grid { display: grid; grid-template-columns: repeat(auto-fit, minmax(180px, 1fr)); gap: 15px; }
        .stat-card { background: #667eea; color: white; padding: 20px; border-radius: 8px; text-align: center; }
        .stat-card.high { background: #e74c3c; }
        .stat-card.medium { background: #f39c12; }
        .stat-card.low { background: #27ae60; }
        .stat-number { font-size: 2em; font-weight: bold; }
        table { width: 100%; border-collapse: collapse; margin-top: 15px; }
        th, td { padding: 10px; text-align: left; border-bottom: 1px solid #ddd; }
        th { background-color: #3498db; color: white; }
        .risk-badge { padding: 4px 8px; border-radius: 12px; font-size: 0.8em; color: white; }
        .risk-badge.high { background-color: #e74c3c; }
        .risk-badge.medium { background-color: #f39c12; }
        .risk-badge.low { background-color: #27ae60; }
        .matched-text { font-family: monospace; background: #f8f9fa; padding: 2px 4px; }
        .footer { text-align: center; margin-top: 40px; color: #7f8c8d; }
    </style>
</head>
<body>
<div class="container">
    <div class="header">
        <h1>敏感信息检测报告</h1>
        <p>检测名称: {{.Result.Name}}</p>
        <p class="generated-at">生成时间: {{.GeneratedAt}}</p>
    </div>

    <div class="section">
        <h2 class="section-title">检测信息</h2>
        <table>
            <tr><th>项目ID</th><td>{{.Result.ProjectID}}</td></tr>
            <tr><th>开始时间</th><td>{{.StartTime}}</td></tr>
            <tr><th>结束时间</th><td>{{.EndTime}}</td></tr>
            <tr><th>检测状态</th><td>{{.Result.Status}}</td></tr>
            <tr><th>检测进度</th><td>{{.Result.FinishCount}}/{{.Result.TotalCount}}</td></tr>
        </table>
        {{- if .Result.TargetErrors}}
        <h3>失败目标</h3>
        <ul>
            {{- range .Result.TargetErrors}}
            <li>{{.Target}}: {{.Error}}</li>
            {{- end}}
        </ul>
        {{- end}}
    </div>
{{if .ShowSummary}}
    <div class="section">
        <h2 class="section-title">统计摘要</h2>
        <div class="stats-grid">
            <div class="stat-card"><div class="stat-number">{{.TotalFindings}}</div><div>总发现数</div></div>
            <div class="stat-card"><div class="stat-number">{{.FilteredCount}}</div><div>筛选结果</div></div>
            {{- range .Risks}}
            <div class="stat-card {{.Level}}"><div class="stat-number">{{.Count}}</div><div>{{.Level}} 风险</div></div>
            {{- end}}
        </div>
        <table>
            <thead><tr><th>分类</th><th>数量</th></tr></thead>
            <tbody>
            {{- range .Categories}}
                <tr><td>{{.Name}}</td><td>{{.Count}}</td></tr>
            {{- end}}
            </tbody>
        </table>
        <table>
            <thead><tr><th>目标</th><th>数量</th></tr></thead>
            <tbody>
            {{- range .Targets}}
                <tr><td>{{.Name}}</td><td>{{.Count}}</td></tr>
            {{- end}}
            </tbody>
        </table>
    </div>
{{end}}
{{- if and .ShowDetails .Rows}}
    <div class="section">
        <h2 class="section-title">详细发现 ({{len .Rows}} 项)</h2>
        <table>
            <thead>
                <tr><th>序号</th><th>目标</th><th>规则</th><th>风险等级</th><th>分类</th><th>匹配文本</th><th>行号</th><th>发现时间</th></tr>
            </thead>
            <tbody>
            {{- range .Rows}}
                <tr>
                    <td>{{.Index}}</td>
                    <td>{{.Target}}</td>
                    <td>{{.RuleName}}</td>
                    <td><span class="risk-badge {{.RiskLevel}}">{{.RiskLevel}}</span></td>
                    <td>{{.Category}}</td>
                    <td><code class="matched-text">{{.MatchedText}}</code></td>
                    <td>{{.Line}}</td>
                    <td>{{.FoundAt}}</td>
                </tr>
            {{- end}}
            </tbody>
        </table>
    </div>
{{- end}}

    <div class="footer"><p>此报告由 LeakGuard 自动生成</p></div>
</div>
</body>
</html>
`
