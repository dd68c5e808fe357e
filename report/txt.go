package report

import (
	"bytes"
	"fmt"
	"strings"
)

var (
	txtBanner  = strings.Repeat("=", 65)
	txtDivider = strings.Repeat("-", 65)
)

func renderTXT(v *view) ([]byte, error) {
	var buf bytes.Buffer
	r := v.result

	buf.WriteString(txtBanner + "\n")
	buf.WriteString("                   敏感信息检测报告\n")
	buf.WriteString(txtBanner + "\n\n")

	buf.WriteString("检测信息:\n")
	fmt.Fprintf(&buf, "  检测名称: %s\n", r.Name)
	fmt.Fprintf(&buf, "  项目ID: %s\n", r.ProjectID)
	fmt.Fprintf(&buf, "  开始时间: %s\n", formatTime(r.StartTime))
	fmt.Fprintf(&buf, "  结束时间: %s\n", formatEnd(r.EndTime))
	fmt.Fprintf(&buf, "  检测状态: %s\n", r.Status)
	fmt.Fprintf(&buf, "  检测进度: %d/%d\n", r.FinishCount, r.TotalCount)
	fmt.Fprintf(&buf, "  生成时间: %s\n\n", formatTime(v.generatedAt))

	if !v.opts.OmitSummary {
		buf.WriteString("统计摘要:\n")
		fmt.Fprintf(&buf, "  总发现数: %d\n", v.summary.TotalFindings)
		fmt.Fprintf(&buf, "  筛选后: %d\n", len(v.findings))

		buf.WriteString("  风险等级分布:\n")
		for _, rc := range v.risks {
			fmt.Fprintf(&buf, "    %s: %d\n", rc.Level, rc.Count)
		}

		buf.WriteString("  分类分布:\n")
		for _, c := range v.categories {
			fmt.Fprintf(&buf, "    %s: %d\n", c.Name, c.Count)
		}

		buf.WriteString("  目标分布:\n")
		for _, t := range v.targets {
			fmt.Fprintf(&buf, "    %s: %d\n", t.Name, t.Count)
		}
		buf.WriteString("\n")
	}

	if len(r.TargetErrors) > 0 {
		buf.WriteString("失败目标:\n")
		for _, te := range r.TargetErrors {
			fmt.Fprintf(&buf, "  %s: %s\n", te.Target, te.Error)
		}
		buf.WriteString("\n")
	}

	if !v.opts.OmitDetails && len(v.findings) > 0 {
		buf.WriteString("详细发现:\n")
		buf.WriteString(txtDivider + "\n")

		for i, f := range v.findings {
			fmt.Fprintf(&buf, "发现 #%d:\n", i+1)
			fmt.Fprintf(&buf, "  目标: %s\n", f.Target)
			fmt.Fprintf(&buf, "  类型: %s\n", f.TargetType)
			fmt.Fprintf(&buf, "  规则: %s\n", f.RuleName)
			fmt.Fprintf(&buf, "  风险等级: %s\n", f.RiskLevel)
			fmt.Fprintf(&buf, "  分类: %s\n", f.Category)
			fmt.Fprintf(&buf, "  匹配文本: %s\n", truncate(f.MatchedText, txtMatchLimit))
			fmt.Fprintf(&buf, "  行号: %s\n", lineLabel(f.LineNumber))
			if f.Context != "" {
				fmt.Fprintf(&buf, "  上下文: %s\n", truncate(f.Context, txtContextLimit))
			}
			fmt.Fprintf(&buf, "  发现时间: %s\n", formatTime(f.CreatedAt))
			buf.WriteString(txtDivider + "\n")
		}
	}

	return buf.Bytes(), nil
}
