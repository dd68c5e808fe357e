package report

import (
	"bytes"
	"encoding/csv"
	"strconv"
)

var csvHeader = []string{
	"序号", "目标", "目标类型", "规则名称", "风险等级", "分类",
	"匹配文本", "行号", "上下文", "发现时间",
}

// renderCSV writes one row per finding. CSV carries no generation time.
func renderCSV(v *view) ([]byte, error) {
	var buf bytes.Buffer
	w := csv.NewWriter(&buf)

	if err := w.Write(csvHeader); err != nil {
		return nil, err
	}

	if !v.opts.OmitDetails {
		for i, f := range v.findings {
			record := []string{
				strconv.Itoa(i + 1),
				f.Target,
				f.TargetType,
				f.RuleName,
				string(f.RiskLevel),
				f.Category,
				truncate(f.MatchedText, csvMatchLimit),
				lineLabel(f.LineNumber),
				truncate(f.Context, csvContextLimit),
				formatTime(f.CreatedAt),
			}
			if err := w.Write(record); err != nil {
				return nil, err
			}
		}
	}

	w.Flush()
	if err := w.Error(); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}
