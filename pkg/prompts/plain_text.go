package prompts

import (
	"fmt"
	"strings"

	"github.com/ekaya-inc/ekaya-dbagent/pkg/models"
)

// RenderPlainText renders a pipeline result for plain-text callers: the
// answer, the SQL in sql mode, or the result table in rows mode and when
// the answer could not be written.
func RenderPlainText(res *models.PipelineResult, limits models.RenderLimits) string {
	if res.Failed() {
		if res.Err == nil {
			return "error\n"
		}
		return fmt.Sprintf("error at %s (%s): %s\n", res.Err.Stage, res.Err.Kind, res.Err.Message)
	}

	switch {
	case res.Mode == models.ModeSQL:
		return res.SQL + "\n"
	case res.Answer != nil && !res.Degraded:
		return strings.TrimSpace(res.Answer.Text) + "\n"
	}

	var b strings.Builder
	if res.Degraded {
		b.WriteString("The answer could not be written; showing the query result instead.\n\n")
	}
	b.WriteString(RenderResultTable(res.Result, limits))
	return b.String()
}
