package synthesizer

import (
	"strings"

	"github.com/parleyhq/parley/pkg/models"
)

// fieldMappings translates the oracle's free-form field vocabulary onto the
// canonical intent record fields. The oracle is only loosely bound to the
// documented vocabulary, so both the documented keys and the drift observed
// in practice are mapped. Keys outside the table pass through untouched.
var fieldMappings = map[string]string{
	"需求类型":  "workflow_type",
	"下一步操作": "action",
	"提取的信息": "parameters",
	"还需要的信息": "missing_parameters",
	"回复用户":  "message",
	"分析说明":  "reasoning",

	"workflow_type":      "workflow_type",
	"task_type":          "workflow_type",
	"action":             "action",
	"next_action":        "action",
	"all_params":         "parameters",
	"params":             "parameters",
	"parameters":         "parameters",
	"extracted_info":     "parameters",
	"missing_params":     "missing_parameters",
	"missing_parameters": "missing_parameters",
	"missing_info":       "missing_parameters",
	"question":           "message",
	"message":            "message",
	"response":           "message",
	"reply":              "message",
	"reasoning":          "reasoning",
	"analysis":           "reasoning",
}

// paramMappings translates parameter names inside the extracted-info object.
var paramMappings = map[string]string{
	"账号": "account",
	"平台": "platform",
	"文件": "video_file",
	"标题": "title",
	"描述": "description",
	"链接": "douyin_url",
	"主题": "topic",

	"file":      "video_file",
	"file_path": "video_file",
	"url":       "douyin_url",
	"link":      "douyin_url",
}

// mapRecord converts a raw oracle object into a canonical intent record.
// Unknown top-level keys are preserved in Extra so no information is dropped.
func mapRecord(raw map[string]any) models.IntentRecord {
	record := models.IntentRecord{
		Parameters: make(map[string]any),
	}

	for key, value := range raw {
		canonical, known := fieldMappings[key]
		if !known {
			if record.Extra == nil {
				record.Extra = make(map[string]any)
			}

			record.Extra[key] = value

			continue
		}

		switch canonical {
		case "workflow_type":
			if s, ok := value.(string); ok {
				record.WorkflowType = s
			}
		case "action":
			record.Action = normalizeAction(stringify(value))
		case "parameters":
			if params, ok := value.(map[string]any); ok {
				record.Parameters = mapParameters(params)
			}
		case "missing_parameters":
			record.MissingParameters = toStringList(value)
		case "message":
			record.Message = stringify(value)
		case "reasoning":
			record.Reasoning = stringify(value)
		}
	}

	if record.Action == "" {
		record.Action = models.ActionNeedMoreInfo
	}

	return record
}

func mapParameters(params map[string]any) map[string]any {
	mapped := make(map[string]any, len(params))

	for key, value := range params {
		canonical, known := paramMappings[strings.ToLower(key)]
		if !known {
			canonical = key
		}

		mapped[canonical] = value
	}

	return mapped
}

// normalizeAction classifies the oracle's description of the next step into
// one of the canonical actions. Anything unmatched falls back to
// need_more_info, the only action that can never trigger execution.
func normalizeAction(text string) models.Action {
	if text == "" {
		return models.ActionNeedMoreInfo
	}

	lower := strings.ToLower(text)

	switch {
	case containsAny(lower, "开始", "新任务", "start", "begin", "new task"):
		return models.ActionStart
	case containsAny(lower, "继续", "continue", "resume"):
		return models.ActionContinue
	case containsAny(lower, "执行", "齐全", "execute", "run", "sufficient", "proceed"):
		return models.ActionExecute
	case containsAny(lower, "询问", "更多", "ask", "more info", "need"):
		return models.ActionNeedMoreInfo
	case containsAny(lower, "对话", "聊天", "chat", "conversation", "talk"):
		return models.ActionChat
	case containsAny(lower, "澄清", "clarify"):
		return models.ActionClarify
	default:
		return models.ActionNeedMoreInfo
	}
}

func containsAny(text string, keywords ...string) bool {
	for _, keyword := range keywords {
		if strings.Contains(text, keyword) {
			return true
		}
	}

	return false
}

func stringify(value any) string {
	if s, ok := value.(string); ok {
		return s
	}

	return ""
}

func toStringList(value any) []string {
	list, ok := value.([]any)
	if !ok {
		return nil
	}

	out := make([]string, 0, len(list))

	for _, item := range list {
		if s, ok := item.(string); ok && s != "" {
			out = append(out, s)
		}
	}

	return out
}
