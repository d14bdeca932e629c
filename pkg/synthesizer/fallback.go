package synthesizer

import (
	"regexp"
	"strings"

	"github.com/parleyhq/parley/pkg/models"
)

// Text-pattern fallback applied when the oracle produced nothing parseable.
// It is a pure function of its inputs so identical malformed oracle output
// always synthesizes the same record.

var (
	douyinURLPattern = regexp.MustCompile(`https?://(?:v\.douyin\.com/[A-Za-z0-9]+|www\.douyin\.com/video/\d+|[^/\s]*douyin[^/\s]*/[^\s，。]+)`)
	videoFilePattern = regexp.MustCompile(`[\w./~-]+\.(?:mp4|mov|avi)`)
	titlePattern     = regexp.MustCompile(`(?:标题|title)[是:：]\s*([^，。,\n]+)`)
	descPattern      = regexp.MustCompile(`(?:描述|description)[是:：]\s*([^\n]+)`)
	topicPattern     = regexp.MustCompile(`(?:主题|topic)[是:：]\s*([^，。,\n]+)`)
)

// FallbackParse synthesizes a best-effort intent record from raw text using
// deterministic keyword and pattern scanning. snapshot carries the session's
// view of the active workflow so missing parameters can be computed without
// another oracle round trip.
func FallbackParse(text string, snapshot Snapshot) models.IntentRecord {
	lower := strings.ToLower(text)

	if isGreeting(lower) {
		return models.IntentRecord{
			Action:  models.ActionChat,
			Message: "Hello! I can download douyin content, generate copy, or publish videos. What would you like to do?",
		}
	}

	params := extractTextParameters(text)
	workflowType := guessWorkflowType(lower)

	record := models.IntentRecord{
		WorkflowType: workflowType,
		Parameters:   params,
	}

	if snapshot.Active() {
		record.MissingParameters = missingFrom(snapshot, params)
		if len(record.MissingParameters) == 0 && len(snapshot.RequiredParams) > 0 {
			record.Action = models.ActionExecute

			return record
		}

		record.Action = models.ActionNeedMoreInfo
		record.Message = "Please provide: " + strings.Join(record.MissingParameters, ", ")

		return record
	}

	if workflowType != "" {
		record.Action = models.ActionStart

		return record
	}

	record.Action = models.ActionNeedMoreInfo
	record.Message = "Please tell me what you would like to do. I can download douyin content, generate copy, or publish videos."

	return record
}

func isGreeting(lower string) bool {
	return containsAny(lower, "你好", "您好", "能做什么", "hello", "hi there", "what can you do")
}

func extractTextParameters(text string) map[string]any {
	params := make(map[string]any)

	if match := douyinURLPattern.FindString(text); match != "" {
		params["douyin_url"] = match
	}

	if match := videoFilePattern.FindString(text); match != "" {
		params["video_file"] = match
	}

	if match := titlePattern.FindStringSubmatch(text); match != nil {
		params["title"] = strings.TrimSpace(match[1])
	}

	if match := descPattern.FindStringSubmatch(text); match != nil {
		params["description"] = strings.TrimSpace(match[1])
	}

	if match := topicPattern.FindStringSubmatch(text); match != nil {
		params["topic"] = strings.TrimSpace(match[1])
	}

	return params
}

func guessWorkflowType(lower string) string {
	publish := containsAny(lower, "发布", "上传", "publish", "upload")
	video := containsAny(lower, "视频", "video")
	douyin := containsAny(lower, "抖音", "douyin")
	download := containsAny(lower, "下载", "download")
	copywriting := containsAny(lower, "文案", "内容", "copy", "caption")

	switch {
	case publish && (video || douyin):
		return "video-publish"
	case douyin && (copywriting || download):
		return "douyin-content-creation"
	case copywriting:
		return "content-generation"
	default:
		return ""
	}
}

// missingFrom computes which of the current step's required parameters are
// still absent after combining collected and freshly extracted values.
func missingFrom(snapshot Snapshot, extracted map[string]any) []string {
	missing := make([]string, 0)

	for _, name := range snapshot.RequiredParams {
		if _, ok := extracted[name]; ok {
			continue
		}

		if value, ok := snapshot.CollectedParameters[name]; ok && value != nil && value != "" {
			continue
		}

		missing = append(missing, name)
	}

	return missing
}
