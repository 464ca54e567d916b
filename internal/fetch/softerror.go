package fetch

import (
	"regexp"
	"strings"
)

// softErrorRule rewrites a literal 200 status when the body indicates an
// error page. Anchors, when present, must also appear in the body.
type softErrorRule struct {
	status   int
	patterns []*regexp.Regexp
	anchors  []string
}

// Rules apply in order; the first match wins.
var softErrorRules = []softErrorRule{
	{
		status: 404,
		patterns: []*regexp.Regexp{
			regexp.MustCompile(`(?i)\b404\b`),
			regexp.MustCompile(`(?i)not found`),
			regexp.MustCompile(`(?i)page not found`),
			regexp.MustCompile(`(?i)trang không tồn tại`),
			regexp.MustCompile(`(?i)không tìm thấy`),
		},
		anchors: []string{"404", "not found", "không tìm thấy"},
	},
	{
		status: 403,
		patterns: []*regexp.Regexp{
			regexp.MustCompile(`(?i)\b403\b`),
			regexp.MustCompile(`(?i)forbidden`),
			regexp.MustCompile(`(?i)access denied`),
			regexp.MustCompile(`(?i)permission denied`),
			regexp.MustCompile(`(?i)không có quyền`),
			regexp.MustCompile(`(?i)bị cấm`),
		},
	},
	{
		status: 500,
		patterns: []*regexp.Regexp{
			regexp.MustCompile(`(?i)\b500\b`),
			regexp.MustCompile(`(?i)internal server error`),
			regexp.MustCompile(`(?i)server error`),
			regexp.MustCompile(`(?i)lỗi máy chủ`),
		},
	},
	{
		status: 401,
		patterns: []*regexp.Regexp{
			regexp.MustCompile(`(?i)\b401\b`),
			regexp.MustCompile(`(?i)unauthorized`),
			regexp.MustCompile(`(?i)authentication required`),
			regexp.MustCompile(`(?i)chưa đăng nhập`),
		},
	},
}

// CorrectSoftError rewrites statusCode when a literal 200 carries an error
// page body. Any other status is returned unchanged.
func CorrectSoftError(statusCode int, body string) int {
	if statusCode != 200 {
		return statusCode
	}

	lower := strings.ToLower(body)

	for _, rule := range softErrorRules {
		matched := false
		for _, re := range rule.patterns {
			if re.MatchString(lower) {
				matched = true
				break
			}
		}
		if !matched {
			continue
		}
		if len(rule.anchors) > 0 {
			anchored := false
			for _, anchor := range rule.anchors {
				if strings.Contains(lower, anchor) {
					anchored = true
					break
				}
			}
			if !anchored {
				continue
			}
		}
		return rule.status
	}

	return statusCode
}
