package webhook

import (
	"github.com/tidwall/gjson"
	"github.com/tidwall/sjson"
)

// reducedPaths are the only event fields worth keeping when a payload is
// logged. GitHub PR events run to hundreds of kilobytes; the log line should
// not.
var reducedPaths = []string{
	"action",
	"number",
	"repository.full_name",
	"pull_request.number",
	"pull_request.title",
	"pull_request.user.login",
	"pull_request.head.sha",
	"pull_request.base.sha",
	"sender.login",
}

// ReducePayload projects a webhook payload down to the handful of fields the
// logs need. Invalid JSON comes back truncated verbatim.
func ReducePayload(body []byte) string {
	if !gjson.ValidBytes(body) {
		const max = 200
		if len(body) > max {
			return string(body[:max]) + "..."
		}
		return string(body)
	}

	out := "{}"
	for _, path := range reducedPaths {
		v := gjson.GetBytes(body, path)
		if !v.Exists() {
			continue
		}
		out, _ = sjson.Set(out, path, v.Value())
	}
	return out
}
