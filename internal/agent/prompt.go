package agent

import (
	"encoding/json"
	"fmt"
	"strings"

	"workbench/internal/actions"
	"workbench/internal/storage"
)

// BuildSystemPrompt pins the model to the JSON contract and embeds the
// current workspace snapshot as context.
func BuildSystemPrompt(snap storage.Snapshot) string {
	ctx, err := json.Marshal(snap)
	if err != nil {
		ctx = []byte("{}")
	}
	return fmt.Sprintf(
		`你是工作台智能助理。你必须基于上下文数据给出清晰建议，并且仅输出 JSON，结构为: {"reply":"string","actions":[{"id":"string","type":"string","title":"string","reason":"string","payload":{},"requiresApproval":true}]}。`+
			`action type 只能使用: %s。`+
			`如果不需要动作，actions 返回空数组。`+
			`当前上下文: %s`,
		strings.Join(actions.Types(), ","),
		ctx,
	)
}
