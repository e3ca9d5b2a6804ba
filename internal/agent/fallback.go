package agent

import (
	"encoding/json"
	"fmt"
	"time"

	"workbench/internal/actions"
	"workbench/internal/storage"
)

// FallbackResponse is the deterministic local reply used whenever the
// selected provider path fails. It always proposes exactly one approval-
// gated snapshot action so the next turn has fresh context.
func FallbackResponse(messages []Message, snap storage.Snapshot, cause error) (string, []actions.Proposal) {
	latestUser := "请根据当前工作台数据给出建议"
	for i := len(messages) - 1; i >= 0; i-- {
		if messages[i].Role == "user" {
			latestUser = messages[i].Content
			break
		}
	}

	reply := fmt.Sprintf(
		"我已读取当前工作台数据。你刚才说的是“%s”。当前未完成待办 %d 项、今日日程 %d 项。",
		latestUser, len(snap.PendingTodos), len(snap.TodayEvents),
	)
	if cause != nil {
		reply += fmt.Sprintf(" 模型服务暂不可用（%s），已切换为本地建议模式。", cause.Error())
	}

	proposal := actions.Proposal{
		ID:               fmt.Sprintf("snapshot-%d", time.Now().UnixMilli()),
		Type:             actions.TypeQuerySnapshot,
		Title:            "生成当前快照",
		Reason:           "用于后续进一步规划和动作确认",
		Payload:          json.RawMessage(`{}`),
		RequiresApproval: true,
	}
	return reply, []actions.Proposal{proposal}
}
