package slack

import (
	"fmt"

	goslack "github.com/slack-go/slack"
)

const maxBlockTextLength = 2900

var riskEmoji = map[string]string{
	"Low":      ":large_green_circle:",
	"Medium":   ":large_yellow_circle:",
	"High":     ":warning:",
	"Critical": ":rotating_light:",
}

// requestMarker is the stable text embedded in an approval-request message so
// FindRequestMessage can locate it later for threading.
func requestMarker(requestID string) string {
	return fmt.Sprintf("request-id: %s", requestID)
}

func requestURL(requestID, dashboardURL string) string {
	return fmt.Sprintf("%s/hitl/%s", dashboardURL, requestID)
}

// BuildApprovalRequestMessage creates Block Kit blocks for a pending HITL
// approval request.
func BuildApprovalRequestMessage(input ApprovalRequestInput, dashboardURL string) []goslack.Block {
	emoji := riskEmoji[input.RiskLevel]
	if emoji == "" {
		emoji = ":question:"
	}

	header := fmt.Sprintf("%s *Approval needed* — task `%s` (risk: %s)", emoji, input.TaskID, input.RiskLevel)
	blocks := []goslack.Block{
		goslack.NewSectionBlock(
			goslack.NewTextBlockObject(goslack.MarkdownType, header, false, false),
			nil, nil,
		),
	}

	if input.ProposedAction != "" {
		blocks = append(blocks, goslack.NewSectionBlock(
			goslack.NewTextBlockObject(goslack.MarkdownType, truncateForSlack(input.ProposedAction), false, false),
			nil, nil,
		))
	}

	blocks = append(blocks, goslack.NewContextBlock("",
		goslack.NewTextBlockObject(goslack.MarkdownType,
			fmt.Sprintf("agent: %s | %s", input.AgentID, requestMarker(input.RequestID)), false, false),
	))

	btn := goslack.NewButtonBlockElement("", "", goslack.NewTextBlockObject(goslack.PlainTextType, "Review & Decide", false, false))
	btn.URL = requestURL(input.RequestID, dashboardURL)
	blocks = append(blocks, goslack.NewActionBlock("", btn))

	return blocks
}

// BuildDecisionMessage creates Block Kit blocks for a recorded HITL decision.
func BuildDecisionMessage(input DecisionInput) []goslack.Block {
	header := fmt.Sprintf(":white_check_mark: *Approved* — task `%s`", input.TaskID)
	if !input.Approved {
		header = fmt.Sprintf(":x: *Rejected* — task `%s`", input.TaskID)
	}

	blocks := []goslack.Block{
		goslack.NewSectionBlock(
			goslack.NewTextBlockObject(goslack.MarkdownType, header, false, false),
			nil, nil,
		),
	}

	if input.Feedback != "" {
		blocks = append(blocks, goslack.NewSectionBlock(
			goslack.NewTextBlockObject(goslack.MarkdownType,
				fmt.Sprintf("*Feedback:*\n%s", truncateForSlack(input.Feedback)), false, false),
			nil, nil,
		))
	}
	if input.Reasoning != "" {
		blocks = append(blocks, goslack.NewContextBlock("",
			goslack.NewTextBlockObject(goslack.MarkdownType, truncateForSlack(input.Reasoning), false, false),
		))
	}

	return blocks
}

func truncateForSlack(text string) string {
	if len(text) <= maxBlockTextLength {
		return text
	}
	return text[:maxBlockTextLength] + "\n\n_... (truncated)_"
}
