package policy

import (
	"fmt"

	"github.com/stewardhq/steward/pkg/schema"
)

// ChatValidator is the policy capability set for the conversational
// workflow. Chat carries no structured parameters, so the only policy is an
// authenticated user.
type ChatValidator struct{}

// NewChatValidator returns the chat workflow validator.
func NewChatValidator() *ChatValidator {
	return &ChatValidator{}
}

func (v *ChatValidator) WorkflowType() schema.Intent {
	return schema.IntentChat
}

func (v *ChatValidator) RequiredFields(operationType string) []string {
	if operationType != "respond" {
		return []string{"operation_type"}
	}
	return nil
}

func (v *ChatValidator) AllowedValues(string) []string {
	return nil
}

func (v *ChatValidator) Constraints() map[string]string {
	return nil
}

func (v *ChatValidator) ValidatePermissions(operationType string, reqCtx map[string]any) []string {
	userID, _ := reqCtx["user_id"].(string)
	if userID == "" {
		return []string{fmt.Sprintf("operation %q requires an authenticated user", operationType)}
	}
	return nil
}

func (v *ChatValidator) Operations() []string {
	return []string{"respond"}
}
