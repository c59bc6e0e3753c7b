// SPDX-License-Identifier: AGPL-3.0
// Copyright 2025 Kadir Pekel
//
// Licensed under the GNU Affero General Public License v3.0 (AGPL-3.0) (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     https://www.gnu.org/licenses/agpl-3.0.en.html
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package toolexec

import (
	"context"
	"errors"

	"github.com/arbor-run/kernel/pkg/bus"
	"github.com/arbor-run/kernel/pkg/contacts"
	"github.com/arbor-run/kernel/pkg/convstore"
	"github.com/arbor-run/kernel/pkg/orgstore"
)

// SendMessageTool implements send_message.
type SendMessageTool struct {
	Bus      *bus.Bus
	Org      *orgstore.OrgStore
	Contacts *contacts.Registry
}

type sendMessageArgs struct {
	To      string `json:"to" jsonschema:"required,description=Recipient agent id"`
	Payload any    `json:"payload" jsonschema:"required,description=Opaque message payload"`
	TaskID  string `json:"taskId,omitempty" jsonschema:"description=Task scope; inherited from the current message if omitted"`
}

func (t *SendMessageTool) Name() string        { return "send_message" }
func (t *SendMessageTool) Description() string { return "Send a message to another agent, subject to task isolation." }
func (t *SendMessageTool) ArgsExample() any     { return sendMessageArgs{} }

// isExempt reports whether id is one of the two agents the cross-task
// rule never restricts.
func isExempt(id string) bool {
	return id == orgstore.RootAgentID || id == orgstore.UserAgentID
}

func (t *SendMessageTool) Execute(_ context.Context, call CallContext, args map[string]any) (any, error) {
	var a sendMessageArgs
	if err := decodeArgs(args, &a); err != nil {
		return errResult("invalid_args", err.Error(), nil), nil
	}
	if a.To == "" {
		return errResult("missing_parameter", "to is required", nil), nil
	}

	recipient, err := t.Org.GetAgent(a.To)
	if errors.Is(err, orgstore.ErrAgentNotFound) {
		return errResult("unknown_recipient", a.To, nil), nil
	}
	if err != nil {
		return nil, err
	}

	taskID := a.TaskID
	if taskID == "" {
		taskID = call.CurrentTaskID
	}

	if !isExempt(call.CallerAgentID) && !isExempt(a.To) {
		sender, err := t.Org.GetAgent(call.CallerAgentID)
		if err != nil {
			return nil, err
		}
		// A and B must share taskId T: both agents' own taskId must equal
		// the message's taskId.
		if taskID == "" || sender.TaskID != taskID || recipient.TaskID != taskID {
			return errResult("cross_task_communication_denied", "", map[string]any{
				"from": call.CallerAgentID,
				"to":   a.To,
			}), nil
		}
	}

	msgID, err := t.Bus.Send(bus.Message{From: call.CallerAgentID, To: a.To, TaskID: taskID, Payload: a.Payload})
	if errors.Is(err, bus.ErrUnknownRecipient) {
		return errResult("unknown_recipient", a.To, nil), nil
	}
	if err != nil {
		return nil, err
	}

	if t.Contacts != nil {
		t.Contacts.NotePeer(a.To, call.CallerAgentID, "sender")
	}
	return map[string]any{"messageId": msgID}, nil
}

// CompressContextTool implements compress_context.
type CompressContextTool struct {
	Conv *convstore.ConversationStore
}

type compressContextArgs struct {
	Summary    string `json:"summary" jsonschema:"required,description=Short summary of the conversation being compressed"`
	KeepRecent int    `json:"keepRecent" jsonschema:"required,description=Number of most recent entries to retain verbatim"`
}

func (t *CompressContextTool) Name() string { return "compress_context" }
func (t *CompressContextTool) Description() string {
	return "Compress the calling agent's conversation history to a summary plus recent tail."
}
func (t *CompressContextTool) ArgsExample() any { return compressContextArgs{} }

func (t *CompressContextTool) Execute(ctx context.Context, call CallContext, args map[string]any) (any, error) {
	var a compressContextArgs
	if err := decodeArgs(args, &a); err != nil {
		return errResult("invalid_args", err.Error(), nil), nil
	}
	if a.Summary == "" {
		return errResult("missing_parameter", "summary is required", nil), nil
	}
	result, err := t.Conv.Compress(ctx, call.CallerAgentID, a.Summary, a.KeepRecent)
	if err != nil {
		return nil, err
	}
	return result, nil
}

// GetContextStatusTool implements get_context_status.
type GetContextStatusTool struct {
	Conv *convstore.ConversationStore
}

func (t *GetContextStatusTool) Name() string        { return "get_context_status" }
func (t *GetContextStatusTool) Description() string { return "Report the calling agent's token usage band." }
func (t *GetContextStatusTool) ArgsExample() any     { return nil }

func (t *GetContextStatusTool) Execute(_ context.Context, call CallContext, _ map[string]any) (any, error) {
	band, tokens := t.Conv.Band(call.CallerAgentID)
	return map[string]any{"band": band, "estimatedTokens": tokens}, nil
}
